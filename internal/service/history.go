package service

import (
	"context"
	"log"
	"time"

	"fleettrack/internal/geo"
	"fleettrack/internal/model"
	"fleettrack/internal/repository"
)

const (
	// Write-time coalescing thresholds: a sample is stored only if it is
	// separated from the previous one by at least this much time OR this
	// much displacement.
	minSampleInterval = 30 * time.Second
	minSampleDistance = 10.0 // meters

	// Stop detection thresholds for travel statistics.
	stopSpeedThreshold = 5.0 // km/h
	minStopDuration    = 60 * time.Second

	retentionSweepInterval = 24 * time.Hour
)

// SampleMeta carries the optional fields of a position sample.
type SampleMeta struct {
	Speed      float64
	Heading    float64
	Altitude   *float64
	Odometer   *float64
	Online     bool
	RecordedAt time.Time
}

// HistoryService is the append-only position history store with write-time
// coalescing, downsampling and retention.
type HistoryService struct {
	positions repository.PositionRepository
	retention time.Duration
}

// NewHistoryService creates a history service. retentionDays bounds how long
// samples are kept; zero or negative falls back to 90 days.
func NewHistoryService(positions repository.PositionRepository, retentionDays int) *HistoryService {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &HistoryService{
		positions: positions,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
	}
}

// RecordSample appends a sample unless the previous stored sample is within
// both the minimum interval and the minimum displacement, in which case the
// call coalesces into the existing sample and returns it with stored=false.
func (s *HistoryService) RecordSample(ctx context.Context, trackerID uint, p geo.Point, meta SampleMeta) (*model.Position, bool, error) {
	last, err := s.positions.Last(ctx, trackerID)
	if err != nil {
		return nil, false, err
	}

	if last != nil {
		dt := meta.RecordedAt.Sub(last.RecordedAt)
		if dt < 0 {
			dt = -dt
		}
		dist := geo.Distance(p, geo.Point{Lat: last.Lat, Lng: last.Lng})
		if dt < minSampleInterval && dist < minSampleDistance {
			return last, false, nil
		}
	}

	sample := &model.Position{
		TrackerID:  trackerID,
		Lat:        p.Lat,
		Lng:        p.Lng,
		Speed:      meta.Speed,
		Heading:    meta.Heading,
		Altitude:   meta.Altitude,
		Odometer:   meta.Odometer,
		Online:     meta.Online,
		RecordedAt: meta.RecordedAt,
		ReceivedAt: time.Now(),
	}
	if err := s.positions.Insert(ctx, sample); err != nil {
		return nil, false, err
	}
	return sample, true, nil
}

// Query returns samples in ascending timestamp order within [from, to).
func (s *HistoryService) Query(ctx context.Context, trackerID uint, from, to time.Time, limit int) ([]model.Position, error) {
	return s.positions.Range(ctx, trackerID, from, to, limit)
}

// Simplify returns the raw series when it has at most maxPoints samples;
// otherwise it returns a fixed-stride subsample that always contains the
// first and last point of the range. Predictable output size matters more
// here than geometric fidelity.
func (s *HistoryService) Simplify(ctx context.Context, trackerID uint, from, to time.Time, maxPoints int) ([]model.Position, error) {
	samples, err := s.positions.Range(ctx, trackerID, from, to, 0)
	if err != nil {
		return nil, err
	}
	return StrideSample(samples, maxPoints), nil
}

// StrideSample downsamples an ordered series to at most maxPoints entries,
// keeping the first and last.
func StrideSample(samples []model.Position, maxPoints int) []model.Position {
	n := len(samples)
	if maxPoints <= 0 || n <= maxPoints {
		return samples
	}

	stride := (n + maxPoints - 1) / maxPoints
	out := make([]model.Position, 0, maxPoints)
	for i := 0; i < n; i += stride {
		out = append(out, samples[i])
	}
	// The last stored pick is replaced by the true last sample so the range
	// endpoint is always preserved.
	if out[len(out)-1].ID != samples[n-1].ID || !out[len(out)-1].RecordedAt.Equal(samples[n-1].RecordedAt) {
		out[len(out)-1] = samples[n-1]
	}
	return out
}

// Stop is a contiguous low-speed interval within a travel window.
type Stop struct {
	Lat             float64   `json:"lat"`
	Lng             float64   `json:"lng"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// TravelStats aggregates one tracker's movement over a time range.
type TravelStats struct {
	SampleCount    int     `json:"sample_count"`
	DistanceMeters float64 `json:"distance_meters"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	MovingSeconds  float64 `json:"moving_seconds"`
	StoppedSeconds float64 `json:"stopped_seconds"`
	MaxSpeed       float64 `json:"max_speed"`
	AvgSpeed       float64 `json:"avg_speed"`
	Stops          []Stop  `json:"stops"`
}

// TravelStatsFor computes travel statistics in a single pass over the
// ordered samples of [from, to).
func (s *HistoryService) TravelStatsFor(ctx context.Context, trackerID uint, from, to time.Time) (*TravelStats, error) {
	samples, err := s.positions.Range(ctx, trackerID, from, to, 0)
	if err != nil {
		return nil, err
	}
	return ComputeTravelStats(samples), nil
}

// ComputeTravelStats walks an ascending series computing cumulative
// distance, speed aggregates and stop intervals.
func ComputeTravelStats(samples []model.Position) *TravelStats {
	stats := &TravelStats{SampleCount: len(samples), Stops: []Stop{}}
	if len(samples) == 0 {
		return stats
	}

	first, last := samples[0], samples[len(samples)-1]
	stats.ElapsedSeconds = last.RecordedAt.Sub(first.RecordedAt).Seconds()

	var speedSum float64
	var stopStart, stopEnd *model.Position

	flushStop := func() {
		if stopStart == nil || stopEnd == nil {
			return
		}
		dur := stopEnd.RecordedAt.Sub(stopStart.RecordedAt)
		if dur >= minStopDuration {
			stats.Stops = append(stats.Stops, Stop{
				Lat:             stopStart.Lat,
				Lng:             stopStart.Lng,
				StartedAt:       stopStart.RecordedAt,
				EndedAt:         stopEnd.RecordedAt,
				DurationSeconds: dur.Seconds(),
			})
			stats.StoppedSeconds += dur.Seconds()
		}
		stopStart, stopEnd = nil, nil
	}

	for i := range samples {
		cur := &samples[i]

		if i > 0 {
			prev := &samples[i-1]
			stats.DistanceMeters += geo.Distance(
				geo.Point{Lat: prev.Lat, Lng: prev.Lng},
				geo.Point{Lat: cur.Lat, Lng: cur.Lng},
			)
		}

		speedSum += cur.Speed
		if cur.Speed > stats.MaxSpeed {
			stats.MaxSpeed = cur.Speed
		}

		if cur.Speed < stopSpeedThreshold {
			if stopStart == nil {
				stopStart = cur
			}
			stopEnd = cur
		} else {
			flushStop()
		}
	}
	flushStop()

	stats.AvgSpeed = speedSum / float64(len(samples))
	stats.MovingSeconds = stats.ElapsedSeconds - stats.StoppedSeconds
	return stats
}

// PurgeOlderThan deletes all samples recorded strictly before cutoff.
func (s *HistoryService) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.positions.DeleteBefore(ctx, cutoff)
}

// RunRetention sweeps expired samples on a daily schedule until the context
// is cancelled. The sweep takes no per-tracker locks; a sample written
// mid-sweep survives until the next one.
func (s *HistoryService) RunRetention(ctx context.Context) {
	ticker := time.NewTicker(retentionSweepInterval)
	defer ticker.Stop()

	log.Printf("[Retention] sweeping samples older than %s", s.retention)
	for {
		select {
		case <-ctx.Done():
			log.Println("[Retention] stopped")
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.retention)
			removed, err := s.PurgeOlderThan(ctx, cutoff)
			if err != nil {
				log.Printf("[Retention] purge failed: %v", err)
				continue
			}
			log.Printf("[Retention] purged %d samples older than %s", removed, cutoff.Format(time.RFC3339))
		}
	}
}
