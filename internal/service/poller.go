package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"fleettrack/internal/model"
)

// Submitter accepts normalized position reports. Satisfied by
// IngestService.
type Submitter interface {
	Process(ctx context.Context, report *model.PositionReport) (*IngestResult, error)
}

// Poller periodically pulls vehicle statuses from the vendor platform and
// feeds them through the ingestion pipeline as if they were webhook pushes.
type Poller struct {
	client   *PlatformClient
	ingest   Submitter
	hub      Broadcaster
	interval time.Duration
}

// NewPoller creates a poller. A zero interval defaults to 30 seconds.
func NewPoller(client *PlatformClient, ingest Submitter, hub Broadcaster, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if hub == nil {
		hub = NopBroadcaster{}
	}
	return &Poller{client: client, ingest: ingest, hub: hub, interval: interval}
}

// SyncOnce runs one vendor sync: fetch all vehicle statuses and submit
// every device with non-zero coordinates. Unknown trackers count as
// failures but never stop the batch. The aggregate outcome is broadcast
// after the batch.
func (p *Poller) SyncOnce(ctx context.Context) (synced, failed int, err error) {
	if !p.client.Configured() {
		return 0, 0, nil
	}

	statuses, err := p.client.VehicleStatuses(ctx)
	if err != nil {
		return 0, 0, err
	}

	for i := range statuses {
		st := &statuses[i]
		if st.Lat == 0 && st.Lng == 0 {
			continue
		}

		report := reportFromStatus(st)
		if _, err := p.ingest.Process(ctx, report); err != nil {
			failed++
			log.Printf("[Poller] sync %s failed: %v", st.Identifier(), err)
			continue
		}
		synced++
	}

	p.hub.PublishSyncStatus(SyncStatusEvent{
		Platform: p.client.Platform(),
		Synced:   synced,
		Failed:   failed,
		At:       time.Now(),
	})

	return synced, failed, nil
}

func reportFromStatus(st *VehicleStatus) *model.PositionReport {
	lat, lng := st.Lat, st.Lng
	speed, course := st.Speed, st.Course
	report := &model.PositionReport{
		Identifier: st.Identifier(),
		Lat:        &lat,
		Lng:        &lng,
		Speed:      &speed,
		Heading:    &course,
	}
	if st.GPSTime > 0 {
		ts, _ := json.Marshal(st.GPSTime)
		report.Timestamp = ts
	}
	return report
}

// Run polls on the configured interval until the context is cancelled.
// Vendor outages are recorded and retried on the next tick; the loop never
// terminates on its own.
func (p *Poller) Run(ctx context.Context) {
	if !p.client.Configured() {
		log.Println("[Poller] vendor platform not configured, poller disabled")
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	log.Printf("[Poller] syncing from %s every %s", p.client.Platform(), p.interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("[Poller] stopped")
			return
		case <-ticker.C:
			synced, failed, err := p.SyncOnce(ctx)
			if err != nil {
				log.Printf("[Poller] sync failed, retrying next tick: %v", err)
				continue
			}
			if synced > 0 || failed > 0 {
				log.Printf("[Poller] synced %d devices, %d failed", synced, failed)
			}
		}
	}
}
