package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"fleettrack/internal/model"
)

// In-memory repository fakes. They copy on read and write the way a real
// store would, so shared-pointer mutation bugs surface in tests.

type fakeTrackerRepo struct {
	mu       sync.Mutex
	nextID   uint
	trackers map[uint]model.Tracker
}

func newFakeTrackerRepo() *fakeTrackerRepo {
	return &fakeTrackerRepo{trackers: make(map[uint]model.Tracker)}
}

func (r *fakeTrackerRepo) add(t model.Tracker) *model.Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == 0 {
		r.nextID++
		t.ID = r.nextID
	} else if t.ID > r.nextID {
		r.nextID = t.ID
	}
	r.trackers[t.ID] = t
	out := t
	return &out
}

func (r *fakeTrackerRepo) FindByIdentifier(_ context.Context, identifier string) (*model.Tracker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.trackers {
		if t.Identifier == identifier {
			out := t
			return &out, nil
		}
	}
	return nil, nil
}

func (r *fakeTrackerRepo) FindByID(_ context.Context, id uint) (*model.Tracker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trackers[id]
	if !ok {
		return nil, nil
	}
	out := t
	return &out, nil
}

func (r *fakeTrackerRepo) Save(_ context.Context, tracker *model.Tracker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tracker.ID == 0 {
		r.nextID++
		tracker.ID = r.nextID
	}
	r.trackers[tracker.ID] = *tracker
	return nil
}

func (r *fakeTrackerRepo) ListActive(_ context.Context) ([]model.Tracker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Tracker
	for _, t := range r.trackers {
		if t.Active {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeTrackerRepo) ListOnlineUnseenSince(_ context.Context, threshold time.Time) ([]model.Tracker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Tracker
	for _, t := range r.trackers {
		if t.Online && t.LastSeenAt != nil && t.LastSeenAt.Before(threshold) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeTrackerRepo) EnableGeofenceAlerts(_ context.Context, trackerIDs []uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range trackerIDs {
		if t, ok := r.trackers[id]; ok {
			t.GeofenceAlerts = true
			r.trackers[id] = t
		}
	}
	return nil
}

type fakePositionRepo struct {
	mu        sync.Mutex
	nextID    uint
	positions []model.Position
}

func newFakePositionRepo() *fakePositionRepo {
	return &fakePositionRepo{}
}

func (r *fakePositionRepo) Last(_ context.Context, trackerID uint) (*model.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last *model.Position
	for i := range r.positions {
		p := &r.positions[i]
		if p.TrackerID != trackerID {
			continue
		}
		if last == nil || p.RecordedAt.After(last.RecordedAt) {
			last = p
		}
	}
	if last == nil {
		return nil, nil
	}
	out := *last
	return &out, nil
}

func (r *fakePositionRepo) Insert(_ context.Context, sample *model.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	sample.ID = r.nextID
	r.positions = append(r.positions, *sample)
	return nil
}

func (r *fakePositionRepo) Range(_ context.Context, trackerID uint, from, to time.Time, limit int) ([]model.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Position
	for _, p := range r.positions {
		if p.TrackerID != trackerID {
			continue
		}
		if p.RecordedAt.Before(from) || !p.RecordedAt.Before(to) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakePositionRepo) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []model.Position
	var removed int64
	for _, p := range r.positions {
		if p.RecordedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	r.positions = kept
	return removed, nil
}

func (r *fakePositionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.positions)
}

type fakeGeofenceRepo struct {
	mu          sync.Mutex
	nextID      uint
	geofences   map[uint]model.Geofence
	assignments map[uint][]uint
	events      []model.GeofenceEvent
}

func newFakeGeofenceRepo() *fakeGeofenceRepo {
	return &fakeGeofenceRepo{
		geofences:   make(map[uint]model.Geofence),
		assignments: make(map[uint][]uint),
	}
}

func (r *fakeGeofenceRepo) Create(_ context.Context, g *model.Geofence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	g.ID = r.nextID
	r.geofences[g.ID] = *g
	return nil
}

func (r *fakeGeofenceRepo) Save(_ context.Context, g *model.Geofence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.geofences[g.ID] = *g
	return nil
}

func (r *fakeGeofenceRepo) Delete(_ context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.geofences, id)
	delete(r.assignments, id)
	return nil
}

func (r *fakeGeofenceRepo) FindByID(_ context.Context, id uint) (*model.Geofence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.geofences[id]
	if !ok {
		return nil, nil
	}
	out := g
	return &out, nil
}

func (r *fakeGeofenceRepo) List(_ context.Context, page, pageSize int) ([]model.Geofence, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Geofence
	for _, g := range r.geofences {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (r *fakeGeofenceRepo) ForTracker(_ context.Context, trackerID uint) ([]model.Geofence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Geofence
	for geofenceID, trackerIDs := range r.assignments {
		for _, id := range trackerIDs {
			if id != trackerID {
				continue
			}
			if g, ok := r.geofences[geofenceID]; ok && g.Active {
				out = append(out, g)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeGeofenceRepo) ReplaceAssignments(_ context.Context, geofenceID uint, trackerIDs []uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments[geofenceID] = append([]uint(nil), trackerIDs...)
	return nil
}

func (r *fakeGeofenceRepo) AssignedTrackerIDs(_ context.Context, geofenceID uint) ([]uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint(nil), r.assignments[geofenceID]...), nil
}

func (r *fakeGeofenceRepo) CreateEvent(_ context.Context, ev *model.GeofenceEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = uint(len(r.events) + 1)
	r.events = append(r.events, *ev)
	return nil
}

func (r *fakeGeofenceRepo) Events(_ context.Context, geofenceID uint, page, pageSize int) ([]model.GeofenceEvent, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.GeofenceEvent
	for _, ev := range r.events {
		if ev.GeofenceID == geofenceID {
			out = append(out, ev)
		}
	}
	return out, int64(len(out)), nil
}

type fakeAlertRepo struct {
	mu     sync.Mutex
	nextID uint
	alerts []model.Alert
}

func newFakeAlertRepo() *fakeAlertRepo {
	return &fakeAlertRepo{}
}

func isOpen(status model.AlertStatus) bool {
	return status == model.AlertStatusNew || status == model.AlertStatusRead
}

func (r *fakeAlertRepo) Create(_ context.Context, a *model.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	a.ID = r.nextID
	r.alerts = append(r.alerts, *a)
	return nil
}

func (r *fakeAlertRepo) Save(_ context.Context, a *model.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.alerts {
		if r.alerts[i].ID == a.ID {
			r.alerts[i] = *a
			return nil
		}
	}
	r.alerts = append(r.alerts, *a)
	return nil
}

func (r *fakeAlertRepo) FindByID(_ context.Context, id uint) (*model.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.alerts {
		if r.alerts[i].ID == id {
			out := r.alerts[i]
			return &out, nil
		}
	}
	return nil, nil
}

func (r *fakeAlertRepo) FindOpenOverspeed(_ context.Context, trackerID uint, since time.Time) (*model.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *model.Alert
	for i := range r.alerts {
		a := &r.alerts[i]
		if a.TrackerID != trackerID || a.Kind != model.AlertKindOverspeed || !isOpen(a.Status) {
			continue
		}
		if a.DetectedAt.Before(since) {
			continue
		}
		if found == nil || a.DetectedAt.After(found.DetectedAt) {
			found = a
		}
	}
	if found == nil {
		return nil, nil
	}
	out := *found
	return &out, nil
}

func (r *fakeAlertRepo) FindOpenGeofence(_ context.Context, trackerID, geofenceID uint, kind model.AlertKind, since time.Time) (*model.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *model.Alert
	for i := range r.alerts {
		a := &r.alerts[i]
		if a.TrackerID != trackerID || a.Kind != kind || !isOpen(a.Status) {
			continue
		}
		if a.GeofenceID == nil || *a.GeofenceID != geofenceID {
			continue
		}
		if a.DetectedAt.Before(since) {
			continue
		}
		if found == nil || a.DetectedAt.After(found.DetectedAt) {
			found = a
		}
	}
	if found == nil {
		return nil, nil
	}
	out := *found
	return &out, nil
}

func (r *fakeAlertRepo) HasOpen(_ context.Context, trackerID uint, kind model.AlertKind) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.alerts {
		a := &r.alerts[i]
		if a.TrackerID == trackerID && a.Kind == kind && isOpen(a.Status) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeAlertRepo) List(_ context.Context, q *model.AlertListQuery) ([]model.Alert, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Alert
	for _, a := range r.alerts {
		if q.Identifier != "" && a.Identifier != q.Identifier {
			continue
		}
		if q.Kind != "" && a.Kind != q.Kind {
			continue
		}
		if q.Status != "" && a.Status != q.Status {
			continue
		}
		out = append(out, a)
	}
	return out, int64(len(out)), nil
}

func (r *fakeAlertRepo) Stats(_ context.Context, from, to *time.Time) (*model.AlertStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &model.AlertStats{
		ByKind:     make(map[string]int64),
		ByStatus:   make(map[string]int64),
		BySeverity: make(map[string]int64),
	}
	for _, a := range r.alerts {
		if from != nil && a.DetectedAt.Before(*from) {
			continue
		}
		if to != nil && a.DetectedAt.After(*to) {
			continue
		}
		stats.Total++
		stats.ByKind[string(a.Kind)]++
		stats.ByStatus[string(a.Status)]++
		stats.BySeverity[string(a.Severity)]++
	}
	return stats, nil
}

func (r *fakeAlertRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

// captureBroadcaster records every publish for assertions.
type captureBroadcaster struct {
	mu        sync.Mutex
	positions []PositionEvent
	statuses  []StatusEvent
	alerts    []*model.Alert
	geofences []GeofenceTransitionEvent
	syncs     []SyncStatusEvent
}

func (b *captureBroadcaster) PublishPosition(_ string, data interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ev, ok := data.(PositionEvent); ok {
		b.positions = append(b.positions, ev)
	}
}

func (b *captureBroadcaster) PublishTrackerStatus(_ string, data interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ev, ok := data.(StatusEvent); ok {
		b.statuses = append(b.statuses, ev)
	}
}

func (b *captureBroadcaster) PublishAlert(_ string, data interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a, ok := data.(*model.Alert); ok {
		b.alerts = append(b.alerts, a)
	}
}

func (b *captureBroadcaster) PublishGeofence(_ uint, _ string, data interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ev, ok := data.(GeofenceTransitionEvent); ok {
		b.geofences = append(b.geofences, ev)
	}
}

func (b *captureBroadcaster) PublishSyncStatus(data interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ev, ok := data.(SyncStatusEvent); ok {
		b.syncs = append(b.syncs, ev)
	}
}

func (b *captureBroadcaster) alertCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.alerts)
}

func (b *captureBroadcaster) statusCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.statuses)
}
