// Package status exposes run progress over HTTP while a sync is running.
// The endpoint is optional; a nil Tracker is safe to call.
package status

import (
	"sync"
	"time"
)

// StreamState is the lifecycle phase of one stream within a run.
type StreamState string

const (
	StreamPending StreamState = "pending"
	StreamSyncing StreamState = "syncing"
	StreamDone    StreamState = "done"
	StreamFailed  StreamState = "failed"
)

// StreamProgress is a point-in-time view of one stream.
type StreamProgress struct {
	Stream    string      `json:"stream"`
	State     StreamState `json:"state"`
	Records   int64       `json:"records"`
	Pages     int64       `json:"pages"`
	StartedAt *time.Time  `json:"started_at,omitempty"`
	EndedAt   *time.Time  `json:"ended_at,omitempty"`
}

// Snapshot is a point-in-time view of the whole run.
type Snapshot struct {
	RunID     string           `json:"run_id"`
	StartedAt time.Time        `json:"started_at"`
	Streams   []StreamProgress `json:"streams"`
}

// Tracker accumulates progress. All methods are safe for concurrent use and
// safe to call on a nil receiver, so callers need no enabled check.
type Tracker struct {
	mu      sync.Mutex
	runID   string
	started time.Time
	order   []string
	streams map[string]*StreamProgress
}

// NewTracker returns a tracker for one run.
func NewTracker(runID string) *Tracker {
	return &Tracker{
		runID:   runID,
		started: time.Now().UTC(),
		streams: make(map[string]*StreamProgress),
	}
}

// Register declares a stream before its sync starts.
func (t *Tracker) Register(stream string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.get(stream)
}

// Start marks a stream as syncing.
func (t *Tracker) Start(stream string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	sp := t.get(stream)
	now := time.Now().UTC()
	sp.State = StreamSyncing
	sp.StartedAt = &now
}

// AddPage records one completed page and its record count.
func (t *Tracker) AddPage(stream string, records int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	sp := t.get(stream)
	sp.Pages++
	sp.Records += int64(records)
}

// Finish marks a stream complete or failed.
func (t *Tracker) Finish(stream string, failed bool) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	sp := t.get(stream)
	now := time.Now().UTC()
	sp.EndedAt = &now
	if failed {
		sp.State = StreamFailed
	} else {
		sp.State = StreamDone
	}
}

// Snapshot returns a copy of the current progress.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{RunID: t.runID, StartedAt: t.started}
	for _, name := range t.order {
		snap.Streams = append(snap.Streams, *t.streams[name])
	}
	return snap
}

// get returns the stream entry, creating it in pending state. Caller holds
// the lock.
func (t *Tracker) get(stream string) *StreamProgress {
	if sp, ok := t.streams[stream]; ok {
		return sp
	}
	sp := &StreamProgress{Stream: stream, State: StreamPending}
	t.streams[stream] = sp
	t.order = append(t.order, stream)
	return sp
}
