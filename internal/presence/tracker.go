// Package presence tracks who is watching each workspace's change stream.
//
// The server records a viewer when an event stream opens and releases it
// when the stream closes. A viewer with several open streams (one per list
// screen) stays online until the last one closes. A background reaper
// evicts viewers that have been offline longer than a threshold.
package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Viewer is a snapshot of one user's presence in a workspace.
type Viewer struct {
	Workspace string    `json:"workspace"`
	User      string    `json:"user"`
	Topics    []string  `json:"topics,omitempty"` // topics of the most recent stream
	Streams   int       `json:"streams"`          // open event streams
	Online    bool      `json:"online"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Events    int64     `json:"events"` // changes delivered to this viewer
}

// ReaperConfig configures the background eviction of offline viewers.
type ReaperConfig struct {
	// EvictAfter is how long a viewer stays on the roster after its last
	// stream closed. Default: 10 minutes.
	EvictAfter time.Duration

	// SweepInterval is how often the reaper scans. Default: 60 seconds.
	SweepInterval time.Duration
}

type viewerKey struct {
	workspace string
	user      string
}

type viewerState struct {
	topics    []string
	streams   int
	firstSeen time.Time
	lastSeen  time.Time
	events    int64
}

// Tracker maintains an in-memory roster of stream viewers.
type Tracker struct {
	mu      sync.RWMutex
	viewers map[viewerKey]*viewerState
	now     func() time.Time

	reaperStop chan struct{}
	reaperDone chan struct{}
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		viewers: make(map[viewerKey]*viewerState),
		now:     time.Now,
	}
}

// Connect records an opened stream and returns the function that releases
// it. The release function is idempotent.
func (t *Tracker) Connect(workspace, user string, topics []string) func() {
	k := viewerKey{workspace, user}
	now := t.now()

	t.mu.Lock()
	v, ok := t.viewers[k]
	if !ok {
		v = &viewerState{firstSeen: now}
		t.viewers[k] = v
	}
	v.streams++
	v.lastSeen = now
	v.topics = append([]string(nil), topics...)
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if v, ok := t.viewers[k]; ok && v.streams > 0 {
				v.streams--
				v.lastSeen = t.now()
			}
		})
	}
}

// Delivered counts one change delivered to the viewer.
func (t *Tracker) Delivered(workspace, user string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.viewers[viewerKey{workspace, user}]; ok {
		v.events++
		v.lastSeen = t.now()
	}
}

// Roster returns the viewers of workspace, online viewers first and then by
// most recent activity. An empty workspace returns every viewer.
func (t *Tracker) Roster(workspace string) []Viewer {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Viewer, 0, len(t.viewers))
	for k, v := range t.viewers {
		if workspace != "" && k.workspace != workspace {
			continue
		}
		out = append(out, Viewer{
			Workspace: k.workspace,
			User:      k.user,
			Topics:    v.topics,
			Streams:   v.streams,
			Online:    v.streams > 0,
			FirstSeen: v.firstSeen,
			LastSeen:  v.lastSeen,
			Events:    v.events,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Online != out[j].Online {
			return out[i].Online
		}
		if !out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].LastSeen.After(out[j].LastSeen)
		}
		return out[i].User < out[j].User
	})
	return out
}

// StartReaper launches a background goroutine that evicts long-offline
// viewers. Call Stop to shut it down.
func (t *Tracker) StartReaper(cfg *ReaperConfig) {
	if cfg == nil {
		cfg = &ReaperConfig{}
	}
	if cfg.EvictAfter == 0 {
		cfg.EvictAfter = 10 * time.Minute
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 60 * time.Second
	}

	t.reaperStop = make(chan struct{})
	t.reaperDone = make(chan struct{})

	go t.reapLoop(cfg)
	slog.Info("presence: reaper started",
		"evict_after", cfg.EvictAfter,
		"sweep_interval", cfg.SweepInterval)
}

// Stop shuts down the reaper goroutine.
func (t *Tracker) Stop() {
	if t.reaperStop != nil {
		close(t.reaperStop)
		<-t.reaperDone
		t.reaperStop = nil
		t.reaperDone = nil
	}
}

func (t *Tracker) reapLoop(cfg *ReaperConfig) {
	defer close(t.reaperDone)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.reaperStop:
			return
		case <-ticker.C:
			t.sweep(cfg.EvictAfter)
		}
	}
}

// sweep evicts offline viewers idle for longer than evictAfter and returns
// how many were removed.
func (t *Tracker) sweep(evictAfter time.Duration) int {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for k, v := range t.viewers {
		if v.streams == 0 && now.Sub(v.lastSeen) > evictAfter {
			delete(t.viewers, k)
			n++
		}
	}
	if n > 0 {
		slog.Debug("presence: evicted offline viewers", "count", n)
	}
	return n
}
