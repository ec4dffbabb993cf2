package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/myleshyson/lsprotocol-go/protocol"
)

// ProgressEvent is a normalized view of $/progress payloads.
type ProgressEvent struct {
	TokenKey    string
	Kind        string // begin|report|end|unknown
	Title       string
	Message     string
	Percentage  *uint32
	Cancellable *bool
	Time        time.Time
	Raw         json.RawMessage
}

// ProgressSnapshot is returned to status tooling.
type ProgressSnapshot struct {
	Active        []ProgressEvent
	LastEvent     *ProgressEvent
	LastEventTime time.Time
}

// ProgressTracker tracks server-initiated workDone progress streams.
// It is fed by notifications like $/progress.
type ProgressTracker struct {
	mu     sync.RWMutex
	active map[string]ProgressEvent
	last   *ProgressEvent
}

func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{
		active: make(map[string]ProgressEvent),
	}
}

func progressTokenKey(t protocol.ProgressToken) string {
	switch v := t.Value.(type) {
	case int32:
		return fmt.Sprintf("%d", v)
	case string:
		return v
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func (pt *ProgressTracker) RegisterToken(token protocol.ProgressToken) string {
	key := progressTokenKey(token)
	pt.mu.Lock()
	defer pt.mu.Unlock()
	// no-op; existence in active is driven by begin/report/end
	return key
}

func (pt *ProgressTracker) Update(params protocol.ProgressParams) {
	now := time.Now()
	key := progressTokenKey(params.Token)

	raw, err := json.Marshal(params.Value)
	if err != nil {
		// If we can't marshal, we still keep a marker event.
		ev := ProgressEvent{
			TokenKey: key,
			Kind:     "unknown",
			Time:     now,
		}
		pt.mu.Lock()
		pt.last = &ev
		pt.mu.Unlock()
		return
	}

	// Minimal decode common fields across begin/report/end
	var base struct {
		Kind        string  `json:"kind"`
		Title       string  `json:"title,omitempty"`
		Message     string  `json:"message,omitempty"`
		Percentage  *uint32 `json:"percentage,omitempty"`
		Cancellable *bool   `json:"cancellable,omitempty"`
	}
	_ = json.Unmarshal(raw, &base)

	ev := ProgressEvent{
		TokenKey:    key,
		Kind:        base.Kind,
		Title:       base.Title,
		Message:     base.Message,
		Percentage:  base.Percentage,
		Cancellable: base.Cancellable,
		Time:        now,
		Raw:         raw,
	}
	if ev.Kind == "" {
		ev.Kind = "unknown"
	}

	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.last = &ev

	switch ev.Kind {
	case "begin", "report":
		// Keep most recent event per token.
		pt.active[key] = ev
	case "end":
		delete(pt.active, key)
	default:
		// Keep it in active only if we already had it.
		if _, ok := pt.active[key]; ok {
			pt.active[key] = ev
		}
	}
}

func (pt *ProgressTracker) Snapshot() ProgressSnapshot {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	active := make([]ProgressEvent, 0, len(pt.active))
	for _, ev := range pt.active {
		active = append(active, ev)
	}

	var lastCopy *ProgressEvent
	var lastTime time.Time
	if pt.last != nil {
		tmp := *pt.last
		lastCopy = &tmp
		lastTime = tmp.Time
	}

	return ProgressSnapshot{
		Active:        active,
		LastEvent:     lastCopy,
		LastEventTime: lastTime,
	}
}

// UpdateServerStatus folds a non-standard experimental/serverStatus
// payload into the same active-set model as $/progress, so a server that
// reports readiness its own way (spec §4.3's "known per-server quirks")
// still shows up in Snapshot.
func (pt *ProgressTracker) UpdateServerStatus(raw json.RawMessage) {
	var status struct {
		Quiescent bool   `json:"quiescent"`
		Health    string `json:"health"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(raw, &status); err != nil {
		return
	}

	const key = "experimental/serverStatus"
	now := time.Now()

	pt.mu.Lock()
	defer pt.mu.Unlock()

	if status.Quiescent {
		delete(pt.active, key)
	} else {
		pt.active[key] = ProgressEvent{
			TokenKey: key,
			Kind:     "report",
			Message:  status.Message,
			Time:     now,
			Raw:      raw,
		}
	}
	ev := pt.active[key]
	if status.Quiescent {
		ev = ProgressEvent{TokenKey: key, Kind: "end", Time: now, Raw: raw}
	}
	pt.last = &ev
}

// Quiescent reports whether no progress stream is currently active, i.e.
// the server believes indexing/analysis has settled (spec §4.3 readiness).
func (pt *ProgressTracker) Quiescent() bool {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return len(pt.active) == 0
}

// WaitQuiescent blocks until Quiescent() holds for at least minIdle, or ctx
// is done. It is used by workspace startup to decide a server has finished
// its initial indexing pass before the first request is sent to it.
func (pt *ProgressTracker) WaitQuiescent(ctx context.Context, minIdle, pollInterval time.Duration) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var quietSince time.Time
	for {
		if pt.Quiescent() {
			if quietSince.IsZero() {
				quietSince = time.Now()
			}
			if time.Since(quietSince) >= minIdle {
				return nil
			}
		} else {
			quietSince = time.Time{}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
