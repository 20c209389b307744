// Package audit implements the persistent audit log: a subscriber to a
// curated subset of the event bus that assigns every AuditEntry a
// monotonic id in arrival order and serves filtered, deterministic
// queries over the result.
package audit

import (
	"sync"
	"time"

	"github.com/forgecode-ai/forgecode/internal/event"
	"github.com/forgecode-ai/forgecode/pkg/types"
)

// queueSize bounds the audit ingestion queue the same way other
// meaningful-work subscribers (hook dispatch) are bounded: a burst of
// audit-worthy activity queues briefly rather than ever blocking the
// component that published it.
const queueSize = 256

// Log stores audit entries in arrival order and assigns each one a
// monotonic id on ingestion, independent of which producer published it
// or in what order concurrent producers raced to publish.
type Log struct {
	mu      sync.RWMutex
	entries []types.AuditEntry
	seq     int64
	counts  map[string]int

	unsubscribe func()
	dropped     func() uint64

	// persist, if set, mirrors every recorded entry to durable storage
	// (internal/store). It runs outside the log's lock so a slow or
	// stalled writer never blocks audit ingestion.
	persist func(types.AuditEntry)
}

// SetPersister registers a callback invoked with every entry after it has
// been assigned its monotonic id. Used to mirror the in-memory log to
// internal/store without internal/audit importing it directly.
func (l *Log) SetPersister(fn func(types.AuditEntry)) {
	l.mu.Lock()
	l.persist = fn
	l.mu.Unlock()
}

// NewLog creates a Log and subscribes it to bus's AuditRecorded events
// through a bounded queue, so producers (the permission checker's deny
// paths, grant mutators, the task orchestrator's kill path) never block
// on audit ingestion even under a burst of activity.
func NewLog(bus *event.Bus) *Log {
	l := &Log{counts: make(map[string]int)}
	unsub, dropped := bus.SubscribeBounded(event.AuditRecorded, l.ingest, queueSize)
	l.unsubscribe = unsub
	l.dropped = dropped
	return l
}

func (l *Log) ingest(ev event.Event) {
	data, ok := ev.Data.(event.AuditRecordedData)
	if !ok {
		return
	}
	l.record(data.Entry)
}

// Record stores entry synchronously, assigning it the next monotonic id.
// Callers that hold a direct reference to the Log (the permission checker,
// grant store, task orchestrator) call this rather than publishing an
// AuditRecorded event themselves, so "exactly one AuditEntry per denied
// request" holds without racing the bounded queue's own worker goroutine.
// Producers with no direct Log reference instead publish AuditRecorded on
// the bus, which this same Log also ingests via its SubscribeBounded
// subscription.
func (l *Log) Record(entry types.AuditEntry) types.AuditEntry {
	return l.record(entry)
}

func (l *Log) record(entry types.AuditEntry) types.AuditEntry {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	l.mu.Lock()
	l.seq++
	entry.ID = l.seq
	l.entries = append(l.entries, entry)
	l.counts[entry.Action]++
	persist := l.persist
	l.mu.Unlock()

	if persist != nil {
		persist(entry)
	}
	return entry
}

// Close unsubscribes the log from its bus.
func (l *Log) Close() {
	if l.unsubscribe != nil {
		l.unsubscribe()
	}
}

// Dropped reports how many audit events were dropped for queue overflow.
func (l *Log) Dropped() uint64 {
	if l.dropped == nil {
		return 0
	}
	return l.dropped()
}

// Filter narrows a Query; the zero value matches everything.
type Filter struct {
	Actions map[string]bool
	MinRisk int
	Since   time.Time
	Until   time.Time
	Limit   int
}

// Query returns matching entries in ascending id (insertion) order.
func (l *Log) Query(f Filter) []types.AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []types.AuditEntry
	for _, e := range l.entries {
		if f.Actions != nil && !f.Actions[e.Action] {
			continue
		}
		if e.Risk < f.MinRisk {
			continue
		}
		if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// Stats summarizes log contents: total entries and per-action counts.
type Stats struct {
	Total     int
	PerAction map[string]int
}

func (l *Log) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	perAction := make(map[string]int, len(l.counts))
	for k, v := range l.counts {
		perAction[k] = v
	}
	return Stats{Total: len(l.entries), PerAction: perAction}
}
