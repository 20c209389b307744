package audit

import (
	"github.com/forgecode-ai/forgecode/internal/event"
	"github.com/forgecode-ai/forgecode/pkg/types"
)

// defaultLog is the process-wide audit log, mirroring the event
// package's own globalBus singleton: most callers don't need a
// dedicated Log instance and can use the package-level helpers below.
var defaultLog = NewLog(event.GlobalBus())

// Record stores entry in the default Log, assigning it a monotonic id.
func Record(entry types.AuditEntry) types.AuditEntry {
	return defaultLog.Record(entry)
}

// Query runs f against the default Log.
func Query(f Filter) []types.AuditEntry {
	return defaultLog.Query(f)
}

// Default returns the process-wide audit log.
func Default() *Log {
	return defaultLog
}
