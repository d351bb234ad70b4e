// Package sink delivers schemas, records, and sync state downstream.
//
// Two implementations exist: Singer writes tap messages to an output
// stream one JSON object per line, Postgres loads records directly into
// per-stream tables with table-version replace semantics.
package sink

import (
	"time"

	"github.com/JonMunkholm/sheetsync/internal/schema"
	"github.com/JonMunkholm/sheetsync/internal/state"
)

// Sink receives the output of a sync run. Implementations must be safe for
// sequential use; callers never invoke methods concurrently.
type Sink interface {
	// WriteSchema announces a stream's record schema and key properties.
	WriteSchema(stream string, sch *schema.Schema, keyProperties []string) error

	// WriteRecord delivers one record. version is nil outside a
	// versioned full-table sync.
	WriteRecord(stream string, record map[string]any, extractedAt time.Time, version *int64) error

	// WriteActivateVersion signals that records not resent under version
	// should be considered deleted.
	WriteActivateVersion(stream string, version int64) error

	// WriteState publishes the current sync state.
	WriteState(st state.State) error
}
