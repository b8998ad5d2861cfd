// Package changefeed carries committed row changes from Postgres
// (LISTEN/NOTIFY) to in-process consumers, to other instances over NATS and,
// via the stream handler, to browsers.
package changefeed

import (
	"encoding/json"
	"fmt"

	"medops-bknd/internal/livecache"
)

// Event is a row change as emitted by the notify_change() trigger:
// {"table": "...", "op": "INSERT|UPDATE|DELETE", "row": {...}}.
type Event struct {
	Table  string          `json:"table"`
	Op     livecache.Op    `json:"op"`
	Row    json.RawMessage `json:"row"`
	Origin string          `json:"origin,omitempty"`
}

// Parse decodes a notification payload.
func Parse(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("parse change event: %w", err)
	}
	if ev.Table == "" {
		return Event{}, fmt.Errorf("parse change event: missing table")
	}
	switch ev.Op {
	case livecache.OpInsert, livecache.OpUpdate, livecache.OpDelete:
	default:
		return Event{}, fmt.Errorf("parse change event: unknown op %q", ev.Op)
	}
	return ev, nil
}

// Decode maps the raw row onto a typed entity. Model json tags match column
// names, so row_to_json output decodes directly.
func Decode[T any](ev Event) (T, error) {
	var row T
	if err := json.Unmarshal(ev.Row, &row); err != nil {
		return row, fmt.Errorf("decode %s row: %w", ev.Table, err)
	}
	return row, nil
}
