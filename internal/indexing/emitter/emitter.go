// Package emitter publishes sync pass progress to downstream consumers.
package emitter

import (
	"context"
	"log/slog"
)

// EventType distinguishes progress notifications.
type EventType string

const (
	EventCheckpoint EventType = "checkpoint"
	EventCompleted  EventType = "completed"
)

// SyncEvent describes the state of a sync pass at a checkpoint or at its end.
type SyncEvent struct {
	Type      EventType `json:"type"`
	PassID    string    `json:"pass_id"`
	Platform  string    `json:"platform"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Series    int       `json:"series"`
	Fetched   int       `json:"fetched"`
	Empty     int       `json:"empty"`
	Failed    int       `json:"failed"`
	Permanent int       `json:"permanent"`
	Attempts  int       `json:"attempts"`
	Timestamp int64     `json:"timestamp"` // unix millis
}

// Emitter defines the interface for publishing sync events
type Emitter interface {
	// Emit sends a single event
	Emit(ctx context.Context, event *SyncEvent) error

	// Close releases the underlying connection
	Close() error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Emit(context.Context, *SyncEvent) error { return nil }
func (Noop) Close() error                           { return nil }

// LogEmitter writes events to a logger at debug level.
type LogEmitter struct {
	Log *slog.Logger
}

func (e *LogEmitter) Emit(ctx context.Context, event *SyncEvent) error {
	log := e.Log
	if log == nil {
		log = slog.Default()
	}
	log.DebugContext(ctx, "Sync event",
		"type", event.Type,
		"pass_id", event.PassID,
		"platform", event.Platform,
		"processed", event.Processed,
		"total", event.Total,
		"series", event.Series,
	)
	return nil
}

func (e *LogEmitter) Close() error { return nil }
