// Package eventstream defines transport-neutral notifications emitted after
// events are durably appended, for downstream consumers (search indexing,
// admin dashboards) that tail the store without scanning log files.
package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/spoolhq/spool/pkg/event"
)

const (
	// SchemaVersionV1 is the first version of the notification schema.
	SchemaVersionV1 = 1

	// EventTypeAppended is emitted after an event is durably appended.
	EventTypeAppended = "spool.event.appended"
)

// AppendEvent is the notification payload for one durable append.
type AppendEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	EntityID      string      `json:"entity_id"`
	Event         event.Event `json:"event"`
}

// NewAppendEvent builds an AppendEvent for the given entity and record.
func NewAppendEvent(entityID string, ev event.Event) *AppendEvent {
	return &AppendEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeAppended,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		EntityID:      entityID,
		Event:         ev,
	}
}
