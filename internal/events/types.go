package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ChangeType is the row operation a ChangeEvent reports.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Tables that emit change events.
const (
	TableConversations = "conversations"
	TableMessages      = "messages"
)

// ChangeEvent is the wire format for a row change notification. Record holds
// the row after the change, OldRecord the row before it (updates and deletes).
// Delivery is at-least-once; ID lets consumers drop duplicates.
type ChangeEvent struct {
	ID          uuid.UUID       `json:"id"`
	Table       string          `json:"table"`
	Type        ChangeType      `json:"type"`
	Record      json.RawMessage `json:"record,omitempty"`
	OldRecord   json.RawMessage `json:"old_record,omitempty"`
	CommittedAt time.Time       `json:"committed_at"`
}

// Handler receives change events for one subscription.
type Handler func(ev ChangeEvent)

// NewChangeEvent builds an event for table with record (and optionally old)
// marshalled as JSON.
func NewChangeEvent(table string, typ ChangeType, record, old any) (ChangeEvent, error) {
	ev := ChangeEvent{
		ID:          uuid.New(),
		Table:       table,
		Type:        typ,
		CommittedAt: time.Now().UTC(),
	}
	if record != nil {
		data, err := json.Marshal(record)
		if err != nil {
			return ChangeEvent{}, fmt.Errorf("failed to marshal record: %w", err)
		}
		ev.Record = data
	}
	if old != nil {
		data, err := json.Marshal(old)
		if err != nil {
			return ChangeEvent{}, fmt.Errorf("failed to marshal old record: %w", err)
		}
		ev.OldRecord = data
	}
	return ev, nil
}

// Decode unmarshals Record into v.
func (e ChangeEvent) Decode(v any) error {
	if len(e.Record) == 0 {
		return fmt.Errorf("event %s has no record", e.ID)
	}
	return json.Unmarshal(e.Record, v)
}

// DecodeOld unmarshals OldRecord into v.
func (e ChangeEvent) DecodeOld(v any) error {
	if len(e.OldRecord) == 0 {
		return fmt.Errorf("event %s has no old record", e.ID)
	}
	return json.Unmarshal(e.OldRecord, v)
}
