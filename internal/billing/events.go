package billing

import (
	"encoding/json"
	"time"

	"collegeplan/internal/types"
)

// Event is a Stripe webhook event. Only the envelope is decoded up front; the
// data object is decoded by the handler for the event's type.
type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Created int64     `json:"created"`
	Data    EventData `json:"data"`
}

// EventData wraps the event's subject object.
type EventData struct {
	Object json.RawMessage `json:"object"`
}

// ParseEvent decodes a verified webhook payload.
func ParseEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidBody, "invalid webhook event JSON", err)
	}
	if event.Type == "" {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidBody, "webhook event has no type", nil)
	}
	return &event, nil
}

// OccurredAt is the event's creation time, used to order writes.
func (e *Event) OccurredAt() time.Time {
	return time.Unix(e.Created, 0).UTC()
}

// decodeObject unmarshals the event's data object into out.
func (e *Event) decodeObject(out any) error {
	if len(e.Data.Object) == 0 {
		return types.NewAppError(types.ErrCodeValidationInvalidBody, "webhook event "+e.ID+" has no data object", nil)
	}
	if err := json.Unmarshal(e.Data.Object, out); err != nil {
		return types.NewAppError(types.ErrCodeValidationInvalidBody, "failed to decode "+e.Type+" object", err)
	}
	return nil
}

// SyncResult describes what applying an event did to local state.
type SyncResult string

const (
	// SyncApplied means the subscription row was written.
	SyncApplied SyncResult = "applied"
	// SyncStale means a newer event had already been applied.
	SyncStale SyncResult = "stale"
	// SyncIgnored means the event type or object carries nothing to store.
	SyncIgnored SyncResult = "ignored"
	// SyncUnknownCustomer means no user is mapped to the event's customer.
	SyncUnknownCustomer SyncResult = "unknown_customer"
)
