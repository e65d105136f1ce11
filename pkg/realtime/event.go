package realtime

import (
	"fmt"

	"placeme/pkg/models"
)

// Event is the wire form of one change notification. NewRow carries the
// affected message for insert/update/delete events; presence events carry
// UserID/Online instead.
type Event struct {
	Type   string          `json:"event_type"`
	NewRow *models.Message `json:"new_row,omitempty"`

	UserID string `json:"user_id,omitempty"`
	Online *bool  `json:"online,omitempty"`
}

// SubscriptionError reports a failure to establish or maintain a live
// subscription. Status carries the lifecycle state the subscription was in
// when it failed.
type SubscriptionError struct {
	Status string
	Err    error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription %s: %v", e.Status, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }
