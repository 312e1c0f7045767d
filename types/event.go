package types

import (
	"time"

	"github.com/google/uuid"
)

// User-event kinds published to the broker.
const (
	UserEventCreated = "user.created"
	UserEventUpdated = "user.updated"
	UserEventDeleted = "user.deleted"
)

// UserEvent is the payload published to the user-events channel whenever an
// account changes. Downstream consumers (notifications, email) subscribe to
// these instead of polling the database.
type UserEvent struct {
	Kind       string    `json:"kind"`
	UserID     uuid.UUID `json:"user_id"`
	Username   string    `json:"username,omitempty"`
	Email      string    `json:"email,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
