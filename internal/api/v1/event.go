package v1

import (
	"fmt"
	"time"
)

// Event reports one tracked message delivered by the chat transport.
type Event struct {
	// ID is the transport's message identifier. Used for log correlation
	// only; the ingestion service assigns one when it is absent.
	ID string `json:"id"`

	// UserID identifies the author. This is the leaderboard key.
	UserID string `json:"user_id"`

	// ChannelID is where the message was posted. Only the configured
	// tracked channel is counted.
	ChannelID string `json:"channel_id"`

	// AuthorBot is set when the author is an automated account.
	AuthorBot bool `json:"author_bot,omitempty"`

	// OccurredAt is the message timestamp. It selects the period the event
	// belongs to. Defaults to the time of receipt when omitted.
	OccurredAt time.Time `json:"occurred_at"`
}

// Validate ensures the event carries the attributes needed to count it.
func (e *Event) Validate() error {
	if e.UserID == "" {
		return fmt.Errorf("user_id is required")
	}

	if e.ChannelID == "" {
		return fmt.Errorf("channel_id is required")
	}

	return nil
}
