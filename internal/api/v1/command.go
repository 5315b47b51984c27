package v1

import (
	"fmt"
	"strings"
)

// Command names accepted by the command surface.
const (
	CommandLeaderboard = "leaderboard"
	CommandStats       = "stats"
	CommandResetWeek   = "resetweek"
	CommandAddMessages = "addmessages"
)

// CommandRequest is a query or administrative command invoked by a chat user.
type CommandRequest struct {
	Command string `json:"command"`

	// InvokerID is the user who ran the command. Admin commands check it
	// against the allow-list; stats defaults to it.
	InvokerID string `json:"invoker_id"`

	// leaderboard arguments.
	Scope  string `json:"scope,omitempty"`
	Period string `json:"period,omitempty"`
	Top    *int   `json:"top,omitempty"`

	// stats and addmessages target.
	UserID string `json:"user_id,omitempty"`

	// addmessages amount.
	Amount int64 `json:"amount,omitempty"`
}

// Validate checks the envelope. Argument validation belongs to each command.
func (r *CommandRequest) Validate() error {
	r.Command = strings.ToLower(strings.TrimSpace(r.Command))
	if r.Command == "" {
		return fmt.Errorf("command is required")
	}

	if r.InvokerID == "" {
		return fmt.Errorf("invoker_id is required")
	}

	return nil
}
