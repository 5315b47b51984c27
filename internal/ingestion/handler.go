package ingestion

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	v1 "github.com/aevon-lab/tally/internal/api/v1"
	httperr "github.com/aevon-lab/tally/internal/core/errors"
	"github.com/aevon-lab/tally/internal/counter"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgReadBodyFailed = "Failed to read request body"
	msgInvalidJSON    = "Invalid JSON body"
	msgPersistFailed  = "Failed to persist event"

	statusAccepted = "accepted"
	statusIgnored  = "ignored"
)

// ingestionError carries the structured HTTP error shape from a helper back to the orchestrator.
// Helpers return this instead of writing to gin.Context directly, keeping them decoupled from HTTP.
type ingestionError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *ingestionError) Error() string {
	return e.message
}

// IngestHandler handles HTTP POST requests carrying one tracked event.
func (s *Service) IngestHandler(c *gin.Context) {
	evt, err := s.parseEvent(c)
	if err != nil {
		writeError(c, err)
		return
	}

	if err := s.validateEvent(evt); err != nil {
		writeError(c, err)
		return
	}

	if reason := s.ignoreReason(evt); reason != "" {
		slog.Debug("[Ingestion] Event ignored", "event_id", evt.ID, "reason", reason)
		c.JSON(http.StatusAccepted, gin.H{"status": statusIgnored, "reason": reason})
		return
	}

	if err := s.recordEvent(c.Request.Context(), evt); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": statusAccepted, "event_id": evt.ID})
}

// parseEvent reads the size-limited request body and binds it into an Event.
func (s *Service) parseEvent(c *gin.Context) (*v1.Event, *ingestionError) {
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("[Ingestion] Failed to read request body", "error", err)
		return nil, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("[Ingestion] Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return nil, &ingestionError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpInvalidJsonError,
			message:    "Request body exceeds maximum allowed size",
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		}
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	var evt v1.Event
	if err := c.ShouldBindJSON(&evt); err != nil {
		slog.Warn("[Ingestion] Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		return nil, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		}
	}

	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = s.nowFn()
	}
	return &evt, nil
}

func (s *Service) validateEvent(evt *v1.Event) *ingestionError {
	if err := evt.Validate(); err != nil {
		slog.Warn("[Ingestion] Event validation failed", "error", err, "event_id", evt.ID)
		return &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidArgumentError,
			message:    err.Error(),
		}
	}

	if limit := s.nowFn().Add(s.maxClockSkew); evt.OccurredAt.After(limit) {
		slog.Warn("[Ingestion] Event timestamp is in the future", "event_id", evt.ID, "occurred_at", evt.OccurredAt, "limit", limit)
		return &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidArgumentError,
			message:    "occurred_at is in the future",
			details: map[string]interface{}{
				"max_clock_skew": s.maxClockSkew.String(),
			},
		}
	}
	return nil
}

// ignoreReason reports why an otherwise valid event is not counted.
func (s *Service) ignoreReason(evt *v1.Event) string {
	if evt.ChannelID != s.channelID {
		return "untracked_channel"
	}
	if s.ignoreBots && evt.AuthorBot {
		return "bot_author"
	}
	return ""
}

func (s *Service) recordEvent(ctx context.Context, evt *v1.Event) *ingestionError {
	err := s.recorder.RecordEvent(ctx, evt.UserID, evt.OccurredAt)
	if err == nil {
		return nil
	}

	if errors.Is(err, counter.ErrInvalidArgument) {
		return &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidArgumentError,
			message:    err.Error(),
		}
	}

	slog.Error("[Ingestion] Failed to record event", "error", err, "event_id", evt.ID, "user_id", evt.UserID)
	return &ingestionError{
		statusCode: http.StatusInternalServerError,
		errorType:  httperr.HttpStorageError,
		message:    msgPersistFailed,
	}
}

// writeError serializes an ingestionError as the JSON HTTP response.
func writeError(c *gin.Context, err *ingestionError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}
