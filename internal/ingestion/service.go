package ingestion

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

// Recorder counts one event. Implemented by counter.Engine.
type Recorder interface {
	RecordEvent(ctx context.Context, userID string, ts time.Time) error
}

// Options filters which events are counted.
type Options struct {
	// ChannelID is the tracked channel. Events from other channels are ignored.
	ChannelID string

	// IgnoreBots drops events authored by automated accounts.
	IgnoreBots bool

	MaxBodySizeMB int

	// MaxClockSkew bounds how far occurred_at may lie ahead of the server
	// clock. Later events are rejected so they cannot close the active week.
	MaxClockSkew time.Duration
}

const defaultMaxClockSkew = 5 * time.Minute

type Service struct {
	recorder         Recorder
	channelID        string
	ignoreBots       bool
	maxBodySizeBytes int
	maxClockSkew     time.Duration
	nowFn            func() time.Time
}

func NewService(recorder Recorder, opts Options) *Service {
	if recorder == nil {
		panic("ingestion: recorder must not be nil")
	}
	if opts.ChannelID == "" {
		panic("ingestion: tracked channel must not be empty")
	}
	if opts.MaxBodySizeMB <= 0 {
		opts.MaxBodySizeMB = 1 // default to 1MB
	}
	if opts.MaxClockSkew <= 0 {
		opts.MaxClockSkew = defaultMaxClockSkew
	}
	return &Service{
		recorder:         recorder,
		channelID:        opts.ChannelID,
		ignoreBots:       opts.IgnoreBots,
		maxBodySizeBytes: opts.MaxBodySizeMB * 1024 * 1024,
		maxClockSkew:     opts.MaxClockSkew,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// RegisterRoutes registers the ingestion service routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/events", s.IngestHandler)
}
