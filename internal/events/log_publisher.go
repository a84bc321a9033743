package events

import (
	"context"

	"github.com/rs/zerolog"
	interfaces "github.com/sheikh-saqib/giving-vault/internal/interfaces"
)

// LogPublisher writes events to the log when no broker is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "events").Logger()}
}

func (p *LogPublisher) Publish(ctx context.Context, topic string, event any) error {
	p.logger.Info().Str("topic", topic).Interface("event", event).Msg("event")
	return nil
}

var _ interfaces.EventPublisher = (*LogPublisher)(nil)
