package nop

import (
	"context"

	"github.com/spoolhq/spool/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishAppend validates input and otherwise does nothing.
func (p *Publisher) PublishAppend(_ context.Context, event *eventstream.AppendEvent) error {
	if event == nil {
		return eventstream.ErrNilAppendEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
