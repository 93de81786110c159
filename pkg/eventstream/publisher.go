package eventstream

import "context"

// Publisher publishes append notifications to an event stream backend.
type Publisher interface {
	PublishAppend(ctx context.Context, event *AppendEvent) error
	Close() error
}
