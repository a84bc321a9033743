package interfaces

import "context"

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event any) error
}

// Keyed events choose their own partition key.
type Keyed interface {
	PartitionKey() string
}
