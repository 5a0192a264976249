// Package messaging connects the service to the inventory subsystem over
// Kafka: a producer for order.created and a consumer for stock.results.
package messaging

import "context"

const (
	TopicOrderCreated = "order.created"
	TopicStockResults = "stock.results"
)

// Publisher is the outbound event contract. Publish is fire-and-forget
// from the caller's perspective; durability beyond the transport's own
// acknowledgment is not awaited.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}
