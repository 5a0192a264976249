// Package lifecycle owns order creation and the event-correlated state
// machine that resolves each order to CONFIRMED or CANCELLED.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ecomm-platform/order-lifecycle/internal/domain"
	"github.com/ecomm-platform/order-lifecycle/internal/messaging"
	"github.com/ecomm-platform/order-lifecycle/internal/store"
)

var (
	ErrNotFound     = errors.New("order not found")
	ErrInvalidOrder = errors.New("invalid order")
)

// DefaultCancelReason is recorded when a rejection event carries no reason.
const DefaultCancelReason = "Insufficient stock"

// Coordinator applies the order state machine:
//
//	PENDING --StockReserved--> CONFIRMED
//	PENDING --StockRejected--> CANCELLED
//
// Terminal orders never transition again; a result delivered for one is an
// anomaly, not an update. The read-modify-write on the result path is
// serialized per order id so duplicate deliveries cannot race each other.
type Coordinator struct {
	store     store.OrderStore
	publisher messaging.Publisher
	logger    *slog.Logger
	locks     *keyedMutex

	resultsProcessed  metric.Int64Counter
	anomalies         metric.Int64Counter
	orphanedPublishes metric.Int64Counter
}

func New(orderStore store.OrderStore, publisher messaging.Publisher, logger *slog.Logger) *Coordinator {
	meter := otel.Meter("lifecycle")
	resultsProcessed, _ := meter.Int64Counter("order.results.processed",
		metric.WithDescription("Stock results that transitioned an order"))
	anomalies, _ := meter.Int64Counter("order.results.anomalies",
		metric.WithDescription("Stock results discarded without a transition"))
	orphanedPublishes, _ := meter.Int64Counter("order.created.orphaned",
		metric.WithDescription("Orders persisted whose creation event failed to publish"))

	return &Coordinator{
		store:             orderStore,
		publisher:         publisher,
		logger:            logger,
		locks:             newKeyedMutex(),
		resultsProcessed:  resultsProcessed,
		anomalies:         anomalies,
		orphanedPublishes: orphanedPublishes,
	}
}

type CreateOrderRequest struct {
	CustomerID string
	Items      []domain.OrderItem
}

// CreateOrder persists a new PENDING order and publishes its creation
// event. The order id is always minted here; a customer id is minted only
// when the request carries none. A publish failure after a successful
// persist does not fail the call: the order is left PENDING and the gap is
// logged and counted instead of rolled back.
func (c *Coordinator) CreateOrder(ctx context.Context, req CreateOrderRequest) (*domain.Order, error) {
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}

	customerID := req.CustomerID
	if customerID == "" {
		customerID = uuid.New().String()
	}

	order := &domain.Order{
		OrderID:    uuid.New().String(),
		CustomerID: customerID,
		Items:      req.Items,
		Status:     domain.OrderStatusPending,
	}

	if err := c.store.Put(ctx, order); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	event := domain.OrderCreatedEvent{
		EventType:     domain.EventTypeOrderCreated,
		OrderID:       order.OrderID,
		CorrelationID: uuid.New().String(),
		CreatedAt:     time.Now().UTC(),
		Items:         order.Items,
	}

	if err := c.publisher.Publish(ctx, order.OrderID, event); err != nil {
		// The order stays PENDING with no inventory notification.
		c.logger.Error("order persisted but creation event not published",
			"error", err, "order_id", order.OrderID, "correlation_id", event.CorrelationID)
		c.orphanedPublishes.Add(ctx, 1)
		return order, nil
	}

	c.logger.Info("order created",
		"order_id", order.OrderID, "customer_id", order.CustomerID, "correlation_id", event.CorrelationID)
	return order, nil
}

// GetOrder returns a snapshot of the order or ErrNotFound.
func (c *Coordinator) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := c.store.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if order == nil {
		return nil, ErrNotFound
	}
	return order, nil
}

// ListOrders returns all orders in store insertion order.
func (c *Coordinator) ListOrders(ctx context.Context) ([]domain.Order, error) {
	orders, err := c.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// HandleResult consumes one stock.results payload. Every failure mode is
// terminal here: malformed payloads, unknown orders, unrecognized event
// types and store faults are logged and counted, never returned, so the
// transport's redelivery machinery is never triggered from this path.
func (c *Coordinator) HandleResult(ctx context.Context, payload []byte) error {
	result, err := domain.ParseStockResult(payload)
	if err != nil {
		c.logger.Warn("discarding malformed stock result", "error", err)
		c.anomaly(ctx, "malformed")
		return nil
	}

	unlock := c.locks.Lock(result.OrderID)
	defer unlock()

	order, err := c.store.Get(ctx, result.OrderID)
	if err != nil {
		c.logger.Error("stock result dropped: order lookup failed",
			"error", err, "order_id", result.OrderID, "correlation_id", result.CorrelationID)
		c.anomaly(ctx, "store_error")
		return nil
	}

	if order == nil {
		c.logger.Warn("stock result for unknown order",
			"order_id", result.OrderID, "event_type", result.RawEventType, "correlation_id", result.CorrelationID)
		c.anomaly(ctx, "not_found")
		return nil
	}

	if order.Status.Terminal() {
		c.logger.Warn("stock result for already resolved order",
			"order_id", order.OrderID, "status", order.Status,
			"event_type", result.RawEventType, "correlation_id", result.CorrelationID)
		c.anomaly(ctx, "duplicate_terminal")
		return nil
	}

	switch result.Kind {
	case domain.StockResultReserved:
		order.Status = domain.OrderStatusConfirmed
	case domain.StockResultRejected:
		order.Status = domain.OrderStatusCancelled
		order.Reason = result.Reason
		if order.Reason == "" {
			order.Reason = DefaultCancelReason
		}
	case domain.StockResultUnrecognized:
		c.logger.Warn("unrecognized stock result event type",
			"order_id", order.OrderID, "event_type", result.RawEventType, "correlation_id", result.CorrelationID)
		c.anomaly(ctx, "unrecognized")
		return nil
	}

	if err := c.store.Put(ctx, order); err != nil {
		c.logger.Error("stock result dropped: order update failed",
			"error", err, "order_id", order.OrderID, "status", order.Status)
		c.anomaly(ctx, "store_error")
		return nil
	}

	c.resultsProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(order.Status))))
	c.logger.Info("order resolved",
		"order_id", order.OrderID, "status", order.Status, "correlation_id", result.CorrelationID)
	return nil
}

func (c *Coordinator) anomaly(ctx context.Context, kind string) {
	c.anomalies.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func validateItems(items []domain.OrderItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: order must contain at least one item", ErrInvalidOrder)
	}
	for i, item := range items {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d has non-positive quantity %d", ErrInvalidOrder, i, item.Quantity)
		}
		if item.Price < 0 {
			return fmt.Errorf("%w: item %d has negative price %v", ErrInvalidOrder, i, item.Price)
		}
	}
	return nil
}
