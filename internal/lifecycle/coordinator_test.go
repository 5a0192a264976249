package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/ecomm-platform/order-lifecycle/internal/domain"
	"github.com/ecomm-platform/order-lifecycle/internal/store"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

type publishedEvent struct {
	key   string
	event any
}

func (p *capturePublisher) Publish(_ context.Context, key string, event any) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{key: key, event: event})
	return nil
}

func (p *capturePublisher) published() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	events := make([]publishedEvent, len(p.events))
	copy(events, p.events)
	return events
}

// countingStore counts writes so tests can assert how many transitions
// actually reached the store.
type countingStore struct {
	store.OrderStore
	mu   sync.Mutex
	puts int
}

func (s *countingStore) Put(ctx context.Context, order *domain.Order) error {
	s.mu.Lock()
	s.puts++
	s.mu.Unlock()
	return s.OrderStore.Put(ctx, order)
}

func (s *countingStore) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCoordinator() (*Coordinator, *store.MemoryStore, *capturePublisher) {
	orderStore := store.NewMemoryStore()
	publisher := &capturePublisher{}
	return New(orderStore, publisher, testLogger()), orderStore, publisher
}

func validRequest() CreateOrderRequest {
	return CreateOrderRequest{
		Items: []domain.OrderItem{
			{ProductID: "p1", Quantity: 2, Price: 9.99},
		},
	}
}

func resultPayload(t *testing.T, event domain.StockResultEvent) []byte {
	t.Helper()
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	return payload
}

func TestCreateOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("creates pending order and publishes one event", func(t *testing.T) {
		c, _, publisher := newTestCoordinator()

		order, err := c.CreateOrder(ctx, validRequest())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if order.Status != domain.OrderStatusPending {
			t.Errorf("expected PENDING, got %s", order.Status)
		}
		if order.OrderID == "" {
			t.Error("expected a minted order id")
		}

		events := publisher.published()
		if len(events) != 1 {
			t.Fatalf("expected exactly 1 event, got %d", len(events))
		}

		event, ok := events[0].event.(domain.OrderCreatedEvent)
		if !ok {
			t.Fatalf("unexpected event type %T", events[0].event)
		}
		if event.EventType != domain.EventTypeOrderCreated {
			t.Errorf("expected OrderCreated, got %s", event.EventType)
		}
		if event.OrderID != order.OrderID {
			t.Errorf("event order id %s does not match order %s", event.OrderID, order.OrderID)
		}
		if event.CorrelationID == "" || event.CorrelationID == order.OrderID {
			t.Errorf("expected fresh correlation id distinct from order id, got %q", event.CorrelationID)
		}
		if events[0].key != order.OrderID {
			t.Errorf("expected message keyed by order id, got %s", events[0].key)
		}
		if len(event.Items) != 1 || event.Items[0].ProductID != "p1" {
			t.Errorf("expected item snapshot in event, got %+v", event.Items)
		}
	})

	t.Run("mints distinct correlation ids per order", func(t *testing.T) {
		c, _, publisher := newTestCoordinator()

		for i := 0; i < 2; i++ {
			if _, err := c.CreateOrder(ctx, validRequest()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		events := publisher.published()
		first := events[0].event.(domain.OrderCreatedEvent)
		second := events[1].event.(domain.OrderCreatedEvent)
		if first.CorrelationID == second.CorrelationID {
			t.Error("expected distinct correlation ids")
		}
	})

	t.Run("uses supplied customer id verbatim, mints when absent", func(t *testing.T) {
		c, _, _ := newTestCoordinator()

		req := validRequest()
		req.CustomerID = "cust-42"
		order, err := c.CreateOrder(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if order.CustomerID != "cust-42" {
			t.Errorf("expected cust-42, got %s", order.CustomerID)
		}

		order, err = c.CreateOrder(ctx, validRequest())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if order.CustomerID == "" {
			t.Error("expected minted customer id")
		}
	})

	t.Run("rejects invalid items without side effects", func(t *testing.T) {
		c, orderStore, publisher := newTestCoordinator()

		requests := []CreateOrderRequest{
			{},
			{Items: []domain.OrderItem{{ProductID: "p1", Quantity: 0, Price: 1}}},
			{Items: []domain.OrderItem{{ProductID: "p1", Quantity: 1, Price: -0.01}}},
		}

		for _, req := range requests {
			if _, err := c.CreateOrder(ctx, req); !errors.Is(err, ErrInvalidOrder) {
				t.Errorf("expected ErrInvalidOrder for %+v, got %v", req, err)
			}
		}

		orders, _ := orderStore.List(ctx)
		if len(orders) != 0 {
			t.Errorf("expected no orders persisted, got %d", len(orders))
		}
		if len(publisher.published()) != 0 {
			t.Error("expected no events published")
		}
	})

	t.Run("keeps persisted order when publish fails", func(t *testing.T) {
		orderStore := store.NewMemoryStore()
		publisher := &capturePublisher{err: errors.New("broker down")}
		c := New(orderStore, publisher, testLogger())

		order, err := c.CreateOrder(ctx, validRequest())
		if err != nil {
			t.Fatalf("expected success despite publish failure, got %v", err)
		}

		persisted, err := orderStore.Get(ctx, order.OrderID)
		if err != nil || persisted == nil {
			t.Fatalf("expected order persisted, got %v, %v", persisted, err)
		}
		if persisted.Status != domain.OrderStatusPending {
			t.Errorf("expected orphaned order to stay PENDING, got %s", persisted.Status)
		}
	})

	t.Run("round-trips items in order", func(t *testing.T) {
		c, _, _ := newTestCoordinator()

		items := []domain.OrderItem{
			{ProductID: "p3", Quantity: 1, Price: 3},
			{ProductID: "p1", Quantity: 2, Price: 1},
			{ProductID: "p2", Quantity: 3, Price: 2},
		}
		order, err := c.CreateOrder(ctx, CreateOrderRequest{Items: items})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		fetched, err := c.GetOrder(ctx, order.OrderID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(fetched.Items) != len(items) {
			t.Fatalf("expected %d items, got %d", len(items), len(fetched.Items))
		}
		for i, item := range items {
			if fetched.Items[i] != item {
				t.Errorf("item %d: expected %+v, got %+v", i, item, fetched.Items[i])
			}
		}
	})
}

func TestGetOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("returns ErrNotFound for unknown id", func(t *testing.T) {
		c, _, _ := newTestCoordinator()

		if _, err := c.GetOrder(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestHandleResult(t *testing.T) {
	ctx := context.Background()

	t.Run("StockReserved confirms a pending order", func(t *testing.T) {
		c, _, _ := newTestCoordinator()
		order, _ := c.CreateOrder(ctx, validRequest())

		payload := resultPayload(t, domain.StockResultEvent{EventType: "StockReserved", OrderID: order.OrderID})
		if err := c.HandleResult(ctx, payload); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		updated, _ := c.GetOrder(ctx, order.OrderID)
		if updated.Status != domain.OrderStatusConfirmed {
			t.Errorf("expected CONFIRMED, got %s", updated.Status)
		}
		if updated.Reason != "" {
			t.Errorf("expected no reason, got %q", updated.Reason)
		}
	})

	t.Run("StockRejected cancels with the event reason", func(t *testing.T) {
		c, _, _ := newTestCoordinator()
		order, _ := c.CreateOrder(ctx, validRequest())

		payload := resultPayload(t, domain.StockResultEvent{
			EventType: "StockRejected",
			OrderID:   order.OrderID,
			Reason:    "Out of stock",
		})
		if err := c.HandleResult(ctx, payload); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		updated, _ := c.GetOrder(ctx, order.OrderID)
		if updated.Status != domain.OrderStatusCancelled {
			t.Errorf("expected CANCELLED, got %s", updated.Status)
		}
		if updated.Reason != "Out of stock" {
			t.Errorf("expected reason 'Out of stock', got %q", updated.Reason)
		}
	})

	t.Run("StockRejected without reason uses the default", func(t *testing.T) {
		c, _, _ := newTestCoordinator()
		order, _ := c.CreateOrder(ctx, validRequest())

		payload := resultPayload(t, domain.StockResultEvent{EventType: "StockRejected", OrderID: order.OrderID})
		if err := c.HandleResult(ctx, payload); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		updated, _ := c.GetOrder(ctx, order.OrderID)
		if updated.Reason != DefaultCancelReason {
			t.Errorf("expected default reason, got %q", updated.Reason)
		}
	})

	t.Run("duplicate delivery does not touch a terminal order", func(t *testing.T) {
		c, _, _ := newTestCoordinator()
		order, _ := c.CreateOrder(ctx, validRequest())

		reserved := resultPayload(t, domain.StockResultEvent{EventType: "StockReserved", OrderID: order.OrderID})
		if err := c.HandleResult(ctx, reserved); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := c.HandleResult(ctx, reserved); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// A conflicting terminal event must be discarded too.
		rejected := resultPayload(t, domain.StockResultEvent{
			EventType: "StockRejected",
			OrderID:   order.OrderID,
			Reason:    "too late",
		})
		if err := c.HandleResult(ctx, rejected); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		updated, _ := c.GetOrder(ctx, order.OrderID)
		if updated.Status != domain.OrderStatusConfirmed {
			t.Errorf("expected CONFIRMED to stick, got %s", updated.Status)
		}
		if updated.Reason != "" {
			t.Errorf("expected no reason on confirmed order, got %q", updated.Reason)
		}
	})

	t.Run("unknown order id is a silent no-op", func(t *testing.T) {
		c, orderStore, _ := newTestCoordinator()

		payload := resultPayload(t, domain.StockResultEvent{EventType: "StockReserved", OrderID: "never-created"})
		if err := c.HandleResult(ctx, payload); err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}

		orders, _ := orderStore.List(ctx)
		if len(orders) != 0 {
			t.Errorf("expected no order created as a side effect, got %d", len(orders))
		}
	})

	t.Run("unrecognized event type leaves the order pending", func(t *testing.T) {
		c, _, _ := newTestCoordinator()
		order, _ := c.CreateOrder(ctx, validRequest())

		payload := resultPayload(t, domain.StockResultEvent{EventType: "StockAudited", OrderID: order.OrderID})
		if err := c.HandleResult(ctx, payload); err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}

		updated, _ := c.GetOrder(ctx, order.OrderID)
		if updated.Status != domain.OrderStatusPending {
			t.Errorf("expected PENDING, got %s", updated.Status)
		}
	})

	t.Run("malformed payload never escapes the handler", func(t *testing.T) {
		c, _, _ := newTestCoordinator()

		if err := c.HandleResult(ctx, []byte(`{{`)); err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
	})

	t.Run("store failure is contained", func(t *testing.T) {
		c, orderStore, _ := newTestCoordinator()
		order, _ := c.CreateOrder(ctx, validRequest())

		failing := &failingStore{OrderStore: orderStore}
		broken := New(failing, &capturePublisher{}, testLogger())

		payload := resultPayload(t, domain.StockResultEvent{EventType: "StockReserved", OrderID: order.OrderID})
		if err := broken.HandleResult(ctx, payload); err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
	})

	t.Run("concurrent duplicates produce exactly one transition", func(t *testing.T) {
		orderStore := &countingStore{OrderStore: store.NewMemoryStore()}
		c := New(orderStore, &capturePublisher{}, testLogger())

		order, err := c.CreateOrder(ctx, validRequest())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		reserved := resultPayload(t, domain.StockResultEvent{EventType: "StockReserved", OrderID: order.OrderID})
		rejected := resultPayload(t, domain.StockResultEvent{EventType: "StockRejected", OrderID: order.OrderID})

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			payload := reserved
			if i%2 == 1 {
				payload = rejected
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = c.HandleResult(ctx, payload)
			}()
		}
		wg.Wait()

		// One put for creation, one for the single winning transition.
		if got := orderStore.putCount(); got != 2 {
			t.Errorf("expected 2 writes, got %d", got)
		}

		updated, _ := c.GetOrder(ctx, order.OrderID)
		if !updated.Status.Terminal() {
			t.Errorf("expected a terminal status, got %s", updated.Status)
		}
	})
}

type failingStore struct {
	store.OrderStore
}

func (s *failingStore) Put(context.Context, *domain.Order) error {
	return fmt.Errorf("store unavailable")
}
