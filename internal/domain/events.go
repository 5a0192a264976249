package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

const EventTypeOrderCreated = "OrderCreated"

// OrderCreatedEvent is published on the order.created topic once per
// successfully persisted order. CorrelationID is a fresh id distinct from
// the order id, carried for log correlation only.
type OrderCreatedEvent struct {
	EventType     string      `json:"eventType"`
	OrderID       string      `json:"orderId"`
	CorrelationID string      `json:"correlationId"`
	CreatedAt     time.Time   `json:"createdAt"`
	Items         []OrderItem `json:"items"`
}

// StockResultEvent is the wire shape produced by the inventory subsystem
// on the stock.results topic. The schema is externally owned; only the
// fields relevant to the matched event type are populated.
type StockResultEvent struct {
	EventType     string      `json:"eventType"`
	OrderID       string      `json:"orderId"`
	CorrelationID string      `json:"correlationId"`
	Reason        string      `json:"reason,omitempty"`
	ReservedItems []OrderItem `json:"reservedItems,omitempty"`
	ReservedAt    string      `json:"reservedAt,omitempty"`
	RejectedAt    string      `json:"rejectedAt,omitempty"`
}

type StockResultKind int

const (
	StockResultUnrecognized StockResultKind = iota
	StockResultReserved
	StockResultRejected
)

// StockResult is the parsed, tagged form of a StockResultEvent. Raw event
// type strings are resolved to a kind exactly once, at the boundary;
// everything downstream switches on Kind.
type StockResult struct {
	Kind          StockResultKind
	OrderID       string
	CorrelationID string
	Reason        string
	RawEventType  string
}

// ParseStockResult decodes a stock.results payload into a StockResult.
// An unrecognized event type is not an error; the caller decides how to
// surface it. A payload that cannot be decoded or carries no order id is.
func ParseStockResult(payload []byte) (StockResult, error) {
	var event StockResultEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return StockResult{}, fmt.Errorf("decode stock result: %w", err)
	}

	if event.OrderID == "" {
		return StockResult{}, fmt.Errorf("stock result has no orderId (eventType %q)", event.EventType)
	}

	result := StockResult{
		OrderID:       event.OrderID,
		CorrelationID: event.CorrelationID,
		Reason:        event.Reason,
		RawEventType:  event.EventType,
	}

	switch event.EventType {
	case "StockReserved":
		result.Kind = StockResultReserved
	case "StockRejected":
		result.Kind = StockResultRejected
	default:
		result.Kind = StockResultUnrecognized
	}

	return result, nil
}
