// Package api maps the REST surface onto the lifecycle coordinator.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ecomm-platform/order-lifecycle/internal/domain"
	"github.com/ecomm-platform/order-lifecycle/internal/lifecycle"
)

type Handler struct {
	coordinator *lifecycle.Coordinator
	logger      *slog.Logger
}

func NewHandler(coordinator *lifecycle.Coordinator, logger *slog.Logger) *Handler {
	return &Handler{
		coordinator: coordinator,
		logger:      logger,
	}
}

type createOrderRequest struct {
	CustomerID string             `json:"customerId"`
	Items      []domain.OrderItem `json:"items"`
	// Accepted for contract compatibility, not used by the core.
	ShippingAddress  *shippingAddress `json:"shippingAddress,omitempty"`
	PaymentReference string           `json:"paymentReference,omitempty"`
}

type shippingAddress struct {
	City   string `json:"city"`
	Street string `json:"street"`
	Zip    string `json:"zip"`
}

// orderResponse is the wire shape shared by creation, lookup and error
// replies. OrderID is a pointer so error replies serialize it as null.
type orderResponse struct {
	OrderID *string            `json:"orderId"`
	Status  string             `json:"status"`
	Message string             `json:"message,omitempty"`
	Items   []domain.OrderItem `json:"items,omitempty"`
	Reason  string             `json:"reason,omitempty"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.coordinator.CreateOrder(r.Context(), lifecycle.CreateOrderRequest{
		CustomerID: req.CustomerID,
		Items:      req.Items,
	})
	if err != nil {
		if errors.Is(err, lifecycle.ErrInvalidOrder) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to create order", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to create order")
		return
	}

	h.writeJSON(w, http.StatusCreated, orderResponse{
		OrderID: &order.OrderID,
		Status:  string(order.Status),
		Message: "Order received. Inventory check in progress.",
	})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("orderId")

	order, err := h.coordinator.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, lifecycle.ErrNotFound) {
			h.writeJSON(w, http.StatusNotFound, orderResponse{
				OrderID: &orderID,
				Status:  "NOT_FOUND",
				Message: "Order not found",
			})
			return
		}
		h.logger.Error("failed to get order", "error", err, "order_id", orderID)
		h.writeJSON(w, http.StatusInternalServerError, orderResponse{
			OrderID: &orderID,
			Status:  "ERROR",
			Message: "Failed to retrieve order",
		})
		return
	}

	h.writeJSON(w, http.StatusOK, orderResponse{
		OrderID: &order.OrderID,
		Status:  string(order.Status),
		Items:   order.Items,
		Reason:  order.Reason,
	})
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	orders, err := h.coordinator.ListOrders(r.Context())
	if err != nil {
		h.logger.Error("failed to list orders", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to retrieve orders")
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, orderResponse{Status: "ERROR", Message: message})
}
