package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alex-brain/marketplace-backend/internal/orders"
	"github.com/alex-brain/marketplace-backend/internal/stores/kafka"
	"github.com/alex-brain/marketplace-backend/pkg/ctxmanage"
	"github.com/alex-brain/marketplace-backend/pkg/logkey"
)

func (h *Handler) CreateOrder(c *gin.Context) {
	traceID := ctxmanage.GetTraceIDOfRequest(c)
	userID, _, ok := userIDFromClaims(c, traceID)
	if !ok {
		return
	}

	var request struct {
		ShippingAddress string `json:"shipping_address" validate:"required"`
		PaymentMethod   string `json:"payment_method" validate:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		slog.Error("invalid request body", slog.String(logkey.TraceID, traceID), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := h.validate.Struct(request); err != nil {
		slog.Error("validation failed", slog.String(logkey.TraceID, traceID), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Shipping address and payment method are required"})
		return
	}

	order, err := h.o.CreateOrder(c.Request.Context(), userID, request.ShippingAddress, request.PaymentMethod)
	if err != nil {
		slog.Error("error creating order", slog.String(logkey.TraceID, traceID),
			slog.Int64(logkey.UserID, userID), slog.String(logkey.ERROR, err.Error()))
		respondError(c, traceID, err)
		return
	}

	slog.Info("order created", slog.String(logkey.TraceID, traceID),
		slog.String(logkey.OrderID, order.ID), slog.Int64(logkey.UserID, userID))

	h.produceOrderEvent(traceID, kafka.TopicOrderCreated, order.ID, kafka.OrderCreatedEvent{
		OrderID:     order.ID,
		UserID:      userID,
		TotalAmount: order.TotalAmount,
		CreatedAt:   time.Now().UTC(),
	})

	c.JSON(http.StatusCreated, gin.H{"message": "Order created", "order_id": order.ID})
}

func (h *Handler) CancelOrder(c *gin.Context) {
	traceID := ctxmanage.GetTraceIDOfRequest(c)
	userID, claims, ok := userIDFromClaims(c, traceID)
	if !ok {
		return
	}
	orderID := c.Param("id")

	if err := h.o.CancelOrder(c.Request.Context(), userID, claims.Role, orderID); err != nil {
		slog.Error("error cancelling order", slog.String(logkey.TraceID, traceID),
			slog.String(logkey.OrderID, orderID), slog.String(logkey.ERROR, err.Error()))
		respondError(c, traceID, err)
		return
	}

	slog.Info("order cancelled", slog.String(logkey.TraceID, traceID),
		slog.String(logkey.OrderID, orderID), slog.Int64(logkey.UserID, userID))

	h.produceOrderEvent(traceID, kafka.TopicOrderCancelled, orderID, kafka.OrderCancelledEvent{
		OrderID:     orderID,
		CancelledBy: userID,
		Role:        claims.Role,
		CreatedAt:   time.Now().UTC(),
	})

	c.JSON(http.StatusOK, gin.H{"message": "Order cancelled"})
}

func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	traceID := ctxmanage.GetTraceIDOfRequest(c)
	orderID := c.Param("id")

	var request struct {
		Status string `json:"status" validate:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		slog.Error("invalid request body", slog.String(logkey.TraceID, traceID), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	status, err := orders.ParseStatus(request.Status)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid order status"})
		return
	}

	if err := h.o.UpdateStatus(c.Request.Context(), orderID, status); err != nil {
		slog.Error("error updating order status", slog.String(logkey.TraceID, traceID),
			slog.String(logkey.OrderID, orderID), slog.String("status", request.Status),
			slog.String(logkey.ERROR, err.Error()))
		respondError(c, traceID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Order status updated"})
}

func (h *Handler) GetOrders(c *gin.Context) {
	traceID := ctxmanage.GetTraceIDOfRequest(c)
	userID, claims, ok := userIDFromClaims(c, traceID)
	if !ok {
		return
	}

	list, err := h.o.GetOrders(c.Request.Context(), userID, claims.Role)
	if err != nil {
		slog.Error("error fetching orders", slog.String(logkey.TraceID, traceID),
			slog.Int64(logkey.UserID, userID), slog.String(logkey.ERROR, err.Error()))
		respondError(c, traceID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": list})
}

func (h *Handler) GetOrder(c *gin.Context) {
	traceID := ctxmanage.GetTraceIDOfRequest(c)
	userID, claims, ok := userIDFromClaims(c, traceID)
	if !ok {
		return
	}
	orderID := c.Param("id")

	order, err := h.o.GetOrderByID(c.Request.Context(), userID, claims.Role, orderID)
	if err != nil {
		slog.Error("error fetching order", slog.String(logkey.TraceID, traceID),
			slog.String(logkey.OrderID, orderID), slog.String(logkey.ERROR, err.Error()))
		respondError(c, traceID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (h *Handler) GetOrderCounts(c *gin.Context) {
	traceID := ctxmanage.GetTraceIDOfRequest(c)

	counts, err := h.o.GetOrderCounts(c.Request.Context())
	if err != nil {
		slog.Error("error counting orders", slog.String(logkey.TraceID, traceID), slog.String(logkey.ERROR, err.Error()))
		respondError(c, traceID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"counts": counts})
}

// produceOrderEvent publishes an order lifecycle event off the request path.
// Event delivery is best effort: the order transaction has already committed.
func (h *Handler) produceOrderEvent(traceID, topic, orderID string, event any) {
	if h.k == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal order event", slog.String(logkey.TraceID, traceID), slog.String(logkey.ERROR, err.Error()))
		return
	}
	go func() {
		if err := h.k.ProduceMessage(topic, []byte(orderID), payload); err != nil {
			slog.Error("failed to produce order event", slog.String(logkey.TraceID, traceID),
				slog.String("topic", topic), slog.String(logkey.ERROR, err.Error()))
		}
	}()
}
