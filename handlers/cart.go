package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/alex-brain/marketplace-backend/internal/auth"
	"github.com/alex-brain/marketplace-backend/pkg/ctxmanage"
	"github.com/alex-brain/marketplace-backend/pkg/logkey"
)

// userIDFromClaims pulls the authenticated user id out of the request
// context, failing the request if the middleware did not run.
func userIDFromClaims(c *gin.Context, traceID string) (int64, auth.Claims, bool) {
	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	if !ok {
		slog.Error("claims not found", slog.String(logkey.TraceID, traceID))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return 0, auth.Claims{}, false
	}
	userID, err := claims.UserID()
	if err != nil {
		slog.Error("invalid user id in claims", slog.String(logkey.TraceID, traceID), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return 0, auth.Claims{}, false
	}
	return userID, claims, true
}

func (h *Handler) GetCart(c *gin.Context) {
	traceID := ctxmanage.GetTraceIDOfRequest(c)
	userID, _, ok := userIDFromClaims(c, traceID)
	if !ok {
		return
	}

	cartResponse, err := h.c.ListLines(c.Request.Context(), userID)
	if err != nil {
		slog.Error("error fetching cart", slog.String(logkey.TraceID, traceID),
			slog.Int64(logkey.UserID, userID), slog.String(logkey.ERROR, err.Error()))
		respondError(c, traceID, err)
		return
	}

	c.JSON(http.StatusOK, cartResponse)
}

func (h *Handler) AddToCart(c *gin.Context) {
	traceID := ctxmanage.GetTraceIDOfRequest(c)
	userID, _, ok := userIDFromClaims(c, traceID)
	if !ok {
		return
	}

	var request struct {
		ProductID int64 `json:"product_id" validate:"required,min=1"`
		Quantity  int   `json:"quantity" validate:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		slog.Error("invalid request body", slog.String(logkey.TraceID, traceID), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := h.validate.Struct(request); err != nil {
		slog.Error("validation failed", slog.String(logkey.TraceID, traceID), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Product ID and quantity must be valid"})
		return
	}

	if err := h.c.AddLine(c.Request.Context(), userID, request.ProductID, request.Quantity); err != nil {
		slog.Error("error adding product to cart", slog.String(logkey.TraceID, traceID),
			slog.Int64("product_id", request.ProductID), slog.Int("quantity", request.Quantity),
			slog.String(logkey.ERROR, err.Error()))
		respondError(c, traceID, err)
		return
	}

	slog.Info("product added to cart", slog.String(logkey.TraceID, traceID),
		slog.Int64(logkey.UserID, userID), slog.Int64("product_id", request.ProductID),
		slog.Int("quantity", request.Quantity))
	c.JSON(http.StatusOK, gin.H{"message": "Product added to cart"})
}

func (h *Handler) UpdateCartItem(c *gin.Context) {
	traceID := ctxmanage.GetTraceIDOfRequest(c)
	userID, _, ok := userIDFromClaims(c, traceID)
	if !ok {
		return
	}

	itemID, err := strconv.ParseInt(c.Param("itemId"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid item id"})
		return
	}

	var request struct {
		Quantity int `json:"quantity" validate:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		slog.Error("invalid request body", slog.String(logkey.TraceID, traceID), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := h.validate.Struct(request); err != nil {
		slog.Error("validation failed", slog.String(logkey.TraceID, traceID), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Quantity must be positive"})
		return
	}

	if err := h.c.UpdateLineQuantity(c.Request.Context(), userID, itemID, request.Quantity); err != nil {
		slog.Error("error updating cart item", slog.String(logkey.TraceID, traceID),
			slog.Int64("item_id", itemID), slog.String(logkey.ERROR, err.Error()))
		respondError(c, traceID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Cart item updated"})
}

func (h *Handler) RemoveFromCart(c *gin.Context) {
	traceID := ctxmanage.GetTraceIDOfRequest(c)
	userID, _, ok := userIDFromClaims(c, traceID)
	if !ok {
		return
	}

	itemID, err := strconv.ParseInt(c.Param("itemId"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid item id"})
		return
	}

	if err := h.c.RemoveLine(c.Request.Context(), userID, itemID); err != nil {
		slog.Error("error removing cart item", slog.String(logkey.TraceID, traceID),
			slog.Int64("item_id", itemID), slog.String(logkey.ERROR, err.Error()))
		respondError(c, traceID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Cart item removed"})
}

func (h *Handler) ClearCart(c *gin.Context) {
	traceID := ctxmanage.GetTraceIDOfRequest(c)
	userID, _, ok := userIDFromClaims(c, traceID)
	if !ok {
		return
	}

	if err := h.c.Clear(c.Request.Context(), userID); err != nil {
		slog.Error("error clearing cart", slog.String(logkey.TraceID, traceID),
			slog.Int64(logkey.UserID, userID), slog.String(logkey.ERROR, err.Error()))
		respondError(c, traceID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Cart cleared"})
}
