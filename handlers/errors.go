package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/alex-brain/marketplace-backend/internal/apperr"
	"github.com/alex-brain/marketplace-backend/pkg/logkey"
)

// respondError maps the core's error taxonomy onto HTTP status codes. The
// taxonomy is transport-agnostic; this is the one place the mapping lives.
func respondError(c *gin.Context, traceID string, err error) {
	var insufficientStock *apperr.InsufficientStockError
	var invalidTransition *apperr.InvalidTransitionError
	var invariant *apperr.InvariantViolationError

	switch {
	case errors.Is(err, apperr.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, apperr.ErrAccessDenied):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied"})
	case errors.Is(err, apperr.ErrEmptyCart):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Cart is empty"})
	case errors.As(err, &insufficientStock):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error":      "Insufficient stock",
			"product_id": insufficientStock.ProductID,
			"available":  insufficientStock.Available,
			"requested":  insufficientStock.Requested,
		})
	case errors.As(err, &invalidTransition):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": "Invalid status transition",
			"from":  invalidTransition.From,
			"to":    invalidTransition.To,
		})
	case errors.As(err, &invariant):
		slog.Error("invariant violation", slog.String(logkey.TraceID, traceID), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	case apperr.IsTransient(err):
		slog.Error("transient storage failure", slog.String(logkey.TraceID, traceID), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Temporary failure, please retry"})
	default:
		slog.Error("unexpected error", slog.String(logkey.TraceID, traceID), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}
