package handlers

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/alex-brain/marketplace-backend/internal/auth"
	"github.com/alex-brain/marketplace-backend/internal/cart"
	"github.com/alex-brain/marketplace-backend/internal/orders"
	"github.com/alex-brain/marketplace-backend/internal/stores/kafka"
	"github.com/alex-brain/marketplace-backend/middleware"
)

type Handler struct {
	c        *cart.Conf
	o        *orders.Conf
	k        *kafka.Conf
	validate *validator.Validate
}

func NewHandler(c *cart.Conf, o *orders.Conf, k *kafka.Conf) *Handler {
	return &Handler{
		c:        c,
		o:        o,
		k:        k,
		validate: validator.New(),
	}
}

func API(endpointPrefix string, keys *auth.Keys, c *cart.Conf, o *orders.Conf, k *kafka.Conf) *gin.Engine {
	r := gin.New()
	mode := os.Getenv("GIN_MODE")
	if mode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	m, err := middleware.NewMid(keys)
	if err != nil {
		panic(err)
	}

	h := NewHandler(c, o, k)
	r.Use(middleware.Logger(), gin.Recovery())

	r.GET("/ping", HealthCheck)
	v1 := r.Group(endpointPrefix)
	{
		v1.Use(m.Authentication())

		v1.GET("/cart", h.GetCart)
		v1.POST("/cart/items", h.AddToCart)
		v1.PUT("/cart/items/:itemId", h.UpdateCartItem)
		v1.DELETE("/cart/items/:itemId", h.RemoveFromCart)
		v1.DELETE("/cart", h.ClearCart)

		v1.POST("/orders", h.CreateOrder)
		v1.GET("/orders", h.GetOrders)
		v1.GET("/orders/count", m.Authorize(h.GetOrderCounts, auth.RoleSeller, auth.RoleAdmin))
		v1.GET("/orders/:id", h.GetOrder)
		v1.POST("/orders/:id/cancel", h.CancelOrder)
		v1.PUT("/orders/:id/status", m.Authorize(h.UpdateOrderStatus, auth.RoleSeller, auth.RoleAdmin))
	}

	return r
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
