package webhooks

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler exposes the configured subscribers and the delivery log.
type Handler struct {
	svc    *Service
	guard  gin.HandlerFunc
	logger *zap.Logger
}

// NewHandler creates a webhook Handler. guard protects every route; nil
// leaves them open.
func NewHandler(svc *Service, guard gin.HandlerFunc, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, guard: guard, logger: logger}
}

// Register registers all webhook routes on the given router group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	wh := rg.Group("/webhooks")
	if h.guard != nil {
		wh.Use(h.guard)
	}
	{
		wh.GET("", h.ListSubscribers)
		wh.GET("/deliveries", h.ListDeliveries)
	}
}

// ListSubscribers handles GET /webhooks.
func (h *Handler) ListSubscribers(c *gin.Context) {
	subs := h.svc.Subscribers()
	c.JSON(http.StatusOK, gin.H{"subscribers": subs, "count": len(subs)})
}

// ListDeliveries handles GET /webhooks/deliveries?limit=N.
func (h *Handler) ListDeliveries(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	deliveries := h.svc.Deliveries(limit)
	c.JSON(http.StatusOK, gin.H{"deliveries": deliveries, "count": len(deliveries)})
}
