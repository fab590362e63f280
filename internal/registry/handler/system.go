package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jmerrifield20/forkledger/internal/health"
)

// BlockSource reports the shared clock's current block.
type BlockSource interface {
	CurrentBlock() uint64
}

// SystemHandler serves the clock, health and metrics endpoints.
type SystemHandler struct {
	blocks  BlockSource
	checker *health.HealthChecker // nil = always healthy
}

// NewSystemHandler creates a SystemHandler.
func NewSystemHandler(blocks BlockSource, checker *health.HealthChecker) *SystemHandler {
	return &SystemHandler{blocks: blocks, checker: checker}
}

// Register mounts GET /clock on the API group.
func (h *SystemHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/clock", h.Clock)
}

// RegisterProbes mounts /healthz and /metrics on the engine root.
func (h *SystemHandler) RegisterProbes(engine *gin.Engine) {
	engine.GET("/healthz", h.Healthz)
	engine.GET("/metrics", MetricsHandler())
}

// Clock handles GET /clock.
func (h *SystemHandler) Clock(c *gin.Context) {
	block := h.blocks.CurrentBlock()
	RecordBlock(block)
	c.JSON(http.StatusOK, gin.H{"block": block})
}

// Healthz handles GET /healthz. It answers 503 while any probe is past its
// failure threshold.
func (h *SystemHandler) Healthz(c *gin.Context) {
	if h.checker == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	checks, ok := h.checker.Status()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
}
