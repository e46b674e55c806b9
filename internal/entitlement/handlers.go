package entitlement

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/fieldwork/internal/logging"
	"github.com/mbd888/fieldwork/internal/plans"
)

// Handler provides HTTP endpoints for entitlement checks and usage.
type Handler struct {
	gate *Gate
}

// NewHandler creates a new entitlement handler.
func NewHandler(gate *Gate) *Handler {
	return &Handler{gate: gate}
}

// RegisterProtectedRoutes sets up tenant-scoped routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/tenants/:id/usage", h.GetUsage)
	r.GET("/tenants/:id/entitlements/:category", h.CheckCategory)
	r.GET("/tenants/:id/modules/:module", h.CheckModule)
}

// CheckCategory handles GET /v1/tenants/:id/entitlements/:category. The
// verdict is returned with 200 whether or not it allows.
func (h *Handler) CheckCategory(c *gin.Context) {
	raw := c.Param("category")
	cat, ok := plans.ParseCategory(raw)
	if !ok {
		cat = plans.Category(raw)
	}
	v := h.gate.CheckLimit(c.Request.Context(), c.Param("id"), cat)
	c.JSON(http.StatusOK, gin.H{"verdict": v})
}

// CheckModule handles GET /v1/tenants/:id/modules/:module
func (h *Handler) CheckModule(c *gin.Context) {
	module := c.Param("module")
	enabled := h.gate.HasModule(c.Request.Context(), c.Param("id"), module)
	c.JSON(http.StatusOK, gin.H{"module": module, "enabled": enabled})
}

// GetUsage handles GET /v1/tenants/:id/usage
func (h *Handler) GetUsage(c *gin.Context) {
	usage, err := h.gate.Usage(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNoActiveSubscription) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no_active_subscription", "message": MsgNoActiveSubscription})
			return
		}
		logging.L(c.Request.Context()).Error("usage report failed", "tenant", c.Param("id"), "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable", "message": MsgTemporarilyDown})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenantId": c.Param("id"), "usage": usage})
}

// WriteDenied renders a denying verdict as 403, or 503 when the check
// itself could not run.
func WriteDenied(c *gin.Context, v Verdict) {
	status := http.StatusForbidden
	if v.Reason == ReasonDataAccessFailure {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": string(v.Reason), "message": v.Message, "verdict": v})
}
