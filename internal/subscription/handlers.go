package subscription

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/fieldwork/internal/auth"
	"github.com/mbd888/fieldwork/internal/logging"
	"github.com/mbd888/fieldwork/internal/plans"
)

// Handler provides HTTP endpoints for subscriptions.
type Handler struct {
	service *Service
}

// NewHandler creates a new subscription handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterAdminRoutes sets up super-admin subscription routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.PUT("/tenants/:id/subscription/status", h.SetStatus)
	r.PUT("/tenants/:id/subscription/plan", h.ChangePlan)
}

// RegisterProtectedRoutes sets up tenant-scoped routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/tenants/:id/subscription", h.GetSubscription)
}

// GetSubscription handles GET /v1/tenants/:id/subscription
func (h *Handler) GetSubscription(c *gin.Context) {
	sub, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "failed to get subscription")
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

// SetStatus handles PUT /v1/admin/tenants/:id/subscription/status
func (h *Handler) SetStatus(c *gin.Context) {
	var req struct {
		Status Status `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "status required"})
		return
	}
	actor, _ := auth.PrincipalFrom(c)

	sub, err := h.service.SetStatus(c.Request.Context(), actor, c.Param("id"), req.Status)
	if err != nil {
		h.writeError(c, err, "failed to set subscription status")
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

// ChangePlan handles PUT /v1/admin/tenants/:id/subscription/plan
func (h *Handler) ChangePlan(c *gin.Context) {
	var req struct {
		Plan string `json:"plan" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "plan required"})
		return
	}
	actor, _ := auth.PrincipalFrom(c)

	sub, err := h.service.ChangePlan(c.Request.Context(), actor, c.Param("id"), req.Plan)
	if err != nil {
		h.writeError(c, err, "failed to change plan")
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, auth.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "super admin required"})
	case errors.Is(err, ErrSubscriptionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "subscription not found"})
	case errors.Is(err, plans.ErrPlanNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "plan_not_found", "message": "plan not found"})
	case errors.Is(err, ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status", "message": "status must be active or suspended"})
	case errors.Is(err, ErrPlanChangeRefused):
		c.JSON(http.StatusConflict, gin.H{"error": "plan_change_refused", "message": err.Error()})
	default:
		logging.L(c.Request.Context()).Error(fallback, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": fallback})
	}
}
