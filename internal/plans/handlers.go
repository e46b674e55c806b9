package plans

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/fieldwork/internal/auth"
	"github.com/mbd888/fieldwork/internal/logging"
)

// Handler provides HTTP endpoints for the plan catalog.
type Handler struct {
	catalog *Catalog
}

// NewHandler creates a new plan handler.
func NewHandler(catalog *Catalog) *Handler {
	return &Handler{catalog: catalog}
}

// RegisterRoutes sets up the read-only catalog route.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/plans", h.ListPlans)
}

// RegisterAdminRoutes sets up catalog mutations (super admin only).
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/plans", h.ListAllPlans)
	r.POST("/plans", h.CreatePlan)
	r.PATCH("/plans/:id", h.UpdatePlan)
	r.DELETE("/plans/:id", h.DeletePlan)
}

// ListPlans handles GET /v1/plans
func (h *Handler) ListPlans(c *gin.Context) {
	list, err := h.catalog.List(c.Request.Context())
	if err != nil {
		h.internalError(c, "failed to list plans", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": list, "count": len(list)})
}

// ListAllPlans handles GET /v1/admin/plans, deprecated plans included.
func (h *Handler) ListAllPlans(c *gin.Context) {
	list, err := h.catalog.ListAll(c.Request.Context())
	if err != nil {
		h.internalError(c, "failed to list plans", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": list, "count": len(list)})
}

// CreatePlan handles POST /v1/admin/plans
func (h *Handler) CreatePlan(c *gin.Context) {
	var req NewPlan
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invalid plan body"})
		return
	}
	actor, _ := auth.PrincipalFrom(c)

	p, err := h.catalog.Create(c.Request.Context(), actor, req)
	if err != nil {
		h.writeError(c, err, "failed to create plan")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"plan": p})
}

// UpdatePlan handles PATCH /v1/admin/plans/:id
func (h *Handler) UpdatePlan(c *gin.Context) {
	var req PlanUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invalid plan update"})
		return
	}
	actor, _ := auth.PrincipalFrom(c)

	p, err := h.catalog.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		h.writeError(c, err, "failed to update plan")
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": p})
}

// DeletePlan handles DELETE /v1/admin/plans/:id
func (h *Handler) DeletePlan(c *gin.Context) {
	actor, _ := auth.PrincipalFrom(c)

	deprecated, err := h.catalog.Delete(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.writeError(c, err, "failed to delete plan")
		return
	}
	if deprecated {
		c.JSON(http.StatusOK, gin.H{"deprecated": true, "message": "plan has subscriptions and was deprecated"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, auth.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "super admin required"})
	case errors.Is(err, ErrPlanNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "plan not found"})
	case errors.Is(err, ErrDuplicatePlanName):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_plan_name", "message": "a plan with that name already exists"})
	case errors.Is(err, ErrPlanInUse):
		c.JSON(http.StatusConflict, gin.H{"error": "plan_in_use", "message": "plan is referenced by subscriptions"})
	case errors.Is(err, ErrInvalidPlan):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_plan", "message": err.Error()})
	default:
		h.internalError(c, fallback, err)
	}
}

func (h *Handler) internalError(c *gin.Context, msg string, err error) {
	logging.L(c.Request.Context()).Error(msg, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": msg})
}
