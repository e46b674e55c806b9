package tenant

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/fieldwork/internal/auth"
	"github.com/mbd888/fieldwork/internal/logging"
	"github.com/mbd888/fieldwork/internal/plans"
	"github.com/mbd888/fieldwork/internal/subscription"
)

// Handler provides HTTP endpoints for tenant management.
type Handler struct {
	service *Service
	authMgr *auth.Manager
}

// NewHandler creates a new tenant handler.
func NewHandler(service *Service, authMgr *auth.Manager) *Handler {
	return &Handler{service: service, authMgr: authMgr}
}

// RegisterAdminRoutes sets up super-admin tenant routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/tenants", h.Onboard)
	r.GET("/tenants", h.ListTenants)
	r.DELETE("/tenants/:id", h.DeleteTenant)
	r.POST("/tenants/:id/keys", h.CreateKey)
}

// RegisterProtectedRoutes sets up tenant-scoped routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/tenants/:id", h.GetTenant)
	r.GET("/tenants/:id/keys", h.ListKeys)
	r.DELETE("/tenants/:id/keys/:keyId", h.RevokeKey)
}

// Onboard handles POST /v1/admin/tenants
func (h *Handler) Onboard(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
		Slug string `json:"slug" binding:"required"`
		Plan string `json:"plan" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "name, slug and plan required"})
		return
	}
	actor, _ := auth.PrincipalFrom(c)

	out, err := h.service.Onboard(c.Request.Context(), actor, req.Name, req.Slug, req.Plan)
	if err != nil {
		h.writeError(c, err, "failed to onboard tenant")
		return
	}
	c.JSON(http.StatusCreated, out)
}

// ListTenants handles GET /v1/admin/tenants
func (h *Handler) ListTenants(c *gin.Context) {
	actor, _ := auth.PrincipalFrom(c)
	list, err := h.service.List(c.Request.Context(), actor)
	if err != nil {
		h.writeError(c, err, "failed to list tenants")
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenants": list, "count": len(list)})
}

// DeleteTenant handles DELETE /v1/admin/tenants/:id
func (h *Handler) DeleteTenant(c *gin.Context) {
	actor, _ := auth.PrincipalFrom(c)
	if err := h.service.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		h.writeError(c, err, "failed to delete tenant")
		return
	}
	c.Status(http.StatusNoContent)
}

// GetTenant handles GET /v1/tenants/:id
func (h *Handler) GetTenant(c *gin.Context) {
	actor, _ := auth.PrincipalFrom(c)
	t, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.writeError(c, err, "failed to get tenant")
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant": t})
}

// CreateKey handles POST /v1/admin/tenants/:id/keys
func (h *Handler) CreateKey(c *gin.Context) {
	var req struct {
		Name string    `json:"name"`
		Role auth.Role `json:"role"`
	}
	// An empty body creates a member key.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invalid key body"})
		return
	}
	if req.Role == "" {
		req.Role = auth.RoleMember
	}
	actor, _ := auth.PrincipalFrom(c)
	ctx := c.Request.Context()

	tenantID := c.Param("id")
	if _, err := h.service.Get(ctx, actor, tenantID); err != nil {
		h.writeError(c, err, "failed to create key")
		return
	}

	rawKey, key, err := h.authMgr.GenerateKey(ctx, actor, tenantID, req.Role, req.Name)
	if err != nil {
		h.writeError(c, err, "failed to create key")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"apiKey":  rawKey,
		"key":     key,
		"warning": "Store this API key securely. It will not be shown again.",
	})
}

// ListKeys handles GET /v1/tenants/:id/keys
func (h *Handler) ListKeys(c *gin.Context) {
	actor, _ := auth.PrincipalFrom(c)
	keys, err := h.authMgr.ListKeys(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.writeError(c, err, "failed to list keys")
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys, "count": len(keys)})
}

// RevokeKey handles DELETE /v1/tenants/:id/keys/:keyId
func (h *Handler) RevokeKey(c *gin.Context) {
	actor, _ := auth.PrincipalFrom(c)
	if err := h.authMgr.RevokeKey(c.Request.Context(), actor, c.Param("id"), c.Param("keyId")); err != nil {
		h.writeError(c, err, "failed to revoke key")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "key revoked"})
}

func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, auth.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "not allowed for this tenant"})
	case errors.Is(err, ErrTenantNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "tenant not found"})
	case errors.Is(err, auth.ErrKeyNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "key not found"})
	case errors.Is(err, plans.ErrPlanNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_plan", "message": "unknown or retired plan"})
	case errors.Is(err, ErrSlugTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "slug_taken", "message": "slug already in use"})
	case errors.Is(err, subscription.ErrSubscriptionExists):
		c.JSON(http.StatusConflict, gin.H{"error": "subscription_exists", "message": "tenant already subscribed"})
	case errors.Is(err, ErrInvalidTenant), errors.Is(err, auth.ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
	default:
		logging.L(c.Request.Context()).Error(fallback, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": fallback})
	}
}
