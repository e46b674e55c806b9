package resources

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/fieldwork/internal/auth"
	"github.com/mbd888/fieldwork/internal/entitlement"
	"github.com/mbd888/fieldwork/internal/logging"
	"github.com/mbd888/fieldwork/internal/pagination"
)

// Handler provides HTTP endpoints for tenant resources.
type Handler struct {
	service *Service
}

// NewHandler creates a new resource handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterProtectedRoutes sets up one collection per kind under
// /tenants/:id.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	for _, k := range Kinds {
		base := "/tenants/:id/" + k.Plural()
		r.GET(base, h.list(k))
		r.POST(base, h.create(k))
		r.GET(base+"/:resourceId", h.get(k))
		r.DELETE(base+"/:resourceId", h.remove(k))
	}
	r.PUT("/tenants/:id/staff/:resourceId/status", h.SetStaffStatus)
}

func (h *Handler) create(kind Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req NewResource
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invalid resource body"})
			return
		}
		req.Kind = kind
		actor, _ := auth.PrincipalFrom(c)

		res, err := h.service.Create(c.Request.Context(), actor, c.Param("id"), req)
		if err != nil {
			h.writeError(c, err, "failed to create resource")
			return
		}
		c.JSON(http.StatusCreated, gin.H{string(kind): res})
	}
}

func (h *Handler) list(kind Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := pagination.ParseRequest(c.Query("limit"), c.Query("cursor"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
			return
		}
		actor, _ := auth.PrincipalFrom(c)
		list, err := h.service.List(c.Request.Context(), actor, c.Param("id"), kind)
		if err != nil {
			h.writeError(c, err, "failed to list resources")
			return
		}
		items, next := pagination.Page(list, page, resourceKey)
		c.JSON(http.StatusOK, gin.H{
			kind.Plural(): items,
			"count":       len(items),
			"total":       len(list),
			"next_cursor": next,
			"has_more":    next != "",
		})
	}
}

func resourceKey(r *Resource) (time.Time, string) { return r.CreatedAt, r.ID }

func (h *Handler) get(kind Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, _ := auth.PrincipalFrom(c)
		res, err := h.service.Get(c.Request.Context(), actor, c.Param("id"), kind, c.Param("resourceId"))
		if err != nil {
			h.writeError(c, err, "failed to get resource")
			return
		}
		c.JSON(http.StatusOK, gin.H{string(kind): res})
	}
}

func (h *Handler) remove(kind Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, _ := auth.PrincipalFrom(c)
		if err := h.service.Delete(c.Request.Context(), actor, c.Param("id"), kind, c.Param("resourceId")); err != nil {
			h.writeError(c, err, "failed to delete resource")
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// SetStaffStatus handles PUT /v1/tenants/:id/staff/:resourceId/status
func (h *Handler) SetStaffStatus(c *gin.Context) {
	var req struct {
		Status Status `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "status required"})
		return
	}
	actor, _ := auth.PrincipalFrom(c)

	res, err := h.service.SetStaffStatus(c.Request.Context(), actor, c.Param("id"), c.Param("resourceId"), req.Status)
	if err != nil {
		h.writeError(c, err, "failed to update staff status")
		return
	}
	c.JSON(http.StatusOK, gin.H{"staff": res})
}

func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	if v, ok := entitlement.AsDenied(err); ok {
		entitlement.WriteDenied(c, v)
		return
	}
	switch {
	case errors.Is(err, auth.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "not allowed for this tenant"})
	case errors.Is(err, ErrResourceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "resource not found"})
	case errors.Is(err, ErrInvalidResource), errors.Is(err, ErrInvalidKind):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_resource", "message": err.Error()})
	default:
		logging.L(c.Request.Context()).Error(fallback, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": fallback})
	}
}
