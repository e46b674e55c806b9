package audit

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/fieldwork/internal/logging"
)

// Handler exposes the audit to super admins.
type Handler struct {
	runner *Runner
}

// NewHandler creates a new audit handler.
func NewHandler(runner *Runner) *Handler {
	return &Handler{runner: runner}
}

// RegisterAdminRoutes sets up GET /audit under the admin group.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/audit", h.GetAudit)
}

// GetAudit handles GET /v1/admin/audit. ?cached=true returns the last
// scheduled report instead of running a new one.
func (h *Handler) GetAudit(c *gin.Context) {
	if c.Query("cached") == "true" {
		if rep := h.runner.Last(); rep != nil {
			c.JSON(http.StatusOK, gin.H{"report": rep})
			return
		}
	}
	rep, err := h.runner.Run(c.Request.Context())
	if err != nil {
		logging.L(c.Request.Context()).Error("audit failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "audit failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": rep})
}
