package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupRouter(t *testing.T) (*gin.Engine, *Manager) {
	t.Helper()
	mgr := NewManager(NewMemoryStore())

	r := gin.New()
	r.Use(Middleware(mgr, "s3cret"))
	r.GET("/whoami", RequireAuth(), func(c *gin.Context) {
		p, _ := PrincipalFrom(c)
		c.JSON(http.StatusOK, p)
	})
	r.GET("/admin", RequireSuperAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/tenants/:id", RequireTenantAccess("id"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r, mgr
}

func do(r *gin.Engine, path string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware_Unauthenticated(t *testing.T) {
	r, _ := setupRouter(t)

	assert.Equal(t, http.StatusUnauthorized, do(r, "/whoami", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/admin", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/tenants/ten_1", nil).Code)
}

func TestMiddleware_AdminSecret(t *testing.T) {
	r, _ := setupRouter(t)

	w := do(r, "/admin", map[string]string{HeaderAdminSecret: "s3cret"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(r, "/admin", map[string]string{HeaderAdminSecret: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddleware_TenantKey(t *testing.T) {
	r, mgr := setupRouter(t)

	raw, _, err := mgr.GenerateKey(context.Background(), System, "ten_1", RoleMember, "k")
	require.NoError(t, err)
	h := map[string]string{"Authorization": "Bearer " + raw}

	assert.Equal(t, http.StatusOK, do(r, "/whoami", h).Code)
	assert.Equal(t, http.StatusForbidden, do(r, "/admin", h).Code)
	assert.Equal(t, http.StatusNoContent, do(r, "/tenants/ten_1", h).Code)
	assert.Equal(t, http.StatusForbidden, do(r, "/tenants/ten_2", h).Code)

	h = map[string]string{"X-API-Key": raw}
	assert.Equal(t, http.StatusOK, do(r, "/whoami", h).Code)
}
