package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/fieldwork/internal/auth"
	"github.com/mbd888/fieldwork/internal/config"
)

const adminSecret = "test-admin-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

// testConfig returns a memory-backed config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:               "0",
		Env:                "development",
		LogLevel:           "error",
		AdminSecret:        adminSecret,
		EnforcementMode:    "atomic",
		CountFailurePolicy: "permissive",
		CapSource:          "live",
		PlanDeletePolicy:   "restrict",
		SeedDefaultPlans:   true,
		DBMaxOpenConns:     5,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithDrainDelay(0),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

type request struct {
	method, path string
	body         any
	headers      map[string]string
}

func (s *Server) do(r request) *httptest.ResponseRecorder {
	var body io.Reader
	if r.body != nil {
		b, _ := json.Marshal(r.body)
		body = bytes.NewReader(b)
	}
	req := httptest.NewRequest(r.method, r.path, body)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func asAdmin() map[string]string {
	return map[string]string{auth.HeaderAdminSecret: adminSecret}
}

func withKey(key string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + key}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := s.do(request{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	decode(t, w, &resp)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, Version, resp.Version)
}

func TestLivenessAndReadiness(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusOK, s.do(request{method: http.MethodGet, path: "/health/live"}).Code)
	assert.Equal(t, http.StatusServiceUnavailable, s.do(request{method: http.MethodGet, path: "/health/ready"}).Code,
		"not ready before Run")

	s.ready.Store(true)
	assert.Equal(t, http.StatusOK, s.do(request{method: http.MethodGet, path: "/health/ready"}).Code)
}

func TestRequestIDEchoed(t *testing.T) {
	s := newTestServer(t)

	w := s.do(request{method: http.MethodGet, path: "/health/live", headers: map[string]string{"X-Request-ID": "req-42"}})
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))

	w = s.do(request{method: http.MethodGet, path: "/health/live"})
	assert.Len(t, w.Header().Get("X-Request-ID"), 32)
}

func TestPlansRequireAuth(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, s.do(request{method: http.MethodGet, path: "/v1/plans"}).Code)

	w := s.do(request{method: http.MethodGet, path: "/v1/plans", headers: asAdmin()})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Starter")
	assert.Contains(t, w.Body.String(), "Enterprise")
}

func TestAdminRoutesRejectTenantKeys(t *testing.T) {
	s := newTestServer(t)
	key, _ := onboard(t, s, "acme")

	w := s.do(request{method: http.MethodGet, path: "/v1/admin/tenants", headers: withKey(key)})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(request{method: http.MethodGet, path: "/v1/admin/tenants"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// onboard creates a Starter tenant and returns its admin key and ID.
func onboard(t *testing.T, s *Server, slug string) (key, tenantID string) {
	t.Helper()
	w := s.do(request{
		method:  http.MethodPost,
		path:    "/v1/admin/tenants",
		body:    map[string]string{"name": "Tenant " + slug, "slug": slug, "plan": "Starter"},
		headers: asAdmin(),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Tenant struct {
			ID string `json:"id"`
		} `json:"tenant"`
		APIKey string `json:"apiKey"`
	}
	decode(t, w, &resp)
	require.NotEmpty(t, resp.APIKey)
	return resp.APIKey, resp.Tenant.ID
}

func TestVehicleLimitEndToEnd(t *testing.T) {
	s := newTestServer(t)
	key, id := onboard(t, s, "acme-lawn")
	base := "/v1/tenants/" + id

	w := s.do(request{method: http.MethodPost, path: base + "/vehicles", body: map[string]string{"name": "Truck"}, headers: withKey(key)})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(request{method: http.MethodPost, path: base + "/vehicles", body: map[string]string{"name": "Van"}, headers: withKey(key)})
	require.Equal(t, http.StatusForbidden, w.Code)
	var denied struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	decode(t, w, &denied)
	assert.Equal(t, "limit_reached", denied.Error)
	assert.Equal(t, "limit reached: plan Starter allows 1 vehicles, you have 1", denied.Message)

	w = s.do(request{method: http.MethodGet, path: base + "/entitlements/max_vehicles", headers: withKey(key)})
	require.Equal(t, http.StatusOK, w.Code)
	var check struct {
		Verdict struct {
			Allowed bool   `json:"allowed"`
			Reason  string `json:"reason"`
		} `json:"verdict"`
	}
	decode(t, w, &check)
	assert.False(t, check.Verdict.Allowed)
	assert.Equal(t, "limit_reached", check.Verdict.Reason)

	w = s.do(request{method: http.MethodGet, path: base + "/usage", headers: withKey(key)})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"max_vehicles"`)
}

func TestUpgradeLiftsLimit(t *testing.T) {
	s := newTestServer(t)
	key, id := onboard(t, s, "acme-pro")
	base := "/v1/tenants/" + id

	require.Equal(t, http.StatusCreated,
		s.do(request{method: http.MethodPost, path: base + "/vehicles", body: map[string]string{"name": "Truck"}, headers: withKey(key)}).Code)

	w := s.do(request{method: http.MethodPut, path: "/v1/admin/tenants/" + id + "/subscription/plan",
		body: map[string]string{"plan": "Professional"}, headers: asAdmin()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(request{method: http.MethodPost, path: base + "/vehicles", body: map[string]string{"name": "Van"}, headers: withKey(key)})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestSuspendedTenantDenied(t *testing.T) {
	s := newTestServer(t)
	key, id := onboard(t, s, "acme-sus")

	w := s.do(request{method: http.MethodPut, path: "/v1/admin/tenants/" + id + "/subscription/status",
		body: map[string]string{"status": "suspended"}, headers: asAdmin()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(request{method: http.MethodPost, path: "/v1/tenants/" + id + "/clients", body: map[string]string{"name": "Globex"}, headers: withKey(key)})
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "no_active_subscription")
}

func TestCrossTenantForbidden(t *testing.T) {
	s := newTestServer(t)
	keyA, _ := onboard(t, s, "tenant-a")
	_, idB := onboard(t, s, "tenant-b")

	w := s.do(request{method: http.MethodGet, path: "/v1/tenants/" + idB + "/clients", headers: withKey(keyA)})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMalformedParam(t *testing.T) {
	s := newTestServer(t)

	w := s.do(request{method: http.MethodGet, path: "/v1/tenants/bad%20id/clients", headers: asAdmin()})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuditEndpoint(t *testing.T) {
	s := newTestServer(t)
	onboard(t, s, "acme-audit")

	w := s.do(request{method: http.MethodGet, path: "/v1/admin/audit", headers: asAdmin()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"tenants":1`)
}

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, s.do(request{method: http.MethodGet, path: "/nope"}).Code)
}
