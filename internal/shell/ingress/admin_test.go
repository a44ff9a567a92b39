package ingress

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressedge/pressedge/internal/core/route"
	"github.com/pressedge/pressedge/internal/shell/store"
)

// =============================================================================
// Test Helpers
// =============================================================================

func newTestAdmin(t *testing.T, table *route.Table, st store.Store, ready func() bool) http.Handler {
	t.Helper()
	if table == nil {
		table = route.NewTable()
	}
	admin := NewAdmin(DefaultAdminConfig(), table, nil, st, ready, nil)
	return admin.Router()
}

func getJSON(t *testing.T, handler http.Handler, path string, out any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

// =============================================================================
// Probe Tests
// =============================================================================

func TestAdmin_Health(t *testing.T) {
	table := route.NewTable()
	rule, err := route.ParseRule("Host(`wordpress.local`)")
	require.NoError(t, err)
	table.Upsert("c1", []route.Route{{
		Name: "web", Rule: rule,
		Target: route.Target{Service: "web", Address: "10.5.0.100", Port: 80},
	}})

	handler := newTestAdmin(t, table, nil, nil)

	var health HealthResponse
	code := getJSON(t, handler, "/health", &health)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Routes)
}

func TestAdmin_ReadyToggles(t *testing.T) {
	synced := false
	handler := newTestAdmin(t, nil, nil, func() bool { return synced })

	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, handler, "/ready", nil))

	synced = true
	assert.Equal(t, http.StatusOK, getJSON(t, handler, "/ready", nil))
}

// =============================================================================
// Introspection Tests
// =============================================================================

func TestAdmin_Routes(t *testing.T) {
	table := route.NewTable()
	rule, err := route.ParseRule("Host(`wordpress.local`) && PathPrefix(`/blog`)")
	require.NoError(t, err)
	table.Upsert("c1", []route.Route{{
		Name: "web-secure", Rule: rule,
		Target: route.Target{
			Service: "web", Address: "10.5.0.100", Port: 80,
			TLS: true, Resolver: "letsencrypt",
		},
	}})

	handler := newTestAdmin(t, table, nil, nil)

	var views []RouteView
	code := getJSON(t, handler, "/api/v1/routes", &views)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, views, 1)
	assert.Equal(t, "web-secure", views[0].Name)
	assert.Equal(t, "Host(`wordpress.local`) && PathPrefix(`/blog`)", views[0].Rule)
	assert.Equal(t, "10.5.0.100", views[0].Address)
	assert.True(t, views[0].TLS)
	assert.Equal(t, "letsencrypt", views[0].Resolver)
	assert.Equal(t, "c1", views[0].Owner)
}

func TestAdmin_CertificatesWithoutManager404(t *testing.T) {
	handler := newTestAdmin(t, nil, nil, nil)
	assert.Equal(t, http.StatusNotFound, getJSON(t, handler, "/api/v1/certificates", nil))
}

func TestAdmin_DeploymentsFromStore(t *testing.T) {
	st, err := store.NewSQLiteStore(t.TempDir() + "/admin.db")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	rec := &store.DeploymentRecord{
		ID:        "dep-1",
		StackName: "wordpress",
		Hostname:  "wordpress.local",
		Status:    store.DeploymentStatusRunning,
	}
	require.NoError(t, st.CreateDeployment(t.Context(), rec))

	handler := newTestAdmin(t, nil, st, nil)

	var records []store.DeploymentRecord
	code := getJSON(t, handler, "/api/v1/deployments", &records)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, records, 1)
	assert.Equal(t, "wordpress", records[0].StackName)

	var single store.DeploymentRecord
	code = getJSON(t, handler, "/api/v1/deployments/dep-1", &single)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "wordpress.local", single.Hostname)

	assert.Equal(t, http.StatusNotFound, getJSON(t, handler, "/api/v1/deployments/missing", nil))
}

func TestAdmin_DeploymentsWithoutStore404(t *testing.T) {
	handler := newTestAdmin(t, nil, nil, nil)
	assert.Equal(t, http.StatusNotFound, getJSON(t, handler, "/api/v1/deployments", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, handler, "/api/v1/deployments/dep-1", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, handler, "/api/v1/events", nil))
}

// =============================================================================
// OpenAPI Tests
// =============================================================================

func TestAdmin_OpenAPIDocument(t *testing.T) {
	handler := newTestAdmin(t, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/openapi.json", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(rec.Body.Bytes())
	require.NoError(t, err)
	require.NoError(t, doc.Validate(loader.Context))

	for _, path := range []string{
		"/health", "/ready",
		"/api/v1/routes", "/api/v1/certificates",
		"/api/v1/deployments", "/api/v1/deployments/{id}", "/api/v1/events",
	} {
		assert.NotNil(t, doc.Paths.Find(path), path)
	}
}
