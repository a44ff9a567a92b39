package labels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// GenerateLabels Tests
// =============================================================================

func TestGenerateLabels_Basic(t *testing.T) {
	out := GenerateLabels(LabelParams{
		Router:   "web",
		Hostname: "wordpress.local",
		Port:     80,
	})

	assert.Equal(t, "true", out["traefik.enable"])
	assert.Equal(t, "Host(`wordpress.local`)", out["traefik.http.routers.web.rule"])
	assert.Equal(t, "web", out["traefik.http.routers.web.entrypoints"])
	assert.Equal(t, "80", out["traefik.http.services.web.loadbalancer.server.port"])
}

func TestGenerateLabels_NoTLSLabels(t *testing.T) {
	out := GenerateLabels(LabelParams{
		Router:   "web",
		Hostname: "wordpress.local",
		Port:     80,
	})

	_, hasSecure := out["traefik.http.routers.web-secure.rule"]
	assert.False(t, hasSecure)
	_, hasTLS := out["traefik.http.routers.web-secure.tls"]
	assert.False(t, hasTLS)
	assert.Len(t, out, 4)
}

func TestGenerateLabels_WithTLS(t *testing.T) {
	out := GenerateLabels(LabelParams{
		Router:    "web",
		Hostname:  "wordpress.local",
		Port:      80,
		EnableTLS: true,
	})

	assert.Equal(t, "Host(`wordpress.local`)", out["traefik.http.routers.web-secure.rule"])
	assert.Equal(t, "websecure", out["traefik.http.routers.web-secure.entrypoints"])
	assert.Equal(t, "true", out["traefik.http.routers.web-secure.tls"])
	assert.Equal(t, "letsencrypt", out["traefik.http.routers.web-secure.tls.certresolver"])
	assert.Len(t, out, 8)
}

func TestGenerateLabels_CustomResolver(t *testing.T) {
	out := GenerateLabels(LabelParams{
		Router:    "api",
		Hostname:  "api.example.com",
		Port:      3000,
		EnableTLS: true,
		Resolver:  "staging",
	})

	assert.Equal(t, "staging", out["traefik.http.routers.api-secure.tls.certresolver"])
}

func TestGenerateLabels_PathPrefix(t *testing.T) {
	out := GenerateLabels(LabelParams{
		Router:     "admin",
		Hostname:   "wordpress.local",
		PathPrefix: "/wp-admin",
		Port:       80,
	})

	assert.Equal(t, "Host(`wordpress.local`) && PathPrefix(`/wp-admin`)", out["traefik.http.routers.admin.rule"])
}

// =============================================================================
// ParseLabels Tests
// =============================================================================

func TestParseLabels_RoundTrip(t *testing.T) {
	generated := GenerateLabels(LabelParams{
		Router:    "web",
		Hostname:  "wordpress.local",
		Port:      80,
		EnableTLS: true,
	})

	specs, err := ParseLabels(generated)
	require.NoError(t, err)
	require.Len(t, specs, 2)

	// Sorted by name: "web" then "web-secure"
	assert.Equal(t, "web", specs[0].Name)
	assert.Equal(t, "Host(`wordpress.local`)", specs[0].Rule)
	assert.False(t, specs[0].TLS)
	assert.Equal(t, 80, specs[0].Port)

	assert.Equal(t, "web-secure", specs[1].Name)
	assert.True(t, specs[1].TLS)
	assert.Equal(t, "letsencrypt", specs[1].Resolver)
	assert.Equal(t, 80, specs[1].Port)
}

func TestParseLabels_NotEnabled(t *testing.T) {
	_, err := ParseLabels(map[string]string{
		"traefik.http.routers.web.rule": "Host(`wordpress.local`)",
	})
	assert.ErrorIs(t, err, ErrNotEnabled)

	_, err = ParseLabels(map[string]string{
		"traefik.enable":                "false",
		"traefik.http.routers.web.rule": "Host(`wordpress.local`)",
	})
	assert.ErrorIs(t, err, ErrNotEnabled)
}

func TestParseLabels_MissingRule(t *testing.T) {
	_, err := ParseLabels(map[string]string{
		"traefik.enable":                       "true",
		"traefik.http.routers.web.entrypoints": "web",
		"traefik.http.services.web.loadbalancer.server.port": "80",
	})
	assert.ErrorIs(t, err, ErrMissingRule)
}

func TestParseLabels_MissingPort(t *testing.T) {
	_, err := ParseLabels(map[string]string{
		"traefik.enable":                "true",
		"traefik.http.routers.web.rule": "Host(`wordpress.local`)",
	})
	assert.ErrorIs(t, err, ErrMissingPort)
}

func TestParseLabels_InvalidPort(t *testing.T) {
	_, err := ParseLabels(map[string]string{
		"traefik.enable":                "true",
		"traefik.http.routers.web.rule": "Host(`wordpress.local`)",
		"traefik.http.services.web.loadbalancer.server.port": "not-a-port",
	})
	assert.ErrorIs(t, err, ErrInvalidPort)

	_, err = ParseLabels(map[string]string{
		"traefik.enable":                "true",
		"traefik.http.routers.web.rule": "Host(`wordpress.local`)",
		"traefik.http.services.web.loadbalancer.server.port": "70000",
	})
	assert.ErrorIs(t, err, ErrInvalidPort)
}

func TestParseLabels_SinglePortAppliesToAllRouters(t *testing.T) {
	specs, err := ParseLabels(map[string]string{
		"traefik.enable":                  "true",
		"traefik.http.routers.http.rule":  "Host(`a.example.com`)",
		"traefik.http.routers.other.rule": "Host(`b.example.com`)",
		"traefik.http.services.app.loadbalancer.server.port": "8080",
	})
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, 8080, specs[0].Port)
	assert.Equal(t, 8080, specs[1].Port)
}

func TestParseLabels_ResolverImpliesTLS(t *testing.T) {
	specs, err := ParseLabels(map[string]string{
		"traefik.enable":                            "true",
		"traefik.http.routers.web.rule":             "Host(`wordpress.local`)",
		"traefik.http.routers.web.tls.certresolver": "letsencrypt",
		"traefik.http.services.web.loadbalancer.server.port": "80",
	})
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.True(t, specs[0].TLS)
	assert.Equal(t, "letsencrypt", specs[0].Resolver)
}

func TestParseLabels_ForeignLabelsIgnored(t *testing.T) {
	specs, err := ParseLabels(map[string]string{
		"traefik.enable":                "true",
		"traefik.http.routers.web.rule": "Host(`wordpress.local`)",
		"traefik.http.services.web.loadbalancer.server.port": "80",
		"com.docker.compose.project":                         "wordpress",
		"org.opencontainers.image.source":                    "https://example.com",
	})
	require.NoError(t, err)
	assert.Len(t, specs, 1)
}
