package stack

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Render / Parse Tests
// =============================================================================

func TestRender_DefaultStack(t *testing.T) {
	out, err := Render(DefaultStack(Params{}))
	require.NoError(t, err)

	assert.Contains(t, out, "services:")
	assert.Contains(t, out, "mariadb:11.4")
	assert.Contains(t, out, "restart: always")
	assert.Contains(t, out, "10.5.0.0/24")
	assert.Contains(t, out, "10.5.0.100")
	assert.Contains(t, out, "Host(`wordpress.local`)")
	assert.Contains(t, out, "service_healthy")
}

func TestRender_ServiceWithoutImage(t *testing.T) {
	s := DefaultStack(Params{})
	s.Service(ServiceDB).Image = ""

	_, err := Render(s)
	assert.ErrorIs(t, err, ErrServiceNoImage)
}

func TestParse_EmptyInput(t *testing.T) {
	for _, in := range []string{"", "   \n\t"} {
		_, err := Parse(in)
		assert.ErrorIs(t, err, ErrEmptyInput)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse("services: [unbalanced")
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestParse_MinimalStack(t *testing.T) {
	yaml := `
services:
  db:
    image: mariadb:11.4
    restart: always
    environment:
      MARIADB_DATABASE: wordpress
    volumes:
      - db_data:/var/lib/mysql
    healthcheck:
      test: ["CMD", "healthcheck.sh", "--connect"]
      interval: 10s
      retries: 5
  app:
    image: wordpress:6.7-php8.3-fpm-alpine
    depends_on:
      db:
        condition: service_healthy
volumes:
  db_data:
`
	s, err := Parse(yaml)
	require.NoError(t, err)
	require.Len(t, s.Services, 2)

	db := s.Service("db")
	require.NotNil(t, db)
	assert.Equal(t, "mariadb:11.4", db.Image)
	assert.Equal(t, RestartAlways, db.Restart)
	assert.Equal(t, "wordpress", db.Environment["MARIADB_DATABASE"])
	require.NotNil(t, db.HealthCheck)
	assert.Equal(t, 5, db.HealthCheck.Retries)
	assert.Equal(t, "10s", db.HealthCheck.Interval)
	require.Len(t, db.Volumes, 1)
	assert.Equal(t, "db_data", db.Volumes[0].Source)
	assert.Equal(t, "/var/lib/mysql", db.Volumes[0].Target)

	app := s.Service("app")
	require.NotNil(t, app)
	assert.Equal(t, ConditionHealthy, app.DependsOn["db"])

	require.Len(t, s.Volumes, 1)
	assert.Equal(t, "db_data", s.Volumes[0].Name)
}

func TestParse_RoundTripPreservesTopology(t *testing.T) {
	original := DefaultStack(Params{})
	rendered, err := Render(original)
	require.NoError(t, err)

	parsed, err := Parse(rendered)
	require.NoError(t, err)

	assert.Equal(t, original.Hostname, parsed.Hostname)
	assert.Equal(t, original.Ingress, parsed.Ingress)
	assert.Len(t, parsed.Services, len(original.Services))
	assert.Len(t, parsed.Networks, len(original.Networks))
	assert.Len(t, parsed.Volumes, len(original.Volumes))

	web := parsed.Service(ServiceWeb)
	require.NotNil(t, web)
	assert.Equal(t, DefaultWebAddress, web.Networks[NetworkFrontend].IPv4Address)
	assert.Equal(t, original.Service(ServiceWeb).Labels, web.Labels)

	frontend := parsed.Network(NetworkFrontend)
	require.NotNil(t, frontend)
	assert.Equal(t, DefaultSubnet, frontend.Subnet)

	// A parsed round-trip still satisfies every invariant.
	assert.Empty(t, Validate(*parsed))
}

func TestParse_NoServices(t *testing.T) {
	_, err := Parse("volumes:\n  data:\n")
	require.Error(t, err)
}

// =============================================================================
// Variable Substitution Tests
// =============================================================================

func TestExtractVariables(t *testing.T) {
	content := `
hostname: ${WORDPRESS_HOSTNAME:-wordpress.local}
password: ${DB_PASSWORD}
repeat: ${DB_PASSWORD}
`
	vars := ExtractVariables(content)
	assert.Equal(t, []string{"WORDPRESS_HOSTNAME", "DB_PASSWORD"}, vars)
}

func TestExpandVariables(t *testing.T) {
	content := "host=${HOSTNAME:-wordpress.local} pw=${DB_PASSWORD} missing=${NOPE}"

	env := map[string]string{"DB_PASSWORD": "s3cret"}
	out := ExpandVariables(content, func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	})

	assert.Equal(t, "host=wordpress.local pw=s3cret missing=", out)
}

func TestExpandVariables_SetOverridesDefault(t *testing.T) {
	out := ExpandVariables("${HOSTNAME:-wordpress.local}", func(string) (string, bool) {
		return "blog.example.com", true
	})
	assert.Equal(t, "blog.example.com", out)
}

// =============================================================================
// Naming Tests
// =============================================================================

func TestNaming(t *testing.T) {
	assert.Equal(t, "pressedge_wordpress_db", ContainerName("wordpress", "db"))
	assert.Equal(t, "pressedge_wordpress_frontend", NetworkName("wordpress", "frontend"))
	assert.Equal(t, "pressedge_wordpress_db_data", VolumeName("wordpress", "db_data"))
}

func TestRenderedYAMLUnaffectedByServiceOrder(t *testing.T) {
	s := DefaultStack(Params{})
	// Reverse the service slice; rendering keys by name.
	for i, j := 0, len(s.Services)-1; i < j; i, j = i+1, j-1 {
		s.Services[i], s.Services[j] = s.Services[j], s.Services[i]
	}
	out, err := Render(s)
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "mariadb"))
}
