package route

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoute(name, host, path string, tls bool, port int) Route {
	return Route{
		Name: name,
		Rule: Rule{Host: host, PathPrefix: path},
		Target: Target{
			Service: name,
			Address: "10.5.0.100",
			Port:    port,
			TLS:     tls,
		},
	}
}

// =============================================================================
// Table Tests
// =============================================================================

func TestTable_ResolveByHost(t *testing.T) {
	table := NewTable()
	table.Upsert("c1", []Route{testRoute("web", "wordpress.local", "", false, 80)})

	target, err := table.Resolve("wordpress.local", "/", false)
	require.NoError(t, err)
	assert.Equal(t, 80, target.Port)
	assert.Equal(t, "c1", targetOwner(table, target))

	_, err = table.Resolve("unknown.local", "/", false)
	var resolveErr ResolveError
	require.ErrorAs(t, err, &resolveErr)
	assert.Equal(t, 404, resolveErr.StatusCode)
}

func targetOwner(table *Table, target Target) string {
	for _, r := range table.Snapshot() {
		if r.Target == target {
			return r.Owner
		}
	}
	return ""
}

func TestTable_HostWithPortResolves(t *testing.T) {
	table := NewTable()
	table.Upsert("c1", []Route{testRoute("web", "wordpress.local", "", false, 80)})

	_, err := table.Resolve("wordpress.local:8080", "/", false)
	assert.NoError(t, err)
}

func TestTable_MostSpecificPathWins(t *testing.T) {
	table := NewTable()
	table.Upsert("c1", []Route{testRoute("web", "wordpress.local", "", false, 80)})
	table.Upsert("c2", []Route{testRoute("admin", "wordpress.local", "/wp-admin", false, 9000)})

	target, err := table.Resolve("wordpress.local", "/wp-admin/options.php", false)
	require.NoError(t, err)
	assert.Equal(t, 9000, target.Port)

	target, err = table.Resolve("wordpress.local", "/", false)
	require.NoError(t, err)
	assert.Equal(t, 80, target.Port)
}

func TestTable_TLSSelectsSecureRouter(t *testing.T) {
	table := NewTable()
	table.Upsert("c1", []Route{
		testRoute("web", "wordpress.local", "", false, 80),
		testRoute("web-secure", "wordpress.local", "", true, 80),
	})

	target, err := table.Resolve("wordpress.local", "/", true)
	require.NoError(t, err)
	assert.True(t, target.TLS)

	target, err = table.Resolve("wordpress.local", "/", false)
	require.NoError(t, err)
	assert.False(t, target.TLS)
}

func TestTable_SinglePostureServesBothSchemes(t *testing.T) {
	table := NewTable()
	table.Upsert("c1", []Route{testRoute("web-secure", "wordpress.local", "", true, 80)})

	// No plain router registered: the secure target still answers HTTP
	// resolution so the ingress can redirect.
	target, err := table.Resolve("wordpress.local", "/", false)
	require.NoError(t, err)
	assert.True(t, target.TLS)
}

func TestTable_RemoveOwnerDropsRoutes(t *testing.T) {
	table := NewTable()
	table.Upsert("c1", []Route{testRoute("web", "wordpress.local", "", false, 80)})
	require.Equal(t, 1, table.Len())

	table.Remove("c1")
	assert.Equal(t, 0, table.Len())

	_, err := table.Resolve("wordpress.local", "/", false)
	assert.Error(t, err)

	// Unknown owner is a no-op
	table.Remove("never-registered")
}

func TestTable_UpsertReplacesOwnerRoutes(t *testing.T) {
	table := NewTable()
	table.Upsert("c1", []Route{
		testRoute("web", "wordpress.local", "", false, 80),
		testRoute("old", "old.local", "", false, 80),
	})
	table.Upsert("c1", []Route{testRoute("web", "wordpress.local", "", false, 8080)})

	assert.Equal(t, 1, table.Len())
	_, err := table.Resolve("old.local", "/", false)
	assert.Error(t, err)

	target, err := table.Resolve("wordpress.local", "/", false)
	require.NoError(t, err)
	assert.Equal(t, 8080, target.Port)
}

func TestTable_UnroutableTargetIs503(t *testing.T) {
	table := NewTable()
	r := testRoute("web", "wordpress.local", "", false, 80)
	r.Target.Address = ""
	table.Upsert("c1", []Route{r})

	_, err := table.Resolve("wordpress.local", "/", false)
	var resolveErr ResolveError
	require.ErrorAs(t, err, &resolveErr)
	assert.Equal(t, 503, resolveErr.StatusCode)
}

func TestTable_ConcurrentReadersAndWriters(t *testing.T) {
	table := NewTable()
	table.Upsert("c0", []Route{testRoute("web", "wordpress.local", "", false, 80)})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			owner := fmt.Sprintf("c%d", n)
			for j := 0; j < 200; j++ {
				table.Upsert(owner, []Route{testRoute("web", "wordpress.local", "", false, 80)})
				table.Remove(owner)
			}
		}(i + 1)
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 2000; j++ {
				// c0's route is never removed, so resolution always succeeds.
				_, err := table.Resolve("wordpress.local", "/", false)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
}
