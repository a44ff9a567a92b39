package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressedge/pressedge/internal/core/stack"
)

// =============================================================================
// Test Helpers
// =============================================================================

// captureStdout runs fn with stdout redirected to a pipe and returns what it
// printed alongside the exit code.
func captureStdout(t *testing.T, fn func() int) (string, int) {
	t.Helper()

	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	code := fn()

	w.Close()
	os.Stdout = old
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out), code
}

// writeDescriptor renders the default stack to a file, optionally with a
// substring swapped for an environment placeholder.
func writeDescriptor(t *testing.T, old, placeholder string) string {
	t.Helper()

	rendered, err := stack.Render(stack.DefaultStack(stack.Params{}))
	require.NoError(t, err)
	if old != "" {
		require.Contains(t, rendered, old)
		rendered = strings.Replace(rendered, old, placeholder, 1)
	}

	path := filepath.Join(t.TempDir(), "stack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(rendered), 0644))
	return path
}

// =============================================================================
// Validate Command Tests
// =============================================================================

func TestValidateCmd_OK(t *testing.T) {
	path := writeDescriptor(t, "", "")

	out, code := captureStdout(t, func() int {
		return validateCmd([]string{"-f", path})
	})

	assert.Equal(t, 0, code)
	assert.Contains(t, out, "wordpress: OK")
	// A descriptor without placeholders reports no variables.
	assert.NotContains(t, out, "variables:")
}

func TestValidateCmd_ReportsVariables(t *testing.T) {
	path := writeDescriptor(t, stack.DefaultDBImage, "${DB_IMAGE:-"+stack.DefaultDBImage+"}")

	out, code := captureStdout(t, func() int {
		return validateCmd([]string{"-f", path})
	})

	assert.Equal(t, 0, code)
	assert.Contains(t, out, "wordpress: OK")
	assert.Contains(t, out, "variables: DB_IMAGE")
}

func TestValidateCmd_MissingFile(t *testing.T) {
	_, code := captureStdout(t, func() int {
		return validateCmd([]string{"-f", filepath.Join(t.TempDir(), "absent.yaml")})
	})
	assert.Equal(t, 1, code)
}
