package main_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// projectRoot returns the absolute path to the project root directory.
func projectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err, "failed to get working directory")

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (no go.mod found in any parent directory)")
		}
		dir = parent
	}
}

// buildBinary compiles the codemachine binary into a temp dir and returns
// its path.
func buildBinary(t *testing.T) string {
	t.Helper()

	root := projectRoot(t)
	binPath := filepath.Join(t.TempDir(), "codemachine")

	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/codemachine/")
	cmd.Dir = root
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")

	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "go build failed: %s", string(output))
	return binPath
}

func TestBuild_Compiles(t *testing.T) {
	binPath := buildBinary(t)

	info, err := os.Stat(binPath)
	require.NoError(t, err, "binary was not created at %s", binPath)
	assert.Greater(t, info.Size(), int64(0), "binary must not be empty")
}

func TestBuild_BinaryRuns(t *testing.T) {
	binPath := buildBinary(t)

	// No arguments prints help and exits 0.
	runCmd := exec.Command(binPath)
	output, err := runCmd.CombinedOutput()
	require.NoError(t, err, "binary execution failed with output: %s", string(output))
}

func TestBuild_HelpOutput(t *testing.T) {
	binPath := buildBinary(t)

	runCmd := exec.Command(binPath)
	output, err := runCmd.CombinedOutput()
	require.NoError(t, err, "binary execution failed")

	outputStr := string(output)
	assert.Contains(t, outputStr, "Workflow orchestrator for AI coding agents")
	assert.Contains(t, outputStr, "Usage:")
	for _, sub := range []string{"run", "status", "init", "config", "version", "completion"} {
		assert.Contains(t, outputStr, sub, "help must list the %s subcommand", sub)
	}
}

func TestBuild_VersionOutput(t *testing.T) {
	binPath := buildBinary(t)

	runCmd := exec.Command(binPath, "version")
	output, err := runCmd.CombinedOutput()
	require.NoError(t, err, "codemachine version failed")

	outputStr := strings.TrimSpace(string(output))
	assert.True(t, strings.HasPrefix(outputStr, "codemachine v"),
		"version output %q must start with the binary name", outputStr)
}

func TestBuild_UnknownCommandFails(t *testing.T) {
	binPath := buildBinary(t)

	runCmd := exec.Command(binPath, "no-such-command")
	output, err := runCmd.CombinedOutput()
	require.Error(t, err, "unknown subcommand must exit non-zero")
	assert.Contains(t, string(output), "unknown command")
}

func TestGoRun_Success(t *testing.T) {
	root := projectRoot(t)

	cmd := exec.Command("go", "run", "./cmd/codemachine/", "version")
	cmd.Dir = root

	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "go run failed: %s", string(output))

	outputStr := strings.TrimSpace(string(output))
	assert.True(t, strings.HasPrefix(outputStr, "codemachine v"),
		"go run must produce version output, got %q", outputStr)
}

func TestGoVet_Passes(t *testing.T) {
	root := projectRoot(t)

	cmd := exec.Command("go", "vet", "./...")
	cmd.Dir = root

	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "go vet failed with output: %s", string(output))
}

func TestBuild_CGODisabled(t *testing.T) {
	root := projectRoot(t)
	binPath := filepath.Join(t.TempDir(), "codemachine")

	// Build with CGO_ENABLED=0 per project conventions.
	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/codemachine/")
	cmd.Dir = root
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")

	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "go build with CGO_ENABLED=0 failed: %s", string(output))

	info, err := os.Stat(binPath)
	require.NoError(t, err, "binary not created with CGO_ENABLED=0")
	assert.Greater(t, info.Size(), int64(0), "binary must not be empty")
}

func TestBuild_VersionLdflags(t *testing.T) {
	root := projectRoot(t)
	binPath := filepath.Join(t.TempDir(), "codemachine")

	ldflags := "-X github.com/codemachine-ai/codemachine/internal/buildinfo.Version=9.9.9" +
		" -X github.com/codemachine-ai/codemachine/internal/buildinfo.Commit=abc1234" +
		" -X github.com/codemachine-ai/codemachine/internal/buildinfo.Date=2026-01-01T00:00:00Z"

	cmd := exec.Command("go", "build", "-ldflags", ldflags, "-o", binPath, "./cmd/codemachine/")
	cmd.Dir = root
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")

	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "go build with ldflags failed: %s", string(output))

	runCmd := exec.Command(binPath, "version")
	verOut, err := runCmd.CombinedOutput()
	require.NoError(t, err)

	verStr := string(verOut)
	assert.Contains(t, verStr, "9.9.9")
	assert.Contains(t, verStr, "abc1234")
	assert.Contains(t, verStr, "2026-01-01T00:00:00Z")
}
