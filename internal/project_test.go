package internal_test

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// projectRoot returns the absolute path to the project root directory.
// It walks up from the current file's directory until it finds go.mod.
func projectRoot(t *testing.T) string {
	t.Helper()

	// Start from the working directory (tests run from the package directory).
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

// readFileContent reads a file and returns its content as a string.
func readFileContent(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err, "failed to read file: %s", path)
	return string(data)
}

func TestInternalSubpackages_Exist(t *testing.T) {
	t.Parallel()

	root := projectRoot(t)

	// Each package is anchored by its main source file; the file must
	// carry the package declaration.
	expectedPackages := []struct {
		name   string
		anchor string
	}{
		{name: "buildinfo", anchor: "doc.go"},
		{name: "bus", anchor: "bus.go"},
		{name: "cli", anchor: "root.go"},
		{name: "config", anchor: "config.go"},
		{name: "console", anchor: "console.go"},
		{name: "directive", anchor: "directive.go"},
		{name: "engine", anchor: "engine.go"},
		{name: "input", anchor: "input.go"},
		{name: "jsonutil", anchor: "jsonutil.go"},
		{name: "logging", anchor: "logging.go"},
		{name: "prompt", anchor: "prompt.go"},
		{name: "runner", anchor: "runner.go"},
		{name: "session", anchor: "session.go"},
		{name: "tracking", anchor: "tracking.go"},
		{name: "workflow", anchor: "template.go"},
	}

	for _, pkg := range expectedPackages {
		t.Run(pkg.name, func(t *testing.T) {
			t.Parallel()

			pkgDir := filepath.Join(root, "internal", pkg.name)

			// Verify directory exists.
			info, err := os.Stat(pkgDir)
			require.NoError(t, err, "internal/%s directory does not exist", pkg.name)
			assert.True(t, info.IsDir(), "internal/%s is not a directory", pkg.name)

			// Verify the anchor file exists and declares the package.
			content := readFileContent(t, filepath.Join(pkgDir, pkg.anchor))
			assert.Contains(t, content, "package "+pkg.name,
				"%s in internal/%s must declare package %s", pkg.anchor, pkg.name, pkg.name)
		})
	}
}

func TestInternalSubpackages_Count(t *testing.T) {
	t.Parallel()

	root := projectRoot(t)
	internalDir := filepath.Join(root, "internal")

	entries, err := os.ReadDir(internalDir)
	require.NoError(t, err, "failed to read internal/ directory")

	// Count only directories (exclude files like project_test.go).
	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		}
	}

	assert.Len(t, dirs, 15,
		"expected exactly 15 internal subpackages, got: %v", dirs)
}

func TestGoMod_Exists(t *testing.T) {
	t.Parallel()

	root := projectRoot(t)
	goModPath := filepath.Join(root, "go.mod")

	_, err := os.Stat(goModPath)
	require.NoError(t, err, "go.mod does not exist at project root")
}

func TestGoMod_ModulePath(t *testing.T) {
	t.Parallel()

	root := projectRoot(t)
	content := readFileContent(t, filepath.Join(root, "go.mod"))

	assert.Contains(t, content, "module github.com/codemachine-ai/codemachine",
		"go.mod must declare module path as github.com/codemachine-ai/codemachine")
}

func TestGoMod_GoDirective(t *testing.T) {
	t.Parallel()

	root := projectRoot(t)
	content := readFileContent(t, filepath.Join(root, "go.mod"))

	// The go directive should specify 1.24 or higher.
	// It may be "go 1.24", "go 1.24.0", "go 1.24.2", etc.
	assert.Contains(t, content, "go 1.24",
		"go.mod must have a Go 1.24+ directive")
}

func TestGoMod_DirectDependencies(t *testing.T) {
	t.Parallel()

	root := projectRoot(t)
	content := readFileContent(t, filepath.Join(root, "go.mod"))

	expectedDeps := []struct {
		name       string
		modulePath string
	}{
		{name: "toml", modulePath: "github.com/BurntSushi/toml"},
		{name: "doublestar", modulePath: "github.com/bmatcuk/doublestar"},
		{name: "xxhash", modulePath: "github.com/cespare/xxhash"},
		{name: "bubbles", modulePath: "github.com/charmbracelet/bubbles"},
		{name: "bubbletea", modulePath: "github.com/charmbracelet/bubbletea"},
		{name: "huh", modulePath: "github.com/charmbracelet/huh"},
		{name: "lipgloss", modulePath: "github.com/charmbracelet/lipgloss"},
		{name: "log", modulePath: "github.com/charmbracelet/log"},
		{name: "fsnotify", modulePath: "github.com/fsnotify/fsnotify"},
		{name: "uuid", modulePath: "github.com/google/uuid"},
		{name: "termenv", modulePath: "github.com/muesli/termenv"},
		{name: "cobra", modulePath: "github.com/spf13/cobra"},
		{name: "pflag", modulePath: "github.com/spf13/pflag"},
		{name: "testify", modulePath: "github.com/stretchr/testify"},
		{name: "sync", modulePath: "golang.org/x/sync"},
	}

	for _, dep := range expectedDeps {
		t.Run(dep.name, func(t *testing.T) {
			t.Parallel()
			assert.Contains(t, content, dep.modulePath,
				"go.mod must declare direct dependency on %s (%s)", dep.name, dep.modulePath)
		})
	}
}

func TestGoMod_NoReplaceDirectives(t *testing.T) {
	t.Parallel()

	root := projectRoot(t)
	content := readFileContent(t, filepath.Join(root, "go.mod"))

	assert.NotContains(t, content, "replace ",
		"go.mod must not contain replace directives")
}

func TestTestdata_DirectoryExists(t *testing.T) {
	t.Parallel()

	root := projectRoot(t)
	testdataDir := filepath.Join(root, "testdata")

	info, err := os.Stat(testdataDir)
	require.NoError(t, err, "testdata/ directory does not exist")
	assert.True(t, info.IsDir(), "testdata/ is not a directory")
}

func TestMainGo_Exists(t *testing.T) {
	t.Parallel()

	root := projectRoot(t)
	mainPath := filepath.Join(root, "cmd", "codemachine", "main.go")

	_, err := os.Stat(mainPath)
	require.NoError(t, err, "cmd/codemachine/main.go does not exist")
}

func TestMainGo_PackageMain(t *testing.T) {
	t.Parallel()

	root := projectRoot(t)
	content := readFileContent(t, filepath.Join(root, "cmd", "codemachine", "main.go"))

	assert.Contains(t, content, "package main",
		"cmd/codemachine/main.go must declare package main")
}

func TestMainGo_HasMainFunction(t *testing.T) {
	t.Parallel()

	root := projectRoot(t)
	content := readFileContent(t, filepath.Join(root, "cmd", "codemachine", "main.go"))

	assert.Contains(t, content, "func main()",
		"cmd/codemachine/main.go must define a main function")
}

func TestMainGo_NoInitFunctions(t *testing.T) {
	t.Parallel()

	// init() is reserved for cobra command registration inside
	// internal/cli; main.go stays declarative.
	root := projectRoot(t)
	content := readFileContent(t, filepath.Join(root, "cmd", "codemachine", "main.go"))

	assert.NotContains(t, content, "func init()",
		"cmd/codemachine/main.go must not contain init() functions")
}

func TestProjectStructure_CmdCodemachineDir(t *testing.T) {
	t.Parallel()

	root := projectRoot(t)
	cmdDir := filepath.Join(root, "cmd", "codemachine")

	info, err := os.Stat(cmdDir)
	require.NoError(t, err, "cmd/codemachine/ directory does not exist")
	assert.True(t, info.IsDir(), "cmd/codemachine/ is not a directory")
}

func TestProjectStructure_InternalDir(t *testing.T) {
	t.Parallel()

	root := projectRoot(t)
	internalDir := filepath.Join(root, "internal")

	info, err := os.Stat(internalDir)
	require.NoError(t, err, "internal/ directory does not exist")
	assert.True(t, info.IsDir(), "internal/ is not a directory")
}

func TestGoMod_DependencyVersions(t *testing.T) {
	t.Parallel()

	root := projectRoot(t)
	content := readFileContent(t, filepath.Join(root, "go.mod"))

	// Verify minimum version requirements.
	versionChecks := []struct {
		name       string
		dep        string
		minVersion string
	}{
		{name: "toml v1.5.0", dep: "github.com/BurntSushi/toml", minVersion: "v1.5.0"},
		{name: "cobra v1.10+", dep: "github.com/spf13/cobra", minVersion: "v1.10"},
		{name: "doublestar v4.10+", dep: "github.com/bmatcuk/doublestar/v4", minVersion: "v4.10"},
		{name: "sync v0.19+", dep: "golang.org/x/sync", minVersion: "v0.19"},
	}

	for _, vc := range versionChecks {
		t.Run(vc.name, func(t *testing.T) {
			t.Parallel()
			assert.Contains(t, content, vc.dep,
				"go.mod must contain dependency %s", vc.dep)
			// Extract the version line for this dependency.
			scanner := bufio.NewScanner(strings.NewReader(content))
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if strings.Contains(line, vc.dep) && !strings.HasPrefix(line, "//") {
					assert.Contains(t, line, vc.minVersion,
						"dependency %s must be at least version %s", vc.dep, vc.minVersion)
					break
				}
			}
		})
	}
}
