package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/codemachine-ai/codemachine/internal/directive"
)

// mcpFileName is the MCP configuration file written directly under the
// workflow directory.
const mcpFileName = "mcp.json"

// mcpConfig is the payload of the MCP configuration file. Its purpose is to
// tell the running agent which engine it is driven by and where the
// orchestrator expects directives to be written.
type mcpConfig struct {
	Engine        string `json:"engine"`
	DirectiveFile string `json:"directiveFile"`
}

// mcpPath returns the MCP configuration path for a workflow directory
// (the .codemachine directory itself).
func mcpPath(workflowDir string) string {
	return filepath.Join(workflowDir, mcpFileName)
}

// writeMCPConfig writes the MCP configuration for engineID under
// workflowDir, creating the directory when missing.
func writeMCPConfig(workflowDir, engineID string) error {
	path := mcpPath(workflowDir)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating mcp directory: %w", err)
	}

	cfg := mcpConfig{
		Engine:        engineID,
		DirectiveFile: filepath.Join(workflowDir, "memory", directive.FileName),
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding mcp config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing mcp config %q: %w", path, err)
	}
	return nil
}

// removeMCPConfig deletes the MCP configuration under workflowDir. A
// missing file is not an error.
func removeMCPConfig(workflowDir string) error {
	if err := os.Remove(mcpPath(workflowDir)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing mcp config: %w", err)
	}
	return nil
}

// isMCPConfigured reports whether the MCP configuration under workflowDir
// exists and belongs to engineID.
func isMCPConfigured(workflowDir, engineID string) bool {
	data, err := os.ReadFile(mcpPath(workflowDir))
	if err != nil {
		return false
	}
	var cfg mcpConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return false
	}
	return cfg.Engine == engineID
}
