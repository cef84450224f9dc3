package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// GetAgentCoreDataHome returns a directory path for storing user-specific
// sidekick data. If needed, it also creates the necessary directories for
// storing user-specific data according to the XDG spec. Can be overridden by
// setting the SIDE_DATA_HOME environment variable.
func GetAgentCoreDataHome() (string, error) {
	sidekickDataDir := os.Getenv("SIDE_DATA_HOME")
	if sidekickDataDir != "" {
		return sidekickDataDir, nil
	}

	sidekickDataDir = filepath.Join(xdg.DataHome, "agentcore")
	err := os.MkdirAll(sidekickDataDir, 0755)
	if err != nil {
		return "", fmt.Errorf("failed to create AgentCore data directory: %w", err)
	}
	return sidekickDataDir, nil
}
