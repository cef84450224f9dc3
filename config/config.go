// Package config loads the Agent Core's own settings file: model
// selection, the command allowlist, and write policy, following the same
// koanf file-provider loading shape as common.LoadAgentCoreConfig, but
// scoped to this module's own settings instead of the teacher's
// multi-provider LLM config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"agentcore/common"
	"agentcore/permission"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Settings is the Agent Core's own persisted configuration surface.
type Settings struct {
	Provider         string   `koanf:"provider"`
	Model            string   `koanf:"model"`
	ReasoningEffort  string   `koanf:"reasoning_effort,omitempty"`
	MaxTokens        int      `koanf:"max_tokens,omitempty"`
	CommandAllowlist []string `koanf:"command_allowlist,omitempty"`
	WritePolicyName  string   `koanf:"write_policy,omitempty"`
}

// WritePolicy converts the loaded WritePolicyName into a
// permission.WritePolicy, defaulting to require-approval for an
// unrecognized or empty value (the same "ask by default" stance the
// Permission Gate itself defaults to when no policy matches).
func (s Settings) WritePolicy() permission.WritePolicy {
	switch permission.WritePolicy(s.WritePolicyName) {
	case permission.WritePolicyAllow:
		return permission.WritePolicyAllow
	case permission.WritePolicyDeny:
		return permission.WritePolicyDeny
	default:
		return permission.WritePolicyRequireApproval
	}
}

func parserFor(ext string) koanf.Parser {
	switch ext {
	case ".json":
		return json.Parser()
	case ".toml":
		return toml.Parser()
	default:
		return yaml.Parser()
	}
}

// Load reads path (json/yaml/toml, by extension) into Settings. A missing
// file returns an empty Settings with no error, matching
// common.LoadAgentCoreConfig's "absent config is valid" stance.
func Load(path string) (Settings, error) {
	var settings Settings
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return settings, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parserFor(filepath.Ext(path))); err != nil {
		return Settings{}, fmt.Errorf("error loading agent core config: %w", err)
	}
	if err := k.Unmarshal("", &settings); err != nil {
		return Settings{}, fmt.Errorf("error unmarshaling agent core config: %w", err)
	}
	return settings, nil
}

// DefaultPath returns common.GetAgentCoreConfigDir()/settings.yml, so the
// Agent Core's own settings file lives alongside the teacher's
// multi-provider config.yml under the same directory rather than
// inventing a separate XDG lookup.
func DefaultPath() string {
	return filepath.Join(common.GetAgentCoreConfigDir(), "settings.yml")
}
