package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// Config holds the CLI configuration.
type Config struct {
	// From config files (serialized)
	BaseDir       string `json:"base_dir"`
	BufferSize    int    `json:"buffer_size,omitempty"`
	MaxPacketSize int    `json:"max_packet_size,omitempty"`

	// Resolved paths (computed, not serialized)
	EffectiveCwd string `json:"-"` // Absolute working directory (from -C flag or os.Getwd)
	BaseDirAbs   string `json:"-"` // Absolute path to the datasets base directory
}

// ConfigFileName is the default project config file name.
const ConfigFileName = ".pcapstore.json"

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BaseDir: ".",
	}
}

// globalConfigPath returns the path to the global config file.
// Uses $XDG_CONFIG_HOME/pcapstore/config.json if set, otherwise
// ~/.config/pcapstore/config.json. Empty when no home is known.
func globalConfigPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "pcapstore", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "pcapstore", "config.json")
	}

	return ""
}

// LoadConfigInput holds the inputs for LoadConfig.
type LoadConfigInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	BaseDirOverride string            // --base-dir flag value; empty means no override
	Env             map[string]string // environment variables
}

// LoadConfig loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config
// 3. Project config file (.pcapstore.json, if present), or instead the
// file named by ConfigPath when it is non-empty (that file must exist;
// .pcapstore.json is then not read)
// 4. CLI overrides.
func LoadConfig(input LoadConfigInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := DefaultConfig()

	if path := globalConfigPath(input.Env); path != "" {
		fileCfg, loaded, err := loadConfigFile(path, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg = mergeConfig(cfg, fileCfg)
		}
	}

	projectPath := filepath.Join(workDir, ConfigFileName)
	mustExist := false

	if input.ConfigPath != "" {
		projectPath = input.ConfigPath
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}

		mustExist = true
	}

	fileCfg, loaded, err := loadConfigFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg = mergeConfig(cfg, fileCfg)
	}

	if input.BaseDirOverride != "" {
		cfg.BaseDir = input.BaseDirOverride
	}

	if cfg.BaseDir == "" {
		return Config{}, fmt.Errorf("base_dir cannot be empty")
	}

	cfg.EffectiveCwd = workDir

	if filepath.IsAbs(cfg.BaseDir) {
		cfg.BaseDirAbs = cfg.BaseDir
	} else {
		cfg.BaseDirAbs = filepath.Join(workDir, cfg.BaseDir)
	}

	return cfg, nil
}

// loadConfigFile loads one config file. Missing optional files return
// loaded=false without error.
func loadConfigFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Standardize JSONC to JSON.
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("invalid config %s: %w", path, err)
	}

	var cfg Config

	err = json.Unmarshal(standardized, &cfg)
	if err != nil {
		return Config{}, false, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, true, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.BaseDir != "" {
		base.BaseDir = overlay.BaseDir
	}

	if overlay.BufferSize != 0 {
		base.BufferSize = overlay.BufferSize
	}

	if overlay.MaxPacketSize != 0 {
		base.MaxPacketSize = overlay.MaxPacketSize
	}

	return base
}
