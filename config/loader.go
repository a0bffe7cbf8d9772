package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "ontobot.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/ontobot"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/ontobot/config.yaml)
// 3. Project config (ontobot.yaml in current or parent directories)
// 4. Environment variables
//
// Load does not validate: callers that are about to run the pipeline
// call Config.Validate themselves, while inspection commands can load a
// partial config.
//
// When explicitPath is non-empty it replaces the user and project layers;
// a missing explicit file is an error rather than a silent fallback.
//
// File layers unmarshal directly onto the accumulated config, so a key an
// earlier layer set can be overridden back to its zero value (for example
// pipeline.enable_lexical_search: false) by a later layer.
func (l *Loader) Load(explicitPath string) (*Config, error) {
	config := DefaultConfig()

	if explicitPath != "" {
		if err := config.applyFile(explicitPath); err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded config", slog.String("path", explicitPath))
		config.ApplyEnv()
		return config, nil
	}

	// Load user config
	userConfigPath := l.userConfigPath()
	if err := config.applyFile(userConfigPath); err == nil {
		l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
	} else if !errors.Is(err, os.ErrNotExist) {
		l.logger.Warn("Failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
	}

	// Load project config
	projectConfigPath := l.findProjectConfig()
	if projectConfigPath != "" {
		if err := config.applyFile(projectConfigPath); err == nil {
			l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))
		} else {
			l.logger.Warn("Failed to load project config", slog.String("path", projectConfigPath), slog.String("error", err.Error()))
		}
	} else {
		l.logger.Debug("No project config found")
	}

	config.ApplyEnv()

	return config, nil
}

// ApplyEnv overrides config fields from environment variables.
// Endpoint and credential settings follow the names the host application
// exports for the pipeline.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("SPARQL_BASE_URL"); v != "" {
		c.SPARQL.BaseURL = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_DEFAULT_MODEL"); v != "" {
		c.LLM.DefaultModel = v
	}
	if v := os.Getenv("ONTOBOT_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pipeline.TopK = n
		}
	}
	if v := os.Getenv("ONTOBOT_QUERY_CANDIDATES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pipeline.QueryCandidates = n
		}
	}
	if v := os.Getenv("ONTOBOT_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SPARQL.TimeoutSec = n
		}
	}
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist
func (l *Loader) EnsureUserConfig() error {
	userConfigPath := l.userConfigPath()

	if _, err := os.Stat(userConfigPath); err == nil {
		return nil // Already exists
	}

	config := DefaultConfig()
	if err := config.SaveToFile(userConfigPath); err != nil {
		return err
	}

	l.logger.Info("Created default user config", slog.String("path", userConfigPath))
	return nil
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for ontobot.yaml in current and parent directories
func (l *Loader) findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		candidate := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
