// config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	defaultConfigDir  = ".config/deepchat"
	defaultConfigFile = "config.yaml"
	defaultDataDir    = ".local/share/deepchat"
)

// MCPServerConfig holds configuration for a single tool server.
type MCPServerConfig struct {
	Name      string            `yaml:"name"`
	Command   string            `yaml:"command"`
	Arguments []string          `yaml:"arguments,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
}

// Config is the full application configuration. Values are read once at
// startup and passed into constructors; nothing mutates this at runtime.
type Config struct {
	LLM struct {
		Provider     string  `yaml:"provider"`
		Model        string  `yaml:"model"`
		Endpoint     string  `yaml:"endpoint,omitempty"`
		APIKey       string  `yaml:"api_key,omitempty"`
		SystemPrompt string  `yaml:"system_prompt,omitempty"`
		Temperature  float64 `yaml:"temperature"`
	} `yaml:"llm"`

	MCPServers []MCPServerConfig `yaml:"mcp_servers,omitempty"`

	Session struct {
		Path string `yaml:"path"`
	} `yaml:"session"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.LLM.Provider = "deepseek"
	cfg.LLM.Model = "deepseek-chat"
	cfg.LLM.Temperature = 0.7
	cfg.Session.Path = defaultSessionPath()
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	return cfg
}

func defaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "sessions.db"
	}
	return filepath.Join(home, defaultDataDir, "sessions.db")
}

// Path returns the location of the config file.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, defaultConfigDir, defaultConfigFile), nil
}

// LoadOrCreate loads the config file, writing a default one first if none
// exists. The boolean reports whether a new file was created.
func LoadOrCreate() (*Config, bool, error) {
	path, err := Path()
	if err != nil {
		return nil, false, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.Save(path); err != nil {
			return nil, false, fmt.Errorf("failed to save default config: %w", err)
		}
		return cfg, true, nil
	}

	cfg, err := Load(path)
	return cfg, false, err
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to disk, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.LLM.Provider == "" && c.LLM.Endpoint == "" {
		return fmt.Errorf("llm.provider or llm.endpoint is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2")
	}
	for i, server := range c.MCPServers {
		if server.Name == "" {
			return fmt.Errorf("mcp_servers[%d].name is required", i)
		}
		if server.Command == "" {
			return fmt.Errorf("mcp_servers[%d].command is required", i)
		}
	}
	return nil
}
