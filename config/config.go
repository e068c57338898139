package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/m4xw311/storyblok-agent/errors"
	"gopkg.in/yaml.v3"
)

const (
	// Dir holds config.yaml and sessions, both in $HOME and in the project.
	Dir = ".storyblok-agent"

	// TokenEnv is the only required setting.
	TokenEnv = "STORYBLOK_API_TOKEN"

	defaultLLM               = "gemini"
	defaultModel             = "gemini-2.5-flash"
	defaultBaseURL           = "https://api.storyblok.com/v2/cdn"
	defaultTimeout           = 30 * time.Second
	defaultMaxToolIterations = 10
)

type Storyblok struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ContentAccess lists slug patterns (doublestar syntax) the agent may not read.
type ContentAccess struct {
	Hidden []string `yaml:"hidden"`
}

type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type Toolset struct {
	Name  string   `yaml:"name"`
	Tools []string `yaml:"tools"`
}

type Config struct {
	LLMClient            string        `yaml:"llm"`
	Model                string        `yaml:"model"`
	Storyblok            Storyblok     `yaml:"storyblok"`
	Toolsets             []Toolset     `yaml:"toolsets"`
	AdditionalMCPServers []MCPServer   `yaml:"additional_mcp_servers"`
	ContentAccess        ContentAccess `yaml:"content_access"`
	MaxToolIterations    int           `yaml:"max_tool_iterations"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		LLMClient: defaultLLM,
		Model:     defaultModel,
		Storyblok: Storyblok{
			BaseURL: defaultBaseURL,
			Timeout: defaultTimeout,
		},
		MaxToolIterations: defaultMaxToolIterations,
	}
}

// LoadConfig loads a .env file from the working directory into the process
// environment, then configuration from the user's home directory and the
// current working directory, with the latter taking precedence.
func LoadConfig() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	if err := loadDotEnv(filepath.Join(wd, ".env")); err != nil {
		return nil, err
	}

	cfg := Default()

	// Load user-level config first
	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, Dir, "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	// Load project-level config, overriding user-level
	projectConfigPath := filepath.Join(wd, Dir, "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

// loadDotEnv never overrides variables that are already set.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Wrapf(errors.ErrConfig, "could not parse %s: %v", path, err)
	}
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal only overwrites fields present in the YAML, so project-level
	// config replaces user-level field by field.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.Wrapf(errors.ErrConfig, "invalid YAML in %s: %v", path, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.LLMClient == "" {
		c.LLMClient = defaultLLM
		if c.Model == "" {
			c.Model = defaultModel
		}
	}
	if c.Storyblok.BaseURL == "" {
		c.Storyblok.BaseURL = defaultBaseURL
	}
	if c.Storyblok.Timeout <= 0 {
		c.Storyblok.Timeout = defaultTimeout
	}
	if c.MaxToolIterations <= 0 {
		c.MaxToolIterations = defaultMaxToolIterations
	}
}

// StoryblokToken returns the API token from the environment.
func (c *Config) StoryblokToken() (string, error) {
	token := os.Getenv(TokenEnv)
	if token == "" {
		return "", errors.Wrapf(errors.ErrConfig, "missing %s in environment", TokenEnv)
	}
	return token, nil
}

// GetToolset finds a toolset by name. An empty name or an unknown name
// resolves to "default"; when no "default" is configured every registered
// tool is active.
func (c *Config) GetToolset(name string) (*Toolset, error) {
	if name == "" {
		name = "default"
	}
	for _, ts := range c.Toolsets {
		if ts.Name == name {
			return &ts, nil
		}
	}
	if name == "default" {
		return &Toolset{Name: "default", Tools: []string{"*"}}, nil
	}
	return c.GetToolset("default")
}
