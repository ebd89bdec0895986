package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the post-explainer API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Search    SearchConfig    `yaml:"search"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Cache     CacheConfig     `yaml:"cache"`
	Image     ImageConfig     `yaml:"image"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// SearchConfig holds search backend settings.
type SearchConfig struct {
	TavilyAPIKey      string `yaml:"tavily_api_key"`
	BraveAPIKey       string `yaml:"brave_api_key"`
	MaxResults        int    `yaml:"max_results"`
	ResultsPerQuery   int    `yaml:"results_per_query"`
	MinPrimaryResults int    `yaml:"min_primary_results"`
	TimeoutSec        int    `yaml:"timeout_sec"`
}

// SynthesisConfig holds language-model settings.
type SynthesisConfig struct {
	Providers      map[string]ProviderConfig `yaml:"providers"`
	Order          []string                  `yaml:"order"` // provider priority, first = default
	MaxTokens      int                       `yaml:"max_tokens"`
	Temperature    float32                   `yaml:"temperature"`
	TimeoutSec     int                       `yaml:"timeout_sec"`
	StreamTimeout  int                       `yaml:"stream_timeout_sec"`
	CompareTimeout int                       `yaml:"compare_timeout_sec"`
}

// ProviderConfig holds a single language-model provider's settings.
// Models is ordered: the first entry is preferred, the rest are fallbacks
// tried when a model identifier is rejected by the upstream API.
type ProviderConfig struct {
	APIKey  string   `yaml:"api_key"`
	BaseURL string   `yaml:"base_url"`
	Models  []string `yaml:"models"`
	Vision  bool     `yaml:"vision"`
}

// CacheConfig holds explanation cache settings.
type CacheConfig struct {
	TTLSec int `yaml:"ttl_sec"`
}

// ImageConfig holds image download settings.
type ImageConfig struct {
	TimeoutSec   int   `yaml:"timeout_sec"`
	MaxSizeBytes int64 `yaml:"max_size_bytes"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// Streaming responses hold the connection open for the whole
		// synthesis call, so the write timeout must cover it.
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = 8
	}
	if c.Search.ResultsPerQuery <= 0 {
		c.Search.ResultsPerQuery = 5
	}
	if c.Search.MinPrimaryResults <= 0 {
		c.Search.MinPrimaryResults = 3
	}
	if c.Search.TimeoutSec <= 0 {
		c.Search.TimeoutSec = 10
	}
	if c.Synthesis.MaxTokens <= 0 {
		c.Synthesis.MaxTokens = 1024
	}
	if c.Synthesis.Temperature <= 0 {
		c.Synthesis.Temperature = 0.3
	}
	if c.Synthesis.TimeoutSec <= 0 {
		c.Synthesis.TimeoutSec = 45
	}
	if c.Synthesis.StreamTimeout <= 0 {
		c.Synthesis.StreamTimeout = 90
	}
	if c.Synthesis.CompareTimeout <= 0 {
		c.Synthesis.CompareTimeout = 60
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 86400 // 24h
	}
	if c.Image.TimeoutSec <= 0 {
		c.Image.TimeoutSec = 30
	}
	if c.Image.MaxSizeBytes <= 0 {
		c.Image.MaxSizeBytes = 20 << 20
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Search.TavilyAPIKey == "" && c.Search.BraveAPIKey == "" {
		return fmt.Errorf("at least one of search.tavily_api_key, search.brave_api_key is required")
	}
	if len(c.Synthesis.Providers) == 0 {
		return fmt.Errorf("synthesis.providers is required")
	}
	for _, name := range c.Synthesis.Order {
		if _, ok := c.Synthesis.Providers[name]; !ok {
			return fmt.Errorf("synthesis.order references unknown provider %q", name)
		}
	}
	// Providers without an API key are allowed in the file (optional
	// alternates resolved from env); they are skipped at wiring time.
	enabled := 0
	for name, p := range c.Synthesis.Providers {
		if p.APIKey == "" {
			continue
		}
		enabled++
		if len(p.Models) == 0 {
			return fmt.Errorf("synthesis.providers.%s.models must list at least one model", name)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("synthesis.providers: at least one provider needs an api_key")
	}
	return nil
}

// ProviderOrder returns the configured provider priority. When order is
// unset the configured provider names are used in lexical order.
func (c *Config) ProviderOrder() []string {
	if len(c.Synthesis.Order) > 0 {
		return c.Synthesis.Order
	}
	names := make([]string, 0, len(c.Synthesis.Providers))
	for name := range c.Synthesis.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
