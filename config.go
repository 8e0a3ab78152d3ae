package agendagraph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/agendagraph/llm"
)

// Config holds all configuration for the pipeline.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.agendagraph/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path" toml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	DBName string `json:"db_name" yaml:"db_name" toml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set. "home" (default) uses ~/.agendagraph/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir" toml:"storage_dir"`

	// DocumentDirs are searched recursively for ordinance and resolution PDFs.
	DocumentDirs []string `json:"document_dirs" yaml:"document_dirs" toml:"document_dirs"`
	// TranscriptDir holds verbatim transcripts. Empty skips transcripts.
	TranscriptDir string `json:"transcript_dir" yaml:"transcript_dir" toml:"transcript_dir"`

	// LLM backs the linker fallback strategy and the local retrieval engine.
	LLM LLMConfig `json:"llm" yaml:"llm" toml:"llm"`

	// Linking
	LLMFallback     bool     `json:"llm_fallback" yaml:"llm_fallback" toml:"llm_fallback"`
	LLMRateLimit    float64  `json:"llm_rate_limit" yaml:"llm_rate_limit" toml:"llm_rate_limit"` // requests per second, 0 = unlimited
	LLMBurst        int      `json:"llm_burst" yaml:"llm_burst" toml:"llm_burst"`
	Concurrency     int      `json:"concurrency" yaml:"concurrency" toml:"concurrency"`
	DocumentTimeout Duration `json:"document_timeout" yaml:"document_timeout" toml:"document_timeout"`

	// Name resolution
	FuzzyCutoff float64           `json:"fuzzy_cutoff" yaml:"fuzzy_cutoff" toml:"fuzzy_cutoff"`
	Aliases     map[string]string `json:"aliases,omitempty" yaml:"aliases,omitempty" toml:"aliases,omitempty"`

	Retrieval RetrievalConfig `json:"retrieval" yaml:"retrieval" toml:"retrieval"`
	Cache     CacheConfig     `json:"cache" yaml:"cache" toml:"cache"`
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider   string   `json:"provider" yaml:"provider" toml:"provider"` // ollama, lmstudio, openai, openrouter, groq, xai, gemini, custom
	Model      string   `json:"model" yaml:"model" toml:"model"`
	BaseURL    string   `json:"base_url" yaml:"base_url" toml:"base_url"`
	APIKey     string   `json:"api_key" yaml:"api_key" toml:"api_key"`
	Timeout    Duration `json:"timeout" yaml:"timeout" toml:"timeout"`
	MaxRetries int      `json:"max_retries" yaml:"max_retries" toml:"max_retries"`
}

func (c LLMConfig) provider() (llm.Provider, error) {
	return llm.NewProvider(llm.Config{
		Provider:   c.Provider,
		Model:      c.Model,
		BaseURL:    c.BaseURL,
		APIKey:     c.APIKey,
		Timeout:    time.Duration(c.Timeout),
		MaxRetries: c.MaxRetries,
	})
}

// RetrievalConfig selects the engine that answers questions.
type RetrievalConfig struct {
	Engine      string   `json:"engine" yaml:"engine" toml:"engine"` // local or http
	URL         string   `json:"url" yaml:"url" toml:"url"`
	APIKey      string   `json:"api_key" yaml:"api_key" toml:"api_key"`
	Corpus      string   `json:"corpus" yaml:"corpus" toml:"corpus"`
	Timeout     Duration `json:"timeout" yaml:"timeout" toml:"timeout"`
	MaxVertices int      `json:"max_vertices" yaml:"max_vertices" toml:"max_vertices"`
}

// CacheConfig selects where meeting structures are kept.
type CacheConfig struct {
	Backend  string   `json:"backend" yaml:"backend" toml:"backend"` // memory or redis
	RedisURL string   `json:"redis_url" yaml:"redis_url" toml:"redis_url"`
	Prefix   string   `json:"prefix" yaml:"prefix" toml:"prefix"`
	TTL      Duration `json:"ttl" yaml:"ttl" toml:"ttl"`
}

// Duration reads and writes "90s" style strings in every config format.
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// DefaultConfig returns a Config with defaults for local use. The database
// is stored in ~/.agendagraph/agendagraph.db and no LLM is configured, so
// linking uses the pattern rules only.
func DefaultConfig() Config {
	return Config{
		DBName:          "agendagraph",
		StorageDir:      "home",
		DocumentDirs:    []string{"data/ordinances", "data/resolutions"},
		TranscriptDir:   "data/transcripts",
		LLMRateLimit:    2,
		LLMBurst:        1,
		Concurrency:     8,
		DocumentTimeout: Duration(90 * time.Second),
		FuzzyCutoff:     0.85,
		Retrieval: RetrievalConfig{
			Engine:      "local",
			Corpus:      "agendagraph",
			MaxVertices: 30,
		},
		Cache: CacheConfig{
			Backend: "memory",
			Prefix:  "agendagraph:structure:",
		},
	}
}

// LoadConfig reads a config file over the defaults. The format follows the
// extension: .yaml/.yml, .toml or .json. Environment overrides are applied
// afterwards.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		return cfg, fmt.Errorf("%w: unsupported config format %q", ErrInvalidConfig, ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", filepath.Base(path), err)
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides fields from AGENDAGRAPH_* environment variables and
// fills the LLM key from the provider's well-known variable when unset.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("AGENDAGRAPH_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("AGENDAGRAPH_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("AGENDAGRAPH_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("AGENDAGRAPH_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("AGENDAGRAPH_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("AGENDAGRAPH_REDIS_URL"); v != "" {
		c.Cache.Backend = "redis"
		c.Cache.RedisURL = v
	}
	if v := os.Getenv("AGENDAGRAPH_RETRIEVAL_URL"); v != "" {
		c.Retrieval.Engine = "http"
		c.Retrieval.URL = v
	}

	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case "openai":
			c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "groq":
			c.LLM.APIKey = os.Getenv("GROQ_API_KEY")
		}
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.LLMFallback && c.LLM.Provider == "" {
		return fmt.Errorf("%w: llm_fallback requires llm.provider", ErrInvalidConfig)
	}
	if c.FuzzyCutoff < 0 || c.FuzzyCutoff > 1 {
		return fmt.Errorf("%w: fuzzy_cutoff must be between 0 and 1", ErrInvalidConfig)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("%w: concurrency must not be negative", ErrInvalidConfig)
	}
	switch c.Retrieval.Engine {
	case "", "local":
	case "http":
		if c.Retrieval.URL == "" {
			return fmt.Errorf("%w: retrieval.url is required for the http engine", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown retrieval engine %q", ErrInvalidConfig, c.Retrieval.Engine)
	}
	switch c.Cache.Backend {
	case "", "memory":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("%w: cache.redis_url is required for the redis backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown cache backend %q", ErrInvalidConfig, c.Cache.Backend)
	}
	return nil
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "agendagraph"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db"
		}
		dir := filepath.Join(home, ".agendagraph")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return name + ".db"
		}
		return filepath.Join(dir, name+".db")
	}
}
