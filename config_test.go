package agendagraph

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeConfig(t, "agendagraph.yaml", `
db_path: /tmp/meetings.db
document_dirs: [docs/ordinances]
transcript_dir: ""
llm:
  provider: ollama
  model: llama3.1:8b
  timeout: 2m
llm_fallback: true
document_timeout: 45s
aliases:
  "Mayor Lago": Vince Lago
cache:
  backend: redis
  redis_url: redis://localhost:6379/0
  ttl: 24h
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/meetings.db", cfg.DBPath)
	assert.Equal(t, []string{"docs/ordinances"}, cfg.DocumentDirs)
	assert.Empty(t, cfg.TranscriptDir)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 2*time.Minute, time.Duration(cfg.LLM.Timeout))
	assert.True(t, cfg.LLMFallback)
	assert.Equal(t, 45*time.Second, time.Duration(cfg.DocumentTimeout))
	assert.Equal(t, "Vince Lago", cfg.Aliases["Mayor Lago"])
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 24*time.Hour, time.Duration(cfg.Cache.TTL))

	// Unset fields keep their defaults.
	assert.Equal(t, 0.85, cfg.FuzzyCutoff)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, "agendagraph:structure:", cfg.Cache.Prefix)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigTOML(t *testing.T) {
	path := writeConfig(t, "agendagraph.toml", `
fuzzy_cutoff = 0.9
concurrency = 2

[retrieval]
engine = "http"
url = "http://graphrag:8000"
timeout = "5m"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 0.9, cfg.FuzzyCutoff)
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, "http", cfg.Retrieval.Engine)
	assert.Equal(t, "http://graphrag:8000", cfg.Retrieval.URL)
	assert.Equal(t, 5*time.Minute, time.Duration(cfg.Retrieval.Timeout))
	assert.Equal(t, "agendagraph", cfg.Retrieval.Corpus)
}

func TestLoadConfigJSON(t *testing.T) {
	path := writeConfig(t, "agendagraph.json", `{"storage_dir":"local","db_name":"council","llm_rate_limit":0.5}`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.LLMRateLimit)
	assert.Equal(t, "council.db", cfg.resolveDBPath())
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "agendagraph.ini", "x=1"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = LoadConfig(writeConfig(t, "bad.yaml", "document_timeout: soon"))
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("AGENDAGRAPH_DB_PATH", "/data/graph.db")
	t.Setenv("AGENDAGRAPH_LLM_PROVIDER", "groq")
	t.Setenv("AGENDAGRAPH_LLM_API_KEY", "")
	t.Setenv("GROQ_API_KEY", "gsk-test")
	t.Setenv("AGENDAGRAPH_REDIS_URL", "redis://cache:6379/1")
	t.Setenv("AGENDAGRAPH_RETRIEVAL_URL", "http://graphrag:8000")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	assert.Equal(t, "/data/graph.db", cfg.DBPath)
	assert.Equal(t, "groq", cfg.LLM.Provider)
	assert.Equal(t, "gsk-test", cfg.LLM.APIKey)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, "redis://cache:6379/1", cfg.Cache.RedisURL)
	assert.Equal(t, "http", cfg.Retrieval.Engine)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"fallback without provider", func(c *Config) { c.LLMFallback = true }},
		{"cutoff above one", func(c *Config) { c.FuzzyCutoff = 1.5 }},
		{"negative concurrency", func(c *Config) { c.Concurrency = -1 }},
		{"http engine without url", func(c *Config) { c.Retrieval.Engine = "http" }},
		{"unknown engine", func(c *Config) { c.Retrieval.Engine = "elastic" }},
		{"redis without url", func(c *Config) { c.Cache.Backend = "redis" }},
		{"unknown cache", func(c *Config) { c.Cache.Backend = "memcached" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestDurationText(t *testing.T) {
	d := Duration(90 * time.Second)
	b, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(b))

	var back Duration
	require.NoError(t, back.UnmarshalText(b))
	assert.Equal(t, d, back)
	assert.Error(t, back.UnmarshalText([]byte("ninety")))
}
