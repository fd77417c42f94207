package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxVideoBytes != 100*1024*1024 {
		t.Fatalf("unexpected max video bytes: %d", cfg.MaxVideoBytes)
	}
	if cfg.LLM.Attempts != 3 || cfg.LLM.Backoff != time.Second {
		t.Fatalf("unexpected llm retry defaults: %+v", cfg.LLM)
	}
	if cfg.Google.DefaultCategoryID != "22" {
		t.Fatalf("unexpected default category: %q", cfg.Google.DefaultCategoryID)
	}
	if cfg.Thumbnail.Offset != "00:00:01" {
		t.Fatalf("unexpected thumbnail offset: %q", cfg.Thumbnail.Offset)
	}
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "tubepilot.yaml")
	contents := `
app_port: 9000
default_privacy: unlisted
llm:
  model: from-file
  timeout: 45s
grounding:
  index: memory
  top_k: 5
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("TUBEPILOT_CONFIG_FILE", path)
	t.Setenv("GROQ_MODEL", "from-env")
	t.Setenv("TUBEPILOT_PORT", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AppPort != 9000 {
		t.Fatalf("expected file port to survive invalid env, got %d", cfg.AppPort)
	}
	if cfg.DefaultPrivacy != "unlisted" {
		t.Fatalf("unexpected privacy: %q", cfg.DefaultPrivacy)
	}
	if cfg.LLM.Model != "from-env" {
		t.Fatalf("expected env to override file model, got %q", cfg.LLM.Model)
	}
	if cfg.LLM.Timeout != 45*time.Second {
		t.Fatalf("unexpected llm timeout: %v", cfg.LLM.Timeout)
	}
	if cfg.Grounding.Index != "memory" || cfg.Grounding.TopK != 5 {
		t.Fatalf("unexpected grounding config: %+v", cfg.Grounding)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"privacy", func(c *Config) { c.DefaultPrivacy = "friends-only" }},
		{"size", func(c *Config) { c.MaxVideoBytes = 0 }},
		{"index", func(c *Config) { c.Grounding.Index = "pinecone" }},
		{"redisWithoutURL", func(c *Config) { c.Grounding.Cache = "redis"; c.Grounding.RedisURL = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaults()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	if err := defaults().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}
