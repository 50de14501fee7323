package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	xerrors "MultiModel-Chat/internal/errors"
)

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoadDefaultsFromEnvironment(t *testing.T) {
	cfg, err := LoadWithEnv("", envMap(map[string]string{
		EnvModelAAPIKey:   "key-a",
		EnvModelBBaseURL:  "http://localhost:11434/v1",
		EnvAllowedOrigins: "http://a.test, http://b.test",
		EnvPort:           "9000",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Address != ":9000" {
		t.Fatalf("unexpected address: %s", cfg.Server.Address)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "http://b.test" {
		t.Fatalf("unexpected origins: %v", cfg.Server.AllowedOrigins)
	}

	endpoints := cfg.DefaultEndpoints()
	if len(endpoints) != 2 {
		t.Fatalf("expected default endpoint pair, got %d", len(endpoints))
	}
	if endpoints[0].Name != "Model A" || endpoints[0].ModelID != "gpt-3.5-turbo" || endpoints[0].APIKey != "key-a" {
		t.Fatalf("unexpected Model A: %+v", endpoints[0])
	}
	if endpoints[0].BaseURL != DefaultBaseURL {
		t.Fatalf("expected default base URL, got %s", endpoints[0].BaseURL)
	}
	if endpoints[1].ModelID != "gpt-4" || endpoints[1].BaseURL != "http://localhost:11434/v1" {
		t.Fatalf("unexpected Model B: %+v", endpoints[1])
	}

	want := []string{EnvModelBAPIKey, EnvModelABaseURL}
	if len(cfg.MissingEnv) != len(want) {
		t.Fatalf("unexpected missing env: %v", cfg.MissingEnv)
	}
	for i := range want {
		if cfg.MissingEnv[i] != want[i] {
			t.Fatalf("unexpected missing env: %v", cfg.MissingEnv)
		}
	}

	if cfg.Conversation.MaxTurns != 5 || cfg.Conversation.PacingDelay != time.Second || cfg.Conversation.QueryTimeout != time.Minute {
		t.Fatalf("unexpected conversation defaults: %+v", cfg.Conversation)
	}
	if cfg.Executor.DefaultTimeout != 30*time.Second || cfg.Storage.Driver != "memory" || cfg.Events.Driver != "none" {
		t.Fatalf("unexpected defaults: %+v %+v", cfg.Executor, cfg.Storage)
	}
}

func TestLoadWithoutEnvironment(t *testing.T) {
	cfg, err := LoadWithEnv("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.MissingEnv) != 4 {
		t.Fatalf("expected every variable to be missing: %v", cfg.MissingEnv)
	}
	if cfg.Server.Address != ":8000" || cfg.Server.AllowedOrigins[0] != DefaultAllowedOrigin {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "multichat.yaml")
	content := `
server:
  address: ":7000"
endpoints:
  - name: Model A
    model_id: gpt-4o-mini
  - name: Local
    base_url: http://localhost:11434/v1
    model_id: llama3
conversation:
  max_turns: 3
  pacing: token_bucket
  pacing_delay: 250ms
  context_limit: 4096
storage:
  driver: redis
  redis:
    address: 127.0.0.1:6379
    ttl: 24h
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadWithEnv(path, envMap(map[string]string{EnvModelAAPIKey: "secret", EnvLogLevel: "warn"}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":7000" {
		t.Fatalf("unexpected address: %s", cfg.Server.Address)
	}
	if len(cfg.Endpoints) != 2 || cfg.Endpoints[0].APIKey != "secret" || cfg.Endpoints[0].ModelID != "gpt-4o-mini" {
		t.Fatalf("unexpected endpoints: %+v", cfg.Endpoints)
	}
	if cfg.Endpoints[1].APIKey != "" || cfg.Endpoints[1].BaseURL != "http://localhost:11434/v1" {
		t.Fatalf("env overrides must only touch the default names: %+v", cfg.Endpoints[1])
	}
	if cfg.Conversation.MaxTurns != 3 || cfg.Conversation.Pacing != "token_bucket" || cfg.Conversation.PacingDelay != 250*time.Millisecond {
		t.Fatalf("unexpected conversation: %+v", cfg.Conversation)
	}
	if cfg.Storage.Redis.TTL != 24*time.Hour {
		t.Fatalf("unexpected redis ttl: %s", cfg.Storage.Redis.TTL)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("expected env log level to win, got %s", cfg.Logging.Level)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "bad port", env: map[string]string{EnvPort: "http"}},
		{name: "bad pacing", yaml: "conversation:\n  pacing: jitter\n"},
		{name: "mysql without dsn", yaml: "storage:\n  driver: mysql\n"},
		{name: "unknown storage", yaml: "storage:\n  driver: etcd\n"},
		{name: "rabbitmq without url", yaml: "events:\n  driver: rabbitmq\n"},
	}
	for _, tc := range cases {
		path := ""
		if tc.yaml != "" {
			path = filepath.Join(t.TempDir(), "cfg.yaml")
			if err := os.WriteFile(path, []byte(tc.yaml), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
		}
		_, err := LoadWithEnv(path, envMap(tc.env))
		if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
			t.Fatalf("%s: expected invalid argument, got %v", tc.name, err)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadWithEnv(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
