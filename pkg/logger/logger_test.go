package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitWritesJSONToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "app.log")
	auditPath := filepath.Join(dir, "audit.log")

	if err := Init(Config{Level: "debug", OutputPaths: []string{path}, Audit: AuditConfig{Enabled: true, Path: auditPath}}); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = Sync()
		_ = Init(Config{})
	})

	Named("orchestrator").Debug("turn completed", "turn", 1)
	Audit().Info("api_request", "path", "/chat")
	if err := Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &record); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, data)
	}
	if record["component"] != "orchestrator" || record["msg"] != "turn completed" {
		t.Fatalf("unexpected record: %+v", record)
	}

	audit, err := os.ReadFile(auditPath)
	if err != nil {
		t.Fatalf("read audit: %v", err)
	}
	if !strings.Contains(string(audit), `"path":"/chat"`) {
		t.Fatalf("audit record missing: %s", audit)
	}
}

func TestInitRejectsEmptyAuditPath(t *testing.T) {
	if err := Init(Config{Audit: AuditConfig{Enabled: true}}); err == nil {
		t.Fatalf("expected error for empty audit path")
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("WARNING").String() != "WARN" {
		t.Fatalf("unexpected level")
	}
	if parseLevel("bogus").String() != "INFO" {
		t.Fatalf("unexpected default level")
	}
}
