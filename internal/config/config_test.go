package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: ":8080"
  redisAddr: "redis:6379"
community:
  cacheTTL: 30s
`)

	config, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if config.Server.Listen != ":8080" || config.Server.RedisAddr != "redis:6379" {
		t.Fatalf("unexpected server section %+v", config.Server)
	}
	if config.Server.RecordStore != RecordStoreFilesystem || config.Server.DataDir == "" {
		t.Fatalf("defaults lost: %+v", config.Server)
	}
	if config.Community.ReplayIdentities != 5 || config.Community.ReplayUtterances != 11 {
		t.Fatalf("unexpected replay limits %+v", config.Community)
	}
	if config.Community.CacheTTL != 30*time.Second {
		t.Fatalf("unexpected ttl %s", config.Community.CacheTTL)
	}
}

func TestValidate(t *testing.T) {
	bad := []string{
		"server:\n  recordStore: mongo\n",
		"server:\n  recordStore: postgres\n",
		"server:\n  enableTrace: true\n",
	}
	for _, body := range bad {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("expected %q to be rejected", body)
		}
	}

	_, err := Load(writeConfig(t, "server:\n  recordStore: postgres\n  postgresDsn: host=db\n"))
	if err != nil {
		t.Fatalf("postgres with dsn should load: %v", err)
	}
}
