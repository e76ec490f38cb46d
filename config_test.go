package doctxn

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseConfig(t *testing.T) {
	data := []byte(`
backend: redis
options:
  max_tries: 3
  delay: 50ms
  timeout: 2s
redis:
  address: localhost:6380
  key_prefix: "docs:"
log_level: debug
`)
	c := DefaultConfig()
	if err := ParseConfig(data, &c); err != nil {
		t.Fatalf("ParseConfig failed, details: %v", err)
	}
	if c.Backend != RedisBackend || c.Redis.Address != "localhost:6380" || c.Redis.KeyPrefix != "docs:" {
		t.Errorf("unexpected redis section %+v", c.Redis)
	}
	o := c.Options
	if o.MaxAttempts != 3 || o.BaseDelay != 50*time.Millisecond || o.OperationTimeout != 2*time.Second {
		t.Errorf("unexpected options %+v", o)
	}
	// Untouched values keep their defaults.
	if !o.Timestamps || c.Couch.URL != "http://localhost:5984" || c.Cassandra.Keyspace != "doctxn" {
		t.Errorf("defaults lost: %+v", c)
	}
	if c.LogLevel != "debug" {
		t.Errorf("got log level %q", c.LogLevel)
	}
}

func TestParseConfigRejectsBadPolicy(t *testing.T) {
	c := DefaultConfig()
	if err := ParseConfig([]byte("options:\n  max_tries: 0\n"), &c); !IsConfiguration(err) {
		t.Fatalf("got %v, expected configuration error", err)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "txn.json")
	if err := os.WriteFile(path, []byte(`{"backend": "inmemory", "options": {"create": true}}`), 0o644); err != nil {
		t.Fatalf("WriteFile failed, details: %v", err)
	}
	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed, details: %v", err)
	}
	if c.Backend != InMemoryBackend || !c.Options.Create || c.Options.MaxAttempts != 5 {
		t.Errorf("unexpected config %+v", c)
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("expected error for a missing file")
	}
}
