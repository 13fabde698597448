package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
subgraph:
  endpoint: " https://indexer.example/subgraphs/name/infrafi "
cors:
  allowed_origins:
    - " https://app.example "
    - " "
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != defaultListen {
		t.Fatalf("unexpected listen address: %q", cfg.ListenAddress)
	}
	if cfg.Subgraph.Endpoint != "https://indexer.example/subgraphs/name/infrafi" {
		t.Fatalf("endpoint not trimmed: %q", cfg.Subgraph.Endpoint)
	}
	if cfg.PollInterval != defaultPollInterval {
		t.Fatalf("unexpected poll interval: %s", cfg.PollInterval)
	}
	if cfg.Storage.DSN != defaultStatsDSN || cfg.Storage.Retention != defaultRetention {
		t.Fatalf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if cfg.Storage.CacheEntries != defaultCacheEntries || cfg.Storage.CacheTTL != defaultCacheTTL {
		t.Fatalf("unexpected cache defaults: %+v", cfg.Storage)
	}
	if len(cfg.CORS.AllowedOrigins) != 1 {
		t.Fatalf("expected 1 trimmed origin, got %d", len(cfg.CORS.AllowedOrigins))
	}
	if cfg.Chain.Enabled() || cfg.TLS.Enabled() {
		t.Fatalf("chain and tls should be disabled by default")
	}
}

func TestLoadConfigDurations(t *testing.T) {
	path := writeConfig(t, `
listen: ":9000"
poll_interval: 15s
subgraph:
  endpoint: "http://localhost:8000/subgraphs/name/infrafi"
  timeout: 4s
  requests_per_second: 2.5
  burst: 5
chain:
  rpc_url: "https://rpc.example"
  vault: "0x00000000000000000000000000000000000000aa"
  token: "0x00000000000000000000000000000000000000bb"
  call_timeout: 3s
storage:
  retention: 48h
  cache_entries: 128
  cache_ttl: 2h
log:
  level: DEBUG
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.PollInterval != 15*time.Second || cfg.Subgraph.Timeout != 4*time.Second {
		t.Fatalf("durations not decoded: %s %s", cfg.PollInterval, cfg.Subgraph.Timeout)
	}
	if cfg.Storage.Retention != 48*time.Hour {
		t.Fatalf("unexpected retention: %s", cfg.Storage.Retention)
	}
	if cfg.Storage.CacheEntries != 128 || cfg.Storage.CacheTTL != 2*time.Hour {
		t.Fatalf("unexpected cache bounds: %d %s", cfg.Storage.CacheEntries, cfg.Storage.CacheTTL)
	}
	if !cfg.Chain.Enabled() || cfg.Chain.CallTimeout != 3*time.Second {
		t.Fatalf("unexpected chain config: %+v", cfg.Chain)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log level not normalised: %q", cfg.Log.Level)
	}
}

func TestLoadConfigRequiresSubgraph(t *testing.T) {
	path := writeConfig(t, `listen: ":9000"`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error when subgraph endpoint is missing")
	}
	path = writeConfig(t, `
subgraph:
  endpoint: "not a url"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for relative subgraph endpoint")
	}
}

func TestLoadConfigValidatesTLS(t *testing.T) {
	path := writeConfig(t, `
tls:
  cert: "server.crt"
subgraph:
  endpoint: "http://localhost:8000"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error when tls key is missing")
	}
}

func TestLoadConfigRequiresContractsWithRPC(t *testing.T) {
	path := writeConfig(t, `
subgraph:
  endpoint: "http://localhost:8000"
chain:
  rpc_url: "https://rpc.example"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error when vault and token are missing")
	}
}

func TestLoadConfigRejectsUnknownLogLevel(t *testing.T) {
	path := writeConfig(t, `
subgraph:
  endpoint: "http://localhost:8000"
log:
  level: verbose
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestLoadConfigRejectsNegativeCacheBounds(t *testing.T) {
	path := writeConfig(t, `
subgraph:
  endpoint: "http://localhost:8000"
storage:
  cache_entries: -1
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for negative cache_entries")
	}
}

func TestLoadConfigRequiresPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestParamsDefaults(t *testing.T) {
	params, err := Config{}.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.Decimals != 18 {
		t.Fatalf("unexpected decimals: %d", params.Decimals)
	}
}
