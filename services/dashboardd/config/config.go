package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"infrafi/native/lending"
)

const (
	defaultListen       = ":8090"
	defaultPollInterval = 30 * time.Second
	defaultRetention    = 7 * 24 * time.Hour
	defaultStatsDSN     = "dashboardd.db"
	defaultCacheEntries = 4096
	defaultCacheTTL     = 24 * time.Hour
)

// Config captures the runtime settings for the dashboard daemon.
type Config struct {
	ListenAddress string         `yaml:"listen"`
	TLS           TLSConfig      `yaml:"tls"`
	Subgraph      SubgraphConfig `yaml:"subgraph"`
	Chain         ChainConfig    `yaml:"chain"`
	// ParamsPath points at a TOML file of protocol parameters. Empty uses
	// the built-in defaults.
	ParamsPath   string        `yaml:"params_path"`
	Storage      StorageConfig `yaml:"storage"`
	PollInterval time.Duration `yaml:"poll_interval"`
	CORS         CORSConfig    `yaml:"cors"`
	RateLimit    RateLimit     `yaml:"rate_limit"`
	Log          LogConfig     `yaml:"log"`
}

// TLSConfig holds the optional certificate pair for HTTPS.
type TLSConfig struct {
	CertPath string `yaml:"cert"`
	KeyPath  string `yaml:"key"`
}

// Enabled reports whether the server should terminate TLS itself.
func (cfg TLSConfig) Enabled() bool {
	return cfg.CertPath != "" && cfg.KeyPath != ""
}

// SubgraphConfig locates the indexing service.
type SubgraphConfig struct {
	Endpoint          string        `yaml:"endpoint"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	PageSize          int           `yaml:"page_size"`
}

// ChainConfig locates the EVM node and the deployed contracts. An empty
// RPCURL disables live reads and the poller.
type ChainConfig struct {
	RPCURL       string        `yaml:"rpc_url"`
	Vault        string        `yaml:"vault"`
	Token        string        `yaml:"token"`
	NodeRegistry string        `yaml:"node_registry"`
	CallTimeout  time.Duration `yaml:"call_timeout"`
}

// Enabled reports whether an RPC endpoint is configured.
func (cfg ChainConfig) Enabled() bool {
	return cfg.RPCURL != ""
}

// StorageConfig selects the stats database and the response cache.
type StorageConfig struct {
	// DSN is a SQLite path or DSN, or a postgres:// URL.
	DSN string `yaml:"dsn"`
	// CacheDir enables a LevelDB response cache. Empty keeps it in memory.
	CacheDir string `yaml:"cache_dir"`
	// CacheEntries bounds the response cache; the least recently used
	// response is evicted first.
	CacheEntries int `yaml:"cache_entries"`
	// CacheTTL is how old a cached response may be and still be replayed.
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	Retention time.Duration `yaml:"retention"`
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// RateLimit bounds requests per client.
type RateLimit struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{ListenAddress: defaultListen}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Params loads the protocol parameters referenced by ParamsPath.
func (cfg Config) Params() (lending.Params, error) {
	return lending.LoadParams(cfg.ParamsPath)
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.TLS.CertPath = strings.TrimSpace(cfg.TLS.CertPath)
	cfg.TLS.KeyPath = strings.TrimSpace(cfg.TLS.KeyPath)
	cfg.ParamsPath = strings.TrimSpace(cfg.ParamsPath)
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	cfg.Subgraph.Endpoint = strings.TrimSpace(cfg.Subgraph.Endpoint)

	cfg.Chain.RPCURL = strings.TrimSpace(cfg.Chain.RPCURL)
	cfg.Chain.Vault = strings.TrimSpace(cfg.Chain.Vault)
	cfg.Chain.Token = strings.TrimSpace(cfg.Chain.Token)
	cfg.Chain.NodeRegistry = strings.TrimSpace(cfg.Chain.NodeRegistry)

	cfg.Storage.DSN = strings.TrimSpace(cfg.Storage.DSN)
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = defaultStatsDSN
	}
	cfg.Storage.CacheDir = strings.TrimSpace(cfg.Storage.CacheDir)
	if cfg.Storage.CacheEntries == 0 {
		cfg.Storage.CacheEntries = defaultCacheEntries
	}
	if cfg.Storage.CacheTTL == 0 {
		cfg.Storage.CacheTTL = defaultCacheTTL
	}
	if cfg.Storage.Retention <= 0 {
		cfg.Storage.Retention = defaultRetention
	}

	origins := make([]string, 0, len(cfg.CORS.AllowedOrigins))
	for _, origin := range cfg.CORS.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	cfg.CORS.AllowedOrigins = origins

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.File = strings.TrimSpace(cfg.Log.File)
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if (cfg.TLS.CertPath == "") != (cfg.TLS.KeyPath == "") {
		return fmt.Errorf("tls: cert and key must either both be provided or both be empty")
	}
	if cfg.Subgraph.Endpoint == "" {
		return fmt.Errorf("subgraph: endpoint is required")
	}
	if u, err := url.Parse(cfg.Subgraph.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("subgraph: endpoint %q is not an absolute url", cfg.Subgraph.Endpoint)
	}
	if cfg.Subgraph.RequestsPerSecond < 0 || cfg.Subgraph.Burst < 0 {
		return fmt.Errorf("subgraph: rate limits must not be negative")
	}
	if cfg.Chain.Enabled() && (cfg.Chain.Vault == "" || cfg.Chain.Token == "") {
		return fmt.Errorf("chain: vault and token addresses are required with rpc_url")
	}
	if cfg.Storage.CacheEntries < 0 || cfg.Storage.CacheTTL < 0 {
		return fmt.Errorf("storage: cache_entries and cache_ttl must not be negative")
	}
	if cfg.RateLimit.RequestsPerSecond < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must not be negative")
	}
	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log: unknown level %q", cfg.Log.Level)
	}
	return nil
}
