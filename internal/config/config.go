package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"transfer-backend/internal/utils"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Log        LogConfig        `yaml:"log"`
	Feed       FeedConfig       `yaml:"feed"`
	NATS       NATSConfig       `yaml:"nats"`
	Redis      RedisConfig      `yaml:"redis"`
	Blockchain BlockchainConfig `yaml:"blockchain"`
	Tokens     []TokenConfig    `yaml:"tokens"`  // extra or overriding registry entries
	Watcher    WatcherConfig    `yaml:"watcher"` // receipt watcher tuning
	Auth       AuthConfig       `yaml:"auth"`
	CORS       CORSConfig       `yaml:"cors"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Admin      AdminConfig      `yaml:"admin"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host              string   `yaml:"host"`
	Port              int      `yaml:"port"`
	MetricsAllowedIPs []string `yaml:"metricsAllowedIps"` // IPs or CIDRs allowed to scrape /metrics besides localhost
}

// DatabaseConfig Database configuration
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"` // only "postgres" in production
}

// LogConfig logrus configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" | "json"
}

// FeedConfig selects the change-feed transport
type FeedConfig struct {
	Transport      string `yaml:"transport"`       // "nats" | "redis" | "postgres" | "memory"
	ResubscribeMin int    `yaml:"resubscribe_min"` // seconds
	ResubscribeMax int    `yaml:"resubscribe_max"` // seconds
}

// NATSConfig NATS message server configuration
type NATSConfig struct {
	URL           string `yaml:"url"`
	Timeout       int    `yaml:"timeout"`
	ReconnectWait int    `yaml:"reconnect_wait"`
	MaxReconnects int    `yaml:"max_reconnects"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// RedisConfig Redis pub/sub configuration
type RedisConfig struct {
	URL           string `yaml:"url"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

// BlockchainConfig Blockchain configuration
type BlockchainConfig struct {
	DefaultChainID uint64                   `yaml:"defaultChainId"`
	Networks       map[string]NetworkConfig `yaml:"networks"`
}

// NetworkConfig per-chain RPC and signer configuration
type NetworkConfig struct {
	ChainID      uint64   `yaml:"chainId"`
	Name         string   `yaml:"name"`
	NativeSymbol string   `yaml:"nativeSymbol"`
	ExplorerURL  string   `yaml:"explorerUrl"`
	RPCEndpoints []string `yaml:"rpcEndpoints"`
	PrivateKey   string   `yaml:"privateKey"` // hex, without 0x; enables server-side submission
	GasPrice     string   `yaml:"gasPrice"`   // wei, or "auto"
	GasLimit     uint64   `yaml:"gasLimit"`   // contract calls only; native transfers use 21000
	Testnet      bool     `yaml:"testnet"`
	Enabled      bool     `yaml:"enabled"`
}

// TokenConfig token registry entry
type TokenConfig struct {
	Symbol    string            `yaml:"symbol"`
	Decimals  uint8             `yaml:"decimals"`
	Addresses map[uint64]string `yaml:"addresses"` // chainId -> contract address
}

// WatcherConfig receipt watcher configuration
type WatcherConfig struct {
	ReceiptTimeout int `yaml:"receipt_timeout"` // seconds
	PollInterval   int `yaml:"poll_interval"`   // seconds
	ResolvedCache  int `yaml:"resolved_cache"`  // remembered terminal hashes
}

// AuthConfig session JWT configuration
type AuthConfig struct {
	JWTSecret       string `yaml:"jwt_secret"`
	TokenTTLMinutes int    `yaml:"token_ttl_minutes"`
	Issuer          string `yaml:"issuer"`
}

// AdminConfig operator login; password is a bcrypt hash
type AdminConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	TOTPSecret   string `yaml:"totp_secret"`
	JWTSecret    string `yaml:"jwt_secret"`
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`   // List of allowed origins
	AllowCredentials bool     `yaml:"allowCredentials"` // Whether to allow credentials
	MaxAge           int      `yaml:"maxAge"`           // Max age for preflight requests (seconds)
}

// RateLimitConfig per-client request limits
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

var AppConfig *Config

// LoadConfig Load configuration file
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			logrus.Info("🔧 Using local configuration file: config.local.yaml")
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"path":      configPath,
		"networks":  len(cfg.Blockchain.Networks),
		"transport": cfg.Feed.Transport,
		"loaded_at": time.Now().Format("2006-01-02 15:04:05"),
	}).Info("✅ [Config] configuration loaded")

	AppConfig = cfg
	return cfg, nil
}

// Parse decodes YAML, applies env overrides and defaults
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	overrideFromEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// DefaultReceiptTimeout seconds a submission is watched before it resolves as failed
const DefaultReceiptTimeout = 600

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Feed.Transport == "" {
		cfg.Feed.Transport = "nats"
	}
	if cfg.Feed.ResubscribeMin <= 0 {
		cfg.Feed.ResubscribeMin = 1
	}
	if cfg.Feed.ResubscribeMax <= 0 {
		cfg.Feed.ResubscribeMax = 30
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "ledger"
	}
	if cfg.Redis.ChannelPrefix == "" {
		cfg.Redis.ChannelPrefix = "ledger"
	}
	if cfg.Watcher.ReceiptTimeout <= 0 {
		cfg.Watcher.ReceiptTimeout = DefaultReceiptTimeout
	}
	if cfg.Watcher.PollInterval <= 0 {
		cfg.Watcher.PollInterval = 3
	}
	if cfg.Watcher.ResolvedCache <= 0 {
		cfg.Watcher.ResolvedCache = 4096
	}
	if cfg.Auth.TokenTTLMinutes <= 0 {
		cfg.Auth.TokenTTLMinutes = 24 * 60
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "transfer-backend"
	}
	if cfg.Admin.Username == "" {
		cfg.Admin.Username = "admin"
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 {
		cfg.RateLimit.RequestsPerSecond = 20
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 40
	}
}

// overrideFromEnv Override configuration from environment
func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}

	if transport := os.Getenv("FEED_TRANSPORT"); transport != "" {
		config.Feed.Transport = transport
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
	if natsTimeout := os.Getenv("NATS_TIMEOUT"); natsTimeout != "" {
		if t, err := strconv.Atoi(natsTimeout); err == nil {
			config.NATS.Timeout = t
		}
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		config.Redis.URL = redisURL
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Auth.JWTSecret = secret
	}

	if v := os.Getenv("ADMIN_USERNAME"); v != "" {
		config.Admin.Username = v
	}
	if v := os.Getenv("ADMIN_PASSWORD_HASH"); v != "" {
		config.Admin.PasswordHash = v
	}
	if v := os.Getenv("ADMIN_TOTP_SECRET"); v != "" {
		config.Admin.TOTPSecret = v
	}
	if v := os.Getenv("ADMIN_JWT_SECRET"); v != "" {
		config.Admin.JWTSecret = v
	}

	for networkName, networkConfig := range config.Blockchain.Networks {
		envRPC := fmt.Sprintf("%s_RPC_ENDPOINTS", strings.ToUpper(networkName))
		if rpcEndpoints := os.Getenv(envRPC); rpcEndpoints != "" {
			networkConfig.RPCEndpoints = strings.Split(rpcEndpoints, ",")
		}

		envPrivateKey := fmt.Sprintf("%s_PRIVATE_KEY", strings.ToUpper(networkName))
		if privateKey := os.Getenv(envPrivateKey); privateKey != "" {
			networkConfig.PrivateKey = privateKey
			logrus.Infof("✅ [Config] Loaded private key for network '%s' from environment variable: %s", networkName, envPrivateKey)
		} else if privateKey := os.Getenv("PRIVATE_KEY"); privateKey != "" && networkConfig.PrivateKey == "" {
			networkConfig.PrivateKey = privateKey
			logrus.Infof("✅ [Config] Loaded private key for network '%s' from environment variable: PRIVATE_KEY", networkName)
		}

		envGasPrice := fmt.Sprintf("%s_GAS_PRICE", strings.ToUpper(networkName))
		if gasPrice := os.Getenv(envGasPrice); gasPrice != "" {
			networkConfig.GasPrice = gasPrice
		}

		config.Blockchain.Networks[networkName] = networkConfig
	}

	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		origins := strings.Split(corsOrigins, ",")
		config.CORS.AllowedOrigins = make([]string, 0, len(origins))
		for _, origin := range origins {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				config.CORS.AllowedOrigins = append(config.CORS.AllowedOrigins, trimmed)
			}
		}
	}
}

// GetNetworkConfigByChainID returns the enabled network for a chain id
func (c *Config) GetNetworkConfigByChainID(chainID uint64) (*NetworkConfig, error) {
	for _, network := range c.Blockchain.Networks {
		if network.ChainID == chainID && network.Enabled {
			n := network
			return &n, nil
		}
	}
	return nil, fmt.Errorf("network with chainID %d not found or disabled", chainID)
}

// ChainRegistry merges configured networks over the built-in catalog.
// Configured networks that are not in the catalog are added as-is.
func (c *Config) ChainRegistry() *utils.ChainRegistry {
	registry := utils.NewChainRegistry(utils.DefaultChains())
	for key, network := range c.Blockchain.Networks {
		if network.ChainID == 0 {
			continue
		}
		info := &utils.ChainInfo{ChainID: network.ChainID, Key: key, Testnet: network.Testnet}
		if known, ok := registry.Get(network.ChainID); ok {
			copied := *known
			info = &copied
		}
		if network.Name != "" {
			info.Name = network.Name
		}
		if network.NativeSymbol != "" {
			info.NativeSymbol = network.NativeSymbol
		}
		if network.ExplorerURL != "" {
			info.ExplorerURL = network.ExplorerURL
		}
		if len(network.RPCEndpoints) > 0 {
			info.RPCEndpoints = network.RPCEndpoints
		}
		if info.NativeSymbol == "" {
			info.NativeSymbol = "ETH"
		}
		registry.Register(info)
	}
	return registry
}

// ConfigureLogger applies log level and format to the standard logrus logger
func (c *Config) ConfigureLogger() {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		logrus.WithField("level", c.Log.Level).Warn("⚠️ [Config] unknown log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if strings.EqualFold(c.Log.Format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// ReceiptTimeoutDuration as a duration
func (w WatcherConfig) ReceiptTimeoutDuration() time.Duration {
	return time.Duration(w.ReceiptTimeout) * time.Second
}

// PollIntervalDuration as a duration
func (w WatcherConfig) PollIntervalDuration() time.Duration {
	return time.Duration(w.PollInterval) * time.Second
}
