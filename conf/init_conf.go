package conf

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

// Config application configuration structure
type Config struct {
	// Chain network name, e.g. sepolia
	Net string

	Server   ServerConfig
	Database DatabaseConfig
	Chain    ChainConfig
	Auth     AuthConfig
	Ipfs     IpfsConfig
	Mirror   MirrorConfig
	Vote     VoteConfig
	Log      LogConfig

	Secrets Secrets
}

// ServerConfig HTTP server configuration
type ServerConfig struct {
	Port           string
	PathPrefix     string   // Path prefix for reverse proxy (e.g., "/trustfund")
	SwaggerBaseUrl string   // Swagger API base URL
	AllowOrigins   []string // CORS origins; empty allows all
	MaxUploadMB    int
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	Type         string // pebble, sqlite, mysql
	Dsn          string // SQL DSN (sqlite path or mysql DSN)
	MaxOpenConns int    // MySQL max open connections
	MaxIdleConns int    // MySQL max idle connections
	DataDir      string // PebbleDB data directory
}

// ChainConfig chain JSON-RPC configuration
type ChainConfig struct {
	RpcUrl         string
	TimeoutSeconds int
	VerifyReceipts bool // Check the receipt before mirroring a chain write
}

// AuthConfig session token configuration
type AuthConfig struct {
	Issuer       string
	TokenTTL     time.Duration
	CookieName   string
	CookieSecure bool
}

// IpfsConfig Pinata pinning configuration
type IpfsConfig struct {
	PinUrl  string
	Gateway string
}

// MirrorConfig outbox reconciler configuration
type MirrorConfig struct {
	SweepSpec   string // cron spec of the reconciler sweep
	MaxAttempts int    // Attempts before an entry is stalled
	BatchSize   int
}

// VoteConfig thresholds of the chain's approval rule, used for projections
type VoteConfig struct {
	QuorumPercentage uint32
	PassPercentage   uint32
}

// LogConfig logging configuration
type LogConfig struct {
	Level string // trace, debug, info, warn, error, critical
	Dir   string // Empty disables file logging
}

// Secrets values read only from the environment
type Secrets struct {
	JwtSecret     string `env:"TRUSTFUND_JWT_SECRET"`
	PinataJwt     string `env:"TRUSTFUND_PINATA_JWT"`
	ChainRpcToken string `env:"TRUSTFUND_CHAIN_RPC_TOKEN"`
}

// Cfg global configuration instance
var Cfg *Config

// InitConfig initialize configuration from the environment's yaml file
func InitConfig() error {
	return InitConfigFile(GetYaml())
}

// InitConfigFile initialize configuration from path
func InitConfigFile(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("Fatal error config file: %s", err)
	}

	cfg := &Config{
		Net: v.GetString("net"),

		Server: ServerConfig{
			Port:           v.GetString("server.port"),
			PathPrefix:     v.GetString("server.path_prefix"),
			SwaggerBaseUrl: v.GetString("server.swagger_base_url"),
			AllowOrigins:   v.GetStringSlice("server.allow_origins"),
			MaxUploadMB:    v.GetInt("server.max_upload_mb"),
		},

		Database: DatabaseConfig{
			Type:         v.GetString("database.type"),
			Dsn:          v.GetString("database.dsn"),
			MaxOpenConns: v.GetInt("database.max_open_conns"),
			MaxIdleConns: v.GetInt("database.max_idle_conns"),
			DataDir:      v.GetString("database.data_dir"),
		},

		Chain: ChainConfig{
			RpcUrl:         v.GetString("chain.rpc_url"),
			TimeoutSeconds: v.GetInt("chain.timeout_seconds"),
			VerifyReceipts: v.GetBool("chain.verify_receipts"),
		},

		Auth: AuthConfig{
			Issuer:       v.GetString("auth.issuer"),
			TokenTTL:     v.GetDuration("auth.token_ttl"),
			CookieName:   v.GetString("auth.cookie_name"),
			CookieSecure: v.GetBool("auth.cookie_secure"),
		},

		Ipfs: IpfsConfig{
			PinUrl:  v.GetString("ipfs.pin_url"),
			Gateway: v.GetString("ipfs.gateway"),
		},

		Mirror: MirrorConfig{
			SweepSpec:   v.GetString("mirror.sweep_spec"),
			MaxAttempts: v.GetInt("mirror.max_attempts"),
			BatchSize:   v.GetInt("mirror.batch_size"),
		},

		Vote: VoteConfig{
			QuorumPercentage: v.GetUint32("vote.quorum_percentage"),
			PassPercentage:   v.GetUint32("vote.pass_percentage"),
		},

		Log: LogConfig{
			Level: v.GetString("log.level"),
			Dir:   v.GetString("log.dir"),
		},
	}

	if err := env.Parse(&cfg.Secrets); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.setDefaults(); err != nil {
		return err
	}

	Cfg = cfg
	return nil
}

// setDefaults fills unset values and checks the rest
func (c *Config) setDefaults() error {
	if c.Server.Port == "" {
		c.Server.Port = "7290"
	}
	if c.Server.SwaggerBaseUrl == "" {
		c.Server.SwaggerBaseUrl = "localhost:" + c.Server.Port
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = 10
	}
	if c.Database.Type == "" {
		c.Database.Type = "pebble"
	}
	if c.Database.DataDir == "" {
		c.Database.DataDir = "./data"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 100
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 10
	}
	if c.Chain.TimeoutSeconds == 0 {
		c.Chain.TimeoutSeconds = 10
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "trust-fund-service"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 7 * 24 * time.Hour
	}
	if c.Auth.CookieName == "" {
		c.Auth.CookieName = "auth_token"
	}
	if c.Ipfs.PinUrl == "" {
		c.Ipfs.PinUrl = "https://api.pinata.cloud/pinning/pinFileToIPFS"
	}
	if c.Ipfs.Gateway == "" {
		c.Ipfs.Gateway = "https://gateway.pinata.cloud/ipfs/"
	}
	if c.Mirror.SweepSpec == "" {
		c.Mirror.SweepSpec = "@every 15s"
	}
	if c.Mirror.MaxAttempts == 0 {
		c.Mirror.MaxAttempts = 10
	}
	if c.Mirror.BatchSize == 0 {
		c.Mirror.BatchSize = 50
	}
	if c.Vote.QuorumPercentage == 0 {
		c.Vote.QuorumPercentage = 20
	}
	if c.Vote.PassPercentage == 0 {
		c.Vote.PassPercentage = 60
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Vote.QuorumPercentage > 100 || c.Vote.PassPercentage > 100 {
		return fmt.Errorf("vote percentages must be within 0-100")
	}
	if c.Secrets.JwtSecret == "" {
		return fmt.Errorf("TRUSTFUND_JWT_SECRET is not set")
	}
	switch c.Database.Type {
	case "pebble":
	case "sqlite", "mysql":
		if c.Database.Dsn == "" {
			return fmt.Errorf("database.dsn is required for %s", c.Database.Type)
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
	return nil
}
