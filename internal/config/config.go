// Package config loads the service configuration from a .env file and INSTAPAY_ environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the typed service configuration
type Config struct {
	LogLevel      string              `mapstructure:"log_level"`
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	BankDirectory BankDirectoryConfig `mapstructure:"bankdirectory"`
	Ledger        LedgerConfig        `mapstructure:"ledger"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	// Driver is postgres or sqlite
	Driver          string `mapstructure:"driver"`
	DSN             string `mapstructure:"dsn"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	// BatchTimeout bounds how long a single event waits in the writer
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// GatewayConfig points at the settlement gateway and its mTLS material
type GatewayConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	Timeout            time.Duration `mapstructure:"timeout"`
	CertFile           string        `mapstructure:"cert_file"`
	KeyFile            string        `mapstructure:"key_file"`
	CAFile             string        `mapstructure:"ca_file"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

type JWTConfig struct {
	// Secret signs gateway bearer tokens
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
	Issuer string        `mapstructure:"issuer"`
	// APISecret verifies inbound API tokens
	APISecret string `mapstructure:"api_secret"`
}

type BankDirectoryConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// LedgerConfig holds the accounting system endpoint and its credentials
type LedgerConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	BankCode  string        `mapstructure:"bank_code"`
	Segment   string        `mapstructure:"segment"`
	Narration string        `mapstructure:"narration"`
	Timeout   time.Duration `mapstructure:"timeout"`
	// Databases maps a data year to the accounting database name,
	// written as "2025=DB25,2024=DB24"
	Databases string `mapstructure:"databases"`
}

// DatabaseForYear resolves the accounting database for a data year
func (l LedgerConfig) DatabaseForYear(year int) (string, bool) {
	dbs, err := ParseYearMap(l.Databases)
	if err != nil {
		return "", false
	}
	name, ok := dbs[year]
	return name, ok
}

type SchedulerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	// Concurrency caps parallel polls per cycle; 0 means unbounded
	Concurrency int `mapstructure:"concurrency"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 3600)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 500*time.Millisecond)
	v.SetDefault("redis.write_timeout", 500*time.Millisecond)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "instapay.settlement-status")
	v.SetDefault("kafka.batch_timeout", "10ms")

	v.SetDefault("gateway.base_url", "")
	v.SetDefault("gateway.timeout", 30*time.Second)
	v.SetDefault("gateway.cert_file", "")
	v.SetDefault("gateway.key_file", "")
	v.SetDefault("gateway.ca_file", "")
	v.SetDefault("gateway.insecure_skip_verify", false)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.ttl", 15*time.Minute)
	v.SetDefault("jwt.issuer", "instapay")
	v.SetDefault("jwt.api_secret", "")

	v.SetDefault("bankdirectory.base_url", "")
	v.SetDefault("bankdirectory.timeout", 10*time.Second)
	v.SetDefault("bankdirectory.cache_ttl", 5*time.Minute)

	v.SetDefault("ledger.base_url", "")
	v.SetDefault("ledger.username", "")
	v.SetDefault("ledger.password", "")
	v.SetDefault("ledger.bank_code", "ICICI 1596")
	v.SetDefault("ledger.segment", "NSE_CASH")
	v.SetDefault("ledger.narration", "PAID TO CLIENT")
	v.SetDefault("ledger.timeout", 30*time.Second)
	v.SetDefault("ledger.databases", "")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", time.Minute)
	v.SetDefault("scheduler.concurrency", 0)
}

// Load reads configuration from the given .env style file (optional) and
// the environment. Environment keys are prefixed with INSTAPAY_ and use
// underscores for nesting, e.g. INSTAPAY_GATEWAY_BASE_URL.
func Load(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			// values already present in the environment win
			if err := godotenv.Load(path); err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("INSTAPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	// comma separated lists arrive from the environment as one string
	cfg.Server.AllowedOrigins = splitList(v.GetStringSlice("server.allowed_origins"))
	cfg.Kafka.Brokers = splitList(v.GetStringSlice("kafka.brokers"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the service cannot start without
func (c *Config) Validate() error {
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway base url is required")
	}
	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("gateway timeout must be positive")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive")
	}
	if c.Scheduler.Concurrency < 0 {
		return fmt.Errorf("scheduler concurrency must not be negative")
	}
	if _, err := ParseYearMap(c.Ledger.Databases); err != nil {
		return fmt.Errorf("invalid ledger databases: %w", err)
	}
	return nil
}

// ParseYearMap parses "2025=DB25,2024=DB24". Ranges like "2019-2022=DB19" are expanded.
func ParseYearMap(raw string) (map[int]string, error) {
	out := make(map[int]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, name, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("entry %q is not year=database", part)
		}
		from, to, isRange := strings.Cut(strings.TrimSpace(key), "-")
		start, err := strconv.Atoi(from)
		if err != nil {
			return nil, fmt.Errorf("entry %q: bad year: %w", part, err)
		}
		end := start
		if isRange {
			if end, err = strconv.Atoi(to); err != nil || end < start {
				return nil, fmt.Errorf("entry %q: bad year range", part)
			}
		}
		for y := start; y <= end; y++ {
			out[y] = strings.TrimSpace(name)
		}
	}
	return out, nil
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, s := range strings.Split(item, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
