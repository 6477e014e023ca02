package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"OraclePull/internal/domain/models"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		RateLimit       float64       `yaml:"rate_limit" default:"5"` // requests/s per client on live endpoints
		RateBurst       int           `yaml:"rate_burst" default:"10"`
		CORS            bool          `yaml:"cors" default:"true"`
	} `yaml:"server"`
	WS struct {
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		SendBuffer     int           `yaml:"send_buffer" default:"64"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"ws"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Log struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
		// Aggregated error logs go to kafka.log_topic when enabled.
		Collect       bool          `yaml:"collect"`
		FlushInterval time.Duration `yaml:"flush_interval" default:"30s"`
	} `yaml:"log"`
	Oracle struct {
		Profile         string        `yaml:"profile" default:"mainnet"`
		RPCURL          string        `yaml:"rpc_url"`
		TestnetRPCURL   string        `yaml:"testnet_rpc_url"`
		BatchSize       int           `yaml:"batch_size"`
		StrideStep      int64         `yaml:"stride_step"`
		MaxFailedWaves  int           `yaml:"max_failed_waves"`
		MaxScanDistance int64         `yaml:"max_scan_distance"`
		CallTimeout     time.Duration `yaml:"call_timeout"`
		RetryFailedOnly bool          `yaml:"retry_failed_only"`
		PoolSize        int           `yaml:"pool_size" default:"64"`
	} `yaml:"oracle"`
	Networks struct {
		Default string          `yaml:"default" default:"BSC"`
		List    []NetworkConfig `yaml:"list"`
	} `yaml:"networks"`
	Backend struct {
		Type       string `yaml:"type" default:"clickhouse"`
		BatchSize  int    `yaml:"batch_size" default:"2000"` // rows per INSERT
		BufferSize int    `yaml:"buffer_size" default:"64"`
	} `yaml:"backend"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"oracle.prices"`
		LogTopic     string   `yaml:"log_topic" default:"oracle.logs"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"500"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"oraclepull-sink"`
			Workers    int           `yaml:"workers" default:"4"`
			RetryMax   int           `yaml:"retry_max" default:"5"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"10s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"oracle.prices.dlq"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"oracle"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled      bool          `yaml:"enabled"`
		Addr         string        `yaml:"addr" default:"localhost:6379"`
		Password     string        `yaml:"password"`
		DB           int           `yaml:"db"`
		KeyPrefix    string        `yaml:"key_prefix" default:"oraclepull:"`
		PoolSize     int           `yaml:"pool_size" default:"10"`
		MinIdleConns int           `yaml:"min_idle_conns" default:"2"`
		PoolTimeout  time.Duration `yaml:"pool_timeout" default:"30s"`
	} `yaml:"redis"`
	Cache struct {
		TTL             time.Duration `yaml:"ttl" default:"60s"`
		MaxKeys         int           `yaml:"max_keys" default:"100"`
		CleanupInterval time.Duration `yaml:"cleanup_interval" default:"5m"`
	} `yaml:"cache"`
	Refresh struct {
		Enabled       bool          `yaml:"enabled" default:"true"`
		Network       string        `yaml:"network"`
		Assets        []string      `yaml:"assets"`
		Schedule      string        `yaml:"schedule" default:"@every 1m"`
		Lookback      time.Duration `yaml:"lookback" default:"15m"`
		InitialLag    time.Duration `yaml:"initial_lag" default:"5m"`
		Backfill      bool          `yaml:"backfill" default:"true"`
		BackfillStep  time.Duration `yaml:"backfill_step" default:"24h"`
		MaxIterations int           `yaml:"max_iterations" default:"100"`
		FailurePause  time.Duration `yaml:"failure_pause" default:"500ms"`
		MaxFailures   int           `yaml:"max_failures" default:"10"`
		BaseRetry     time.Duration `yaml:"base_retry" default:"10s"`
		LockTTL       time.Duration `yaml:"lock_ttl" default:"55s"`
	} `yaml:"refresh"`
	Queue struct {
		Enabled    bool          `yaml:"enabled"`
		Name       string        `yaml:"name" default:"backfill"`
		Workers    int           `yaml:"workers" default:"2"`
		MaxRetries int           `yaml:"max_retries" default:"3"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"30s"`
	} `yaml:"queue"`
}

// NetworkConfig is one address book entry.
type NetworkConfig struct {
	Name    string                 `yaml:"name"`
	ChainID uint32                 `yaml:"chain_id"`
	RPCURL  string                 `yaml:"rpc_url"`
	Feeds   map[string]AssetConfig `yaml:"feeds"`
}

type AssetConfig struct {
	Feed     string `yaml:"feed"`
	Token    string `yaml:"token"`
	Decimals int32  `yaml:"decimals" default:"8"`
}

// Load reads a YAML file, fills defaults and validates.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv is Load with environment overrides applied before validation.
func LoadWithEnv(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func read(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	// defaults first so explicit zero values in the file win
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for i := range c.Networks.List {
		for name, a := range c.Networks.List[i].Feeds {
			if err := defaults.Set(&a); err != nil {
				return nil, fmt.Errorf("config defaults: %w", err)
			}
			c.Networks.List[i].Feeds[name] = a
		}
	}
	return &c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("ENABLE_MAINNET"); v != "" {
		if v == "true" {
			c.Oracle.Profile = models.ProfileMainnet
		} else {
			c.Oracle.Profile = models.ProfileTestnet
			if c.Oracle.TestnetRPCURL != "" {
				c.Oracle.RPCURL = c.Oracle.TestnetRPCURL
			}
		}
	}
	if v := getenv("ORACLE_PROFILE"); v != "" {
		c.Oracle.Profile = v
	}
	if v := getenv("ORACLE_RPC_URL"); v != "" {
		c.Oracle.RPCURL = v
	}
	if v := getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := getenv("DISABLE_PRICES"); v == "true" {
		c.Refresh.Enabled = false
	}
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Backend.Type != "kafka" && c.Backend.Type != "clickhouse" {
		return fmt.Errorf("backend.type must be 'kafka' or 'clickhouse', got '%s'", c.Backend.Type)
	}
	if c.Backend.Type == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required for the kafka backend")
	}
	if len(c.Networks.List) == 0 {
		return fmt.Errorf("networks.list cannot be empty")
	}
	if _, err := c.ResolverConfig(); err != nil {
		return err
	}
	if c.Refresh.Enabled && len(c.Refresh.Assets) == 0 {
		return fmt.Errorf("refresh.assets cannot be empty when refresh is enabled")
	}
	if c.Queue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("queue requires redis.enabled")
	}
	return nil
}

// ResolverConfig starts from the oracle profile and applies explicit overrides.
func (c *Config) ResolverConfig() (models.ResolverConfig, error) {
	rc, err := models.ResolverProfile(c.Oracle.Profile)
	if err != nil {
		return models.ResolverConfig{}, fmt.Errorf("oracle.profile: %w", err)
	}
	if c.Oracle.BatchSize > 0 {
		rc.BatchSize = c.Oracle.BatchSize
	}
	if c.Oracle.StrideStep > 0 {
		rc.StrideStep = c.Oracle.StrideStep
	}
	if c.Oracle.MaxFailedWaves > 0 {
		rc.MaxFailedWaves = c.Oracle.MaxFailedWaves
	}
	if c.Oracle.MaxScanDistance > 0 {
		rc.MaxScanDistance = c.Oracle.MaxScanDistance
	}
	if c.Oracle.CallTimeout > 0 {
		rc.CallTimeout = c.Oracle.CallTimeout
	}
	rc.RetryFailedOnly = c.Oracle.RetryFailedOnly
	if err := rc.Validate(); err != nil {
		return models.ResolverConfig{}, fmt.Errorf("oracle: %w", err)
	}
	return rc, nil
}
