package config

import (
	"fmt"
	"time"

	"os"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath = "config.toml"
	DefaultHTTPAddr   = ":8080"
	DefaultPGHost     = "127.0.0.1"
	DefaultPGPort     = 5432
	DefaultPGUser     = "postgres"
	DefaultPGDatabase = "chatpipe"
	DefaultPGSSLMode  = "disable"
)

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Admin     AdminConfig     `toml:"admin"`
	Auth      AuthConfig      `toml:"auth"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Channel   ChannelConfig   `toml:"channel"`
	Responder ResponderConfig `toml:"responder"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type AdminConfig struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

type PostgresConfig struct {
	// Enabled gates the history store; when false, persistence is a no-op.
	Enabled  bool   `toml:"enabled"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

type ChannelConfig struct {
	APIBaseURL     string `toml:"api_base_url" validate:"required,url"`
	AccessToken    string `toml:"access_token" validate:"required"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type ResponderConfig struct {
	BaseURL        string `toml:"base_url" validate:"required,url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Apology        string `toml:"apology"`
}

// PipelineConfig carries the aggregation, retry, and dedup tunables.
// Durations use Go syntax ("7s", "1m30s").
type PipelineConfig struct {
	AggregationDelay   duration `toml:"aggregation_delay"`
	MaxAggregationTime duration `toml:"max_aggregation_time"`
	ImageFlushWindow   duration `toml:"image_flush_window"`
	ImageTextRecency   duration `toml:"image_text_recency"`
	ProcessingTimeout  duration `toml:"processing_timeout"`
	ProcessingRetries  int      `toml:"processing_retries"`
	ProcessingBackoff  duration `toml:"processing_backoff"`
	DeliveryRetries    int      `toml:"delivery_retries"`
	DeliveryRetryDelay duration `toml:"delivery_retry_delay"`
	MaxSegmentLength   int      `toml:"max_segment_length"`
	SplitWindow        int      `toml:"split_window"`
	SendCacheTTL       duration `toml:"send_cache_ttl"`
	DedupTTL           duration `toml:"dedup_ttl"`
	LockTTL            duration `toml:"lock_ttl"`
	SweepInterval      duration `toml:"sweep_interval"`
	BroadcastBatchSize int      `toml:"broadcast_batch_size"`
	BroadcastDelay     duration `toml:"broadcast_delay"`
}

// duration is a toml-decodable time.Duration.
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

func (d duration) Std() time.Duration {
	return time.Duration(d)
}

// Load reads the config file, applying defaults for absent fields. A
// missing file yields pure defaults.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Admin: AdminConfig{
			Username: "admin",
			Password: "change-your-password-here",
		},
		Auth: AuthConfig{
			JWTExpiresIn: "24h",
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Pipeline: PipelineConfig{
			AggregationDelay:   duration(7 * time.Second),
			MaxAggregationTime: duration(30 * time.Second),
			ImageFlushWindow:   duration(15 * time.Second),
			ImageTextRecency:   duration(30 * time.Second),
			ProcessingTimeout:  duration(60 * time.Second),
			ProcessingRetries:  3,
			ProcessingBackoff:  duration(10 * time.Second),
			DeliveryRetries:    3,
			DeliveryRetryDelay: duration(2 * time.Second),
			MaxSegmentLength:   4500,
			SplitWindow:        500,
			SendCacheTTL:       duration(time.Minute),
			DedupTTL:           duration(5 * time.Minute),
			LockTTL:            duration(30 * time.Second),
			SweepInterval:      duration(45 * time.Second),
			BroadcastBatchSize: 150,
			BroadcastDelay:     duration(time.Second),
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the fields a running server cannot do without.
func (c Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c.Channel); err != nil {
		return fmt.Errorf("channel config: %w", err)
	}
	if err := v.Struct(c.Responder); err != nil {
		return fmt.Errorf("responder config: %w", err)
	}
	return nil
}
