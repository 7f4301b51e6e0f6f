package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"taskflow/internal/timeline"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "TASKFLOW"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Repository RepositoryConfig `mapstructure:"repository"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Timeline   TimelineConfig   `mapstructure:"timeline"`
	Events     EventsConfig     `mapstructure:"events"`
	Worker     WorkerConfig     `mapstructure:"worker"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	// RateLimit is requests per minute per client IP; 0 disables it.
	RateLimit   int      `mapstructure:"rate_limit"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MinConnections int           `mapstructure:"min_connections"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	Migrate        bool          `mapstructure:"migrate"`
}

type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

type RepositoryConfig struct {
	Type string `mapstructure:"type"` // "postgres" or "inmemory"
}

type AuthConfig struct {
	Provider  string        `mapstructure:"provider"` // "local" or "remote"
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	// SiteURL is the public origin used to build email callback links.
	SiteURL      string        `mapstructure:"site_url"`
	CookieSecure bool          `mapstructure:"cookie_secure"`
	AutoConfirm  bool          `mapstructure:"auto_confirm"`
	BaseURL      string        `mapstructure:"base_url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	APIKey       string        `mapstructure:"api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type TimelineConfig struct {
	NoDueDate string `mapstructure:"no_due_date"`
	Inverted  string `mapstructure:"inverted"`
	MaxRows   int    `mapstructure:"max_rows"`
}

type EventsConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type WorkerConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.request_timeout", 5*time.Second)
	v.SetDefault("server.rate_limit", 120)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_connections", 2)
	v.SetDefault("database.idle_timeout", 5*time.Minute)
	v.SetDefault("database.migrate", true)

	v.SetDefault("logging.development", false)

	v.SetDefault("repository.type", "inmemory")

	v.SetDefault("auth.provider", "local")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("auth.site_url", "http://localhost:8080")
	v.SetDefault("auth.cookie_secure", false)
	v.SetDefault("auth.auto_confirm", false)
	v.SetDefault("auth.base_url", "")
	v.SetDefault("auth.client_id", "")
	v.SetDefault("auth.client_secret", "")
	v.SetDefault("auth.api_key", "")
	v.SetDefault("auth.timeout", 10*time.Second)

	v.SetDefault("timeline.no_due_date", timeline.SpanSameDay.String())
	v.SetDefault("timeline.inverted", timeline.InvertedDrop.String())
	v.SetDefault("timeline.max_rows", 0)

	v.SetDefault("events.enabled", false)
	v.SetDefault("events.nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("events.subject_prefix", "taskflow")

	v.SetDefault("worker.enabled", true)
	v.SetDefault("worker.interval", 5*time.Minute)
	v.SetDefault("worker.batch_size", 100)
}

// Load reads .env (when present), then the YAML file at path, then
// TASKFLOW_* environment overrides such as TASKFLOW_SERVER_PORT. An empty
// path falls back to $TASKFLOW_CONFIG and then to ./config.yml if it exists.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat("config.yml"); err == nil {
			path = "config.yml"
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if port, err := strconv.Atoi(c.Server.Port); err != nil || port <= 0 || port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %q is not a valid port", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, errors.New("server.rate_limit must not be negative"))
	}

	switch c.Repository.Type {
	case "inmemory":
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for the postgres repository"))
		}
	default:
		errs = append(errs, fmt.Errorf("repository.type %q: want postgres or inmemory", c.Repository.Type))
	}

	switch c.Auth.Provider {
	case "local":
	case "remote":
		if c.Auth.BaseURL == "" {
			errs = append(errs, errors.New("auth.base_url is required for the remote provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.provider %q: want local or remote", c.Auth.Provider))
	}
	if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 32 characters"))
	}

	if _, err := c.TimelinePolicy(); err != nil {
		errs = append(errs, err)
	}

	if c.Events.Enabled && c.Events.NATSURL == "" {
		errs = append(errs, errors.New("events.nats_url is required when events are enabled"))
	}

	return errors.Join(errs...)
}

func (c *Config) TimelinePolicy() (timeline.Policy, error) {
	span, err := timeline.ParseSpanPolicy(c.Timeline.NoDueDate)
	if err != nil {
		return timeline.Policy{}, fmt.Errorf("timeline.no_due_date: %w", err)
	}
	inverted, err := timeline.ParseInvertedPolicy(c.Timeline.Inverted)
	if err != nil {
		return timeline.Policy{}, fmt.Errorf("timeline.inverted: %w", err)
	}
	p := timeline.Policy{NoDueDate: span, Inverted: inverted, MaxRows: c.Timeline.MaxRows}
	if err := p.Validate(); err != nil {
		return timeline.Policy{}, fmt.Errorf("timeline: %w", err)
	}
	return p, nil
}

func (c *Config) GetServerAddr() string {
	return net.JoinHostPort(c.Server.Host, c.Server.Port)
}

// CallbackURL joins the public site origin with a callback path.
func (c *Config) CallbackURL(path string) string {
	return strings.TrimRight(c.Auth.SiteURL, "/") + path
}
