package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Security  SecurityConfig  `mapstructure:"security"`
	Presence  PresenceConfig  `mapstructure:"presence"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Debug           bool          `mapstructure:"debug"`
	BaseURL         string        `mapstructure:"base_url"` // every API route is mounted below this prefix
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Mode        string        `mapstructure:"mode"` // sqlite | mysql | postgres
	SQLitePath  string        `mapstructure:"sqlite_path"`
	MySQLDSN    string        `mapstructure:"mysql_dsn"`
	PostgresDSN string        `mapstructure:"postgres_dsn"`
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLife     time.Duration `mapstructure:"max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
}

type SecurityConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTTTL    time.Duration `mapstructure:"jwt_ttl"`
	// PublicPaths are matched exactly against the request path after
	// prefixing each entry with Server.BaseURL.
	PublicPaths []string `mapstructure:"public_paths"`
	// AllowedOrigins lists CORS origins; "*" allows any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type PresenceConfig struct {
	TouchInterval time.Duration `mapstructure:"touch_interval"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type AuditConfig struct {
	Retention     time.Duration `mapstructure:"retention"`
	PurgeInterval time.Duration `mapstructure:"purge_interval"`
}

type MetricsConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Path       string   `mapstructure:"path"`
	AllowedIPs []string `mapstructure:"allowed_ips"`
}

type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// Load reads config from the given YAML file path. A missing file is not an
// error: defaults plus environment variables are enough to boot.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("SOCIAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The three variables the deployment contract names are read unprefixed.
	_ = v.BindEnv("security.jwt_secret", "JWT_SECRET", "SOCIAL_SECURITY_JWT_SECRET")
	_ = v.BindEnv("server.base_url", "BASE_URL", "SOCIAL_SERVER_BASE_URL")
	_ = v.BindEnv("server.port", "PORT", "SOCIAL_SERVER_PORT")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	cfg.Server.BaseURL = NormalizeBaseURL(cfg.Server.BaseURL)
	if !v.IsSet("server.base_url") {
		cfg.Server.BaseURL = unsetBaseURL
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/social.db")
	v.SetDefault("database.max_open", 50)
	v.SetDefault("database.max_idle", 10)
	v.SetDefault("database.max_life", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("security.jwt_ttl", "168h")
	v.SetDefault("security.public_paths", []string{"/auth/login", "/auth/register", "/health"})
	v.SetDefault("security.allowed_origins", []string{"http://localhost:5173", "http://localhost:3000"})
	v.SetDefault("presence.touch_interval", "1m")
	v.SetDefault("presence.idle_timeout", "30m")
	v.SetDefault("presence.sweep_interval", "5m")
	v.SetDefault("audit.retention", "720h")
	v.SetDefault("audit.purge_interval", "24h")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "social-server")
	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("telemetry.sample_rate", 1.0)
}

// unsetBaseURL marks a base URL that was never configured, so Validate can
// tell it apart from an explicit root mount.
const unsetBaseURL = "\x00unset"

// NormalizeBaseURL trims trailing slashes and guarantees a leading one.
// "/" and "" both mean the API is mounted at the root.
func NormalizeBaseURL(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimRight(s, "/")
	if s == "" {
		return ""
	}
	if !strings.HasPrefix(s, "/") {
		s = "/" + s
	}
	return s
}

// Validate reports the first missing required setting.
func (c *Config) Validate() error {
	if c.Security.JWTSecret == "" {
		return errors.New("config: JWT_SECRET is required")
	}
	if c.Server.BaseURL == unsetBaseURL {
		return errors.New("config: BASE_URL is required (use \"/\" to mount at the root)")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	}
	if c.Security.JWTTTL <= 0 {
		return fmt.Errorf("config: invalid jwt_ttl %s", c.Security.JWTTTL)
	}
	return nil
}
