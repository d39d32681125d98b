package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env         string   `yaml:"env" env:"RI_ENV" env-default:"production"`
	StoragePath string   `yaml:"storage_path" env:"RI_STORAGE_PATH" env-default:"ri_tracker.db"`
	Log         Log      `yaml:"log"`
	Backend     Backend  `yaml:"backend"`
	Tracking    Tracking `yaml:"tracking"`
	Screenshot  Shot     `yaml:"screenshot"`
	Server      Server   `yaml:"server"`
	Metrics     Metrics  `yaml:"metrics"`
	Tray        Tray     `yaml:"tray"`
	Device      Device   `yaml:"device"`
}

type Log struct {
	Level  string `yaml:"level" env:"RI_LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"RI_LOG_FORMAT" env-default:"console"`
}

// Backend holds the remote endpoints. Each URL is used as-is; ids are
// appended as a path segment where the call needs one.
type Backend struct {
	LoginURL       string `yaml:"login_url" env:"RI_LOGIN_URL" env-default:"https://auth.remoteintegrity.com/api/v1/auth/login/employee"`
	ProfileURL     string `yaml:"profile_url" env:"RI_PROFILE_URL" env-default:"https://crm.remoteintegrity.com/api/v1/employee"`
	SessionsURL    string `yaml:"sessions_url" env:"RI_SESSIONS_URL" env-default:"https://tracker.remoteintegrity.com/api/v1/sessions/app"`
	DailyStatsURL  string `yaml:"daily_stats_url" env:"RI_DAILY_STATS_URL" env-default:"https://tracker.remoteintegrity.com/api/v1/stats/daily"`
	WeeklyStatsURL string `yaml:"weekly_stats_url" env:"RI_WEEKLY_STATS_URL" env-default:"https://tracker.remoteintegrity.com/api/v1/stats/weekly"`
	UploadURL      string `yaml:"upload_url" env:"RI_UPLOAD_URL"`
	UploadAPIKey   string `yaml:"upload_api_key" env:"RI_UPLOAD_API_KEY"`
	Timeout        int    `yaml:"timeout" env:"RI_BACKEND_TIMEOUT" env-default:"30"` // seconds
}

type Tracking struct {
	IdleThreshold    time.Duration `yaml:"idle_threshold" env:"RI_IDLE_THRESHOLD" env-default:"60s"`
	ActivityTick     time.Duration `yaml:"activity_tick" env-default:"1s"`
	Throttle         time.Duration `yaml:"throttle" env-default:"500ms"`
	AppPollInterval  time.Duration `yaml:"app_poll_interval" env-default:"5s"`
	LinkPollInterval time.Duration `yaml:"link_poll_interval" env-default:"30s"`
	FlushInterval    time.Duration `yaml:"flush_interval" env:"RI_FLUSH_INTERVAL" env-default:"10m"`
	StatsInterval    time.Duration `yaml:"stats_interval" env-default:"10m"`
	RetryInterval    time.Duration `yaml:"retry_interval" env-default:"1m"`
	LinkLimit        int           `yaml:"link_limit" env-default:"100"`
}

// Shot configures the random screenshot window and the cooldown applied
// after capture is found to be blocked.
type Shot struct {
	Disabled bool          `yaml:"disabled" env:"RI_SCREENSHOTS_DISABLED"`
	MinDelay time.Duration `yaml:"min_delay" env-default:"1m"`
	MaxDelay time.Duration `yaml:"max_delay" env-default:"8m"`
	Cooldown time.Duration `yaml:"cooldown" env-default:"10m"`
}

type Server struct {
	Enabled      bool `yaml:"enabled" env:"RI_SERVER_ENABLED"`
	Port         int  `yaml:"port" env:"RI_SERVER_PORT" env-default:"8765"`
	URLStoreTTL  int  `yaml:"url_store_ttl" env-default:"900"` // seconds
	URLStoreSize int  `yaml:"url_store_size" env-default:"2048"`
}

type Metrics struct {
	Enabled bool   `yaml:"enabled" env:"RI_METRICS_ENABLED" env-default:"false"`
	Addr    string `yaml:"addr" env:"RI_METRICS_ADDR" env-default:"127.0.0.1:9464"`
}

type Tray struct {
	Enabled bool `yaml:"enabled" env:"RI_TRAY_ENABLED" env-default:"false"`
}

type Device struct {
	ID   string `yaml:"id" env:"RI_DEVICE_ID"`
	Name string `yaml:"name" env:"RI_DEVICE_NAME"`
}

// LoadConfig reads path when it exists and falls back to environment
// variables and defaults otherwise.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Tracking.IdleThreshold <= 0 {
		errs = append(errs, errors.New("tracking.idle_threshold must be positive"))
	}
	if c.Tracking.ActivityTick <= 0 || c.Tracking.AppPollInterval <= 0 ||
		c.Tracking.LinkPollInterval <= 0 || c.Tracking.FlushInterval <= 0 {
		errs = append(errs, errors.New("tracking intervals must be positive"))
	}
	if c.Tracking.LinkLimit < 0 {
		errs = append(errs, errors.New("tracking.link_limit must not be negative"))
	}
	if c.Screenshot.MinDelay <= 0 || c.Screenshot.MaxDelay < c.Screenshot.MinDelay {
		errs = append(errs, fmt.Errorf("screenshot delay window [%s, %s] is invalid",
			c.Screenshot.MinDelay, c.Screenshot.MaxDelay))
	}
	if c.Backend.Timeout <= 0 {
		errs = append(errs, errors.New("backend.timeout must be positive"))
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	return errors.Join(errs...)
}

func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.Timeout) * time.Second
}
