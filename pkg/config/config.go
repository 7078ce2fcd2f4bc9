package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix  = "lcp"
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App    AppConfig
	HTTP   HTTPConfig
	CRL    CRLConfig
	DB     DBConfig
	Redis  RedisConfig
	Device DeviceConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LCP_APP_ENV" default:"dev"`
	LogLevel     string `envconfig:"LCP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LCP_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type HTTPConfig struct {
	Timeout   time.Duration `envconfig:"LCP_HTTP_TIMEOUT" default:"30s"`
	UserAgent string        `envconfig:"LCP_HTTP_USER_AGENT" default:"lcp-client/1.0"`
}

type CRLConfig struct {
	URL string        `envconfig:"LCP_CRL_URL" default:"http://crl.edrlab.telesec.de/rl/EDRLab_CA.crl"`
	TTL time.Duration `envconfig:"LCP_CRL_TTL" default:"24h"`
}

type DBConfig struct {
	DSN    string `envconfig:"LCP_DB_DSN"`
	Driver string `envconfig:"LCP_DB_DRIVER" default:"sqlite"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if !strings.EqualFold(d.Driver, "sqlite") {
		return fmt.Errorf("db dsn required for driver %q", d.Driver)
	}
	d.DSN = "lcp-client.sqlite"
	return nil
}

type RedisConfig struct {
	// URL enables the process-shared CRL cache when set; the in-memory
	// cache is used otherwise.
	URL string `envconfig:"LCP_REDIS_URL"`
}

type DeviceConfig struct {
	// Name reported to the status server at registration time. Defaults
	// to the hostname when empty.
	Name string `envconfig:"LCP_DEVICE_NAME"`
}
