package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/pistat/pistat"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	// Session names the solve whose statistics are shared.
	Session string `mapstructure:"session"`
	// Worker is this process's name in envelopes it produces.
	Worker string `mapstructure:"worker"`
	// Backend selects the solver backend.
	Backend string `mapstructure:"backend"`

	Logging   internal.LogConfig `mapstructure:"logging"`
	Transport TransportConfig    `mapstructure:"transport"`
	Archive   ArchiveConfig      `mapstructure:"archive"`
	Ledger    LedgerConfig       `mapstructure:"ledger"`
	Metrics   MetricsConfig      `mapstructure:"metrics"`
}

// TransportConfig stores websocket transport settings.
type TransportConfig struct {
	ListenAddr         string   `mapstructure:"listenAddr"`
	AdvertiseURL       string   `mapstructure:"advertiseURL"`
	Peers              []string `mapstructure:"peers"`
	SendTimeoutSeconds int      `mapstructure:"sendTimeoutSeconds"`
	QueueSize          int      `mapstructure:"queueSize"`
	MaxMessageBytes    int64    `mapstructure:"maxMessageBytes"`
	// Parallelism caps concurrent sends of one broadcast.
	Parallelism int `mapstructure:"parallelism"`
}

// SendTimeout returns the configured timeout as a duration.
func (t TransportConfig) SendTimeout() time.Duration {
	return time.Duration(t.SendTimeoutSeconds) * time.Second
}

// ArchiveConfig stores the record archive location. An empty DSN keeps the
// archive in memory.
type ArchiveConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LedgerConfig stores applied-transfer ledger settings.
type LedgerConfig struct {
	Path       string `mapstructure:"path"`
	InMemory   bool   `mapstructure:"inMemory"`
	SyncWrites bool   `mapstructure:"syncWrites"`
}

// MetricsConfig stores Prometheus exposition settings.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
// Environment variables use the PISTAT_ prefix with dots replaced by
// underscores, e.g. PISTAT_LOGGING_LEVEL.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("..")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(strings.ToUpper(internal.DefaultAppName))
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults and environment apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	AppConfig = cfg
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("session", internal.DefaultSession)
	v.SetDefault("worker", defaultWorker())
	v.SetDefault("backend", internal.DefaultBackend)

	v.SetDefault("logging.level", internal.DefaultLogLevel)
	v.SetDefault("logging.file", internal.DefaultLogFile)
	v.SetDefault("logging.maxSizeMB", 50)
	v.SetDefault("logging.maxBackups", 3)
	v.SetDefault("logging.maxAgeDays", 14)
	v.SetDefault("logging.compress", false)

	v.SetDefault("transport.listenAddr", internal.DefaultListenAddr)
	v.SetDefault("transport.advertiseURL", "")
	v.SetDefault("transport.peers", []string{})
	v.SetDefault("transport.sendTimeoutSeconds", internal.DefaultSendTimeout)
	v.SetDefault("transport.queueSize", internal.DefaultQueueSize)
	v.SetDefault("transport.maxMessageBytes", 64<<20)
	v.SetDefault("transport.parallelism", 8)

	v.SetDefault("archive.dsn", internal.DefaultArchivePath)

	v.SetDefault("ledger.path", internal.DefaultLedgerPath)
	v.SetDefault("ledger.inMemory", false)
	v.SetDefault("ledger.syncWrites", true)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.namespace", internal.DefaultMetricsPrefix)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch {
	case c.Session == "":
		return fmt.Errorf("session must not be empty")
	case c.Worker == "":
		return fmt.Errorf("worker must not be empty")
	case c.Transport.SendTimeoutSeconds <= 0:
		return fmt.Errorf("transport.sendTimeoutSeconds must be positive: %d", c.Transport.SendTimeoutSeconds)
	case c.Transport.QueueSize <= 0:
		return fmt.Errorf("transport.queueSize must be positive: %d", c.Transport.QueueSize)
	case c.Transport.Parallelism <= 0:
		return fmt.Errorf("transport.parallelism must be positive: %d", c.Transport.Parallelism)
	case !c.Ledger.InMemory && c.Ledger.Path == "":
		return fmt.Errorf("ledger.path is required unless ledger.inMemory is set")
	}
	return nil
}

func defaultWorker() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return internal.DefaultAppName
}
