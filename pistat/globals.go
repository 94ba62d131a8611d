package internal

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// DefaultConfigPath is the default path to the config file
	DefaultAppName       = "pistat"
	DefaultConfigPath    = filepath.Join(getHomeDir(), ".config", DefaultAppName)
	DefaultDataDir       = filepath.Join(DefaultConfigPath, "data")
	DefaultArchivePath   = filepath.Join(DefaultDataDir, "archive.db")
	DefaultLedgerPath    = filepath.Join(DefaultDataDir, "ledger")
	DefaultLogFile       = "" // stderr only
	DefaultLogLevel      = "info"
	DefaultBackend       = "memory"
	DefaultSession       = "default"
	DefaultListenAddr    = "127.0.0.1:7420"
	DefaultQueueSize     = 64
	DefaultSendTimeout   = 10 // seconds
	DefaultMetricsPrefix = "pistat"
)

func getHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current working directory if home directory is unavailable
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			log.Printf("Unable to get home or working directory, using /tmp: %v", err)
			return "/tmp"
		}
		log.Printf("Unable to get home directory, using current working directory: %v", err)
		return cwd
	}
	return homeDir
}

// GetLogger returns a properly configured zerolog logger instance
func GetLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// LogConfig selects the level and optional rotating file of a logger.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"maxSizeMB"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAgeDays"`
	Compress   bool   `mapstructure:"compress"`
}

// NewLogger builds a logger writing JSON to stderr and, when cfg.File is set,
// to a size-rotated file as well. An unknown level falls back to info.
func NewLogger(cfg LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			log.Printf("Unable to create log directory, logging to stderr only: %v", err)
		} else {
			out = zerolog.MultiLevelWriter(os.Stderr, &lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAgeDays,
				Compress:   cfg.Compress,
			})
		}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
