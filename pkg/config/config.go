package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"traingrid/pkg/constants"
)

var GlobalConfig *Config

// Config global configuration
type Config struct {
	Server    SchedulerServerConfig `yaml:"server"`
	Redis     RedisConfig           `yaml:"redis"`
	MySQL     MySQLConfig           `yaml:"mysql"`
	Queue     QueueConfig           `yaml:"queue"`
	Scheduler SchedulerConfig       `yaml:"scheduler"`
	Logger    LoggerConfig          `yaml:"logger"`
}

// SchedulerServerConfig HTTP server configuration
type SchedulerServerConfig struct {
	Port   int    `yaml:"port"`
	Mode   string `yaml:"mode"`    // debug, release
	APIKey string `yaml:"api_key"` // API key for worker authentication (optional, if empty, auth is disabled)
}

// RedisConfig Redis configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MySQLConfig MySQL configuration
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// QueueConfig webhook delivery queue configuration
type QueueConfig struct {
	Concurrency int `yaml:"concurrency"` // queue processing concurrency
	MaxRetry    int `yaml:"max_retry"`   // maximum retry count
}

// SchedulerConfig scheduler core configuration
type SchedulerConfig struct {
	Strategy         string        `yaml:"strategy"`          // round_robin, least_loaded, gpu_priority, platform_specific
	OnlineWindow     time.Duration `yaml:"online_window"`     // liveness window for selection eligibility
	EvictAfter       time.Duration `yaml:"evict_after"`       // heartbeat age that removes a worker
	SweepInterval    time.Duration `yaml:"sweep_interval"`    // background eviction sweep period
	SnapshotInterval time.Duration `yaml:"snapshot_interval"` // worker snapshot persistence period
	MasterPort       int           `yaml:"master_port"`       // rendezvous port for distributed jobs
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path string `yaml:"path"`
}

// DefaultSchedulerConfig returns the scheduler defaults applied when the
// file omits or invalidates a value.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Strategy:         constants.StrategyLeastLoaded,
		OnlineWindow:     constants.DefaultOnlineWindow,
		EvictAfter:       constants.DefaultEvictAfter,
		SweepInterval:    constants.DefaultSweepInterval,
		SnapshotInterval: 60 * time.Second,
		MasterPort:       constants.DefaultMasterPort,
	}
}

// validateAndApplyDefaults replaces invalid scheduler values with defaults.
// The eviction threshold is never allowed below the online window: a worker
// must fall out of selection before it can be evicted.
func validateAndApplyDefaults(cfg *Config) {
	defaults := DefaultSchedulerConfig()

	if cfg.Scheduler.Strategy == "" {
		cfg.Scheduler.Strategy = defaults.Strategy
	}
	if cfg.Scheduler.OnlineWindow <= 0 {
		cfg.Scheduler.OnlineWindow = defaults.OnlineWindow
	}
	if cfg.Scheduler.EvictAfter <= 0 {
		cfg.Scheduler.EvictAfter = defaults.EvictAfter
	}
	if cfg.Scheduler.EvictAfter < cfg.Scheduler.OnlineWindow {
		cfg.Scheduler.EvictAfter = cfg.Scheduler.OnlineWindow
	}
	if cfg.Scheduler.SweepInterval <= 0 {
		cfg.Scheduler.SweepInterval = defaults.SweepInterval
	}
	if cfg.Scheduler.SnapshotInterval <= 0 {
		cfg.Scheduler.SnapshotInterval = defaults.SnapshotInterval
	}
	if cfg.Scheduler.MasterPort <= 0 || cfg.Scheduler.MasterPort > 65535 {
		cfg.Scheduler.MasterPort = defaults.MasterPort
	}

	if cfg.Queue.Concurrency <= 0 {
		cfg.Queue.Concurrency = 10
	}
	if cfg.Queue.MaxRetry < 0 {
		cfg.Queue.MaxRetry = 3
	}
}

// Init initializes configuration
func Init() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return err
	}

	validateAndApplyDefaults(&cfg)
	GlobalConfig = &cfg
	return nil
}
