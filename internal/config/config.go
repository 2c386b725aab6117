package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL        string
	Contract      string
	TelegramToken string
	ChatID        string

	FromBlock      uint64
	DedupCapacity  int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	StartupRetries int

	DispatchConcurrency int
	SendTimeout         time.Duration
	HealthInterval      time.Duration
	PollTimeout         time.Duration
	CallTimeout         time.Duration

	AuditOut string
	PGDSN    string

	LogLevel string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MONITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("dedup-capacity", 4096)
	v.SetDefault("backoff-base", time.Second)
	v.SetDefault("backoff-cap", 60*time.Second)
	v.SetDefault("startup-retries", 3)
	v.SetDefault("dispatch-concurrency", 4)
	v.SetDefault("send-timeout", 15*time.Second)
	v.SetDefault("health-interval", 5*time.Minute)
	v.SetDefault("poll-timeout", 30*time.Second)
	v.SetDefault("call-timeout", 10*time.Second)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:              v.GetString("rpc"),
		Contract:            v.GetString("contract"),
		TelegramToken:       v.GetString("telegram-token"),
		ChatID:              v.GetString("chat-id"),
		FromBlock:           v.GetUint64("from"),
		DedupCapacity:       v.GetInt("dedup-capacity"),
		BackoffBase:         v.GetDuration("backoff-base"),
		BackoffCap:          v.GetDuration("backoff-cap"),
		StartupRetries:      v.GetInt("startup-retries"),
		DispatchConcurrency: v.GetInt("dispatch-concurrency"),
		SendTimeout:         v.GetDuration("send-timeout"),
		HealthInterval:      v.GetDuration("health-interval"),
		PollTimeout:         v.GetDuration("poll-timeout"),
		CallTimeout:         v.GetDuration("call-timeout"),
		AuditOut:            v.GetString("audit-out"),
		PGDSN:               v.GetString("pg-dsn"),
		LogLevel:            v.GetString("log-level"),
	}

	return cfg, nil
}
