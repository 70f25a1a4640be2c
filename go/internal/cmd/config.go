package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/metagame/metagame/go/internal/timers"
	"gopkg.in/yaml.v3"
)

const (
	storeDriverPostgres = "postgres"
	storeDriverMemory   = "memory"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Store struct {
		Driver string `yaml:"driver"`
	} `yaml:"store"`

	Timers struct {
		InitialDuration    time.Duration `yaml:"initial_duration"`
		WritePolicy        string        `yaml:"write_policy"`
		MaxConflictRetries int           `yaml:"max_conflict_retries"`
		// Seed names timers created at startup when missing
		Seed []string `yaml:"seed"`
	} `yaml:"timers"`

	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`

	Gateway struct {
		Enabled bool `yaml:"enabled"`
		// ConsumerName is the JetStream durable this replica reads through.
		// Replicas sharing a name split the event stream between them.
		ConsumerName string `yaml:"consumer_name"`
	} `yaml:"gateway"`
}

func defaultConfig() *Config {
	var config Config
	config.Server.Port = "8080"
	config.Store.Driver = storeDriverPostgres
	config.Timers.InitialDuration = 10 * time.Hour
	config.Timers.WritePolicy = string(timers.WritePolicyLastWriteWins)
	config.Timers.MaxConflictRetries = 2
	config.Timers.Seed = []string{"metagame"}
	config.NATS.URL = "nats://localhost:4222"
	config.Gateway.ConsumerName = defaultConsumerName()
	return &config
}

// defaultConsumerName gives each host its own durable so every in-process
// gateway sees every event.
func defaultConsumerName() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "timer-gateway"
	}
	return "timer-gateway-" + hostname
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// loadConfig reads path over the defaults, then applies environment
// overrides. A missing file is not an error.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.Server.Port = getEnv("PORT", config.Server.Port)
	config.Store.Driver = strings.ToLower(getEnv("STORE_DRIVER", config.Store.Driver))
	config.Timers.InitialDuration = getEnvAsDuration("TIMER_INITIAL_DURATION", config.Timers.InitialDuration)
	config.Timers.WritePolicy = getEnv("TIMER_WRITE_POLICY", config.Timers.WritePolicy)
	config.Timers.MaxConflictRetries = getEnvAsInt("TIMER_MAX_CONFLICT_RETRIES", config.Timers.MaxConflictRetries)
	if seed := os.Getenv("TIMER_SEED"); seed != "" {
		config.Timers.Seed = strings.Split(seed, ",")
	}
	config.Timers.Seed = cleanNames(config.Timers.Seed)
	config.NATS.URL = getEnv("NATS_URL", config.NATS.URL)
	config.Gateway.Enabled = getEnvAsBool("GATEWAY_ENABLED", config.Gateway.Enabled)
	config.Gateway.ConsumerName = getEnv("GATEWAY_CONSUMER", config.Gateway.ConsumerName)

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func cleanNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case storeDriverPostgres, storeDriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Timers.InitialDuration <= 0 {
		return fmt.Errorf("initial_duration must be positive, got %s", c.Timers.InitialDuration)
	}
	if _, err := timers.ParseWritePolicy(c.Timers.WritePolicy); err != nil {
		return err
	}
	return nil
}

func (c *Config) timersConfig() timers.Config {
	policy, _ := timers.ParseWritePolicy(c.Timers.WritePolicy)
	return timers.Config{
		InitialDuration:    c.Timers.InitialDuration,
		WritePolicy:        policy,
		MaxConflictRetries: c.Timers.MaxConflictRetries,
	}
}
