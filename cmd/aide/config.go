package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type (
	// Config is the YAML configuration for the assistant. Values of the form
	// ${NAME} are expanded from the environment before parsing, so secrets
	// never need to live in the file itself.
	Config struct {
		Oracle    OracleConfig    `yaml:"oracle"`
		Budgets   BudgetsConfig   `yaml:"budgets"`
		Store     StoreConfig     `yaml:"store"`
		Trace     TraceConfig     `yaml:"trace"`
		Providers ProvidersConfig `yaml:"providers"`
		// Scopes lists the authorization scopes granted to every session.
		Scopes []string `yaml:"scopes"`
		// DispatchTimeout bounds each adapter invocation.
		DispatchTimeout duration `yaml:"dispatch_timeout"`
	}

	// OracleConfig selects and configures the reasoning backend.
	OracleConfig struct {
		// Provider is "openai" or "anthropic".
		Provider string `yaml:"provider"`
		Model    string `yaml:"model"`
		APIKey   string `yaml:"api_key"`
		// SystemPrompt overrides the provider package default when set.
		SystemPrompt string          `yaml:"system_prompt"`
		RateLimit    RateLimitConfig `yaml:"rate_limit"`
	}

	// RateLimitConfig configures the adaptive tokens-per-minute limiter.
	// A zero InitialTPM disables the limiter.
	RateLimitConfig struct {
		InitialTPM float64 `yaml:"initial_tpm"`
		MaxTPM     float64 `yaml:"max_tpm"`
	}

	// BudgetsConfig carries the per-session loop ceilings. Zero values fall
	// back to the runtime defaults.
	BudgetsConfig struct {
		MaxIterations int      `yaml:"max_iterations"`
		MaxDuration   duration `yaml:"max_duration"`
		OracleTimeout duration `yaml:"oracle_timeout"`
	}

	// StoreConfig selects the session store backend.
	StoreConfig struct {
		// Backend is "memory" or "mongo". Defaults to "memory".
		Backend string      `yaml:"backend"`
		Mongo   MongoConfig `yaml:"mongo"`
	}

	// MongoConfig configures the MongoDB session store.
	MongoConfig struct {
		URI        string   `yaml:"uri"`
		Database   string   `yaml:"database"`
		Collection string   `yaml:"collection"`
		Timeout    duration `yaml:"timeout"`
	}

	// TraceConfig configures optional trace sinks.
	TraceConfig struct {
		Redis RedisConfig `yaml:"redis"`
	}

	// RedisConfig configures the Redis stream trace sink. An empty Addr
	// disables the sink.
	RedisConfig struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Stream   string `yaml:"stream"`
		MaxLen   int64  `yaml:"max_len"`
	}

	// ProvidersConfig configures the capability backends. Families without a
	// base URL are left unwired and their tools are not registered.
	ProvidersConfig struct {
		Calendar ProviderConfig `yaml:"calendar"`
		Tasks    ProviderConfig `yaml:"tasks"`
		RepoHost RepoHostConfig `yaml:"repohost"`
	}

	// ProviderConfig is the HTTP endpoint configuration shared by capability
	// backends.
	ProviderConfig struct {
		BaseURL string `yaml:"base_url"`
		Token   string `yaml:"token"`
	}

	// RepoHostConfig extends ProviderConfig with the login the assigned-work
	// queries run for.
	RepoHostConfig struct {
		BaseURL string `yaml:"base_url"`
		Token   string `yaml:"token"`
		User    string `yaml:"user"`
	}

	// duration parses YAML strings like "30s" or "2m".
	duration time.Duration
)

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = duration(v)
	return nil
}

// std converts to time.Duration.
func (d duration) std() time.Duration {
	return time.Duration(d)
}

// LoadConfig reads, expands, and validates the YAML configuration file.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))
	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports configuration errors that would otherwise surface as
// confusing failures deep in the wiring.
func (c Config) Validate() error {
	switch c.Oracle.Provider {
	case "openai", "anthropic":
	case "":
		return errors.New("oracle.provider is required")
	default:
		return fmt.Errorf("unknown oracle provider %q", c.Oracle.Provider)
	}
	if c.Oracle.APIKey == "" {
		return errors.New("oracle.api_key is required")
	}
	switch c.Store.Backend {
	case "", "memory":
	case "mongo":
		if c.Store.Mongo.URI == "" {
			return errors.New("store.mongo.uri is required for the mongo backend")
		}
		if c.Store.Mongo.Database == "" {
			return errors.New("store.mongo.database is required for the mongo backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Providers.Calendar.BaseURL == "" &&
		c.Providers.Tasks.BaseURL == "" &&
		c.Providers.RepoHost.BaseURL == "" {
		return errors.New("at least one capability provider must be configured")
	}
	if c.Providers.RepoHost.BaseURL != "" && c.Providers.RepoHost.User == "" {
		return errors.New("providers.repohost.user is required")
	}
	return nil
}
