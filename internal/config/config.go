// Package config loads service settings from an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// Config holds all configuration values for the application.
type Config struct {
	// HTTP server port
	HTTPPort int

	// How long in-flight requests get to finish on shutdown
	ShutdownTimeout time.Duration

	// debug, info, warn or error
	LogLevel string

	// Docker daemon address; empty uses DOCKER_HOST semantics of the SDK
	DockerHost string

	// Build settings
	BuildWorkDir       string
	BuildTimeout       time.Duration
	BuildMaxConcurrent int
	BuildPlatform      string

	// Package index settings
	RegistryURL           string
	RegistryTimeout       time.Duration
	RegistryConcurrency   int
	RegistryUnknownPolicy string

	// Build history database; empty keeps history in memory
	DatabaseURL string

	// OTLP gRPC collector; empty disables tracing
	OTELEndpoint    string
	// Fraction of new traces sampled, 0 to 1
	OTELSampleRatio float64

	// Per-client request rate (requests/second) and burst
	RateLimit      float64
	RateLimitBurst int

	// Bearer token required on API routes; empty disables auth
	APIToken string

	// Artifact bucket; empty endpoint disables publishing
	ArtifactsEndpoint  string
	ArtifactsBucket    string
	ArtifactsAccessKey string
	ArtifactsSecretKey string
	ArtifactsUseSSL    bool
}

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string]string{
	"http_port":               "PORT",
	"shutdown_timeout":        "SHUTDOWN_TIMEOUT",
	"log_level":               "LOG_LEVEL",
	"docker_host":             "DOCKER_HOST",
	"build.workdir":           "BUILD_WORKDIR",
	"build.timeout":           "BUILD_TIMEOUT",
	"build.max_concurrent":    "BUILD_MAX_CONCURRENT",
	"build.platform":          "BUILD_PLATFORM",
	"registry.url":            "REGISTRY_URL",
	"registry.timeout":        "REGISTRY_TIMEOUT",
	"registry.concurrency":    "REGISTRY_CONCURRENCY",
	"registry.unknown_policy": "REGISTRY_UNKNOWN_POLICY",
	"database_url":            "DATABASE_URL",
	"otel_endpoint":           "OTEL_EXPORTER_OTLP_ENDPOINT",
	"otel_sample_ratio":       "OTEL_TRACES_SAMPLER_ARG",
	"rate_limit":              "RATE_LIMIT",
	"rate_limit_burst":        "RATE_LIMIT_BURST",
	"api_token":               "API_TOKEN",
	"artifacts.endpoint":      "ARTIFACTS_ENDPOINT",
	"artifacts.bucket":        "ARTIFACTS_BUCKET",
	"artifacts.access_key":    "ARTIFACTS_ACCESS_KEY",
	"artifacts.secret_key":    "ARTIFACTS_SECRET_KEY",
	"artifacts.use_ssl":       "ARTIFACTS_USE_SSL",
}

// DefaultWorkDir is where build workspaces are created unless configured.
func DefaultWorkDir() string {
	return filepath.Join(xdg.CacheHome, "layerplane", "builds")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_port", 8000)
	v.SetDefault("shutdown_timeout", 30*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("build.workdir", DefaultWorkDir())
	v.SetDefault("build.timeout", 15*time.Minute)
	v.SetDefault("build.max_concurrent", 2)
	v.SetDefault("build.platform", "linux/amd64")
	v.SetDefault("registry.url", "https://pypi.org")
	v.SetDefault("registry.timeout", 10*time.Second)
	v.SetDefault("registry.concurrency", 4)
	v.SetDefault("registry.unknown_policy", "reject")
	v.SetDefault("otel_sample_ratio", 1.0)
	v.SetDefault("rate_limit", 1.0)
	v.SetDefault("rate_limit_burst", 5)
	v.SetDefault("artifacts.bucket", "layers")
}

// Load reads configuration from configPath (or ./layerplane.yaml when
// empty and present), then applies environment overrides.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	} else {
		v.SetConfigName("layerplane")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{
		HTTPPort:              v.GetInt("http_port"),
		ShutdownTimeout:       v.GetDuration("shutdown_timeout"),
		LogLevel:              strings.ToLower(v.GetString("log_level")),
		DockerHost:            v.GetString("docker_host"),
		BuildWorkDir:          v.GetString("build.workdir"),
		BuildTimeout:          v.GetDuration("build.timeout"),
		BuildMaxConcurrent:    v.GetInt("build.max_concurrent"),
		BuildPlatform:         v.GetString("build.platform"),
		RegistryURL:           v.GetString("registry.url"),
		RegistryTimeout:       v.GetDuration("registry.timeout"),
		RegistryConcurrency:   v.GetInt("registry.concurrency"),
		RegistryUnknownPolicy: strings.ToLower(v.GetString("registry.unknown_policy")),
		DatabaseURL:           v.GetString("database_url"),
		OTELEndpoint:          v.GetString("otel_endpoint"),
		OTELSampleRatio:       v.GetFloat64("otel_sample_ratio"),
		RateLimit:             v.GetFloat64("rate_limit"),
		RateLimitBurst:        v.GetInt("rate_limit_burst"),
		APIToken:              v.GetString("api_token"),
		ArtifactsEndpoint:     v.GetString("artifacts.endpoint"),
		ArtifactsBucket:       v.GetString("artifacts.bucket"),
		ArtifactsAccessKey:    v.GetString("artifacts.access_key"),
		ArtifactsSecretKey:    v.GetString("artifacts.secret_key"),
		ArtifactsUseSSL:       v.GetBool("artifacts.use_ssl"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port %d (env: PORT)", c.HTTPPort)
	}
	if c.BuildWorkDir == "" {
		return errors.New("build.workdir is required (env: BUILD_WORKDIR)")
	}
	if c.BuildTimeout <= 0 {
		return fmt.Errorf("invalid build.timeout %v (env: BUILD_TIMEOUT)", c.BuildTimeout)
	}
	if c.BuildMaxConcurrent < 1 {
		return fmt.Errorf("invalid build.max_concurrent %d (env: BUILD_MAX_CONCURRENT)", c.BuildMaxConcurrent)
	}
	if c.RegistryConcurrency < 1 {
		return fmt.Errorf("invalid registry.concurrency %d (env: REGISTRY_CONCURRENCY)", c.RegistryConcurrency)
	}
	switch c.RegistryUnknownPolicy {
	case "reject", "allow":
	default:
		return fmt.Errorf("invalid registry.unknown_policy %q: must be reject or allow (env: REGISTRY_UNKNOWN_POLICY)", c.RegistryUnknownPolicy)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q (env: LOG_LEVEL)", c.LogLevel)
	}
	if c.OTELSampleRatio < 0 || c.OTELSampleRatio > 1 {
		return fmt.Errorf("invalid otel_sample_ratio %v: must be between 0 and 1 (env: OTEL_TRACES_SAMPLER_ARG)", c.OTELSampleRatio)
	}
	if c.RateLimit < 0 || c.RateLimitBurst < 0 {
		return errors.New("rate_limit and rate_limit_burst must not be negative")
	}
	if c.ArtifactsEndpoint != "" && c.ArtifactsBucket == "" {
		return errors.New("artifacts.bucket is required when artifacts.endpoint is set (env: ARTIFACTS_BUCKET)")
	}
	return nil
}
