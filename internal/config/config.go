// Package config provides configuration management for reactiveviews using
// Viper for loading from files, environment variables, and command-line flags.
//
// The configuration system supports YAML files, environment variable overrides
// with the REACTIVE_VIEWS_ prefix, and validation. It covers the rendering
// backend connection, the supervised SSR process, component search paths, the
// render cache, and development-only diagnostics.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/elisoncampos/reactive-views-sub000/internal/errors"
)

// EnvPrefix is the prefix for every environment override.
const EnvPrefix = "REACTIVE_VIEWS"

// Environment variables read directly, outside the SECTION_OPTION pattern.
const (
	EnvEnvironment = "REACTIVE_VIEWS_ENV"
	EnvSSRPort     = "REACTIVE_VIEWS_SSR_PORT"
	EnvWorkingDir  = "REACTIVE_VIEWS_SSR_WORKING_DIR"
	EnvConfigFile  = "REACTIVE_VIEWS_CONFIG_FILE"
)

type Config struct {
	Environment string            `mapstructure:"environment" yaml:"environment"`
	Renderer    RendererConfig    `mapstructure:"renderer" yaml:"renderer"`
	SSR         SSRConfig         `mapstructure:"ssr" yaml:"ssr"`
	Components  ComponentsConfig  `mapstructure:"components" yaml:"components"`
	Cache       CacheConfig       `mapstructure:"cache" yaml:"cache"`
	Tree        TreeConfig        `mapstructure:"tree" yaml:"tree"`
	Development DevelopmentConfig `mapstructure:"development" yaml:"development"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
}

// RendererConfig describes how to reach the rendering backend. An empty URL
// means the backend is supervised locally.
type RendererConfig struct {
	URL            string        `mapstructure:"url" yaml:"url"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	BatchTimeout   time.Duration `mapstructure:"batch_timeout" yaml:"batch_timeout"`
	BatchEnabled   bool          `mapstructure:"batch_enabled" yaml:"batch_enabled"`
	TreeEnabled    bool          `mapstructure:"tree_enabled" yaml:"tree_enabled"`
}

type SSRConfig struct {
	Port           int           `mapstructure:"port" yaml:"port"`
	Runtime        string        `mapstructure:"runtime" yaml:"runtime"`
	Script         string        `mapstructure:"script" yaml:"script"`
	WorkingDir     string        `mapstructure:"working_dir" yaml:"working_dir"`
	LogFile        string        `mapstructure:"log_file" yaml:"log_file"`
	StateFile      string        `mapstructure:"state_file" yaml:"state_file"`
	HealthTimeout  time.Duration `mapstructure:"health_timeout" yaml:"health_timeout"`
	HealthInterval time.Duration `mapstructure:"health_interval" yaml:"health_interval"`
	StopTimeout    time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
}

type ComponentsConfig struct {
	SearchPaths []string `mapstructure:"search_paths" yaml:"search_paths"`
	Extensions  []string `mapstructure:"extensions" yaml:"extensions"`
	Watch       bool     `mapstructure:"watch" yaml:"watch"`
}

type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
	TTL        time.Duration `mapstructure:"ttl" yaml:"ttl"`
	MaxEntries int           `mapstructure:"max_entries" yaml:"max_entries"`
}

type TreeConfig struct {
	MaxDepth int `mapstructure:"max_depth" yaml:"max_depth"`
}

type DevelopmentConfig struct {
	DetailedErrors bool `mapstructure:"detailed_errors" yaml:"detailed_errors"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Dir    string `mapstructure:"dir" yaml:"dir"`
}

// IsDevelopment reports whether the configured environment is development.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// SetDefaults registers default values on the global viper instance. Every key
// needs a default so AutomaticEnv overrides reach Unmarshal.
func SetDefaults() {
	viper.SetDefault("environment", "production")
	_ = viper.BindEnv("environment", EnvEnvironment, EnvPrefix+"_ENVIRONMENT")

	viper.SetDefault("renderer.url", "")
	viper.SetDefault("renderer.connect_timeout", 2*time.Second)
	viper.SetDefault("renderer.read_timeout", 5*time.Second)
	viper.SetDefault("renderer.batch_timeout", 15*time.Second)
	viper.SetDefault("renderer.batch_enabled", true)
	viper.SetDefault("renderer.tree_enabled", true)

	viper.SetDefault("ssr.port", 0)
	viper.SetDefault("ssr.runtime", "node")
	viper.SetDefault("ssr.script", "ssr/server.mjs")
	viper.SetDefault("ssr.working_dir", ".")
	viper.SetDefault("ssr.log_file", "tmp/reactive-views-ssr.log")
	viper.SetDefault("ssr.state_file", "tmp/reactive-views-ssr.json")
	viper.SetDefault("ssr.health_timeout", 10*time.Second)
	viper.SetDefault("ssr.health_interval", 100*time.Millisecond)
	viper.SetDefault("ssr.stop_timeout", 5*time.Second)

	viper.SetDefault("components.search_paths", []string{"app/views/components", "app/javascript/components"})
	viper.SetDefault("components.extensions", []string{".tsx", ".jsx", ".ts", ".js"})
	viper.SetDefault("components.watch", false)

	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.ttl", 5*time.Minute)
	viper.SetDefault("cache.max_entries", 10000)

	viper.SetDefault("tree.max_depth", 3)

	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 8700)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.dir", "")
}

func Load() (*Config, error) {
	SetDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "decoding configuration")
	}

	// Slices from env vars arrive as one space-separated string.
	if paths := viper.GetStringSlice("components.search_paths"); len(paths) > 0 {
		config.Components.SearchPaths = paths
	}
	if exts := viper.GetStringSlice("components.extensions"); len(exts) > 0 {
		config.Components.Extensions = exts
	}

	// Detailed errors follow the environment unless set explicitly.
	if viper.IsSet("development.detailed_errors") {
		config.Development.DetailedErrors = viper.GetBool("development.detailed_errors")
	} else {
		config.Development.DetailedErrors = config.IsDevelopment()
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
