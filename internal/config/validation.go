package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/elisoncampos/reactive-views-sub000/internal/errors"
)

// validateConfig validates configuration values for correctness
func validateConfig(config *Config) error {
	if err := validateRendererConfig(&config.Renderer); err != nil {
		return fmt.Errorf("renderer config: %w", err)
	}

	if err := validateSSRConfig(&config.SSR); err != nil {
		return fmt.Errorf("ssr config: %w", err)
	}

	if err := validateComponentsConfig(&config.Components); err != nil {
		return fmt.Errorf("components config: %w", err)
	}

	if config.Cache.TTL < 0 {
		return fmt.Errorf("cache config: %w", invalid("cache.ttl", "must not be negative"))
	}
	if config.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache config: %w", invalid("cache.max_entries", "must not be negative"))
	}

	if config.Tree.MaxDepth < 1 {
		return fmt.Errorf("tree config: %w", invalid("tree.max_depth", "must be at least 1"))
	}

	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	switch config.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log config: %w", invalid("log.format", "must be text or json"))
	}

	return nil
}

func invalid(field, message string) *errors.ViewError {
	return errors.NewConfigError(errors.ErrCodeConfigInvalid, field+" "+message).
		WithContext("field", field)
}

func validateRendererConfig(config *RendererConfig) error {
	if config.URL != "" {
		u, err := url.Parse(config.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("renderer.url", fmt.Sprintf("must be an absolute http(s) URL, got %q", config.URL))
		}
	}

	if config.ConnectTimeout <= 0 {
		return invalid("renderer.connect_timeout", "must be positive")
	}
	if config.ReadTimeout <= 0 {
		return invalid("renderer.read_timeout", "must be positive")
	}
	if config.BatchTimeout < config.ReadTimeout {
		return invalid("renderer.batch_timeout", "must not be shorter than renderer.read_timeout")
	}

	return nil
}

func validateSSRConfig(config *SSRConfig) error {
	if config.Port < 0 || config.Port > 65535 {
		return invalid("ssr.port", fmt.Sprintf("%d is not in valid range 0-65535", config.Port))
	}
	if strings.TrimSpace(config.Runtime) == "" {
		return invalid("ssr.runtime", "must not be empty")
	}
	if strings.TrimSpace(config.Script) == "" {
		return invalid("ssr.script", "must not be empty")
	}
	if config.HealthTimeout <= 0 {
		return invalid("ssr.health_timeout", "must be positive")
	}
	if config.HealthInterval <= 0 || config.HealthInterval >= config.HealthTimeout {
		return invalid("ssr.health_interval", "must be positive and shorter than ssr.health_timeout")
	}
	if config.StopTimeout <= 0 {
		return invalid("ssr.stop_timeout", "must be positive")
	}

	return nil
}

func validateComponentsConfig(config *ComponentsConfig) error {
	if len(config.SearchPaths) == 0 {
		return invalid("components.search_paths", "must list at least one directory")
	}
	for _, path := range config.SearchPaths {
		if err := validatePath(path); err != nil {
			return fmt.Errorf("invalid search path '%s': %w", path, err)
		}
	}

	if len(config.Extensions) == 0 {
		return invalid("components.extensions", "must list at least one extension")
	}
	for _, ext := range config.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return invalid("components.extensions", fmt.Sprintf("%q must start with a dot", ext))
		}
	}

	return nil
}

func validateServerConfig(config *ServerConfig) error {
	if config.Port < 0 || config.Port > 65535 {
		return invalid("server.port", fmt.Sprintf("%d is not in valid range 0-65535", config.Port))
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(config.Host, char) {
			return invalid("server.host", "contains dangerous character: "+char)
		}
	}

	return nil
}

// validatePath validates a search path
func validatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	dangerousChars := []string{";", "&", "|", "$", "`", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
