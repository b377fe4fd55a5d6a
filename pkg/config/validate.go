package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/docker/go-units"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}
	if c.Server.MaxBodySize < 0 {
		errs = append(errs, fmt.Errorf("server.max_body_size must not be negative"))
	}

	errs = append(errs, c.Sandbox.validate()...)

	langs, err := c.LanguageRegistry()
	if err != nil {
		errs = append(errs, fmt.Errorf("languages: %w", err))
	}
	for i, l := range c.Languages {
		if l.MountPath != "" && !strings.HasPrefix(l.MountPath, "/") {
			errs = append(errs, fmt.Errorf("languages[%d].mount_path must be absolute, got %q", i, l.MountPath))
		}
	}

	switch c.Storage.Type {
	case "memory", "postgres", "none":
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\", \"postgres\" or \"none\", got %q", c.Storage.Type))
	}
	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}

	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, fmt.Errorf("auth.api_keys is required when auth.type is \"apikey\""))
		}
		for i, k := range c.Auth.APIKeys {
			if k.Key == "" && k.KeyFile == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d]: key or key_file is required", i))
			}
			if langs == nil {
				continue
			}
			for _, tag := range k.Languages {
				if _, ok := langs.Lookup(tag); !ok {
					errs = append(errs, fmt.Errorf("auth.api_keys[%d].languages: unknown language %q", i, tag))
				}
			}
		}
	case "jwt":
		if c.Auth.JWT.JWKSURL == "" {
			errs = append(errs, fmt.Errorf("auth.jwt.jwks_url is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}
	for tier, rpm := range c.Auth.RateLimits {
		if rpm < 0 {
			errs = append(errs, fmt.Errorf("auth.rate_limits[%s] must not be negative", tier))
		}
	}

	if c.Observability.Metrics.Enabled && !strings.HasPrefix(c.Observability.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("observability.metrics.path must start with \"/\", got %q", c.Observability.Metrics.Path))
	}
	if c.MCP.Enabled && !strings.HasPrefix(c.MCP.Path, "/") {
		errs = append(errs, fmt.Errorf("mcp.path must start with \"/\", got %q", c.MCP.Path))
	}

	switch strings.ToUpper(c.Logging.Level) {
	case "", "TRACE", "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be one of TRACE, DEBUG, INFO, WARN, ERROR, got %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

func (s *SandboxConfig) validate() []error {
	var errs []error

	switch s.Runtime {
	case "docker-cli", "docker-api":
	case "remote":
		if s.Remote.URL == "" && s.Remote.Template == "" {
			errs = append(errs, fmt.Errorf("sandbox.remote.url or sandbox.remote.template is required when sandbox.runtime is \"remote\""))
		}
	default:
		errs = append(errs, fmt.Errorf("sandbox.runtime must be \"docker-cli\", \"docker-api\" or \"remote\", got %q", s.Runtime))
	}

	if s.Timeout < 0 {
		errs = append(errs, fmt.Errorf("sandbox.timeout must not be negative"))
	}
	if s.MaxTimeout > 0 && s.Timeout > s.MaxTimeout {
		errs = append(errs, fmt.Errorf("sandbox.timeout %s exceeds sandbox.max_timeout %s", s.Timeout, s.MaxTimeout))
	}
	if s.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("sandbox.max_concurrent must not be negative"))
	}
	if s.QueueTimeout < 0 {
		errs = append(errs, fmt.Errorf("sandbox.queue_timeout must not be negative"))
	}
	if s.Memory != "" {
		if _, err := units.RAMInBytes(s.Memory); err != nil {
			errs = append(errs, fmt.Errorf("sandbox.memory: %w", err))
		}
	}
	if s.CPUs != "" {
		if n, err := strconv.ParseFloat(s.CPUs, 64); err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("sandbox.cpus must be a positive number, got %q", s.CPUs))
		}
	}
	if s.PidsLimit < 0 {
		errs = append(errs, fmt.Errorf("sandbox.pids_limit must not be negative"))
	}
	if s.MaxOutputBytes < 0 {
		errs = append(errs, fmt.Errorf("sandbox.max_output_bytes must not be negative"))
	}

	return errs
}
