package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Search locations used when neither an explicit path nor VIZLAUNCH_CONFIG
// names a config file.
var configCandidates = []string{"config.yaml", "/etc/vizlaunch/config.yaml"}

// Load builds the configuration in layers: defaults, the YAML file,
// VIZLAUNCH_* environment overrides, then *_file secret references. The
// result is validated before it is returned.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if path := findConfigFile(configPath); path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
		slog.Debug("config file loaded", "path", path)
	}

	applyEnvOverrides(&cfg)

	if err := resolveSecrets(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv("VIZLAUNCH_CONFIG"); p != "" {
		return p
	}
	for _, p := range configCandidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// decodeFile overlays the YAML file onto cfg. Unknown keys are an error so
// that a misspelt option does not silently keep its default.
func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// envSetter parses one environment value into a config field.
type envSetter func(v string) error

func setString(dst *string) envSetter {
	return func(v string) error { *dst = v; return nil }
}

func setInt(dst *int) envSetter {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func setBool(dst *bool) envSetter {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

// setDuration accepts Go durations and bare seconds.
func setDuration(dst *time.Duration) envSetter {
	return func(v string) error {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
			return nil
		}
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("not a duration: %q", v)
		}
		*dst = time.Duration(secs) * time.Second
		return nil
	}
}

func setList(dst *[]string) envSetter {
	return func(v string) error {
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*dst = out
		return nil
	}
}

// setAPIKeys reads a JSON array of api_keys entries.
func setAPIKeys(dst *[]APIKeyConfig) envSetter {
	return func(v string) error {
		var keys []APIKeyConfig
		if err := json.Unmarshal([]byte(v), &keys); err != nil {
			return fmt.Errorf("parsing API keys JSON: %w", err)
		}
		if len(keys) > 0 {
			*dst = keys
		}
		return nil
	}
}

func envOverrides(cfg *Config) map[string]envSetter {
	return map[string]envSetter{
		"VIZLAUNCH_PORT":         setInt(&cfg.Server.Port),
		"VIZLAUNCH_CORS_ORIGINS": setList(&cfg.Server.CORSOrigins),

		"VIZLAUNCH_SANDBOX_RUNTIME":   setString(&cfg.Sandbox.Runtime),
		"VIZLAUNCH_DOCKER_BINARY":     setString(&cfg.Sandbox.DockerBinary),
		"VIZLAUNCH_SANDBOX_TIMEOUT":   setDuration(&cfg.Sandbox.Timeout),
		"VIZLAUNCH_MAX_CONCURRENT":    setInt(&cfg.Sandbox.MaxConcurrent),
		"VIZLAUNCH_QUEUE_TIMEOUT":     setDuration(&cfg.Sandbox.QueueTimeout),
		"VIZLAUNCH_SANDBOX_MEMORY":    setString(&cfg.Sandbox.Memory),
		"VIZLAUNCH_SANDBOX_CPUS":      setString(&cfg.Sandbox.CPUs),
		"VIZLAUNCH_SANDBOX_NETWORK":   setString(&cfg.Sandbox.Network),
		"VIZLAUNCH_WORK_DIR":          setString(&cfg.Sandbox.WorkDir),
		"VIZLAUNCH_SANDBOX_URL":       setString(&cfg.Sandbox.Remote.URL),
		"VIZLAUNCH_SANDBOX_TEMPLATE":  setString(&cfg.Sandbox.Remote.Template),
		"VIZLAUNCH_SANDBOX_NAMESPACE": setString(&cfg.Sandbox.Remote.Namespace),

		"VIZLAUNCH_STORAGE":      setString(&cfg.Storage.Type),
		"VIZLAUNCH_STORAGE_SIZE": setInt(&cfg.Storage.MaxSize),
		"VIZLAUNCH_POSTGRES_DSN": setString(&cfg.Storage.Postgres.DSN),

		"VIZLAUNCH_AUTH_TYPE":          setString(&cfg.Auth.Type),
		"VIZLAUNCH_API_KEYS":           setAPIKeys(&cfg.Auth.APIKeys),
		"VIZLAUNCH_JWT_ISSUER":         setString(&cfg.Auth.JWT.Issuer),
		"VIZLAUNCH_JWT_AUDIENCE":       setString(&cfg.Auth.JWT.Audience),
		"VIZLAUNCH_JWKS_URL":           setString(&cfg.Auth.JWT.JWKSURL),
		"VIZLAUNCH_DEFAULT_RATE_LIMIT": setInt(&cfg.Auth.DefaultRateLimit),

		"VIZLAUNCH_METRICS_ENABLED": setBool(&cfg.Observability.Metrics.Enabled),
		"VIZLAUNCH_MCP_ENABLED":     setBool(&cfg.MCP.Enabled),

		"VIZLAUNCH_LOG_LEVEL":  setString(&cfg.Logging.Level),
		"VIZLAUNCH_LOG_FORMAT": setString(&cfg.Logging.Format),
	}
}

// applyEnvOverrides applies the set VIZLAUNCH_* variables. A value that
// does not parse is logged and skipped.
func applyEnvOverrides(cfg *Config) {
	for key, set := range envOverrides(cfg) {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		if err := set(v); err != nil {
			slog.Warn("ignoring invalid environment override", "env", key, "value", v, "error", err)
		}
	}
}

// secretRef pairs a value with the file it may be read from.
type secretRef struct {
	field string
	file  string
	dst   *string
}

func secretRefs(cfg *Config) []secretRef {
	refs := []secretRef{{
		field: "storage.postgres.dsn_file",
		file:  cfg.Storage.Postgres.DSNFile,
		dst:   &cfg.Storage.Postgres.DSN,
	}}
	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		refs = append(refs, secretRef{
			field: fmt.Sprintf("auth.api_keys[%d].key_file", i),
			file:  k.KeyFile,
			dst:   &k.Key,
		})
	}
	return refs
}

// resolveSecrets fills empty values from their *_file references. An
// explicit value wins over the file.
func resolveSecrets(cfg *Config) error {
	for _, ref := range secretRefs(cfg) {
		if ref.file == "" || *ref.dst != "" {
			continue
		}
		data, err := os.ReadFile(ref.file)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.field, err)
		}
		*ref.dst = strings.TrimSpace(string(data))
	}
	return nil
}
