// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/rigchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete rigchat configuration.
type Config struct {
	Gateway GatewayConfig `toml:"gateway" json:"gateway"`
	Chat    ChatConfig    `toml:"chat" json:"chat"`
	Usage   UsageConfig   `toml:"usage" json:"usage"`
	Server  ServerConfig  `toml:"server" json:"server"`
	Logging LoggingConfig `toml:"logging" json:"logging"`
	Tracing TracingConfig `toml:"tracing" json:"tracing"`
}

// GatewayConfig selects and tunes the AI gateway client.
type GatewayConfig struct {
	// Provider is "http" (OpenAI-compatible), "gemini" or "mock"
	Provider string `toml:"provider" json:"provider"`
	BaseURL  string `toml:"base_url" json:"base_url"`
	APIKey   string `toml:"api_key" json:"api_key"`

	GeminiAPIKey string `toml:"gemini_api_key" json:"gemini_api_key"`

	TimeoutSecs       int     `toml:"timeout_secs" json:"timeout_secs"`
	MaxRetries        int     `toml:"max_retries" json:"max_retries"`
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`

	// CredentialsPath overrides ~/.rigchat/credentials.json
	CredentialsPath string `toml:"credentials_path" json:"credentials_path"`
}

// ChatConfig holds conversation defaults.
type ChatConfig struct {
	DefaultModel    string `toml:"default_model" json:"default_model"`
	EnableStreaming bool   `toml:"enable_streaming" json:"enable_streaming"`
	EnableFunctions bool   `toml:"enable_functions" json:"enable_functions"`
	SystemPrompt    string `toml:"system_prompt" json:"system_prompt"`
}

// UsageConfig selects where the monthly token counter lives.
type UsageConfig struct {
	// Backend is "file", "sqlite", "redis" or "memory"
	Backend     string `toml:"backend" json:"backend"`
	Path        string `toml:"path" json:"path"`
	RedisURL    string `toml:"redis_url" json:"redis_url"`
	RedisPrefix string `toml:"redis_prefix" json:"redis_prefix"`
}

// ServerConfig configures the validation server.
type ServerConfig struct {
	Addr        string   `toml:"addr" json:"addr"`
	CORSOrigins []string `toml:"cors_origins" json:"cors_origins"`
	// RateLimit is requests per second per client IP (0 disables)
	RateLimit float64 `toml:"rate_limit" json:"rate_limit"`
	RateBurst int     `toml:"rate_burst" json:"rate_burst"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Debug bool   `toml:"debug" json:"debug"`
	File  string `toml:"file" json:"file"`
}

// TracingConfig controls OpenTelemetry export.
type TracingConfig struct {
	Enabled bool `toml:"enabled" json:"enabled"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Provider:          "http",
			BaseURL:           "https://openrouter.ai/api/v1",
			TimeoutSecs:       60,
			MaxRetries:        0,
			RequestsPerSecond: 0,
		},
		Chat: ChatConfig{
			DefaultModel:    "gpt-5",
			EnableStreaming: true,
			EnableFunctions: true,
		},
		Usage: UsageConfig{
			Backend:     "file",
			RedisPrefix: "rigchat:",
		},
		Server: ServerConfig{
			Addr:        "127.0.0.1:8787",
			CORSOrigins: []string{"*"},
			RateLimit:   10,
			RateBurst:   20,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the rigchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".rigchat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// ensureSecurePermissions tightens a config file to 0600. It holds API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// LoadDotEnv loads .env from the working directory into the process
// environment. Variables already set win. A missing file is not an error.
func LoadDotEnv() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// Load loads .env, then ~/.rigchat/config.toml or config.json, then the
// RIGCHAT_* overrides. With no config file the defaults are used.
func Load() (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		log.Printf("CONFIG_DOTENV_FAILED | error=%v", err)
	}

	for _, pathFn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := pathFn()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	return cfg, finish(cfg)
}

// LoadFromPath loads configuration from a specific TOML or JSON file.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	var err error
	if strings.HasSuffix(path, ".json") {
		err = LoadJSON(cfg, path)
	} else {
		err = LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish applies overrides and defaults, then validates.
func finish(cfg *Config) error {
	cfg.ApplyEnvOverrides()
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		log.Printf("CONFIG_PERMISSIONS | path=%s error=%v", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		log.Printf("CONFIG_PERMISSIONS | path=%s error=%v", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// fillDefaults fills zero-valued strings and numbers. Booleans keep the
// value from Default() unless the file sets them.
func fillDefaults(cfg *Config) {
	d := Default()

	if cfg.Gateway.Provider == "" {
		cfg.Gateway.Provider = d.Gateway.Provider
	}
	if cfg.Gateway.BaseURL == "" {
		cfg.Gateway.BaseURL = d.Gateway.BaseURL
	}
	if cfg.Gateway.TimeoutSecs == 0 {
		cfg.Gateway.TimeoutSecs = d.Gateway.TimeoutSecs
	}
	if cfg.Chat.DefaultModel == "" {
		cfg.Chat.DefaultModel = d.Chat.DefaultModel
	}
	if cfg.Usage.Backend == "" {
		cfg.Usage.Backend = d.Usage.Backend
	}
	if cfg.Usage.RedisPrefix == "" {
		cfg.Usage.RedisPrefix = d.Usage.RedisPrefix
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = d.Server.Addr
	}
	if cfg.Server.RateBurst == 0 && cfg.Server.RateLimit > 0 {
		cfg.Server.RateBurst = int(cfg.Server.RateLimit) + 1
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg to ~/.rigchat/config.toml.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg atomically with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# rigchat configuration file\n")
	buf.WriteString("# Generated by rigchat - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, buf.Bytes(), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes cfg as indented JSON.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, data, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var (
	validProviders = []string{"http", "openai", "openrouter", "gemini", "mock"}
	validBackends  = []string{"file", "sqlite", "redis", "memory"}
)

// Validate checks every section and returns ValidateErrors listing each
// problem.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if !contains(validProviders, strings.ToLower(c.Gateway.Provider)) {
		add("gateway.provider", "must be one of %s", strings.Join(validProviders, ", "))
	}
	if c.Gateway.BaseURL != "" {
		u, err := url.Parse(c.Gateway.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add("gateway.base_url", "must be an absolute http(s) URL")
		}
	}
	if c.Gateway.TimeoutSecs < 0 || c.Gateway.TimeoutSecs > 600 {
		add("gateway.timeout_secs", "must be between 0 and 600")
	}
	if c.Gateway.MaxRetries < 0 || c.Gateway.MaxRetries > 10 {
		add("gateway.max_retries", "must be between 0 and 10")
	}
	if c.Gateway.RequestsPerSecond < 0 {
		add("gateway.requests_per_second", "must not be negative")
	}

	if strings.TrimSpace(c.Chat.DefaultModel) == "" {
		add("chat.default_model", "must not be empty")
	}

	if !contains(validBackends, strings.ToLower(c.Usage.Backend)) {
		add("usage.backend", "must be one of %s", strings.Join(validBackends, ", "))
	}
	if strings.EqualFold(c.Usage.Backend, "redis") && c.Usage.RedisURL == "" {
		add("usage.redis_url", "is required when usage.backend is redis")
	}

	if c.Server.RateLimit < 0 {
		add("server.rate_limit", "must not be negative")
	}
	if c.Server.RateBurst < 0 {
		add("server.rate_burst", "must not be negative")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - RIGCHAT_PROVIDER: gateway.provider
//   - RIGCHAT_BASE_URL: gateway.base_url
//   - RIGCHAT_API_KEY (or OPENROUTER_API_KEY): gateway.api_key
//   - RIGCHAT_GEMINI_API_KEY (or GEMINI_API_KEY): gateway.gemini_api_key
//   - RIGCHAT_MODEL: chat.default_model
//   - RIGCHAT_USAGE_BACKEND: usage.backend
//   - RIGCHAT_REDIS_URL: usage.redis_url
//   - RIGCHAT_SERVER_ADDR: server.addr
//   - RIGCHAT_DEBUG: logging.debug ("1" or "true")
//   - RIGCHAT_TRACING: tracing.enabled ("1" or "true")
func (c *Config) ApplyEnvOverrides() {
	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}
	setBool := func(dst *bool, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "1" || strings.EqualFold(v, "true")
		}
	}

	setString(&c.Gateway.Provider, "RIGCHAT_PROVIDER")
	setString(&c.Gateway.BaseURL, "RIGCHAT_BASE_URL")
	setString(&c.Gateway.APIKey, "RIGCHAT_API_KEY", "OPENROUTER_API_KEY")
	setString(&c.Gateway.GeminiAPIKey, "RIGCHAT_GEMINI_API_KEY", "GEMINI_API_KEY")
	setString(&c.Chat.DefaultModel, "RIGCHAT_MODEL")
	setString(&c.Usage.Backend, "RIGCHAT_USAGE_BACKEND")
	setString(&c.Usage.RedisURL, "RIGCHAT_REDIS_URL")
	setString(&c.Server.Addr, "RIGCHAT_SERVER_ADDR")
	setBool(&c.Logging.Debug, "RIGCHAT_DEBUG")
	setBool(&c.Tracing.Enabled, "RIGCHAT_TRACING")
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "chat.default_model").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("%s is a section, not a value", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		result.WriteString(strings.ToUpper(part[:1]))
		result.WriteString(strings.ToLower(part[1:]))
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strVal)
			if err != nil {
				boolVal = strings.EqualFold(strVal, "yes") || strings.EqualFold(strVal, "on")
				if !boolVal && !strings.EqualFold(strVal, "no") && !strings.EqualFold(strVal, "off") {
					return fmt.Errorf("invalid boolean value: %q", strVal)
				}
			}
			field.SetBool(boolVal)
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, s := range strings.Split(strVal, ",") {
					if s = strings.TrimSpace(s); s != "" {
						items = append(items, s)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) && val.Kind() != reflect.String {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"gateway.provider",
		"gateway.base_url",
		"gateway.api_key",
		"gateway.gemini_api_key",
		"gateway.timeout_secs",
		"gateway.max_retries",
		"gateway.requests_per_second",
		"gateway.credentials_path",
		"chat.default_model",
		"chat.enable_streaming",
		"chat.enable_functions",
		"chat.system_prompt",
		"usage.backend",
		"usage.path",
		"usage.redis_url",
		"usage.redis_prefix",
		"server.addr",
		"server.cors_origins",
		"server.rate_limit",
		"server.rate_burst",
		"logging.debug",
		"logging.file",
		"tracing.enabled",
	}
}

// IsSecret reports whether key holds a credential that must not be printed.
func IsSecret(key string) bool {
	return strings.HasSuffix(key, "api_key") || strings.HasSuffix(key, "redis_url")
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Server.CORSOrigins != nil {
		clone.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	}
	return &clone
}

// String returns the config as JSON with secrets redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Gateway.APIKey != "" {
		safe.Gateway.APIKey = "[REDACTED]"
	}
	if safe.Gateway.GeminiAPIKey != "" {
		safe.Gateway.GeminiAPIKey = "[REDACTED]"
	}
	if safe.Usage.RedisURL != "" {
		safe.Usage.RedisURL = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration, loading it on first access.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			log.Printf("CONFIG_LOAD_FAILED | error=%v (using defaults)", err)
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal sets the global configuration instance.
func SetGlobal(cfg *Config) {
	globalConfigOnce.Do(func() {})
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
