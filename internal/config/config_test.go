// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME at a temp dir and clears every override variable.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{
		"RIGCHAT_PROVIDER", "RIGCHAT_BASE_URL", "RIGCHAT_API_KEY", "OPENROUTER_API_KEY",
		"RIGCHAT_GEMINI_API_KEY", "GEMINI_API_KEY", "RIGCHAT_MODEL", "RIGCHAT_USAGE_BACKEND",
		"RIGCHAT_REDIS_URL", "RIGCHAT_SERVER_ADDR", "RIGCHAT_DEBUG", "RIGCHAT_TRACING",
	} {
		t.Setenv(k, "")
	}
	return home
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// =============================================================================
// LOAD
// =============================================================================

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http", cfg.Gateway.Provider)
	assert.Equal(t, "gpt-5", cfg.Chat.DefaultModel)
	assert.True(t, cfg.Chat.EnableStreaming)
	assert.True(t, cfg.Chat.EnableFunctions)
	assert.Equal(t, "file", cfg.Usage.Backend)
	assert.Equal(t, 60, cfg.Gateway.TimeoutSecs)
	assert.Equal(t, 0, cfg.Gateway.MaxRetries)
}

func TestLoad_TOMLFile(t *testing.T) {
	home := isolate(t)
	t.Chdir(t.TempDir())
	path := filepath.Join(home, ".rigchat", "config.toml")
	writeFile(t, path, `
[gateway]
provider = "mock"

[chat]
default_model = "gpt-4o"
enable_streaming = false

[server]
addr = ":9999"
cors_origins = ["https://a.example", "https://b.example"]
`)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mock", cfg.Gateway.Provider)
	assert.Equal(t, "gpt-4o", cfg.Chat.DefaultModel)
	assert.False(t, cfg.Chat.EnableStreaming)
	assert.True(t, cfg.Chat.EnableFunctions, "unset booleans keep their defaults")
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), "loading tightens permissions")
}

func TestLoad_JSONFallback(t *testing.T) {
	home := isolate(t)
	t.Chdir(t.TempDir())
	writeFile(t, filepath.Join(home, ".rigchat", "config.json"), `{"chat":{"default_model":"claude-sonnet-4"}}`)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4", cfg.Chat.DefaultModel)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Chdir(t.TempDir())
	t.Setenv("RIGCHAT_MODEL", "deepseek-chat")
	t.Setenv("OPENROUTER_API_KEY", "sk-or-fallback")
	t.Setenv("RIGCHAT_DEBUG", "true")
	t.Setenv("RIGCHAT_USAGE_BACKEND", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "deepseek-chat", cfg.Chat.DefaultModel)
	assert.Equal(t, "sk-or-fallback", cfg.Gateway.APIKey)
	assert.True(t, cfg.Logging.Debug)
	assert.Equal(t, "memory", cfg.Usage.Backend)
}

func TestLoad_DotEnv(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, filepath.Join(dir, ".env"), "RIGCHAT_MODEL=mistral-large\n")
	os.Unsetenv("RIGCHAT_MODEL")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mistral-large", cfg.Chat.DefaultModel)
}

func TestLoadFromPath_Invalid(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.toml")
	writeFile(t, bad, "this is = = not toml")
	_, err := LoadFromPath(bad)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.toml")
	writeFile(t, invalid, "[usage]\nbackend = \"redis\"\n")
	_, err = LoadFromPath(invalid)
	require.Error(t, err)

	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "usage.redis_url", verrs[0].Field)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown provider", func(c *Config) { c.Gateway.Provider = "carrier-pigeon" }, "gateway.provider"},
		{"relative base url", func(c *Config) { c.Gateway.BaseURL = "/api" }, "gateway.base_url"},
		{"ftp base url", func(c *Config) { c.Gateway.BaseURL = "ftp://host" }, "gateway.base_url"},
		{"negative timeout", func(c *Config) { c.Gateway.TimeoutSecs = -1 }, "gateway.timeout_secs"},
		{"too many retries", func(c *Config) { c.Gateway.MaxRetries = 11 }, "gateway.max_retries"},
		{"empty model", func(c *Config) { c.Chat.DefaultModel = " " }, "chat.default_model"},
		{"unknown backend", func(c *Config) { c.Usage.Backend = "etcd" }, "usage.backend"},
		{"negative rate", func(c *Config) { c.Server.RateLimit = -1 }, "server.rate_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

// =============================================================================
// GET / SET
// =============================================================================

func TestGetSet(t *testing.T) {
	cfg := Default()

	v, err := cfg.Get("chat.default_model")
	require.NoError(t, err)
	assert.Equal(t, "gpt-5", v)

	tests := []struct {
		key   string
		value string
		want  interface{}
	}{
		{"chat.default_model", "gpt-4o", "gpt-4o"},
		{"chat.enable_streaming", "false", false},
		{"chat.enable-functions", "off", false},
		{"gateway.max_retries", "5", 5},
		{"gateway.requests_per_second", "2.5", 2.5},
		{"gateway.base_url", "http://localhost:1234/v1", "http://localhost:1234/v1"},
		{"server.cors_origins", "https://a, https://b", []string{"https://a", "https://b"}},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			require.NoError(t, cfg.Set(tt.key, tt.value))
			got, err := cfg.Get(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Error(t, cfg.Set("chat.nope", "x"))
	assert.Error(t, cfg.Set("gateway.max_retries", "many"))
	assert.Error(t, cfg.Set("chat.enable_streaming", "maybe"))
	_, err = cfg.Get("chat")
	assert.Error(t, err)
	_, err = cfg.Get("")
	assert.Error(t, err)
}

func TestGetAllKeys_Resolve(t *testing.T) {
	cfg := Default()
	for _, key := range GetAllKeys() {
		_, err := cfg.Get(key)
		assert.NoError(t, err, key)
	}
}

// =============================================================================
// SAVE / STRING
// =============================================================================

func TestSaveTOML_RoundTrip(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.Chat.DefaultModel = "gpt-4.1"
	cfg.Chat.EnableFunctions = false
	cfg.Server.RateLimit = 3
	require.NoError(t, SaveTOML(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", loaded.Chat.DefaultModel)
	assert.False(t, loaded.Chat.EnableFunctions)
	assert.Equal(t, 3.0, loaded.Server.RateLimit)
}

func TestString_RedactsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Gateway.APIKey = "sk-secret"
	cfg.Gateway.GeminiAPIKey = "AIza-secret"
	cfg.Usage.RedisURL = "redis://:pw@host:6379"

	s := cfg.String()
	assert.NotContains(t, s, "secret")
	assert.NotContains(t, s, ":pw@")
	assert.Equal(t, "sk-secret", cfg.Gateway.APIKey, "original is untouched")
	assert.True(t, IsSecret("gateway.api_key"))
	assert.False(t, IsSecret("chat.default_model"))
}

// =============================================================================
// WATCH
// =============================================================================

func TestWatch_ReloadsOnChange(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[server]\nrate_limit = 1\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloads := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, 20*time.Millisecond, func(cfg *Config, err error) {
			if err == nil {
				reloads <- cfg
			}
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, SaveTOML(&Config{
		Gateway: Default().Gateway,
		Chat:    Default().Chat,
		Usage:   Default().Usage,
		Server:  ServerConfig{Addr: ":1", RateLimit: 7, RateBurst: 9},
	}, path))

	select {
	case cfg := <-reloads:
		assert.Equal(t, 7.0, cfg.Server.RateLimit)
		assert.Equal(t, 9, cfg.Server.RateBurst)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}

	cancel()
	assert.NoError(t, <-done)
}

// =============================================================================
// GLOBAL
// =============================================================================

func TestConfig_ConcurrentAccess(t *testing.T) {
	isolate(t)
	ResetGlobalForTesting()
	t.Cleanup(ResetGlobalForTesting)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c := Default()
			c.Chat.DefaultModel = "test-model"
			SetGlobal(c)
		}()
		go func() {
			defer wg.Done()
			if Global() == nil {
				t.Error("Global() returned nil")
			}
		}()
	}
	wg.Wait()

	require.NotNil(t, Global())
}
