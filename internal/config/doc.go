// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for rigchat.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (RIGCHAT_*), including those from ./.env
//   - ~/.rigchat/config.toml
//   - ~/.rigchat/config.json
//   - Built-in defaults
//
// # Sections
//
//   - [gateway]: provider, base URL, keys, timeout, opt-in retries, client rate
//   - [chat]: default model, streaming and function toggles, system prompt
//   - [usage]: token counter backend (file, sqlite, redis, memory)
//   - [server]: validation server address, CORS, per-IP rate limit
//   - [logging], [tracing]
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	model := cfg.Chat.DefaultModel
//
// Watch reloads a config file on change and is used by the server to pick
// up new rate-limit and CORS settings.
package config
