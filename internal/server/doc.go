// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the request validation service behind
// `rigchat serve`.
//
// # Endpoints
//
//   - POST /api/chat   - validates {message, model, conversation?, userId?}
//   - GET  /api/models - the model capability table
//   - GET  /health     - status, version and uptime
//   - GET  /metrics    - Prometheus exposition
//
// # Middleware
//
// Applied in order: panic recovery, request ID (X-Request-ID), request
// logging, CORS, per-IP token bucket rate limiting, 1 MiB body limit.
//
// CORS origins and rate limits are reloaded from the config file while the
// server runs.
package server
