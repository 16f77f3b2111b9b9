// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"fmt"
	"strings"
	"time"
)

// Provider names accepted by New.
const (
	ProviderHTTP   = "http"
	ProviderGemini = "gemini"
	ProviderMock   = "mock"
)

// Options selects and configures a gateway backend.
type Options struct {
	Provider          string
	BaseURL           string
	APIKey            string
	GeminiAPIKey      string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	CredentialsPath   string
}

// New builds the configured backend wrapped with instrumentation.
func New(opts Options) (Gateway, error) {
	var g Gateway

	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", ProviderHTTP, "openai", "openrouter":
		creds, err := NewCredentialStore(opts.CredentialsPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		g = NewHTTPGateway(opts.BaseURL, creds).
			WithAPIKey(opts.APIKey).
			WithTimeout(opts.Timeout).
			WithRateLimit(opts.RequestsPerSecond, 1).
			WithMaxRetries(opts.MaxRetries)
	case ProviderGemini:
		creds, err := NewCredentialStore(opts.CredentialsPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		g = NewGeminiGateway(opts.GeminiAPIKey, creds)
	case ProviderMock:
		g = NewMockGateway()
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrUnavailable, opts.Provider)
	}

	return Instrument(g), nil
}
