// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gateway is the client side of the hosted AI service.
//
// Every backend implements the Gateway interface:
//
//   - HTTPGateway: OpenAI-compatible REST API (chat, SSE streaming, image
//     generation, vision, model listing) with retries and client-side
//     rate limiting
//   - GeminiGateway: Google Gemini through generative-ai-go
//   - MockGateway: scripted replies for tests and offline demo mode
//
// Sign-ins are persisted by a CredentialStore in ~/.rigchat/credentials.json.
//
// # Usage
//
//	gw, err := gateway.New(gateway.Options{Provider: "http", APIKey: key})
//	stream, err := gw.ChatStream(ctx, gateway.ChatRequest{
//	    Model:    "gpt-4o",
//	    Messages: []gateway.ChatMessage{{Role: "user", Content: "Hello"}},
//	})
//	for {
//	    chunk, err := stream.Next(ctx)
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
//
// # Errors
//
// Failures wrap ErrUnavailable, ErrAuthRequired, ErrRateLimited,
// ErrModelNotFound or ErrUnsupported and can be tested with errors.Is.
// A failed stream returns a *StreamError holding the partial content.
package gateway
