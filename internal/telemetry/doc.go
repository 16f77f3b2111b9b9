// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry provides token accounting, metrics and tracing for rigchat.
//
// Token usage is estimated with a character-count heuristic rather than a
// real tokenizer, accumulated in a monthly counter and persisted through a
// small key-value Store.
//
// # Key Types
//
//   - UsageTracker: monthly-resetting token counter
//   - Store: key-value persistence (file, sqlite, redis, memory)
//   - TracerProvider: optional stdout span exporter
//
// # Usage
//
//	store, _ := telemetry.OpenStore(ctx, telemetry.StoreOptions{Backend: "file"})
//	tracker := telemetry.NewUsageTracker(store)
//	total, _ := tracker.Add(ctx, telemetry.EstimateTokens("hello", nil))
//	fmt.Println(telemetry.FormatUsage(total))
//
// # Privacy
//
// Only counts and timestamps are stored. Message content never is.
package telemetry
