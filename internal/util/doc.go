// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the rigchat packages.
//
// # Key Functions
//
// File Operations:
//   - AtomicWriteFile, AtomicWriteFileWithDir: crash-safe writes with fsync
//
// Display:
//   - TruncateWidth, StringWidth, PadRight: column-aware text fitting
//   - Preview: one-line truncated preview of a message
//   - FormatCount: thousands-separated counts
//
// # Usage
//
//	line := util.Preview(msg.Content, 60)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
