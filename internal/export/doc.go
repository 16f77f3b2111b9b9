// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes a conversation to disk as Markdown, JSON or YAML.
//
// Exports are chronological (oldest message first) even though the live
// conversation is stored newest first. Files are named
// conversation_<title>_<timestamp>.<ext> and written atomically.
//
// # Usage
//
//	path, err := export.Export(conv, "md", export.DefaultOptions())
package export
