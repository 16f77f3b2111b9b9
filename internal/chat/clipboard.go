// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/atotto/clipboard"
	"github.com/muesli/termenv"
)

// SystemClipboard writes to the OS clipboard. Where no clipboard utility is
// available (SSH sessions, bare containers) it falls back to an OSC 52
// escape sequence, which most terminals forward to the local clipboard.
type SystemClipboard struct{}

// WriteAll copies text.
func (SystemClipboard) WriteAll(text string) error {
	if clipboard.Unsupported {
		termenv.Copy(text)
		return nil
	}
	if err := clipboard.WriteAll(text); err != nil {
		termenv.Copy(text)
	}
	return nil
}
