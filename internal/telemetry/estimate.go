// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/jeranaias/rigchat/internal/model"
)

// TokenLimit is the monthly allowance shown in usage displays.
const TokenLimit int64 = 50_000_000

// Per-attachment surcharges for the estimator.
const (
	fileBaseTokens      = 50
	imageTokens         = 765
	otherFileTokens     = 100
	defaultTextFileSize = 1000
)

// =============================================================================
// ESTIMATION
// =============================================================================

// EstimateTokens approximates billing tokens for a text plus attachments.
// Text counts one token per four UTF-16 code units, rounded up. Every file
// adds a base of 50; images add 765 more, text/JSON files add a quarter of
// their size (1000 bytes when unknown), anything else adds 100.
func EstimateTokens(text string, files []model.Attachment) int64 {
	if text == "" && len(files) == 0 {
		return 0
	}

	var count int64
	if text != "" {
		count += ceilDiv(utf16Len(text), 4)
	}

	for _, f := range files {
		count += fileBaseTokens
		switch {
		case strings.HasPrefix(f.Type, "image/"):
			count += imageTokens
		case strings.Contains(f.Type, "text") || strings.Contains(f.Type, "json"):
			size := f.Size
			if size <= 0 {
				size = defaultTextFileSize
			}
			count += ceilDiv(size, 4)
		default:
			count += otherFileTokens
		}
	}
	return count
}

// EstimateMessages sums EstimateTokens over a set of messages.
func EstimateMessages(msgs []*model.Message) int64 {
	var total int64
	for _, m := range msgs {
		total += EstimateTokens(m.Content, m.Files)
	}
	return total
}

func utf16Len(s string) int64 {
	var n int64
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += int64(l)
		} else {
			n++
		}
	}
	return n
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

// =============================================================================
// FORMATTING
// =============================================================================

// FormatTokenCount renders a count as 999, 1.5K or 2.3M.
func FormatTokenCount(count int64) string {
	switch {
	case count < 1000:
		return fmt.Sprintf("%d", count)
	case count < 1_000_000:
		return fmt.Sprintf("%.1fK", float64(count)/1000)
	default:
		return fmt.Sprintf("%.1fM", float64(count)/1_000_000)
	}
}

// UsagePercent returns count as a percentage of TokenLimit.
func UsagePercent(count int64) float64 {
	return float64(count) / float64(TokenLimit) * 100
}

// UsageLevel buckets a count for coloring.
type UsageLevel int

const (
	UsageOK UsageLevel = iota
	UsageNear
	UsageAt
)

// LevelFor returns the usage level for count: near above 80%, at above 95%.
func LevelFor(count int64) UsageLevel {
	pct := UsagePercent(count)
	switch {
	case pct > 95:
		return UsageAt
	case pct > 80:
		return UsageNear
	default:
		return UsageOK
	}
}

// FormatUsage renders "used / limit (pct%)".
func FormatUsage(count int64) string {
	return fmt.Sprintf("%s / %s (%.1f%%)", FormatTokenCount(count), FormatTokenCount(TokenLimit), UsagePercent(count))
}
