// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"strings"
)

// =============================================================================
// CHAT MODE
// =============================================================================

// Mode selects how a submission is routed.
type Mode string

const (
	ModeText          Mode = "text"
	ModeImageGen      Mode = "image-gen"
	ModeImageAnalysis Mode = "image-analysis"
)

// Modes lists every mode in cycling order.
var Modes = []Mode{ModeText, ModeImageGen, ModeImageAnalysis}

// ParseMode converts a user-supplied name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "chat":
		return ModeText, nil
	case "image-gen", "imagegen", "image", "txt2img":
		return ModeImageGen, nil
	case "image-analysis", "vision", "analyze":
		return ModeImageAnalysis, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want text, image-gen or image-analysis)", s)
	}
}

// Next returns the mode that follows m in Modes.
func (m Mode) Next() Mode {
	for i, mode := range Modes {
		if mode == m {
			return Modes[(i+1)%len(Modes)]
		}
	}
	return ModeText
}

// RequiredFeature returns the capability a mode needs, or "" for text.
func (m Mode) RequiredFeature() Feature {
	switch m {
	case ModeImageGen:
		return FeatureImageGeneration
	case ModeImageAnalysis:
		return FeatureVision
	default:
		return ""
	}
}

// SupportedBy reports whether caps can serve this mode at all.
func (m Mode) SupportedBy(caps Capabilities) bool {
	f := m.RequiredFeature()
	return f == "" || caps.Has(f)
}

// =============================================================================
// CAPABILITY GATE
// =============================================================================

// GateResult is the outcome of a capability check: either allowed, or
// denied with a reason shown to the user.
type GateResult struct {
	allowed bool
	reason  string
}

// Allowed returns a passing result.
func Allowed() GateResult { return GateResult{allowed: true} }

// Denied returns a failing result with reason.
func Denied(reason string) GateResult { return GateResult{reason: reason} }

// IsAllowed reports whether the submission may proceed.
func (g GateResult) IsAllowed() bool { return g.allowed }

// Reason returns the denial reason, or "" when allowed.
func (g GateResult) Reason() string { return g.reason }

// GateInput is what the gate inspects for one submission.
type GateInput struct {
	Model     string
	Mode      Mode
	HasPrompt bool
	HasImage  bool
}

// Gate decides, before any network call, whether a submission in the given
// mode can be served by the model's capabilities.
func Gate(caps Capabilities, in GateInput) GateResult {
	switch in.Mode {
	case ModeImageGen:
		if !caps.ImageGeneration {
			return Denied(fmt.Sprintf("%s does not support image generation. Please select GPT-5 or use DALL-E 3 mode.", in.Model))
		}
		if !in.HasPrompt {
			return Denied("image generation needs a prompt")
		}
	case ModeImageAnalysis:
		if !caps.Vision {
			return Denied(fmt.Sprintf("%s does not support vision analysis. Please select a vision-capable model like GPT-4.1, GPT-4o, Claude Sonnet 4, or Grok Vision.", in.Model))
		}
		if !in.HasPrompt && !in.HasImage {
			return Denied("image analysis needs a prompt or an image")
		}
	case ModeText:
	default:
		return Denied(fmt.Sprintf("unknown mode %q", in.Mode))
	}
	return Allowed()
}
