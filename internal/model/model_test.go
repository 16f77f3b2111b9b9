// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// CAPABILITY TABLE TESTS
// =============================================================================

func TestLookup_KnownModels(t *testing.T) {
	tests := []struct {
		id   string
		want Capabilities
	}{
		{"gpt-5", Capabilities{Functions: true, ImageGeneration: true, Streaming: true, MaxTokens: 128000}},
		{"claude-sonnet-4", Capabilities{Functions: true, Vision: true, Streaming: true, MaxTokens: 200000}},
		{"deepseek-reasoner", Capabilities{Streaming: true, Reasoning: true, MaxTokens: 64000}},
	}

	for _, tc := range tests {
		t.Run(tc.id, func(t *testing.T) {
			assert.Equal(t, tc.want, Lookup(tc.id))
		})
	}
}

func TestLookup_UnknownModelIsConservative(t *testing.T) {
	caps := Lookup("acme/unknown-1")
	assert.Equal(t, DefaultCapabilities, caps)
	assert.False(t, caps.Functions)
	assert.False(t, caps.Vision)
	assert.False(t, caps.ImageGeneration)
	assert.True(t, caps.Streaming)
}

func TestModels_HaveRequiredFields(t *testing.T) {
	for key, m := range Models {
		if m.ID != key {
			t.Errorf("model %q has mismatched ID %q", key, m.ID)
		}
		if m.Name == "" || m.Provider == "" {
			t.Errorf("model %q missing name or provider", key)
		}
		if m.Capabilities.MaxTokens <= 0 {
			t.Errorf("model %q has no MaxTokens", key)
		}
	}
}

func TestListModels_Sorted(t *testing.T) {
	list := ListModels()
	require.Len(t, list, len(Models))
	for i := 1; i < len(list); i++ {
		prev, cur := list[i-1], list[i]
		if prev.Provider > cur.Provider || (prev.Provider == cur.Provider && prev.Name > cur.Name) {
			t.Fatalf("ListModels not sorted at %d: %s/%s before %s/%s", i, prev.Provider, prev.Name, cur.Provider, cur.Name)
		}
	}
}

func TestModelInfo_CapabilitiesString(t *testing.T) {
	got := Models["claude-sonnet-4"].CapabilitiesString()
	for _, want := range []string{"Functions", "Vision", "Streaming", "Long context"} {
		if !strings.Contains(got, want) {
			t.Errorf("CapabilitiesString() = %q, want to contain %q", got, want)
		}
	}
	assert.Equal(t, "Text", ModelInfo{}.CapabilitiesString())
}

// =============================================================================
// GATE TESTS
// =============================================================================

func TestGate(t *testing.T) {
	tests := []struct {
		name    string
		model   string
		in      GateInput
		allowed bool
		reason  string
	}{
		{
			name:    "text always allowed",
			model:   "deepseek-reasoner",
			in:      GateInput{Mode: ModeText, HasPrompt: true},
			allowed: true,
		},
		{
			name:   "image analysis without vision",
			model:  "gpt-5",
			in:     GateInput{Mode: ModeImageAnalysis, HasPrompt: true},
			reason: "does not support vision analysis",
		},
		{
			name:    "image analysis with image only",
			model:   "gpt-4o",
			in:      GateInput{Mode: ModeImageAnalysis, HasImage: true},
			allowed: true,
		},
		{
			name:   "image analysis with nothing",
			model:  "gpt-4o",
			in:     GateInput{Mode: ModeImageAnalysis},
			reason: "needs a prompt or an image",
		},
		{
			name:   "image generation without capability",
			model:  "claude-sonnet-4",
			in:     GateInput{Mode: ModeImageGen, HasPrompt: true},
			reason: "does not support image generation",
		},
		{
			name:    "image generation with capability",
			model:   "dall-e-3",
			in:      GateInput{Mode: ModeImageGen, HasPrompt: true},
			allowed: true,
		},
		{
			name:   "unknown mode",
			model:  "gpt-5",
			in:     GateInput{Mode: Mode("audio"), HasPrompt: true},
			reason: "unknown mode",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.in.Model = tc.model
			res := Gate(Lookup(tc.model), tc.in)
			assert.Equal(t, tc.allowed, res.IsAllowed())
			if !tc.allowed {
				assert.Contains(t, res.Reason(), tc.reason)
			} else {
				assert.Empty(t, res.Reason())
			}
		})
	}
}

func TestGate_EveryModelEveryMode(t *testing.T) {
	for id, info := range Models {
		for _, mode := range Modes {
			res := Gate(info.Capabilities, GateInput{Model: id, Mode: mode, HasPrompt: true, HasImage: true})
			want := mode.SupportedBy(info.Capabilities)
			if res.IsAllowed() != want {
				t.Errorf("Gate(%s, %s) allowed=%v, want %v", id, mode, res.IsAllowed(), want)
			}
		}
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("vision")
	require.NoError(t, err)
	assert.Equal(t, ModeImageAnalysis, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeText, m)

	_, err = ParseMode("audio")
	assert.Error(t, err)

	assert.Equal(t, ModeImageGen, ModeText.Next())
	assert.Equal(t, ModeText, ModeImageAnalysis.Next())
}
