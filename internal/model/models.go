// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"sort"
	"strings"
)

// =============================================================================
// CAPABILITIES
// =============================================================================

// Feature names a single capability flag.
type Feature string

const (
	FeatureFunctions       Feature = "functions"
	FeatureVision          Feature = "vision"
	FeatureImageGeneration Feature = "imageGeneration"
	FeatureStreaming       Feature = "streaming"
	FeatureReasoning       Feature = "reasoning"
)

// Capabilities describes what a model supports. Values are static and
// never mutated at runtime.
type Capabilities struct {
	Functions       bool `json:"functions"`
	Vision          bool `json:"vision"`
	ImageGeneration bool `json:"imageGeneration"`
	Streaming       bool `json:"streaming"`
	Reasoning       bool `json:"reasoning"`
	MaxTokens       int  `json:"maxTokens"`
}

// Has reports whether the named feature is enabled.
func (c Capabilities) Has(f Feature) bool {
	switch f {
	case FeatureFunctions:
		return c.Functions
	case FeatureVision:
		return c.Vision
	case FeatureImageGeneration:
		return c.ImageGeneration
	case FeatureStreaming:
		return c.Streaming
	case FeatureReasoning:
		return c.Reasoning
	default:
		return false
	}
}

// Features lists the enabled features in a fixed order.
func (c Capabilities) Features() []Feature {
	var out []Feature
	for _, f := range []Feature{FeatureFunctions, FeatureVision, FeatureImageGeneration, FeatureStreaming, FeatureReasoning} {
		if c.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// DefaultCapabilities applies to model IDs missing from the table.
var DefaultCapabilities = Capabilities{Streaming: true, MaxTokens: 4096}

// =============================================================================
// MODEL INFO TYPE
// =============================================================================

// ModelInfo contains display metadata and capabilities for a model.
type ModelInfo struct {
	// ID is the model identifier used in API calls
	ID string `json:"id"`

	// Name is the human-readable display name
	Name string `json:"name"`

	// Provider identifies who provides the model
	Provider string `json:"provider"`

	Capabilities Capabilities `json:"capabilities"`
}

// CapabilitiesString returns a short comma-separated summary.
func (m ModelInfo) CapabilitiesString() string {
	var parts []string
	for _, f := range m.Capabilities.Features() {
		parts = append(parts, featureLabel(f))
	}
	if m.Capabilities.MaxTokens >= 1000000 {
		parts = append(parts, "1M+ context")
	} else if m.Capabilities.MaxTokens >= 100000 {
		parts = append(parts, "Long context")
	}
	if len(parts) == 0 {
		return "Text"
	}
	return strings.Join(parts, ", ")
}

func featureLabel(f Feature) string {
	switch f {
	case FeatureFunctions:
		return "Functions"
	case FeatureVision:
		return "Vision"
	case FeatureImageGeneration:
		return "Image generation"
	case FeatureStreaming:
		return "Streaming"
	case FeatureReasoning:
		return "Reasoning"
	default:
		return string(f)
	}
}

// =============================================================================
// MODEL REGISTRY
// =============================================================================

// Models is the static capability table keyed by model ID.
var Models = map[string]ModelInfo{
	"gpt-5": {
		ID: "gpt-5", Name: "GPT-5", Provider: "OpenAI",
		Capabilities: Capabilities{Functions: true, ImageGeneration: true, Streaming: true, MaxTokens: 128000},
	},
	"gpt-4o": {
		ID: "gpt-4o", Name: "GPT-4o", Provider: "OpenAI",
		Capabilities: Capabilities{Functions: true, Vision: true, Streaming: true, MaxTokens: 128000},
	},
	"gpt-4.1": {
		ID: "gpt-4.1", Name: "GPT-4.1", Provider: "OpenAI",
		Capabilities: Capabilities{Functions: true, Vision: true, Streaming: true, MaxTokens: 1047576},
	},
	"dall-e-3": {
		ID: "dall-e-3", Name: "DALL-E 3", Provider: "OpenAI",
		Capabilities: Capabilities{ImageGeneration: true, MaxTokens: 4000},
	},
	"claude-sonnet-4": {
		ID: "claude-sonnet-4", Name: "Claude Sonnet 4", Provider: "Anthropic",
		Capabilities: Capabilities{Functions: true, Vision: true, Streaming: true, MaxTokens: 200000},
	},
	"google/gemini-2.0-flash-001": {
		ID: "google/gemini-2.0-flash-001", Name: "Gemini 2.0 Flash", Provider: "Google",
		Capabilities: Capabilities{Functions: true, Vision: true, Streaming: true, MaxTokens: 1048576},
	},
	"deepseek-chat": {
		ID: "deepseek-chat", Name: "DeepSeek Chat", Provider: "DeepSeek",
		Capabilities: Capabilities{Functions: true, Streaming: true, MaxTokens: 64000},
	},
	"deepseek-reasoner": {
		ID: "deepseek-reasoner", Name: "DeepSeek Reasoner", Provider: "DeepSeek",
		Capabilities: Capabilities{Streaming: true, Reasoning: true, MaxTokens: 64000},
	},
	"meta-llama/llama-4-maverick": {
		ID: "meta-llama/llama-4-maverick", Name: "Llama 4 Maverick", Provider: "Meta",
		Capabilities: Capabilities{Functions: true, Streaming: true, MaxTokens: 1048576},
	},
	"qwen/qwen3-coder": {
		ID: "qwen/qwen3-coder", Name: "Qwen3 Coder", Provider: "Qwen",
		Capabilities: Capabilities{Functions: true, Streaming: true, MaxTokens: 262144},
	},
	"x-ai/grok-2-vision": {
		ID: "x-ai/grok-2-vision", Name: "Grok Vision", Provider: "xAI",
		Capabilities: Capabilities{Vision: true, Streaming: true, MaxTokens: 32768},
	},
	"mistral-large": {
		ID: "mistral-large", Name: "Mistral Large", Provider: "Mistral",
		Capabilities: Capabilities{Functions: true, Streaming: true, MaxTokens: 128000},
	},
}

// DefaultModel is selected when nothing else is configured.
const DefaultModel = "gpt-5"

// Lookup returns the capabilities for a model ID, falling back to
// DefaultCapabilities for unknown IDs.
func Lookup(id string) Capabilities {
	if info, ok := Models[id]; ok {
		return info.Capabilities
	}
	return DefaultCapabilities
}

// Supports reports whether the model has the given feature.
func Supports(id string, f Feature) bool {
	return Lookup(id).Has(f)
}

// GetModelInfo returns the table entry for id, or a synthesized entry with
// default capabilities.
func GetModelInfo(id string) ModelInfo {
	if info, ok := Models[id]; ok {
		return info
	}
	provider := "Unknown"
	if i := strings.Index(id, "/"); i > 0 {
		provider = id[:i]
	}
	return ModelInfo{ID: id, Name: id, Provider: provider, Capabilities: DefaultCapabilities}
}

// IsKnown reports whether id is in the capability table.
func IsKnown(id string) bool {
	_, ok := Models[id]
	return ok
}

// ListModels returns every table entry sorted by provider, then name.
func ListModels() []ModelInfo {
	out := make([]ModelInfo, 0, len(Models))
	for _, m := range Models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ModelIDs returns the sorted IDs from ListModels.
func ModelIDs() []string {
	models := ListModels()
	ids := make([]string, len(models))
	for i, m := range models {
		ids[i] = m.ID
	}
	return ids
}
