// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"time"

	"github.com/jeranaias/rigchat/internal/model"
)

// document is the structured form shared by the JSON and YAML exporters.
type document struct {
	ID           string           `json:"id" yaml:"id"`
	Title        string           `json:"title" yaml:"title"`
	Model        string           `json:"model,omitempty" yaml:"model,omitempty"`
	CreatedAt    time.Time        `json:"created_at" yaml:"created_at"`
	ExportedAt   time.Time        `json:"exported_at" yaml:"exported_at"`
	MessageCount int              `json:"message_count" yaml:"message_count"`
	Messages     []*model.Message `json:"messages" yaml:"messages"`
	Generator    string           `json:"generator" yaml:"generator"`
}

func newDocument(conv *model.Conversation, exportedAt time.Time) document {
	msgs := conv.Chronological()
	return document{
		ID:           conv.ID,
		Title:        conv.GetTitle(),
		Model:        conv.Model,
		CreatedAt:    conv.CreatedAt,
		ExportedAt:   exportedAt,
		MessageCount: len(msgs),
		Messages:     msgs,
		Generator:    "rigchat",
	}
}
