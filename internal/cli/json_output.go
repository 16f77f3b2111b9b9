// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// json_output.go - Machine-readable output for --json.

package cli

import (
	"encoding/json"
	"io"
	"time"
)

// JSONResponse is the envelope every command prints under --json.
type JSONResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data"`
	Error     *string     `json:"error"`
	Timestamp string      `json:"timestamp"`
	Command   string      `json:"command,omitempty"`
}

// NewJSONResponse creates a successful response.
func NewJSONResponse(command string, data interface{}) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates a failed response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	msg := errorText(err)
	return &JSONResponse{
		Success:   false,
		Error:     &msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Write encodes the response, indented, to w.
func (r *JSONResponse) Write(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// =============================================================================
// COMMAND DATA
// =============================================================================

// VersionData is the payload of "version --json".
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

// AskData is the payload of "ask --json".
type AskData struct {
	ID        string   `json:"id"`
	Model     string   `json:"model"`
	Mode      string   `json:"mode"`
	Content   string   `json:"content"`
	ImageURL  string   `json:"image_url,omitempty"`
	Function  string   `json:"function,omitempty"`
	Files     []string `json:"files,omitempty"`
	Tokens    int64    `json:"estimated_tokens"`
	Timestamp string   `json:"timestamp"`
}

// ModelData is one row of "models --json".
type ModelData struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	Capabilities  string `json:"capabilities,omitempty"`
	ContextLength int    `json:"context_length,omitempty"`
	OwnedBy       string `json:"owned_by,omitempty"`
}

// UsageData is the payload of the usage command.
type UsageData struct {
	Used      int64   `json:"used"`
	Limit     int64   `json:"limit"`
	Percent   float64 `json:"percent"`
	ResetDate string  `json:"reset_date,omitempty"`
	Backend   string  `json:"backend"`
}

// AuthData is the payload of "auth status --json".
type AuthData struct {
	SignedIn    bool   `json:"signed_in"`
	Username    string `json:"username,omitempty"`
	SignedInAt  string `json:"signed_in_at,omitempty"`
	Provider    string `json:"provider"`
	Credentials string `json:"credentials_path,omitempty"`
}
