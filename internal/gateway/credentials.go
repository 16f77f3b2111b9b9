// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/rigchat/internal/util"
)

// StoredCredentials is the on-disk credential record.
type StoredCredentials struct {
	Token      string    `json:"token"`
	Username   string    `json:"username"`
	SignedInAt time.Time `json:"signed_in_at"`
}

// User returns the identity part of the record.
func (c *StoredCredentials) User() *User {
	return &User{Username: c.Username, SignedInAt: c.SignedInAt}
}

// CredentialStore keeps the signed-in token in a 0600 JSON file.
// A nil *CredentialStore is valid and stores nothing.
type CredentialStore struct {
	mu   sync.Mutex
	path string
}

// DefaultCredentialsPath returns ~/.rigchat/credentials.json.
func DefaultCredentialsPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".rigchat", "credentials.json"), nil
}

// NewCredentialStore creates a store at path, or the default path if empty.
func NewCredentialStore(path string) (*CredentialStore, error) {
	if path == "" {
		p, err := DefaultCredentialsPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &CredentialStore{path: path}, nil
}

// Path returns the credentials file path.
func (s *CredentialStore) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Load returns the stored credentials, or nil when none are stored.
func (s *CredentialStore) Load() (*StoredCredentials, error) {
	if s == nil {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var creds StoredCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if strings.TrimSpace(creds.Token) == "" {
		return nil, nil
	}
	return &creds, nil
}

// Save writes creds atomically with 0600 permissions.
func (s *CredentialStore) Save(creds *StoredCredentials) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(s.path, data, 0600)
}

// Clear removes the credentials file.
func (s *CredentialStore) Clear() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}

// Fingerprint returns a short SHA-256 identifier for a token, safe to log.
func Fingerprint(token string) string {
	if token == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:4])
}

// usernameFor picks the display name for a sign-in.
func usernameFor(creds Credentials) string {
	if name := strings.TrimSpace(creds.Username); name != "" {
		return name
	}
	return "user-" + Fingerprint(creds.Token)
}
