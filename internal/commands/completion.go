// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// COMPLETER
// =============================================================================

// Completer produces whole-line completions for a partially typed command.
// Its Complete method has the shape line editors expect.
type Completer struct {
	registry *Registry

	// MessageIDs supplies IDs for message arguments. Optional.
	MessageIDs func() []string
}

// NewCompleter creates a completer over registry.
func NewCompleter(registry *Registry) *Completer {
	return &Completer{registry: registry}
}

// Complete returns candidate lines that extend line.
func (c *Completer) Complete(line string) []string {
	if !IsCommand(line) {
		return nil
	}

	if partial := GetPartialCommand(line); partial != "" {
		var out []string
		for _, name := range c.registry.CommandNames() {
			if strings.HasPrefix(name, partial) {
				out = append(out, name+" ")
			}
		}
		return out
	}

	cmd := c.registry.Get(ExtractCommandName(line))
	if cmd == nil {
		return nil
	}
	idx, partial := GetPartialArg(line)
	if idx >= len(cmd.Args) {
		return nil
	}
	prefix := line[:len(line)-len(partial)]

	var out []string
	for _, v := range c.argValues(cmd.Args[idx], partial, splitCommandLine(line)) {
		if strings.HasPrefix(v, partial) {
			out = append(out, prefix+v)
		}
	}
	return out
}

// argValues lists candidates for def. fields is the tokenized line, with
// the command name at index 0.
func (c *Completer) argValues(def ArgDef, partial string, fields []string) []string {
	switch def.Type {
	case ArgTypeTemplate:
		if len(fields) > 1 {
			return templateSlugs(fields[1])
		}
		return nil
	case ArgTypeModel:
		return model.ModelIDs()
	case ArgTypeMessage:
		if c.MessageIDs != nil {
			return c.MessageIDs()
		}
	case ArgTypeFile:
		return completeFile(partial)
	}
	return def.Values
}

// completeFile lists entries in partial's directory; directories get a
// trailing separator.
func completeFile(partial string) []string {
	dir, base := filepath.Split(partial)
	readDir := dir
	if readDir == "" {
		readDir = "."
	}
	entries, err := os.ReadDir(readDir)
	if err != nil {
		return nil
	}

	var out []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(base, ".") {
			continue
		}
		full := dir + name
		if e.IsDir() {
			full += string(filepath.Separator)
		}
		out = append(out, full)
	}
	return out
}
