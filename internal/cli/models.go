// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/util"
)

// HandleModels prints the capability table, or with --remote the list the
// gateway reports.
func HandleModels(ctx context.Context, rt *Runtime, args Args) error {
	p := NewArgParser(args.Raw, "remote", "r")

	var rows []ModelData
	if p.BoolFlag("remote", "r") {
		remote, err := rt.Gateway.ListModels(ctx)
		if err != nil {
			return NewCommandError("models", "list", err)
		}
		for _, m := range remote {
			row := ModelData{ID: m.ID, Name: m.Name, ContextLength: m.ContextLength, OwnedBy: m.OwnedBy}
			if model.IsKnown(m.ID) {
				row.Capabilities = model.GetModelInfo(m.ID).CapabilitiesString()
			}
			rows = append(rows, row)
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	} else {
		for _, m := range model.ListModels() {
			rows = append(rows, ModelData{
				ID:            m.ID,
				Name:          m.Name,
				Capabilities:  m.CapabilitiesString(),
				ContextLength: m.Capabilities.MaxTokens,
				OwnedBy:       m.Provider,
			})
		}
	}

	if args.JSON {
		return NewJSONResponse("models", rows).Write(args.Stdout)
	}

	current := rt.Chat.Snapshot().Model
	fmt.Fprint(args.Stdout, renderModelTable(rows, current))
	return nil
}

// renderModelTable lays rows out in aligned columns and marks current.
func renderModelTable(rows []ModelData, current string) string {
	if len(rows) == 0 {
		return "No models.\n"
	}

	idW, nameW := len("MODEL"), len("NAME")
	for _, r := range rows {
		idW = max(idW, util.StringWidth(r.ID))
		nameW = max(nameW, util.StringWidth(r.Name))
	}

	head := SectionStyle.UnsetMarginTop()
	var b strings.Builder
	b.WriteString("  " + head.Render(util.PadRight("MODEL", idW)) + "  " +
		head.Render(util.PadRight("NAME", nameW)) + "  " +
		head.Render("CAPABILITIES") + "\n")
	for _, r := range rows {
		marker := "  "
		id := util.PadRight(r.ID, idW)
		if r.ID == current {
			marker = "* "
			id = SuccessStyle.Render(id)
		}
		caps := r.Capabilities
		if caps == "" {
			caps = "-"
		}
		b.WriteString(marker + id + "  " + util.PadRight(r.Name, nameW) + "  " + DimStyle.Render(caps) + "\n")
	}
	return b.String()
}
