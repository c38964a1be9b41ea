// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"draftledger/internal/config"
	"draftledger/internal/database"
	"draftledger/internal/models"
	"draftledger/internal/store"
)

func runRevisions(cmd *cobra.Command, args []string) error {
	postID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid post id %q: %w", args[0], err)
	}
	if appConfig.StoreBackend != config.StorePostgres {
		return fmt.Errorf("revisions needs STORE_BACKEND=%s", config.StorePostgres)
	}

	db, err := database.Connect(appConfig.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	revs, err := store.NewPostStore(db).ListRevisions(cmd.Context(), postID)
	if err != nil {
		return fmt.Errorf("list revisions for %s: %w", postID, err)
	}
	return printRevisions(cmd.OutOrStdout(), revs, revisionsJSON)
}

// printRevisions writes a ledger oldest first, without content.
func printRevisions(w io.Writer, revs []models.Revision, asJSON bool) error {
	if asJSON {
		type row struct {
			RevisionID       int              `json:"revision_id"`
			ParentRevisionID *int             `json:"parent_revision_id"`
			Timestamp        time.Time        `json:"timestamp"`
			DeltaType        models.DeltaType `json:"delta_type"`
			DeltaPayload     map[string]any   `json:"delta_payload"`
			ContentDigest    string           `json:"content_digest"`
		}
		rows := make([]row, len(revs))
		for i, r := range revs {
			rows[i] = row{r.ID, r.ParentID, r.CreatedAt, r.DeltaType, r.DeltaPayload.Fields(r.DeltaType), r.ContentDigest}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REV\tPARENT\tTYPE\tTIMESTAMP\tDIGEST\tDETAIL")
	for _, r := range revs {
		parent := "-"
		if r.ParentID != nil {
			parent = strconv.Itoa(*r.ParentID)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, parent, r.DeltaType, r.CreatedAt.UTC().Format(time.RFC3339), shortDigest(r.ContentDigest), detail(r))
	}
	return tw.Flush()
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

// detail summarizes the delta payload in a few words.
func detail(r models.Revision) string {
	p := r.DeltaPayload
	switch r.DeltaType {
	case models.DeltaPolicyEdit:
		return fmt.Sprintf("changed %d, rejected %d", len(p.ChangedChunks), len(p.RejectedChunks))
	case models.DeltaContentEdit:
		return fmt.Sprintf("changed %d", len(p.ChangedChunks))
	case models.DeltaRevertCopy:
		if p.RevertedToRevisionID != nil {
			return fmt.Sprintf("copy of %d", *p.RevertedToRevisionID)
		}
	}
	return ""
}
