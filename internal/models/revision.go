// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// DeltaType names the kind of mutation that produced a revision.
type DeltaType string

const (
	DeltaCreate      DeltaType = "create"
	DeltaContentEdit DeltaType = "content_edit"
	DeltaPolicyEdit  DeltaType = "policy_edit"
	DeltaRevertCopy  DeltaType = "revert_copy"
)

// Valid reports whether d is a known delta type.
func (d DeltaType) Valid() bool {
	switch d {
	case DeltaCreate, DeltaContentEdit, DeltaPolicyEdit, DeltaRevertCopy:
		return true
	}
	return false
}

// RejectedChunk records why a policy edit left a chunk untouched.
type RejectedChunk struct {
	ChunkIndex int    `json:"chunk_index"`
	Reason     string `json:"reason"`
}

// DeltaPayload is the structured metadata stored alongside a revision.
// Which fields are meaningful depends on the revision's DeltaType; see Fields.
type DeltaPayload struct {
	ChangedChunks        []int           `json:"changed_chunks,omitempty"`
	RejectedChunks       []RejectedChunk `json:"rejected_chunks,omitempty"`
	Policy               string          `json:"policy,omitempty"`
	RevertedToRevisionID *int            `json:"reverted_to_revision_id,omitempty"`
}

// Fields returns the payload as the JSON object exposed for a delta type.
// policy_edit always carries both chunk lists, even when empty.
func (p DeltaPayload) Fields(t DeltaType) map[string]any {
	switch t {
	case DeltaPolicyEdit:
		changed := p.ChangedChunks
		if changed == nil {
			changed = []int{}
		}
		rejected := p.RejectedChunks
		if rejected == nil {
			rejected = []RejectedChunk{}
		}
		fields := map[string]any{
			"changed_chunks":  changed,
			"rejected_chunks": rejected,
		}
		if p.Policy != "" {
			fields["policy"] = p.Policy
		}
		return fields
	case DeltaRevertCopy:
		fields := map[string]any{}
		if p.RevertedToRevisionID != nil {
			fields["reverted_to_revision_id"] = *p.RevertedToRevisionID
		}
		return fields
	default:
		changed := p.ChangedChunks
		if changed == nil {
			changed = []int{}
		}
		return map[string]any{"changed_chunks": changed}
	}
}

// Clone returns a deep copy of the payload.
func (p DeltaPayload) Clone() DeltaPayload {
	out := DeltaPayload{Policy: p.Policy}
	if p.ChangedChunks != nil {
		out.ChangedChunks = append([]int(nil), p.ChangedChunks...)
	}
	if p.RejectedChunks != nil {
		out.RejectedChunks = append([]RejectedChunk(nil), p.RejectedChunks...)
	}
	if p.RevertedToRevisionID != nil {
		id := *p.RevertedToRevisionID
		out.RevertedToRevisionID = &id
	}
	return out
}

// Delta describes a mutation about to be committed to a post's ledger.
type Delta struct {
	Type    DeltaType
	Payload DeltaPayload
}

// Revision is one immutable node in a post's append-only history. ID counts
// from 1 per post; ParentID is nil only for the first revision.
type Revision struct {
	PostID        uuid.UUID    `json:"post_id"`
	ID            int          `json:"revision_id"`
	ParentID      *int         `json:"parent_revision_id"`
	Content       string       `json:"content"`
	ContentDigest string       `json:"content_digest"`
	DeltaType     DeltaType    `json:"delta_type"`
	DeltaPayload  DeltaPayload `json:"delta_payload"`
	CreatedAt     time.Time    `json:"timestamp"`
}

// Clone returns a deep copy of the revision.
func (r Revision) Clone() Revision {
	out := r
	if r.ParentID != nil {
		id := *r.ParentID
		out.ParentID = &id
	}
	out.DeltaPayload = r.DeltaPayload.Clone()
	return out
}

// Digest returns the hex BLAKE2b-256 fingerprint of a content snapshot.
func Digest(content string) string {
	sum := blake2b.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
