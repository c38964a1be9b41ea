package models

import (
	"reflect"
	"testing"
)

func TestDeltaPayloadFields(t *testing.T) {
	rev := 2

	t.Run("policy edit always carries both lists", func(t *testing.T) {
		got := DeltaPayload{}.Fields(DeltaPolicyEdit)
		if c, ok := got["changed_chunks"].([]int); !ok || len(c) != 0 {
			t.Errorf("changed_chunks = %#v, want empty []int", got["changed_chunks"])
		}
		if r, ok := got["rejected_chunks"].([]RejectedChunk); !ok || len(r) != 0 {
			t.Errorf("rejected_chunks = %#v, want empty list", got["rejected_chunks"])
		}
		if _, ok := got["policy"]; ok {
			t.Error("policy should be omitted when empty")
		}
	})

	t.Run("policy edit with content", func(t *testing.T) {
		p := DeltaPayload{
			ChangedChunks:  []int{0, 2},
			RejectedChunks: []RejectedChunk{{ChunkIndex: 1, Reason: "tone"}},
			Policy:         "be concise",
		}
		got := p.Fields(DeltaPolicyEdit)
		if !reflect.DeepEqual(got["changed_chunks"], []int{0, 2}) {
			t.Errorf("changed_chunks = %v", got["changed_chunks"])
		}
		if got["policy"] != "be concise" {
			t.Errorf("policy = %v", got["policy"])
		}
	})

	t.Run("revert copy", func(t *testing.T) {
		got := DeltaPayload{RevertedToRevisionID: &rev}.Fields(DeltaRevertCopy)
		if got["reverted_to_revision_id"] != 2 {
			t.Errorf("reverted_to_revision_id = %v, want 2", got["reverted_to_revision_id"])
		}
		if _, ok := got["changed_chunks"]; ok {
			t.Error("revert copy should not carry changed_chunks")
		}
	})

	t.Run("create has empty changed list", func(t *testing.T) {
		got := DeltaPayload{}.Fields(DeltaCreate)
		if c, ok := got["changed_chunks"].([]int); !ok || len(c) != 0 {
			t.Errorf("changed_chunks = %#v, want empty []int", got["changed_chunks"])
		}
	})
}

func TestRevisionCloneIsDeep(t *testing.T) {
	parent := 1
	target := 1
	r := Revision{
		ID:       2,
		ParentID: &parent,
		DeltaPayload: DeltaPayload{
			ChangedChunks:        []int{0},
			RejectedChunks:       []RejectedChunk{{ChunkIndex: 1, Reason: "x"}},
			RevertedToRevisionID: &target,
		},
	}

	c := r.Clone()
	*c.ParentID = 9
	c.DeltaPayload.ChangedChunks[0] = 9
	c.DeltaPayload.RejectedChunks[0].Reason = "y"
	*c.DeltaPayload.RevertedToRevisionID = 9

	if *r.ParentID != 1 || r.DeltaPayload.ChangedChunks[0] != 0 ||
		r.DeltaPayload.RejectedChunks[0].Reason != "x" || *r.DeltaPayload.RevertedToRevisionID != 1 {
		t.Errorf("original revision mutated through clone: %+v", r)
	}
}

func TestDigest(t *testing.T) {
	a := Digest("hello")
	if len(a) != 64 {
		t.Fatalf("Digest length = %d, want 64 hex chars", len(a))
	}
	if a != Digest("hello") {
		t.Error("Digest is not deterministic")
	}
	if a == Digest("hello\n") {
		t.Error("Digest ignores trailing newline")
	}
}

func TestDeltaTypeValid(t *testing.T) {
	for _, d := range []DeltaType{DeltaCreate, DeltaContentEdit, DeltaPolicyEdit, DeltaRevertCopy} {
		if !d.Valid() {
			t.Errorf("%q should be valid", d)
		}
	}
	if DeltaType("merge").Valid() {
		t.Error("merge should not be valid")
	}
}
