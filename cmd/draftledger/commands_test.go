package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"draftledger/internal/ai"
	"draftledger/internal/config"
	"draftledger/internal/models"
	"draftledger/internal/policy"
)

func TestPrintPoliciesTable(t *testing.T) {
	var buf bytes.Buffer
	policies := []policy.Policy{
		{ID: "concise", Name: "Concise", Text: "Shorten sentences\nwithout losing facts."},
		{ID: "long", Name: "Long", Text: strings.Repeat("word ", 30)},
	}
	if err := printPolicies(&buf, policies, false); err != nil {
		t.Fatalf("printPolicies: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"ID", "concise", "Shorten sentences without losing facts.", "…"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if lines := strings.Count(out, "\n"); lines != 3 {
		t.Errorf("got %d lines, want header plus 2 rows", lines)
	}
}

func TestPrintPoliciesEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := printPolicies(&buf, nil, false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "POLICY_FILE") {
		t.Errorf("empty library message = %q", buf.String())
	}
}

func TestPrintPoliciesJSON(t *testing.T) {
	var buf bytes.Buffer
	policies := []policy.Policy{{ID: "plain", Name: "Plain", Text: "Use plain language."}}
	if err := printPolicies(&buf, policies, true); err != nil {
		t.Fatal(err)
	}
	var got []policy.Policy
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	if len(got) != 1 || got[0] != policies[0] {
		t.Errorf("got %+v", got)
	}
}

func testLedger() []models.Revision {
	one, two := 1, 2
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []models.Revision{
		{ID: 1, ContentDigest: "abcdef0123456789", DeltaType: models.DeltaCreate, CreatedAt: at},
		{ID: 2, ParentID: &one, ContentDigest: "1234", DeltaType: models.DeltaPolicyEdit, CreatedAt: at.Add(time.Minute),
			DeltaPayload: models.DeltaPayload{
				ChangedChunks:  []int{0, 2},
				RejectedChunks: []models.RejectedChunk{{ChunkIndex: 1, Reason: "too vague"}},
				Policy:         "Be brief.",
			}},
		{ID: 3, ParentID: &two, DeltaType: models.DeltaRevertCopy, CreatedAt: at.Add(2 * time.Minute),
			DeltaPayload: models.DeltaPayload{RevertedToRevisionID: &one}},
	}
}

func TestPrintRevisionsTable(t *testing.T) {
	var buf bytes.Buffer
	if err := printRevisions(&buf, testLedger(), false); err != nil {
		t.Fatalf("printRevisions: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}

	tests := []struct {
		line int
		want []string
	}{
		{1, []string{"1", "-", "create", "2026-03-01T12:00:00Z", "abcdef012345"}},
		{2, []string{"policy_edit", "changed 2, rejected 1"}},
		{3, []string{"revert_copy", "copy of 1"}},
	}
	for _, tt := range tests {
		for _, w := range tt.want {
			if !strings.Contains(lines[tt.line], w) {
				t.Errorf("line %d = %q, missing %q", tt.line, lines[tt.line], w)
			}
		}
	}
	if strings.Contains(lines[1], "abcdef0123456") {
		t.Errorf("digest not shortened: %q", lines[1])
	}
}

func TestPrintRevisionsJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := printRevisions(&buf, testLedger(), true); err != nil {
		t.Fatal(err)
	}
	var got []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d revisions", len(got))
	}
	if got[0]["parent_revision_id"] != nil {
		t.Errorf("first parent = %v, want null", got[0]["parent_revision_id"])
	}
	if _, ok := got[0]["content"]; ok {
		t.Error("ledger output must not include content")
	}
	if got[1]["delta_type"] != "policy_edit" {
		t.Errorf("delta_type = %v", got[1]["delta_type"])
	}
}

func TestSetupLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	tests := []struct {
		env       string
		wantJSON  bool
		wantDebug bool
	}{
		{"production", true, false},
		{"development", false, true},
		{"testing", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			var buf bytes.Buffer
			setupLogger(&buf, tt.env)
			slog.Debug("debug line")
			slog.Info("info line", "post_id", "p1")

			out := buf.String()
			if got := strings.Contains(out, "debug line"); got != tt.wantDebug {
				t.Errorf("debug logged = %v, want %v", got, tt.wantDebug)
			}
			if got := strings.HasPrefix(out, "{") || strings.Contains(out, "\n{"); got != tt.wantJSON {
				t.Errorf("JSON output = %v, want %v:\n%s", got, tt.wantJSON, out)
			}
		})
	}
}

func TestNewRegistryProviderOverride(t *testing.T) {
	cfg := &config.Config{
		AIProvider:  "gemini",
		OpenAIKey:   "sk-test",
		OpenAIModel: "gpt-4o",
		GeminiKey:   "g-test",
		GeminiModel: "gemini-2.5-pro",
	}

	tests := []struct {
		override   string
		wantActive string
		wantErr    bool
	}{
		{"", "gemini", false},
		{"openai", "openai", false},
		{"claude", "", true},
		{"unknown", "", true},
	}
	for _, tt := range tests {
		t.Run("override="+tt.override, func(t *testing.T) {
			reg, err := newRegistry(cfg, tt.override)
			if tt.wantErr {
				if !errors.Is(err, ai.ErrNoProvider) {
					t.Fatalf("err = %v, want ErrNoProvider", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("newRegistry: %v", err)
			}
			if got := reg.ActiveName(); got != tt.wantActive {
				t.Errorf("active = %q, want %q", got, tt.wantActive)
			}
		})
	}
}
