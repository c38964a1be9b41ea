// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package policy applies natural-language editing policies to a markdown
// snapshot one chunk at a time. Each chunk is rewritten independently by an
// external Rewriter; proposals are validated and either accepted or
// rejected per chunk, and the accepted ones are reassembled into a new
// snapshot. Nothing here touches storage.
package policy

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"draftledger/internal/chunk"
	"draftledger/internal/models"
)

// Rejection reasons produced by proposal validation.
const (
	ReasonEmptyRewrite     = "empty rewrite"
	ReasonMultipleBlocks   = "rewrite spans multiple blocks"
	ReasonStructureChanged = "rewrite changes block structure"
)

var (
	// ErrEmptyPolicy is returned when the policy text is blank.
	ErrEmptyPolicy = errors.New("policy text must be non-empty")
	// ErrTimeout is returned when the rewrite deadline expires before every
	// chunk has an outcome.
	ErrTimeout = errors.New("policy edit timed out")
)

// RewriteRequest is what a Rewriter receives for a single chunk.
type RewriteRequest struct {
	Policy string
	Index  int
	Text   string
}

// Rewriter proposes a rewrite of one chunk under a policy. Returning a
// *RejectionError declines that chunk only; any other error aborts the
// whole edit.
type Rewriter interface {
	RewriteChunk(ctx context.Context, req RewriteRequest) (string, error)
}

// RewriterFunc adapts a function to the Rewriter interface.
type RewriterFunc func(ctx context.Context, req RewriteRequest) (string, error)

// RewriteChunk calls f.
func (f RewriterFunc) RewriteChunk(ctx context.Context, req RewriteRequest) (string, error) {
	return f(ctx, req)
}

// RejectionError is returned by a Rewriter that declines to rewrite a chunk.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return "rewrite rejected: " + e.Reason
}

// Outcome is the per-chunk result: exactly one of Accepted or Rejected.
type Outcome interface {
	outcome()
}

// Accepted carries the text that replaces the chunk.
type Accepted struct {
	Text string
}

// Rejected carries the reason the original chunk text was kept.
type Rejected struct {
	Reason string
}

func (Accepted) outcome() {}
func (Rejected) outcome() {}

// ChunkResult pairs a chunk's original text with its outcome.
type ChunkResult struct {
	Index    int
	Original string
	Outcome  Outcome
}

// Changed reports whether the chunk was accepted with different text.
func (r ChunkResult) Changed() bool {
	a, ok := r.Outcome.(Accepted)
	return ok && a.Text != r.Original
}

// Result is the outcome of applying a policy to a snapshot.
type Result struct {
	Content string
	Chunks  []ChunkResult
}

// Changed reports whether at least one chunk changed textually.
func (r *Result) Changed() bool {
	for _, c := range r.Chunks {
		if c.Changed() {
			return true
		}
	}
	return false
}

// ChangedChunks returns the indices of chunks whose text changed, ascending.
func (r *Result) ChangedChunks() []int {
	out := []int{}
	for _, c := range r.Chunks {
		if c.Changed() {
			out = append(out, c.Index)
		}
	}
	return out
}

// RejectedChunks returns every rejected chunk with its reason, ascending.
func (r *Result) RejectedChunks() []models.RejectedChunk {
	out := []models.RejectedChunk{}
	for _, c := range r.Chunks {
		if rej, ok := c.Outcome.(Rejected); ok {
			out = append(out, models.RejectedChunk{ChunkIndex: c.Index, Reason: rej.Reason})
		}
	}
	return out
}

// Applier runs policy edits against a Rewriter.
type Applier struct {
	rewriter    Rewriter
	timeout     time.Duration
	concurrency int
}

// Option configures an Applier.
type Option func(*Applier)

// WithTimeout bounds the total time spent waiting on the rewriter.
// Zero disables the bound and leaves the caller's context in charge.
func WithTimeout(d time.Duration) Option {
	return func(a *Applier) { a.timeout = d }
}

// WithConcurrency limits how many chunks are rewritten at once.
func WithConcurrency(n int) Option {
	return func(a *Applier) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// NewApplier creates an Applier. Defaults: 60s timeout, 4 chunks in flight.
func NewApplier(r Rewriter, opts ...Option) *Applier {
	a := &Applier{
		rewriter:    r,
		timeout:     60 * time.Second,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply segments content, asks the rewriter for a proposal per chunk, and
// reassembles the accepted proposals. Blank chunks and thematic breaks are
// not sent to the rewriter and keep their text.
//
// A proposal that is a single block on its own but would merge with or
// swallow its neighbours once reassembled is rejected, so every chunk the
// rewriter did not change keeps its text and index.
//
// A rewriter failure other than a RejectionError, or expiry of the
// deadline, aborts the edit and returns an error with no Result.
func (a *Applier) Apply(ctx context.Context, content, policyText string) (*Result, error) {
	if strings.TrimSpace(policyText) == "" {
		return nil, ErrEmptyPolicy
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	chunks := chunk.Segment(content)
	outcomes := make([]Outcome, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, c := range chunks {
		if c.IsBlank() || c.IsBreak() {
			outcomes[i] = Accepted{Text: c.Text}
			continue
		}
		g.Go(func() error {
			proposal, err := a.rewriter.RewriteChunk(gctx, RewriteRequest{
				Policy: policyText,
				Index:  i,
				Text:   c.Text,
			})
			var rej *RejectionError
			if errors.As(err, &rej) {
				outcomes[i] = Rejected{Reason: rej.Reason}
				return nil
			}
			if err != nil {
				return fmt.Errorf("rewrite chunk %d: %w", i, err)
			}
			outcomes[i] = validate(proposal)
			return nil
		})
	}

	err := g.Wait()
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %w", ErrTimeout, ctxErr)
	} else if err == nil && ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, err
	}

	merged := foldAccepted(chunks, outcomes)
	result := &Result{Content: chunk.Join(merged), Chunks: make([]ChunkResult, len(chunks))}
	for i, c := range chunks {
		result.Chunks[i] = ChunkResult{Index: i, Original: c.Text, Outcome: outcomes[i]}
	}
	return result, nil
}

// foldAccepted folds accepted proposals into a copy of chunks in index
// order. A proposal is kept only if the snapshot still segments into the
// same chunks afterwards; otherwise its outcome becomes a rejection.
func foldAccepted(chunks []chunk.Chunk, outcomes []Outcome) []chunk.Chunk {
	current := slices.Clone(chunks)
	for i := range chunks {
		acc, ok := outcomes[i].(Accepted)
		if !ok || acc.Text == chunks[i].Text {
			continue
		}
		trial := slices.Clone(current)
		trial[i].Text = acc.Text
		if !sameBlocks(trial) {
			outcomes[i] = Rejected{Reason: ReasonStructureChanged}
			continue
		}
		current = trial
	}
	return current
}

// sameBlocks reports whether joining and re-segmenting want yields exactly
// the same chunk texts at the same indices.
func sameBlocks(want []chunk.Chunk) bool {
	got := chunk.Segment(chunk.Join(want))
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i].Text != want[i].Text {
			return false
		}
	}
	return true
}

// validate checks a proposal for structural sanity. Policy compliance is the
// rewriter's responsibility and is not re-checked here.
func validate(proposal string) Outcome {
	text := strings.Trim(proposal, "\r\n")
	if strings.TrimSpace(text) == "" {
		return Rejected{Reason: ReasonEmptyRewrite}
	}
	if len(chunk.Segment(text)) != 1 {
		return Rejected{Reason: ReasonMultipleBlocks}
	}
	return Accepted{Text: text}
}
