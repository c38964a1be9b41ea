// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"draftledger/internal/metrics"
	"draftledger/internal/models"
	"draftledger/internal/policy"
)

// Reply markers the rewrite prompt asks the model to use.
const (
	unchangedMarker = "UNCHANGED"
	rejectMarker    = "REJECT:"
)

// Generator is the subset of Registry the Assistant needs.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	CheckPrompt(ctx context.Context, prompt string) (*ModerationResult, error)
}

// Assistant turns blog operations into provider prompts. All provider
// calls share one rate limiter so a policy edit fanning out over many
// chunks cannot exceed the configured request rate.
type Assistant struct {
	gen     Generator
	limiter *rate.Limiter
}

// NewAssistant wraps a generator. requestsPerSecond <= 0 disables throttling.
func NewAssistant(gen Generator, requestsPerSecond float64, burst int) *Assistant {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &Assistant{gen: gen, limiter: rate.NewLimiter(limit, burst)}
}

func (a *Assistant) call(ctx context.Context, op, system, user string) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%s: rate limit wait: %w", op, err)
	}
	start := time.Now()
	out, err := a.gen.Generate(ctx, system, user)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.UpstreamDuration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

const documentSystemPrompt = `You write blog posts in Markdown.
Follow the brief exactly: honour required sections, never include forbidden
sections, include every required mention, and avoid everything listed under
"Must avoid". Start with a single "# " heading. Separate blocks with one
blank line. Reply with the Markdown document only, no commentary.`

// GenerateDocument produces a markdown document from an intent.
func (a *Assistant) GenerateDocument(ctx context.Context, intent *models.Intent) (string, error) {
	out, err := a.call(ctx, "generate_document", documentSystemPrompt, intent.PromptText())
	if err != nil {
		return "", err
	}
	doc := stripFence(strings.TrimSpace(out))
	if doc == "" {
		return "", fmt.Errorf("generate_document: provider returned an empty document")
	}
	return doc + "\n", nil
}

const rewriteSystemPrompt = `You are a careful copy editor. You receive one
block of a Markdown document and an editing policy. Apply the policy to
that block only and reply with the rewritten block and nothing else. Keep
it a single block: do not add blank lines, headings or new paragraphs, and
keep the Markdown block type (heading, list, paragraph) the same.
If the block already satisfies the policy, reply exactly UNCHANGED.
If the policy cannot be applied without changing the block's meaning,
reply "REJECT: " followed by a short reason.`

// RewriteChunk asks the provider to apply a policy to one chunk. brief is
// the post's intent rendered as text and may be empty.
func (a *Assistant) RewriteChunk(ctx context.Context, brief string, req policy.RewriteRequest) (string, error) {
	var user strings.Builder
	fmt.Fprintf(&user, "Editing policy:\n%s\n\n", strings.TrimSpace(req.Policy))
	if brief != "" {
		fmt.Fprintf(&user, "Document brief:\n%s\n\n", brief)
	}
	fmt.Fprintf(&user, "Block %d:\n%s", req.Index, req.Text)

	out, err := a.call(ctx, "rewrite_chunk", rewriteSystemPrompt, user.String())
	if err != nil {
		return "", err
	}
	return parseRewrite(req.Text, out)
}

// parseRewrite interprets the model's reply to a rewrite prompt.
func parseRewrite(original, reply string) (string, error) {
	trimmed := strings.TrimSpace(reply)
	switch {
	case trimmed == unchangedMarker:
		return original, nil
	case strings.HasPrefix(trimmed, rejectMarker):
		reason := strings.TrimSpace(strings.TrimPrefix(trimmed, rejectMarker))
		if reason == "" {
			reason = "rejected by editor"
		}
		return "", &policy.RejectionError{Reason: reason}
	}
	if !strings.HasPrefix(strings.TrimSpace(original), "```") {
		trimmed = stripFence(trimmed)
	}
	return trimmed, nil
}

const titleSystemPrompt = `Suggest one concise, specific title for the
blog post you are given. Reply with the title only: no quotes, no Markdown,
no trailing punctuation.`

// SuggestTitle proposes a title for the given content.
func (a *Assistant) SuggestTitle(ctx context.Context, content string) (string, error) {
	out, err := a.call(ctx, "suggest_title", titleSystemPrompt, content)
	if err != nil {
		return "", err
	}
	title := strings.TrimSpace(strings.SplitN(strings.TrimSpace(out), "\n", 2)[0])
	title = strings.TrimLeft(title, "# ")
	title = strings.Trim(title, `"'`+"`")
	title = strings.TrimRight(title, ".")
	if title == "" {
		return "", fmt.Errorf("suggest_title: provider returned an empty title")
	}
	return title, nil
}

// Moderate returns the flagged categories for text, or nil if it is safe.
func (a *Assistant) Moderate(ctx context.Context, text string) ([]string, error) {
	res, err := a.gen.CheckPrompt(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("moderation: %w", err)
	}
	if res.Safe {
		return nil, nil
	}
	if len(res.Categories) == 0 {
		return []string{"unspecified"}, nil
	}
	return res.Categories, nil
}

// stripFence removes a surrounding ``` fence that models sometimes add.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") {
		return s
	}
	first := strings.IndexByte(s, '\n')
	last := strings.LastIndexByte(s, '\n')
	if first < 0 || last <= first {
		return s
	}
	return strings.TrimSpace(s[first+1 : last])
}
