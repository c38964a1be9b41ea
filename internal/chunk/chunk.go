// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package chunk splits markdown snapshots into indexed, block-level chunks
// that can be rewritten independently and reassembled byte-for-byte.
//
// Every byte of the input belongs to exactly one chunk: the block text
// itself, or the separator bytes recorded in Leading and Trailing. Joining
// the chunks in index order always reproduces the original input.
package chunk

import (
	"regexp"
	"strings"
)

// Chunk is one contiguous block of a content snapshot.
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	// Leading holds blank lines that precede the first block of a document.
	Leading string `json:"-"`
	// Trailing holds the block's final line terminator and any blank lines
	// that follow it.
	Trailing string `json:"-"`
}

// String returns the chunk exactly as it appears in the snapshot.
func (c Chunk) String() string {
	return c.Leading + c.Text + c.Trailing
}

// IsBlank reports whether the chunk carries no addressable text.
func (c Chunk) IsBlank() bool {
	return strings.TrimSpace(c.Text) == ""
}

// IsBreak reports whether the chunk is a thematic break ("---", "***").
func (c Chunk) IsBreak() bool {
	return thematicBreak.MatchString(strings.TrimRight(c.Text, "\r"))
}

var (
	atxHeading    = regexp.MustCompile(`^ {0,3}#{1,6}(?:[ \t]|$)`)
	thematicBreak = regexp.MustCompile(`^ {0,3}(?:(?:-[ \t]*){3,}|(?:\*[ \t]*){3,}|(?:_[ \t]*){3,})$`)
	listItem      = regexp.MustCompile(`^ {0,3}(?:[-+*]|\d{1,9}[.)])(?:[ \t]|$)`)
	fenceOpen     = regexp.MustCompile("^ {0,3}(`{3,}|~{3,})")
	// setextUnderline turns the paragraph above it into a level-2 heading.
	setextUnderline = regexp.MustCompile(`^ {0,3}-+[ \t]*$`)
)

// line is a single input line with its terminator split off.
type line struct {
	body string // without terminator
	term string // "\n", "\r\n" or "" for the final unterminated line
}

func (l line) blank() bool { return strings.TrimSpace(l.body) == "" }

func splitLines(s string) []line {
	var out []line
	for len(s) > 0 {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			out = append(out, line{body: s})
			break
		}
		body, term := s[:i], "\n"
		if strings.HasSuffix(body, "\r") {
			body, term = body[:len(body)-1], "\r\n"
		}
		out = append(out, line{body: body, term: term})
		s = s[i+1:]
	}
	return out
}

// Segment splits content into chunks at block boundaries: blank-line runs,
// headings, thematic breaks, fenced code blocks, and the transition from a
// paragraph into a list. A dash line directly under paragraph text is a
// setext underline and stays in the paragraph's chunk. The result is deterministic for a given input.
//
// Empty content yields no chunks. Content made only of blank lines yields a
// single chunk with empty Text.
func Segment(content string) []Chunk {
	if content == "" {
		return nil
	}
	lines := splitLines(content)

	var leading strings.Builder
	i := 0
	for i < len(lines) && lines[i].blank() {
		leading.WriteString(lines[i].body + lines[i].term)
		i++
	}
	if i == len(lines) {
		return []Chunk{{Index: 0, Leading: content}}
	}

	var chunks []Chunk
	for i < len(lines) {
		end := blockEnd(lines, i)

		var text strings.Builder
		for k := i; k < end; k++ {
			text.WriteString(lines[k].body)
			if k < end-1 {
				text.WriteString(lines[k].term)
			}
		}

		var trailing strings.Builder
		trailing.WriteString(lines[end-1].term)
		for end < len(lines) && lines[end].blank() {
			trailing.WriteString(lines[end].body + lines[end].term)
			end++
		}

		c := Chunk{Index: len(chunks), Text: text.String(), Trailing: trailing.String()}
		if len(chunks) == 0 {
			c.Leading = leading.String()
		}
		chunks = append(chunks, c)
		i = end
	}
	return chunks
}

// blockEnd returns the exclusive end of the block starting at the
// non-blank line lines[start].
func blockEnd(lines []line, start int) int {
	first := lines[start].body

	if m := fenceOpen.FindStringSubmatch(first); m != nil {
		marker := m[1]
		for k := start + 1; k < len(lines); k++ {
			if closesFence(lines[k].body, marker) {
				return k + 1
			}
		}
		return len(lines)
	}
	if atxHeading.MatchString(first) || thematicBreak.MatchString(first) {
		return start + 1
	}

	inList := listItem.MatchString(first)
	k := start + 1
	for ; k < len(lines); k++ {
		body := lines[k].body
		if lines[k].blank() {
			break
		}
		if !inList && setextUnderline.MatchString(body) {
			return k + 1
		}
		if startsOwnBlock(body) {
			break
		}
		if !inList && listItem.MatchString(body) {
			break
		}
	}
	return k
}

func startsOwnBlock(body string) bool {
	return atxHeading.MatchString(body) || thematicBreak.MatchString(body) || fenceOpen.MatchString(body)
}

// closesFence reports whether body is a closing fence for marker: the same
// fence character, at least as long, followed only by whitespace.
func closesFence(body, marker string) bool {
	trimmed := strings.TrimLeft(body, " ")
	if len(body)-len(trimmed) > 3 {
		return false
	}
	ch := marker[0]
	n := 0
	for n < len(trimmed) && trimmed[n] == ch {
		n++
	}
	return n >= len(marker) && strings.TrimSpace(trimmed[n:]) == ""
}

// Join reassembles chunks in slice order.
func Join(chunks []Chunk) string {
	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(c.String())
	}
	return sb.String()
}

// Diff returns the indices at which the two segmentations differ, in
// ascending order. An index present in only one of them counts as changed.
func Diff(before, after []Chunk) []int {
	n := max(len(before), len(after))
	changed := []int{}
	for i := 0; i < n; i++ {
		if i >= len(before) || i >= len(after) || before[i].String() != after[i].String() {
			changed = append(changed, i)
		}
	}
	return changed
}

// ChangedIndices segments both snapshots and reports which chunk indices
// differ between them.
func ChangedIndices(before, after string) []int {
	return Diff(Segment(before), Segment(after))
}
