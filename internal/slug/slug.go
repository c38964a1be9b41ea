// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package slug turns post titles into filesystem and object-key safe names.
package slug

import (
	"regexp"
	"strings"
)

// maxLen caps a slug so export keys and download names stay short.
const maxLen = 80

// nonAlphanumeric matches anything that isn't a letter, digit, space or hyphen.
var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9\s-]`)

// Generate creates a lowercase, hyphen-separated slug.
// Example: "Hello, World! 2026" → "hello-world-2026"
func Generate(s string) string {
	cleaned := nonAlphanumeric.ReplaceAllString(strings.ToLower(s), "")
	words := strings.FieldsFunc(cleaned, func(r rune) bool {
		return r == '-' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	result := strings.Join(words, "-")
	if len(result) > maxLen {
		result = strings.TrimRight(result[:maxLen], "-")
	}
	return result
}

// Markdown returns "<slug>.md" for title, or "<fallback>.md" when the title
// has no usable characters.
func Markdown(title, fallback string) string {
	s := Generate(title)
	if s == "" {
		s = Generate(fallback)
	}
	if s == "" {
		s = "article"
	}
	return s + ".md"
}
