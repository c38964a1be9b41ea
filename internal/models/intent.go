// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// intentValidate is shared by every Intent; validator caches struct metadata.
var intentValidate = validator.New(validator.WithRequiredStructEnabled())

// StructuralIntent carries signals that may influence document structure.
type StructuralIntent struct {
	DocumentGoal      string   `json:"document_goal" yaml:"document_goal" validate:"required,max=2000"`
	Audience          string   `json:"audience,omitempty" yaml:"audience,omitempty" validate:"max=500"`
	Tone              string   `json:"tone,omitempty" yaml:"tone,omitempty" validate:"max=200"`
	RequiredSections  []string `json:"required_sections,omitempty" yaml:"required_sections,omitempty" validate:"max=50,dive,required,max=200"`
	ForbiddenSections []string `json:"forbidden_sections,omitempty" yaml:"forbidden_sections,omitempty" validate:"max=50,dive,required,max=200"`
}

// SemanticConstraints are placement-agnostic content constraints.
type SemanticConstraints struct {
	MustInclude      []string `json:"must_include,omitempty" yaml:"must_include,omitempty" validate:"max=50,dive,required,max=500"`
	MustAvoid        []string `json:"must_avoid,omitempty" yaml:"must_avoid,omitempty" validate:"max=50,dive,required,max=500"`
	RequiredMentions []string `json:"required_mentions,omitempty" yaml:"required_mentions,omitempty" validate:"max=50,dive,required,max=500"`
}

// StylisticPreferences are soft, advisory style hints.
type StylisticPreferences struct {
	HumorLevel     string `json:"humor_level,omitempty" yaml:"humor_level,omitempty" validate:"max=100"`
	Formality      string `json:"formality,omitempty" yaml:"formality,omitempty" validate:"max=100"`
	NarrativeVoice string `json:"narrative_voice,omitempty" yaml:"narrative_voice,omitempty" validate:"max=100"`
}

// Intent is the structured request that drives document generation. The
// engine stores it verbatim and only reads it to build generation prompts.
type Intent struct {
	StructuralIntent     StructuralIntent     `json:"structural_intent" yaml:"structural_intent"`
	SemanticConstraints  SemanticConstraints  `json:"semantic_constraints" yaml:"semantic_constraints"`
	StylisticPreferences StylisticPreferences `json:"stylistic_preferences" yaml:"stylistic_preferences"`
}

// ParseIntent decodes and validates a raw JSON intent. Unknown fields are
// rejected so typos surface as validation errors instead of silently vanishing.
func ParseIntent(raw json.RawMessage) (*Intent, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, errors.New("intent is required")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var intent Intent
	if err := dec.Decode(&intent); err != nil {
		return nil, fmt.Errorf("malformed intent: %w", err)
	}
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	return &intent, nil
}

// Validate checks field presence and size limits.
func (i *Intent) Validate() error {
	i.StructuralIntent.DocumentGoal = strings.TrimSpace(i.StructuralIntent.DocumentGoal)
	if err := intentValidate.Struct(i); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid intent: %s failed %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid intent: %w", err)
	}
	return nil
}

// PromptText renders the intent as plain text for a generation prompt.
func (i *Intent) PromptText() string {
	var sb strings.Builder
	line := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&sb, "%s: %s\n", label, value)
		}
	}
	list := func(label string, values []string) {
		if len(values) > 0 {
			fmt.Fprintf(&sb, "%s: %s\n", label, strings.Join(values, "; "))
		}
	}

	line("Goal", i.StructuralIntent.DocumentGoal)
	line("Audience", i.StructuralIntent.Audience)
	line("Tone", i.StructuralIntent.Tone)
	list("Required sections", i.StructuralIntent.RequiredSections)
	list("Forbidden sections", i.StructuralIntent.ForbiddenSections)
	list("Must include", i.SemanticConstraints.MustInclude)
	list("Must avoid", i.SemanticConstraints.MustAvoid)
	list("Required mentions", i.SemanticConstraints.RequiredMentions)
	line("Humor level", i.StylisticPreferences.HumorLevel)
	line("Formality", i.StylisticPreferences.Formality)
	line("Narrative voice", i.StylisticPreferences.NarrativeVoice)
	return strings.TrimRight(sb.String(), "\n")
}
