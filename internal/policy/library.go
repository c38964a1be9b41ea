// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package policy

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy is a reusable, named editing instruction.
type Policy struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	Text string `yaml:"text" json:"text"`
}

// Library is an immutable set of named policies addressable by ID.
type Library struct {
	byID map[string]Policy
}

type libraryFile struct {
	Policies []Policy `yaml:"policies"`
}

// LoadLibrary reads a policy library from a YAML file of the form:
//
//	policies:
//	  - id: concise
//	    name: Concise
//	    text: Shorten sentences without losing facts.
//
// An empty path yields an empty library.
func LoadLibrary(path string) (*Library, error) {
	if path == "" {
		return &Library{byID: map[string]Policy{}}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy library: %w", err)
	}
	return ParseLibrary(data)
}

// ParseLibrary decodes a YAML policy library. IDs must be unique and every
// policy needs non-blank text.
func ParseLibrary(data []byte) (*Library, error) {
	var f libraryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse policy library: %w", err)
	}

	lib := &Library{byID: make(map[string]Policy, len(f.Policies))}
	for i, p := range f.Policies {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, fmt.Errorf("policy #%d: id is required", i+1)
		}
		if strings.TrimSpace(p.Text) == "" {
			return nil, fmt.Errorf("policy %q: text is required", p.ID)
		}
		if _, dup := lib.byID[p.ID]; dup {
			return nil, fmt.Errorf("policy %q: duplicate id", p.ID)
		}
		if p.Name == "" {
			p.Name = p.ID
		}
		lib.byID[p.ID] = p
	}
	return lib, nil
}

// Lookup returns the policy with the given ID.
func (l *Library) Lookup(id string) (Policy, bool) {
	if l == nil {
		return Policy{}, false
	}
	p, ok := l.byID[id]
	return p, ok
}

// List returns every policy ordered by ID.
func (l *Library) List() []Policy {
	if l == nil {
		return []Policy{}
	}
	out := make([]Policy, 0, len(l.byID))
	for _, p := range l.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of policies.
func (l *Library) Len() int {
	if l == nil {
		return 0
	}
	return len(l.byID)
}
