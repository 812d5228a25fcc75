package model

import (
	"fmt"
	"strings"
)

// CategorySet is the configured, closed set of category tracks.
// Matching is case-insensitive; the canonical form is lower case.
type CategorySet struct {
	ordered []string
	index   map[string]struct{}
}

// NewCategorySet builds a set from configuration values, dropping blanks and duplicates.
func NewCategorySet(names ...string) CategorySet {
	s := CategorySet{index: make(map[string]struct{}, len(names))}
	for _, n := range names {
		key := normalizeCategory(n)
		if key == "" {
			continue
		}
		if _, dup := s.index[key]; dup {
			continue
		}
		s.index[key] = struct{}{}
		s.ordered = append(s.ordered, key)
	}
	return s
}

// Canonical returns the canonical name of raw or ErrInvalidInput when raw is not a member.
func (s CategorySet) Canonical(raw string) (string, error) {
	key := normalizeCategory(raw)
	if key == "" {
		return "", fmt.Errorf("%w: category is required", ErrInvalidInput)
	}
	if _, ok := s.index[key]; !ok {
		return "", fmt.Errorf("%w: unknown category %q", ErrInvalidInput, raw)
	}
	return key, nil
}

// Contains reports membership of raw.
func (s CategorySet) Contains(raw string) bool {
	_, ok := s.index[normalizeCategory(raw)]
	return ok
}

// Names returns the categories in configuration order.
func (s CategorySet) Names() []string {
	out := make([]string, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// Len returns the number of categories.
func (s CategorySet) Len() int { return len(s.ordered) }

func normalizeCategory(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
