// Package model contains domain models passed between layers.
package model

import (
	"math"
	"sort"
	"time"
)

// FirstLevel is the level every fresh progress record starts unlocked at.
const FirstLevel = 1

// MaxScore is the largest score the ledger stores; score columns are 32-bit.
const MaxScore = math.MaxInt32

// ProgressRecord tracks how far a user got in one category.
// No level above UnlockedLevel is ever present in CompletedLevels.
type ProgressRecord struct {
	UnlockedLevel   int          // highest level the user may attempt, >= 1
	CompletedLevels map[int]bool // set of completed levels
	Version         int64        // store version, 0 when never persisted
	UpdatedAt       time.Time    // last persisted write
}

// DefaultProgress is the record served for a (user, category) pair with no stored row.
func DefaultProgress() ProgressRecord {
	return ProgressRecord{
		UnlockedLevel:   FirstLevel,
		CompletedLevels: map[int]bool{},
	}
}

// Completed returns the completed levels in ascending order.
func (p ProgressRecord) Completed() []int {
	out := make([]int, 0, len(p.CompletedLevels))
	for l, ok := range p.CompletedLevels {
		if ok {
			out = append(out, l)
		}
	}
	sort.Ints(out)
	return out
}

// HasCompleted reports whether level is in the completed set.
func (p ProgressRecord) HasCompleted(level int) bool {
	return p.CompletedLevels[level]
}

// Clone returns a deep copy so callers can mutate the result freely.
func (p ProgressRecord) Clone() ProgressRecord {
	c := p
	c.CompletedLevels = make(map[int]bool, len(p.CompletedLevels))
	for l, ok := range p.CompletedLevels {
		if ok {
			c.CompletedLevels[l] = true
		}
	}
	return c
}

// ProgressFromLevels builds a record from a stored level list.
func ProgressFromLevels(unlocked int, completed []int) ProgressRecord {
	p := ProgressRecord{
		UnlockedLevel:   unlocked,
		CompletedLevels: make(map[int]bool, len(completed)),
	}
	if p.UnlockedLevel < FirstLevel {
		p.UnlockedLevel = FirstLevel
	}
	for _, l := range completed {
		p.CompletedLevels[l] = true
	}
	return p
}

// ScoreEntry is one immutable ledger row.
type ScoreEntry struct {
	ID          string
	UserID      string
	Username    string
	Category    string
	Score       int
	SubmittedAt time.Time
	Seq         int64 // store-assigned, breaks ties after SubmittedAt
}

// Ranks reports whether e sorts ahead of o on a leaderboard:
// higher score first, then earlier submission, then lower sequence.
func (e ScoreEntry) Ranks(o ScoreEntry) bool {
	if e.Score != o.Score {
		return e.Score > o.Score
	}
	if !e.SubmittedAt.Equal(o.SubmittedAt) {
		return e.SubmittedAt.Before(o.SubmittedAt)
	}
	return e.Seq < o.Seq
}

// ExecutionRequest is a single code run forwarded to the sandbox.
type ExecutionRequest struct {
	Language string // canonical category
	Source   string
	Stdin    string
}

// ExecutionResult is what the user's program produced. A program that fails
// to compile or exits non-zero is still a result, not an error.
type ExecutionResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// TestCase pairs an input with the output a correct solution prints.
type TestCase struct {
	Input    string `json:"input" yaml:"input"`
	Expected string `json:"expected" yaml:"expected"`
}

// ChallengeRecord is challenge content passed through untouched.
type ChallengeRecord struct {
	Level     int        `json:"level" yaml:"level"`
	Category  string     `json:"category" yaml:"category"`
	Title     string     `json:"title,omitempty" yaml:"title"`
	Prompt    string     `json:"prompt" yaml:"prompt"`
	Template  string     `json:"template" yaml:"template"`
	TestCases []TestCase `json:"testCases" yaml:"test_cases"`
}

// Principal is the authenticated caller.
type Principal struct {
	UserID   string
	Username string
}

// Authenticated reports whether p names a user.
func (p Principal) Authenticated() bool { return p.UserID != "" }
