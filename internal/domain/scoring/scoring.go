// Package scoring defines the contract for deciding the score recorded for a
// completed level.
package scoring

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/codequest/internal/domain/model"
)

// defaultWeight leaves a reported score unchanged.
const defaultWeight = 1.0

// Option applies a configuration option to the ReportedPolicy.
type Option func(*ReportedPolicy)

// WithCeiling caps recorded scores. Zero or negative disables the cap.
func WithCeiling(ceiling int) Option {
	return func(p *ReportedPolicy) {
		if ceiling > 0 {
			p.ceiling = ceiling
		}
	}
}

// WithCategoryWeights scales reported scores per category.
func WithCategoryWeights(weights map[string]float64, fallback float64) Option {
	return func(p *ReportedPolicy) {
		// Copy the weights map to avoid external modifications
		p.weights = make(map[string]float64, len(weights))
		for cat, w := range weights {
			if w > 0 {
				p.weights[cat] = w
			}
		}
		if fallback > 0 {
			p.fallback = fallback
		}
	}
}

// Input carries what a policy may look at.
type Input struct {
	UserID   string
	Category string // canonical
	Level    int    // 0 when the client did not say
	Reported int    // client-reported score
}

// Policy decides the score recorded in the ledger.
type Policy interface {
	// Score returns the value to record, honoring ctx for cancellation.
	Score(ctx context.Context, in Input) (int, error)
}

// ReportedPolicy records the client-reported score after validation,
// optionally weighted per category and capped.
type ReportedPolicy struct {
	weights  map[string]float64
	fallback float64
	ceiling  int
}

// NewReportedPolicy creates a policy; without options it records scores verbatim.
func NewReportedPolicy(opts ...Option) *ReportedPolicy {
	p := &ReportedPolicy{
		weights:  map[string]float64{},
		fallback: defaultWeight,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Score validates and returns the score to record.
func (p *ReportedPolicy) Score(ctx context.Context, in Input) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context cancelled: %w", err)
	}
	if err := model.ValidateScore(in.Reported); err != nil {
		return 0, err
	}
	w, ok := p.weights[in.Category]
	if !ok {
		w = p.fallback
	}
	// Clamp before converting; a weighted value past MaxScore would not fit.
	weighted := math.Min(math.Round(float64(in.Reported)*w), model.MaxScore)
	score := int(weighted)
	if p.ceiling > 0 && score > p.ceiling {
		score = p.ceiling
	}
	return score, nil
}
