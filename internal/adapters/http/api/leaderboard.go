package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/okian/codequest/internal/adapters/identity"
	service "github.com/okian/codequest/internal/app"
	"github.com/okian/codequest/internal/domain/model"
)

type submitScoreRequest struct {
	Category string `json:"category"`
	Score    *int   `json:"score"`
	Level    int    `json:"level"`
}

// leaderboardEntry is one row of GET /api/leaderboard/{category}.
type leaderboardEntry struct {
	Rank        int       `json:"rank"`
	Username    string    `json:"username"`
	Score       int       `json:"score"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// idempotencyHeader carries an optional client key; a repeated key for the
// same user is acknowledged without appending again.
const idempotencyHeader = "Idempotency-Key"

// handleSubmitScore handles POST /api/leaderboard/submit.
func (s *Server) handleSubmitScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_score"
	p, _ := identity.FromContext(r.Context())

	var req submitScoreRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	if req.Score == nil {
		writeError(w, WrapKind(op, model.ErrInvalidInput, errMissingField("score")))
		return
	}
	ctx := service.WithSubmissionKey(r.Context(), r.Header.Get(idempotencyHeader))
	_, err := s.deps.SubmitScore(ctx, p, req.Category, req.Level, *req.Score)
	if err != nil && !errors.Is(err, service.ErrDuplicateSubmission) {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, emptyResponse{})
}

// handleTopN handles GET /api/leaderboard/{category}?limit=N. A missing limit
// means the maximum; larger limits are capped.
func (s *Server) handleTopN(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	n := s.deps.MaxLimit()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeError(w, WrapKind(op, model.ErrInvalidInput, fmt.Errorf("limit must be a positive integer, got %q", raw)))
			return
		}
		n = v
	}

	entries, err := s.deps.TopN(r.Context(), chi.URLParam(r, "category"), n)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	out := make([]leaderboardEntry, len(entries))
	for i, e := range entries {
		out[i] = leaderboardEntry{
			Rank:        i + 1,
			Username:    e.Username,
			Score:       e.Score,
			SubmittedAt: e.SubmittedAt,
		}
	}
	writeJSON(w, http.StatusOK, out)
}
