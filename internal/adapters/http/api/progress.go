package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/okian/codequest/internal/adapters/identity"
	"github.com/okian/codequest/internal/domain/gate"
	"github.com/okian/codequest/internal/domain/model"
)

type progressResponse struct {
	Category        string `json:"category"`
	UnlockedLevel   int    `json:"unlockedLevel"`
	CompletedLevels []int  `json:"completedLevels"`
	// MaxUnlockedLevel repeats UnlockedLevel for older clients.
	MaxUnlockedLevel int `json:"maxUnlockedLevel"`
}

type progressUpdateRequest struct {
	Category       string `json:"category"`
	LevelCompleted *int   `json:"levelCompleted"`
}

type levelResponse struct {
	Decision     string                 `json:"decision"`
	Level        int                    `json:"level"`
	MustComplete int                    `json:"mustComplete,omitempty"`
	Challenge    *model.ChallengeRecord `json:"challenge,omitempty"`
}

type emptyResponse struct{}

// handleGetProgress handles GET /api/progress/{category}.
func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_progress"
	p, _ := identity.FromContext(r.Context())
	category := chi.URLParam(r, "category")

	rec, err := s.deps.Progress(r.Context(), p, category)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, progressResponse{
		Category:         normalize(category),
		UnlockedLevel:    rec.UnlockedLevel,
		CompletedLevels:  rec.Completed(),
		MaxUnlockedLevel: rec.UnlockedLevel,
	})
}

// handleUpdateProgress handles POST /api/progress/update.
func (s *Server) handleUpdateProgress(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_progress"
	p, _ := identity.FromContext(r.Context())

	var req progressUpdateRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	if req.LevelCompleted == nil {
		writeError(w, WrapKind(op, model.ErrInvalidInput, errMissingField("levelCompleted")))
		return
	}
	if _, err := s.deps.CompleteLevel(r.Context(), p, req.Category, *req.LevelCompleted); err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, emptyResponse{})
}

// handleGetLevel handles GET /api/levels/{category}/{level}. A locked level
// is answered with 200 and decision "locked".
func (s *Server) handleGetLevel(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_level"
	p, _ := identity.FromContext(r.Context())

	level, err := pathInt(r, "level")
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	view, err := s.deps.RequestLevel(r.Context(), p, chi.URLParam(r, "category"), level)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	resp := levelResponse{Decision: view.Decision.Outcome.String(), Level: level}
	if view.Decision.Outcome == gate.LockedBelowUnlocked {
		resp.MustComplete = view.Decision.MustComplete
	} else {
		resp.Challenge = view.Challenge
	}
	writeJSON(w, http.StatusOK, resp)
}

func errMissingField(name string) error {
	return fmt.Errorf("%s is required", name)
}

// normalize matches the category folding the service applies.
func normalize(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}
