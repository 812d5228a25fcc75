package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/codequest/internal/adapters/identity"
	"github.com/okian/codequest/internal/domain/model"
)

type executeRequest struct {
	Language   string `json:"language"`
	SourceCode string `json:"sourceCode"`
	Input      string `json:"input"`
}

type executeResponse struct {
	Output   string `json:"output"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// handleExecute handles POST /api/execute. A program that fails to compile or
// exits non-zero is still a 200.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	const op = "api.execute"
	p, _ := identity.FromContext(r.Context())

	var req executeRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	res, err := s.deps.Execute(r.Context(), p, model.ExecutionRequest{
		Language: req.Language,
		Source:   req.SourceCode,
		Stdin:    req.Input,
	})
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{
		Output:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
	})
}

// handleDaily handles GET /api/challenges/{category}/daily.
func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_daily"
	rec, err := s.deps.Daily(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
