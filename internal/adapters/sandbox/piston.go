package sandbox

import (
	"context"
	"fmt"
	"net/http"

	"github.com/okian/codequest/internal/domain/model"
)

// Piston talks to a Piston v2 API (POST {base}/execute).
type Piston struct {
	http httpClient
}

var _ Backend = (*Piston)(nil)

type pistonFile struct {
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

type pistonRequest struct {
	Language string       `json:"language"`
	Version  string       `json:"version"`
	Files    []pistonFile `json:"files"`
	Stdin    string       `json:"stdin"`
}

type pistonStage struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Output string `json:"output"`
	Code   *int   `json:"code"`
	Signal string `json:"signal"`
}

type pistonResponse struct {
	Language string       `json:"language"`
	Version  string       `json:"version"`
	Run      *pistonStage `json:"run"`
	Compile  *pistonStage `json:"compile"`
}

// NewPiston returns a Piston backend rooted at baseURL, e.g. https://emkc.org/api/v2/piston.
func NewPiston(baseURL string, opts ...ClientOption) *Piston {
	return &Piston{http: newHTTPClient(baseURL, opts...)}
}

// Name implements Backend.
func (p *Piston) Name() string { return "piston" }

// Execute implements Backend. A failed compile stage is reported as the result.
func (p *Piston) Execute(ctx context.Context, rt Runtime, source, stdin string) (model.ExecutionResult, error) {
	version := rt.Version
	if version == "" {
		version = "*"
	}
	req := pistonRequest{
		Language: rt.Language,
		Version:  version,
		Files:    []pistonFile{{Name: sourceFileName(rt.Language), Content: source}},
		Stdin:    stdin,
	}

	var resp pistonResponse
	if err := p.http.do(ctx, http.MethodPost, "/execute", req, &resp); err != nil {
		return model.ExecutionResult{}, err
	}

	if c := resp.Compile; c != nil && exitCode(c) != 0 {
		return stageResult(c), nil
	}
	if resp.Run == nil {
		return model.ExecutionResult{}, fmt.Errorf("%w: malformed upstream response: missing run stage", model.ErrExecutionUnavailable)
	}
	return stageResult(resp.Run), nil
}

func stageResult(s *pistonStage) model.ExecutionResult {
	res := model.ExecutionResult{Stdout: s.Stdout, Stderr: s.Stderr, ExitCode: exitCode(s)}
	if res.Stderr == "" && s.Signal != "" {
		res.Stderr = "killed by " + s.Signal
	}
	return res
}

// exitCode reports -1 when the process was killed without an exit code.
func exitCode(s *pistonStage) int {
	if s.Code == nil {
		if s.Signal != "" {
			return -1
		}
		return 0
	}
	return *s.Code
}

func sourceFileName(language string) string {
	switch language {
	case "java":
		return "Main.java"
	case "php":
		return "main.php"
	default:
		return ""
	}
}
