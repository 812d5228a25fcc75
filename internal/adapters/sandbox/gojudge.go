package sandbox

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/okian/codequest/internal/domain/model"
)

// go-judge limits, all nanoseconds or bytes.
const (
	judgePath        = "/run"
	judgeEnvPath     = "PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
	judgeCompileTime = 10_000_000_000
	judgeRunCPU      = 5_000_000_000
	judgeRunClock    = 3 * judgeRunCPU
	judgeMemory      = 512 << 20
	judgeProcLimit   = 50
	judgeOutputMax   = 64 << 10

	statusAccepted      = "Accepted"
	statusInternalError = "Internal Error"
	statusFileError     = "File Error"
)

// releaseTimeout bounds the background DELETE of a cached class file.
const releaseTimeout = 2 * time.Second

// GoJudge talks to a go-judge server (POST {base}/run). Java is compiled with
// javac first and the cached class file is run; PHP is interpreted.
type GoJudge struct {
	http     httpClient
	releases sync.WaitGroup
}

var _ Backend = (*GoJudge)(nil)

type judgeFile struct {
	Name    string  `json:"name,omitempty"`
	Content *string `json:"content,omitempty"`
	FileID  *string `json:"fileId,omitempty"`
	Max     int64   `json:"max,omitempty"`
}

type judgeCmd struct {
	Args          []string             `json:"args"`
	Env           []string             `json:"env,omitempty"`
	Files         []*judgeFile         `json:"files,omitempty"`
	CPULimit      uint64               `json:"cpuLimit,omitempty"`
	ClockLimit    uint64               `json:"clockLimit,omitempty"`
	MemoryLimit   uint64               `json:"memoryLimit,omitempty"`
	ProcLimit     uint64               `json:"procLimit,omitempty"`
	CopyIn        map[string]judgeFile `json:"copyIn,omitempty"`
	CopyOutCached []string             `json:"copyOutCached,omitempty"`
}

type judgeRequest struct {
	Cmd []judgeCmd `json:"cmd"`
}

type judgeResult struct {
	Status     string            `json:"status"`
	ExitStatus int               `json:"exitStatus"`
	Error      string            `json:"error"`
	Files      map[string]string `json:"files"`
	FileIDs    map[string]string `json:"fileIds"`
}

// NewGoJudge returns a go-judge backend rooted at baseURL, e.g. http://localhost:5050.
func NewGoJudge(baseURL string, opts ...ClientOption) *GoJudge {
	return &GoJudge{http: newHTTPClient(baseURL, opts...)}
}

// Name implements Backend.
func (g *GoJudge) Name() string { return "gojudge" }

// Execute implements Backend.
func (g *GoJudge) Execute(ctx context.Context, rt Runtime, source, stdin string) (model.ExecutionResult, error) {
	switch rt.Language {
	case "java":
		return g.runJava(ctx, source, stdin)
	case "php":
		return g.runOnce(ctx, judgeCmd{
			Args:   []string{"php", "main.php"},
			CopyIn: map[string]judgeFile{"main.php": {Content: &source}},
		}, stdin)
	default:
		return model.ExecutionResult{}, fmt.Errorf("%w: go-judge has no strategy for %q", model.ErrExecutionUnavailable, rt.Language)
	}
}

func (g *GoJudge) runJava(ctx context.Context, source, stdin string) (model.ExecutionResult, error) {
	empty := ""
	compile := judgeCmd{
		Args:          []string{"javac", "Main.java"},
		Env:           []string{judgeEnvPath},
		Files:         stdio(&empty),
		CopyIn:        map[string]judgeFile{"Main.java": {Content: &source}},
		CopyOutCached: []string{"Main.class"},
		CPULimit:      judgeCompileTime,
		ClockLimit:    judgeCompileTime,
		MemoryLimit:   judgeMemory,
		ProcLimit:     judgeProcLimit,
	}
	compiled, err := g.exec(ctx, compile)
	if err != nil {
		return model.ExecutionResult{}, err
	}
	if compiled.Status != statusAccepted {
		return toResult(compiled), nil
	}
	classID := compiled.FileIDs["Main.class"]
	if classID == "" {
		return model.ExecutionResult{}, fmt.Errorf("%w: compile accepted without a class file id", model.ErrExecutionUnavailable)
	}
	defer g.releaseAsync(classID)

	return g.runOnce(ctx, judgeCmd{
		Args:   []string{"java", "Main"},
		CopyIn: map[string]judgeFile{"Main.class": {FileID: &classID}},
	}, stdin)
}

func (g *GoJudge) runOnce(ctx context.Context, cmd judgeCmd, stdin string) (model.ExecutionResult, error) {
	cmd.Env = []string{judgeEnvPath}
	cmd.Files = stdio(&stdin)
	cmd.CPULimit = judgeRunCPU
	cmd.ClockLimit = judgeRunClock
	cmd.MemoryLimit = judgeMemory
	cmd.ProcLimit = judgeProcLimit

	res, err := g.exec(ctx, cmd)
	if err != nil {
		return model.ExecutionResult{}, err
	}
	return toResult(res), nil
}

func (g *GoJudge) exec(ctx context.Context, cmd judgeCmd) (judgeResult, error) {
	var results []judgeResult
	if err := g.http.do(ctx, http.MethodPost, judgePath, judgeRequest{Cmd: []judgeCmd{cmd}}, &results); err != nil {
		return judgeResult{}, err
	}
	if len(results) != 1 {
		return judgeResult{}, fmt.Errorf("%w: expected 1 result, got %d", model.ErrExecutionUnavailable, len(results))
	}
	r := results[0]
	if r.Status == statusInternalError || r.Status == statusFileError {
		return judgeResult{}, fmt.Errorf("%w: go-judge %s: %s", model.ErrExecutionUnavailable, r.Status, r.Error)
	}
	return r, nil
}

// releaseAsync drops a cached file without holding up the caller's result.
// Failures only leak space on the judge.
func (g *GoJudge) releaseAsync(fileID string) {
	g.releases.Add(1)
	go func() {
		defer g.releases.Done()
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		_ = g.http.do(ctx, http.MethodDelete, "/file/"+url.PathEscape(fileID), nil, nil)
	}()
}

// Wait blocks until pending cached-file releases have finished.
func (g *GoJudge) Wait() { g.releases.Wait() }

func stdio(stdin *string) []*judgeFile {
	return []*judgeFile{
		{Content: stdin},
		{Name: "stdout", Max: judgeOutputMax},
		{Name: "stderr", Max: judgeOutputMax},
	}
}

// toResult maps a go-judge status onto a program result. Limits and
// non-zero exits are the program's failures, not the judge's.
func toResult(r judgeResult) model.ExecutionResult {
	res := model.ExecutionResult{
		Stdout:   r.Files["stdout"],
		Stderr:   r.Files["stderr"],
		ExitCode: r.ExitStatus,
	}
	if r.Status == statusAccepted {
		return res
	}
	if res.ExitCode == 0 {
		res.ExitCode = 1
	}
	note := r.Status
	if r.Error != "" {
		note += ": " + r.Error
	}
	if res.Stderr == "" {
		res.Stderr = note
	} else {
		res.Stderr += "\n" + note
	}
	return res
}
