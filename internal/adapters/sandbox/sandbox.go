// Package sandbox forwards user programs to an external execution service.
//
// The Proxy never runs code itself. It validates and bounds requests, maps a
// category onto the backend's runtime, enforces the timeout and in-flight
// limit, and turns every backend failure into model.ErrExecutionUnavailable so
// callers can tell "the judge is down" from "my program failed".
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/codequest/internal/domain/model"
	"github.com/okian/codequest/pkg/logger"
	"github.com/okian/codequest/pkg/metrics"
	"golang.org/x/sync/semaphore"
)

// Default limits.
const (
	defaultTimeout     = 10 * time.Second
	defaultMaxInFlight = 32
	defaultMaxSource   = 64 << 10
	defaultMaxStdin    = 16 << 10
)

// Runtime identifies a language build on the backend.
type Runtime struct {
	Language string
	Version  string
}

// Executor runs a program and reports what it produced.
type Executor interface {
	Run(ctx context.Context, req model.ExecutionRequest) (model.ExecutionResult, error)
}

// Backend speaks one sandbox provider's protocol. Implementations return
// model.ErrExecutionUnavailable for transport, status and decoding failures.
type Backend interface {
	Name() string
	Execute(ctx context.Context, rt Runtime, source, stdin string) (model.ExecutionResult, error)
}

// Proxy is the Executor used by the service.
type Proxy struct {
	backend   Backend
	runtimes  map[string]Runtime
	timeout   time.Duration
	maxSource int
	maxStdin  int
	inFlight  int64
	sem       *semaphore.Weighted
	log       logger.Logger
}

var _ Executor = (*Proxy)(nil)

// NewProxy wraps backend. runtimes maps canonical category names to backend runtimes.
func NewProxy(backend Backend, runtimes map[string]Runtime, opts ...Option) *Proxy {
	p := &Proxy{
		backend:   backend,
		runtimes:  make(map[string]Runtime, len(runtimes)),
		timeout:   defaultTimeout,
		maxSource: defaultMaxSource,
		maxStdin:  defaultMaxStdin,
		inFlight:  defaultMaxInFlight,
		log:       logger.Nop(),
	}
	for cat, rt := range runtimes {
		p.runtimes[strings.ToLower(cat)] = rt
	}
	for _, opt := range opts {
		opt(p)
	}
	p.sem = semaphore.NewWeighted(p.inFlight)
	p.log = p.log.Named("sandbox").With(logger.String("backend", backend.Name()))
	return p
}

// Run validates req, then executes it under the timeout. It fails fast with
// model.ErrExecutionBusy when the in-flight limit is reached. No retries.
func (p *Proxy) Run(ctx context.Context, req model.ExecutionRequest) (model.ExecutionResult, error) {
	rt, err := p.validate(req)
	if err != nil {
		return model.ExecutionResult{}, err
	}

	if !p.sem.TryAcquire(1) {
		metrics.RecordExecution(req.Language, "busy", 0)
		return model.ExecutionResult{}, fmt.Errorf("%w: %d executions in flight", model.ErrExecutionBusy, p.inFlight)
	}
	defer p.sem.Release(1)
	metrics.AddExecutionsInFlight(1)
	defer metrics.AddExecutionsInFlight(-1)

	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	res, err := p.backend.Execute(runCtx, rt, req.Source, req.Stdin)
	elapsed := time.Since(start)
	if err != nil {
		if !errors.Is(err, model.ErrExecutionUnavailable) {
			err = fmt.Errorf("%w: %w", model.ErrExecutionUnavailable, err)
		}
		metrics.RecordExecution(req.Language, "unavailable", elapsed)
		metrics.RecordErrorByComponent("sandbox", "unavailable")
		p.log.Warn(ctx, "sandbox call failed",
			logger.String("language", req.Language),
			logger.Duration("elapsed", elapsed),
			logger.Error(err))
		return model.ExecutionResult{}, err
	}

	outcome := "ok"
	if res.ExitCode != 0 {
		outcome = "program_error"
	}
	metrics.RecordExecution(req.Language, outcome, elapsed)
	p.log.Debug(ctx, "sandbox call finished",
		logger.String("language", req.Language),
		logger.Int("exit_code", res.ExitCode),
		logger.Duration("elapsed", elapsed))
	return res, nil
}

func (p *Proxy) validate(req model.ExecutionRequest) (Runtime, error) {
	rt, ok := p.runtimes[strings.ToLower(strings.TrimSpace(req.Language))]
	if !ok {
		return Runtime{}, fmt.Errorf("%w: unsupported language %q", model.ErrInvalidInput, req.Language)
	}
	if strings.TrimSpace(req.Source) == "" {
		return Runtime{}, fmt.Errorf("%w: source code is required", model.ErrInvalidInput)
	}
	if len(req.Source) > p.maxSource {
		return Runtime{}, fmt.Errorf("%w: source is %d bytes, limit %d", model.ErrPayloadTooLarge, len(req.Source), p.maxSource)
	}
	if len(req.Stdin) > p.maxStdin {
		return Runtime{}, fmt.Errorf("%w: stdin is %d bytes, limit %d", model.ErrPayloadTooLarge, len(req.Stdin), p.maxStdin)
	}
	return rt, nil
}
