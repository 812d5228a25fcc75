package sandbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/codequest/internal/adapters/sandbox"
	"github.com/okian/codequest/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

var runtimes = map[string]sandbox.Runtime{
	"java": {Language: "java", Version: "15.0.2"},
	"php":  {Language: "php", Version: "8.2.3"},
}

func pistonServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestProxy_Piston(t *testing.T) {
	convey.Convey("Given a proxy in front of a healthy Piston server", t, func() {
		var (
			mu  sync.Mutex
			got map[string]any
		)
		srv := pistonServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/execute" || r.Method != http.MethodPost {
				http.NotFound(w, r)
				return
			}
			mu.Lock()
			_ = json.NewDecoder(r.Body).Decode(&got)
			mu.Unlock()
			_, _ = w.Write([]byte(`{"language":"java","version":"15.0.2",
				"compile":{"stdout":"","stderr":"","code":0},
				"run":{"stdout":"hello\n","stderr":"","code":0,"signal":null,"output":"hello\n"}}`))
		})
		proxy := sandbox.NewProxy(sandbox.NewPiston(srv.URL), runtimes)

		convey.Convey("When a well-formed request is run", func() {
			res, err := proxy.Run(context.Background(), model.ExecutionRequest{
				Language: "Java", Source: "class Main {}", Stdin: "x",
			})

			convey.Convey("Then the program output is returned", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.Stdout, convey.ShouldEqual, "hello\n")
				convey.So(res.ExitCode, convey.ShouldEqual, 0)
			})

			convey.Convey("Then the runtime mapping is forwarded", func() {
				mu.Lock()
				defer mu.Unlock()
				convey.So(got["language"], convey.ShouldEqual, "java")
				convey.So(got["version"], convey.ShouldEqual, "15.0.2")
				convey.So(got["stdin"], convey.ShouldEqual, "x")
				files := got["files"].([]any)
				convey.So(files[0].(map[string]any)["name"], convey.ShouldEqual, "Main.java")
			})
		})
	})

	convey.Convey("Given a Piston server reporting a compile error", t, func() {
		srv := pistonServer(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"compile":{"stdout":"","stderr":"Main.java:1: error","code":1},"run":null}`))
		})
		proxy := sandbox.NewProxy(sandbox.NewPiston(srv.URL), runtimes)

		convey.Convey("Then the failure is a normal result, not an error", func() {
			res, err := proxy.Run(context.Background(), model.ExecutionRequest{Language: "java", Source: "broken"})
			convey.So(err, convey.ShouldBeNil)
			convey.So(res.ExitCode, convey.ShouldEqual, 1)
			convey.So(res.Stderr, convey.ShouldContainSubstring, "error")
		})
	})

	convey.Convey("Given a Piston server whose program was killed", t, func() {
		srv := pistonServer(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"run":{"stdout":"","stderr":"","code":null,"signal":"SIGKILL"}}`))
		})
		proxy := sandbox.NewProxy(sandbox.NewPiston(srv.URL), runtimes)

		convey.Convey("Then the signal is surfaced in the result", func() {
			res, err := proxy.Run(context.Background(), model.ExecutionRequest{Language: "php", Source: "<?php"})
			convey.So(err, convey.ShouldBeNil)
			convey.So(res.ExitCode, convey.ShouldEqual, -1)
			convey.So(res.Stderr, convey.ShouldContainSubstring, "SIGKILL")
		})
	})
}

func TestProxy_Unavailable(t *testing.T) {
	req := model.ExecutionRequest{Language: "php", Source: "<?php echo 1;"}

	convey.Convey("Given a sandbox that hangs past the timeout", t, func() {
		release := make(chan struct{})
		srv := pistonServer(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		})
		defer close(release)
		proxy := sandbox.NewProxy(sandbox.NewPiston(srv.URL), runtimes, sandbox.WithTimeout(50*time.Millisecond))

		convey.Convey("Then the caller gets ExecutionUnavailable instead of hanging", func() {
			start := time.Now()
			res, err := proxy.Run(context.Background(), req)
			convey.So(errors.Is(err, model.ErrExecutionUnavailable), convey.ShouldBeTrue)
			convey.So(res, convey.ShouldResemble, model.ExecutionResult{})
			convey.So(time.Since(start), convey.ShouldBeLessThan, 5*time.Second)
		})
	})

	convey.Convey("Given a sandbox answering with a server error", t, func() {
		srv := pistonServer(t, func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
		})
		proxy := sandbox.NewProxy(sandbox.NewPiston(srv.URL), runtimes)

		convey.Convey("Then the call is unavailable", func() {
			_, err := proxy.Run(context.Background(), req)
			convey.So(errors.Is(err, model.ErrExecutionUnavailable), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "500")
		})
	})

	convey.Convey("Given a sandbox answering with garbage", t, func() {
		srv := pistonServer(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`<html>not json`))
		})
		proxy := sandbox.NewProxy(sandbox.NewPiston(srv.URL), runtimes)

		convey.Convey("Then the call is unavailable", func() {
			_, err := proxy.Run(context.Background(), req)
			convey.So(errors.Is(err, model.ErrExecutionUnavailable), convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given a sandbox answering without a run stage", t, func() {
		srv := pistonServer(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		})
		proxy := sandbox.NewProxy(sandbox.NewPiston(srv.URL), runtimes)

		convey.Convey("Then the call is unavailable", func() {
			_, err := proxy.Run(context.Background(), req)
			convey.So(errors.Is(err, model.ErrExecutionUnavailable), convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given an unreachable sandbox", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		proxy := sandbox.NewProxy(sandbox.NewPiston(url), runtimes)

		convey.Convey("Then the call is unavailable", func() {
			_, err := proxy.Run(context.Background(), req)
			convey.So(errors.Is(err, model.ErrExecutionUnavailable), convey.ShouldBeTrue)
		})
	})
}

func TestProxy_Validation(t *testing.T) {
	convey.Convey("Given a proxy with small payload limits", t, func() {
		var calls atomic.Int32
		srv := pistonServer(t, func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			_, _ = w.Write([]byte(`{"run":{"stdout":"","stderr":"","code":0}}`))
		})
		proxy := sandbox.NewProxy(sandbox.NewPiston(srv.URL), runtimes, sandbox.WithPayloadLimits(16, 4))
		ctx := context.Background()

		convey.Convey("When the language is not configured", func() {
			_, err := proxy.Run(ctx, model.ExecutionRequest{Language: "cobol", Source: "x"})
			convey.So(errors.Is(err, model.ErrInvalidInput), convey.ShouldBeTrue)
		})

		convey.Convey("When the source is empty", func() {
			_, err := proxy.Run(ctx, model.ExecutionRequest{Language: "php", Source: "  "})
			convey.So(errors.Is(err, model.ErrInvalidInput), convey.ShouldBeTrue)
		})

		convey.Convey("When the source is too large", func() {
			_, err := proxy.Run(ctx, model.ExecutionRequest{Language: "php", Source: strings.Repeat("x", 17)})
			convey.So(errors.Is(err, model.ErrPayloadTooLarge), convey.ShouldBeTrue)
			convey.So(errors.Is(err, model.ErrInvalidInput), convey.ShouldBeTrue)
		})

		convey.Convey("When stdin is too large", func() {
			_, err := proxy.Run(ctx, model.ExecutionRequest{Language: "php", Source: "x", Stdin: "12345"})
			convey.So(errors.Is(err, model.ErrPayloadTooLarge), convey.ShouldBeTrue)
		})

		convey.Convey("Then rejected requests never reach the sandbox", func() {
			_, _ = proxy.Run(ctx, model.ExecutionRequest{Language: "php", Source: strings.Repeat("x", 17)})
			convey.So(calls.Load(), convey.ShouldEqual, 0)
		})
	})
}

func TestProxy_Backpressure(t *testing.T) {
	convey.Convey("Given a proxy allowing one call in flight", t, func() {
		entered := make(chan struct{})
		release := make(chan struct{})
		srv := pistonServer(t, func(w http.ResponseWriter, _ *http.Request) {
			entered <- struct{}{}
			<-release
			_, _ = w.Write([]byte(`{"run":{"stdout":"ok","stderr":"","code":0}}`))
		})
		proxy := sandbox.NewProxy(sandbox.NewPiston(srv.URL), runtimes, sandbox.WithMaxInFlight(1))
		req := model.ExecutionRequest{Language: "php", Source: "<?php"}

		var wg sync.WaitGroup
		var firstErr error
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, firstErr = proxy.Run(context.Background(), req)
		}()
		<-entered

		convey.Convey("When a second call arrives", func() {
			_, err := proxy.Run(context.Background(), req)
			close(release)
			wg.Wait()

			convey.Convey("Then it fails fast as busy and the first succeeds", func() {
				convey.So(errors.Is(err, model.ErrExecutionBusy), convey.ShouldBeTrue)
				convey.So(firstErr, convey.ShouldBeNil)
			})
		})
	})
}
