package sandbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/codequest/internal/adapters/sandbox"
	"github.com/okian/codequest/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

type judgeCall struct {
	Args   []string                  `json:"args"`
	CopyIn map[string]map[string]any `json:"copyIn"`
}

type fakeJudge struct {
	mu      sync.Mutex
	calls   []judgeCall
	deleted []string
	respond func(call judgeCall) string

	// holdDelete, when set, stalls file deletes until it is closed.
	holdDelete chan struct{}
}

func (f *fakeJudge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodDelete && f.holdDelete != nil {
		<-f.holdDelete
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/file/") {
		f.deleted = append(f.deleted, strings.TrimPrefix(r.URL.Path, "/file/"))
		return
	}
	var body struct {
		Cmd []judgeCall `json:"cmd"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Cmd) != 1 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	f.calls = append(f.calls, body.Cmd[0])
	_, _ = w.Write([]byte(f.respond(body.Cmd[0])))
}

func (f *fakeJudge) snapshot() ([]judgeCall, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]judgeCall(nil), f.calls...), append([]string(nil), f.deleted...)
}

func TestGoJudge(t *testing.T) {
	convey.Convey("Given a go-judge server", t, func() {
		judge := &fakeJudge{}
		srv := httptest.NewServer(judge)
		defer srv.Close()
		backend := sandbox.NewGoJudge(srv.URL)
		proxy := sandbox.NewProxy(backend, runtimes)
		ctx := context.Background()

		convey.Convey("When a Java program compiles and runs", func() {
			judge.respond = func(call judgeCall) string {
				if call.Args[0] == "javac" {
					return `[{"status":"Accepted","exitStatus":0,"files":{"stdout":"","stderr":""},"fileIds":{"Main.class":"cls-1"}}]`
				}
				return `[{"status":"Accepted","exitStatus":0,"files":{"stdout":"42\n","stderr":""}}]`
			}
			res, err := proxy.Run(ctx, model.ExecutionRequest{Language: "java", Source: "class Main{}", Stdin: "6 7"})

			convey.Convey("Then it compiles first and runs the cached class", func() {
				backend.Wait()
				calls, deleted := judge.snapshot()
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.Stdout, convey.ShouldEqual, "42\n")
				convey.So(len(calls), convey.ShouldEqual, 2)
				convey.So(calls[1].Args, convey.ShouldResemble, []string{"java", "Main"})
				convey.So(calls[1].CopyIn["Main.class"]["fileId"], convey.ShouldEqual, "cls-1")
				convey.So(deleted, convey.ShouldResemble, []string{"cls-1"})
			})
		})

		convey.Convey("When deleting the cached class is slow", func() {
			judge.holdDelete = make(chan struct{})
			judge.respond = func(call judgeCall) string {
				if call.Args[0] == "javac" {
					return `[{"status":"Accepted","exitStatus":0,"files":{"stdout":"","stderr":""},"fileIds":{"Main.class":"cls-2"}}]`
				}
				return `[{"status":"Accepted","exitStatus":0,"files":{"stdout":"ok","stderr":""}}]`
			}
			done := make(chan struct{})
			var res model.ExecutionResult
			var err error
			go func() {
				defer close(done)
				res, err = proxy.Run(ctx, model.ExecutionRequest{Language: "java", Source: "class Main{}"})
			}()

			convey.Convey("Then the result does not wait for the delete", func() {
				select {
				case <-done:
				case <-time.After(time.Second):
				}
				finished := false
				select {
				case <-done:
					finished = true
				default:
				}
				close(judge.holdDelete)
				backend.Wait()
				convey.So(finished, convey.ShouldBeTrue)
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.Stdout, convey.ShouldEqual, "ok")
				_, deleted := judge.snapshot()
				convey.So(deleted, convey.ShouldResemble, []string{"cls-2"})
			})
		})

		convey.Convey("When a Java program does not compile", func() {
			judge.respond = func(judgeCall) string {
				return `[{"status":"Nonzero Exit Status","exitStatus":1,"files":{"stdout":"","stderr":"Main.java:1: error: ';' expected"}}]`
			}
			res, err := proxy.Run(ctx, model.ExecutionRequest{Language: "java", Source: "class Main{"})

			convey.Convey("Then the compiler output is the result and nothing runs", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.ExitCode, convey.ShouldEqual, 1)
				convey.So(res.Stderr, convey.ShouldContainSubstring, "expected")
				calls, _ := judge.snapshot()
				convey.So(len(calls), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When a PHP program exceeds its time limit", func() {
			judge.respond = func(judgeCall) string {
				return `[{"status":"Time Limit Exceeded","exitStatus":0,"files":{"stdout":"partial","stderr":""}}]`
			}
			res, err := proxy.Run(ctx, model.ExecutionRequest{Language: "php", Source: "<?php while(true);"})

			convey.Convey("Then it is a failed program, not an unavailable judge", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.ExitCode, convey.ShouldEqual, 1)
				convey.So(res.Stderr, convey.ShouldEqual, "Time Limit Exceeded")
				calls, _ := judge.snapshot()
				convey.So(calls[0].Args, convey.ShouldResemble, []string{"php", "main.php"})
			})
		})

		convey.Convey("When the judge reports an internal error", func() {
			judge.respond = func(judgeCall) string {
				return `[{"status":"Internal Error","error":"sandbox crashed"}]`
			}
			_, err := proxy.Run(ctx, model.ExecutionRequest{Language: "php", Source: "<?php"})

			convey.Convey("Then the call is unavailable", func() {
				convey.So(errors.Is(err, model.ErrExecutionUnavailable), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the judge returns no results", func() {
			judge.respond = func(judgeCall) string { return `[]` }
			_, err := proxy.Run(ctx, model.ExecutionRequest{Language: "php", Source: "<?php"})

			convey.Convey("Then the call is unavailable", func() {
				convey.So(errors.Is(err, model.ErrExecutionUnavailable), convey.ShouldBeTrue)
			})
		})
	})
}
