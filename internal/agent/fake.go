package agent

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Fake is an in-memory Runner for tests that drives WorkerOps/judge logic
// without invoking a real CLI. Responses are queued in call order; if the
// queue is exhausted the last response repeats.
type Fake struct {
	mu        sync.Mutex
	responses []FakeResponse
	calls     int
}

// FakeResponse is one scripted Run outcome.
type FakeResponse struct {
	Result Result
	Err    error
}

// NewFake returns a Fake that yields responses in order.
func NewFake(responses ...FakeResponse) *Fake {
	return &Fake{responses: responses}
}

func (f *Fake) Run(ctx context.Context, req Request, logw io.Writer) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	if idx < 0 {
		return Result{}, fmt.Errorf("agent/fake: no responses configured")
	}

	resp := f.responses[idx]
	if logw != nil {
		fmt.Fprintf(logw, "[fake agent] prompt=%q\n", req.Prompt)
		fmt.Fprintln(logw, resp.Result.Content)
	}
	return resp.Result, resp.Err
}

func (f *Fake) Close() error { return nil }

// Calls returns how many times Run has been invoked.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var _ Runner = (*Fake)(nil)
