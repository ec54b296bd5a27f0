package server

import (
	"errors"
	"fmt"

	"github.com/chazu/velac/manifest"
	"github.com/chazu/velac/vm"
)

var errStopped = errors.New("worker stopped")

// workspace is the state confined to the worker goroutine.
type workspace struct {
	resolver *manifest.Resolver
	loader   *vm.Loader
}

// workRequest represents a unit of work to be executed on the worker
// goroutine.
type workRequest struct {
	fn   func(*workspace) any
	done chan workResult
}

// workResult holds the return value from a workspace operation.
type workResult struct {
	value any
	err   error
}

// Worker serializes all resolver access through a single goroutine.
// manifest.Resolver keeps an unsynchronized cache; every handler must go
// through the worker to avoid data races.
type Worker struct {
	ws       *workspace
	requests chan workRequest
	quit     chan struct{}
}

// NewWorker creates a Worker owning r and starts the processing goroutine.
func NewWorker(r *manifest.Resolver) *Worker {
	w := &Worker{
		ws:       &workspace{resolver: r, loader: vm.NewLoader(r)},
		requests: make(chan workRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn against the workspace, recovering from panics.
func (w *Worker) execute(fn func(*workspace) any) workResult {
	var result workResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				result.err = fmt.Errorf("%v", r)
			}
		}()
		result.value = fn(w.ws)
	}()
	return result
}

// Do submits fn for execution on the worker goroutine and blocks until it
// completes. Panics in fn are returned as errors.
func (w *Worker) Do(fn func(*workspace) any) (any, error) {
	req := workRequest{
		fn:   fn,
		done: make(chan workResult, 1),
	}
	select {
	case <-w.quit:
		return nil, errStopped
	default:
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, errStopped
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		return nil, errStopped
	}
}

// Stop shuts down the worker goroutine.
func (w *Worker) Stop() {
	close(w.quit)
}
