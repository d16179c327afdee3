package application

import "sync"

// Runner schedules a unit of work detached from the caller. An explicit
// abstraction instead of a bare goroutine so tests can run units
// synchronously or await them deterministically.
type Runner interface {
	Go(fn func())
}

// GoRunner runs each unit on its own goroutine and can wait for all
// in-flight units to drain on shutdown.
type GoRunner struct {
	wg sync.WaitGroup
}

func NewGoRunner() *GoRunner { return &GoRunner{} }

func (r *GoRunner) Go(fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
}

// Wait blocks until every scheduled unit has finished.
func (r *GoRunner) Wait() { r.wg.Wait() }

// SyncRunner executes units inline; used by tests.
type SyncRunner struct{}

func (SyncRunner) Go(fn func()) { fn() }
