// Package metrics is a small facade over pluggable metrics backends.
//
// The pipeline depends only on the package-level helpers; a backend is
// installed once at startup with SetBackend. The default backend is a nop, so
// metrics never have to be configured for the pipeline to run.
package metrics

import (
	"sync"
	"time"
)

// Backend receives metric observations and ships them somewhere.
//
// Implementations must be safe for concurrent use. Flush submits anything
// buffered; it is called at least once at process exit.
type Backend interface {
	IncCounter(name string, delta float64, tags ...string)
	ObserveDuration(name string, d time.Duration, tags ...string)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, ...string)            {}
func (nopBackend) ObserveDuration(string, time.Duration, ...string) {}
func (nopBackend) Flush() error                                     { return nil }

var (
	mu      sync.RWMutex
	current Backend = nopBackend{}
)

// SetBackend installs the process-wide backend. Call once at startup.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	mu.Lock()
	current = b
	mu.Unlock()
}

func backend() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// IncCounter adds delta to a named counter.
func IncCounter(name string, delta float64, tags ...string) {
	backend().IncCounter(name, delta, tags...)
}

// ObserveDuration records one duration sample.
func ObserveDuration(name string, d time.Duration, tags ...string) {
	backend().ObserveDuration(name, d, tags...)
}

// Flush submits buffered metrics through the installed backend.
func Flush() error {
	return backend().Flush()
}
