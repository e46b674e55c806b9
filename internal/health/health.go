// Package health runs named dependency checks for the /health endpoint.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Status is the result of one check.
type Status struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

// Checker reports whether a dependency is usable. A nil error is healthy.
type Checker func(ctx context.Context) error

// Registry holds named checkers. Checks run concurrently and report in
// registration order.
type Registry struct {
	mu       sync.RWMutex
	names    []string
	checkers map[string]Checker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{checkers: make(map[string]Checker)}
}

// Register adds or replaces the checker for name.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.checkers[name]; !ok {
		r.names = append(r.names, name)
	}
	r.checkers[name] = check
}

// CheckAll runs every checker and reports whether all passed.
func (r *Registry) CheckAll(ctx context.Context) (bool, []Status) {
	r.mu.RLock()
	names := append([]string(nil), r.names...)
	checks := make([]Checker, len(names))
	for i, n := range names {
		checks[i] = r.checkers[n]
	}
	r.mu.RUnlock()

	statuses := make([]Status, len(names))
	var wg sync.WaitGroup
	for i := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			statuses[i] = run(ctx, names[i], checks[i])
		}()
	}
	wg.Wait()

	healthy := true
	for _, s := range statuses {
		healthy = healthy && s.Healthy
	}
	return healthy, statuses
}

func run(ctx context.Context, name string, check Checker) (st Status) {
	start := time.Now()
	st.Name = name
	defer func() {
		if r := recover(); r != nil {
			st.Healthy = false
			st.Detail = fmt.Sprintf("panic: %v", r)
		}
		st.LatencyMS = time.Since(start).Milliseconds()
	}()
	if err := check(ctx); err != nil {
		st.Detail = err.Error()
		return st
	}
	st.Healthy = true
	return st
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Database checks that db answers a ping within timeout.
func Database(db Pinger, timeout time.Duration) Checker {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return db.PingContext(ctx)
	}
}

// Loop checks that a background loop is still running.
func Loop(name string, running func() bool) Checker {
	return func(context.Context) error {
		if !running() {
			return fmt.Errorf("%s loop is not running", name)
		}
		return nil
	}
}
