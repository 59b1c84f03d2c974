package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alecgard/liftline/internal/docstore"
)

// Mirror names.
const (
	MirrorTeam     = "team"
	MirrorGlobal   = "global"
	MirrorCustomer = "customer"
)

// Target is one mirror location. Either Path is known, or Locate resolves it
// at write time; Locate returning "" means the mirror could not be found.
type Target struct {
	Mirror string
	Path   string
	Locate func(ctx context.Context) (string, error)
}

// Known returns a Target at a fixed path.
func Known(mirror, path string) Target {
	return Target{Mirror: mirror, Path: path}
}

// Located returns a Target resolved by fn.
func Located(mirror string, fn func(ctx context.Context) (string, error)) Target {
	return Target{Mirror: mirror, Locate: fn}
}

// Observer receives fan-out outcomes, typically for metrics.
type Observer interface {
	MirrorWritten(entity, mirror string, err error)
	MirrorSkipped(entity, mirror string)
	FanOutCompleted(entity string, elapsed time.Duration)
}

// Result lists the mirrors written and those skipped because they could not
// be located.
type Result struct {
	Written []string `json:"written"`
	Skipped []string `json:"skipped,omitempty"`
}

// Degraded reports whether some mirror was skipped.
func (r Result) Degraded() bool {
	return len(r.Skipped) > 0
}

// FanOutError aggregates every mirror that failed in one operation. Mirrors
// that succeeded are not rolled back; the whole operation is safe to retry.
type FanOutError struct {
	Entity   string
	Failures map[string]error
	Written  []string
}

func (e *FanOutError) Error() string {
	names := make([]string, 0, len(e.Failures))
	for m := range e.Failures {
		names = append(names, m)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, m := range names {
		parts[i] = fmt.Sprintf("%s: %v", m, e.Failures[m])
	}
	return fmt.Sprintf("%s fan-out failed on %d mirror(s): %s", e.Entity, len(names), strings.Join(parts, "; "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *FanOutError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		errs = append(errs, err)
	}
	return errs
}

// Coordinator applies one logical update to every mirror of an entity.
type Coordinator struct {
	store    docstore.Store
	observer Observer
}

// NewCoordinator creates a Coordinator. observer may be nil.
func NewCoordinator(store docstore.Store, observer Observer) *Coordinator {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Coordinator{store: store, observer: observer}
}

type outcome struct {
	path    string
	skipped bool
	err     error
}

// Apply resolves and writes every target concurrently and waits for all of
// them. Unresolved targets are skipped and logged. Any failure is returned
// as a *FanOutError after all writes have settled.
func (c *Coordinator) Apply(ctx context.Context, entity string, targets []Target, updates []docstore.Update) (Result, error) {
	start := time.Now()
	outcomes := make([]outcome, len(targets))

	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func(i int, t Target) {
			defer wg.Done()
			outcomes[i] = c.write(ctx, t, updates)
		}(i, t)
	}
	wg.Wait()

	var res Result
	var failures map[string]error
	for i, o := range outcomes {
		mirror := targets[i].Mirror
		switch {
		case o.skipped:
			res.Skipped = append(res.Skipped, mirror)
			c.observer.MirrorSkipped(entity, mirror)
			slog.Warn("mirror not found, skipping write",
				"entity", entity,
				"mirror", mirror,
			)
		case o.err != nil:
			if failures == nil {
				failures = make(map[string]error)
			}
			failures[mirror] = o.err
			c.observer.MirrorWritten(entity, mirror, o.err)
			slog.Error("mirror write failed",
				"entity", entity,
				"mirror", mirror,
				"path", o.path,
				"error", o.err,
			)
		default:
			res.Written = append(res.Written, mirror)
			c.observer.MirrorWritten(entity, mirror, nil)
		}
	}
	c.observer.FanOutCompleted(entity, time.Since(start))

	if failures != nil {
		return res, &FanOutError{Entity: entity, Failures: failures, Written: res.Written}
	}
	return res, nil
}

func (c *Coordinator) write(ctx context.Context, t Target, updates []docstore.Update) outcome {
	path := t.Path
	if path == "" && t.Locate != nil {
		p, err := t.Locate(ctx)
		if err != nil {
			return outcome{err: fmt.Errorf("locating %s mirror: %w", t.Mirror, err)}
		}
		if p == "" {
			return outcome{skipped: true}
		}
		path = p
	}
	if path == "" {
		return outcome{skipped: true}
	}
	if err := c.store.Update(ctx, path, updates); err != nil {
		return outcome{path: path, err: err}
	}
	return outcome{path: path}
}

type nopObserver struct{}

func (nopObserver) MirrorWritten(string, string, error)   {}
func (nopObserver) MirrorSkipped(string, string)          {}
func (nopObserver) FanOutCompleted(string, time.Duration) {}
