// Package pipeline implements the staged, lazy, asynchronously-driven
// (source -> filter -> target) runtime (§4.6, §5): one producer task per
// policy drives the source sequence, a bounded semaphore gates concurrent
// target dispatch, and per-entity failures are isolated from one another
// and from other policies.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/octohaul/forge-backup/internal/entity"
	"github.com/octohaul/forge-backup/internal/filter"
	"github.com/octohaul/forge-backup/internal/forge"
)

// noopTracer is used whenever a Policy carries no Tracer (e.g. tests that
// build a Policy literal directly), so span calls are always safe to make.
var noopTracer = noop.NewTracerProvider().Tracer("forge-backup")

// DefaultConcurrency is the semaphore's default permit count (§4.6).
const DefaultConcurrency = 4

// Target materializes one filtered-in entity locally. Implementations
// (mirror.Target, artifact.Target) are adapted behind this by the
// policy-binding layer in internal/policy.
type Target interface {
	Handle(ctx context.Context, c entity.Context) error
}

// TargetFunc adapts a plain function to Target.
type TargetFunc func(ctx context.Context, c entity.Context) error

func (f TargetFunc) Handle(ctx context.Context, c entity.Context) error { return f(ctx, c) }

// Policy is one bound (source, filter, target) triple ready to run.
type Policy struct {
	Name        string
	Source      forge.Source
	Filter      filter.Expr // nil means "always true" (no filter configured)
	Target      Target
	Concurrency int // 0 means DefaultConcurrency
	// Tracer opens a span per producer emit, filter eval, and target
	// dispatch when tracing is configured (§6 Environment Variables). Nil
	// falls back to a no-op tracer, so unset Tracer is always safe.
	Tracer oteltrace.Tracer
}

// Outcome is one policy's result: whether it finished cleanly, its
// terminal error if any (§7: AuthError, NotFoundError, RateLimitExhausted,
// ConfigError, and exhausted TransientError all propagate here, as does
// Cancelled when the run is cancelled), and its accumulated
// per-entity failure counters.
type Outcome struct {
	Policy       string
	TerminalErr  error
	Succeeded    int64
	Failed       int64
	Skipped      int64 // entities the filter excluded
	EntityErrors []error
}

// Cancelled reports whether this outcome resulted from the run's
// cancellation token rather than a genuine failure (§5, §7).
func (o Outcome) Cancelled() bool {
	var c forge.Cancelled
	return o.TerminalErr == c
}

// Run executes every policy concurrently (§4.6 "Between policies,
// execution is fully concurrent") and returns one Outcome per policy in
// input order. Run itself never returns an error: a policy's failure is
// recorded in its Outcome, never propagated to sibling policies, matching
// §4.6's "failures in one must not abort another".
func Run(ctx context.Context, policies []Policy) []Outcome {
	outcomes := make([]Outcome, len(policies))
	var wg sync.WaitGroup
	wg.Add(len(policies))
	for i, p := range policies {
		go func(i int, p Policy) {
			defer wg.Done()
			outcomes[i] = runPolicy(ctx, p)
		}(i, p)
	}
	wg.Wait()
	return outcomes
}

// runPolicy drives one policy's producer/consumer loop: the producer
// evaluates the filter synchronously per §4.6 ("the producer evaluates
// the filter synchronously, and on true dispatches an async target
// task"), and a semaphore bounds how many target tasks run concurrently.
func runPolicy(ctx context.Context, p Policy) Outcome {
	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	tracer := p.Tracer
	if tracer == nil {
		tracer = noopTracer
	}
	sem := semaphore.NewWeighted(int64(concurrency))
	group, gctx := errgroup.WithContext(ctx)

	out := Outcome{Policy: p.Name}
	var mu sync.Mutex
	var succeeded, failed, skipped atomic.Int64

	for result := range p.Source.Stream(ctx) {
		emitCtx, emitSpan := tracer.Start(ctx, "pipeline.producer_emit")

		if result.Err != nil {
			emitSpan.RecordError(result.Err)
			emitSpan.End()
			if errors.Is(result.Err, forge.Cancelled{}) || ctx.Err() != nil {
				// The source stopped because the run was cancelled (§5).
				out.TerminalErr = forge.Cancelled{}
				break
			}
			if isTerminal(result.Err) {
				out.TerminalErr = result.Err
				break
			}
			mu.Lock()
			out.EntityErrors = append(out.EntityErrors, result.Err)
			mu.Unlock()
			failed.Add(1)
			logrus.WithField("policy", p.Name).Errorf("entity error: %v", result.Err)
			continue
		}

		_, filterSpan := tracer.Start(emitCtx, "pipeline.filter_eval")
		passes := passesFilter(p.Filter, result.Context)
		filterSpan.End()
		emitSpan.End()
		if !passes {
			skipped.Add(1)
			continue
		}

		if err := sem.Acquire(gctx, 1); err != nil {
			// Context cancelled while waiting for a permit (§5 suspension point).
			out.TerminalErr = forge.Cancelled{}
			break
		}
		c := result.Context
		group.Go(func() error {
			defer sem.Release(1)
			dispatchCtx, dispatchSpan := tracer.Start(gctx, "pipeline.target_dispatch")
			defer dispatchSpan.End()
			if err := p.Target.Handle(dispatchCtx, c); err != nil {
				dispatchSpan.RecordError(err)
				mu.Lock()
				out.EntityErrors = append(out.EntityErrors, err)
				mu.Unlock()
				failed.Add(1)
				logrus.WithFields(logrus.Fields{"policy": p.Name}).Errorf("target error: %v", err)
				return nil // per-entity failure isolation: never fails the errgroup
			}
			succeeded.Add(1)
			return nil
		})
	}

	if out.TerminalErr == nil && ctx.Err() != nil {
		// The source closed its channel early because the run was cancelled.
		out.TerminalErr = forge.Cancelled{}
	}
	if err := group.Wait(); err != nil && out.TerminalErr == nil {
		out.TerminalErr = err
	}
	out.Succeeded, out.Failed, out.Skipped = succeeded.Load(), failed.Load(), skipped.Load()
	return out
}

// passesFilter evaluates p's filter against c, defaulting to "include
// everything" when no filter was configured.
func passesFilter(expr filter.Expr, c entity.Context) bool {
	if expr == nil {
		return true
	}
	return filter.EvalExpr(expr, c).Truthy()
}

// isTerminal reports whether err is one of the source-side kinds that
// must end the policy outright (§7: AuthError, NotFoundError, ConfigError,
// RateLimitExhausted, an exhausted TransientError) as opposed to a
// recoverable per-entity failure.
func isTerminal(err error) bool {
	var (
		authErr    *forge.AuthError
		cfgErr     *forge.ConfigError
		rlErr      *forge.RateLimitExhausted
		transient  *forge.TransientError
		notFoundEr *forge.NotFoundError
	)
	return errors.As(err, &authErr) || errors.As(err, &cfgErr) || errors.As(err, &rlErr) ||
		errors.As(err, &transient) || errors.As(err, &notFoundEr)
}

// Summarize reduces a run's per-policy outcomes to the §6 CLI exit code:
// 0 all clean, 1 is reserved for config errors (checked before Run is
// ever called), 2 if any policy hit a terminal source-side error, 130 if
// any policy was cancelled.
func Summarize(outcomes []Outcome) int {
	sawCancelled := false
	sawTerminal := false
	for _, o := range outcomes {
		if o.TerminalErr == nil {
			continue
		}
		if o.Cancelled() {
			sawCancelled = true
			continue
		}
		sawTerminal = true
	}
	switch {
	case sawCancelled:
		return 130
	case sawTerminal:
		return 2
	default:
		return 0
	}
}
