package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octohaul/forge-backup/internal/entity"
	"github.com/octohaul/forge-backup/internal/filter"
	"github.com/octohaul/forge-backup/internal/forge"
)

type fakeSource struct {
	results []forge.Result
}

func (f fakeSource) Stream(ctx context.Context) <-chan forge.Result {
	out := make(chan forge.Result)
	go func() {
		defer close(out)
		for _, r := range f.results {
			select {
			case <-ctx.Done():
				return
			case out <- r:
			}
		}
	}()
	return out
}

func repoResult(name string, fork bool) forge.Result {
	r := entity.Repository{Name: name, FullName: "acme/" + name, Fork: fork}
	return forge.Result{Context: entity.Context{Repo: &r}}
}

func TestRunSucceedsAndCountsEntities(t *testing.T) {
	var handled atomic.Int32
	policy := Policy{
		Name:   "p1",
		Source: fakeSource{results: []forge.Result{repoResult("a", false), repoResult("b", true)}},
		Target: TargetFunc(func(ctx context.Context, c entity.Context) error {
			handled.Add(1)
			return nil
		}),
	}
	outcomes := Run(context.Background(), []Policy{policy})
	require.Len(t, outcomes, 1)
	assert.Nil(t, outcomes[0].TerminalErr)
	assert.EqualValues(t, 2, handled.Load())
	assert.EqualValues(t, 2, outcomes[0].Succeeded)
}

func TestRunAppliesFilter(t *testing.T) {
	expr, err := filter.Parse(`!repo.fork`)
	require.NoError(t, err)
	var handled atomic.Int32
	policy := Policy{
		Name:   "p1",
		Source: fakeSource{results: []forge.Result{repoResult("a", false), repoResult("b", true)}},
		Filter: expr,
		Target: TargetFunc(func(ctx context.Context, c entity.Context) error {
			handled.Add(1)
			return nil
		}),
	}
	outcomes := Run(context.Background(), []Policy{policy})
	assert.EqualValues(t, 1, handled.Load())
	assert.EqualValues(t, 1, outcomes[0].Succeeded)
	assert.EqualValues(t, 1, outcomes[0].Skipped)
}

func TestRunIsolatesEntityFailures(t *testing.T) {
	policy := Policy{
		Name:   "p1",
		Source: fakeSource{results: []forge.Result{repoResult("a", false), repoResult("b", false), repoResult("c", false)}},
		Target: TargetFunc(func(ctx context.Context, c entity.Context) error {
			if c.Repo.Name == "b" {
				return fmt.Errorf("simulated failure")
			}
			return nil
		}),
	}
	outcomes := Run(context.Background(), []Policy{policy})
	assert.Nil(t, outcomes[0].TerminalErr)
	assert.EqualValues(t, 2, outcomes[0].Succeeded)
	assert.EqualValues(t, 1, outcomes[0].Failed)
}

func TestRunRecordsTerminalSourceError(t *testing.T) {
	policy := Policy{
		Name:   "p1",
		Source: fakeSource{results: []forge.Result{{Err: &forge.AuthError{StatusCode: 401, URL: "x"}}}},
		Target: TargetFunc(func(ctx context.Context, c entity.Context) error { return nil }),
	}
	outcomes := Run(context.Background(), []Policy{policy})
	require.Error(t, outcomes[0].TerminalErr)
	assert.Equal(t, 2, Summarize(outcomes))
}

func TestSummarizeAllClean(t *testing.T) {
	assert.Equal(t, 0, Summarize([]Outcome{{Policy: "p1"}, {Policy: "p2"}}))
}

func TestSummarizeCancelledTakesPriority(t *testing.T) {
	outcomes := []Outcome{
		{Policy: "p1", TerminalErr: forge.Cancelled{}},
		{Policy: "p2", TerminalErr: &forge.AuthError{StatusCode: 401, URL: "x"}},
	}
	assert.Equal(t, 130, Summarize(outcomes))
}

func TestRunsPoliciesConcurrently(t *testing.T) {
	policies := []Policy{
		{Name: "a", Source: fakeSource{}, Target: TargetFunc(func(context.Context, entity.Context) error { return nil })},
		{Name: "b", Source: fakeSource{}, Target: TargetFunc(func(context.Context, entity.Context) error { return nil })},
	}
	outcomes := Run(context.Background(), policies)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "a", outcomes[0].Policy)
	assert.Equal(t, "b", outcomes[1].Policy)
}
