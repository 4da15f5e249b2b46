package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRejectsMalformed(t *testing.T) {
	_, err := Parse("not a cron expression")
	require.Error(t, err)
}

func TestNextAdvancesByOneMinute(t *testing.T) {
	s, err := Parse("* * * * *")
	require.NoError(t, err)
	base := time.Date(2026, 1, 1, 12, 0, 30, 0, time.UTC)
	next := s.Next(base)
	assert.Equal(t, time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC), next)
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	s, err := Parse("* * * * *")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, func(context.Context) {})
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
