// Package scheduler wraps robfig/cron/v3 behind the minimal interface
// §6's cron dialect needs: five-field POSIX cron, evaluated in UTC,
// triggering one pipeline run per tick.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Schedule evaluates a five-field POSIX cron expression in UTC (§6).
type Schedule struct {
	spec cron.Schedule
	raw  string
}

// Parse validates raw against the standard five-field dialect (minute,
// hour, day-of-month, month, day-of-week); malformed input is a
// ConfigError-class failure the caller should treat as fatal at
// config-validation time.
func Parse(raw string) (*Schedule, error) {
	spec, err := cron.ParseStandard(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", raw, err)
	}
	return &Schedule{spec: spec, raw: raw}, nil
}

// Next returns the next UTC activation time strictly after `after`.
func (s *Schedule) Next(after time.Time) time.Time {
	return s.spec.Next(after.UTC())
}

// Run blocks, invoking fn once per scheduled tick, until ctx is
// cancelled. fn's error is logged but never stops the loop: a single bad
// run should not end a long-lived scheduled process.
func (s *Schedule) Run(ctx context.Context, fn func(context.Context)) {
	for {
		next := s.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			logrus.Debugf("cron %q firing at %s", s.raw, next)
			fn(ctx)
		}
	}
}
