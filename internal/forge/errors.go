package forge

import "fmt"

// The named error kinds from §7, modeled as sentinel-wrapping types the
// policy supervisor switches on, mirroring modules/git/repo.go's
// ErrDifferentHash / ErrInvalidBranchName classification pattern.

// ConfigError is a fatal, config-validation-time failure: malformed policy,
// unsupported (kind, from) combination, bad filter syntax.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return "config error: " + e.Message }

// AuthError is a 401 from the forge; fatal for the affected policy only.
type AuthError struct {
	StatusCode int
	URL        string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error: %s returned status %d", e.URL, e.StatusCode)
}

// RateLimitExhausted is raised when a rate-limited request is still 403
// after the single scheduled retry.
type RateLimitExhausted struct {
	URL string
}

func (e *RateLimitExhausted) Error() string {
	return fmt.Sprintf("rate limit exhausted for %s", e.URL)
}

// TransientError wraps a transport/5xx/timeout failure that exhausted its
// retry budget.
type TransientError struct {
	URL string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error fetching %s: %v", e.URL, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// NotFoundError is a terminal 404 from the forge.
type NotFoundError struct {
	URL string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("not found: %s", e.URL) }

// Cancelled reports clean observance of the run's cancellation token; it is
// not logged as a failure (§7).
type Cancelled struct{}

func (Cancelled) Error() string { return "cancelled" }
