package forge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/octohaul/forge-backup/internal/credentials"
	"github.com/octohaul/forge-backup/internal/forge/pagecache"
	"github.com/octohaul/forge-backup/modules/streamio"
)

// Client is a shared, immutable handle to one forge API base URL (§9:
// "the client is a shared immutable handle; credentials are attached per
// request at call sites"). One Client typically backs every source adapter
// bound to the same policy.
type Client struct {
	BaseURL    string
	HTTP       *http.Client
	Credential credentials.Credential
	Cache      *pagecache.Cache // optional, nil disables caching
}

const defaultAPIBaseURL = "https://api.github.com"

// NewClient builds a Client for apiBaseURL (empty means the public GitHub
// API, per §4.4's properties.api_url override).
func NewClient(apiBaseURL string, cred credentials.Credential, cache *pagecache.Cache) *Client {
	if apiBaseURL == "" {
		apiBaseURL = defaultAPIBaseURL
	}
	if cred == nil {
		cred = credentials.None{}
	}
	return &Client{
		BaseURL:    strings.TrimRight(apiBaseURL, "/"),
		HTTP:       http.DefaultClient,
		Credential: cred,
		Cache:      cache,
	}
}

// Page is one fetched page of a paginated listing, or a single-item
// response for non-list endpoints.
type Page struct {
	Body     []byte
	NextLink string // absolute URL of the next page, empty if none
}

const (
	retryBaseDelay = 500 * time.Millisecond
	retryFactor    = 2
	retryMaxTries  = 5
)

// Get performs one GET against rawURL (absolute, or path relative to
// BaseURL) with the configured credential attached, following §4.3's
// rate-limit and retry rules.
func (c *Client) Get(ctx context.Context, rawURL string) (Page, error) {
	full := c.resolve(rawURL)
	var lastErr error
	for attempt := 0; attempt < retryMaxTries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, jitteredBackoff(attempt)); err != nil {
				return Page{}, err
			}
		}
		page, retry, err := c.getOnce(ctx, full)
		if err == nil {
			return page, nil
		}
		if !retry {
			return Page{}, err
		}
		lastErr = err
		logrus.Debugf("retrying %s after transient error: %v", full, err)
	}
	return Page{}, &TransientError{URL: full, Err: lastErr}
}

// getOnce performs one attempt, returning (page, retryable, err). err is
// non-nil and retryable is false for terminal failures (401/404, exhausted
// rate limit); retryable is true for 5xx/network errors eligible for
// backoff.
func (c *Client) getOnce(ctx context.Context, full string) (Page, bool, error) {
	cacheKey := ""
	if c.Cache != nil {
		cacheKey = pagecache.Key(http.MethodGet, full, c.authFingerprint())
		if e, ok := c.Cache.Get(cacheKey); ok {
			return Page{Body: e.Body, NextLink: e.NextLink}, false, statusToErr(e.Status, full)
		}
	}

	resp, body, err := c.rawGet(ctx, full)
	if err != nil {
		return Page{}, true, err
	}

	if isRateLimited(resp) {
		if err := c.waitForRateLimitReset(ctx, resp.Header.Get("X-RateLimit-Reset")); err != nil {
			return Page{}, false, err
		}
		// §4.3/§7: exactly one direct retry after the rate-limit sleep,
		// issued here rather than through Get's generic exponential-backoff
		// loop so a still-rate-limited response fails the policy immediately
		// as RateLimitExhausted instead of burning further backoff attempts.
		resp, body, err = c.rawGet(ctx, full)
		if err != nil {
			return Page{}, true, err
		}
		if isRateLimited(resp) {
			return Page{}, false, &RateLimitExhausted{URL: full}
		}
	}

	return c.interpret(resp, body, full, cacheKey)
}

// rawGet issues a single GET, fully draining and closing the response body.
func (c *Client) rawGet(ctx context.Context, full string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if err := c.Credential.Attach(ctx, req); err != nil {
		return nil, nil, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	buf := streamio.GetBytesBuffer()
	defer streamio.PutBytesBuffer(buf)
	if _, err := streamio.Copy(buf, resp.Body); err != nil {
		return nil, nil, err
	}
	return resp, append([]byte(nil), buf.Bytes()...), nil
}

func isRateLimited(resp *http.Response) bool {
	return resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0"
}

// interpret classifies a completed response into a Page or a terminal/
// retryable error, and populates the page cache on success.
func (c *Client) interpret(resp *http.Response, body []byte, full, cacheKey string) (Page, bool, error) {
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return Page{}, false, &AuthError{StatusCode: resp.StatusCode, URL: full}
	case resp.StatusCode == http.StatusNotFound:
		return Page{}, false, &NotFoundError{URL: full}
	case resp.StatusCode >= 500:
		return Page{}, true, fmt.Errorf("status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return Page{}, false, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, full)
	}

	page := Page{Body: body, NextLink: parseNextLink(resp.Header.Get("Link"))}
	if c.Cache != nil {
		c.Cache.Set(cacheKey, pagecache.Entry{Status: resp.StatusCode, Body: body, NextLink: page.NextLink})
	}
	return page, false, nil
}

func statusToErr(status int, full string) error {
	switch {
	case status == http.StatusUnauthorized:
		return &AuthError{StatusCode: status, URL: full}
	case status == http.StatusNotFound:
		return &NotFoundError{URL: full}
	default:
		return nil
	}
}

// waitForRateLimitReset sleeps until the X-RateLimit-Reset unix-epoch
// timestamp, per §4.3. A second rate-limit hit after this single retry
// makes getOnce return RateLimitExhausted directly.
func (c *Client) waitForRateLimitReset(ctx context.Context, resetHeader string) error {
	resetUnix, err := strconv.ParseInt(resetHeader, 10, 64)
	if err != nil {
		return sleepCtx(ctx, retryBaseDelay)
	}
	d := time.Until(time.Unix(resetUnix, 0))
	if d < 0 {
		d = 0
	}
	logrus.Debugf("rate limited, sleeping %s until reset", d)
	return sleepCtx(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return Cancelled{}
	case <-t.C:
		return nil
	}
}

// jitteredBackoff implements base 500ms, factor 2, full jitter (§4.3).
func jitteredBackoff(attempt int) time.Duration {
	max := retryBaseDelay * time.Duration(1<<uint(attempt-1))
	if max > 60*time.Second {
		max = 60 * time.Second
	}
	return time.Duration(rand.Int63n(int64(max) + 1))
}

func (c *Client) resolve(rawURL string) string {
	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") {
		return rawURL
	}
	return c.BaseURL + "/" + strings.TrimLeft(rawURL, "/")
}

func (c *Client) authFingerprint() string {
	// Non-reversible fingerprint of the credential identity, never the
	// secret itself, so cache keys never leak or embed auth material.
	identity := fmt.Sprintf("%T", c.Credential)
	switch cred := c.Credential.(type) {
	case credentials.Token:
		identity += "\x00" + cred.Value
	case credentials.UsernamePassword:
		identity += "\x00" + cred.Username + "\x00" + cred.Password
	case *credentials.GithubApp:
		identity += "\x00" + cred.AppID + "\x00" + cred.InstallationID
	}
	h := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(h[:8])
}

// parseNextLink extracts the rel="next" URL from an RFC 5988 Link header.
func parseNextLink(header string) string {
	if header == "" {
		return ""
	}
	for _, part := range strings.Split(header, ",") {
		segs := strings.Split(part, ";")
		if len(segs) < 2 {
			continue
		}
		urlPart := strings.TrimSpace(segs[0])
		if !strings.HasPrefix(urlPart, "<") || !strings.HasSuffix(urlPart, ">") {
			continue
		}
		for _, param := range segs[1:] {
			param = strings.TrimSpace(param)
			if param == `rel="next"` {
				return urlPart[1 : len(urlPart)-1]
			}
		}
	}
	return ""
}

// WithQuery merges extra query parameters (properties.query, §4.4) into the
// first-page request URL.
func WithQuery(path string, extra url.Values) string {
	if len(extra) == 0 {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + extra.Encode()
}
