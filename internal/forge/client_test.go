package forge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octohaul/forge-backup/internal/credentials"
	"github.com/octohaul/forge-backup/internal/entity"
)

func TestParseNextLink(t *testing.T) {
	header := `<https://api.github.com/repos?page=2>; rel="next", <https://api.github.com/repos?page=5>; rel="last"`
	assert.Equal(t, "https://api.github.com/repos?page=2", parseNextLink(header))
}

func TestParseNextLinkAbsent(t *testing.T) {
	assert.Empty(t, parseNextLink(`<https://api.github.com/repos?page=5>; rel="last"`))
}

func TestClientGetFollowsPagination(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("page") == "2" {
			w.Write([]byte(`[{"name":"b"}]`))
			return
		}
		w.Header().Set("Link", `<`+srv2URL(r)+`?page=2>; rel="next"`)
		w.Write([]byte(`[{"name":"a"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, credentials.None{}, nil)
	page1, err := c.Get(context.Background(), "/repos")
	require.NoError(t, err)
	assert.NotEmpty(t, page1.NextLink)

	page2, err := c.Get(context.Background(), page1.NextLink)
	require.NoError(t, err)
	assert.Empty(t, page2.NextLink)
	assert.Equal(t, 2, calls)
}

func srv2URL(r *http.Request) string {
	return "http://" + r.Host + r.URL.Path
}

func TestClientGetUnauthorizedIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, credentials.None{}, nil)
	_, err := c.Get(context.Background(), "/x")
	require.Error(t, err)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestClientGetNotFoundIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, credentials.None{}, nil)
	_, err := c.Get(context.Background(), "/x")
	require.Error(t, err)
	var nfErr *NotFoundError
	require.ErrorAs(t, err, &nfErr)
}

func TestClientGetRateLimitSleepsThenRetries(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", "0") // already in the past, no real sleep
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, credentials.None{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := c.Get(ctx, "/x")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestClientGetStillRateLimitedAfterRetryIsExhausted(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", "0") // already in the past, no real sleep
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, credentials.None{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := c.Get(ctx, "/x")
	require.Error(t, err)
	var rlErr *RateLimitExhausted
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, 2, calls) // initial attempt + the single direct retry, no generic backoff loop
}

func TestClientGetRetriesOn5xxThenFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, credentials.None{}, nil)
	_, err := c.Get(context.Background(), "/x")
	require.Error(t, err)
	var transientErr *TransientError
	require.ErrorAs(t, err, &transientErr)
}

func TestRepoListEndpointTable(t *testing.T) {
	cases := []struct {
		from   string
		path   string
		single bool
	}{
		{"user", "/user/repos", false},
		{"users/alice", "/users/alice/repos", false},
		{"orgs/acme", "/orgs/acme/repos", false},
		{"repos/acme/widget", "/repos/acme/widget", true},
		{"starred", "/user/starred", false},
	}
	for _, tc := range cases {
		path, single, err := RepoListEndpoint(tc.from)
		require.NoError(t, err, tc.from)
		assert.Equal(t, tc.path, path, tc.from)
		assert.Equal(t, tc.single, single, tc.from)
	}
}

func TestRepoListEndpointRejectsUnsupported(t *testing.T) {
	_, _, err := RepoListEndpoint("teams/whatever")
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestGistListEndpointRejectsOrgs(t *testing.T) {
	_, err := GistListEndpoint("orgs/acme")
	require.Error(t, err)
}

func TestNewReleaseSourceRejectsStarred(t *testing.T) {
	c := NewClient("http://example.test", credentials.None{}, nil)
	_, err := NewReleaseSource(c, "starred", "", 0, entity.Meta{})
	require.Error(t, err)
}
