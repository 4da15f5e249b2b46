package forge

import (
	"context"

	"github.com/octohaul/forge-backup/internal/entity"
)

// RepoSource emits Repository entities for a github/repo policy (§4.4).
type RepoSource struct {
	Client  *Client
	From    string
	Query   string
	PerPage int
	Meta    entity.Meta
}

// NewRepoSource validates `from` against the repo adapter's supported
// patterns and returns a bound Source, or a *ConfigError at bind time
// (§4.4 "Unsupported combinations fail at config-validation time").
func NewRepoSource(client *Client, from, query string, perPage int, meta entity.Meta) (*RepoSource, error) {
	if _, _, err := RepoListEndpoint(from); err != nil {
		return nil, err
	}
	return &RepoSource{Client: client, From: from, Query: query, PerPage: perPage, Meta: meta}, nil
}

func (s *RepoSource) Stream(ctx context.Context) <-chan Result {
	out := make(chan Result)
	go func() {
		defer close(out)
		path, single, err := RepoListEndpoint(s.From)
		if err != nil {
			out <- Result{Err: err}
			return
		}
		if single {
			s.emitOne(ctx, out, path)
			return
		}
		s.emitPaginated(ctx, out, mergeQuery(path, s.Query, s.PerPage))
	}()
	return out
}

func (s *RepoSource) emitOne(ctx context.Context, out chan<- Result, path string) {
	page, err := s.Client.Get(ctx, path)
	if err != nil {
		out <- Result{Err: err}
		return
	}
	var r ghRepo
	if err := decodeJSONObject(page.Body, &r); err != nil {
		out <- Result{Err: err}
		return
	}
	send(ctx, out, s.toResult(r))
}

func (s *RepoSource) emitPaginated(ctx context.Context, out chan<- Result, firstPath string) {
	next := firstPath
	for next != "" {
		page, err := s.Client.Get(ctx, next)
		if err != nil {
			out <- Result{Err: err}
			return
		}
		repos, err := decodeJSONArray[ghRepo](page.Body)
		if err != nil {
			out <- Result{Err: err}
			return
		}
		for _, r := range repos {
			if !send(ctx, out, s.toResult(r)) {
				return
			}
		}
		next = page.NextLink
	}
}

func (s *RepoSource) toResult(r ghRepo) Result {
	repo := r.toEntity()
	return Result{Context: entity.Context{Repo: &repo, Meta: s.Meta}}
}

// send delivers r on out, returning false if ctx was cancelled first.
func send(ctx context.Context, out chan<- Result, r Result) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- r:
		return true
	}
}
