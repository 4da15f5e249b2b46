package forge

import (
	"context"

	"github.com/octohaul/forge-backup/internal/entity"
)

// GistSource emits Gist entities for a github/gist policy (§4.4).
type GistSource struct {
	Client  *Client
	From    string
	Query   string
	PerPage int
	Meta    entity.Meta
}

func NewGistSource(client *Client, from, query string, perPage int, meta entity.Meta) (*GistSource, error) {
	if _, err := GistListEndpoint(from); err != nil {
		return nil, err
	}
	return &GistSource{Client: client, From: from, Query: query, PerPage: perPage, Meta: meta}, nil
}

func (s *GistSource) Stream(ctx context.Context) <-chan Result {
	out := make(chan Result)
	go func() {
		defer close(out)
		path, err := GistListEndpoint(s.From)
		if err != nil {
			out <- Result{Err: err}
			return
		}
		next := mergeQuery(path, s.Query, s.PerPage)
		for next != "" {
			page, err := s.Client.Get(ctx, next)
			if err != nil {
				out <- Result{Err: err}
				return
			}
			gists, err := decodeJSONArray[ghGist](page.Body)
			if err != nil {
				out <- Result{Err: err}
				return
			}
			for _, g := range gists {
				ge := g.toEntity()
				if !send(ctx, out, Result{Context: entity.Context{Gist: &ge, Meta: s.Meta}}) {
					return
				}
			}
			next = page.NextLink
		}
	}()
	return out
}
