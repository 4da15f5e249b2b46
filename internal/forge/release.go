package forge

import (
	"context"
	"fmt"
	"strings"

	"github.com/octohaul/forge-backup/internal/artifact"
	"github.com/octohaul/forge-backup/internal/entity"
)

// ReleaseSource flattens (repo, release, asset) triples (§4.4 "Release
// expansion"): it first lists repos via the same `from` patterns as
// github/repo (`starred` excluded), then pages each repo's /releases.
type ReleaseSource struct {
	repos   *RepoSource
	Client  *Client
	Query   string
	PerPage int
	Meta    entity.Meta

	// Root and Decompress mirror the bound artifact.Target's own fields,
	// letting the source populate asset.downloaded (§3, §9) before a
	// filter ever sees the entity — observable only once a prior run
	// has actually materialized the asset locally.
	Root       string
	Decompress bool
}

func NewReleaseSource(client *Client, from, query string, perPage int, meta entity.Meta) (*ReleaseSource, error) {
	if pattern, _ := ParseFrom(from); pattern == "starred" {
		return nil, &ConfigError{Message: "from: starred is not supported by github/release"}
	}
	repos, err := NewRepoSource(client, from, "", 0, meta)
	if err != nil {
		return nil, err
	}
	return &ReleaseSource{repos: repos, Client: client, Query: query, PerPage: perPage, Meta: meta}, nil
}

func (s *ReleaseSource) Stream(ctx context.Context) <-chan Result {
	out := make(chan Result)
	go func() {
		defer close(out)
		for repoResult := range s.repos.Stream(ctx) {
			if repoResult.Err != nil {
				if !send(ctx, out, Result{Err: repoResult.Err}) {
					return
				}
				continue
			}
			if !s.emitReleasesForRepo(ctx, out, *repoResult.Context.Repo) {
				return
			}
		}
	}()
	return out
}

func (s *ReleaseSource) emitReleasesForRepo(ctx context.Context, out chan<- Result, repo entity.Repository) bool {
	owner, name, ok := strings.Cut(repo.FullName, "/")
	if !ok {
		return send(ctx, out, Result{Err: fmt.Errorf("malformed repo fullname %q", repo.FullName)})
	}
	path := fmt.Sprintf("/repos/%s/%s/releases", owner, name)
	next := mergeQuery(path, s.Query, s.PerPage)
	for next != "" {
		page, err := s.Client.Get(ctx, next)
		if err != nil {
			return send(ctx, out, Result{Err: err})
		}
		releases, err := decodeJSONArray[ghRelease](page.Body)
		if err != nil {
			return send(ctx, out, Result{Err: err})
		}
		for _, gr := range releases {
			rel := gr.toEntity()
			for _, ga := range gr.Assets {
				asset := ga.toEntity()
				s.markDownloaded(owner, name, gr.TagName, &asset)
				if !send(ctx, out, s.triple(repo, rel, asset)) {
					return false
				}
			}
			// Synthetic source-code triple, per §4.4.
			source := entity.Asset{
				Name:        gr.TagName + ".tar.gz",
				DownloadURL: sourceTarballURL(repo, gr.TagName),
				ContentType: "application/gzip",
				SourceCode:  true,
			}
			s.markDownloaded(owner, name, gr.TagName, &source)
			if !send(ctx, out, s.triple(repo, rel, source)) {
				return false
			}
		}
		next = page.NextLink
	}
	return true
}

// markDownloaded sets asset.Downloaded when Root is configured and a
// prior run's verified copy is already on disk; it is a no-op (asset
// stays false) for an unbound source, e.g. in tests that never set Root.
func (s *ReleaseSource) markDownloaded(owner, name, tag string, asset *entity.Asset) {
	if s.Root == "" {
		return
	}
	target := &artifact.Target{Root: s.Root, Decompress: s.Decompress}
	spec := artifact.Spec{
		Owner: owner, Repo: name, Tag: tag, AssetName: asset.Name,
		SizeKB: asset.SizeKB, Digest: asset.Digest, ContentType: asset.ContentType,
	}
	asset.Downloaded = target.AlreadyDownloaded(spec)
}

func (s *ReleaseSource) triple(repo entity.Repository, rel entity.Release, asset entity.Asset) Result {
	return Result{Context: entity.Context{Repo: &repo, Release: &rel, Asset: &asset, Meta: s.Meta}}
}

// sourceTarballURL synthesizes the direct tag-ref tarball download URL,
// since source-code archives aren't listed among a release's assets.
// GitHub serves these from the repo's web URL, not its git clone URL.
func sourceTarballURL(repo entity.Repository, tag string) string {
	base := repo.HTMLURL
	if base == "" {
		base = strings.TrimSuffix(repo.CloneURL, ".git")
	}
	return fmt.Sprintf("%s/archive/refs/tags/%s.tar.gz", base, tag)
}
