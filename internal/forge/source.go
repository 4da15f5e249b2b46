package forge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/octohaul/forge-backup/internal/entity"
)

// Result is one element of a source's lazy sequence, modeled as
// Result<Entity, SourceError> per §9. Err is set when fetching or decoding
// a listing page fails (auth, rate limit, transient, decode), and the
// Result then carries no entity. The repository and gist sources stop
// after such a Result; the release source moves on to the next repository
// when listing one repository's releases fails.
type Result struct {
	Context entity.Context
	Err     error
}

// Source produces a lazy, single-pass, finite sequence of entities (§4.4).
// Stream must respect ctx cancellation at every suspension point and close
// the returned channel when exhausted or cancelled.
type Source interface {
	Stream(ctx context.Context) <-chan Result
}

// ParseFrom splits a policy's `from` pattern into its (kind, qualifier)
// parts, e.g. "users/<name>" -> ("users", "<name>"), "starred" -> ("starred", "").
func ParseFrom(from string) (pattern, qualifier string) {
	pattern, qualifier, ok := strings.Cut(from, "/")
	if !ok {
		return from, ""
	}
	return pattern, qualifier
}

// RepoListEndpoint resolves the `/repos`-style listing endpoint for a
// github/repo or github/release policy's `from` value, per §4.4's table.
// `from: starred` is always accepted here; github/release rejects it
// separately, in NewReleaseSource and in policy validation.
func RepoListEndpoint(from string) (path string, singleItem bool, err error) {
	pattern, qualifier := ParseFrom(from)
	switch pattern {
	case "user":
		if qualifier != "" {
			return "", false, badFrom(from)
		}
		return "/user/repos", false, nil
	case "users":
		if qualifier == "" {
			return "", false, badFrom(from)
		}
		return "/users/" + qualifier + "/repos", false, nil
	case "orgs":
		if qualifier == "" {
			return "", false, badFrom(from)
		}
		return "/orgs/" + qualifier + "/repos", false, nil
	case "repos":
		owner, name, ok := strings.Cut(qualifier, "/")
		if !ok || owner == "" || name == "" {
			return "", false, badFrom(from)
		}
		return "/repos/" + owner + "/" + name, true, nil
	case "starred":
		if qualifier != "" {
			return "", false, badFrom(from)
		}
		return "/user/starred", false, nil
	default:
		return "", false, badFrom(from)
	}
}

// GistListEndpoint resolves a github/gist policy's `from` value.
func GistListEndpoint(from string) (path string, err error) {
	pattern, qualifier := ParseFrom(from)
	switch pattern {
	case "user":
		if qualifier != "" {
			return "", badFrom(from)
		}
		return "/gists", nil
	case "users":
		if qualifier == "" {
			return "", badFrom(from)
		}
		return "/users/" + qualifier + "/gists", nil
	case "starred":
		if qualifier != "" {
			return "", badFrom(from)
		}
		return "/gists/starred", nil
	default:
		return "", badFrom(from)
	}
}

func badFrom(from string) error {
	return &ConfigError{Message: fmt.Sprintf("unsupported from pattern %q", from)}
}

type ghRepo struct {
	Name            string `json:"name"`
	FullName        string `json:"full_name"`
	Private         bool   `json:"private"`
	Fork            bool   `json:"fork"`
	Size            int64  `json:"size"` // KB, per GitHub's API convention
	Archived        bool   `json:"archived"`
	Disabled        bool   `json:"disabled"`
	DefaultBranch   string `json:"default_branch"`
	IsTemplate      bool   `json:"is_template"`
	ForksCount      int64  `json:"forks_count"`
	StargazersCount int64  `json:"stargazers_count"`
	CloneURL        string `json:"clone_url"`
	HTMLURL         string `json:"html_url"`
}

func (r ghRepo) toEntity() entity.Repository {
	return entity.Repository{
		Name:            r.Name,
		FullName:        r.FullName,
		Private:         r.Private,
		Fork:            r.Fork,
		SizeKB:          r.Size,
		Archived:        r.Archived,
		Disabled:        r.Disabled,
		DefaultBranch:   r.DefaultBranch,
		Template:        r.IsTemplate,
		ForksCount:      r.ForksCount,
		StargazersCount: r.StargazersCount,
		CloneURL:        r.CloneURL,
		HTMLURL:         r.HTMLURL,
	}
}

type ghGist struct {
	ID       string            `json:"id"`
	Public   bool              `json:"public"`
	Comments int64             `json:"comments"`
	Files    map[string]ghFile `json:"files"`
	GitURL   string            `json:"git_pull_url"`
}

type ghFile struct {
	Language string `json:"language"`
}

func (g ghGist) toEntity() entity.Gist {
	names := make([]string, 0, len(g.Files))
	langSet := map[string]struct{}{}
	for name, f := range g.Files {
		names = append(names, name)
		if f.Language != "" {
			langSet[f.Language] = struct{}{}
		}
	}
	langs := make([]string, 0, len(langSet))
	for l := range langSet {
		langs = append(langs, l)
	}
	gistType := "gist"
	if len(g.Files) == 1 {
		gistType = "snippet"
	}
	return entity.Gist{
		ID:              g.ID,
		Private:         !g.Public,
		CommentsEnabled: true,
		CommentsCount:   g.Comments,
		FilesCount:      int64(len(g.Files)),
		FileNames:       names,
		Languages:       langs,
		Type:            gistType,
		CloneURL:        g.GitURL,
	}
}

type ghRelease struct {
	TagName    string    `json:"tag_name"`
	Name       string    `json:"name"`
	Draft      bool      `json:"draft"`
	Prerelease bool      `json:"prerelease"`
	Assets     []ghAsset `json:"assets"`
}

type ghAsset struct {
	Name               string `json:"name"`
	Size               int64  `json:"size"` // bytes; converted to KB below
	BrowserDownloadURL string `json:"browser_download_url"`
	ContentType        string `json:"content_type"`
	Digest             string `json:"digest"` // e.g. "sha256:<hex>", may be empty
}

func (r ghRelease) toEntity() entity.Release {
	return entity.Release{
		Tag:        r.TagName,
		Name:       r.Name,
		Draft:      r.Draft,
		Prerelease: r.Prerelease,
	}
}

func (a ghAsset) toEntity() entity.Asset {
	digest := strings.TrimPrefix(a.Digest, "sha256:")
	return entity.Asset{
		Name:        a.Name,
		SizeKB:      a.Size / 1024,
		DownloadURL: a.BrowserDownloadURL,
		ContentType: a.ContentType,
		Digest:      digest,
	}
}

// mergeQuery merges properties.query (verbatim, §4.4) and an optional
// per_page override into path's query string.
func mergeQuery(path string, extraQuery string, perPage int) string {
	q := url.Values{}
	if extraQuery != "" {
		parsed, err := url.ParseQuery(extraQuery)
		if err == nil {
			q = parsed
		}
	}
	if perPage > 0 {
		q.Set("per_page", fmt.Sprintf("%d", perPage))
	}
	return WithQuery(path, q)
}

func decodeJSONArray[T any](body []byte) ([]T, error) {
	var items []T
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("decode response body: %w", err)
	}
	return items, nil
}

func decodeJSONObject(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}
