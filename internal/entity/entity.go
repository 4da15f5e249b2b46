// Package entity defines the forge entity types (Repository, Release, Asset,
// Gist) and their read-only projection into the filter package's dynamic
// value model, per spec.md §3 and §4.2.
package entity

import (
	"strings"
	"time"

	"github.com/octohaul/forge-backup/internal/filter"
)

// Repository mirrors spec.md §3's Repository attributes.
type Repository struct {
	Name             string
	FullName         string
	Private          bool
	Fork             bool
	SizeKB           int64
	Archived         bool
	Disabled         bool
	DefaultBranch    string
	Template         bool
	ForksCount       int64
	StargazersCount  int64
	CloneURL         string
	HTMLURL          string
}

// Public is derived, never stored, enforcing the invariant private == !public.
func (r Repository) Public() bool { return !r.Private }

// Empty is derived: empty == (size_kb == 0).
func (r Repository) Empty() bool { return r.SizeKB == 0 }

func (r Repository) Lookup(field string) filter.Value {
	switch field {
	case "name":
		return filter.String(r.Name)
	case "fullname":
		return filter.String(r.FullName)
	case "private":
		return filter.Bool(r.Private)
	case "public":
		return filter.Bool(r.Public())
	case "fork":
		return filter.Bool(r.Fork)
	case "size_kb":
		return filter.Number(float64(r.SizeKB))
	case "archived":
		return filter.Bool(r.Archived)
	case "disabled":
		return filter.Bool(r.Disabled)
	case "default_branch":
		return filter.String(r.DefaultBranch)
	case "empty":
		return filter.Bool(r.Empty())
	case "template":
		return filter.Bool(r.Template)
	case "forks_count":
		return filter.Number(float64(r.ForksCount))
	case "stargazers_count", "stargazers":
		return filter.Number(float64(r.StargazersCount))
	case "clone_url":
		return filter.String(r.CloneURL)
	default:
		return filter.Null
	}
}

// Release mirrors spec.md §3's Release attributes; it is a child of a
// Repository and carries a list of Assets.
type Release struct {
	Tag        string
	Name       string
	Draft      bool
	Prerelease bool
	Assets     []Asset
}

// Published is derived: published == !draft.
func (r Release) Published() bool { return !r.Draft }

func (r Release) Lookup(field string) filter.Value {
	switch field {
	case "tag":
		return filter.String(r.Tag)
	case "name":
		return filter.String(r.Name)
	case "draft":
		return filter.Bool(r.Draft)
	case "prerelease":
		return filter.Bool(r.Prerelease)
	case "published":
		return filter.Bool(r.Published())
	default:
		return filter.Null
	}
}

// Asset mirrors spec.md §3's Asset attributes plus the observed local
// `downloaded` state (only ever true once a prior run verified a local
// copy, per §9's open question).
type Asset struct {
	Name         string
	SizeKB       int64
	DownloadURL  string
	ContentType  string
	Digest       string // sha256 hex, empty if unknown
	SourceCode   bool   // synthetic "<tag>.tar.gz" triple, per §4.4 release expansion
	Downloaded   bool
}

func (a Asset) Lookup(field string) filter.Value {
	switch field {
	case "name":
		return filter.String(a.Name)
	case "size_kb":
		return filter.Number(float64(a.SizeKB))
	case "download_url":
		return filter.String(a.DownloadURL)
	case "content_type":
		return filter.String(a.ContentType)
	case "digest":
		if a.Digest == "" {
			return filter.Null
		}
		return filter.String(a.Digest)
	case "source-code":
		return filter.Bool(a.SourceCode)
	case "downloaded":
		return filter.Bool(a.Downloaded)
	default:
		return filter.Null
	}
}

// Gist mirrors spec.md §3's Gist attributes.
type Gist struct {
	ID              string
	Private         bool
	CommentsEnabled bool
	CommentsCount   int64
	FilesCount      int64
	ForksCount      int64
	FileNames       []string
	Languages       []string
	Type            string
	CloneURL        string
}

// Public is derived: public == !private.
func (g Gist) Public() bool { return !g.Private }

func (g Gist) Lookup(field string) filter.Value {
	switch field {
	case "id":
		return filter.String(g.ID)
	case "public":
		return filter.Bool(g.Public())
	case "private":
		return filter.Bool(g.Private)
	case "comments_enabled":
		return filter.Bool(g.CommentsEnabled)
	case "comments_count":
		return filter.Number(float64(g.CommentsCount))
	case "files_count":
		return filter.Number(float64(g.FilesCount))
	case "forks_count":
		return filter.Number(float64(g.ForksCount))
	case "file_names":
		return stringsTuple(g.FileNames)
	case "languages":
		return stringsTuple(g.Languages)
	case "type":
		return filter.String(g.Type)
	case "clone_url":
		return filter.String(g.CloneURL)
	default:
		return filter.Null
	}
}

func stringsTuple(ss []string) filter.Value {
	vs := make([]filter.Value, len(ss))
	for i, s := range ss {
		vs[i] = filter.String(s)
	}
	return filter.Tuple(vs)
}

// Meta carries the run/policy context (§4.2's "meta" supplement) so a
// filter can be shared across policies of different kinds, e.g.
// `meta.kind == "github/release"`.
type Meta struct {
	PolicyName string
	Kind       string
	From       string
	RunStarted time.Time
}

func (m Meta) Lookup(field string) filter.Value {
	switch field {
	case "policy":
		return filter.String(m.PolicyName)
	case "kind":
		return filter.String(m.Kind)
	case "from":
		return filter.String(m.From)
	case "run_started":
		return filter.String(m.RunStarted.UTC().Format(time.RFC3339))
	default:
		return filter.Null
	}
}

// Context builds the top-level {repo, release, asset, gist, meta} bindings
// passed to the filter evaluator for one produced entity. Any of repo,
// release, asset, gist may be the zero value's absence (nil) when a source
// only produces some of them (e.g. a repo-only stream has no release/asset).
type Context struct {
	Repo    *Repository
	Release *Release
	Asset   *Asset
	Gist    *Gist
	Meta    Meta
}

func (c Context) Lookup(name string) filter.Lookuper {
	switch name {
	case "repo":
		if c.Repo == nil {
			return nullLookuper{}
		}
		return *c.Repo
	case "release":
		if c.Release == nil {
			return nullLookuper{}
		}
		return *c.Release
	case "asset":
		if c.Asset == nil {
			return nullLookuper{}
		}
		return *c.Asset
	case "gist":
		if c.Gist == nil {
			return nullLookuper{}
		}
		return *c.Gist
	case "meta":
		return c.Meta
	default:
		return nullLookuper{}
	}
}

type nullLookuper struct{}

func (nullLookuper) Lookup(string) filter.Value { return filter.Null }

// FullName builds the "owner/name" identifier used for on-disk layout and
// as the repo-kind entity's primary key (§3).
func FullName(owner, name string) string {
	return strings.TrimSuffix(owner, "/") + "/" + name
}
