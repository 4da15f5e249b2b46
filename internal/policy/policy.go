// Package policy parses the YAML configuration file (§6) into validated
// BackupPolicy values and binds each to its source/target adapters, ready
// for the pipeline runtime.
package policy

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/octohaul/forge-backup/internal/credentials"
	"github.com/octohaul/forge-backup/internal/entity"
	"github.com/octohaul/forge-backup/internal/filter"
	"github.com/octohaul/forge-backup/internal/forge"
	"github.com/octohaul/forge-backup/internal/forge/pagecache"
	"github.com/octohaul/forge-backup/internal/mirror"
	"github.com/octohaul/forge-backup/internal/pipeline"
	"github.com/octohaul/forge-backup/internal/replicate"
	"github.com/octohaul/forge-backup/modules/strengthen"
	"github.com/octohaul/forge-backup/pkg/progress"
)

// Config is the top-level YAML document (§6): an optional cron
// `schedule` and the required `backups` list.
type Config struct {
	Schedule string   `yaml:"schedule"`
	Backups  []Policy `yaml:"backups"`
}

// Policy is one BackupPolicy entry (§3): {kind, from, to, credentials?,
// filter?, properties?}.
type Policy struct {
	Kind        string            `yaml:"kind"`
	From        string            `yaml:"from"`
	To          string            `yaml:"to"`
	Credentials CredentialTag     `yaml:"credentials"`
	Filter      string            `yaml:"filter"`
	Properties  map[string]any    `yaml:"properties"`
}

// CredentialTag unmarshals one of the tagged credential forms:
// `!Token "<string>"`, `!UsernamePassword {username, password}`, or the
// supplemented `!GithubApp {app_id, installation_id, private_key_path}`.
type CredentialTag struct {
	Kind             string // "", "Token", "UsernamePassword", "GithubApp"
	Token            string
	Username         string
	Password         string
	AppID            string
	InstallationID   string
	PrivateKeyPath   string
}

func (c *CredentialTag) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "" || node.Tag == "!!null" {
		*c = CredentialTag{}
		return nil
	}
	switch node.Tag {
	case "!Token":
		var tok string
		if err := node.Decode(&tok); err != nil {
			return fmt.Errorf("decode !Token: %w", err)
		}
		*c = CredentialTag{Kind: "Token", Token: tok}
	case "!UsernamePassword":
		var up struct {
			Username string `yaml:"username"`
			Password string `yaml:"password"`
		}
		if err := node.Decode(&up); err != nil {
			return fmt.Errorf("decode !UsernamePassword: %w", err)
		}
		*c = CredentialTag{Kind: "UsernamePassword", Username: up.Username, Password: up.Password}
	case "!GithubApp":
		var app struct {
			AppID          string `yaml:"app_id"`
			InstallationID string `yaml:"installation_id"`
			PrivateKeyPath string `yaml:"private_key_path"`
		}
		if err := node.Decode(&app); err != nil {
			return fmt.Errorf("decode !GithubApp: %w", err)
		}
		*c = CredentialTag{Kind: "GithubApp", AppID: app.AppID, InstallationID: app.InstallationID, PrivateKeyPath: app.PrivateKeyPath}
	default:
		return fmt.Errorf("unrecognized credential tag %q", node.Tag)
	}
	return nil
}

// Load reads and parses path into a Config; it does not yet validate
// individual policies (see Validate).
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks every policy's (kind, from) against the recognized
// combinations (§4.4) and the filter expression's syntax (§4.1),
// returning the first ConfigError/ParseError it finds. Called once at
// config-validation time, before any pipeline runs (§7).
func (c *Config) Validate() error {
	for i, p := range c.Backups {
		if err := p.validate(); err != nil {
			return fmt.Errorf("backups[%d]: %w", i, err)
		}
	}
	return nil
}

func (p Policy) validate() error {
	switch p.Kind {
	case "github/repo":
		if _, _, err := forge.RepoListEndpoint(p.From); err != nil {
			return err
		}
	case "github/release":
		if pattern, _ := forge.ParseFrom(p.From); pattern == "starred" {
			return &forge.ConfigError{Message: "from: starred is not supported by github/release"}
		}
		if _, _, err := forge.RepoListEndpoint(p.From); err != nil {
			return err
		}
	case "github/gist":
		if _, err := forge.GistListEndpoint(p.From); err != nil {
			return err
		}
	default:
		return &forge.ConfigError{Message: fmt.Sprintf("unsupported kind %q", p.Kind)}
	}
	if p.To == "" {
		return &forge.ConfigError{Message: "to is required"}
	}
	if p.Filter != "" {
		if _, err := filter.Parse(p.Filter); err != nil {
			return err
		}
	}
	return nil
}

func (p Policy) stringProp(name string) string {
	v, _ := p.Properties[name].(string)
	return v
}

func (p Policy) intProp(name string) int {
	switch v := p.Properties[name].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func (p Policy) boolProp(name string) bool {
	v, _ := p.Properties[name].(bool)
	return v
}

func (p Policy) credential() credentials.Credential {
	switch p.Credentials.Kind {
	case "Token":
		return credentials.Token{Value: p.Credentials.Token}
	case "UsernamePassword":
		return credentials.UsernamePassword{Username: p.Credentials.Username, Password: p.Credentials.Password}
	case "GithubApp":
		keyPEM, err := os.ReadFile(p.Credentials.PrivateKeyPath)
		if err != nil {
			return credentials.None{}
		}
		return &credentials.GithubApp{
			APIBaseURL:     p.stringProp("api_url"),
			AppID:          p.Credentials.AppID,
			InstallationID: p.Credentials.InstallationID,
			PrivateKeyPEM:  keyPEM,
		}
	default:
		return credentials.None{}
	}
}

func (p Policy) replicationSink() *replicate.Sink {
	sink := &replicate.Sink{}
	if bucket := p.stringProp("mirror_s3_bucket"); bucket != "" {
		sink.S3 = &replicate.S3Target{
			Bucket:   bucket,
			Prefix:   p.stringProp("mirror_s3_prefix"),
			Region:   p.stringProp("mirror_s3_region"),
			Endpoint: p.stringProp("mirror_s3_endpoint"),
		}
	}
	if bucket := p.stringProp("mirror_gcs_bucket"); bucket != "" {
		sink.GCS = &replicate.GCSTarget{Bucket: bucket, Prefix: p.stringProp("mirror_gcs_prefix")}
	}
	if !sink.Enabled() {
		return nil
	}
	return sink
}

// Bind resolves one validated Policy into a pipeline.Policy ready to run,
// wiring its source adapter, filter, and target adapter (git-mirror for
// github/repo and github/gist, artifact-download for github/release).
// downloads may be nil, in which case asset transfers render no progress bar.
func Bind(p Policy, cache *pagecache.Cache, runStarted time.Time, downloads *progress.Downloads) (pipeline.Policy, error) {
	cred := p.credential()
	client := forge.NewClient(p.stringProp("api_url"), cred, cache)
	meta := entity.Meta{PolicyName: p.Kind + ":" + p.From, Kind: p.Kind, From: p.From, RunStarted: runStarted}
	to := strengthen.ExpandPath(p.To) // supports "~/backups/..." in the to: field

	var expr filter.Expr
	if p.Filter != "" {
		e, err := filter.Parse(p.Filter)
		if err != nil {
			return pipeline.Policy{}, err
		}
		expr = e
	}

	perPage := p.intProp("per_page")
	query := p.stringProp("query")

	switch p.Kind {
	case "github/repo":
		src, err := forge.NewRepoSource(client, p.From, query, perPage, meta)
		if err != nil {
			return pipeline.Policy{}, err
		}
		target := &mirror.Target{Root: to, Refspecs: mirror.ParseRefspecs(p.stringProp("refspecs"))}
		return pipeline.Policy{
			Name: meta.PolicyName, Source: src, Filter: expr,
			Target:      repoMirrorTarget{target: target, sink: p.replicationSink()},
			Concurrency: perPageOrDefault(p.intProp("concurrency")),
		}, nil

	case "github/gist":
		src, err := forge.NewGistSource(client, p.From, query, perPage, meta)
		if err != nil {
			return pipeline.Policy{}, err
		}
		target := &mirror.Target{Root: to, Refspecs: mirror.ParseRefspecs(p.stringProp("refspecs"))}
		return pipeline.Policy{
			Name: meta.PolicyName, Source: src, Filter: expr,
			Target:      gistMirrorTarget{target: target, sink: p.replicationSink()},
			Concurrency: perPageOrDefault(p.intProp("concurrency")),
		}, nil

	case "github/release":
		src, err := forge.NewReleaseSource(client, p.From, query, perPage, meta)
		if err != nil {
			return pipeline.Policy{}, err
		}
		src.Root = to
		src.Decompress = p.boolProp("decompress")
		at := &artifactTarget{root: to, decompress: src.Decompress, credential: cred, sink: p.replicationSink(), downloads: downloads}
		return pipeline.Policy{
			Name: meta.PolicyName, Source: src, Filter: expr,
			Target:      at,
			Concurrency: perPageOrDefault(p.intProp("concurrency")),
		}, nil

	default:
		return pipeline.Policy{}, &forge.ConfigError{Message: fmt.Sprintf("unsupported kind %q", p.Kind)}
	}
}

func perPageOrDefault(n int) int {
	if n <= 0 {
		return pipeline.DefaultConcurrency
	}
	return n
}
