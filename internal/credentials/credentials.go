// Package credentials resolves the authentication-credential material a
// policy declares (§4.4, §6) into request-time attachment functions, never
// holding secrets in long-lived state beyond what a single policy's run
// requires.
package credentials

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/octohaul/forge-backup/modules/keyring"
)

// Credential attaches auth material to an outgoing request. Implementations
// must be safe for concurrent use: the HTTP client and its credentials are
// shared across a policy's concurrent target tasks (§9).
type Credential interface {
	Attach(ctx context.Context, req *http.Request) error
}

// None is the zero credential: unauthenticated requests, per §4.4 "Absent
// credentials -> unauthenticated".
type None struct{}

func (None) Attach(context.Context, *http.Request) error { return nil }

// Token attaches a bearer token, resolving a `keyring:<service>/<user>`
// indirection at Attach time so a rotated secret is always picked up fresh.
type Token struct {
	Value string
}

func (t Token) Attach(ctx context.Context, req *http.Request) error {
	v, err := resolve(ctx, t.Value)
	if err != nil {
		return fmt.Errorf("resolve token credential: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+v)
	return nil
}

// UsernamePassword attaches HTTP Basic auth.
type UsernamePassword struct {
	Username string
	Password string
}

func (u UsernamePassword) Attach(ctx context.Context, req *http.Request) error {
	pass, err := resolve(ctx, u.Password)
	if err != nil {
		return fmt.Errorf("resolve username/password credential: %w", err)
	}
	req.SetBasicAuth(u.Username, pass)
	return nil
}

// resolve expands a `keyring:<service>/<user>` reference via the OS
// keychain; any other string is returned verbatim as an inline secret.
func resolve(ctx context.Context, v string) (string, error) {
	const prefix = "keyring:"
	if !strings.HasPrefix(v, prefix) {
		return v, nil
	}
	ref := strings.TrimPrefix(v, prefix)
	if _, _, ok := strings.Cut(ref, "/"); !ok {
		return "", fmt.Errorf("malformed keyring reference %q, want keyring:<service>/<user>", v)
	}
	cred, err := keyring.Find(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("keyring lookup for %s: %w", ref, err)
	}
	return cred.Password, nil
}

// GithubApp is the supplemented fourth credential form (§4.4): it signs a
// short-lived RS256 app JWT and exchanges it for an installation access
// token, caching and refreshing the token for the policy's lifetime.
type GithubApp struct {
	APIBaseURL     string // defaults to https://api.github.com
	AppID          string
	InstallationID string
	PrivateKeyPEM  []byte

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	client    *http.Client
}

func (g *GithubApp) httpClient() *http.Client {
	if g.client != nil {
		return g.client
	}
	return http.DefaultClient
}

func (g *GithubApp) Attach(ctx context.Context, req *http.Request) error {
	tok, err := g.installationToken(ctx)
	if err != nil {
		return fmt.Errorf("github app installation token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return nil
}

// installationToken returns a cached token good for at least another
// minute, refreshing it via the app-JWT exchange otherwise. GitHub
// documents installation tokens as valid for ~1h.
func (g *GithubApp) installationToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.token != "" && time.Until(g.expiresAt) > time.Minute {
		return g.token, nil
	}
	appJWT, err := g.signAppJWT()
	if err != nil {
		return "", err
	}
	base := g.APIBaseURL
	if base == "" {
		base = "https://api.github.com"
	}
	url := fmt.Sprintf("%s/app/installations/%s/access_tokens", strings.TrimRight(base, "/"), g.InstallationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+appJWT)
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := g.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("request installation token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("installation token request returned status %d", resp.StatusCode)
	}
	var body struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode installation token response: %w", err)
	}
	g.token, g.expiresAt = body.Token, body.ExpiresAt
	logrus.Debugf("refreshed github app installation token for app %s, expires %s", g.AppID, g.expiresAt)
	return g.token, nil
}

func (g *GithubApp) signAppJWT() (string, error) {
	key, err := parseRSAPrivateKey(g.PrivateKeyPEM)
	if err != nil {
		return "", fmt.Errorf("parse app private key: %w", err)
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    g.AppID,
		IssuedAt:  jwt.NewNumericDate(now.Add(-30 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
}

func parseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in private key")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("unsupported private key encoding: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return rsaKey, nil
}
