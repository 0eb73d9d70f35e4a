package providers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/socialsignin/auth-service/internal/config"
	"github.com/socialsignin/auth-service/internal/models"
)

var (
	// ErrDenied is returned when the user refuses consent at the provider.
	ErrDenied = errors.New("authorization denied")
	// ErrStateMismatch is returned when the callback does not match the pending handshake.
	ErrStateMismatch = errors.New("handshake state mismatch")
	// ErrProfile is returned when the provider profile lacks an id.
	ErrProfile = errors.New("invalid provider profile")
)

// maxProfileBytes bounds profile responses.
const maxProfileBytes = 1 << 20

// Handshake is the first leg of a login: where to send the browser and the
// secret to keep server-side until the callback arrives.
type Handshake struct {
	URL    string
	Secret string
}

// Provider wraps one external OAuth flow behind a uniform contract.
type Provider interface {
	Name() string
	// Begin starts the handshake; callbackURL is where the provider sends the browser back.
	Begin(ctx context.Context, callbackURL string) (Handshake, error)
	// Complete finishes the handshake from the callback request and returns the
	// normalized identity. secret is the value returned by Begin.
	Complete(ctx context.Context, r *http.Request, callbackURL, secret string) (models.ProviderIdentity, error)
}

// Endpoints overrides provider URLs. Empty fields keep the provider defaults.
type Endpoints struct {
	AuthURL         string
	TokenURL        string
	ProfileURL      string
	RequestTokenURL string
}

// Registry maps provider names to providers.
type Registry map[string]Provider

// Get returns the provider registered under name.
func (r Registry) Get(name string) (Provider, bool) {
	p, ok := r[name]
	return p, ok
}

// Names lists registered providers.
func (r Registry) Names() []string {
	out := make([]string, 0, len(r))
	for n := range r {
		out = append(out, n)
	}
	return out
}

// FromConfig registers every provider whose credentials are configured.
func FromConfig(cfg config.ProvidersConfig) Registry {
	reg := Registry{}
	if cfg.Google.Configured() {
		reg[models.ProviderGoogle] = NewGoogle(cfg.Google, Endpoints{})
	}
	if cfg.GitHub.Configured() {
		reg[models.ProviderGitHub] = NewGitHub(cfg.GitHub, Endpoints{})
	}
	if cfg.Twitter.Configured() {
		reg[models.ProviderTwitter] = NewTwitter(cfg.Twitter, Endpoints{})
	}
	return reg
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// fetchProfile GETs url with client and returns the body of a 200 response.
func fetchProfile(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read profile response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile fetch failed with status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
