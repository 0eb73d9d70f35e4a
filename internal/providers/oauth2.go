package providers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/socialsignin/auth-service/internal/config"
	"github.com/socialsignin/auth-service/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	googleProfileURL = "https://www.googleapis.com/oauth2/v3/userinfo"
	githubProfileURL = "https://api.github.com/user"
)

// normalizeFunc extracts (providerId, username) from a raw profile document.
type normalizeFunc func(body []byte) (id, username string, err error)

// OAuth2Provider implements Provider for authorization-code providers.
type OAuth2Provider struct {
	name       string
	conf       oauth2.Config
	profileURL string
	normalize  normalizeFunc
}

// NewGoogle requests the "profile" scope and maps sub/given_name.
func NewGoogle(creds config.Credentials, ep Endpoints) *OAuth2Provider {
	return newOAuth2(models.ProviderGoogle, creds, endpoints.Google, googleProfileURL, []string{"profile"}, ep, normalizeGoogle)
}

// NewGitHub requests the "user:email" scope and maps id/login.
func NewGitHub(creds config.Credentials, ep Endpoints) *OAuth2Provider {
	return newOAuth2(models.ProviderGitHub, creds, endpoints.GitHub, githubProfileURL, []string{"user:email"}, ep, normalizeGitHub)
}

func newOAuth2(name string, creds config.Credentials, endpoint oauth2.Endpoint, profileURL string, scopes []string, ep Endpoints, n normalizeFunc) *OAuth2Provider {
	if ep.AuthURL != "" {
		endpoint.AuthURL = ep.AuthURL
	}
	if ep.TokenURL != "" {
		endpoint.TokenURL = ep.TokenURL
	}
	if ep.ProfileURL != "" {
		profileURL = ep.ProfileURL
	}
	return &OAuth2Provider{
		name: name,
		conf: oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		profileURL: profileURL,
		normalize:  n,
	}
}

func (p *OAuth2Provider) Name() string { return p.name }

// Scopes returns the requested scopes.
func (p *OAuth2Provider) Scopes() []string { return p.conf.Scopes }

func (p *OAuth2Provider) config(callbackURL string) *oauth2.Config {
	c := p.conf
	c.RedirectURL = callbackURL
	return &c
}

func (p *OAuth2Provider) Begin(ctx context.Context, callbackURL string) (Handshake, error) {
	state, err := randomState()
	if err != nil {
		return Handshake{}, err
	}
	return Handshake{URL: p.config(callbackURL).AuthCodeURL(state), Secret: state}, nil
}

func (p *OAuth2Provider) Complete(ctx context.Context, r *http.Request, callbackURL, secret string) (models.ProviderIdentity, error) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		if e == "access_denied" {
			return models.ProviderIdentity{}, ErrDenied
		}
		return models.ProviderIdentity{}, fmt.Errorf("%s returned error %q: %s", p.name, e, q.Get("error_description"))
	}
	state := q.Get("state")
	if secret == "" || subtle.ConstantTimeCompare([]byte(state), []byte(secret)) != 1 {
		return models.ProviderIdentity{}, ErrStateMismatch
	}
	code := q.Get("code")
	if code == "" {
		return models.ProviderIdentity{}, fmt.Errorf("%s callback without code", p.name)
	}

	conf := p.config(callbackURL)
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return models.ProviderIdentity{}, fmt.Errorf("failed to exchange token: %w", err)
	}
	body, err := fetchProfile(ctx, conf.Client(ctx, tok), p.profileURL)
	if err != nil {
		return models.ProviderIdentity{}, err
	}
	id, username, err := p.normalize(body)
	if err != nil {
		return models.ProviderIdentity{}, err
	}
	return models.ProviderIdentity{Provider: p.name, ProviderID: id, Username: username}, nil
}

func normalizeGoogle(body []byte) (string, string, error) {
	var p struct {
		Sub       string `json:"sub"`
		GivenName string `json:"given_name"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrProfile, err)
	}
	if p.Sub == "" {
		return "", "", fmt.Errorf("%w: empty sub", ErrProfile)
	}
	return p.Sub, p.GivenName, nil
}

func normalizeGitHub(body []byte) (string, string, error) {
	var p struct {
		ID    json.Number `json:"id"`
		Login string      `json:"login"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrProfile, err)
	}
	if p.ID == "" {
		return "", "", fmt.Errorf("%w: empty id", ErrProfile)
	}
	return p.ID.String(), p.Login, nil
}

var _ Provider = (*OAuth2Provider)(nil)
