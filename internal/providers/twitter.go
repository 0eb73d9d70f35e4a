package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dghubble/oauth1"
	"github.com/dghubble/oauth1/twitter"
	"github.com/socialsignin/auth-service/internal/config"
	"github.com/socialsignin/auth-service/internal/models"
)

const twitterProfileURL = "https://api.twitter.com/1.1/account/verify_credentials.json"

// TwitterProvider implements Provider with the OAuth 1.0a three-legged flow.
// The handshake secret is "<requestToken> <requestSecret>".
type TwitterProvider struct {
	conf       oauth1.Config
	profileURL string
}

func NewTwitter(creds config.Credentials, ep Endpoints) *TwitterProvider {
	endpoint := twitter.AuthenticateEndpoint
	if ep.RequestTokenURL != "" {
		endpoint.RequestTokenURL = ep.RequestTokenURL
	}
	if ep.AuthURL != "" {
		endpoint.AuthorizeURL = ep.AuthURL
	}
	if ep.TokenURL != "" {
		endpoint.AccessTokenURL = ep.TokenURL
	}
	profileURL := twitterProfileURL
	if ep.ProfileURL != "" {
		profileURL = ep.ProfileURL
	}
	return &TwitterProvider{
		conf: oauth1.Config{
			ConsumerKey:    creds.ClientID,
			ConsumerSecret: creds.ClientSecret,
			Endpoint:       endpoint,
		},
		profileURL: profileURL,
	}
}

func (p *TwitterProvider) Name() string { return models.ProviderTwitter }

func (p *TwitterProvider) config(callbackURL string) *oauth1.Config {
	c := p.conf
	c.CallbackURL = callbackURL
	return &c
}

func (p *TwitterProvider) Begin(ctx context.Context, callbackURL string) (Handshake, error) {
	conf := p.config(callbackURL)
	requestToken, requestSecret, err := conf.RequestToken()
	if err != nil {
		return Handshake{}, fmt.Errorf("failed to obtain request token: %w", err)
	}
	u, err := conf.AuthorizationURL(requestToken)
	if err != nil {
		return Handshake{}, err
	}
	return Handshake{URL: u.String(), Secret: requestToken + " " + requestSecret}, nil
}

func (p *TwitterProvider) Complete(ctx context.Context, r *http.Request, callbackURL, secret string) (models.ProviderIdentity, error) {
	if r.URL.Query().Get("denied") != "" {
		return models.ProviderIdentity{}, ErrDenied
	}
	pendingToken, requestSecret, ok := strings.Cut(secret, " ")
	if !ok {
		return models.ProviderIdentity{}, ErrStateMismatch
	}
	requestToken, verifier, err := oauth1.ParseAuthorizationCallback(r)
	if err != nil {
		return models.ProviderIdentity{}, fmt.Errorf("invalid twitter callback: %w", err)
	}
	if requestToken != pendingToken {
		return models.ProviderIdentity{}, ErrStateMismatch
	}

	conf := p.config(callbackURL)
	accessToken, accessSecret, err := conf.AccessToken(requestToken, requestSecret, verifier)
	if err != nil {
		return models.ProviderIdentity{}, fmt.Errorf("failed to exchange token: %w", err)
	}
	client := conf.Client(ctx, oauth1.NewToken(accessToken, accessSecret))
	body, err := fetchProfile(ctx, client, p.profileURL)
	if err != nil {
		return models.ProviderIdentity{}, err
	}
	id, username, err := normalizeTwitter(body)
	if err != nil {
		return models.ProviderIdentity{}, err
	}
	return models.ProviderIdentity{Provider: models.ProviderTwitter, ProviderID: id, Username: username}, nil
}

func normalizeTwitter(body []byte) (string, string, error) {
	var p struct {
		IDStr      string `json:"id_str"`
		ScreenName string `json:"screen_name"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrProfile, err)
	}
	if p.IDStr == "" {
		return "", "", fmt.Errorf("%w: empty id_str", ErrProfile)
	}
	return p.IDStr, p.ScreenName, nil
}

var _ Provider = (*TwitterProvider)(nil)
