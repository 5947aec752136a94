package player

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultTokenURL is the Spotify accounts service token endpoint.
const DefaultTokenURL = "https://accounts.spotify.com/api/token"

// expiryMargin is subtracted from the advertised token lifetime so a token is
// refreshed before it can expire mid-request.
const expiryMargin = 30 * time.Second

// TokenProvider hands out a valid access token for the Spotify Web API.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenConfig carries the OAuth client credentials and the long-lived refresh
// token obtained during device provisioning.
type TokenConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	// TokenURL overrides the accounts endpoint. Empty selects DefaultTokenURL.
	TokenURL string
}

// AccessTokenProvider exchanges a refresh token for short-lived access tokens
// and caches them until shortly before expiry. Safe for concurrent use.
type AccessTokenProvider struct {
	cfg    TokenConfig
	client *http.Client
	now    func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewAccessTokenProvider validates the credentials and returns a provider. No
// network traffic happens until the first Token call.
func NewAccessTokenProvider(cfg TokenConfig) (*AccessTokenProvider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("spotify client credentials are required")
	}
	if cfg.RefreshToken == "" {
		return nil, fmt.Errorf("spotify refresh token is required")
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	return &AccessTokenProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}, nil
}

// Token returns a currently valid access token, refreshing it when the cached
// one is absent or about to expire.
func (p *AccessTokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" && p.now().Before(p.expires) {
		return p.token, nil
	}
	token, lifetime, err := p.refresh(ctx)
	if err != nil {
		return "", err
	}
	p.token = token
	p.expires = p.now().Add(lifetime - expiryMargin)
	return token, nil
}

func (p *AccessTokenProvider) refresh(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {p.cfg.RefreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", 0, fmt.Errorf("reading token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token endpoint returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", 0, fmt.Errorf("decoding token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", 0, fmt.Errorf("token endpoint returned no access token")
	}
	lifetime := time.Duration(payload.ExpiresIn) * time.Second
	if lifetime <= expiryMargin {
		lifetime = expiryMargin + time.Second
	}
	return payload.AccessToken, lifetime, nil
}
