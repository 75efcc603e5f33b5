package nuvemshop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/adega-digital/vinicola-backend/pkg/config"
	pkgerrors "github.com/adega-digital/vinicola-backend/pkg/errors"
)

// expirySkew refreshes slightly early so an in-flight request never carries a
// token that dies mid-call.
const expirySkew = time.Minute

const credentialName = "nuvemshop-tokens"

// TokenSource yields a valid storefront access token.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// StaticTokenSource returns a fixed token, useful for tests and one-off jobs.
type StaticTokenSource string

func (s StaticTokenSource) AccessToken(context.Context) (string, error) {
	if s == "" {
		return "", errors.New("static token is empty")
	}
	return string(s), nil
}

// Tokens is the persisted credential state.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (t Tokens) expired(now time.Time) bool {
	return !now.Add(expirySkew).Before(t.ExpiresAt)
}

// CredentialStore persists serialized tokens. The redis client satisfies it.
type CredentialStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CredentialKey(name string) string
}

// TokenManager keeps the OAuth access token fresh, refreshing via the
// platform token endpoint when the stored one has expired.
type TokenManager struct {
	store      CredentialStore
	cfg        config.NuvemshopConfig
	httpClient *http.Client
	now        func() time.Time

	mu sync.Mutex
}

// NewTokenManager wires the credential store and OAuth configuration.
func NewTokenManager(store CredentialStore, cfg config.NuvemshopConfig) (*TokenManager, error) {
	if store == nil {
		return nil, errors.New("credential store is required")
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return nil, errors.New("token url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TokenManager{
		store:      store,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}, nil
}

// AccessToken returns the stored token, refreshing it first when expired.
func (m *TokenManager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tokens, err := m.load(ctx)
	if err != nil {
		return "", err
	}
	if !tokens.expired(m.now()) {
		return tokens.AccessToken, nil
	}

	refreshed, err := m.refresh(ctx, tokens.RefreshToken)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

func (m *TokenManager) load(ctx context.Context) (Tokens, error) {
	raw, err := m.store.Get(ctx, m.store.CredentialKey(credentialName))
	if err != nil {
		return Tokens{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load storefront tokens")
	}
	var tokens Tokens
	if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
		return Tokens{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode stored tokens")
	}
	return tokens, nil
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (m *TokenManager) refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	form := url.Values{}
	form.Set("client_id", m.cfg.ClientID)
	form.Set("client_secret", m.cfg.ClientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Tokens{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build token refresh request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", m.cfg.UserAgent)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return Tokens{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refresh storefront token")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return Tokens{}, pkgerrors.New(pkgerrors.CodeUnauthorized, fmt.Sprintf("token refresh rejected: %d", resp.StatusCode))
	}

	var parsed refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Tokens{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode token refresh response")
	}
	if parsed.AccessToken == "" {
		return Tokens{}, pkgerrors.New(pkgerrors.CodeDependency, "token refresh returned empty access token")
	}

	tokens := Tokens{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		ExpiresAt:    m.now().Add(time.Duration(parsed.ExpiresIn) * time.Second),
	}
	if err := m.save(ctx, tokens); err != nil {
		return Tokens{}, err
	}
	return tokens, nil
}

func (m *TokenManager) save(ctx context.Context, tokens Tokens) error {
	encoded, err := json.Marshal(tokens)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode tokens")
	}
	if err := m.store.Set(ctx, m.store.CredentialKey(credentialName), string(encoded), 0); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist storefront tokens")
	}
	return nil
}

// Seed stores an initial token set, typically captured during app install.
func (m *TokenManager) Seed(ctx context.Context, tokens Tokens) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save(ctx, tokens)
}
