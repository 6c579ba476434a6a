package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-outbound/core"
)

const (
	defaultTokenRequestTimeout = 30 * time.Second
	maxTokenResponseBodyBytes  = 1 << 20

	grantTypeClientCredentials = "client_credentials"

	// DefaultTokenTTL applies when the identity response omits expires_in.
	DefaultTokenTTL = 3600 * time.Second
)

type OAuth2ClientCredentialsConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	HTTPClient   core.HTTPDoer
	Now          func() time.Time
}

// OAuth2ClientCredentialsSource fetches a bearer credential via the OAuth2
// client-credentials grant. It performs exactly one fetch per call; caching
// belongs to the CredentialCache wrapping it.
type OAuth2ClientCredentialsSource struct {
	config     OAuth2ClientCredentialsConfig
	httpClient core.HTTPDoer
}

func NewOAuth2ClientCredentialsSource(cfg OAuth2ClientCredentialsConfig) *OAuth2ClientCredentialsSource {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTokenRequestTimeout
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &OAuth2ClientCredentialsSource{
		config: OAuth2ClientCredentialsConfig{
			TokenURL:     strings.TrimSpace(cfg.TokenURL),
			ClientID:     strings.TrimSpace(cfg.ClientID),
			ClientSecret: strings.TrimSpace(cfg.ClientSecret),
			Timeout:      timeout,
			Now:          now,
		},
		httpClient: httpClient,
	}
}

type tokenRequestBody struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
}

type tokenResponseBody struct {
	AccessToken      string          `json:"access_token"`
	ExpiresIn        json.Number     `json:"expires_in"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
	Message          json.RawMessage `json:"message"`
}

func (s *OAuth2ClientCredentialsSource) Token(ctx context.Context) (core.Credential, error) {
	if s == nil || s.httpClient == nil {
		return core.Credential{}, fmt.Errorf("auth: oauth2 token source is not configured")
	}
	if s.config.TokenURL == "" {
		return core.Credential{}, fmt.Errorf("auth: oauth2 token url is required")
	}
	if s.config.ClientID == "" || s.config.ClientSecret == "" {
		return core.Credential{}, fmt.Errorf("auth: oauth2 client id and client secret are required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	requestCtx := ctx
	cancel := func() {}
	if s.config.Timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, s.config.Timeout)
	}
	defer cancel()

	payload, err := json.Marshal(tokenRequestBody{
		ClientID:     s.config.ClientID,
		ClientSecret: s.config.ClientSecret,
		GrantType:    grantTypeClientCredentials,
	})
	if err != nil {
		return core.Credential{}, fmt.Errorf("auth: encode token request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodPost, s.config.TokenURL, bytes.NewReader(payload))
	if err != nil {
		return core.Credential{}, fmt.Errorf("auth: build token request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	response, err := s.httpClient.Do(httpReq)
	if err != nil {
		return core.Credential{}, fmt.Errorf("auth: token request failed: %w", err)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxTokenResponseBodyBytes+1))
	if readErr != nil {
		return core.Credential{}, fmt.Errorf("auth: read token response: %w", readErr)
	}
	if int64(len(body)) > maxTokenResponseBodyBytes {
		return core.Credential{}, fmt.Errorf("auth: token response exceeds %d bytes", maxTokenResponseBodyBytes)
	}

	parsed := tokenResponseBody{}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &parsed); err != nil {
			return core.Credential{}, fmt.Errorf("auth: decode token response (status %d): %w", response.StatusCode, err)
		}
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices || strings.TrimSpace(parsed.Error) != "" {
		reason := strings.TrimSpace(parsed.ErrorDescription)
		if reason == "" {
			reason = strings.TrimSpace(parsed.Error)
		}
		if reason == "" {
			reason = fmt.Sprintf("token endpoint returned status %d", response.StatusCode)
		}
		return core.Credential{}, fmt.Errorf("auth: %s", reason)
	}

	accessToken := strings.TrimSpace(parsed.AccessToken)
	if accessToken == "" {
		return core.Credential{}, fmt.Errorf("auth: token response missing access token")
	}

	ttl := DefaultTokenTTL
	if seconds, err := parsed.ExpiresIn.Int64(); err == nil && seconds > 0 {
		ttl = time.Duration(seconds) * time.Second
	}

	return core.Credential{
		Value:     accessToken,
		ExpiresAt: s.config.Now().UTC().Add(ttl),
	}, nil
}

// StaticTokenSource returns a fixed credential with no expiry; useful for
// public endpoints and tests.
type StaticTokenSource struct {
	Value string
}

func (s StaticTokenSource) Token(context.Context) (core.Credential, error) {
	value := strings.TrimSpace(s.Value)
	if value == "" {
		return core.Credential{}, fmt.Errorf("auth: static token is empty")
	}
	return core.Credential{Value: value}, nil
}

var (
	_ core.TokenSource = (*OAuth2ClientCredentialsSource)(nil)
	_ core.TokenSource = StaticTokenSource{}
)
