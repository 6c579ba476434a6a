package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOAuth2ClientCredentialsSource_TokenPostsClientCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Fatalf("expected json content type, got %q", got)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		if body["client_id"] != "client_1" || body["client_secret"] != "secret_1" {
			t.Fatalf("unexpected credentials in request: %v", body)
		}
		if body["grant_type"] != "client_credentials" {
			t.Fatalf("expected client_credentials grant, got %q", body["grant_type"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok_abc",
			"expires_in":   7200,
		})
	}))
	defer server.Close()

	base := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	source := NewOAuth2ClientCredentialsSource(OAuth2ClientCredentialsConfig{
		TokenURL:     server.URL + "/oauth/token",
		ClientID:     "client_1",
		ClientSecret: "secret_1",
		HTTPClient:   server.Client(),
		Now:          func() time.Time { return base },
	})

	cred, err := source.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if cred.Value != "tok_abc" {
		t.Fatalf("expected access token, got %q", cred.Value)
	}
	if want := base.Add(7200 * time.Second); !cred.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, cred.ExpiresAt)
	}
}

func TestOAuth2ClientCredentialsSource_TokenDefaultsExpiry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok_no_ttl"})
	}))
	defer server.Close()

	base := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	source := NewOAuth2ClientCredentialsSource(OAuth2ClientCredentialsConfig{
		TokenURL:     server.URL,
		ClientID:     "client_1",
		ClientSecret: "secret_1",
		HTTPClient:   server.Client(),
		Now:          func() time.Time { return base },
	})

	cred, err := source.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if want := base.Add(DefaultTokenTTL); !cred.ExpiresAt.Equal(want) {
		t.Fatalf("expected default ttl expiry %v, got %v", want, cred.ExpiresAt)
	}
}

func TestOAuth2ClientCredentialsSource_TokenSurfacesErrorDescription(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":             "invalid_client",
			"error_description": "client authentication failed",
		})
	}))
	defer server.Close()

	source := NewOAuth2ClientCredentialsSource(OAuth2ClientCredentialsConfig{
		TokenURL:     server.URL,
		ClientID:     "client_1",
		ClientSecret: "bad_secret",
		HTTPClient:   server.Client(),
	})

	_, err := source.Token(context.Background())
	if err == nil {
		t.Fatalf("expected token failure")
	}
	if !strings.Contains(err.Error(), "client authentication failed") {
		t.Fatalf("expected error description to surface, got %v", err)
	}
}

func TestOAuth2ClientCredentialsSource_TokenRejectsMissingAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"expires_in": 3600})
	}))
	defer server.Close()

	source := NewOAuth2ClientCredentialsSource(OAuth2ClientCredentialsConfig{
		TokenURL:     server.URL,
		ClientID:     "client_1",
		ClientSecret: "secret_1",
		HTTPClient:   server.Client(),
	})

	_, err := source.Token(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing access token") {
		t.Fatalf("expected missing access token error, got %v", err)
	}
}

func TestOAuth2ClientCredentialsSource_TokenRequiresConfig(t *testing.T) {
	source := NewOAuth2ClientCredentialsSource(OAuth2ClientCredentialsConfig{})
	if _, err := source.Token(context.Background()); err == nil {
		t.Fatalf("expected missing token url to be rejected")
	}
}

func TestStaticTokenSource_Token(t *testing.T) {
	cred, err := StaticTokenSource{Value: " tok_static "}.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if cred.Value != "tok_static" {
		t.Fatalf("expected trimmed token, got %q", cred.Value)
	}
	if !cred.ExpiresAt.IsZero() {
		t.Fatalf("expected static tokens to carry no expiry")
	}
	if _, err := (StaticTokenSource{}).Token(context.Background()); err == nil {
		t.Fatalf("expected empty static token to be rejected")
	}
}
