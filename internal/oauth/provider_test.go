package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"oauth2jwt/internal/config"
	"oauth2jwt/internal/models"
)

func newFakeGoogle(t *testing.T, userInfoStatus int) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "provider-access",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer provider-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if userInfoStatus != http.StatusOK {
			w.WriteHeader(userInfoStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"sub":     "1234567890",
			"email":   "G.User@Example.com",
			"name":    "Google User",
			"picture": "https://example.com/p.png",
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(srv *httptest.Server) *GoogleProvider {
	return NewGoogleProvider(config.Google{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/login/oauth2/code/google",
		AuthURL:      srv.URL + "/auth",
		TokenURL:     srv.URL + "/token",
		UserInfoURL:  srv.URL + "/userinfo",
	})
}

func TestAuthCodeURL(t *testing.T) {
	srv := newFakeGoogle(t, http.StatusOK)
	p := newTestProvider(srv)

	u, err := url.Parse(p.AuthCodeURL("state-123"))
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	q := u.Query()
	if q.Get("state") != "state-123" {
		t.Fatalf("state not propagated: %q", q.Get("state"))
	}
	if q.Get("client_id") != "client-id" || q.Get("response_type") != "code" {
		t.Fatalf("unexpected query %v", q)
	}
	if q.Get("redirect_uri") != "http://localhost:8080/login/oauth2/code/google" {
		t.Fatalf("unexpected redirect_uri %q", q.Get("redirect_uri"))
	}
}

func TestExchangeReturnsIdentity(t *testing.T) {
	srv := newFakeGoogle(t, http.StatusOK)
	p := newTestProvider(srv)

	ident, err := p.Exchange(context.Background(), "good-code")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}

	want := models.ExternalIdentity{
		Provider: models.ProviderGoogle,
		Subject:  "1234567890",
		Email:    "g.user@example.com",
		Name:     "Google User",
		Picture:  "https://example.com/p.png",
	}
	if ident != want {
		t.Fatalf("got %+v, want %+v", ident, want)
	}
}

func TestExchangeRejectsBadCode(t *testing.T) {
	srv := newFakeGoogle(t, http.StatusOK)
	p := newTestProvider(srv)

	if _, err := p.Exchange(context.Background(), "bad-code"); !errors.Is(err, ErrExchange) {
		t.Fatalf("expected ErrExchange, got %v", err)
	}
}

func TestExchangeUserInfoFailure(t *testing.T) {
	srv := newFakeGoogle(t, http.StatusInternalServerError)
	p := newTestProvider(srv)

	if _, err := p.Exchange(context.Background(), "good-code"); !errors.Is(err, ErrUserInfo) {
		t.Fatalf("expected ErrUserInfo, got %v", err)
	}
}
