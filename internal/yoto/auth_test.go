package yoto

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"yotoup/internal/shared"
)

// memStore is an in-memory TokenStore.
type memStore struct {
	token   *oauth2.Token
	saveErr error
	saves   int
}

func (s *memStore) SaveToken(token *oauth2.Token) error {
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.token = token
	return nil
}

func (s *memStore) LoadToken() (*oauth2.Token, error) {
	return s.token, nil
}

func TestAuth(t *testing.T) {
	t.Run("loads persisted token on construction", func(t *testing.T) {
		store := &memStore{token: &oauth2.Token{AccessToken: "stored"}}
		auth := NewAuth(shared.YotoConfig{ClientID: "cid"}, store)
		if !auth.Authenticated() {
			t.Error("expected stored token to authenticate")
		}
	})

	t.Run("unauthenticated without a token", func(t *testing.T) {
		auth := NewAuth(shared.YotoConfig{ClientID: "cid"}, nil)
		if auth.Authenticated() {
			t.Error("expected no authentication")
		}
		if _, err := auth.Token(context.Background()); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("valid token returned without refresh", func(t *testing.T) {
		auth := NewAuth(shared.YotoConfig{ClientID: "cid"}, nil)
		auth.SetToken(&oauth2.Token{
			AccessToken: "live",
			Expiry:      time.Now().Add(time.Hour),
		})

		token, err := auth.Token(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token != "live" {
			t.Errorf("expected live token, got %s", token)
		}
	})

	t.Run("expired token triggers refresh and persists", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/oauth/token" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "fresh",
				"refresh_token": "rotated",
				"token_type":    "Bearer",
				"expires_in":    3600,
			})
		}))
		defer server.Close()

		store := &memStore{}
		auth := NewAuth(shared.YotoConfig{ClientID: "cid", AuthBaseURL: server.URL}, store)
		auth.SetToken(&oauth2.Token{
			AccessToken:  "stale",
			RefreshToken: "refresh-1",
			Expiry:       time.Now().Add(-time.Hour),
		})

		token, err := auth.Token(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token != "fresh" {
			t.Errorf("expected fresh token, got %s", token)
		}
		if store.token == nil || store.token.AccessToken != "fresh" {
			t.Error("refreshed token was not persisted")
		}
	})

	t.Run("refresh without refresh token fails", func(t *testing.T) {
		auth := NewAuth(shared.YotoConfig{ClientID: "cid"}, nil)
		auth.SetToken(&oauth2.Token{
			AccessToken: "stale",
			Expiry:      time.Now().Add(-time.Hour),
		})

		if _, err := auth.Token(context.Background()); !errors.Is(err, shared.ErrNoRefreshToken) {
			t.Errorf("expected ErrNoRefreshToken, got %v", err)
		}
	})

	t.Run("forced refresh exchanges even a valid token", func(t *testing.T) {
		var exchanges int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			exchanges++
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "forced",
				"token_type":   "Bearer",
				"expires_in":   3600,
			})
		}))
		defer server.Close()

		auth := NewAuth(shared.YotoConfig{ClientID: "cid", AuthBaseURL: server.URL}, nil)
		auth.SetToken(&oauth2.Token{
			AccessToken:  "still-valid",
			RefreshToken: "refresh-1",
			Expiry:       time.Now().Add(time.Hour),
		})

		token, err := auth.Refresh(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token != "forced" || exchanges != 1 {
			t.Errorf("expected one forced exchange, got token=%s exchanges=%d", token, exchanges)
		}
	})

	t.Run("store failure leaves token usable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "fresh",
				"token_type":   "Bearer",
				"expires_in":   3600,
			})
		}))
		defer server.Close()

		store := &memStore{saveErr: errors.New("disk full")}
		auth := NewAuth(shared.YotoConfig{ClientID: "cid", AuthBaseURL: server.URL}, store)
		auth.SetToken(&oauth2.Token{
			AccessToken:  "stale",
			RefreshToken: "refresh-1",
			Expiry:       time.Now().Add(-time.Hour),
		})

		token, err := auth.Token(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token != "fresh" {
			t.Errorf("expected fresh token despite store failure, got %s", token)
		}
	})
}
