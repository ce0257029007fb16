package backend

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeJWT builds an unsigned-but-parseable token with the given claims.
func fakeJWT(t *testing.T, claims map[string]any) string {
	t.Helper()
	enc := func(v any) string {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		return base64.RawURLEncoding.EncodeToString(data)
	}
	header := map[string]string{"alg": "HS256", "typ": "JWT"}
	return enc(header) + "." + enc(claims) + "." + base64.RawURLEncoding.EncodeToString([]byte("sig"))
}

func TestSignInInstallsSession(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" {
			t.Errorf("path = %q", r.URL.Path)
		}
		token := fakeJWT(t, map[string]any{"sub": "user-1", "exp": exp})
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  token,
			"refresh_token": "refresh-1",
			"expires_in":    3600,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "anon", zap.NewNop())
	s, err := c.SignIn(context.Background(), "ana@campus.edu", "secret")
	if err != nil {
		t.Fatal(err)
	}
	if s.UserID != "user-1" {
		t.Errorf("user id = %q, want user-1 (from token claims)", s.UserID)
	}
	if got := c.CurrentSession(); got == nil || got.RefreshToken != "refresh-1" {
		t.Errorf("session not installed: %+v", got)
	}
	if s.Expired() {
		t.Error("fresh session reported expired")
	}
}

func TestSignInBadCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"invalid_grant","message":"Invalid login credentials"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "anon", zap.NewNop())
	_, err := c.SignIn(context.Background(), "ana@campus.edu", "wrong")
	if err == nil {
		t.Fatal("expected error")
	}
	if c.CurrentSession() != nil {
		t.Error("session installed despite failure")
	}
}

func TestRequireSessionGuard(t *testing.T) {
	c := NewClient("http://unused", "anon", zap.NewNop())
	_, err := c.RequireSession()
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("err = %v, want ErrNotAuthenticated", err)
	}

	c.SetSession(&Session{AccessToken: "tok", UserID: "u1"})
	s, err := c.RequireSession()
	if err != nil || s.UserID != "u1" {
		t.Errorf("got %+v, %v", s, err)
	}
}

func TestRefreshWithoutSession(t *testing.T) {
	c := NewClient("http://unused", "anon", zap.NewNop())
	if _, err := c.Refresh(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("err = %v, want ErrNotAuthenticated", err)
	}
}

func TestSignOutClearsSessionEvenOnRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "anon", zap.NewNop())
	c.SetSession(&Session{AccessToken: "tok"})
	_ = c.SignOut(context.Background())
	if c.CurrentSession() != nil {
		t.Error("session not cleared after sign-out")
	}
}
