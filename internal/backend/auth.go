package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is an authenticated user session against the hosted backend.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
}

// Expired reports whether the access token has passed its expiry.
func (s *Session) Expired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// SignIn performs a password-grant token exchange and installs the session
// on the client.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	return c.tokenRequest(ctx, "/auth/v1/token?grant_type=password", map[string]string{
		"email":    email,
		"password": password,
	})
}

// SignUp registers a new account. The backend responds with a session when
// email confirmation is disabled for the project.
func (c *Client) SignUp(ctx context.Context, email, password string) (*Session, error) {
	return c.tokenRequest(ctx, "/auth/v1/signup", map[string]string{
		"email":    email,
		"password": password,
	})
}

// Refresh exchanges the refresh token for a fresh session.
func (c *Client) Refresh(ctx context.Context) (*Session, error) {
	s := c.CurrentSession()
	if s == nil {
		return nil, ErrNotAuthenticated
	}
	return c.tokenRequest(ctx, "/auth/v1/token?grant_type=refresh_token", map[string]string{
		"refresh_token": s.RefreshToken,
	})
}

// SignOut revokes the session remotely and clears it locally. The local
// session is cleared even when revocation fails.
func (c *Client) SignOut(ctx context.Context) error {
	s := c.CurrentSession()
	if s == nil {
		return nil
	}
	defer c.SetSession(nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/v1/logout", nil)
	if err != nil {
		return err
	}
	_, err = c.do(req)
	return err
}

// SetSession installs (or clears, with nil) the active session.
func (c *Client) SetSession(s *Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

// CurrentSession returns the active session, or nil when signed out.
func (c *Client) CurrentSession() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// RequireSession returns the active session or ErrNotAuthenticated. Domain
// services call this before touching the network.
func (c *Client) RequireSession() (*Session, error) {
	s := c.CurrentSession()
	if s == nil {
		return nil, ErrNotAuthenticated
	}
	return s, nil
}

func (c *Client) tokenRequest(ctx context.Context, path string, form map[string]string) (*Session, error) {
	payload, err := json.Marshal(form)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("auth: decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("auth: response carried no access token")
	}

	session := &Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
		UserID:       tok.User.ID,
		Email:        tok.User.Email,
	}

	// The user id and expiry also live in the token claims; prefer those when
	// the response body omits them. The token is not verified here: signature
	// verification is the server's concern, the client only reads sub and exp.
	if sub, exp, err := unverifiedClaims(tok.AccessToken); err == nil {
		if session.UserID == "" {
			session.UserID = sub
		}
		if !exp.IsZero() {
			session.ExpiresAt = exp
		}
	}

	c.SetSession(session)
	return session, nil
}

func unverifiedClaims(accessToken string) (sub string, exp time.Time, err error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err = parser.ParseUnverified(accessToken, claims); err != nil {
		return "", time.Time{}, err
	}
	sub, _ = claims.GetSubject()
	if e, cerr := claims.GetExpirationTime(); cerr == nil && e != nil {
		exp = e.Time
	}
	return sub, exp, nil
}
