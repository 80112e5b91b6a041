package supabase

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// User is the subset of the auth user record the storefront reads.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// Session is an issued token pair. AccessToken is empty when sign-up requires
// email confirmation first.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	User         User   `json:"user"`
}

// SignUp registers a user with email and password.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*Session, error) {
	body := map[string]any{"email": email, "password": password}
	if len(metadata) > 0 {
		body["data"] = metadata
	}
	raw, err := c.do(ctx, http.MethodPost, authPath+"signup", body, "")
	if err != nil {
		return nil, err
	}

	// With email confirmation on, the answer is the bare user record.
	var decoded struct {
		Session
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := decodeInto("signup", raw, &decoded); err != nil {
		return nil, err
	}
	session := decoded.Session
	if session.User.ID == "" {
		session.User = User{ID: decoded.ID, Email: decoded.Email}
	}
	if session.User.ID == "" {
		return nil, errors.New("signup response carried no user")
	}
	return &session, nil
}

// SignIn exchanges email and password for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	return c.token(ctx, "password", map[string]any{"email": email, "password": password})
}

// Refresh exchanges a refresh token for a new session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	return c.token(ctx, "refresh_token", map[string]any{"refresh_token": refreshToken})
}

// SignOut revokes the session behind accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if strings.TrimSpace(accessToken) == "" {
		return errors.New("access token is required")
	}
	_, err := c.do(ctx, http.MethodPost, authPath+"logout", nil, accessToken)
	return err
}

func (c *Client) token(ctx context.Context, grant string, body map[string]any) (*Session, error) {
	raw, err := c.do(ctx, http.MethodPost, authPath+"token?grant_type="+grant, body, "")
	if err != nil {
		return nil, err
	}
	var session Session
	if err := decodeInto("token", raw, &session); err != nil {
		return nil, err
	}
	if session.AccessToken == "" {
		return nil, errors.New("token response carried no access token")
	}
	return &session, nil
}
