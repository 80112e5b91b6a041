package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
	"github.com/identitywear/storefront-backend/pkg/logger"
	"github.com/identitywear/storefront-backend/pkg/supabase"
)

const (
	invalidCredentialsMessage = "invalid credentials"
	fnWelcomeEmail            = "send-welcome-email"
)

// Service fronts the hosted auth backend.
type Service interface {
	SignUp(ctx context.Context, req SignUpRequest) (*SessionResponse, error)
	SignIn(ctx context.Context, req SignInRequest) (*SessionResponse, error)
	Refresh(ctx context.Context, req RefreshRequest) (*SessionResponse, error)
	SignOut(ctx context.Context, accessToken, sessionID string, expiresAt time.Time) error
}

type authBackend interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*supabase.Session, error)
	SignIn(ctx context.Context, email, password string) (*supabase.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*supabase.Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

type functionInvoker interface {
	Invoke(ctx context.Context, name string, body any, out any) error
}

type sessionRevoker interface {
	Revoke(ctx context.Context, sessionID string, expiresAt time.Time) error
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	Backend   authBackend
	Functions functionInvoker
	Revoker   sessionRevoker
	Logger    *logger.Logger
}

type service struct {
	backend   authBackend
	functions functionInvoker
	revoker   sessionRevoker
	logg      *logger.Logger
}

// NewService constructs the auth service.
func NewService(params ServiceParams) (Service, error) {
	if params.Backend == nil {
		return nil, fmt.Errorf("auth backend is required")
	}
	if params.Functions == nil {
		return nil, fmt.Errorf("functions client is required")
	}
	if params.Revoker == nil {
		return nil, fmt.Errorf("session revoker is required")
	}
	return &service{
		backend:   params.Backend,
		functions: params.Functions,
		revoker:   params.Revoker,
		logg:      params.Logger,
	}, nil
}

// SignUp registers the account and sends the welcome email. A failed email
// never fails the sign-up.
func (s *service) SignUp(ctx context.Context, req SignUpRequest) (*SessionResponse, error) {
	email := normalizeEmail(req.Email)
	name := strings.TrimSpace(req.FullName)

	var metadata map[string]any
	if name != "" {
		metadata = map[string]any{"full_name": name}
	}
	session, err := s.backend.SignUp(ctx, email, req.Password, metadata)
	if err != nil {
		return nil, mapBackendError(err, pkgerrors.CodeValidation, "sign up failed")
	}

	s.sendWelcome(ctx, session.User.Email, name)
	return toSessionResponse(session), nil
}

func (s *service) SignIn(ctx context.Context, req SignInRequest) (*SessionResponse, error) {
	session, err := s.backend.SignIn(ctx, normalizeEmail(req.Email), req.Password)
	if err != nil {
		return nil, mapBackendError(err, pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	return toSessionResponse(session), nil
}

func (s *service) Refresh(ctx context.Context, req RefreshRequest) (*SessionResponse, error) {
	session, err := s.backend.Refresh(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		return nil, mapBackendError(err, pkgerrors.CodeUnauthorized, "invalid refresh token")
	}
	return toSessionResponse(session), nil
}

// SignOut ends the session upstream and parks the session id locally so the
// still-unexpired access token stops working here at once.
func (s *service) SignOut(ctx context.Context, accessToken, sessionID string, expiresAt time.Time) error {
	if err := s.backend.SignOut(ctx, accessToken); err != nil {
		var status *supabase.StatusError
		if !errors.As(err, &status) || !status.ClientError() {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sign out failed")
		}
		// an already revoked upstream session still gets revoked here
		s.logWarn(ctx, "auth.sign_out_upstream_rejected", err)
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil
	}
	if err := s.revoker.Revoke(ctx, sessionID, expiresAt); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}

func (s *service) sendWelcome(ctx context.Context, email, name string) {
	if email == "" {
		return
	}
	body := map[string]string{"email": email, "name": name}
	if err := s.functions.Invoke(ctx, fnWelcomeEmail, body, nil); err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "email", email), "auth.welcome_email_failed", err)
		}
	}
}

func (s *service) logWarn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), msg)
}

func mapBackendError(err error, clientCode pkgerrors.Code, msg string) error {
	var status *supabase.StatusError
	if errors.As(err, &status) && status.ClientError() {
		e := pkgerrors.Wrap(clientCode, err, msg)
		if clientCode == pkgerrors.CodeValidation && status.Body != "" {
			return e.WithDetails(map[string]any{"reason": status.Body})
		}
		return e
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "auth backend unavailable")
}

func toSessionResponse(session *supabase.Session) *SessionResponse {
	resp := &SessionResponse{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		ExpiresIn:    session.ExpiresIn,
		User: UserDTO{
			ID:    session.User.ID,
			Email: session.User.Email,
		},
		ConfirmationRequired: session.AccessToken == "",
	}
	if name, ok := session.User.UserMetadata["full_name"].(string); ok {
		resp.User.FullName = name
	}
	return resp
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
