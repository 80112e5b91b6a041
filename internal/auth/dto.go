package auth

// SignUpRequest registers a shopper account.
type SignUpRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	FullName string `json:"full_name,omitempty"`
}

// SignInRequest captures the credentials sent to the login endpoint.
type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest exchanges a refresh token for a new session.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// UserDTO is the signed-in shopper.
type UserDTO struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
}

// SessionResponse is returned by sign up, sign in and refresh. Tokens are empty
// when the account still has to confirm its email.
type SessionResponse struct {
	AccessToken          string  `json:"access_token,omitempty"`
	RefreshToken         string  `json:"refresh_token,omitempty"`
	ExpiresIn            int     `json:"expires_in,omitempty"`
	User                 UserDTO `json:"user"`
	ConfirmationRequired bool    `json:"confirmation_required"`
}
