package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"gopherai-assistant/internal/pkg/jwtutil"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrSessionFailed = errors.New("failed to initialize the session")
	ErrUnauthorized  = errors.New("invalid or expired session token")
)

// SessionService establishes anonymous or custom-token sessions and issues the
// bearer token that scopes every store call to one user id.
type SessionService struct {
	jwtSecret     string
	jwtExpiration time.Duration
	newUserID     func() string
}

type BeginInput struct {
	// CustomToken is a server-minted token naming an existing user id. Empty
	// means a fresh anonymous session.
	CustomToken string
}

type SessionResult struct {
	Token     string `json:"token"`
	UserID    string `json:"user_id"`
	Anonymous bool   `json:"anonymous"`
}

func NewSessionService(jwtSecret string, jwtExpiration time.Duration) *SessionService {
	return &SessionService{
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
		newUserID:     uuid.NewString,
	}
}

func (s *SessionService) Begin(_ context.Context, input BeginInput) (*SessionResult, error) {
	userID := ""
	anonymous := true

	if token := strings.TrimSpace(input.CustomToken); token != "" {
		claims, err := jwtutil.ParseToken(s.jwtSecret, token, jwtutil.KindCustom)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSessionFailed, err)
		}
		userID = claims.UserID
		anonymous = false
	} else {
		userID = s.newUserID()
	}

	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, jwtutil.KindSession, userID, anonymous)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionFailed, err)
	}
	return &SessionResult{Token: token, UserID: userID, Anonymous: anonymous}, nil
}

// MintCustomToken issues a custom token that a later Begin can exchange for a
// session bound to userID.
func (s *SessionService) MintCustomToken(userID string, ttl time.Duration) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", ErrInvalidInput
	}
	return jwtutil.GenerateToken(s.jwtSecret, ttl, jwtutil.KindCustom, userID, false)
}

// Resolve validates a session token and returns its user id.
func (s *SessionService) Resolve(token string) (string, error) {
	claims, err := jwtutil.ParseToken(s.jwtSecret, strings.TrimSpace(token), jwtutil.KindSession)
	if err != nil {
		return "", ErrUnauthorized
	}
	return claims.UserID, nil
}
