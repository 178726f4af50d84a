package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/faucetdb/backoffice/internal/config"
	"github.com/faucetdb/backoffice/internal/identity"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
)

const jwtIssuer = "backoffice"

// Principal is the authenticated caller behind a session token. It names an
// identity, not an administrator record; the role is resolved separately.
type Principal struct {
	IdentityID string
	Email      string
}

// Session is the result of a successful login.
type Session struct {
	Token     string    `json:"access_token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	Email     string    `json:"email"`
}

type AuthService struct {
	store     *config.Store
	idp       identity.Provider
	jwtSecret []byte
	ttl       time.Duration
	logger    *slog.Logger
}

func NewAuthService(store *config.Store, idp identity.Provider, jwtSecret string, ttl time.Duration, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		store:     store,
		idp:       idp,
		jwtSecret: []byte(jwtSecret),
		ttl:       ttl,
		logger:    logger,
	}
}

// Login authenticates an email/password pair and issues a session token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	ident, err := s.idp.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			s.logger.Info("login failed", "email", identity.NormalizeEmail(email))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	token, expires, err := s.IssueJWT(ctx, ident.ID, ident.Email, s.ttl)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateIdentityLastLogin(ctx, ident.ID); err != nil {
		s.logger.Warn("failed to record last login", "identity_id", ident.ID, "error", err)
	}

	return &Session{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expires,
		Email:     ident.Email,
	}, nil
}

// ValidateJWT verifies a JWT bearer token and returns the identity it names.
func (s *AuthService) ValidateJWT(ctx context.Context, tokenStr string) (*Principal, error) {
	claims := &jwtClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(jwtIssuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidCredentials
	}

	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidCredentials
	}

	return &Principal{
		IdentityID: claims.Subject,
		Email:      claims.Email,
	}, nil
}

// IssueJWT creates a new signed JWT token for the given identity.
func (s *AuthService) IssueJWT(ctx context.Context, identityID, email string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(ttl)
	claims := jwtClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identityID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			Issuer:    jwtIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

type jwtClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}
