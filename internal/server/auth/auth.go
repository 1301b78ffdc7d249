// Package auth implements the server's bearer-token model: issuing short
// lived email OTPs, exchanging a verified OTP for an access/refresh token
// pair, and validating bearer tokens on incoming requests. Email delivery
// of the OTP itself is treated as an external collaborator and is out of
// scope here; validating a presented token is what the sync endpoints need.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/opensyncbox/syncbox/internal/utils"
)

var (
	ErrInvalidEmail = utils.ErrInvalidEmail
	ErrInvalidOTP   = errors.New("invalid otp")
)

// Service issues and validates bearer tokens for one server instance.
type Service struct {
	config *Config
	codes  *expirable.LRU[string, string]
}

func New(config *Config) *Service {
	return &Service{
		config: config,
		codes:  expirable.NewLRU[string, string](0, nil, config.OTPExpiry),
	}
}

// IsEnabled reports whether bearer-token auth is enforced. When disabled,
// middlewares.JWTAuth trusts a caller-supplied email query parameter
// instead, for local development.
func (s *Service) IsEnabled() bool {
	return s.config.Enabled
}

// RequestToken generates and stores a one-time code for email, logging it
// in place of sending it — see the package doc for why.
func (s *Service) RequestToken(email string) error {
	if err := utils.ValidateEmail(email); err != nil {
		return err
	}

	otp, err := randOTP(s.config.OTPLength)
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}

	s.codes.Add(email, otp)
	slog.Warn("auth: email delivery not configured, logging otp instead", "email", email, "otp", otp)
	return nil
}

// ValidateToken verifies a previously requested OTP and, on success, issues
// a fresh access/refresh token pair for email.
func (s *Service) ValidateToken(email, otp string) (accessToken, refreshToken string, err error) {
	if err := s.verifyOTP(email, otp); err != nil {
		return "", "", err
	}
	return s.issueTokenPair(email)
}

// RefreshTokens exchanges a valid refresh token for a new pair.
func (s *Service) RefreshTokens(oldRefreshToken string) (accessToken, refreshToken string, err error) {
	claims, err := s.ValidateRefreshToken(oldRefreshToken)
	if err != nil {
		return "", "", err
	}
	return s.issueTokenPair(claims.Subject)
}

func (s *Service) issueTokenPair(email string) (accessToken, refreshToken string, err error) {
	accessToken, err = newToken(email, s.config.TokenIssuer, s.config.AccessTokenSecret, s.config.AccessTokenExpiry, AccessToken)
	if err != nil {
		return "", "", fmt.Errorf("issue access token: %w", err)
	}
	refreshToken, err = newToken(email, s.config.TokenIssuer, s.config.RefreshTokenSecret, s.config.RefreshTokenExpiry, RefreshToken)
	if err != nil {
		return "", "", fmt.Errorf("issue refresh token: %w", err)
	}
	return accessToken, refreshToken, nil
}

// ValidateAccessToken parses and type-checks an access token.
func (s *Service) ValidateAccessToken(accessToken string) (*Claims, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("empty access token")
	}
	claims, err := ParseClaims(accessToken, s.config.AccessTokenSecret)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}
	if claims.Type != AccessToken {
		return nil, fmt.Errorf("invalid access token: wrong token type %q", claims.Type)
	}
	return claims, nil
}

// ValidateRefreshToken parses and type-checks a refresh token.
func (s *Service) ValidateRefreshToken(refreshToken string) (*Claims, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("empty refresh token")
	}
	claims, err := ParseClaims(refreshToken, s.config.RefreshTokenSecret)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}
	if claims.Type != RefreshToken {
		return nil, fmt.Errorf("invalid refresh token: wrong token type %q", claims.Type)
	}
	return claims, nil
}

func (s *Service) verifyOTP(email, otp string) error {
	if err := utils.ValidateEmail(email); err != nil {
		return err
	}
	if len(otp) != s.config.OTPLength {
		return ErrInvalidOTP
	}
	stored, ok := s.codes.Get(email)
	if !ok || stored != otp {
		return ErrInvalidOTP
	}
	s.codes.Remove(email)
	return nil
}

func newToken(subject, issuer, secret string, expiry time.Duration, tokenType TokenType) (string, error) {
	var expiresAt *jwt.NumericDate
	if expiry > 0 {
		expiresAt = jwt.NewNumericDate(time.Now().Add(expiry))
	}

	claims := Claims{
		Type: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: expiresAt,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func randOTP(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid otp length %d", length)
	}
	const digits = "0123456789"
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", err
		}
		out[i] = digits[n.Int64()]
	}
	return string(out), nil
}
