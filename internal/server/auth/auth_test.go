package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		Enabled:            true,
		TokenIssuer:        "syncbox-test",
		AccessTokenSecret:  "access-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenSecret: "refresh-secret",
		RefreshTokenExpiry: 24 * time.Hour,
		OTPLength:          6,
		OTPExpiry:          time.Minute,
	}
}

func TestRequestAndValidateToken(t *testing.T) {
	svc := New(testConfig())
	const email = "alice@example.com"

	require.NoError(t, svc.RequestToken(email))
	otp, ok := svc.codes.Get(email)
	require.True(t, ok)

	access, refresh, err := svc.ValidateToken(email, otp)
	require.NoError(t, err)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)

	// the OTP is single-use
	_, _, err = svc.ValidateToken(email, otp)
	require.ErrorIs(t, err, ErrInvalidOTP)
}

func TestValidateAccessTokenRejectsRefreshToken(t *testing.T) {
	svc := New(testConfig())
	const email = "bob@example.com"

	require.NoError(t, svc.RequestToken(email))
	otp, _ := svc.codes.Get(email)
	_, refresh, err := svc.ValidateToken(email, otp)
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(refresh)
	require.Error(t, err)
}

func TestRefreshTokens(t *testing.T) {
	svc := New(testConfig())
	const email = "carol@example.com"

	require.NoError(t, svc.RequestToken(email))
	otp, _ := svc.codes.Get(email)
	_, refresh, err := svc.ValidateToken(email, otp)
	require.NoError(t, err)

	newAccess, newRefresh, err := svc.RefreshTokens(refresh)
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(newAccess)
	require.NoError(t, err)
	require.Equal(t, email, claims.Subject)
	require.NotEmpty(t, newRefresh)
}
