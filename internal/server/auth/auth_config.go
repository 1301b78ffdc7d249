package auth

import (
	"fmt"
	"log/slog"
	"time"
)

// Config configures the bearer-token model used to gate the server's sync
// endpoints. Email OTP *delivery* is treated as an external collaborator:
// when Enabled is true but no real mail transport is wired, RequestToken
// logs the OTP instead of emailing it, which keeps ValidateToken's
// verification path exercised in tests and local dev without inventing a
// notification dependency.
type Config struct {
	Enabled            bool          `mapstructure:"enabled"`
	TokenIssuer        string        `mapstructure:"token_issuer"`
	AccessTokenSecret  string        `mapstructure:"access_token_secret"`
	AccessTokenExpiry  time.Duration `mapstructure:"access_token_expiry"`
	RefreshTokenSecret string        `mapstructure:"refresh_token_secret"`
	RefreshTokenExpiry time.Duration `mapstructure:"refresh_token_expiry"`
	OTPLength          int           `mapstructure:"otp_length"`
	OTPExpiry          time.Duration `mapstructure:"otp_expiry"`
}

func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.TokenIssuer == "" {
		return fmt.Errorf("auth: token_issuer required when enabled")
	}
	if c.AccessTokenSecret == "" {
		return fmt.Errorf("auth: access_token_secret required when enabled")
	}
	if c.RefreshTokenSecret == "" {
		return fmt.Errorf("auth: refresh_token_secret required when enabled")
	}
	if c.OTPLength <= 0 {
		return fmt.Errorf("auth: otp_length must be positive")
	}
	return nil
}

func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("enabled", c.Enabled),
		slog.String("token_issuer", c.TokenIssuer),
		slog.Bool("access_token_secret", c.AccessTokenSecret != ""),
		slog.Duration("access_token_expiry", c.AccessTokenExpiry),
		slog.Bool("refresh_token_secret", c.RefreshTokenSecret != ""),
		slog.Duration("refresh_token_expiry", c.RefreshTokenExpiry),
		slog.Int("otp_length", c.OTPLength),
		slog.Duration("otp_expiry", c.OTPExpiry),
	)
}
