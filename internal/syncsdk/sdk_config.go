package syncsdk

import (
	"errors"

	"github.com/opensyncbox/syncbox/internal/utils"
)

const DefaultBaseURL = "https://sync.example.org"

var (
	ErrNoServerURL    = errors.New("sdk: server url missing")
	ErrInvalidEmail   = errors.New("sdk: invalid email")
	ErrNoAccessToken  = errors.New("sdk: access token missing")
	ErrNoRefreshToken = errors.New("sdk: refresh token missing")
)

// Config is the configuration for a Client.
type Config struct {
	BaseURL      string // required, defaults to DefaultBaseURL
	Email        string // required
	AccessToken  string // required
	RefreshToken string // optional; stored only, the Client does not re-authenticate on 401
	MaxRetries   int    // defaults to 3
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if err := utils.ValidateEmail(c.Email); err != nil {
		return err
	}
	if c.AccessToken == "" {
		return ErrNoAccessToken
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	return nil
}
