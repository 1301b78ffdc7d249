package syncsdk

import (
	"context"
	"crypto/tls"
	"fmt"
	"regexp"

	"github.com/imroc/req/v3"

	"github.com/opensyncbox/syncbox/internal/utils"
	"github.com/opensyncbox/syncbox/internal/version"
)

const (
	pathRequestEmailToken  = "/auth/request_email_token"
	pathValidateEmailToken = "/auth/validate_email_token"
	pathRefresh            = "/auth/refresh"
)

var regexOTP = regexp.MustCompile(`^[0-9A-Za-z]{4,8}$`)

// authClient is unauthenticated: login happens before a Client exists.
var authClient = req.C().
	SetTLSClientConfig(&tls.Config{MinVersion: tls.VersionTLS12}).
	SetTimeout(DefaultRequestTimeout).
	SetUserAgent(version.ShortWithApp()).
	SetJsonMarshal(jsonMarshal).
	SetJsonUnmarshal(jsonUnmarshal).
	SetCommonErrorResult(&APIError{})

// AuthTokens is the access/refresh token pair returned by the server's
// validate and refresh endpoints.
type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type requestEmailTokenBody struct {
	Email string `json:"email"`
}

type validateEmailTokenBody struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type refreshBody struct {
	RefreshToken string `json:"refresh_token"`
}

// RequestEmailToken asks the server to email a one-time code to the given
// address, starting the login flow.
func RequestEmailToken(ctx context.Context, baseURL, email string) error {
	if err := utils.ValidateURL(baseURL); err != nil {
		return ErrNoServerURL
	}
	if err := utils.ValidateEmail(email); err != nil {
		return err
	}

	res, err := authClient.R().
		SetContext(ctx).
		SetBody(&requestEmailTokenBody{Email: email}).
		Post(baseURL + pathRequestEmailToken)

	return classifyAuthError(res, err)
}

// ValidateEmailToken exchanges the one-time code for a fresh access/refresh
// token pair.
func ValidateEmailToken(ctx context.Context, baseURL, email, code string) (*AuthTokens, error) {
	if err := utils.ValidateURL(baseURL); err != nil {
		return nil, ErrNoServerURL
	}
	if !IsValidOTP(code) {
		return nil, fmt.Errorf("sdk: invalid otp code")
	}

	var tokens AuthTokens
	res, err := authClient.R().
		SetContext(ctx).
		SetBody(&validateEmailTokenBody{Email: email, Code: code}).
		SetSuccessResult(&tokens).
		Post(baseURL + pathValidateEmailToken)

	if err := classifyAuthError(res, err); err != nil {
		return nil, err
	}
	return &tokens, nil
}

// RefreshAuthTokens exchanges a refresh token for a new access/refresh pair.
func RefreshAuthTokens(ctx context.Context, baseURL, refreshToken string) (*AuthTokens, error) {
	if err := utils.ValidateURL(baseURL); err != nil {
		return nil, ErrNoServerURL
	}
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	var tokens AuthTokens
	res, err := authClient.R().
		SetContext(ctx).
		SetBody(&refreshBody{RefreshToken: refreshToken}).
		SetSuccessResult(&tokens).
		Post(baseURL + pathRefresh)

	if err := classifyAuthError(res, err); err != nil {
		return nil, err
	}
	return &tokens, nil
}

// IsValidOTP reports whether code looks like a well-formed one-time code,
// without contacting the server.
func IsValidOTP(code string) bool {
	return regexOTP.MatchString(code)
}

func classifyAuthError(res *req.Response, err error) error {
	if err != nil {
		return fmt.Errorf("sdk: request failed: %w", err)
	}
	if !res.IsErrorState() {
		return nil
	}
	return fmt.Errorf("%w: auth request rejected (%s)", ErrServer, res.Status)
}
