// Package auth exposes the bearer-token endpoints over gin: requesting an
// email OTP, exchanging it for a token pair, and refreshing a token pair.
package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opensyncbox/syncbox/internal/server/auth"
	"github.com/opensyncbox/syncbox/internal/server/handlers/api"
)

type Handler struct {
	svc *auth.Service
}

func New(svc *auth.Service) *Handler {
	return &Handler{svc: svc}
}

type requestTokenBody struct {
	Email string `json:"email" binding:"required"`
}

// RequestToken handles POST /auth/request_email_token.
func (h *Handler) RequestToken(c *gin.Context) {
	var body requestTokenBody
	if err := c.ShouldBindJSON(&body); err != nil {
		api.AbortWithError(c, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	if err := h.svc.RequestToken(body.Email); err != nil {
		api.AbortWithError(c, http.StatusBadRequest, api.CodeAuthNotificationFailed, err)
		return
	}

	c.PureJSON(http.StatusOK, gin.H{"status": "ok"})
}

type validateTokenBody struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// ValidateToken handles POST /auth/validate_email_token.
func (h *Handler) ValidateToken(c *gin.Context) {
	var body validateTokenBody
	if err := c.ShouldBindJSON(&body); err != nil {
		api.AbortWithError(c, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	access, refresh, err := h.svc.ValidateToken(body.Email, body.Code)
	if err != nil {
		api.AbortWithError(c, http.StatusUnauthorized, api.CodeAuthOTPVerificationFailed, err)
		return
	}

	c.PureJSON(http.StatusOK, tokenPairResponse{AccessToken: access, RefreshToken: refresh})
}

type refreshTokenBody struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh handles POST /auth/refresh.
func (h *Handler) Refresh(c *gin.Context) {
	var body refreshTokenBody
	if err := c.ShouldBindJSON(&body); err != nil {
		api.AbortWithError(c, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	access, refresh, err := h.svc.RefreshTokens(body.RefreshToken)
	if err != nil {
		api.AbortWithError(c, http.StatusUnauthorized, api.CodeAuthTokenRefreshFailed, err)
		return
	}

	c.PureJSON(http.StatusOK, tokenPairResponse{AccessToken: access, RefreshToken: refresh})
}
