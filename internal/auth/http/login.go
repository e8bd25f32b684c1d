package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

const (
	// maxLoginBody bounds the login payload; real ones are well under 1KiB.
	maxLoginBody = 8 << 10

	msgLoginSuccessful    = "Login successful"
	msgInvalidBody        = "Invalid request body."
	msgMissingCredentials = "Username and password are required."
	msgInvalidCredentials = "Invalid username or password."
	msgInternalError      = "An internal error occurred."
)

// LoginHandler exchanges a username and password for a bearer token.
type LoginHandler struct {
	LoginService *service.LoginService
	ClientIP     httpx.KeyExtractor
}

// ServeHTTP godoc
//
//	@Summary		Log in
//	@Description	Checks a username and password and returns a signed bearer token valid for one hour.
//	@Description	Unknown users and wrong passwords get the same 401 response.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.LoginResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Malformed body or missing fields"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid username or password"
//	@Failure		429		{object}	authsdk.ErrorResponse	"Rate limited, see Retry-After"
//	@Failure		500		{object}	authsdk.ErrorResponse
//	@Router			/api/auth/login [post]
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req, maxLoginBody); err != nil {
		log.Info("login rejected", "reason", "invalid body", "err", err)
		httpx.WriteError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	result, err := h.LoginService.Login(ctx, req.Username, req.Password, h.ClientIP(r))
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusOK, authsdk.LoginResponse{
			Token:   result.Token,
			Message: msgLoginSuccessful,
		})
	case errors.Is(err, service.ErrInputInvalid):
		httpx.WriteError(w, http.StatusBadRequest, msgMissingCredentials)
	case errors.Is(err, service.ErrAuthenticationFailed):
		httpx.WriteError(w, http.StatusUnauthorized, msgInvalidCredentials)
	default:
		log.Error("login failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, msgInternalError)
	}
}
