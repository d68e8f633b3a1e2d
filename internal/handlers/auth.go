// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/chat-backend/internal/apperr"
	"codeberg.org/oliverandrich/chat-backend/internal/auth"
	"codeberg.org/oliverandrich/chat-backend/internal/models"
	authsvc "codeberg.org/oliverandrich/chat-backend/internal/services/auth"
	"codeberg.org/oliverandrich/chat-backend/internal/services/session"
	"github.com/labstack/echo/v4"
)

// Response messages
const (
	MsgSignedUp            = "Account created successfully! Please check your email for verification code."
	MsgEmailVerified       = "Email verified successfully. You are now signed in."
	MsgCodeResent          = "Verification code sent successfully. Please check your email."
	MsgSignedIn            = "Signed in successfully"
	MsgTokensRefreshed     = "Tokens refreshed successfully"
	MsgLoggedOut           = "Logged out successfully"
	MsgRefreshTokenMissing = "Refresh token not found"
)

var (
	errInvalidBody    = apperr.New(apperr.KindValidation, "Invalid request body")
	errRefreshMissing = apperr.New(apperr.KindUnauthorized, MsgRefreshTokenMissing)
)

// AuthHandlers contains handlers for authentication.
type AuthHandlers struct {
	auth    *authsvc.Service
	cookies *session.Manager
}

// NewAuth creates a new AuthHandlers instance.
func NewAuth(svc *authsvc.Service, cookies *session.Manager) *AuthHandlers {
	return &AuthHandlers{
		auth:    svc,
		cookies: cookies,
	}
}

// SignUpRequest is the request body for creating an account.
type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// VerifyEmailRequest is the request body for email verification.
type VerifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// ResendCodeRequest is the request body for requesting a new code.
type ResendCodeRequest struct {
	Email string `json:"email"`
}

// SignInRequest is the request body for signing in.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// MessageResponse carries only a message.
type MessageResponse struct {
	Message string `json:"message"`
}

// SignUpResponse is returned after a successful sign-up.
type SignUpResponse struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

// UserResponse carries the signed-in user's profile.
type UserResponse struct {
	User    models.Profile `json:"user"`
	Message string         `json:"message,omitempty"`
}

// SignUp creates an account and sends a verification code.
func (h *AuthHandlers) SignUp(c echo.Context) error {
	var req SignUpRequest
	if err := c.Bind(&req); err != nil {
		return errInvalidBody
	}

	result, err := h.auth.SignUp(c.Request().Context(), authsvc.SignUpParams{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, SignUpResponse{Email: result.Email, Message: MsgSignedUp})
}

// VerifyEmail confirms the code and signs the user in.
func (h *AuthHandlers) VerifyEmail(c echo.Context) error {
	var req VerifyEmailRequest
	if err := c.Bind(&req); err != nil {
		return errInvalidBody
	}

	sess, err := h.auth.VerifyEmail(c.Request().Context(), req.Email, req.Code)
	if err != nil {
		return err
	}

	h.cookies.SetTokens(c.Response(), sess.Tokens)
	return c.JSON(http.StatusOK, UserResponse{User: sess.User, Message: MsgEmailVerified})
}

// ResendCode sends a fresh verification code.
func (h *AuthHandlers) ResendCode(c echo.Context) error {
	var req ResendCodeRequest
	if err := c.Bind(&req); err != nil {
		return errInvalidBody
	}

	if err := h.auth.ResendCode(c.Request().Context(), req.Email); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, MessageResponse{Message: MsgCodeResent})
}

// SignIn authenticates with email and password.
func (h *AuthHandlers) SignIn(c echo.Context) error {
	var req SignInRequest
	if err := c.Bind(&req); err != nil {
		return errInvalidBody
	}

	sess, err := h.auth.SignIn(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	h.cookies.SetTokens(c.Response(), sess.Tokens)
	return c.JSON(http.StatusOK, UserResponse{User: sess.User, Message: MsgSignedIn})
}

// Refresh rotates the token cookies using the refresh token cookie.
func (h *AuthHandlers) Refresh(c echo.Context) error {
	refreshToken, ok := h.cookies.RefreshToken(c.Request())
	if !ok {
		return errRefreshMissing
	}

	pair, err := h.auth.Refresh(c.Request().Context(), refreshToken)
	if err != nil {
		return err
	}

	h.cookies.SetTokens(c.Response(), pair)
	return c.JSON(http.StatusOK, MessageResponse{Message: MsgTokensRefreshed})
}

// Logout clears the token cookies.
func (h *AuthHandlers) Logout(c echo.Context) error {
	if err := h.auth.Logout(c.Request().Context()); err != nil {
		return err
	}

	h.cookies.ClearTokens(c.Response())
	return c.JSON(http.StatusOK, MessageResponse{Message: MsgLoggedOut})
}

// Me returns the profile of the authenticated user.
func (h *AuthHandlers) Me(c echo.Context) error {
	userID := auth.UserID(c.Request().Context())
	if userID == "" {
		return apperr.New(apperr.KindUnauthorized, "Unauthorized")
	}

	profile, err := h.auth.Me(c.Request().Context(), userID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, UserResponse{User: profile})
}
