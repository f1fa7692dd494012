package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/creatify/internal/service"
)

type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles POST /user.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Email == "" || len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "name, email and password (min 6 chars) required")
		return
	}

	u, err := h.auth.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailTaken):
			writeError(w, http.StatusConflict, "email already in use")
		case errors.Is(err, service.ErrRateLimited):
			writeError(w, http.StatusTooManyRequests, "too many code requests")
		default:
			writeError(w, http.StatusInternalServerError, "failed to register")
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": u.ToPublic()})
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// Verify handles POST /user/verify.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil || req.Email == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "email and code required")
		return
	}
	if err := h.auth.Verify(r.Context(), req.Email, req.Code); err != nil {
		if errors.Is(err, service.ErrInvalidCode) {
			writeError(w, http.StatusBadRequest, "invalid verification code")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to verify")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "account verified"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /user/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password required")
		return
	}
	access, refresh, u, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, service.ErrNotVerified):
			writeError(w, http.StatusForbidden, "account not verified")
		default:
			writeError(w, http.StatusInternalServerError, "failed to log in")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"user":          u.ToPublic(),
	})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword handles POST /user/forgotpassword.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "email required")
		return
	}
	if err := h.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		if errors.Is(err, service.ErrRateLimited) {
			writeError(w, http.StatusTooManyRequests, "too many code requests")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to send code")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "code sent if the account exists"})
}

type resetPasswordRequest struct {
	Email    string `json:"email"`
	Code     string `json:"code"`
	Password string `json:"password"`
}

// ResetPassword handles POST /user/resetpassword.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil || req.Email == "" || req.Code == "" || len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "email, code and password (min 6 chars) required")
		return
	}
	if err := h.auth.ResetPassword(r.Context(), req.Email, req.Code, req.Password); err != nil {
		if errors.Is(err, service.ErrInvalidCode) {
			writeError(w, http.StatusBadRequest, "invalid verification code")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to reset password")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}
