package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/DmitriyEfimov15/mobcon-server/internal/common"
	"github.com/DmitriyEfimov15/mobcon-server/internal/server/models"
	"github.com/gorilla/mux"
)

// refreshCookieName is part of the client contract; the web client relies on
// the cookie being set on login/verify/refresh and cleared on logout.
const refreshCookieName = "refreshToken"

type userPayload struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	IsActivated bool   `json:"isActivated"`
}

type authResponse struct {
	AccessToken string       `json:"accessToken"`
	User        *userPayload `json:"user"`
}

func toUserPayload(a *models.Account) *userPayload {
	return &userPayload{
		ID:          a.ID,
		Email:       a.Email,
		Username:    a.Username,
		IsActivated: a.EmailVerified,
	}
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.Email == "" || req.Username == "" || req.Password == "" {
		s.writeError(w, r, fmt.Errorf("email, username and password are required: %w", common.ErrBadRequest))
		return
	}

	res, err := s.credentials.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if res.Status == 1 {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"status":  res.Status,
			"message": res.Message,
		})
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]any{
		"user": map[string]string{
			"email":          res.User.Email,
			"username":       res.User.Username,
			"activationLink": res.User.ActivationLink,
		},
	})
}

func (s *Server) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActivationLink string `json:"activationLink"`
		ActivationCode string `json:"activationCode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.ActivationLink == "" || req.ActivationCode == "" {
		s.writeError(w, r, fmt.Errorf("activationLink and activationCode are required: %w", common.ErrBadRequest))
		return
	}

	pair, account, err := s.credentials.VerifyEmail(r.Context(), req.ActivationLink, req.ActivationCode, r.UserAgent())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.setRefreshCookie(w, pair.RefreshToken)
	s.writeJSON(w, http.StatusOK, &authResponse{AccessToken: pair.AccessToken, User: toUserPayload(account)})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.Email == "" || req.Password == "" {
		s.writeError(w, r, fmt.Errorf("email and password are required: %w", common.ErrBadRequest))
		return
	}

	pair, account, err := s.credentials.Login(r.Context(), req.Email, req.Password, r.UserAgent())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.setRefreshCookie(w, pair.RefreshToken)
	s.writeJSON(w, http.StatusOK, &authResponse{AccessToken: pair.AccessToken, User: toUserPayload(account)})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	account := accountFromContext(r.Context())

	if err := s.credentials.Logout(r.Context(), account.ID, r.UserAgent()); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.clearRefreshCookie(w)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("refresh cookie missing: %w", common.ErrNotFound))
		return
	}

	pair, account, err := s.credentials.Refresh(r.Context(), cookie.Value, r.UserAgent())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.setRefreshCookie(w, pair.RefreshToken)
	s.writeJSON(w, http.StatusOK, &authResponse{AccessToken: pair.AccessToken, User: toUserPayload(account)})
}

func (s *Server) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		s.writeError(w, r, fmt.Errorf("email is required: %w", common.ErrBadRequest))
		return
	}

	if err := s.credentials.RequestPasswordReset(r.Context(), req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"message": "reset link sent"})
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]

	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		s.writeError(w, r, fmt.Errorf("password is required: %w", common.ErrBadRequest))
		return
	}

	if err := s.credentials.ResetPassword(r.Context(), token, req.Password); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

func (s *Server) changeUsername(w http.ResponseWriter, r *http.Request) {
	account := accountFromContext(r.Context())

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.Username == "" || req.Password == "" {
		s.writeError(w, r, fmt.Errorf("username and password are required: %w", common.ErrBadRequest))
		return
	}

	if err := s.credentials.ChangeUsername(r.Context(), account.ID, req.Username, req.Password); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"username": req.Username})
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	account := accountFromContext(r.Context())

	var req struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.OldPassword == "" || req.NewPassword == "" {
		s.writeError(w, r, fmt.Errorf("oldPassword and newPassword are required: %w", common.ErrBadRequest))
		return
	}

	if err := s.credentials.ChangePassword(r.Context(), account.ID, req.OldPassword, req.NewPassword); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

func (s *Server) requestEmailChange(w http.ResponseWriter, r *http.Request) {
	account := accountFromContext(r.Context())

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.Email == "" || req.Password == "" {
		s.writeError(w, r, fmt.Errorf("email and password are required: %w", common.ErrBadRequest))
		return
	}

	if err := s.credentials.RequestEmailChange(r.Context(), account.ID, req.Email, req.Password); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"message": "confirmation link sent"})
}

func (s *Server) resendChangeEmailCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActivationLink string `json:"activationLink"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ActivationLink == "" {
		s.writeError(w, r, fmt.Errorf("activationLink is required: %w", common.ErrBadRequest))
		return
	}

	if err := s.credentials.ResendChangeEmailCode(r.Context(), req.ActivationLink); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"message": "activation code sent"})
}

func (s *Server) confirmEmailChange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActivationLink string `json:"activationLink"`
		ActivationCode string `json:"activationCode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.ActivationLink == "" || req.ActivationCode == "" {
		s.writeError(w, r, fmt.Errorf("activationLink and activationCode are required: %w", common.ErrBadRequest))
		return
	}

	email, err := s.credentials.ConfirmEmailChange(r.Context(), req.ActivationLink, req.ActivationCode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"email": email})
}

// --- response plumbing ---

func (s *Server) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.refreshTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error(context.Background(), "response encoding failed", "error", err.Error())
	}
}

// writeError maps sentinel errors to HTTP statuses. Anything unmapped is an
// internal error whose details stay in the log, not in the response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	message := err.Error()

	switch {
	case errors.Is(err, common.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, common.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, common.ErrBadRequest):
		status = http.StatusBadRequest
	default:
		status = http.StatusInternalServerError
		message = "internal server error"
		s.logger.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err.Error())
	}

	s.writeJSON(w, status, map[string]string{"message": message})
}
