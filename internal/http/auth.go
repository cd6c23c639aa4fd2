package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bandafrc/api/internal/auth"
	"github.com/bandafrc/api/internal/http/middleware"
	"github.com/bandafrc/api/internal/repo"
	"github.com/bandafrc/api/internal/service"
)

const refreshCookieName = "app_refresh"

// AuthHandler expõe cadastro, login, refresh e logout.
type AuthHandler struct {
	service *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{service: authService}
}

type membroDTO struct {
	ID          uuid.UUID `json:"id"`
	Nome        string    `json:"nome"`
	Email       string    `json:"email"`
	Papel       string    `json:"papel"`
	Instrumento *string   `json:"instrumento"`
	AvatarURL   *string   `json:"avatar_url"`
}

func toMembroDTO(m repo.Membro) membroDTO {
	return membroDTO{
		ID:          m.ID,
		Nome:        m.Nome,
		Email:       m.Email,
		Papel:       m.Papel,
		Instrumento: m.Instrumento,
		AvatarURL:   m.AvatarURL,
	}
}

func (h *AuthHandler) writeSession(w http.ResponseWriter, result service.LoginResult, status int) {
	setRefreshCookie(w, result.RefreshToken, result.RefreshExpiry)
	WriteJSON(w, status, map[string]any{
		"access_token":  result.AccessToken,
		"refresh_token": result.RefreshToken,
		"membro":        toMembroDTO(result.Membro),
	})
}

// HandleSignup cria a conta e devolve sessão ativa.
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Nome        string  `json:"nome"`
		Email       string  `json:"email"`
		Senha       string  `json:"senha"`
		Instrumento *string `json:"instrumento"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	result, err := h.service.Signup(r.Context(), service.SignupInput{
		Nome:        payload.Nome,
		Email:       payload.Email,
		Senha:       payload.Senha,
		Instrumento: payload.Instrumento,
	})
	if err != nil {
		if errors.Is(err, service.ErrEmailEmUso) {
			WriteError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
			return
		}
		WriteError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}

	h.writeSession(w, result, http.StatusCreated)
}

// HandleLogin autentica por e-mail e senha.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email string `json:"email"`
		Senha string `json:"senha"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	result, err := h.service.Login(r.Context(), payload.Email, payload.Senha)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			WriteError(w, http.StatusUnauthorized, "AUTH", err.Error(), nil)
		case errors.Is(err, service.ErrContaInativa):
			WriteError(w, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
		default:
			log.Error().Err(err).Msg("login error")
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
		}
		return
	}

	h.writeSession(w, result, http.StatusOK)
}

// HandleRefresh roda o refresh token (cookie ou corpo).
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	raw := refreshTokenFromRequest(r)
	if raw == "" {
		WriteError(w, http.StatusUnauthorized, "AUTH", "refresh token ausente", nil)
		return
	}

	result, err := h.service.Refresh(r.Context(), raw)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidRefresh):
			clearRefreshCookie(w)
			WriteError(w, http.StatusUnauthorized, "AUTH", err.Error(), nil)
		case errors.Is(err, service.ErrContaInativa):
			clearRefreshCookie(w)
			WriteError(w, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
		default:
			log.Error().Err(err).Msg("refresh error")
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
		}
		return
	}

	h.writeSession(w, result, http.StatusOK)
}

// HandleLogout revoga a sessão corrente.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), refreshTokenFromRequest(r)); err != nil {
		log.Error().Err(err).Msg("logout error")
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
		return
	}

	clearRefreshCookie(w)
	WriteJSON(w, http.StatusOK, map[string]string{"status": "sessão encerrada"})
}

// HandleMe devolve o perfil autenticado.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	subject, err := uuid.Parse(middleware.GetSubject(r.Context()))
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	membro, err := h.service.Me(r.Context(), subject)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", "membro não encontrado", nil)
			return
		}
		log.Error().Err(err).Msg("me error")
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"membro": toMembroDTO(membro)})
}

func refreshTokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(refreshCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return ""
	}
	return payload.RefreshToken
}

func setRefreshCookie(w http.ResponseWriter, token string, expiry time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/auth",
		Expires:  expiry,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}
