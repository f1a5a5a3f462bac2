package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/woolstore/storefront/internal/apperr"
	"github.com/woolstore/storefront/internal/auth"
	"github.com/woolstore/storefront/internal/session"
)

// Auth is the authenticator surface the handler uses; satisfied by
// *auth.Authenticator.
type Auth interface {
	Login(ctx context.Context, email, password string) (string, session.Session, error)
	Logout(ctx context.Context, token string)
	Register(ctx context.Context, name, email, password string) (auth.User, error)
}

type AuthHandler struct {
	Auth         Auth
	CookieSecure bool
}

func (h *AuthHandler) Register(r *chi.Mux) {
	r.Post("/auth/login", h.login)
	r.Post("/auth/logout", h.logout)
	r.Post("/auth/register", h.register)
	r.Get("/auth/session", h.current)
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) setCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, apperr.New(apperr.KindValidation, "invalid json"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	token, s, err := h.Auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.setCookie(w, token, int(session.TTL.Seconds()))
	writeJSON(w, http.StatusOK, map[string]any{"user": s})
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookie); err == nil {
		h.Auth.Logout(r.Context(), c.Value)
	}
	h.setCookie(w, "", -1)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type registerReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, apperr.New(apperr.KindValidation, "invalid json"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	u, err := h.Auth.Register(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": u})
}

func (h *AuthHandler) current(w http.ResponseWriter, r *http.Request) {
	if s, ok := SessionFrom(r.Context()); ok {
		writeJSON(w, http.StatusOK, map[string]any{"user": s})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": nil})
}
