package httpserver

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"wa-dashboard/internal/apperrors"
	"wa-dashboard/internal/auth"
)

const oauthStateCookie = "oauth_state"

type sessionResponse struct {
	OperatorID string    `json:"operator_id"`
	Email      string    `json:"email,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
	Token      string    `json:"token,omitempty"`
}

func (s *Server) startSession(w http.ResponseWriter, status int, token string, sess auth.Session) {
	auth.SetSessionCookie(w, token, sess.ExpiresAt, s.opts.CookieSecure)
	writeJSON(w, status, sessionResponse{OperatorID: sess.OperatorID, ExpiresAt: sess.ExpiresAt, Token: token})
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var form auth.SignUpForm
	if err := decodeJSON(r, &form); err != nil {
		s.fail(w, r, err)
		return
	}
	token, sess, err := s.svc.Auth.SignUp(r.Context(), form)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.startSession(w, http.StatusCreated, token, sess)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var form auth.SignInForm
	if err := decodeJSON(r, &form); err != nil {
		s.fail(w, r, err)
		return
	}
	token, sess, err := s.svc.Auth.SignIn(r.Context(), form)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.startSession(w, http.StatusOK, token, sess)
}

func (s *Server) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	if s.svc.OAuth == nil {
		s.fail(w, r, fmt.Errorf("oauth sign-in disabled: %w", apperrors.ErrNotFound))
		return
	}
	state, err := auth.NewState()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	target, err := s.svc.OAuth.AuthCodeURL(r.PathValue("provider"), state)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if s.svc.OAuth == nil {
		s.fail(w, r, fmt.Errorf("oauth sign-in disabled: %w", apperrors.ErrNotFound))
		return
	}
	cookie, err := r.Cookie(oauthStateCookie)
	state := r.URL.Query().Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		s.fail(w, r, fmt.Errorf("oauth state mismatch: %w", apperrors.ErrUnauthorized))
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Path: "/", MaxAge: -1})

	if e := r.URL.Query().Get("error"); e != "" {
		s.fail(w, r, fmt.Errorf("oauth provider refused: %s: %w", e, apperrors.ErrUnauthorized))
		return
	}
	identity, err := s.svc.OAuth.Exchange(r.Context(), r.PathValue("provider"), r.URL.Query().Get("code"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	token, sess, err := s.svc.Auth.SignInWithIdentity(r.Context(), identity)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	auth.SetSessionCookie(w, token, sess.ExpiresAt, s.opts.CookieSecure)
	http.Redirect(w, r, s.publicBaseURL(r)+"/", http.StatusFound)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFrom(r.Context())
	op, err := s.svc.Auth.Current(r.Context(), sess)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{OperatorID: sess.OperatorID, Email: op.Email, ExpiresAt: sess.ExpiresAt})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFrom(r.Context())
	if err := s.svc.Auth.SignOut(r.Context(), sess); err != nil {
		s.fail(w, r, err)
		return
	}
	auth.ClearSessionCookie(w, s.opts.CookieSecure)
	w.WriteHeader(http.StatusNoContent)
}
