package api

import (
	"net/http"
	"strings"

	"github.com/swscloud/reviewd/internal/auth"
	"github.com/swscloud/reviewd/internal/errors"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"display_name"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || len(req.Password) < 8 {
		respondErr(w, errors.New(errors.CategoryValidation, errors.SeverityWarning,
			"email and a password of at least 8 characters are required"))
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondErr(w, err)
		return
	}
	user, err := s.st.CreateUser(r.Context(), req.Email, hash, req.Name)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	user, err := s.st.GetUserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		respondErr(w, errors.New(errors.CategoryAuth, errors.SeverityWarning, "invalid email or password"))
		return
	}
	pair, err := s.issuer.IssuePair(user.ID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, pair)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	uid, err := s.issuer.Verify(req.RefreshToken, auth.TokenRefresh)
	if err != nil {
		respondErr(w, err)
		return
	}
	pair, err := s.issuer.IssuePair(uid)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, pair)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.st.GetUser(r.Context(), userID(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, user)
}
