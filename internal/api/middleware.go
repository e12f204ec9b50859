package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/swscloud/reviewd/internal/auth"
	"github.com/swscloud/reviewd/internal/docmodel"
	"github.com/swscloud/reviewd/internal/errors"
	"github.com/swscloud/reviewd/internal/observability"
)

type ctxKey int

const userIDKey ctxKey = iota

// requestID stamps every request with an id for log correlation.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(observability.WithRequestID(r.Context(), id)))
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		observability.Debug(r.Context(), "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("took", time.Since(start)))
	})
}

// requireUser authenticates the Bearer access token and stores the user id
// in the request context.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			respondErr(w, errors.New(errors.CategoryAuth, errors.SeverityWarning, "missing bearer token"))
			return
		}
		userID, err := s.issuer.Verify(token, auth.TokenAccess)
		if err != nil {
			respondErr(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func userID(r *http.Request) int64 {
	id, _ := r.Context().Value(userIDKey).(int64)
	return id
}

// requireProjectRole checks the caller's membership in the project.
func (s *Server) requireProjectRole(w http.ResponseWriter, r *http.Request, projectID int64, min docmodel.Role) bool {
	role, err := s.st.MemberRole(r.Context(), projectID, userID(r))
	if err != nil {
		respondErr(w, err)
		return false
	}
	if role == "" || !role.AtLeast(min) {
		respondForbidden(w)
		return false
	}
	return true
}

// requireVersionRole resolves a version's project and checks membership.
func (s *Server) requireVersionRole(w http.ResponseWriter, r *http.Request, versionID int64, min docmodel.Role) bool {
	projectID, err := s.st.ProjectForVersion(r.Context(), versionID)
	if err != nil {
		respondErr(w, err)
		return false
	}
	return s.requireProjectRole(w, r, projectID, min)
}

func (s *Server) requireRunRole(w http.ResponseWriter, r *http.Request, runID int64, min docmodel.Role) bool {
	projectID, err := s.st.ProjectForRun(r.Context(), runID)
	if err != nil {
		respondErr(w, err)
		return false
	}
	return s.requireProjectRole(w, r, projectID, min)
}

func (s *Server) requireIssueRole(w http.ResponseWriter, r *http.Request, issueID int64, min docmodel.Role) bool {
	projectID, err := s.st.ProjectForIssue(r.Context(), issueID)
	if err != nil {
		respondErr(w, err)
		return false
	}
	return s.requireProjectRole(w, r, projectID, min)
}
