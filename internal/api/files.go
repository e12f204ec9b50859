package api

import (
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/swscloud/reviewd/internal/errors"
)

var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".json": "application/json",
	".md":   "text/markdown; charset=utf-8",
	".html": "text/html; charset=utf-8",
	".txt":  "text/plain; charset=utf-8",
}

// handleSignedFile verifies an HMAC-signed URL and streams the object. No
// bearer token is required; the signature is the grant.
func (s *Server) handleSignedFile(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "*")
	key, err := url.PathUnescape(raw)
	if err != nil || key == "" || strings.Contains(key, "..") {
		respondErr(w, errors.New(errors.CategoryValidation, errors.SeverityWarning, "invalid object key"))
		return
	}

	q := r.URL.Query()
	if err := s.signer.Verify(key, q.Get("exp"), q.Get("sig")); err != nil {
		respondErr(w, err)
		return
	}

	data, err := s.obj.Get(r.Context(), key)
	if err != nil {
		respondErr(w, err)
		return
	}

	ct := contentTypes[strings.ToLower(filepath.Ext(key))]
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "private, max-age=60")
	_, _ = w.Write(data)
}
