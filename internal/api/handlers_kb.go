package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/swscloud/reviewd/internal/docmodel"
	"github.com/swscloud/reviewd/internal/errors"
	"github.com/swscloud/reviewd/internal/objstore"
	"github.com/swscloud/reviewd/internal/observability"
)

var kbExtensions = map[string]bool{
	".pdf": true, ".docx": true, ".md": true, ".markdown": true,
	".html": true, ".htm": true, ".txt": true,
}

// handleKBUpload registers a knowledge-base source and indexes it in the
// background.
func (s *Server) handleKBUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		respondErr(w, errors.Wrap(err, errors.CategoryValidation, errors.SeverityWarning, "multipart field \"file\" is required"))
		return
	}
	defer file.Close()
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !kbExtensions[ext] {
		respondErr(w, errors.Newf(errors.CategoryValidation, errors.SeverityWarning,
			"unsupported knowledge-base file type %q", ext))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		respondErr(w, errors.Wrap(err, errors.CategoryValidation, errors.SeverityWarning, "read upload"))
		return
	}

	kbType := strings.TrimSpace(r.FormValue("kb_type"))
	if kbType == "" {
		kbType = "NORM"
	}
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = header.Filename
	}

	src, err := s.st.CreateKBSource(r.Context(), name, kbType, "")
	if err != nil {
		respondErr(w, err)
		return
	}
	key := objstore.KBKey(src.ID, filepath.Base(header.Filename))
	if err := s.obj.Put(r.Context(), key, data); err != nil {
		respondErr(w, err)
		return
	}
	if err := s.st.SetKBSourceObjectKey(r.Context(), src.ID, key); err != nil {
		respondErr(w, err)
		return
	}
	src.ObjectKey = key

	bg := context.WithoutCancel(r.Context())
	go func() {
		if err := s.indexer.Index(bg, src.ID); err != nil {
			observability.Warn(bg, "kb indexing failed", slog.Any("error", err))
		}
	}()

	respond(w, http.StatusCreated, src)
}

func (s *Server) handleKBList(w http.ResponseWriter, r *http.Request) {
	sources, err := s.st.ListKBSources(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, sources)
}

func (s *Server) handleKBReindex(w http.ResponseWriter, r *http.Request) {
	sourceID, err := pathID(r, "sourceID")
	if err != nil {
		respondErr(w, err)
		return
	}
	src, err := s.st.GetKBSource(r.Context(), sourceID)
	if err != nil {
		respondErr(w, err)
		return
	}
	if src.Status == docmodel.KBProcessing {
		respondErr(w, errors.New(errors.CategoryValidation, errors.SeverityWarning, "source is already being indexed"))
		return
	}

	bg := context.WithoutCancel(r.Context())
	go func() {
		if err := s.indexer.Index(bg, sourceID); err != nil {
			observability.Warn(bg, "kb indexing failed", slog.Any("error", err))
		}
	}()
	respond(w, http.StatusAccepted, map[string]any{"id": sourceID, "status": docmodel.KBProcessing})
}
