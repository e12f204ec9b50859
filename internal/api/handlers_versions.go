package api

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/swscloud/reviewd/internal/docmodel"
	"github.com/swscloud/reviewd/internal/errors"
	"github.com/swscloud/reviewd/internal/export"
	"github.com/swscloud/reviewd/internal/objstore"
	"github.com/swscloud/reviewd/internal/store"
)

const maxUploadBytes = 100 << 20

// handleUploadVersion accepts a multipart docx upload, registers a new
// version, and queues it for processing.
func (s *Server) handleUploadVersion(w http.ResponseWriter, r *http.Request) {
	documentID, err := pathID(r, "documentID")
	if err != nil {
		respondErr(w, err)
		return
	}
	doc, err := s.st.GetDocument(r.Context(), documentID)
	if err != nil {
		respondErr(w, err)
		return
	}
	if !s.requireProjectRole(w, r, doc.ProjectID, docmodel.RoleEditor) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		respondErr(w, errors.Wrap(err, errors.CategoryValidation, errors.SeverityWarning, "multipart field \"file\" is required"))
		return
	}
	defer file.Close()
	if !strings.EqualFold(filepath.Ext(header.Filename), ".docx") {
		respondErr(w, errors.New(errors.CategoryValidation, errors.SeverityWarning, "only .docx uploads are supported"))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		respondErr(w, errors.Wrap(err, errors.CategoryValidation, errors.SeverityWarning, "read upload"))
		return
	}

	v, err := s.st.CreateVersion(r.Context(), documentID, docmodel.VersionUploaded)
	if err != nil {
		respondErr(w, err)
		return
	}
	key := objstore.VersionKey(doc.ProjectID, documentID, v.ID, "source.docx")
	if err := s.obj.Put(r.Context(), key, data); err != nil {
		respondErr(w, err)
		return
	}
	if err := s.st.LinkArtifact(r.Context(), v.ID, "source", key); err != nil {
		respondErr(w, err)
		return
	}

	if !s.pool.Enqueue(v.ID) {
		respondErr(w, errors.New(errors.CategoryInternal, errors.SeverityError, "processing queue is full"))
		return
	}
	v.SourceKey = key
	respond(w, http.StatusCreated, v)
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	documentID, err := pathID(r, "documentID")
	if err != nil {
		respondErr(w, err)
		return
	}
	doc, err := s.st.GetDocument(r.Context(), documentID)
	if err != nil {
		respondErr(w, err)
		return
	}
	if !s.requireProjectRole(w, r, doc.ProjectID, docmodel.RoleViewer) {
		return
	}
	versions, err := s.st.ListVersions(r.Context(), documentID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, versions)
}

func (s *Server) handleVersionStatus(w http.ResponseWriter, r *http.Request) {
	versionID, err := pathID(r, "versionID")
	if err != nil {
		respondErr(w, err)
		return
	}
	if !s.requireVersionRole(w, r, versionID, docmodel.RoleViewer) {
		return
	}
	v, err := s.st.GetVersion(r.Context(), versionID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"id":            v.ID,
		"status":        v.Status,
		"progress":      v.Progress,
		"current_step":  v.CurrentStep,
		"error_message": v.ErrorMessage,
	})
}

// handleVersionPDF hands back a short-lived signed URL for the preview.
func (s *Server) handleVersionPDF(w http.ResponseWriter, r *http.Request) {
	versionID, err := pathID(r, "versionID")
	if err != nil {
		respondErr(w, err)
		return
	}
	if !s.requireVersionRole(w, r, versionID, docmodel.RoleViewer) {
		return
	}
	v, err := s.st.GetVersion(r.Context(), versionID)
	if err != nil {
		respondErr(w, err)
		return
	}
	if v.PreviewKey == "" {
		respondErr(w, errors.New(errors.CategoryNotFound, errors.SeverityWarning, "preview not generated yet"))
		return
	}
	respond(w, http.StatusOK, map[string]string{"url": s.signer.SignedURL(v.PreviewKey)})
}

func (s *Server) handleVersionOutline(w http.ResponseWriter, r *http.Request) {
	versionID, err := pathID(r, "versionID")
	if err != nil {
		respondErr(w, err)
		return
	}
	if !s.requireVersionRole(w, r, versionID, docmodel.RoleViewer) {
		return
	}
	outline, err := s.st.ListOutline(r.Context(), versionID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, outline)
}

func (s *Server) handleVersionIssues(w http.ResponseWriter, r *http.Request) {
	versionID, err := pathID(r, "versionID")
	if err != nil {
		respondErr(w, err)
		return
	}
	if !s.requireVersionRole(w, r, versionID, docmodel.RoleViewer) {
		return
	}
	q := r.URL.Query()
	filter := store.IssueFilter{
		Status:    docmodel.IssueStatus(q.Get("status")),
		Severity:  docmodel.Severity(q.Get("severity")),
		IssueType: q.Get("issue_type"),
	}
	issues, err := s.st.ListIssues(r.Context(), versionID, filter)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, issues)
}

// handleVersionExport streams the issue report; type selects the format.
func (s *Server) handleVersionExport(w http.ResponseWriter, r *http.Request) {
	versionID, err := pathID(r, "versionID")
	if err != nil {
		respondErr(w, err)
		return
	}
	if !s.requireVersionRole(w, r, versionID, docmodel.RoleViewer) {
		return
	}
	issues, err := s.st.ListIssues(r.Context(), versionID, store.IssueFilter{})
	if err != nil {
		respondErr(w, err)
		return
	}

	switch r.URL.Query().Get("type") {
	case "", "issues.xlsx":
		data, err := export.IssuesXLSX(issues)
		if err != nil {
			respondErr(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="issues.xlsx"`)
		_, _ = w.Write(data)
	case "issues.docx":
		data, err := export.IssuesDOCX("水土保持方案审查问题报告", issues)
		if err != nil {
			respondErr(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
		w.Header().Set("Content-Disposition", `attachment; filename="issues.docx"`)
		_, _ = w.Write(data)
	default:
		respondErr(w, errors.New(errors.CategoryValidation, errors.SeverityWarning,
			"unknown export type, want issues.xlsx or issues.docx"))
	}
}

func (s *Server) handleVersionCancel(w http.ResponseWriter, r *http.Request) {
	versionID, err := pathID(r, "versionID")
	if err != nil {
		respondErr(w, err)
		return
	}
	if !s.requireVersionRole(w, r, versionID, docmodel.RoleEditor) {
		return
	}
	if err := s.st.CancelVersion(r.Context(), versionID); err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"id": versionID, "status": docmodel.VersionCanceled})
}

func (s *Server) handleVersionReprocess(w http.ResponseWriter, r *http.Request) {
	versionID, err := pathID(r, "versionID")
	if err != nil {
		respondErr(w, err)
		return
	}
	if !s.requireVersionRole(w, r, versionID, docmodel.RoleEditor) {
		return
	}
	if err := s.st.ResetForReprocess(r.Context(), versionID); err != nil {
		respondErr(w, err)
		return
	}
	if !s.pool.Enqueue(versionID) {
		respondErr(w, errors.New(errors.CategoryInternal, errors.SeverityError, "processing queue is full"))
		return
	}
	respond(w, http.StatusAccepted, map[string]any{"id": versionID, "status": docmodel.VersionProcessing})
}

func (s *Server) handleDeleteVersion(w http.ResponseWriter, r *http.Request) {
	versionID, err := pathID(r, "versionID")
	if err != nil {
		respondErr(w, err)
		return
	}
	if !s.requireVersionRole(w, r, versionID, docmodel.RoleEditor) {
		return
	}
	if err := s.st.DeleteVersion(r.Context(), versionID); err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"id": versionID, "deleted": true})
}
