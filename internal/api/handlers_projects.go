package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/swscloud/reviewd/internal/docmodel"
	"github.com/swscloud/reviewd/internal/errors"
)

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Newf(errors.CategoryValidation, errors.SeverityWarning, "invalid %s", name)
	}
	return id, nil
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondErr(w, errors.New(errors.CategoryValidation, errors.SeverityWarning, "project name is required"))
		return
	}
	p, err := s.st.CreateProject(r.Context(), req.Name, userID(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusCreated, p)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.st.ListProjectsForUser(r.Context(), userID(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, projects)
}

func (s *Server) handleSetMember(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		respondErr(w, err)
		return
	}
	if !s.requireProjectRole(w, r, projectID, docmodel.RoleOwner) {
		return
	}
	var req struct {
		UserID int64  `json:"user_id"`
		Role   string `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	role := docmodel.Role(strings.ToLower(req.Role))
	switch role {
	case docmodel.RoleViewer, docmodel.RoleReviewer, docmodel.RoleEditor, docmodel.RoleOwner:
	default:
		respondErr(w, errors.Newf(errors.CategoryValidation, errors.SeverityWarning, "unknown role %q", req.Role))
		return
	}
	if err := s.st.SetMember(r.Context(), projectID, req.UserID, role); err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, docmodel.ProjectMember{ProjectID: projectID, UserID: req.UserID, Role: role})
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		respondErr(w, err)
		return
	}
	if !s.requireProjectRole(w, r, projectID, docmodel.RoleEditor) {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondErr(w, errors.New(errors.CategoryValidation, errors.SeverityWarning, "document name is required"))
		return
	}
	doc, err := s.st.CreateDocument(r.Context(), projectID, strings.TrimSpace(req.Name))
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusCreated, doc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		respondErr(w, err)
		return
	}
	if !s.requireProjectRole(w, r, projectID, docmodel.RoleViewer) {
		return
	}
	docs, err := s.st.ListDocuments(r.Context(), projectID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, docs)
}
