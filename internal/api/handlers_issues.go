package api

import (
	"net/http"

	"github.com/swscloud/reviewd/internal/docmodel"
)

func (s *Server) handleGetIssue(w http.ResponseWriter, r *http.Request) {
	issueID, err := pathID(r, "issueID")
	if err != nil {
		respondErr(w, err)
		return
	}
	if !s.requireIssueRole(w, r, issueID, docmodel.RoleViewer) {
		return
	}
	issue, err := s.st.GetIssue(r.Context(), issueID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, issue)
}

func (s *Server) handleListIssueActions(w http.ResponseWriter, r *http.Request) {
	issueID, err := pathID(r, "issueID")
	if err != nil {
		respondErr(w, err)
		return
	}
	if !s.requireIssueRole(w, r, issueID, docmodel.RoleViewer) {
		return
	}
	actions, err := s.st.ListIssueActions(r.Context(), issueID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, actions)
}

func (s *Server) handleIssueAction(w http.ResponseWriter, r *http.Request) {
	issueID, err := pathID(r, "issueID")
	if err != nil {
		respondErr(w, err)
		return
	}
	if !s.requireIssueRole(w, r, issueID, docmodel.RoleReviewer) {
		return
	}
	var req struct {
		Action  string `json:"action"`
		Comment string `json:"comment"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	uid := userID(r)
	issue, err := s.runsvc.ApplyIssueAction(r.Context(), issueID, req.Action, req.Comment, &uid)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, issue)
}
