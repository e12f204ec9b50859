package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/swscloud/reviewd/internal/docmodel"
	"github.com/swscloud/reviewd/internal/errors"
)

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	versionID, err := pathID(r, "versionID")
	if err != nil {
		respondErr(w, err)
		return
	}
	if !s.requireVersionRole(w, r, versionID, docmodel.RoleReviewer) {
		return
	}
	var req struct {
		RunType string `json:"run_type"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	runType := docmodel.RunType(strings.ToUpper(strings.TrimSpace(req.RunType)))
	if runType == "" {
		runType = docmodel.RunMixed
	}
	switch runType {
	case docmodel.RunRule, docmodel.RunAI, docmodel.RunMixed:
	default:
		respondErr(w, errors.Newf(errors.CategoryValidation, errors.SeverityWarning,
			"unknown run_type %q, want RULE, AI or MIXED", req.RunType))
		return
	}
	run, err := s.runsvc.Start(r.Context(), versionID, runType)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusCreated, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	versionID, err := pathID(r, "versionID")
	if err != nil {
		respondErr(w, err)
		return
	}
	if !s.requireVersionRole(w, r, versionID, docmodel.RoleViewer) {
		return
	}
	list, err := s.st.ListRuns(r.Context(), versionID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, list)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, err := pathID(r, "runID")
	if err != nil {
		respondErr(w, err)
		return
	}
	if !s.requireRunRole(w, r, runID, docmodel.RoleViewer) {
		return
	}
	run, err := s.st.GetRun(r.Context(), runID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, run)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID, err := pathID(r, "runID")
	if err != nil {
		respondErr(w, err)
		return
	}
	if !s.requireRunRole(w, r, runID, docmodel.RoleReviewer) {
		return
	}
	if err := s.runsvc.Cancel(r.Context(), runID); err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"id": runID, "status": docmodel.RunCanceled})
}

// handleRunEvents streams run progress as server-sent events. Hub events
// arrive live; a 1s poll covers subscribers that attach mid-run or when
// publications were dropped.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	runID, err := pathID(r, "runID")
	if err != nil {
		respondErr(w, err)
		return
	}
	if !s.requireRunRole(w, r, runID, docmodel.RoleViewer) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondErr(w, errors.New(errors.CategoryInternal, errors.SeverityError, "streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.runsvc.Hub().Subscribe(runID)
	defer cancel()

	writeEvent := func(name string, data any) {
		payload, err := json.Marshal(data)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
		flusher.Flush()
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	lastProgress := -1
	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeEvent(ev.Name, ev.Data)
			if ev.Name == "run_done" {
				return
			}
		case <-ticker.C:
			run, err := s.st.GetRun(r.Context(), runID)
			if err != nil {
				return
			}
			switch run.Status {
			case docmodel.RunDone, docmodel.RunFailed, docmodel.RunCanceled:
				writeEvent("run_done", map[string]any{
					"run_id": run.ID,
					"status": run.Status,
				})
				return
			default:
				if run.Progress != lastProgress {
					lastProgress = run.Progress
					writeEvent("run_progress", map[string]any{
						"run_id":   run.ID,
						"progress": run.Progress,
						"status":   run.Status,
					})
				}
			}
		}
	}
}
