package runs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/swscloud/reviewd/internal/ai"
	"github.com/swscloud/reviewd/internal/docmodel"
	"github.com/swscloud/reviewd/internal/errors"
	"github.com/swscloud/reviewd/internal/metrics"
	"github.com/swscloud/reviewd/internal/norms"
	"github.com/swscloud/reviewd/internal/observability"
	"github.com/swscloud/reviewd/internal/review"
	"github.com/swscloud/reviewd/internal/store"
)

// formIssueTypes decides FORM vs TECH when a checkpoint carries no review
// category.
var formIssueTypes = map[string]bool{"FORMAT": true, "CONTENT": true}

// Service creates review runs and executes them in the background.
type Service struct {
	st            *store.Store
	reg           *review.Registry
	hub           *Hub
	pub           Publisher
	rec           metrics.Recorder
	chat          ai.ChatClient
	aiConcurrency int
	norms         *norms.Library

	mu      sync.Mutex
	cancels map[int64]context.CancelFunc
}

// NewService wires the run service. chat may be nil, which disables AI and
// MIXED runs; pub and lib may be nil.
func NewService(st *store.Store, hub *Hub, rec metrics.Recorder, chat ai.ChatClient, aiConcurrency int, pub Publisher, lib *norms.Library) *Service {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Service{
		st:            st,
		reg:           review.NewRegistry(),
		hub:           hub,
		pub:           pub,
		rec:           rec,
		chat:          chat,
		aiConcurrency: aiConcurrency,
		norms:         lib,
		cancels:       make(map[int64]context.CancelFunc),
	}
}

// Hub exposes the event hub for SSE handlers.
func (s *Service) Hub() *Hub { return s.hub }

// Start validates the version, records a run, and executes it in the
// background.
func (s *Service) Start(ctx context.Context, versionID int64, runType docmodel.RunType) (*docmodel.ReviewRun, error) {
	v, err := s.st.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if v.Status != docmodel.VersionReady && v.Status != docmodel.VersionDone {
		return nil, errors.Newf(errors.CategoryValidation, errors.SeverityError,
			"version %d is %s, review requires READY or DONE", versionID, v.Status)
	}
	if (runType == docmodel.RunAI || runType == docmodel.RunMixed) && s.chat == nil {
		return nil, errors.New(errors.CategoryConfig, errors.SeverityError, "AI review is not configured")
	}

	run, err := s.st.CreateRun(ctx, versionID, runType)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.cancels[run.ID] = cancel
	s.mu.Unlock()

	go s.execute(runCtx, run)
	return run, nil
}

// Cancel aborts a running run. Terminal runs are left untouched.
func (s *Service) Cancel(ctx context.Context, runID int64) error {
	run, err := s.st.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != docmodel.RunPending && run.Status != docmodel.RunRunning {
		return errors.Newf(errors.CategoryValidation, errors.SeverityError,
			"run %d is %s, only PENDING or RUNNING runs cancel", runID, run.Status)
	}
	s.mu.Lock()
	cancel := s.cancels[runID]
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (s *Service) finishCancel(runID int64) {
	s.mu.Lock()
	if cancel, ok := s.cancels[runID]; ok {
		cancel()
		delete(s.cancels, runID)
	}
	s.mu.Unlock()
}

func (s *Service) publish(runID int64, ev Event) {
	s.hub.Publish(runID, ev)
	if s.pub != nil {
		s.pub.Publish(runID, ev)
	}
}

func (s *Service) progress(ctx context.Context, runID int64, pct int) {
	if err := s.st.UpdateRunProgress(ctx, runID, pct); err != nil {
		observability.Warn(ctx, "update run progress failed", slog.Any("error", err))
	}
	s.publish(runID, Event{Name: "run_progress", Data: map[string]any{
		"run_id":   runID,
		"progress": pct,
		"status":   docmodel.RunRunning,
	}})
}

func (s *Service) execute(ctx context.Context, run *docmodel.ReviewRun) {
	defer s.finishCancel(run.ID)
	ctx = observability.WithRunID(observability.WithVersionID(ctx, run.VersionID), run.ID)
	start := time.Now()

	issueCount, err := s.run(ctx, run)

	status := docmodel.RunDone
	errMsg := ""
	switch {
	case ctx.Err() != nil:
		status = docmodel.RunCanceled
	case err != nil:
		status = docmodel.RunFailed
		errMsg = err.Error()
	}
	if uerr := s.st.UpdateRunStatus(context.WithoutCancel(ctx), run.ID, status, errMsg); uerr != nil {
		observability.Error(ctx, "finalize run failed", slog.Any("error", uerr))
	}
	s.rec.ObserveRunDuration(string(run.RunType), time.Since(start))
	s.publish(run.ID, Event{Name: "run_done", Data: map[string]any{
		"run_id":      run.ID,
		"status":      status,
		"issue_count": issueCount,
	}})
	observability.Info(ctx, "run finished",
		slog.String("status", string(status)),
		slog.Int("issues", issueCount),
		slog.Duration("took", time.Since(start)))

	if status == docmodel.RunDone {
		if uerr := s.st.UpdateVersionProgress(context.WithoutCancel(ctx), run.VersionID, docmodel.VersionDone, 100, "reviewed"); uerr != nil {
			observability.Warn(ctx, "mark version reviewed failed", slog.Any("error", uerr))
		}
	}
}

func (s *Service) run(ctx context.Context, run *docmodel.ReviewRun) (int, error) {
	if err := s.st.UpdateRunStatus(ctx, run.ID, docmodel.RunRunning, ""); err != nil {
		return 0, err
	}
	s.progress(ctx, run.ID, 0)

	rctx, err := review.BuildContext(ctx, s.st, run.VersionID)
	if err != nil {
		return 0, err
	}
	rctx.Norms = s.norms
	pageByBlock, err := s.pageMap(ctx, run.VersionID)
	if err != nil {
		return 0, err
	}

	count := 0
	ruleShare := 100
	if run.RunType == docmodel.RunMixed {
		ruleShare = 20
	}

	if run.RunType == docmodel.RunRule || run.RunType == docmodel.RunMixed {
		checkpoints, err := s.st.ListEnabledCheckpoints(ctx, docmodel.EngineRule)
		if err != nil {
			return count, err
		}
		drafts := review.RunCheckpoints(ctx, s.reg, rctx, checkpoints)
		n, err := s.insertRuleDrafts(ctx, run, drafts)
		count += n
		if err != nil {
			return count, err
		}
		s.progress(ctx, run.ID, ruleShare)
	}

	if run.RunType == docmodel.RunAI || run.RunType == docmodel.RunMixed {
		checkpoints, err := s.st.ListEnabledCheckpoints(ctx, docmodel.EngineAI)
		if err != nil {
			return count, err
		}
		idx := &ai.DocIndex{Blocks: rctx.Blocks, PageByBlock: pageByBlock}
		driver := ai.NewDriver(s.chat, s.rec, s.aiConcurrency)

		base := 0
		if run.RunType == docmodel.RunMixed {
			base = ruleShare
		}
		res, err := driver.Run(ctx, checkpoints, idx, func(pct int) {
			s.progress(ctx, run.ID, base+pct*(100-base)/100)
		})
		if err != nil {
			return count, err
		}
		n, err := s.insertAIIssues(ctx, run, res.Issues)
		count += n
		if err != nil {
			return count, err
		}
		if len(res.FailedRules) > 0 {
			observability.Warn(ctx, "rules failed after requeue", slog.Int("rules", len(res.FailedRules)))
		}
		for _, d := range res.Deposits {
			observability.Info(ctx, "rule deposit",
				slog.String("rule_id", d.RuleID), slog.String("summary", d.Summary))
		}
	}

	s.progress(ctx, run.ID, 100)
	return count, nil
}

// pageMap resolves each block to its best-confidence anchor page.
func (s *Service) pageMap(ctx context.Context, versionID int64) (map[int64]int, error) {
	anchors, err := s.st.ListAnchors(ctx, versionID)
	if err != nil {
		return nil, err
	}
	pages := make(map[int64]int)
	conf := make(map[int64]float64)
	for _, a := range anchors {
		if c, ok := conf[a.BlockID]; !ok || a.Confidence > c {
			conf[a.BlockID] = a.Confidence
			pages[a.BlockID] = a.PageNo
		}
	}
	return pages, nil
}

func (s *Service) insertRuleDrafts(ctx context.Context, run *docmodel.ReviewRun, drafts []review.AttributedDraft) (int, error) {
	count := 0
	for _, ad := range drafts {
		reviewType := docmodel.ReviewTech
		if ad.ReviewCategory == string(docmodel.ReviewForm) ||
			(ad.ReviewCategory == "" && formIssueTypes[ad.Draft.IssueType]) {
			reviewType = docmodel.ReviewForm
		}
		if err := s.insertIssue(ctx, run, ad.Draft, ad.CheckpointCode, reviewType); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (s *Service) insertAIIssues(ctx context.Context, run *docmodel.ReviewRun, issues []ai.MappedIssue) (int, error) {
	count := 0
	for _, m := range issues {
		if err := s.insertIssue(ctx, run, m.Draft, m.CheckpointCode, m.ReviewType); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// insertIssue persists one draft, back-filling the page and anchor rects
// from the first evidence block's best anchor when absent.
func (s *Service) insertIssue(ctx context.Context, run *docmodel.ReviewRun, d review.IssueDraft, checkpointCode string, reviewType docmodel.ReviewType) error {
	pageNo := d.PageNo
	rects := d.AnchorRects
	if (pageNo == nil || len(rects) == 0) && len(d.EvidenceBlockIDs) > 0 {
		anchor, err := s.st.BestAnchor(ctx, d.EvidenceBlockIDs[0])
		if err != nil {
			return err
		}
		if anchor != nil {
			if pageNo == nil {
				p := anchor.PageNo
				pageNo = &p
			}
			if len(rects) == 0 {
				rects = []docmodel.Rect{anchor.NormRect()}
			}
		}
	}

	iss := &docmodel.Issue{
		VersionID:        run.VersionID,
		RunID:            &run.ID,
		IssueType:        d.IssueType,
		Severity:         d.Severity,
		Title:            d.Title,
		Description:      d.Description,
		Suggestion:       d.Suggestion,
		Confidence:       d.Confidence,
		Status:           docmodel.IssueNew,
		PageNo:           pageNo,
		EvidenceBlockIDs: d.EvidenceBlockIDs,
		EvidenceQuotes:   d.EvidenceQuotes,
		AnchorRects:      rects,
		CheckpointCode:   checkpointCode,
		ReviewType:       reviewType,
	}
	if _, err := s.st.InsertIssue(ctx, iss); err != nil {
		return err
	}
	s.rec.IncIssue(string(d.Severity))
	return nil
}
