package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/swscloud/reviewd/internal/docmodel"
	rerr "github.com/swscloud/reviewd/internal/errors"
)

type issueRow struct {
	docmodel.Issue
	EvidenceBlockIDsJSON string `db:"evidence_block_ids"`
	EvidenceQuotesJSON   string `db:"evidence_quotes"`
	AnchorRectsJSON      string `db:"anchor_rects"`
}

func (r *issueRow) toIssue() docmodel.Issue {
	iss := r.Issue
	_ = json.Unmarshal([]byte(r.EvidenceBlockIDsJSON), &iss.EvidenceBlockIDs)
	_ = json.Unmarshal([]byte(r.EvidenceQuotesJSON), &iss.EvidenceQuotes)
	_ = json.Unmarshal([]byte(r.AnchorRectsJSON), &iss.AnchorRects)
	return iss
}

func marshalList(v any) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return "[]"
	}
	return string(b)
}

// InsertIssue persists an issue and returns its id. List fields are stored
// as JSON text.
func (s *Store) InsertIssue(ctx context.Context, iss *docmodel.Issue) (int64, error) {
	if iss.Status == "" {
		iss.Status = docmodel.IssueNew
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO issues (version_id, run_id, issue_type, severity, title, description,
		                     suggestion, confidence, status, page_no, evidence_block_ids,
		                     evidence_quotes, anchor_rects, checkpoint_code, review_type)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		iss.VersionID, iss.RunID, iss.IssueType, iss.Severity, iss.Title, iss.Description,
		iss.Suggestion, iss.Confidence, iss.Status, iss.PageNo,
		marshalList(iss.EvidenceBlockIDs), marshalList(iss.EvidenceQuotes),
		marshalList(iss.AnchorRects), iss.CheckpointCode, iss.ReviewType)
	if err != nil {
		return 0, fmt.Errorf("insert issue: %w", err)
	}
	return res.LastInsertId()
}

// GetIssue loads an issue by id.
func (s *Store) GetIssue(ctx context.Context, id int64) (*docmodel.Issue, error) {
	var row issueRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM issues WHERE id = ?`, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, rerr.Newf(rerr.CategoryNotFound, rerr.SeverityError, "issue %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	iss := row.toIssue()
	return &iss, nil
}

// IssueFilter narrows ListIssues. Zero values match everything.
type IssueFilter struct {
	Status    docmodel.IssueStatus
	Severity  docmodel.Severity
	IssueType string
	RunID     int64
}

// ListIssues returns a version's issues with optional filters, ordered by
// page then id.
func (s *Store) ListIssues(ctx context.Context, versionID int64, f IssueFilter) ([]docmodel.Issue, error) {
	var conds []string
	args := []any{versionID}
	conds = append(conds, "version_id = ?")
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.Severity != "" {
		conds = append(conds, "severity = ?")
		args = append(args, f.Severity)
	}
	if f.IssueType != "" {
		conds = append(conds, "issue_type = ?")
		args = append(args, f.IssueType)
	}
	if f.RunID != 0 {
		conds = append(conds, "run_id = ?")
		args = append(args, f.RunID)
	}

	var rows []issueRow
	q := `SELECT * FROM issues WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY page_no IS NULL, page_no, id`
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	out := make([]docmodel.Issue, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toIssue())
	}
	return out, nil
}

// UpdateIssueStatus sets the triage status.
func (s *Store) UpdateIssueStatus(ctx context.Context, id int64, status docmodel.IssueStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE issues SET status = ? WHERE id = ?`, status, id)
	return err
}

// InsertIssueAction appends to the issue action log.
func (s *Store) InsertIssueAction(ctx context.Context, a *docmodel.IssueAction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO issue_actions (issue_id, action, comment, user_id) VALUES (?, ?, ?, ?)`,
		a.IssueID, a.Action, a.Comment, a.UserID)
	return err
}

// ListIssueActions returns an issue's action log oldest first.
func (s *Store) ListIssueActions(ctx context.Context, issueID int64) ([]docmodel.IssueAction, error) {
	var out []docmodel.IssueAction
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM issue_actions WHERE issue_id = ? ORDER BY id`, issueID)
	return out, err
}
