package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/swscloud/reviewd/internal/docmodel"
	rerr "github.com/swscloud/reviewd/internal/errors"
)

// CreateRun inserts a PENDING review run.
func (s *Store) CreateRun(ctx context.Context, versionID int64, runType docmodel.RunType) (*docmodel.ReviewRun, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO review_runs (version_id, run_type, status, progress) VALUES (?, ?, ?, 0)`,
		versionID, runType, docmodel.RunPending)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetRun(ctx, id)
}

// GetRun loads a review run by id.
func (s *Store) GetRun(ctx context.Context, id int64) (*docmodel.ReviewRun, error) {
	var r docmodel.ReviewRun
	err := s.db.GetContext(ctx, &r, `SELECT * FROM review_runs WHERE id = ?`, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, rerr.Newf(rerr.CategoryNotFound, rerr.SeverityError, "run %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &r, nil
}

// ListRuns returns a version's runs newest first.
func (s *Store) ListRuns(ctx context.Context, versionID int64) ([]docmodel.ReviewRun, error) {
	var out []docmodel.ReviewRun
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM review_runs WHERE version_id = ? ORDER BY id DESC`, versionID)
	return out, err
}

// UpdateRunStatus transitions a run. started_at is stamped once on the first
// move to RUNNING; finished_at on any terminal status.
func (s *Store) UpdateRunStatus(ctx context.Context, id int64, status docmodel.RunStatus, errMsg string) error {
	q := `UPDATE review_runs SET status = ?, error_message = ?`
	switch status {
	case docmodel.RunRunning:
		q += `, started_at = COALESCE(started_at, CURRENT_TIMESTAMP)`
	case docmodel.RunDone, docmodel.RunFailed, docmodel.RunCanceled:
		q += `, finished_at = CURRENT_TIMESTAMP`
	}
	q += ` WHERE id = ?`
	_, err := s.db.ExecContext(ctx, q, status, rerr.Truncate(errMsg, 2000), id)
	return err
}

// UpdateRunProgress sets the run's 0..100 progress.
func (s *Store) UpdateRunProgress(ctx context.Context, id int64, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE review_runs SET progress = ? WHERE id = ?`, progress, id)
	return err
}
