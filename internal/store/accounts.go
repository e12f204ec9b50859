package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/swscloud/reviewd/internal/docmodel"
	rerr "github.com/swscloud/reviewd/internal/errors"
)

// CreateUser inserts a user account.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash, displayName string) (*docmodel.User, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, display_name) VALUES (?, ?, ?)`,
		email, passwordHash, displayName)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

// GetUser loads a user by id.
func (s *Store) GetUser(ctx context.Context, id int64) (*docmodel.User, error) {
	var u docmodel.User
	err := s.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = ?`, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, rerr.Newf(rerr.CategoryNotFound, rerr.SeverityError, "user %d not found", id)
	}
	return &u, err
}

// GetUserByEmail loads a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*docmodel.User, error) {
	var u docmodel.User
	err := s.db.GetContext(ctx, &u, `SELECT * FROM users WHERE email = ?`, email)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, rerr.New(rerr.CategoryNotFound, rerr.SeverityError, "user not found")
	}
	return &u, err
}

// CreateProject inserts a project and makes the owner a member.
func (s *Store) CreateProject(ctx context.Context, name string, ownerID int64) (*docmodel.Project, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO projects (name, owner_id) VALUES (?, ?)`, name, ownerID)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO project_members (project_id, user_id, role) VALUES (?, ?, ?)`,
		id, ownerID, docmodel.RoleOwner); err != nil {
		return nil, fmt.Errorf("insert owner membership: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	var p docmodel.Project
	err = s.db.GetContext(ctx, &p, `SELECT * FROM projects WHERE id = ?`, id)
	return &p, err
}

// GetProject loads a project by id.
func (s *Store) GetProject(ctx context.Context, id int64) (*docmodel.Project, error) {
	var p docmodel.Project
	err := s.db.GetContext(ctx, &p, `SELECT * FROM projects WHERE id = ?`, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, rerr.Newf(rerr.CategoryNotFound, rerr.SeverityError, "project %d not found", id)
	}
	return &p, err
}

// ListProjectsForUser returns the projects the user is a member of.
func (s *Store) ListProjectsForUser(ctx context.Context, userID int64) ([]docmodel.Project, error) {
	var out []docmodel.Project
	err := s.db.SelectContext(ctx, &out,
		`SELECT p.* FROM projects p JOIN project_members m ON m.project_id = p.id
		 WHERE m.user_id = ? ORDER BY p.id`, userID)
	return out, err
}

// SetMember adds or updates a project membership.
func (s *Store) SetMember(ctx context.Context, projectID, userID int64, role docmodel.Role) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO project_members (project_id, user_id, role) VALUES (?, ?, ?)
		 ON CONFLICT (project_id, user_id) DO UPDATE SET role = excluded.role`,
		projectID, userID, role)
	return err
}

// MemberRole returns the user's role in a project, or "" when not a member.
func (s *Store) MemberRole(ctx context.Context, projectID, userID int64) (docmodel.Role, error) {
	var role docmodel.Role
	err := s.db.GetContext(ctx, &role,
		`SELECT role FROM project_members WHERE project_id = ? AND user_id = ?`, projectID, userID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return role, err
}

// CreateDocument inserts a document under a project.
func (s *Store) CreateDocument(ctx context.Context, projectID int64, name string) (*docmodel.Document, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (project_id, name) VALUES (?, ?)`, projectID, name)
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetDocument(ctx, id)
}

// GetDocument loads a document by id.
func (s *Store) GetDocument(ctx context.Context, id int64) (*docmodel.Document, error) {
	var d docmodel.Document
	err := s.db.GetContext(ctx, &d, `SELECT * FROM documents WHERE id = ?`, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, rerr.Newf(rerr.CategoryNotFound, rerr.SeverityError, "document %d not found", id)
	}
	return &d, err
}

// ListDocuments returns a project's documents.
func (s *Store) ListDocuments(ctx context.Context, projectID int64) ([]docmodel.Document, error) {
	var out []docmodel.Document
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM documents WHERE project_id = ? ORDER BY id`, projectID)
	return out, err
}

// ProjectForVersion resolves the owning project of a version.
func (s *Store) ProjectForVersion(ctx context.Context, versionID int64) (int64, error) {
	var projectID int64
	err := s.db.GetContext(ctx, &projectID,
		`SELECT d.project_id FROM versions v JOIN documents d ON d.id = v.document_id WHERE v.id = ?`,
		versionID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return 0, rerr.Newf(rerr.CategoryNotFound, rerr.SeverityError, "version %d not found", versionID)
	}
	return projectID, err
}

// ProjectForRun resolves the owning project of a review run.
func (s *Store) ProjectForRun(ctx context.Context, runID int64) (int64, error) {
	var projectID int64
	err := s.db.GetContext(ctx, &projectID,
		`SELECT d.project_id FROM review_runs r
		 JOIN versions v ON v.id = r.version_id
		 JOIN documents d ON d.id = v.document_id WHERE r.id = ?`, runID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return 0, rerr.Newf(rerr.CategoryNotFound, rerr.SeverityError, "run %d not found", runID)
	}
	return projectID, err
}

// ProjectForIssue resolves the owning project of an issue.
func (s *Store) ProjectForIssue(ctx context.Context, issueID int64) (int64, error) {
	var projectID int64
	err := s.db.GetContext(ctx, &projectID,
		`SELECT d.project_id FROM issues i
		 JOIN versions v ON v.id = i.version_id
		 JOIN documents d ON d.id = v.document_id WHERE i.id = ?`, issueID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return 0, rerr.Newf(rerr.CategoryNotFound, rerr.SeverityError, "issue %d not found", issueID)
	}
	return projectID, err
}
