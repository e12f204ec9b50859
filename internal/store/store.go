// Package store is the relational persistence layer. It runs sqlx over a
// sqlite database and exposes typed repositories for every persisted entity.
package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

func init() {
	// The modernc driver registers as "sqlite"; sqlx needs its bind type.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Store wraps the database handle. All repository methods hang off it.
type Store struct {
	db *sqlx.DB
}

// Open opens (or creates) the database at path and bootstraps the schema.
// Use ":memory:" for tests.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path)
	if path == ":memory:" {
		dsn = ":memory:"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(1)
	if path == ":memory:" {
		// A second connection would see a different empty database.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for tests.
func (s *Store) DB() *sqlx.DB { return s.db }

// Migrate creates all tables if they do not exist. Idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS projects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		owner_id INTEGER NOT NULL REFERENCES users(id),
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS project_members (
		project_id INTEGER NOT NULL REFERENCES projects(id),
		user_id INTEGER NOT NULL REFERENCES users(id),
		role TEXT NOT NULL,
		PRIMARY KEY (project_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL REFERENCES projects(id),
		name TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS versions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id INTEGER NOT NULL REFERENCES documents(id),
		version_no INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'UPLOADED',
		progress INTEGER NOT NULL DEFAULT 0,
		current_step TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		source_key TEXT NOT NULL DEFAULT '',
		preview_key TEXT NOT NULL DEFAULT '',
		structure_key TEXT NOT NULL DEFAULT '',
		page_map_key TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (document_id, version_no)
	)`,
	`CREATE TABLE IF NOT EXISTS outline_nodes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version_id INTEGER NOT NULL REFERENCES versions(id),
		node_no TEXT NOT NULL,
		title TEXT NOT NULL,
		level INTEGER NOT NULL,
		parent_id INTEGER REFERENCES outline_nodes(id),
		order_index INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outline_version ON outline_nodes(version_id, order_index)`,
	`CREATE TABLE IF NOT EXISTS doc_tables (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version_id INTEGER NOT NULL REFERENCES versions(id),
		outline_node_id INTEGER REFERENCES outline_nodes(id),
		table_no TEXT,
		title TEXT,
		n_rows INTEGER NOT NULL,
		n_cols INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cells (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		table_id INTEGER NOT NULL REFERENCES doc_tables(id),
		row INTEGER NOT NULL,
		col INTEGER NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		num_value REAL,
		unit TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cells_table ON cells(table_id, row, col)`,
	`CREATE TABLE IF NOT EXISTS blocks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version_id INTEGER NOT NULL REFERENCES versions(id),
		outline_node_id INTEGER REFERENCES outline_nodes(id),
		block_type TEXT NOT NULL,
		order_index INTEGER NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		table_id INTEGER REFERENCES doc_tables(id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_blocks_version ON blocks(version_id, order_index)`,
	`CREATE TABLE IF NOT EXISTS page_anchors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		block_id INTEGER NOT NULL REFERENCES blocks(id),
		page_no INTEGER NOT NULL,
		x0 REAL NOT NULL, y0 REAL NOT NULL, x1 REAL NOT NULL, y1 REAL NOT NULL,
		nx0 REAL NOT NULL, ny0 REAL NOT NULL, nx1 REAL NOT NULL, ny1 REAL NOT NULL,
		confidence REAL NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_anchors_block ON page_anchors(block_id, confidence DESC)`,
	`CREATE TABLE IF NOT EXISTS facts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version_id INTEGER NOT NULL REFERENCES versions(id),
		fact_key TEXT NOT NULL,
		value_num REAL,
		value_text TEXT,
		unit TEXT,
		scope TEXT NOT NULL,
		source_block_id INTEGER REFERENCES blocks(id),
		source_table_id INTEGER REFERENCES doc_tables(id),
		confidence REAL NOT NULL DEFAULT 0,
		UNIQUE (version_id, fact_key, scope)
	)`,
	`CREATE TABLE IF NOT EXISTS review_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version_id INTEGER NOT NULL REFERENCES versions(id),
		run_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		progress INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMP,
		finished_at TIMESTAMP,
		error_message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS issues (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version_id INTEGER NOT NULL REFERENCES versions(id),
		run_id INTEGER REFERENCES review_runs(id),
		issue_type TEXT NOT NULL,
		severity TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		suggestion TEXT NOT NULL DEFAULT '',
		confidence REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'NEW',
		page_no INTEGER,
		evidence_block_ids TEXT NOT NULL DEFAULT '[]',
		evidence_quotes TEXT NOT NULL DEFAULT '[]',
		anchor_rects TEXT NOT NULL DEFAULT '[]',
		checkpoint_code TEXT NOT NULL DEFAULT '',
		review_type TEXT NOT NULL DEFAULT 'TECH',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_issues_version ON issues(version_id)`,
	`CREATE TABLE IF NOT EXISTS issue_actions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		issue_id INTEGER NOT NULL REFERENCES issues(id),
		action TEXT NOT NULL,
		comment TEXT NOT NULL DEFAULT '',
		user_id INTEGER REFERENCES users(id),
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS checkpoints (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		engine_type TEXT NOT NULL,
		review_category TEXT NOT NULL DEFAULT '',
		enabled INTEGER NOT NULL DEFAULT 1,
		order_index INTEGER,
		target_outline_prefix TEXT,
		prompt_template TEXT NOT NULL DEFAULT '',
		rule_config TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS kb_sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		kb_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PROCESSING',
		object_key TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS kb_chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kb_source_id INTEGER NOT NULL REFERENCES kb_sources(id),
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		meta TEXT NOT NULL DEFAULT '{}',
		hash TEXT NOT NULL,
		UNIQUE (kb_source_id, hash)
	)`,
}
