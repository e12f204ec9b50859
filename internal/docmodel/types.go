// Package docmodel defines the persisted entities of the review engine:
// versions, outline nodes, blocks, tables, page anchors, facts, review runs,
// issues, checkpoints and knowledge-base sources.
package docmodel

import "time"

// VersionStatus tracks a document version through the ingestion pipeline.
type VersionStatus string

const (
	VersionUploaded   VersionStatus = "UPLOADED"
	VersionProcessing VersionStatus = "PROCESSING"
	VersionReady      VersionStatus = "READY"
	VersionDone       VersionStatus = "DONE"
	VersionFailed     VersionStatus = "FAILED"
	VersionCanceled   VersionStatus = "CANCELED"
)

// BlockType discriminates the content carried by a block.
type BlockType string

const (
	BlockHeading BlockType = "HEADING"
	BlockPara    BlockType = "PARA"
	BlockTable   BlockType = "TABLE"
)

// EngineType selects which executor family a checkpoint dispatches to.
type EngineType string

const (
	EngineRule EngineType = "RULE"
	EngineAI   EngineType = "AI"
)

// RunType is the engine mix requested for a review run.
type RunType string

const (
	RunRule  RunType = "RULE"
	RunAI    RunType = "AI"
	RunMixed RunType = "MIXED"
)

// RunStatus tracks a review run.
type RunStatus string

const (
	RunPending  RunStatus = "PENDING"
	RunRunning  RunStatus = "RUNNING"
	RunDone     RunStatus = "DONE"
	RunFailed   RunStatus = "FAILED"
	RunCanceled RunStatus = "CANCELED"
)

// Severity grades an issue.
type Severity string

const (
	SeverityS1   Severity = "S1"
	SeverityS2   Severity = "S2"
	SeverityS3   Severity = "S3"
	SeverityInfo Severity = "INFO"
)

// IssueStatus is the triage state of an issue.
type IssueStatus string

const (
	IssueNew      IssueStatus = "NEW"
	IssueAccepted IssueStatus = "ACCEPTED"
	IssueIgnored  IssueStatus = "IGNORED"
	IssueFixed    IssueStatus = "FIXED"
)

// ReviewType buckets issues for FORM/TECH reporting.
type ReviewType string

const (
	ReviewForm ReviewType = "FORM"
	ReviewTech ReviewType = "TECH"
)

// KBStatus tracks knowledge-base source indexing.
type KBStatus string

const (
	KBProcessing KBStatus = "PROCESSING"
	KBReady      KBStatus = "READY"
	KBFailed     KBStatus = "FAILED"
)

// Version is the unit of processing: one uploaded snapshot of a document.
type Version struct {
	ID           int64         `db:"id" json:"id"`
	DocumentID   int64         `db:"document_id" json:"document_id"`
	VersionNo    int           `db:"version_no" json:"version_no"`
	Status       VersionStatus `db:"status" json:"status"`
	Progress     int           `db:"progress" json:"progress"`
	CurrentStep  string        `db:"current_step" json:"current_step"`
	ErrorMessage string        `db:"error_message" json:"error_message,omitempty"`
	SourceKey    string        `db:"source_key" json:"source_key,omitempty"`
	PreviewKey   string        `db:"preview_key" json:"preview_key,omitempty"`
	StructureKey string        `db:"structure_key" json:"structure_key,omitempty"`
	PageMapKey   string        `db:"page_map_key" json:"page_map_key,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// OutlineNode is one heading in a version's outline tree.
type OutlineNode struct {
	ID         int64  `db:"id" json:"id"`
	VersionID  int64  `db:"version_id" json:"version_id"`
	NodeNo     string `db:"node_no" json:"node_no"`
	Title      string `db:"title" json:"title"`
	Level      int    `db:"level" json:"level"`
	ParentID   *int64 `db:"parent_id" json:"parent_id,omitempty"`
	OrderIndex int    `db:"order_index" json:"order_index"`
}

// Block is an ordered content unit. Exactly one of Text or TableID is
// populated depending on BlockType.
type Block struct {
	ID            int64     `db:"id" json:"id"`
	VersionID     int64     `db:"version_id" json:"version_id"`
	OutlineNodeID *int64    `db:"outline_node_id" json:"outline_node_id,omitempty"`
	BlockType     BlockType `db:"block_type" json:"block_type"`
	OrderIndex    int       `db:"order_index" json:"order_index"`
	Text          string    `db:"text" json:"text,omitempty"`
	TableID       *int64    `db:"table_id" json:"table_id,omitempty"`
}

// Table is a parsed source table.
type Table struct {
	ID            int64   `db:"id" json:"id"`
	VersionID     int64   `db:"version_id" json:"version_id"`
	OutlineNodeID *int64  `db:"outline_node_id" json:"outline_node_id,omitempty"`
	TableNo       *string `db:"table_no" json:"table_no,omitempty"`
	Title         *string `db:"title" json:"title,omitempty"`
	NRows         int     `db:"n_rows" json:"n_rows"`
	NCols         int     `db:"n_cols" json:"n_cols"`
}

// Cell is one table cell with its parsed numeric value when the text parses.
type Cell struct {
	ID       int64    `db:"id" json:"id"`
	TableID  int64    `db:"table_id" json:"table_id"`
	Row      int      `db:"row" json:"row"`
	Col      int      `db:"col" json:"col"`
	Text     string   `db:"text" json:"text"`
	NumValue *float64 `db:"num_value" json:"num_value,omitempty"`
	Unit     *string  `db:"unit" json:"unit,omitempty"`
}

// Rect is an axis-aligned rectangle in page points (or normalized 0..1).
type Rect struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// PageAnchor locates a block on a rendered page.
type PageAnchor struct {
	ID         int64   `db:"id" json:"id"`
	BlockID    int64   `db:"block_id" json:"block_id"`
	PageNo     int     `db:"page_no" json:"page_no"`
	X0         float64 `db:"x0" json:"x0"`
	Y0         float64 `db:"y0" json:"y0"`
	X1         float64 `db:"x1" json:"x1"`
	Y1         float64 `db:"y1" json:"y1"`
	NX0        float64 `db:"nx0" json:"nx0"`
	NY0        float64 `db:"ny0" json:"ny0"`
	NX1        float64 `db:"nx1" json:"nx1"`
	NY1        float64 `db:"ny1" json:"ny1"`
	Confidence float64 `db:"confidence" json:"confidence"`
}

// Rect returns the anchor rectangle in page points.
func (a PageAnchor) Rect() Rect { return Rect{a.X0, a.Y0, a.X1, a.Y1} }

// NormRect returns the anchor rectangle normalized to the page size.
func (a PageAnchor) NormRect() Rect { return Rect{a.NX0, a.NY0, a.NX1, a.NY1} }

// Fact is a normalized, scoped quantitative or textual statement extracted
// from the document. Unique per (version, fact key, scope).
type Fact struct {
	ID            int64    `db:"id" json:"id"`
	VersionID     int64    `db:"version_id" json:"version_id"`
	FactKey       string   `db:"fact_key" json:"fact_key"`
	ValueNum      *float64 `db:"value_num" json:"value_num,omitempty"`
	ValueText     *string  `db:"value_text" json:"value_text,omitempty"`
	Unit          *string  `db:"unit" json:"unit,omitempty"`
	Scope         string   `db:"scope" json:"scope"`
	SourceBlockID *int64   `db:"source_block_id" json:"source_block_id,omitempty"`
	SourceTableID *int64   `db:"source_table_id" json:"source_table_id,omitempty"`
	Confidence    float64  `db:"confidence" json:"confidence"`
}

// ReviewRun is one execution of the review over a version.
type ReviewRun struct {
	ID           int64      `db:"id" json:"id"`
	VersionID    int64      `db:"version_id" json:"version_id"`
	RunType      RunType    `db:"run_type" json:"run_type"`
	Status       RunStatus  `db:"status" json:"status"`
	Progress     int        `db:"progress" json:"progress"`
	StartedAt    *time.Time `db:"started_at" json:"started_at,omitempty"`
	FinishedAt   *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage string     `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// Issue is a surfaced finding with evidence and a suggested remediation.
// List-valued fields are persisted as JSON text.
type Issue struct {
	ID               int64       `db:"id" json:"id"`
	VersionID        int64       `db:"version_id" json:"version_id"`
	RunID            *int64      `db:"run_id" json:"run_id,omitempty"`
	IssueType        string      `db:"issue_type" json:"issue_type"`
	Severity         Severity    `db:"severity" json:"severity"`
	Title            string      `db:"title" json:"title"`
	Description      string      `db:"description" json:"description"`
	Suggestion       string      `db:"suggestion" json:"suggestion"`
	Confidence       float64     `db:"confidence" json:"confidence"`
	Status           IssueStatus `db:"status" json:"status"`
	PageNo           *int        `db:"page_no" json:"page_no,omitempty"`
	EvidenceBlockIDs []int64     `db:"-" json:"evidence_block_ids,omitempty"`
	EvidenceQuotes   []string    `db:"-" json:"evidence_quotes,omitempty"`
	AnchorRects      []Rect      `db:"-" json:"anchor_rects,omitempty"`
	CheckpointCode   string      `db:"checkpoint_code" json:"checkpoint_code"`
	ReviewType       ReviewType  `db:"review_type" json:"review_type"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
}

// IssueAction is one triage action applied to an issue.
type IssueAction struct {
	ID        int64     `db:"id" json:"id"`
	IssueID   int64     `db:"issue_id" json:"issue_id"`
	Action    string    `db:"action" json:"action"`
	Comment   string    `db:"comment" json:"comment,omitempty"`
	UserID    *int64    `db:"user_id" json:"user_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Checkpoint is a configured rule invocation shared by all runs.
type Checkpoint struct {
	ID                  int64      `db:"id" json:"id"`
	Code                string     `db:"code" json:"code"`
	Name                string     `db:"name" json:"name"`
	EngineType          EngineType `db:"engine_type" json:"engine_type"`
	ReviewCategory      string     `db:"review_category" json:"review_category,omitempty"`
	Enabled             bool       `db:"enabled" json:"enabled"`
	OrderIndex          *int       `db:"order_index" json:"order_index,omitempty"`
	TargetOutlinePrefix *string    `db:"target_outline_prefix" json:"target_outline_prefix,omitempty"`
	PromptTemplate      string     `db:"prompt_template" json:"prompt_template,omitempty"`
	RuleConfig          string     `db:"rule_config" json:"rule_config,omitempty"`
}

// KBSource is one knowledge-base document registered for indexing.
type KBSource struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	KBType       string    `db:"kb_type" json:"kb_type"`
	Status       KBStatus  `db:"status" json:"status"`
	ObjectKey    string    `db:"object_key" json:"object_key"`
	ErrorMessage string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// KBChunk is one overlapping text chunk of an indexed source.
type KBChunk struct {
	ID         int64  `db:"id" json:"id"`
	KBSourceID int64  `db:"kb_source_id" json:"kb_source_id"`
	ChunkIndex int    `db:"chunk_index" json:"chunk_index"`
	Text       string `db:"text" json:"text"`
	Meta       string `db:"meta" json:"meta"`
	Hash       string `db:"hash" json:"hash"`
}

// User is an account that may hold project memberships.
type User struct {
	ID           int64     `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	DisplayName  string    `db:"display_name" json:"display_name"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Role orders project permissions from weakest to strongest.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleReviewer Role = "reviewer"
	RoleEditor   Role = "editor"
	RoleOwner    Role = "owner"
)

var roleRank = map[Role]int{RoleViewer: 1, RoleReviewer: 2, RoleEditor: 3, RoleOwner: 4}

// AtLeast reports whether r grants the permissions of min.
func (r Role) AtLeast(min Role) bool { return roleRank[r] >= roleRank[min] }

// Project groups documents and memberships.
type Project struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	OwnerID   int64     `db:"owner_id" json:"owner_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ProjectMember binds a user to a project with a role.
type ProjectMember struct {
	ProjectID int64 `db:"project_id" json:"project_id"`
	UserID    int64 `db:"user_id" json:"user_id"`
	Role      Role  `db:"role" json:"role"`
}

// Document is an authored report owned by a project.
type Document struct {
	ID        int64     `db:"id" json:"id"`
	ProjectID int64     `db:"project_id" json:"project_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
