package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swscloud/reviewd/internal/docmodel"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(t.Context(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// seedVersion builds the user/project/document chain and returns a fresh
// UPLOADED version.
func seedVersion(t *testing.T, st *Store) *docmodel.Version {
	t.Helper()
	ctx := t.Context()
	u, err := st.CreateUser(ctx, "owner@example.com", "hash", "负责人")
	require.NoError(t, err)
	p, err := st.CreateProject(ctx, "高速公路项目", u.ID)
	require.NoError(t, err)
	d, err := st.CreateDocument(ctx, p.ID, "水土保持方案报告书")
	require.NoError(t, err)
	v, err := st.CreateVersion(ctx, d.ID, docmodel.VersionUploaded)
	require.NoError(t, err)
	return v
}

func TestCreateVersionNumbering(t *testing.T) {
	st := newTestStore(t)
	ctx := t.Context()
	v1 := seedVersion(t, st)
	assert.Equal(t, 1, v1.VersionNo)
	assert.Equal(t, docmodel.VersionUploaded, v1.Status)

	v2, err := st.CreateVersion(ctx, v1.DocumentID, docmodel.VersionUploaded)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.VersionNo)

	list, err := st.ListVersions(ctx, v1.DocumentID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, v2.ID, list[0].ID)
}

func TestVersionProgressAndArtifacts(t *testing.T) {
	st := newTestStore(t)
	ctx := t.Context()
	v := seedVersion(t, st)

	require.NoError(t, st.UpdateVersionProgress(ctx, v.ID, docmodel.VersionProcessing, 40, "解析结构"))
	require.NoError(t, st.LinkArtifact(ctx, v.ID, "preview", "versions/1/preview.pdf"))
	assert.Error(t, st.LinkArtifact(ctx, v.ID, "thumbnail", "x"))

	got, err := st.GetVersion(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, docmodel.VersionProcessing, got.Status)
	assert.Equal(t, 40, got.Progress)
	assert.Equal(t, "解析结构", got.CurrentStep)
	assert.Equal(t, "versions/1/preview.pdf", got.PreviewKey)
}

func TestVersionTransitions(t *testing.T) {
	st := newTestStore(t)
	ctx := t.Context()
	v := seedVersion(t, st)

	require.NoError(t, st.UpdateVersionProgress(ctx, v.ID, docmodel.VersionProcessing, 10, ""))
	require.NoError(t, st.CancelVersion(ctx, v.ID))
	// Canceling twice is not a valid transition.
	assert.Error(t, st.CancelVersion(ctx, v.ID))

	require.NoError(t, st.ResetForReprocess(ctx, v.ID))
	got, err := st.GetVersion(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, docmodel.VersionProcessing, got.Status)
	assert.Equal(t, 0, got.Progress)

	// A PROCESSING version cannot be deleted or reprocessed again.
	assert.Error(t, st.DeleteVersion(ctx, v.ID))
	assert.Error(t, st.ResetForReprocess(ctx, v.ID))
}

func TestFailVersionTruncatesMessage(t *testing.T) {
	st := newTestStore(t)
	ctx := t.Context()
	v := seedVersion(t, st)

	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'x'
	}
	require.NoError(t, st.FailVersion(ctx, v.ID, string(long)))
	got, err := st.GetVersion(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, docmodel.VersionFailed, got.Status)
	assert.LessOrEqual(t, len(got.ErrorMessage), 2000)
}

func TestGetVersionNotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetVersion(t.Context(), 999)
	assert.Error(t, err)
}

func TestStaleProcessingVersions(t *testing.T) {
	st := newTestStore(t)
	ctx := t.Context()
	v := seedVersion(t, st)
	require.NoError(t, st.UpdateVersionProgress(ctx, v.ID, docmodel.VersionProcessing, 10, ""))

	ids, err := st.StaleProcessingVersions(ctx, 60)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = st.DB().ExecContext(ctx,
		`UPDATE versions SET updated_at = datetime('now', '-120 minutes') WHERE id = ?`, v.ID)
	require.NoError(t, err)

	ids, err = st.StaleProcessingVersions(ctx, 60)
	require.NoError(t, err)
	assert.Equal(t, []int64{v.ID}, ids)
}

func TestIssueRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := t.Context()
	v := seedVersion(t, st)
	run, err := st.CreateRun(ctx, v.ID, docmodel.RunRule)
	require.NoError(t, err)

	page := 12
	id, err := st.InsertIssue(ctx, &docmodel.Issue{
		VersionID:        v.ID,
		RunID:            &run.ID,
		IssueType:        "SUM_MISMATCH_ROW",
		Severity:         docmodel.SeverityS1,
		Title:            "合计行不平",
		Description:      "3 + 4 = 7 ≠ 9",
		Suggestion:       "核对分项数值",
		Confidence:       0.98,
		PageNo:           &page,
		EvidenceBlockIDs: []int64{10, 11},
		EvidenceQuotes:   []string{"合计 9"},
		AnchorRects:      []docmodel.Rect{{X0: 1, Y0: 2, X1: 3, Y1: 4}},
		CheckpointCode:   "SUM_ROW",
		ReviewType:       docmodel.ReviewTech,
	})
	require.NoError(t, err)

	got, err := st.GetIssue(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, docmodel.IssueNew, got.Status)
	assert.Equal(t, []int64{10, 11}, got.EvidenceBlockIDs)
	assert.Equal(t, []string{"合计 9"}, got.EvidenceQuotes)
	require.Len(t, got.AnchorRects, 1)
	assert.Equal(t, 4.0, got.AnchorRects[0].Y1)
	require.NotNil(t, got.PageNo)
	assert.Equal(t, 12, *got.PageNo)
}

func TestListIssuesFilters(t *testing.T) {
	st := newTestStore(t)
	ctx := t.Context()
	v := seedVersion(t, st)

	mk := func(typ string, sev docmodel.Severity) int64 {
		id, err := st.InsertIssue(ctx, &docmodel.Issue{
			VersionID: v.ID, IssueType: typ, Severity: sev, Title: typ,
			ReviewType: docmodel.ReviewTech,
		})
		require.NoError(t, err)
		return id
	}
	a := mk("FORMAT", docmodel.SeverityS3)
	mk("CONSISTENCY", docmodel.SeverityS1)

	all, err := st.ListIssues(ctx, v.ID, IssueFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	s1, err := st.ListIssues(ctx, v.ID, IssueFilter{Severity: docmodel.SeverityS1})
	require.NoError(t, err)
	require.Len(t, s1, 1)
	assert.Equal(t, "CONSISTENCY", s1[0].IssueType)

	require.NoError(t, st.UpdateIssueStatus(ctx, a, docmodel.IssueIgnored))
	ignored, err := st.ListIssues(ctx, v.ID, IssueFilter{Status: docmodel.IssueIgnored})
	require.NoError(t, err)
	require.Len(t, ignored, 1)
	assert.Equal(t, a, ignored[0].ID)
}

func TestIssueActions(t *testing.T) {
	st := newTestStore(t)
	ctx := t.Context()
	v := seedVersion(t, st)
	id, err := st.InsertIssue(ctx, &docmodel.Issue{
		VersionID: v.ID, IssueType: "FORMAT", Severity: docmodel.SeverityS3,
		Title: "标点混用", ReviewType: docmodel.ReviewForm,
	})
	require.NoError(t, err)

	uid := int64(1)
	require.NoError(t, st.InsertIssueAction(ctx, &docmodel.IssueAction{
		IssueID: id, Action: "ACCEPT", Comment: "确认", UserID: &uid,
	}))
	require.NoError(t, st.InsertIssueAction(ctx, &docmodel.IssueAction{
		IssueID: id, Action: "COMMENT", Comment: "已通知编制单位",
	}))

	actions, err := st.ListIssueActions(ctx, id)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, "ACCEPT", actions[0].Action)
	assert.Equal(t, "COMMENT", actions[1].Action)
}

func TestMembership(t *testing.T) {
	st := newTestStore(t)
	ctx := t.Context()
	owner, err := st.CreateUser(ctx, "owner@example.com", "hash", "负责人")
	require.NoError(t, err)
	p, err := st.CreateProject(ctx, "项目甲", owner.ID)
	require.NoError(t, err)

	role, err := st.MemberRole(ctx, p.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, docmodel.RoleOwner, role)

	guest, err := st.CreateUser(ctx, "guest@example.com", "hash", "评审员")
	require.NoError(t, err)
	role, err = st.MemberRole(ctx, p.ID, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, docmodel.Role(""), role)

	require.NoError(t, st.SetMember(ctx, p.ID, guest.ID, docmodel.RoleViewer))
	require.NoError(t, st.SetMember(ctx, p.ID, guest.ID, docmodel.RoleReviewer))
	role, err = st.MemberRole(ctx, p.ID, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, docmodel.RoleReviewer, role)

	projects, err := st.ListProjectsForUser(ctx, guest.ID)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, p.ID, projects[0].ID)
}

func TestUpsertFactLastWriteWins(t *testing.T) {
	st := newTestStore(t)
	ctx := t.Context()
	v := seedVersion(t, st)

	num := 100.0
	f := &docmodel.Fact{VersionID: v.ID, FactKey: "挖方", ValueNum: &num, Scope: "项目整体", Confidence: 0.8}
	require.NoError(t, st.UpsertFact(ctx, f))

	num2 := 120.0
	f.ValueNum = &num2
	require.NoError(t, st.UpsertFact(ctx, f))

	facts, err := st.ListFacts(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	require.NotNil(t, facts[0].ValueNum)
	assert.Equal(t, 120.0, *facts[0].ValueNum)

	require.NoError(t, st.DeleteFacts(ctx, v.ID))
	facts, err = st.ListFacts(ctx, v.ID)
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestUpsertCheckpoint(t *testing.T) {
	st := newTestStore(t)
	ctx := t.Context()

	cp := &docmodel.Checkpoint{
		Code: "SUM_ROW", Name: "行合计校验", EngineType: docmodel.EngineRule,
		ReviewCategory: "TECH", Enabled: true, RuleConfig: `{"executor":"sum_mismatch"}`,
	}
	require.NoError(t, st.UpsertCheckpoint(ctx, cp))

	cp.Name = "行合计校验（改）"
	cp.Enabled = false
	require.NoError(t, st.UpsertCheckpoint(ctx, cp))

	all, err := st.ListCheckpoints(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "行合计校验（改）", all[0].Name)
	assert.False(t, all[0].Enabled)

	enabled, err := st.ListEnabledCheckpoints(ctx, docmodel.EngineRule)
	require.NoError(t, err)
	assert.Empty(t, enabled)
}

func TestRunLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := t.Context()
	v := seedVersion(t, st)

	run, err := st.CreateRun(ctx, v.ID, docmodel.RunMixed)
	require.NoError(t, err)
	assert.Equal(t, docmodel.RunPending, run.Status)

	require.NoError(t, st.UpdateRunStatus(ctx, run.ID, docmodel.RunRunning, ""))
	require.NoError(t, st.UpdateRunProgress(ctx, run.ID, 55))
	require.NoError(t, st.UpdateRunStatus(ctx, run.ID, docmodel.RunDone, ""))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, docmodel.RunDone, got.Status)
	assert.Equal(t, 55, got.Progress)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.FinishedAt)

	runs, err := st.ListRuns(ctx, v.ID)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestWipeDerived(t *testing.T) {
	st := newTestStore(t)
	ctx := t.Context()
	v := seedVersion(t, st)

	nodeID, err := st.InsertOutlineNode(ctx, &docmodel.OutlineNode{
		VersionID: v.ID, NodeNo: "1", Title: "综合说明", Level: 1,
	})
	require.NoError(t, err)
	blockID, err := st.InsertBlock(ctx, &docmodel.Block{
		VersionID: v.ID, OutlineNodeID: &nodeID, BlockType: docmodel.BlockPara,
		OrderIndex: 0, Text: "正文",
	})
	require.NoError(t, err)
	require.NoError(t, st.InsertAnchors(ctx, []docmodel.PageAnchor{
		{BlockID: blockID, PageNo: 1, Confidence: 0.9},
	}))

	require.NoError(t, st.WipeDerived(ctx, v.ID))

	blocks, err := st.ListBlocks(ctx, v.ID)
	require.NoError(t, err)
	assert.Empty(t, blocks)
	outline, err := st.ListOutline(ctx, v.ID)
	require.NoError(t, err)
	assert.Empty(t, outline)
	anchors, err := st.ListAnchors(ctx, v.ID)
	require.NoError(t, err)
	assert.Empty(t, anchors)
}

func TestKBSourceLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	src, err := st.CreateKBSource(ctx, "GB 50433-2018", "NORM", "")
	require.NoError(t, err)
	assert.Equal(t, docmodel.KBProcessing, src.Status)

	require.NoError(t, st.SetKBSourceObjectKey(ctx, src.ID, "kb/1/gb50433.pdf"))
	require.NoError(t, st.UpdateKBSourceStatus(ctx, src.ID, docmodel.KBReady, ""))

	got, err := st.GetKBSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, "kb/1/gb50433.pdf", got.ObjectKey)
	assert.Equal(t, docmodel.KBReady, got.Status)

	require.NoError(t, st.InsertKBChunk(ctx, &docmodel.KBChunk{
		KBSourceID: src.ID, ChunkIndex: 0, Text: "第一章 总则", Meta: "{}", Hash: "h1",
	}))
	// Same hash is a no-op thanks to the unique constraint.
	require.NoError(t, st.InsertKBChunk(ctx, &docmodel.KBChunk{
		KBSourceID: src.ID, ChunkIndex: 1, Text: "第一章 总则", Meta: "{}", Hash: "h1",
	}))

	chunks, err := st.ListKBChunks(ctx, src.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)

	require.NoError(t, st.DeleteKBChunks(ctx, src.ID))
	chunks, err = st.ListKBChunks(ctx, src.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
