package runs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swscloud/reviewd/internal/docmodel"
	"github.com/swscloud/reviewd/internal/metrics"
	"github.com/swscloud/reviewd/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(t.Context(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return NewService(st, NewHub(), metrics.NoopRecorder{}, nil, 1, nil, nil), st
}

func seedIssue(t *testing.T, st *store.Store) int64 {
	t.Helper()
	ctx := t.Context()
	u, err := st.CreateUser(ctx, "o@example.com", "hash", "")
	require.NoError(t, err)
	p, err := st.CreateProject(ctx, "项目", u.ID)
	require.NoError(t, err)
	d, err := st.CreateDocument(ctx, p.ID, "方案")
	require.NoError(t, err)
	v, err := st.CreateVersion(ctx, d.ID, docmodel.VersionReady)
	require.NoError(t, err)
	id, err := st.InsertIssue(ctx, &docmodel.Issue{
		VersionID: v.ID, IssueType: "FORMAT", Severity: docmodel.SeverityS3,
		Title: "标点混用", ReviewType: docmodel.ReviewForm,
	})
	require.NoError(t, err)
	return id
}

func TestApplyIssueActionTransitions(t *testing.T) {
	svc, st := newTestService(t)
	ctx := t.Context()
	id := seedIssue(t, st)

	uid := int64(7)
	iss, err := svc.ApplyIssueAction(ctx, id, "accept", "确认问题", &uid)
	require.NoError(t, err)
	assert.Equal(t, docmodel.IssueAccepted, iss.Status)

	iss, err = svc.ApplyIssueAction(ctx, id, "FIX", "", nil)
	require.NoError(t, err)
	assert.Equal(t, docmodel.IssueFixed, iss.Status)

	iss, err = svc.ApplyIssueAction(ctx, id, "IGNORE", "误报", nil)
	require.NoError(t, err)
	assert.Equal(t, docmodel.IssueIgnored, iss.Status)

	actions, err := st.ListIssueActions(ctx, id)
	require.NoError(t, err)
	require.Len(t, actions, 3)
	assert.Equal(t, "ACCEPT", actions[0].Action)
	require.NotNil(t, actions[0].UserID)
	assert.Equal(t, uid, *actions[0].UserID)
}

func TestApplyIssueActionCommentKeepsStatus(t *testing.T) {
	svc, st := newTestService(t)
	ctx := t.Context()
	id := seedIssue(t, st)

	iss, err := svc.ApplyIssueAction(ctx, id, "COMMENT", "已反馈编制单位", nil)
	require.NoError(t, err)
	assert.Equal(t, docmodel.IssueNew, iss.Status)

	actions, err := st.ListIssueActions(ctx, id)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "已反馈编制单位", actions[0].Comment)
}

func TestApplyIssueActionValidation(t *testing.T) {
	svc, st := newTestService(t)
	ctx := t.Context()
	id := seedIssue(t, st)

	_, err := svc.ApplyIssueAction(ctx, id, "ESCALATE", "", nil)
	assert.Error(t, err)

	_, err = svc.ApplyIssueAction(ctx, 9999, "ACCEPT", "", nil)
	assert.Error(t, err)

	// Invalid actions must not be logged.
	actions, err := st.ListIssueActions(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, actions)
}
