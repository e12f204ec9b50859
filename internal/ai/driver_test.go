package ai

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swscloud/reviewd/internal/docmodel"
)

const emptyBatchJSON = `{"规则校验结果": [], "规则库沉淀清单": []}`

type chatReply struct {
	raw string
	err error
}

// scriptedChat serves canned replies in call order and records per-call
// state. Once the script runs out it keeps answering with an empty result.
type scriptedChat struct {
	mu          sync.Mutex
	script      []chatReply
	jsonModes   []bool
	inFlight    int
	maxInFlight int
	delay       time.Duration
}

func (c *scriptedChat) ChatJSON(_ context.Context, _, _ string, jsonMode bool) (string, error) {
	c.mu.Lock()
	c.jsonModes = append(c.jsonModes, jsonMode)
	c.inFlight++
	if c.inFlight > c.maxInFlight {
		c.maxInFlight = c.inFlight
	}
	r := chatReply{raw: emptyBatchJSON}
	if len(c.script) > 0 {
		r = c.script[0]
		c.script = c.script[1:]
	}
	c.mu.Unlock()

	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	c.inFlight--
	c.mu.Unlock()
	return r.raw, r.err
}

func testCheckpoints(n int) []docmodel.Checkpoint {
	cps := make([]docmodel.Checkpoint, 0, n)
	for i := 0; i < n; i++ {
		cps = append(cps, docmodel.Checkpoint{
			Code:           fmt.Sprintf("AI-%03d", i+1),
			Name:           fmt.Sprintf("规则%d", i+1),
			EngineType:     docmodel.EngineAI,
			ReviewCategory: string(docmodel.ReviewTech),
		})
	}
	return cps
}

func TestBatchRulesSizes(t *testing.T) {
	batches := batchRules(testCheckpoints(13), 6)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 6)
	assert.Len(t, batches[1], 6)
	assert.Len(t, batches[2], 1)

	// Out-of-range sizes clamp to the 5..7 window.
	assert.Len(t, batchRules(testCheckpoints(10), 1)[0], 5)
	assert.Len(t, batchRules(testCheckpoints(10), 99)[0], 7)
	assert.Nil(t, batchRules(nil, 6))
}

func TestDriverRunEmptyCheckpoints(t *testing.T) {
	chat := &scriptedChat{}
	d := NewDriver(chat, nil, 1)

	var prog []int
	res, err := d.Run(t.Context(), nil, testIndex(), func(p int) { prog = append(prog, p) })
	require.NoError(t, err)
	assert.Empty(t, res.Issues)
	assert.Equal(t, []int{100}, prog)
	assert.Empty(t, chat.jsonModes)
}

func TestDriverRunCollectsFindings(t *testing.T) {
	chat := &scriptedChat{script: []chatReply{
		{raw: `{"规则校验结果": [{"issue_title": "占地面积不一致", "issue_type": "一致性", "severity": "高"}], "规则库沉淀清单": [{"rule_id": "AI-001", "rule_summary": "同一数值全文一致"}]}`},
	}}
	d := NewDriver(chat, nil, 1)

	var prog []int
	res, err := d.Run(t.Context(), testCheckpoints(12), testIndex(), func(p int) { prog = append(prog, p) })
	require.NoError(t, err)

	require.Len(t, res.Issues, 1)
	assert.Equal(t, "CONSISTENCY", res.Issues[0].Draft.IssueType)
	assert.Equal(t, docmodel.SeverityS2, res.Issues[0].Draft.Severity)
	require.Len(t, res.Deposits, 1)
	assert.Equal(t, "AI-001", res.Deposits[0].RuleID)
	assert.Empty(t, res.FailedRules)

	assert.Equal(t, []int{50, 100, 100}, prog)
	assert.Equal(t, []bool{true, true}, chat.jsonModes)
}

func TestDriverRetriesWithoutJSONHint(t *testing.T) {
	chat := &scriptedChat{script: []chatReply{
		{raw: "抱歉，我无法以要求的格式输出。"},
		{raw: emptyBatchJSON},
	}}
	d := NewDriver(chat, nil, 1)

	res, err := d.Run(t.Context(), testCheckpoints(5), testIndex(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.FailedRules)
	// The unparseable first answer earns one free request without the
	// json_object hint; it succeeds, so the attempt never counts as failed.
	assert.Equal(t, []bool{true, false}, chat.jsonModes)
}

func TestDriverRequeuesFailedBatch(t *testing.T) {
	fail := chatReply{err: fmt.Errorf("model unavailable")}
	chat := &scriptedChat{script: []chatReply{fail, fail, fail}}
	d := NewDriver(chat, nil, 1)

	var prog []int
	res, err := d.Run(t.Context(), testCheckpoints(5), testIndex(), func(p int) { prog = append(prog, p) })
	require.NoError(t, err)

	// Three attempts in round one, then the requeued batch succeeds.
	assert.Len(t, chat.jsonModes, 4)
	assert.Empty(t, res.FailedRules)
	for i := 1; i < len(prog); i++ {
		assert.GreaterOrEqual(t, prog[i], prog[i-1])
	}
	assert.Equal(t, 100, prog[len(prog)-1])
}

func TestDriverReportsRulesFailingBothRounds(t *testing.T) {
	fail := chatReply{err: fmt.Errorf("model unavailable")}
	chat := &scriptedChat{script: []chatReply{fail, fail, fail, fail, fail, fail}}
	d := NewDriver(chat, nil, 1)

	var prog []int
	res, err := d.Run(t.Context(), testCheckpoints(5), testIndex(), func(p int) { prog = append(prog, p) })
	require.NoError(t, err)

	require.Len(t, res.FailedRules, 5)
	assert.Equal(t, "AI-001", res.FailedRules[0].Code)
	assert.Len(t, chat.jsonModes, 6)
	for i := 1; i < len(prog); i++ {
		assert.GreaterOrEqual(t, prog[i], prog[i-1])
	}
}

func TestDriverBoundsConcurrency(t *testing.T) {
	chat := &scriptedChat{delay: 50 * time.Millisecond}
	d := NewDriver(chat, nil, 2)

	var prog []int
	var mu sync.Mutex
	res, err := d.Run(t.Context(), testCheckpoints(18), testIndex(), func(p int) {
		mu.Lock()
		prog = append(prog, p)
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.Empty(t, res.FailedRules)

	assert.Equal(t, 2, chat.maxInFlight)
	assert.Equal(t, []int{33, 66, 100, 100}, prog)
}
