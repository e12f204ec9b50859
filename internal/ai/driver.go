package ai

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/swscloud/reviewd/internal/docmodel"
	"github.com/swscloud/reviewd/internal/metrics"
	"github.com/swscloud/reviewd/internal/observability"
)

const (
	batchSizeMin = 5
	batchSizeMax = 7
	// maxAttempts bounds requests per batch; a batch that still fails is
	// requeued once with the rest of the failed rules.
	maxAttempts = 3
)

// Driver fans checkpoint batches out to the chat endpoint, bounded by the
// configured concurrency, and aggregates the mapped findings.
type Driver struct {
	client      ChatClient
	rec         metrics.Recorder
	concurrency int
	batchSize   int
}

// NewDriver builds a driver. concurrency is clamped to at least 1; the
// batch size defaults to 6 rules per request.
func NewDriver(client ChatClient, rec metrics.Recorder, concurrency int) *Driver {
	if concurrency < 1 {
		concurrency = 1
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Driver{client: client, rec: rec, concurrency: concurrency, batchSize: 6}
}

// Result aggregates one run's findings.
type Result struct {
	Issues      []MappedIssue
	Deposits    []RuleDeposit
	FailedRules []docmodel.Checkpoint
}

func batchRules(rules []docmodel.Checkpoint, size int) [][]docmodel.Checkpoint {
	if len(rules) == 0 {
		return nil
	}
	if size < batchSizeMin {
		size = batchSizeMin
	}
	if size > batchSizeMax {
		size = batchSizeMax
	}
	var out [][]docmodel.Checkpoint
	for i := 0; i < len(rules); i += size {
		end := i + size
		if end > len(rules) {
			end = len(rules)
		}
		out = append(out, rules[i:end])
	}
	return out
}

// Run reviews the document against the checkpoints. progress receives a
// 0..100 percentage as batches complete; rules from batches that failed
// every attempt are requeued for one more round.
func (d *Driver) Run(ctx context.Context, checkpoints []docmodel.Checkpoint, idx *DocIndex, progress func(int)) (*Result, error) {
	if progress == nil {
		progress = func(int) {}
	}
	res := &Result{}
	if len(checkpoints) == 0 || len(idx.Blocks) == 0 {
		progress(100)
		return res, nil
	}

	doc := AssembleDoc(idx.Blocks, idx.PageByBlock)
	ruleCategory := make(map[string]string, len(checkpoints))
	for _, cp := range checkpoints {
		ruleCategory[cp.Code] = cp.ReviewCategory
	}

	batches := batchRules(checkpoints, d.batchSize)
	// Progress is measured against the first round's batch count; requeued
	// batches never move it backwards.
	total := len(batches)
	completed := 0

	failed, err := d.runRound(ctx, doc, batches, idx, ruleCategory, res, &completed, total, progress)
	if err != nil {
		return nil, err
	}
	if len(failed) > 0 {
		observability.Info(ctx, "requeueing failed rules", slog.Int("rules", len(failed)))
		failed, err = d.runRound(ctx, doc, batchRules(failed, d.batchSize), idx, ruleCategory, res, &completed, total, progress)
		if err != nil {
			return nil, err
		}
		res.FailedRules = failed
	}
	progress(100)
	return res, nil
}

func (d *Driver) runRound(ctx context.Context, doc string, batches [][]docmodel.Checkpoint, idx *DocIndex, ruleCategory map[string]string, res *Result, completed *int, total int, progress func(int)) ([]docmodel.Checkpoint, error) {
	n := len(batches)
	if n == 0 {
		return nil, nil
	}

	var mu sync.Mutex
	var failed []docmodel.Checkpoint

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, batch := range batches {
		g.Go(func() error {
			issues, deposits, err := d.runBatch(gctx, doc, batch, i, n, idx, ruleCategory)

			mu.Lock()
			defer mu.Unlock()
			*completed++
			pct := *completed * 100 / total
			if pct > 100 {
				pct = 100
			}
			progress(pct)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				d.rec.IncAIBatch(metrics.ResultFatal)
				observability.Warn(gctx, "ai batch failed",
					slog.Int("batch", i+1), slog.Int("total", n), slog.Any("error", err))
				failed = append(failed, batch...)
				return nil
			}
			d.rec.IncAIBatch(metrics.ResultSuccess)
			res.Issues = append(res.Issues, issues...)
			res.Deposits = append(res.Deposits, deposits...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return failed, nil
}

// runBatch performs one batch with bounded retries. A response that is not
// parseable JSON gets one extra request without the json_object hint before
// the attempt counts as failed.
func (d *Driver) runBatch(ctx context.Context, doc string, batch []docmodel.Checkpoint, index, total int, idx *DocIndex, ruleCategory map[string]string) ([]MappedIssue, []RuleDeposit, error) {
	user := BuildBatchUserMessage(doc, batch, index, total)

	var issues []MappedIssue
	var deposits []RuleDeposit
	backoff := retry.WithMaxRetries(maxAttempts-1, retry.NewExponential(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		raw, err := d.client.ChatJSON(ctx, systemPrompt, user, true)
		if err != nil {
			return retry.RetryableError(err)
		}
		issues, deposits, err = ParseBatchResponse(raw, idx, ruleCategory)
		if err == nil {
			return nil
		}
		raw, rerr := d.client.ChatJSON(ctx, systemPrompt, user, false)
		if rerr != nil {
			return retry.RetryableError(rerr)
		}
		issues, deposits, err = ParseBatchResponse(raw, idx, ruleCategory)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return issues, deposits, nil
}
