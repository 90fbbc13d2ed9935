package classify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/luinbytes/iconic/apperr"
	"github.com/luinbytes/iconic/bundle"
	"github.com/luinbytes/iconic/logbook"
	"github.com/luinbytes/iconic/rules"
)

// State of the orchestrator.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// Pacing defaults.
const (
	DefaultBatchSize     = 15
	DefaultCooldownTicks = 40
	DefaultTickInterval  = 100 * time.Millisecond
)

// Options controls one analysis run.
type Options struct {
	RunID      string
	Selection  []string // bundle ids; empty means every bundle
	Categories []string
	MultiTag   bool
}

// Result summarizes a run.
type Result struct {
	Targets     int
	MemoryHits  int
	Sent        int // bundles handed to the oracle in the main pass
	Categorized int // bundles tagged by the oracle
	Retried     int // bundles sent again in the relaxed pass
	Failed      int // bundles marked error
	Reset       int // bundles returned to pending
	Cancelled   bool
}

// Orchestrator drives the memory pass, the batched oracle pass and the
// relaxed retry pass over a collection.
type Orchestrator struct {
	coll   *bundle.Collection
	memory *rules.Memory
	oracle Oracle
	log    logbook.Logger

	BatchSize     int
	CooldownTicks int
	TickInterval  time.Duration

	// OnStatus receives short status lines such as "Cooldown (3s)".
	OnStatus func(status string)
	// OnProgress receives main pass progress.
	OnProgress func(done, total int)

	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
}

// NewOrchestrator creates an orchestrator. oracle may be nil when no
// credential is configured; Run then fails with a precondition error.
func NewOrchestrator(coll *bundle.Collection, memory *rules.Memory, oracle Oracle, log logbook.Logger) *Orchestrator {
	if log == nil {
		log = logbook.Discard
	}
	return &Orchestrator{
		coll:          coll,
		memory:        memory,
		oracle:        oracle,
		log:           log,
		BatchSize:     DefaultBatchSize,
		CooldownTicks: DefaultCooldownTicks,
		TickInterval:  DefaultTickInterval,
		sleep:         sleepContext,
		state:         StateIdle,
	}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Stop cancels a running analysis. It returns false when nothing runs.
func (o *Orchestrator) Stop() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateRunning {
		return false
	}
	o.state = StateStopping
	o.cancel()
	return true
}

func (o *Orchestrator) begin(ctx context.Context) (context.Context, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.oracle == nil {
		return nil, apperr.NewPrecondition("no oracle credential configured")
	}
	if o.state != StateIdle {
		return nil, apperr.NewPrecondition("analysis already " + string(o.state))
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.state = StateRunning
	o.cancel = cancel
	return runCtx, nil
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.state = StateIdle
}

// Run analyzes the selected bundles. Cancellation is reported through
// Result.Cancelled rather than an error; bundles left mid-analysis go back
// to pending.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Result, error) {
	ctx, err := o.begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer o.end()

	var targets []bundle.Bundle
	if len(opts.Selection) > 0 {
		targets = o.coll.Select(opts.Selection)
	} else {
		targets = o.coll.All()
	}
	res := Result{Targets: len(targets)}
	if opts.RunID != "" {
		o.log.Info("Analysis run %s: %d bundle(s) selected", opts.RunID, len(targets))
	}

	candidates := o.memoryPass(targets, opts.Categories, &res)
	if res.MemoryHits > 0 {
		o.log.Success("Applied %d learned rule(s)", res.MemoryHits)
	}
	if len(candidates) == 0 {
		if res.MemoryHits == 0 {
			o.log.Warn("No unique, unclassified plugins found to analyze.")
		}
		return res, nil
	}

	ids := make([]string, len(candidates))
	for i, b := range candidates {
		ids[i] = b.ID
		o.coll.Update(b.ID, func(cur bundle.Bundle) bundle.Bundle {
			cur.Status = bundle.StatusAnalyzing
			return cur
		})
	}
	res.Sent = len(ids)
	o.log.Action("Analyzing %d plugin(s) in batches of %d", len(ids), o.batchSize())

	retry, cancelled := o.mainPass(ctx, ids, opts, &res)
	if !cancelled && len(retry) > 0 {
		cancelled = o.retryPass(ctx, retry, opts, &res)
	}
	if cancelled {
		res.Cancelled = true
		res.Reset += o.resetAnalyzing(ids)
		o.log.Warn("Analysis stopped by user")
		return res, nil
	}

	o.log.Success("Analysis complete: %d categorized, %d failed, %d left pending", res.Categorized, res.Failed, res.Reset)
	return res, nil
}

// memoryPass applies strong rules and returns the bundles still needing
// the oracle.
func (o *Orchestrator) memoryPass(targets []bundle.Bundle, categories []string, res *Result) []bundle.Bundle {
	var candidates []bundle.Bundle
	for _, b := range targets {
		if b.IsDuplicate {
			continue
		}
		if o.memory != nil {
			if rule, ok := o.memory.Strong(b.Name); ok {
				tags := bundle.FilterKnown(rule.Tags, categories)
				if len(tags) > 0 {
					o.coll.Replace(b.WithTags(tags, bundle.StatusCategorized))
					res.MemoryHits++
					continue
				}
			}
		}
		if len(b.Tags) == 0 {
			candidates = append(candidates, b)
		}
	}
	return candidates
}

func (o *Orchestrator) mainPass(ctx context.Context, ids []string, opts Options, res *Result) ([]string, bool) {
	var retry []string
	batches := chunk(ids, o.batchSize())
	done := 0
	for i, batch := range batches {
		if ctx.Err() != nil {
			return retry, true
		}
		if i > 0 {
			if err := o.cooldown(ctx, "Cooldown"); err != nil {
				return retry, true
			}
		}
		o.status(fmt.Sprintf("Processing %d of %d", done+1, len(ids)))

		result, err := o.categorize(ctx, batch, opts, false)
		if ctx.Err() != nil {
			return retry, true
		}
		if err != nil {
			o.log.Error("Batch %d/%d failed: %v", i+1, len(batches), err)
			res.Failed += o.mark(batch, bundle.StatusError)
		} else {
			retry = append(retry, o.apply(batch, result, res)...)
		}

		done += len(batch)
		if o.OnProgress != nil {
			o.OnProgress(done, len(ids))
		}
	}
	return retry, false
}

func (o *Orchestrator) retryPass(ctx context.Context, ids []string, opts Options, res *Result) bool {
	o.log.Warn("Retrying %d unresolved plugin(s) with relaxed matching", len(ids))
	res.Retried = len(ids)
	for _, batch := range chunk(ids, o.batchSize()) {
		if ctx.Err() != nil {
			return true
		}
		if err := o.cooldown(ctx, "Retry Cooldown"); err != nil {
			return true
		}
		o.status("Retrying...")

		result, err := o.categorize(ctx, batch, opts, true)
		if ctx.Err() != nil {
			return true
		}
		if err != nil {
			o.log.Error("Retry batch failed: %v", err)
			res.Failed += o.mark(batch, bundle.StatusError)
			continue
		}
		for _, id := range o.apply(batch, result, res) {
			o.coll.Update(id, func(cur bundle.Bundle) bundle.Bundle {
				return cur.WithTags(nil, bundle.StatusPending)
			})
			res.Reset++
		}
	}
	return false
}

// categorize sends the names of the given bundles to the oracle.
func (o *Orchestrator) categorize(ctx context.Context, ids []string, opts Options, relaxed bool) (map[string][]string, error) {
	names := make([]string, 0, len(ids))
	for _, b := range o.coll.Select(ids) {
		names = append(names, b.Name)
	}
	return o.oracle.CategorizeBatch(ctx, Request{
		Names:      names,
		Categories: opts.Categories,
		MultiTag:   opts.MultiTag,
		Relaxed:    relaxed,
	})
}

// apply tags bundles from an oracle result and returns the ids it had no
// answer for.
func (o *Orchestrator) apply(ids []string, result map[string][]string, res *Result) []string {
	var missing []string
	for _, id := range ids {
		b, ok := o.coll.Get(id)
		if !ok {
			continue
		}
		tags := result[b.Name]
		if len(bundle.DedupeTags(tags)) == 0 {
			missing = append(missing, id)
			continue
		}
		o.coll.Replace(b.WithTags(tags, bundle.StatusCategorized))
		res.Categorized++
	}
	return missing
}

func (o *Orchestrator) mark(ids []string, status bundle.Status) int {
	n := 0
	for _, id := range ids {
		if _, ok := o.coll.Update(id, func(cur bundle.Bundle) bundle.Bundle {
			cur.Status = status
			return cur
		}); ok {
			n++
		}
	}
	return n
}

func (o *Orchestrator) resetAnalyzing(ids []string) int {
	n := 0
	for _, b := range o.coll.Select(ids) {
		if b.Status != bundle.StatusAnalyzing {
			continue
		}
		o.coll.Replace(b.WithTags(nil, bundle.StatusPending))
		n++
	}
	return n
}

// cooldown waits CooldownTicks ticks, reporting the remaining whole
// seconds every ten ticks.
func (o *Orchestrator) cooldown(ctx context.Context, label string) error {
	for s := o.CooldownTicks; s > 0; s-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s%10 == 0 {
			o.status(fmt.Sprintf("%s (%ds)", label, s/10))
		}
		if err := o.sleep(ctx, o.TickInterval); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) status(s string) {
	if o.OnStatus != nil {
		o.OnStatus(s)
	}
}

func (o *Orchestrator) batchSize() int {
	if o.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return o.BatchSize
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}
