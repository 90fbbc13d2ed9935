package workspace

import (
	"context"

	"github.com/oklog/ulid/v2"

	"github.com/luinbytes/iconic/apperr"
	"github.com/luinbytes/iconic/bundle"
	"github.com/luinbytes/iconic/classify"
	"github.com/luinbytes/iconic/enrich"
	"github.com/luinbytes/iconic/fileops"
	"github.com/luinbytes/iconic/state"
)

// AnalysisReport is what Analyze did.
type AnalysisReport struct {
	RunID    string
	Result   classify.Result
	Enriched *enrich.Result
	Organize *fileops.Summary
}

// NewRunID returns a sortable id for log correlation.
func NewRunID() string {
	return ulid.Make().String()
}

// Analyze categorizes the selection (every bundle when empty). With
// download-images on, artwork is fetched afterwards; with auto-execute on
// and the run not cancelled, the library is organized.
func (w *Workspace) Analyze(ctx context.Context, selection []string) (AnalysisReport, error) {
	settings := w.Settings()
	report := AnalysisReport{RunID: NewRunID()}

	res, err := w.orch.Run(ctx, classify.Options{
		RunID:      report.RunID,
		Selection:  selection,
		Categories: w.Categories(),
		MultiTag:   settings.MultiTag,
	})
	report.Result = res
	if err != nil {
		return report, err
	}
	w.touch()
	if res.Cancelled {
		return report, nil
	}

	if settings.DownloadImages && w.enricher != nil {
		er, err := w.Enrich(ctx)
		if err != nil {
			w.log.Warn("Image enrichment failed: %v", err)
		} else {
			report.Enriched = &er
		}
	}

	if settings.AutoExecute {
		sum, err := w.Organize(ctx)
		if err != nil {
			return report, err
		}
		report.Organize = &sum
	}
	return report, nil
}

// StopAnalysis cancels a running analysis.
func (w *Workspace) StopAnalysis() bool {
	return w.orch.Stop()
}

func (w *Workspace) fileOptions() fileops.Options {
	s := w.Settings()
	return fileops.Options{MultiTag: s.MultiTag, Deduplicate: s.Deduplicate, DryRun: s.DryRun}
}

// beginFileOp refuses to start while files are moving or an analysis runs.
func (w *Workspace) beginFileOp() error {
	if w.orch.State() != classify.StateIdle {
		return apperr.NewPrecondition("analysis is running")
	}
	if !w.opMu.TryLock() {
		return apperr.NewPrecondition("a file operation is already running")
	}
	return nil
}

// Organize moves bundles into category folders and refreshes the view.
func (w *Workspace) Organize(ctx context.Context) (fileops.Summary, error) {
	if err := w.beginFileOp(); err != nil {
		return fileops.Summary{}, err
	}
	defer w.opMu.Unlock()

	opts := w.fileOptions()
	sum, err := w.engine.Organize(ctx, w.coll.All(), w.Leftovers(), opts)
	if err != nil {
		return sum, err
	}
	if err := w.afterFileOp(ctx, opts.DryRun); err != nil {
		return sum, err
	}
	if !opts.DryRun {
		w.markMoved(sum.Manifest)
	}
	return sum, nil
}

// Flatten moves every bundle to the root and refreshes the view.
func (w *Workspace) Flatten(ctx context.Context) (fileops.Summary, error) {
	if err := w.beginFileOp(); err != nil {
		return fileops.Summary{}, err
	}
	defer w.opMu.Unlock()

	opts := w.fileOptions()
	sum, err := w.engine.Flatten(ctx, w.coll.All(), w.Leftovers(), opts)
	if err != nil {
		return sum, err
	}
	if err := w.afterFileOp(ctx, opts.DryRun); err != nil {
		return sum, err
	}
	if !opts.DryRun {
		w.markMoved(sum.Manifest)
	}
	return sum, nil
}

// Revert undoes the last organize or flatten.
func (w *Workspace) Revert(ctx context.Context) (fileops.Summary, error) {
	if err := w.beginFileOp(); err != nil {
		return fileops.Summary{}, err
	}
	defer w.opMu.Unlock()

	sum, err := w.engine.Revert(ctx)
	if err != nil {
		return sum, err
	}
	return sum, w.afterFileOp(ctx, false)
}

func (w *Workspace) afterFileOp(ctx context.Context, dryRun bool) error {
	if dryRun {
		return nil
	}
	return w.Rescan(context.WithoutCancel(ctx))
}

// markMoved sets StatusMoved on every bundle found at a path the manifest
// wrote. Tags are kept.
func (w *Workspace) markMoved(m *state.Manifest) int {
	if m == nil {
		return 0
	}
	n := 0
	for _, mv := range m.Moves {
		_, ok := w.coll.Update(mv.NewPath, func(b bundle.Bundle) bundle.Bundle {
			b.Status = bundle.StatusMoved
			return b
		})
		if ok {
			n++
		}
	}
	return n
}

// Enrich fetches artwork for bundles without an image side file.
func (w *Workspace) Enrich(ctx context.Context) (enrich.Result, error) {
	if w.enricher == nil {
		return enrich.Result{}, apperr.NewPrecondition("image enrichment is not configured")
	}
	updated, res, err := w.enricher.Enrich(ctx, w.coll.All())
	if len(updated) > 0 {
		w.coll.Replace(updated...)
		w.touch()
	}
	w.log.Success("Images: %d fetched, %d linked, %d skipped, %d failed", res.Fetched, res.Attached, res.Repeats, res.Failed)
	return res, err
}

// SuggestCategories asks the oracle for a revised category list built from
// the current bundle names. The list is not applied.
func (w *Workspace) SuggestCategories(ctx context.Context) ([]string, error) {
	if w.suggester == nil {
		return nil, apperr.NewPrecondition("no oracle credential configured")
	}
	var names []string
	for _, b := range w.coll.All() {
		if !b.IsDuplicate {
			names = append(names, b.Name)
		}
	}
	current := w.Categories()
	list, err := w.suggester.SuggestCategories(ctx, names, current)
	if err != nil {
		w.log.Warn("Category suggestion failed, keeping the current list: %v", err)
		return current, nil
	}
	return list, nil
}
