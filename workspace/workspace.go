// Package workspace owns the working set of bundles for one library root
// and wires the scanner, duplicate resolver, rule memory, orchestrator,
// file operation engine and persistence together.
package workspace

import (
	"context"
	"sync"
	"time"

	"github.com/luinbytes/iconic/bundle"
	"github.com/luinbytes/iconic/classify"
	"github.com/luinbytes/iconic/config"
	"github.com/luinbytes/iconic/dedupe"
	"github.com/luinbytes/iconic/enrich"
	"github.com/luinbytes/iconic/fileops"
	"github.com/luinbytes/iconic/logbook"
	"github.com/luinbytes/iconic/rules"
	"github.com/luinbytes/iconic/scan"
	"github.com/luinbytes/iconic/state"
	"github.com/luinbytes/iconic/storage"
)

// Options configures Open.
type Options struct {
	Provider storage.Provider

	// Oracle may be nil; analysis then fails with a precondition error.
	Oracle    classify.Oracle
	Suggester classify.Suggester
	Enricher  *enrich.Enricher

	// Categories is used when the root has no saved list.
	Categories    []string
	Settings      config.Settings
	AutosaveDelay time.Duration

	Log logbook.Logger
	// Progress receives fingerprinting progress.
	Progress func(done, total int)
}

// Workspace is the controller for one library root.
type Workspace struct {
	provider  storage.Provider
	store     *state.Store
	scanner   *scan.Scanner
	engine    *fileops.Engine
	orch      *classify.Orchestrator
	suggester classify.Suggester
	enricher  *enrich.Enricher
	autosave  *state.Autosaver
	log       logbook.Logger
	progress  func(done, total int)
	now       func() time.Time

	coll   *bundle.Collection
	memory *rules.Memory

	// opMu is held while files are being moved.
	opMu sync.Mutex

	mu         sync.RWMutex
	categories []string
	leftovers  []bundle.Leftover
	groups     []dedupe.Group
	settings   config.Settings
	canUndo    bool
}

// Open scans the root, fingerprints every bundle, restores the saved
// state and resolves duplicates.
func Open(ctx context.Context, opts Options) (*Workspace, error) {
	log := opts.Log
	if log == nil {
		log = logbook.Discard
	}
	delay := opts.AutosaveDelay
	if delay <= 0 {
		delay = state.DefaultAutosaveDelay
	}

	store := state.NewStore(opts.Provider)
	w := &Workspace{
		provider:  opts.Provider,
		store:     store,
		scanner:   scan.New(opts.Provider, log),
		engine:    fileops.New(opts.Provider, store, log),
		suggester: opts.Suggester,
		enricher:  opts.Enricher,
		log:       log,
		progress:  opts.Progress,
		now:       time.Now,
		coll:      bundle.NewCollection(nil),
		settings:  opts.Settings,
	}

	log.Info("Accessing library: %s", opts.Provider.Name())
	res, err := w.scanner.Scan(ctx)
	if err != nil {
		return nil, err
	}
	bundles := scan.Fingerprint(ctx, opts.Provider, res.Bundles, w.progress)

	saved, err := store.LoadState(ctx)
	if err != nil {
		log.Warn("Ignoring unreadable state file: %v", err)
		saved = nil
	}

	w.categories = w.initialCategories(saved, opts.Categories)
	var seed map[string]rules.Rule
	if saved != nil {
		seed = saved.ManualOverrides
		bundles = merge(bundles, state.Restore(bundles, saved))
		log.Success("Restored previous categorization state.")
	}
	w.memory = rules.NewMemory(seed)

	w.leftovers = res.Leftovers
	w.coll.Reset(w.resolveDuplicates(bundles))
	w.canUndo = store.HasManifest(ctx)

	w.orch = classify.NewOrchestrator(w.coll, w.memory, opts.Oracle, log)
	w.autosave = state.NewAutosaver(delay, w.saveNow, log)
	if opts.Oracle == nil {
		log.Warn("Running in manual mode (no API key, analysis disabled)")
	}
	return w, nil
}

func (w *Workspace) initialCategories(saved *state.Persisted, fallback []string) []string {
	if saved != nil && len(saved.Categories) > 0 {
		if list, err := bundle.ValidateCategories(saved.Categories); err == nil {
			return list
		}
		w.log.Warn("Saved category list is invalid, using the configured one")
	}
	if len(fallback) > 0 {
		return append([]string(nil), fallback...)
	}
	return append([]string(nil), bundle.DefaultCategories...)
}

// resolveDuplicates flags duplicates and renames survivors.
func (w *Workspace) resolveDuplicates(bundles []bundle.Bundle) []bundle.Bundle {
	w.log.Info("Resolving duplicates (best content + best name)...")
	patches, groups := dedupe.Resolve(bundles)
	w.mu.Lock()
	w.groups = groups
	w.mu.Unlock()
	if len(groups) > 0 {
		dups := 0
		for _, p := range patches {
			if p.IsDuplicate {
				dups++
			}
		}
		w.log.Action("Resolved %d duplicate group(s), %d bundle(s) flagged", len(groups), dups)
	}
	return merge(bundles, dedupe.Apply(bundles, patches))
}

// Rescan re-reads the root, keeping tags of bundles whose name survives.
func (w *Workspace) Rescan(ctx context.Context) error {
	w.log.Info("Refreshing view...")
	res, err := w.scanner.Scan(ctx)
	if err != nil {
		return err
	}
	bundles := scan.Fingerprint(ctx, w.provider, res.Bundles, w.progress)

	prev := state.Snapshot(w.now(), w.coll.All(), nil, nil)
	bundles = merge(bundles, state.Restore(bundles, &prev))

	w.mu.Lock()
	w.leftovers = res.Leftovers
	w.mu.Unlock()
	w.coll.Reset(w.resolveDuplicates(bundles))

	w.mu.Lock()
	w.canUndo = w.store.HasManifest(ctx)
	w.mu.Unlock()
	w.touch()
	return nil
}

// merge overlays updated copies onto bundles by id.
func merge(bundles, updated []bundle.Bundle) []bundle.Bundle {
	if len(updated) == 0 {
		return bundles
	}
	byID := make(map[string]bundle.Bundle, len(updated))
	for _, b := range updated {
		byID[b.ID] = b
	}
	out := make([]bundle.Bundle, len(bundles))
	for i, b := range bundles {
		if u, ok := byID[b.ID]; ok {
			out[i] = u
		} else {
			out[i] = b
		}
	}
	return out
}

// Save writes the state file now.
func (w *Workspace) Save(ctx context.Context) error {
	w.mu.RLock()
	cats := append([]string(nil), w.categories...)
	w.mu.RUnlock()
	st := state.Snapshot(w.now(), w.coll.All(), cats, w.memory.Snapshot())
	return w.store.SaveState(ctx, st)
}

func (w *Workspace) saveNow() error {
	return w.Save(context.Background())
}

// touch schedules a debounced save.
func (w *Workspace) touch() {
	if w.autosave != nil {
		w.autosave.Schedule()
	}
}

// Close stops any running analysis and flushes a pending save.
func (w *Workspace) Close() error {
	w.orch.Stop()
	err := w.autosave.Flush()
	w.autosave.Stop()
	return err
}

// Bundles returns a snapshot of every bundle.
func (w *Workspace) Bundles() []bundle.Bundle { return w.coll.All() }

// Get returns one bundle.
func (w *Workspace) Get(id string) (bundle.Bundle, bool) { return w.coll.Get(id) }

// Version changes whenever a bundle changes.
func (w *Workspace) Version() uint64 { return w.coll.Version() }

// Leftovers returns the files that belong to no bundle.
func (w *Workspace) Leftovers() []bundle.Leftover {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]bundle.Leftover(nil), w.leftovers...)
}

// Groups returns the duplicate groups found by the last resolve.
func (w *Workspace) Groups() []dedupe.Group {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]dedupe.Group(nil), w.groups...)
}

// Categories returns the category list.
func (w *Workspace) Categories() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.categories...)
}

// Settings returns the current toggles.
func (w *Workspace) Settings() config.Settings {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.settings
}

// SetSettings replaces the toggles.
func (w *Workspace) SetSettings(s config.Settings) {
	w.mu.Lock()
	w.settings = s
	w.mu.Unlock()
}

// CanUndo reports whether an undo manifest exists.
func (w *Workspace) CanUndo() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.canUndo
}

// Rules returns a copy of the learned rules.
func (w *Workspace) Rules() map[string]rules.Rule { return w.memory.Snapshot() }

// AnalysisState returns the orchestrator state.
func (w *Workspace) AnalysisState() classify.State { return w.orch.State() }

// Orchestrator exposes the orchestrator for status callbacks.
func (w *Workspace) Orchestrator() *classify.Orchestrator { return w.orch }
