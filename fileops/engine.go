// Package fileops performs the physical reorganization of a library:
// organize into category folders, flatten to the root, and revert the
// last of those from the undo manifest.
package fileops

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/luinbytes/iconic/apperr"
	"github.com/luinbytes/iconic/bundle"
	"github.com/luinbytes/iconic/logbook"
	"github.com/luinbytes/iconic/state"
	"github.com/luinbytes/iconic/storage"
)

// Options controls a relocation run.
type Options struct {
	MultiTag    bool // copy into every tagged category, not just the first
	Deduplicate bool // delete bundles flagged as duplicates
	DryRun      bool // log only, touch nothing
}

// Summary counts what a run did.
type Summary struct {
	Moved     int // bundles relocated (source removed)
	Copies    int // main-file copies written
	InPlace   int // bundles already where they belong
	Deleted   int // duplicate bundles deleted
	Leftovers int // unrelated files moved to _Unused_Assets
	Restored  int // files restored by a revert
	Failed    int // items that failed and were skipped
	Pruned    int // empty folders removed
	Manifest  *state.Manifest
}

// Engine executes file operations through a provider.
type Engine struct {
	provider storage.Provider
	store    *state.Store
	log      logbook.Logger
	now      func() time.Time
}

// New creates an engine.
func New(provider storage.Provider, store *state.Store, log logbook.Logger) *Engine {
	if log == nil {
		log = logbook.Discard
	}
	return &Engine{provider: provider, store: store, log: log, now: time.Now}
}

// Organize copies every bundle into its category folders, deletes flagged
// duplicates, gathers leftovers into _Unused_Assets, saves the undo
// manifest and prunes empty folders. Per-item failures are logged and
// counted; the run always finishes the queue.
func (e *Engine) Organize(ctx context.Context, bundles []bundle.Bundle, leftovers []bundle.Leftover, opts Options) (Summary, error) {
	e.log.Action("Starting disk operations...")
	return e.relocate(ctx, bundles, leftovers, opts, func(b bundle.Bundle) []string {
		categories := b.Tags
		if len(categories) == 0 {
			categories = []string{bundle.Uncategorized}
		}
		if !opts.MultiTag {
			categories = categories[:1]
		}
		dirs := make([]string, 0, len(categories))
		for _, c := range categories {
			dir := bundle.SanitizeName(c)
			if dir == "" {
				dir = bundle.Uncategorized
			}
			dirs = append(dirs, dir)
		}
		return dirs
	}, false)
}

// Flatten moves every bundle out of its folder into the root. Bundles and
// leftovers already at the root stay where they are.
func (e *Engine) Flatten(ctx context.Context, bundles []bundle.Bundle, leftovers []bundle.Leftover, opts Options) (Summary, error) {
	e.log.Action("Flattening library to root...")
	return e.relocate(ctx, bundles, leftovers, opts, func(bundle.Bundle) []string {
		return []string{""}
	}, true)
}

func (e *Engine) relocate(ctx context.Context, bundles []bundle.Bundle, leftovers []bundle.Leftover, opts Options, targetsOf func(bundle.Bundle) []string, flatten bool) (Summary, error) {
	var sum Summary
	manifest := state.NewManifest(e.now())
	sum.Manifest = manifest

	for _, b := range bundles {
		if ctx.Err() != nil {
			break
		}

		// Flatten moves duplicates like any other bundle; only organize deletes them.
		if b.IsDuplicate && opts.Deduplicate && !flatten {
			e.deleteDuplicate(ctx, b, opts, &sum)
			continue
		}

		if flatten && b.Dir == "" {
			continue
		}

		e.relocateBundle(ctx, b, targetsOf(b), opts, manifest, &sum)
	}

	e.moveLeftovers(ctx, leftovers, opts, flatten, manifest, &sum)

	if opts.DryRun {
		e.log.Success("Dry run complete: %d bundles would move, %d duplicates would be deleted", sum.Moved, sum.Deleted)
		return sum, ctx.Err()
	}

	// Whatever happened, record it and tidy up, even after cancellation.
	finish := context.WithoutCancel(ctx)
	if err := e.store.SaveManifest(finish, manifest); err != nil {
		e.log.Error("Failed to save undo manifest: %v", err)
	}

	e.log.Info("Cleaning up empty directories...")
	sum.Pruned = e.PruneEmptyDirs(finish)

	e.log.Success("Moved %d bundles (%d copies), deleted %d duplicates, moved %d other files, %d failed",
		sum.Moved, sum.Copies, sum.Deleted, sum.Leftovers, sum.Failed)
	return sum, ctx.Err()
}

func (e *Engine) deleteDuplicate(ctx context.Context, b bundle.Bundle, opts Options, sum *Summary) {
	if opts.DryRun {
		e.log.Action("[dry run] Would delete duplicate: %s", b.Path)
		sum.Deleted++
		return
	}

	e.log.Action("Deleting duplicate: %s", b.Path)
	if err := e.provider.DeleteFile(ctx, b.Path); err != nil {
		e.log.Error("Failed to delete %s: %v", b.Name, err)
		sum.Failed++
		return
	}
	for _, a := range b.Assets {
		if err := e.provider.DeleteFile(ctx, a.Path); err != nil {
			e.log.Warn("Failed to delete %s: %v", a.Path, err)
		}
	}
	sum.Deleted++
}

// targetFilename is the bundle's display name with the main extension, so
// a resolved "Serum (2).fst" is written as "Serum.fst".
func targetFilename(b bundle.Bundle) string {
	_, ext := splitName(b.Filename)
	name := bundle.SanitizeName(b.Name)
	if name == "" {
		name = b.Base()
	}
	return name + ext
}

func sideExts(b bundle.Bundle) []string {
	exts := make([]string, 0, len(b.Assets))
	for _, a := range b.Assets {
		exts = append(exts, a.Ext())
	}
	return exts
}

func (e *Engine) relocateBundle(ctx context.Context, b bundle.Bundle, dirs []string, opts Options, manifest *state.Manifest, sum *Summary) {
	candidate := targetFilename(b)
	allCopied := true
	inPlace := false

	for _, dir := range dirs {
		if b.Dir == dir && b.Filename == candidate {
			// Already organized; a re-run must not shuffle it to Serum_2.
			inPlace = true
			continue
		}

		if opts.DryRun {
			target := uniqueName(ctx, e.provider, dir, candidate, e.now, sideExts(b)...)
			e.log.Action("[dry run] %s -> %s", b.Path, storage.Join(dir, target))
			sum.Copies++
			continue
		}

		if err := e.copyBundle(ctx, b, dir, candidate, manifest); err != nil {
			e.log.Error("Error processing %s -> %s: %v", b.Name, displayDir(dir), err)
			allCopied = false
			continue
		}
		sum.Copies++
	}

	switch {
	case inPlace:
		sum.InPlace++
	case !allCopied:
		sum.Failed++
		e.log.Warn("Kept original %s because not every copy succeeded", b.Path)
	case opts.DryRun:
		sum.Moved++
	default:
		e.removeSource(ctx, b)
		sum.Moved++
	}
}

func displayDir(dir string) string {
	if dir == "" {
		return "root"
	}
	return dir
}

// copyBundle writes the main file and its side files into dir under a
// collision-free name and records the moves.
func (e *Engine) copyBundle(ctx context.Context, b bundle.Bundle, dir, candidate string, manifest *state.Manifest) error {
	if err := e.provider.MakeDir(ctx, dir); err != nil {
		return fmt.Errorf("create folder: %w", err)
	}

	target := uniqueName(ctx, e.provider, dir, candidate, e.now, sideExts(b)...)
	targetPath := storage.Join(dir, target)
	if err := storage.CopyFile(ctx, e.provider, b.Path, targetPath); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	manifest.Record(b.Filename, b.Path, targetPath)
	e.log.Info("Copied %s -> %s", b.Path, targetPath)

	base, _ := splitName(target)
	for _, a := range b.Assets {
		assetPath := storage.Join(dir, base+a.Ext())
		if err := storage.CopyFile(ctx, e.provider, a.Path, assetPath); err != nil {
			e.log.Warn("Side file %s not copied: %v", a.Path, err)
			continue
		}
		manifest.Record(a.Filename, a.Path, assetPath)
	}
	return nil
}

func (e *Engine) removeSource(ctx context.Context, b bundle.Bundle) {
	if err := e.provider.DeleteFile(ctx, b.Path); err != nil {
		e.log.Warn("Could not remove original %s: %v", b.Path, err)
	}
	for _, a := range b.Assets {
		if err := e.provider.DeleteFile(ctx, a.Path); err != nil {
			e.log.Warn("Could not remove original %s: %v", a.Path, err)
		}
	}
}

func inUnusedAssets(dir string) bool {
	return dir == bundle.UnusedAssetsDir || strings.HasPrefix(dir, bundle.UnusedAssetsDir+"/")
}

func (e *Engine) moveLeftovers(ctx context.Context, leftovers []bundle.Leftover, opts Options, flatten bool, manifest *state.Manifest, sum *Summary) {
	var queue []bundle.Leftover
	for _, l := range leftovers {
		if inUnusedAssets(l.Dir) || (flatten && l.Dir == "") {
			continue
		}
		queue = append(queue, l)
	}
	if len(queue) == 0 {
		return
	}

	e.log.Action("Moving %d leftover files to %s...", len(queue), bundle.UnusedAssetsDir)
	if !opts.DryRun {
		if err := e.provider.MakeDir(ctx, bundle.UnusedAssetsDir); err != nil {
			e.log.Error("Failed to create %s: %v", bundle.UnusedAssetsDir, err)
			sum.Failed += len(queue)
			return
		}
	}

	for _, l := range queue {
		if ctx.Err() != nil {
			return
		}

		target := uniqueName(ctx, e.provider, bundle.UnusedAssetsDir, l.Name, e.now)
		targetPath := storage.Join(bundle.UnusedAssetsDir, target)

		if opts.DryRun {
			e.log.Action("[dry run] %s -> %s", l.Path, targetPath)
			sum.Leftovers++
			continue
		}

		if err := storage.CopyFile(ctx, e.provider, l.Path, targetPath); err != nil {
			e.log.Warn("Could not move leftover %s: %v", l.Path, err)
			sum.Failed++
			continue
		}
		manifest.Record(l.Name, l.Path, targetPath)

		if err := e.provider.DeleteFile(ctx, l.Path); err != nil {
			e.log.Warn("Could not remove original %s: %v", l.Path, err)
		}
		sum.Leftovers++
	}
}

// Revert restores every file recorded in the undo manifest to its original
// path, prunes empty folders and deletes the manifest. Records that fail
// are logged and skipped.
func (e *Engine) Revert(ctx context.Context) (Summary, error) {
	manifest, err := e.store.LoadManifest(ctx)
	if err != nil {
		return Summary{}, err
	}
	if manifest == nil {
		return Summary{}, apperr.NewPrecondition("no undo record found")
	}

	var sum Summary
	sum.Manifest = manifest
	e.log.Action("Restoring %d files to original locations...", len(manifest.Moves))

	for _, move := range manifest.Moves {
		if ctx.Err() != nil {
			break
		}
		if err := e.revertMove(ctx, move); err != nil {
			e.log.Error("Failed to revert %s: %v", move.Filename, err)
			sum.Failed++
			continue
		}
		sum.Restored++
	}

	finish := context.WithoutCancel(ctx)
	sum.Pruned = e.PruneEmptyDirs(finish)

	if ctx.Err() != nil {
		// keep the manifest so the rest can still be reverted
		return sum, ctx.Err()
	}

	if err := e.store.DeleteManifest(finish); err != nil {
		e.log.Error("%v", err)
	}

	e.log.Success("Restored %d files, %d failed", sum.Restored, sum.Failed)
	return sum, nil
}

func (e *Engine) revertMove(ctx context.Context, move state.Move) error {
	if _, err := e.provider.Stat(ctx, move.NewPath); err != nil {
		return fmt.Errorf("locate %s: %w", move.NewPath, err)
	}
	if err := e.provider.MakeDir(ctx, storage.Dir(move.OriginalPath)); err != nil {
		return fmt.Errorf("create folder: %w", err)
	}
	if err := storage.CopyFile(ctx, e.provider, move.NewPath, move.OriginalPath); err != nil {
		return fmt.Errorf("copy back: %w", err)
	}
	if err := e.provider.DeleteFile(ctx, move.NewPath); err != nil {
		return fmt.Errorf("remove %s: %w", move.NewPath, err)
	}
	return nil
}
