package fileops

import (
	"context"

	"github.com/luinbytes/iconic/scan"
)

// IsMarkerFile reports whether name is ignored by the empty-folder check.
func IsMarkerFile(name string) bool {
	return scan.IsMarker(name)
}

// PruneEmptyDirs removes every folder below the root that holds nothing
// but marker files and other empty folders. The root itself is kept. A
// folder that cannot be read or removed counts as non-empty. It returns
// the number of folders removed.
func (e *Engine) PruneEmptyDirs(ctx context.Context) int {
	removed := 0
	e.pruneDir(ctx, "", &removed)
	if removed > 0 {
		e.log.Info("Removed %d empty folders", removed)
	}
	return removed
}

func (e *Engine) pruneDir(ctx context.Context, dir string, removed *int) bool {
	entries, err := e.provider.ListFiles(ctx, dir, false)
	if err != nil {
		return false
	}

	hasContent := false
	for _, entry := range entries {
		if !entry.IsDir {
			if !IsMarkerFile(entry.Name) {
				hasContent = true
			}
			continue
		}

		if !e.pruneDir(ctx, entry.Path, removed) {
			hasContent = true
			continue
		}
		if err := e.provider.RemoveDir(ctx, entry.Path); err != nil {
			e.log.Warn("Could not remove empty folder %s: %v", entry.Path, err)
			hasContent = true
			continue
		}
		*removed++
	}
	return !hasContent
}
