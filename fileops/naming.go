package fileops

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/luinbytes/iconic/storage"
)

// MaxNameAttempts bounds the _2, _3, ... search before falling back to a
// timestamp suffix.
const MaxNameAttempts = 1000

// splitName splits "Serum.fst" into "Serum" and ".fst".
func splitName(filename string) (string, string) {
	ext := path.Ext(filename)
	if ext == filename {
		// ".hidden" has no base to speak of
		return filename, ""
	}
	return strings.TrimSuffix(filename, ext), ext
}

// UniqueName returns filename if it is free in dir, otherwise the first
// free "base_N.ext" for N = 2, 3, ... A name is free only when base+ext
// and base+sideExt for every side extension are all free, so a bundle's
// side files never land on someone else's.
func UniqueName(ctx context.Context, p storage.Provider, dir, filename string, sideExts ...string) string {
	return uniqueName(ctx, p, dir, filename, time.Now, sideExts...)
}

func uniqueName(ctx context.Context, p storage.Provider, dir, filename string, now func() time.Time, sideExts ...string) string {
	base, ext := splitName(filename)

	free := func(candidate string) bool {
		if storage.Exists(ctx, p, storage.Join(dir, candidate+ext)) {
			return false
		}
		for _, side := range sideExts {
			if storage.Exists(ctx, p, storage.Join(dir, candidate+side)) {
				return false
			}
		}
		return true
	}

	if free(base) {
		return filename
	}
	for counter := 2; counter < MaxNameAttempts; counter++ {
		candidate := fmt.Sprintf("%s_%d", base, counter)
		if free(candidate) {
			return candidate + ext
		}
	}
	return fmt.Sprintf("%s_%d%s", base, now().UnixMilli(), ext)
}
