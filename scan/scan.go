// Package scan walks a library root and rebuilds bundles from the files
// it finds.
package scan

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/luinbytes/iconic/bundle"
	"github.com/luinbytes/iconic/fingerprint"
	"github.com/luinbytes/iconic/logbook"
	"github.com/luinbytes/iconic/state"
	"github.com/luinbytes/iconic/storage"
)

// ChunkSize is how many files are fingerprinted concurrently.
const ChunkSize = 20

// Result is the outcome of a scan.
type Result struct {
	Bundles   []bundle.Bundle
	Leftovers []bundle.Leftover
}

// Scanner walks a provider.
type Scanner struct {
	provider storage.Provider
	log      logbook.Logger
}

// New creates a scanner.
func New(provider storage.Provider, log logbook.Logger) *Scanner {
	if log == nil {
		log = logbook.Discard
	}
	return &Scanner{provider: provider, log: log}
}

// Scan walks the whole root and reconstructs bundles. Only an unreadable
// root is fatal.
func (s *Scanner) Scan(ctx context.Context) (Result, error) {
	files, err := s.Walk(ctx)
	if err != nil {
		return Result{}, err
	}
	res := Reconstruct(files)
	s.log.Success("Found %d bundles and %d other files", len(res.Bundles), len(res.Leftovers))
	return res, nil
}

// Walk returns every non-hidden file below the root in name order.
// Unreadable subdirectories are logged and skipped.
func (s *Scanner) Walk(ctx context.Context) ([]storage.FileInfo, error) {
	entries, err := s.provider.ListFiles(ctx, "", false)
	if err != nil {
		return nil, fmt.Errorf("cannot read root: %w", err)
	}

	var files []storage.FileInfo
	if err := s.walkEntries(ctx, entries, &files); err != nil {
		return nil, err
	}
	return files, nil
}

func (s *Scanner) walkEntries(ctx context.Context, entries []storage.FileInfo, files *[]storage.FileInfo) error {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	for _, entry := range entries {
		// Check context cancellation
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if Ignored(entry.Name) {
			continue
		}

		if !entry.IsDir {
			*files = append(*files, entry)
			continue
		}

		children, err := s.provider.ListFiles(ctx, entry.Path, false)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("Skipping unreadable directory: %s (%v)", entry.Path, err)
			continue
		}
		if err := s.walkEntries(ctx, children, files); err != nil {
			return err
		}
	}
	return nil
}

type fileKey struct {
	dir  string
	base string
}

func keyOf(f storage.FileInfo) (fileKey, string) {
	ext := path.Ext(f.Name)
	return fileKey{dir: storage.Dir(f.Path), base: strings.TrimSuffix(f.Name, ext)}, strings.ToLower(ext)
}

// Reconstruct groups files into bundles by (folder, base name). Side files
// attach to the main file with the same key wherever it appears in the
// list; unclaimed side files and every other file become leftovers.
func Reconstruct(files []storage.FileInfo) Result {
	var (
		res        Result
		mains      = make(map[fileKey]int) // index into res.Bundles
		candidates = make(map[fileKey][]storage.FileInfo)
		order      []fileKey
	)

	for _, f := range files {
		if f.IsDir {
			continue
		}
		key, ext := keyOf(f)
		switch ext {
		case bundle.MainExt:
			if _, dup := mains[key]; dup {
				// e.g. "Serum.fst" and "Serum.FST" side by side
				res.Leftovers = append(res.Leftovers, leftover(f))
				continue
			}
			mains[key] = len(res.Bundles)
			res.Bundles = append(res.Bundles, newBundle(f, key))
		case bundle.ImageExt, bundle.InfoExt:
			if _, seen := candidates[key]; !seen {
				order = append(order, key)
			}
			candidates[key] = append(candidates[key], f)
		default:
			res.Leftovers = append(res.Leftovers, leftover(f))
		}
	}

	for _, key := range order {
		sides := candidates[key]
		idx, ok := mains[key]
		if !ok {
			for _, f := range sides {
				res.Leftovers = append(res.Leftovers, leftover(f))
			}
			continue
		}
		for _, f := range sides {
			_, ext := keyOf(f)
			kind := bundle.AssetImage
			if ext == bundle.InfoExt {
				kind = bundle.AssetInfo
			}
			res.Bundles[idx].Assets = append(res.Bundles[idx].Assets, bundle.Asset{Filename: f.Name, Kind: kind, Path: f.Path})
		}
	}

	sort.Slice(res.Leftovers, func(i, j int) bool { return res.Leftovers[i].Path < res.Leftovers[j].Path })
	return res
}

func newBundle(f storage.FileInfo, key fileKey) bundle.Bundle {
	return bundle.Bundle{
		ID:             f.Path,
		Name:           key.base,
		NormalizedName: fingerprint.NormalizeIdentity(key.base),
		Filename:       f.Name,
		Path:           f.Path,
		Dir:            key.dir,
		Tags:           []string{},
		Status:         bundle.StatusPending,
		Size:           f.Size,
		ModTime:        f.ModTime,
	}
}

func leftover(f storage.FileInfo) bundle.Leftover {
	return bundle.Leftover{Name: f.Name, Path: f.Path, Dir: storage.Dir(f.Path)}
}

// Fingerprint computes quick fingerprints for every bundle, ChunkSize at a
// time. Each chunk is joined before the next starts; progress is reported
// after every chunk. The input slice is not modified.
func Fingerprint(ctx context.Context, p storage.Provider, bundles []bundle.Bundle, progress func(done, total int)) []bundle.Bundle {
	out := make([]bundle.Bundle, len(bundles))
	for i := range bundles {
		out[i] = bundles[i].Clone()
	}

	for start := 0; start < len(out); start += ChunkSize {
		end := start + ChunkSize
		if end > len(out) {
			end = len(out)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				out[i].Fingerprint = fingerprint.Quick(ctx, p, out[i].Path, out[i].Size)
			}(i)
		}
		wg.Wait()

		if progress != nil {
			progress(end, len(out))
		}
	}
	return out
}

// markerFiles are sidecars and OS litter. They are never bundles or
// leftovers, and a folder holding only these counts as empty.
var markerFiles = map[string]bool{
	strings.ToLower(state.StateFile): true,
	strings.ToLower(state.UndoFile):  true,
	".ds_store":                      true,
	"desktop.ini":                    true,
	"thumbs.db":                      true,
	".gitignore":                     true,
}

// vcsDirs are version control folders the scanner never enters.
var vcsDirs = map[string]bool{
	".git": true,
	".hg":  true,
	".svn": true,
}

// IsMarker reports whether name is a sidecar or OS marker file.
func IsMarker(name string) bool {
	return markerFiles[strings.ToLower(name)]
}

// Ignored reports whether a file or folder name is skipped by the scanner.
// Other dot-names, like ".Init.fst", are scanned as usual.
func Ignored(name string) bool {
	return IsMarker(name) || vcsDirs[strings.ToLower(name)]
}
