package fileops

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luinbytes/iconic/apperr"
	"github.com/luinbytes/iconic/bundle"
	"github.com/luinbytes/iconic/logbook"
	"github.com/luinbytes/iconic/scan"
	"github.com/luinbytes/iconic/state"
	"github.com/luinbytes/iconic/storage"
)

type fixture struct {
	root     string
	provider storage.Provider
	store    *state.Store
	engine   *Engine
	log      *logbook.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	p, err := storage.NewLocalProvider(root)
	require.NoError(t, err)
	return wrapFixture(t, root, p)
}

func wrapFixture(t *testing.T, root string, p storage.Provider) *fixture {
	t.Helper()
	store := state.NewStore(p)
	rec := &logbook.Recorder{}
	e := New(p, store, rec)
	e.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return &fixture{root: root, provider: p, store: store, engine: e, log: rec}
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	full := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
}

func (f *fixture) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.root, filepath.FromSlash(rel)))
	require.NoError(t, err, rel)
	return string(data)
}

func (f *fixture) exists(rel string) bool {
	_, err := os.Stat(filepath.Join(f.root, filepath.FromSlash(rel)))
	return err == nil
}

func (f *fixture) scan(t *testing.T) scan.Result {
	t.Helper()
	res, err := scan.New(f.provider, nil).Scan(context.Background())
	require.NoError(t, err)
	return res
}

func tagAll(bundles []bundle.Bundle, tags ...string) []bundle.Bundle {
	out := make([]bundle.Bundle, len(bundles))
	for i, b := range bundles {
		out[i] = b.WithTags(tags, bundle.StatusCategorized)
	}
	return out
}

func TestUniqueName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, "Serum.fst", UniqueName(ctx, f.provider, "Synth", "Serum.fst"))

	f.write(t, "Synth/Serum.fst", "1")
	assert.Equal(t, "Serum_2.fst", UniqueName(ctx, f.provider, "Synth", "Serum.fst"))

	f.write(t, "Synth/Serum_2.fst", "2")
	assert.Equal(t, "Serum_3.fst", UniqueName(ctx, f.provider, "Synth", "Serum.fst"))

	// a stray side file also blocks the name
	f.write(t, "Synth/Serum_3.png", "img")
	assert.Equal(t, "Serum_4.fst", UniqueName(ctx, f.provider, "Synth", "Serum.fst", ".png"))

	f.write(t, "README", "x")
	assert.Equal(t, "README_2", UniqueName(ctx, f.provider, "", "README"))
}

// fullProvider reports every path as existing.
type fullProvider struct{ storage.Provider }

func (fullProvider) Stat(context.Context, string) (storage.FileInfo, error) {
	return storage.FileInfo{}, nil
}

func TestUniqueNameFallsBackToTimestamp(t *testing.T) {
	f := newFixture(t)
	name := uniqueName(context.Background(), fullProvider{f.provider}, "", "Serum.fst", func() time.Time { return time.UnixMilli(99) })
	assert.Equal(t, "Serum_99.fst", name)
}

func TestOrganizeMovesBundlesAndLeftovers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "Messy/Deep/X.fst", "x-data")
	f.write(t, "Messy/Deep/X.png", "x-img")
	f.write(t, "Messy/Deep/X.nfo", "x-info")
	f.write(t, "Messy/notes.txt", "notes")
	f.write(t, "Messy/Untagged.fst", "u")

	res := f.scan(t)
	require.Len(t, res.Bundles, 2)
	bundles := []bundle.Bundle{
		res.Bundles[0].WithTags([]string{"Bass"}, bundle.StatusCategorized),
		res.Bundles[1],
	}

	sum, err := f.engine.Organize(ctx, bundles, res.Leftovers, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Moved)
	assert.Equal(t, 1, sum.Leftovers)
	assert.Equal(t, 0, sum.Failed)
	assert.Equal(t, "x-data", f.read(t, "Bass/X.fst"))
	assert.Equal(t, "x-img", f.read(t, "Bass/X.png"))
	assert.Equal(t, "x-info", f.read(t, "Bass/X.nfo"))
	assert.Equal(t, "u", f.read(t, "Uncategorized/Untagged.fst"))
	assert.Equal(t, "notes", f.read(t, "_Unused_Assets/notes.txt"))
	assert.False(t, f.exists("Messy"), "emptied folders are pruned")

	manifest, err := f.store.LoadManifest(ctx)
	require.NoError(t, err)
	require.NotNil(t, manifest)
	assert.Equal(t, int64(1700000000000), manifest.Timestamp)
	assert.Contains(t, manifest.Moves, state.Move{Filename: "X.fst", OriginalPath: "Messy/Deep/X.fst", NewPath: "Bass/X.fst"})
	assert.Contains(t, manifest.Moves, state.Move{Filename: "notes.txt", OriginalPath: "Messy/notes.txt", NewPath: "_Unused_Assets/notes.txt"})
}

func TestOrganizeCollisionNaming(t *testing.T) {
	f := newFixture(t)
	f.write(t, "Synth/Serum.fst", "existing")
	f.write(t, "A/Serum.fst", "a")
	f.write(t, "B/Serum.fst", "b")

	res := f.scan(t)
	var incoming []bundle.Bundle
	for _, b := range res.Bundles {
		if b.Dir != "Synth" {
			incoming = append(incoming, b)
		}
	}
	require.Len(t, incoming, 2)

	_, err := f.engine.Organize(context.Background(), tagAll(incoming, "Synth"), nil, Options{})
	require.NoError(t, err)

	assert.Equal(t, "existing", f.read(t, "Synth/Serum.fst"))
	assert.Equal(t, "a", f.read(t, "Synth/Serum_2.fst"))
	assert.Equal(t, "b", f.read(t, "Synth/Serum_3.fst"))
}

func TestOrganizeUsesDisplayName(t *testing.T) {
	f := newFixture(t)
	f.write(t, "Old/Serum (2).fst", "s")
	f.write(t, "Old/Serum (2).png", "p")

	res := f.scan(t)
	renamed := res.Bundles[0].Rename("Serum")

	_, err := f.engine.Organize(context.Background(), tagAll([]bundle.Bundle{renamed}, "Synth"), nil, Options{})
	require.NoError(t, err)

	assert.True(t, f.exists("Synth/Serum.fst"))
	assert.True(t, f.exists("Synth/Serum.png"))
}

// countingProvider counts deletes and can fail writes below a folder.
type countingProvider struct {
	storage.Provider
	deletes   map[string]int
	failWrite string
}

func (c *countingProvider) DeleteFile(ctx context.Context, path string) error {
	c.deletes[path]++
	return c.Provider.DeleteFile(ctx, path)
}

func (c *countingProvider) WriteFile(ctx context.Context, path string, r io.Reader) error {
	if c.failWrite != "" && strings.HasPrefix(path, c.failWrite+"/") {
		return errors.New("disk full")
	}
	return c.Provider.WriteFile(ctx, path, r)
}

func newCountingFixture(t *testing.T, failWrite string) (*fixture, *countingProvider) {
	t.Helper()
	root := t.TempDir()
	local, err := storage.NewLocalProvider(root)
	require.NoError(t, err)
	cp := &countingProvider{Provider: local, deletes: map[string]int{}, failWrite: failWrite}
	return wrapFixture(t, root, cp), cp
}

func TestOrganizeMultiTag(t *testing.T) {
	f, cp := newCountingFixture(t, "")
	f.write(t, "In/Wobble.fst", "w")

	res := f.scan(t)
	bundles := tagAll(res.Bundles, "Bass", "Lead")

	sum, err := f.engine.Organize(context.Background(), bundles, nil, Options{MultiTag: true})
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Copies)
	assert.Equal(t, 1, sum.Moved)
	assert.Equal(t, "w", f.read(t, "Bass/Wobble.fst"))
	assert.Equal(t, "w", f.read(t, "Lead/Wobble.fst"))
	assert.False(t, f.exists("In/Wobble.fst"))
	assert.Equal(t, 1, cp.deletes["In/Wobble.fst"])
}

func TestOrganizeSingleTag(t *testing.T) {
	f := newFixture(t)
	f.write(t, "In/Wobble.fst", "w")

	res := f.scan(t)
	sum, err := f.engine.Organize(context.Background(), tagAll(res.Bundles, "Bass", "Lead"), nil, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Copies)
	assert.True(t, f.exists("Bass/Wobble.fst"))
	assert.False(t, f.exists("Lead"))
}

func TestOrganizeKeepsSourceWhenACopyFails(t *testing.T) {
	f, cp := newCountingFixture(t, "Lead")
	f.write(t, "In/Wobble.fst", "w")

	res := f.scan(t)
	sum, err := f.engine.Organize(context.Background(), tagAll(res.Bundles, "Bass", "Lead"), nil, Options{MultiTag: true})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 0, sum.Moved)
	assert.True(t, f.exists("In/Wobble.fst"))
	assert.True(t, f.exists("Bass/Wobble.fst"))
	assert.Equal(t, 0, cp.deletes["In/Wobble.fst"])
	assert.Positive(t, f.log.Count(logbook.LevelError))
}

func TestOrganizeDeletesDuplicates(t *testing.T) {
	f := newFixture(t)
	f.write(t, "A/Ott.fst", "o")
	f.write(t, "A/Ott.png", "p")
	f.write(t, "B/Ott.fst", "o")

	res := f.scan(t)
	res.Bundles[0].IsDuplicate = true

	sum, err := f.engine.Organize(context.Background(), res.Bundles, nil, Options{Deduplicate: true})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Deleted)
	assert.False(t, f.exists("A"))
	assert.True(t, f.exists("Uncategorized/Ott.fst"))
	assert.False(t, f.exists("Uncategorized/Ott_2.fst"))

	manifest, err := f.store.LoadManifest(context.Background())
	require.NoError(t, err)
	for _, m := range manifest.Moves {
		assert.NotEqual(t, "A/Ott.fst", m.OriginalPath, "deletions are not undoable")
	}
}

func TestOrganizeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.write(t, "In/Pad.fst", "p")
	f.write(t, "In/readme.txt", "r")
	ctx := context.Background()

	res := f.scan(t)
	_, err := f.engine.Organize(ctx, tagAll(res.Bundles, "Pads"), res.Leftovers, Options{})
	require.NoError(t, err)

	again := f.scan(t)
	sum, err := f.engine.Organize(ctx, tagAll(again.Bundles, "Pads"), again.Leftovers, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.InPlace)
	assert.Equal(t, 0, sum.Moved)
	assert.Equal(t, 0, sum.Leftovers)
	assert.True(t, f.exists("Pads/Pad.fst"))
	assert.False(t, f.exists("Pads/Pad_2.fst"))
	assert.True(t, f.exists("_Unused_Assets/readme.txt"))
	assert.Equal(t, again, f.scan(t))
}

func TestOrganizeDryRun(t *testing.T) {
	f := newFixture(t)
	f.write(t, "In/Pad.fst", "p")
	f.write(t, "In/Dup.fst", "d")
	f.write(t, "In/readme.txt", "r")

	res := f.scan(t)
	bundles := tagAll(res.Bundles, "Pads")
	bundles[0].IsDuplicate = true

	sum, err := f.engine.Organize(context.Background(), bundles, res.Leftovers, Options{DryRun: true, Deduplicate: true})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Deleted)
	assert.Equal(t, 1, sum.Moved)
	assert.Equal(t, 1, sum.Leftovers)
	assert.True(t, f.exists("In/Pad.fst"))
	assert.True(t, f.exists("In/Dup.fst"))
	assert.False(t, f.exists("Pads"))
	assert.False(t, f.exists(state.UndoFile))
}

func TestUndoRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "Library/Sub/X.fst", "x")
	f.write(t, "Library/Sub/X.png", "img")
	f.write(t, "Library/keep.txt", "k")

	before := f.scan(t)
	_, err := f.engine.Organize(ctx, tagAll(before.Bundles, "Bass"), nil, Options{})
	require.NoError(t, err)
	require.True(t, f.exists("Bass/X.fst"))
	require.False(t, f.exists("Library/Sub"))

	sum, err := f.engine.Revert(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Restored)
	assert.Equal(t, "x", f.read(t, "Library/Sub/X.fst"))
	assert.Equal(t, "img", f.read(t, "Library/Sub/X.png"))
	assert.False(t, f.exists("Bass"), "emptied category folder is removed")
	assert.False(t, f.exists(state.UndoFile))

	after := f.scan(t)
	require.Len(t, after.Bundles, 1)
	assert.Equal(t, before.Bundles[0].ID, after.Bundles[0].ID)
	assert.Equal(t, before.Bundles[0].Assets, after.Bundles[0].Assets)
}

func TestRevertSkipsMissingRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "Bass/A.fst", "a")

	m := state.NewManifest(time.Now())
	m.Record("Gone.fst", "Old/Gone.fst", "Bass/Gone.fst")
	m.Record("A.fst", "Old/A.fst", "Bass/A.fst")
	require.NoError(t, f.store.SaveManifest(ctx, m))

	sum, err := f.engine.Revert(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Restored)
	assert.Equal(t, "a", f.read(t, "Old/A.fst"))
	assert.False(t, f.exists(state.UndoFile))
}

func TestRevertWithoutManifest(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Revert(context.Background())
	assert.True(t, apperr.Is(err, apperr.ErrPrecondition))
}

func TestFlatten(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "Top.fst", "top")
	f.write(t, "A/B/Deep.fst", "deep")
	f.write(t, "A/B/Deep.nfo", "info")
	f.write(t, "C/Top.fst", "other top")
	f.write(t, "C/junk.txt", "j")
	f.write(t, "root.txt", "r")

	res := f.scan(t)
	sum, err := f.engine.Flatten(ctx, res.Bundles, res.Leftovers, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Moved)
	assert.Equal(t, "top", f.read(t, "Top.fst"))
	assert.Equal(t, "other top", f.read(t, "Top_2.fst"))
	assert.Equal(t, "deep", f.read(t, "Deep.fst"))
	assert.Equal(t, "info", f.read(t, "Deep.nfo"))
	assert.Equal(t, "j", f.read(t, "_Unused_Assets/junk.txt"))
	assert.True(t, f.exists("root.txt"))
	assert.False(t, f.exists("A"))
	assert.False(t, f.exists("C"))

	_, err = f.engine.Revert(ctx)
	require.NoError(t, err)
	assert.Equal(t, "deep", f.read(t, "A/B/Deep.fst"))
	assert.Equal(t, "other top", f.read(t, "C/Top.fst"))
	assert.Equal(t, "top", f.read(t, "Top.fst"))
}

func TestFlattenMovesDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "A/Serum.fst", "serum")
	f.write(t, "B/Serum (2).fst", "serum copy")

	res := f.scan(t)
	for i := range res.Bundles {
		if res.Bundles[i].Path == "B/Serum (2).fst" {
			res.Bundles[i].IsDuplicate = true
		}
	}

	sum, err := f.engine.Flatten(ctx, res.Bundles, res.Leftovers, Options{Deduplicate: true})
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Deleted)
	assert.Equal(t, 2, sum.Moved)
	assert.Len(t, sum.Manifest.Moves, 2)
	assert.Equal(t, "serum", f.read(t, "Serum.fst"))
	assert.Equal(t, "serum copy", f.read(t, "Serum (2).fst"))

	_, err = f.engine.Revert(ctx)
	require.NoError(t, err)
	assert.Equal(t, "serum copy", f.read(t, "B/Serum (2).fst"))
	assert.Equal(t, "serum", f.read(t, "A/Serum.fst"))
}

func TestPruneEmptyDirs(t *testing.T) {
	f := newFixture(t)
	f.write(t, "OnlyMarkers/.iconic-state.json", "{}")
	f.write(t, "OnlyMarkers/.iconic-undo.json", "{}")
	f.write(t, "OnlyMarkers/Nested/Thumbs.db", "x")
	f.write(t, "OnlyMarkers/Nested/.DS_Store", "x")
	f.write(t, "Real/leftover.txt", "keep me")
	f.write(t, "Real/Empty/desktop.ini", "x")
	f.write(t, state.StateFile, "{}")

	removed := f.engine.PruneEmptyDirs(context.Background())

	assert.Equal(t, 3, removed)
	assert.False(t, f.exists("OnlyMarkers"))
	assert.True(t, f.exists("Real/leftover.txt"))
	assert.False(t, f.exists("Real/Empty"))
	assert.True(t, f.exists(state.StateFile), "root is never removed")
}

func TestIsMarkerFile(t *testing.T) {
	assert.True(t, IsMarkerFile(".DS_Store"))
	assert.True(t, IsMarkerFile("Desktop.ini"))
	assert.False(t, IsMarkerFile("notes.txt"))
}
