package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luinbytes/iconic/apperr"
	"github.com/luinbytes/iconic/bundle"
	"github.com/luinbytes/iconic/classify"
	"github.com/luinbytes/iconic/config"
	"github.com/luinbytes/iconic/logbook"
	"github.com/luinbytes/iconic/state"
	"github.com/luinbytes/iconic/storage"
)

type fakeOracle struct {
	calls   [][]string
	answers map[string][]string
}

func (f *fakeOracle) CategorizeBatch(_ context.Context, req classify.Request) (map[string][]string, error) {
	f.calls = append(f.calls, req.Names)
	out := map[string][]string{}
	for _, n := range req.Names {
		if tags, ok := f.answers[n]; ok {
			out[n] = tags
		}
	}
	return out, nil
}

type fakeSuggester struct{ list []string }

func (f fakeSuggester) SuggestCategories(_ context.Context, samples, current []string) ([]string, error) {
	return f.list, nil
}

type env struct {
	root     string
	provider storage.Provider
	log      *logbook.Recorder
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	p, err := storage.NewLocalProvider(root)
	require.NoError(t, err)
	return &env{root: root, provider: p, log: &logbook.Recorder{}}
}

func (e *env) write(t *testing.T, rel, content string, mod time.Time) {
	t.Helper()
	full := filepath.Join(e.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	require.NoError(t, os.Chtimes(full, mod, mod))
}

func (e *env) exists(rel string) bool {
	_, err := os.Stat(filepath.Join(e.root, filepath.FromSlash(rel)))
	return err == nil
}

// library lays out a small library: a bundle with artwork, a copy of it,
// an unrelated bundle and a stray text file.
func (e *env) library(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e.write(t, "Serum.fst", "serum-preset", base.Add(time.Hour))
	e.write(t, "Serum.png", "png", base)
	e.write(t, "Serum (2).fst", "serum-preset", base)
	e.write(t, "Diva.fst", "diva-preset", base)
	e.write(t, "readme.txt", "hello", base)
}

func (e *env) open(t *testing.T, opts Options) *Workspace {
	t.Helper()
	opts.Provider = e.provider
	if opts.Log == nil {
		opts.Log = e.log
	}
	if opts.AutosaveDelay == 0 {
		opts.AutosaveDelay = time.Hour
	}
	w, err := Open(context.Background(), opts)
	require.NoError(t, err)
	w.orch.CooldownTicks = 0
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestOpen(t *testing.T) {
	e := newEnv(t)
	e.library(t)
	w := e.open(t, Options{})

	assert.Len(t, w.Bundles(), 3)
	require.Len(t, w.Leftovers(), 1)
	assert.Equal(t, "readme.txt", w.Leftovers()[0].Path)
	assert.Equal(t, bundle.DefaultCategories, w.Categories())
	assert.False(t, w.CanUndo())

	serum, ok := w.Get("Serum.fst")
	require.True(t, ok)
	assert.False(t, serum.IsDuplicate)
	assert.True(t, serum.HasAsset(bundle.AssetImage))
	copyOf, _ := w.Get("Serum (2).fst")
	assert.True(t, copyOf.IsDuplicate)
	require.Len(t, w.Groups(), 1)
}

func TestSetTagsLearnsAndAnalyzeUsesRule(t *testing.T) {
	e := newEnv(t)
	e.library(t)
	oracle := &fakeOracle{answers: map[string][]string{"Diva": {"Synth"}}}
	w := e.open(t, Options{Oracle: oracle})

	_, err := w.SetTags([]string{"Serum.fst"}, []string{"bass"})
	require.NoError(t, err)
	_, err = w.SetTags([]string{"Serum.fst"}, []string{"Bass"})
	require.NoError(t, err)
	assert.Equal(t, 2, w.Rules()["serum"].Count)

	_, err = w.SetTags([]string{"Serum.fst"}, nil)
	require.NoError(t, err)
	serum, _ := w.Get("Serum.fst")
	assert.Equal(t, bundle.StatusPending, serum.Status)
	assert.Equal(t, 2, w.Rules()["serum"].Count, "clearing tags is not learned")

	report, err := w.Analyze(context.Background(), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 1, report.Result.MemoryHits)
	require.Len(t, oracle.calls, 1)
	assert.Equal(t, []string{"Diva"}, oracle.calls[0])

	serum, _ = w.Get("Serum.fst")
	assert.Equal(t, []string{"Bass"}, serum.Tags)
	diva, _ := w.Get("Diva.fst")
	assert.Equal(t, "Synth", diva.Category)
}

func TestSetTagsRejectsUnknown(t *testing.T) {
	e := newEnv(t)
	e.library(t)
	w := e.open(t, Options{})

	_, err := w.SetTags([]string{"Serum.fst"}, []string{"Kazoo"})
	assert.True(t, apperr.Is(err, apperr.ErrInvalidInput))

	_, err = w.SetTags([]string{"missing.fst"}, []string{"Bass"})
	assert.True(t, apperr.Is(err, apperr.ErrNotFound))
}

func TestAnalyzeWithoutOracle(t *testing.T) {
	e := newEnv(t)
	e.library(t)
	w := e.open(t, Options{})

	_, err := w.Analyze(context.Background(), nil)
	assert.True(t, apperr.Is(err, apperr.ErrPrecondition))
}

func TestDropAndQuickTag(t *testing.T) {
	e := newEnv(t)
	e.library(t)
	w := e.open(t, Options{})

	_, err := w.SetTags([]string{"Diva.fst"}, []string{"Synth"})
	require.NoError(t, err)
	n, err := w.DropToCategory([]string{"Diva.fst", "Serum.fst"}, "bass")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	diva, _ := w.Get("Diva.fst")
	assert.Equal(t, []string{"Bass", "Synth"}, diva.Tags)
	assert.Equal(t, "Bass", diva.Category)
	serum, _ := w.Get("Serum.fst")
	assert.Equal(t, bundle.StatusPending, serum.Status, "drop keeps status")

	n, err = w.DropToCategory([]string{"Diva.fst"}, "Bass")
	require.NoError(t, err)
	assert.Equal(t, 0, n, "already tagged")

	_, err = w.QuickTag([]string{"Serum.fst"}, "Synth")
	require.NoError(t, err)
	serum, _ = w.Get("Serum.fst")
	assert.Equal(t, []string{"Synth", "Bass"}, serum.Tags)
	assert.Equal(t, bundle.StatusCategorized, serum.Status)
	assert.Equal(t, 1, w.Rules()["serum"].Count)
}

func TestRenameCategoryCascades(t *testing.T) {
	e := newEnv(t)
	e.library(t)
	w := e.open(t, Options{})

	_, err := w.SetTags([]string{"Diva.fst"}, []string{"Synth", "Bass"})
	require.NoError(t, err)

	clean, err := w.RenameCategory("Synth", "  Synths? ")
	require.NoError(t, err)
	assert.Equal(t, "Synths", clean)
	assert.Contains(t, w.Categories(), "Synths")
	assert.NotContains(t, w.Categories(), "Synth")

	diva, _ := w.Get("Diva.fst")
	assert.Equal(t, []string{"Synths", "Bass"}, diva.Tags)
	assert.Equal(t, "Synths", diva.Category)
	assert.Equal(t, []string{"Synths", "Bass"}, w.Rules()["diva"].Tags)

	_, err = w.RenameCategory("Bass", "synths")
	assert.True(t, apperr.Is(err, apperr.ErrAlreadyExists))
	_, err = w.RenameCategory("Nope", "Other")
	assert.True(t, apperr.Is(err, apperr.ErrNotFound))
	_, err = w.RenameCategory("Bass", "???")
	assert.True(t, apperr.Is(err, apperr.ErrInvalidInput))
}

func TestSetCategoriesDropsStaleTags(t *testing.T) {
	e := newEnv(t)
	e.library(t)
	w := e.open(t, Options{})

	_, err := w.SetTags([]string{"Diva.fst"}, []string{"Synth", "Bass"})
	require.NoError(t, err)
	_, err = w.SetTags([]string{"Serum.fst"}, []string{"Synth"})
	require.NoError(t, err)

	list, err := w.ApplyProfile("electronic", nil)
	require.NoError(t, err)
	assert.Contains(t, list, "Leads")

	diva, _ := w.Get("Diva.fst")
	assert.Empty(t, diva.Tags)
	assert.Equal(t, bundle.StatusPending, diva.Status)

	_, err = w.SetCategories([]string{"A", "a"})
	assert.True(t, apperr.Is(err, apperr.ErrAlreadyExists))
	assert.Contains(t, w.Categories(), "Leads", "rejected list leaves the old one")

	_, err = w.AddCategory("Leads")
	assert.True(t, apperr.Is(err, apperr.ErrAlreadyExists))
	added, err := w.AddCategory("Keys")
	require.NoError(t, err)
	assert.Equal(t, "Keys", added)
}

func TestRenameBundleAndDuplicates(t *testing.T) {
	e := newEnv(t)
	e.library(t)
	w := e.open(t, Options{})

	b, err := w.RenameBundle("Diva.fst", "Diva: Legacy")
	require.NoError(t, err)
	assert.Equal(t, "Diva Legacy", b.Name)
	assert.Equal(t, "divalegacy", b.NormalizedName)
	assert.Empty(t, w.Rules())

	dup, err := w.ToggleDuplicate("Diva.fst")
	require.NoError(t, err)
	assert.True(t, dup)
	n, err := w.SetDuplicate([]string{"Diva.fst", "Serum (2).fst"}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, w.Counts().Duplicates)

	_, err = w.RenameBundle("nope.fst", "X")
	assert.True(t, apperr.Is(err, apperr.ErrNotFound))
}

func TestOrganizeAndRevert(t *testing.T) {
	e := newEnv(t)
	e.library(t)
	w := e.open(t, Options{Settings: config.Settings{Deduplicate: true}})
	ctx := context.Background()

	_, err := w.SetTags([]string{"Serum.fst"}, []string{"Synth"})
	require.NoError(t, err)

	sum, err := w.Organize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Moved)
	assert.Equal(t, 1, sum.Deleted)
	assert.Equal(t, 1, sum.Leftovers)

	assert.True(t, e.exists("Synth/Serum.fst"))
	assert.True(t, e.exists("Synth/Serum.png"))
	assert.True(t, e.exists("Uncategorized/Diva.fst"))
	assert.True(t, e.exists("_Unused_Assets/readme.txt"))
	assert.False(t, e.exists("Serum (2).fst"))
	assert.True(t, w.CanUndo())

	serum, ok := w.Get("Synth/Serum.fst")
	require.True(t, ok, "view refreshed after organize")
	assert.Equal(t, []string{"Synth"}, serum.Tags, "tags carried across the rescan")
	assert.Equal(t, bundle.StatusMoved, serum.Status)
	diva, ok := w.Get("Uncategorized/Diva.fst")
	require.True(t, ok)
	assert.Equal(t, bundle.StatusMoved, diva.Status)
	assert.Len(t, w.Bundles(), 2)

	_, err = w.Revert(ctx)
	require.NoError(t, err)
	serum, ok = w.Get("Serum.fst")
	require.True(t, ok)
	assert.Equal(t, bundle.StatusCategorized, serum.Status, "revert restores the tagged status")
	assert.True(t, e.exists("Serum.fst"))
	assert.True(t, e.exists("Serum.png"))
	assert.True(t, e.exists("Diva.fst"))
	assert.True(t, e.exists("readme.txt"))
	assert.False(t, e.exists("Synth"))
	assert.False(t, w.CanUndo())

	_, err = w.Revert(ctx)
	assert.True(t, apperr.Is(err, apperr.ErrPrecondition))
}

func TestDryRunLeavesFiles(t *testing.T) {
	e := newEnv(t)
	e.library(t)
	w := e.open(t, Options{Settings: config.Settings{DryRun: true, Deduplicate: true}})

	_, err := w.Organize(context.Background())
	require.NoError(t, err)
	assert.True(t, e.exists("Serum (2).fst"))
	assert.False(t, e.exists("Uncategorized"))
}

func TestAnalyzeAutoExecute(t *testing.T) {
	e := newEnv(t)
	e.library(t)
	oracle := &fakeOracle{answers: map[string][]string{"Serum": {"Synth"}, "Diva": {"Synth"}}}
	w := e.open(t, Options{Oracle: oracle, Settings: config.Settings{AutoExecute: true}})

	report, err := w.Analyze(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, report.Organize)
	assert.True(t, e.exists("Synth/Diva.fst"))
	assert.True(t, e.exists("Synth/Serum.fst"))
}

func TestPersistenceRoundTrip(t *testing.T) {
	e := newEnv(t)
	e.library(t)
	w := e.open(t, Options{})

	_, err := w.SetCategories([]string{"Bass", "Leads"})
	require.NoError(t, err)
	_, err = w.SetTags([]string{"Diva.fst"}, []string{"Leads"})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.True(t, e.exists(state.StateFile))

	again := e.open(t, Options{Categories: []string{"Ignored"}})
	assert.Equal(t, []string{"Bass", "Leads"}, again.Categories())
	diva, _ := again.Get("Diva.fst")
	assert.Equal(t, []string{"Leads"}, diva.Tags)
	assert.Equal(t, bundle.StatusCategorized, diva.Status)
	assert.Equal(t, 1, again.Rules()["diva"].Count)

	require.NoError(t, again.ForgetRule("diva"))
	assert.True(t, apperr.Is(again.ForgetRule("diva"), apperr.ErrNotFound))
}

func TestCorruptStateIgnored(t *testing.T) {
	e := newEnv(t)
	e.library(t)
	e.write(t, state.StateFile, "{not json", time.Now())

	w := e.open(t, Options{})
	assert.Len(t, w.Bundles(), 3)
	assert.Positive(t, e.log.Count(logbook.LevelWarn))
}

func TestSuggestCategories(t *testing.T) {
	e := newEnv(t)
	e.library(t)

	w := e.open(t, Options{})
	_, err := w.SuggestCategories(context.Background())
	assert.True(t, apperr.Is(err, apperr.ErrPrecondition))

	w = e.open(t, Options{Suggester: fakeSuggester{list: []string{"Synth", "EQ"}}})
	list, err := w.SuggestCategories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Synth", "EQ"}, list)
	assert.Equal(t, bundle.DefaultCategories, w.Categories(), "suggestions are not applied")
}

func TestFilterAndCounts(t *testing.T) {
	now := time.Now()
	bs := []bundle.Bundle{
		bundle.Bundle{ID: "a", ModTime: now.Add(-time.Hour)}.Rename("alpha").WithTags([]string{"Synth", "Bass"}, bundle.StatusCategorized),
		bundle.Bundle{ID: "b", ModTime: now, Status: bundle.StatusError}.Rename("Beta"),
		bundle.Bundle{ID: "c", ModTime: now.Add(-2 * time.Hour), IsDuplicate: true}.Rename("Charlie").WithTags([]string{bundle.Uncategorized}, bundle.StatusCategorized),
	}

	ids := func(list []bundle.Bundle) []string {
		var out []string
		for _, b := range list {
			out = append(out, b.ID)
		}
		return out
	}

	assert.Equal(t, []string{"b", "c"}, ids(Filter(bs, Query{Status: FilterUncategorized})))
	assert.Equal(t, []string{"c"}, ids(Filter(bs, Query{Status: FilterDuplicates})))
	assert.Equal(t, []string{"a", "c"}, ids(Filter(bs, Query{Status: FilterAnalyzed})))
	assert.Equal(t, []string{"b"}, ids(Filter(bs, Query{Status: FilterError})))
	assert.Equal(t, []string{"a"}, ids(Filter(bs, Query{Category: "Bass"})))
	assert.Equal(t, []string{"b", "c"}, ids(Filter(bs, Query{Category: bundle.Uncategorized})))
	assert.Equal(t, []string{"b"}, ids(Filter(bs, Query{Search: "ET"})))
	assert.Equal(t, []string{"c", "b", "a"}, ids(Filter(bs, Query{Sort: SortNameDesc})))
	assert.Equal(t, []string{"b", "a", "c"}, ids(Filter(bs, Query{Sort: SortDateNew})))
	assert.Equal(t, []string{"c", "a", "b"}, ids(Filter(bs, Query{Sort: SortDateOld})))

	c := CountBundles(bs)
	assert.Equal(t, 3, c.Total)
	assert.Equal(t, map[string]int{"Synth": 1, "Bass": 1, bundle.Uncategorized: 1}, c.Tags)
	assert.Equal(t, map[string]int{"Synth": 1, bundle.Uncategorized: 1}, c.Primary)
	assert.Equal(t, 2, c.Uncategorized)
	assert.Equal(t, 1, c.Duplicates)

	moved := bundle.Bundle{ID: "d"}.WithTags([]string{"Pads"}, bundle.StatusMoved)
	assert.Equal(t, []string{"d"}, ids(Filter([]bundle.Bundle{moved}, Query{Status: FilterAnalyzed})), "moved bundles keep counting as analyzed")
}
