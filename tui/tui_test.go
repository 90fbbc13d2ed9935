package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luinbytes/iconic/bundle"
	"github.com/luinbytes/iconic/workspace"
)

type fakeLibrary struct {
	bundles []bundle.Bundle
	cats    []string
	tagged  map[string]string
}

func newFakeLibrary() *fakeLibrary {
	mk := func(name string) bundle.Bundle {
		return bundle.Bundle{ID: name + ".fst", Status: bundle.StatusPending, Size: 2048}.Rename(name)
	}
	return &fakeLibrary{
		bundles: []bundle.Bundle{mk("Serum"), mk("Diva"), mk("Vital")},
		cats:    []string{"Synth", "Bass"},
		tagged:  map[string]string{},
	}
}

func (f *fakeLibrary) List(q workspace.Query) []bundle.Bundle { return workspace.Filter(f.bundles, q) }
func (f *fakeLibrary) Categories() []string                  { return f.cats }
func (f *fakeLibrary) Counts() workspace.Counts              { return workspace.CountBundles(f.bundles) }

func (f *fakeLibrary) each(ids []string, fn func(*bundle.Bundle)) int {
	n := 0
	for _, id := range ids {
		for i := range f.bundles {
			if f.bundles[i].ID == id {
				fn(&f.bundles[i])
				n++
			}
		}
	}
	return n
}

func (f *fakeLibrary) QuickTag(ids []string, category string) (int, error) {
	return f.each(ids, func(b *bundle.Bundle) {
		*b = b.WithTags(bundle.Prepend(b.Tags, category), bundle.StatusCategorized)
		f.tagged[b.ID] = category
	}), nil
}

func (f *fakeLibrary) SetTags(ids []string, tags []string) (int, error) {
	return f.each(ids, func(b *bundle.Bundle) { *b = b.WithTags(tags, bundle.StatusPending) }), nil
}

func (f *fakeLibrary) ToggleDuplicate(id string, ids ...string) (bool, error) {
	var next bool
	for _, b := range f.bundles {
		if b.ID == id {
			next = !b.IsDuplicate
		}
	}
	f.each(append([]string{id}, ids...), func(b *bundle.Bundle) { b.IsDuplicate = next })
	return next, nil
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "down":
			msg = tea.KeyMsg{Type: tea.KeyDown}
		case "space":
			msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		next, _ := m.Update(msg)
		var ok bool
		m, ok = next.(Model)
		require.True(t, ok)
	}
	return m
}

func TestQuickTagCursor(t *testing.T) {
	lib := newFakeLibrary()
	m := New(lib)

	m = press(t, m, "down", "t", "down", "enter")
	assert.Equal(t, map[string]string{"Diva.fst": "Bass"}, lib.tagged)
	assert.Equal(t, modeBrowse, m.mode)
	assert.Contains(t, m.statusMsg, `"Bass"`)
}

func TestQuickTagSelection(t *testing.T) {
	lib := newFakeLibrary()
	m := New(lib)

	m = press(t, m, "space", "down", "down", "space", "t", "enter")
	assert.Equal(t, map[string]string{"Serum.fst": "Synth", "Vital.fst": "Synth"}, lib.tagged)
	assert.Empty(t, m.selected, "selection clears after tagging")
}

func TestPickerCancel(t *testing.T) {
	lib := newFakeLibrary()
	m := press(t, New(lib), "t", "esc")
	assert.Equal(t, modeBrowse, m.mode)
	assert.Empty(t, lib.tagged)
}

func TestToggleDuplicateAndFilter(t *testing.T) {
	lib := newFakeLibrary()
	m := press(t, New(lib), "d")
	assert.True(t, lib.bundles[0].IsDuplicate)

	// all -> uncategorized -> analyzed -> duplicates
	m = press(t, m, "f", "f", "f")
	require.Len(t, m.rows, 1)
	assert.Equal(t, "Serum.fst", m.rows[0].ID)
	assert.Contains(t, m.View(), "filter: duplicates")
}

func TestSearch(t *testing.T) {
	lib := newFakeLibrary()
	m := press(t, New(lib), "/", "v", "i", "t")
	require.Len(t, m.rows, 1)
	assert.Equal(t, "Vital", m.rows[0].Name)

	m = press(t, m, "esc")
	assert.Len(t, m.rows, 3)
	assert.Equal(t, modeBrowse, m.mode)
}

func TestSelectAllAndClear(t *testing.T) {
	lib := newFakeLibrary()
	lib.bundles[1] = lib.bundles[1].WithTags([]string{"Synth"}, bundle.StatusCategorized)

	m := press(t, New(lib), "a")
	assert.Len(t, m.selected, 3)
	m = press(t, m, "a")
	assert.Empty(t, m.selected)

	press(t, m, "down", "x")
	assert.Empty(t, lib.bundles[1].Tags)
}

func TestViewAndQuit(t *testing.T) {
	lib := newFakeLibrary()
	m := New(lib)
	view := m.View()
	assert.Contains(t, view, "3 bundles")
	assert.Contains(t, view, "Serum")
	assert.Contains(t, view, "2.0 KB")

	m = press(t, m, "q")
	assert.True(t, strings.HasPrefix(m.View(), "Goodbye!"))
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, formatBytes(tt.bytes))
	}
}
