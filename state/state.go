// Package state reads and writes the sidecar files kept in the library
// root: the working-set snapshot and the undo manifest.
package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/luinbytes/iconic/bundle"
	"github.com/luinbytes/iconic/rules"
	"github.com/luinbytes/iconic/storage"
)

const (
	// StateFile holds categories, bundle tags and learned rules.
	StateFile = ".iconic-state.json"

	// UndoFile holds the moves made by the last organize or flatten.
	UndoFile = ".iconic-undo.json"
)

// PluginSnapshot is the persisted part of a bundle.
type PluginSnapshot struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Tags        []string `json:"tags"`
	Category    *string  `json:"category"`
	IsDuplicate bool     `json:"isDuplicate"`
}

// Overrides is the persisted rule memory. It also accepts the legacy
// shape where each key maps to a bare tag array.
type Overrides map[string]rules.Rule

// UnmarshalJSON migrates legacy entries to {tags, count: 1}.
func (o *Overrides) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(Overrides, len(raw))
	for key, value := range raw {
		value = bytes.TrimSpace(value)
		if len(value) > 0 && value[0] == '[' {
			var tags []string
			if err := json.Unmarshal(value, &tags); err != nil {
				return fmt.Errorf("override %q: %w", key, err)
			}
			out[key] = rules.Rule{Tags: tags, Count: 1}
			continue
		}

		var r rules.Rule
		if err := json.Unmarshal(value, &r); err != nil {
			return fmt.Errorf("override %q: %w", key, err)
		}
		if r.Tags == nil {
			r.Tags = []string{}
		}
		out[key] = r
	}
	*o = out
	return nil
}

// Persisted is the content of StateFile.
type Persisted struct {
	Timestamp       int64            `json:"timestamp"`
	Categories      []string         `json:"categories"`
	Plugins         []PluginSnapshot `json:"plugins"`
	ManualOverrides Overrides        `json:"manualOverrides"`
}

// Move is one relocation recorded in the undo manifest.
type Move struct {
	Filename     string `json:"filename"`
	OriginalPath string `json:"originalPath"`
	NewPath      string `json:"newPath"`
}

// Manifest is the content of UndoFile.
type Manifest struct {
	Timestamp int64  `json:"timestamp"`
	Moves     []Move `json:"moves"`
}

// NewManifest starts an empty manifest stamped now.
func NewManifest(now time.Time) *Manifest {
	return &Manifest{Timestamp: now.UnixMilli(), Moves: []Move{}}
}

// Record appends a move.
func (m *Manifest) Record(filename, originalPath, newPath string) {
	m.Moves = append(m.Moves, Move{Filename: filename, OriginalPath: originalPath, NewPath: newPath})
}

// Snapshot builds the persisted form of the working set.
func Snapshot(now time.Time, bundles []bundle.Bundle, categories []string, memory map[string]rules.Rule) Persisted {
	st := Persisted{
		Timestamp:       now.UnixMilli(),
		Categories:      append([]string{}, categories...),
		Plugins:         make([]PluginSnapshot, 0, len(bundles)),
		ManualOverrides: make(Overrides, len(memory)),
	}
	for _, b := range bundles {
		snap := PluginSnapshot{
			ID:          b.ID,
			Name:        b.Name,
			Tags:        append([]string{}, b.Tags...),
			IsDuplicate: b.IsDuplicate,
		}
		if b.Category != "" {
			category := b.Category
			snap.Category = &category
		}
		st.Plugins = append(st.Plugins, snap)
	}
	for k, r := range memory {
		st.ManualOverrides[k] = r
	}
	return st
}

// Restore merges saved tags and categories onto freshly scanned bundles by
// exact name. Bundles with restored tags become categorized, the rest
// pending. It returns updated copies of the bundles that matched.
func Restore(bundles []bundle.Bundle, st *Persisted) []bundle.Bundle {
	if st == nil {
		return nil
	}

	byName := make(map[string]PluginSnapshot, len(st.Plugins))
	for _, p := range st.Plugins {
		if _, ok := byName[p.Name]; !ok {
			byName[p.Name] = p
		}
	}

	var out []bundle.Bundle
	for _, b := range bundles {
		saved, ok := byName[b.Name]
		if !ok {
			continue
		}
		next := b.Clone()
		next.Tags = bundle.DedupeTags(saved.Tags)
		next.Category = ""
		if saved.Category != nil {
			next.Category = *saved.Category
		}
		next.Status = bundle.StatusPending
		if len(next.Tags) > 0 {
			next.Status = bundle.StatusCategorized
		}
		out = append(out, next)
	}
	return out
}

// Store reads and writes the sidecar files through a provider.
type Store struct {
	provider storage.Provider
}

// NewStore creates a store for the provider's root.
func NewStore(provider storage.Provider) *Store {
	return &Store{provider: provider}
}

func (s *Store) readJSON(ctx context.Context, name string, v any) (bool, error) {
	data, err := storage.ReadFile(ctx, s.provider, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return true, nil
}

func (s *Store) writeJSON(ctx context.Context, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if err := storage.WriteBytes(ctx, s.provider, name, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// LoadState returns the saved state, or nil when there is none.
func (s *Store) LoadState(ctx context.Context) (*Persisted, error) {
	var st Persisted
	found, err := s.readJSON(ctx, StateFile, &st)
	if err != nil || !found {
		return nil, err
	}
	return &st, nil
}

// SaveState overwrites the state file.
func (s *Store) SaveState(ctx context.Context, st Persisted) error {
	return s.writeJSON(ctx, StateFile, st)
}

// LoadManifest returns the undo manifest, or nil when there is none.
func (s *Store) LoadManifest(ctx context.Context) (*Manifest, error) {
	var m Manifest
	found, err := s.readJSON(ctx, UndoFile, &m)
	if err != nil || !found {
		return nil, err
	}
	return &m, nil
}

// SaveManifest overwrites the undo manifest.
func (s *Store) SaveManifest(ctx context.Context, m *Manifest) error {
	return s.writeJSON(ctx, UndoFile, m)
}

// DeleteManifest removes the undo manifest. A missing manifest is not an error.
func (s *Store) DeleteManifest(ctx context.Context) error {
	err := s.provider.DeleteFile(ctx, UndoFile)
	if err != nil && !errors.Is(err, storage.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", UndoFile, err)
	}
	return nil
}

// HasManifest reports whether an undo manifest is present.
func (s *Store) HasManifest(ctx context.Context) bool {
	_, err := s.provider.Stat(ctx, UndoFile)
	return err == nil
}
