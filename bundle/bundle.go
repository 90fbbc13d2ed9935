// Package bundle holds the organizable unit (a preset main file plus its
// side files) and the collection the workspace owns.
package bundle

import (
	"path"
	"strings"
	"time"

	"github.com/luinbytes/iconic/fingerprint"
)

// Recognized file roles by extension.
const (
	MainExt  = ".fst"
	ImageExt = ".png"
	InfoExt  = ".nfo"
)

// Status is the lifecycle state of a bundle.
type Status string

const (
	StatusPending     Status = "pending"
	StatusAnalyzing   Status = "analyzing"
	StatusCategorized Status = "categorized"
	StatusError       Status = "error"
	StatusMoved       Status = "moved"
)

// AssetKind tags a side file.
type AssetKind string

const (
	AssetInfo  AssetKind = "info"
	AssetImage AssetKind = "image"
)

// Asset is a side file sharing its bundle's folder and base name.
type Asset struct {
	Filename string    `json:"filename"`
	Kind     AssetKind `json:"kind"`
	Path     string    `json:"path"`
}

// Ext returns the asset's extension including the dot.
func (a Asset) Ext() string {
	return path.Ext(a.Filename)
}

// Bundle is a main preset file plus its side files.
type Bundle struct {
	ID             string    // root-relative path of the main file at discovery
	Name           string    // display name
	NormalizedName string    // NormalizeIdentity(Name)
	Filename       string    // main file name on disk
	Path           string    // root-relative path of the main file
	Dir            string    // root-relative parent folder
	Category       string    // primary category, "" when unset
	Tags           []string  // ordered, first tag is the primary category
	Assets         []Asset   // side files
	Status         Status    // lifecycle
	IsDuplicate    bool      // flagged by the duplicate resolver or the user
	Fingerprint    string    // quick content fingerprint
	Size           int64     // main file size in bytes
	ModTime        time.Time // main file modification time
}

// Clone returns a deep copy so snapshots never share slices.
func (b Bundle) Clone() Bundle {
	c := b
	if b.Tags != nil {
		c.Tags = append([]string(nil), b.Tags...)
	}
	if b.Assets != nil {
		c.Assets = append([]Asset(nil), b.Assets...)
	}
	return c
}

// Rename returns a copy with a new display name and recomputed key.
func (b Bundle) Rename(name string) Bundle {
	c := b.Clone()
	c.Name = name
	c.NormalizedName = fingerprint.NormalizeIdentity(name)
	return c
}

// WithTags returns a copy with the given tags, primary category and status.
// Empty tags clear the category.
func (b Bundle) WithTags(tags []string, status Status) Bundle {
	c := b.Clone()
	c.Tags = DedupeTags(tags)
	c.Category = ""
	if len(c.Tags) > 0 {
		c.Category = c.Tags[0]
	}
	c.Status = status
	return c
}

// Base returns the main filename without extension.
func (b Bundle) Base() string {
	return strings.TrimSuffix(b.Filename, path.Ext(b.Filename))
}

// HasAsset reports whether the bundle has a side file of the given kind.
func (b Bundle) HasAsset(kind AssetKind) bool {
	for _, a := range b.Assets {
		if a.Kind == kind {
			return true
		}
	}
	return false
}

// Leftover is a scanned file that belongs to no bundle.
type Leftover struct {
	Name string // file name
	Path string // root-relative path
	Dir  string // root-relative parent folder
}

// DedupeTags drops empty and repeated tags, keeping first occurrences.
func DedupeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// SameTagSet compares tag lists ignoring order.
func SameTagSet(a, b []string) bool {
	a, b = DedupeTags(a), DedupeTags(b)
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	for _, t := range b {
		if !set[t] {
			return false
		}
	}
	return true
}

// Prepend returns tags with tag moved or added to the front.
func Prepend(tags []string, tag string) []string {
	out := []string{tag}
	for _, t := range tags {
		if t != tag {
			out = append(out, t)
		}
	}
	return out
}
