// Package dedupe flags duplicate bundles and picks the cleanest name for
// each survivor.
package dedupe

import (
	"regexp"
	"sort"
	"unicode/utf8"

	"github.com/luinbytes/iconic/bundle"
	"github.com/luinbytes/iconic/fingerprint"
)

// copyCounterPattern is deliberately narrow: only "(N)" and "_N" endings
// are discounted when comparing names.
var copyCounterPattern = regexp.MustCompile(`[(_]\d+[)]?$`)

// Patch is one change produced by Resolve.
type Patch struct {
	ID          string
	IsDuplicate bool
	NewName     string // empty when the name stays
}

// Reason records which phase grouped a set of bundles.
type Reason string

const (
	ByContent  Reason = "content"
	ByIdentity Reason = "identity"
)

// Group describes one duplicate set for reporting.
type Group struct {
	Reason     Reason
	Key        string
	SurvivorID string
	BestName   string
	Duplicates []string
}

// Resolve groups bundles first by content fingerprint, then the rest by
// normalized identity, and returns the patches to apply plus the groups
// found. Groups are processed in order of first appearance so the output
// is stable for identical input.
func Resolve(bundles []bundle.Bundle) ([]Patch, []Group) {
	var (
		patches []Patch
		groups  []Group
		handled = make(map[string]bool)
	)

	byContent := groupBy(bundles, func(b bundle.Bundle) string {
		if fingerprint.IsSentinel(b.Fingerprint) {
			return ""
		}
		return b.Fingerprint
	})
	for _, g := range byContent {
		p, grp := resolveGroup(ByContent, g.key, g.members)
		patches = append(patches, p...)
		groups = append(groups, grp)
		for _, m := range g.members {
			handled[m.ID] = true
		}
	}

	byIdentity := groupBy(bundles, func(b bundle.Bundle) string {
		if handled[b.ID] {
			return ""
		}
		return fingerprint.NormalizeIdentity(b.Name)
	})
	for _, g := range byIdentity {
		p, grp := resolveGroup(ByIdentity, g.key, g.members)
		patches = append(patches, p...)
		groups = append(groups, grp)
	}

	return patches, groups
}

type keyedGroup struct {
	key     string
	members []bundle.Bundle
}

// groupBy returns groups of more than one bundle; an empty key excludes a
// bundle from grouping.
func groupBy(bundles []bundle.Bundle, keyFn func(bundle.Bundle) string) []keyedGroup {
	index := make(map[string]int)
	var groups []keyedGroup
	for _, b := range bundles {
		key := keyFn(b)
		if key == "" {
			continue
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, keyedGroup{key: key})
		}
		groups[i].members = append(groups[i].members, b)
	}

	out := groups[:0]
	for _, g := range groups {
		if len(g.members) > 1 {
			out = append(out, g)
		}
	}
	return out
}

func resolveGroup(reason Reason, key string, members []bundle.Bundle) ([]Patch, Group) {
	survivor := Survivor(members)
	best := BestName(members)

	grp := Group{Reason: reason, Key: key, SurvivorID: survivor.ID, BestName: best}
	keep := Patch{ID: survivor.ID}
	if survivor.Name != best {
		keep.NewName = best
	}
	patches := []Patch{keep}

	for _, m := range members {
		if m.ID == survivor.ID {
			continue
		}
		patches = append(patches, Patch{ID: m.ID, IsDuplicate: true})
		grp.Duplicates = append(grp.Duplicates, m.ID)
	}
	return patches, grp
}

// Survivor is the most recently modified member; the earliest of equally
// recent members wins.
func Survivor(members []bundle.Bundle) bundle.Bundle {
	sorted := append([]bundle.Bundle(nil), members...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ModTime.After(sorted[j].ModTime)
	})
	return sorted[0]
}

// BestName picks the name with the shortest length once a trailing copy
// counter is discounted, then the shortest raw name, then the earliest.
func BestName(members []bundle.Bundle) string {
	sorted := append([]bundle.Bundle(nil), members...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ci, cj := cleanLen(sorted[i].Name), cleanLen(sorted[j].Name)
		if ci != cj {
			return ci < cj
		}
		return utf8.RuneCountInString(sorted[i].Name) < utf8.RuneCountInString(sorted[j].Name)
	})
	return sorted[0].Name
}

func cleanLen(name string) int {
	return utf8.RuneCountInString(copyCounterPattern.ReplaceAllString(name, ""))
}

// Apply merges patches into bundles, returning updated copies of the
// patched bundles only. Renames recompute the normalized name.
func Apply(bundles []bundle.Bundle, patches []Patch) []bundle.Bundle {
	byID := make(map[string]Patch, len(patches))
	for _, p := range patches {
		byID[p.ID] = p
	}

	var out []bundle.Bundle
	for _, b := range bundles {
		p, ok := byID[b.ID]
		if !ok {
			continue
		}
		next := b.Clone()
		if p.NewName != "" {
			next = next.Rename(p.NewName)
		}
		next.IsDuplicate = p.IsDuplicate
		out = append(out, next)
	}
	return out
}
