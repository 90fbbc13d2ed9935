package workspace

import (
	"sort"
	"strings"

	"github.com/luinbytes/iconic/bundle"
)

// StatusFilter narrows a listing.
type StatusFilter string

const (
	FilterAll           StatusFilter = "all"
	FilterUncategorized StatusFilter = "uncategorized"
	FilterDuplicates    StatusFilter = "duplicates"
	FilterAnalyzed      StatusFilter = "analyzed"
	FilterError         StatusFilter = "error"
)

// SortOrder orders a listing.
type SortOrder string

const (
	SortNone     SortOrder = ""
	SortNameAsc  SortOrder = "name_asc"
	SortNameDesc SortOrder = "name_desc"
	SortDateNew  SortOrder = "date_new"
	SortDateOld  SortOrder = "date_old"
)

// Query selects and orders bundles.
type Query struct {
	Status   StatusFilter
	Category string // a tag, or bundle.Uncategorized
	Search   string // case-insensitive substring of the name
	Sort     SortOrder
}

// Counts summarizes tags across bundles.
type Counts struct {
	Total         int
	Tags          map[string]int // bundles carrying each tag
	Primary       map[string]int // bundles by primary category
	Uncategorized int
	Duplicates    int
}

func uncategorized(b bundle.Bundle) bool {
	return b.Category == "" || b.Category == bundle.Uncategorized
}

// CountBundles computes Counts.
func CountBundles(bundles []bundle.Bundle) Counts {
	c := Counts{Total: len(bundles), Tags: map[string]int{}, Primary: map[string]int{}}
	for _, b := range bundles {
		for _, t := range b.Tags {
			c.Tags[t]++
		}
		if b.Category != "" {
			c.Primary[b.Category]++
		}
		if uncategorized(b) {
			c.Uncategorized++
		}
		if b.IsDuplicate {
			c.Duplicates++
		}
	}
	return c
}

// Filter applies q to bundles without modifying them.
func Filter(bundles []bundle.Bundle, q Query) []bundle.Bundle {
	search := strings.ToLower(q.Search)
	out := make([]bundle.Bundle, 0, len(bundles))
	for _, b := range bundles {
		if !matchStatus(b, q.Status) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(b.Name), search) {
			continue
		}
		switch {
		case q.Category == "":
		case q.Category == bundle.Uncategorized:
			if !uncategorized(b) {
				continue
			}
		case !hasTag(b, q.Category):
			continue
		}
		out = append(out, b)
	}

	switch q.Sort {
	case SortNameAsc:
		sort.SliceStable(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	case SortNameDesc:
		sort.SliceStable(out, func(i, j int) bool { return strings.ToLower(out[i].Name) > strings.ToLower(out[j].Name) })
	case SortDateNew:
		sort.SliceStable(out, func(i, j int) bool { return out[i].ModTime.After(out[j].ModTime) })
	case SortDateOld:
		sort.SliceStable(out, func(i, j int) bool { return out[i].ModTime.Before(out[j].ModTime) })
	}
	return out
}

func matchStatus(b bundle.Bundle, f StatusFilter) bool {
	switch f {
	case FilterUncategorized:
		return uncategorized(b)
	case FilterDuplicates:
		return b.IsDuplicate
	case FilterAnalyzed:
		return b.Status == bundle.StatusCategorized || (b.Status == bundle.StatusMoved && len(b.Tags) > 0)
	case FilterError:
		return b.Status == bundle.StatusError
	default:
		return true
	}
}

// Counts summarizes the working set.
func (w *Workspace) Counts() Counts { return CountBundles(w.coll.All()) }

// List returns the bundles matching q.
func (w *Workspace) List(q Query) []bundle.Bundle { return Filter(w.coll.All(), q) }
