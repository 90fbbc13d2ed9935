package workspace

import (
	"strings"

	"github.com/luinbytes/iconic/apperr"
	"github.com/luinbytes/iconic/bundle"
	"github.com/luinbytes/iconic/rules"
)

// learn records the bundle's current tags as a user correction.
func (w *Workspace) learn(b bundle.Bundle) {
	if len(b.Tags) == 0 {
		return
	}
	r, ok := w.memory.RecordCorrection(b.Name, b.Tags)
	if ok && r.Count == rules.Threshold {
		w.log.Info("Learned rule for %q: %s", b.Name, strings.Join(r.Tags, ", "))
	}
}

// knownTags validates tags against the category list.
func (w *Workspace) knownTags(tags []string) ([]string, error) {
	cats := w.Categories()
	out := bundle.FilterKnown(tags, cats)
	if len(out) != len(bundle.DedupeTags(tags)) {
		var unknown []string
		for _, t := range tags {
			if _, ok := bundle.Canonical(cats, t); !ok && !strings.EqualFold(t, bundle.Uncategorized) {
				unknown = append(unknown, t)
			}
		}
		return nil, apperr.NewInvalidInput("unknown category: " + strings.Join(unknown, ", "))
	}
	return out, nil
}

// update applies fn to each id and fails with NotFound when none exist.
func (w *Workspace) update(ids []string, fn func(bundle.Bundle) (bundle.Bundle, bool)) (int, error) {
	changed, found := 0, 0
	for _, id := range ids {
		if _, ok := w.coll.Get(id); !ok {
			continue
		}
		found++
		w.coll.Update(id, func(b bundle.Bundle) bundle.Bundle {
			next, ok := fn(b)
			if !ok {
				return b
			}
			changed++
			return next
		})
	}
	if found == 0 {
		return 0, apperr.NewNotFound("bundle", strings.Join(ids, ", "))
	}
	if changed > 0 {
		w.touch()
	}
	return changed, nil
}

// SetTags replaces the tags of the given bundles. Each change is learned.
// Empty tags clear the category and return the bundle to pending.
func (w *Workspace) SetTags(ids []string, tags []string) (int, error) {
	tags, err := w.knownTags(tags)
	if err != nil {
		return 0, err
	}
	status := bundle.StatusCategorized
	if len(tags) == 0 {
		status = bundle.StatusPending
	}
	n, err := w.update(ids, func(b bundle.Bundle) (bundle.Bundle, bool) {
		next := b.WithTags(tags, status)
		w.learn(next)
		return next, true
	})
	if err == nil {
		w.log.Action("Tagged %d bundle(s): %s", n, strings.Join(tags, ", "))
	}
	return n, err
}

// DropToCategory puts category first on bundles that lack it, keeping
// their other tags and status.
func (w *Workspace) DropToCategory(ids []string, category string) (int, error) {
	return w.prependTag(ids, category, false)
}

// QuickTag is DropToCategory that also marks the bundles categorized.
func (w *Workspace) QuickTag(ids []string, category string) (int, error) {
	return w.prependTag(ids, category, true)
}

func (w *Workspace) prependTag(ids []string, category string, markCategorized bool) (int, error) {
	tags, err := w.knownTags([]string{category})
	if err != nil {
		return 0, err
	}
	if len(tags) == 0 {
		return 0, apperr.NewInvalidInput("category is required")
	}
	category = tags[0]

	n, err := w.update(ids, func(b bundle.Bundle) (bundle.Bundle, bool) {
		for _, t := range b.Tags {
			if t == category {
				return b, false
			}
		}
		status := b.Status
		if markCategorized {
			status = bundle.StatusCategorized
		}
		next := b.WithTags(bundle.Prepend(b.Tags, category), status)
		w.learn(next)
		return next, true
	})
	if err == nil {
		w.log.Action("Moved %d bundle(s) to %s", n, category)
	}
	return n, err
}

// RenameBundle changes a bundle's display name. Renames are not learned.
func (w *Workspace) RenameBundle(id, name string) (bundle.Bundle, error) {
	clean, err := bundle.ValidateName(name)
	if err != nil {
		return bundle.Bundle{}, err
	}
	b, ok := w.coll.Update(id, func(b bundle.Bundle) bundle.Bundle { return b.Rename(clean) })
	if !ok {
		return bundle.Bundle{}, apperr.NewNotFound("bundle", id)
	}
	w.touch()
	w.log.Action("Renamed %s to %s", id, clean)
	return b, nil
}

// SetDuplicate flags or unflags bundles as duplicates.
func (w *Workspace) SetDuplicate(ids []string, dup bool) (int, error) {
	n, err := w.update(ids, func(b bundle.Bundle) (bundle.Bundle, bool) {
		if b.IsDuplicate == dup {
			return b, false
		}
		b.IsDuplicate = dup
		return b, true
	})
	if err == nil {
		verb := "Restored"
		if dup {
			verb = "Marked"
		}
		w.log.Action("%s %d bundle(s) as duplicate/trash", verb, n)
	}
	return n, err
}

// ToggleDuplicate flips the flag of id and applies the result to all ids
// (id included).
func (w *Workspace) ToggleDuplicate(id string, ids ...string) (bool, error) {
	b, ok := w.coll.Get(id)
	if !ok {
		return false, apperr.NewNotFound("bundle", id)
	}
	next := !b.IsDuplicate
	_, err := w.SetDuplicate(append([]string{id}, ids...), next)
	return next, err
}

// AddCategory appends a new category.
func (w *Workspace) AddCategory(name string) (string, error) {
	clean, err := bundle.ValidateName(name)
	if err != nil {
		return "", err
	}
	w.mu.Lock()
	if bundle.ContainsFold(w.categories, clean) {
		w.mu.Unlock()
		return "", apperr.NewAlreadyExists("category", clean)
	}
	w.categories = append(w.categories, clean)
	w.mu.Unlock()

	w.touch()
	w.log.Action("Added category %q", clean)
	return clean, nil
}

// RenameCategory renames a category and cascades the new name into every
// bundle's tags, learning each changed tag set.
func (w *Workspace) RenameCategory(oldName, newName string) (string, error) {
	clean, err := bundle.ValidateName(newName)
	if err != nil {
		return "", err
	}

	w.mu.Lock()
	idx := -1
	for i, c := range w.categories {
		if c == oldName {
			idx = i
			break
		}
	}
	if idx < 0 {
		w.mu.Unlock()
		return "", apperr.NewNotFound("category", oldName)
	}
	if clean == oldName {
		w.mu.Unlock()
		return clean, nil
	}
	for i, c := range w.categories {
		if i != idx && strings.EqualFold(c, clean) {
			w.mu.Unlock()
			return "", apperr.NewAlreadyExists("category", clean)
		}
	}
	w.categories[idx] = clean
	w.mu.Unlock()

	for _, b := range w.coll.All() {
		if !hasTag(b, oldName) {
			continue
		}
		w.coll.Update(b.ID, func(cur bundle.Bundle) bundle.Bundle {
			tags := make([]string, len(cur.Tags))
			for i, t := range cur.Tags {
				if t == oldName {
					t = clean
				}
				tags[i] = t
			}
			next := cur.WithTags(tags, cur.Status)
			next.Category = cur.Category
			if next.Category == oldName {
				next.Category = clean
			}
			w.learn(next)
			return next
		})
	}

	w.touch()
	w.log.Action("Renamed category %q to %q", oldName, clean)
	return clean, nil
}

// SetCategories replaces the category list. Tags no longer in the list
// are dropped from bundles; bundles left without tags become pending.
func (w *Workspace) SetCategories(list []string) ([]string, error) {
	clean, err := bundle.ValidateCategories(list)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.categories = clean
	w.mu.Unlock()

	for _, b := range w.coll.All() {
		kept := bundle.FilterKnown(b.Tags, clean)
		if len(kept) == len(b.Tags) {
			continue
		}
		status := b.Status
		if len(kept) == 0 && status == bundle.StatusCategorized {
			status = bundle.StatusPending
		}
		w.coll.Replace(b.WithTags(kept, status))
	}

	w.touch()
	w.log.Success("Updated categories list. Total: %d", len(clean))
	return append([]string(nil), clean...), nil
}

// ApplyProfile replaces the category list with a profile's.
func (w *Workspace) ApplyProfile(id string, extra []bundle.Profile) ([]string, error) {
	p, ok := bundle.FindProfile(id, extra)
	if !ok {
		return nil, apperr.NewNotFound("profile", id)
	}
	w.log.Info("Applying profile %s", p.Name)
	return w.SetCategories(p.Categories)
}

// ForgetRule removes a learned rule by normalized key.
func (w *Workspace) ForgetRule(key string) error {
	if !w.memory.Forget(key) {
		return apperr.NewNotFound("rule", key)
	}
	w.touch()
	w.log.Info("Forgot rule for %q", key)
	return nil
}

func hasTag(b bundle.Bundle, tag string) bool {
	for _, t := range b.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
