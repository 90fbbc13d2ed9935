// Package rules remembers how the user tags bundles so repeated
// corrections can be applied without asking the oracle.
package rules

import (
	"sort"
	"sync"

	"github.com/luinbytes/iconic/bundle"
	"github.com/luinbytes/iconic/fingerprint"
)

// Threshold is the count at which a rule is applied automatically.
const Threshold = 2

// Rule is a learned tag set for one normalized name.
type Rule struct {
	Tags  []string `json:"tags"`
	Count int      `json:"count"`
}

// Strong reports whether the rule is confident enough to auto-apply.
func (r Rule) Strong() bool {
	return r.Count >= Threshold
}

// Memory maps normalized names to rules. It is safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

// NewMemory creates a memory seeded with rules (which may be nil).
func NewMemory(seed map[string]Rule) *Memory {
	m := &Memory{rules: make(map[string]Rule, len(seed))}
	for k, r := range seed {
		m.rules[k] = Rule{Tags: append([]string(nil), r.Tags...), Count: r.Count}
	}
	return m
}

// RecordCorrection learns that the bundle named name was tagged with tags.
// The same tag set (in any order) raises the count; a different set
// replaces the rule with count 1. Names that normalize to nothing are
// ignored. It returns the resulting rule.
func (m *Memory) RecordCorrection(name string, tags []string) (Rule, bool) {
	key := fingerprint.NormalizeIdentity(name)
	if key == "" {
		return Rule{}, false
	}
	tags = bundle.DedupeTags(tags)

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.rules[key]
	next := Rule{Tags: tags, Count: 1}
	if ok && bundle.SameTagSet(existing.Tags, tags) {
		next.Count = existing.Count + 1
	}
	m.rules[key] = next
	return Rule{Tags: append([]string(nil), next.Tags...), Count: next.Count}, true
}

// Lookup returns the rule for a bundle name.
func (m *Memory) Lookup(name string) (Rule, bool) {
	return m.Get(fingerprint.NormalizeIdentity(name))
}

// Get returns the rule stored under a normalized key.
func (m *Memory) Get(key string) (Rule, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[key]
	if !ok {
		return Rule{}, false
	}
	return Rule{Tags: append([]string(nil), r.Tags...), Count: r.Count}, true
}

// Strong returns the rule for name only if it is confident enough.
func (m *Memory) Strong(name string) (Rule, bool) {
	r, ok := m.Lookup(name)
	if !ok || !r.Strong() {
		return Rule{}, false
	}
	return r, true
}

// Forget removes a rule by normalized key and reports whether it existed.
func (m *Memory) Forget(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rules[key]
	delete(m.rules, key)
	return ok
}

// Snapshot copies all rules.
func (m *Memory) Snapshot() map[string]Rule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Rule, len(m.rules))
	for k, r := range m.rules {
		out[k] = Rule{Tags: append([]string(nil), r.Tags...), Count: r.Count}
	}
	return out
}

// Keys returns the rule keys in sorted order.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.rules))
	for k := range m.rules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of rules.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rules)
}
