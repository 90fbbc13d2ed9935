package bundle

import (
	"regexp"
	"strings"

	"github.com/luinbytes/iconic/apperr"
)

// Uncategorized is the folder for bundles without tags.
const Uncategorized = "Uncategorized"

// UnusedAssetsDir is where leftovers are collected on organize.
const UnusedAssetsDir = "_Unused_Assets"

// DefaultCategories is the Standard profile.
var DefaultCategories = []string{
	"Synth",
	"Bass",
	"Drums",
	"Orchestral",
	"Piano & Keys",
	"FX - Reverb",
	"FX - Delay",
	"FX - Distortion",
	"FX - Dynamics",
	"FX - Modulation",
	"Mastering",
	"Utilities",
}

// Profile is a named starter set of categories.
type Profile struct {
	ID         string   `yaml:"id" json:"id"`
	Name       string   `yaml:"name" json:"name"`
	Categories []string `yaml:"categories" json:"categories"`
}

// BuiltinProfiles are always available.
var BuiltinProfiles = []Profile{
	{ID: "default", Name: "Standard (FL)", Categories: DefaultCategories},
	{ID: "electronic", Name: "Electronic / EDM", Categories: []string{"Leads", "Pads", "Plucks", "Bass - Growl", "Bass - Sub", "FX - Risers", "Drums - Kick", "Drums - Snare"}},
	{ID: "orchestral", Name: "Cinematic / Orch", Categories: []string{"Strings", "Brass", "Woodwinds", "Percussion", "Choir", "Piano", "Hybrid"}},
}

// FindProfile looks a profile up by id among extra and builtin profiles.
func FindProfile(id string, extra []Profile) (Profile, bool) {
	for _, p := range append(append([]Profile(nil), extra...), BuiltinProfiles...) {
		if strings.EqualFold(p.ID, id) {
			return p, true
		}
	}
	return Profile{}, false
}

var illegalNameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`)

// SanitizeName removes characters that are illegal in file and folder
// names and trims surrounding space.
func SanitizeName(name string) string {
	return strings.TrimSpace(illegalNameChars.ReplaceAllString(name, ""))
}

// ValidateName sanitizes a bundle or category name, rejecting names that
// end up empty.
func ValidateName(name string) (string, error) {
	clean := SanitizeName(name)
	if clean == "" || clean == "." || clean == ".." {
		return "", apperr.NewInvalidInput("name is empty or contains only invalid characters: " + name)
	}
	return clean, nil
}

// ValidateCategories sanitizes a category list and rejects empty entries
// and case-insensitive duplicates. Nothing is returned on error.
func ValidateCategories(list []string) ([]string, error) {
	out := make([]string, 0, len(list))
	for _, raw := range list {
		clean, err := ValidateName(raw)
		if err != nil {
			return nil, err
		}
		if ContainsFold(out, clean) {
			return nil, apperr.NewAlreadyExists("category", clean)
		}
		out = append(out, clean)
	}
	return out, nil
}

// ContainsFold reports whether list holds name, ignoring case.
func ContainsFold(list []string, name string) bool {
	_, ok := Canonical(list, name)
	return ok
}

// Canonical returns the list entry matching name case-insensitively.
func Canonical(list []string, name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, c := range list {
		if strings.EqualFold(c, name) {
			return c, true
		}
	}
	return "", false
}

// FilterKnown keeps the tags that name a category in list (or
// Uncategorized), mapped to the list's casing.
func FilterKnown(tags, list []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if c, ok := Canonical(list, t); ok {
			out = append(out, c)
		} else if strings.EqualFold(t, Uncategorized) {
			out = append(out, Uncategorized)
		}
	}
	return DedupeTags(out)
}
