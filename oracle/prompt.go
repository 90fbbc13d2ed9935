package oracle

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/luinbytes/iconic/classify"
)

const systemPrompt = "You are an expert audio librarian. Answer with a single JSON object and nothing else."

func categorizePrompt(req classify.Request) string {
	guess := "If completely unsure about a plugin, map it to null."
	if req.Relaxed {
		guess = "If unsure, make your best guess."
	}
	shape := `{"PluginName": ["PrimaryCategory"]}`
	count := "Assign exactly ONE category per plugin."
	if req.MultiTag {
		shape = `{"PluginName": ["PrimaryCategory", "SecondaryCategory", ...]}`
		count = "You may assign several relevant categories; the first is the primary one."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "PLUGINS: %s\n", mustJSON(req.Names))
	fmt.Fprintf(&b, "CATEGORIES: %s\n\n", mustJSON(req.Categories))
	b.WriteString("INSTRUCTIONS:\n")
	b.WriteString("1. Identify the plugin type (e.g. \"Pro-Q 3\" is an EQ).\n")
	b.WriteString("2. Match it to the best category from the list above, spelled exactly as listed.\n")
	fmt.Fprintf(&b, "3. %s\n", guess)
	fmt.Fprintf(&b, "4. Return JSON shaped like %s, keyed by the plugin name exactly as given.\n", shape)
	fmt.Fprintf(&b, "5. The primary category (index 0) is mandatory. %s\n", count)
	return b.String()
}

func suggestPrompt(samples, current []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Audio plugin file names: %s\n", mustJSON(samples))
	fmt.Fprintf(&b, "Current categories: %s\n\n", mustJSON(current))
	b.WriteString("Create a refined, comprehensive list of categories for organizing these plugins.\n")
	b.WriteString("1. Keep valid existing categories.\n")
	b.WriteString("2. Add categories the plugins call for (many EQ plugins suggest \"Equalizer\").\n")
	b.WriteString("3. Return a JSON object with a \"categories\" property holding an array of strings.\n")
	return b.String()
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(data)
}

var lineComment = regexp.MustCompile(`(?m)//.*$`)

// cleanJSON strips markdown fences and line comments some models add
// around JSON answers.
func cleanJSON(text string) string {
	s := strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(s, "```json"):
		s = s[len("```json"):]
	case strings.HasPrefix(s, "```"):
		s = s[3:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	s = lineComment.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if s == "" {
		return "{}"
	}
	return s
}
