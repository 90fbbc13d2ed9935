package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/luinbytes/iconic/bundle"
	"github.com/luinbytes/iconic/dedupe"
	"github.com/luinbytes/iconic/enrich"
	"github.com/luinbytes/iconic/fileops"
	"github.com/luinbytes/iconic/rules"
	"github.com/luinbytes/iconic/workspace"
)

const rule = "======================================================================"

func reportCounts(w io.Writer, c workspace.Counts, leftovers int) {
	fmt.Fprintf(w, "Bundles: %d  Uncategorized: %d  Duplicates: %d  Unrelated files: %d\n",
		c.Total, c.Uncategorized, c.Duplicates, leftovers)
	if len(c.Tags) == 0 {
		return
	}
	names := make([]string, 0, len(c.Tags))
	for name := range c.Tags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-24s %4d tagged, %4d primary\n", name, c.Tags[name], c.Primary[name])
	}
}

func reportBundles(w io.Writer, bundles []bundle.Bundle) {
	for _, b := range bundles {
		tags := "-"
		if len(b.Tags) > 0 {
			tags = strings.Join(b.Tags, ", ")
		}
		flag := ""
		if b.IsDuplicate {
			flag = " [duplicate]"
		}
		fmt.Fprintf(w, "%-40s %-12s %-30s %s%s\n", b.ID, b.Status, tags, formatBytes(b.Size), flag)
	}
}

func reportGroups(w io.Writer, groups []dedupe.Group, names func(id string) string) {
	if len(groups) == 0 {
		fmt.Fprintln(w, "No duplicates found!")
		return
	}
	fmt.Fprintln(w, "Duplicate Bundles:")
	fmt.Fprintln(w, rule)
	total := 0
	for i, g := range groups {
		total += len(g.Duplicates)
		fmt.Fprintf(w, "\n[%d] Matched by %s, keeping %q\n", i+1, g.Reason, g.BestName)
		fmt.Fprintf(w, "    KEEP   %s\n", names(g.SurvivorID))
		for _, id := range g.Duplicates {
			fmt.Fprintf(w, "    DELETE %s\n", names(id))
		}
	}
	fmt.Fprintln(w, "\n"+rule)
	fmt.Fprintf(w, "Summary: %d duplicate bundles in %d groups\n", total, len(groups))
}

func reportAnalysis(w io.Writer, r workspace.AnalysisReport) {
	res := r.Result
	state := "complete"
	if res.Cancelled {
		state = "cancelled"
	}
	fmt.Fprintf(w, "Analysis %s (run %s)\n", state, r.RunID)
	fmt.Fprintf(w, "  Targets: %d  Memory hits: %d  Sent: %d  Categorized: %d\n",
		res.Targets, res.MemoryHits, res.Sent, res.Categorized)
	fmt.Fprintf(w, "  Retried: %d  Failed: %d  Reset: %d\n", res.Retried, res.Failed, res.Reset)
	if r.Enriched != nil {
		reportEnrich(w, *r.Enriched)
	}
	if r.Organize != nil {
		reportSummary(w, "Organize", *r.Organize)
	}
}

func reportSummary(w io.Writer, op string, s fileops.Summary) {
	fmt.Fprintf(w, "%s: %d moved, %d copies, %d in place, %d duplicates deleted, %d unrelated files, %d restored, %d failed, %d folders pruned\n",
		op, s.Moved, s.Copies, s.InPlace, s.Deleted, s.Leftovers, s.Restored, s.Failed, s.Pruned)
}

func reportEnrich(w io.Writer, r enrich.Result) {
	fmt.Fprintf(w, "Images: %d fetched, %d linked, %d repeats skipped, %d failed\n", r.Fetched, r.Attached, r.Repeats, r.Failed)
}

func reportRules(w io.Writer, all map[string]rules.Rule) {
	if len(all) == 0 {
		fmt.Fprintln(w, "No learned rules yet.")
		return
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r := all[k]
		strength := "weak"
		if r.Strong() {
			strength = "strong"
		}
		fmt.Fprintf(w, "%-32s %-30s x%d (%s)\n", k, strings.Join(r.Tags, ", "), r.Count, strength)
	}
}

func reportCategories(w io.Writer, list []string) {
	for i, name := range list {
		fmt.Fprintf(w, "%2d. %s\n", i+1, name)
	}
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
