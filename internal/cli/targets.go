package cli

import (
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/studiowebux/perfwatch/internal/session"
	"github.com/studiowebux/perfwatch/internal/types"
)

// SelectTargets resolves a --target pattern against the known targets.
// An exact (case-insensitive) name wins; otherwise fuzzy matches are returned best first.
func SelectTargets(pattern string, targets []string) []string {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return targets
	}
	for _, t := range targets {
		if strings.EqualFold(t, pattern) {
			return []string{t}
		}
	}

	matches := fuzzy.Find(pattern, targets)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Str)
	}
	return out
}

// NarrowSnapshot keeps only the selected targets in every per-target view.
// The snapshot is modified in place.
func NarrowSnapshot(snap *session.Snapshot, selected []string) {
	keep := make(map[string]bool, len(selected))
	for _, name := range selected {
		keep[name] = true
	}

	targets := snap.Data.Targets[:0]
	for _, t := range snap.Data.Targets {
		if keep[t] {
			targets = append(targets, t)
		}
	}
	snap.Data.Targets = targets

	for name := range snap.Data.ByAPI {
		if !keep[name] {
			delete(snap.Data.ByAPI, name)
		}
	}
	for _, byTarget := range snap.Data.ByIndex {
		for name := range byTarget {
			if !keep[name] {
				delete(byTarget, name)
			}
		}
	}
	for name := range snap.Data.Units {
		if !keep[name] {
			delete(snap.Data.Units, name)
		}
	}

	errRows := snap.ErrorCounts[:0]
	for _, row := range snap.ErrorCounts {
		if keep[row.Name] {
			errRows = append(errRows, row)
		}
	}
	snap.ErrorCounts = errRows

	samples := snap.ErrorSamples[:0]
	for _, e := range snap.ErrorSamples {
		if keep[e.Name] {
			samples = append(samples, e)
		}
	}
	snap.ErrorSamples = samples

	var groups types.StatusCodeData
	for _, g := range snap.StatusCodes {
		var children []types.StatusCodeEntry
		for _, c := range g.Children {
			if keep[c.Name] {
				children = append(children, c)
			}
		}
		if keep[g.Key] || len(children) > 0 {
			g.Children = children
			groups = append(groups, g)
		}
	}
	snap.StatusCodes = groups
}
