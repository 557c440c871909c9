// Package dependency decides which tools are offerable from a catalog and a
// thread's execution history.
package dependency

import (
	"fmt"
	"strings"

	"toolgate/internal/domain"
)

const (
	ReasonNoConstraints = "no constraints"
	ReasonSatisfied     = "all dependencies satisfied"
)

// Index holds the history position of the latest successful run per tool.
type Index map[string]int

// NewIndex scans history once. Failed records never satisfy a dependency.
func NewIndex(history []domain.ExecutionRecord) Index {
	idx := make(Index)
	for pos, record := range history {
		if record.Outcome == domain.OutcomeSuccess {
			idx[record.ToolName] = pos
		}
	}
	return idx
}

func (idx Index) latest(tool string) (int, bool) {
	pos, ok := idx[tool]
	return pos, ok
}

// Resolve reports whether entry is currently available given history.
func Resolve(entry domain.ToolCatalogEntry, history []domain.ExecutionRecord) domain.AvailabilityStatus {
	return NewIndex(history).Resolve(entry)
}

// ResolveAll resolves every entry in order against the same history.
func ResolveAll(entries []domain.ToolCatalogEntry, history []domain.ExecutionRecord) []domain.AvailabilityStatus {
	idx := NewIndex(history)
	out := make([]domain.AvailabilityStatus, 0, len(entries))
	for _, entry := range entries {
		out = append(out, idx.Resolve(entry))
	}
	return out
}

// Resolve checks every group; groups combine with AND and the first
// unsatisfied one is reported.
func (idx Index) Resolve(entry domain.ToolCatalogEntry) domain.AvailabilityStatus {
	status := domain.AvailabilityStatus{ToolName: entry.Name, Available: true}
	if entry.Unconstrained() {
		status.Reason = ReasonNoConstraints
		return status
	}
	for i, group := range entry.DependencyGroups {
		if problem := idx.check(group); problem != "" {
			status.Available = false
			status.Reason = fmt.Sprintf("dependency group %d (%s): %s", i+1, group.Kind, problem)
			return status
		}
	}
	status.Reason = ReasonSatisfied
	return status
}

func (idx Index) check(group domain.DependencyGroup) string {
	names := group.ToolNames()
	switch group.Kind {
	case domain.DependencyAll:
		if missing := idx.missing(names); len(missing) > 0 {
			return notYetRun(missing)
		}
	case domain.DependencyAny:
		for _, name := range names {
			if _, ok := idx.latest(name); ok {
				return ""
			}
		}
		return fmt.Sprintf("none of %s has run successfully", strings.Join(names, ", "))
	case domain.DependencySequence:
		if missing := idx.missing(names); len(missing) > 0 {
			return notYetRun(missing)
		}
		// Latest run per step; positions must not decrease in declared order.
		prev := -1
		for i, name := range names {
			pos, _ := idx.latest(name)
			if pos < prev {
				return fmt.Sprintf("%s out of order: must run after %s", name, names[i-1])
			}
			prev = pos
		}
	default:
		return fmt.Sprintf("unknown dependency kind %q", group.Kind)
	}
	return ""
}

func (idx Index) missing(names []string) []string {
	var out []string
	for _, name := range names {
		if _, ok := idx.latest(name); !ok {
			out = append(out, name)
		}
	}
	return out
}

func notYetRun(names []string) string {
	return strings.Join(names, ", ") + " not yet run"
}

// Available returns the names of available entries in catalog order.
func Available(entries []domain.ToolCatalogEntry, history []domain.ExecutionRecord) []string {
	var names []string
	for _, status := range ResolveAll(entries, history) {
		if status.Available {
			names = append(names, status.ToolName)
		}
	}
	return names
}
