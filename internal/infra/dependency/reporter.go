package dependency

import (
	"fmt"
	"strings"

	"toolgate/internal/domain"
)

// ReportOptions selects the optional report sections.
type ReportOptions struct {
	IncludeUnavailable  bool
	IncludeDependencies bool
	IncludeStatistics   bool
}

// Report renders a deterministic availability summary in catalog order.
func Report(entries []domain.ToolCatalogEntry, history []domain.ExecutionRecord, opts ReportOptions) string {
	statuses := ResolveAll(entries, history)

	var available, unavailable []int
	for i, status := range statuses {
		if status.Available {
			available = append(available, i)
		} else {
			unavailable = append(unavailable, i)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Available tools (%d):\n", len(available))
	if len(available) == 0 {
		b.WriteString("- (none)\n")
	}
	for _, i := range available {
		writeLine(&b, entries[i], "", opts)
	}

	if opts.IncludeUnavailable {
		fmt.Fprintf(&b, "\nUnavailable tools (%d):\n", len(unavailable))
		if len(unavailable) == 0 {
			b.WriteString("- (none)\n")
		}
		for _, i := range unavailable {
			writeLine(&b, entries[i], statuses[i].Reason, opts)
		}
	}

	if opts.IncludeStatistics {
		fmt.Fprintf(&b, "\nStatistics: %d available, %d unavailable, %d total\n",
			len(available), len(unavailable), len(statuses))
	}
	return b.String()
}

func writeLine(b *strings.Builder, entry domain.ToolCatalogEntry, reason string, opts ReportOptions) {
	b.WriteString("- ")
	b.WriteString(entry.Name)
	if entry.Description != "" {
		b.WriteString(": ")
		b.WriteString(entry.Description)
	}
	if reason != "" {
		b.WriteString(" [")
		b.WriteString(reason)
		b.WriteString("]")
	}
	b.WriteString("\n")
	if opts.IncludeDependencies && !entry.Unconstrained() {
		b.WriteString("  requires: ")
		b.WriteString(DescribeGroups(entry.DependencyGroups))
		b.WriteString("\n")
	}
}

// DescribeGroups renders dependency declarations joined with AND.
func DescribeGroups(groups []domain.DependencyGroup) string {
	parts := make([]string, 0, len(groups))
	for _, group := range groups {
		parts = append(parts, group.String())
	}
	return strings.Join(parts, " AND ")
}
