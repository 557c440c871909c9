package dependency

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"toolgate/internal/domain"
)

func reportCatalog() []domain.ToolCatalogEntry {
	return []domain.ToolCatalogEntry{
		{Name: "search", Description: "Search the web"},
		{Name: "summarize", DependencyGroups: []domain.DependencyGroup{group(domain.DependencyAll, "search")}},
		{Name: "deploy", DependencyGroups: []domain.DependencyGroup{
			group(domain.DependencySequence, "search", "summarize"),
			group(domain.DependencyAny, "search"),
		}},
	}
}

func TestReport_AvailableOnly(t *testing.T) {
	got := Report(reportCatalog(), nil, ReportOptions{})
	assert.Equal(t, "Available tools (1):\n- search: Search the web\n", got)
}

func TestReport_AllSections(t *testing.T) {
	got := Report(reportCatalog(), history(success("search")), ReportOptions{
		IncludeUnavailable:  true,
		IncludeDependencies: true,
		IncludeStatistics:   true,
	})
	want := "Available tools (2):\n" +
		"- search: Search the web\n" +
		"- summarize\n" +
		"  requires: all(search)\n" +
		"\nUnavailable tools (1):\n" +
		"- deploy [dependency group 1 (sequence): summarize not yet run]\n" +
		"  requires: sequence(search -> summarize) AND any(search)\n" +
		"\nStatistics: 2 available, 1 unavailable, 3 total\n"
	assert.Equal(t, want, got)
}

func TestReport_Deterministic(t *testing.T) {
	opts := ReportOptions{IncludeUnavailable: true, IncludeStatistics: true}
	h := history(success("search"), failure("summarize"))
	first := Report(reportCatalog(), h, opts)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Report(reportCatalog(), h, opts))
	}
}

func TestReport_EmptySections(t *testing.T) {
	got := Report(nil, nil, ReportOptions{IncludeUnavailable: true, IncludeStatistics: true})
	assert.Equal(t, "Available tools (0):\n- (none)\n\nUnavailable tools (0):\n- (none)\n\nStatistics: 0 available, 0 unavailable, 0 total\n", got)
}
