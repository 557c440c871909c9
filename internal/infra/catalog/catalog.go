package catalog

import (
	"errors"
	"fmt"
	"strings"

	"toolgate/internal/domain"
	"toolgate/internal/infra/hashutil"
)

// Catalog is an immutable, declaration-ordered set of tool entries.
type Catalog struct {
	entries  []domain.ToolCatalogEntry
	index    map[string]int
	etag     string
	revision uint64
}

// New validates entries and builds a catalog. Every problem found is reported
// in a single error.
func New(entries []domain.ToolCatalogEntry) (*Catalog, error) {
	if errs := Validate(entries); len(errs) > 0 {
		return nil, domain.E(domain.CodeInvalidArgument, "catalog.New", strings.Join(errs, "; "), domain.ErrInvalidCatalog)
	}
	copied := make([]domain.ToolCatalogEntry, len(entries))
	copy(copied, entries)
	index := make(map[string]int, len(copied))
	for i, entry := range copied {
		index[entry.Name] = i
	}
	return &Catalog{entries: copied, index: index, etag: hashutil.CatalogETag(nil, copied)}, nil
}

// MustNew is New for static catalogs in tests and examples.
func MustNew(entries ...domain.ToolCatalogEntry) *Catalog {
	c, err := New(entries)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) withRevision(revision uint64) *Catalog {
	out := *c
	out.revision = revision
	return &out
}

func (c *Catalog) Revision() uint64 {
	return c.revision
}

// ETag is a content digest of the entries; equal catalogs share it.
func (c *Catalog) ETag() string {
	return c.etag
}

// Entries returns the entries in declaration order.
func (c *Catalog) Entries() []domain.ToolCatalogEntry {
	out := make([]domain.ToolCatalogEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c *Catalog) Lookup(name string) (domain.ToolCatalogEntry, bool) {
	i, ok := c.index[name]
	if !ok {
		return domain.ToolCatalogEntry{}, false
	}
	return c.entries[i], true
}

func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.entries))
	for _, entry := range c.entries {
		names = append(names, entry.Name)
	}
	return names
}

func (c *Catalog) Len() int {
	return len(c.entries)
}

// Current lets a static catalog serve as a catalog source.
func (c *Catalog) Current() *Catalog {
	return c
}

// Validate returns one message per catalog problem.
func Validate(entries []domain.ToolCatalogEntry) []string {
	var errs []string
	names := make(map[string]struct{}, len(entries))
	for i, entry := range entries {
		name := entry.Name
		switch {
		case strings.TrimSpace(name) == "":
			errs = append(errs, fmt.Sprintf("tools[%d]: name is required", i))
			continue
		case name != strings.TrimSpace(name):
			errs = append(errs, fmt.Sprintf("tools[%d]: name %q has surrounding whitespace", i, name))
		}
		if _, exists := names[name]; exists {
			errs = append(errs, fmt.Sprintf("tools[%d]: duplicate name %q", i, name))
			continue
		}
		names[name] = struct{}{}
	}

	for i, entry := range entries {
		for g, group := range entry.DependencyGroups {
			prefix := fmt.Sprintf("tools[%d].dependencies[%d]", i, g)
			if !group.Kind.Valid() {
				errs = append(errs, fmt.Sprintf("%s: kind must be sequence, any or all", prefix))
			}
			if len(group.Dependencies) == 0 {
				errs = append(errs, fmt.Sprintf("%s: at least one dependency is required", prefix))
			}
			for d, dep := range group.Dependencies {
				if dep.Requirement != domain.RequirementRequired {
					errs = append(errs, fmt.Sprintf("%s.tools[%d]: requirement must be required", prefix, d))
				}
				if _, ok := names[dep.ToolName]; !ok {
					errs = append(errs, fmt.Sprintf("%s.tools[%d]: unknown tool %q", prefix, d, dep.ToolName))
				}
			}
		}
		if entry.InputSchema != nil {
			if _, err := entry.InputSchema.Resolve(nil); err != nil {
				errs = append(errs, fmt.Sprintf("tools[%d]: inputSchema: %v", i, err))
			}
		}
	}

	if cycle := findCycle(entries); len(cycle) > 0 {
		errs = append(errs, fmt.Sprintf("%v: %s", domain.ErrDependencyCycle, strings.Join(cycle, " -> ")))
	}
	return errs
}

// ValidationError reports whether err came from configuration or catalog
// validation rather than from reading the file.
func ValidationError(err error) bool {
	return errors.Is(err, domain.ErrInvalidCatalog) || errors.Is(err, domain.ErrInvalidConfig)
}

const (
	unvisited = iota
	visiting
	visited
)

// findCycle walks tool -> dependency edges depth first, in declaration order,
// and returns the first cycle found as a closed path.
func findCycle(entries []domain.ToolCatalogEntry) []string {
	edges := make(map[string][]string, len(entries))
	for _, entry := range entries {
		for _, group := range entry.DependencyGroups {
			edges[entry.Name] = append(edges[entry.Name], group.ToolNames()...)
		}
	}

	state := make(map[string]int, len(entries))
	var stack []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		state[name] = visiting
		stack = append(stack, name)
		for _, dep := range edges[name] {
			switch state[dep] {
			case visiting:
				start := 0
				for i, n := range stack {
					if n == dep {
						start = i
						break
					}
				}
				cycle = append(append([]string(nil), stack[start:]...), dep)
				return true
			case unvisited:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = visited
		return false
	}

	for _, entry := range entries {
		if state[entry.Name] == unvisited && visit(entry.Name) {
			return cycle
		}
	}
	return nil
}
