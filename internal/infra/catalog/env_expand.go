package catalog

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// expandConfigEnv replaces ${VAR} and ${VAR:-fallback} in scalar values only,
// so expanded values can never inject YAML structure.
func expandConfigEnv(raw []byte) (string, []string, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return "", nil, fmt.Errorf("parse config: %w", err)
	}
	if root.Kind == 0 {
		return "", nil, nil
	}

	missing := make(map[string]struct{})
	walkScalars(&root, func(node *yaml.Node) {
		expandScalar(node, missing)
	})

	expanded, err := yaml.Marshal(&root)
	if err != nil {
		return "", nil, fmt.Errorf("encode expanded config: %w", err)
	}
	return string(expanded), sortedKeys(missing), nil
}

func walkScalars(node *yaml.Node, fn func(*yaml.Node)) {
	switch node.Kind {
	case yaml.ScalarNode:
		fn(node)
	case yaml.MappingNode:
		// keys are left alone
		for i := 1; i < len(node.Content); i += 2 {
			walkScalars(node.Content[i], fn)
		}
	case yaml.AliasNode:
		if node.Alias != nil {
			walkScalars(node.Alias, fn)
		}
	default:
		for _, child := range node.Content {
			walkScalars(child, fn)
		}
	}
}

func expandScalar(node *yaml.Node, missing map[string]struct{}) {
	if node.Tag != "" && node.Tag != "!!str" {
		return
	}
	if !strings.Contains(node.Value, "$") {
		return
	}

	expanded := os.Expand(node.Value, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if val, ok := os.LookupEnv(name); ok && val != "" {
			return val
		}
		if hasFallback {
			return fallback
		}
		missing[name] = struct{}{}
		return ""
	})
	if expanded == node.Value {
		return
	}

	// quoted scalars stay strings
	if node.Style != 0 {
		node.Tag = "!!str"
		node.Value = expanded
		return
	}
	node.Tag, node.Value = inferScalarTag(expanded)
}

func inferScalarTag(value string) (string, string) {
	if strings.TrimSpace(value) == "" {
		return "!!str", value
	}
	if b, err := strconv.ParseBool(value); err == nil && (value == "true" || value == "false") {
		return "!!bool", strconv.FormatBool(b)
	}
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return "!!int", strconv.FormatInt(i, 10)
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil && strings.ContainsAny(value, ".eE") {
		return "!!float", strconv.FormatFloat(f, 'f', -1, 64)
	}
	return "!!str", value
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
