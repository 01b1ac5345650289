package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// keyKind describes how a config value is validated before it is written.
type keyKind int

const (
	kindString keyKind = iota
	kindBool
	kindInt
	kindDuration
)

// knownKeys are the settings `ws config set` accepts.
var knownKeys = map[string]keyKind{
	"json":                        kindBool,
	"db":                          kindString,
	"actor":                       kindString,
	"backend":                     kindString,
	"build.max-parallel":          kindInt,
	"build.max-retries":           kindInt,
	"build.ticket-timeout":        kindDuration,
	"build.max-iterations":        kindInt,
	"build.time-budget":           kindDuration,
	"build.pacing":                kindString,
	"build.conservative-interval": kindDuration,
	"build.command":               kindString,
	"plan.provider":               kindString,
	"plan.command":                kindString,
	"plan.model":                  kindString,
	"plan.max-tokens":             kindInt,
	"pr.status-command":           kindString,
	"run.interval":                kindDuration,
	"run.log":                     kindString,
	"run.log-max-size":            kindInt,
	"run.log-max-backups":         kindInt,
	"run.log-max-age":             kindInt,
}

// KnownKeys returns the settable config keys in sorted order.
func KnownKeys() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValidateValue checks value against the type of key.
func ValidateValue(key, value string) error {
	kind, ok := knownKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}
	switch kind {
	case kindBool:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%s: expected true or false, got %q", key, value)
		}
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("%s: expected a non-negative integer, got %q", key, value)
		}
		if key == "build.max-parallel" && n == 0 {
			return fmt.Errorf("%s must be at least 1", key)
		}
	case kindDuration:
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s: expected a duration like 30m, got %q", key, value)
		}
	}
	switch key {
	case "build.pacing":
		return ValidatePacing(value)
	case "backend":
		if value != "json" && value != "sqlite" {
			return fmt.Errorf("backend: expected json or sqlite, got %q", value)
		}
	case "plan.provider":
		if value != PlanProviderCommand && value != PlanProviderAnthropic {
			return fmt.Errorf("plan.provider: expected %s or %s, got %q", PlanProviderCommand, PlanProviderAnthropic, value)
		}
	}
	return nil
}

// SetYamlConfig writes key=value into the config.yaml at path, creating the
// file and any intermediate mappings. Dotted keys nest ("build.pacing" lives
// under "build:"). Comments and unrelated keys are preserved.
func SetYamlConfig(path, key, value string) error {
	if err := ValidateValue(key, value); err != nil {
		return err
	}

	var root yaml.Node
	data, err := os.ReadFile(path) // #nosec G304 - path is the workspace config file
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &root); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	if root.Kind == 0 {
		root = yaml.Node{Kind: yaml.DocumentNode}
	}
	if len(root.Content) == 0 {
		root.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
	}
	mapping := root.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return fmt.Errorf("%s: top level is not a mapping", path)
	}

	parts := strings.Split(key, ".")
	for _, part := range parts[:len(parts)-1] {
		mapping = childMapping(mapping, part)
	}
	setScalar(mapping, parts[len(parts)-1], value, knownKeys[key])

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&root); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// GetYamlConfig reads a dotted key from the config.yaml at path.
// Returns "" when the file or key is missing.
func GetYamlConfig(path, key string) (string, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is the workspace config file
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(root.Content) == 0 {
		return "", nil
	}
	node := root.Content[0]
	for _, part := range strings.Split(key, ".") {
		node = lookup(node, part)
		if node == nil {
			return "", nil
		}
	}
	if node.Kind != yaml.ScalarNode {
		return "", fmt.Errorf("%s is not a scalar", key)
	}
	return node.Value, nil
}

func lookup(mapping *yaml.Node, key string) *yaml.Node {
	if mapping == nil || mapping.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

func childMapping(mapping *yaml.Node, key string) *yaml.Node {
	if child := lookup(mapping, key); child != nil {
		if child.Kind != yaml.MappingNode {
			*child = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		}
		return child
	}
	child := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		child)
	return child
}

func setScalar(mapping *yaml.Node, key, value string, kind keyKind) {
	tag := "!!str"
	switch kind {
	case kindBool:
		tag = "!!bool"
		b, _ := strconv.ParseBool(value)
		value = strconv.FormatBool(b)
	case kindInt:
		tag = "!!int"
	}
	node := &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			node.LineComment = mapping.Content[i+1].LineComment
			mapping.Content[i+1] = node
			return
		}
	}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		node)
}
