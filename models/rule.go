package models

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Rule categories with dedicated checks. Any other category name is a custom
// category and only gets the generic per-component check.
const (
	CategoryStructure    = "structure"
	CategoryNaming       = "naming"
	CategoryCapabilities = "capabilities"
	CategoryAgents       = "agents"
	CategoryPermissions  = "permissions"
	CategoryLogging      = "logging"
)

// RuleDocument is one parsed rule source. Its top level is a mapping that is
// expected to hold a key equal to its own category name.
type RuleDocument struct {
	Source   string
	Category string
	root     *yaml.Node
}

// ParseRuleDocument parses raw YAML into a RuleDocument.
// Returns (nil, nil) for a structurally empty document.
func ParseRuleDocument(source, category string, data []byte) (*RuleDocument, error) {
	var doc yaml.Node
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	root := &doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return nil, nil
		}
		root = root.Content[0]
	}

	switch {
	case isNull(root):
		return nil, nil
	case root.Kind == yaml.MappingNode && len(root.Content) == 0:
		return nil, nil
	case root.Kind == yaml.SequenceNode && len(root.Content) == 0:
		return nil, nil
	case root.Kind != yaml.MappingNode:
		return nil, fmt.Errorf("top level must be a mapping, got %s", kindName(root.Kind))
	}

	return &RuleDocument{
		Source:   source,
		Category: category,
		root:     root,
	}, nil
}

// Content decodes the whole document into a generic map
func (d *RuleDocument) Content() (map[string]interface{}, error) {
	content := make(map[string]interface{})
	if err := d.root.Decode(&content); err != nil {
		return nil, fmt.Errorf("failed to decode %s rules: %w", d.Category, err)
	}
	return content, nil
}

// HasSection reports whether the document carries a key equal to its category
func (d *RuleDocument) HasSection() bool {
	return lookup(d.root, d.Category) != nil
}

// section returns the category node as a mapping, or nil for a null section
func (d *RuleDocument) section() (*yaml.Node, error) {
	node := lookup(d.root, d.Category)
	if node == nil || isNull(node) {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s section must be a mapping, got %s", d.Category, kindName(node.Kind))
	}
	return node, nil
}

// StructureRules lists fields every policy must carry
type StructureRules struct {
	RequiredFields []string `yaml:"required_fields"`
}

// Structure decodes the structure category view
func (d *RuleDocument) Structure() (StructureRules, error) {
	var rules StructureRules
	err := d.decodeSection(&rules)
	return rules, err
}

// PatternRule holds a regular expression override
type PatternRule struct {
	Regex string `yaml:"regex"`
}

// NamingRules holds the optional component naming override
type NamingRules struct {
	ComponentPattern *PatternRule `yaml:"component_pattern"`
}

// Naming decodes the naming category view
func (d *RuleDocument) Naming() (NamingRules, error) {
	var rules NamingRules
	err := d.decodeSection(&rules)
	return rules, err
}

// CapabilityRules maps a component to its capability allow-list
type CapabilityRules map[string][]interface{}

// Allows reports whether any component's allow-list contains the capability
func (r CapabilityRules) Allows(capability interface{}) bool {
	for _, allowed := range r {
		if Contains(allowed, capability) {
			return true
		}
	}
	return false
}

// Capabilities decodes the capabilities category view. Mapping entries count
// their keys as allowed capabilities; scalar entries allow nothing.
func (d *RuleDocument) Capabilities() (CapabilityRules, error) {
	section, err := d.section()
	if err != nil || section == nil {
		return CapabilityRules{}, err
	}

	rules := make(CapabilityRules)
	for i := 0; i+1 < len(section.Content); i += 2 {
		name := section.Content[i].Value
		value := section.Content[i+1]

		switch value.Kind {
		case yaml.SequenceNode:
			var list []interface{}
			if err := value.Decode(&list); err != nil {
				return nil, fmt.Errorf("invalid capabilities for %s: %w", name, err)
			}
			rules[name] = list
		case yaml.MappingNode:
			keys := make([]interface{}, 0, len(value.Content)/2)
			for j := 0; j+1 < len(value.Content); j += 2 {
				keys = append(keys, value.Content[j].Value)
			}
			rules[name] = keys
		}
	}
	return rules, nil
}

// AgentRule lists fields required for a specific agent component
type AgentRule struct {
	RequiredFields []string `yaml:"required_fields"`
}

// Agent returns the agent rule for a component and whether it is listed
func (d *RuleDocument) Agent(component string) (AgentRule, bool, error) {
	var rule AgentRule
	section, err := d.section()
	if err != nil || section == nil {
		return rule, false, err
	}

	node := lookup(section, component)
	if node == nil {
		return rule, false, nil
	}
	if isNull(node) {
		return rule, true, nil
	}
	if err := node.Decode(&rule); err != nil {
		return rule, true, fmt.Errorf("invalid agent rules for %s: %w", component, err)
	}
	return rule, true, nil
}

// PermissionEntry describes the access level of a component
type PermissionEntry struct {
	Access string `yaml:"access"`
}

// PermissionRules holds the listed components and the optional default entry
type PermissionRules struct {
	Default    *PermissionEntry
	components map[string]struct{}
}

// Lists reports whether the component has its own permissions entry
func (r PermissionRules) Lists(component string) bool {
	_, ok := r.components[component]
	return ok
}

// Permissions decodes the permissions category view
func (d *RuleDocument) Permissions() (PermissionRules, error) {
	rules := PermissionRules{components: make(map[string]struct{})}
	section, err := d.section()
	if err != nil || section == nil {
		return rules, err
	}

	for i := 0; i+1 < len(section.Content); i += 2 {
		name := section.Content[i].Value
		rules.components[name] = struct{}{}
		if name != "default" {
			continue
		}
		value := section.Content[i+1]
		if value.Kind != yaml.MappingNode {
			continue
		}
		var entry PermissionEntry
		if err := value.Decode(&entry); err != nil {
			return rules, fmt.Errorf("invalid default permissions: %w", err)
		}
		rules.Default = &entry
	}
	return rules, nil
}

// LoggingRules lists the accepted log levels
type LoggingRules struct {
	AllowedLevels []interface{} `yaml:"allowed_levels"`
}

// Logging decodes the logging category view
func (d *RuleDocument) Logging() (LoggingRules, error) {
	var rules LoggingRules
	err := d.decodeSection(&rules)
	return rules, err
}

// FieldRule restricts one policy field to a set of values
type FieldRule struct {
	Field         string
	AllowedValues []interface{}
}

// ComponentRules are the generic rules found at rules[category][component]
type ComponentRules struct {
	RequiredFields []string
	Fields         []FieldRule
}

// ComponentRules returns the generic rules for a component, in document order
func (d *RuleDocument) ComponentRules(component string) (ComponentRules, bool, error) {
	var rules ComponentRules
	section, err := d.section()
	if err != nil || section == nil {
		return rules, false, err
	}

	// Only a mapping entry carries generic rules; capability lists and
	// scalar entries under the component name are category specific.
	node := lookup(section, component)
	if node == nil || node.Kind != yaml.MappingNode {
		return rules, false, nil
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		value := node.Content[i+1]

		if key == "required_fields" {
			if err := value.Decode(&rules.RequiredFields); err != nil {
				return rules, true, fmt.Errorf("invalid required_fields for %s: %w", component, err)
			}
			continue
		}
		if value.Kind != yaml.MappingNode {
			continue
		}
		allowed := lookup(value, "allowed_values")
		if allowed == nil {
			continue
		}
		var values []interface{}
		if err := allowed.Decode(&values); err != nil {
			return rules, true, fmt.Errorf("invalid allowed_values for %s.%s: %w", component, key, err)
		}
		rules.Fields = append(rules.Fields, FieldRule{Field: key, AllowedValues: values})
	}
	return rules, true, nil
}

func (d *RuleDocument) decodeSection(out interface{}) error {
	section, err := d.section()
	if err != nil || section == nil {
		return err
	}
	if err := section.Decode(out); err != nil {
		return fmt.Errorf("invalid %s rules: %w", d.Category, err)
	}
	return nil
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

func isNull(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.ShortTag() == "!!null"
}

func kindName(kind yaml.Kind) string {
	switch kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}
