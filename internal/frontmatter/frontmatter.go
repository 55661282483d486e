// Package frontmatter parses and builds YAML front-matter for vault notes.
//
// Unlike a plain map[string]any decode, the Mapping type preserves key
// order and round-trips every representable value type (strings, booleans,
// integers, floats, string arrays, nested mappings) losslessly through
// Parse → Build. Filing rewrites a note's metadata several times, so the
// codec must never scramble or drop fields the user wrote by hand.
package frontmatter

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const delim = "---"

// Mapping is an ordered string-keyed mapping of front-matter values.
// Values are one of: string, bool, int, float64, []string, *Mapping, nil.
type Mapping struct {
	keys   []string
	values map[string]any
}

// NewMapping returns an empty Mapping.
func NewMapping() *Mapping {
	return &Mapping{values: make(map[string]any)}
}

// Len returns the number of keys.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order.
func (m *Mapping) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Get returns the value for key.
func (m *Mapping) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Mapping) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// GetString returns the value for key if it is a string.
func (m *Mapping) GetString(key string) (string, bool) {
	v, ok := m.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetBool returns the value for key if it is a bool.
func (m *Mapping) GetBool(key string) (bool, bool) {
	v, ok := m.Get(key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// GetStringSlice returns the value for key if it is a string array.
func (m *Mapping) GetStringSlice(key string) ([]string, bool) {
	v, ok := m.Get(key)
	if !ok {
		return nil, false
	}
	s, ok := v.([]string)
	return s, ok
}

// GetMapping returns the value for key if it is a nested mapping.
func (m *Mapping) GetMapping(key string) (*Mapping, bool) {
	v, ok := m.Get(key)
	if !ok {
		return nil, false
	}
	nested, ok := v.(*Mapping)
	return nested, ok
}

// Set stores value under key. An existing key keeps its position; a new
// key is appended.
func (m *Mapping) Set(key string, value any) {
	if m.values == nil {
		m.values = make(map[string]any)
	}
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Delete removes key if present.
func (m *Mapping) Delete(key string) {
	if m == nil {
		return
	}
	if _, exists := m.values[key]; !exists {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Clone returns a deep copy. Filing rewrites metadata in steps; each step
// works on its own copy so the suggestion and filed shapes never alias.
func (m *Mapping) Clone() *Mapping {
	if m == nil {
		return nil
	}
	out := NewMapping()
	for _, k := range m.keys {
		out.Set(k, cloneValue(m.values[k]))
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case []string:
		cp := make([]string, len(val))
		copy(cp, val)
		return cp
	case *Mapping:
		return val.Clone()
	default:
		return v
	}
}

// UnmarshalYAML decodes a YAML mapping node preserving key order.
func (m *Mapping) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("frontmatter: expected mapping, got %v", node.Kind)
	}
	m.keys = nil
	m.values = make(map[string]any, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		val, err := decodeValue(valNode)
		if err != nil {
			return err
		}
		m.Set(keyNode.Value, val)
	}
	return nil
}

// MarshalYAML encodes the mapping as a YAML node in insertion order.
func (m *Mapping) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range m.keys {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}
		valNode, err := encodeValue(m.values[k])
		if err != nil {
			return nil, err
		}
		node.Content = append(node.Content, keyNode, valNode)
	}
	return node, nil
}

func decodeValue(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		switch node.Tag {
		case "!!bool":
			var b bool
			if err := node.Decode(&b); err != nil {
				return nil, err
			}
			return b, nil
		case "!!int":
			var n int
			if err := node.Decode(&n); err != nil {
				return nil, err
			}
			return n, nil
		case "!!float":
			var f float64
			if err := node.Decode(&f); err != nil {
				return nil, err
			}
			return f, nil
		case "!!null":
			return nil, nil
		default:
			return node.Value, nil
		}
	case yaml.SequenceNode:
		out := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			out = append(out, item.Value)
		}
		return out, nil
	case yaml.MappingNode:
		nested := NewMapping()
		if err := nested.UnmarshalYAML(node); err != nil {
			return nil, err
		}
		return nested, nil
	case yaml.AliasNode:
		return decodeValue(node.Alias)
	default:
		return nil, fmt.Errorf("frontmatter: unsupported node kind %v", node.Kind)
	}
}

func encodeValue(v any) (*yaml.Node, error) {
	switch val := v.(type) {
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	case string:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: val}, nil
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(val)}, nil
	case int:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(val)}, nil
	case int64:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(val, 10)}, nil
	case float64:
		s := strconv.FormatFloat(val, 'g', -1, 64)
		// Keep whole floats tagged as floats across a round trip.
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: s}, nil
	case []string:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range val {
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: item})
		}
		return node, nil
	case *Mapping:
		out, err := val.MarshalYAML()
		if err != nil {
			return nil, err
		}
		return out.(*yaml.Node), nil
	default:
		return nil, fmt.Errorf("frontmatter: unsupported value type %T", v)
	}
}

// Parse separates YAML front-matter (between leading --- delimiters) from
// the note body. If no front-matter is found, or the YAML is invalid, the
// entire content is body and the mapping is nil.
func Parse(data []byte) (*Mapping, string) {
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		// No closing delimiter; treat everything as body.
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	fm := NewMapping()
	if err := yaml.Unmarshal(yamlBlock, fm); err != nil {
		return nil, string(data)
	}
	return fm, body
}

// Build serializes front-matter and body back into note content.
// A nil or empty mapping produces the bare body.
func Build(fm *Mapping, body string) []byte {
	if fm.Len() == 0 {
		return []byte(body)
	}
	var buf bytes.Buffer
	buf.WriteString(delim)
	buf.WriteByte('\n')
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	// Encoding only fails for unsupported value types, which Set callers
	// never produce; fall back to the bare body if it somehow does.
	if err := enc.Encode(fm); err != nil {
		return []byte(body)
	}
	_ = enc.Close()
	buf.WriteString(delim)
	buf.WriteString("\n\n")
	buf.WriteString(body)
	return buf.Bytes()
}
