package fabric

import (
	"errors"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

const maxLiteralDepth = 64

// parseLiteralMapping parses a Python-style literal dict such as
//
//	{'material': 'silk', 'colors': ['red'], 'embellishments': True}
//
// YAML flow syntax is a superset of that notation, so the text is parsed as a YAML node tree and
// plain scalars are resolved with literal rules (True/False/None, integers, floats). Only a
// flow-style mapping at the root is accepted; block YAML and bare prose are rejected.
func parseLiteralMapping(s string) (map[string]any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(s), &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.New("empty literal")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode || root.Style&yaml.FlowStyle == 0 {
		return nil, errors.New("literal is not a mapping")
	}
	v, err := literalValue(root, 0)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("literal is not a mapping")
	}
	return m, nil
}

func literalValue(n *yaml.Node, depth int) (any, error) {
	if depth > maxLiteralDepth {
		return nil, errors.New("literal nested too deeply")
	}
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return literalValue(n.Content[0], depth+1)
	case yaml.AliasNode:
		if n.Alias == nil {
			return nil, errors.New("dangling alias")
		}
		return literalValue(n.Alias, depth+1)
	case yaml.MappingNode:
		m := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			if k.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: mapping key is not a scalar", k.Line)
			}
			v, err := literalValue(n.Content[i+1], depth+1)
			if err != nil {
				return nil, err
			}
			m[k.Value] = v
		}
		return m, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := literalValue(item, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.ScalarNode:
		return literalScalar(n), nil
	default:
		return nil, fmt.Errorf("line %d: unsupported literal node", n.Line)
	}
}

func literalScalar(n *yaml.Node) any {
	if n.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle|yaml.LiteralStyle|yaml.FoldedStyle) != 0 {
		return n.Value
	}
	switch n.Value {
	case "True", "true":
		return true
	case "False", "false":
		return false
	case "None", "null", "Null", "~", "":
		return nil
	}
	if i, err := strconv.ParseInt(n.Value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(n.Value, 64); err == nil {
		return f
	}
	return n.Value
}
