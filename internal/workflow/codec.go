package workflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// nodeDocument is the persisted form of a node. Graphs exported from the
// backend's editor carry class_type and _meta.title instead of
// operation_type and title; both spellings are accepted on input.
type nodeDocument struct {
	OperationType string                     `json:"operation_type,omitempty"`
	ClassType     string                     `json:"class_type,omitempty"`
	Title         string                     `json:"title,omitempty"`
	Meta          *nodeMeta                  `json:"_meta,omitempty"`
	Inputs        map[string]json.RawMessage `json:"inputs"`
}

type nodeMeta struct {
	Title string `json:"title"`
}

type nodeWire struct {
	OperationType string                `json:"operation_type"`
	Title         string                `json:"title,omitempty"`
	Inputs        map[string]InputValue `json:"inputs"`
}

// Parse decodes a graph document. Every failure matches ErrInvalidGraph.
func Parse(data []byte) (*Graph, error) {
	g := &Graph{}
	if err := json.Unmarshal(data, g); err != nil {
		if errors.Is(err, ErrInvalidGraph) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidGraph, err)
	}
	return g, nil
}

// MarshalJSON encodes the graph in the persisted template format.
func (g *Graph) MarshalJSON() ([]byte, error) {
	doc := make(map[string]nodeWire, len(g.nodes))
	for id, n := range g.nodes {
		inputs := n.Inputs
		if inputs == nil {
			inputs = map[string]InputValue{}
		}
		doc[id] = nodeWire{OperationType: n.Type, Title: n.Title, Inputs: inputs}
	}
	return json.Marshal(doc)
}

// UnmarshalJSON decodes a node-keyed object. Anything else is rejected with
// ErrInvalidGraph.
func (g *Graph) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("%w: document is not an object", ErrInvalidGraph)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidGraph, err)
	}

	nodes := make(map[string]*Node, len(raw))
	for id, body := range raw {
		b := bytes.TrimSpace(body)
		if len(b) == 0 || b[0] != '{' {
			return fmt.Errorf("%w: node %q is not an object", ErrInvalidGraph, id)
		}
		var doc nodeDocument
		if err := json.Unmarshal(b, &doc); err != nil {
			return fmt.Errorf("%w: node %q: %v", ErrInvalidGraph, id, err)
		}

		n := NewNode(id, doc.OperationType, doc.Title)
		if n.Type == "" {
			n.Type = doc.ClassType
		}
		if n.Title == "" && doc.Meta != nil {
			n.Title = doc.Meta.Title
		}
		for name, rawValue := range doc.Inputs {
			var v InputValue
			if err := v.UnmarshalJSON(rawValue); err != nil {
				return fmt.Errorf("%w: node %q input %q: %v", ErrInvalidGraph, id, name, err)
			}
			n.Inputs[name] = v
		}
		nodes[id] = n
	}

	g.nodes = nodes
	return nil
}

// MarshalJSON encodes a reference as [node_id, slot] and a literal as its
// plain JSON value.
func (v InputValue) MarshalJSON() ([]byte, error) {
	if ref, ok := v.Reference(); ok {
		return json.Marshal([]any{ref.Node, ref.Slot})
	}
	lit := v.Literal()
	if lit.IsNull() {
		return []byte("null"), nil
	}
	return ctyjson.Marshal(lit, lit.Type())
}

// UnmarshalJSON decodes either form. A two-element array of a node id and an
// integer slot is a reference; every other value is a literal.
func (v *InputValue) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*v = Literal(cty.NullVal(cty.DynamicPseudoType))
		return nil
	}
	if trimmed[0] == '[' {
		if ref, ok := decodeReference(trimmed); ok {
			*v = InputValue{kind: referenceValue, ref: ref}
			return nil
		}
	}

	ty, err := ctyjson.ImpliedType(trimmed)
	if err != nil {
		return err
	}
	lit, err := ctyjson.Unmarshal(trimmed, ty)
	if err != nil {
		return err
	}
	*v = Literal(lit)
	return nil
}

func decodeReference(data []byte) (Reference, bool) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil || len(parts) != 2 {
		return Reference{}, false
	}

	var node string
	if err := json.Unmarshal(parts[0], &node); err != nil {
		var num json.Number
		if err := json.Unmarshal(parts[0], &num); err != nil {
			return Reference{}, false
		}
		if _, err := strconv.ParseInt(num.String(), 10, 64); err != nil {
			return Reference{}, false
		}
		node = num.String()
	}
	if node == "" {
		return Reference{}, false
	}

	var slot int
	if err := json.Unmarshal(parts[1], &slot); err != nil {
		return Reference{}, false
	}
	return Reference{Node: node, Slot: slot}, true
}
