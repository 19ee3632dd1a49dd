package workflow

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Node is one operation in a job graph.
type Node struct {
	ID     string
	Type   string
	Title  string
	Inputs map[string]InputValue
}

// NewNode creates a node with an empty input map.
func NewNode(id, operationType, title string) *Node {
	return &Node{
		ID:     id,
		Type:   operationType,
		Title:  title,
		Inputs: make(map[string]InputValue),
	}
}

// Kind classifies the node's operation type.
func (n *Node) Kind() Kind {
	return KindOf(n.Type)
}

// Input returns the named input.
func (n *Node) Input(name string) (InputValue, bool) {
	v, ok := n.Inputs[name]
	return v, ok
}

// Set assigns the named input and returns the node for chaining.
func (n *Node) Set(name string, v InputValue) *Node {
	if n.Inputs == nil {
		n.Inputs = make(map[string]InputValue)
	}
	n.Inputs[name] = v
	return n
}

// inputNames returns the input names in lexical order.
func (n *Node) inputNames() []string {
	names := make([]string, 0, len(n.Inputs))
	for name := range n.Inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (n *Node) clone() *Node {
	c := &Node{
		ID:     n.ID,
		Type:   n.Type,
		Title:  n.Title,
		Inputs: make(map[string]InputValue, len(n.Inputs)),
	}
	// cty values are immutable, so copying the InputValue is a deep copy.
	for name, v := range n.Inputs {
		c.Inputs[name] = v
	}
	return c
}

// Graph is a job description: a set of nodes keyed by id. A Graph is not safe
// for concurrent mutation.
type Graph struct {
	nodes map[string]*Node
}

// New builds a graph from the given nodes. A later node with the same id
// replaces an earlier one.
func New(nodes ...*Node) *Graph {
	g := &Graph{nodes: make(map[string]*Node, len(nodes))}
	for _, n := range nodes {
		g.Add(n)
	}
	return g
}

// Add inserts or replaces a node.
func (g *Graph) Add(n *Node) {
	if g.nodes == nil {
		g.nodes = make(map[string]*Node)
	}
	g.nodes[n.ID] = n
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Remove deletes a node without touching references to it. Use DeleteNodes
// to keep the graph free of dangling references.
func (g *Graph) Remove(id string) bool {
	if _, ok := g.nodes[id]; !ok {
		return false
	}
	delete(g.nodes, id)
	return true
}

// IDs returns the node ids in a stable order: numeric ids ascending first,
// then the remaining ids lexically.
func (g *Graph) IDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

// Nodes returns the nodes in IDs order.
func (g *Graph) Nodes() []*Node {
	ids := g.IDs()
	nodes := make([]*Node, len(ids))
	for i, id := range ids {
		nodes[i] = g.nodes[id]
	}
	return nodes
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	c := &Graph{nodes: make(map[string]*Node, len(g.nodes))}
	for id, n := range g.nodes {
		c.nodes[id] = n.clone()
	}
	return c
}

// Dangling describes a reference whose target node does not exist.
type Dangling struct {
	Node   string
	Input  string
	Target Reference
}

func (d Dangling) String() string {
	return fmt.Sprintf("%s.%s -> %s", d.Node, d.Input, d.Target)
}

// DanglingReferences lists every reference that points outside the graph.
func (g *Graph) DanglingReferences() []Dangling {
	var out []Dangling
	for _, n := range g.Nodes() {
		for _, name := range n.inputNames() {
			ref, ok := n.Inputs[name].Reference()
			if !ok {
				continue
			}
			if _, exists := g.nodes[ref.Node]; !exists {
				out = append(out, Dangling{Node: n.ID, Input: name, Target: ref})
			}
		}
	}
	return out
}

// Validate checks that the graph is submittable.
func (g *Graph) Validate() error {
	dangling := g.DanglingReferences()
	if len(dangling) == 0 {
		return nil
	}
	parts := make([]string, len(dangling))
	for i, d := range dangling {
		parts[i] = d.String()
	}
	return fmt.Errorf("%w: %s", ErrDanglingReference, strings.Join(parts, ", "))
}

func sortIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		a, aErr := strconv.ParseInt(ids[i], 10, 64)
		b, bErr := strconv.ParseInt(ids[j], 10, 64)
		switch {
		case aErr == nil && bErr == nil:
			if a != b {
				return a < b
			}
			return ids[i] < ids[j]
		case aErr == nil:
			return true
		case bErr == nil:
			return false
		default:
			return ids[i] < ids[j]
		}
	})
}
