package workflow

// forwardOutcome is the result of following a reference through deleted nodes.
type forwardOutcome int

const (
	// unresolved: no usable upstream reference; apply the required/optional rule.
	unresolved forwardOutcome = iota
	// rewired: a live upstream reference was found.
	rewired
	// cyclic: the forwarding chain loops among deleted nodes.
	cyclic
)

// DeleteNodes removes the given nodes from g and repairs every node that
// referenced them.
//
// A reference into a deleted node is rewired to whatever the deleted node
// itself received under the same input name, following the chain through
// further deleted nodes. When no such upstream exists, or it would point the
// node at itself, the input is dropped if it is optional for the node's kind,
// and the node is deleted as well if the input is required. A forwarding
// chain that loops among deleted nodes deletes the dependent node.
//
// The set of deleted nodes only grows, so the passes terminate. Ids that are
// not in the graph are accepted and ignored. DeleteNodes returns, sorted, the
// ids actually removed from g.
func DeleteNodes(g *Graph, ids ...string) []string {
	if len(ids) == 0 {
		return nil
	}

	doomed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		doomed[id] = struct{}{}
	}

	for changed := true; changed; {
		changed = false
		for _, id := range g.IDs() {
			if _, gone := doomed[id]; gone {
				continue
			}
			if repairNode(g, doomed, g.nodes[id]) {
				changed = true
			}
		}
	}

	var removed []string
	for id := range doomed {
		if g.Remove(id) {
			removed = append(removed, id)
		}
	}
	sortIDs(removed)
	return removed
}

// repairNode fixes every input of n that references a doomed node. It stops
// early once n itself becomes doomed, and reports whether anything changed.
func repairNode(g *Graph, doomed map[string]struct{}, n *Node) bool {
	changed := false
	for _, name := range n.inputNames() {
		ref, ok := n.Inputs[name].Reference()
		if !ok {
			continue
		}
		if _, gone := doomed[ref.Node]; !gone {
			continue
		}

		changed = true
		target, outcome := forward(g, doomed, n.ID, name, ref)
		switch {
		case outcome == rewired:
			n.Inputs[name] = Ref(target.Node, target.Slot)
		case outcome == cyclic, n.Kind().Requires(name):
			doomed[n.ID] = struct{}{}
			return changed
		default:
			delete(n.Inputs, name)
		}
	}
	return changed
}

// forward follows ref through doomed nodes along inputs named name until it
// reaches a live node. self is the id of the node being repaired.
func forward(g *Graph, doomed map[string]struct{}, self, name string, ref Reference) (Reference, forwardOutcome) {
	visited := make(map[string]struct{})
	for {
		if _, gone := doomed[ref.Node]; !gone {
			if _, exists := g.nodes[ref.Node]; !exists || ref.Node == self {
				return Reference{}, unresolved
			}
			return ref, rewired
		}
		if _, seen := visited[ref.Node]; seen {
			return Reference{}, cyclic
		}
		visited[ref.Node] = struct{}{}

		via, exists := g.nodes[ref.Node]
		if !exists {
			return Reference{}, unresolved
		}
		next, ok := via.Inputs[name].Reference()
		if !ok {
			return Reference{}, unresolved
		}
		ref = next
	}
}
