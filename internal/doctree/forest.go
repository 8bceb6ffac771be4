package doctree

// BuildForest nests a flat node list by parent id. Input order is kept among
// siblings. The input nodes are copied; the caller's slice is not modified.
// A node whose parent is absent from the list is treated as a root.
func BuildForest(flat []*Node) []*Node {
	byID := make(map[string]*Node, len(flat))
	arena := make([]*Node, 0, len(flat))
	for _, n := range flat {
		c := n.Clone()
		byID[c.ID] = c
		arena = append(arena, c)
	}

	var roots []*Node
	for _, n := range arena {
		parent, ok := byID[n.ParentID]
		if n.ParentID == "" || !ok || !parent.IsFolder() {
			roots = append(roots, n)
			continue
		}
		parent.Children = append(parent.Children, n)
	}
	return roots
}

// Walk visits every node depth-first, pre-order. fn receives the depth (0 for
// roots). Returning false from fn skips that node's children.
func Walk(forest []*Node, fn func(n *Node, depth int) bool) {
	var walk func([]*Node, int)
	walk = func(nodes []*Node, depth int) {
		for _, n := range nodes {
			if fn(n, depth) {
				walk(n.Children, depth+1)
			}
		}
	}
	walk(forest, 0)
}

// Find returns the node with the given id, or nil.
func Find(forest []*Node, id string) *Node {
	var found *Node
	Walk(forest, func(n *Node, _ int) bool {
		if found != nil {
			return false
		}
		if n.ID == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// Count returns the number of nodes in the forest.
func Count(forest []*Node) int {
	var n int
	Walk(forest, func(*Node, int) bool {
		n++
		return true
	})
	return n
}

// IDs returns the set of node ids present in the forest.
func IDs(forest []*Node) map[string]bool {
	ids := make(map[string]bool)
	Walk(forest, func(n *Node, _ int) bool {
		ids[n.ID] = true
		return true
	})
	return ids
}

// Contains reports whether id is root itself or one of its descendants.
func Contains(root *Node, id string) bool {
	if root == nil {
		return false
	}
	return Find([]*Node{root}, id) != nil
}
