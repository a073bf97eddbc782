package tui

const maxTreeDepth = 10

// buildTree constructs a visual tree from the dependency map, one root per
// target. A task shared by several targets appears under each of them.
func buildTree(targets []string, dependencies map[string][]string, taskMap map[string]*TaskNode) []*TaskNode {
	roots := make([]*TaskNode, 0, len(targets))
	for _, target := range targets {
		if root := buildSubtree(target, dependencies, taskMap, 0); root != nil {
			roots = append(roots, root)
		}
	}
	return roots
}

func buildSubtree(name string, dependencies map[string][]string, taskMap map[string]*TaskNode, depth int) *TaskNode {
	if depth > maxTreeDepth {
		return nil
	}

	canonical := taskMap[name]
	if canonical == nil {
		return nil
	}

	node := &TaskNode{
		Name:          canonical.Name,
		Term:          canonical.Term,
		Depth:         depth,
		CanonicalNode: canonical,
	}
	for _, dep := range dependencies[name] {
		if child := buildSubtree(dep, dependencies, taskMap, depth+1); child != nil {
			child.Parent = node
			node.Children = append(node.Children, child)
		}
	}
	return node
}

// flattenTree lists the visible nodes; children of collapsed nodes are hidden.
func flattenTree(roots []*TaskNode) []*TaskNode {
	var flat []*TaskNode

	var walk func(node *TaskNode)
	walk = func(node *TaskNode) {
		flat = append(flat, node)
		if node.IsExpanded {
			for _, child := range node.Children {
				walk(child)
			}
		}
	}
	for _, root := range roots {
		walk(root)
	}
	return flat
}

// findInTree returns the shallowest node named name.
func findInTree(roots []*TaskNode, name string) *TaskNode {
	queue := append([]*TaskNode(nil), roots...)
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if node.Name == name {
			return node
		}
		queue = append(queue, node.Children...)
	}
	return nil
}
