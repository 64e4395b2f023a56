package accounts

import "sort"

// Node is an account with its resolved children, used for reporting trees.
// The forest is assembled on demand and never persisted.
type Node struct {
	Account
	Children []*Node
}

// BuildHierarchy assembles a forest from flat account records in O(n).
// Accounts whose parent is absent from the slice surface as roots so a
// filtered listing still renders.
func BuildHierarchy(accounts []Account) []*Node {
	nodes := make(map[int64]*Node, len(accounts))
	for _, acc := range accounts {
		nodes[acc.ID] = &Node{Account: acc}
	}
	var roots []*Node
	for _, acc := range accounts {
		node := nodes[acc.ID]
		if acc.ParentID != nil {
			if parent, ok := nodes[*acc.ParentID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	sortNodes(roots)
	for _, node := range nodes {
		sortNodes(node.Children)
	}
	return roots
}

func sortNodes(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Code < nodes[j].Code
	})
}
