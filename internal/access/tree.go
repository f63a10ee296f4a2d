package access

import "sort"

// BuildTree arranges nodes into an ordered forest. Inactive nodes are
// skipped. A node attaches to its parent only when the parent is present,
// is not the node itself and the edge would not close a cycle; otherwise it
// becomes a root. Siblings and roots are ordered by (Order, Key).
func BuildTree(nodes []*MenuNode) []*TreeNode {
	sorted := make([]*MenuNode, 0, len(nodes))
	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if n == nil || !n.Active || seen[n.Key] {
			continue
		}
		seen[n.Key] = true
		sorted = append(sorted, n)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Order != sorted[j].Order {
			return sorted[i].Order < sorted[j].Order
		}
		return sorted[i].Key < sorted[j].Key
	})

	byKey := make(map[string]*TreeNode, len(sorted))
	for _, n := range sorted {
		byKey[n.Key] = &TreeNode{
			ID:       n.ID,
			Key:      n.Key,
			URL:      n.URL,
			Icon:     n.Icon,
			Title:    n.Title,
			Order:    n.Order,
			Children: []*TreeNode{},
		}
	}

	parentOf := make(map[string]string, len(sorted))
	roots := make([]*TreeNode, 0)
	for _, n := range sorted {
		tn := byKey[n.Key]
		parent, ok := byKey[n.ParentKey]
		if n.ParentKey == "" || n.ParentKey == n.Key || !ok || reaches(parentOf, n.ParentKey, n.Key) {
			roots = append(roots, tn)
			continue
		}
		parentOf[n.Key] = n.ParentKey
		parent.Children = append(parent.Children, tn)
	}
	return roots
}

// reaches reports whether walking accepted edges up from start hits target.
func reaches(parentOf map[string]string, start, target string) bool {
	for cur, steps := start, 0; cur != ""; cur, steps = parentOf[cur], steps+1 {
		if cur == target {
			return true
		}
		if steps > len(parentOf) {
			return true
		}
	}
	return false
}
