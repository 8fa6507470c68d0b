// Package tree builds and enriches hierarchical page outlines of documents.
package tree

import (
	"fmt"
	"strings"
)

// Node is a section of a document covering a contiguous, inclusive 1-based
// page range. Children subdivide the parent's range in order.
type Node struct {
	NodeID     string  `json:"node_id,omitempty"`
	Title      string  `json:"title"`
	StartIndex int     `json:"start_index,omitempty"`
	EndIndex   int     `json:"end_index,omitempty"`
	Summary    string  `json:"summary,omitempty"`
	Text       string  `json:"text,omitempty"`
	Nodes      []*Node `json:"nodes,omitempty"`
}

// Walk visits every node in depth-first pre-order.
func Walk(roots []*Node, fn func(n *Node)) {
	for _, n := range roots {
		fn(n)
		Walk(n.Nodes, fn)
	}
}

// Count returns the number of nodes in the forest.
func Count(roots []*Node) int {
	total := 0
	Walk(roots, func(*Node) { total++ })
	return total
}

// AssignIDs numbers the forest in depth-first pre-order with zero-padded,
// monotonically increasing IDs. Width is at least 4 digits and grows with
// the node count.
func AssignIDs(roots []*Node) {
	width := idWidth(Count(roots))
	next := 0
	Walk(roots, func(n *Node) {
		n.NodeID = fmt.Sprintf("%0*d", width, next)
		next++
	})
}

func idWidth(count int) int {
	width := len(fmt.Sprintf("%d", count))
	if width < 4 {
		width = 4
	}
	return width
}

// Flatten returns depth-first pre-order copies of every node with children
// removed, the shape stored in node_map_json.
func Flatten(roots []*Node) []*Node {
	out := make([]*Node, 0, Count(roots))
	Walk(roots, func(n *Node) {
		c := *n
		c.Nodes = nil
		out = append(out, &c)
	})
	return out
}

// BuildNodeMap returns node_id → node for O(1) lookup. Entries carry no
// children; topology lives in the tree itself.
func BuildNodeMap(roots []*Node) map[string]*Node {
	m := make(map[string]*Node, Count(roots))
	for _, n := range Flatten(roots) {
		m[n.NodeID] = n
	}
	return m
}

// Strip returns a deep copy with text and page indices removed, the shape
// sent to the LLM during retrieval.
func Strip(roots []*Node) []*Node {
	out := make([]*Node, 0, len(roots))
	for _, n := range roots {
		out = append(out, &Node{
			NodeID:  n.NodeID,
			Title:   n.Title,
			Summary: n.Summary,
			Nodes:   Strip(n.Nodes),
		})
	}
	return out
}

// Validate checks the structural invariants of a built forest: page ranges
// are sane, children contiguously partition their parent (allowing prefix
// pages before the first child), roots contiguously cover the document up to
// pageCount (allowing preface pages before the first root), and node IDs are
// unique in depth-first pre-order.
func Validate(roots []*Node, pageCount int) error {
	if len(roots) == 0 {
		return fmt.Errorf("tree has no root nodes")
	}
	for i, n := range roots {
		if err := validateNode(n, 1, pageCount); err != nil {
			return err
		}
		if i > 0 && n.StartIndex != roots[i-1].EndIndex+1 {
			return fmt.Errorf("root %q starts at page %d, previous root ends at %d",
				n.Title, n.StartIndex, roots[i-1].EndIndex)
		}
	}
	if last := roots[len(roots)-1]; last.EndIndex != pageCount {
		return fmt.Errorf("last root %q ends at page %d, document has %d pages",
			last.Title, last.EndIndex, pageCount)
	}

	seen := make(map[string]bool)
	prev := ""
	var idErr error
	Walk(roots, func(n *Node) {
		if idErr != nil {
			return
		}
		if n.NodeID == "" {
			idErr = fmt.Errorf("node %q has no node_id", n.Title)
			return
		}
		if seen[n.NodeID] {
			idErr = fmt.Errorf("duplicate node_id %q", n.NodeID)
			return
		}
		seen[n.NodeID] = true
		if prev != "" && !(len(prev) < len(n.NodeID) || (len(prev) == len(n.NodeID) && prev < n.NodeID)) {
			idErr = fmt.Errorf("node_id %q not increasing after %q", n.NodeID, prev)
			return
		}
		prev = n.NodeID
	})
	return idErr
}

func validateNode(n *Node, min, max int) error {
	if n.StartIndex < min || n.EndIndex > max || n.StartIndex > n.EndIndex {
		return fmt.Errorf("node %q has page range [%d, %d] outside [%d, %d]",
			n.Title, n.StartIndex, n.EndIndex, min, max)
	}
	for i, child := range n.Nodes {
		if err := validateNode(child, n.StartIndex, n.EndIndex); err != nil {
			return err
		}
		if i > 0 && child.StartIndex != n.Nodes[i-1].EndIndex+1 {
			return fmt.Errorf("child %q of %q starts at page %d, previous child ends at %d",
				child.Title, n.Title, child.StartIndex, n.Nodes[i-1].EndIndex)
		}
	}
	if len(n.Nodes) > 0 {
		if last := n.Nodes[len(n.Nodes)-1]; last.EndIndex != n.EndIndex {
			return fmt.Errorf("children of %q end at page %d, parent ends at %d",
				n.Title, last.EndIndex, n.EndIndex)
		}
	}
	return nil
}

// PageRangeText concatenates pages [start, end] (inclusive, 1-based).
func PageRangeText(pages []string, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(pages) {
		end = len(pages)
	}
	if start > end {
		return ""
	}
	var sb strings.Builder
	for i := start; i <= end; i++ {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(pages[i-1])
	}
	return sb.String()
}
