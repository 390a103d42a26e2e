package refs

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// NodeKind tags the variant held by a Node.
type NodeKind int

const (
	NodeContainer NodeKind = iota
	NodeLeaf
)

// Role says what a container groups by.
type Role int

const (
	RoleBucket Role = iota
	RoleDirectory
	RoleFile
	RoleScope
)

// Node is one entry of the presentation forest: a labeled container of
// child nodes, or a leaf wrapping a single location.
type Node struct {
	Kind NodeKind

	// Container fields.
	Label    string
	Role     Role
	Bucket   Bucket
	Children []*Node

	// Leaf fields.
	Location Location

	mu       sync.Mutex
	resolved bool
	text     string
}

func newContainer(label string, role Role, bucket Bucket) *Node {
	return &Node{Kind: NodeContainer, Label: label, Role: role, Bucket: bucket}
}

func newLeaf(loc Location, bucket Bucket) *Node {
	return &Node{Kind: NodeLeaf, Location: loc, Bucket: bucket}
}

// Count returns the number of direct children.
func (n *Node) Count() int { return len(n.Children) }

// child returns the container child with the given role and label, creating
// it on first reference. Lookup is linear; result sets are small.
func (n *Node) child(role Role, label string) *Node {
	for _, c := range n.Children {
		if c.Kind == NodeContainer && c.Role == role && c.Label == label {
			return c
		}
	}
	c := newContainer(label, role, n.Bucket)
	n.Children = append(n.Children, c)
	return c
}

func (n *Node) addLeaf(loc Location) {
	n.Children = append(n.Children, newLeaf(loc, n.Bucket))
}

// Item is the display form of a node.
type Item struct {
	Label       string
	Description string
	Collapsible bool
	Location    *Location
}

// LineSource returns the text of a 0-indexed line of a file.
type LineSource interface {
	Line(ctx context.Context, path string, line int) (string, error)
}

// Resolve produces the display item for the node. A leaf label is the
// trimmed text of its start line, read once and kept; when the line cannot
// be read the label falls back to path:line:col and is retried next time.
// Safe to call concurrently for different nodes.
func (n *Node) Resolve(ctx context.Context, lines LineSource) Item {
	switch n.Kind {
	case NodeLeaf:
		loc := n.Location
		return Item{Label: n.leafText(ctx, lines), Location: &loc}
	default:
		return Item{
			Label:       n.Label,
			Description: resultCount(n.Count()),
			Collapsible: true,
		}
	}
}

// Resolved reports whether a leaf already has its label.
func (n *Node) Resolved() bool {
	if n.Kind != NodeLeaf {
		return true
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.resolved
}

func (n *Node) leafText(ctx context.Context, lines LineSource) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.resolved {
		return n.text
	}
	if lines != nil {
		text, err := lines.Line(ctx, n.Location.Path, n.Location.StartLine)
		if err == nil {
			n.text = strings.TrimSpace(text)
			n.resolved = true
			return n.text
		}
	}
	return n.Location.String()
}

func resultCount(n int) string {
	if n <= 1 {
		return fmt.Sprintf("%d result", n)
	}
	return fmt.Sprintf("%d results", n)
}

// Walk calls fn for n and every descendant, depth first, parents before
// children. Returning false skips the node's children.
func (n *Node) Walk(fn func(node *Node, depth int) bool) {
	n.walk(fn, 0)
}

func (n *Node) walk(fn func(*Node, int) bool, depth int) {
	if !fn(n, depth) {
		return
	}
	for _, c := range n.Children {
		c.walk(fn, depth+1)
	}
}

// Leaves returns every leaf under n in display order.
func (n *Node) Leaves() []*Node {
	var out []*Node
	n.Walk(func(c *Node, _ int) bool {
		if c.Kind == NodeLeaf {
			out = append(out, c)
		}
		return true
	})
	return out
}

// CountLeaves returns the number of leaves in a forest.
func CountLeaves(forest []*Node) int {
	total := 0
	for _, root := range forest {
		total += len(root.Leaves())
	}
	return total
}
