package refs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Render writes the forest as an indented outline, two spaces per level.
// Containers show their result count, leaves their line text and position.
//
//	Usage in functions (1 result)
//	  internal/refs (1 result)
//	    build.go (1 result)
//	      Function: Build (1 result)
//	        b.classify(ctx, loc)  [12:4]
func Render(ctx context.Context, w io.Writer, forest []*Node, lines LineSource) error {
	for _, root := range forest {
		var err error
		root.Walk(func(n *Node, depth int) bool {
			if err != nil {
				return false
			}
			item := n.Resolve(ctx, lines)
			indent := strings.Repeat("  ", depth)
			if n.Kind == NodeLeaf {
				_, err = fmt.Fprintf(w, "%s%s  [%d:%d]\n", indent, item.Label,
					n.Location.StartLine+1, n.Location.StartColumn+1)
			} else {
				_, err = fmt.Fprintf(w, "%s%s (%s)\n", indent, item.Label, item.Description)
			}
			return true
		})
		if err != nil {
			return err
		}
	}
	return nil
}

type jsonNode struct {
	Label    string      `json:"label"`
	Count    int         `json:"count,omitempty"`
	Location *Location   `json:"location,omitempty"`
	Children []*jsonNode `json:"children,omitempty"`
}

// MarshalForest encodes the forest as JSON, resolving leaf labels.
func MarshalForest(ctx context.Context, forest []*Node, lines LineSource) ([]byte, error) {
	out := make([]*jsonNode, 0, len(forest))
	for _, root := range forest {
		out = append(out, toJSON(ctx, root, lines))
	}
	return json.MarshalIndent(out, "", "  ")
}

func toJSON(ctx context.Context, n *Node, lines LineSource) *jsonNode {
	item := n.Resolve(ctx, lines)
	j := &jsonNode{Label: item.Label, Location: item.Location}
	if n.Kind == NodeContainer {
		j.Count = n.Count()
		for _, c := range n.Children {
			j.Children = append(j.Children, toJSON(ctx, c, lines))
		}
	}
	return j
}
