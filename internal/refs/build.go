package refs

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Workspace is the set of root directories directory labels are made
// relative to.
type Workspace struct {
	Roots []string
}

// RelDir returns the directory of path relative to the deepest workspace
// root containing it. Outside every root it returns the absolute directory
// and false. A file sitting directly in a root yields "".
func (w Workspace) RelDir(path string) (string, bool) {
	dir := filepath.Dir(path)
	best, found := "", false
	bestLen := -1
	for _, root := range w.Roots {
		root = filepath.Clean(root)
		rel, err := filepath.Rel(root, dir)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if len(root) > bestLen {
			bestLen = len(root)
			best, found = rel, true
		}
	}
	if !found {
		return dir, false
	}
	if best == "." {
		return "", true
	}
	return best, true
}

// Builder turns the ordered result of one reference query into a forest.
type Builder struct {
	classifier *Classifier
	workspace  Workspace
	noDecl     bool
}

// NewBuilder returns a builder classifying with c and labeling directories
// relative to ws.
func NewBuilder(c *Classifier, ws Workspace) *Builder {
	return &Builder{classifier: c, workspace: ws}
}

// WithoutDeclaration returns a builder for results that do not start with
// the declaration site, so no location is placed in the Declaration bucket.
func (b *Builder) WithoutDeclaration() *Builder {
	nb := *b
	nb.noDecl = true
	return &nb
}

// Build classifies locs in order and returns the non-empty root buckets in
// fixed order: Declaration, function usages, type usages, import usages,
// Unclassified. Every location lands in exactly one bucket. A cancelled ctx
// yields nil.
func (b *Builder) Build(ctx context.Context, locs []Location) []*Node {
	if ctx.Err() != nil {
		return nil
	}

	var roots [numBuckets]*Node
	for i := range roots {
		roots[i] = newContainer(Bucket(i).Label(), RoleBucket, Bucket(i))
	}

	for i, loc := range locs {
		if ctx.Err() != nil {
			log.Debug().Int("routed", i).Msg("refs: build cancelled")
			return nil
		}
		cls := b.classifier.Classify(ctx, loc, i == 0 && !b.noDecl)
		root := roots[cls.Bucket]

		if cls.Bucket == BucketDeclaration {
			root.addLeaf(loc)
			continue
		}
		file := b.fileContainer(root, loc)
		if cls.Bucket.scoped() {
			file.child(RoleScope, cls.Scope).addLeaf(loc)
			continue
		}
		file.addLeaf(loc)
	}

	forest := make([]*Node, 0, len(roots))
	for _, root := range roots {
		if root.Count() > 0 {
			forest = append(forest, root)
		}
	}
	log.Debug().Int("locations", len(locs)).Int("buckets", len(forest)).Msg("refs: forest built")
	return forest
}

// fileContainer descends root → directory → file, creating containers on
// first reference. Files directly in a workspace root skip the directory.
func (b *Builder) fileContainer(root *Node, loc Location) *Node {
	parent := root
	if dir, _ := b.workspace.RelDir(loc.Path); dir != "" {
		parent = root.child(RoleDirectory, dir)
	}
	return parent.child(RoleFile, filepath.Base(loc.Path))
}
