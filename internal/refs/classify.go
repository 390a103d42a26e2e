package refs

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/refscope/internal/decl"
)

// Bucket is a top-level classification outcome.
type Bucket int

// Buckets in presentation order.
const (
	BucketDeclaration Bucket = iota
	BucketFunction
	BucketType
	BucketImport
	BucketUnclassified

	numBuckets
)

// Label returns the root container label for the bucket.
func (b Bucket) Label() string {
	switch b {
	case BucketDeclaration:
		return "Declaration"
	case BucketFunction:
		return "Usage in functions"
	case BucketType:
		return "Usage in type definitions"
	case BucketImport:
		return "Usage in imports"
	default:
		return "Unclassified"
	}
}

func (b Bucket) String() string { return b.Label() }

// scoped reports whether usages in this bucket are grouped by scope.
func (b Bucket) scoped() bool {
	return b == BucketFunction || b == BucketType
}

// Indexer yields the declaration index of a file.
type Indexer interface {
	Get(ctx context.Context, path string) (*decl.FileIndex, error)
}

// Classification is the outcome for one location. Scope is set only for
// function and type usages.
type Classification struct {
	Bucket Bucket
	Scope  string
}

// Classifier assigns locations to buckets.
type Classifier struct {
	idx Indexer
}

// NewClassifier returns a classifier backed by idx.
func NewClassifier(idx Indexer) *Classifier {
	return &Classifier{idx: idx}
}

// Classify assigns loc to a bucket. first must be true only for the first
// location of a query: language servers list the definition first, and a
// first location sitting on the start line of its enclosing declaration is
// taken to be that definition. When the server does not list it first, the
// definition is classified like any usage.
//
// A failed index lookup degrades to BucketUnclassified.
func (c *Classifier) Classify(ctx context.Context, loc Location, first bool) Classification {
	idx, err := c.idx.Get(ctx, loc.Path)
	if err != nil {
		log.Warn().Err(err).Str("file", loc.Path).Msg("refs: no declaration info")
		return Classification{Bucket: BucketUnclassified}
	}
	d, ok := idx.Query(loc.StartLine)
	if !ok {
		return Classification{Bucket: BucketUnclassified}
	}
	if first && loc.StartLine == d.StartLine {
		return Classification{Bucket: BucketDeclaration}
	}

	switch d.Kind {
	case decl.KindFunction, decl.KindMethod:
		return Classification{Bucket: BucketFunction, Scope: d.Description()}
	case decl.KindType:
		return Classification{Bucket: BucketType, Scope: d.Description()}
	case decl.KindImport:
		return Classification{Bucket: BucketImport}
	default:
		return Classification{Bucket: BucketUnclassified}
	}
}
