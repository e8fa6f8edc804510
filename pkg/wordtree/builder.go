package wordtree

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/echotree/echotree/pkg/logger"
)

var tracer = otel.Tracer("echotree/pkg/wordtree")

// FollowerSource returns the follower words of a word, most frequent first.
type FollowerSource interface {
	GetFollowers(ctx context.Context, word string) ([]string, error)
}

// LookupError is returned when the follower source fails for a word during a build.
type LookupError struct {
	Word string
	Err  error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup followers of %q: %v", e.Word, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

type BuilderOption func(*Builder)

// WithLogger sets the logger of the Builder.
func WithLogger(l logger.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = l
	}
}

// Builder expands root words into trees. It is safe for concurrent use when its source is.
type Builder struct {
	source FollowerSource
	logger logger.Logger
}

// NewBuilder returns a Builder reading followers from source.
func NewBuilder(source FollowerSource, opts ...BuilderOption) *Builder {
	b := &Builder{
		source: source,
		logger: logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Build expands root into a tree at most maxDepth edges deep in which no node has more than
// maxBranch children. Children keep the rank order of the source. Nodes on the last permitted
// level have empty children and are not looked up. A maxDepth of zero or less yields nil.
//
// Words that follow themselves, directly or through descendants, are expanded like any other
// word until the depth bound stops them.
func (b *Builder) Build(ctx context.Context, root string, maxDepth, maxBranch int) (*WordTree, error) {
	ctx, span := tracer.Start(ctx, "wordtree.Build", trace.WithAttributes(
		attribute.String("root_word", root),
		attribute.Int("max_depth", maxDepth),
		attribute.Int("max_branch", maxBranch),
	))
	defer span.End()

	if maxDepth <= 0 {
		return nil, nil
	}

	start := time.Now()
	tree, err := b.build(ctx, root, maxDepth, maxBranch)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	b.logger.DebugWithContext(ctx, "built word tree",
		zap.String("root_word", root),
		zap.Duration("took", time.Since(start)))

	return tree, nil
}

func (b *Builder) build(ctx context.Context, word string, remaining, maxBranch int) (*WordTree, error) {
	node := &WordTree{Word: word, FollowWordObjs: []*WordTree{}}
	if remaining <= 0 || maxBranch <= 0 {
		return node, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	followers, err := b.source.GetFollowers(ctx, word)
	if err != nil {
		return nil, &LookupError{Word: word, Err: err}
	}

	if len(followers) > maxBranch {
		followers = followers[:maxBranch]
	}

	for _, f := range followers {
		child, err := b.build(ctx, f, remaining-1, maxBranch)
		if err != nil {
			return nil, err
		}
		if child.IsEmpty() {
			continue
		}
		node.FollowWordObjs = append(node.FollowWordObjs, child)
	}

	return node, nil
}
