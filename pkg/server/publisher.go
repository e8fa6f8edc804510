// Package server turns submissions into published artifacts and serves the ingest,
// subscribe and listener HTTP surfaces.
package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	serverconfig "github.com/echotree/echotree/internal/server/config"
	"github.com/echotree/echotree/pkg/fanout"
	"github.com/echotree/echotree/pkg/logger"
	"github.com/echotree/echotree/pkg/storage"
	"github.com/echotree/echotree/pkg/wordtree"
)

var tracer = otel.Tracer("echotree/pkg/server")

// Outcome is how a submission ended.
type Outcome string

const (
	// OutcomePublished means the submission produced the current artifact.
	OutcomePublished Outcome = "published"

	// OutcomeDuplicate means the word is the root of the current artifact; nothing was rebuilt.
	OutcomeDuplicate Outcome = "duplicate"

	// OutcomeSuperseded means a newer submission replaced this one before it was processed.
	OutcomeSuperseded Outcome = "superseded"

	// OutcomePending means the caller stopped waiting; the submission is still processed.
	OutcomePending Outcome = "pending"
)

// Result is the outcome of one submission. Seq is the sequence number of the current artifact
// when the submission completed.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Seq     uint64  `json:"seq"`
}

// TreeBuilder expands a root word into a tree.
type TreeBuilder interface {
	Build(ctx context.Context, root string, maxDepth, maxBranch int) (*wordtree.WordTree, error)
}

type reply struct {
	result Result
	err    error
}

// submission is a queued word or artifact. Exactly one of word and artifact is set.
type submission struct {
	word     string
	artifact string
	reply    chan reply
}

func (s *submission) isArtifact() bool {
	return s.word == ""
}

func (s *submission) complete(result Result, err error) {
	s.reply <- reply{result: result, err: err}
}

type PublisherOption func(*Publisher)

// WithLogger sets the logger of the Publisher.
func WithLogger(l logger.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = l
	}
}

// WithTreeBounds sets the depth and branching bounds of built trees.
func WithTreeBounds(maxDepth, maxBranch int) PublisherOption {
	return func(p *Publisher) {
		p.maxDepth = maxDepth
		p.maxBranch = maxBranch
	}
}

// WithCaseFolding sets how submitted words are normalized ('none' or 'lower').
func WithCaseFolding(folding string) PublisherOption {
	return func(p *Publisher) {
		p.caseFolding = folding
	}
}

// Publisher is the single producer of artifacts. Submissions are processed one at a time by a
// dedicated worker. While the worker is busy at most one submission waits; a newer submission
// replaces the waiting one, which completes as superseded.
type Publisher struct {
	hub       *fanout.Hub
	builder   TreeBuilder
	maxDepth  int
	maxBranch int

	caseFolding string
	logger      logger.Logger

	mu          sync.Mutex
	pending     *submission // GUARDED_BY(mu).
	inflight    bool        // GUARDED_BY(mu).
	currentRoot string      // GUARDED_BY(mu). Empty unless the current artifact was built from a word.
	closed      bool        // GUARDED_BY(mu).

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPublisher starts a Publisher that builds trees with builder and publishes them on hub.
// Close must be called to stop its worker.
func NewPublisher(hub *fanout.Hub, builder TreeBuilder, opts ...PublisherOption) *Publisher {
	ctx, cancel := context.WithCancel(context.Background())

	p := &Publisher{
		hub:         hub,
		builder:     builder,
		maxDepth:    serverconfig.DefaultMaxDepth,
		maxBranch:   serverconfig.DefaultMaxBranch,
		caseFolding: serverconfig.CaseFoldingLower,
		logger:      logger.NewNoopLogger(),
		wake:        make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	for _, opt := range opts {
		opt(p)
	}

	go p.run()

	return p
}

// NormalizeWord trims the word and applies the configured case folding.
func (p *Publisher) NormalizeWord(word string) (string, error) {
	word = strings.TrimSpace(word)
	if word == "" {
		return "", storage.ErrInvalidWord
	}
	if p.caseFolding == serverconfig.CaseFoldingLower {
		word = strings.ToLower(word)
	}
	return word, nil
}

// SubmitWord builds and publishes the tree rooted at word, unless word is already the root of
// the current artifact. It waits until the submission is processed or ctx is done; in the
// latter case ctx's error is returned and the submission still proceeds.
func (p *Publisher) SubmitWord(ctx context.Context, word string) (Result, error) {
	word, err := p.NormalizeWord(word)
	if err != nil {
		submissionsCounter.WithLabelValues("invalid").Inc()
		return Result{}, err
	}

	p.mu.Lock()
	if !p.closed && p.pending == nil && !p.inflight && word == p.currentRoot {
		p.mu.Unlock()
		submissionsCounter.WithLabelValues(string(OutcomeDuplicate)).Inc()
		return Result{Outcome: OutcomeDuplicate, Seq: p.hub.Current().Seq}, nil
	}
	p.mu.Unlock()

	return p.enqueue(ctx, &submission{word: word, reply: make(chan reply, 1)})
}

// SubmitArtifact publishes a precomputed artifact as is. It is not deduplicated and it
// forgets the root word of the previous artifact. Waiting follows [Publisher.SubmitWord].
func (p *Publisher) SubmitArtifact(ctx context.Context, artifact string) (Result, error) {
	if _, err := wordtree.Decode(artifact); err != nil {
		submissionsCounter.WithLabelValues("invalid").Inc()
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}

	return p.enqueue(ctx, &submission{artifact: artifact, reply: make(chan reply, 1)})
}

func (p *Publisher) enqueue(ctx context.Context, s *submission) (Result, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return Result{}, ErrPublisherClosed
	}

	superseded := p.pending
	p.pending = s
	p.mu.Unlock()

	if superseded != nil {
		submissionsCounter.WithLabelValues(string(OutcomeSuperseded)).Inc()
		superseded.complete(Result{Outcome: OutcomeSuperseded, Seq: p.hub.Current().Seq}, nil)
	}

	select {
	case p.wake <- struct{}{}:
	default:
	}

	select {
	case r := <-s.reply:
		return r.result, r.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Current returns the current artifact.
func (p *Publisher) Current() fanout.Artifact {
	return p.hub.Current()
}

// Close stops the worker. A build in progress is cancelled and a waiting submission fails
// with [ErrPublisherClosed]. Close is idempotent.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return
	}
	p.closed = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	if pending != nil {
		pending.complete(Result{}, ErrPublisherClosed)
	}

	p.cancel()
	<-p.done
}

func (p *Publisher) run() {
	defer close(p.done)

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.wake:
		}

		p.mu.Lock()
		s := p.pending
		p.pending = nil
		p.inflight = s != nil
		p.mu.Unlock()

		if s == nil {
			continue
		}

		result, err := p.process(p.ctx, s)

		p.mu.Lock()
		p.inflight = false
		p.mu.Unlock()

		if errors.Is(err, context.Canceled) && p.ctx.Err() != nil {
			err = ErrPublisherClosed
		}
		s.complete(result, err)
	}
}

func (p *Publisher) process(ctx context.Context, s *submission) (Result, error) {
	ctx, span := tracer.Start(ctx, "publisher.publish", trace.WithAttributes(
		attribute.Bool("artifact", s.isArtifact()),
		attribute.String("root_word", s.word),
	))
	defer span.End()

	if s.isArtifact() {
		artifact := p.hub.Publish(s.artifact)

		p.mu.Lock()
		p.currentRoot = ""
		p.mu.Unlock()

		artifactsPublishedCounter.WithLabelValues("artifact").Inc()
		submissionsCounter.WithLabelValues(string(OutcomePublished)).Inc()
		p.logger.InfoWithContext(ctx, "published artifact", zap.Uint64("seq", artifact.Seq))

		return Result{Outcome: OutcomePublished, Seq: artifact.Seq}, nil
	}

	p.mu.Lock()
	duplicate := s.word == p.currentRoot
	p.mu.Unlock()

	if duplicate {
		submissionsCounter.WithLabelValues(string(OutcomeDuplicate)).Inc()
		return Result{Outcome: OutcomeDuplicate, Seq: p.hub.Current().Seq}, nil
	}

	start := time.Now()
	tree, err := p.builder.Build(ctx, s.word, p.maxDepth, p.maxBranch)
	treeBuildDurationHistogram.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		span.RecordError(err)
		submissionsCounter.WithLabelValues("failed").Inc()
		p.logger.ErrorWithContext(ctx, "failed to build word tree", zap.String("root_word", s.word), zap.Error(err))

		var lookupErr *wordtree.LookupError
		if errors.As(err, &lookupErr) {
			return Result{}, fmt.Errorf("%w: %w", ErrLookupFailed, err)
		}
		return Result{}, err
	}

	data, err := wordtree.Encode(tree)
	if err != nil {
		submissionsCounter.WithLabelValues("failed").Inc()
		return Result{}, err
	}

	artifact := p.hub.Publish(data)

	p.mu.Lock()
	p.currentRoot = s.word
	p.mu.Unlock()

	artifactsPublishedCounter.WithLabelValues("word").Inc()
	submissionsCounter.WithLabelValues(string(OutcomePublished)).Inc()
	p.logger.InfoWithContext(ctx, "published word tree",
		zap.String("root_word", s.word),
		zap.Uint64("seq", artifact.Seq))

	return Result{Outcome: OutcomePublished, Seq: artifact.Seq}, nil
}
