// Package badger stores follower lists in an embedded BadgerDB. Each word is one key whose
// value is the CBOR-encoded list of its followers in first-write order.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/echotree/echotree/pkg/logger"
	"github.com/echotree/echotree/pkg/storage"
)

var tracer = otel.Tracer("echotree/pkg/storage/badger")

const (
	keyPrefix              = "followers/"
	defaultMaxRowsPerWrite = 1000

	// maxConflictRetries bounds how often a write transaction is retried after losing a
	// conflict to a concurrent writer.
	maxConflictRetries = 20
)

// Config holds configuration for a BadgerDB backed store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	Logger          logger.Logger
	MaxRowsPerWrite int
}

// Option configures a [Config].
type Option func(*Config)

// WithInMemory returns an Option that opens the database without disk persistence.
func WithInMemory() Option {
	return func(c *Config) { c.InMemory = true }
}

// WithSyncWrites returns an Option that fsyncs every write.
func WithSyncWrites() Option {
	return func(c *Config) { c.SyncWrites = true }
}

// WithLogger returns an Option that routes BadgerDB's own log output to l.
func WithLogger(l logger.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithMaxRowsPerWrite returns an Option that caps the rows accepted by one WriteFollowers call.
func WithMaxRowsPerWrite(n int) Option {
	return func(c *Config) { c.MaxRowsPerWrite = n }
}

// followerEntry is the stored form of a follower.
type followerEntry struct {
	Word  string `cbor:"1,keyasint"`
	Count int64  `cbor:"2,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("badger: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("badger: CBOR decoder initialization failed: " + err.Error())
	}
}

// badgerLogger adapts logger.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Datastore provides a BadgerDB based implementation of [storage.FollowerDatastore].
type Datastore struct {
	db              *badger.DB
	maxRowsPerWrite int
}

var _ storage.FollowerDatastore = (*Datastore)(nil)

// New opens a BadgerDB database at path, or in memory when [WithInMemory] is given.
func New(path string, opts ...Option) (*Datastore, error) {
	cfg := Config{Path: path}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.MaxRowsPerWrite == 0 {
		cfg.MaxRowsPerWrite = defaultMaxRowsPerWrite
	}

	var bopts badger.Options
	if cfg.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("path is required for persistent database")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		bopts = badger.DefaultOptions(cfg.Path)
	}

	bopts = bopts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		bopts = bopts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	return &Datastore{db: db, maxRowsPerWrite: cfg.MaxRowsPerWrite}, nil
}

func key(word string) []byte {
	return []byte(keyPrefix + word)
}

func readEntries(txn *badger.Txn, word string) ([]followerEntry, error) {
	item, err := txn.Get(key(word))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []followerEntry
	err = item.Value(func(val []byte) error {
		return decMode.Unmarshal(val, &entries)
	})
	if err != nil {
		return nil, fmt.Errorf("decode followers of %q: %w", word, err)
	}
	return entries, nil
}

// ReadFollowers see [storage.FollowerLookup].ReadFollowers.
func (d *Datastore) ReadFollowers(ctx context.Context, word string) ([]storage.Follower, error) {
	_, span := tracer.Start(ctx, "badger.ReadFollowers", trace.WithAttributes(attribute.String("word", word)))
	defer span.End()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var entries []followerEntry
	err := d.db.View(func(txn *badger.Txn) error {
		var err error
		entries, err = readEntries(txn, word)
		return err
	})
	if err != nil {
		return nil, handleError(err)
	}

	res := make([]storage.Follower, 0, len(entries))
	for _, e := range entries {
		res = append(res, storage.Follower{Word: e.Word, Count: e.Count})
	}

	sort.SliceStable(res, func(i, j int) bool {
		return res[i].Count > res[j].Count
	})

	return res, nil
}

// WriteFollowers see [storage.FollowerWriter].WriteFollowers.
func (d *Datastore) WriteFollowers(ctx context.Context, rows []storage.Row) error {
	_, span := tracer.Start(ctx, "badger.WriteFollowers", trace.WithAttributes(attribute.Int("rows", len(rows))))
	defer span.End()

	if len(rows) > d.maxRowsPerWrite {
		return fmt.Errorf("cannot write more than %d rows in a single call, got %d", d.maxRowsPerWrite, len(rows))
	}

	byWord := make(map[string][]storage.Row)
	var order []string
	for _, r := range rows {
		if err := storage.ValidateRow(r); err != nil {
			return fmt.Errorf("%w: %+v", err, r)
		}
		if _, ok := byWord[r.Word]; !ok {
			order = append(order, r.Word)
		}
		byWord[r.Word] = append(byWord[r.Word], r)
	}

	update := func(txn *badger.Txn) error {
		for _, word := range order {
			entries, err := readEntries(txn, word)
			if err != nil {
				return err
			}

		Rows:
			for _, r := range byWord[word] {
				for i := range entries {
					if entries[i].Word == r.Follower {
						entries[i].Count += r.Count
						continue Rows
					}
				}
				entries = append(entries, followerEntry{Word: r.Follower, Count: r.Count})
			}

			val, err := encMode.Marshal(entries)
			if err != nil {
				return fmt.Errorf("encode followers of %q: %w", word, err)
			}
			if err := txn.Set(key(word), val); err != nil {
				return err
			}
		}
		return nil
	}

	return handleError(conflictRetry(ctx, func() error {
		return d.db.Update(update)
	}))
}

// conflictRetry runs fn again with backoff while it fails with [badger.ErrConflict].
func conflictRetry(ctx context.Context, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 5 * time.Millisecond
	policy.MaxInterval = 200 * time.Millisecond

	return backoff.Retry(func() error {
		err := fn()
		if err != nil && !errors.Is(err, badger.ErrConflict) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, maxConflictRetries), ctx))
}

// IsReady see [storage.FollowerDatastore].IsReady.
func (d *Datastore) IsReady(context.Context) (storage.ReadinessStatus, error) {
	if d.db.IsClosed() {
		return storage.ReadinessStatus{Message: "closed"}, nil
	}
	return storage.ReadinessStatus{IsReady: true}, nil
}

// Close see [storage.FollowerDatastore].Close.
func (d *Datastore) Close() {
	_ = d.db.Close()
}

func handleError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrDBClosed):
		return storage.ErrClosed
	default:
		return fmt.Errorf("badger error: %w", err)
	}
}
