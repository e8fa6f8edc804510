// Package storage contains the follower lookup contracts and their implementations.
//
//go:generate mockgen -source storage.go -destination ./mocks/mock_storage.go -package mocks storage
package storage

import (
	"context"
	"strings"
)

// Follower is a word observed to follow another word in the source corpus, along with the
// number of times it was observed.
type Follower struct {
	Word  string
	Count int64
}

// Row is one co-occurrence record as written to a lookup store.
type Row struct {
	Word     string
	Follower string
	Count    int64
}

// FollowerLookup answers which words follow a given word.
type FollowerLookup interface {
	// ReadFollowers returns the followers of word ordered by descending count. Followers with
	// equal counts are returned in the order they were written. A word without followers
	// yields an empty slice and a nil error.
	ReadFollowers(ctx context.Context, word string) ([]Follower, error)
}

// FollowerWriter populates a lookup store.
type FollowerWriter interface {
	// WriteFollowers adds rows to the store. Counts of rows whose (word, follower) pair already
	// exists are added to the stored count.
	WriteFollowers(ctx context.Context, rows []Row) error
}

// FollowerDatastore is a lookup store that can be both read and populated.
type FollowerDatastore interface {
	FollowerLookup
	FollowerWriter

	// IsReady reports whether the datastore can serve lookups.
	IsReady(ctx context.Context) (ReadinessStatus, error)

	// Close releases the datastore's resources.
	Close()
}

// ReadinessStatus represents the readiness status of the datastore.
type ReadinessStatus struct {
	// Message is a human-friendly status message for the current datastore status.
	Message string

	IsReady bool
}

// Words strips the counts of a ranked follower list, keeping the order.
func Words(followers []Follower) []string {
	words := make([]string, 0, len(followers))
	for _, f := range followers {
		words = append(words, f.Word)
	}
	return words
}

// ValidateRow reports whether a row may be written to a store.
func ValidateRow(r Row) error {
	if strings.TrimSpace(r.Word) == "" || strings.TrimSpace(r.Follower) == "" {
		return ErrInvalidWord
	}
	if r.Count < 0 {
		return ErrInvalidCount
	}
	return nil
}
