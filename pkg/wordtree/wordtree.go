// Package wordtree builds ranked word-association trees and encodes them as artifacts.
package wordtree

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedTree is returned when a document does not describe a word tree.
var ErrMalformedTree = errors.New("malformed word tree")

// WordTree is one node of a word-association tree. Children are ordered by descending
// co-occurrence frequency.
type WordTree struct {
	Word           string      `json:"word"`
	FollowWordObjs []*WordTree `json:"followWordObjs"`
}

// EmptyArtifact is the encoding of the empty tree. It is the current artifact before the
// first publish, and what publishing a nil tree produces.
const EmptyArtifact = `{"word":"","followWordObjs":[]}`

// IsEmpty reports whether the node carries neither a word nor children.
func (t *WordTree) IsEmpty() bool {
	return t == nil || (t.Word == "" && len(t.FollowWordObjs) == 0)
}

// Depth returns the number of edges on the longest root-to-leaf path. A nil tree has depth -1.
func (t *WordTree) Depth() int {
	if t == nil {
		return -1
	}
	depth := 0
	for _, c := range t.FollowWordObjs {
		if d := c.Depth() + 1; d > depth {
			depth = d
		}
	}
	return depth
}

// MaxBranch returns the largest number of children of any node in the tree.
func (t *WordTree) MaxBranch() int {
	if t == nil {
		return 0
	}
	branch := len(t.FollowWordObjs)
	for _, c := range t.FollowWordObjs {
		if b := c.MaxBranch(); b > branch {
			branch = b
		}
	}
	return branch
}

// Sequences returns one word sequence per child of the root: the root word followed by the
// words of that child's subtree in depth-first order, separated by single spaces.
func (t *WordTree) Sequences() []string {
	if t == nil {
		return nil
	}

	sequences := make([]string, 0, len(t.FollowWordObjs))
	for _, c := range t.FollowWordObjs {
		words := []string{t.Word}
		sequences = append(sequences, strings.Join(c.appendWords(words), " "))
	}
	return sequences
}

func (t *WordTree) appendWords(words []string) []string {
	words = append(words, t.Word)
	for _, c := range t.FollowWordObjs {
		words = c.appendWords(words)
	}
	return words
}

// Encode serializes a tree to its artifact form. A nil tree encodes to [EmptyArtifact].
func Encode(t *WordTree) (string, error) {
	if t == nil {
		return EmptyArtifact, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalize(t)); err != nil {
		return "", fmt.Errorf("encode word tree: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Decode parses an artifact back into a tree and validates its shape.
func Decode(artifact string) (*WordTree, error) {
	var t WordTree
	if err := json.Unmarshal([]byte(artifact), &t); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedTree, err)
	}
	if err := Validate(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks that every node below the root has a word and that no child is null.
func Validate(t *WordTree) error {
	for i, c := range t.FollowWordObjs {
		if c == nil {
			return fmt.Errorf("%w: null child %d of %q", ErrMalformedTree, i, t.Word)
		}
		if c.Word == "" {
			return fmt.Errorf("%w: child %d of %q has no word", ErrMalformedTree, i, t.Word)
		}
		if err := Validate(c); err != nil {
			return err
		}
	}
	return nil
}

// normalize replaces nil children slices so they encode as [] rather than null.
func normalize(t *WordTree) *WordTree {
	out := &WordTree{Word: t.Word, FollowWordObjs: make([]*WordTree, 0, len(t.FollowWordObjs))}
	for _, c := range t.FollowWordObjs {
		out.FollowWordObjs = append(out.FollowWordObjs, normalize(c))
	}
	return out
}
