package fanout

import (
	"sync"
)

// Artifact is one published version of the serialized tree. Seq increases by one with every
// publish; the initial artifact has Seq 0.
type Artifact struct {
	Seq  uint64
	Data string
}

// ArtifactStore holds the single current artifact. Replace and Current are atomic with
// respect to each other; no history is kept.
type ArtifactStore struct {
	mu      sync.Mutex
	current Artifact // GUARDED_BY(mu).
}

// NewArtifactStore returns a store whose current artifact is initial.
func NewArtifactStore(initial string) *ArtifactStore {
	return &ArtifactStore{current: Artifact{Data: initial}}
}

// Replace makes data the current artifact and returns it with its sequence number.
func (s *ArtifactStore) Replace(data string) Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = Artifact{Seq: s.current.Seq + 1, Data: data}
	return s.current
}

// Current returns the current artifact.
func (s *ArtifactStore) Current() Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current
}
