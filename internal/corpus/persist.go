package corpus

import (
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// Snapshot format version.
const snapshotVersion = 1

// Persistence errors.
var (
	ErrSnapshotFormat  = errors.New("invalid index snapshot")
	ErrSnapshotVersion = errors.New("index snapshot version mismatch")
)

// indexSnapshot is the on-disk form of the word index.
type indexSnapshot struct {
	Version  int                  `json:"version"`
	Postings map[string][]Posting `json:"postings"`
}

// SaveIndex writes a versioned JSON snapshot of the word index.
// The snapshot is only valid for the corpus content it was taken from.
func (s *Store) SaveIndex(w io.Writer) error {
	s.mu.RLock()
	snap := indexSnapshot{
		Version:  snapshotVersion,
		Postings: make(map[string][]Posting, len(s.index)),
	}
	for token, postings := range s.index {
		out := make([]Posting, len(postings))
		copy(out, postings)
		snap.Postings[token] = out
	}
	s.mu.RUnlock()

	enc := json.NewEncoder(w)
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encoding index snapshot: %w", err)
	}
	return nil
}

// LoadIndex replaces the word index with a snapshot previously written
// by SaveIndex. Callers must ensure the snapshot matches the loaded
// corpus content; no consistency check is performed.
func (s *Store) LoadIndex(r io.Reader) error {
	var snap indexSnapshot
	dec := json.NewDecoder(r)
	if err := dec.Decode(&snap); err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshotFormat, err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("%w: got %d, want %d", ErrSnapshotVersion, snap.Version, snapshotVersion)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.Postings == nil {
		snap.Postings = make(map[string][]Posting)
	}
	s.index = snap.Postings
	return nil
}
