// Package keys computes stable cache keys of node key paths.
package keys

import (
	"github.com/cespare/xxhash/v2"

	"github.com/iTwin/presentation-hierarchies/pkg/nodekey"
)

type hasher interface {
	WriteString(value string) error
}

// NewPathHasher returns a hasher for a node key path. Two paths hash equally when their
// keys compare equal element-wise.
func NewPathHasher(path []nodekey.Key) *pathHasher {
	return &pathHasher{path}
}

type pathHasher struct {
	path []nodekey.Key
}

func (p *pathHasher) Append(h hasher) error {
	// prefix to avoid overlap with previous strings written
	if err := h.WriteString("/"); err != nil {
		return err
	}

	for _, k := range p.path {
		// the canonical key form is JSON, so a trailing separator cannot be ambiguous
		if err := h.WriteString(nodekey.Marshal(k) + ","); err != nil {
			return err
		}
	}

	return nil
}

// digestWriter adapts an xxhash digest to hasher.
type digestWriter struct {
	digest *xxhash.Digest
}

func (d digestWriter) WriteString(value string) error {
	// xxhash never fails to write
	_, _ = d.digest.WriteString(value)
	return nil
}

// PathKey returns the stable hash of a node key path.
func PathKey(path []nodekey.Key) uint64 {
	w := digestWriter{xxhash.New()}
	_ = NewPathHasher(path).Append(w)
	return w.digest.Sum64()
}
