// Package idgen generates request, record and bundle identifiers from an injected
// randomness source.
package idgen

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

// Source supplies random bytes. Implementations must be safe for concurrent use.
type Source = io.Reader

// Crypto returns the operating system CSPRNG.
func Crypto() Source { return rand.Reader }

// Or returns source, or Crypto() when source is nil.
func Or(source Source) Source {
	if source == nil {
		return Crypto()
	}
	return source
}

// Deterministic returns a reproducible source for tests. Output is a sha256 counter
// stream keyed by seed; it is not suitable for production identifiers.
func Deterministic(seed string) Source {
	return &deterministicSource{seed: []byte(seed)}
}

type deterministicSource struct {
	mu      sync.Mutex
	seed    []byte
	counter uint64
	buffer  []byte
}

func (s *deterministicSource) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	written := 0
	for written < len(p) {
		if len(s.buffer) == 0 {
			var block [8]byte
			binary.BigEndian.PutUint64(block[:], s.counter)
			s.counter++
			sum := sha256.Sum256(append(append([]byte(nil), s.seed...), block[:]...))
			s.buffer = sum[:]
		}
		n := copy(p[written:], s.buffer)
		s.buffer = s.buffer[n:]
		written += n
	}
	return written, nil
}

func newUUID(source Source) (string, error) {
	value, err := uuid.NewRandomFromReader(Or(source))
	if err != nil {
		return "", fmt.Errorf("generate identifier: %w", err)
	}
	return value.String(), nil
}

// RequestID returns a fresh envelope request identifier.
func RequestID(source Source) (string, error) {
	return newUUID(source)
}

// RecordID returns a fresh identifier for a standalone provenance record.
func RecordID(source Source) (string, error) {
	id, err := newUUID(source)
	if err != nil {
		return "", err
	}
	return "prov-" + id, nil
}

// BundleID returns a fresh identifier for a capture bundle.
func BundleID(source Source) (string, error) {
	id, err := newUUID(source)
	if err != nil {
		return "", err
	}
	return "bundle-" + id, nil
}
