// Package store keeps capture bundles and reads and writes the on-disk output layout.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"github.com/davidahmann/evidencekit/core/digest"
	coreerrors "github.com/davidahmann/evidencekit/core/errors"
	"github.com/davidahmann/evidencekit/core/fsx"
	schemaevidence "github.com/davidahmann/evidencekit/core/schema/v1/evidence"
)

var bundleIDPattern = regexp.MustCompile(`^bundle-[A-Za-z0-9-]+$`)

// BundleStore holds bundles by ID. Bundles are immutable once stored.
type BundleStore interface {
	Put(bundle schemaevidence.Bundle) error
	Get(bundleID string) (schemaevidence.Bundle, error)
	List() ([]string, error)
}

func checkBundleID(bundleID string) error {
	if !bundleIDPattern.MatchString(bundleID) {
		return coreerrors.Validation(coreerrors.CodeInvalidBundle, "invalid bundle_id %q", bundleID)
	}
	return nil
}

func bundleNotFound(bundleID string) error {
	return coreerrors.NotFound(coreerrors.CodeBundleNotFound, "bundle %s not found", bundleID)
}

func sameBundle(left, right schemaevidence.Bundle) (bool, error) {
	leftDigest, err := digest.Value(left)
	if err != nil {
		return false, err
	}
	rightDigest, err := digest.Value(right)
	if err != nil {
		return false, err
	}
	return leftDigest == rightDigest, nil
}

// MemoryStore is a caller-owned in-process BundleStore.
type MemoryStore struct {
	mu      sync.RWMutex
	bundles map[string]schemaevidence.Bundle
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bundles: map[string]schemaevidence.Bundle{}}
}

func (s *MemoryStore) Put(bundle schemaevidence.Bundle) error {
	if err := checkBundleID(bundle.BundleID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.bundles[bundle.BundleID]; ok {
		same, err := sameBundle(existing, bundle)
		if err != nil {
			return coreerrors.Wrap(err, coreerrors.CategoryInvalidInput, coreerrors.CodeInvalidBundle, "", false)
		}
		if !same {
			return coreerrors.Validation(coreerrors.CodeInvalidBundle, "bundle %s already stored with different content", bundle.BundleID)
		}
		return nil
	}
	s.bundles[bundle.BundleID] = bundle
	return nil
}

func (s *MemoryStore) Get(bundleID string) (schemaevidence.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bundle, ok := s.bundles[bundleID]
	if !ok {
		return schemaevidence.Bundle{}, bundleNotFound(bundleID)
	}
	return bundle, nil
}

func (s *MemoryStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.bundles))
	for id := range s.bundles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// DirStore keeps one canonical JSON file per bundle under Root.
type DirStore struct {
	Root string
}

func (s DirStore) path(bundleID string) string {
	return filepath.Join(s.Root, bundleID+".json")
}

// Put writes bundle as <root>/<bundle_id>.json. Storing an identical bundle again is
// a no-op.
func (s DirStore) Put(bundle schemaevidence.Bundle) error {
	if err := checkBundleID(bundle.BundleID); err != nil {
		return err
	}
	existing, err := s.Get(bundle.BundleID)
	switch {
	case err == nil:
		same, err := sameBundle(existing, bundle)
		if err != nil {
			return coreerrors.Wrap(err, coreerrors.CategoryInvalidInput, coreerrors.CodeInvalidBundle, "", false)
		}
		if !same {
			return coreerrors.Validation(coreerrors.CodeInvalidBundle, "bundle %s already stored with different content", bundle.BundleID)
		}
		return nil
	case coreerrors.CategoryOf(err) != coreerrors.CategoryNotFound:
		return err
	}
	if err := fsx.WriteCanonicalJSON(s.path(bundle.BundleID), bundle); err != nil {
		return ioFailure(fmt.Errorf("write bundle %s: %w", bundle.BundleID, err))
	}
	return nil
}

func (s DirStore) Get(bundleID string) (schemaevidence.Bundle, error) {
	if err := checkBundleID(bundleID); err != nil {
		return schemaevidence.Bundle{}, err
	}
	// #nosec G304 -- bundle id is validated against a fixed pattern.
	content, err := os.ReadFile(s.path(bundleID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return schemaevidence.Bundle{}, bundleNotFound(bundleID)
		}
		return schemaevidence.Bundle{}, ioFailure(err)
	}
	return DecodeBundle(content)
}

func (s DirStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, ioFailure(err)
	}
	ids := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		id := name[:len(name)-len(".json")]
		if bundleIDPattern.MatchString(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// DecodeBundle parses a bundle document, keeping numbers exact.
func DecodeBundle(content []byte) (schemaevidence.Bundle, error) {
	var bundle schemaevidence.Bundle
	if err := decodeJSON(content, &bundle); err != nil {
		return schemaevidence.Bundle{}, coreerrors.Validation(coreerrors.CodeInvalidBundle, "parse bundle: %v", err)
	}
	if bundle.Schema != schemaevidence.BundleSchema {
		return schemaevidence.Bundle{}, coreerrors.Validation(coreerrors.CodeInvalidBundle, "unsupported bundle schema %q", bundle.Schema)
	}
	return bundle, nil
}

func decodeJSON(content []byte, target any) error {
	decoder := json.NewDecoder(bytes.NewReader(content))
	decoder.UseNumber()
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return err
	}
	if decoder.More() {
		return fmt.Errorf("trailing data after JSON document")
	}
	return nil
}

func ioFailure(err error) error {
	return coreerrors.Wrap(err, coreerrors.CategoryIOFailure, coreerrors.CodeCaptureFailed, "check output directory permissions", true)
}
