package artifact

import (
	"fmt"
	"sort"
	"sync"

	coreerrors "github.com/davidahmann/evidencekit/core/errors"
	schemaevidence "github.com/davidahmann/evidencekit/core/schema/v1/evidence"
)

// DuplicateArtifactError is returned by a strict Session when an artifact ID is
// captured twice.
type DuplicateArtifactError struct {
	ArtifactID string
	Existing   string
}

func (e *DuplicateArtifactError) Error() string {
	return fmt.Sprintf("artifact_id %s already captured as %s", e.ArtifactID, e.Existing)
}

type SessionOptions struct {
	// EnforceUnique rejects a second capture under an existing artifact ID.
	EnforceUnique bool
}

// Session collects the artifacts captured during one scan run. The caller owns its
// lifecycle; nothing is shared across sessions.
type Session struct {
	mu        sync.Mutex
	options   SessionOptions
	order     []string
	artifacts map[string]schemaevidence.Artifact
}

// NewSession returns an empty capture session.
func NewSession(options SessionOptions) *Session {
	return &Session{
		options:   options,
		artifacts: map[string]schemaevidence.Artifact{},
	}
}

// Capture creates an artifact and records it. Without EnforceUnique, a repeated ID
// replaces the earlier entry, matching the caller-responsibility contract.
func (s *Session) Capture(id, mediaType, locator string, content []byte, labels []string) (schemaevidence.Artifact, error) {
	created, err := Create(id, mediaType, locator, content, labels)
	if err != nil {
		return schemaevidence.Artifact{}, err
	}
	if err := s.add(created); err != nil {
		return schemaevidence.Artifact{}, err
	}
	return created, nil
}

// CaptureStructured canonicalizes value before capture.
func (s *Session) CaptureStructured(id, locator string, value any, labels []string) (schemaevidence.Artifact, error) {
	created, _, err := CreateStructured(id, locator, value, labels)
	if err != nil {
		return schemaevidence.Artifact{}, err
	}
	if err := s.add(created); err != nil {
		return schemaevidence.Artifact{}, err
	}
	return created, nil
}

func (s *Session) add(created schemaevidence.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, exists := s.artifacts[created.ArtifactID]; exists {
		if s.options.EnforceUnique {
			duplicate := &DuplicateArtifactError{ArtifactID: created.ArtifactID, Existing: describe(existing)}
			return coreerrors.Wrap(duplicate, coreerrors.CategoryInvalidInput, coreerrors.CodeInvalidInput, "choose a distinct artifact name per capture", false)
		}
	} else {
		s.order = append(s.order, created.ArtifactID)
	}
	s.artifacts[created.ArtifactID] = created
	return nil
}

// Lookup returns the artifact captured under id, or ARTIFACT_NOT_FOUND.
func (s *Session) Lookup(id string) (schemaevidence.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found, ok := s.artifacts[id]
	if !ok {
		return schemaevidence.Artifact{}, coreerrors.NotFound(coreerrors.CodeArtifactNotFound, "artifact %s not captured in this session", id)
	}
	return found, nil
}

// Artifacts returns captured artifacts in first-capture order.
func (s *Session) Artifacts() []schemaevidence.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schemaevidence.Artifact, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.artifacts[id])
	}
	return out
}

// Refs returns artifact references sorted by ID.
func (s *Session) Refs() []schemaevidence.ArtifactRef {
	artifacts := s.Artifacts()
	refs := make([]schemaevidence.ArtifactRef, 0, len(artifacts))
	for _, item := range artifacts {
		refs = append(refs, ToRef(item))
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ArtifactID < refs[j].ArtifactID })
	return refs
}
