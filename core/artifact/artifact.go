// Package artifact wraps captured content as content-addressed, immutable artifacts.
//
// Artifact IDs take the form artifact:<kind>:<name>. Choosing IDs that do not collide
// within one capture session is the caller's responsibility; Create performs no
// uniqueness check. A Session in strict mode can enforce it instead.
package artifact

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/davidahmann/evidencekit/core/digest"
	coreerrors "github.com/davidahmann/evidencekit/core/errors"
	"github.com/davidahmann/evidencekit/core/jcs"
	schemaevidence "github.com/davidahmann/evidencekit/core/schema/v1/evidence"
)

const refPrefix = "artifact:"

var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-/]*$`)

// Ref builds an artifact ID from a kind and a name.
func Ref(kind, name string) string {
	return refPrefix + kind + ":" + name
}

// ParseRef splits an artifact ID into kind and name.
func ParseRef(id string) (string, string, error) {
	rest, ok := strings.CutPrefix(id, refPrefix)
	if !ok {
		return "", "", coreerrors.Validation("", "artifact_id %q must start with %q", id, refPrefix)
	}
	kind, name, ok := strings.Cut(rest, ":")
	if !ok {
		return "", "", coreerrors.Validation("", "artifact_id %q must have the form artifact:<kind>:<name>", id)
	}
	if !segmentPattern.MatchString(kind) {
		return "", "", coreerrors.Validation("", "artifact_id %q has an invalid kind", id)
	}
	if !segmentPattern.MatchString(name) {
		return "", "", coreerrors.Validation("", "artifact_id %q has an invalid name", id)
	}
	return kind, name, nil
}

// Create digests content as opaque bytes and returns the artifact describing it.
func Create(id, mediaType, locator string, content []byte, labels []string) (schemaevidence.Artifact, error) {
	if _, _, err := ParseRef(id); err != nil {
		return schemaevidence.Artifact{}, err
	}
	mediaType = strings.TrimSpace(mediaType)
	if mediaType == "" {
		return schemaevidence.Artifact{}, coreerrors.Validation("", "artifact %s: media_type is required", id)
	}
	copied := make([]string, 0, len(labels))
	for _, label := range labels {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			copied = append(copied, trimmed)
		}
	}
	return schemaevidence.Artifact{
		ArtifactID: id,
		MediaType:  mediaType,
		Locator:    strings.TrimSpace(locator),
		SizeBytes:  int64(len(content)),
		Digest:     digest.Bytes(content),
		Labels:     copied,
	}, nil
}

// CreateStructured canonicalizes value and captures the canonical bytes.
func CreateStructured(id, locator string, value any, labels []string) (schemaevidence.Artifact, []byte, error) {
	canonical, err := jcs.Canonicalize(value)
	if err != nil {
		return schemaevidence.Artifact{}, nil, coreerrors.Validation("", "artifact %s: %v", id, err)
	}
	created, err := Create(id, "application/json", locator, canonical, labels)
	if err != nil {
		return schemaevidence.Artifact{}, nil, err
	}
	return created, canonical, nil
}

// Verify recomputes the digest and size of content against the artifact.
func Verify(artifact schemaevidence.Artifact, content []byte) bool {
	if artifact.Digest.Alg != schemaevidence.DigestSHA256 {
		return false
	}
	if artifact.SizeBytes != int64(len(content)) {
		return false
	}
	return digest.Verify(content, artifact.Digest.Hex)
}

// ToRef returns the reference form used inside provenance records and bundles.
func ToRef(artifact schemaevidence.Artifact) schemaevidence.ArtifactRef {
	return schemaevidence.ArtifactRef{
		ArtifactID: artifact.ArtifactID,
		Locator:    artifact.Locator,
		Digest:     digest.ToProv(artifact.Digest),
	}
}

func describe(artifact schemaevidence.Artifact) string {
	return fmt.Sprintf("%s (%s, %d bytes)", artifact.ArtifactID, artifact.MediaType, artifact.SizeBytes)
}
