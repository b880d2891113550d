package digest

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/davidahmann/evidencekit/core/jcs"
	schemaevidence "github.com/davidahmann/evidencekit/core/schema/v1/evidence"
)

var hexPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Bytes hashes opaque content as-is.
func Bytes(content []byte) schemaevidence.Digest {
	sum := sha256.Sum256(content)
	return schemaevidence.Digest{Alg: schemaevidence.DigestSHA256, Hex: hex.EncodeToString(sum[:])}
}

// Value canonicalizes structured content and hashes the canonical UTF-8 bytes.
func Value(value any) (schemaevidence.Digest, error) {
	canonical, err := jcs.Canonicalize(value)
	if err != nil {
		return schemaevidence.Digest{}, err
	}
	return Bytes(canonical), nil
}

// JSON canonicalizes encoded JSON and hashes the canonical bytes.
func JSON(raw []byte) (schemaevidence.Digest, error) {
	canonical, err := jcs.CanonicalizeJSON(raw)
	if err != nil {
		return schemaevidence.Digest{}, fmt.Errorf("canonicalize json: %w", err)
	}
	return Bytes(canonical), nil
}

// Verify recomputes the digest of content and compares it with expectedHex.
func Verify(content []byte, expectedHex string) bool {
	expected, ok := normalizeHex(expectedHex)
	if !ok {
		return false
	}
	return equalHex(Bytes(content).Hex, expected)
}

// VerifyValue canonicalizes value and compares its digest with expectedHex. A
// malformed expectedHex never matches.
func VerifyValue(value any, expectedHex string) (bool, error) {
	computed, err := Value(value)
	if err != nil {
		return false, err
	}
	expected, ok := normalizeHex(expectedHex)
	if !ok {
		return false, nil
	}
	return equalHex(computed.Hex, expected), nil
}

// ValidHex reports whether value is 64 lowercase hex characters.
func ValidHex(value string) bool {
	return hexPattern.MatchString(value)
}

// Validate rejects digests that are not sha256 with 64 lowercase hex characters.
func Validate(value schemaevidence.Digest) error {
	if value.Alg != schemaevidence.DigestSHA256 {
		return fmt.Errorf("unsupported digest algorithm: %q", value.Alg)
	}
	if !ValidHex(value.Hex) {
		return fmt.Errorf("digest hex must be 64 lowercase hex characters")
	}
	return nil
}

// ToProv converts a digest to the algorithm/value shape used inside records.
func ToProv(value schemaevidence.Digest) schemaevidence.ProvDigest {
	return schemaevidence.ProvDigest{Algorithm: value.Alg, Value: value.Hex}
}

// FromProv is the inverse of ToProv.
func FromProv(value schemaevidence.ProvDigest) schemaevidence.Digest {
	return schemaevidence.Digest{Alg: value.Algorithm, Hex: value.Value}
}

func normalizeHex(value string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	return normalized, ValidHex(normalized)
}

func equalHex(left, right string) bool {
	return subtle.ConstantTimeCompare([]byte(left), []byte(right)) == 1
}
