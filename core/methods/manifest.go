package methods

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/davidahmann/evidencekit/core/digest"
	coreerrors "github.com/davidahmann/evidencekit/core/errors"
	"github.com/davidahmann/evidencekit/core/jcs"
)

const (
	ManifestSchema = "prov-capabilities@v0.1"

	// EnvelopeVectorSchema is the schema_version an envelope-wrap vector expects.
	EnvelopeVectorSchema = "mcp.envelope.v0.1"
)

// Manifest declares the method IDs an engine implements and the ones it may emit.
type Manifest struct {
	Schema     string   `json:"schema"`
	Implements []string `json:"implements"`
	Optional   []string `json:"optional,omitempty"`
}

// ParseManifest decodes a capability manifest without judging its contents.
func ParseManifest(data []byte) (Manifest, error) {
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, coreerrors.Validation("", "parse capability manifest: %v", err)
	}
	return manifest, nil
}

// ValidateManifest checks a capability manifest. A wrong schema and ungrammatical IDs
// are errors; implemented IDs missing from the catalog are warnings. Optional IDs
// are only held to the grammar.
func (c *Catalog) ValidateManifest(manifest Manifest) []Issue {
	var issues []Issue
	if manifest.Schema != ManifestSchema {
		issues = append(issues, Issue{Level: IssueError, Message: fmt.Sprintf("invalid manifest schema %q, want %q", manifest.Schema, ManifestSchema)})
	}
	for _, id := range manifest.Implements {
		if err := ValidateID(id); err != nil {
			issues = append(issues, Issue{Level: IssueError, Message: err.Error()})
			continue
		}
		if _, ok := c.methods[id]; !ok {
			issues = append(issues, Issue{Level: IssueWarning, Message: fmt.Sprintf("method id %q is not in the catalog", id)})
		}
	}
	for _, id := range manifest.Optional {
		if err := ValidateID(id); err != nil {
			issues = append(issues, Issue{Level: IssueError, Message: err.Error()})
		}
	}
	return issues
}

// CheckVector runs the conformance vector for vectorID over its input.json and
// expected.json contents. A passing vector yields a single info issue.
func CheckVector(vectorID string, input, expected []byte) []Issue {
	var issues []Issue
	switch vectorID {
	case IntegrityDigest:
		issues = checkDigestVector(input, expected)
	case EnvelopeWrap:
		issues = checkEnvelopeVector(input, expected)
	default:
		return []Issue{{Level: IssueWarning, Message: fmt.Sprintf("no vector check for %s", vectorID)}}
	}
	if len(issues) == 0 {
		issues = []Issue{{Level: IssueInfo, Message: fmt.Sprintf("test vector %s passed", vectorID)}}
	}
	return issues
}

func errorIssue(format string, args ...any) Issue {
	return Issue{Level: IssueError, Message: fmt.Sprintf(format, args...)}
}

type digestVector struct {
	CanonicalForm string `json:"canonical_form"`
	Digest        struct {
		Alg   string `json:"alg"`
		Value string `json:"value"`
	} `json:"digest"`
}

func checkDigestVector(input, expected []byte) []Issue {
	canonical, err := jcs.CanonicalizeJSON(input)
	if err != nil {
		return []Issue{errorIssue("canonicalize input: %v", err)}
	}
	var want digestVector
	if err := json.Unmarshal(expected, &want); err != nil {
		return []Issue{errorIssue("parse expected: %v", err)}
	}
	var issues []Issue
	if string(canonical) != want.CanonicalForm {
		issues = append(issues, errorIssue("canonical form mismatch: got %s", canonical))
	}
	computed := digest.Bytes(canonical)
	if want.Digest.Alg != computed.Alg || want.Digest.Value != computed.Hex {
		issues = append(issues, errorIssue("digest mismatch: got %s:%s", computed.Alg, computed.Hex))
	}
	return issues
}

type envelopeVector struct {
	SchemaVersion string          `json:"schema_version"`
	Result        json.RawMessage `json:"result"`
}

func checkEnvelopeVector(input, expected []byte) []Issue {
	var want envelopeVector
	if err := json.Unmarshal(expected, &want); err != nil {
		return []Issue{errorIssue("parse expected: %v", err)}
	}
	var issues []Issue
	if want.SchemaVersion != EnvelopeVectorSchema {
		issues = append(issues, errorIssue("expected schema_version %q, got %q", EnvelopeVectorSchema, want.SchemaVersion))
	}
	canonicalInput, err := jcs.CanonicalizeJSON(input)
	if err != nil {
		return append(issues, errorIssue("canonicalize input: %v", err))
	}
	if len(want.Result) == 0 {
		return append(issues, errorIssue("expected has no result"))
	}
	canonicalResult, err := jcs.CanonicalizeJSON(want.Result)
	if err != nil {
		return append(issues, errorIssue("canonicalize expected result: %v", err))
	}
	if !bytes.Equal(canonicalInput, canonicalResult) {
		issues = append(issues, errorIssue("wrapped result must equal the input"))
	}
	return issues
}
