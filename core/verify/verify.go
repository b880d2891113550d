// Package verify recomputes evidence digests and checks them against stored records.
//
// Verification never trusts the emitter: every digest record is recomputed from the
// extraction record it is paired with. Mismatches are collected per record; a batch
// is never abandoned at the first failure.
package verify

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"path"

	"github.com/davidahmann/evidencekit/core/digest"
	coreerrors "github.com/davidahmann/evidencekit/core/errors"
	"github.com/davidahmann/evidencekit/core/jcs"
	"github.com/davidahmann/evidencekit/core/methods"
	"github.com/davidahmann/evidencekit/core/provenance"
	schemaevidence "github.com/davidahmann/evidencekit/core/schema/v1/evidence"
	"github.com/davidahmann/evidencekit/core/store"
)

type Options struct {
	Catalog       *methods.Catalog
	StrictMethods bool
	// PublicKey, when set, requires a valid bundle signature.
	PublicKey ed25519.PublicKey
}

type RecordResult struct {
	FindingID string `json:"finding_id"`
	OK        bool   `json:"ok"`
	Stored    string `json:"stored,omitempty"`
	Computed  string `json:"computed,omitempty"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
}

type Report struct {
	OK         bool            `json:"ok"`
	BundleID   string          `json:"bundle_id,omitempty"`
	Checked    int             `json:"checked"`
	Failed     int             `json:"failed"`
	Entries    []RecordResult  `json:"entries"`
	Methods    []methods.Issue `json:"method_issues,omitempty"`
	Structural string          `json:"structural_error,omitempty"`
	Signature  string          `json:"signature,omitempty"`
	// SignatureFailed is set when a configured verify key rejects the bundle.
	SignatureFailed bool `json:"signature_failed,omitempty"`
}

func (r *Report) add(result RecordResult) {
	r.Checked++
	if !result.OK {
		r.Failed++
	}
	r.Entries = append(r.Entries, result)
}

func (r *Report) finish() {
	r.OK = r.Failed == 0 && r.Structural == "" && !r.SignatureFailed && !methods.HasErrors(r.Methods)
	if r.Entries == nil {
		r.Entries = []RecordResult{}
	}
}

// Err summarises a failed report. Integrity failures outrank missing files, which
// outrank structural problems, so one tampered record is never masked by another
// finding's absent file.
func (r Report) Err() error {
	if r.OK {
		return nil
	}
	var tampered, missing int
	for _, entry := range r.Entries {
		switch {
		case entry.OK:
		case entry.Code == coreerrors.CodeFileNotFound:
			missing++
		default:
			tampered++
		}
	}
	if tampered > 0 {
		return coreerrors.Integrity(coreerrors.CodeDigestMismatch, "%d of %d evidence digests failed verification", tampered, r.Checked)
	}
	if r.SignatureFailed {
		return coreerrors.Integrity(coreerrors.CodeProvenanceVerificationFailed, "bundle signature: %s", r.Signature)
	}
	if missing > 0 {
		return coreerrors.NotFound(coreerrors.CodeFileNotFound, "%d of %d findings are missing evidence files", missing, r.Checked)
	}
	if r.Structural != "" {
		return coreerrors.Validation(coreerrors.CodeInvalidBundle, "%s", r.Structural)
	}
	return coreerrors.Integrity(coreerrors.CodeProvenanceVerificationFailed, "bundle claims invalid method ids")
}

// BundleProvenance is the shallow first gate: a bundle must claim methods and inputs.
func BundleProvenance(bundle schemaevidence.Bundle) bool {
	return len(bundle.Methods) > 0 && len(bundle.Inputs) > 0
}

func outputContent(record schemaevidence.Record, name string) (any, bool) {
	for _, output := range record.Outputs {
		if output.Name == name {
			return output.Content, output.Content != nil
		}
	}
	return nil, false
}

func inputContent(record schemaevidence.Record, name string) (any, bool) {
	for _, input := range record.Inputs {
		if input.Name == name {
			return input.Content, input.Content != nil
		}
	}
	return nil, false
}

func inputDigest(record schemaevidence.Record, name string) (schemaevidence.ProvDigest, bool) {
	for _, input := range record.Inputs {
		if input.Name == name && input.Digest != nil {
			return *input.Digest, true
		}
	}
	return schemaevidence.ProvDigest{}, false
}

func failure(result RecordResult, code, format string, args ...any) RecordResult {
	result.OK = false
	result.Code = code
	result.Message = fmt.Sprintf(format, args...)
	return result
}

// Pair recomputes the digest of an extraction record's evidence and compares it with
// the value stored on the paired digest record.
func Pair(extraction, digestRecord schemaevidence.Record) RecordResult {
	var result RecordResult
	if extraction.MethodID != methods.EvidenceExtract {
		return failure(result, coreerrors.CodeInvalidBundle, "extraction record has method %q", extraction.MethodID)
	}
	if digestRecord.MethodID != methods.IntegrityDigest {
		return failure(result, coreerrors.CodeInvalidBundle, "digest record has method %q", digestRecord.MethodID)
	}
	stored, ok := provenance.DigestOf(digestRecord)
	if !ok {
		return failure(result, coreerrors.CodeInvalidBundle, "digest record has no digest output")
	}
	result.Stored = stored.Value
	if stored.Algorithm != schemaevidence.DigestSHA256 {
		return failure(result, coreerrors.CodeInvalidBundle, "unsupported digest algorithm %q", stored.Algorithm)
	}
	evidence, ok := outputContent(extraction, provenance.OutputEvidence)
	if !ok {
		return failure(result, coreerrors.CodeInvalidBundle, "extraction record has no evidence output")
	}
	canonical, err := jcs.Canonicalize(evidence)
	if err != nil {
		return failure(result, coreerrors.CodeInvalidBundle, "canonicalize evidence: %v", err)
	}
	computed := digest.Bytes(canonical)
	result.Computed = computed.Hex
	if !digest.Verify(canonical, stored.Value) {
		return failure(result, coreerrors.CodeDigestMismatch, "stored digest %s does not match recomputed %s", stored.Value, computed.Hex)
	}
	linked, ok := inputContent(digestRecord, provenance.OutputEvidence)
	if !ok {
		return failure(result, coreerrors.CodeInvalidBundle, "digest record has no evidence input")
	}
	if !sameCanonical(evidence, linked) {
		return failure(result, coreerrors.CodeDigestMismatch, "digest record input differs from extraction output")
	}
	result.OK = true
	return result
}

// Triad checks the extraction and digest pair and that the envelope-wrap record
// references the same digest.
func Triad(triad schemaevidence.Triad) RecordResult {
	result := Pair(triad.Record, triad.Digest)
	result.FindingID = triad.FindingID
	if !result.OK {
		return result
	}
	if triad.Envelope.MethodID != methods.EnvelopeWrap {
		return failure(result, coreerrors.CodeInvalidBundle, "envelope record has method %q", triad.Envelope.MethodID)
	}
	referenced, ok := inputDigest(triad.Envelope, provenance.InputEvidenceHash)
	if !ok {
		return failure(result, coreerrors.CodeInvalidBundle, "envelope record has no evidence digest reference")
	}
	if referenced.Value != result.Stored {
		return failure(result, coreerrors.CodeDigestMismatch, "envelope references digest %s, digest record holds %s", referenced.Value, result.Stored)
	}
	return result
}

// unreadable turns a record read failure into a per-finding result. Only absent files
// and records that fail to parse or validate are per-finding; anything else aborts.
func unreadable(findingID string, err error) (RecordResult, bool) {
	result := RecordResult{FindingID: findingID}
	switch coreerrors.CategoryOf(err) {
	case coreerrors.CategoryNotFound:
		return failure(result, coreerrors.CodeFileNotFound, "%v", err), true
	case coreerrors.CategoryInvalidInput:
		return failure(result, coreerrors.CodeSchemaValidationFailed, "%v", err), true
	default:
		return result, false
	}
}

func sameCanonical(left, right any) bool {
	leftBytes, err := jcs.Canonicalize(left)
	if err != nil {
		return false
	}
	rightBytes, err := jcs.Canonicalize(right)
	if err != nil {
		return false
	}
	return bytes.Equal(leftBytes, rightBytes)
}

func checkMethods(report *Report, bundle schemaevidence.Bundle, opts Options) error {
	catalog := opts.Catalog
	if catalog == nil {
		loaded, err := methods.Default()
		if err != nil {
			return coreerrors.Internal(err)
		}
		catalog = loaded
	}
	report.Methods = catalog.ValidateRecordMethods(bundle.Methods, opts.StrictMethods)
	return nil
}

func checkSignature(report *Report, bundle schemaevidence.Bundle, opts Options) {
	if opts.PublicKey == nil {
		if bundle.Signature != nil {
			report.Signature = "present, not checked"
		}
		return
	}
	if err := VerifySeal(bundle, opts.PublicKey); err != nil {
		report.Signature = err.Error()
		report.SignatureFailed = true
		return
	}
	report.Signature = "valid"
}

// Bundle verifies every entry of an in-memory bundle.
func Bundle(bundle schemaevidence.Bundle, opts Options) (Report, error) {
	report := Report{BundleID: bundle.BundleID}
	if !BundleProvenance(bundle) {
		report.Structural = "bundle must list methods and inputs"
	}
	if err := checkMethods(&report, bundle, opts); err != nil {
		return Report{}, err
	}
	for _, triad := range bundle.Entries {
		report.add(Triad(triad))
	}
	checkSignature(&report, bundle, opts)
	report.finish()
	return report, nil
}

// Dir verifies a persisted output layout. A missing or malformed findings.json returns
// an error. Record files that are missing or fail their schema are reported per
// finding alongside digest mismatches, and the whole set is summarised by Report.Err.
func Dir(outDir string, opts Options) (Report, error) {
	document, err := store.ReadFindings(outDir)
	if err != nil {
		return Report{}, err
	}
	var report Report
	for _, finding := range document.Findings {
		if finding.EvidenceRef == nil {
			report.add(failure(RecordResult{FindingID: finding.FindingID}, coreerrors.CodeInvalidBundle, "finding has no evidence_ref"))
			continue
		}
		ref := finding.EvidenceRef
		recordDir := path.Join(provenance.LayoutDir, finding.FindingID)
		if path.Dir(ref.Record) != recordDir || path.Dir(ref.Digest) != recordDir || path.Dir(ref.Envelope) != recordDir {
			report.add(failure(RecordResult{FindingID: finding.FindingID}, coreerrors.CodeInvalidBundle, "evidence_ref points outside %s", recordDir))
			continue
		}
		triad, err := store.ReadTriad(outDir, finding.FindingID)
		if err != nil {
			result, ok := unreadable(finding.FindingID, err)
			if !ok {
				return Report{}, err
			}
			report.add(result)
			continue
		}
		result := Triad(triad)
		if result.OK && ref.DigestValue.Value != result.Stored {
			result = failure(result, coreerrors.CodeDigestMismatch, "finding references digest %s, digest record holds %s", ref.DigestValue.Value, result.Stored)
		}
		report.add(result)
	}

	bundle, err := store.ReadBundle(outDir)
	switch {
	case err == nil:
		report.BundleID = bundle.BundleID
		if !BundleProvenance(bundle) {
			report.Structural = "bundle must list methods and inputs"
		}
		if err := checkMethods(&report, bundle, opts); err != nil {
			return Report{}, err
		}
		checkSignature(&report, bundle, opts)
	case coreerrors.CategoryOf(err) == coreerrors.CategoryNotFound:
		if opts.PublicKey != nil {
			return Report{}, err
		}
	default:
		return Report{}, err
	}
	report.finish()
	return report, nil
}
