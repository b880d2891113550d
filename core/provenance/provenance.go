// Package provenance emits the per-finding record triad and session-level records.
package provenance

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/davidahmann/evidencekit/core/anchor"
	"github.com/davidahmann/evidencekit/core/artifact"
	"github.com/davidahmann/evidencekit/core/clock"
	"github.com/davidahmann/evidencekit/core/digest"
	"github.com/davidahmann/evidencekit/core/envelope"
	coreerrors "github.com/davidahmann/evidencekit/core/errors"
	"github.com/davidahmann/evidencekit/core/idgen"
	"github.com/davidahmann/evidencekit/core/methods"
	schemaevidence "github.com/davidahmann/evidencekit/core/schema/v1/evidence"
)

const DefaultTool = "evidencekit.scan"

// Record names inside a triad.
const (
	InputSource       = "source"
	OutputEvidence    = "evidence"
	OutputDigest      = "digest"
	InputFinding      = "finding"
	InputEvidenceHash = "evidence_digest"
	OutputEnvelope    = "envelope"
)

// Layout file names under provenance/<finding_id>/.
const (
	LayoutDir          = "provenance"
	LayoutRecordFile   = "record.json"
	LayoutDigestFile   = "digest.json"
	LayoutEnvelopeFile = "envelope.json"
)

var DefaultAgent = schemaevidence.Agent{Name: "evidencekit", Version: "0.1.0"}

type Options struct {
	Clock     clock.Clock
	Random    idgen.Source
	Agent     schemaevidence.Agent
	Catalog   *methods.Catalog
	RequestID string
	Tool      string
}

// Builder emits records for one capture run. Every record it emits carries the
// timestamp read from the clock when the builder was created.
type Builder struct {
	random    idgen.Source
	agent     schemaevidence.Agent
	catalog   *methods.Catalog
	timestamp string
	requestID string
	tool      string
}

// NewBuilder fixes the clock reading and request id for every record it emits.
func NewBuilder(opts Options) (*Builder, error) {
	catalog := opts.Catalog
	if catalog == nil {
		loaded, err := methods.Default()
		if err != nil {
			return nil, coreerrors.Internal(fmt.Errorf("load method catalog: %w", err))
		}
		catalog = loaded
	}
	for _, id := range []string{methods.EvidenceExtract, methods.IntegrityDigest, methods.EnvelopeWrap} {
		if err := catalog.Require(id); err != nil {
			return nil, err
		}
	}
	agent := schemaevidence.Agent{
		Name:    strings.TrimSpace(opts.Agent.Name),
		Version: strings.TrimSpace(opts.Agent.Version),
	}
	if agent.Name == "" {
		agent.Name = DefaultAgent.Name
	}
	if agent.Version == "" {
		agent.Version = DefaultAgent.Version
	}
	random := idgen.Or(opts.Random)
	requestID := strings.TrimSpace(opts.RequestID)
	if requestID == "" {
		generated, err := idgen.RequestID(random)
		if err != nil {
			return nil, coreerrors.Internal(err)
		}
		requestID = generated
	}
	tool := strings.TrimSpace(opts.Tool)
	if tool == "" {
		tool = DefaultTool
	}
	return &Builder{
		random:    random,
		agent:     agent,
		catalog:   catalog,
		timestamp: clock.Or(opts.Clock).Now().UTC().Format(time.RFC3339Nano),
		requestID: requestID,
		tool:      tool,
	}, nil
}

func (b *Builder) Timestamp() string { return b.timestamp }

func (b *Builder) RequestID() string { return b.requestID }

func (b *Builder) Agent() schemaevidence.Agent { return b.agent }

func (b *Builder) record(methodID string, inputs []schemaevidence.RecordInput, outputs []schemaevidence.RecordOutput) schemaevidence.Record {
	return schemaevidence.Record{
		MethodID:  methodID,
		Timestamp: b.timestamp,
		Inputs:    inputs,
		Outputs:   outputs,
		Agent:     b.agent,
	}
}

// PublicProjection strips a finding down to the fields an envelope may carry.
func PublicProjection(finding schemaevidence.Finding) schemaevidence.PublicFinding {
	return schemaevidence.PublicFinding{
		FindingID: finding.FindingID,
		RuleID:    finding.RuleID,
		Severity:  finding.Severity,
		Message:   finding.Message,
		Location:  finding.Location,
	}
}

// EmitFinding builds the extraction, digest and envelope-wrap records for one
// finding. Either all three are returned or none.
func (b *Builder) EmitFinding(finding schemaevidence.Finding, source schemaevidence.Artifact, extraction schemaevidence.ExtractionContent) (schemaevidence.Triad, error) {
	if strings.TrimSpace(finding.FindingID) == "" {
		return schemaevidence.Triad{}, coreerrors.Validation("", "finding %s has no finding_id; assign ids before emitting provenance", finding.RuleID)
	}
	if _, _, err := artifact.ParseRef(source.ArtifactID); err != nil {
		return schemaevidence.Triad{}, err
	}
	if err := digest.Validate(source.Digest); err != nil {
		return schemaevidence.Triad{}, coreerrors.Wrap(err, coreerrors.CategoryInvalidInput, coreerrors.CodeInvalidInput, "recapture the source artifact", false)
	}
	if strings.TrimSpace(extraction.DocumentRef) == "" {
		return schemaevidence.Triad{}, coreerrors.Validation("", "extraction for %s has no document_ref", finding.FindingID)
	}
	if _, err := anchor.ParsePointer(extraction.Pointer); err != nil {
		return schemaevidence.Triad{}, err
	}

	evidenceDigest, err := digest.Value(extraction)
	if err != nil {
		return schemaevidence.Triad{}, coreerrors.Wrap(err, coreerrors.CategoryInvalidInput, coreerrors.CodeInvalidInput, "evidence must be finite JSON data", false)
	}
	provDigest := digest.ToProv(evidenceDigest)
	sourceDigest := digest.ToProv(source.Digest)

	extractionRecord := b.record(methods.EvidenceExtract,
		[]schemaevidence.RecordInput{{Name: source.ArtifactID, URI: source.Locator, Digest: &sourceDigest}},
		[]schemaevidence.RecordOutput{{Name: OutputEvidence, Content: extraction}},
	)
	digestRecord := b.record(methods.IntegrityDigest,
		[]schemaevidence.RecordInput{{Name: OutputEvidence, Content: extraction}},
		[]schemaevidence.RecordOutput{{Name: OutputDigest, Digest: &provDigest}},
	)
	public := PublicProjection(finding)
	wrapped := envelope.WrapResponse(b.requestID, b.tool, map[string]any{
		InputFinding:      public,
		InputEvidenceHash: provDigest,
	})
	envelopeRecord := b.record(methods.EnvelopeWrap,
		[]schemaevidence.RecordInput{
			{Name: InputFinding, Content: public},
			{Name: InputEvidenceHash, Digest: &provDigest},
		},
		[]schemaevidence.RecordOutput{{Name: OutputEnvelope, Content: wrapped}},
	)
	return schemaevidence.Triad{
		FindingID: finding.FindingID,
		Record:    extractionRecord,
		Digest:    digestRecord,
		Envelope:  envelopeRecord,
	}, nil
}

// TriadPaths returns the layout paths of a finding's records, relative to the output
// directory.
func TriadPaths(findingID string) (record, digestPath, envelopePath string) {
	dir := path.Join(LayoutDir, findingID)
	return path.Join(dir, LayoutRecordFile), path.Join(dir, LayoutDigestFile), path.Join(dir, LayoutEnvelopeFile)
}

// DigestOf returns the digest output of a digest record.
func DigestOf(record schemaevidence.Record) (schemaevidence.ProvDigest, bool) {
	for _, output := range record.Outputs {
		if output.Name == OutputDigest && output.Digest != nil {
			return *output.Digest, true
		}
	}
	return schemaevidence.ProvDigest{}, false
}

// EvidenceRef points a finding at its persisted triad without embedding evidence.
func EvidenceRef(findingID string, triad schemaevidence.Triad) schemaevidence.EvidenceRef {
	recordPath, digestPath, envelopePath := TriadPaths(findingID)
	value, _ := DigestOf(triad.Digest)
	return schemaevidence.EvidenceRef{
		Record:      recordPath,
		Digest:      digestPath,
		Envelope:    envelopePath,
		DigestValue: value,
	}
}

func methodsOf(triads []schemaevidence.Triad, extra ...string) []string {
	seen := map[string]bool{}
	for _, triad := range triads {
		seen[triad.Record.MethodID] = true
		seen[triad.Digest.MethodID] = true
		seen[triad.Envelope.MethodID] = true
	}
	for _, id := range extra {
		seen[id] = true
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		if id != "" {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Summary builds a standalone session record with a fresh record_id.
func (b *Builder) Summary(inputs []schemaevidence.ArtifactRef, triads []schemaevidence.Triad) (schemaevidence.Record, error) {
	if err := b.catalog.Require(methods.SessionSummary); err != nil {
		return schemaevidence.Record{}, err
	}
	recordID, err := idgen.RecordID(b.random)
	if err != nil {
		return schemaevidence.Record{}, coreerrors.Internal(err)
	}
	recordInputs := make([]schemaevidence.RecordInput, 0, len(inputs))
	for _, ref := range inputs {
		refDigest := ref.Digest
		recordInputs = append(recordInputs, schemaevidence.RecordInput{Name: ref.ArtifactID, URI: ref.Locator, Digest: &refDigest})
	}
	findingIDs := make([]string, 0, len(triads))
	for _, triad := range triads {
		findingIDs = append(findingIDs, triad.FindingID)
	}
	record := b.record(methods.SessionSummary, recordInputs, []schemaevidence.RecordOutput{
		{Name: "findings", Content: findingIDs},
		{Name: "methods", Content: methodsOf(triads)},
	})
	record.RecordID = recordID
	return record, nil
}

// BuildBundle assembles the session bundle. The summary record is attached when
// withSummary is set.
func (b *Builder) BuildBundle(inputs []schemaevidence.ArtifactRef, triads []schemaevidence.Triad, withSummary bool) (schemaevidence.Bundle, error) {
	bundleID, err := idgen.BundleID(b.random)
	if err != nil {
		return schemaevidence.Bundle{}, coreerrors.Internal(err)
	}
	bundle := schemaevidence.Bundle{
		Schema:    schemaevidence.BundleSchema,
		BundleID:  bundleID,
		CreatedAt: b.timestamp,
		Agent:     b.agent,
		Methods:   methodsOf(triads),
		Inputs:    append([]schemaevidence.ArtifactRef{}, inputs...),
		Entries:   append([]schemaevidence.Triad{}, triads...),
	}
	if withSummary {
		summary, err := b.Summary(inputs, triads)
		if err != nil {
			return schemaevidence.Bundle{}, err
		}
		bundle.Summary = &summary
		bundle.Methods = methodsOf(triads, summary.MethodID)
	}
	return bundle, nil
}
