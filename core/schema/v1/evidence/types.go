package evidence

const (
	RecordSchema   = "prov.record.v0.1"
	BundleSchema   = "prov.bundle.v0.1"
	EnvelopeSchema = "mcp.envelope_v0_1"
	DigestSHA256   = "sha256"
)

// Digest is the canonical digest shape stored on artifacts.
type Digest struct {
	Alg string `json:"alg"`
	Hex string `json:"hex"`
}

// ProvDigest is the digest naming embedded in provenance records.
type ProvDigest struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

type Artifact struct {
	ArtifactID string   `json:"artifact_id"`
	MediaType  string   `json:"media_type"`
	Locator    string   `json:"locator"`
	SizeBytes  int64    `json:"size_bytes"`
	Digest     Digest   `json:"digest"`
	Labels     []string `json:"labels"`
}

type LineSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type EvidenceAnchor struct {
	ArtifactID  string    `json:"artifact_id"`
	JSONPointer string    `json:"json_pointer,omitempty"`
	Selector    string    `json:"selector,omitempty"`
	LineSpan    *LineSpan `json:"line_span,omitempty"`
	Snippet     string    `json:"snippet,omitempty"`
}

type Location struct {
	File        string `json:"file"`
	JSONPointer string `json:"json_pointer,omitempty"`
	Line        int    `json:"line,omitempty"`
}

type EvidenceRef struct {
	Record      string     `json:"record"`
	Digest      string     `json:"digest"`
	Envelope    string     `json:"envelope"`
	DigestValue ProvDigest `json:"digest_value"`
}

type Finding struct {
	FindingID   string           `json:"finding_id"`
	RuleID      string           `json:"rule_id"`
	Severity    string           `json:"severity"`
	Message     string           `json:"message"`
	Location    Location         `json:"location"`
	Evidence    []EvidenceAnchor `json:"evidence,omitempty"`
	EvidenceRef *EvidenceRef     `json:"evidence_ref,omitempty"`
}

// PublicFinding is the projection carried by envelope-wrap records.
type PublicFinding struct {
	FindingID string   `json:"finding_id"`
	RuleID    string   `json:"rule_id"`
	Severity  string   `json:"severity"`
	Message   string   `json:"message"`
	Location  Location `json:"location"`
}

type Agent struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type RecordInput struct {
	Name    string      `json:"name"`
	URI     string      `json:"uri,omitempty"`
	Content any         `json:"content,omitempty"`
	Digest  *ProvDigest `json:"digest,omitempty"`
}

type RecordOutput struct {
	Name    string      `json:"name"`
	Content any         `json:"content,omitempty"`
	Digest  *ProvDigest `json:"digest,omitempty"`
}

// Record is one prov.record.v0.1 document. RecordID is set only on standalone records,
// never on the per-finding triad.
type Record struct {
	RecordID  string         `json:"record_id,omitempty"`
	MethodID  string         `json:"method_id"`
	Timestamp string         `json:"timestamp"`
	Inputs    []RecordInput  `json:"inputs"`
	Outputs   []RecordOutput `json:"outputs"`
	Agent     Agent          `json:"agent"`
}

// ExtractionContent is the output of an extraction record and the input of its digest
// record.
type ExtractionContent struct {
	DocumentRef string `json:"document_ref"`
	Pointer     string `json:"pointer"`
	Evidence    any    `json:"evidence"`
}

type Triad struct {
	FindingID string `json:"finding_id"`
	Record    Record `json:"record"`
	Digest    Record `json:"digest"`
	Envelope  Record `json:"envelope"`
}

type ArtifactRef struct {
	ArtifactID string     `json:"artifact_id"`
	Locator    string     `json:"locator,omitempty"`
	Digest     ProvDigest `json:"digest"`
}

type Signature struct {
	Alg          string `json:"alg"`
	KeyID        string `json:"key_id"`
	Sig          string `json:"sig"`
	SignedDigest string `json:"signed_digest,omitempty"`
}

type Bundle struct {
	Schema    string        `json:"schema"`
	BundleID  string        `json:"bundle_id"`
	CreatedAt string        `json:"created_at"`
	Agent     Agent         `json:"agent"`
	Methods   []string      `json:"methods"`
	Inputs    []ArtifactRef `json:"inputs"`
	Entries   []Triad       `json:"entries"`
	Summary   *Record       `json:"summary,omitempty"`
	Signature *Signature    `json:"signature,omitempty"`
}
