package evidence

const (
	ArtifactSchema = "artifact.v0.1"
	EngineName     = "evidencekit"
)

// RecordDocument is the on-disk form of a Record: the record body keyed by
// RecordSchema, each input and output keyed by ArtifactSchema.
type RecordDocument struct {
	Record RecordBody `json:"prov.record.v0.1"`
}

type RecordBody struct {
	RecordID  string        `json:"record_id,omitempty"`
	MethodID  string        `json:"method_id"`
	Timestamp string        `json:"timestamp"`
	Inputs    []InputEntry  `json:"inputs"`
	Outputs   []OutputEntry `json:"outputs"`
	Agent     Agent         `json:"agent"`
}

type InputEntry struct {
	Artifact RecordInput `json:"artifact.v0.1"`
}

type OutputEntry struct {
	Artifact RecordOutput `json:"artifact.v0.1"`
}

// WrapRecord converts a record to its on-disk form.
func WrapRecord(record Record) RecordDocument {
	body := RecordBody{
		RecordID:  record.RecordID,
		MethodID:  record.MethodID,
		Timestamp: record.Timestamp,
		Inputs:    make([]InputEntry, 0, len(record.Inputs)),
		Outputs:   make([]OutputEntry, 0, len(record.Outputs)),
		Agent:     record.Agent,
	}
	for _, input := range record.Inputs {
		body.Inputs = append(body.Inputs, InputEntry{Artifact: input})
	}
	for _, output := range record.Outputs {
		body.Outputs = append(body.Outputs, OutputEntry{Artifact: output})
	}
	return RecordDocument{Record: body}
}

// Unwrap is the inverse of WrapRecord.
func (d RecordDocument) Unwrap() Record {
	record := Record{
		RecordID:  d.Record.RecordID,
		MethodID:  d.Record.MethodID,
		Timestamp: d.Record.Timestamp,
		Inputs:    make([]RecordInput, 0, len(d.Record.Inputs)),
		Outputs:   make([]RecordOutput, 0, len(d.Record.Outputs)),
		Agent:     d.Record.Agent,
	}
	for _, input := range d.Record.Inputs {
		record.Inputs = append(record.Inputs, input.Artifact)
	}
	for _, output := range d.Record.Outputs {
		record.Outputs = append(record.Outputs, output.Artifact)
	}
	return record
}

type Target struct {
	Path string `json:"path"`
}

// FindingsSummary counts findings by severity class: critical and serious are
// errors, moderate and minor are warnings, anything else is info.
type FindingsSummary struct {
	FilesScanned int `json:"files_scanned"`
	Errors       int `json:"errors"`
	Warnings     int `json:"warnings"`
	Info         int `json:"info"`
}

// FindingsDocument is the findings.json index of a persisted scan.
type FindingsDocument struct {
	Engine   string          `json:"engine"`
	Version  string          `json:"version"`
	Target   Target          `json:"target"`
	Summary  FindingsSummary `json:"summary"`
	Findings []Finding       `json:"findings"`
}

// NewFindingsDocument indexes findings for target, counting severities.
func NewFindingsDocument(agent Agent, target string, filesScanned int, findings []Finding) FindingsDocument {
	document := FindingsDocument{
		Engine:   agent.Name,
		Version:  agent.Version,
		Target:   Target{Path: target},
		Summary:  FindingsSummary{FilesScanned: filesScanned},
		Findings: findings,
	}
	if document.Engine == "" {
		document.Engine = EngineName
	}
	if document.Findings == nil {
		document.Findings = []Finding{}
	}
	for _, finding := range findings {
		switch finding.Severity {
		case "critical", "serious":
			document.Summary.Errors++
		case "moderate", "minor":
			document.Summary.Warnings++
		default:
			document.Summary.Info++
		}
	}
	return document
}
