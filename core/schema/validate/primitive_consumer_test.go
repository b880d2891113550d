package validate

import (
	"encoding/json"
	"testing"

	schemaevidence "github.com/davidahmann/evidencekit/core/schema/v1/evidence"
)

func TestGoTypesSatisfySchemas(t *testing.T) {
	record := schemaevidence.Record{
		MethodID:  "engine.extract.evidence.json_pointer",
		Timestamp: "2026-01-01T00:00:00Z",
		Inputs: []schemaevidence.RecordInput{{
			Name: "artifact:dom:page",
			URI:  "page.html",
			Digest: &schemaevidence.ProvDigest{
				Algorithm: "sha256",
				Value:     "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
			},
		}},
		Outputs: []schemaevidence.RecordOutput{{
			Name:    "evidence",
			Content: schemaevidence.ExtractionContent{DocumentRef: "page.html", Pointer: "/nodes/1", Evidence: map[string]any{"tagName": "img"}},
		}},
		Agent: schemaevidence.Agent{Name: "evidencekit", Version: "0.0.0-dev"},
	}
	encoded, err := json.Marshal(schemaevidence.WrapRecord(record))
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	if err := ValidateJSON(SchemaRecord, encoded); err != nil {
		t.Fatalf("record struct must satisfy schema: %v", err)
	}

	findings := []schemaevidence.Finding{{
		FindingID: "finding-0001",
		RuleID:    "img-alt",
		Severity:  "serious",
		Message:   "Image is missing alt text.",
		Location:  schemaevidence.Location{File: "page.html", JSONPointer: "/nodes/1"},
		Evidence:  []schemaevidence.EvidenceAnchor{{ArtifactID: "artifact:dom:page", JSONPointer: "/nodes/1"}},
	}}
	document := schemaevidence.NewFindingsDocument(record.Agent, "site", 1, findings)
	if document.Summary.Errors != 1 || document.Summary.Warnings != 0 {
		t.Fatalf("serious findings count as errors: %+v", document.Summary)
	}
	encoded, err = json.Marshal(document)
	if err != nil {
		t.Fatalf("marshal findings: %v", err)
	}
	if err := ValidateJSON(SchemaFindings, encoded); err != nil {
		t.Fatalf("finding structs must satisfy schema: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("decode findings document: %v", err)
	}
	for _, key := range []string{"engine", "version", "target", "summary", "findings"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("findings document lacks %s", key)
		}
	}
}
