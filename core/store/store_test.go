package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/davidahmann/evidencekit/core/clock"
	coreerrors "github.com/davidahmann/evidencekit/core/errors"
	"github.com/davidahmann/evidencekit/core/idgen"
	"github.com/davidahmann/evidencekit/core/jcs"
	"github.com/davidahmann/evidencekit/core/provenance"
	"github.com/davidahmann/evidencekit/core/scan"
	schemaevidence "github.com/davidahmann/evidencekit/core/schema/v1/evidence"
)

func scanFixture(t *testing.T) scan.Result {
	t.Helper()
	builder, err := provenance.NewBuilder(provenance.Options{
		Clock:  clock.Fixed(time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)),
		Random: idgen.Deterministic("store"),
	})
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}
	result, err := scan.Run(context.Background(), []scan.Input{
		{Name: "page.html", Content: []byte(`<html><body><img src="x.png"></body></html>`)},
	}, scan.Options{Builder: builder, Summary: true})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	return result
}

func TestMemoryStore(t *testing.T) {
	result := scanFixture(t)
	memory := NewMemoryStore()
	if err := memory.Put(result.Bundle); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := memory.Put(result.Bundle); err != nil {
		t.Fatalf("identical put must be accepted: %v", err)
	}
	changed := result.Bundle
	changed.CreatedAt = "2030-01-01T00:00:00Z"
	if err := memory.Put(changed); coreerrors.CodeOf(err) != coreerrors.CodeInvalidBundle {
		t.Fatalf("stored bundles are immutable, got %v", err)
	}
	got, err := memory.Get(result.Bundle.BundleID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(result.Bundle, got); diff != "" {
		t.Fatalf("bundle (-want +got):\n%s", diff)
	}
	if _, err := memory.Get("bundle-missing"); coreerrors.CodeOf(err) != coreerrors.CodeBundleNotFound {
		t.Fatalf("expected BUNDLE_NOT_FOUND, got %v", err)
	}
	ids, _ := memory.List()
	if diff := cmp.Diff([]string{result.Bundle.BundleID}, ids); diff != "" {
		t.Fatalf("list (-want +got):\n%s", diff)
	}
	if err := memory.Put(schemaevidence.Bundle{BundleID: "../etc"}); coreerrors.CategoryOf(err) != coreerrors.CategoryInvalidInput {
		t.Fatalf("expected invalid bundle id, got %v", err)
	}
}

func TestDirStore(t *testing.T) {
	result := scanFixture(t)
	dir := DirStore{Root: filepath.Join(t.TempDir(), "bundles")}
	if ids, err := dir.List(); err != nil || len(ids) != 0 {
		t.Fatalf("empty store: %v %v", ids, err)
	}
	if err := dir.Put(result.Bundle); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := dir.Put(result.Bundle); err != nil {
		t.Fatalf("identical put must be accepted: %v", err)
	}
	got, err := dir.Get(result.Bundle.BundleID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want, _ := jcs.Canonicalize(result.Bundle)
	have, _ := jcs.Canonicalize(got)
	if string(want) != string(have) {
		t.Fatalf("bundle must survive a disk round trip")
	}
	if _, err := dir.Get("bundle-missing"); coreerrors.CodeOf(err) != coreerrors.CodeBundleNotFound {
		t.Fatalf("expected BUNDLE_NOT_FOUND, got %v", err)
	}
}

func TestWriteAndReadLayout(t *testing.T) {
	result := scanFixture(t)
	outDir := t.TempDir()
	document := schemaevidence.NewFindingsDocument(result.Bundle.Agent, "site", 1, result.Findings)
	if err := WriteLayout(outDir, document, result.Bundle, nil); err != nil {
		t.Fatalf("write layout: %v", err)
	}
	for _, rel := range []string{"findings.json", "bundle.json", "provenance/finding-0001/record.json", "provenance/finding-0002/envelope.json"} {
		if _, err := os.Stat(filepath.Join(outDir, filepath.FromSlash(rel))); err != nil {
			t.Fatalf("expected %s: %v", rel, err)
		}
	}
	read, err := ReadFindings(outDir)
	if err != nil {
		t.Fatalf("read findings: %v", err)
	}
	if len(read.Findings) != len(result.Findings) || read.Target.Path != "site" || read.Summary.FilesScanned != 1 {
		t.Fatalf("unexpected findings document: %+v", read)
	}
	if read.Summary.Errors+read.Summary.Warnings+read.Summary.Info != len(result.Findings) {
		t.Fatalf("summary must count every finding: %+v", read.Summary)
	}
	triad, err := ReadTriad(outDir, "finding-0002")
	if err != nil {
		t.Fatalf("read triad: %v", err)
	}
	want, _ := jcs.Canonicalize(result.Bundle.Entries[1])
	have, _ := jcs.Canonicalize(triad)
	if string(want) != string(have) {
		t.Fatalf("triad must survive a disk round trip:\n%s\n%s", want, have)
	}
	checkPersistedRecordShape(t, filepath.Join(outDir, "provenance", "finding-0002", "record.json"), "evidence", "content")
	checkPersistedRecordShape(t, filepath.Join(outDir, "provenance", "finding-0002", "digest.json"), "digest", "digest")
	bundle, err := ReadBundle(outDir)
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}
	if bundle.BundleID != result.Bundle.BundleID {
		t.Fatalf("unexpected bundle id: %s", bundle.BundleID)
	}
}

// checkPersistedRecordShape reads a record file the way an external consumer does:
// record["prov.record.v0.1"]["outputs"][0]["artifact.v0.1"][field].
func checkPersistedRecordShape(t *testing.T, path, name, field string) {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var persisted map[string]map[string]any
	if err := json.Unmarshal(content, &persisted); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	body, ok := persisted[schemaevidence.RecordSchema]
	if !ok || len(persisted) != 1 {
		t.Fatalf("%s must hold exactly one %s key: %s", path, schemaevidence.RecordSchema, content)
	}
	outputs, _ := body["outputs"].([]any)
	if len(outputs) == 0 {
		t.Fatalf("%s has no outputs", path)
	}
	first, _ := outputs[0].(map[string]any)
	artifact, _ := first[schemaevidence.ArtifactSchema].(map[string]any)
	if artifact["name"] != name || artifact[field] == nil {
		t.Fatalf("%s first output must be an %s entry named %s with %s: %v", path, schemaevidence.ArtifactSchema, name, field, first)
	}
}

func TestReadLayoutErrors(t *testing.T) {
	outDir := t.TempDir()
	if _, err := ReadTriad(outDir, "finding-0001"); coreerrors.CategoryOf(err) != coreerrors.CategoryNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := ReadTriad(outDir, "../finding-0001"); coreerrors.CategoryOf(err) != coreerrors.CategoryInvalidInput {
		t.Fatalf("expected invalid finding id, got %v", err)
	}
	recordDir := filepath.Join(outDir, "provenance", "finding-0001")
	if err := os.MkdirAll(recordDir, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(recordDir, "record.json"), []byte(`{"method_id":"x"}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadTriad(outDir, "finding-0001"); coreerrors.CodeOf(err) != coreerrors.CodeSchemaValidationFailed {
		t.Fatalf("expected schema failure, got %v", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "bundle.json"), []byte(`{"schema":"other"}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadBundle(outDir); coreerrors.CodeOf(err) != coreerrors.CodeInvalidBundle {
		t.Fatalf("expected invalid bundle, got %v", err)
	}
}
