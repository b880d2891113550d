package store

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	coreerrors "github.com/davidahmann/evidencekit/core/errors"
	"github.com/davidahmann/evidencekit/core/fsx"
	"github.com/davidahmann/evidencekit/core/provenance"
	schemaevidence "github.com/davidahmann/evidencekit/core/schema/v1/evidence"
	"github.com/davidahmann/evidencekit/core/schema/validate"
)

const (
	FindingsFile = "findings.json"
	BundleFile   = "bundle.json"
)

var findingIDPattern = regexp.MustCompile(`^finding-[0-9]{4,}$`)

func discard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger
}

// WriteLayout persists a scan under outDir:
//
//	findings.json
//	bundle.json
//	provenance/<finding_id>/{record,digest,envelope}.json
//
// Each record file holds a RecordDocument and findings.json holds document. Triads are
// written before findings.json and bundle.json so a reader that finds the index files
// also finds every record they reference.
func WriteLayout(outDir string, document schemaevidence.FindingsDocument, bundle schemaevidence.Bundle, logger *slog.Logger) error {
	logger = discard(logger)
	for _, triad := range bundle.Entries {
		if !findingIDPattern.MatchString(triad.FindingID) {
			return coreerrors.Validation(coreerrors.CodeInvalidBundle, "invalid finding_id %q in bundle", triad.FindingID)
		}
		recordPath, digestPath, envelopePath := provenance.TriadPaths(triad.FindingID)
		for _, file := range []struct {
			rel    string
			record schemaevidence.Record
		}{
			{recordPath, triad.Record},
			{digestPath, triad.Digest},
			{envelopePath, triad.Envelope},
		} {
			if err := fsx.WriteCanonicalJSON(filepath.Join(outDir, filepath.FromSlash(file.rel)), schemaevidence.WrapRecord(file.record)); err != nil {
				return ioFailure(fmt.Errorf("write %s: %w", file.rel, err))
			}
		}
		logger.Debug("triad written", "finding_id", triad.FindingID)
	}
	if document.Findings == nil {
		document.Findings = []schemaevidence.Finding{}
	}
	if err := fsx.WriteCanonicalJSON(filepath.Join(outDir, FindingsFile), document); err != nil {
		return ioFailure(fmt.Errorf("write %s: %w", FindingsFile, err))
	}
	if err := fsx.WriteCanonicalJSON(filepath.Join(outDir, BundleFile), bundle); err != nil {
		return ioFailure(fmt.Errorf("write %s: %w", BundleFile, err))
	}
	logger.Info("layout written", "out_dir", outDir, "findings", len(document.Findings), "bundle_id", bundle.BundleID)
	return nil
}

func readFile(outDir, rel string) ([]byte, error) {
	full := filepath.Join(outDir, filepath.FromSlash(rel))
	// #nosec G304 -- path is joined from the operator's output directory and fixed layout names.
	content, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, coreerrors.NotFound(coreerrors.CodeFileNotFound, "%s not found", full)
		}
		return nil, ioFailure(err)
	}
	return content, nil
}

// ReadRecord reads and schema-checks one persisted record.
func ReadRecord(outDir, rel string) (schemaevidence.Record, error) {
	content, err := readFile(outDir, rel)
	if err != nil {
		return schemaevidence.Record{}, err
	}
	return DecodeRecord(content)
}

// DecodeRecord schema-checks a RecordDocument and returns the record it wraps.
func DecodeRecord(content []byte) (schemaevidence.Record, error) {
	if err := validate.ValidateJSON(validate.SchemaRecord, content); err != nil {
		return schemaevidence.Record{}, err
	}
	var document schemaevidence.RecordDocument
	if err := decodeJSON(content, &document); err != nil {
		return schemaevidence.Record{}, coreerrors.Validation(coreerrors.CodeSchemaValidationFailed, "parse record: %v", err)
	}
	return document.Unwrap(), nil
}

// ReadTriad reads the three records of one finding.
func ReadTriad(outDir, findingID string) (schemaevidence.Triad, error) {
	if !findingIDPattern.MatchString(findingID) {
		return schemaevidence.Triad{}, coreerrors.Validation("", "invalid finding_id %q", findingID)
	}
	recordPath, digestPath, envelopePath := provenance.TriadPaths(findingID)
	triad := schemaevidence.Triad{FindingID: findingID}
	var err error
	if triad.Record, err = ReadRecord(outDir, recordPath); err != nil {
		return schemaevidence.Triad{}, err
	}
	if triad.Digest, err = ReadRecord(outDir, digestPath); err != nil {
		return schemaevidence.Triad{}, err
	}
	if triad.Envelope, err = ReadRecord(outDir, envelopePath); err != nil {
		return schemaevidence.Triad{}, err
	}
	return triad, nil
}

// ReadFindings reads and schema-checks findings.json.
func ReadFindings(outDir string) (schemaevidence.FindingsDocument, error) {
	content, err := readFile(outDir, FindingsFile)
	if err != nil {
		return schemaevidence.FindingsDocument{}, err
	}
	if err := validate.ValidateJSON(validate.SchemaFindings, content); err != nil {
		return schemaevidence.FindingsDocument{}, err
	}
	var document schemaevidence.FindingsDocument
	if err := decodeJSON(content, &document); err != nil {
		return schemaevidence.FindingsDocument{}, coreerrors.Validation(coreerrors.CodeSchemaValidationFailed, "parse %s: %v", FindingsFile, err)
	}
	return document, nil
}

// ReadBundle reads and decodes bundle.json.
func ReadBundle(outDir string) (schemaevidence.Bundle, error) {
	content, err := readFile(outDir, BundleFile)
	if err != nil {
		return schemaevidence.Bundle{}, err
	}
	return DecodeBundle(content)
}
