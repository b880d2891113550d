// Package scan runs rules over captured documents and emits the provenance for every
// finding.
package scan

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/davidahmann/evidencekit/core/anchor"
	"github.com/davidahmann/evidencekit/core/artifact"
	"github.com/davidahmann/evidencekit/core/digest"
	coreerrors "github.com/davidahmann/evidencekit/core/errors"
	"github.com/davidahmann/evidencekit/core/findingid"
	"github.com/davidahmann/evidencekit/core/provenance"
	"github.com/davidahmann/evidencekit/core/rules"
	schemaevidence "github.com/davidahmann/evidencekit/core/schema/v1/evidence"
)

const (
	KindHTML  = "html"
	KindNodes = "json"
	KindDOM   = "dom"

	DefaultParallelism = 4
)

// Input is one document to scan. Name is the document reference recorded in
// findings, usually a slash-separated relative path. Kind is derived from the
// extension of Name when empty.
type Input struct {
	Name    string
	Kind    string
	Content []byte
}

type Options struct {
	Builder       *provenance.Builder
	Rules         *rules.Registry
	Parallelism   int
	EnforceUnique bool
	Summary       bool
	Logger        *slog.Logger
}

type Result struct {
	Findings  []schemaevidence.Finding
	Bundle    schemaevidence.Bundle
	Artifacts []schemaevidence.Artifact
}

type captured struct {
	doc    rules.Document
	source schemaevidence.Artifact
	dom    schemaevidence.Artifact
}

type domContent struct {
	Nodes []rules.Node `json:"nodes"`
}

// ArtifactName derives the artifact name segment from a document reference. Distinct
// references can share a name; Run disambiguates them with NameSuffix.
func ArtifactName(documentRef string) string {
	name := strings.TrimSuffix(documentRef, path.Ext(documentRef))
	var builder strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-', r == '/':
			builder.WriteRune(r)
		default:
			builder.WriteRune('-')
		}
	}
	cleaned := strings.TrimLeft(builder.String(), "._-/")
	if cleaned == "" {
		return "document"
	}
	return cleaned
}

// NameSuffix is the short hash appended to a derived name that sanitizing changed or
// that another document already claims.
func NameSuffix(documentRef string) string {
	return digest.Bytes([]byte(documentRef)).Hex[:8]
}

// artifactNames assigns every distinct document reference its artifact name segment.
// References whose ArtifactName is their own extensionless path claim that name in
// sorted order. The rest take ArtifactName plus NameSuffix. The result depends only on
// the set of references, not on input order.
func artifactNames(inputs []Input) (map[string]string, error) {
	refs := make([]string, 0, len(inputs))
	seen := map[string]bool{}
	for _, input := range inputs {
		ref := strings.TrimSpace(input.Name)
		if ref == "" || seen[ref] {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	sort.Strings(refs)

	names := make(map[string]string, len(refs))
	claimed := map[string]string{}
	var suffixed []string
	for _, ref := range refs {
		name := ArtifactName(ref)
		if _, taken := claimed[name]; taken || name != strings.TrimSuffix(ref, path.Ext(ref)) {
			suffixed = append(suffixed, ref)
			continue
		}
		names[ref] = name
		claimed[name] = ref
	}
	for _, ref := range suffixed {
		name := ArtifactName(ref) + "-" + NameSuffix(ref)
		if other, taken := claimed[name]; taken {
			return nil, coreerrors.Validation("", "documents %s and %s derive the same artifact name %s", other, ref, name)
		}
		names[ref] = name
		claimed[name] = ref
	}
	return names, nil
}

func withoutDocument(findings []schemaevidence.Finding, documentRef string) []schemaevidence.Finding {
	kept := findings[:0]
	for _, finding := range findings {
		if finding.Location.File != documentRef {
			kept = append(kept, finding)
		}
	}
	return kept
}

func inputKind(input Input) (string, string, error) {
	kind := strings.TrimSpace(input.Kind)
	if kind == "" {
		kind = KindHTML
		if strings.EqualFold(path.Ext(input.Name), ".json") {
			kind = KindNodes
		}
	}
	switch kind {
	case KindHTML:
		return kind, "text/html", nil
	case KindNodes:
		return kind, "application/json", nil
	default:
		return "", "", coreerrors.Validation("", "scan input %s has unsupported kind %q", input.Name, kind)
	}
}

// Run captures every input, applies the rules, assigns finding IDs and emits one
// provenance triad per finding. Any failure fails the whole run.
//
// A document reference given twice is captured twice under the same artifact ids. With
// EnforceUnique that fails the run; otherwise the later document replaces the earlier
// one together with its findings.
func Run(ctx context.Context, inputs []Input, opts Options) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	builder := opts.Builder
	if builder == nil {
		created, err := provenance.NewBuilder(provenance.Options{})
		if err != nil {
			return Result{}, err
		}
		builder = created
	}
	registry := opts.Rules
	if registry == nil {
		registry = rules.Builtin()
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	names, err := artifactNames(inputs)
	if err != nil {
		return Result{}, err
	}
	session := artifact.NewSession(artifact.SessionOptions{EnforceUnique: opts.EnforceUnique})
	documents := map[string]captured{}
	var raw []schemaevidence.Finding
	for _, input := range inputs {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		entry, err := capture(session, input, names)
		if err != nil {
			return Result{}, err
		}
		if _, repeated := documents[entry.doc.Name]; repeated {
			raw = withoutDocument(raw, entry.doc.Name)
		}
		documents[entry.doc.Name] = entry
		found := registry.Run(entry.doc, rules.Context{SourceArtifactID: entry.source.ArtifactID, DOMArtifactID: entry.dom.ArtifactID})
		logger.Debug("document checked", "document", entry.doc.Name, "nodes", len(entry.doc.Nodes), "findings", len(found))
		raw = append(raw, found...)
	}

	findings := findingid.Assign(raw)
	triads := make([]schemaevidence.Triad, len(findings))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(parallelism)
	for index := range findings {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			triad, err := emit(builder, session, documents, findings[index])
			if err != nil {
				return err
			}
			triads[index] = triad
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Result{}, err
	}

	for index := range findings {
		ref := provenance.EvidenceRef(findings[index].FindingID, triads[index])
		findings[index].EvidenceRef = &ref
	}
	bundle, err := builder.BuildBundle(session.Refs(), triads, opts.Summary)
	if err != nil {
		return Result{}, err
	}
	logger.Info("scan complete", "documents", len(inputs), "findings", len(findings), "bundle_id", bundle.BundleID)
	return Result{Findings: findings, Bundle: bundle, Artifacts: session.Artifacts()}, nil
}

func capture(session *artifact.Session, input Input, names map[string]string) (captured, error) {
	documentRef := strings.TrimSpace(input.Name)
	if documentRef == "" {
		return captured{}, coreerrors.Validation("", "scan input has no name")
	}
	name := names[documentRef]
	kind, mediaType, err := inputKind(input)
	if err != nil {
		return captured{}, err
	}
	source, err := session.Capture(artifact.Ref(kind, name), mediaType, documentRef, input.Content, []string{"source"})
	if err != nil {
		return captured{}, err
	}
	var doc rules.Document
	if kind == KindNodes {
		doc, err = rules.ParseNodes(documentRef, input.Content)
	} else {
		doc, err = rules.ParseHTML(documentRef, bytes.NewReader(input.Content))
	}
	if err != nil {
		return captured{}, err
	}
	dom, err := session.CaptureStructured(artifact.Ref(KindDOM, name), documentRef, domContent{Nodes: doc.Nodes}, []string{"dom"})
	if err != nil {
		return captured{}, err
	}
	return captured{doc: doc, source: source, dom: dom}, nil
}

func emit(builder *provenance.Builder, session *artifact.Session, documents map[string]captured, finding schemaevidence.Finding) (schemaevidence.Triad, error) {
	entry, ok := documents[finding.Location.File]
	if !ok {
		return schemaevidence.Triad{}, coreerrors.Internal(fmt.Errorf("finding %s references unknown document %s", finding.FindingID, finding.Location.File))
	}
	evidenceAnchor, ok := anchor.First(finding.Evidence)
	if !ok {
		evidenceAnchor = schemaevidence.EvidenceAnchor{ArtifactID: entry.dom.ArtifactID, JSONPointer: finding.Location.JSONPointer}
	}
	source, err := session.Lookup(evidenceAnchor.ArtifactID)
	if err != nil {
		return schemaevidence.Triad{}, err
	}
	node, ok := entry.doc.NodeAt(evidenceAnchor.JSONPointer)
	if !ok {
		return schemaevidence.Triad{}, coreerrors.Validation("", "finding %s anchors to %s, outside %s", finding.FindingID, evidenceAnchor.JSONPointer, entry.doc.Name)
	}
	return builder.EmitFinding(finding, source, schemaevidence.ExtractionContent{
		DocumentRef: entry.doc.Name,
		Pointer:     evidenceAnchor.JSONPointer,
		Evidence:    node,
	})
}
