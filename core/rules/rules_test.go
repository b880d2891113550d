package rules

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	schemaevidence "github.com/davidahmann/evidencekit/core/schema/v1/evidence"
)

var testContext = Context{SourceArtifactID: "artifact:html:page", DOMArtifactID: "artifact:dom:page"}

func TestImgAltAnchorsToNode(t *testing.T) {
	doc := Document{Name: "page.html", Nodes: []Node{
		{TagName: "html", Attrs: map[string]string{"lang": "en"}},
		{TagName: "img", Attrs: map[string]string{"src": "x.png"}},
		{TagName: "img", Attrs: map[string]string{"src": "y.png", "alt": "logo"}},
		{TagName: "img", Attrs: map[string]string{"src": "z.png", "alt": ""}},
	}}
	findings := ImgAlt{}.Check(doc, testContext)
	if len(findings) != 2 {
		t.Fatalf("expected 2 findings, got %d", len(findings))
	}
	want := schemaevidence.Finding{
		RuleID:   "img-alt",
		Severity: SeveritySerious,
		Message:  "img element has no alt text",
		Location: schemaevidence.Location{File: "page.html", JSONPointer: "/nodes/1"},
		Evidence: []schemaevidence.EvidenceAnchor{{ArtifactID: "artifact:dom:page", JSONPointer: "/nodes/1"}},
	}
	if diff := cmp.Diff(want, findings[0]); diff != "" {
		t.Fatalf("first finding (-want +got):\n%s", diff)
	}
	if findings[1].Location.JSONPointer != "/nodes/3" {
		t.Fatalf("empty alt must be reported: %+v", findings[1])
	}
}

func TestRegistryRunsInIDOrder(t *testing.T) {
	registry, err := NewRegistry(ImgAlt{}, HTMLLang{})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	reversed, err := NewRegistry(HTMLLang{}, ImgAlt{})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	doc := Document{Name: "page.html", Nodes: []Node{{TagName: "html"}, {TagName: "img"}}}
	first := registry.Run(doc, testContext)
	second := reversed.Run(doc, testContext)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("registration order must not matter:\n%s", diff)
	}
	if diff := cmp.Diff([]string{"html-lang", "img-alt"}, registry.IDs()); diff != "" {
		t.Fatalf("ids (-want +got):\n%s", diff)
	}
	if first[0].RuleID != "html-lang" || first[1].RuleID != "img-alt" {
		t.Fatalf("unexpected order: %s, %s", first[0].RuleID, first[1].RuleID)
	}
	if err := registry.Register(ImgAlt{}); err == nil {
		t.Fatalf("expected duplicate rule to fail")
	}
	if err := registry.Register(nil); err == nil {
		t.Fatalf("expected nil rule to fail")
	}
}

func TestParseHTMLFlattensElements(t *testing.T) {
	doc, err := ParseHTML("page.html", strings.NewReader(`<!doctype html><html><body><p>Hello <b>world</b></p><img src="x.png"></body></html>`))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	var tags []string
	for _, node := range doc.Nodes {
		tags = append(tags, node.TagName)
	}
	if diff := cmp.Diff([]string{"html", "head", "body", "p", "b", "img"}, tags); diff != "" {
		t.Fatalf("tags (-want +got):\n%s", diff)
	}
	if doc.Nodes[3].Text != "Hello" {
		t.Fatalf("unexpected text: %q", doc.Nodes[3].Text)
	}
	img, ok := doc.NodeAt("/nodes/5")
	if !ok || img.Attrs["src"] != "x.png" {
		t.Fatalf("unexpected node at /nodes/5: %+v", img)
	}
	if _, ok := doc.NodeAt("/nodes/99"); ok {
		t.Fatalf("out of range pointer must not resolve")
	}
}

func TestParseNodes(t *testing.T) {
	wrapped, err := ParseNodes("page.html", []byte(`{"nodes":[{"tagName":"html"},{"tagName":"img","attrs":{"src":"x.png"}}]}`))
	if err != nil {
		t.Fatalf("parse wrapped: %v", err)
	}
	bare, err := ParseNodes("page.html", []byte(`[{"tagName":"html"},{"tagName":"img","attrs":{"src":"x.png"}}]`))
	if err != nil {
		t.Fatalf("parse bare: %v", err)
	}
	if diff := cmp.Diff(wrapped, bare); diff != "" {
		t.Fatalf("both forms must parse the same:\n%s", diff)
	}
	for _, payload := range []string{"", "{", `[{"attrs":{}}]`} {
		if _, err := ParseNodes("bad.json", []byte(payload)); err == nil {
			t.Fatalf("expected error for %q", payload)
		}
	}
}
