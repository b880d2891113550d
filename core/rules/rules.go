// Package rules defines the contract between document checks and the evidence engine.
//
// A rule looks at a flattened document and reports raw findings anchored into the
// document's node array. Rule IDs order execution; registration order never does.
package rules

import (
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/davidahmann/evidencekit/core/anchor"
	coreerrors "github.com/davidahmann/evidencekit/core/errors"
	schemaevidence "github.com/davidahmann/evidencekit/core/schema/v1/evidence"
)

const (
	SeverityInfo     = "info"
	SeverityMinor    = "minor"
	SeverityModerate = "moderate"
	SeveritySerious  = "serious"
	SeverityCritical = "critical"
)

var ruleIDPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// Context carries the artifact IDs a rule anchors its evidence to.
type Context struct {
	SourceArtifactID string
	DOMArtifactID    string
}

type Rule interface {
	ID() string
	Check(doc Document, ctx Context) []schemaevidence.Finding
}

type Registry struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

// NewRegistry registers rules in order and fails on the first invalid one.
func NewRegistry(rules ...Rule) (*Registry, error) {
	registry := &Registry{rules: map[string]Rule{}}
	for _, rule := range rules {
		if err := registry.Register(rule); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// Builtin returns a registry holding every built-in rule.
func Builtin() *Registry {
	registry, err := NewRegistry(ImgAlt{}, HTMLLang{})
	if err != nil {
		panic(fmt.Sprintf("builtin rules: %v", err))
	}
	return registry
}

func (r *Registry) Register(rule Rule) error {
	if rule == nil {
		return coreerrors.Validation("", "rule is nil")
	}
	id := rule.ID()
	if !ruleIDPattern.MatchString(id) {
		return coreerrors.Validation("", "rule id %q must be lowercase kebab-case", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rules[id]; exists {
		return coreerrors.Validation("", "rule %s is already registered", id)
	}
	r.rules[id] = rule
	return nil
}

// IDs returns the registered rule ids sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.rules))
	for id := range r.rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Run applies every rule to doc in rule-ID order.
func (r *Registry) Run(doc Document, ctx Context) []schemaevidence.Finding {
	var findings []schemaevidence.Finding
	for _, id := range r.IDs() {
		r.mu.RLock()
		rule := r.rules[id]
		r.mu.RUnlock()
		findings = append(findings, rule.Check(doc, ctx)...)
	}
	return findings
}

func nodeFinding(doc Document, ctx Context, index int, ruleID, severity, message string) schemaevidence.Finding {
	pointer := anchor.NodePointer(index)
	return schemaevidence.Finding{
		RuleID:   ruleID,
		Severity: severity,
		Message:  message,
		Location: schemaevidence.Location{File: doc.Name, JSONPointer: pointer},
		Evidence: []schemaevidence.EvidenceAnchor{{ArtifactID: ctx.DOMArtifactID, JSONPointer: pointer}},
	}
}

// ImgAlt reports img elements without a non-empty alt attribute.
type ImgAlt struct{}

func (ImgAlt) ID() string { return "img-alt" }

func (rule ImgAlt) Check(doc Document, ctx Context) []schemaevidence.Finding {
	var findings []schemaevidence.Finding
	for index, node := range doc.Nodes {
		if node.TagName != "img" {
			continue
		}
		if alt, ok := node.Attrs["alt"]; ok && alt != "" {
			continue
		}
		findings = append(findings, nodeFinding(doc, ctx, index, rule.ID(), SeveritySerious, "img element has no alt text"))
	}
	return findings
}

// HTMLLang reports html elements without a lang attribute.
type HTMLLang struct{}

func (HTMLLang) ID() string { return "html-lang" }

func (rule HTMLLang) Check(doc Document, ctx Context) []schemaevidence.Finding {
	var findings []schemaevidence.Finding
	for index, node := range doc.Nodes {
		if node.TagName != "html" {
			continue
		}
		if lang := node.Attrs["lang"]; lang != "" {
			continue
		}
		findings = append(findings, nodeFinding(doc, ctx, index, rule.ID(), SeverityModerate, "html element has no lang attribute"))
	}
	return findings
}
