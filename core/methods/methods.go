// Package methods holds the append-only catalog of provenance method IDs.
//
// A method ID names one contractually defined processing step. Once an entry is
// stable its semantics are frozen; a changed semantic needs a new ID.
package methods

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	coreerrors "github.com/davidahmann/evidencekit/core/errors"
	"github.com/davidahmann/evidencekit/core/schema/validate"
)

const CatalogSchema = "prov.methods@v0.1"

const (
	ArtifactCapture = "adapter.capture.artifact"
	EnvelopeWrap    = "adapter.wrap.envelope_v0_1"
	EvidenceExtract = "engine.extract.evidence.json_pointer"
	IntegrityDigest = "integrity.digest.sha256"
	IntegrityVerify = "integrity.verify.digest"
	SessionSummary  = "lineage.session.summary"
)

type Status string

const (
	StatusStable       Status = "stable"
	StatusExperimental Status = "experimental"
	StatusDeprecated   Status = "deprecated"
)

var idPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)*(_v[0-9]+_[0-9]+)?$`)

var (
	stableNamespaces   = map[string]bool{"adapter": true, "engine": true, "integrity": true, "lineage": true}
	reservedNamespaces = map[string]bool{"policy": true, "attestation": true, "execution": true, "audit": true}
)

//go:embed catalog.json
var embeddedCatalog []byte

type Method struct {
	ID      string `json:"id"`
	Status  Status `json:"status"`
	Summary string `json:"summary"`
	Since   string `json:"since,omitempty"`
}

type catalogDocument struct {
	Schema  string   `json:"schema"`
	Methods []Method `json:"methods"`
}

// Catalog is immutable; Append returns a new catalog.
type Catalog struct {
	methods map[string]Method
}

var loadDefault = sync.OnceValues(func() (*Catalog, error) {
	return Parse(embeddedCatalog)
})

// Default returns the catalog shipped with the module.
func Default() (*Catalog, error) {
	return loadDefault()
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	if err := validate.ValidateJSON(validate.SchemaMethodsCatalog, data); err != nil {
		return nil, err
	}
	var document catalogDocument
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&document); err != nil {
		return nil, coreerrors.Validation("", "parse method catalog: %v", err)
	}
	catalog := &Catalog{methods: make(map[string]Method, len(document.Methods))}
	for _, method := range document.Methods {
		if err := checkEntry(method); err != nil {
			return nil, err
		}
		if _, exists := catalog.methods[method.ID]; exists {
			return nil, coreerrors.Validation("", "method catalog lists %s twice", method.ID)
		}
		catalog.methods[method.ID] = method
	}
	return catalog, nil
}

// ValidateID checks a method ID against the grammar.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return coreerrors.Validation("", "method id %q does not match grammar", id)
	}
	return nil
}

// Namespace returns the segment of id before the first dot.
func Namespace(id string) string {
	namespace, _, _ := strings.Cut(id, ".")
	return namespace
}

// CheckNamespace rejects reserved and unknown namespaces.
func CheckNamespace(id string) error {
	namespace := Namespace(id)
	if reservedNamespaces[namespace] {
		return coreerrors.Validation("", "method id %q uses reserved namespace %q", id, namespace)
	}
	if !stableNamespaces[namespace] {
		return coreerrors.Validation("", "method id %q uses unknown namespace %q", id, namespace)
	}
	return nil
}

func checkEntry(method Method) error {
	if err := ValidateID(method.ID); err != nil {
		return err
	}
	if err := CheckNamespace(method.ID); err != nil {
		return err
	}
	switch method.Status {
	case StatusStable, StatusExperimental, StatusDeprecated:
	default:
		return coreerrors.Validation("", "method %s has unknown status %q", method.ID, method.Status)
	}
	if strings.TrimSpace(method.Summary) == "" {
		return coreerrors.Validation("", "method %s needs a summary", method.ID)
	}
	return nil
}

func (c *Catalog) Lookup(id string) (Method, bool) {
	method, ok := c.methods[id]
	return method, ok
}

// Require reports whether id may be emitted on a record: well formed, in a stable
// namespace, registered and not deprecated.
func (c *Catalog) Require(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := CheckNamespace(id); err != nil {
		return err
	}
	method, ok := c.methods[id]
	if !ok {
		return coreerrors.Validation("", "method id %q is not registered in the catalog", id)
	}
	if method.Status == StatusDeprecated {
		return coreerrors.Validation("", "method id %q is deprecated", id)
	}
	return nil
}

// Append adds or promotes an entry. Stable entries are frozen: the only permitted
// change is deprecation under the same summary. Deprecated entries cannot be revived.
func (c *Catalog) Append(method Method) (*Catalog, error) {
	if err := checkEntry(method); err != nil {
		return nil, err
	}
	if existing, ok := c.methods[method.ID]; ok {
		if existing == method {
			return c, nil
		}
		switch existing.Status {
		case StatusStable:
			if method.Status != StatusDeprecated || method.Summary != existing.Summary {
				return nil, coreerrors.Validation("", "method %s is stable; its contract is frozen, register a new id", method.ID)
			}
		case StatusDeprecated:
			return nil, coreerrors.Validation("", "method %s is deprecated and cannot be redefined", method.ID)
		}
	}
	next := &Catalog{methods: make(map[string]Method, len(c.methods)+1)}
	for id, existing := range c.methods {
		next.methods[id] = existing
	}
	next.methods[method.ID] = method
	return next, nil
}

// Methods returns the catalog entries sorted by ID.
func (c *Catalog) Methods() []Method {
	out := make([]Method, 0, len(c.methods))
	for _, method := range c.methods {
		out = append(out, method)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Catalog) MarshalJSON() ([]byte, error) {
	return json.Marshal(catalogDocument{Schema: CatalogSchema, Methods: c.Methods()})
}

type IssueLevel string

const (
	IssueError   IssueLevel = "error"
	IssueWarning IssueLevel = "warning"
	IssueInfo    IssueLevel = "info"
)

type Issue struct {
	Level   IssueLevel `json:"level"`
	Message string     `json:"message"`
}

// ValidateRecordMethods checks the method IDs claimed by a record. Strict mode also
// warns about IDs the catalog does not know.
func (c *Catalog) ValidateRecordMethods(claimed []string, strict bool) []Issue {
	if len(claimed) == 0 {
		return []Issue{{Level: IssueWarning, Message: "provenance record has no methods claimed"}}
	}
	var issues []Issue
	for _, id := range claimed {
		if err := ValidateID(id); err != nil {
			issues = append(issues, Issue{Level: IssueError, Message: err.Error()})
			continue
		}
		if err := CheckNamespace(id); err != nil {
			issues = append(issues, Issue{Level: IssueError, Message: err.Error()})
		}
		if strict {
			if _, ok := c.methods[id]; !ok {
				issues = append(issues, Issue{Level: IssueWarning, Message: fmt.Sprintf("method id %q is not in the catalog", id)})
			}
		}
	}
	return issues
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, issue := range issues {
		if issue.Level == IssueError {
			return true
		}
	}
	return false
}
