package anchor

import (
	"sort"
	"strconv"
	"strings"

	"github.com/davidahmann/evidencekit/core/artifact"
	coreerrors "github.com/davidahmann/evidencekit/core/errors"
	schemaevidence "github.com/davidahmann/evidencekit/core/schema/v1/evidence"
)

const (
	NodesRoot = "/nodes"
	DOMRoot   = "/dom"
)

var (
	segmentEscaper   = strings.NewReplacer("~", "~0", "/", "~1")
	segmentUnescaper = strings.NewReplacer("~1", "/", "~0", "~")
)

// Options lists the anchor fields. Zero values mean "not supplied" and are omitted.
type Options struct {
	ArtifactID  string
	JSONPointer string
	Selector    string
	LineSpan    *schemaevidence.LineSpan
	Snippet     string
}

// Create validates options and returns the anchor they describe.
func Create(options Options) (schemaevidence.EvidenceAnchor, error) {
	artifactID := strings.TrimSpace(options.ArtifactID)
	if _, _, err := artifact.ParseRef(artifactID); err != nil {
		return schemaevidence.EvidenceAnchor{}, err
	}
	created := schemaevidence.EvidenceAnchor{
		ArtifactID: artifactID,
		Selector:   strings.TrimSpace(options.Selector),
		Snippet:    options.Snippet,
	}
	if options.JSONPointer != "" {
		if _, err := ParsePointer(options.JSONPointer); err != nil {
			return schemaevidence.EvidenceAnchor{}, err
		}
		created.JSONPointer = options.JSONPointer
	}
	if options.LineSpan != nil {
		span := *options.LineSpan
		if span.Start < 1 || span.End < span.Start {
			return schemaevidence.EvidenceAnchor{}, coreerrors.Validation("", "line_span %d-%d is invalid", span.Start, span.End)
		}
		created.LineSpan = &span
	}
	return created, nil
}

// NodePointer addresses an element of a flattened, document-order node array.
func NodePointer(index int) string {
	return NodesRoot + "/" + strconv.Itoa(index)
}

// DOMPointer addresses a nested path, escaping each segment per RFC 6901.
func DOMPointer(segments ...string) string {
	var builder strings.Builder
	builder.WriteString(DOMRoot)
	for _, segment := range segments {
		builder.WriteByte('/')
		builder.WriteString(EscapeSegment(segment))
	}
	return builder.String()
}

// EscapeSegment applies RFC 6901 escaping to one pointer segment.
func EscapeSegment(segment string) string {
	return segmentEscaper.Replace(segment)
}

// UnescapeSegment reverses EscapeSegment.
func UnescapeSegment(segment string) string {
	return segmentUnescaper.Replace(segment)
}

// ParsePointer splits an RFC 6901 pointer into unescaped reference tokens.
func ParsePointer(pointer string) ([]string, error) {
	if pointer == "" {
		return []string{}, nil
	}
	if !strings.HasPrefix(pointer, "/") {
		return nil, coreerrors.Validation("", "json pointer %q must start with /", pointer)
	}
	raw := strings.Split(pointer[1:], "/")
	tokens := make([]string, 0, len(raw))
	for _, token := range raw {
		for index := 0; index < len(token); index++ {
			if token[index] != '~' {
				continue
			}
			if index+1 >= len(token) || (token[index+1] != '0' && token[index+1] != '1') {
				return nil, coreerrors.Validation("", "json pointer %q has an invalid ~ escape", pointer)
			}
		}
		tokens = append(tokens, UnescapeSegment(token))
	}
	return tokens, nil
}

// NodeIndex returns the node index of a /nodes/<i> pointer.
func NodeIndex(pointer string) (int, bool) {
	tokens, err := ParsePointer(pointer)
	if err != nil || len(tokens) < 2 || "/"+tokens[0] != NodesRoot {
		return 0, false
	}
	index, err := strconv.Atoi(tokens[1])
	if err != nil || index < 0 {
		return 0, false
	}
	return index, true
}

// First picks the anchor earliest in document order. Node anchors order by index;
// anchors without a node index follow them in input order.
func First(anchors []schemaevidence.EvidenceAnchor) (schemaevidence.EvidenceAnchor, bool) {
	if len(anchors) == 0 {
		return schemaevidence.EvidenceAnchor{}, false
	}
	ordered := append([]schemaevidence.EvidenceAnchor(nil), anchors...)
	sort.SliceStable(ordered, func(i, j int) bool {
		left, leftOK := NodeIndex(ordered[i].JSONPointer)
		right, rightOK := NodeIndex(ordered[j].JSONPointer)
		if leftOK != rightOK {
			return leftOK
		}
		return leftOK && left < right
	})
	return ordered[0], true
}
