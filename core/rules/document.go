package rules

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/davidahmann/evidencekit/core/anchor"
	coreerrors "github.com/davidahmann/evidencekit/core/errors"
)

// Node is one element of a flattened document, in document order.
type Node struct {
	TagName string            `json:"tagName"`
	Attrs   map[string]string `json:"attrs,omitempty"`
	Text    string            `json:"text,omitempty"`
}

type Document struct {
	Name  string `json:"name"`
	Nodes []Node `json:"nodes"`
}

// NodeAt resolves a /nodes/<i> pointer.
func (d Document) NodeAt(pointer string) (Node, bool) {
	index, ok := anchor.NodeIndex(pointer)
	if !ok || index < 0 || index >= len(d.Nodes) {
		return Node{}, false
	}
	return d.Nodes[index], true
}

// ParseHTML flattens the element tree of an HTML document in pre-order.
func ParseHTML(name string, r io.Reader) (Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return Document{}, coreerrors.Validation("", "parse html %s: %v", name, err)
	}
	doc := Document{Name: name, Nodes: []Node{}}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			doc.Nodes = append(doc.Nodes, elementNode(n))
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)
	return doc, nil
}

func elementNode(n *html.Node) Node {
	node := Node{TagName: strings.ToLower(n.Data)}
	if len(n.Attr) > 0 {
		node.Attrs = make(map[string]string, len(n.Attr))
		for _, attr := range n.Attr {
			node.Attrs[attr.Key] = attr.Val
		}
	}
	var text []string
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.TextNode {
			if trimmed := strings.TrimSpace(child.Data); trimmed != "" {
				text = append(text, trimmed)
			}
		}
	}
	node.Text = strings.Join(text, " ")
	return node
}

// ParseNodes reads an already flattened document: either {"nodes": [...]} or a bare
// node array.
func ParseNodes(name string, data []byte) (Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Document{}, coreerrors.Validation("", "node document %s is empty", name)
	}
	var nodes []Node
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &nodes); err != nil {
			return Document{}, coreerrors.Validation("", "parse node array %s: %v", name, err)
		}
	} else {
		var wrapper struct {
			Nodes []Node `json:"nodes"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return Document{}, coreerrors.Validation("", "parse node document %s: %v", name, err)
		}
		nodes = wrapper.Nodes
	}
	for index, node := range nodes {
		if strings.TrimSpace(node.TagName) == "" {
			return Document{}, coreerrors.Validation("", "node %d of %s has no tagName", index, name)
		}
	}
	if nodes == nil {
		nodes = []Node{}
	}
	return Document{Name: name, Nodes: nodes}, nil
}
