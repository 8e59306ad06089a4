// Package layoutfile parses the declarative, human-editable
// session-layout documents consumed by CreateLayout: hjson.Unmarshal
// into a map, re-marshal to JSON, then json.Unmarshal into a typed
// struct — giving the document hjson's comments/trailing-commas/
// unquoted-keys ergonomics while keeping strict Go struct decoding for
// the fields that matter.
package layoutfile

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ccmux/ccmux/internal/graph"
	"github.com/ccmux/ccmux/internal/wire"
	"github.com/hjson/hjson-go/v4"
)

// Document is one layout file: a named window and the split tree to create
// inside it.
type Document struct {
	Window string `json:"window,omitempty"`
	Root   Node   `json:"root"`
}

// Node is one node of the declarative split tree. A leaf has an empty
// Direction and optional Command/Cwd; a split has a Direction and exactly
// two Children, whose own Command/Cwd are ignored.
type Node struct {
	Direction string `json:"direction,omitempty"`
	Command   string `json:"command,omitempty"`
	Cwd       string `json:"cwd,omitempty"`
	Children  []Node `json:"children,omitempty"`
}

// Parse decodes an hjson layout document from raw bytes and validates its
// shape.
func Parse(raw []byte) (Document, error) {
	var asMap map[string]any
	if err := hjson.Unmarshal(raw, &asMap); err != nil {
		return Document{}, fmt.Errorf("layoutfile: parse hjson: %w", err)
	}
	asJSON, err := json.Marshal(asMap)
	if err != nil {
		return Document{}, fmt.Errorf("layoutfile: convert to json: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(asJSON, &doc); err != nil {
		return Document{}, fmt.Errorf("layoutfile: decode document: %w", err)
	}
	if err := validate(doc.Root); err != nil {
		return Document{}, fmt.Errorf("layoutfile: %w", err)
	}
	return doc, nil
}

// Load reads and parses path.
func Load(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("layoutfile: read %s: %w", path, err)
	}
	return Parse(raw)
}

func validate(n Node) error {
	switch {
	case n.Direction == "":
		if len(n.Children) != 0 {
			return fmt.Errorf("leaf node must not declare children")
		}
	case n.Direction == string(graph.SplitHorizontal) || n.Direction == string(graph.SplitVertical):
		if len(n.Children) != 2 {
			return fmt.Errorf("split node %q must declare exactly 2 children, got %d", n.Direction, len(n.Children))
		}
		for _, child := range n.Children {
			if err := validate(child); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown split direction %q", n.Direction)
	}
	return nil
}

// ToLayoutSpec converts a parsed Document into the wire.CreateLayoutReq
// shape a client sends to the daemon.
func (d Document) ToLayoutSpec() wire.CreateLayoutReq {
	return wire.CreateLayoutReq{
		WindowName: d.Window,
		Root:       nodeToSpec(d.Root),
	}
}

func nodeToSpec(n Node) wire.LayoutSpec {
	spec := wire.LayoutSpec{
		Direction: n.Direction,
		Command:   n.Command,
		Cwd:       n.Cwd,
	}
	for _, child := range n.Children {
		spec.Children = append(spec.Children, nodeToSpec(child))
	}
	return spec
}
