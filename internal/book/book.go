// Package book decodes the render context mdBook passes to alternative
// backends and exposes the chapters as an ordered tree of nodes.
package book

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Node is one chapter of the book. Children are in book order.
type Node struct {
	Title    string
	Content  string
	Children []*Node

	// Depth is 0 for top-level chapters.
	Depth int

	// SourcePath is the chapter's path relative to the book source directory.
	// Empty for draft chapters.
	SourcePath string
}

// Book is the local tree for one sync pass. The root is implicit: top-level
// chapters are synced directly under the remote root page.
type Book struct {
	Chapters []*Node
}

// Walk visits every chapter in pre-order, stopping at the first error.
func (b *Book) Walk(fn func(n *Node, ancestors []*Node) error) error {
	var walk func(nodes []*Node, ancestors []*Node) error
	walk = func(nodes []*Node, ancestors []*Node) error {
		for _, n := range nodes {
			if err := fn(n, ancestors); err != nil {
				return err
			}
			if err := walk(n.Children, append(ancestors[:len(ancestors):len(ancestors)], n)); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(b.Chapters, nil)
}

// Count returns the number of chapters in the tree.
func (b *Book) Count() int {
	count := 0
	_ = b.Walk(func(*Node, []*Node) error {
		count++
		return nil
	})
	return count
}

// RenderContext is the subset of mdBook's render context this backend reads.
type RenderContext struct {
	Version     string         `json:"version"`
	Root        string         `json:"root"`
	Destination string         `json:"destination"`
	Book        rawBook        `json:"book"`
	Config      map[string]any `json:"config"`
}

type rawBook struct {
	Sections []item `json:"sections"`
}

type rawChapter struct {
	Name       string  `json:"name"`
	Content    string  `json:"content"`
	SubItems   []item  `json:"sub_items"`
	Path       *string `json:"path"`
	SourcePath *string `json:"source_path"`
}

// item is mdBook's BookItem: {"Chapter": {...}}, "Separator" or
// {"PartTitle": "..."}. Only chapters become pages.
type item struct {
	Chapter *rawChapter
}

func (i *item) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		// "Separator"
		return nil
	}

	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("unrecognized book item: %w", err)
	}
	raw, ok := tagged["Chapter"]
	if !ok {
		// PartTitle and any future item kinds carry no page content.
		return nil
	}
	var ch rawChapter
	if err := json.Unmarshal(raw, &ch); err != nil {
		return fmt.Errorf("failed to decode chapter: %w", err)
	}
	i.Chapter = &ch
	return nil
}

// ReadRenderContext decodes a render context from r.
func ReadRenderContext(r io.Reader) (*RenderContext, error) {
	var rc RenderContext
	dec := json.NewDecoder(r)
	if err := dec.Decode(&rc); err != nil {
		return nil, fmt.Errorf("failed to decode render context: %w", err)
	}
	return &rc, nil
}

// Tree builds the chapter tree from the render context.
func (rc *RenderContext) Tree() *Book {
	return &Book{Chapters: convert(rc.Book.Sections, 0)}
}

// OutputConfig returns the [output.<name>] table from the book configuration,
// or nil if absent.
func (rc *RenderContext) OutputConfig(name string) map[string]any {
	output, ok := rc.Config["output"].(map[string]any)
	if !ok {
		return nil
	}
	table, ok := output[name].(map[string]any)
	if !ok {
		return nil
	}
	return table
}

func convert(items []item, depth int) []*Node {
	var nodes []*Node
	for _, it := range items {
		if it.Chapter == nil {
			continue
		}
		n := &Node{
			Title:    strings.TrimSpace(it.Chapter.Name),
			Content:  it.Chapter.Content,
			Depth:    depth,
			Children: convert(it.Chapter.SubItems, depth+1),
		}
		if it.Chapter.Path != nil {
			n.SourcePath = *it.Chapter.Path
		}
		nodes = append(nodes, n)
	}
	return nodes
}
