// Package identity derives the remote page title for each chapter.
//
// The title doubles as the key used to match a chapter against a page created
// by a previous run, so it must be a pure function of the configured prefix and
// the chapter's position in the book.
package identity

import (
	"strings"
	"unicode/utf8"

	"github.com/danieljhkim/mdbook-confluence/internal/book"
	"github.com/danieljhkim/mdbook-confluence/internal/syncerr"
)

// MaxTitleLength is the longest page title Confluence accepts.
const MaxTitleLength = 255

// qualifiedSeparator joins ancestor titles when titles are qualified.
const qualifiedSeparator = " / "

// Entry is a chapter with its derived identity.
type Entry struct {
	Node *book.Node

	// Identity is the remote page title.
	Identity string

	// ParentIdentity is empty for top-level chapters.
	ParentIdentity string

	Depth int

	// Position is the index among siblings.
	Position int

	// Path is the chain of chapter titles, used in diagnostics.
	Path string
}

// Mapper computes identities for a book.
type Mapper struct {
	prefix  string
	qualify bool
}

// NewMapper creates a Mapper. When qualify is true, ancestor titles are part
// of each identity, which lets two chapters with the same name live under
// different parents.
func NewMapper(prefix string, qualify bool) *Mapper {
	return &Mapper{prefix: prefix, qualify: qualify}
}

// Identity returns the identity for a chapter given its ancestors (outermost
// first).
func (m *Mapper) Identity(n *book.Node, ancestors []*book.Node) string {
	title := strings.TrimSpace(n.Title)
	if m.qualify && len(ancestors) > 0 {
		parts := make([]string, 0, len(ancestors)+1)
		for _, a := range ancestors {
			parts = append(parts, strings.TrimSpace(a.Title))
		}
		title = strings.Join(append(parts, title), qualifiedSeparator)
	}
	if title == "" {
		return ""
	}
	return m.prefix + title
}

// Map assigns identities to every chapter in pre-order. It fails with a
// ConfigurationError when an identity is empty, too long, or shared by two
// chapters.
func (m *Mapper) Map(b *book.Book) ([]Entry, error) {
	var entries []Entry
	seen := make(map[string]string)

	var walk func(nodes []*book.Node, ancestors []*book.Node, parentIdentity string) error
	walk = func(nodes []*book.Node, ancestors []*book.Node, parentIdentity string) error {
		for i, n := range nodes {
			path := chapterPath(ancestors, n)
			id := m.Identity(n, ancestors)

			if strings.TrimSpace(id) == "" {
				return syncerr.NewConfigurationError("title_prefix", "chapter %q has an empty page title", path)
			}
			if utf8.RuneCountInString(id) > MaxTitleLength {
				return syncerr.NewConfigurationError("", "page title for chapter %q exceeds %d characters", path, MaxTitleLength)
			}
			if other, dup := seen[id]; dup {
				return syncerr.NewConfigurationError("", "chapters %q and %q both map to page title %q", other, path, id)
			}
			seen[id] = path

			entries = append(entries, Entry{
				Node:           n,
				Identity:       id,
				ParentIdentity: parentIdentity,
				Depth:          len(ancestors),
				Position:       i,
				Path:           path,
			})

			next := append(ancestors[:len(ancestors):len(ancestors)], n)
			if err := walk(n.Children, next, id); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(b.Chapters, nil, ""); err != nil {
		return nil, err
	}
	return entries, nil
}

func chapterPath(ancestors []*book.Node, n *book.Node) string {
	var b strings.Builder
	for _, a := range ancestors {
		b.WriteString(a.Title)
		b.WriteString(" > ")
	}
	b.WriteString(n.Title)
	return b.String()
}
