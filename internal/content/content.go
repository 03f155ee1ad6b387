// Package content wraps chapter markdown in the storage-format container that
// Confluence's markdown macro renders.
//
// The chapter text is placed in a CDATA section. Any "]]>" in the text is
// split across two CDATA sections so it cannot terminate the container, and
// characters XML 1.0 forbids are dropped. The output is a pure function of the
// page identity, the text and the emoji setting; the planner compares bodies
// byte for byte.
package content

import (
	"strings"
	"unicode/utf8"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"github.com/rivo/uniseg"
	"github.com/sirupsen/logrus"
)

const (
	macroName = "markdown"

	cdataOpen  = "<![CDATA["
	cdataClose = "]]>"

	// cdataSplit closes the current section after "]]" and reopens one
	// starting with ">".
	cdataSplit = "]]]]><![CDATA[>"

	// Replacement for graphemes older servers cannot store.
	unsupportedGrapheme = "⸮"
)

// EmojiMinVersion is the first Confluence release that stores characters
// outside the Basic Multilingual Plane.
var EmojiMinVersion = semver.MustParse("7.3.0")

// macroNamespace seeds the per-page macro ids.
var macroNamespace = uuid.MustParse("249327eb-2c99-42ca-a7a7-487e1c0c7e04")

// Packager produces page bodies.
type Packager struct {
	supportsEmoji bool
	log           *logrus.Entry
}

// NewPackager creates a Packager for a server of the given version. An empty
// or unparsable version is treated as a current release.
func NewPackager(serverVersion string, log *logrus.Entry) *Packager {
	return &Packager{
		supportsEmoji: SupportsEmoji(serverVersion),
		log:           log,
	}
}

// SupportsEmoji reports whether a server version can store 4-byte characters.
func SupportsEmoji(serverVersion string) bool {
	if serverVersion == "" {
		return true
	}
	v, err := semver.NewVersion(serverVersion)
	if err != nil {
		return true
	}
	return !v.LessThan(EmojiMinVersion)
}

// MacroID returns the stable macro id for a page.
func MacroID(identity string) string {
	return uuid.NewSHA1(macroNamespace, []byte(identity)).String()
}

// Package wraps markdown for the page with the given identity.
func (p *Packager) Package(identity, markdown string) string {
	text := sanitize(markdown)
	if !p.supportsEmoji {
		text = p.downgradeGraphemes(identity, text)
	}

	var b strings.Builder
	b.Grow(len(text) + 256)
	b.WriteString(`<ac:structured-macro ac:name="`)
	b.WriteString(macroName)
	b.WriteString(`" ac:schema-version="1" ac:macro-id="`)
	b.WriteString(MacroID(identity))
	b.WriteString(`"><ac:plain-text-body>`)
	b.WriteString(CDATA(text))
	b.WriteString(`</ac:plain-text-body></ac:structured-macro>`)
	return b.String()
}

// CDATA wraps s in a CDATA section, splitting any embedded terminator.
func CDATA(s string) string {
	return cdataOpen + strings.ReplaceAll(s, cdataClose, cdataSplit) + cdataClose
}

// sanitize drops invalid UTF-8 and characters outside the XML 1.0 Char
// production.
func sanitize(s string) string {
	clean := true
	for _, r := range s {
		if !isXMLChar(r) {
			clean = false
			break
		}
	}
	if clean && utf8.ValidString(s) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !(r == utf8.RuneError && size == 1) && isXMLChar(r) {
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}

func isXMLChar(r rune) bool {
	switch {
	case r == '\t' || r == '\n' || r == '\r':
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= 0x10FFFF:
		return true
	}
	return false
}

func (p *Packager) downgradeGraphemes(identity, s string) string {
	var b strings.Builder
	b.Grow(len(s))
	replaced := 0
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		cluster := g.Str()
		if len(cluster) >= 4 {
			b.WriteString(unsupportedGrapheme)
			replaced++
			continue
		}
		b.WriteString(cluster)
	}
	if replaced > 0 && p.log != nil {
		p.log.WithFields(logrus.Fields{
			"identity": identity,
			"count":    replaced,
		}).Warn("replaced characters the server cannot store")
	}
	return b.String()
}
