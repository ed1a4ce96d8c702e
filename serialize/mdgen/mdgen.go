// Package mdgen serializes a core/doctree.Document into Markdown, the
// mirror image of serialize/rtfgen, per spec §4.8.
package mdgen

import (
	"strings"

	"github.com/legacybridge/rtfmd/core/doctree"
)

// Options configures one serialization pass.
type Options struct {
	// LegacyMode enables the compatibility path for consumers that
	// expect ASCII-only output (spec §6's legacy_mode pipeline option):
	// any code point outside the printable ASCII range, other than
	// newline and tab, is replaced with '?' rather than emitted
	// literally.
	LegacyMode bool
}

// escapeSet is the literal character set spec §4.8 requires escaping
// in Markdown text runs.
const escapeSet = "*_[]()#+-.!`\\"

// Serialize renders doc as Markdown text.
func Serialize(doc *doctree.Document, opts Options) string {
	var out strings.Builder
	for i, n := range doc.Content {
		if i > 0 {
			out.WriteString("\n\n")
		}
		writeBlock(&out, n, opts)
	}
	return out.String()
}

func writeBlock(out *strings.Builder, n doctree.Node, opts Options) {
	switch n.Kind {
	case doctree.KindHeading:
		level := n.Level
		if level < 1 {
			level = 1
		} else if level > 6 {
			level = 6
		}
		out.WriteString(strings.Repeat("#", level))
		out.WriteByte(' ')
		writeInlineChildren(out, n.Children, opts)

	case doctree.KindListItem:
		out.WriteString(strings.Repeat("  ", n.ListLevel))
		out.WriteString("- ")
		writeInlineChildren(out, n.Children, opts)

	case doctree.KindTable:
		writeTable(out, n, opts)

	case doctree.KindPageBreak:
		out.WriteString("\n---\n")

	case doctree.KindParagraph:
		writeInlineChildren(out, n.Children, opts)

	default:
		writeInline(out, n, opts)
	}
}

func writeInlineChildren(out *strings.Builder, children []doctree.Node, opts Options) {
	for _, c := range children {
		writeInline(out, c, opts)
	}
}

func writeInline(out *strings.Builder, n doctree.Node, opts Options) {
	switch n.Kind {
	case doctree.KindText:
		out.WriteString(escapeText(n.Text, opts.LegacyMode))

	case doctree.KindBold:
		out.WriteString("**")
		writeInlineChildren(out, n.Children, opts)
		out.WriteString("**")

	case doctree.KindItalic:
		out.WriteByte('*')
		writeInlineChildren(out, n.Children, opts)
		out.WriteByte('*')

	case doctree.KindUnderline:
		out.WriteString("<u>")
		writeInlineChildren(out, n.Children, opts)
		out.WriteString("</u>")

	case doctree.KindLineBreak:
		out.WriteString("  \n")

	case doctree.KindPageBreak:
		out.WriteString("\n---\n")

	case doctree.KindParagraph, doctree.KindHeading, doctree.KindListItem, doctree.KindTable:
		// Nested block content inside an inline context (e.g. a
		// recovered document's paragraph-of-paragraphs); render as a
		// block on its own line rather than dropping it.
		out.WriteByte('\n')
		writeBlock(out, n, opts)

	default:
		writeInlineChildren(out, n.Children, opts)
	}
}

func writeTable(out *strings.Builder, n doctree.Node, opts Options) {
	if len(n.Rows) == 0 {
		return
	}
	header := n.Rows[0]
	writeRow(out, header, opts)
	out.WriteByte('\n')
	out.WriteByte('|')
	for range header.Cells {
		out.WriteString(" --- |")
	}
	for _, row := range n.Rows[1:] {
		out.WriteByte('\n')
		writeRow(out, row, opts)
	}
}

func writeRow(out *strings.Builder, row doctree.Row, opts Options) {
	out.WriteByte('|')
	for _, cell := range row.Cells {
		out.WriteByte(' ')
		writeInlineChildren(out, cell.Content, opts)
		out.WriteString(" |")
	}
}

// escapeText backslash-escapes every character in escapeSet, and in
// legacy mode additionally replaces any non-ASCII-printable code
// point except newline and tab with '?'.
func escapeText(s string, legacy bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if legacy && (r > 126 || r < 0x20) && r != '\n' && r != '\t' {
			b.WriteByte('?')
			continue
		}
		if r < 0x80 && strings.IndexByte(escapeSet, byte(r)) >= 0 {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

