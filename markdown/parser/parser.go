// Package parser builds a core/doctree.Document from CommonMark source
// (plus the GFM table/strikethrough extensions spec §6 asks for),
// using github.com/russross/blackfriday/v2 as the underlying engine —
// see SPEC_FULL.md's DOMAIN STACK section for why blackfriday was
// picked over hand-rolling a CommonMark parser.
//
// blackfriday's Node.Walk delivers enter/exit callbacks per node, the
// same role spec §4.5's "event-driven surface" describes; this package
// turns that callback stream into the shared document tree by keeping
// an explicit stack of in-progress containers (formatting spans,
// paragraphs, headings, list items) and only materializing a Node once
// its container's matching exit event arrives. Tables are tracked in
// flat row and cell buffers beside the stack.
package parser

import (
	"strings"

	bf "github.com/russross/blackfriday/v2"

	"github.com/legacybridge/rtfmd/core/doctree"
)

const extensions = bf.CommonExtensions

// scope is one in-progress container on the builder's stack: a
// Paragraph, Heading, Bold/Italic span, or ListItem. Children
// accumulate here until the matching exit event pops the scope and
// materializes it as a doctree.Node into its parent.
type scope struct {
	kind     doctree.Kind
	level    int // Heading level or ListItem indentation level
	children []doctree.Node
}

type builder struct {
	stack []*scope
	text  strings.Builder

	top []doctree.Node // document root's accumulated top-level nodes

	listDepth int

	// table state; CommonMark tables never nest, so flat fields suffice.
	inTable   bool
	rows      []doctree.Row
	rowCells  []doctree.Cell
	cellNodes []doctree.Node
	inCell    bool
}

// Parse converts Markdown source into a Document. It never returns an
// error for syntactically-unusual Markdown — CommonMark has no concept
// of a parse failure — but callers should still run it through
// validate/prevalidate.PreValidateMarkdown first per spec §4.1.
func Parse(input []byte) *doctree.Document {
	doc := doctree.New()
	b := &builder{}

	root := bf.New(bf.WithExtensions(extensions)).Parse(input)
	root.Walk(func(n *bf.Node, entering bool) bf.WalkStatus {
		return b.visit(n, entering)
	})
	b.flushText()
	doc.Content = b.top
	return doc
}

func (b *builder) push(kind doctree.Kind, level int) {
	b.flushText()
	b.stack = append(b.stack, &scope{kind: kind, level: level})
}

func (b *builder) pop() *scope {
	b.flushText()
	n := len(b.stack)
	s := b.stack[n-1]
	b.stack = b.stack[:n-1]
	return s
}

// appendNode adds a fully-built node to whatever container is
// currently open: a table cell, the top scope's children, or the
// document root.
func (b *builder) appendNode(n doctree.Node) {
	switch {
	case b.inCell:
		b.cellNodes = append(b.cellNodes, n)
	case len(b.stack) > 0:
		top := b.stack[len(b.stack)-1]
		top.children = append(top.children, n)
	default:
		b.top = append(b.top, n)
	}
}

// flushText materializes any accumulated text as a Text node before a
// boundary event, keeping allocations proportional to boundaries
// rather than characters (spec §4.5).
func (b *builder) flushText() {
	if b.text.Len() == 0 {
		return
	}
	s := b.text.String()
	b.text.Reset()
	b.appendNode(doctree.Text(s))
}

func (b *builder) visit(n *bf.Node, entering bool) bf.WalkStatus {
	switch n.Type {
	case bf.Document:
		return bf.GoToNext

	case bf.Paragraph:
		if entering {
			b.push(doctree.KindParagraph, 0)
		} else {
			s := b.pop()
			b.appendNode(doctree.Node{Kind: doctree.KindParagraph, Children: s.children})
		}
		return bf.GoToNext

	case bf.Heading:
		if entering {
			b.push(doctree.KindHeading, n.HeadingData.Level)
		} else {
			s := b.pop()
			level := s.level
			if level < 1 {
				level = 1
			} else if level > 6 {
				level = 6
			}
			b.appendNode(doctree.Heading(level, s.children...))
		}
		return bf.GoToNext

	case bf.Strong:
		if entering {
			b.push(doctree.KindBold, 0)
		} else {
			s := b.pop()
			b.appendNode(doctree.Bold(s.children...))
		}
		return bf.GoToNext

	case bf.Emph:
		if entering {
			b.push(doctree.KindItalic, 0)
		} else {
			s := b.pop()
			b.appendNode(doctree.Italic(s.children...))
		}
		return bf.GoToNext

	case bf.Del:
		// No strikethrough variant exists in the shared document tree;
		// flatten to plain text rather than inventing a new Node kind.
		return bf.GoToNext

	case bf.Text:
		b.text.Write(n.Literal)
		return bf.GoToNext

	case bf.Code:
		b.flushText()
		b.appendNode(doctree.Text(string(n.Literal)))
		return bf.GoToNext

	case bf.CodeBlock:
		b.flushText()
		b.appendNode(doctree.Paragraph(doctree.Text(string(n.Literal))))
		return bf.GoToNext

	case bf.Softbreak:
		b.text.WriteByte(' ')
		return bf.GoToNext

	case bf.Hardbreak:
		b.flushText()
		b.appendNode(doctree.LineBreak())
		return bf.GoToNext

	case bf.HorizontalRule:
		b.flushText()
		b.appendNode(doctree.PageBreak())
		return bf.GoToNext

	case bf.List:
		if entering {
			b.listDepth++
		} else {
			b.listDepth--
		}
		return bf.GoToNext

	case bf.Item:
		if entering {
			level := b.listDepth - 1
			if level < 0 {
				level = 0
			}
			b.push(doctree.KindListItem, level)
		} else {
			s := b.pop()
			stripTaskMarker(&s.children)
			b.appendNode(doctree.ListItem(s.level, s.children...))
		}
		return bf.GoToNext

	case bf.Table:
		if entering {
			b.flushText()
			b.inTable = true
			b.rows = nil
		} else {
			b.appendNode(doctree.Table(b.rows...))
			b.inTable = false
			b.rows = nil
		}
		return bf.GoToNext

	case bf.TableHead, bf.TableBody:
		return bf.GoToNext

	case bf.TableRow:
		if entering {
			b.rowCells = nil
		} else {
			b.rows = append(b.rows, doctree.Row{Cells: b.rowCells})
			b.rowCells = nil
		}
		return bf.GoToNext

	case bf.TableCell:
		if entering {
			b.inCell = true
			b.cellNodes = nil
		} else {
			b.flushText()
			b.rowCells = append(b.rowCells, doctree.Cell{Content: b.cellNodes})
			b.cellNodes = nil
			b.inCell = false
		}
		return bf.GoToNext

	case bf.HTMLBlock, bf.HTMLSpan:
		// HTML inline and block content is dropped per spec §4.5/§6.
		return bf.SkipChildren

	case bf.Link, bf.Image:
		// Transparent: their visible text still flows through as Text.
		return bf.GoToNext

	default:
		return bf.GoToNext
	}
}

// stripTaskMarker removes a leading "[ ] ", "[x] " or "[X] " GFM
// task-list checkbox from a list item's first text child. blackfriday
// has no first-class task-list node, so the marker otherwise survives
// as literal text; spec §4.5 requires it be dropped.
func stripTaskMarker(children *[]doctree.Node) {
	cs := *children
	if len(cs) == 0 {
		return
	}
	if cs[0].Kind == doctree.KindParagraph {
		stripTaskMarker(&cs[0].Children)
		return
	}
	if cs[0].Kind != doctree.KindText {
		return
	}
	for _, marker := range []string{"[ ] ", "[x] ", "[X] "} {
		if strings.HasPrefix(cs[0].Text, marker) {
			cs[0].Text = cs[0].Text[len(marker):]
			return
		}
	}
}
