// Package doctree defines the intermediate document tree shared by both
// conversion directions: the RTF parser and the Markdown parser both
// produce it, and the RTF and Markdown serializers both consume it.
package doctree

import "fmt"

// Kind tags the variant a Node holds. Node is a closed tagged union —
// callers switch on Kind rather than type-asserting blindly.
type Kind int

const (
	KindText Kind = iota
	KindParagraph
	KindBold
	KindItalic
	KindUnderline
	KindHeading
	KindListItem
	KindTable
	KindLineBreak
	KindPageBreak
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "Text"
	case KindParagraph:
		return "Paragraph"
	case KindBold:
		return "Bold"
	case KindItalic:
		return "Italic"
	case KindUnderline:
		return "Underline"
	case KindHeading:
		return "Heading"
	case KindListItem:
		return "ListItem"
	case KindTable:
		return "Table"
	case KindLineBreak:
		return "LineBreak"
	case KindPageBreak:
		return "PageBreak"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Node is one element of the document tree. Only the fields relevant to
// Kind are populated; the zero value of the others is ignored by every
// consumer. This mirrors a tagged variant without needing a Go sum type.
type Node struct {
	Kind Kind

	// KindText
	Text string

	// KindParagraph, KindBold, KindItalic, KindUnderline, KindHeading, KindListItem
	Children []Node

	// KindHeading
	Level int

	// KindListItem: indentation depth, 0-origin
	ListLevel int

	// KindTable
	Rows []Row
}

// Row is one row of a Table node.
type Row struct {
	Cells []Cell
}

// Cell is one cell of a Row.
type Cell struct {
	Content []Node
}

// Text returns a leaf text node.
func Text(s string) Node { return Node{Kind: KindText, Text: s} }

// Paragraph returns a Paragraph node wrapping children.
func Paragraph(children ...Node) Node { return Node{Kind: KindParagraph, Children: children} }

// Bold returns a Bold node wrapping children.
func Bold(children ...Node) Node { return Node{Kind: KindBold, Children: children} }

// Italic returns an Italic node wrapping children.
func Italic(children ...Node) Node { return Node{Kind: KindItalic, Children: children} }

// Underline returns an Underline node wrapping children.
func Underline(children ...Node) Node { return Node{Kind: KindUnderline, Children: children} }

// Heading returns a Heading node. Level is stored as given, not
// clamped; core/doctree.Validate rejects a level outside [1,6].
func Heading(level int, children ...Node) Node {
	return Node{Kind: KindHeading, Level: level, Children: children}
}

// ListItem returns a ListItem node at the given indentation level.
func ListItem(level int, children ...Node) Node {
	return Node{Kind: KindListItem, ListLevel: level, Children: children}
}

// Table returns a Table node.
func Table(rows ...Row) Node { return Node{Kind: KindTable, Rows: rows} }

// LineBreak returns a LineBreak leaf node.
func LineBreak() Node { return Node{Kind: KindLineBreak} }

// PageBreak returns a PageBreak leaf node.
func PageBreak() Node { return Node{Kind: KindPageBreak} }

// Walk visits n and every descendant, depth-first, pre-order. fn returns
// false to stop descending into the current node's children (it is
// still visited itself).
func Walk(n Node, fn func(Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		Walk(c, fn)
	}
	for _, row := range n.Rows {
		for _, cell := range row.Cells {
			for _, c := range cell.Content {
				Walk(c, fn)
			}
		}
	}
}

// TextContent concatenates every KindText leaf under n, depth-first.
func TextContent(n Node) string {
	var out []byte
	Walk(n, func(cur Node) bool {
		if cur.Kind == KindText {
			out = append(out, cur.Text...)
		}
		return true
	})
	return string(out)
}
