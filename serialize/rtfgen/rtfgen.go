// Package rtfgen serializes a core/doctree.Document back into RTF,
// per spec §4.8. It walks the tree depth-first, emitting one of a
// fixed set of templated preambles and escaping every text run so the
// brace and backslash counting invariants spec §8 requires always hold.
package rtfgen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/legacybridge/rtfmd/core/doctree"
)

// Template selects the serializer's preamble and default styling.
type Template int

const (
	TemplateDefault Template = iota
	TemplateMinimal
	TemplateProfessional
	TemplateAcademic
)

// ParseTemplate maps the pipeline configuration's template name (spec
// §6: minimal | professional | academic | default) to a Template.
func ParseTemplate(name string) (Template, error) {
	switch strings.ToLower(name) {
	case "", "default":
		return TemplateDefault, nil
	case "minimal":
		return TemplateMinimal, nil
	case "professional":
		return TemplateProfessional, nil
	case "academic":
		return TemplateAcademic, nil
	default:
		return TemplateDefault, fmt.Errorf("unknown template %q", name)
	}
}

// Budgets bounds serialization, spec §4.8.
type Budgets struct {
	MaxDepth             int
	MaxOutputBytes       int
	MaxParagraphChildren int
	MaxCellComplexity    int
}

// DefaultBudgets returns spec §4.8's defaults.
func DefaultBudgets() Budgets {
	return Budgets{
		MaxDepth:             50,
		MaxOutputBytes:       100 * 1024 * 1024,
		MaxParagraphChildren: 10_000,
		MaxCellComplexity:    1000,
	}
}

// Options configures one serialization pass.
type Options struct {
	Template Template
	Budgets  Budgets
}

// DefaultOptions returns the default template with default budgets.
func DefaultOptions() Options {
	return Options{Budgets: DefaultBudgets()}
}

// Error reports a budget breach or other serialization failure.
type Error struct{ Reason string }

func (e *Error) Error() string { return e.Reason }

// headingHalfPoints maps heading level to the RTF half-point font
// size spec §4.8 specifies.
var headingHalfPoints = map[int]int{1: 48, 2: 40, 3: 32, 4: 28, 5: 24, 6: 24}

type generator struct {
	out     strings.Builder
	budgets Budgets
}

// Serialize renders doc as a complete RTF document string.
func Serialize(doc *doctree.Document, opts Options) (string, error) {
	if opts.Budgets == (Budgets{}) {
		opts.Budgets = DefaultBudgets()
	}
	g := &generator{budgets: opts.Budgets}

	g.writeHeader(doc, opts.Template)

	for i, n := range doc.Content {
		if i > 0 {
			g.out.WriteString(`\par `)
		}
		if err := g.renderNode(n, 1); err != nil {
			return "", err
		}
		if g.out.Len() > g.budgets.MaxOutputBytes {
			return "", &Error{Reason: fmt.Sprintf("output size exceeds %d bytes", g.budgets.MaxOutputBytes)}
		}
	}
	g.out.WriteString("}")

	if g.out.Len() > g.budgets.MaxOutputBytes {
		return "", &Error{Reason: fmt.Sprintf("output size exceeds %d bytes", g.budgets.MaxOutputBytes)}
	}
	return g.out.String(), nil
}

func (g *generator) writeHeader(doc *doctree.Document, tmpl Template) {
	switch tmpl {
	case TemplateMinimal:
		g.out.WriteString(`{\rtf1\ansi\deff0 `)
		g.writeFontTable(doc)
	case TemplateProfessional:
		g.out.WriteString(`{\rtf1\ansi\deff0\margl1440\margr1440\margt1440\margb1440 `)
		g.writeFontTable(doc)
		g.writeColorTable(doc)
	case TemplateAcademic:
		g.out.WriteString(`{\rtf1\ansi\deff0\margl1800\margr1800\margt1440\margb1440 `)
		g.writeFontTable(doc)
		g.writeColorTable(doc)
	default:
		g.out.WriteString(`{\rtf1\ansi\deff0 `)
		g.writeFontTable(doc)
		g.writeColorTable(doc)
	}
}

func (g *generator) writeFontTable(doc *doctree.Document) {
	fonts := doc.Metadata.Fonts
	if len(fonts) == 0 {
		name := doc.Metadata.DefaultFont
		if name == "" {
			name = "Arial"
		}
		fonts = []doctree.Font{{ID: 0, Name: name}}
	}
	g.out.WriteString(`{\fonttbl`)
	for _, f := range fonts {
		fmt.Fprintf(&g.out, `{\f%d %s;}`, f.ID, escapeText(f.Name))
	}
	g.out.WriteString(`} `)
}

func (g *generator) writeColorTable(doc *doctree.Document) {
	if len(doc.Metadata.Colors) == 0 {
		return
	}
	g.out.WriteString(`{\colortbl;`)
	for _, c := range doc.Metadata.Colors {
		fmt.Fprintf(&g.out, `\red%d\green%d\blue%d;`, c.Red, c.Green, c.Blue)
	}
	g.out.WriteString(`} `)
}

func (g *generator) renderNode(n doctree.Node, depth int) error {
	if depth > g.budgets.MaxDepth {
		return &Error{Reason: fmt.Sprintf("recursion depth exceeds %d", g.budgets.MaxDepth)}
	}

	switch n.Kind {
	case doctree.KindText:
		g.out.WriteString(escapeText(n.Text))
		return nil

	case doctree.KindParagraph:
		if len(n.Children) > g.budgets.MaxParagraphChildren {
			return &Error{Reason: fmt.Sprintf("paragraph children %d exceeds %d", len(n.Children), g.budgets.MaxParagraphChildren)}
		}
		return g.renderChildren(n.Children, depth, " ")

	case doctree.KindBold:
		return g.renderWrapped(`\b `, n.Children, depth)

	case doctree.KindItalic:
		return g.renderWrapped(`\i `, n.Children, depth)

	case doctree.KindUnderline:
		return g.renderWrapped(`\ul `, n.Children, depth)

	case doctree.KindHeading:
		half, ok := headingHalfPoints[n.Level]
		if !ok {
			half = 24
		}
		return g.renderWrapped(fmt.Sprintf(`\b\fs%d `, half), n.Children, depth)

	case doctree.KindListItem:
		if len(n.Children) > g.budgets.MaxParagraphChildren {
			return &Error{Reason: fmt.Sprintf("list item children %d exceeds %d", len(n.Children), g.budgets.MaxParagraphChildren)}
		}
		indent := 720 * (n.ListLevel + 1)
		fmt.Fprintf(&g.out, `{\pard\li%d\fi-360 \bullet\tab `, indent)
		if err := g.renderChildren(n.Children, depth+1, " "); err != nil {
			return err
		}
		g.out.WriteString(`\par}`)
		return nil

	case doctree.KindTable:
		return g.renderTable(n, depth)

	case doctree.KindLineBreak:
		g.out.WriteString(`\line `)
		return nil

	case doctree.KindPageBreak:
		g.out.WriteString(`\page `)
		return nil

	default:
		return &Error{Reason: fmt.Sprintf("unknown node kind %s", n.Kind)}
	}
}

func (g *generator) renderWrapped(prefix string, children []doctree.Node, depth int) error {
	g.out.WriteString("{")
	g.out.WriteString(prefix)
	if err := g.renderChildren(children, depth+1, " "); err != nil {
		return err
	}
	g.out.WriteString("}")
	return nil
}

func (g *generator) renderChildren(children []doctree.Node, depth int, sep string) error {
	for i, c := range children {
		if i > 0 {
			g.out.WriteString(sep)
		}
		if err := g.renderNode(c, depth); err != nil {
			return err
		}
	}
	return nil
}

func (g *generator) renderTable(n doctree.Node, depth int) error {
	for _, row := range n.Rows {
		cols := len(row.Cells)
		if cols == 0 {
			cols = 1
		}
		width := 9360 / cols
		g.out.WriteString(`{\trowd\trgaph108\trleft-108`)
		pos := 0
		for i := 0; i < cols; i++ {
			pos += width
			fmt.Fprintf(&g.out, `\cellx%d`, pos)
		}
		for _, cell := range row.Cells {
			if complexity(cell.Content) > g.budgets.MaxCellComplexity {
				return &Error{Reason: fmt.Sprintf("table cell complexity exceeds %d", g.budgets.MaxCellComplexity)}
			}
			g.out.WriteString(`{\pard\intbl `)
			if err := g.renderChildren(cell.Content, depth+1, " "); err != nil {
				return err
			}
			g.out.WriteString(`\cell}`)
		}
		g.out.WriteString(`\row}`)
	}
	return nil
}

func complexity(nodes []doctree.Node) int {
	total := 0
	for _, n := range nodes {
		doctree.Walk(n, func(doctree.Node) bool { total++; return true })
	}
	return total
}

// escapeText applies spec §4.8's text-escaping rules: backslash,
// braces, and newline are escaped or translated to \par; carriage
// returns are dropped; non-ASCII code points become \uN? escapes.
func escapeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == '{':
			b.WriteString(`\{`)
		case r == '}':
			b.WriteString(`\}`)
		case r == '\n':
			b.WriteString(`\par `)
		case r == '\r':
			// dropped
		case r > 127:
			b.WriteString(`\u`)
			b.WriteString(strconv.Itoa(int(r)))
			b.WriteString(`?`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
