package parser_test

import (
	"strings"
	"testing"

	"github.com/legacybridge/rtfmd/core/doctree"
	"github.com/legacybridge/rtfmd/intern"
	"github.com/legacybridge/rtfmd/rtf/lexer"
	"github.com/legacybridge/rtfmd/rtf/parser"
)

func parseString(t *testing.T, input string) (*doctree.Document, error) {
	t.Helper()
	toks, err := lexer.Lex([]byte(input), lexer.Options{})
	if err != nil {
		t.Fatalf("lex failed: %v", err)
	}
	return parser.Parse(toks, parser.DefaultOptions())
}

func TestParseHelloWorld(t *testing.T) {
	doc, err := parseString(t, `{\rtf1 Hello World\par}`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(doc.Content) != 1 || doc.Content[0].Kind != doctree.KindParagraph {
		t.Fatalf("want single Paragraph, got %+v", doc.Content)
	}
	if got := doctree.TextContent(doc.Content[0]); got != "Hello World" {
		t.Fatalf("text = %q, want %q", got, "Hello World")
	}
}

func TestParseBoldItalic(t *testing.T) {
	doc, err := parseString(t, `{\rtf1 Normal {\b Bold} {\i Italic}\par}`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(doc.Content) != 1 {
		t.Fatalf("want 1 paragraph, got %d", len(doc.Content))
	}
	para := doc.Content[0]
	if len(para.Children) != 4 {
		t.Fatalf("want 4 paragraph children, got %d: %+v", len(para.Children), para.Children)
	}
	if para.Children[0].Kind != doctree.KindText || para.Children[0].Text != "Normal " {
		t.Errorf("child 0 = %+v", para.Children[0])
	}
	if para.Children[1].Kind != doctree.KindBold || doctree.TextContent(para.Children[1]) != "Bold" {
		t.Errorf("child 1 = %+v", para.Children[1])
	}
	if para.Children[3].Kind != doctree.KindItalic || doctree.TextContent(para.Children[3]) != "Italic" {
		t.Errorf("child 3 = %+v", para.Children[3])
	}
}

func TestParseMissingHeader(t *testing.T) {
	_, err := parseString(t, `{\foo bar}`)
	if err == nil {
		t.Fatal("expected InvalidHeader error, got nil")
	}
	var pe *parser.ParseError
	if !errorsAs(err, &pe) || pe.Kind != parser.InvalidHeader {
		t.Fatalf("got %v, want InvalidHeader", err)
	}
}

func TestParseForbiddenControlWord(t *testing.T) {
	_, err := parseString(t, `{\rtf1 {\object\objdata 00112233}\par}`)
	if err == nil {
		t.Fatal("expected ForbiddenControlWord error, got nil")
	}
	var pe *parser.ParseError
	if !errorsAs(err, &pe) || pe.Kind != parser.ForbiddenControlWord {
		t.Fatalf("got %v, want ForbiddenControlWord", err)
	}
	if strings.Contains(err.Error(), "objdata") {
		t.Fatalf("error message leaks forbidden construct verbatim: %v", err)
	}
}

func TestParseDepthExceeded(t *testing.T) {
	var b strings.Builder
	b.WriteString(`{\rtf1 `)
	for i := 0; i < 60; i++ {
		b.WriteString(`{\b `)
	}
	b.WriteString("x")
	for i := 0; i < 60; i++ {
		b.WriteString("}")
	}
	b.WriteString(`\par}`)

	_, err := parseString(t, b.String())
	if err == nil {
		t.Fatal("expected DepthExceeded error, got nil")
	}
	var pe *parser.ParseError
	if !errorsAs(err, &pe) || pe.Kind != parser.DepthExceeded {
		t.Fatalf("got %v, want DepthExceeded", err)
	}
}

func TestParseLineAndPageBreak(t *testing.T) {
	doc, err := parseString(t, `{\rtf1 a\line b\page c\par}`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	para := doc.Content[0]
	var kinds []doctree.Kind
	for _, c := range para.Children {
		kinds = append(kinds, c.Kind)
	}
	want := []doctree.Kind{doctree.KindText, doctree.KindLineBreak, doctree.KindText, doctree.KindPageBreak, doctree.KindText}
	if len(kinds) != len(want) {
		t.Fatalf("got %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("child %d kind = %s, want %s", i, kinds[i], want[i])
		}
	}
}

func TestParseFontTable(t *testing.T) {
	doc, err := parseString(t, `{\rtf1\ansi\deff0 {\fonttbl{\f0 Arial;}{\f1 Times New Roman;}} Hi\par}`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(doc.Metadata.Fonts) != 2 {
		t.Fatalf("want 2 fonts, got %d: %+v", len(doc.Metadata.Fonts), doc.Metadata.Fonts)
	}
	if doc.Metadata.Fonts[0].Name != "Arial" {
		t.Errorf("font 0 = %+v, want Arial", doc.Metadata.Fonts[0])
	}
	if doc.Metadata.Fonts[1].Name != "Times New Roman" {
		t.Errorf("font 1 = %+v, want Times New Roman", doc.Metadata.Fonts[1])
	}
}

func TestParseColorTable(t *testing.T) {
	doc, err := parseString(t, `{\rtf1 {\colortbl;\red255\green0\blue0;\red0\green255\blue0;} Hi\par}`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(doc.Metadata.Colors) != 3 {
		t.Fatalf("want 3 colors (including the implicit first), got %d: %+v", len(doc.Metadata.Colors), doc.Metadata.Colors)
	}
	if doc.Metadata.Colors[1].Red != 255 || doc.Metadata.Colors[2].Green != 255 {
		t.Errorf("colors = %+v", doc.Metadata.Colors)
	}
}

func TestParseHexByte(t *testing.T) {
	doc, err := parseString(t, `{\rtf1 caf\'e9\par}`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	got := doctree.TextContent(doc.Content[0])
	if !strings.HasPrefix(got, "caf") {
		t.Fatalf("got %q", got)
	}
}

func TestParseHeadingFromBoldFontSizeGroup(t *testing.T) {
	doc, err := parseString(t, `{\rtf1 {\b\fs40 Title}\par Body\par}`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(doc.Content) != 2 {
		t.Fatalf("want 2 blocks, got %d: %+v", len(doc.Content), doc.Content)
	}
	heading := doc.Content[0]
	if heading.Kind != doctree.KindHeading || heading.Level != 2 {
		t.Fatalf("want level-2 Heading, got %+v", heading)
	}
	if got := doctree.TextContent(heading); got != "Title" {
		t.Fatalf("heading text = %q, want %q", got, "Title")
	}
}

func TestParseHeadingFromStandaloneFontSizeGroup(t *testing.T) {
	doc, err := parseString(t, `{\rtf1 {\fs48 Main}\par}`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if doc.Content[0].Kind != doctree.KindHeading || doc.Content[0].Level != 1 {
		t.Fatalf("want level-1 Heading, got %+v", doc.Content[0])
	}
}

func TestParseTableReconstructsRowsAndCells(t *testing.T) {
	doc, err := parseString(t, `{\rtf1 {\trowd\trgaph108\trleft-108\cellx4680\cellx9360{\pard\intbl A\cell}{\pard\intbl B\cell}\row}{\trowd\trgaph108\trleft-108\cellx4680\cellx9360{\pard\intbl 1\cell}{\pard\intbl 2\cell}\row}}`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(doc.Content) != 1 || doc.Content[0].Kind != doctree.KindTable {
		t.Fatalf("want single Table, got %+v", doc.Content)
	}
	table := doc.Content[0]
	if len(table.Rows) != 2 {
		t.Fatalf("want 2 rows, got %d: %+v", len(table.Rows), table.Rows)
	}
	if len(table.Rows[0].Cells) != 2 || len(table.Rows[1].Cells) != 2 {
		t.Fatalf("want 2 cells per row, got %+v", table.Rows)
	}
	cell00 := doctree.TextContent(doctree.Node{Kind: doctree.KindParagraph, Children: table.Rows[0].Cells[0].Content})
	cell01 := doctree.TextContent(doctree.Node{Kind: doctree.KindParagraph, Children: table.Rows[0].Cells[1].Content})
	if cell00 != "A" || cell01 != "B" {
		t.Fatalf("row 0 cells = %q, %q, want A, B", cell00, cell01)
	}
	cell10 := doctree.TextContent(doctree.Node{Kind: doctree.KindParagraph, Children: table.Rows[1].Cells[0].Content})
	cell11 := doctree.TextContent(doctree.Node{Kind: doctree.KindParagraph, Children: table.Rows[1].Cells[1].Content})
	if cell10 != "1" || cell11 != "2" {
		t.Fatalf("row 1 cells = %q, %q, want 1, 2", cell10, cell11)
	}
}

func TestParseWithInternerDeduplicatesRepeatedText(t *testing.T) {
	in := intern.New(0, 0)
	toks, err := lexer.Lex([]byte(`{\rtf1 {\b repeated fragment} {\i repeated fragment}\par}`), lexer.Options{})
	if err != nil {
		t.Fatalf("lex failed: %v", err)
	}
	opts := parser.DefaultOptions()
	opts.Interner = in
	if _, err := parser.Parse(toks, opts); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	stats := in.Stats()
	if stats.Hits == 0 {
		t.Fatalf("expected at least one interner hit for the repeated text run, got %+v", stats)
	}
}

func errorsAs(err error, target **parser.ParseError) bool {
	pe, ok := err.(*parser.ParseError)
	if !ok {
		return false
	}
	*target = pe
	return true
}
