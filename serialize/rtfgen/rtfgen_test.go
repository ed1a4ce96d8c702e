package rtfgen_test

import (
	"strings"
	"testing"

	"github.com/legacybridge/rtfmd/core/doctree"
	"github.com/legacybridge/rtfmd/serialize/rtfgen"
)

func braceCountsBalance(t *testing.T, s string) {
	t.Helper()
	opens, closes := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' {
			i++
			continue
		}
		switch s[i] {
		case '{':
			opens++
		case '}':
			closes++
		}
	}
	if opens != closes {
		t.Fatalf("unbalanced braces in output: %d open, %d close\n%s", opens, closes, s)
	}
}

func TestSerializeHelloWorld(t *testing.T) {
	doc := &doctree.Document{Content: []doctree.Node{
		doctree.Paragraph(doctree.Text("Hello World")),
	}}
	out, err := rtfgen.Serialize(doc, rtfgen.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out, `{\rtf1`) || !strings.HasSuffix(out, "}") {
		t.Fatalf("missing RTF envelope: %q", out)
	}
	if !strings.Contains(out, "Hello World") {
		t.Fatalf("missing content: %q", out)
	}
	braceCountsBalance(t, out)
}

func TestSerializeBoldItalic(t *testing.T) {
	doc := &doctree.Document{Content: []doctree.Node{
		doctree.Paragraph(
			doctree.Text("Normal "),
			doctree.Bold(doctree.Text("Bold")),
			doctree.Text(" "),
			doctree.Italic(doctree.Text("Italic")),
		),
	}}
	out, err := rtfgen.Serialize(doc, rtfgen.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `\b `) || !strings.Contains(out, `\i `) {
		t.Fatalf("missing bold/italic control words: %q", out)
	}
	braceCountsBalance(t, out)
}

func TestSerializeHeadingUsesHalfPointSize(t *testing.T) {
	doc := &doctree.Document{Content: []doctree.Node{
		doctree.Heading(2, doctree.Text("Title")),
	}}
	out, err := rtfgen.Serialize(doc, rtfgen.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `\fs40`) {
		t.Fatalf("expected level-2 heading at fs40, got %q", out)
	}
}

func TestSerializeEscapesSpecialChars(t *testing.T) {
	doc := &doctree.Document{Content: []doctree.Node{
		doctree.Paragraph(doctree.Text(`a\b{c}d`)),
	}}
	out, err := rtfgen.Serialize(doc, rtfgen.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `a\\b\{c\}d`) {
		t.Fatalf("escaping failed: %q", out)
	}
	braceCountsBalance(t, out)
}

func TestSerializeNonASCIIEscape(t *testing.T) {
	doc := &doctree.Document{Content: []doctree.Node{
		doctree.Paragraph(doctree.Text("café")),
	}}
	out, err := rtfgen.Serialize(doc, rtfgen.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `\u233?`) {
		t.Fatalf("expected \\u233? escape for é, got %q", out)
	}
}

func TestSerializeTable(t *testing.T) {
	doc := &doctree.Document{Content: []doctree.Node{
		doctree.Table(
			doctree.Row{Cells: []doctree.Cell{
				{Content: []doctree.Node{doctree.Text("A")}},
				{Content: []doctree.Node{doctree.Text("B")}},
			}},
		),
	}}
	out, err := rtfgen.Serialize(doc, rtfgen.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `\trowd`) || !strings.Contains(out, `\cellx`) || !strings.Contains(out, `\row}`) {
		t.Fatalf("missing table markup: %q", out)
	}
	braceCountsBalance(t, out)
}

func TestSerializeMinimalTemplateOmitsColorTable(t *testing.T) {
	doc := &doctree.Document{
		Metadata: doctree.Metadata{Colors: []doctree.Color{{ID: 0, Red: 255}}},
		Content:  []doctree.Node{doctree.Paragraph(doctree.Text("x"))},
	}
	out, err := rtfgen.Serialize(doc, rtfgen.Options{Template: rtfgen.TemplateMinimal, Budgets: rtfgen.DefaultBudgets()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out, `\colortbl`) {
		t.Fatalf("minimal template should omit colortbl: %q", out)
	}
}

func TestSerializeDepthBudgetExceeded(t *testing.T) {
	n := doctree.Text("x")
	for i := 0; i < 60; i++ {
		n = doctree.Bold(n)
	}
	doc := &doctree.Document{Content: []doctree.Node{n}}
	_, err := rtfgen.Serialize(doc, rtfgen.DefaultOptions())
	if err == nil {
		t.Fatal("expected a depth-budget error")
	}
}

func TestParseTemplate(t *testing.T) {
	cases := map[string]rtfgen.Template{
		"":             rtfgen.TemplateDefault,
		"default":      rtfgen.TemplateDefault,
		"minimal":      rtfgen.TemplateMinimal,
		"professional": rtfgen.TemplateProfessional,
		"academic":     rtfgen.TemplateAcademic,
	}
	for name, want := range cases {
		got, err := rtfgen.ParseTemplate(name)
		if err != nil {
			t.Errorf("ParseTemplate(%q) error: %v", name, err)
		}
		if got != want {
			t.Errorf("ParseTemplate(%q) = %v, want %v", name, got, want)
		}
	}
	if _, err := rtfgen.ParseTemplate("bogus"); err == nil {
		t.Error("expected error for unknown template")
	}
}
