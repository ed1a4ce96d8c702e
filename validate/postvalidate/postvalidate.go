// Package postvalidate implements the post-parse validator spec §4.7
// describes: a read-only pass over an already-built document tree
// that produces a list of findings rather than failing fast, so a
// caller can decide (via strict_validation) whether to escalate
// warnings to errors.
package postvalidate

import (
	"fmt"
	"strings"

	"github.com/legacybridge/rtfmd/core/doctree"
)

// Level classifies a Finding's severity.
type Level int

const (
	Info Level = iota
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Info:
		return "Info"
	case Warning:
		return "Warning"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// Code names the specific check a Finding came from.
type Code string

const (
	CodeEncodingNUL       Code = "encoding.nul_byte"
	CodeEncodingControl   Code = "encoding.stray_control_char"
	CodeHeadingLevel      Code = "structure.heading_level"
	CodeTableEmpty        Code = "structure.table_empty"
	CodeTableRagged       Code = "structure.table_ragged_row"
	CodeDepthExceeded     Code = "limits.depth_exceeded"
	CodeNodeCountExceeded Code = "limits.node_count_exceeded"
	CodeDocSizeExceeded   Code = "limits.document_size_exceeded"
	CodeMissingFontTable  Code = "metadata.missing_font_table"
)

// Location pinpoints a finding within the source, when meaningful.
type Location struct {
	Line     int
	Position int
}

// Finding is one observation from a validation pass.
type Finding struct {
	Level    Level
	Code     Code
	Message  string
	Location *Location
}

// Options configures which checks run. Zero value runs every check
// except RequireFontTable, which defaults to off (plain-text RTF has
// no font table and that is not itself a defect), and the encoding
// checks, which run only when RawSource is set.
type Options struct {
	Limits           doctree.Limits
	RequireFontTable bool
	RawSource        []byte // optional; enables encoding-cleanliness checks
}

// Validate runs every configured check against doc and returns the
// accumulated findings. It never mutates doc.
func Validate(doc *doctree.Document, opts Options) []Finding {
	var findings []Finding

	lim := opts.Limits
	if lim == (doctree.Limits{}) {
		lim = doctree.DefaultLimits()
	}

	if opts.RawSource != nil {
		findings = append(findings, checkEncoding(opts.RawSource)...)
	}

	if dep := doctree.Depth(doc); dep > lim.MaxDepth {
		findings = append(findings, Finding{
			Level:   Error,
			Code:    CodeDepthExceeded,
			Message: fmt.Sprintf("nesting depth %d exceeds limit %d", dep, lim.MaxDepth),
		})
	}
	if n := doctree.NodeCount(doc); n > lim.MaxNodes {
		findings = append(findings, Finding{
			Level:   Error,
			Code:    CodeNodeCountExceeded,
			Message: fmt.Sprintf("node count %d exceeds limit %d", n, lim.MaxNodes),
		})
	}
	if total := doctree.TextBytes(doc); total > lim.MaxTextTotal {
		findings = append(findings, Finding{
			Level:   Error,
			Code:    CodeDocSizeExceeded,
			Message: fmt.Sprintf("document text %d bytes exceeds limit %d", total, lim.MaxTextTotal),
		})
	}

	if opts.RequireFontTable && len(doc.Metadata.Fonts) == 0 {
		findings = append(findings, Finding{
			Level:   Warning,
			Code:    CodeMissingFontTable,
			Message: "document has no font table",
		})
	}

	for _, n := range doc.Content {
		findings = append(findings, checkNode(n)...)
	}
	return findings
}

func checkNode(n doctree.Node) []Finding {
	var findings []Finding
	switch n.Kind {
	case doctree.KindHeading:
		if n.Level < 1 || n.Level > 6 {
			findings = append(findings, Finding{
				Level:   Error,
				Code:    CodeHeadingLevel,
				Message: fmt.Sprintf("heading level %d out of range [1,6]", n.Level),
			})
		}
	case doctree.KindTable:
		if len(n.Rows) == 0 {
			findings = append(findings, Finding{
				Level:   Error,
				Code:    CodeTableEmpty,
				Message: "table has no rows",
			})
			return findings
		}
		first := len(n.Rows[0].Cells)
		for i, row := range n.Rows {
			if len(row.Cells) != first {
				findings = append(findings, Finding{
					Level:   Warning,
					Code:    CodeTableRagged,
					Message: fmt.Sprintf("table row %d has %d cells, expected %d", i, len(row.Cells), first),
				})
			}
			for _, cell := range row.Cells {
				for _, c := range cell.Content {
					findings = append(findings, checkNode(c)...)
				}
			}
		}
		return findings
	}
	for _, c := range n.Children {
		findings = append(findings, checkNode(c)...)
	}
	return findings
}

func checkEncoding(raw []byte) []Finding {
	var findings []Finding
	for i, b := range raw {
		if b == 0 {
			findings = append(findings, Finding{
				Level:    Error,
				Code:     CodeEncodingNUL,
				Message:  "source contains a NUL byte",
				Location: &Location{Position: i},
			})
			continue
		}
		if b < 0x20 && b != '\t' && b != '\n' && b != '\r' {
			findings = append(findings, Finding{
				Level:    Warning,
				Code:     CodeEncodingControl,
				Message:  fmt.Sprintf("stray control character 0x%02x", b),
				Location: &Location{Position: i},
			})
		}
	}
	return findings
}

// HasErrors reports whether any finding is at Error level, or — when
// strict is true — at Warning level or above, matching the
// strict_validation pipeline option (spec §6) that escalates warnings.
func HasErrors(findings []Finding, strict bool) bool {
	for _, f := range findings {
		if f.Level == Error || (strict && f.Level == Warning) {
			return true
		}
	}
	return false
}

// String renders findings as one line per entry, for logging.
func String(findings []Finding) string {
	var b strings.Builder
	for _, f := range findings {
		fmt.Fprintf(&b, "[%s] %s: %s\n", f.Level, f.Code, f.Message)
	}
	return b.String()
}
