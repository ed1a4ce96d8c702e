// Package recovery implements the best-effort recovery engine spec
// §4.6 describes: given input that failed to lex or parse, it applies
// a fixed, ordered sequence of repair strategies and returns whatever
// document results, along with a record of exactly what it changed.
// It never loops — at most one pass per strategy per attempt — and its
// minimal fallback always produces a document.
package recovery

import (
	"fmt"
	"strings"

	"github.com/legacybridge/rtfmd/core/doctree"
	"github.com/legacybridge/rtfmd/rtf/lexer"
	"github.com/legacybridge/rtfmd/rtf/parser"
)

// ActionType names which repair strategy fired.
type ActionType string

const (
	ActionRemoveInvalid   ActionType = "RemoveInvalid"
	ActionFixStructure    ActionType = "FixStructure"
	ActionInsertMissing   ActionType = "InsertMissing"
	ActionTokenRepair     ActionType = "TokenRepair"
	ActionMinimalFallback ActionType = "MinimalFallback"
)

// Action records one applied repair.
type Action struct {
	Type        ActionType
	Description string
	Applied     bool
}

// Options configures a recovery attempt. Zero value uses spec defaults.
type Options struct {
	Limits doctree.Limits
}

// Recover attempts to produce a usable document from input that
// failed an earlier lex/parse pass. It returns the repaired document,
// the ordered list of actions taken (including strategies that were
// considered but made no change), and an error that is always nil:
// the minimal fallback builds a document from any input.
func Recover(input []byte, opts Options) (*doctree.Document, []Action, error) {
	if opts.Limits == (doctree.Limits{}) {
		opts.Limits = doctree.DefaultLimits()
	}

	var actions []Action

	cleaned, removed := removeInvalid(input)
	actions = append(actions, Action{
		Type:        ActionRemoveInvalid,
		Description: fmt.Sprintf("stripped %d NUL/stray control bytes", removed),
		Applied:     removed > 0,
	})

	wrapped, didWrap := insertMissingHeader(cleaned)
	actions = append(actions, Action{
		Type:        ActionInsertMissing,
		Description: "wrapped input in a synthesized {\\rtf1\\ansi ...} header",
		Applied:     didWrap,
	})

	fixed, added := fixStructure(wrapped)
	actions = append(actions, Action{
		Type:        ActionFixStructure,
		Description: fmt.Sprintf("appended %d closing brace(s) to balance structure", added),
		Applied:     added > 0,
	})

	parseOpts := parser.DefaultOptions()
	parseOpts.Limits = opts.Limits

	if toks, lexErr := lexer.Lex(fixed, lexer.Options{}); lexErr == nil {
		if doc, parseErr := parser.Parse(toks, parseOpts); parseErr == nil {
			return doc, actions, nil
		}

		repairedToks, tokenRepaired := repairTokens(toks)
		actions = append(actions, Action{
			Type:        ActionTokenRepair,
			Description: "prepended missing header token and/or balanced group tokens",
			Applied:     tokenRepaired,
		})
		if doc, parseErr := parser.Parse(repairedToks, parseOpts); parseErr == nil {
			return doc, actions, nil
		}

		doc := minimalFallback(repairedToks)
		actions = append(actions, Action{
			Type:        ActionMinimalFallback,
			Description: "synthesized a minimal document from recovered text tokens",
			Applied:     true,
		})
		return doc, actions, nil
	}

	// Lexing itself still fails even after byte-level repair: fall back
	// to a minimal document built directly from whatever printable runs
	// survive in the raw bytes.
	doc := minimalFallbackFromBytes(fixed)
	actions = append(actions, Action{
		Type:        ActionMinimalFallback,
		Description: "synthesized a minimal document directly from raw input",
		Applied:     true,
	})
	return doc, actions, nil
}

// removeInvalid strips NUL bytes and stray (non-whitespace) ASCII
// control characters, spec §4.6 strategy 1.
func removeInvalid(input []byte) ([]byte, int) {
	out := make([]byte, 0, len(input))
	removed := 0
	for _, b := range input {
		if b == 0 || (b < 0x20 && b != '\t' && b != '\n' && b != '\r') {
			removed++
			continue
		}
		out = append(out, b)
	}
	return out, removed
}

// insertMissingHeader wraps input in a minimal RTF header when it
// doesn't already start with {\rtf, spec §4.6 strategy 3.
func insertMissingHeader(input []byte) ([]byte, bool) {
	trimmed := strings.TrimSpace(string(input))
	if strings.HasPrefix(trimmed, `{\rtf`) {
		return input, false
	}
	return []byte(`{\rtf1\ansi ` + trimmed + `}`), true
}

// fixStructure performs a single pass balancing braces: an unmatched
// `}` becomes a space, and unmatched opens are closed at EOF by
// appending `}` until balanced — spec §4.6 strategy 2.
func fixStructure(input []byte) ([]byte, int) {
	out := make([]byte, 0, len(input))
	depth := 0
	for i := 0; i < len(input); i++ {
		b := input[i]
		if b == '\\' && i+1 < len(input) {
			out = append(out, b, input[i+1])
			i++
			continue
		}
		switch b {
		case '{':
			depth++
			out = append(out, b)
		case '}':
			if depth == 0 {
				out = append(out, ' ')
				continue
			}
			depth--
			out = append(out, b)
		default:
			out = append(out, b)
		}
	}
	added := 0
	for ; depth > 0; depth-- {
		out = append(out, '}')
		added++
	}
	return out, added
}

// repairTokens applies spec §4.6 strategy 4 directly to a token
// stream: prepend a synthesized header if missing, and append
// GroupEnd tokens until the implied depth returns to zero.
func repairTokens(toks []lexer.Token) ([]lexer.Token, bool) {
	repaired := false

	needsHeader := len(toks) < 2 ||
		toks[0].Type != lexer.GroupStart ||
		toks[1].Type != lexer.ControlWord || toks[1].Name != "rtf"
	if needsHeader {
		header := []lexer.Token{
			{Type: lexer.GroupStart},
			{Type: lexer.ControlWord, Name: "rtf", Param: 1, HasParam: true},
		}
		toks = append(header, toks...)
		repaired = true
	}

	depth := 0
	for _, t := range toks {
		switch t.Type {
		case lexer.GroupStart:
			depth++
		case lexer.GroupEnd:
			depth--
		}
	}
	for ; depth > 0; depth-- {
		toks = append(toks, lexer.Token{Type: lexer.GroupEnd})
		repaired = true
	}
	return toks, repaired
}

const recoveryNotice = "[recovered document: original structure could not be fully parsed]"

// minimalFallback synthesizes a single paragraph containing the
// recovery notice followed by any literal text recovered from the
// token stream, spec §4.6 strategy 5.
func minimalFallback(toks []lexer.Token) *doctree.Document {
	var text strings.Builder
	text.WriteString(recoveryNotice)
	for _, t := range toks {
		if t.Type == lexer.Text && t.Str != "" {
			text.WriteByte(' ')
			text.WriteString(t.Str)
		}
	}
	doc := doctree.New()
	doc.Content = []doctree.Node{doctree.Paragraph(doctree.Text(text.String()))}
	return doc
}

// minimalFallbackFromBytes is the same idea as minimalFallback, but
// for the rarer case where even the lexer can't make progress: it
// keeps only printable ASCII that doesn't look like RTF control
// syntax, as a last-resort approximation of the original text.
func minimalFallbackFromBytes(input []byte) *doctree.Document {
	var text strings.Builder
	text.WriteString(recoveryNotice)
	text.WriteByte(' ')
	skipControl := false
	for _, b := range input {
		switch {
		case b == '\\':
			skipControl = true
		case skipControl && (b == ' ' || b == '\n' || b == '\r' || b == '\t'):
			skipControl = false
		case skipControl:
			// still inside a control word/symbol; drop it.
		case b == '{' || b == '}':
			// structural, not content.
		case b >= 0x20 && b < 0x7f:
			text.WriteByte(b)
		}
	}
	doc := doctree.New()
	doc.Content = []doctree.Node{doctree.Paragraph(doctree.Text(strings.TrimSpace(text.String())))}
	return doc
}
