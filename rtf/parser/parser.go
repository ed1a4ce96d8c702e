// Package parser consumes an RTF token stream (see rtf/lexer) and
// builds a core/doctree.Document, enforcing the recursion, node-count,
// and memory ceilings spec §4.4 requires.
package parser

import (
	"strings"

	"github.com/legacybridge/rtfmd/core/doctree"
	"github.com/legacybridge/rtfmd/core/invariant"
	"github.com/legacybridge/rtfmd/intern"
	"github.com/legacybridge/rtfmd/resource"
	"github.com/legacybridge/rtfmd/rtf/lexer"
)

// headingLevelForHalfPoints inverts serialize/rtfgen's headingHalfPoints
// table (heading level -> half-point font size) so a \fsN control word
// recovered from RTF reconstructs the original heading level instead of
// being silently skipped as an unrecognized control word. Levels 5 and 6
// both serialize to 24 half-points; 24 inverts to level 5, the same
// ambiguity the forward table already carries.
var headingLevelForHalfPoints = map[int32]int{48: 1, 40: 2, 32: 3, 28: 4, 24: 5}

// scopeMode selects what happens to a scope's trailing, unflushed
// buffer when its closing group is reached.
type scopeMode int

const (
	// scopeBlock wraps a trailing buffer in a Paragraph, for the
	// document root.
	scopeBlock scopeMode = iota
	// scopeInline returns the trailing buffer as-is, for {\b ...},
	// {\i ...}, {\ul ...} formatting destinations, plain nested groups,
	// heading groups and table cells.
	scopeInline
)

// Options configures a parse attempt.
type Options struct {
	Limits     doctree.Limits
	Governor   *resource.Governor // optional; nil disables admission control
	StrictMode bool               // unknown control words become warnings instead of silent skips
	// Interner, when set, deduplicates repeated Text token payloads
	// through a bounded LRU cache (spec §4.3) instead of allocating a
	// fresh string per occurrence. Nil disables interning.
	Interner *intern.Interner
}

// DefaultOptions returns spec-default limits with no governor attached.
func DefaultOptions() Options {
	return Options{Limits: doctree.DefaultLimits()}
}

// Parser holds all per-attempt state: token position, recursion depth,
// and node count. The memory estimate is reserved once, in Parse, and
// is not tracked here. No state is held outside a Parser instance.
type Parser struct {
	tokens []lexer.Token
	pos    int

	depth     int
	nodeCount int
	opts      Options

	Warnings []string
}

// Parse tokenizes-already tokens into a Document, or returns the first
// ParseError encountered.
func Parse(tokens []lexer.Token, opts Options) (*doctree.Document, error) {
	p := &Parser{tokens: tokens, opts: opts}

	if opts.Governor != nil {
		estimate := int64(len(tokens)) * 64
		release, err := opts.Governor.Reserve(estimate)
		if err != nil {
			return nil, newErr(MemoryExceeded, 0, "%v", err)
		}
		defer release()
	}

	doc := doctree.New()

	if p.pos >= len(p.tokens) || p.tokens[p.pos].Type != lexer.GroupStart {
		return nil, newErr(InvalidHeader, 0, "document does not start with a group")
	}
	p.pos++
	p.depth++

	if p.pos >= len(p.tokens) || p.tokens[p.pos].Type != lexer.ControlWord ||
		p.tokens[p.pos].Name != "rtf" || !p.tokens[p.pos].HasParam || p.tokens[p.pos].Param != 1 {
		return nil, newErr(InvalidHeader, p.offset(), "missing \\rtf1 header")
	}
	p.pos++

	content, err := p.parseScope(scopeBlock, &doc.Metadata)
	if err != nil {
		return nil, err
	}
	doc.Content = content

	if p.depth > 0 {
		return nil, newErr(UnmatchedGroup, p.offset(), "%d group(s) still open at end of input", p.depth)
	}
	invariant.Invariant(p.depth == 0, "parser depth must return to 0 at end of document, got %d", p.depth)
	return doc, nil
}

func (p *Parser) offset() int {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos].Offset
	}
	if len(p.tokens) > 0 {
		return p.tokens[len(p.tokens)-1].Offset
	}
	return 0
}

// parseScope consumes tokens until the matching GroupEnd or EOF; Parse
// turns a group still open at EOF into an UnmatchedGroup error. md
// receives font/
// color table and \info data when this scope is the root.
func (p *Parser) parseScope(mode scopeMode, md *doctree.Metadata) ([]doctree.Node, error) {
	var result []doctree.Node
	var buffer []doctree.Node

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		if mode == scopeBlock {
			// A buffer holding exactly one already-block-level node (a
			// Heading or Table group dispatched on its own, with no
			// surrounding text) is that node, not a paragraph containing
			// it — matching how markdown/parser appends Heading/Table
			// directly to the document root instead of wrapping them.
			if len(buffer) == 1 && (buffer[0].Kind == doctree.KindHeading || buffer[0].Kind == doctree.KindTable) {
				result = append(result, buffer[0])
			} else {
				result = append(result, doctree.Paragraph(buffer...))
			}
		} else {
			result = append(result, buffer...)
		}
		buffer = nil
	}

	for {
		if p.pos >= len(p.tokens) {
			flush()
			return result, nil // EOF: Parse reports any group left open
		}

		tok := p.tokens[p.pos]
		switch tok.Type {
		case lexer.GroupEnd:
			p.pos++
			p.depth--
			flush()
			return result, nil

		case lexer.GroupStart:
			p.pos++
			p.depth++
			if p.depth > p.opts.Limits.MaxDepth {
				return result, newErr(DepthExceeded, tok.Offset, "nesting depth exceeds %d", p.opts.Limits.MaxDepth)
			}
			nodes, err := p.dispatchGroup(md)
			if err != nil {
				return result, err
			}
			buffer = append(buffer, nodes...)

		case lexer.ControlWord:
			p.pos++
			if isForbiddenControlWord(tok.Name) {
				return result, newErr(ForbiddenControlWord, tok.Offset, "forbidden control word")
			}
			switch tok.Name {
			case "par":
				flush()
			case "line":
				buffer = append(buffer, doctree.LineBreak())
				if err := p.countNode(tok.Offset); err != nil {
					return result, err
				}
			case "page":
				buffer = append(buffer, doctree.PageBreak())
				if err := p.countNode(tok.Offset); err != nil {
					return result, err
				}
			case "pard", "intbl", "cell", "cellx", "row", "trowd", "trgaph", "trleft":
				// Paragraph/table formatting and boundary control words;
				// table structure itself is reconstructed by the \trowd
				// dispatch in dispatchGroup, so these carry no payload
				// once reached here.
			default:
				if p.opts.StrictMode {
					p.Warnings = append(p.Warnings, "unrecognized control word: \\"+tok.Name)
				}
			}

		case lexer.ControlSymbol:
			p.pos++
			switch tok.Char {
			case '\'':
				// Paired with the following HexByte; handled there.
			case '~':
				buffer = appendText(buffer, " ")
			case '-', '_':
				// Optional/non-breaking hyphen: rendered as a literal hyphen.
				buffer = appendText(buffer, "-")
			case '\\', '{', '}':
				buffer = appendText(buffer, string(tok.Char))
			default:
				// Unrecognized symbol: ignored.
			}

		case lexer.HexByte:
			p.pos++
			buffer = appendText(buffer, string(rune(tok.Byte)))

		case lexer.Text:
			p.pos++
			if len(tok.Str) > p.opts.Limits.MaxTextPerRun {
				return result, newErr(TextTooLong, tok.Offset, "text run of %d bytes exceeds limit %d", len(tok.Str), p.opts.Limits.MaxTextPerRun)
			}
			s := tok.Str
			if p.opts.Interner != nil {
				s = p.opts.Interner.Intern(s)
			}
			buffer = appendText(buffer, s)
			if err := p.countNode(tok.Offset); err != nil {
				return result, err
			}

		default:
			return result, newErr(UnexpectedToken, tok.Offset, "unexpected token")
		}
	}
}

// appendText merges consecutive text fragments into the last Text node
// of buffer when possible, keeping node counts proportional to real
// content boundaries instead of every hex escape or symbol.
func appendText(buffer []doctree.Node, s string) []doctree.Node {
	if s == "" {
		return buffer
	}
	if n := len(buffer); n > 0 && buffer[n-1].Kind == doctree.KindText {
		buffer[n-1].Text += s
		return buffer
	}
	return append(buffer, doctree.Text(s))
}

func (p *Parser) countNode(offset int) error {
	p.nodeCount++
	if p.nodeCount > p.opts.Limits.MaxNodes {
		return newErr(NodeCountExceeded, offset, "node count exceeds %d", p.opts.Limits.MaxNodes)
	}
	return nil
}

// dispatchGroup handles the token immediately following a just-consumed
// GroupStart (with depth already incremented by the caller) and returns
// the nodes this nested group contributes to its parent's buffer.
func (p *Parser) dispatchGroup(md *doctree.Metadata) ([]doctree.Node, error) {
	if p.pos < len(p.tokens) && p.tokens[p.pos].Type == lexer.ControlWord {
		name := p.tokens[p.pos].Name
		if isForbiddenControlWord(name) {
			offset := p.tokens[p.pos].Offset
			return nil, newErr(ForbiddenControlWord, offset, "forbidden control word")
		}
		switch name {
		case "fonttbl":
			p.pos++
			return nil, p.parseFontTable(md)
		case "colortbl":
			p.pos++
			return nil, p.parseColorTable(md)
		case "info":
			p.pos++
			return nil, p.parseInfo(md)
		case "fs":
			tok := p.tokens[p.pos]
			p.pos++
			return p.finishHeadingFromFontSize(tok, md)
		case "trowd":
			p.pos++
			return p.parseTableGroup(md)
		case "b", "i", "ul":
			tok := p.tokens[p.pos]
			p.pos++
			if tok.HasParam && tok.Param == 0 {
				// Explicit off — contents are plain, splice inline.
				return p.parseScope(scopeInline, md)
			}
			if name == "b" {
				if next := p.pos; next < len(p.tokens) &&
					p.tokens[next].Type == lexer.ControlWord && p.tokens[next].Name == "fs" {
					fsTok := p.tokens[next]
					if _, ok := headingLevelForHalfPoints[fsTok.Param]; ok {
						p.pos++ // consume \fsN alongside \b
						return p.finishHeadingFromFontSize(fsTok, md)
					}
				}
			}
			inner, err := p.parseScope(scopeInline, md)
			if err != nil {
				return nil, err
			}
			switch name {
			case "b":
				return []doctree.Node{doctree.Bold(inner...)}, nil
			case "i":
				return []doctree.Node{doctree.Italic(inner...)}, nil
			default:
				return []doctree.Node{doctree.Underline(inner...)}, nil
			}
		}
	}

	// Starred destination groups ({\*\generator ...} and similar) carry
	// no renderable content; skip them entirely rather than splicing
	// their payload inline.
	if p.pos < len(p.tokens) && p.tokens[p.pos].Type == lexer.ControlSymbol && p.tokens[p.pos].Char == '*' {
		p.pos++
		return nil, p.skipGroup()
	}

	// Plain nested group (or an unrecognized destination): parse it
	// generically and splice its content directly into the parent.
	return p.parseScope(scopeInline, md)
}

// finishHeadingFromFontSize parses the remainder of the current group as
// the content of a Heading, using fsTok's size in half-points to recover
// the original level. An unrecognized size falls back to level 6 rather
// than dropping the heading entirely.
func (p *Parser) finishHeadingFromFontSize(fsTok lexer.Token, md *doctree.Metadata) ([]doctree.Node, error) {
	level, ok := headingLevelForHalfPoints[fsTok.Param]
	if !ok {
		level = 6
	}
	inner, err := p.parseScope(scopeInline, md)
	if err != nil {
		return nil, err
	}
	return []doctree.Node{doctree.Heading(level, inner...)}, nil
}

// parseTableGroup parses a {\trowd ...\row} group already entered (the
// GroupStart consumed and depth incremented by the caller, and \trowd
// itself consumed by dispatchGroup) as one table row, then keeps
// consuming any immediately adjacent {\trowd ...} row groups into the
// same Table — rtfgen.renderTable emits one sibling group per row rather
// than a single enclosing table group, so they must be reassembled here.
func (p *Parser) parseTableGroup(md *doctree.Metadata) ([]doctree.Node, error) {
	row, err := p.parseTableRow(md)
	if err != nil {
		return nil, err
	}
	rows := []doctree.Row{row}

	for p.startsTableRow() {
		p.pos++ // GroupStart
		p.depth++
		if p.depth > p.opts.Limits.MaxDepth {
			return nil, newErr(DepthExceeded, p.offset(), "nesting depth exceeds %d", p.opts.Limits.MaxDepth)
		}
		p.pos++ // \trowd
		next, err := p.parseTableRow(md)
		if err != nil {
			return nil, err
		}
		rows = append(rows, next)
	}
	return []doctree.Node{doctree.Table(rows...)}, nil
}

// startsTableRow reports whether the upcoming tokens open another
// {\trowd ...} row group immediately following the one just parsed.
func (p *Parser) startsTableRow() bool {
	return p.pos+1 < len(p.tokens) &&
		p.tokens[p.pos].Type == lexer.GroupStart &&
		p.tokens[p.pos+1].Type == lexer.ControlWord &&
		p.tokens[p.pos+1].Name == "trowd"
}

// parseTableRow parses one row's \trgaph/\trleft/\cellxN formatting
// control words, one {\pard\intbl ... \cell} group per cell, and the
// \row control word, stopping at the row's own closing brace. The
// caller has already consumed the row's opening brace and \trowd.
func (p *Parser) parseTableRow(md *doctree.Metadata) (doctree.Row, error) {
	var row doctree.Row
	for {
		if p.pos >= len(p.tokens) {
			return row, newErr(UnmatchedGroup, p.offset(), "unterminated table row")
		}
		tok := p.tokens[p.pos]
		switch tok.Type {
		case lexer.GroupStart:
			p.pos++
			p.depth++
			if p.depth > p.opts.Limits.MaxDepth {
				return row, newErr(DepthExceeded, tok.Offset, "nesting depth exceeds %d", p.opts.Limits.MaxDepth)
			}
			cell, err := p.parseTableCell(md)
			if err != nil {
				return row, err
			}
			row.Cells = append(row.Cells, cell)
		case lexer.GroupEnd:
			p.pos++
			p.depth--
			return row, nil
		case lexer.ControlWord:
			p.pos++ // \trgaph, \trleft, \cellxN, \row: no row-level payload
		default:
			p.pos++
		}
	}
}

// parseTableCell parses one {\pard\intbl ... \cell} group, already
// entered by the caller, as a Cell. \pard/\intbl/\cell themselves carry
// no content and are ignored by parseScope's own control-word dispatch.
func (p *Parser) parseTableCell(md *doctree.Metadata) (doctree.Cell, error) {
	content, err := p.parseScope(scopeInline, md)
	if err != nil {
		return doctree.Cell{}, err
	}
	return doctree.Cell{Content: content}, nil
}

// skipGroup discards tokens up to and including the matching GroupEnd.
// Depth is still tracked against the ceiling so a pathologically deep
// ignorable destination cannot bypass the recursion bound.
func (p *Parser) skipGroup() error {
	local := 0
	for p.pos < len(p.tokens) {
		switch p.tokens[p.pos].Type {
		case lexer.GroupStart:
			p.pos++
			local++
			if p.depth+local > p.opts.Limits.MaxDepth {
				return newErr(DepthExceeded, p.offset(), "nesting depth exceeds %d", p.opts.Limits.MaxDepth)
			}
		case lexer.GroupEnd:
			p.pos++
			if local == 0 {
				p.depth--
				return nil
			}
			local--
		default:
			p.pos++
		}
	}
	return newErr(UnmatchedGroup, p.offset(), "unterminated destination group")
}

func (p *Parser) parseFontTable(md *doctree.Metadata) error {
	local := 0
	curID := 0
	haveID := false
	var family strings.Builder

	flush := func() {
		if !haveID && family.Len() == 0 {
			return
		}
		name := strings.TrimSpace(family.String())
		md.Fonts = append(md.Fonts, doctree.Font{ID: curID, Name: name, Family: name})
		if md.DefaultFont == "" && name != "" {
			md.DefaultFont = name
		}
		haveID = false
		family.Reset()
	}

	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		switch tok.Type {
		case lexer.GroupStart:
			p.pos++
			local++
		case lexer.GroupEnd:
			p.pos++
			if local == 0 {
				flush()
				p.depth--
				return nil
			}
			local--
			flush()
		case lexer.ControlWord:
			p.pos++
			if tok.Name == "f" && tok.HasParam {
				flush()
				curID = int(tok.Param)
				haveID = true
			}
		case lexer.Text:
			p.pos++
			parts := strings.Split(tok.Str, ";")
			for i, part := range parts {
				family.WriteString(part)
				if i < len(parts)-1 {
					flush()
				}
			}
		default:
			p.pos++
		}
	}
	return newErr(UnmatchedGroup, p.offset(), "unterminated font table")
}

func (p *Parser) parseColorTable(md *doctree.Metadata) error {
	red, green, blue := 0, 0, 0
	id := 0
	flushColor := func() {
		md.Colors = append(md.Colors, doctree.Color{ID: id, Red: uint8(red), Green: uint8(green), Blue: uint8(blue)})
		id++
		red, green, blue = 0, 0, 0
	}
	local := 0
	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		switch tok.Type {
		case lexer.GroupStart:
			p.pos++
			local++
		case lexer.GroupEnd:
			p.pos++
			if local == 0 {
				p.depth--
				return nil
			}
			local--
		case lexer.ControlWord:
			p.pos++
			switch tok.Name {
			case "red":
				red = int(tok.Param)
			case "green":
				green = int(tok.Param)
			case "blue":
				blue = int(tok.Param)
			}
		case lexer.Text:
			p.pos++
			if strings.Contains(tok.Str, ";") {
				flushColor()
			}
		default:
			p.pos++
		}
	}
	return newErr(UnmatchedGroup, p.offset(), "unterminated color table")
}

func (p *Parser) parseInfo(md *doctree.Metadata) error {
	local := 0
	pendingField := ""
	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		switch tok.Type {
		case lexer.GroupStart:
			p.pos++
			local++
			if p.pos < len(p.tokens) && p.tokens[p.pos].Type == lexer.ControlWord {
				switch p.tokens[p.pos].Name {
				case "title":
					pendingField = "title"
				case "author":
					pendingField = "author"
				}
			}
		case lexer.GroupEnd:
			p.pos++
			if local == 0 {
				p.depth--
				return nil
			}
			local--
			pendingField = ""
		case lexer.ControlWord:
			p.pos++
		case lexer.Text:
			p.pos++
			switch pendingField {
			case "title":
				md.Title += tok.Str
			case "author":
				md.Author += tok.Str
			}
		default:
			p.pos++
		}
	}
	return newErr(UnmatchedGroup, p.offset(), "unterminated info group")
}

