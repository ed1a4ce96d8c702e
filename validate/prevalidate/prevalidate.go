// Package prevalidate implements the pre-parse input validator spec
// §4.1 describes: a single O(n) pass that rejects obviously unsafe or
// malformed input before any token or tree allocation happens. It
// never mutates its input and never attempts recovery — that is the
// orchestrator's and the recovery package's job.
package prevalidate

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Defaults per spec §6's Resource limits table.
const (
	DefaultMaxFileBytes = 10 * 1024 * 1024
	MaxPathLen          = 4096
	MaxNestingDepth      = 50
	MaxNumberDigits      = 10
)

// allowedExtensions is the path whitelist spec §6 names.
var allowedExtensions = map[string]bool{
	".rtf":      true,
	".md":       true,
	".markdown": true,
	".txt":      true,
}

// Error reports why a validation failed. errsan classifies it as the
// Validation kind of spec §7's taxonomy, or as Forbidden when the
// Forbidden flag is set.
type Error struct {
	Reason string
	// Forbidden marks a rejection that matched a forbidden RTF
	// construct or disallowed Markdown pattern (spec §6), distinct from
	// an ordinary structural/size validation failure so the error
	// sanitizer can give it spec §8's dedicated wire framing.
	Forbidden bool
}

func (e *Error) Error() string { return e.Reason }

func fail(format string, args ...any) error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

func failForbidden(format string, args ...any) error {
	return &Error{Reason: fmt.Sprintf(format, args...), Forbidden: true}
}

// ValidateSize fails if data is empty or exceeds max bytes. A max of
// 0 applies DefaultMaxFileBytes.
func ValidateSize(data []byte, label string, max int64) error {
	if max <= 0 {
		max = DefaultMaxFileBytes
	}
	if len(data) == 0 {
		return fail("%s: input is empty", label)
	}
	if int64(len(data)) > max {
		return fail("%s: input size %d exceeds maximum %d bytes", label, len(data), max)
	}
	return nil
}

// SanitizePath canonicalizes userPath against baseDir and rejects
// anything spec §4.1/§6 flags as unsafe: NUL bytes, excessive length,
// parent-directory components, disallowed extensions, or a
// canonicalized result that escapes baseDir. Absolute input paths are
// rejected unless allowAbsolute is true.
func SanitizePath(userPath, baseDir string, allowAbsolute bool) (string, error) {
	if strings.IndexByte(userPath, 0) >= 0 {
		return "", fail("path contains a NUL byte")
	}
	if len(userPath) > MaxPathLen {
		return "", fail("path length %d exceeds maximum %d", len(userPath), MaxPathLen)
	}
	if strings.Contains(filepath.ToSlash(userPath), "../") || userPath == ".." {
		return "", fail("path contains a parent-directory component")
	}
	if filepath.IsAbs(userPath) && !allowAbsolute {
		return "", fail("absolute paths are not permitted")
	}

	ext := strings.ToLower(filepath.Ext(userPath))
	if !allowedExtensions[ext] {
		return "", fail("extension %q is not in the allowed set", ext)
	}

	joined := userPath
	if baseDir != "" && !filepath.IsAbs(userPath) {
		joined = filepath.Join(baseDir, userPath)
	}
	clean := filepath.Clean(joined)

	if baseDir != "" {
		base := filepath.Clean(baseDir)
		rel, err := filepath.Rel(base, clean)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fail("path escapes the base directory")
		}
	}
	return clean, nil
}

// forbiddenConstructs is the exhaustive list spec §6 gives of RTF
// control words that can trigger OLE/field/bookmark behavior in a
// renderer; any occurrence in raw input is fatal, not just a
// structural parse error, so we reject pre-lex.
var forbiddenConstructs = []string{
	`\object`, `\objdata`, `\objemb`, `\objlink`, `\objautlink`, `\objsub`,
	`\objpub`, `\objicemb`, `\objhtml`, `\objocx`, `\result`, `\pict`,
	`\field`, `\fldinst`, `\fldrslt`, `\datafield`, `\datastore`,
	`\xe`, `\tc`, `\bkmkstart`, `\bkmkend`,
}

var generatorDestination = regexp.MustCompile(`\\\*\\generator\b`)

// PreValidateRTF fails if the content is not bracketed in `{\rtf ...}`,
// has unbalanced braces, contains a forbidden construct, or nests
// braces deeper than MaxNestingDepth.
func PreValidateRTF(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if !strings.HasPrefix(trimmed, `{\rtf`) {
		return fail("RTF input does not start with {\\rtf")
	}
	if !strings.HasSuffix(trimmed, "}") {
		return fail("RTF input does not end with }")
	}

	for _, c := range forbiddenConstructs {
		if containsControlWord(trimmed, c) {
			return failForbidden("input contains a forbidden RTF construct")
		}
	}
	if generatorDestination.MatchString(trimmed) {
		return failForbidden("input contains a forbidden RTF construct")
	}

	depth := 0
	maxDepth := 0
	opens, closes := 0, 0
	for i := 0; i < len(trimmed); i++ {
		c := trimmed[i]
		if c == '\\' {
			i++ // skip the escaped character, including a brace
			continue
		}
		switch c {
		case '{':
			opens++
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case '}':
			closes++
			depth--
		}
	}
	if opens != closes {
		return fail("unbalanced braces: %d open, %d close", opens, closes)
	}
	if maxDepth > MaxNestingDepth {
		return fail("brace nesting depth %d exceeds maximum %d", maxDepth, MaxNestingDepth)
	}
	return nil
}

// containsControlWord reports whether word occurs in s as a control
// word boundary (not as a prefix of a longer word — \object must not
// match inside \objectx, say), matching how the lexer itself
// terminates control-word scanning.
func containsControlWord(s, word string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], word)
		if i < 0 {
			return false
		}
		pos := idx + i
		end := pos + len(word)
		if end >= len(s) || !isControlWordChar(s[end]) {
			return true
		}
		idx = pos + 1
	}
}

func isControlWordChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

var markdownThreatPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script[\s>]`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)vbscript:`),
	regexp.MustCompile(`(?i)on(load|error|click|mouseover)\s*=`),
	regexp.MustCompile(`(?i)file://`),
}

var base64DataURI = regexp.MustCompile(`(?i)data:[^,]*base64`)

// PreValidateMarkdown fails on XSS-style patterns, data: URIs carrying
// base64 payloads, and file:// URIs, per spec §4.1.
func PreValidateMarkdown(data []byte) error {
	s := string(data)
	for _, p := range markdownThreatPatterns {
		if p.MatchString(s) {
			return failForbidden("input matches a disallowed pattern")
		}
	}
	if base64DataURI.MatchString(s) {
		return failForbidden("input contains a data: URI with base64 payload")
	}
	return nil
}

var numberStringPattern = regexp.MustCompile(`^-?[0-9]{1,10}$`)

// ValidateNumberString ensures text is an optional leading '-'
// followed by 1 to 10 ASCII digits, the shape the lexer requires
// before any decimal parse to prevent overflow attempts.
func ValidateNumberString(text string) error {
	if !numberStringPattern.MatchString(text) {
		return fail("%q is not a valid bounded integer literal", text)
	}
	return nil
}
