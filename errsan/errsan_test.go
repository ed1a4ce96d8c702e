package errsan_test

import (
	"strings"
	"testing"

	"github.com/legacybridge/rtfmd/errsan"
	"github.com/legacybridge/rtfmd/rtf/lexer"
	"github.com/legacybridge/rtfmd/rtf/parser"
)

func TestClassifyLexError(t *testing.T) {
	err := &lexer.LexError{Reason: "control word too long", Offset: 12}
	if got := errsan.Classify(err); got != errsan.KindLex {
		t.Fatalf("got %v, want KindLex", got)
	}
}

func TestClassifyParseError(t *testing.T) {
	err := &parser.ParseError{Kind: parser.UnmatchedGroup, Reason: "unmatched"}
	if got := errsan.Classify(err); got != errsan.KindParse {
		t.Fatalf("got %v, want KindParse", got)
	}
}

func TestClassifyForbiddenControlWord(t *testing.T) {
	err := &parser.ParseError{Kind: parser.ForbiddenControlWord, Reason: "forbidden"}
	if got := errsan.Classify(err); got != errsan.KindForbidden {
		t.Fatalf("got %v, want KindForbidden", got)
	}
}

func TestSanitizeNeverLeaksReason(t *testing.T) {
	s := errsan.NewSanitizer(nil, 10)
	err := &parser.ParseError{Kind: parser.ForbiddenControlWord, Reason: "contains \\objdata secret offset 42"}
	wire := s.Sanitize(err)

	if wire.Code != errsan.ConversionFailed {
		t.Fatalf("got code %v, want ConversionFailed", wire.Code)
	}
	if strings.Contains(wire.Message, "objdata") || strings.Contains(wire.Message, "42") {
		t.Fatalf("wire message leaked internal detail: %q", wire.Message)
	}
	if wire.ID == "" {
		t.Fatal("expected a non-empty correlation ID")
	}
}

func TestRecentTracksSanitizedErrors(t *testing.T) {
	s := errsan.NewSanitizer(nil, 2)
	s.Sanitize(&lexer.LexError{Reason: "a"})
	s.Sanitize(&lexer.LexError{Reason: "b"})
	s.Sanitize(&lexer.LexError{Reason: "c"})

	recent := s.Recent()
	if len(recent) != 2 {
		t.Fatalf("want capacity-bounded length 2, got %d", len(recent))
	}
	if recent[len(recent)-1].Reason != "c" {
		t.Fatalf("expected newest entry last, got %+v", recent)
	}
}

func TestWireErrorStringIncludesID(t *testing.T) {
	s := errsan.NewSanitizer(nil, 1)
	wire := s.Sanitize(&lexer.LexError{Reason: "x"})
	if !strings.Contains(wire.Error(), wire.ID) {
		t.Fatalf("Error() should include the correlation ID: %q", wire.Error())
	}
}
