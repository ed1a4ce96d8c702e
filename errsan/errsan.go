// Package errsan is the error sanitizer spec §7 describes: it
// classifies internal errors into the wire taxonomy of §6, attaches a
// correlation ID, and logs the unsanitized reason — so only a generic
// code, a friendly message, and the ID ever cross the external
// boundary. No path, offset, or stack trace travels with a WireError.
//
// The Recent ring buffer is a supplement beyond the distilled spec:
// the original implementation's secure_error_handling.rs kept a
// similar bounded history of recent failures for operator triage;
// this package gives that the same home, correlated by the same ID the
// caller already has. Its entries hold the unsanitized reason and stay
// in-process: no WireError carries them.
package errsan

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/legacybridge/rtfmd/core/doctree"
	"github.com/legacybridge/rtfmd/pool"
	"github.com/legacybridge/rtfmd/resource"
	"github.com/legacybridge/rtfmd/rtf/lexer"
	"github.com/legacybridge/rtfmd/rtf/parser"
	"github.com/legacybridge/rtfmd/serialize/rtfgen"
	"github.com/legacybridge/rtfmd/validate/prevalidate"
)

// Code is the wire-visible error taxonomy of spec §6.
type Code int

const (
	Success          Code = 0
	InvalidInput     Code = 1001
	ConversionFailed Code = 1002
	ResourceLimit    Code = 1003
	Timeout          Code = 1004
	AccessDenied     Code = 1005
	NotSupported     Code = 1006
	InternalError    Code = 1007
)

func (c Code) String() string {
	switch c {
	case Success:
		return "Success"
	case InvalidInput:
		return "InvalidInput"
	case ConversionFailed:
		return "ConversionFailed"
	case ResourceLimit:
		return "ResourceLimit"
	case Timeout:
		return "Timeout"
	case AccessDenied:
		return "AccessDenied"
	case NotSupported:
		return "NotSupported"
	case InternalError:
		return "InternalError"
	default:
		return "Unknown"
	}
}

// Kind is the internal error-kind taxonomy of spec §7, used to decide
// both the wire Code and the log message's framing.
type Kind string

const (
	KindValidation    Kind = "Validation"
	KindLex           Kind = "Lex"
	KindParse         Kind = "Parse"
	KindGeneration    Kind = "Generation"
	KindIO            Kind = "Io"
	KindResourceLimit Kind = "ResourceLimit"
	KindTimeout       Kind = "Timeout"
	KindInternal      Kind = "Internal"
	KindForbidden     Kind = "Forbidden"
)

// WireError is what crosses the external boundary: spec §7 forbids
// leaking paths, offsets, or stack traces here.
type WireError struct {
	Code    Code
	Message string
	ID      string
}

func (e *WireError) Error() string {
	return e.Message + " (id=" + e.ID + ")"
}

// Entry is one record in the Recent ring buffer.
type Entry struct {
	ID     string
	Kind   Kind
	Reason string
	Time   time.Time
}

// Sanitizer converts internal errors to WireErrors, logging the
// unsanitized detail at the moment of conversion.
type Sanitizer struct {
	logger   hclog.Logger
	mu       sync.Mutex
	recent   []Entry
	capacity int
}

// NewSanitizer returns a Sanitizer that logs through logger (a
// hclog.NewNullLogger() is fine for tests) and retains up to capacity
// recent entries for Recent().
func NewSanitizer(logger hclog.Logger, capacity int) *Sanitizer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if capacity <= 0 {
		capacity = 100
	}
	return &Sanitizer{logger: logger, capacity: capacity}
}

// Sanitize classifies err, logs its unsanitized reason under a fresh
// correlation ID, and returns the WireError safe to return to a caller.
func (s *Sanitizer) Sanitize(err error) *WireError {
	kind := Classify(err)
	reason := err.Error()
	id := uuid.NewString()

	s.logger.Error("conversion failed", "id", id, "kind", string(kind), "reason", reason)
	s.record(Entry{ID: id, Kind: kind, Reason: reason, Time: time.Now()})

	return &WireError{
		Code:    codeForKind(kind),
		Message: friendlyMessage(kind),
		ID:      id,
	}
}

func (s *Sanitizer) record(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent, e)
	if len(s.recent) > s.capacity {
		s.recent = s.recent[len(s.recent)-s.capacity:]
	}
}

// Recent returns a snapshot of the most recently sanitized errors,
// newest last. Each Entry holds the original, unsanitized reason text
// as logged by Sanitize — this exists for in-process operator triage
// correlated by ID; the wire response never carries it.
func (s *Sanitizer) Recent() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.recent))
	copy(out, s.recent)
	return out
}

func codeForKind(k Kind) Code {
	switch k {
	case KindValidation:
		return InvalidInput
	case KindLex, KindParse, KindGeneration:
		return ConversionFailed
	case KindResourceLimit:
		return ResourceLimit
	case KindTimeout:
		return Timeout
	case KindIO:
		return AccessDenied
	case KindForbidden:
		return ConversionFailed
	default:
		return InternalError
	}
}

func friendlyMessage(k Kind) string {
	switch k {
	case KindValidation:
		return "the input failed validation"
	case KindLex, KindParse:
		return "the input could not be parsed"
	case KindGeneration:
		return "the document could not be serialized"
	case KindResourceLimit:
		return "the input exceeded a configured resource limit"
	case KindTimeout:
		return "the operation timed out"
	case KindIO:
		return "the requested path could not be accessed"
	case KindForbidden:
		return "the input contains a forbidden or disallowed construct"
	default:
		return "an internal error occurred"
	}
}

// Classify maps an error from any component in this module to its
// spec §7 internal kind. Unrecognized error types are treated as
// Internal rather than guessed at.
func Classify(err error) Kind {
	switch e := err.(type) {
	case *prevalidate.Error:
		if e.Forbidden {
			return KindForbidden
		}
		return KindValidation
	case *lexer.LexError:
		return KindLex
	case *parser.ParseError:
		if e.Kind == parser.ForbiddenControlWord {
			return KindForbidden
		}
		return KindParse
	case *doctree.LimitError:
		return KindResourceLimit
	case *resource.ErrLimitExceeded:
		return KindResourceLimit
	case *rtfgen.Error:
		return KindGeneration
	}
	switch err {
	case pool.ErrQueueFull, pool.ErrSystemOverloaded:
		return KindResourceLimit
	case pool.ErrShutdown:
		return KindIO
	}
	return KindInternal
}
