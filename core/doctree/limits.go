package doctree

import "fmt"

// Limits bounds the shape of a document tree. Defaults match spec §3
// and §6.
type Limits struct {
	MaxDepth        int // default 50
	MaxNodes        int // default 100_000
	MaxTextPerRun   int // default 10 MiB
	MaxTextTotal    int // default 100 MiB
}

// DefaultLimits returns the spec's default ceilings.
func DefaultLimits() Limits {
	return Limits{
		MaxDepth:      50,
		MaxNodes:      100_000,
		MaxTextPerRun: 10 * 1024 * 1024,
		MaxTextTotal:  100 * 1024 * 1024,
	}
}

// LimitError reports which ceiling a document breached.
type LimitError struct {
	Reason string
}

func (e *LimitError) Error() string { return e.Reason }

// CheckLimits enforces invariants 4, 5, and 6 of spec §3 against an
// already-built document. The RTF parser enforces depth/node-count
// incrementally as it builds (so it can fail fast on pathological
// input); this function is a whole-tree check that applies to any
// tree, including ones built by the Markdown parser or repaired by the
// recovery engine. The pipeline does not call it; its post-parse limit
// checks come from validate/postvalidate.
func CheckLimits(d *Document, lim Limits) error {
	if dep := Depth(d); dep > lim.MaxDepth {
		return &LimitError{Reason: fmt.Sprintf("nesting depth %d exceeds limit %d", dep, lim.MaxDepth)}
	}
	if n := NodeCount(d); n > lim.MaxNodes {
		return &LimitError{Reason: fmt.Sprintf("node count %d exceeds limit %d", n, lim.MaxNodes)}
	}
	if total := TextBytes(d); total > lim.MaxTextTotal {
		return &LimitError{Reason: fmt.Sprintf("document text %d bytes exceeds limit %d", total, lim.MaxTextTotal)}
	}
	var runErr error
	for _, n := range d.Content {
		Walk(n, func(cur Node) bool {
			if runErr != nil {
				return false
			}
			if cur.Kind == KindText && len(cur.Text) > lim.MaxTextPerRun {
				runErr = &LimitError{Reason: fmt.Sprintf("text run of %d bytes exceeds limit %d", len(cur.Text), lim.MaxTextPerRun)}
				return false
			}
			return true
		})
		if runErr != nil {
			return runErr
		}
	}
	return nil
}

// Validate enforces invariants 1-3 of spec §3 structurally: every
// Heading level is in [1,6], every Table has at least one row, and
// a Table's cell-count-per-row mismatch is reported via the warnings
// return (not an error — spec invariant 3 marks it a warning).
func Validate(d *Document) (warnings []string, err error) {
	for _, n := range d.Content {
		w, e := validateNode(n)
		warnings = append(warnings, w...)
		if e != nil {
			return warnings, e
		}
	}
	return warnings, nil
}

func validateNode(n Node) (warnings []string, err error) {
	switch n.Kind {
	case KindHeading:
		if n.Level < 1 || n.Level > 6 {
			return nil, fmt.Errorf("heading level %d out of range [1,6]", n.Level)
		}
	case KindTable:
		if len(n.Rows) == 0 {
			return nil, fmt.Errorf("table has no rows")
		}
		first := len(n.Rows[0].Cells)
		for i, row := range n.Rows {
			if len(row.Cells) != first {
				warnings = append(warnings, fmt.Sprintf("table row %d has %d cells, expected %d", i, len(row.Cells), first))
			}
			for _, cell := range row.Cells {
				for _, c := range cell.Content {
					w, e := validateNode(c)
					warnings = append(warnings, w...)
					if e != nil {
						return warnings, e
					}
				}
			}
		}
		return warnings, nil
	}
	for _, c := range n.Children {
		w, e := validateNode(c)
		warnings = append(warnings, w...)
		if e != nil {
			return warnings, e
		}
	}
	return warnings, nil
}
