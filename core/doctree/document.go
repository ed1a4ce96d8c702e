package doctree

// Metadata carries document-level information that has no place inside
// the content tree: the RTF font/color tables, the assumed charset, and
// optional title/author pulled from an \info group.
type Metadata struct {
	DefaultFont string
	Charset     string
	Fonts       []Font
	Colors      []Color
	Title       string
	Author      string
}

// Font is one entry of an RTF font table.
type Font struct {
	ID     int
	Name   string
	Family string
}

// Color is one entry of an RTF color table.
type Color struct {
	ID         int
	Red        uint8
	Green      uint8
	Blue       uint8
}

// Document is the root of the intermediate tree: metadata plus an
// ordered sequence of top-level content nodes.
type Document struct {
	Metadata Metadata
	Content  []Node
}

// New returns an empty document with sane defaults.
func New() *Document {
	return &Document{
		Metadata: Metadata{
			DefaultFont: "Arial",
			Charset:     "ansi",
		},
	}
}

// NodeCount returns the total number of nodes in the document, used to
// enforce the node-count ceiling (spec invariant 5).
func NodeCount(d *Document) int {
	count := 0
	for _, n := range d.Content {
		Walk(n, func(Node) bool { count++; return true })
	}
	return count
}

// Depth returns the maximum transitive nesting depth of the document's
// content, used to enforce the nesting-depth ceiling (spec invariant 4).
// A bare top-level node has depth 1.
func Depth(d *Document) int {
	max := 0
	for _, n := range d.Content {
		if dep := nodeDepth(n); dep > max {
			max = dep
		}
	}
	return max
}

func nodeDepth(n Node) int {
	best := 0
	for _, c := range n.Children {
		if dep := nodeDepth(c); dep > best {
			best = dep
		}
	}
	for _, row := range n.Rows {
		for _, cell := range row.Cells {
			for _, c := range cell.Content {
				if dep := nodeDepth(c); dep > best {
					best = dep
				}
			}
		}
	}
	return best + 1
}

// TextBytes returns the cumulative byte length of every text run in the
// document, used to enforce the per-document text ceiling (spec
// invariant 6).
func TextBytes(d *Document) int {
	total := 0
	for _, n := range d.Content {
		Walk(n, func(cur Node) bool {
			if cur.Kind == KindText {
				total += len(cur.Text)
			}
			return true
		})
	}
	return total
}
