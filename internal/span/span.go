// Package span defines byte-range source locations shared by every later
// compiler stage, and a file table for resolving them back to source text.
package span

import "fmt"

// Span is a half-open byte interval [Start, End) into one source file.
type Span struct {
	File  int
	Start int
	End   int
}

// Merge returns the smallest span covering both a and b. The two spans
// must belong to the same file; callers that merge across files get the
// file id of a.
func Merge(a, b Span) Span {
	start := a.Start
	if b.Start < start {
		start = b.Start
	}
	end := a.End
	if b.End > end {
		end = b.End
	}
	return Span{File: a.File, Start: start, End: end}
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d-%d", s.File, s.Start, s.End)
}

// Len reports the byte length of the span.
func (s Span) Len() int { return s.End - s.Start }

// File holds one source buffer along with the id diagnostics refer to it
// by. Line/column information is derived lazily by Position, since the
// core only ever carries byte spans (line/col rendering is the external
// driver's job, not the core's).
type File struct {
	ID      int
	Name    string
	Content []byte

	lineStarts []int // lazily computed
}

// Map is the source map: a table of files addressable by id.
type Map struct {
	files map[int]*File
	next  int
}

// NewMap creates an empty source map.
func NewMap() *Map {
	return &Map{files: make(map[int]*File)}
}

// AddFile registers source content and returns its file id.
func (m *Map) AddFile(name string, content []byte) int {
	id := m.next
	m.next++
	m.files[id] = &File{ID: id, Name: name, Content: content}
	return id
}

// File looks up a previously registered file by id.
func (m *Map) File(id int) (*File, bool) {
	f, ok := m.files[id]
	return f, ok
}

// Text returns the source bytes covered by a span, or nil if the span's
// file is unknown to this map.
func (m *Map) Text(s Span) []byte {
	f, ok := m.files[s.File]
	if !ok {
		return nil
	}
	if s.Start < 0 || s.End > len(f.Content) || s.Start > s.End {
		return nil
	}
	return f.Content[s.Start:s.End]
}

// Position converts a byte offset within a file to a 1-based line/column
// pair, computing and caching line-start offsets on first use.
func (f *File) Position(offset int) (line, col int) {
	if f.lineStarts == nil {
		f.lineStarts = []int{0}
		for i, b := range f.Content {
			if b == '\n' {
				f.lineStarts = append(f.lineStarts, i+1)
			}
		}
	}
	// binary search for the last line start <= offset
	lo, hi := 0, len(f.lineStarts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if f.lineStarts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1, offset - f.lineStarts[lo] + 1
}
