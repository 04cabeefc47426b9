package voice

import "strings"

// Segment is one newline-terminated piece of the reply, or the final remainder.
type Segment struct {
	Index int
	Text  string
}

// Segmenter splits streamed text into segments at newline boundaries.
// A buffer holding only "\n" is dropped instead of emitted, so blank lines
// never produce segments. It is not safe for concurrent use.
type Segmenter struct {
	buf  strings.Builder
	next int
}

func NewSegmenter() *Segmenter {
	return &Segmenter{}
}

// Feed appends delta and returns every segment completed by it, in order.
func (s *Segmenter) Feed(delta string) []Segment {
	var out []Segment
	for delta != "" {
		i := strings.IndexByte(delta, '\n')
		if i < 0 {
			s.buf.WriteString(delta)
			break
		}
		s.buf.WriteString(delta[:i+1])
		delta = delta[i+1:]
		if s.buf.Len() == 1 {
			s.buf.Reset()
			continue
		}
		out = append(out, s.emit())
	}
	return out
}

// Finish emits whatever is buffered as the last segment, even if empty.
func (s *Segmenter) Finish() Segment {
	return s.emit()
}

// Count is the number of segments emitted so far.
func (s *Segmenter) Count() int {
	return s.next
}

func (s *Segmenter) emit() Segment {
	seg := Segment{Index: s.next, Text: s.buf.String()}
	s.buf.Reset()
	s.next++
	return seg
}
