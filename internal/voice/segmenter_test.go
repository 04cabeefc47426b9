package voice

import (
	"strings"
	"testing"
)

func feedAll(s *Segmenter, deltas ...string) []Segment {
	var out []Segment
	for _, d := range deltas {
		out = append(out, s.Feed(d)...)
	}
	return append(out, s.Finish())
}

func joinTexts(segs []Segment) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteString(s.Text)
	}
	return b.String()
}

func TestSegmenterSplitsOnNewlines(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "no newline", input: "Hello", want: []string{"Hello"}},
		{name: "two lines", input: "Hello\nWorld", want: []string{"Hello\n", "World"}},
		{name: "trailing newline", input: "a\nb\n", want: []string{"a\n", "b\n", ""}},
		{name: "k separated newlines", input: "a\nb\nc\nd", want: []string{"a\n", "b\n", "c\n", "d"}},
		{name: "blank line suppressed", input: "a\n\nb", want: []string{"a\n", "b"}},
		{name: "leading blank lines", input: "\n\nHi", want: []string{"Hi"}},
		{name: "lone newline", input: "\n", want: []string{""}},
		{name: "empty", input: "", want: []string{""}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := feedAll(NewSegmenter(), tc.input)
			if len(got) != len(tc.want) {
				t.Fatalf("segments = %+v, want texts %q", got, tc.want)
			}
			for i, seg := range got {
				if seg.Index != i {
					t.Fatalf("segment %d Index = %d", i, seg.Index)
				}
				if seg.Text != tc.want[i] {
					t.Fatalf("segment %d Text = %q, want %q", i, seg.Text, tc.want[i])
				}
			}
		})
	}
}

func TestSegmenterIsIndependentOfDeltaBoundaries(t *testing.T) {
	reply := "Hmph.\nIt's not like I wanted to help.\nBaka!"
	whole := feedAll(NewSegmenter(), reply)

	s := NewSegmenter()
	var perRune []Segment
	for _, r := range reply {
		perRune = append(perRune, s.Feed(string(r))...)
	}
	perRune = append(perRune, s.Finish())

	if len(whole) != len(perRune) {
		t.Fatalf("segment count differs: %d vs %d", len(whole), len(perRune))
	}
	for i := range whole {
		if whole[i] != perRune[i] {
			t.Fatalf("segment %d: %+v vs %+v", i, whole[i], perRune[i])
		}
	}
	if got := joinTexts(whole); got != reply {
		t.Fatalf("concatenation = %q, want %q", got, reply)
	}
	if s.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", s.Count())
	}
}

func TestSegmenterLoneNewlineFixture(t *testing.T) {
	s := NewSegmenter()
	if got := s.Feed("\n"); len(got) != 0 {
		t.Fatalf("Feed(\"\\n\") = %+v, want no segments", got)
	}
	last := s.Finish()
	if last.Index != 0 || last.Text != "" {
		t.Fatalf("Finish() = %+v, want {0 \"\"}", last)
	}
}

func TestSegmenterKeepsInvalidUTF8Bytes(t *testing.T) {
	input := "a\xffb\nc"
	got := feedAll(NewSegmenter(), input)
	if joinTexts(got) != input {
		t.Fatalf("concatenation = %q, want %q", joinTexts(got), input)
	}
}
