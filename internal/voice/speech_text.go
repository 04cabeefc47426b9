package voice

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	speakURLPattern      = regexp.MustCompile(`https?://\S+`)
	speakCodeFence       = regexp.MustCompile("(?s)```.*?```")
	speakInlineCode      = regexp.MustCompile("`[^`]*`")
	speakMarkdownLink    = regexp.MustCompile(`\[([^\]]*)\]\(([^)]*)\)`)
	speakTranscriptLabel = regexp.MustCompile(`^\s*\[(?i:you|user)\]:\s*`)
	speakStageDirection  = regexp.MustCompile(`\*[^*\n]{1,80}\*`)
)

var speakMarkup = strings.NewReplacer(
	"*", " ",
	"_", " ",
	"\\", " ",
	"|", " ",
	"#", " ",
	"~", " ",
	"<", " ",
	">", " ",
)

// speakableText is the form of a segment handed to the synthesizer. The
// segment text itself is kept untouched for the transcript.
//
// Transcript labels the model sometimes echoes back ("[You]:") are dropped, as
// are markdown, links, code and emoji. Roleplay stage directions like
// "*sighs*" are kept as plain words so the voice can act them.
func speakableText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	raw = speakTranscriptLabel.ReplaceAllString(raw, "")
	raw = speakCodeFence.ReplaceAllString(raw, " ")
	raw = speakInlineCode.ReplaceAllString(raw, " ")
	raw = speakMarkdownLink.ReplaceAllString(raw, "$1")
	raw = speakURLPattern.ReplaceAllString(raw, " ")
	raw = speakStageDirection.ReplaceAllStringFunc(raw, func(m string) string {
		return "(" + strings.TrimSpace(strings.Trim(m, "*")) + ")"
	})
	raw = speakMarkup.Replace(raw)

	var b strings.Builder
	b.Grow(len(raw))
	prevSpace := true
	for _, r := range raw {
		switch {
		case r == '\u200d' || r == '\ufe0f' || r == '\u20e3':
			continue
		case unicode.IsSpace(r):
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsControl(r):
			continue
		case unicode.In(r, unicode.So, unicode.Sm, unicode.Sk):
			continue
		case isSpeakablePunct(r):
			b.WriteRune(r)
			prevSpace = false
		case unicode.IsPunct(r):
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		default:
			b.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}

func isSpeakablePunct(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ':', ';', '\'', '"', '-', '(', ')', '/':
		return true
	default:
		return false
	}
}
