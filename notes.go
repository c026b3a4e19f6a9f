package exiletree

import "strings"

// NoteSpan is a run of note text with one display color. Color is a
// six-digit lowercase hex string without the leading '#'; the zero value
// means "default text color".
type NoteSpan struct {
	Text  string
	Color string
}

// presetNoteColors maps the single-digit color escapes to their hex values.
var presetNoteColors = [...]string{
	"000000", // ^0 black
	"ff0000", // ^1 red
	"00ff00", // ^2 green
	"0000ff", // ^3 blue
	"ffff00", // ^4 yellow
	"ff00ff", // ^5 magenta
	"00ffff", // ^6 cyan
	"ffffff", // ^7 white
	"808080", // ^8 gray
	"c0c0c0", // ^9 silver
}

// ParseNoteSpans translates a raw notes blob into colored spans for the
// host UI. Inline escapes are "^x" followed by six hex digits, or "^"
// followed by a single preset digit. Malformed escapes pass through as
// literal text. The decoder itself never touches the raw notes; this is
// the separate translation step.
func ParseNoteSpans(raw string) []NoteSpan {
	if raw == "" {
		return nil
	}

	var spans []NoteSpan
	var buf strings.Builder
	color := ""

	flush := func() {
		if buf.Len() > 0 {
			spans = append(spans, NoteSpan{Text: buf.String(), Color: color})
			buf.Reset()
		}
	}

	for i := 0; i < len(raw); {
		if raw[i] != '^' {
			buf.WriteByte(raw[i])
			i++
			continue
		}
		// "^x" + 6 hex digits
		if i+7 < len(raw) && (raw[i+1] == 'x' || raw[i+1] == 'X') && isHex(raw[i+2:i+8]) {
			flush()
			color = strings.ToLower(raw[i+2 : i+8])
			i += 8
			continue
		}
		// "^" + preset digit
		if i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '9' {
			flush()
			color = presetNoteColors[raw[i+1]-'0']
			i += 2
			continue
		}
		buf.WriteByte(raw[i])
		i++
	}
	flush()
	return spans
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
