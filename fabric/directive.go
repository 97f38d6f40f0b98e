package fabric

import (
	"regexp"
	"strings"
)

// DirectiveForm tells how a directive was laid out in the source text.
type DirectiveForm string

const (
	// FormInline is "DALL·E Prompt: text" on a single line.
	FormInline DirectiveForm = "inline"
	// FormNextLine is a marker line followed by the text on the next non-blank line.
	FormNextLine DirectiveForm = "next-line"
)

// Directive is an image-generation prompt found inside narrative text.
type Directive struct {
	Index int           `json:"index"` // 1-based, in document order
	Line  int           `json:"line"`  // 1-based line of the directive text
	Form  DirectiveForm `json:"form"`
	Text  string        `json:"text"`
}

// DirectiveSyntax describes how directives are marked in a text.
type DirectiveSyntax struct {
	// Inline must capture the directive text in its first group.
	Inline *regexp.Regexp
	// Words must all appear (case-insensitively, in any order) on a next-line marker.
	Words []string
}

// DefaultDirectiveSyntax recognizes "DALL·E Prompt" in its usual spellings (DALL-E, DALLE,
// Dall E), optionally wrapped in markdown emphasis.
var DefaultDirectiveSyntax = DirectiveSyntax{
	Inline: regexp.MustCompile(`(?i)dall[\s\p{P}]?e[\s\p{P}]*prompts?[^:]*:(.*)`),
	Words:  []string{"dall", "prompt"},
}

// ExtractDirectives returns the directives in text using DefaultDirectiveSyntax.
func ExtractDirectives(text string) []Directive {
	return DefaultDirectiveSyntax.Extract(text)
}

// DirectiveTexts returns only the instruction strings.
func DirectiveTexts(ds []Directive) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Text)
	}
	return out
}

// Extract scans text line by line. A line with a non-empty inline capture yields an inline
// directive; a marker line without one takes the next non-blank line, which is then skipped.
func (s DirectiveSyntax) Extract(text string) []Directive {
	out := []Directive{}
	if strings.TrimSpace(text) == "" {
		return out
	}
	lines := splitLines(text)
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if d, ok := s.inline(line); ok {
			out = append(out, Directive{Index: len(out) + 1, Line: i + 1, Form: FormInline, Text: d})
			continue
		}
		if !s.isMarker(line) {
			continue
		}
		j := nextNonBlank(lines, i+1)
		if j == -1 {
			break
		}
		// Another marker right after means this one had no text of its own.
		if s.isMarker(lines[j]) {
			continue
		}
		if d := cleanDirective(lines[j]); d != "" {
			out = append(out, Directive{Index: len(out) + 1, Line: j + 1, Form: FormNextLine, Text: d})
		}
		i = j
	}
	return out
}

func (s DirectiveSyntax) inline(line string) (string, bool) {
	if s.Inline == nil {
		return "", false
	}
	m := s.Inline.FindStringSubmatch(line)
	if len(m) < 2 {
		return "", false
	}
	d := cleanDirective(m[1])
	return d, d != ""
}

func (s DirectiveSyntax) isMarker(line string) bool {
	if len(s.Words) == 0 {
		return false
	}
	lower := strings.ToLower(line)
	for _, w := range s.Words {
		if !strings.Contains(lower, strings.ToLower(w)) {
			return false
		}
	}
	return true
}

var directiveQuotes = [][2]string{{`"`, `"`}, {`'`, `'`}, {"“", "”"}, {"‘", "’"}, {"`", "`"}}

// cleanDirective trims whitespace, markdown emphasis and one pair of wrapping quotes.
func cleanDirective(s string) string {
	s = strings.Trim(s, " \t*_")
	for _, q := range directiveQuotes {
		if len(s) >= len(q[0])+len(q[1]) && strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
			s = s[len(q[0]) : len(s)-len(q[1])]
			break
		}
	}
	return strings.TrimSpace(s)
}

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, "\r")
	}
	return lines
}

func nextNonBlank(lines []string, from int) int {
	for j := from; j < len(lines); j++ {
		if strings.TrimSpace(lines[j]) != "" {
			return j
		}
	}
	return -1
}
