package message

import (
	"regexp"
	"strings"
)

// SpanKind distinguishes plain question text from inline math.
type SpanKind string

const (
	SpanText  SpanKind = "text"
	SpanLatex SpanKind = "latex"
)

// Span is one unit of a split question.
type Span struct {
	Kind    SpanKind `json:"kind"`
	Content string   `json:"content"`
}

// The type attribute is matched but not interpreted: every match is a latex span.
var specialTagPattern = regexp.MustCompile(`(?s)<SPECIAL_TAG type="[^"]*">(.*?)</SPECIAL_TAG>`)

// SplitQuestion splits question text around <SPECIAL_TAG type="..."> spans.
// Latex content is returned verbatim. Text between two adjacent tags is not
// emitted, and an unterminated tag is left in the surrounding text.
func SplitQuestion(question string) []Span {
	var spans []Span
	cursor := 0
	for _, m := range specialTagPattern.FindAllStringSubmatchIndex(question, -1) {
		start, end := m[0], m[1]
		if start > cursor {
			spans = append(spans, Span{Kind: SpanText, Content: question[cursor:start]})
		}
		spans = append(spans, Span{Kind: SpanLatex, Content: question[m[2]:m[3]]})
		cursor = end
	}
	if cursor < len(question) {
		spans = append(spans, Span{Kind: SpanText, Content: question[cursor:]})
	}
	return spans
}

// PlainText returns question with the inline delimiters removed.
func PlainText(question string) string {
	var sb strings.Builder
	for _, s := range SplitQuestion(question) {
		sb.WriteString(s.Content)
	}
	return sb.String()
}

// HasMath reports whether question contains at least one inline span.
func HasMath(question string) bool {
	return specialTagPattern.MatchString(question)
}
