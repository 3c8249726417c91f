// Package message recovers the structure embedded in assistant chat messages
// and question texts: JSON payload blocks such as <QUESTIONS>...</QUESTIONS>,
// and inline <SPECIAL_TAG type="latex">...</SPECIAL_TAG> math spans.
//
// All functions are pure. Compiled patterns are read-only after construction,
// so parsers may be shared between goroutines.
package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/pavelanni/examhell/internal/model"
)

// QuestionsTag is the block tag the assistant uses for generated questions.
const QuestionsTag = "QUESTIONS"

var (
	// ErrMalformedPayload means a block's content is not valid JSON for the payload type.
	ErrMalformedPayload = errors.New("malformed block payload")
	// ErrInvalidPayload means a block decoded but failed structural validation.
	ErrInvalidPayload = errors.New("invalid block payload")
)

// SegmentKind distinguishes plain text from decoded block payloads.
type SegmentKind string

const (
	SegmentText SegmentKind = "text"
	SegmentTag  SegmentKind = "tag"
)

// Segment is one unit of a parsed message. Text is set for SegmentText,
// Payload for SegmentTag.
type Segment[T any] struct {
	Kind    SegmentKind `json:"kind"`
	Text    string      `json:"text,omitempty"`
	Payload T           `json:"payload,omitempty"`
}

// TextSegment returns a text segment.
func TextSegment[T any](text string) Segment[T] {
	return Segment[T]{Kind: SegmentText, Text: text}
}

// TagSegment returns a tag segment carrying payload.
func TagSegment[T any](payload T) Segment[T] {
	return Segment[T]{Kind: SegmentTag, Payload: payload}
}

// validator is implemented by payload types that can check their own shape.
type validator interface {
	Validate() error
}

// BlockParser splits messages on one <TAG>...</TAG> delimiter pair and
// decodes each block's content as JSON into T.
//
// Blocks must not nest. A nested closing marker ends the outer block early,
// which in practice surfaces as ErrMalformedPayload.
type BlockParser[T any] struct {
	open  string
	block *regexp.Regexp
	inner *regexp.Regexp
}

// NewBlockParser compiles the patterns for tag. It panics if tag is not a
// plain tag name.
func NewBlockParser[T any](tag string) *BlockParser[T] {
	if tag == "" || strings.ContainsAny(tag, "<>/ \t\n") {
		panic(fmt.Sprintf("message: invalid block tag %q", tag))
	}
	open := "<" + tag + ">"
	closing := "</" + tag + ">"
	q := regexp.QuoteMeta
	return &BlockParser[T]{
		open:  open,
		block: regexp.MustCompile(`(?s)` + q(open) + `.*?` + q(closing)),
		inner: regexp.MustCompile(`(?s)\A` + q(open) + `(.*?)` + q(closing) + `\z`),
	}
}

// Parse returns the text and tag segments of msg in left-to-right order.
// Whitespace-only text between blocks is dropped and remaining text is trimmed.
// A piece that starts with the opening marker but is not a complete block
// (an unterminated block) is skipped.
//
// If any block fails to decode or validate, Parse returns no segments and an
// error wrapping ErrMalformedPayload or ErrInvalidPayload.
func (p *BlockParser[T]) Parse(msg string) ([]Segment[T], error) {
	var segments []Segment[T]
	block := 0
	for _, piece := range p.split(msg) {
		if strings.HasPrefix(piece, p.open) {
			m := p.inner.FindStringSubmatch(piece)
			if m == nil {
				continue
			}
			payload, err := p.decode(m[1])
			if err != nil {
				return nil, fmt.Errorf("block %d: %w", block, err)
			}
			block++
			segments = append(segments, TagSegment(payload))
			continue
		}
		if text := strings.TrimSpace(piece); text != "" {
			segments = append(segments, TextSegment[T](text))
		}
	}
	return segments, nil
}

// split cuts msg into pieces alternating between the text around blocks and
// the full blocks themselves. Empty pieces are kept so that the pieces
// always concatenate back to msg.
func (p *BlockParser[T]) split(msg string) []string {
	locs := p.block.FindAllStringIndex(msg, -1)
	pieces := make([]string, 0, 2*len(locs)+1)
	cursor := 0
	for _, loc := range locs {
		pieces = append(pieces, msg[cursor:loc[0]], msg[loc[0]:loc[1]])
		cursor = loc[1]
	}
	return append(pieces, msg[cursor:])
}

func (p *BlockParser[T]) decode(raw string) (T, error) {
	var payload T
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if v, ok := any(payload).(validator); ok {
		if err := v.Validate(); err != nil {
			return payload, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
	}
	return payload, nil
}

var questionsParser = NewBlockParser[model.QuestionBatch](QuestionsTag)

// ParseMessage splits an assistant message into prose and <QUESTIONS> batches.
func ParseMessage(msg string) ([]Segment[model.QuestionBatch], error) {
	return questionsParser.Parse(msg)
}

// Questions collects the questions of every tag segment in order.
func Questions(segments []Segment[model.QuestionBatch]) []model.GeneratedQuestion {
	var out []model.GeneratedQuestion
	for _, s := range segments {
		if s.Kind == SegmentTag {
			out = append(out, s.Payload...)
		}
	}
	return out
}

// FormatQuestions renders batch as a <QUESTIONS> block that ParseMessage accepts.
// The JSON is HTML-escaped, so no question text can close the block early.
func FormatQuestions(batch model.QuestionBatch) (string, error) {
	data, err := json.Marshal(batch)
	if err != nil {
		return "", fmt.Errorf("marshal questions: %w", err)
	}
	return "<" + QuestionsTag + ">" + string(data) + "</" + QuestionsTag + ">", nil
}
