package message

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pavelanni/examhell/internal/model"
)

var intsParser = NewBlockParser[[]int](QuestionsTag)

func TestParse_NoDelimiters(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Segment[[]int]
	}{
		{"empty", "", nil},
		{"blank", " \n\t ", nil},
		{"plain", "Hello there", []Segment[[]int]{TextSegment[[]int]("Hello there")}},
		{"trimmed", "\n  Hello there \n", []Segment[[]int]{TextSegment[[]int]("Hello there")}},
		{"other tags untouched", "<b>bold</b>", []Segment[[]int]{TextSegment[[]int]("<b>bold</b>")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := intsParser.Parse(tt.input)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParse_TagOnly(t *testing.T) {
	got, err := intsParser.Parse("<QUESTIONS>[1,2,3]</QUESTIONS>")
	require.NoError(t, err)
	require.Equal(t, []Segment[[]int]{TagSegment([]int{1, 2, 3})}, got)
}

func TestParse_MixedOrder(t *testing.T) {
	got, err := intsParser.Parse("Hello <QUESTIONS>[1]</QUESTIONS> World")
	require.NoError(t, err)
	require.Equal(t, []Segment[[]int]{
		TextSegment[[]int]("Hello"),
		TagSegment([]int{1}),
		TextSegment[[]int]("World"),
	}, got)
}

func TestParse_MultipleBlocks(t *testing.T) {
	input := "<QUESTIONS>[1]</QUESTIONS>\n\n<QUESTIONS>\n[2, 3]\n</QUESTIONS> tail <QUESTIONS>[]</QUESTIONS>"
	got, err := intsParser.Parse(input)
	require.NoError(t, err)
	require.Equal(t, []Segment[[]int]{
		TagSegment([]int{1}),
		TagSegment([]int{2, 3}),
		TextSegment[[]int]("tail"),
		TagSegment([]int{}),
	}, got)
}

func TestParse_MalformedPayload(t *testing.T) {
	for _, input := range []string{
		"<QUESTIONS>not json</QUESTIONS>",
		"<QUESTIONS></QUESTIONS>",
		"ok <QUESTIONS>[1]</QUESTIONS> then <QUESTIONS>[1,</QUESTIONS>",
		`<QUESTIONS>{"a":1}</QUESTIONS>`,
	} {
		t.Run(input, func(t *testing.T) {
			got, err := intsParser.Parse(input)
			require.Error(t, err)
			require.ErrorIs(t, err, ErrMalformedPayload)
			require.Nil(t, got)
		})
	}
}

func TestParse_ErrorNamesBlock(t *testing.T) {
	_, err := intsParser.Parse("<QUESTIONS>[1]</QUESTIONS><QUESTIONS>x</QUESTIONS>")
	require.ErrorIs(t, err, ErrMalformedPayload)
	require.Contains(t, err.Error(), "block 1")
}

func TestParse_UnterminatedBlockIsSkipped(t *testing.T) {
	got, err := intsParser.Parse("intro <QUESTIONS>[1, 2")
	require.NoError(t, err)
	require.Equal(t, []Segment[[]int]{TextSegment[[]int]("intro")}, got)

	got, err = intsParser.Parse("<QUESTIONS>[1, 2")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestParse_NestedBlocksEndEarly(t *testing.T) {
	_, err := intsParser.Parse("<QUESTIONS>[<QUESTIONS>[1]</QUESTIONS>]</QUESTIONS>")
	require.ErrorIs(t, err, ErrMalformedPayload)
}

func TestNewBlockParser_InvalidTag(t *testing.T) {
	for _, tag := range []string{"", "A B", "<A>", "a/b"} {
		require.Panics(t, func() { NewBlockParser[[]int](tag) }, tag)
	}
}

func TestParseMessage_Questions(t *testing.T) {
	input := `Here are two questions:
<QUESTIONS>[
  {"text": "Solve <SPECIAL_TAG type=\"latex\">x^2 = 4</SPECIAL_TAG>", "difficulty": "easy", "max_points": 5},
  {"text": "Name a prime", "options": ["4", "7"], "answer": "7"}
]</QUESTIONS>
Let me know if you want more.`

	got, err := ParseMessage(input)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, SegmentText, got[0].Kind)
	require.Equal(t, "Here are two questions:", got[0].Text)
	require.Equal(t, SegmentTag, got[1].Kind)
	require.Len(t, got[1].Payload, 2)
	require.Equal(t, model.DifficultyEasy, got[1].Payload[0].Difficulty)
	require.Equal(t, []string{"4", "7"}, got[1].Payload[1].Options)
	require.Equal(t, "Let me know if you want more.", got[2].Text)

	qs := Questions(got)
	require.Len(t, qs, 2)
	require.Equal(t, "Name a prime", qs[1].Text)
}

func TestParseMessage_InvalidPayload(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty batch", "<QUESTIONS>[]</QUESTIONS>"},
		{"missing text", `<QUESTIONS>[{"difficulty": "easy"}]</QUESTIONS>`},
		{"blank text", `<QUESTIONS>[{"text": "   "}]</QUESTIONS>`},
		{"bad difficulty", `<QUESTIONS>[{"text": "q", "difficulty": "brutal"}]</QUESTIONS>`},
		{"points out of range", `<QUESTIONS>[{"text": "q", "max_points": 1000}]</QUESTIONS>`},
		{"blank option", `<QUESTIONS>[{"text": "q", "options": ["a", ""]}]</QUESTIONS>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMessage(tt.input)
			require.ErrorIs(t, err, ErrInvalidPayload)
			require.False(t, errors.Is(err, ErrMalformedPayload))
			require.Nil(t, got)
		})
	}
}

func TestParseMessage_WrongShapeIsMalformed(t *testing.T) {
	_, err := ParseMessage(`<QUESTIONS>{"text": "not an array"}</QUESTIONS>`)
	require.ErrorIs(t, err, ErrMalformedPayload)
}

func TestFormatQuestions_RoundTrip(t *testing.T) {
	batch := model.QuestionBatch{
		{Text: "What is <SPECIAL_TAG type=\"latex\">\\pi</SPECIAL_TAG>?", Difficulty: model.DifficultyHard, MaxPoints: 3},
		{Text: "Pick one", Options: []string{"a", "b"}, Answer: "b"},
	}
	block, err := FormatQuestions(batch)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(block, "<QUESTIONS>"))
	require.True(t, strings.HasSuffix(block, "</QUESTIONS>"))

	got, err := ParseMessage("before " + block + " after")
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, batch, got[1].Payload)
}
