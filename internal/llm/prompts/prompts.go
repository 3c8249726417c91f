package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/examhell/internal/message"
	"github.com/pavelanni/examhell/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

// maxUserRunes bounds a single user turn sent to the model.
const maxUserRunes = 10000

var (
	questionsTagRegex       = regexp.MustCompile(`(?i)</?\s*questions\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

var (
	loadOnce       sync.Once
	loadErr        error
	systemTemplate *template.Template
)

// SystemData holds template data for the assistant system prompt.
type SystemData struct {
	Language     string
	MaxQuestions int
	Example      string
}

func load() error {
	loadOnce.Do(func() {
		content, err := templateFS.ReadFile("templates/system.txt")
		if err != nil {
			loadErr = fmt.Errorf("read system prompt: %w", err)
			return
		}
		systemTemplate, loadErr = template.New("system").Parse(string(content))
	})
	return loadErr
}

// System renders the assistant system prompt. Empty fields get defaults.
func System(data SystemData) (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	if data.Language == "" {
		data.Language = "English"
	}
	if data.Example == "" {
		example, err := Example()
		if err != nil {
			return "", err
		}
		data.Example = example
	}

	var buf bytes.Buffer
	if err := systemTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Example returns a small <QUESTIONS> block showing the expected payload.
func Example() (string, error) {
	return message.FormatQuestions(model.QuestionBatch{
		{
			Text:       `Solve <SPECIAL_TAG type="latex">x^2 - 4 = 0</SPECIAL_TAG>.`,
			Difficulty: model.DifficultyEasy,
			Topic:      "quadratic equations",
			Answer:     `<SPECIAL_TAG type="latex">x = \pm 2</SPECIAL_TAG>`,
			Rubric:     "Both roots are required for full points.",
			MaxPoints:  5,
		},
		{
			Text:       "Which of these numbers is prime?",
			Difficulty: model.DifficultyMedium,
			Topic:      "number theory",
			Options:    []string{"21", "27", "29", "33"},
			Answer:     "29",
			MaxPoints:  2,
		},
	})
}

// SanitizeUserMessage removes block and instruction markers a user could use
// to impersonate assistant output, and truncates overly long input.
func SanitizeUserMessage(content string) string {
	content = questionsTagRegex.ReplaceAllString(content, "")
	content = systemInstructionsRegex.ReplaceAllString(content, "")
	content = strings.TrimSpace(content)

	if utf8.RuneCountInString(content) > maxUserRunes {
		runes := []rune(content)
		content = string(runes[:maxUserRunes]) + "\n\n[Message truncated due to length]"
	}
	return content
}
