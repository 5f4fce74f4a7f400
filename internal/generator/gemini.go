package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/examflow/examflow-backend/internal/model"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// maxSourceChars bounds how much extracted text goes into one prompt.
const maxSourceChars = 30000

// Gemini generates questions with the Google Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a client for the given API key and model name.
func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client, model: modelName}, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

// Name implements Generator.
func (g *Gemini) Name() string { return "gemini" }

// Generate implements Generator.
func (g *Gemini) Generate(ctx context.Context, req Request) ([]model.QuestionInput, error) {
	m := g.client.GenerativeModel(g.model)
	m.ResponseMIMEType = "application/json"
	m.SetTemperature(0.4)

	resp, err := m.GenerateContent(ctx, genai.Text(buildPrompt(req)))
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		break
	}
	return parseQuestions(sb.String())
}

func buildPrompt(req Request) string {
	req = req.Normalize()
	types := make([]string, len(req.Types))
	for i, t := range req.Types {
		types[i] = string(t)
	}

	source := strings.Join(req.Texts, "\n\n")
	if len(source) > maxSourceChars {
		// Cut on a rune boundary.
		cut := maxSourceChars
		for cut > 0 && !utf8.RuneStart(source[cut]) {
			cut--
		}
		source = source[:cut]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Create %d exam questions of difficulty %q.\n", req.Count, req.Difficulty)
	fmt.Fprintf(&sb, "Allowed question types: %s.\n", strings.Join(types, ", "))
	if req.FocusArea != "" {
		fmt.Fprintf(&sb, "Focus on: %s.\n", req.FocusArea)
	}
	sb.WriteString(`Respond with a JSON array only. Each element has the fields:
"type" (one of the allowed types), "question", "options" (mcq only, 4 strings),
"correct_answer" (mcq only, zero-based option index), "difficulty" (easy, medium or hard),
"estimated_time" (minutes), "tags" (strings), "points", "explanation", "max_words" (free-text only).
`)
	if source != "" {
		sb.WriteString("\nSource material:\n")
		sb.WriteString(source)
	} else {
		sb.WriteString("\nNo source material was provided; use general knowledge of the focus area.\n")
	}
	return sb.String()
}

// parseQuestions decodes the model output, tolerating a fenced code block
// and an object wrapper of the form {"questions": [...]}.
func parseQuestions(raw string) ([]model.QuestionInput, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errEmptyResponse
	}

	var qs []model.QuestionInput
	if strings.HasPrefix(raw, "{") {
		var wrapper struct {
			Questions []model.QuestionInput `json:"questions"`
		}
		if err := json.Unmarshal([]byte(raw), &wrapper); err != nil {
			return nil, fmt.Errorf("decode questions: %w", err)
		}
		qs = wrapper.Questions
	} else if err := json.Unmarshal([]byte(raw), &qs); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	if len(qs) == 0 {
		return nil, errEmptyResponse
	}
	return qs, nil
}
