package generator

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/examflow/examflow-backend/internal/model"
)

var (
	sentenceSplit = regexp.MustCompile(`[.!?]+\s+|\n{2,}|--- Page \d+ ---`)
	wordPattern   = regexp.MustCompile(`[A-Za-z][A-Za-z\-]{4,}`)
)

// Fallback is a deterministic, offline generator. It builds fill-in-the-blank
// mcq items and open prompts from sentences of the source text.
type Fallback struct{}

// Name implements Generator.
func (Fallback) Name() string { return "fallback" }

// Generate implements Generator.
func (Fallback) Generate(_ context.Context, req Request) ([]model.QuestionInput, error) {
	req = req.Normalize()
	sentences := sentencesOf(req.Texts)
	vocab := vocabularyOf(sentences)
	topic := strings.TrimSpace(req.FocusArea)
	if topic == "" {
		topic = "the provided material"
	}

	out := make([]model.QuestionInput, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		qt := req.Types[i%len(req.Types)]
		difficulty := difficultyAt(req.Difficulty, i)
		var sentence string
		if len(sentences) > 0 {
			sentence = sentences[i%len(sentences)]
		}

		var q model.QuestionInput
		switch qt {
		case model.QuestionTypeMCQ:
			if mcq, ok := blankQuestion(sentence, vocab, i); ok {
				q = mcq
			} else {
				q = conceptQuestion(topic, i)
			}
		case model.QuestionTypeCoding:
			q = model.QuestionInput{
				Question:      fmt.Sprintf("Write a short program or pseudo-code that demonstrates a key idea from %s.", topic),
				EstimatedTime: 10,
				MaxWords:      300,
			}
		case model.QuestionTypePractical:
			q = model.QuestionInput{
				Question:      fmt.Sprintf("Describe how you would apply the following in practice: %s", orTopic(sentence, topic)),
				EstimatedTime: 8,
				MaxWords:      250,
			}
		default:
			q = model.QuestionInput{
				Question:      fmt.Sprintf("Explain in your own words: %s", orTopic(sentence, topic)),
				EstimatedTime: 5,
				MaxWords:      200,
			}
		}
		q.Type = qt
		q.Difficulty = difficulty
		q.Tags = []string{"generated", "fallback"}
		if topic != "the provided material" {
			q.Tags = append(q.Tags, topic)
		}
		out = append(out, q)
	}
	return out, nil
}

// blankQuestion removes one significant word from sentence and offers it
// among three distractors drawn from the rest of the text.
func blankQuestion(sentence string, vocab []string, seed int) (model.QuestionInput, bool) {
	if sentence == "" {
		return model.QuestionInput{}, false
	}
	words := wordPattern.FindAllString(sentence, -1)
	if len(words) == 0 {
		return model.QuestionInput{}, false
	}
	word := words[0]
	for _, w := range words {
		if len(w) > len(word) {
			word = w
		}
	}
	answer := strings.ToLower(word)

	distractors := make([]string, 0, 3)
	for j := 0; j < len(vocab) && len(distractors) < 3; j++ {
		w := vocab[(seed*7+j)%len(vocab)]
		if strings.EqualFold(w, answer) || contains(distractors, w) {
			continue
		}
		distractors = append(distractors, w)
	}
	if len(distractors) < 3 {
		return model.QuestionInput{}, false
	}

	correct := seed % 4
	options := make([]string, 0, 4)
	options = append(options, distractors[:correct]...)
	options = append(options, answer)
	options = append(options, distractors[correct:]...)

	blanked := strings.Replace(sentence, word, "_____", 1)
	return model.QuestionInput{
		Question:      fmt.Sprintf("Fill in the blank: %s", blanked),
		Options:       options,
		CorrectAnswer: &correct,
		EstimatedTime: 2,
		Explanation:   fmt.Sprintf("The source text reads: %s", sentence),
	}, true
}

// conceptQuestion is used when the text is too thin for a blank.
func conceptQuestion(topic string, seed int) model.QuestionInput {
	correct := 0
	return model.QuestionInput{
		Question: fmt.Sprintf("Which approach best supports learning about %s? (item %d)", topic, seed+1),
		Options: []string{
			"Reviewing the material and checking understanding with examples",
			"Skipping the material entirely",
			"Memorising unrelated facts",
			"Relying only on guesswork",
		},
		CorrectAnswer: &correct,
		EstimatedTime: 1,
	}
}

func sentencesOf(texts []string) []string {
	var out []string
	for _, t := range texts {
		for _, s := range sentenceSplit.Split(t, -1) {
			s = strings.Join(strings.Fields(s), " ")
			if len(s) >= 40 && len(s) <= 400 {
				out = append(out, s)
			}
		}
	}
	return out
}

// vocabularyOf returns the distinct significant words, sorted for determinism.
func vocabularyOf(sentences []string) []string {
	seen := map[string]bool{}
	for _, s := range sentences {
		for _, w := range wordPattern.FindAllString(s, -1) {
			if unicode.IsUpper(rune(w[0])) && len(w) < 6 {
				continue
			}
			seen[strings.ToLower(w)] = true
		}
	}
	vocab := make([]string, 0, len(seen))
	for w := range seen {
		vocab = append(vocab, w)
	}
	sort.Strings(vocab)
	return vocab
}

func difficultyAt(d string, i int) string {
	if d != "mixed" {
		return d
	}
	return []string{"easy", "medium", "hard"}[i%3]
}

func orTopic(sentence, topic string) string {
	if sentence != "" {
		return sentence
	}
	return topic
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
