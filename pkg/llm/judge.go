package llm

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// score prompts ask for a bare number so parsing stays trivial
const (
	accuracySystemPrompt = `You rate how accurately an answer reflects the source content.
Score 0-100 where 100 means every claim in the answer is supported by the content and 0 means the answer contradicts or ignores it.
Respond with the number only.`

	citationSystemPrompt = `You rate how likely an AI search engine would be to cite this content when producing this answer.
Consider specificity, factual density and how directly the answer draws on the content. Score 0-100.
Respond with the number only.`
)

// ScoreAccuracy rates how well the answer is grounded in the content, 0-100
func (g *Generator) ScoreAccuracy(ctx context.Context, answer, content, providerName, modelName string) (float64, error) {
	return g.score(ctx, accuracySystemPrompt, answer, content, modelName)
}

// ScoreCitationLikelihood rates how likely the content would be cited for
// this answer, 0-100
func (g *Generator) ScoreCitationLikelihood(ctx context.Context, answer, content, providerName, modelName string) (float64, error) {
	return g.score(ctx, citationSystemPrompt, answer, content, modelName)
}

func (g *Generator) score(ctx context.Context, systemPrompt, answer, content, modelName string) (float64, error) {
	_, model := g.resolve("", modelName)

	prompt := fmt.Sprintf("Content:\n%s\n\nAnswer:\n%s", clip(content, 6000), clip(answer, 2000))

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: 0, // scoring should be deterministic
		MaxTokens:   10,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("llm score request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return 0, fmt.Errorf("no response from llm")
	}

	return parseScore(resp.Choices[0].Message.Content)
}

// parseScore pulls a 0-100 number out of the response, tolerating stray
// punctuation around it
func parseScore(content string) (float64, error) {
	s := strings.TrimSpace(content)
	s = strings.Trim(s, "\"'.%")
	// some models answer "85/100"
	if idx := strings.Index(s, "/"); idx > 0 {
		s = s[:idx]
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("parse score %q: %w", content, err)
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, nil
}
