package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/kabini-ai/kabini/pkg/config"
	"github.com/kabini-ai/kabini/pkg/domain"
)

// Generator produces analysis questions and answers for a piece of content
// via an OpenAI-compatible API
type Generator struct {
	client *openai.Client
	config config.LLMConfig
}

// NewGenerator creates a new LLM generator
func NewGenerator(cfg config.LLMConfig) *Generator {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = cfg.Endpoint
	}
	return &Generator{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}
}

const questionSystemPrompt = `You are an AI assistant that generates insightful questions a reader or search engine would ask about a piece of content.
Questions must be answerable from the content alone, specific rather than generic, and phrased the way real users search.
Respond with a JSON array of question strings, nothing else.`

const answerSystemPrompt = `You are an AI assistant that answers questions strictly from the provided content.
Answer concisely and factually. If the content does not contain the answer, say so explicitly rather than inventing one.`

// QuestionRequest describes one question-generation call
type QuestionRequest struct {
	Content  string
	Count    int
	Provider string
	Model    string
}

// GenerateQuestions generates up to req.Count questions for the content.
// Empty content is rejected synchronously. The count is clamped to
// [1, max_questions].
func (g *Generator) GenerateQuestions(ctx context.Context, req QuestionRequest) (*domain.GeneratedQuestions, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("no content to generate questions from")
	}

	count := req.Count
	if count < 1 {
		count = 1
	}
	if count > g.config.MaxQuestions {
		count = g.config.MaxQuestions
	}

	provider, model := g.resolve(req.Provider, req.Model)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Generate exactly %d questions about the following content.\n\n", count))
	sb.WriteString("Content:\n")
	sb.WriteString(clip(req.Content, 8000))
	sb.WriteString("\n\nRespond with a JSON array of question strings.")

	// retry up to 3 times if we get invalid JSON
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       model,
			Temperature: float32(g.config.Temperature),
			MaxTokens:   g.config.MaxTokens,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: questionSystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: sb.String()},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("llm request failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("no response from llm")
		}

		questions, err := parseQuestions(resp.Choices[0].Message.Content, count)
		if err == nil {
			return &domain.GeneratedQuestions{
				Questions:    questions,
				InputTokens:  resp.Usage.PromptTokens,
				OutputTokens: resp.Usage.CompletionTokens,
				Provider:     provider,
				Model:        model,
			}, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("failed after 3 attempts: %w", lastErr)
}

// GenerateAnswer answers one question from the content
func (g *Generator) GenerateAnswer(ctx context.Context, content, question, providerName, modelName string) (*domain.GeneratedAnswer, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("no content to answer from")
	}
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("empty question")
	}

	_, model := g.resolve(providerName, modelName)

	prompt := fmt.Sprintf("Content:\n%s\n\nQuestion: %s", clip(content, 8000), question)

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: float32(g.config.Temperature),
		MaxTokens:   g.config.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: answerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("llm request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from llm")
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return nil, fmt.Errorf("empty answer from llm")
	}

	return &domain.GeneratedAnswer{
		Answer:       answer,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// resolve fills provider/model from config defaults
func (g *Generator) resolve(provider, model string) (string, string) {
	if provider == "" {
		provider = g.config.Provider
	}
	if model == "" {
		model = g.config.Model
	}
	return provider, model
}

// parseQuestions extracts a JSON string array from the LLM response, taking
// the outermost brackets so surrounding prose doesn't break the parse
func parseQuestions(content string, limit int) ([]string, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start == -1 || end == -1 || start >= end {
		return nil, fmt.Errorf("no json array found in response")
	}

	var questions []string
	if err := json.Unmarshal([]byte(content[start:end+1]), &questions); err != nil {
		return nil, fmt.Errorf("failed to parse json array response: %w", err)
	}

	valid := questions[:0]
	for _, q := range questions {
		if q = strings.TrimSpace(q); q != "" {
			valid = append(valid, q)
		}
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("no questions in response")
	}
	if len(valid) > limit {
		valid = valid[:limit]
	}
	return valid, nil
}

// clip truncates text so prompts stay within model context limits
func clip(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
