package assistant

import (
	"context"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/renalpath/decision-app/internal/metrics"
	"github.com/renalpath/decision-app/internal/session"
)

const (
	// DefaultModel is the chat model used unless overridden.
	DefaultModel = openai.GPT4oMini

	// maxHistoryTurns caps how many prior transcript turns are sent with
	// each request. Older turns are dropped from the request only; the
	// session keeps the full transcript.
	maxHistoryTurns = 20
)

// Config holds OpenAI assistant settings.
type Config struct {
	APIKey string
	Model  string
}

// OpenAI is an Assistant backed by the OpenAI chat completions API.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an OpenAI-backed assistant.
func NewOpenAI(config Config) *OpenAI {
	model := config.Model
	if model == "" {
		model = DefaultModel
	}
	return &OpenAI{
		client: openai.NewClient(config.APIKey),
		model:  model,
	}
}

// Reply sends the transcript to the chat completions API and returns the
// model's answer. The latest user turn is expected to be the final entry of
// history.
func (o *OpenAI) Reply(ctx context.Context, language string, history []Message) (string, error) {
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: buildSystemPrompt(language),
	})
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == session.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: msgs,
	})
	metrics.AssistantLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.New("assistant: empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}
