package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

type OpenAIChat struct {
	client oai.Client
	model  string
}

// NewOpenAIChat builds a chat-completions provider. baseURL may be empty.
func NewOpenAIChat(apiKey, model, baseURL string, timeout time.Duration) (*OpenAIChat, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: timeout}))
	}
	return &OpenAIChat{client: oai.NewClient(opts...), model: model}, nil
}

func (p *OpenAIChat) Name() string { return "openai" }

func (p *OpenAIChat) Close() error { return nil }

func (p *OpenAIChat) Reply(ctx context.Context, systemPrompt string, history []Message) (string, error) {
	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	if systemPrompt != "" {
		msgs = append(msgs, oai.SystemMessage(systemPrompt))
	}
	for _, m := range history {
		if m.Role == RoleAssistant {
			msgs = append(msgs, oai.AssistantMessage(m.Content))
		} else {
			msgs = append(msgs, oai.UserMessage(m.Content))
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model:               shared.ChatModel(p.model),
		Messages:            msgs,
		Temperature:         param.NewOpt(0.7),
		MaxCompletionTokens: param.NewOpt(int64(300)),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices returned")
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", errors.New("openai: empty reply")
	}
	return out, nil
}
