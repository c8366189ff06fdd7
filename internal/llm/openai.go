package llm

import (
	"context"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rotisserie/eris"
)

const DefaultOpenAIModel = "gpt-4o-mini"

type chatGenerator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// OpenAICaller talks to any OpenAI-compatible endpoint through eino.
type OpenAICaller struct {
	chat  chatGenerator
	model string
}

func NewOpenAICaller(ctx context.Context, baseURL, apiKey, modelName string) (*OpenAICaller, error) {
	if strings.TrimSpace(modelName) == "" {
		modelName = DefaultOpenAIModel
	}
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: strings.TrimSpace(baseURL),
		APIKey:  strings.TrimSpace(apiKey),
		Model:   modelName,
	})
	if err != nil {
		return nil, eris.Wrap(err, "init openai chat model")
	}
	return &OpenAICaller{chat: cm, model: modelName}, nil
}

func (o *OpenAICaller) ModelName() string { return o.model }

func (o *OpenAICaller) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := o.chat.Generate(ctx, []*schema.Message{
		{Role: schema.System, Content: systemPrompt},
		{Role: schema.User, Content: prompt},
	})
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", eris.New("empty chat response")
	}
	return resp.Content, nil
}
