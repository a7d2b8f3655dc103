package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/sweetpotato0/deepresearch/completion"
	"github.com/sweetpotato0/deepresearch/message"
)

// Config holds OpenAI provider configuration
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
}

// WithBaseURL set BaseURL.
func (cfg *Config) WithBaseURL(url string) *Config {
	cfg.BaseURL = url
	return cfg
}

// WithAPIKey set api key.
func (cfg *Config) WithAPIKey(apiKey string) *Config {
	cfg.APIKey = apiKey
	return cfg
}

// WithModel set model.
func (cfg *Config) WithModel(model string) *Config {
	cfg.Model = model
	return cfg
}

// DefaultConfig returns default OpenAI configuration
func DefaultConfig() *Config {
	return &Config{
		APIKey:      "",
		Model:       "gpt-4o-mini",
		MaxTokens:   2000,
		Temperature: 0.7,
	}
}

// Provider implements the completion.Client interface for OpenAI
type Provider struct {
	config *Config
	client openai.Client
}

// New creates a new OpenAI provider using official SDK
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}
	client := openai.NewClient(options...)

	return &Provider{
		config: config,
		client: client,
	}
}

func (p *Provider) buildParams(req *completion.Request) openai.ChatCompletionNewParams {
	openAIMessages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case message.RoleSystem:
			openAIMessages = append(openAIMessages, openai.SystemMessage(msg.Content))
		case message.RoleUser:
			openAIMessages = append(openAIMessages, openai.UserMessage(msg.Content))
		case message.RoleAssistant:
			openAIMessages = append(openAIMessages, openai.AssistantMessage(msg.Content))
		}
	}

	model := p.config.Model
	if req.Params.Model != "" {
		model = req.Params.Model
	}
	params := openai.ChatCompletionNewParams{
		Messages: openAIMessages,
		Model:    openai.ChatModel(model),
	}

	temperature := p.config.Temperature
	if req.Params.Temperature > 0 {
		temperature = req.Params.Temperature
	}
	if temperature > 0 {
		params.Temperature = param.NewOpt(temperature)
	}

	maxTokens := p.config.MaxTokens
	if req.Params.MaxTokens > 0 {
		maxTokens = int64(req.Params.MaxTokens)
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(maxTokens)
	}

	return params
}

// Generate implements completion.Client
func (p *Provider) Generate(ctx context.Context, req *completion.Request) (*completion.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	params := p.buildParams(req)

	if req.OnToken != nil {
		return p.generateStreaming(ctx, req, params)
	}

	chatCompletion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(chatCompletion.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from OpenAI")
	}

	return &completion.Response{
		Text:  chatCompletion.Choices[0].Message.Content,
		Model: chatCompletion.Model,
		Usage: completion.Usage{
			InputTokens:  int(chatCompletion.Usage.PromptTokens),
			OutputTokens: int(chatCompletion.Usage.CompletionTokens),
		},
	}, nil
}

func (p *Provider) generateStreaming(ctx context.Context, req *completion.Request, params openai.ChatCompletionNewParams) (*completion.Response, error) {
	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	resp := &completion.Response{Model: string(params.Model)}
	var responseText string

	for stream.Next() {
		event := stream.Current()
		if event.Usage.TotalTokens > 0 {
			resp.Usage.InputTokens = int(event.Usage.PromptTokens)
			resp.Usage.OutputTokens = int(event.Usage.CompletionTokens)
		}
		if len(event.Choices) == 0 {
			continue
		}
		delta := event.Choices[0].Delta.Content
		if delta != "" {
			responseText += delta
			req.Emit(delta)
		}
	}

	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("OpenAI streaming error: %w", err)
	}

	resp.Text = responseText
	return resp, nil
}

// SetTemperature updates the temperature setting
func (p *Provider) SetTemperature(temp float64) {
	p.config.Temperature = temp
}

// SetMaxTokens updates the max tokens setting
func (p *Provider) SetMaxTokens(max int64) {
	p.config.MaxTokens = max
}

// SetModel updates the model
func (p *Provider) SetModel(model string) {
	p.config.Model = model
}
