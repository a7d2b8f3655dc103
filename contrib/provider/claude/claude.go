package claude

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
	"github.com/sweetpotato0/deepresearch/completion"
	"github.com/sweetpotato0/deepresearch/message"
)

// Config holds Claude provider configuration
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int64
	Temperature float64
	// ThinkingBudget caps extended-thinking tokens when a request asks for
	// thinking; 0 uses a provider default.
	ThinkingBudget int64
}

// DefaultConfig returns default Claude configuration
func DefaultConfig(apiKey, baseURL string) *Config {
	return &Config{
		APIKey:      apiKey,
		BaseURL:     baseURL,
		Model:       "claude-sonnet-4-5-20250929",
		MaxTokens:   4096,
		Temperature: 0.7,
	}
}

// Provider implements the completion.Client interface for Claude
type Provider struct {
	config *Config
	client anthropic.Client
}

// New creates a new Claude provider using official SDK
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig("", "")
	}
	if config.Model == "" {
		config.Model = "claude-sonnet-4-5-20250929"
	}

	options := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithAuthToken(""),
	}

	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	client := anthropic.NewClient(options...)

	return &Provider{
		config: config,
		client: client,
	}
}

func (p *Provider) buildParams(req *completion.Request) anthropic.MessageNewParams {
	system, conversation := completion.SplitSystem(req.Messages)

	conversationMessages := make([]anthropic.MessageParam, 0, len(conversation))
	for _, msg := range conversation {
		switch msg.Role {
		case message.RoleUser:
			conversationMessages = append(conversationMessages,
				anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case message.RoleAssistant:
			conversationMessages = append(conversationMessages,
				anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	model := p.config.Model
	if req.Params.Model != "" {
		model = req.Params.Model
	}
	maxTokens := p.config.MaxTokens
	if req.Params.MaxTokens > 0 {
		maxTokens = int64(req.Params.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  conversationMessages,
		MaxTokens: maxTokens,
	}

	if system != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: system},
		}
	}

	temperature := p.config.Temperature
	if req.Params.Temperature > 0 {
		temperature = req.Params.Temperature
	}
	if temperature > 0 {
		params.Temperature = param.NewOpt(temperature)
	}

	if req.Params.Thinking {
		budget := p.config.ThinkingBudget
		if budget <= 0 {
			budget = 1024
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
		// The API rejects temperature together with thinking
		params.Temperature = param.Opt[float64]{}
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

	apiMessage, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("Claude API error: %w", err)
	}

	var responseText string
	for _, content := range apiMessage.Content {
		if content.Type == "text" {
			responseText += content.Text
		}
	}

	return &completion.Response{
		Text:  responseText,
		Model: string(apiMessage.Model),
		Usage: completion.Usage{
			InputTokens:  int(apiMessage.Usage.InputTokens),
			OutputTokens: int(apiMessage.Usage.OutputTokens),
		},
	}, nil
}

func (p *Provider) generateStreaming(ctx context.Context, req *completion.Request, params anthropic.MessageNewParams) (*completion.Response, error) {
	stream := p.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var responseText string
	resp := &completion.Response{Model: string(params.Model)}

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "content_block_delta":
			contentDelta := event.AsContentBlockDelta()
			if contentDelta.Delta.Type == "text_delta" && contentDelta.Delta.Text != "" {
				responseText += contentDelta.Delta.Text
				req.Emit(contentDelta.Delta.Text)
			}
		case "message_start":
			msgStart := event.AsMessageStart()
			resp.Usage.InputTokens = int(msgStart.Message.Usage.InputTokens)
		case "message_delta":
			msgDelta := event.AsMessageDelta()
			resp.Usage.OutputTokens = int(msgDelta.Usage.OutputTokens)
		}
	}

	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("Claude streaming error: %w", err)
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
