package qwen

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"ecowing/llm"

	"github.com/apex/log"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultBaseURL is DashScope's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://dashscope-intl.aliyuncs.com/compatible-mode/v1"

// Client talks to Qwen-VL through DashScope's OpenAI-compatible API.
type Client struct {
	api   *openai.Client
	model string
}

func NewClient(apiKey, baseURL, model string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	cfg.BaseURL = baseURL
	return &Client{api: openai.NewClientWithConfig(cfg), model: model}
}

func (c *Client) SourceName() string { return "Qwen" }

// Analyze sends a single image with the prompt. Video is not supported by the
// compatible-mode chat endpoint.
func (c *Client) Analyze(ctx context.Context, media llm.Media, prompt string) (string, error) {
	if media.IsVideo() {
		return "", llm.ErrUnsupportedMedia
	}
	mime := media.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(media.Data))

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURL, Detail: openai.ImageURLDetailAuto},
					},
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt,
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("qwen request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("qwen returned no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	log.Infof("Qwen response: %d chars, %d tokens", len(text), resp.Usage.TotalTokens)
	return text, nil
}
