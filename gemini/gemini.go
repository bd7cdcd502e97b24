package gemini

import (
	"context"
	"fmt"
	"strings"

	"ecowing/llm"

	"github.com/apex/log"
	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

// Client wraps the Gemini API. Unlike Qwen it accepts video inline.
type Client struct {
	api   *genai.Client
	model string
}

func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if model == "" {
		model = DefaultModel
	}
	api, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Client{api: api, model: model}, nil
}

func (c *Client) SourceName() string { return "Gemini" }

func (c *Client) Analyze(ctx context.Context, media llm.Media, prompt string) (string, error) {
	if media.MIMEType == "" {
		return "", llm.ErrUnsupportedMedia
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(media.Data, media.MIMEType),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}

	resp, err := c.api.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty response")
	}
	log.Infof("Gemini response: %d chars", len(text))
	return text, nil
}
