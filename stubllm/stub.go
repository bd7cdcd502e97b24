package stubllm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"ecowing/llm"
	"ecowing/taxonomy"
)

// Client is a deterministic, no-network detector intended for CI and local
// end-to-end tests. It returns schema-valid JSON so the parser, storage and
// aggregation all run for real.
type Client struct{}

func NewClient() *Client { return &Client{} }

func (c *Client) SourceName() string { return "Stub" }

func (c *Client) Analyze(_ context.Context, media llm.Media, prompt string) (string, error) {
	// Same input, same answer.
	sum := sha256.Sum256(append([]byte(prompt), media.Data...))
	short := hex.EncodeToString(sum[:4])

	category := taxonomy.Categories[int(sum[0])%len(taxonomy.Categories)]
	subs := taxonomy.Subcategories[category]
	sub := subs[int(sum[1])%len(subs)]
	severity := taxonomy.Severities[int(sum[2])%len(taxonomy.Severities)]
	items := 1 + int(sum[3])%5
	ym, xm := 100+int(sum[4])%600, 100+int(sum[5])%600

	out := map[string]any{
		"primary_waste": category,
		"sub_category":  sub,
		"severity":      severity,
		"description":   fmt.Sprintf("Stubbed detection %s: %d %s item(s)", short, items, category),
		"weight_kg":     float64(items) * 0.25,
		"items_count":   items,
		"waste_distribution": map[string]int{
			category: items,
		},
		"bounding_boxes": []map[string]any{
			{"ymin": ym, "xmin": xm, "ymax": ym + 200, "xmax": xm + 200, "label": sub},
		},
	}

	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
