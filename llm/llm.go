package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ecowing/taxonomy"
)

// ErrUnsupportedMedia is returned by providers that cannot analyze the given
// media type (for example video on an image-only model).
var ErrUnsupportedMedia = errors.New("media type not supported by provider")

// Media is the payload handed to a provider.
type Media struct {
	Data     []byte
	MIMEType string
}

func (m Media) IsVideo() bool {
	return strings.HasPrefix(m.MIMEType, "video/")
}

// Client abstracts a vision model used for waste detection.
// Implementations must be concurrency-safe if used across goroutines.
type Client interface {
	// Analyze sends the media and prompt to the model and returns its raw text
	// answer, which is expected to hold a single JSON object.
	Analyze(ctx context.Context, media Media, prompt string) (string, error)
	// SourceName returns a short provider label (e.g., "Qwen", "Gemini").
	SourceName() string
}

var ImagePrompt = fmt.Sprintf(`Analyze this coastal waste photo.
Return ONLY a JSON object with these exact fields:
1. "primary_waste": (string) Choose from: %s
2. "sub_category": (string) Specific type like 'Bottle', 'Can', etc.
3. "severity": (string) 'LOW', 'MEDIUM', 'HIGH', or 'CRITICAL'
4. "description": (string) Brief description in English
5. "weight_kg": (float) Estimated weight
6. "items_count": (integer) How many waste items visible
7. "waste_distribution": (object) Count by type: {"Plastic": 3, "Metal": 1, ...}
8. "bounding_boxes": (array) Each with: "ymin", "xmin", "ymax", "xmax" (0-1000 scale), "label"
`, categoryList())

var VideoPrompt = fmt.Sprintf(`Analyze this coastal waste drone video.
Identify ALL waste items throughout the ENTIRE video and count each UNIQUE
physical item ONLY ONCE, deduplicating across frames.
Return ONLY a JSON object with these exact fields:
1. "primary_waste": (string) Most common type, one of: %s
2. "sub_category": (string) Most common specific type like 'Bottle', 'Can', etc.
3. "severity": (string) Overall severity: 'LOW', 'MEDIUM', 'HIGH', or 'CRITICAL'
4. "description": (string) Analysis summary in English
5. "weight_kg": (float) Estimated total weight
6. "items_count": (integer) Total unique waste items
7. "waste_distribution": (object) Count of unique items by type: {"Plastic": 3, "Metal": 1, ...}
8. "bounding_boxes": (array) Sample detections from the clearest frame, each with: "ymin", "xmin", "ymax", "xmax" (0-1000 scale), "label"
`, categoryList())

// PromptFor picks the prompt matching the media type.
func PromptFor(m Media) string {
	if m.IsVideo() {
		return VideoPrompt
	}
	return ImagePrompt
}

func categoryList() string {
	return strings.Join(taxonomy.Categories, ", ")
}
