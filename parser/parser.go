package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ecowing/models"
	"ecowing/taxonomy"
)

var ErrNoJSON = errors.New("no JSON object in model response")

const (
	defaultWeightKg = 1.0
	defaultBoxEdge  = 100
)

var numberRe = regexp.MustCompile(`-?\d+(\.\d+)?`)

// number accepts JSON numbers as well as numeric strings such as "2.5 kg".
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(strings.Trim(string(b), `"`))
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	m := numberRe.FindString(s)
	if m == "" {
		return fmt.Errorf("invalid number %s", b)
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return fmt.Errorf("invalid number %s: %w", b, err)
	}
	*n = number(f)
	return nil
}

type box struct {
	Ymin  *number `json:"ymin"`
	Xmin  *number `json:"xmin"`
	Ymax  *number `json:"ymax"`
	Xmax  *number `json:"xmax"`
	Label string  `json:"label"`
}

// detection is the JSON object the prompts ask the model for.
type detection struct {
	PrimaryWaste        string            `json:"primary_waste"`
	SubCategory         *string           `json:"sub_category"`
	Severity            string            `json:"severity"`
	Description         string            `json:"description"`
	WeightKg            *number           `json:"weight_kg"`
	ItemsCount          *number           `json:"items_count"`
	UniqueItemCount     *number           `json:"unique_item_count"`
	WasteDistribution   map[string]number `json:"waste_distribution"`
	BoundingBoxes       []box             `json:"bounding_boxes"`
	SampleBoundingBoxes []box             `json:"sample_bounding_boxes"`
}

// extractJSONFromMarkdown extracts JSON from markdown code blocks
func extractJSONFromMarkdown(response string) string {
	startMarker := "```"
	endMarker := "```"

	startIdx := strings.Index(response, startMarker)
	if startIdx == -1 {
		// No code block found, try to find JSON object directly
		startIdx = strings.Index(response, "{")
		if startIdx == -1 {
			return ""
		}
		endIdx := strings.LastIndex(response, "}")
		if endIdx < startIdx {
			return ""
		}
		return strings.TrimSpace(response[startIdx : endIdx+1])
	}

	endIdx := strings.Index(response[startIdx+len(startMarker):], endMarker)
	if endIdx == -1 {
		// Unterminated fence, drop the opening marker and retry
		return extractJSONFromMarkdown(response[startIdx+len(startMarker):])
	}
	endIdx += startIdx + len(startMarker)

	content := response[startIdx+len(startMarker) : endIdx]

	// Remove the language identifier if present (e.g., "json")
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) > 0 && (strings.TrimSpace(lines[0]) == "json" || strings.TrimSpace(lines[0]) == "") {
		content = strings.Join(lines[1:], "\n")
	}

	return strings.TrimSpace(content)
}

// ParseDetection parses a model answer into a DetectionResult stamped with now.
// Missing fields get the same defaults the upload flow has always used:
// category Other, severity MEDIUM, weight 1kg, one item.
func ParseDetection(response string, now time.Time) (*models.DetectionResult, error) {
	jsonContent := extractJSONFromMarkdown(strings.TrimSpace(response))
	if jsonContent == "" {
		return nil, ErrNoJSON
	}

	var d detection
	if err := json.Unmarshal([]byte(jsonContent), &d); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	category := taxonomy.Other
	if strings.TrimSpace(d.PrimaryWaste) != "" {
		category = taxonomy.NormalizeCategory(d.PrimaryWaste)
	}

	severity := taxonomy.ParseSeverity(d.Severity)
	if !severity.Known() {
		severity = taxonomy.Medium
	}

	description := strings.TrimSpace(d.Description)
	if description == "" {
		description = "Detected " + category
	}

	weight := defaultWeightKg
	if d.WeightKg != nil && *d.WeightKg >= 0 {
		weight = float64(*d.WeightKg)
	}

	count := 1
	switch {
	case d.ItemsCount != nil && *d.ItemsCount > 0:
		count = int(*d.ItemsCount)
	case d.UniqueItemCount != nil && *d.UniqueItemCount > 0:
		count = int(*d.UniqueItemCount)
	}

	var dist map[string]int
	if len(d.WasteDistribution) > 0 {
		raw := make(map[string]int, len(d.WasteDistribution))
		for k, v := range d.WasteDistribution {
			raw[k] = int(v)
		}
		dist = taxonomy.NormalizeDistribution(raw)
	}

	var sub *string
	if d.SubCategory != nil && strings.TrimSpace(*d.SubCategory) != "" {
		s := strings.TrimSpace(*d.SubCategory)
		sub = &s
	}

	boxes := d.BoundingBoxes
	if len(boxes) == 0 {
		boxes = d.SampleBoundingBoxes
	}

	return &models.DetectionResult{
		WasteType:         []string{category},
		Category:          category,
		SubCategory:       sub,
		Severity:          severity,
		Description:       description,
		EstimatedWeightKg: weight,
		CleanupPriority:   taxonomy.CleanupPriority(severity),
		BoundingBoxes:     toBoxes(boxes, category),
		Timestamp:         now,
		WasteDistribution: dist,
		UniqueItemCount:   count,
	}, nil
}

func toBoxes(in []box, category string) []models.BoundingBox {
	out := make([]models.BoundingBox, 0, len(in))
	for _, b := range in {
		label := strings.TrimSpace(b.Label)
		if label == "" {
			label = category
		}
		out = append(out, models.BoundingBox{
			Ymin:  orDefault(b.Ymin, 0),
			Xmin:  orDefault(b.Xmin, 0),
			Ymax:  orDefault(b.Ymax, defaultBoxEdge),
			Xmax:  orDefault(b.Xmax, defaultBoxEdge),
			Label: label,
		})
	}
	return out
}

func orDefault(n *number, def float64) float64 {
	if n == nil {
		return def
	}
	return float64(*n)
}
