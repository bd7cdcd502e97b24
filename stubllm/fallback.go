package stubllm

import (
	"fmt"
	"math/rand"
	"time"

	"ecowing/models"
	"ecowing/taxonomy"
)

const (
	fallbackWeightKg = 1.5
	fallbackBoxSize  = 150
	fallbackErrChars = 50
)

// Fallback builds the backup-mode result used when the detection provider
// fails. The category, subcategory and boxes are random so the client still
// has something to draw.
func Fallback(cause error, now time.Time) *models.DetectionResult {
	category := taxonomy.Categories[rand.Intn(len(taxonomy.Categories))]
	sub := "Generic"
	if subs := taxonomy.Subcategories[category]; len(subs) > 0 {
		sub = subs[rand.Intn(len(subs))]
	}

	n := 1 + rand.Intn(2)
	boxes := make([]models.BoundingBox, 0, n)
	for i := 0; i < n; i++ {
		ym := float64(200 + rand.Intn(401))
		xm := float64(200 + rand.Intn(401))
		boxes = append(boxes, models.BoundingBox{
			Ymin:  ym,
			Xmin:  xm,
			Ymax:  ym + fallbackBoxSize,
			Xmax:  xm + fallbackBoxSize,
			Label: category,
		})
	}

	reason := "unknown error"
	if cause != nil {
		reason = truncate(cause.Error(), fallbackErrChars)
	}

	return &models.DetectionResult{
		WasteType:         []string{category},
		Category:          category,
		SubCategory:       &sub,
		Severity:          taxonomy.Medium,
		Description:       fmt.Sprintf("Detected %s (Backup Mode: %s...)", category, reason),
		EstimatedWeightKg: fallbackWeightKg,
		CleanupPriority:   taxonomy.CleanupPriority(taxonomy.Medium),
		BoundingBoxes:     boxes,
		Timestamp:         now,
		WasteDistribution: map[string]int{category: 1},
		UniqueItemCount:   1,
		Source:            "Fallback",
		Fallback:          true,
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
