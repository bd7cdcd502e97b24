package models

import (
	"encoding/json"
	"time"

	"ecowing/taxonomy"

	"github.com/shopspring/decimal"
)

// BoundingBox is a detection box on a 0-1000 normalized grid.
type BoundingBox struct {
	Ymin  float64 `json:"ymin"`
	Xmin  float64 `json:"xmin"`
	Ymax  float64 `json:"ymax"`
	Xmax  float64 `json:"xmax"`
	Label string  `json:"label"`
}

// Report is a single waste report after boundary normalization.
// Optional values are nil when the source omitted them.
type Report struct {
	ID                string
	LocationName      string
	Lat               *float64
	Lng               *float64
	Severity          taxonomy.Severity
	WasteDistribution map[string]int
	UniqueItemCount   *int
	BoundingBoxes     []BoundingBox
	Type              string
	SubType           string
	Category          string
	Description       string
	EstimatedWeightKg decimal.Decimal
	CleanupPriority   string
	MediaType         string
	Verified          bool
	Timestamp         time.Time
}

// HasCoordinates is true when both lat and lng are defined.
func (r *Report) HasCoordinates() bool {
	return r.Lat != nil && r.Lng != nil
}

// BoundingBoxCount is the number of detection boxes attached to the report.
func (r *Report) BoundingBoxCount() int {
	return len(r.BoundingBoxes)
}

// ItemCount derives the number of waste items in the report. The first
// available source wins: distribution sum, unique item count, box count, 1.
func (r *Report) ItemCount() int {
	if r.WasteDistribution != nil {
		total := 0
		for _, n := range r.WasteDistribution {
			if n > 0 {
				total += n
			}
		}
		return total
	}
	if r.UniqueItemCount != nil && *r.UniqueItemCount > 0 {
		return *r.UniqueItemCount
	}
	if n := r.BoundingBoxCount(); n > 0 {
		return n
	}
	return 1
}

// NormalizedType is the report's type label mapped to a canonical category.
// Placeholder labels such as "Unknown" land in Other.
func (r *Report) NormalizedType() string {
	t := r.Type
	if t == "" {
		t = r.Category
	}
	return taxonomy.NormalizeCategory(t)
}

// Categories returns every canonical category the report touches.
func (r *Report) Categories() []string {
	if r.WasteDistribution == nil {
		return []string{r.NormalizedType()}
	}
	seen := make(map[string]bool)
	cats := make([]string, 0, len(r.WasteDistribution))
	for label := range r.WasteDistribution {
		c := taxonomy.NormalizeCategory(label)
		if !seen[c] {
			seen[c] = true
			cats = append(cats, c)
		}
	}
	return cats
}

func (r Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Raw())
}

func (r *Report) UnmarshalJSON(data []byte) error {
	var raw RawReport
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = raw.Normalize()
	return nil
}
