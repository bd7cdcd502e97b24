package models

import (
	"time"

	"ecowing/taxonomy"

	"github.com/shopspring/decimal"
)

// DetectionResult is what a detection pass returns to the uploader.
type DetectionResult struct {
	ID                string            `json:"id,omitempty"`
	WasteType         []string          `json:"wasteType"`
	Category          string            `json:"category"`
	SubCategory       *string           `json:"subCategory"`
	Severity          taxonomy.Severity `json:"severity"`
	Description       string            `json:"description"`
	EstimatedWeightKg float64           `json:"estimatedWeightKg"`
	CleanupPriority   string            `json:"cleanupPriority"`
	BoundingBoxes     []BoundingBox     `json:"boundingBoxes"`
	Timestamp         time.Time         `json:"timestamp"`
	WasteDistribution map[string]int    `json:"waste_distribution"`
	UniqueItemCount   int               `json:"unique_item_count"`
	Source            string            `json:"source"`
	Fallback          bool              `json:"fallback"`
}

// Upload carries an incoming media file plus the optional location fields
// supplied with it.
type Upload struct {
	Data         []byte
	ContentType  string
	Filename     string
	Lat          *float64
	Lng          *float64
	LocationName string
}

// IsVideo reports whether the upload is a video file.
func (u *Upload) IsVideo() bool {
	return len(u.ContentType) >= 6 && u.ContentType[:6] == "video/"
}

// ToReport builds the persisted report for a detection.
func (d *DetectionResult) ToReport(u *Upload, locationName string) Report {
	r := Report{
		ID:                d.ID,
		LocationName:      locationName,
		Lat:               finite(u.Lat),
		Lng:               finite(u.Lng),
		Severity:          d.Severity,
		WasteDistribution: d.WasteDistribution,
		BoundingBoxes:     d.BoundingBoxes,
		Type:              d.Category,
		Category:          d.Category,
		Description:       d.Description,
		EstimatedWeightKg: decimal.NewFromFloat(d.EstimatedWeightKg).Round(2),
		CleanupPriority:   d.CleanupPriority,
		MediaType:         "image",
		Verified:          true,
		Timestamp:         d.Timestamp,
	}
	if d.SubCategory != nil {
		r.SubType = *d.SubCategory
	}
	if d.UniqueItemCount > 0 {
		n := d.UniqueItemCount
		r.UniqueItemCount = &n
	}
	if u.IsVideo() {
		r.MediaType = "video"
	}
	return r
}
