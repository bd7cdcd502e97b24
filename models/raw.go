package models

import (
	"math"
	"strings"
	"time"

	"ecowing/taxonomy"

	"github.com/shopspring/decimal"
)

// RawReport is the loose JSON shape of a report as stored and served.
// Every field is optional on input.
type RawReport struct {
	ID                string         `json:"id"`
	Lat               *float64       `json:"lat"`
	Lng               *float64       `json:"lng"`
	Type              string         `json:"type"`
	SubType           string         `json:"subType,omitempty"`
	Category          string         `json:"category,omitempty"`
	Severity          string         `json:"severity"`
	Timestamp         string         `json:"timestamp"`
	MediaType         string         `json:"mediaType,omitempty"`
	Verified          bool           `json:"verified"`
	LocationName      string         `json:"locationName"`
	Description       string         `json:"description,omitempty"`
	EstimatedWeightKg *float64       `json:"estimatedWeightKg,omitempty"`
	CleanupPriority   string         `json:"cleanupPriority,omitempty"`
	BoundingBoxes     []BoundingBox  `json:"boundingBoxes,omitempty"`
	WasteDistribution map[string]int `json:"waste_distribution"`
	UniqueItemCount   *int           `json:"unique_item_count,omitempty"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func finite(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	f := *v
	return &f
}

// CleanDistribution copies a label count map, dropping negative counts. A
// present but empty map stays present so it still sums to zero items.
func CleanDistribution(dist map[string]int) map[string]int {
	if dist == nil {
		return nil
	}
	out := make(map[string]int, len(dist))
	for label, n := range dist {
		if n >= 0 {
			out[label] = n
		}
	}
	return out
}

// Normalize converts the loose wire shape into a strict Report.
func (raw RawReport) Normalize() Report {
	r := Report{
		ID:              raw.ID,
		LocationName:    strings.TrimSpace(raw.LocationName),
		Lat:             finite(raw.Lat),
		Lng:             finite(raw.Lng),
		Severity:        taxonomy.ParseSeverity(raw.Severity),
		Type:            strings.TrimSpace(raw.Type),
		SubType:         strings.TrimSpace(raw.SubType),
		Category:        strings.TrimSpace(raw.Category),
		Description:     raw.Description,
		CleanupPriority: raw.CleanupPriority,
		MediaType:       raw.MediaType,
		Verified:        raw.Verified,
		Timestamp:       parseTimestamp(raw.Timestamp),
		BoundingBoxes:   raw.BoundingBoxes,
	}
	r.WasteDistribution = CleanDistribution(raw.WasteDistribution)
	if raw.UniqueItemCount != nil && *raw.UniqueItemCount > 0 {
		n := *raw.UniqueItemCount
		r.UniqueItemCount = &n
	}
	if raw.EstimatedWeightKg != nil {
		r.EstimatedWeightKg = decimal.NewFromFloat(*raw.EstimatedWeightKg)
	}
	if r.MediaType == "" {
		r.MediaType = "image"
	}
	return r
}

// Raw converts a Report back to its wire shape.
func (r Report) Raw() RawReport {
	raw := RawReport{
		ID:                r.ID,
		Lat:               finite(r.Lat),
		Lng:               finite(r.Lng),
		Type:              r.Type,
		SubType:           r.SubType,
		Category:          r.Category,
		Severity:          string(r.Severity),
		MediaType:         r.MediaType,
		Verified:          r.Verified,
		LocationName:      r.LocationName,
		Description:       r.Description,
		CleanupPriority:   r.CleanupPriority,
		BoundingBoxes:     r.BoundingBoxes,
		WasteDistribution: r.WasteDistribution,
		UniqueItemCount:   r.UniqueItemCount,
	}
	if !r.Timestamp.IsZero() {
		raw.Timestamp = r.Timestamp.Format(time.RFC3339Nano)
	}
	if !r.EstimatedWeightKg.IsZero() {
		w := r.EstimatedWeightKg.InexactFloat64()
		raw.EstimatedWeightKg = &w
	}
	return raw
}
