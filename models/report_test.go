package models

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"time"

	"ecowing/taxonomy"
)

func intPtr(n int) *int           { return &n }
func floatPtr(f float64) *float64 { return &f }

func TestItemCount(t *testing.T) {
	testCases := []struct {
		name   string
		report Report
		expect int
	}{
		{
			name:   "distribution sum wins",
			report: Report{WasteDistribution: map[string]int{"Plastic": 5, "Metal": 3}, UniqueItemCount: intPtr(20), BoundingBoxes: make([]BoundingBox, 4)},
			expect: 8,
		}, {
			name:   "unique item count",
			report: Report{UniqueItemCount: intPtr(6), BoundingBoxes: make([]BoundingBox, 4)},
			expect: 6,
		}, {
			name:   "zero unique count falls through to boxes",
			report: Report{UniqueItemCount: intPtr(0), BoundingBoxes: make([]BoundingBox, 4)},
			expect: 4,
		}, {
			name:   "bounding boxes",
			report: Report{BoundingBoxes: make([]BoundingBox, 2)},
			expect: 2,
		}, {
			name:   "nothing present",
			report: Report{},
			expect: 1,
		}, {
			name:   "negative counts are ignored",
			report: Report{WasteDistribution: map[string]int{"Plastic": 5, "Metal": -9}},
			expect: 5,
		}, {
			name:   "present but empty distribution sums to zero",
			report: Report{WasteDistribution: map[string]int{}},
			expect: 0,
		},
	}

	for _, tc := range testCases {
		if got := tc.report.ItemCount(); got != tc.expect {
			t.Errorf("%s: ItemCount() = %d, expected %d", tc.name, got, tc.expect)
		}
	}
}

func TestNormalize(t *testing.T) {
	nan := math.NaN()
	raw := RawReport{
		ID:                "r1",
		Lat:               &nan,
		Lng:               floatPtr(114.17),
		Severity:          " high ",
		Timestamp:         "2025-11-02T10:15:30.123456",
		LocationName:      "  Pier A ",
		WasteDistribution: map[string]int{},
		UniqueItemCount:   intPtr(0),
		EstimatedWeightKg: floatPtr(1.256),
	}
	r := raw.Normalize()

	if r.Lat != nil {
		t.Errorf("expected NaN lat to normalize to nil, got %v", *r.Lat)
	}
	if r.Lng == nil || *r.Lng != 114.17 {
		t.Errorf("expected lng 114.17, got %v", r.Lng)
	}
	if r.HasCoordinates() {
		t.Errorf("report with missing lat should not have coordinates")
	}
	if r.Severity != taxonomy.High {
		t.Errorf("expected HIGH severity, got %q", r.Severity)
	}
	if r.LocationName != "Pier A" {
		t.Errorf("expected trimmed location, got %q", r.LocationName)
	}
	if r.WasteDistribution == nil || len(r.WasteDistribution) != 0 {
		t.Errorf("expected empty distribution to stay present, got %v", r.WasteDistribution)
	}
	if r.UniqueItemCount != nil {
		t.Errorf("expected zero unique count to normalize to nil")
	}
	if r.ItemCount() != 0 {
		t.Errorf("expected empty distribution to count 0 items, got %d", r.ItemCount())
	}
	if r.Timestamp.IsZero() || r.Timestamp.Year() != 2025 {
		t.Errorf("expected timestamp to parse, got %v", r.Timestamp)
	}
	if r.MediaType != "image" {
		t.Errorf("expected default media type image, got %q", r.MediaType)
	}
}

func TestNormalizeDropsNegativeCounts(t *testing.T) {
	testCases := []struct {
		name   string
		dist   map[string]int
		expect string
		count  int
	}{
		{"mixed", map[string]int{"Plastic": 5, "Metal": -2, "Glass": 0}, "map[Glass:0 Plastic:5]", 5},
		{"all negative", map[string]int{"Plastic": -9}, "map[]", 0},
		{"absent", nil, "map[]", 1},
	}
	for _, tc := range testCases {
		r := RawReport{WasteDistribution: tc.dist}.Normalize()
		if got := fmt.Sprintf("%v", r.WasteDistribution); got != tc.expect {
			t.Errorf("%s: distribution = %s, expected %s", tc.name, got, tc.expect)
		}
		if (tc.dist == nil) != (r.WasteDistribution == nil) {
			t.Errorf("%s: presence of distribution changed", tc.name)
		}
		if got := r.ItemCount(); got != tc.count {
			t.Errorf("%s: ItemCount() = %d, expected %d", tc.name, got, tc.count)
		}
	}
}

func TestReportJSONRoundTrip(t *testing.T) {
	in := []byte(`{"id":"a","lat":22.3,"lng":114.1,"type":"Plastic","severity":"CRITICAL",
		"timestamp":"2025-01-01T00:00:00Z","verified":true,"locationName":"Pier A",
		"estimatedWeightKg":2.5,"waste_distribution":{"Plastic":3},"unique_item_count":3,
		"boundingBoxes":[{"ymin":1,"xmin":2,"ymax":3,"xmax":4,"label":"Plastic"}]}`)

	var r Report
	if err := json.Unmarshal(in, &r); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if r.Severity != taxonomy.Critical || r.ItemCount() != 3 || len(r.BoundingBoxes) != 1 {
		t.Errorf("unexpected report: %+v", r)
	}

	out, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var back map[string]interface{}
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal map failed: %v", err)
	}
	if back["locationName"] != "Pier A" || back["estimatedWeightKg"] != 2.5 || back["severity"] != "CRITICAL" {
		t.Errorf("unexpected wire shape: %s", out)
	}
}

func TestFilter(t *testing.T) {
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	reports := []Report{
		{ID: "1", Type: "Plastic", Severity: taxonomy.High, Timestamp: now.Add(-2 * 24 * time.Hour), Verified: true},
		{ID: "2", Type: "Metal", Severity: taxonomy.Low, Timestamp: now.Add(-10 * 24 * time.Hour)},
		{ID: "3", Type: "Other", Severity: taxonomy.High, Timestamp: now.Add(-40 * 24 * time.Hour), WasteDistribution: map[string]int{"plastic bag": 2}},
		{ID: "4", Type: "Glass", Severity: taxonomy.Critical},
	}

	testCases := []struct {
		name   string
		filter Filter
		expect []string
	}{
		{"no filter", Filter{}, []string{"1", "2", "3", "4"}},
		{"all keyword", Filter{Type: "ALL", Severity: "ALL", Range: "ALL"}, []string{"1", "2", "3", "4"}},
		{"week", Filter{Range: RangeWeek}, []string{"1", "4"}},
		{"month", Filter{Range: RangeMonth}, []string{"1", "2", "4"}},
		{"severity", Filter{Severity: "high"}, []string{"1", "3"}},
		{"type via distribution", Filter{Type: "Plastic"}, []string{"1", "3"}},
		{"verified", Filter{VerifiedOnly: true}, []string{"1"}},
	}

	for _, tc := range testCases {
		got := tc.filter.Apply(reports, now)
		ids := make([]string, 0, len(got))
		for _, r := range got {
			ids = append(ids, r.ID)
		}
		if len(ids) != len(tc.expect) {
			t.Errorf("%s: got %v, expected %v", tc.name, ids, tc.expect)
			continue
		}
		for i := range ids {
			if ids[i] != tc.expect[i] {
				t.Errorf("%s: got %v, expected %v", tc.name, ids, tc.expect)
				break
			}
		}
	}
}

func TestToReport(t *testing.T) {
	sub := "Bottle"
	d := &DetectionResult{
		ID:                "x",
		Category:          "Plastic",
		SubCategory:       &sub,
		Severity:          taxonomy.Medium,
		EstimatedWeightKg: 1.234,
		UniqueItemCount:   2,
		WasteDistribution: map[string]int{"Plastic": 2},
	}
	u := &Upload{ContentType: "video/mp4", Lat: floatPtr(1), Lng: floatPtr(2)}
	r := d.ToReport(u, "Beach")

	if r.Type != "Plastic" || r.SubType != "Bottle" || !r.Verified || r.MediaType != "video" {
		t.Errorf("unexpected report: %+v", r)
	}
	if r.EstimatedWeightKg.String() != "1.23" {
		t.Errorf("expected weight 1.23, got %s", r.EstimatedWeightKg)
	}
	if r.UniqueItemCount == nil || *r.UniqueItemCount != 2 {
		t.Errorf("expected unique item count 2")
	}
}
