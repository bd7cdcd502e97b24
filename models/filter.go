package models

import (
	"math"
	"strings"
	"time"

	"ecowing/taxonomy"
)

const (
	RangeAll   = "ALL"
	RangeWeek  = "WEEK"
	RangeMonth = "MONTH"
)

// Filter narrows the report set before aggregation. Empty fields or "ALL"
// disable a criterion.
type Filter struct {
	Type         string `form:"type" json:"type,omitempty"`
	Severity     string `form:"severity" json:"severity,omitempty"`
	Range        string `form:"range" json:"range,omitempty"`
	VerifiedOnly bool   `form:"verified" json:"verified,omitempty"`
}

func active(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && !strings.EqualFold(v, RangeAll)
}

// ageDays counts whole days between t and now, rounding partial days up.
// A zero timestamp is treated as "now".
func ageDays(t, now time.Time) int {
	if t.IsZero() {
		return 0
	}
	diff := math.Abs(float64(now.Sub(t)))
	return int(math.Ceil(diff / float64(24*time.Hour)))
}

func (f Filter) matchesType(r *Report) bool {
	if strings.EqualFold(r.Type, f.Type) {
		return true
	}
	want := taxonomy.NormalizeCategory(f.Type)
	if !strings.EqualFold(want, f.Type) {
		return false
	}
	for _, c := range r.Categories() {
		if c == want {
			return true
		}
	}
	return false
}

// Match reports whether r passes every active criterion.
func (f Filter) Match(r *Report, now time.Time) bool {
	if f.VerifiedOnly && !r.Verified {
		return false
	}
	if active(f.Type) && !f.matchesType(r) {
		return false
	}
	if active(f.Severity) && taxonomy.ParseSeverity(f.Severity) != r.Severity {
		return false
	}
	switch strings.ToUpper(strings.TrimSpace(f.Range)) {
	case RangeWeek:
		if ageDays(r.Timestamp, now) > 7 {
			return false
		}
	case RangeMonth:
		if ageDays(r.Timestamp, now) > 30 {
			return false
		}
	}
	return true
}

// Apply returns the reports that pass the filter, in their original order.
func (f Filter) Apply(reports []Report, now time.Time) []Report {
	out := make([]Report, 0, len(reports))
	for i := range reports {
		if f.Match(&reports[i], now) {
			out = append(out, reports[i])
		}
	}
	return out
}
