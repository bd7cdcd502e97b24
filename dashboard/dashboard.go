package dashboard

import (
	"sort"
	"time"

	"ecowing/models"
	"ecowing/sites"
	"ecowing/taxonomy"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

// ChartDatum is one bar or slice in a chart.
type ChartDatum struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
	Color string `json:"color,omitempty"`
}

// Summary is the dashboard payload.
type Summary struct {
	TotalReports   int              `json:"totalReports"`
	HighRiskCount  int              `json:"highRiskCount"`
	VerifiedCount  int              `json:"verifiedCount"`
	TotalItems     int              `json:"totalItems"`
	TotalWeightKg  decimal.Decimal  `json:"totalWeightKg"`
	MeanWeightKg   float64          `json:"meanWeightKg"`
	SeverityCounts []ChartDatum     `json:"severityCounts"`
	TypeCounts     []ChartDatum     `json:"typeCounts"`
	TopSites       []sites.SiteView `json:"topSites"`
	Filter         models.Filter    `json:"filter"`
	GeneratedAt    time.Time        `json:"generatedAt"`
}

// SeverityCounts counts reports per severity. The four known labels are
// always present in rank order; unknown labels follow alphabetically.
func SeverityCounts(reports []models.Report) []ChartDatum {
	counts := make(map[taxonomy.Severity]int)
	for i := range reports {
		counts[reports[i].Severity]++
	}

	out := make([]ChartDatum, 0, len(counts)+len(taxonomy.Severities))
	for _, s := range taxonomy.Severities {
		out = append(out, ChartDatum{Name: string(s), Value: counts[s], Color: taxonomy.Color(s)})
		delete(counts, s)
	}

	extra := make([]string, 0, len(counts))
	for s := range counts {
		extra = append(extra, string(s))
	}
	sort.Strings(extra)
	for _, s := range extra {
		sev := taxonomy.Severity(s)
		out = append(out, ChartDatum{Name: s, Value: counts[sev], Color: taxonomy.Color(sev)})
	}
	return out
}

// TypeCounts counts waste items per category. Reports with a distribution
// contribute each entry under its normalized category; the rest contribute
// their item count under their normalized type. The total therefore equals
// the sum of site totals for the same reports.
func TypeCounts(reports []models.Report) []ChartDatum {
	counts := make(map[string]int)
	for i := range reports {
		r := &reports[i]
		if r.WasteDistribution != nil {
			for label, n := range r.WasteDistribution {
				counts[taxonomy.NormalizeCategory(label)] += n
			}
			continue
		}
		counts[r.NormalizedType()] += r.ItemCount()
	}

	out := make([]ChartDatum, 0, len(taxonomy.Categories))
	for _, c := range taxonomy.Categories {
		out = append(out, ChartDatum{Name: c, Value: counts[c]})
	}
	return out
}

// DrillDown counts sub types among reports of one category.
func DrillDown(reports []models.Report, category, unspecified string) []ChartDatum {
	counts := make(map[string]int)
	for i := range reports {
		r := &reports[i]
		if r.NormalizedType() != category {
			continue
		}
		sub := r.SubType
		if sub == "" {
			sub = unspecified
		}
		counts[sub]++
	}

	out := make([]ChartDatum, 0, len(counts))
	for name, n := range counts {
		out = append(out, ChartDatum{Name: name, Value: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Summarize builds the dashboard for the filtered reports.
func Summarize(reports []models.Report, f models.Filter, topN int, now time.Time) Summary {
	filtered := f.Apply(reports, now)

	s := Summary{
		TotalReports:   len(filtered),
		TotalWeightKg:  decimal.Zero,
		SeverityCounts: SeverityCounts(filtered),
		TypeCounts:     TypeCounts(filtered),
		Filter:         f,
		GeneratedAt:    now,
	}

	weights := make([]float64, 0, len(filtered))
	for i := range filtered {
		r := &filtered[i]
		if taxonomy.IsHighRisk(r.Severity) {
			s.HighRiskCount++
		}
		if r.Verified {
			s.VerifiedCount++
		}
		s.TotalItems += r.ItemCount()
		if r.EstimatedWeightKg.IsPositive() {
			s.TotalWeightKg = s.TotalWeightKg.Add(r.EstimatedWeightKg)
			weights = append(weights, r.EstimatedWeightKg.InexactFloat64())
		}
	}
	if len(weights) > 0 {
		s.MeanWeightKg = stat.Mean(weights, nil)
	}

	s.TopSites = sites.Views(sites.Rank(sites.Aggregate(filtered), topN))
	return s
}
