package dashboard

import (
	"ecowing/models"
	"ecowing/taxonomy"
)

// SiteDetails describes every report filed under one location name.
type SiteDetails struct {
	LocationName      string            `json:"locationName"`
	TotalItems        int               `json:"totalItems"`
	ReportCount       int               `json:"reports"`
	Severity          taxonomy.Severity `json:"severity"`
	WasteDistribution map[string]int    `json:"wasteDistribution"`
	Reports           []models.Report   `json:"reportList"`
}

// Details collects the reports whose location name equals location exactly.
// TotalItems only counts distribution entries. ok is false when no report
// carries that name.
func Details(reports []models.Report, location string) (SiteDetails, bool) {
	d := SiteDetails{
		LocationName:      location,
		Severity:          taxonomy.Low,
		WasteDistribution: make(map[string]int),
		Reports:           make([]models.Report, 0),
	}
	for i := range reports {
		r := &reports[i]
		if r.LocationName != location {
			continue
		}
		d.Reports = append(d.Reports, *r)
		for label, n := range r.WasteDistribution {
			d.WasteDistribution[label] += n
			d.TotalItems += n
		}
		d.Severity = taxonomy.Max(d.Severity, r.Severity)
	}
	d.ReportCount = len(d.Reports)
	return d, d.ReportCount > 0
}
