package taxonomy

import "strings"

// Severity is a pollution severity label. Unrecognized labels are kept
// verbatim so they survive a round trip through storage.
type Severity string

const (
	Low      Severity = "LOW"
	Medium   Severity = "MEDIUM"
	High     Severity = "HIGH"
	Critical Severity = "CRITICAL"
)

// Severities lists the known labels from lowest to highest.
var Severities = []Severity{Low, Medium, High, Critical}

var severityRank = map[Severity]int{
	Low:      1,
	Medium:   2,
	High:     3,
	Critical: 4,
}

// ParseSeverity trims and upper-cases a raw label.
func ParseSeverity(s string) Severity {
	return Severity(strings.ToUpper(strings.TrimSpace(s)))
}

// Rank returns the ordinal of a severity. Unknown labels rank 0, below LOW.
func Rank(s Severity) int {
	return severityRank[s]
}

// Known reports whether s is one of the four defined labels.
func (s Severity) Known() bool {
	return Rank(s) > 0
}

// Max returns whichever of current and incoming ranks higher. Ties keep
// current, so an unknown label never replaces a known one.
func Max(current, incoming Severity) Severity {
	if Rank(incoming) > Rank(current) {
		return incoming
	}
	return current
}

// HeatWeight is the intensity used for the map heat layer.
func HeatWeight(s Severity) float64 {
	switch s {
	case Critical:
		return 1.0
	case High:
		return 0.7
	case Medium:
		return 0.4
	case Low:
		return 0.15
	default:
		return 0.1
	}
}

// Color returns the marker color for a severity.
func Color(s Severity) string {
	switch s {
	case Low:
		return "#10b981"
	case Medium:
		return "#facc15"
	case High:
		return "#f97316"
	case Critical:
		return "#ef4444"
	default:
		return "#94a3b8"
	}
}

// CleanupPriority maps severity to the coarse priority stored on reports.
func CleanupPriority(s Severity) string {
	if s == High || s == Critical {
		return "High"
	}
	return "Medium"
}

// IsHighRisk is true for HIGH and CRITICAL.
func IsHighRisk(s Severity) bool {
	return Rank(s) >= Rank(High)
}
