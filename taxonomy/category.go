package taxonomy

import "strings"

const (
	Plastic = "Plastic"
	Metal   = "Metal"
	Glass   = "Glass"
	Paper   = "Paper"
	Fabric  = "Fabric"
	Rubber  = "Rubber"
	Wood    = "Wood"
	Other   = "Other"
)

// Categories is the fixed display order of material categories.
var Categories = []string{Plastic, Metal, Glass, Paper, Fabric, Rubber, Wood, Other}

// Subcategories is the detection taxonomy, keyed by category.
var Subcategories = map[string][]string{
	Plastic: {"Bottle", "Bag", "Box", "Fishing Gear", "Microplastic", "Container", "Fragment", "Bottle Cap", "Sheet", "Styrofoam"},
	Metal:   {"Can", "Scrap", "Wire"},
	Glass:   {"Bottle", "Shard"},
	Paper:   {"Paper", "Cardboard", "Box", "Carton"},
	Fabric:  {"Clothing", "Net", "Towel"},
	Rubber:  {"Rubber", "Ball", "Shoe"},
	Wood:    {"Plank", "Driftwood"},
	Other:   {"Mixed"},
}

// keywords are checked in order; the first category with a matching keyword wins.
var keywords = []struct {
	category string
	words    []string
}{
	{Plastic, []string{"plastic", "styrofoam"}},
	{Metal, []string{"metal"}},
	{Glass, []string{"glass", "ceramic"}},
	{Paper, []string{"paper", "cardboard"}},
	{Fabric, []string{"fabric", "cloth"}},
	{Rubber, []string{"rubber"}},
	{Wood, []string{"wood"}},
}

// NormalizeCategory maps a free-form material label onto one of Categories.
func NormalizeCategory(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	if l == "" {
		return Other
	}
	for _, k := range keywords {
		for _, w := range k.words {
			if strings.Contains(l, w) {
				return k.category
			}
		}
	}
	return Other
}

// IsCategory reports whether c is exactly one of the canonical categories.
func IsCategory(c string) bool {
	for _, cat := range Categories {
		if cat == c {
			return true
		}
	}
	return false
}

// NormalizeDistribution folds raw label counts into canonical categories.
// Negative counts are dropped. The result is nil if nothing remains.
func NormalizeDistribution(raw map[string]int) map[string]int {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]int, len(raw))
	for label, n := range raw {
		if n < 0 {
			continue
		}
		out[NormalizeCategory(label)] += n
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
