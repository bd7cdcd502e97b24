package i18n

import (
	"ecowing/taxonomy"

	"golang.org/x/text/language"
)

var (
	EN = language.English
	ZH = language.TraditionalChinese
)

// Simplified and Traditional Chinese both get the ZH labels.
var matcher = language.NewMatcher([]language.Tag{EN, language.Chinese, ZH})

// Labels is the set of display strings for one language.
type Labels struct {
	Lang            string            `json:"lang"`
	Categories      map[string]string `json:"categories"`
	Severities      map[string]string `json:"severities"`
	Unspecified     string            `json:"unspecified"`
	UnknownLocation string            `json:"unknownLocation"`
	Charts          ChartTitles       `json:"charts"`
}

// ChartTitles label the dashboard charts.
type ChartTitles struct {
	Severity string `json:"severity"`
	Types    string `json:"types"`
	TopSites string `json:"topSites"`
}

var english = Labels{
	Lang: "en",
	Categories: map[string]string{
		taxonomy.Plastic: "Plastic",
		taxonomy.Metal:   "Metal",
		taxonomy.Glass:   "Glass",
		taxonomy.Paper:   "Paper",
		taxonomy.Fabric:  "Fabric",
		taxonomy.Rubber:  "Rubber",
		taxonomy.Wood:    "Wood",
		taxonomy.Other:   "Other",
	},
	Severities: map[string]string{
		string(taxonomy.Low):      "Low",
		string(taxonomy.Medium):   "Medium",
		string(taxonomy.High):     "High",
		string(taxonomy.Critical): "Critical",
	},
	Unspecified:     "Unspecified",
	UnknownLocation: "Unknown Location",
	Charts: ChartTitles{
		Severity: "Severity",
		Types:    "Waste by type",
		TopSites: "Top sites",
	},
}

var chinese = Labels{
	Lang: "zh",
	Categories: map[string]string{
		taxonomy.Plastic: "塑膠",
		taxonomy.Metal:   "金屬",
		taxonomy.Glass:   "玻璃",
		taxonomy.Paper:   "紙張",
		taxonomy.Fabric:  "布料",
		taxonomy.Rubber:  "橡膠",
		taxonomy.Wood:    "木材",
		taxonomy.Other:   "其他",
	},
	Severities: map[string]string{
		string(taxonomy.Low):      "低",
		string(taxonomy.Medium):   "中",
		string(taxonomy.High):     "高",
		string(taxonomy.Critical): "極高",
	},
	Unspecified:     "未指定",
	UnknownLocation: "未知位置",
	Charts: ChartTitles{
		Severity: "嚴重程度",
		Types:    "廢物類型",
		TopSites: "熱點地點",
	},
}

// Match picks the best supported language for an Accept-Language header or
// a bare code such as "zh". Anything unrecognized falls back to English.
func Match(accept string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return EN
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No || idx == 0 {
		return EN
	}
	return ZH
}

// For returns the labels for a language.
func For(tag language.Tag) Labels {
	if tag == ZH {
		return chinese
	}
	return english
}

// Category translates a canonical category, returning it unchanged when no
// label exists.
func (l Labels) Category(c string) string {
	if v, ok := l.Categories[c]; ok {
		return v
	}
	return c
}

func (l Labels) Severity(s taxonomy.Severity) string {
	if v, ok := l.Severities[string(s)]; ok {
		return v
	}
	return string(s)
}
