package charts

import (
	"io"

	"ecowing/dashboard"
	"ecowing/i18n"
	"ecowing/taxonomy"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const barColor = "#0ea5e9"

// SeverityPie is the severity share, colored like the map markers.
func SeverityPie(s dashboard.Summary, l i18n.Labels) *charts.Pie {
	pie := charts.NewPie()
	pie.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: l.Charts.Severity}))

	items := make([]opts.PieData, 0, len(s.SeverityCounts))
	for _, d := range s.SeverityCounts {
		if d.Value == 0 {
			continue
		}
		items = append(items, opts.PieData{
			Name:      l.Severity(taxonomy.Severity(d.Name)),
			Value:     d.Value,
			ItemStyle: &opts.ItemStyle{Color: d.Color},
		})
	}
	pie.AddSeries("severity", items)
	return pie
}

// CategoryBar is the item count per material category.
func CategoryBar(s dashboard.Summary, l i18n.Labels) *charts.Bar {
	names := make([]string, 0, len(s.TypeCounts))
	items := make([]opts.BarData, 0, len(s.TypeCounts))
	for _, d := range s.TypeCounts {
		names = append(names, l.Category(d.Name))
		items = append(items, opts.BarData{Value: d.Value})
	}
	return bar(l.Charts.Types, names, items)
}

// TopSitesBar ranks the busiest sites by item count.
func TopSitesBar(s dashboard.Summary, l i18n.Labels) *charts.Bar {
	names := make([]string, 0, len(s.TopSites))
	items := make([]opts.BarData, 0, len(s.TopSites))
	for _, v := range s.TopSites {
		names = append(names, v.Location)
		items = append(items, opts.BarData{
			Value:     v.TotalItems,
			ItemStyle: &opts.ItemStyle{Color: v.Color},
		})
	}
	return bar(l.Charts.TopSites, names, items)
}

func bar(title string, names []string, items []opts.BarData) *charts.Bar {
	b := charts.NewBar()
	b.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: title}))
	b.SetXAxis(names).AddSeries("items", items, charts.WithItemStyleOpts(opts.ItemStyle{Color: barColor}))
	return b
}

// Render writes the dashboard charts as a standalone HTML page.
func Render(w io.Writer, s dashboard.Summary, l i18n.Labels) error {
	page := components.NewPage()
	page.AddCharts(
		SeverityPie(s, l),
		CategoryBar(s, l),
		TopSitesBar(s, l),
	)
	return page.Render(w)
}
