// Package report summarizes a call log and renders it as an HTML page.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/regiondispatch/core/calllog"
	"github.com/kilianp07/regiondispatch/core/model"
)

// TierSummary aggregates the calls of one priority tier.
type TierSummary struct {
	Priority     model.Priority
	Calls        int
	Reached      int
	MeanResponse float64
	P90Response  float64
	Forced       int
	Override     int
}

// Summary aggregates a call log.
type Summary struct {
	Total  int
	Zones  []string
	ByZone map[string]map[model.Priority]int
	Tiers  []TierSummary
}

// Summarize groups records by zone and priority. Response statistics are in
// seconds and only count calls a unit reached.
func Summarize(recs []calllog.Record) Summary {
	s := Summary{Total: len(recs), ByZone: make(map[string]map[model.Priority]int)}
	responses := make(map[model.Priority][]float64)
	tiers := make(map[model.Priority]*TierSummary)
	for _, p := range model.Priorities {
		tiers[p] = &TierSummary{Priority: p}
	}
	for _, r := range recs {
		if s.ByZone[r.ZoneID] == nil {
			s.ByZone[r.ZoneID] = make(map[model.Priority]int)
			s.Zones = append(s.Zones, r.ZoneID)
		}
		s.ByZone[r.ZoneID][r.Priority]++
		ts, ok := tiers[r.Priority]
		if !ok {
			continue
		}
		ts.Calls++
		switch r.Closure {
		case "forced":
			ts.Forced++
		case "override":
			ts.Override++
		}
		if rt := r.ResponseTime(); rt > 0 {
			responses[r.Priority] = append(responses[r.Priority], rt.Seconds())
		}
	}
	sort.Strings(s.Zones)
	for _, p := range model.Priorities {
		ts := tiers[p]
		xs := responses[p]
		ts.Reached = len(xs)
		if len(xs) > 0 {
			sort.Float64s(xs)
			ts.MeanResponse = stat.Mean(xs, nil)
			ts.P90Response = stat.Quantile(0.9, stat.Empirical, xs, nil)
		}
		s.Tiers = append(s.Tiers, *ts)
	}
	return s
}

// Render writes an HTML page with the calls per zone and the response times
// per tier.
func Render(w io.Writer, s Summary) error {
	zones := charts.NewBar()
	zones.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Calls per zone", Subtitle: fmt.Sprintf("%d calls", s.Total)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Zone"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Calls"}),
	)
	zones.SetXAxis(s.Zones)
	for _, p := range model.Priorities {
		data := make([]opts.BarData, 0, len(s.Zones))
		for _, z := range s.Zones {
			data = append(data, opts.BarData{Value: s.ByZone[z][p]})
		}
		zones.AddSeries(p.String(), data, charts.WithBarChartOpts(opts.BarChart{Stack: "calls"}))
	}

	resp := charts.NewBar()
	resp.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Response time per tier"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Priority"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Seconds"}),
	)
	var names []string
	var mean, p90 []opts.BarData
	for _, t := range s.Tiers {
		names = append(names, t.Priority.String())
		mean = append(mean, opts.BarData{Value: t.MeanResponse})
		p90 = append(p90, opts.BarData{Value: t.P90Response})
	}
	resp.SetXAxis(names).
		AddSeries("mean", mean).
		AddSeries("p90", p90)

	page := components.NewPage()
	page.PageTitle = "Dispatch report"
	page.AddCharts(zones, resp)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}
