package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/propagation.report/internal/db"
)

const parityChartRuns = 200

// handleParity renders the migration dashboard: per-path parity match
// rates from the mirroring modes, plus recent feed fetch durations.
func (s *Server) handleParity(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.writeError(w, http.StatusServiceUnavailable, "parity tracking requires a database")
		return
	}
	stats, err := s.db.ParityByPath()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("load parity stats: %v", err))
		return
	}
	runs, err := s.db.RecentFetchRuns(parityChartRuns)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("load fetch runs: %v", err))
		return
	}

	page := components.NewPage()
	page.AddCharts(parityBarChart(stats), s.fetchRunScatter(runs))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("render parity page: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(buf.Bytes()); err != nil {
		logWriteError(err)
	}
}

func parityBarChart(stats []db.ParityPathStat) *charts.Bar {
	paths := make([]string, 0, len(stats))
	rates := make([]opts.BarData, 0, len(stats))
	totalSamples := 0
	for _, st := range stats {
		rate := 0.0
		if st.Samples > 0 {
			rate = float64(st.Matches) / float64(st.Samples) * 100
		}
		paths = append(paths, st.Path)
		rates = append(rates, opts.BarData{Value: rate})
		totalSamples += st.Samples
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Upstream Parity", Width: "1200px", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Upstream Parity by Path", Subtitle: fmt.Sprintf("paths=%d samples=%d", len(stats), totalSamples)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 100, Name: "match %"}),
	)
	bar.SetXAxis(paths).
		AddSeries("match rate", rates,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

// fetchRunScatter plots one point per feed fetch: age against duration,
// colored by outcome so upstream trouble shows as a red band.
func (s *Server) fetchRunScatter(runs []db.FetchRun) *charts.Scatter {
	now := s.clock.Now()
	pts := make([]opts.ScatterData, 0, len(runs))
	failures := 0
	for _, run := range runs {
		ageMin := float64(now.Unix()-run.StartedAt) / 60.0
		ok := 1.0
		if !run.OK {
			ok = 0.0
			failures++
		}
		pts = append(pts, opts.ScatterData{Value: []interface{}{ageMin, run.DurationMs, ok}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Feed Fetch Runs", Width: "1200px", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Feed Fetch Durations", Subtitle: fmt.Sprintf("runs=%d failures=%d", len(runs), failures)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "age (min)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "duration (ms)", NameLocation: "middle", NameGap: 40}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:      opts.Bool(true),
			Min:       0,
			Max:       1,
			Dimension: "2",
			InRange:   &opts.VisualMapInRange{Color: []string{"#d62728", "#2ca02c"}},
		}),
	)
	scatter.AddSeries("fetches", pts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	return scatter
}
