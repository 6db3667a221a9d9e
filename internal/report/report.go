// Package report renders stored drift runs as charts: interactive
// ECharts HTML for the web surface and PNG decay plots for offline use.
package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/eedt-data/drift.report/internal/store"
)

// RenderDriftChart writes an HTML line chart of the run's Kalman filter
// history: raw phase measurements against the filtered estimate, with
// the gain on a secondary series so convergence is visible.
func RenderDriftChart(w io.Writer, run *store.DriftRun) error {
	if run == nil || len(run.FilterHistory) == 0 {
		return fmt.Errorf("no filter history to chart")
	}

	x := make([]string, 0, len(run.FilterHistory))
	measured := make([]opts.LineData, 0, len(run.FilterHistory))
	estimated := make([]opts.LineData, 0, len(run.FilterHistory))
	gain := make([]opts.LineData, 0, len(run.FilterHistory))
	for i, rec := range run.FilterHistory {
		x = append(x, fmt.Sprintf("%d", i+1))
		measured = append(measured, opts.LineData{Value: rec.Measurement})
		estimated = append(estimated, opts.LineData{Value: rec.Estimate})
		gain = append(gain, opts.LineData{Value: rec.Gain})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Phase Drift", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Phase Drift Tracking",
			Subtitle: fmt.Sprintf("run=%s updates=%d final_phase=%.4f rad", run.ID, len(run.FilterHistory), run.EstimatedPhase),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Update"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Phase (rad)"}),
	)

	line.SetXAxis(x).
		AddSeries("measured", measured).
		AddSeries("estimate", estimated).
		AddSeries("gain", gain).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	return line.Render(w)
}

// RenderFidelityChart writes an HTML line chart of the run's Bell
// fidelity samples against the mode-switch threshold band.
func RenderFidelityChart(w io.Writer, run *store.DriftRun, threshold, hysteresis float64) error {
	if run == nil || len(run.FidelityHistory) == 0 {
		return fmt.Errorf("no fidelity history to chart")
	}

	x := make([]string, 0, len(run.FidelityHistory))
	fidelity := make([]opts.LineData, 0, len(run.FidelityHistory))
	low := make([]opts.LineData, 0, len(run.FidelityHistory))
	high := make([]opts.LineData, 0, len(run.FidelityHistory))
	for i, f := range run.FidelityHistory {
		x = append(x, fmt.Sprintf("%d", i+1))
		fidelity = append(fidelity, opts.LineData{Value: f})
		low = append(low, opts.LineData{Value: threshold})
		high = append(high, opts.LineData{Value: threshold + hysteresis})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Bell Fidelity", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Bell Fidelity Monitoring",
			Subtitle: fmt.Sprintf("run=%s samples=%d threshold=%.2f hysteresis=%.2f", run.ID, len(run.FidelityHistory), threshold, hysteresis),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Monitor sample"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Fidelity", Min: 0, Max: 1}),
	)

	line.SetXAxis(x).
		AddSeries("fidelity", fidelity).
		AddSeries("threshold", low).
		AddSeries("recovery", high)

	return line.Render(w)
}

// RenderT1Chart writes an HTML line chart of fitted T1 and the
// recommended monitoring interval across stored runs, oldest first, so
// slow relaxation-time degradation shows up as a trend.
func RenderT1Chart(w io.Writer, runs []*store.DriftRun) error {
	if len(runs) == 0 {
		return fmt.Errorf("no runs to chart")
	}

	x := make([]string, 0, len(runs))
	t1Series := make([]opts.LineData, 0, len(runs))
	interval := make([]opts.LineData, 0, len(runs))
	meanFid := make([]opts.LineData, 0, len(runs))
	// ListRuns hands back newest first; plot left to right in time.
	for i := len(runs) - 1; i >= 0; i-- {
		run := runs[i]
		x = append(x, run.FinishedAt.Format("01-02 15:04"))
		t1Series = append(t1Series, opts.LineData{Value: run.T1Us})
		interval = append(interval, opts.LineData{Value: run.RecommendedIntervalUs})
		meanFid = append(meanFid, opts.LineData{Value: run.MeanFidelity})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Relaxation Time", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "T1 Across Runs",
			Subtitle: fmt.Sprintf("runs=%d latest_t1=%.1fµs", len(runs), runs[0].T1Us),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Run finished"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "µs"}),
	)

	line.SetXAxis(x).
		AddSeries("t1_us", t1Series).
		AddSeries("recommended_interval_us", interval).
		AddSeries("mean_fidelity", meanFid).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	return line.Render(w)
}
