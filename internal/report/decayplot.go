package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/eedt-data/drift.report/internal/t1"
)

// DecayPoint is one measured survival probability at a delay.
type DecayPoint struct {
	DelayUs  float64
	Survival float64
}

// SaveDecayPlot writes a PNG of measured survival points with the
// fitted exponential overlaid. The fitted curve is sampled out to the
// last measured delay (or one T1 when there are no points past zero).
func SaveDecayPlot(path string, fit t1.DecayFit, points []DecayPoint) error {
	if len(points) == 0 {
		return fmt.Errorf("no decay points to plot")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("T1 Relaxation (T1 = %.1f µs)", fit.T1Us)
	p.X.Label.Text = "Delay (µs)"
	p.Y.Label.Text = "Survival probability"
	p.Y.Min = 0

	maxDelay := 0.0
	measured := make(plotter.XYs, 0, len(points))
	for _, pt := range points {
		measured = append(measured, plotter.XY{X: pt.DelayUs, Y: pt.Survival})
		if pt.DelayUs > maxDelay {
			maxDelay = pt.DelayUs
		}
	}
	if maxDelay == 0 {
		maxDelay = fit.T1Us
	}

	scatter, err := plotter.NewScatter(measured)
	if err != nil {
		return fmt.Errorf("scatter: %w", err)
	}
	scatter.Radius = vg.Points(3)
	scatter.Color = color.RGBA{R: 255, G: 82, B: 82, A: 255}
	p.Add(scatter)
	p.Legend.Add("measured", scatter)

	const samples = 100
	fitted := make(plotter.XYs, 0, samples+1)
	for i := 0; i <= samples; i++ {
		t := maxDelay * float64(i) / samples
		fitted = append(fitted, plotter.XY{X: t, Y: fit.Survival(t)})
	}
	line, err := plotter.NewLine(fitted)
	if err != nil {
		return fmt.Errorf("line: %w", err)
	}
	line.Width = vg.Points(1)
	line.Color = color.RGBA{R: 53, G: 183, B: 121, A: 255}
	p.Add(line)
	p.Legend.Add("fit", line)

	p.Legend.Top = true
	p.Legend.Left = false

	if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save decay plot: %w", err)
	}
	return nil
}
