package sim

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// NewPolarPlot renders reconstructed surface profiles at the selected time
// steps. profile rows are indexed by angle (in degrees) and columns by time
// step; each selected step becomes one polar trace in the x-y plane.
// It returns error if either of the following conditions is met:
// * profile is nil or its angle count does not match angles
// * no steps are selected or a step is out of range
// * a gonum plot element fails to be created
func NewPolarPlot(angles []float64, profile *mat.Dense, steps []int) (*plot.Plot, error) {
	if profile == nil {
		return nil, fmt.Errorf("invalid profile supplied")
	}

	rows, cols := profile.Dims()
	if rows != len(angles) {
		return nil, fmt.Errorf("invalid profile dimensions: %d rows for %d angles", rows, len(angles))
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("no time steps selected")
	}

	p := plot.New()

	p.Title.Text = "Surface profile"
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	for k, step := range steps {
		if step < 0 || step >= cols {
			return nil, fmt.Errorf("time step out of range: %d", step)
		}

		pts := make(plotter.XYs, len(angles))
		for i, a := range angles {
			theta := a * math.Pi / 180.0
			r := profile.At(i, step)
			pts[i].X = r * math.Cos(theta)
			pts[i].Y = r * math.Sin(theta)
		}

		shade := uint8(200 - 150*k/len(steps))
		traceColor := color.RGBA{R: shade, B: 255 - shade, A: 255}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.Color = traceColor
		p.Add(line)

		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create scatter: %v", err)
		}
		scatter.GlyphStyle.Color = traceColor
		scatter.Shape = draw.CircleGlyph{}
		scatter.GlyphStyle.Radius = vg.Points(2)
		p.Add(scatter)

		p.Legend.Add(fmt.Sprintf("t=%d", step), line)
	}

	return p, nil
}
