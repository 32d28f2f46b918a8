package heatmapplotter

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Curve is one sampled kernel shape.
type Curve struct {
	Label            string
	Offsets, Weights []float64
}

// KernelPlot draws weight against offset for each curve and saves it to
// filename in the format given by its extension.
func KernelPlot(title string, curves []Curve, filename string) error {
	if len(curves) == 0 {
		return fmt.Errorf("heatmapplotter: no kernel curves to plot")
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "offset"
	p.Y.Label.Text = "weight"
	p.Y.Min, p.Y.Max = 0, 1.05
	p.Legend.Top = true

	for i, c := range curves {
		if len(c.Offsets) != len(c.Weights) {
			return fmt.Errorf("heatmapplotter: curve %q has %d offsets and %d weights",
				c.Label, len(c.Offsets), len(c.Weights))
		}
		pts := make(plotter.XYs, len(c.Offsets))
		for k := range pts {
			pts[k].X, pts[k].Y = c.Offsets[k], c.Weights[k]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(i)
		line.Dashes = plotutil.Dashes(i)
		p.Add(line)
		p.Legend.Add(c.Label, line)
	}
	return p.Save(16*vg.Centimeter, 10*vg.Centimeter, filename)
}
