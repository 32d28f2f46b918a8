package heatmapplotter

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
	"gonum.org/v1/plot/vg/vgpdf"
)

// Extent places a grid in map coordinates: cell (r, c) is centred at
// (X0+(c+0.5)*Dx, Y0+(r+0.5)*Dy).
type Extent struct {
	X0, Y0, Dx, Dy float64
}

// MakeHeatmapPlot draws data as a heatmap with a colour legend and writes
// it to filename. The format follows the extension: .png gives a PNG and
// anything else a PDF. Missing cells are left transparent and the colour
// range spans the valid data.
func MakeHeatmapPlot(data mat.Matrix, title, filename string, ext Extent) error {
	lo, hi, ok := dataRange(data)
	if !ok {
		return fmt.Errorf("heatmapplotter: %s has no valid cells", title)
	}
	if lo == hi {
		hi = lo + 1
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"

	pal := palette.Rainbow(10, palette.Blue, palette.Red, 1, 1, 1)
	heatmap := plotter.NewHeatMap(matrixToGrid(data, ext), pal)
	heatmap.Min = lo
	heatmap.Max = hi
	heatmap.NaN = color.Transparent
	p.Add(heatmap)

	l := plot.NewLegend()
	thumbs := plotter.PaletteThumbnailers(pal)
	nthumbs := len(thumbs)
	for i := nthumbs - 1; i >= 0; i-- {
		val := heatmap.Min + (heatmap.Max-heatmap.Min)/float64(nthumbs-1)*float64(i)
		l.Add(fmt.Sprintf("%.4g", val), thumbs[i])
	}

	p.X.Padding = 0
	p.Y.Padding = 0

	const width, height = 18 * vg.Centimeter, 14 * vg.Centimeter
	var (
		canvas vg.CanvasSizer
		writer io.WriterTo
	)
	if strings.EqualFold(filepath.Ext(filename), ".png") {
		c := vgimg.New(width, height)
		canvas, writer = c, vgimg.PngCanvas{Canvas: c}
	} else {
		c := vgpdf.New(width, height)
		canvas, writer = c, c
	}
	dc := draw.New(canvas)

	l.Top = true
	r := l.Rectangle(dc)
	legendWidth := r.Max.X - r.Min.X
	l.YOffs = -p.Title.TextStyle.FontExtents().Height
	l.Draw(dc)
	dc = draw.Crop(dc, 0, -legendWidth-vg.Millimeter, 0, 0)
	p.Draw(dc)

	w, err := os.Create(filename)
	if err != nil {
		return err
	}
	if _, err = writer.WriteTo(w); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func dataRange(m mat.Matrix) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo, hi = math.Min(lo, v), math.Max(hi, v)
			ok = true
		}
	}
	return lo, hi, ok
}

func matrixToGrid(m mat.Matrix, ext Extent) plotter.GridXYZ {
	if ext.Dx == 0 {
		ext.Dx = 1
	}
	if ext.Dy == 0 {
		ext.Dy = 1
	}
	rows, cols := m.Dims()
	return grid{Matrix: m, Rows: rows, Cols: cols, Extent: ext}
}

type grid struct {
	Matrix     mat.Matrix
	Rows, Cols int
	Extent
}

func (g grid) Dims() (c, r int) { return g.Cols, g.Rows }
func (g grid) Z(c, r int) float64 {
	v := g.Matrix.At(r, c)
	if math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}
func (g grid) X(c int) float64 { return g.X0 + (float64(c)+0.5)*g.Dx }
func (g grid) Y(r int) float64 { return g.Y0 + (float64(r)+0.5)*g.Dy }
