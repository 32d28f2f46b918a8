// Package convolve smooths a surface grid with a kernel whose bandwidth
// varies from cell to cell with ice thickness.
//
// Every output cell is a kernel-weighted average over a rectangular window
// sized by that cell's own bandwidth. Windows are clipped at the grid edge
// and missing (NaN or infinite) samples are skipped, so both cases
// renormalise the kernel instead of biasing the average.
package convolve

import (
	"io"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"glaciersmooth/pkg/bandwidth"
	"glaciersmooth/pkg/kernel"
)

// Params configures a smoothing run. Workers <= 0 uses one worker per CPU.
type Params struct {
	bandwidth.Params `yaml:",inline" mapstructure:",squash"`
	Workers          int `yaml:"workers" mapstructure:"workers"`
}

// Result is the output of a smoothing run.
type Result struct {
	Smoothed  *mat.Dense
	Bandwidth *bandwidth.Field
	// Degenerate counts cells that fell back to their input value because
	// every valid sample in the window had zero weight.
	Degenerate int
}

// Smoother runs adaptive kernel smoothing.
type Smoother struct {
	Kind   kernel.Kind
	Params Params

	// Log receives progress and degeneracy reports. Nil discards them.
	Log logrus.FieldLogger
	// OnDegenerate, if set, is called for every degenerate cell. It may be
	// called from several workers at once.
	OnDegenerate func(Degeneracy)
}

var discard = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

// NewSmoother validates p for kernel k.
func NewSmoother(k kernel.Kind, p Params) (*Smoother, error) {
	if err := p.Validate(k); err != nil {
		return nil, err
	}
	return &Smoother{Kind: k, Params: p}, nil
}

func (s *Smoother) log() logrus.FieldLogger {
	if s.Log == nil {
		return discard
	}
	return s.Log
}

// Smooth returns the smoothed surface. The inputs are not modified.
// Parameter and shape errors are reported before any work starts; a
// failure in any worker fails the whole call and no partial grid is
// returned.
func (s *Smoother) Smooth(surface, thickness mat.Matrix) (*Result, error) {
	if err := s.Params.Validate(s.Kind); err != nil {
		return nil, err
	}
	rows, cols := surface.Dims()
	tr, tc := thickness.Dims()
	if rows == 0 || cols == 0 || rows != tr || cols != tc {
		return nil, &ShapeError{rows, cols, tr, tc}
	}

	g := &grid{rows: rows, cols: cols, data: flatten(surface)}
	field := bandwidth.NewField(rows, cols)
	out := make([]float64, rows*cols)

	chunks := partitionRows(rows, s.Params.Workers)
	degenerate := make([]int, len(chunks))
	log := s.log().WithFields(logrus.Fields{
		"kernel": s.Kind.String(),
		"rows":   rows,
		"cols":   cols,
		"chunks": len(chunks),
	})
	log.Debug("smoothing started")

	err := runChunks(chunks, s.Params.Workers, func(k int, c rowRange) error {
		field.FillRows(c.start, c.end, thickness, s.Kind, s.Params.Params)
		degenerate[k] = s.convolveRows(c, g, field, out)
		log.WithFields(logrus.Fields{"start": c.start, "end": c.end}).Debug("chunk complete")
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &Result{
		Smoothed:  mat.NewDense(rows, cols, out),
		Bandwidth: field,
	}
	for _, n := range degenerate {
		res.Degenerate += n
	}
	if res.Degenerate > 0 {
		log.WithField("cells", res.Degenerate).Warn("zero kernel weight in window; input values kept")
	}
	rx, ry := field.MaxRadius()
	log.WithFields(logrus.Fields{"max_radius_x": rx, "max_radius_y": ry}).Debug("smoothing complete")
	return res, nil
}

// grid is a read-only row-major copy of the surface.
type grid struct {
	rows, cols int
	data       []float64
}

func flatten(m mat.Matrix) []float64 {
	r, c := m.Dims()
	data := make([]float64, r*c)
	if d, ok := m.(mat.RawMatrixer); ok {
		raw := d.RawMatrix()
		for i := 0; i < r; i++ {
			copy(data[i*c:(i+1)*c], raw.Data[i*raw.Stride:i*raw.Stride+c])
		}
		return data
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			data[i*c+j] = m.At(i, j)
		}
	}
	return data
}

func missing(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) }

// convolveRows writes rows [c.start, c.end) of out and returns the number
// of degenerate cells.
func (s *Smoother) convolveRows(c rowRange, g *grid, field *bandwidth.Field, out []float64) int {
	weight := s.Kind.SquaredFunc()
	dx, dy := s.Params.Dx, s.Params.Dy
	var degenerate int
	for i := c.start; i < c.end; i++ {
		for j := 0; j < g.cols; j++ {
			n := i*g.cols + j
			centre := g.data[n]
			rx, ry := field.RadiusX[n], field.RadiusY[n]
			if rx == 0 && ry == 0 {
				out[n] = centre
				continue
			}
			sigma := field.Sigma.At(i, j)

			var num, den accumulator
			valid := 0
			for di := max(-ry, -i); di <= min(ry, g.rows-1-i); di++ {
				oy := float64(di) * dy
				oy2 := oy * oy
				row := g.data[(i+di)*g.cols : (i+di+1)*g.cols]
				for dj := max(-rx, -j); dj <= min(rx, g.cols-1-j); dj++ {
					v := row[j+dj]
					if missing(v) {
						continue
					}
					valid++
					ox := float64(dj) * dx
					w := weight(sigma, ox*ox+oy2)
					if w == 0 {
						continue
					}
					num.add(w * v)
					den.add(w)
				}
			}

			if d := den.sum(); d > 0 {
				out[n] = num.sum() / d
				continue
			}
			out[n] = centre
			if valid > 0 {
				degenerate++
				if s.OnDegenerate != nil {
					s.OnDegenerate(Degeneracy{Row: i, Col: j, Valid: valid})
				}
			}
		}
	}
	return degenerate
}

// accumulator is a Neumaier compensated sum.
type accumulator struct {
	s, comp float64
}

func (a *accumulator) add(v float64) {
	t := a.s + v
	if math.Abs(a.s) >= math.Abs(v) {
		a.comp += (a.s - t) + v
	} else {
		a.comp += (v - t) + a.s
	}
	a.s = t
}

func (a *accumulator) sum() float64 { return a.s + a.comp }

// SmoothGaussian smooths surface with a Gaussian kernel of bandwidth
// sigmaK*thickness truncated at min(wK*bandwidth, wMax).
func SmoothGaussian(surface, thickness mat.Matrix, sigmaK, wK, wMax, dx, dy float64, workers int) (*mat.Dense, error) {
	return smooth(kernel.KindGaussian, surface, thickness, Params{
		Params:  bandwidth.Params{SigmaK: sigmaK, WK: wK, WMax: wMax, Dx: dx, Dy: dy},
		Workers: workers,
	})
}

// SmoothTriangular smooths surface with a triangular kernel of bandwidth
// sigmaK*thickness, with its support capped at wMax.
func SmoothTriangular(surface, thickness mat.Matrix, sigmaK, wMax, dx, dy float64, workers int) (*mat.Dense, error) {
	return smooth(kernel.KindTriangular, surface, thickness, Params{
		Params:  bandwidth.Params{SigmaK: sigmaK, WMax: wMax, Dx: dx, Dy: dy},
		Workers: workers,
	})
}

func smooth(k kernel.Kind, surface, thickness mat.Matrix, p Params) (*mat.Dense, error) {
	s, err := NewSmoother(k, p)
	if err != nil {
		return nil, err
	}
	res, err := s.Smooth(surface, thickness)
	if err != nil {
		return nil, err
	}
	return res.Smoothed, nil
}
