// Package bandwidth derives per-cell smoothing bandwidths and window radii
// from an ice thickness grid.
package bandwidth

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"glaciersmooth/pkg/kernel"
)

// Params are the scalars that turn thickness into a smoothing window.
// SigmaK multiplies thickness into a bandwidth in the units of Dx and Dy.
// WK is the Gaussian truncation in bandwidths and WMax caps the window
// half-width in physical units.
type Params struct {
	SigmaK float64 `yaml:"sigma_k" mapstructure:"sigma_k"`
	WK     float64 `yaml:"w_k" mapstructure:"w_k"`
	WMax   float64 `yaml:"w_max" mapstructure:"w_max"`
	Dx     float64 `yaml:"dx" mapstructure:"dx"`
	Dy     float64 `yaml:"dy" mapstructure:"dy"`
}

// ParameterError reports a smoothing parameter that is not a strictly
// positive finite number.
type ParameterError struct {
	Name  string
	Value float64
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("bandwidth: parameter %s must be positive and finite, got %g", e.Name, e.Value)
}

// Validate checks the parameters used by kernel kind k. WK only matters
// for the Gaussian.
func (p Params) Validate(k kernel.Kind) error {
	type named struct {
		name string
		v    float64
	}
	check := []named{
		{"dx", p.Dx},
		{"dy", p.Dy},
		{"sigma_k", p.SigmaK},
		{"w_max", p.WMax},
	}
	if k == kernel.KindGaussian {
		check = append(check, named{"w_k", p.WK})
	}
	for _, c := range check {
		if !(c.v > 0) || math.IsInf(c.v, 0) {
			return &ParameterError{Name: c.name, Value: c.v}
		}
	}
	return nil
}

// Sigma is the bandwidth for one cell. Missing, negative or infinite
// thickness gives zero.
func Sigma(thickness, sigmaK float64) float64 {
	if !(thickness > 0) || math.IsInf(thickness, 1) {
		return 0
	}
	return sigmaK * thickness
}

// HalfWidth is the physical window half-width for a bandwidth. The
// Gaussian is truncated at wK bandwidths; the triangular kernel has
// compact support equal to the bandwidth. Both are capped at wMax.
func HalfWidth(k kernel.Kind, sigma, wK, wMax float64) float64 {
	if sigma <= 0 {
		return 0
	}
	w := sigma
	if !k.CompactSupport() {
		w = wK * sigma
	}
	return math.Min(w, wMax)
}

// RadiusLimit bounds a cell radius. Any radius this large already covers
// every grid that fits in memory.
const RadiusLimit = math.MaxInt32

// Radii converts a physical half-width to cell counts along x and y,
// clamped to RadiusLimit.
func Radii(halfWidth, dx, dy float64) (rx, ry int) {
	if !(halfWidth > 0) {
		return 0, 0
	}
	return cells(halfWidth / dx), cells(halfWidth / dy)
}

func cells(r float64) int {
	r = math.Ceil(r)
	if !(r < RadiusLimit) {
		return RadiusLimit
	}
	return int(r)
}

// Field holds the derived bandwidth values of every cell of a grid.
type Field struct {
	Rows, Cols int

	Sigma     *mat.Dense
	HalfWidth *mat.Dense

	// RadiusX and RadiusY are row-major cell radii.
	RadiusX []int
	RadiusY []int
}

// NewField allocates an empty field of the given shape.
func NewField(rows, cols int) *Field {
	return &Field{
		Rows:      rows,
		Cols:      cols,
		Sigma:     mat.NewDense(rows, cols, nil),
		HalfWidth: mat.NewDense(rows, cols, nil),
		RadiusX:   make([]int, rows*cols),
		RadiusY:   make([]int, rows*cols),
	}
}

// FillRows computes rows [r0, r1) of the field. Calls on disjoint row
// ranges may run concurrently.
func (f *Field) FillRows(r0, r1 int, thickness mat.Matrix, k kernel.Kind, p Params) {
	for i := r0; i < r1; i++ {
		for j := 0; j < f.Cols; j++ {
			s := Sigma(thickness.At(i, j), p.SigmaK)
			w := HalfWidth(k, s, p.WK, p.WMax)
			rx, ry := Radii(w, p.Dx, p.Dy)
			f.Sigma.Set(i, j, s)
			f.HalfWidth.Set(i, j, w)
			f.RadiusX[i*f.Cols+j] = rx
			f.RadiusY[i*f.Cols+j] = ry
		}
	}
}

// Build computes the field for a whole thickness grid after validating p.
func Build(thickness mat.Matrix, k kernel.Kind, p Params) (*Field, error) {
	if err := p.Validate(k); err != nil {
		return nil, err
	}
	r, c := thickness.Dims()
	f := NewField(r, c)
	f.FillRows(0, r, thickness, k, p)
	return f, nil
}

// Radius returns the cell radii at (i, j).
func (f *Field) Radius(i, j int) (rx, ry int) {
	n := i*f.Cols + j
	return f.RadiusX[n], f.RadiusY[n]
}

// MaxRadius returns the largest radii in the field.
func (f *Field) MaxRadius() (rx, ry int) {
	for n := range f.RadiusX {
		rx = max(rx, f.RadiusX[n])
		ry = max(ry, f.RadiusY[n])
	}
	return rx, ry
}
