// Package synthdem generates synthetic ice-cap DEMs for demos and tests.
package synthdem

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Params describes a dome-shaped ice cap on a sloping bed.
type Params struct {
	Rows int     `yaml:"rows" mapstructure:"rows"`
	Cols int     `yaml:"cols" mapstructure:"cols"`
	Dx   float64 `yaml:"dx" mapstructure:"dx"`
	Dy   float64 `yaml:"dy" mapstructure:"dy"`

	// MaxThickness is the thickness at the dome centre and Radius the
	// distance from the centre to the margin.
	MaxThickness float64 `yaml:"max_thickness" mapstructure:"max_thickness"`
	Radius       float64 `yaml:"radius" mapstructure:"radius"`

	BedElevation float64 `yaml:"bed_elevation" mapstructure:"bed_elevation"`
	// BedSlope is the bed gradient along x, in elevation units per unit
	// distance.
	BedSlope float64 `yaml:"bed_slope" mapstructure:"bed_slope"`

	// Noise is the standard deviation of the surface noise and
	// MissingFraction the share of surface cells dropped as missing.
	Noise           float64 `yaml:"noise" mapstructure:"noise"`
	MissingFraction float64 `yaml:"missing_fraction" mapstructure:"missing_fraction"`

	Seed uint64 `yaml:"seed" mapstructure:"seed"`
}

// Validate checks that p describes a usable grid.
func (p Params) Validate() error {
	switch {
	case p.Rows <= 0 || p.Cols <= 0:
		return fmt.Errorf("synthdem: grid must be non-empty, got %dx%d", p.Rows, p.Cols)
	case !(p.Dx > 0) || !(p.Dy > 0):
		return fmt.Errorf("synthdem: dx and dy must be positive")
	case !(p.Radius > 0):
		return fmt.Errorf("synthdem: radius must be positive")
	case p.MaxThickness < 0 || p.Noise < 0:
		return fmt.Errorf("synthdem: max_thickness and noise must not be negative")
	case p.MissingFraction < 0 || p.MissingFraction >= 1:
		return fmt.Errorf("synthdem: missing_fraction must be in [0, 1)")
	}
	return nil
}

// Thickness is the Vialov steady-state profile at distance r from the
// dome centre.
func Thickness(r, maxThickness, radius float64) float64 {
	if r >= radius {
		return 0
	}
	return maxThickness * math.Pow(1-math.Pow(r/radius, 4.0/3), 3.0/8)
}

// Generate returns surface and thickness grids. The same Params always
// give the same grids.
func Generate(p Params) (surface, thickness *mat.Dense, err error) {
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}
	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))
	noise := distuv.Normal{Mu: 0, Sigma: p.Noise, Src: rand.NewPCG(p.Seed+1, p.Seed)}

	surface = mat.NewDense(p.Rows, p.Cols, nil)
	thickness = mat.NewDense(p.Rows, p.Cols, nil)
	cx := float64(p.Cols-1) / 2 * p.Dx
	cy := float64(p.Rows-1) / 2 * p.Dy
	for i := 0; i < p.Rows; i++ {
		for j := 0; j < p.Cols; j++ {
			x, y := float64(j)*p.Dx, float64(i)*p.Dy
			h := Thickness(math.Hypot(x-cx, y-cy), p.MaxThickness, p.Radius)
			bed := p.BedElevation + p.BedSlope*(x-cx)
			z := bed + h
			if p.Noise > 0 {
				z += noise.Rand()
			}
			thickness.Set(i, j, h)
			surface.Set(i, j, z)
		}
	}

	missing := int(p.MissingFraction * float64(p.Rows*p.Cols))
	for _, n := range rng.Perm(p.Rows * p.Cols)[:missing] {
		surface.Set(n/p.Cols, n%p.Cols, math.NaN())
	}
	return surface, thickness, nil
}
