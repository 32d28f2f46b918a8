// Package kernel holds the distance weighting functions used by the
// adaptive smoother. The functions are pure and can be evaluated on their
// own, for example to plot a kernel shape.
package kernel

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Func maps a bandwidth and a signed physical offset to a weight in [0, 1].
type Func func(sigma, offset float64) float64

// Kind identifies a kernel family.
type Kind int

const (
	KindGaussian Kind = iota
	KindTriangular
)

// Gaussian returns exp(-offset²/(2σ²)). A zero bandwidth is a point mass:
// weight 1 at offset 0 and 0 everywhere else.
func Gaussian(sigma, offset float64) float64 {
	if sigma <= 0 {
		return pointMass(offset)
	}
	z := offset / sigma
	return math.Exp(-z * z / 2)
}

// Triangular returns max(0, 1-|offset|/σ), with the same zero-bandwidth
// convention as Gaussian.
func Triangular(sigma, offset float64) float64 {
	if sigma <= 0 {
		return pointMass(offset)
	}
	return math.Max(0, 1-math.Abs(offset)/sigma)
}

func pointMass(offset float64) float64 {
	if offset == 0 {
		return 1
	}
	return 0
}

// ParseKind accepts "gaussian" or "triangular", case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gaussian", "gauss":
		return KindGaussian, nil
	case "triangular", "triangle":
		return KindTriangular, nil
	}
	return 0, fmt.Errorf("kernel: unknown kernel %q (want gaussian or triangular)", s)
}

func (k Kind) String() string {
	switch k {
	case KindGaussian:
		return "gaussian"
	case KindTriangular:
		return "triangular"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Func returns the weight function of the family.
func (k Kind) Func() Func {
	if k == KindTriangular {
		return Triangular
	}
	return Gaussian
}

// Weight evaluates the family's weight function.
func (k Kind) Weight(sigma, offset float64) float64 {
	return k.Func()(sigma, offset)
}

// CompactSupport reports whether the kernel is exactly zero beyond its
// bandwidth.
func (k Kind) CompactSupport() bool { return k == KindTriangular }

// SquaredFunc returns the family's weight as a function of the squared
// offset, so SquaredFunc()(σ, d*d) == Func()(σ, d). The Gaussian form needs
// no square root per neighbour.
func (k Kind) SquaredFunc() func(sigma, d2 float64) float64 {
	if k == KindTriangular {
		return func(sigma, d2 float64) float64 {
			return Triangular(sigma, math.Sqrt(d2))
		}
	}
	return func(sigma, d2 float64) float64 {
		if sigma <= 0 || d2 == 0 {
			return pointMass(d2)
		}
		// Dividing twice keeps σ² from underflowing for tiny bandwidths.
		return math.Exp(-d2 / sigma / sigma / 2)
	}
}

// Sample evaluates f at n evenly spaced offsets spanning [-extent, extent].
func Sample(f Func, sigma, extent float64, n int) (offsets, weights []float64) {
	if n < 2 {
		n = 2
	}
	offsets = floats.Span(make([]float64, n), -extent, extent)
	weights = make([]float64, n)
	for i, x := range offsets {
		weights[i] = f(sigma, x)
	}
	return offsets, weights
}
