package convolve

import (
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/mat"

	"glaciersmooth/pkg/bandwidth"
	"glaciersmooth/pkg/kernel"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func filled(rows, cols int, v float64) *mat.Dense {
	d := make([]float64, rows*cols)
	for i := range d {
		d[i] = v
	}
	return mat.NewDense(rows, cols, d)
}

func randomGrids(rows, cols int, seed uint64) (surface, thickness *mat.Dense) {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	surface = mat.NewDense(rows, cols, nil)
	thickness = mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			surface.Set(i, j, 1000+50*rng.NormFloat64())
			thickness.Set(i, j, 4*rng.Float64())
		}
	}
	// A few holes in both fields.
	for k := 0; k < rows*cols/15; k++ {
		surface.Set(rng.IntN(rows), rng.IntN(cols), math.NaN())
		thickness.Set(rng.IntN(rows), rng.IntN(cols), math.NaN())
	}
	return surface, thickness
}

// reference is a direct transcription of the windowed weighted average,
// used to check the optimised loop.
func reference(k kernel.Kind, surface, thickness *mat.Dense, p bandwidth.Params) *mat.Dense {
	rows, cols := surface.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			sigma := bandwidth.Sigma(thickness.At(i, j), p.SigmaK)
			rx, ry := bandwidth.Radii(bandwidth.HalfWidth(k, sigma, p.WK, p.WMax), p.Dx, p.Dy)
			if rx == 0 && ry == 0 {
				out.Set(i, j, surface.At(i, j))
				continue
			}
			var num, den float64
			for di := -ry; di <= ry; di++ {
				for dj := -rx; dj <= rx; dj++ {
					ii, jj := i+di, j+dj
					if ii < 0 || jj < 0 || ii >= rows || jj >= cols {
						continue
					}
					v := surface.At(ii, jj)
					if math.IsNaN(v) {
						continue
					}
					w := k.Weight(sigma, math.Hypot(float64(dj)*p.Dx, float64(di)*p.Dy))
					num += w * v
					den += w
				}
			}
			if den > 0 {
				out.Set(i, j, num/den)
			} else {
				out.Set(i, j, surface.At(i, j))
			}
		}
	}
	return out
}

func assertGridsClose(t *testing.T, want, got mat.Matrix, tol float64) {
	t.Helper()
	r, c := want.Dims()
	gr, gc := got.Dims()
	require.Equal(t, r, gr)
	require.Equal(t, c, gc)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			w, g := want.At(i, j), got.At(i, j)
			if math.IsNaN(w) {
				assert.True(t, math.IsNaN(g), "(%d,%d): want NaN, got %g", i, j, g)
				continue
			}
			assert.InDelta(t, w, g, tol*math.Max(1, math.Abs(w)), "(%d,%d)", i, j)
		}
	}
}

func assertGridsIdentical(t *testing.T, want, got mat.Matrix) {
	t.Helper()
	r, c := want.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.Float64bits(want.At(i, j)) != math.Float64bits(got.At(i, j)) {
				t.Fatalf("(%d,%d): %v != %v", i, j, want.At(i, j), got.At(i, j))
			}
		}
	}
}

func TestSmoothMatchesReference(t *testing.T) {
	surface, thickness := randomGrids(23, 17, 7)
	p := bandwidth.Params{SigmaK: 1.3, WK: 3, WMax: 9, Dx: 1.5, Dy: 0.8}
	for _, k := range []kernel.Kind{kernel.KindGaussian, kernel.KindTriangular} {
		t.Run(k.String(), func(t *testing.T) {
			s, err := NewSmoother(k, Params{Params: p, Workers: 3})
			require.NoError(t, err)
			res, err := s.Smooth(surface, thickness)
			require.NoError(t, err)
			assertGridsClose(t, reference(k, surface, thickness, p), res.Smoothed, 1e-10)
		})
	}
}

func TestOutputShape(t *testing.T) {
	surface, thickness := randomGrids(4, 9, 1)
	out, err := SmoothGaussian(surface, thickness, 1, 3, 10, 1, 1, 2)
	require.NoError(t, err)
	r, c := out.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 9, c)

	out, err = SmoothTriangular(surface, thickness, 1, 10, 1, 1, 2)
	require.NoError(t, err)
	r, c = out.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 9, c)
}

func TestZeroThicknessPassthrough(t *testing.T) {
	surface, _ := randomGrids(12, 8, 3)
	thickness := mat.NewDense(12, 8, nil)
	for _, k := range []kernel.Kind{kernel.KindGaussian, kernel.KindTriangular} {
		s, err := NewSmoother(k, Params{Params: bandwidth.Params{SigmaK: 2, WK: 3, WMax: 50, Dx: 1, Dy: 1}})
		require.NoError(t, err)
		res, err := s.Smooth(surface, thickness)
		require.NoError(t, err)
		assertGridsIdentical(t, surface, res.Smoothed)
		assert.Zero(t, res.Degenerate)
	}
}

func TestUniformSurfaceInvariant(t *testing.T) {
	surface := filled(5, 5, 10)
	thickness := filled(5, 5, 1)
	out, err := SmoothGaussian(surface, thickness, 1, 3, 100, 1, 1, 1)
	require.NoError(t, err)
	assertGridsClose(t, surface, out, 1e-14)

	out, err = SmoothTriangular(surface, thickness, 1, 100, 1, 1, 1)
	require.NoError(t, err)
	assertGridsClose(t, surface, out, 1e-14)
}

func TestSpikeSpreads(t *testing.T) {
	surface := mat.NewDense(5, 5, nil)
	surface.Set(2, 2, 100)
	thickness := filled(5, 5, 2)

	gauss, err := SmoothGaussian(surface, thickness, 1, 3, 100, 1, 1, 1)
	require.NoError(t, err)
	tri, err := SmoothTriangular(surface, thickness, 1, 100, 1, 1, 1)
	require.NoError(t, err)

	for _, out := range []*mat.Dense{gauss, tri} {
		assert.Less(t, out.At(2, 2), 100.0)
		assert.Greater(t, out.At(2, 2), 0.0)
		for _, n := range [][2]int{{1, 2}, {3, 2}, {2, 1}, {2, 3}, {1, 1}, {3, 3}} {
			assert.Greater(t, out.At(n[0], n[1]), 0.0, "neighbour %v", n)
		}
	}
}

func TestWindowClampedAtWMax(t *testing.T) {
	const n, c = 21, 10
	surface, _ := randomGrids(n, n, 11)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if math.IsNaN(surface.At(i, j)) {
				surface.Set(i, j, 0)
			}
		}
	}
	thickness := mat.NewDense(n, n, nil)
	thickness.Set(c, c, 1e6)

	s, err := NewSmoother(kernel.KindGaussian, Params{Params: bandwidth.Params{SigmaK: 1, WK: 3, WMax: 3, Dx: 1, Dy: 1}})
	require.NoError(t, err)
	res, err := s.Smooth(surface, thickness)
	require.NoError(t, err)

	rx, ry := res.Bandwidth.Radius(c, c)
	assert.Equal(t, 3, rx)
	assert.Equal(t, 3, ry)

	// With a huge bandwidth the weights inside the window are all ~1, so
	// the result is the plain mean of the 7x7 window.
	var sum float64
	for i := c - 3; i <= c+3; i++ {
		for j := c - 3; j <= c+3; j++ {
			sum += surface.At(i, j)
		}
	}
	assert.InDelta(t, sum/49, res.Smoothed.At(c, c), 1e-6)

	// Changing a cell outside the window does not change the result;
	// changing one inside does.
	outside := mat.DenseCopyOf(surface)
	outside.Set(0, 0, 1e9)
	outside.Set(c, c+4, -1e9)
	res2, err := s.Smooth(outside, thickness)
	require.NoError(t, err)
	assert.Equal(t, res.Smoothed.At(c, c), res2.Smoothed.At(c, c))

	inside := mat.DenseCopyOf(surface)
	inside.Set(c+3, c-3, 1e9)
	res3, err := s.Smooth(inside, thickness)
	require.NoError(t, err)
	assert.NotEqual(t, res.Smoothed.At(c, c), res3.Smoothed.At(c, c))
}

func TestUncappedWindowStillSmooths(t *testing.T) {
	surface := mat.NewDense(5, 5, nil)
	surface.Set(2, 2, 100)
	thickness := filled(5, 5, 1e30)

	for _, wMax := range []float64{1e3, 1e20, math.MaxFloat64} {
		out, err := SmoothGaussian(surface, thickness, 1, 3, wMax, 1, 1, 2)
		require.NoError(t, err)
		// Every weight is ~1, so each cell is the mean of the whole grid.
		assert.InDelta(t, 4.0, out.At(2, 2), 1e-9, "w_max=%g", wMax)
		assert.InDelta(t, 4.0, out.At(0, 4), 1e-9, "w_max=%g", wMax)
	}
}

func TestWorkerCountDoesNotChangeResult(t *testing.T) {
	surface, thickness := randomGrids(37, 29, 5)
	p := bandwidth.Params{SigmaK: 1, WK: 2.5, WMax: 6, Dx: 1, Dy: 1.25}
	for _, k := range []kernel.Kind{kernel.KindGaussian, kernel.KindTriangular} {
		s, err := NewSmoother(k, Params{Params: p, Workers: 1})
		require.NoError(t, err)
		one, err := s.Smooth(surface, thickness)
		require.NoError(t, err)
		for _, w := range []int{2, 3, 8, 64} {
			s.Params.Workers = w
			many, err := s.Smooth(surface, thickness)
			require.NoError(t, err)
			assertGridsIdentical(t, one.Smoothed, many.Smoothed)
			assert.Equal(t, one.Degenerate, many.Degenerate)
		}
	}
}

func TestAnisotropicGridIsRadiallySymmetric(t *testing.T) {
	const n, c = 21, 10
	surface := mat.NewDense(n, n, nil)
	surface.Set(c, c, 100)
	thickness := filled(n, n, 2)

	// dx = 1, dy = 2: two columns and one row away are both 2 units away.
	out, err := SmoothGaussian(surface, thickness, 1, 3, 100, 1, 2, 4)
	require.NoError(t, err)
	assert.InDelta(t, out.At(c, c+2), out.At(c+1, c), 1e-12)
	assert.InDelta(t, out.At(c, c-2), out.At(c-1, c), 1e-12)
	assert.Greater(t, out.At(c, c+1), out.At(c+1, c))
}

func TestEdgesAreRenormalised(t *testing.T) {
	// A uniform surface stays uniform at the edges and corners, which
	// would not hold with zero padding.
	surface := filled(6, 4, 250)
	thickness := filled(6, 4, 5)
	out, err := SmoothGaussian(surface, thickness, 1, 3, 100, 1, 1, 2)
	require.NoError(t, err)
	assertGridsClose(t, surface, out, 1e-13)
}

func TestMissingSurfaceValues(t *testing.T) {
	surface := filled(7, 7, 10)
	surface.Set(3, 3, math.NaN())
	surface.Set(0, 6, math.Inf(1))
	thickness := filled(7, 7, 1)

	out, err := SmoothGaussian(surface, thickness, 1, 3, 100, 1, 1, 1)
	require.NoError(t, err)
	// Missing cells are filled from valid neighbours and never leak into
	// the averages of other cells.
	assertGridsClose(t, filled(7, 7, 10), out, 1e-13)

	// No bandwidth at a missing cell: it stays missing.
	thickness.Set(3, 3, 0)
	out, err = SmoothGaussian(surface, thickness, 1, 3, 100, 1, 1, 1)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(out.At(3, 3)))

	// Everything missing: output is missing.
	allMissing := filled(3, 3, math.NaN())
	out, err = SmoothTriangular(allMissing, filled(3, 3, 4), 1, 100, 1, 1, 1)
	require.NoError(t, err)
	assertGridsClose(t, allMissing, out, 0)
}

func TestDegenerateWindow(t *testing.T) {
	// sigma = 0.5 gives a one-cell radius, but every neighbour sits at a
	// distance >= sigma where the triangular weight is zero.
	surface := filled(3, 3, 4)
	surface.Set(1, 1, math.NaN())
	thickness := mat.NewDense(3, 3, nil)
	thickness.Set(1, 1, 0.5)

	var (
		mu     sync.Mutex
		events []Degeneracy
	)
	s, err := NewSmoother(kernel.KindTriangular, Params{Params: bandwidth.Params{SigmaK: 1, WMax: 10, Dx: 1, Dy: 1}})
	require.NoError(t, err)
	s.OnDegenerate = func(d Degeneracy) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, d)
	}
	res, err := s.Smooth(surface, thickness)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Degenerate)
	require.Len(t, events, 1)
	assert.Equal(t, Degeneracy{Row: 1, Col: 1, Valid: 8}, events[0])
	assert.True(t, math.IsNaN(res.Smoothed.At(1, 1)))
}

func TestInputsNotModified(t *testing.T) {
	surface, thickness := randomGrids(10, 10, 9)
	s0, t0 := mat.DenseCopyOf(surface), mat.DenseCopyOf(thickness)
	_, err := SmoothGaussian(surface, thickness, 2, 3, 5, 1, 1, 4)
	require.NoError(t, err)
	assertGridsIdentical(t, s0, surface)
	assertGridsIdentical(t, t0, thickness)
}

func TestShapeErrors(t *testing.T) {
	_, err := SmoothGaussian(filled(3, 4, 1), filled(4, 3, 1), 1, 3, 10, 1, 1, 1)
	var serr *ShapeError
	require.True(t, errors.As(err, &serr), "got %v", err)
	assert.Equal(t, ShapeError{3, 4, 4, 3}, *serr)
	assert.Contains(t, err.Error(), "3x4")
}

func TestParameterErrors(t *testing.T) {
	surface, thickness := filled(3, 3, 1), filled(3, 3, 1)
	tests := []struct {
		name  string
		run   func() error
		param string
	}{
		{"dx", func() error { _, err := SmoothGaussian(surface, thickness, 1, 3, 10, 0, 1, 1); return err }, "dx"},
		{"dy", func() error { _, err := SmoothTriangular(surface, thickness, 1, 10, 1, -1, 1); return err }, "dy"},
		{"sigma_k", func() error { _, err := SmoothGaussian(surface, thickness, 0, 3, 10, 1, 1, 1); return err }, "sigma_k"},
		{"w_k", func() error { _, err := SmoothGaussian(surface, thickness, 1, -3, 10, 1, 1, 1); return err }, "w_k"},
		{"w_max", func() error { _, err := SmoothTriangular(surface, thickness, 1, math.NaN(), 1, 1, 1); return err }, "w_max"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var perr *bandwidth.ParameterError
			err := tt.run()
			require.True(t, errors.As(err, &perr), "got %v", err)
			assert.Equal(t, tt.param, perr.Name)
		})
	}
}

func TestAccumulator(t *testing.T) {
	var a accumulator
	a.add(1)
	for i := 0; i < 1000; i++ {
		a.add(1e-16)
	}
	a.add(-1)
	assert.InDelta(t, 1e-13, a.sum(), 1e-20)
}
