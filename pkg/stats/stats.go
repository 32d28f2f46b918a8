// Package stats compares gridded fields, skipping missing samples.
package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Comparison holds agreement metrics between two grids over the cells
// valid in both.
type Comparison struct {
	Name     string  `csv:"name"`
	N        int     `csv:"n"`
	RMSD     float64 `csv:"rmsd"`
	PearsonR float64 `csv:"pearson_r"`
	MeanDiff float64 `csv:"mean_diff"`
	MaxAbs   float64 `csv:"max_abs_diff"`
}

// pairs returns the samples valid in both a and b.
func pairs(a, b mat.Matrix) (x, y []float64, err error) {
	r, c := a.Dims()
	br, bc := b.Dims()
	if r != br || c != bc {
		return nil, nil, fmt.Errorf("stats: grids are %dx%d and %dx%d", r, c, br, bc)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			va, vb := a.At(i, j), b.At(i, j)
			if !valid(va) || !valid(vb) {
				continue
			}
			x = append(x, va)
			y = append(y, vb)
		}
	}
	return x, y, nil
}

func valid(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Compare computes the root mean square deviation, Pearson correlation and
// difference statistics of sim against obs. PearsonR is NaN when either
// grid is constant over the shared cells.
func Compare(obs, sim mat.Matrix) (Comparison, error) {
	x, y, err := pairs(obs, sim)
	if err != nil {
		return Comparison{}, err
	}
	cmp := Comparison{N: len(x)}
	if cmp.N == 0 {
		cmp.RMSD, cmp.PearsonR, cmp.MeanDiff = math.NaN(), math.NaN(), math.NaN()
		return cmp, nil
	}
	diff := make([]float64, len(x))
	floats.SubTo(diff, y, x)
	cmp.MeanDiff = stat.Mean(diff, nil)
	cmp.MaxAbs = math.Max(math.Abs(floats.Max(diff)), math.Abs(floats.Min(diff)))
	cmp.RMSD = floats.Norm(diff, 2) / math.Sqrt(float64(len(diff)))
	cmp.PearsonR = stat.Correlation(x, y, nil)
	return cmp, nil
}

// Summary describes the valid samples of one grid.
type Summary struct {
	Name    string  `csv:"name"`
	Valid   int     `csv:"valid"`
	Missing int     `csv:"missing"`
	Min     float64 `csv:"min"`
	Max     float64 `csv:"max"`
	Mean    float64 `csv:"mean"`
	StdDev  float64 `csv:"std_dev"`
}

// Summarize computes a Summary of m.
func Summarize(m mat.Matrix) Summary {
	r, c := m.Dims()
	vals := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.At(i, j); valid(v) {
				vals = append(vals, v)
			}
		}
	}
	s := Summary{Valid: len(vals), Missing: r*c - len(vals)}
	if len(vals) == 0 {
		s.Min, s.Max, s.Mean, s.StdDev = math.NaN(), math.NaN(), math.NaN(), math.NaN()
		return s
	}
	s.Min, s.Max = floats.Min(vals), floats.Max(vals)
	s.Mean, s.StdDev = stat.MeanStdDev(vals, nil)
	return s
}
