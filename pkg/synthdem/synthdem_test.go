package synthdem

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() Params {
	return Params{
		Rows: 31, Cols: 41, Dx: 100, Dy: 100,
		MaxThickness: 800, Radius: 1500,
		BedElevation: 200, BedSlope: 0.01,
		Noise: 2, MissingFraction: 0.05, Seed: 42,
	}
}

func TestThickness(t *testing.T) {
	assert.Equal(t, 500.0, Thickness(0, 500, 10))
	assert.Zero(t, Thickness(10, 500, 10))
	assert.Zero(t, Thickness(12, 500, 10))
	assert.Greater(t, Thickness(3, 500, 10), Thickness(6, 500, 10))
}

func TestGenerate(t *testing.T) {
	p := testParams()
	surface, thickness, err := Generate(p)
	require.NoError(t, err)

	r, c := surface.Dims()
	assert.Equal(t, p.Rows, r)
	assert.Equal(t, p.Cols, c)

	var missing int
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			h := thickness.At(i, j)
			assert.GreaterOrEqual(t, h, 0.0)
			assert.LessOrEqual(t, h, p.MaxThickness)
			if math.IsNaN(surface.At(i, j)) {
				missing++
			}
		}
	}
	assert.Equal(t, int(0.05*float64(r*c)), missing)
	assert.Equal(t, p.MaxThickness, thickness.At(15, 20))
	assert.Zero(t, thickness.At(0, 0))
}

func TestGenerateDeterministic(t *testing.T) {
	a, _, err := Generate(testParams())
	require.NoError(t, err)
	b, _, err := Generate(testParams())
	require.NoError(t, err)
	r, c := a.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			assert.Equal(t, math.Float64bits(a.At(i, j)), math.Float64bits(b.At(i, j)))
		}
	}
}

func TestValidate(t *testing.T) {
	p := testParams()
	p.Rows = 0
	assert.Error(t, p.Validate())

	p = testParams()
	p.MissingFraction = 1
	assert.Error(t, p.Validate())

	p = testParams()
	p.Dy = math.NaN()
	_, _, err := Generate(p)
	assert.Error(t, err)
}
