package heatmapplotter

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"glaciersmooth/pkg/kernel"
)

func TestMakeHeatmapPlot(t *testing.T) {
	data := mat.NewDense(3, 3, []float64{1, 2, 3, 4, math.NaN(), 6, 7, 8, 9})
	dir := t.TempDir()
	for _, name := range []string{"surface.pdf", "surface.png"} {
		path := filepath.Join(dir, name)
		require.NoError(t, MakeHeatmapPlot(data, "surface", path, Extent{Dx: 100, Dy: 100}))
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}

	allMissing := mat.NewDense(1, 2, []float64{math.NaN(), math.NaN()})
	assert.Error(t, MakeHeatmapPlot(allMissing, "empty", filepath.Join(dir, "x.pdf"), Extent{}))
}

func TestGrid(t *testing.T) {
	g := matrixToGrid(mat.NewDense(2, 3, []float64{1, 2, 3, 4, math.Inf(1), 6}), Extent{X0: 10, Y0: 20, Dx: 2, Dy: 4})
	c, r := g.Dims()
	assert.Equal(t, 3, c)
	assert.Equal(t, 2, r)
	assert.Equal(t, 11.0, g.X(0))
	assert.Equal(t, 26.0, g.Y(1))
	assert.Equal(t, 6.0, g.Z(2, 1))
	assert.True(t, math.IsNaN(g.Z(1, 1)))
}

func TestKernelPlot(t *testing.T) {
	var curves []Curve
	for _, k := range []kernel.Kind{kernel.KindGaussian, kernel.KindTriangular} {
		x, w := kernel.Sample(k.Func(), 50, 150, 61)
		curves = append(curves, Curve{Label: k.String(), Offsets: x, Weights: w})
	}
	path := filepath.Join(t.TempDir(), "kernels.png")
	require.NoError(t, KernelPlot("kernels", curves, path))
	_, err := os.Stat(path)
	assert.NoError(t, err)

	assert.Error(t, KernelPlot("none", nil, path))
	assert.Error(t, KernelPlot("bad", []Curve{{Label: "x", Offsets: []float64{1}}}, path))
}
