package readmatrix

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestReadMatrix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "surface.txt")
	content := "# surface elevation\nx y z\n1 2 3\n\n4 -9999 nan\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	m, err := ReadMatrix(path, -9999)
	require.NoError(t, err)
	r, c := m.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, 4.0, m.At(1, 0))
	assert.True(t, math.IsNaN(m.At(1, 1)))
	assert.True(t, math.IsNaN(m.At(1, 2)))
}

func TestReadMatrixErrors(t *testing.T) {
	dir := t.TempDir()
	ragged := filepath.Join(dir, "ragged.txt")
	require.NoError(t, os.WriteFile(ragged, []byte("1 2\n3\n"), 0o644))
	_, err := ReadMatrix(ragged, math.NaN())
	assert.ErrorContains(t, err, "inconsistent number of columns")

	bad := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(bad, []byte("1 2\n3 x\n"), 0o644))
	_, err = ReadMatrix(bad, math.NaN())
	assert.ErrorContains(t, err, "line 2, column 2")

	_, err = ReadMatrix(filepath.Join(dir, "missing.txt"), math.NaN())
	assert.Error(t, err)
}

func TestWriteMatrix(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{1.5, math.NaN(), -3, 1e-7})
	var buf bytes.Buffer
	require.NoError(t, WriteMatrix(&buf, m, -9999))
	assert.Equal(t, "1.5\t-9999\n-3\t1e-07\n", buf.String())
}

const sampleGrid = `ncols 3
nrows 2
xllcorner 100
yllcorner 200
cellsize 50
NODATA_value -9999
10 11 12
13 -9999 15
`

func TestWriteMatrixFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.txt")
	m := mat.NewDense(2, 3, []float64{1.5, math.NaN(), -3, 1e-7, 2, 1234.5678901234})
	require.NoError(t, WriteMatrixFile(path, m, -9999))

	back, err := ReadMatrix(path, -9999)
	require.NoError(t, err)
	assert.Equal(t, 1.5, back.At(0, 0))
	assert.True(t, math.IsNaN(back.At(0, 1)))
	assert.Equal(t, 1234.5678901234, back.At(1, 2))
}

func TestReadASCIIGrid(t *testing.T) {
	g, err := ReadASCIIGrid(strings.NewReader(sampleGrid))
	require.NoError(t, err)
	assert.Equal(t, 50.0, g.Dx)
	assert.Equal(t, 50.0, g.Dy)
	assert.Equal(t, 100.0, g.XLL)
	assert.Equal(t, 200.0, g.YLL)
	assert.Equal(t, -9999.0, g.NoData)
	assert.Equal(t, 12.0, g.Data.At(0, 2))
	assert.True(t, math.IsNaN(g.Data.At(1, 1)))
}

func TestReadASCIIGridCenterAndAnisotropic(t *testing.T) {
	src := "ncols 2\nnrows 1\nxllcenter 5\nyllcenter 10\ndx 10\ndy 20\n1 2\n"
	g, err := ReadASCIIGrid(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, 0.0, g.XLL)
	assert.Equal(t, 0.0, g.YLL)
	assert.Equal(t, 10.0, g.Dx)
	assert.Equal(t, 20.0, g.Dy)
	assert.True(t, math.IsNaN(g.NoData))
}

func TestReadASCIIGridErrors(t *testing.T) {
	_, err := ReadASCIIGrid(strings.NewReader("nrows 1\ncellsize 1\n1 2\n"))
	assert.ErrorContains(t, err, "ncols")

	_, err = ReadASCIIGrid(strings.NewReader("ncols 3\nnrows 1\ncellsize 1\n1 2\n"))
	assert.ErrorContains(t, err, "header says 1x3")

	_, err = ReadASCIIGrid(strings.NewReader("ncols three\nnrows 1\ncellsize 1\n1 2 3\n"))
	assert.Error(t, err)
}

func TestASCIIGridRoundTrip(t *testing.T) {
	g, err := ReadASCIIGrid(strings.NewReader(sampleGrid))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.asc")
	require.NoError(t, g.WriteFile(path))
	back, err := ReadASCIIGridFile(path)
	require.NoError(t, err)
	assert.Equal(t, g.Dx, back.Dx)
	assert.Equal(t, g.XLL, back.XLL)
	assert.True(t, math.IsNaN(back.Data.At(1, 1)))
	assert.Equal(t, g.Data.At(1, 2), back.Data.At(1, 2))
}
