package readmatrix

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/spf13/cast"
	"gonum.org/v1/gonum/mat"
)

// ASCIIGrid is an ESRI ASCII raster. Row 0 of Data is the northernmost
// row, as in the file.
type ASCIIGrid struct {
	Data *mat.Dense
	// XLL and YLL locate the lower-left corner of the grid.
	XLL, YLL float64
	Dx, Dy   float64
	NoData   float64
}

var gridKeys = map[string]bool{
	"ncols": true, "nrows": true,
	"xllcorner": true, "yllcorner": true, "xllcenter": true, "yllcenter": true,
	"cellsize": true, "dx": true, "dy": true, "nodata_value": true,
}

// ReadASCIIGrid reads an ESRI ASCII grid. Cells equal to NODATA_value
// become NaN. Non-square cells may be given with dx and dy instead of
// cellsize.
func ReadASCIIGrid(r io.Reader) (*ASCIIGrid, error) {
	br := bufio.NewReader(r)
	header := make(map[string]string)
	var firstData string
	for {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("readmatrix: reading ascii grid header: %w", err)
		}
		fields := strings.Fields(line)
		if len(fields) == 2 && gridKeys[strings.ToLower(fields[0])] {
			header[strings.ToLower(fields[0])] = fields[1]
		} else if len(fields) > 0 {
			firstData = line
			break
		}
		if err == io.EOF {
			break
		}
	}

	num := func(key string, def float64, required bool) (float64, error) {
		s, ok := header[key]
		if !ok {
			if required {
				return 0, fmt.Errorf("readmatrix: ascii grid header is missing %s", key)
			}
			return def, nil
		}
		v, err := cast.ToFloat64E(s)
		if err != nil {
			return 0, fmt.Errorf("readmatrix: ascii grid header %s: %w", key, err)
		}
		return v, nil
	}

	g := &ASCIIGrid{}
	ncols, err := num("ncols", 0, true)
	if err != nil {
		return nil, err
	}
	nrows, err := num("nrows", 0, true)
	if err != nil {
		return nil, err
	}
	if g.NoData, err = num("nodata_value", math.NaN(), false); err != nil {
		return nil, err
	}
	if _, ok := header["cellsize"]; ok {
		if g.Dx, err = num("cellsize", 0, true); err != nil {
			return nil, err
		}
		g.Dy = g.Dx
	} else {
		if g.Dx, err = num("dx", 0, true); err != nil {
			return nil, err
		}
		if g.Dy, err = num("dy", 0, true); err != nil {
			return nil, err
		}
	}
	if _, ok := header["xllcenter"]; ok {
		xc, err := num("xllcenter", 0, true)
		if err != nil {
			return nil, err
		}
		yc, err := num("yllcenter", 0, true)
		if err != nil {
			return nil, err
		}
		g.XLL, g.YLL = xc-g.Dx/2, yc-g.Dy/2
	} else {
		if g.XLL, err = num("xllcorner", 0, false); err != nil {
			return nil, err
		}
		if g.YLL, err = num("yllcorner", 0, false); err != nil {
			return nil, err
		}
	}

	scanner := bufio.NewScanner(io.MultiReader(strings.NewReader(firstData), br))
	data, err := parseMatrix(scanner, g.NoData, false)
	if err != nil {
		return nil, fmt.Errorf("readmatrix: ascii grid body: %w", err)
	}
	dr, dc := data.Dims()
	if dr != int(nrows) || dc != int(ncols) {
		return nil, fmt.Errorf("readmatrix: ascii grid header says %dx%d but body is %dx%d",
			int(nrows), int(ncols), dr, dc)
	}
	g.Data = data
	return g, nil
}

// ReadASCIIGridFile opens filename and reads it with ReadASCIIGrid.
func ReadASCIIGridFile(filename string) (*ASCIIGrid, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadASCIIGrid(f)
}

// Write writes g in ESRI ASCII grid format. A NaN NoData is written as
// -9999.
func (g *ASCIIGrid) Write(w io.Writer) error {
	noData := g.NoData
	if math.IsNaN(noData) {
		noData = -9999
	}
	r, c := g.Data.Dims()
	var b strings.Builder
	fmt.Fprintf(&b, "ncols %d\nnrows %d\n", c, r)
	fmt.Fprintf(&b, "xllcorner %g\nyllcorner %g\n", g.XLL, g.YLL)
	if g.Dx == g.Dy {
		fmt.Fprintf(&b, "cellsize %g\n", g.Dx)
	} else {
		fmt.Fprintf(&b, "dx %g\ndy %g\n", g.Dx, g.Dy)
	}
	fmt.Fprintf(&b, "NODATA_value %g\n", noData)
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}
	return WriteMatrix(w, g.Data, noData)
}

// WriteFile writes g to filename.
func (g *ASCIIGrid) WriteFile(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := g.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
