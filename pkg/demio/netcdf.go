// Package demio reads and writes gridded DEM datasets as netCDF-3 files.
//
// A dataset is a set of 2D variables on dimensions (y, x) sharing one grid
// described by the global attributes x0, y0, dx and dy. Missing samples
// are NaN in memory and the variable's _FillValue on disk. Variables are
// written as doubles; float, int and short variables are accepted on read.
package demio

import (
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/ctessum/cdf"
	"gonum.org/v1/gonum/mat"
)

// DataVersion is written to every file.
const DataVersion = "1"

// DefaultFillValue marks missing samples in written files.
const DefaultFillValue = -9999.0

// Variable is one gridded field of a dataset.
type Variable struct {
	Data        *mat.Dense
	Units       string
	Description string
}

// Dataset is a collection of co-registered grids.
type Dataset struct {
	Dx, Dy float64
	// X0 and Y0 locate the lower-left corner of the grid.
	X0, Y0 float64

	Vars map[string]Variable
	// Attrs are extra global string attributes.
	Attrs map[string]string
}

// NewDataset returns an empty dataset on the given grid.
func NewDataset(dx, dy, x0, y0 float64) *Dataset {
	return &Dataset{
		Dx: dx, Dy: dy, X0: x0, Y0: y0,
		Vars:  make(map[string]Variable),
		Attrs: make(map[string]string),
	}
}

// Add stores a variable, checking that it matches the dataset's shape.
func (d *Dataset) Add(name string, v Variable) error {
	r, c := v.Data.Dims()
	for n, other := range d.Vars {
		or, oc := other.Data.Dims()
		if or != r || oc != c {
			return fmt.Errorf("demio: variable %s is %dx%d but %s is %dx%d", name, r, c, n, or, oc)
		}
	}
	d.Vars[name] = v
	return nil
}

// Get returns the named grid.
func (d *Dataset) Get(name string) (*mat.Dense, error) {
	v, ok := d.Vars[name]
	if !ok {
		return nil, fmt.Errorf("demio: dataset has no variable %q", name)
	}
	return v.Data, nil
}

// Read loads the named 2D variables from a netCDF file. With no names
// every 2D variable is loaded.
func Read(rw cdf.ReaderWriterAt, names ...string) (*Dataset, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, fmt.Errorf("demio.Read: %w", err)
	}
	d := NewDataset(
		floatAttr(f.Header, "dx", 1),
		floatAttr(f.Header, "dy", 1),
		floatAttr(f.Header, "x0", 0),
		floatAttr(f.Header, "y0", 0),
	)
	if !(d.Dx > 0) || !(d.Dy > 0) {
		return nil, fmt.Errorf("demio.Read: grid spacing must be positive, got dx=%g dy=%g", d.Dx, d.Dy)
	}
	for _, a := range f.Header.Attributes("") {
		if s, ok := f.Header.GetAttribute("", a).(string); ok {
			d.Attrs[a] = s
		}
	}

	if len(names) == 0 {
		for _, v := range f.Header.Variables() {
			if len(f.Header.Lengths(v)) == 2 {
				names = append(names, v)
			}
		}
	}
	for _, name := range names {
		v, err := readVar(f, name)
		if err != nil {
			return nil, fmt.Errorf("demio.Read: %w", err)
		}
		if err := d.Add(name, v); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// ReadFile opens filename and calls Read.
func ReadFile(filename string, names ...string) (*Dataset, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f, names...)
}

func readVar(f *cdf.File, name string) (Variable, error) {
	dims := f.Header.Lengths(name)
	if len(dims) != 2 {
		return Variable{}, fmt.Errorf("variable %q has %d dimensions, want 2 (y, x)", name, len(dims))
	}
	n := dims[0] * dims[1]
	buf := f.Header.ZeroValue(name, n)
	if _, err := f.Reader(name, nil, nil).Read(buf); err != nil {
		return Variable{}, fmt.Errorf("reading %s: %w", name, err)
	}
	data := make([]float64, n)
	switch b := buf.(type) {
	case []float32:
		for i, v := range b {
			data[i] = float64(v)
		}
	case []float64:
		copy(data, b)
	case []int32:
		for i, v := range b {
			data[i] = float64(v)
		}
	case []int16:
		for i, v := range b {
			data[i] = float64(v)
		}
	default:
		return Variable{}, fmt.Errorf("variable %q has unsupported type %T", name, buf)
	}

	fill := floatAttr(f.Header, "_FillValue", math.NaN(), name)
	if !math.IsNaN(fill) {
		for i, v := range data {
			if v == fill {
				data[i] = math.NaN()
			}
		}
	}
	units, _ := f.Header.GetAttribute(name, "units").(string)
	desc, _ := f.Header.GetAttribute(name, "description").(string)
	return Variable{
		Data:        mat.NewDense(dims[0], dims[1], data),
		Units:       units,
		Description: desc,
	}, nil
}

// floatAttr reads a numeric attribute of variable v (global when v is
// omitted), returning def when it is absent.
func floatAttr(h *cdf.Header, name string, def float64, v ...string) float64 {
	owner := ""
	if len(v) > 0 {
		owner = v[0]
	}
	switch a := h.GetAttribute(owner, name).(type) {
	case []float64:
		if len(a) > 0 {
			return a[0]
		}
	case []float32:
		if len(a) > 0 {
			return float64(a[0])
		}
	case []int32:
		if len(a) > 0 {
			return float64(a[0])
		}
	}
	return def
}

// Write writes d to w as float64 variables, in name order so files are
// reproducible.
func (d *Dataset) Write(w *os.File) error {
	if len(d.Vars) == 0 {
		return fmt.Errorf("demio: dataset has no variables")
	}
	names := make([]string, 0, len(d.Vars))
	for n := range d.Vars {
		names = append(names, n)
	}
	sort.Strings(names)
	ny, nx := d.Vars[names[0]].Data.Dims()

	h := cdf.NewHeader([]string{"y", "x"}, []int{ny, nx})
	h.AddAttribute("", "comment", "glaciersmooth DEM dataset")
	h.AddAttribute("", "data_version", DataVersion)
	h.AddAttribute("", "x0", []float64{d.X0})
	h.AddAttribute("", "y0", []float64{d.Y0})
	h.AddAttribute("", "dx", []float64{d.Dx})
	h.AddAttribute("", "dy", []float64{d.Dy})
	h.AddAttribute("", "nx", []int32{int32(nx)})
	h.AddAttribute("", "ny", []int32{int32(ny)})
	attrs := make([]string, 0, len(d.Attrs))
	for a := range d.Attrs {
		attrs = append(attrs, a)
	}
	sort.Strings(attrs)
	for _, a := range attrs {
		h.AddAttribute("", a, d.Attrs[a])
	}

	for _, name := range names {
		v := d.Vars[name]
		h.AddVariable(name, []string{"y", "x"}, []float64{0})
		h.AddAttribute(name, "_FillValue", []float64{DefaultFillValue})
		h.AddAttribute(name, "units", v.Units)
		h.AddAttribute(name, "description", v.Description)
	}
	h.Define()

	f, err := cdf.Create(w, h)
	if err != nil {
		return fmt.Errorf("demio: creating netcdf file: %w", err)
	}
	for _, name := range names {
		if err := writeVar(f, name, d.Vars[name].Data); err != nil {
			return fmt.Errorf("demio: writing variable %s: %w", name, err)
		}
	}
	return cdf.UpdateNumRecs(w)
}

// WriteFile creates filename and writes d to it.
func (d *Dataset) WriteFile(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := d.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeVar(f *cdf.File, name string, m *mat.Dense) error {
	r, c := m.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) {
				v = DefaultFillValue
			}
			data = append(data, v)
		}
	}
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	_, err := f.Writer(name, start, end).Write(data)
	return err
}
