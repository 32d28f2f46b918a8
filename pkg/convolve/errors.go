package convolve

import "fmt"

// ShapeError is returned when the surface and thickness grids differ in
// shape or are empty.
type ShapeError struct {
	SurfaceRows, SurfaceCols     int
	ThicknessRows, ThicknessCols int
}

func (e *ShapeError) Error() string {
	if e.SurfaceRows == 0 || e.SurfaceCols == 0 {
		return fmt.Sprintf("convolve: empty surface grid %dx%d", e.SurfaceRows, e.SurfaceCols)
	}
	return fmt.Sprintf("convolve: surface is %dx%d but thickness is %dx%d",
		e.SurfaceRows, e.SurfaceCols, e.ThicknessRows, e.ThicknessCols)
}

// WorkerError wraps a failure inside one row chunk. Any WorkerError fails
// the whole smoothing call.
type WorkerError struct {
	Start, End int
	Err        error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("convolve: rows [%d, %d): %v", e.Start, e.End, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }

// Degeneracy describes a cell whose window held valid samples that all
// carried zero weight. The cell keeps its input value.
type Degeneracy struct {
	Row, Col int
	// Valid is the number of valid samples in the window.
	Valid int
}
