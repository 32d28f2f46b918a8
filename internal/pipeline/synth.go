package pipeline

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"glaciersmooth/internal/config"
	"glaciersmooth/internal/presenter"
	"glaciersmooth/pkg/demio"
	"glaciersmooth/pkg/heatmapplotter"
	"glaciersmooth/pkg/kernel"
	"glaciersmooth/pkg/readmatrix"
	"glaciersmooth/pkg/synthdem"
)

// Synth generates a synthetic ice cap from cfg.Synth and writes it where
// the smooth command will look for it: a netCDF file at cfg.Input.Path, or
// two ASCII grids or matrices at cfg.Input.SurfacePath and
// cfg.Input.ThicknessPath.
func Synth(cfg *config.Config, log logrus.FieldLogger, runID string) error {
	surface, thickness, err := synthdem.Generate(cfg.Synth)
	if err != nil {
		return err
	}
	p := cfg.Synth
	log = log.WithFields(logrus.Fields{"run_id": runID, "rows": p.Rows, "cols": p.Cols, "seed": p.Seed})

	switch format := strings.ToLower(cfg.Input.Format); format {
	case "ascii", "matrix":
		for _, out := range []struct {
			path string
			data *mat.Dense
		}{
			{cfg.Input.SurfacePath, surface},
			{cfg.Input.ThicknessPath, thickness},
		} {
			var err error
			if format == "ascii" {
				grid := &readmatrix.ASCIIGrid{
					Data: flipRows(out.data),
					Dx:   p.Dx, Dy: p.Dy,
					NoData: demio.DefaultFillValue,
				}
				err = grid.WriteFile(out.path)
			} else {
				err = readmatrix.WriteMatrixFile(out.path, flipRows(out.data), cfg.Input.NoData)
			}
			if err != nil {
				return err
			}
			log.WithField("path", out.path).Info("wrote synthetic grid")
		}
		return nil
	}

	ds := demio.NewDataset(p.Dx, p.Dy, 0, 0)
	ds.Attrs["run_id"] = runID
	ds.Attrs["source"] = "synthetic ice cap"
	if err := ds.Add(cfg.Input.SurfaceVar, demio.Variable{Data: surface, Units: "m", Description: "ice surface elevation"}); err != nil {
		return err
	}
	if err := ds.Add(cfg.Input.ThicknessVar, demio.Variable{Data: thickness, Units: "m", Description: "ice thickness"}); err != nil {
		return err
	}
	if err := ds.WriteFile(cfg.Input.Path); err != nil {
		return err
	}
	log.WithField("path", cfg.Input.Path).Info("wrote synthetic dataset")
	return nil
}

// Kernels samples every kernel kind at bandwidth sigma over
// [-extent, extent] and writes the samples as CSV. If plotPath is not
// empty the curves are also plotted.
func Kernels(sigma, extent float64, n int, csvPath, plotPath string) error {
	samples, curves := presenter.SampleKernels([]kernel.Kind{kernel.KindGaussian, kernel.KindTriangular}, sigma, extent, n)
	if err := presenter.SaveKernelSamples(samples, csvPath); err != nil {
		return err
	}
	if plotPath == "" {
		return nil
	}
	return heatmapplotter.KernelPlot("kernel shapes, sigma = "+strconv.FormatFloat(sigma, 'g', -1, 64), curves, filepath.Clean(plotPath))
}
