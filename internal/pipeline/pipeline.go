// Package pipeline runs the glaciersmooth commands: loading grids,
// smoothing them and writing results, plots and statistics.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"glaciersmooth/internal/config"
	"glaciersmooth/internal/presenter"
	"glaciersmooth/pkg/bandwidth"
	"glaciersmooth/pkg/convolve"
	"glaciersmooth/pkg/demio"
	"glaciersmooth/pkg/heatmapplotter"
	"glaciersmooth/pkg/readmatrix"
	"glaciersmooth/pkg/stats"
)

// Grids holds a co-registered surface and thickness pair. Row 0 is the
// southernmost row.
type Grids struct {
	Surface, Thickness *mat.Dense
	Dx, Dy             float64
	X0, Y0             float64
}

// Extent returns the plotting extent of g.
func (g *Grids) Extent() heatmapplotter.Extent {
	return heatmapplotter.Extent{X0: g.X0, Y0: g.Y0, Dx: g.Dx, Dy: g.Dy}
}

// Report describes a completed smoothing run.
type Report struct {
	RunID      string
	Output     string
	Degenerate int
	Comparison stats.Comparison
	Elapsed    time.Duration
	Heatmaps   []string
}

// NewRunID returns a fresh identifier recorded in every output of a run.
func NewRunID() string { return uuid.NewString() }

// LoadInputs reads the surface and thickness grids described by in.
func LoadInputs(in config.InputConfig) (*Grids, error) {
	switch strings.ToLower(in.Format) {
	case "netcdf":
		ds, err := demio.ReadFile(in.Path, in.SurfaceVar, in.ThicknessVar)
		if err != nil {
			return nil, err
		}
		g := &Grids{Dx: ds.Dx, Dy: ds.Dy, X0: ds.X0, Y0: ds.Y0}
		if g.Surface, err = ds.Get(in.SurfaceVar); err != nil {
			return nil, err
		}
		if g.Thickness, err = ds.Get(in.ThicknessVar); err != nil {
			return nil, err
		}
		return g, nil
	case "ascii":
		s, err := readmatrix.ReadASCIIGridFile(in.SurfacePath)
		if err != nil {
			return nil, fmt.Errorf("reading surface grid: %w", err)
		}
		t, err := readmatrix.ReadASCIIGridFile(in.ThicknessPath)
		if err != nil {
			return nil, fmt.Errorf("reading thickness grid: %w", err)
		}
		if s.Dx != t.Dx || s.Dy != t.Dy || s.XLL != t.XLL || s.YLL != t.YLL {
			return nil, fmt.Errorf("surface and thickness grids are not co-registered")
		}
		return &Grids{
			Surface:   flipRows(s.Data),
			Thickness: flipRows(t.Data),
			Dx:        s.Dx, Dy: s.Dy,
			X0: s.XLL, Y0: s.YLL,
		}, nil
	case "matrix":
		// Plain matrices carry no georeferencing; the spacing comes from
		// the smoothing configuration.
		s, err := readmatrix.ReadMatrix(in.SurfacePath, in.NoData)
		if err != nil {
			return nil, fmt.Errorf("reading surface matrix: %w", err)
		}
		t, err := readmatrix.ReadMatrix(in.ThicknessPath, in.NoData)
		if err != nil {
			return nil, fmt.Errorf("reading thickness matrix: %w", err)
		}
		return &Grids{Surface: flipRows(s), Thickness: flipRows(t)}, nil
	default:
		return nil, fmt.Errorf("unknown input format %q", in.Format)
	}
}

// flipRows returns a copy of m with its rows in reverse order. ASCII grids
// and matrices list the northernmost row first.
func flipRows(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		out.SetRow(i, m.RawRowView(r-1-i))
	}
	return out
}

func isASCII(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".asc")
}

// Smooth runs the smooth command for cfg.
func Smooth(cfg *config.Config, log logrus.FieldLogger, runID string) (*Report, error) {
	start := time.Now()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	k, _ := cfg.Kernel()
	log = log.WithField("run_id", runID)

	g, err := LoadInputs(cfg.Input)
	if err != nil {
		return nil, err
	}
	if cfg.Smoothing.Dx > 0 {
		g.Dx = cfg.Smoothing.Dx
	}
	if cfg.Smoothing.Dy > 0 {
		g.Dy = cfg.Smoothing.Dy
	}
	rows, cols := g.Surface.Dims()
	log.WithFields(logrus.Fields{"rows": rows, "cols": cols, "dx": g.Dx, "dy": g.Dy}).Info("inputs loaded")

	s, err := convolve.NewSmoother(k, convolve.Params{
		Params: bandwidth.Params{
			SigmaK: cfg.Smoothing.SigmaK,
			WK:     cfg.Smoothing.WK,
			WMax:   cfg.Smoothing.WMax,
			Dx:     g.Dx,
			Dy:     g.Dy,
		},
		Workers: cfg.Smoothing.Workers,
	})
	if err != nil {
		return nil, err
	}
	s.Log = log
	// Each callback writes a distinct cell, so concurrent calls are safe.
	degenerate := mat.NewDense(rows, cols, nil)
	s.OnDegenerate = func(d convolve.Degeneracy) {
		degenerate.Set(d.Row, d.Col, 1)
		log.WithFields(logrus.Fields{"row": d.Row, "col": d.Col, "valid": d.Valid}).Debug("degenerate window")
	}

	res, err := s.Smooth(g.Surface, g.Thickness)
	if err != nil {
		return nil, err
	}

	rep := &Report{RunID: runID, Output: cfg.Output.Path, Degenerate: res.Degenerate}
	if err := writeResult(cfg, g, res, degenerate, runID); err != nil {
		return nil, err
	}

	if cfg.Output.GridCSV != "" {
		if err := presenter.SaveDenseToCSV(flipRows(res.Smoothed), cfg.Output.GridCSV); err != nil {
			return nil, fmt.Errorf("writing grid CSV: %w", err)
		}
	}

	if cfg.Output.HeatmapDir != "" {
		if err := os.MkdirAll(cfg.Output.HeatmapDir, 0o755); err != nil {
			return nil, err
		}
		diff := mat.NewDense(rows, cols, nil)
		diff.Sub(res.Smoothed, g.Surface)
		rep.Heatmaps, err = presenter.GenerateHeatmaps(cfg.Output.HeatmapDir, cfg.Output.HeatmapFormat, map[string]mat.Matrix{
			"surface":    g.Surface,
			"thickness":  g.Thickness,
			"smoothed":   res.Smoothed,
			"bandwidth":  res.Bandwidth.Sigma,
			"difference": diff,
		}, g.Extent())
		if err != nil {
			return nil, err
		}
	}

	rep.Comparison, err = stats.Compare(g.Surface, res.Smoothed)
	if err != nil {
		log.WithError(err).Warn("comparing smoothed surface with input")
	}
	rep.Comparison.Name = cfg.Output.SmoothedVar
	if cfg.Output.StatsFile != "" {
		if err := writeStats(cfg.Output.StatsFile, rep.Comparison, g, res); err != nil {
			return nil, err
		}
	}

	if cfg.Output.ConfigFile != "" {
		if err := cfg.WriteYAML(cfg.Output.ConfigFile); err != nil {
			return nil, err
		}
	}

	rep.Elapsed = time.Since(start)
	log.WithFields(logrus.Fields{
		"output":     rep.Output,
		"degenerate": rep.Degenerate,
		"rmsd":       rep.Comparison.RMSD,
		"elapsed":    rep.Elapsed.String(),
	}).Info("smoothing finished")
	return rep, nil
}

func writeResult(cfg *config.Config, g *Grids, res *convolve.Result, degenerate *mat.Dense, runID string) error {
	if isASCII(cfg.Output.Path) {
		out := &readmatrix.ASCIIGrid{
			Data: flipRows(res.Smoothed),
			XLL:  g.X0, YLL: g.Y0,
			Dx: g.Dx, Dy: g.Dy,
			NoData: demio.DefaultFillValue,
		}
		return out.WriteFile(cfg.Output.Path)
	}

	ds := demio.NewDataset(g.Dx, g.Dy, g.X0, g.Y0)
	ds.Attrs["run_id"] = runID
	ds.Attrs["kernel"] = cfg.Smoothing.Kernel
	ds.Attrs["history"] = fmt.Sprintf("glaciersmooth smooth sigma_k=%g w_k=%g w_max=%g",
		cfg.Smoothing.SigmaK, cfg.Smoothing.WK, cfg.Smoothing.WMax)
	vars := map[string]demio.Variable{
		cfg.Output.SmoothedVar: {Data: res.Smoothed, Units: "m", Description: "adaptively smoothed surface elevation"},
	}
	if cfg.Output.WriteBandwidth {
		vars["sigma"] = demio.Variable{Data: res.Bandwidth.Sigma, Units: "m", Description: "kernel bandwidth"}
		vars["half_width"] = demio.Variable{Data: res.Bandwidth.HalfWidth, Units: "m", Description: "kernel window half-width"}
		vars["degenerate"] = demio.Variable{Data: degenerate, Units: "1", Description: "1 where the input value was kept for lack of kernel weight"}
	}
	for name, v := range vars {
		if err := ds.Add(name, v); err != nil {
			return err
		}
	}
	return ds.WriteFile(cfg.Output.Path)
}

func writeStats(path string, c stats.Comparison, g *Grids, res *convolve.Result) error {
	if err := presenter.SaveComparisons([]stats.Comparison{c}, path); err != nil {
		return err
	}
	var summaries []stats.Summary
	for _, m := range []struct {
		name string
		data mat.Matrix
	}{
		{"surface", g.Surface},
		{"thickness", g.Thickness},
		{"smoothed", res.Smoothed},
		{"sigma", res.Bandwidth.Sigma},
	} {
		s := stats.Summarize(m.data)
		s.Name = m.name
		summaries = append(summaries, s)
	}
	ext := filepath.Ext(path)
	return presenter.SaveSummaries(summaries, strings.TrimSuffix(path, ext)+"_summary"+ext)
}
