package presenter

import (
	"fmt"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/mat"

	"glaciersmooth/pkg/heatmapplotter"
	"glaciersmooth/pkg/kernel"
)

// GenerateHeatmap plots one grid to outputPath.
func GenerateHeatmap(outputPath, title string, matrix mat.Matrix, ext heatmapplotter.Extent) error {
	return heatmapplotter.MakeHeatmapPlot(matrix, title, outputPath, ext)
}

// GenerateHeatmaps plots every named grid into dir as <name>.<format>.
func GenerateHeatmaps(dir, format string, grids map[string]mat.Matrix, ext heatmapplotter.Extent) ([]string, error) {
	names := make([]string, 0, len(grids))
	for name := range grids {
		names = append(names, name)
	}
	sort.Strings(names)

	var written []string
	for _, name := range names {
		path := filepath.Join(dir, name+"."+format)
		if err := GenerateHeatmap(path, name, grids[name], ext); err != nil {
			return written, fmt.Errorf("plotting %s: %w", name, err)
		}
		written = append(written, path)
	}
	return written, nil
}

// SampleKernels evaluates each kernel at n offsets across [-extent, extent].
func SampleKernels(kinds []kernel.Kind, sigma, extent float64, n int) ([]KernelSample, []heatmapplotter.Curve) {
	var (
		samples []KernelSample
		curves  []heatmapplotter.Curve
	)
	for _, k := range kinds {
		x, w := kernel.Sample(k.Func(), sigma, extent, n)
		curves = append(curves, heatmapplotter.Curve{Label: k.String(), Offsets: x, Weights: w})
		for i := range x {
			samples = append(samples, KernelSample{Kernel: k.String(), Sigma: sigma, Offset: x[i], Weight: w[i]})
		}
	}
	return samples, curves
}
