package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"glaciersmooth/internal/config"
	"glaciersmooth/internal/pipeline"
)

var (
	// cfg and log are set by Root's PersistentPreRunE.
	cfg *config.Config
	log = logrus.New()

	configFile string
)

// option links a command-line flag to a configuration key.
type option struct {
	flag, key  string
	usage      string
	defaultVal interface{}
	flagsets   []*pflag.FlagSet
}

func options(def *config.Config) []option {
	return []option{
		{"log-level", "log_level", "logging level: debug, info, warn or error", def.LogLevel,
			[]*pflag.FlagSet{Root.PersistentFlags()}},
		{"format", "input.format", "input format: netcdf, ascii or matrix", def.Input.Format,
			[]*pflag.FlagSet{smoothCmd.Flags(), synthCmd.Flags()}},
		{"input", "input.path", "netCDF file holding the surface and thickness grids", def.Input.Path,
			[]*pflag.FlagSet{smoothCmd.Flags(), synthCmd.Flags()}},
		{"surface-var", "input.surface_var", "netCDF variable holding surface elevation", def.Input.SurfaceVar,
			[]*pflag.FlagSet{smoothCmd.Flags(), synthCmd.Flags()}},
		{"thickness-var", "input.thickness_var", "netCDF variable holding ice thickness", def.Input.ThicknessVar,
			[]*pflag.FlagSet{smoothCmd.Flags(), synthCmd.Flags()}},
		{"surface", "input.surface_path", "ASCII grid holding surface elevation", def.Input.SurfacePath,
			[]*pflag.FlagSet{smoothCmd.Flags(), synthCmd.Flags()}},
		{"thickness", "input.thickness_path", "ASCII grid holding ice thickness", def.Input.ThicknessPath,
			[]*pflag.FlagSet{smoothCmd.Flags(), synthCmd.Flags()}},
		{"nodata", "input.nodata", "value marking missing cells in matrix input", def.Input.NoData,
			[]*pflag.FlagSet{smoothCmd.Flags(), synthCmd.Flags()}},
		{"kernel", "smoothing.kernel", "kernel: gaussian or triangular", def.Smoothing.Kernel,
			[]*pflag.FlagSet{smoothCmd.Flags()}},
		{"sigma-k", "smoothing.sigma_k", "bandwidth per unit ice thickness", def.Smoothing.SigmaK,
			[]*pflag.FlagSet{smoothCmd.Flags()}},
		{"w-k", "smoothing.w_k", "Gaussian window half-width in bandwidths", def.Smoothing.WK,
			[]*pflag.FlagSet{smoothCmd.Flags()}},
		{"w-max", "smoothing.w_max", "largest window half-width in map units", def.Smoothing.WMax,
			[]*pflag.FlagSet{smoothCmd.Flags()}},
		{"dx", "smoothing.dx", "override the input grid spacing in x", def.Smoothing.Dx,
			[]*pflag.FlagSet{smoothCmd.Flags()}},
		{"dy", "smoothing.dy", "override the input grid spacing in y", def.Smoothing.Dy,
			[]*pflag.FlagSet{smoothCmd.Flags()}},
		{"workers", "smoothing.workers", "number of parallel workers; 0 uses every CPU", def.Smoothing.Workers,
			[]*pflag.FlagSet{smoothCmd.Flags()}},
		{"output", "output.path", "output file; a .asc extension writes an ASCII grid", def.Output.Path,
			[]*pflag.FlagSet{smoothCmd.Flags()}},
		{"heatmap-dir", "output.heatmap_dir", "directory for heatmaps; empty disables them", def.Output.HeatmapDir,
			[]*pflag.FlagSet{smoothCmd.Flags()}},
		{"heatmap-format", "output.heatmap_format", "heatmap format: pdf or png", def.Output.HeatmapFormat,
			[]*pflag.FlagSet{smoothCmd.Flags()}},
		{"stats-file", "output.stats_file", "CSV file for comparison statistics", def.Output.StatsFile,
			[]*pflag.FlagSet{smoothCmd.Flags()}},
		{"grid-csv", "output.grid_csv", "also write the smoothed grid as CSV to this file", def.Output.GridCSV,
			[]*pflag.FlagSet{smoothCmd.Flags()}},
		{"write-config", "output.config_file", "write the effective configuration to this YAML file", def.Output.ConfigFile,
			[]*pflag.FlagSet{smoothCmd.Flags()}},
		{"rows", "synth.rows", "synthetic grid rows", def.Synth.Rows,
			[]*pflag.FlagSet{synthCmd.Flags()}},
		{"cols", "synth.cols", "synthetic grid columns", def.Synth.Cols,
			[]*pflag.FlagSet{synthCmd.Flags()}},
		{"seed", "synth.seed", "random seed for surface noise and missing cells", int(def.Synth.Seed),
			[]*pflag.FlagSet{synthCmd.Flags()}},
	}
}

var flagKeys = map[*pflag.FlagSet]map[string]string{}

func init() {
	Root.AddCommand(smoothCmd, synthCmd, kernelCmd)
	Root.PersistentFlags().StringVar(&configFile, "config", "", "YAML configuration file")

	def, err := config.Default()
	if err != nil {
		panic(err)
	}
	for _, o := range options(def) {
		for i, set := range o.flagsets {
			if flagKeys[set] == nil {
				flagKeys[set] = make(map[string]string)
			}
			flagKeys[set][o.flag] = o.key
			if i != 0 {
				set.AddFlag(o.flagsets[0].Lookup(o.flag))
				continue
			}
			switch v := o.defaultVal.(type) {
			case string:
				set.String(o.flag, v, o.usage)
			case int:
				set.Int(o.flag, v, o.usage)
			case float64:
				set.Float64(o.flag, v, o.usage)
			default:
				panic(fmt.Sprintf("unsupported flag type %T", v))
			}
		}
	}

	kernelCmd.Flags().Float64Var(&kernelSigma, "sigma", 1, "kernel bandwidth")
	kernelCmd.Flags().Float64Var(&kernelExtent, "extent", 3, "sample offsets in [-extent, extent]")
	kernelCmd.Flags().IntVar(&kernelSamples, "samples", 121, "number of samples per kernel")
	kernelCmd.Flags().StringVar(&kernelCSV, "csv", "kernels.csv", "CSV output file")
	kernelCmd.Flags().StringVar(&kernelPlot, "plot", "kernels.pdf", "plot output file; empty disables it")

	for _, c := range []*cobra.Command{Root, smoothCmd, synthCmd, kernelCmd} {
		c.SilenceUsage = true
	}
}

// bindFlags binds the flags of cmd, and the persistent flags of its
// parents, to their configuration keys.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	sets := []*pflag.FlagSet{cmd.Flags(), cmd.Root().PersistentFlags()}
	for _, set := range sets {
		for flag, key := range flagKeys[set] {
			f := cmd.Flags().Lookup(flag)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	return nil
}

func setConfig(cmd *cobra.Command) error {
	v, err := config.NewViper(configFile)
	if err != nil {
		return err
	}
	if err := bindFlags(v, cmd); err != nil {
		return err
	}
	cfg, err = config.Load(v)
	if err != nil {
		return err
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.Debugf("configuration:\n%s", cfg.ToString())
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "glaciersmooth",
	Short: "Thickness-adaptive smoothing of ice-surface elevation grids.",
	Long: `glaciersmooth smooths a surface elevation grid with a Gaussian or
triangular kernel whose bandwidth at every cell is proportional to the local
ice thickness.

Configuration comes from built-in defaults, an optional YAML file given with
--config, environment variables named GLACIERSMOOTH_<SECTION>_<KEY> (for
example GLACIERSMOOTH_SMOOTHING_SIGMA_K) and command-line flags, in
increasing order of priority.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return setConfig(cmd) },
}

var smoothCmd = &cobra.Command{
	Use:   "smooth",
	Short: "Smooth a surface grid",
	Long: `smooth reads a surface and thickness grid, smooths the surface and writes
the result together with the per-cell bandwidth. Heatmaps and comparison
statistics are written when their output locations are set.`,
	RunE: func(*cobra.Command, []string) error {
		_, err := pipeline.Smooth(cfg, log, pipeline.NewRunID())
		return err
	},
}

var synthCmd = &cobra.Command{
	Use:   "synth",
	Short: "Generate a synthetic ice cap",
	Long: `synth writes a synthetic ice cap, with a Vialov thickness profile on a
sloping bed, to the input locations that smooth reads from.`,
	RunE: func(*cobra.Command, []string) error {
		return pipeline.Synth(cfg, log, pipeline.NewRunID())
	},
}

var (
	kernelSigma, kernelExtent float64
	kernelSamples             int
	kernelCSV, kernelPlot     string
)

var kernelCmd = &cobra.Command{
	Use:   "kernel",
	Short: "Sample and plot the kernel shapes",
	RunE: func(*cobra.Command, []string) error {
		if err := pipeline.Kernels(kernelSigma, kernelExtent, kernelSamples, kernelCSV, kernelPlot); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"csv": kernelCSV, "plot": kernelPlot}).Info("kernel samples written")
		return nil
	},
}
