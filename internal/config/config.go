// Package config loads the glaciersmooth run configuration.
//
// Values come, in increasing priority, from the embedded defaults.yaml,
// an optional YAML config file, GLACIERSMOOTH_* environment variables and
// command-line flags bound to the viper instance.
package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"glaciersmooth/pkg/kernel"
	"glaciersmooth/pkg/synthdem"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// EnvPrefix prefixes environment overrides, e.g. GLACIERSMOOTH_SMOOTHING_SIGMA_K.
const EnvPrefix = "GLACIERSMOOTH"

type Config struct {
	LogLevel  string          `yaml:"log_level" mapstructure:"log_level"`
	Input     InputConfig     `yaml:"input" mapstructure:"input"`
	Smoothing SmoothingConfig `yaml:"smoothing" mapstructure:"smoothing"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Synth     synthdem.Params `yaml:"synth" mapstructure:"synth"`
}

type InputConfig struct {
	Format        string  `yaml:"format" mapstructure:"format"`
	Path          string  `yaml:"path" mapstructure:"path"`
	SurfaceVar    string  `yaml:"surface_var" mapstructure:"surface_var"`
	ThicknessVar  string  `yaml:"thickness_var" mapstructure:"thickness_var"`
	SurfacePath   string  `yaml:"surface_path" mapstructure:"surface_path"`
	ThicknessPath string  `yaml:"thickness_path" mapstructure:"thickness_path"`
	NoData        float64 `yaml:"nodata" mapstructure:"nodata"`
}

type SmoothingConfig struct {
	Kernel  string  `yaml:"kernel" mapstructure:"kernel"`
	SigmaK  float64 `yaml:"sigma_k" mapstructure:"sigma_k"`
	WK      float64 `yaml:"w_k" mapstructure:"w_k"`
	WMax    float64 `yaml:"w_max" mapstructure:"w_max"`
	Dx      float64 `yaml:"dx" mapstructure:"dx"`
	Dy      float64 `yaml:"dy" mapstructure:"dy"`
	Workers int     `yaml:"workers" mapstructure:"workers"`
}

type OutputConfig struct {
	Path           string `yaml:"path" mapstructure:"path"`
	SmoothedVar    string `yaml:"smoothed_var" mapstructure:"smoothed_var"`
	WriteBandwidth bool   `yaml:"write_bandwidth" mapstructure:"write_bandwidth"`
	HeatmapDir     string `yaml:"heatmap_dir" mapstructure:"heatmap_dir"`
	HeatmapFormat  string `yaml:"heatmap_format" mapstructure:"heatmap_format"`
	StatsFile      string `yaml:"stats_file" mapstructure:"stats_file"`
	GridCSV        string `yaml:"grid_csv" mapstructure:"grid_csv"`
	ConfigFile     string `yaml:"config_file" mapstructure:"config_file"`
}

// Default returns the embedded defaults.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	return cfg, nil
}

// NewViper returns a viper instance holding the defaults, with environment
// overrides enabled. If configFile is not empty it is merged on top.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaultsYAML)); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if configFile != "" {
		v.SetConfigFile(os.ExpandEnv(configFile))
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	return v, nil
}

// Load unmarshals the merged configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	cfg.Input.Path = os.ExpandEnv(cfg.Input.Path)
	cfg.Input.SurfacePath = os.ExpandEnv(cfg.Input.SurfacePath)
	cfg.Input.ThicknessPath = os.ExpandEnv(cfg.Input.ThicknessPath)
	cfg.Output.Path = os.ExpandEnv(cfg.Output.Path)
	cfg.Output.HeatmapDir = os.ExpandEnv(cfg.Output.HeatmapDir)
	cfg.Output.StatsFile = os.ExpandEnv(cfg.Output.StatsFile)
	cfg.Output.GridCSV = os.ExpandEnv(cfg.Output.GridCSV)
	cfg.Output.ConfigFile = os.ExpandEnv(cfg.Output.ConfigFile)
	return cfg, nil
}

// Kernel parses the configured kernel name.
func (c *Config) Kernel() (kernel.Kind, error) {
	return kernel.ParseKind(c.Smoothing.Kernel)
}

// Validate checks the settings used by the smooth command. Smoothing
// parameters are checked again against the grid once it is loaded.
func (c *Config) Validate() error {
	if _, err := c.Kernel(); err != nil {
		return err
	}
	switch strings.ToLower(c.Input.Format) {
	case "netcdf":
		if c.Input.Path == "" {
			return fmt.Errorf("input.path is required for netcdf input")
		}
		if c.Input.SurfaceVar == "" || c.Input.ThicknessVar == "" {
			return fmt.Errorf("input.surface_var and input.thickness_var are required for netcdf input")
		}
	case "ascii", "matrix":
		if c.Input.SurfacePath == "" || c.Input.ThicknessPath == "" {
			return fmt.Errorf("input.surface_path and input.thickness_path are required for %s input", c.Input.Format)
		}
	default:
		return fmt.Errorf("input.format must be netcdf, ascii or matrix, got %q", c.Input.Format)
	}
	if c.Output.Path == "" {
		return fmt.Errorf("output.path is required")
	}
	switch c.Output.HeatmapFormat {
	case "pdf", "png":
	default:
		return fmt.Errorf("output.heatmap_format must be pdf or png, got %q", c.Output.HeatmapFormat)
	}
	if c.Smoothing.Dx < 0 || c.Smoothing.Dy < 0 {
		return fmt.Errorf("smoothing.dx and smoothing.dy must not be negative")
	}
	if strings.EqualFold(c.Input.Format, "matrix") && (c.Smoothing.Dx == 0 || c.Smoothing.Dy == 0) {
		return fmt.Errorf("matrix input carries no grid spacing; set smoothing.dx and smoothing.dy")
	}
	return nil
}

// ToString renders the configuration as YAML for logging.
func (c *Config) ToString() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("%+v", *c)
	}
	return string(data)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
