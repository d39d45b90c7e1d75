// Package config provides configuration loading and management for texroiprep.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the application configuration loaded from YAML
type Config struct {
	// Input selection
	Input struct {
		// ImageFolder is the directory holding the source images
		ImageFolder string `yaml:"imageFolder"`

		// OutFolder receives every exported artifact
		OutFolder string `yaml:"outFolder"`

		// FilePattern is a regular expression selecting files for batch processing
		FilePattern string `yaml:"filePattern"`

		// LoadAnyDepth keeps the native bit depth and channel count of images
		LoadAnyDepth bool `yaml:"loadAnyDepth"`
	} `yaml:"input"`

	// Display parameters used for rendered previews
	Display struct {
		// Range is one of none, fixed, minmax, meanpm3std, percentile
		Range string `yaml:"range"`

		// FixedMin and FixedMax are used by the fixed range
		FixedMin float64 `yaml:"fixedMin"`
		FixedMax float64 `yaml:"fixedMax"`

		// PseudoColor renders previews with the HSV ramp
		PseudoColor bool `yaml:"pseudoColor"`

		// ScaleBase and ScalePower give the preview magnification base^power
		ScaleBase  int `yaml:"scaleBase"`
		ScalePower int `yaml:"scalePower"`

		// RoiScale magnifies the cropped ROI preview
		RoiScale float64 `yaml:"roiScale"`
	} `yaml:"display"`

	// Resize parameters
	Resize struct {
		// Scale is the resize factor
		Scale float64 `yaml:"scale"`

		// Interpolation is one of nearest, approx-bilinear, bilinear, catmull-rom
		Interpolation string `yaml:"interpolation"`

		// KeepPixelSize derives the scale from the TIFF pixel size and PixelSize
		KeepPixelSize bool `yaml:"keepPixelSize"`

		// PixelSize is the requested output pixel size
		PixelSize float64 `yaml:"pixelSize"`
	} `yaml:"resize"`

	// Degrade parameters for the linear operation
	Degrade struct {
		IntensityScale float64 `yaml:"intensityScale"`
		PlainImage     bool    `yaml:"plainImage"`

		GaussianNoise bool    `yaml:"gaussianNoise"`
		GaussianSigma float64 `yaml:"gaussianSigma"`

		UniformNoise bool `yaml:"uniformNoise"`
		UniformStart int  `yaml:"uniformStart"`
		UniformStop  int  `yaml:"uniformStop"`

		RicianNoise bool    `yaml:"ricianNoise"`
		RicianS     float64 `yaml:"ricianS"`

		Gradient            bool    `yaml:"gradient"`
		GradientDirection   string  `yaml:"gradientDirection"`
		GradientNominator   float64 `yaml:"gradientNominator"`
		GradientDenominator float64 `yaml:"gradientDenominator"`

		Offset float64 `yaml:"offset"`

		// Seed initializes the noise generators
		Seed uint64 `yaml:"seed"`
	} `yaml:"degrade"`

	// ROI grid parameters
	ROI struct {
		Size   int    `yaml:"size"`
		Shift  int    `yaml:"shift"`
		Offset int    `yaml:"offset"`
		Shape  string `yaml:"shape"`

		// Reduced enables decimation, Complement inverts its polarity
		Reduced    bool `yaml:"reduced"`
		Complement bool `yaml:"complement"`
		SkipCount  int  `yaml:"skipCount"`

		// RoiNr selects the region used for histograms and binned export
		RoiNr int `yaml:"roiNr"`

		// Normalization is one of minmax, meanpm3std, percentile
		Normalization string `yaml:"normalization"`

		// BitsPerPixel sets the bin count 2^bits of the binned export
		BitsPerPixel int `yaml:"bitsPerPixel"`

		// FixedHistogramRange replaces the natural histogram range with [HistogramMin, HistogramMax]
		FixedHistogramRange bool `yaml:"fixedHistogramRange"`
		HistogramMin        int  `yaml:"histogramMin"`
		HistogramMax        int  `yaml:"histogramMax"`

		// ViewFolder holds the region files shown by the view mode, relative to the image folder
		ViewFolder string `yaml:"viewFolder"`
	} `yaml:"roi"`

	// Histogram rendering
	Histogram struct {
		ScaleHeight int `yaml:"scaleHeight"`
		ScaleCoef   int `yaml:"scaleCoef"`
		BarWidth    int `yaml:"barWidth"`
	} `yaml:"histogram"`

	// Script generation for the external feature extractor
	Script struct {
		// Tool is the extractor executable
		Tool string `yaml:"tool"`

		// Name is the prefix of the batch script file
		Name string `yaml:"name"`

		// InFolder is the image folder as seen by the extractor
		InFolder string `yaml:"inFolder"`

		// RoiFolder holds the region files, one per image, relative to the image folder
		RoiFolder string `yaml:"roiFolder"`

		// OptionsFolder and OptionsFile locate the extractor options
		OptionsFolder    string `yaml:"optionsFolder"`
		OptionsFile      string `yaml:"optionsFile"`
		OptionsExtension string `yaml:"optionsExtension"`

		// OutputName prefixes the extractor result file
		OutputName string `yaml:"outputName"`
	} `yaml:"script"`

	// Output parameters
	Output struct {
		// SaveOutput writes the result image of the mode
		SaveOutput bool `yaml:"saveOutput"`

		// SaveRoi writes the region container of the grid
		SaveRoi bool `yaml:"saveRoi"`

		// SavePreviews writes rendered previews and histogram plots
		SavePreviews bool `yaml:"savePreviews"`

		// SaveHistograms writes histogram text dumps
		SaveHistograms bool `yaml:"saveHistograms"`

		// SaveBinned writes the binned ROI image
		SaveBinned bool `yaml:"saveBinned"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`

	// Logging parameters
	Logging struct {
		// Level is a zerolog level name
		Level string `yaml:"level"`

		// File enables rotated file logging when set
		File string `yaml:"file"`

		// MaxSize in megabytes before the log file is rotated
		MaxSize int `yaml:"maxSize"`

		// MaxAge in days to retain old log files
		MaxAge int `yaml:"maxAge"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default input parameters
	cfg.Input.ImageFolder = "."
	cfg.Input.OutFolder = "out"
	cfg.Input.FilePattern = `.+\.(tif|tiff|png|bmp)$`
	cfg.Input.LoadAnyDepth = true

	// Set default display parameters
	cfg.Display.Range = "minmax"
	cfg.Display.FixedMax = 65535
	cfg.Display.ScaleBase = 2
	cfg.Display.ScalePower = 0
	cfg.Display.RoiScale = 1

	// Set default resize parameters
	cfg.Resize.Scale = 1
	cfg.Resize.Interpolation = "bilinear"
	cfg.Resize.PixelSize = 1

	// Set default degrade parameters
	cfg.Degrade.IntensityScale = 1
	cfg.Degrade.GaussianSigma = 10
	cfg.Degrade.UniformStart = -10
	cfg.Degrade.UniformStop = 10
	cfg.Degrade.RicianS = 10
	cfg.Degrade.GradientDirection = "X"
	cfg.Degrade.GradientNominator = 1
	cfg.Degrade.GradientDenominator = 1
	cfg.Degrade.Seed = 1

	// Set default ROI parameters
	cfg.ROI.Size = 32
	cfg.ROI.Shift = 32
	cfg.ROI.Offset = 16
	cfg.ROI.Shape = "rectangle"
	cfg.ROI.SkipCount = 1
	cfg.ROI.RoiNr = 1
	cfg.ROI.Normalization = "minmax"
	cfg.ROI.BitsPerPixel = 8
	cfg.ROI.HistogramMax = 65535
	cfg.ROI.ViewFolder = "roi/"

	// Set default histogram parameters
	cfg.Histogram.ScaleHeight = 200
	cfg.Histogram.ScaleCoef = 1
	cfg.Histogram.BarWidth = 1

	// Set default script parameters
	cfg.Script.Tool = "MzGengui.exe"
	cfg.Script.Name = "MaZdaScript"
	cfg.Script.InFolder = "images/"
	cfg.Script.RoiFolder = "roi/"
	cfg.Script.OptionsFolder = "options/"
	cfg.Script.OptionsFile = "options"
	cfg.Script.OptionsExtension = "txt"
	cfg.Script.OutputName = "Result"

	// Set default output parameters
	cfg.Output.SaveOutput = true
	cfg.Output.SaveRoi = true
	cfg.Output.SavePreviews = false
	cfg.Output.SaveHistograms = true
	cfg.Output.SaveBinned = true
	cfg.Output.Verbose = true

	// Set default logging parameters
	cfg.Logging.Level = "info"
	cfg.Logging.MaxSize = 10
	cfg.Logging.MaxAge = 28

	return cfg
}

// Validate reports parameters that would make processing fail
func (c *Config) Validate() error {
	if c.ROI.Size < 1 {
		return fmt.Errorf("%w: roi size %d must be at least 1", ErrInvalidConfig, c.ROI.Size)
	}
	if c.ROI.Shift < c.ROI.Size {
		return fmt.Errorf("%w: roi shift %d is smaller than roi size %d", ErrInvalidConfig, c.ROI.Shift, c.ROI.Size)
	}
	if c.ROI.SkipCount < 0 {
		return fmt.Errorf("%w: negative skip count", ErrInvalidConfig)
	}
	if c.ROI.RoiNr < 0 || c.ROI.RoiNr > 65535 {
		return fmt.Errorf("%w: roi number %d out of range", ErrInvalidConfig, c.ROI.RoiNr)
	}
	if c.ROI.BitsPerPixel < 1 || c.ROI.BitsPerPixel > 16 {
		return fmt.Errorf("%w: bits per pixel %d outside [1, 16]", ErrInvalidConfig, c.ROI.BitsPerPixel)
	}
	if c.Resize.Scale <= 0 {
		return fmt.Errorf("%w: resize scale must be positive", ErrInvalidConfig)
	}
	if c.Resize.KeepPixelSize && c.Resize.PixelSize <= 0 {
		return fmt.Errorf("%w: pixel size must be positive", ErrInvalidConfig)
	}
	if c.Degrade.Gradient && c.Degrade.GradientDenominator == 0 {
		return fmt.Errorf("%w: gradient denominator is zero", ErrInvalidConfig)
	}
	if c.Histogram.ScaleHeight < 1 || c.Histogram.BarWidth < 1 || c.Histogram.ScaleCoef < 1 {
		return fmt.Errorf("%w: histogram plot sizes must be positive", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
