// Package pipeline drives the processing modes over single images and whole
// folders: it loads each raster, runs the selected mode and exports the
// resulting artifacts to the output folder.
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"texroiprep/internal/models"
	"texroiprep/pkg/config"
	"texroiprep/pkg/degrade"
	"texroiprep/pkg/histogram"
	"texroiprep/pkg/normalization"
	"texroiprep/pkg/rasterio"
	"texroiprep/pkg/roi"
)

// ErrInvalidInput is returned when an image cannot be processed by a mode
var ErrInvalidInput = errors.New("invalid input image")

// StatisticsFile is written to the output folder by a grid batch
const StatisticsFile = "HistStatistics.txt"

// Mode selects the operation applied to every image
type Mode int

const (
	ModeRoiFromRed Mode = iota
	ModeResize
	ModeDegrade
	ModeGrid
	ModeScript
	ModeView
)

var modeNames = map[Mode]string{
	ModeRoiFromRed: "roi-from-red",
	ModeResize:     "resize",
	ModeDegrade:    "degrade",
	ModeGrid:       "grid",
	ModeScript:     "script",
	ModeView:       "view",
}

// String returns the command name of the mode
func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return "unknown"
}

// ParseMode maps a command name to a Mode
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if name == strings.ToLower(s) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// Processor runs the processing modes with one configuration.
//
// A Processor is not safe for concurrent use: grid and script modes
// accumulate batch output between calls.
type Processor struct {
	// cfg holds the parsed configuration
	cfg *config.Config

	// log receives progress and per-file warnings
	log zerolog.Logger

	palette     roi.Palette
	shape       models.Shape
	roiNorm     normalization.Policy
	displayNorm normalization.Policy
	interp      rasterio.Interpolation
	direction   degrade.Direction

	// sources are seeded once so a batch draws one continuous noise stream
	sources degrade.Sources

	// statistics collects one line per image processed in grid mode
	statistics []string

	// script collects extractor command lines; scriptLines counts them so
	// only the first line carries the options file
	script      strings.Builder
	scriptLines int
}

// NewProcessor creates a processor for a configuration.
//
// Parameters:
//   - cfg: Validated configuration
//   - log: Logger for progress messages
//
// Returns:
//   - A new Processor, or an error when a configuration value cannot be parsed
func NewProcessor(cfg *config.Config, log zerolog.Logger) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Processor{
		cfg:     cfg,
		log:     log,
		palette: roi.DefaultPalette(),
		shape:   models.ParseShape(cfg.ROI.Shape),
	}

	var err error
	if p.roiNorm, err = normalization.ParsePolicy(cfg.ROI.Normalization); err != nil {
		return nil, fmt.Errorf("roi normalization: %w", err)
	}
	switch p.roiNorm {
	case normalization.PolicyMinMax, normalization.PolicyMeanPM3Sigma, normalization.PolicyPercentile1to99:
	default:
		return nil, fmt.Errorf("%w: roi normalization must be minmax, meanpm3std or percentile", config.ErrInvalidConfig)
	}
	if p.displayNorm, err = normalization.ParsePolicy(cfg.Display.Range); err != nil {
		return nil, fmt.Errorf("display range: %w", err)
	}
	if p.interp, err = rasterio.ParseInterpolation(cfg.Resize.Interpolation); err != nil {
		return nil, err
	}
	if p.direction, err = degrade.ParseDirection(cfg.Degrade.GradientDirection); err != nil {
		return nil, err
	}

	seed := cfg.Degrade.Seed
	p.sources = degrade.Sources{
		Normal:  degrade.NewNormal(seed),
		Uniform: degrade.NewUniformInt(cfg.Degrade.UniformStart, cfg.Degrade.UniformStop, seed+1),
	}
	return p, nil
}

// Process runs one mode on a single file of the image folder.
//
// Parameters:
//   - mode: Operation to apply
//   - fileName: Name of the image inside the configured image folder
//
// Returns:
//   - nil if successful, or an error if the image cannot be read or processed
func (p *Processor) Process(mode Mode, fileName string) error {
	path := filepath.Join(p.cfg.Input.ImageFolder, fileName)
	log := p.log.With().Str("mode", mode.String()).Str("file", fileName).Logger()

	in, err := rasterio.Load(path, rasterio.LoadOptions{AnyDepth: p.cfg.Input.LoadAnyDepth})
	if err != nil {
		return err
	}
	log.Debug().
		Int("width", in.Width).
		Int("height", in.Height).
		Int("channels", in.Channels).
		Str("depth", in.Depth.String()).
		Msg("image loaded")

	switch mode {
	case ModeRoiFromRed:
		return p.roiFromRed(log, fileName, in)
	case ModeResize:
		return p.resize(log, fileName, in)
	case ModeDegrade:
		return p.degrade(log, fileName, in)
	case ModeGrid:
		return p.grid(log, fileName, in)
	case ModeScript:
		return p.scriptLine(log, fileName, in)
	case ModeView:
		return p.view(log, fileName, in)
	default:
		return fmt.Errorf("unknown mode %d", mode)
	}
}

// ProcessAll runs one mode on every file of the image folder that matches
// the configured pattern, in natural-number order.
//
// A failing file is logged and skipped. After the last file, grid mode writes
// the statistics table and script mode the extractor batch script.
//
// Returns:
//   - The number of files processed without error
func (p *Processor) ProcessAll(mode Mode) (int, error) {
	files, err := ListFiles(p.cfg.Input.ImageFolder, p.cfg.Input.FilePattern)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		p.log.Warn().Str("folder", p.cfg.Input.ImageFolder).Msg("no matching images")
	}

	p.statistics = p.statistics[:0]
	p.script.Reset()
	p.scriptLines = 0

	done := 0
	for i, name := range files {
		p.log.Info().
			Str("mode", mode.String()).
			Str("file", name).
			Msgf("processing %d/%d", i+1, len(files))
		if err := p.Process(mode, name); err != nil {
			p.log.Error().Err(err).Str("file", name).Msg("processing failed")
			continue
		}
		done++
	}

	switch mode {
	case ModeGrid:
		if err := p.writeText(StatisticsFile, p.StatisticsTable()); err != nil {
			return done, err
		}
	case ModeScript:
		name := p.cfg.Script.Name + "_" + p.cfg.Script.OptionsFile + ".bat"
		if err := p.writeText(name, p.Script()); err != nil {
			return done, err
		}
	}
	return done, nil
}

// StatisticsTable returns the header and the statistics lines gathered by grid mode
func (p *Processor) StatisticsTable() string {
	var sb strings.Builder
	sb.WriteString(histogram.StatisticsHeader())
	sb.WriteString("\n")
	for _, line := range p.statistics {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Script returns the extractor command lines gathered by script mode
func (p *Processor) Script() string {
	return p.script.String()
}

// ListFiles returns the regular files of folder whose names match pattern,
// sorted by the number embedded in their names.
func ListFiles(folder, pattern string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid file pattern: %w", err)
	}

	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("failed to read image folder: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !re.MatchString(e.Name()) {
			continue
		}
		files = append(files, e.Name())
	}

	// Images of one series differ by their frame number
	sort.SliceStable(files, func(i, j int) bool {
		numI := extractNumber(files[i])
		numJ := extractNumber(files[j])
		if numI != numJ {
			return numI < numJ
		}
		return files[i] < files[j]
	})
	return files, nil
}

// extractNumber extracts the numeric part from a filename
func extractNumber(filename string) int {
	base := filepath.Base(filename)
	numStr := ""
	for _, c := range base {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}

	if numStr != "" {
		num, err := strconv.Atoi(numStr)
		if err == nil {
			return num
		}
	}
	return 0
}

// stem strips the extension of a file name
func stem(fileName string) string {
	base := filepath.Base(fileName)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// outPath returns the location of an artifact in the output folder
func (p *Processor) outPath(name string) string {
	return filepath.Join(p.cfg.Input.OutFolder, name)
}

// saveRaster writes a raster artifact to the output folder
func (p *Processor) saveRaster(name string, r models.Raster) error {
	if err := rasterio.Save(p.outPath(name), r); err != nil {
		return fmt.Errorf("failed to save %s: %w", name, err)
	}
	return nil
}

// writeText writes a text artifact to the output folder
func (p *Processor) writeText(name, text string) error {
	if err := os.MkdirAll(p.cfg.Input.OutFolder, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(p.outPath(name), []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// displayWindow returns the intensity window of the configured display range
func (p *Processor) displayWindow(r models.Raster) models.Range {
	if p.displayNorm == normalization.PolicyFixed {
		return models.Range{Min: p.cfg.Display.FixedMin, Max: p.cfg.Display.FixedMax}
	}
	return normalization.Compute(p.displayNorm, r)
}

// displayWindowRegion is displayWindow restricted to one region
func (p *Processor) displayWindowRegion(r models.Raster, mask models.LabelMask, id uint16) models.Range {
	if p.displayNorm == normalization.PolicyFixed {
		return models.Range{Min: p.cfg.Display.FixedMin, Max: p.cfg.Display.FixedMax}
	}
	return normalization.ComputeRegion(p.displayNorm, r, mask, id)
}
