package pipeline

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"texroiprep/internal/models"
	"texroiprep/pkg/binning"
	"texroiprep/pkg/config"
	"texroiprep/pkg/degrade"
	"texroiprep/pkg/display"
	"texroiprep/pkg/grid"
	"texroiprep/pkg/histogram"
	"texroiprep/pkg/normalization"
	"texroiprep/pkg/rasterio"
	"texroiprep/pkg/roi"
)

// Resize factors outside this interval are rejected
const (
	MinResizeScale = 0.01
	MaxResizeScale = 20.0
)

// RoiFromRed marks the pixels of an 8-bit RGB annotation whose blue and green
// samples differ. The result is a 16-bit mask holding 1 on marked pixels.
func RoiFromRed(in models.Raster) (models.Raster, error) {
	if in.Empty() {
		return models.Raster{}, fmt.Errorf("%w: empty image", ErrInvalidInput)
	}
	if in.Depth != models.DepthU8 {
		return models.Raster{}, fmt.Errorf("%w: improper image type %s", ErrInvalidInput, in.Depth)
	}
	if in.Channels != 3 {
		return models.Raster{}, fmt.Errorf("%w: improper number of channels %d", ErrInvalidInput, in.Channels)
	}

	out := models.NewRaster(in.Width, in.Height, 1, models.DepthU16)
	for i := range out.Pix {
		g := in.Pix[i*3+1]
		b := in.Pix[i*3+2]
		if b != g {
			out.Pix[i] = 1
		}
	}
	return out, nil
}

func (p *Processor) roiFromRed(log zerolog.Logger, fileName string, in models.Raster) error {
	out, err := RoiFromRed(in)
	if err != nil {
		return err
	}

	marked := 0
	for _, v := range out.Pix {
		if v != 0 {
			marked++
		}
	}
	log.Info().Int("pixels", marked).Msg("annotation extracted")

	if !p.cfg.Output.SaveOutput {
		return nil
	}
	return p.saveRaster(stem(fileName)+".tif", out)
}

// PixelScale resolves the resize factor and the resulting pixel size.
//
// With keep the factor is derived from the input pixel size and the requested
// output pixel size; otherwise the output pixel size follows from scale.
func PixelScale(inPixelSize, scale, requestedPixelSize float64, keep bool) (factor, outPixelSize float64) {
	if keep {
		return inPixelSize / requestedPixelSize, requestedPixelSize
	}
	return scale, inPixelSize / scale
}

func (p *Processor) resize(log zerolog.Logger, fileName string, in models.Raster) error {
	path := filepath.Join(p.cfg.Input.ImageFolder, fileName)

	pixelSize := 1.0
	if rasterio.IsTIFF(path) {
		if xRes, _, ok := rasterio.TIFFResolution(path); ok && xRes > 0 {
			pixelSize = 1 / xRes
		}
	}

	factor, outPixelSize := PixelScale(pixelSize, p.cfg.Resize.Scale, p.cfg.Resize.PixelSize, p.cfg.Resize.KeepPixelSize)
	if factor < MinResizeScale || factor > MaxResizeScale {
		return fmt.Errorf("%w: resize scale %f outside [%.2f, %.0f]", ErrInvalidInput, factor, MinResizeScale, MaxResizeScale)
	}

	out, err := rasterio.Resize(in, factor, p.interp)
	if err != nil {
		return fmt.Errorf("failed to resize: %w", err)
	}
	log.Info().
		Float64("scale", factor).
		Float64("pixelSize", outPixelSize).
		Str("interpolation", p.interp.String()).
		Int("width", out.Width).
		Int("height", out.Height).
		Msg("image resized")

	if !p.cfg.Output.SaveOutput {
		return nil
	}
	return p.saveRaster(fmt.Sprintf("%sresizedScale%f.tif", stem(fileName), factor), out)
}

// degradeParams translates the degrade section of the configuration
func (p *Processor) degradeParams() degrade.Params {
	d := p.cfg.Degrade
	return degrade.Params{
		IntensityScale:      d.IntensityScale,
		PlainImage:          d.PlainImage,
		Gaussian:            d.GaussianNoise,
		GaussianSigma:       d.GaussianSigma,
		Uniform:             d.UniformNoise,
		UniformStart:        d.UniformStart,
		UniformStop:         d.UniformStop,
		Rician:              d.RicianNoise,
		RicianS:             d.RicianS,
		Gradient:            d.Gradient,
		GradientDirection:   p.direction,
		GradientNominator:   d.GradientNominator,
		GradientDenominator: d.GradientDenominator,
		Offset:              d.Offset,
	}
}

func (p *Processor) degrade(log zerolog.Logger, fileName string, in models.Raster) error {
	params := p.degradeParams()
	res, err := degrade.Apply(in, params, p.sources)
	if err != nil {
		return err
	}

	name := degrade.FileName(stem(fileName), params)
	log.Info().Str("output", name).Int("noiseMaps", len(res.Noise)).Msg("linear operation applied")

	if p.cfg.Output.SaveOutput {
		if err := p.saveRaster(name, res.Output); err != nil {
			return err
		}
	}

	if p.cfg.Output.SavePreviews {
		base := stem(fileName)
		p.saveHistogramPlot(log, base+"HistIn.bmp", histogram.Build(res.Input))
		p.saveHistogramPlot(log, base+"HistOut.bmp", histogram.Build(res.Output))
		for tag, noise := range res.Noise {
			p.saveHistogramPlot(log, base+"Hist"+tag+".bmp", histogram.Build(noise))
		}
	}
	return nil
}

// GridParams translates the roi section of the configuration for a canvas
func GridParams(cfg *config.Config, width, height int) grid.Params {
	dec := grid.Decimation{Policy: grid.DecimationNone, SkipCount: cfg.ROI.SkipCount}
	if cfg.ROI.Reduced {
		dec.Policy = grid.DecimationNormal
		if cfg.ROI.Complement {
			dec.Policy = grid.DecimationComplement
		}
	}
	return grid.Params{
		Width:      width,
		Height:     height,
		RoiSize:    cfg.ROI.Size,
		Shift:      cfg.ROI.Shift,
		Offset:     cfg.ROI.Offset,
		Shape:      models.ParseShape(cfg.ROI.Shape),
		Decimation: dec,
	}
}

// GridTag names the artifacts of a grid: shape, size and region count
func GridTag(shape models.Shape, size int, maxID uint16) string {
	return fmt.Sprintf("%s%dCnt%d", shape.Tag(), size, maxID)
}

func (p *Processor) grid(log zerolog.Logger, fileName string, in models.Raster) error {
	res, err := grid.Generate(GridParams(p.cfg, in.Width, in.Height))
	if err != nil {
		return err
	}

	base := stem(fileName)
	tag := GridTag(p.shape, p.cfg.ROI.Size, res.MaxID)
	roiNr := uint16(p.cfg.ROI.RoiNr)
	log.Info().
		Uint16("regions", res.MaxID).
		Int("unassigned", res.Counts[0]).
		Msg("grid created")

	if p.cfg.Output.SavePreviews {
		p.saveImage(log, "ROI_"+tag+".bmp", display.RegionMap(res.Mask, p.palette))
	}

	hist := histogram.Build(rasterio.Gray16(in), p.histogramOptions(res.Mask, roiNr)...)
	p.statistics = append(p.statistics, histogram.StatisticsLine(fileName, hist))
	regionPrefix := fmt.Sprintf("%s%sNr%d", base, tag, roiNr)
	if p.cfg.Output.SaveHistograms {
		if err := p.writeText(regionPrefix+".txt", histogram.Serialize(hist)); err != nil {
			return err
		}
	}
	if p.cfg.Output.SavePreviews {
		p.saveHistogramPlot(log, regionPrefix+"Hist.bmp", hist)
	}

	crop, cropMask, ok := display.Crop(in, res.Mask, roiNr)
	if !ok {
		log.Warn().Uint16("roi", roiNr).Msg("selected roi has no pixels")
	} else {
		if p.cfg.Output.SavePreviews {
			window := p.displayWindowRegion(crop, cropMask, roiNr)
			img, err := display.NewViewer(crop, window, p.cfg.Display.PseudoColor, p.cfg.Display.RoiScale).Render()
			if err == nil {
				p.saveImage(log, regionPrefix+p.displayNorm.Tag()+".bmp", img)
			}
		}
		if err := p.exportBinned(log, regionPrefix, crop, cropMask, roiNr); err != nil {
			log.Warn().Err(err).Msg("binned export skipped")
		}
	}

	if !p.cfg.Output.SaveRoi {
		return nil
	}
	count := min(res.MaxID, roi.MaxRegions)
	if count < res.MaxID {
		log.Warn().Uint16("regions", res.MaxID).Msgf("only the first %d regions are stored", count)
	}
	regions := roi.WithShape(roi.Encode(res.Mask, count, base, p.palette), p.shape)
	meta := roi.Metadata{
		"source": fileName,
		"shape":  p.shape.String(),
		"size":   fmt.Sprint(p.cfg.ROI.Size),
		"shift":  fmt.Sprint(p.cfg.ROI.Shift),
		"offset": fmt.Sprint(p.cfg.ROI.Offset),
	}
	if err := roi.Persist(regions, p.outPath(base+tag+".roi"), meta); err != nil {
		return err
	}
	return nil
}

// exportBinned requantizes the raster over the range of region id and saves
// the pseudo-colour rendering of the bins and their histogram.
func (p *Processor) exportBinned(log zerolog.Logger, prefix string, r models.Raster, mask models.LabelMask, id uint16) error {
	bits := p.cfg.ROI.BitsPerPixel
	binCount := binning.BinCountForBits(bits)
	rng := normalization.ComputeRegion(p.roiNorm, r, mask, id)

	binned, err := binning.Quantize(r, rng, binCount)
	if err != nil {
		return fmt.Errorf("failed to bin roi %d: %w", id, err)
	}
	log.Debug().
		Float64("min", rng.Min).
		Float64("max", rng.Max).
		Int("bins", binCount).
		Msg("roi binned")

	name := fmt.Sprintf("%s%sBpP%d", prefix, p.roiNorm.Tag(), bits)
	if p.cfg.Output.SaveBinned {
		img := display.PseudoColor(binned, models.Range{Min: 0, Max: float64(binCount - 1)})
		p.saveImage(log, name+".bmp", display.Scale(img, p.cfg.Display.RoiScale))
	}
	if p.cfg.Output.SaveHistograms {
		hist := histogram.Build(binned, histogram.Masked(mask, id), histogram.FixedRange(0, binCount-1))
		if err := p.writeText(name+".txt", histogram.Serialize(hist)); err != nil {
			return err
		}
	}
	return nil
}

// ScriptLine builds the extractor command for one image. The first line of a
// script names the options file, later lines append to the same result file.
func ScriptLine(cfg *config.Config, fileName string, first bool) string {
	s := cfg.Script
	var sb strings.Builder
	sb.WriteString(s.Tool)
	sb.WriteString(" -m roi -i ")
	sb.WriteString(s.InFolder + filepath.Base(fileName))
	sb.WriteString(" -r ")
	sb.WriteString(s.RoiFolder + stem(fileName) + ".roi")
	if !first {
		sb.WriteString(" -a ")
	}
	sb.WriteString(" -o ")
	sb.WriteString(s.OutputName + s.OptionsFile + ".cvs")
	if first {
		sb.WriteString(" -f ")
		sb.WriteString(s.OptionsFolder + s.OptionsFile + "." + s.OptionsExtension)
	}
	sb.WriteString("\n")
	return sb.String()
}

func (p *Processor) scriptLine(log zerolog.Logger, fileName string, in models.Raster) error {
	roiPath := filepath.Join(p.cfg.Input.ImageFolder, p.cfg.Script.RoiFolder+stem(fileName)+".roi")
	if exists(roiPath) {
		regions, err := roi.Load(roiPath, in.Width, in.Height)
		if err != nil {
			return err
		}
		log.Info().Int("regions", len(regions)).Msg("valid roi")
	} else {
		log.Warn().Str("roi", roiPath).Msg("no roi for the frame")
	}

	p.script.WriteString(ScriptLine(p.cfg, fileName, p.scriptLines == 0))
	p.scriptLines++
	return nil
}

func (p *Processor) view(log zerolog.Logger, fileName string, in models.Raster) error {
	base := stem(fileName)
	roiPath := filepath.Join(p.cfg.Input.ImageFolder, p.cfg.ROI.ViewFolder+base+".roi")
	if !exists(roiPath) {
		log.Warn().Str("roi", roiPath).Msg("no roi for the frame")
		return nil
	}
	mask, err := roi.LoadMask(roiPath, in.Width, in.Height)
	if err != nil {
		return err
	}
	log.Info().Msg("valid roi")

	roiNr := uint16(p.cfg.ROI.RoiNr)
	prefix := fmt.Sprintf("%sNr%d", base, roiNr)

	if p.cfg.Output.SavePreviews {
		scale := display.ScaleFactor(p.cfg.Display.ScaleBase, p.cfg.Display.ScalePower)
		viewer := display.NewViewer(in, p.displayWindow(in), false, scale)
		img, err := viewer.RenderWithRegions(mask, p.palette)
		if err != nil {
			log.Warn().Err(err).Msg("failed to render regions")
		} else {
			p.saveImage(log, prefix+"NormNone.bmp", img)
		}
	}

	if p.cfg.Output.SaveHistograms {
		hist := histogram.Build(rasterio.Gray16(in), p.histogramOptions(mask, roiNr)...)
		if err := p.writeText(prefix+"NormNone.txt", histogram.Serialize(hist)); err != nil {
			return err
		}
	}

	return p.exportBinned(log, prefix, in, mask, roiNr)
}

// histogramOptions selects one region and the configured fixed range
func (p *Processor) histogramOptions(mask models.LabelMask, id uint16) []histogram.Option {
	opts := []histogram.Option{histogram.Masked(mask, id)}
	if p.cfg.ROI.FixedHistogramRange {
		opts = append(opts, histogram.FixedRange(p.cfg.ROI.HistogramMin, p.cfg.ROI.HistogramMax))
	}
	return opts
}

// saveImage writes a preview; failures only produce a warning
func (p *Processor) saveImage(log zerolog.Logger, name string, img image.Image) {
	if err := rasterio.SaveImage(p.outPath(name), img); err != nil {
		log.Warn().Err(err).Str("artifact", name).Msg("failed to save preview")
	}
}

// saveHistogramPlot renders a histogram with the configured plot sizes
func (p *Processor) saveHistogramPlot(log zerolog.Logger, name string, h histogram.Histogram) {
	c := p.cfg.Histogram
	plot := histogram.Render(h, c.ScaleHeight, c.ScaleCoef, c.BarWidth)
	if plot.Empty() {
		log.Debug().Str("artifact", name).Msg("empty histogram")
		return
	}
	p.saveImage(log, name, rasterio.ToImage(plot))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}
