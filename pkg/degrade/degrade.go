// Package degrade applies synthetic degradations to a gray raster: intensity
// scaling, Gaussian, uniform and Rician noise, an intensity gradient and a
// constant offset. The result is saturated to 16 bits.
package degrade

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"texroiprep/internal/models"
)

// ErrInvalidInput is returned when the raster or the parameters cannot be processed
var ErrInvalidInput = errors.New("invalid degrade input")

// Direction is the axis a gradient grows along
type Direction int

const (
	DirectionX Direction = iota
	DirectionY
	DirectionXY
)

// ParseDirection maps "X", "Y" or "XY" to a Direction
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(s) {
	case "X", "":
		return DirectionX, nil
	case "Y":
		return DirectionY, nil
	case "XY":
		return DirectionXY, nil
	default:
		return DirectionX, fmt.Errorf("unknown gradient direction %q", s)
	}
}

// Params describes one linear operation
type Params struct {
	// IntensityScale multiplies the input; with PlainImage it is the value of
	// every pixel instead
	IntensityScale float64
	PlainImage     bool

	Gaussian      bool
	GaussianSigma float64

	Uniform      bool
	UniformStart int
	UniformStop  int

	Rician  bool
	RicianS float64

	Gradient            bool
	GradientDirection   Direction
	GradientNominator   float64
	GradientDenominator float64

	// Offset is added to every pixel after noise and gradient
	Offset float64
}

// Validate checks the parameters
func (p Params) Validate() error {
	if p.Gradient && p.GradientDenominator == 0 {
		return fmt.Errorf("%w: gradient denominator is zero", ErrInvalidInput)
	}
	if p.Uniform && p.UniformStart > p.UniformStop {
		return fmt.Errorf("%w: uniform noise start %d above stop %d", ErrInvalidInput, p.UniformStart, p.UniformStop)
	}
	if p.Gaussian && p.GaussianSigma < 0 {
		return fmt.Errorf("%w: negative sigma", ErrInvalidInput)
	}
	return nil
}

// Sources are the random generators used by Apply
type Sources struct {
	Normal  Source
	Uniform Source
}

// Result holds the stages of a linear operation
type Result struct {
	// Input is the scaled 32-bit input
	Input models.Raster

	// Noise holds one 32-bit map per enabled noise, keyed by suffix tag
	Noise map[string]models.Raster

	// Output is the 16-bit result
	Output models.Raster
}

// Apply runs the linear operation on a single channel raster.
//
// Stages run in order: scaling to 32-bit, Gaussian noise round(N*sigma),
// uniform integer noise, Rician noise round(sqrt((v+N*s)² + (N*s)²)),
// gradient coord*nominator/denominator clamped to [0, 65535], offset and
// saturation to 16 bits. Each stage composes onto the freshly allocated
// output; the input raster is not modified.
func Apply(in models.Raster, p Params, src Sources) (Result, error) {
	if in.Empty() {
		return Result{}, fmt.Errorf("%w: empty raster", ErrInvalidInput)
	}
	if in.Channels != 1 {
		return Result{}, fmt.Errorf("%w: %d channels, want 1", ErrInvalidInput, in.Channels)
	}
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	if (p.Gaussian || p.Rician) && src.Normal == nil {
		return Result{}, fmt.Errorf("%w: no normal source", ErrInvalidInput)
	}
	if p.Uniform && src.Uniform == nil {
		return Result{}, fmt.Errorf("%w: no uniform source", ErrInvalidInput)
	}

	res := Result{Noise: map[string]models.Raster{}}
	scaled := models.NewRaster(in.Width, in.Height, 1, models.DepthS32)
	for i, v := range in.Pix {
		if p.PlainImage {
			scaled.Pix[i] = math.Trunc(p.IntensityScale)
		} else {
			scaled.Pix[i] = saturate32(math.Round(v * p.IntensityScale))
		}
	}
	res.Input = scaled
	out := scaled.Clone()

	if p.Gaussian {
		noise := models.NewRaster(in.Width, in.Height, 1, models.DepthS32)
		for i := range noise.Pix {
			noise.Pix[i] = math.Round(src.Normal.Rand() * p.GaussianSigma)
			out.Pix[i] = saturate32(out.Pix[i] + noise.Pix[i])
		}
		res.Noise["GN"] = noise
	}

	if p.Uniform {
		noise := models.NewRaster(in.Width, in.Height, 1, models.DepthS32)
		for i := range noise.Pix {
			noise.Pix[i] = src.Uniform.Rand()
			out.Pix[i] = saturate32(out.Pix[i] + noise.Pix[i])
		}
		res.Noise["UN"] = noise
	}

	if p.Rician {
		noise := models.NewRaster(in.Width, in.Height, 1, models.DepthS32)
		for i, v := range out.Pix {
			a := src.Normal.Rand()*p.RicianS + v
			b := src.Normal.Rand() * p.RicianS
			r := saturate32(math.Round(math.Sqrt(a*a + b*b)))
			noise.Pix[i] = r - v
			out.Pix[i] = r
		}
		res.Noise["RN"] = noise
	}

	if p.Gradient {
		k := p.GradientNominator / p.GradientDenominator
		for y := 0; y < out.Height; y++ {
			for x := 0; x < out.Width; x++ {
				var coord float64
				switch p.GradientDirection {
				case DirectionY:
					coord = float64(y)
				case DirectionXY:
					coord = float64(x + y)
				default:
					coord = float64(x)
				}
				g := math.Max(0, math.Min(65535, coord*k))
				i := y*out.Width + x
				out.Pix[i] = saturate32(out.Pix[i] + math.Trunc(g))
			}
		}
	}

	offset := math.Round(p.Offset)
	final := models.NewRaster(in.Width, in.Height, 1, models.DepthU16)
	for i, v := range out.Pix {
		final.Pix[i] = math.Max(0, math.Min(65535, v+offset))
	}
	res.Output = final
	return res, nil
}

// FileName builds the output name for an image stem: suffixes GN<sigma>,
// RN<s>, UN<start>-<stop> and Gr for the enabled stages, extension ".tiff".
func FileName(stem string, p Params) string {
	var sb strings.Builder
	sb.WriteString(stem)
	if p.Gaussian {
		fmt.Fprintf(&sb, "GN%.2f", p.GaussianSigma)
	}
	if p.Rician {
		fmt.Fprintf(&sb, "RN%.2f", p.RicianS)
	}
	if p.Uniform {
		fmt.Fprintf(&sb, "UN%d-%d", p.UniformStart, p.UniformStop)
	}
	if p.Gradient {
		sb.WriteString("Gr")
	}
	sb.WriteString(".tiff")
	return sb.String()
}

func saturate32(v float64) float64 {
	return math.Max(math.MinInt32, math.Min(math.MaxInt32, v))
}
