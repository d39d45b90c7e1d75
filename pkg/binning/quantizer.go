// Package binning requantizes integer rasters into a fixed number of bins.
package binning

import (
	"errors"
	"fmt"
	"math"

	"texroiprep/internal/models"
)

// MaxBins is the largest bin count a 16-bit output can hold
const MaxBins = 65536

// ErrInvalidInput is returned for rasters or bin counts Quantize cannot process
var ErrInvalidInput = errors.New("invalid quantizer input")

// BinCountForBits returns 2^bits, the number of levels of a bits-per-pixel export.
// bits is limited to [1, 16].
func BinCountForBits(bits int) int {
	if bits < 1 {
		bits = 1
	}
	if bits > 16 {
		bits = 16
	}
	return 1 << bits
}

// Quantize maps every sample through rng into binCount levels:
//
//	round(clamp((v - rng.Min) / span * (binCount-1), 0, binCount-1))
//
// where span is rng.Span() (1.0 for a degenerate range).
//
// Parameters:
//   - r: Single channel raster of integer depth
//   - rng: Normalization range
//   - binCount: Number of output levels in [1, MaxBins]
//
// Returns:
//   - A 16-bit raster with values in [0, binCount-1]
//   - ErrInvalidInput and an empty raster for unsupported input
func Quantize(r models.Raster, rng models.Range, binCount int) (models.Raster, error) {
	if r.Empty() {
		return models.Raster{}, fmt.Errorf("%w: empty raster", ErrInvalidInput)
	}
	if r.Channels != 1 {
		return models.Raster{}, fmt.Errorf("%w: %d channels, want 1", ErrInvalidInput, r.Channels)
	}
	if !r.Depth.IsInteger() {
		return models.Raster{}, fmt.Errorf("%w: depth %s is not an integer type", ErrInvalidInput, r.Depth)
	}
	if binCount < 1 || binCount > MaxBins {
		return models.Raster{}, fmt.Errorf("%w: bin count %d outside [1, %d]", ErrInvalidInput, binCount, MaxBins)
	}

	top := float64(binCount - 1)
	scale := top / rng.Span()

	out := models.NewRaster(r.Width, r.Height, 1, models.DepthU16)
	for i, v := range r.Pix {
		q := (v - rng.Min) * scale
		if math.IsNaN(q) || q < 0 {
			q = 0
		} else if q > top {
			q = top
		}
		out.Pix[i] = math.Round(q)
	}
	return out, nil
}
