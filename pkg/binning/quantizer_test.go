package binning

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texroiprep/internal/models"
)

// TestQuantizeConstantImage checks the 4x4 example: range (0,10), 11 bins
func TestQuantizeConstantImage(t *testing.T) {
	r := models.NewRaster(4, 4, 1, models.DepthU16)
	for i := range r.Pix {
		r.Pix[i] = 10
	}

	out, err := Quantize(r, models.Range{Min: 0, Max: 10}, 11)
	require.NoError(t, err)
	assert.Equal(t, models.DepthU16, out.Depth)
	for _, v := range out.Pix {
		assert.Equal(t, 10.0, v)
	}
}

// TestQuantizeStaysInRange verifies clamping at both ends
func TestQuantizeStaysInRange(t *testing.T) {
	r := models.NewRaster(6, 1, 1, models.DepthS32)
	r.Pix = []float64{-500, 0, 50, 99, 100, 70000}

	for _, bins := range []int{1, 2, 16, 256, 65536} {
		out, err := Quantize(r, models.Range{Min: 0, Max: 100}, bins)
		require.NoError(t, err)
		for _, v := range out.Pix {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, float64(bins-1))
		}
	}

	out, err := Quantize(r, models.Range{Min: 0, Max: 100}, 5)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 2, 4, 4, 4}, out.Pix)
}

// TestQuantizeDegenerateRange verifies a zero span uses 1.0 and gives a uniform result
func TestQuantizeDegenerateRange(t *testing.T) {
	r := models.NewRaster(3, 1, 1, models.DepthU8)
	r.Pix = []float64{7, 7, 7}

	out, err := Quantize(r, models.Range{Min: 7, Max: 7}, 8)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, out.Pix)
}

// TestQuantizeRejects covers the unsupported inputs
func TestQuantizeRejects(t *testing.T) {
	gray := models.NewRaster(2, 2, 1, models.DepthU16)
	color := models.NewRaster(2, 2, 3, models.DepthU8)
	float := models.NewRaster(2, 2, 1, models.DepthF64)

	testCases := []struct {
		name string
		r    models.Raster
		bins int
	}{
		{"empty", models.Raster{}, 4},
		{"three channels", color, 4},
		{"float depth", float, 4},
		{"zero bins", gray, 0},
		{"too many bins", gray, MaxBins + 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Quantize(tc.r, models.Range{Min: 0, Max: 1}, tc.bins)
			assert.True(t, errors.Is(err, ErrInvalidInput))
			assert.True(t, out.Empty())
		})
	}
}

// TestBinCountForBits checks the bits-per-pixel mapping
func TestBinCountForBits(t *testing.T) {
	assert.Equal(t, 2, BinCountForBits(1))
	assert.Equal(t, 256, BinCountForBits(8))
	assert.Equal(t, 65536, BinCountForBits(16))
	assert.Equal(t, 65536, BinCountForBits(20))
	assert.Equal(t, 2, BinCountForBits(0))
}
