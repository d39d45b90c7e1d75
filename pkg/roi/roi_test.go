package roi

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texroiprep/internal/models"
	"texroiprep/pkg/grid"
)

func gridMask(t *testing.T, p grid.Params) grid.Result {
	t.Helper()
	res, err := grid.Generate(p)
	require.NoError(t, err)
	return res
}

// TestEncodeFullCanvasMembership verifies every region covers the whole canvas
func TestEncodeFullCanvasMembership(t *testing.T) {
	res := gridMask(t, grid.Params{Width: 4, Height: 4, RoiSize: 2, Shift: 2, Offset: 1})
	regions := Encode(res.Mask, res.MaxID, "sample", DefaultPalette())

	require.Len(t, regions, 4)
	palette := DefaultPalette()
	for i, r := range regions {
		assert.Equal(t, uint16(i+1), r.ID)
		assert.Equal(t, "sample", r.Name)
		assert.Equal(t, 4, r.Membership.Width)
		assert.Equal(t, 4, r.Membership.Height)
		assert.Equal(t, 4, r.Membership.Count())
		assert.Equal(t, palette[i], r.Color)
	}
	assert.True(t, regions[0].Membership.Get(1, 1))
	assert.False(t, regions[0].Membership.Get(2, 0))
}

// TestEncodeKeepsEmptyRegions verifies ids without pixels still produce a region
func TestEncodeKeepsEmptyRegions(t *testing.T) {
	mask := models.NewLabelMask(3, 1)
	mask.Labels = []uint16{1, 3, 3}

	regions := Encode(mask, 3, "gap", DefaultPalette())
	require.Len(t, regions, 3)
	assert.True(t, regions[1].IsEmpty())
	assert.Equal(t, uint16(2), regions[1].ID)
	assert.Equal(t, 2, regions[2].Membership.Count())
}

// TestPaletteWraps checks colors repeat every 16 ids
func TestPaletteWraps(t *testing.T) {
	p := DefaultPalette()
	assert.Equal(t, p.ColorFor(1), p.ColorFor(17))
	assert.Equal(t, models.RGB{R: 255}, p.ColorFor(1))
	assert.Equal(t, models.RGB{}, p.ColorFor(0))

	short, err := ParsePalette([]string{"#102030", "#405060"})
	require.NoError(t, err)
	assert.Equal(t, models.RGB{R: 0x10, G: 0x20, B: 0x30}, short[2])

	_, err = ParsePalette([]string{"nope"})
	assert.Error(t, err)
}

// TestRoundTrip verifies a persisted grid reloads into the identical mask
func TestRoundTrip(t *testing.T) {
	testCases := []struct {
		name   string
		params grid.Params
	}{
		{"rectangles", grid.Params{Width: 40, Height: 30, RoiSize: 6, Shift: 7, Offset: 3}},
		{"circles", grid.Params{Width: 33, Height: 35, RoiSize: 5, Shift: 5, Shape: models.ShapeCircle}},
		{"complement", grid.Params{Width: 50, Height: 50, RoiSize: 4, Shift: 5,
			Decimation: grid.Decimation{Policy: grid.DecimationComplement, SkipCount: 2}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := gridMask(t, tc.params)
			require.LessOrEqual(t, int(res.MaxID), MaxRegions)

			regions := WithShape(Encode(res.Mask, res.MaxID, "img", DefaultPalette()), tc.params.Shape)
			path := filepath.Join(t.TempDir(), "img.roi")
			require.NoError(t, Persist(regions, path, Metadata{"source": "img.tif"}))

			loaded, err := Load(path, tc.params.Width, tc.params.Height)
			require.NoError(t, err)
			require.Len(t, loaded, len(regions))
			for i := range loaded {
				assert.Equal(t, regions[i].ID, loaded[i].ID)
				assert.Equal(t, tc.params.Shape, loaded[i].Shape)
				assert.Equal(t, regions[i].Color, loaded[i].Color)
				assert.Equal(t, regions[i].Membership.Bits, loaded[i].Membership.Bits)
			}

			assert.Equal(t, res.Mask.Labels, Rasterize(loaded, tc.params.Width, tc.params.Height).Labels)
		})
	}
}

// TestReadMetadata checks metadata survives the container
func TestReadMetadata(t *testing.T) {
	res := gridMask(t, grid.Params{Width: 8, Height: 8, RoiSize: 4, Shift: 4})
	var buf bytes.Buffer
	meta := Metadata{"roiSize": "4", "shape": "Rct"}
	require.NoError(t, Write(&buf, Encode(res.Mask, res.MaxID, "m", DefaultPalette()), meta))

	regions, got, err := Read(&buf)
	require.NoError(t, err)
	assert.Len(t, regions, int(res.MaxID))
	assert.Equal(t, meta, got)
}

// TestLoadCapsRegions verifies only the first 100 stored regions are read
func TestLoadCapsRegions(t *testing.T) {
	// 11 x 11 tiles of size 1 = 121 regions
	res := gridMask(t, grid.Params{Width: 11, Height: 11, RoiSize: 1, Shift: 1})
	require.Equal(t, uint16(121), res.MaxID)

	path := filepath.Join(t.TempDir(), "many.roi")
	require.NoError(t, Persist(Encode(res.Mask, res.MaxID, "many", DefaultPalette()), path, nil))

	loaded, err := Load(path, 11, 11)
	require.NoError(t, err)
	assert.Len(t, loaded, MaxRegions)

	mask := Rasterize(loaded, 11, 11)
	for i, l := range mask.Labels {
		if i < MaxRegions {
			assert.Equal(t, uint16(i+1), l)
		} else {
			assert.Equal(t, uint16(0), l)
		}
	}
}

// TestRasterizeSkipsEmptyRegions verifies empty regions keep their slot in the cap
func TestRasterizeSkipsEmptyRegions(t *testing.T) {
	mask := models.NewLabelMask(4, 1)
	mask.Labels = []uint16{1, 1, 3, 3}
	regions := Encode(mask, 3, "e", DefaultPalette())

	out := Rasterize(regions, 4, 1)
	assert.Equal(t, []uint16{1, 1, 3, 3}, out.Labels)
}

// TestLoadResamples verifies regions stored at another size fill the requested canvas
func TestLoadResamples(t *testing.T) {
	res := gridMask(t, grid.Params{Width: 4, Height: 4, RoiSize: 2, Shift: 2, Offset: 1})
	path := filepath.Join(t.TempDir(), "small.roi")
	require.NoError(t, Persist(Encode(res.Mask, res.MaxID, "small", DefaultPalette()), path, nil))

	loaded, err := Load(path, 8, 8)
	require.NoError(t, err)
	require.Len(t, loaded, 4)
	for _, r := range loaded {
		assert.Equal(t, 8, r.Membership.Width)
		assert.Equal(t, 16, r.Membership.Count())
	}

	mask := Rasterize(loaded, 8, 8)
	assert.Equal(t, uint16(1), mask.At(0, 0))
	assert.Equal(t, uint16(1), mask.At(3, 3))
	assert.Equal(t, uint16(2), mask.At(4, 0))
	assert.Equal(t, uint16(4), mask.At(7, 7))
}

// TestLoadMissingFile verifies an absent container is an empty result, not an error
func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.roi")

	regions, err := Load(path, 10, 10)
	assert.NoError(t, err)
	assert.Empty(t, regions)

	mask, err := LoadMask(path, 10, 10)
	assert.NoError(t, err)
	assert.Len(t, mask.Labels, 100)
	for _, l := range mask.Labels {
		assert.Equal(t, uint16(0), l)
	}
}

// TestLoadCorruptFile verifies garbage input is reported as corrupt
func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.roi")
	require.NoError(t, os.WriteFile(path, []byte("not a region file"), 0644))

	_, err := Load(path, 5, 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorrupt))
}

// TestRuns checks run-length encoding of a membership row
func TestRuns(t *testing.T) {
	b := models.NewBitmap(5, 2)
	b.Bits = []bool{
		true, true, false, true, true,
		false, false, false, false, true,
	}
	assert.Equal(t, []Run{
		{Y: 0, X: 0, Length: 2},
		{Y: 0, X: 3, Length: 2},
		{Y: 1, X: 4, Length: 1},
	}, Runs(b))
}
