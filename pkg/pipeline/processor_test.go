package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texroiprep/internal/models"
	"texroiprep/pkg/config"
	"texroiprep/pkg/grid"
	"texroiprep/pkg/rasterio"
	"texroiprep/pkg/roi"
)

// testConfig returns a configuration reading from and writing to a temporary folder
func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Input.ImageFolder = dir
	cfg.Input.OutFolder = filepath.Join(dir, "out")
	return cfg
}

// writeConstant saves a width×height 16-bit gray image filled with v
func writeConstant(t *testing.T, dir, name string, width, height int, v float64) {
	r := models.NewRaster(width, height, 1, models.DepthU16)
	for i := range r.Pix {
		r.Pix[i] = v
	}
	require.NoError(t, rasterio.Save(filepath.Join(dir, name), r))
}

func newTestProcessor(t *testing.T, cfg *config.Config) *Processor {
	p, err := NewProcessor(cfg, zerolog.Nop())
	require.NoError(t, err)
	return p
}

func readText(t *testing.T, path string) string {
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// TestExtractNumber tests the numeric extraction from filenames
func TestExtractNumber(t *testing.T) {
	testCases := []struct {
		filename string
		expected int
	}{
		{"slice001.tif", 1},
		{"frame_42.png", 42},
		{"a1b2c3.bmp", 123},
		{"no_number.tif", 0},
		{"/path/to/image10.tiff", 10},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, extractNumber(tc.filename), tc.filename)
	}
}

// TestListFiles filters by pattern and sorts by frame number
func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"img10.tif", "img2.tif", "notes.txt", "img1.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "img3.tif"), 0755))

	files, err := ListFiles(dir, config.DefaultConfig().Input.FilePattern)
	require.NoError(t, err)
	assert.Equal(t, []string{"img1.png", "img2.tif", "img10.tif"}, files)

	_, err = ListFiles(dir, "([")
	assert.Error(t, err)
	_, err = ListFiles(filepath.Join(dir, "missing"), ".*")
	assert.Error(t, err)
}

// TestParseMode maps command names
func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeRoiFromRed, ModeResize, ModeDegrade, ModeGrid, ModeScript, ModeView} {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMode("reconstruct")
	assert.Error(t, err)
}

// TestNewProcessorRejects invalid configuration values
func TestNewProcessorRejects(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ROI.Normalization = "fixed"
	_, err := NewProcessor(cfg, zerolog.Nop())
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	cfg = config.DefaultConfig()
	cfg.ROI.Shift = cfg.ROI.Size - 1
	_, err = NewProcessor(cfg, zerolog.Nop())
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	cfg = config.DefaultConfig()
	cfg.Resize.Interpolation = "lanczos"
	_, err = NewProcessor(cfg, zerolog.Nop())
	assert.Error(t, err)
}

// TestGridBatch runs the 4x4 example through the grid mode of a batch
func TestGridBatch(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping end-to-end test in short mode")
	}

	cfg := testConfig(t)
	cfg.ROI.Size = 2
	cfg.ROI.Shift = 2
	cfg.ROI.Offset = 1
	cfg.ROI.RoiNr = 1
	cfg.ROI.BitsPerPixel = 4
	writeConstant(t, cfg.Input.ImageFolder, "img01.png", 4, 4, 10)

	p := newTestProcessor(t, cfg)
	done, err := p.ProcessAll(ModeGrid)
	require.NoError(t, err)
	assert.Equal(t, 1, done)

	out := cfg.Input.OutFolder
	assert.Equal(t,
		"10,4\nsummary,10.000000,0.000000,10.000000,10.000000,4\n",
		readText(t, filepath.Join(out, "img01Rct2Cnt4Nr1.txt")))

	// a degenerate range puts every sample in bin 0
	assert.Equal(t,
		"0,4\nsummary,0.000000,0.000000,0.000000,0.000000,4\n",
		readText(t, filepath.Join(out, "img01Rct2Cnt4Nr1NormMinMaxBpP4.txt")))
	assert.FileExists(t, filepath.Join(out, "img01Rct2Cnt4Nr1NormMinMaxBpP4.bmp"))

	stats := strings.Split(strings.TrimSpace(readText(t, filepath.Join(out, StatisticsFile))), "\n")
	require.Len(t, stats, 2)
	assert.Equal(t, "img01.png\t10.000000\t0.000000\t10\t10\t4", stats[1])

	want, err := grid.Generate(GridParams(cfg, 4, 4))
	require.NoError(t, err)
	mask, err := roi.LoadMask(filepath.Join(out, "img01Rct2Cnt4.roi"), 4, 4)
	require.NoError(t, err)
	assert.Equal(t, want.Mask, mask)
}

// TestGridPreviews writes the region map when previews are enabled
func TestGridPreviews(t *testing.T) {
	cfg := testConfig(t)
	cfg.ROI.Size = 2
	cfg.ROI.Shift = 2
	cfg.ROI.Offset = 1
	cfg.Output.SavePreviews = true
	cfg.ROI.Shape = "circle"
	writeConstant(t, cfg.Input.ImageFolder, "img01.png", 6, 6, 100)

	p := newTestProcessor(t, cfg)
	require.NoError(t, p.Process(ModeGrid, "img01.png"))

	matches, err := filepath.Glob(filepath.Join(cfg.Input.OutFolder, "ROI_Cir2Cnt*.bmp"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

// TestGridColourInputKeepsRegions persists the regions even though a colour
// frame cannot be binned
func TestGridColourInputKeepsRegions(t *testing.T) {
	cfg := testConfig(t)
	cfg.ROI.Size = 2
	cfg.ROI.Shift = 2
	cfg.ROI.Offset = 1

	in := models.NewRaster(4, 4, 3, models.DepthU8)
	for i := 0; i < len(in.Pix); i += 3 {
		copy(in.Pix[i:], []float64{200, 10, 20})
	}
	require.NoError(t, rasterio.Save(filepath.Join(cfg.Input.ImageFolder, "img01.png"), in))

	p := newTestProcessor(t, cfg)
	require.NoError(t, p.Process(ModeGrid, "img01.png"))

	assert.FileExists(t, filepath.Join(cfg.Input.OutFolder, "img01Rct2Cnt4.roi"))
	assert.FileExists(t, filepath.Join(cfg.Input.OutFolder, "img01Rct2Cnt4Nr1.txt"))
	binned, err := filepath.Glob(filepath.Join(cfg.Input.OutFolder, "*BpP*"))
	require.NoError(t, err)
	assert.Empty(t, binned)
}

// TestView loads the regions written by the grid mode
func TestView(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping end-to-end test in short mode")
	}

	cfg := testConfig(t)
	cfg.ROI.Size = 2
	cfg.ROI.Shift = 2
	cfg.ROI.Offset = 1
	cfg.ROI.RoiNr = 2
	cfg.Output.SavePreviews = true
	writeConstant(t, cfg.Input.ImageFolder, "img01.png", 4, 4, 7)

	p := newTestProcessor(t, cfg)

	// no regions yet: nothing is produced and it is not an error
	require.NoError(t, p.Process(ModeView, "img01.png"))
	assert.NoFileExists(t, filepath.Join(cfg.Input.OutFolder, "img01Nr2NormNone.txt"))

	require.NoError(t, p.Process(ModeGrid, "img01.png"))
	data, err := os.ReadFile(filepath.Join(cfg.Input.OutFolder, "img01Rct2Cnt4.roi"))
	require.NoError(t, err)
	viewDir := filepath.Join(cfg.Input.ImageFolder, cfg.ROI.ViewFolder)
	require.NoError(t, os.MkdirAll(viewDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(viewDir, "img01.roi"), data, 0644))

	require.NoError(t, p.Process(ModeView, "img01.png"))
	assert.Equal(t,
		"7,4\nsummary,7.000000,0.000000,7.000000,7.000000,4\n",
		readText(t, filepath.Join(cfg.Input.OutFolder, "img01Nr2NormNone.txt")))
	assert.FileExists(t, filepath.Join(cfg.Input.OutFolder, "img01Nr2NormNone.bmp"))
	assert.FileExists(t, filepath.Join(cfg.Input.OutFolder, "img01Nr2NormMinMaxBpP8.txt"))
}

// TestScriptBatch writes one command per image, the first with the options file
func TestScriptBatch(t *testing.T) {
	cfg := testConfig(t)
	writeConstant(t, cfg.Input.ImageFolder, "img2.png", 2, 2, 1)
	writeConstant(t, cfg.Input.ImageFolder, "img1.png", 2, 2, 1)

	p := newTestProcessor(t, cfg)
	done, err := p.ProcessAll(ModeScript)
	require.NoError(t, err)
	assert.Equal(t, 2, done)

	script := readText(t, filepath.Join(cfg.Input.OutFolder, "MaZdaScript_options.bat"))
	assert.Equal(t,
		"MzGengui.exe -m roi -i images/img1.png -r roi/img1.roi -o Resultoptions.cvs -f options/options.txt\n"+
			"MzGengui.exe -m roi -i images/img2.png -r roi/img2.roi -a  -o Resultoptions.cvs\n",
		script)
}

// TestScriptLine checks the command layout
func TestScriptLine(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Script.Tool = "extract"
	cfg.Script.OptionsExtension = "opt"

	assert.Equal(t,
		"extract -m roi -i images/a.tif -r roi/a.roi -o Resultoptions.cvs -f options/options.opt\n",
		ScriptLine(cfg, "a.tif", true))
	assert.Equal(t,
		"extract -m roi -i images/b.tif -r roi/b.roi -a  -o Resultoptions.cvs\n",
		ScriptLine(cfg, "b.tif", false))
}

// TestRoiFromRed marks pixels whose blue and green differ
func TestRoiFromRed(t *testing.T) {
	in := models.NewRaster(2, 1, 3, models.DepthU8)
	in.Pix = []float64{200, 10, 10, 10, 20, 30}

	out, err := RoiFromRed(in)
	require.NoError(t, err)
	assert.Equal(t, models.DepthU16, out.Depth)
	assert.Equal(t, []float64{0, 1}, out.Pix)

	_, err = RoiFromRed(models.NewRaster(2, 1, 1, models.DepthU8))
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = RoiFromRed(models.NewRaster(2, 1, 3, models.DepthU16))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

// TestRoiFromRedMode saves the mask next to the other outputs
func TestRoiFromRedMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Input.LoadAnyDepth = false

	in := models.NewRaster(2, 2, 3, models.DepthU8)
	copy(in.Pix, []float64{
		255, 0, 0, 9, 9, 9,
		0, 0, 0, 1, 2, 3,
	})
	require.NoError(t, rasterio.Save(filepath.Join(cfg.Input.ImageFolder, "frame1.png"), in))

	p := newTestProcessor(t, cfg)
	require.NoError(t, p.Process(ModeRoiFromRed, "frame1.png"))

	out, err := rasterio.Load(filepath.Join(cfg.Input.OutFolder, "frame1.tif"), rasterio.LoadOptions{AnyDepth: true})
	require.NoError(t, err)
	assert.Equal(t, models.DepthU16, out.Depth)
	assert.Equal(t, []float64{0, 0, 0, 1}, out.Pix)
}

// TestPixelScale covers both ways of choosing the resize factor
func TestPixelScale(t *testing.T) {
	factor, px := PixelScale(0.5, 2, 0, false)
	assert.Equal(t, 2.0, factor)
	assert.Equal(t, 0.25, px)

	factor, px = PixelScale(0.5, 2, 0.1, true)
	assert.InDelta(t, 5.0, factor, 1e-12)
	assert.Equal(t, 0.1, px)
}

// TestResizeMode doubles an image and keeps its depth
func TestResizeMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Resize.Scale = 2
	cfg.Resize.Interpolation = "nearest"
	writeConstant(t, cfg.Input.ImageFolder, "img01.png", 4, 3, 1234)

	p := newTestProcessor(t, cfg)
	require.NoError(t, p.Process(ModeResize, "img01.png"))

	out, err := rasterio.Load(filepath.Join(cfg.Input.OutFolder, "img01resizedScale2.000000.tif"), rasterio.LoadOptions{AnyDepth: true})
	require.NoError(t, err)
	assert.Equal(t, 8, out.Width)
	assert.Equal(t, 6, out.Height)
	assert.Equal(t, models.DepthU16, out.Depth)
	assert.Equal(t, 1234.0, out.At(7, 5, 0))

	cfg.Resize.Scale = 50
	assert.ErrorIs(t, newTestProcessor(t, cfg).Process(ModeResize, "img01.png"), ErrInvalidInput)
}

// TestDegradeMode writes the plain image with an offset
func TestDegradeMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Degrade.PlainImage = true
	cfg.Degrade.IntensityScale = 100
	cfg.Degrade.Offset = 5
	cfg.Output.SavePreviews = true
	writeConstant(t, cfg.Input.ImageFolder, "img01.png", 3, 3, 1)

	p := newTestProcessor(t, cfg)
	require.NoError(t, p.Process(ModeDegrade, "img01.png"))

	out, err := rasterio.Load(filepath.Join(cfg.Input.OutFolder, "img01.tiff"), rasterio.LoadOptions{AnyDepth: true})
	require.NoError(t, err)
	for _, v := range out.Pix {
		assert.Equal(t, 105.0, v)
	}
	assert.FileExists(t, filepath.Join(cfg.Input.OutFolder, "img01HistOut.bmp"))
}

// TestProcessMissingFile reports a load error and ProcessAll skips it
func TestProcessMissingFile(t *testing.T) {
	cfg := testConfig(t)
	p := newTestProcessor(t, cfg)
	assert.Error(t, p.Process(ModeGrid, "absent.png"))

	require.NoError(t, os.WriteFile(filepath.Join(cfg.Input.ImageFolder, "broken.png"), []byte("not an image"), 0644))
	done, err := p.ProcessAll(ModeGrid)
	require.NoError(t, err)
	assert.Equal(t, 0, done)
	assert.Equal(t, "FileName\tMean\tStd\tMin\tMax\tCount\n", readText(t, filepath.Join(cfg.Input.OutFolder, StatisticsFile)))
}
