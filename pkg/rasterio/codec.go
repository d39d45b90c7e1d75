// Package rasterio decodes image files into rasters and encodes rasters back
// to disk. Decoding and encoding go through the imaging package, which covers
// PNG, JPEG, GIF, BMP and TIFF; 16-bit gray and 16-bit colour survive the trip.
package rasterio

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"texroiprep/internal/models"
)

// ErrEmptyRaster is returned when an operation receives a raster without samples
var ErrEmptyRaster = errors.New("empty raster")

// LoadOptions controls how a file is decoded
type LoadOptions struct {
	// AnyDepth keeps the native channel count and bit depth of the file.
	// When false every image is decoded to 3-channel 8-bit colour.
	AnyDepth bool
}

// Load decodes the image at path.
//
// Parameters:
//   - path: Image file to read
//   - opts: Decoding options
//
// Returns:
//   - The decoded raster, or an empty raster and an error when the file
//     cannot be opened or decoded
func Load(path string, opts LoadOptions) (models.Raster, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return models.Raster{}, fmt.Errorf("failed to load image %s: %w", path, err)
	}
	r := FromImage(img, opts.AnyDepth)
	if r.Empty() {
		return models.Raster{}, fmt.Errorf("failed to load image %s: %w", path, ErrEmptyRaster)
	}
	return r, nil
}

// Save encodes the raster to path; the format follows the file extension.
// Missing parent directories are created.
func Save(path string, r models.Raster) error {
	if r.Empty() {
		return fmt.Errorf("failed to save %s: %w", path, ErrEmptyRaster)
	}
	return SaveImage(path, ToImage(r))
}

// SaveImage encodes an already rendered image to path
func SaveImage(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save image %s: %w", path, err)
	}
	return nil
}

// FromImage converts a decoded image into a raster.
//
// With anyDepth, gray images give 1-channel rasters of 8 or 16 bits and colour
// images 3-channel rasters of 8 or 16 bits. Without it the result is always
// 3-channel 8-bit.
func FromImage(img image.Image, anyDepth bool) models.Raster {
	if img == nil {
		return models.Raster{}
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	if !anyDepth {
		return rgb8(img)
	}

	switch src := img.(type) {
	case *image.Gray:
		r := models.NewRaster(w, h, 1, models.DepthU8)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r.Pix[y*w+x] = float64(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
		return r
	case *image.Gray16:
		r := models.NewRaster(w, h, 1, models.DepthU16)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r.Pix[y*w+x] = float64(src.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
		return r
	case *image.RGBA64, *image.NRGBA64:
		r := models.NewRaster(w, h, 3, models.DepthU16)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := color.NRGBA64Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
				i := (y*w + x) * 3
				r.Pix[i], r.Pix[i+1], r.Pix[i+2] = float64(c.R), float64(c.G), float64(c.B)
			}
		}
		return r
	case *image.Paletted:
		if grayPalette(src.Palette) {
			return gray8(img)
		}
		return rgb8(img)
	default:
		if img.ColorModel() == color.GrayModel {
			return gray8(img)
		}
		if img.ColorModel() == color.Gray16Model {
			return gray16(img)
		}
		return rgb8(img)
	}
}

// grayPalette reports whether every palette entry is a shade of gray,
// as in 8-bit BMP files
func grayPalette(p color.Palette) bool {
	for _, c := range p {
		r, g, b, _ := c.RGBA()
		if r != g || g != b {
			return false
		}
	}
	return len(p) > 0
}

func gray8(img image.Image) models.Raster {
	b := img.Bounds()
	r := models.NewRaster(b.Dx(), b.Dy(), 1, models.DepthU8)
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			c := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			r.Pix[y*r.Width+x] = float64(c.Y)
		}
	}
	return r
}

func gray16(img image.Image) models.Raster {
	b := img.Bounds()
	r := models.NewRaster(b.Dx(), b.Dy(), 1, models.DepthU16)
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			c := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
			r.Pix[y*r.Width+x] = float64(c.Y)
		}
	}
	return r
}

// rgb8 decodes to 3-channel 8-bit through imaging's NRGBA conversion
func rgb8(img image.Image) models.Raster {
	nrgba := imaging.Clone(img)
	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()
	r := models.NewRaster(w, h, 3, models.DepthU8)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := nrgba.NRGBAAt(x, y)
			i := (y*w + x) * 3
			r.Pix[i], r.Pix[i+1], r.Pix[i+2] = float64(c.R), float64(c.G), float64(c.B)
		}
	}
	return r
}

// ToImage converts a raster to an image suitable for encoding.
//
// 8-bit rasters map to Gray or NRGBA, 16-bit rasters to Gray16 or NRGBA64.
// 32-bit and float rasters are saturated to 16 bits.
func ToImage(r models.Raster) image.Image {
	if r.Empty() {
		return nil
	}
	rect := image.Rect(0, 0, r.Width, r.Height)
	eightBit := r.Depth == models.DepthU8

	if r.Channels == 1 {
		if eightBit {
			img := image.NewGray(rect)
			for i, v := range r.Pix {
				img.Pix[i] = saturate8(v)
			}
			return img
		}
		img := image.NewGray16(rect)
		for y := 0; y < r.Height; y++ {
			for x := 0; x < r.Width; x++ {
				img.SetGray16(x, y, color.Gray16{Y: saturate16(r.Pix[y*r.Width+x])})
			}
		}
		return img
	}

	if eightBit {
		img := image.NewNRGBA(rect)
		for y := 0; y < r.Height; y++ {
			for x := 0; x < r.Width; x++ {
				img.SetNRGBA(x, y, color.NRGBA{
					R: saturate8(r.At(x, y, 0)),
					G: saturate8(r.At(x, y, 1)),
					B: saturate8(r.At(x, y, 2)),
					A: 255,
				})
			}
		}
		return img
	}
	img := image.NewNRGBA64(rect)
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			img.SetNRGBA64(x, y, color.NRGBA64{
				R: saturate16(r.At(x, y, 0)),
				G: saturate16(r.At(x, y, 1)),
				B: saturate16(r.At(x, y, 2)),
				A: 65535,
			})
		}
	}
	return img
}

// Gray16 reduces a raster to its first channel saturated to 16-bit unsigned
// integers. NaN samples become 0.
func Gray16(r models.Raster) models.Raster {
	if r.Channels == 1 && r.Depth == models.DepthU16 {
		return r
	}
	out := models.NewRaster(r.Width, r.Height, 1, models.DepthU16)
	for i := range out.Pix {
		v := r.Pix[i*r.Channels]
		if math.IsNaN(v) {
			continue
		}
		out.Pix[i] = float64(saturate16(v))
	}
	return out
}

func saturate8(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}

func saturate16(v float64) uint16 {
	return uint16(math.Max(0, math.Min(65535, math.Round(v))))
}
