// Package display renders rasters, label masks and region contours into
// 8-bit preview images that can be saved next to the exported data.
package display

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/transform"
	colorful "github.com/lucasb-eyer/go-colorful"

	"texroiprep/internal/models"
	"texroiprep/pkg/roi"
)

// Viewer renders one raster with a fixed display window and preview scale
type Viewer struct {
	// raster is the image being shown
	raster models.Raster

	// window is the intensity range mapped to the display scale
	window models.Range

	// pseudo selects the HSV pseudo-colour ramp instead of gray
	pseudo bool

	// scale is the preview magnification
	scale float64
}

// NewViewer creates a viewer for a raster.
//
// Parameters:
//   - r: Raster to render
//   - window: Intensity window; samples below Min are black, above Max white
//   - pseudo: Render with the pseudo-colour ramp
//   - scale: Preview magnification, 1 keeps the raster size
//
// Returns:
//   - A new Viewer
func NewViewer(r models.Raster, window models.Range, pseudo bool, scale float64) *Viewer {
	if scale <= 0 {
		scale = 1
	}
	return &Viewer{raster: r, window: window, pseudo: pseudo, scale: scale}
}

// Render draws the raster and applies the preview scale
func (v *Viewer) Render() (image.Image, error) {
	if v.raster.Empty() {
		return nil, fmt.Errorf("empty image to show")
	}
	var img image.Image
	if v.pseudo {
		img = PseudoColor(v.raster, v.window)
	} else {
		img = Gray(v.raster, v.window)
	}
	return Scale(img, v.scale), nil
}

// RenderWithRegions draws the raster with the contour of every region of the mask
func (v *Viewer) RenderWithRegions(mask models.LabelMask, palette roi.Palette) (image.Image, error) {
	if v.raster.Empty() {
		return nil, fmt.Errorf("empty image to show")
	}
	if !mask.Matches(v.raster) {
		return nil, fmt.Errorf("mask %dx%d does not match image %dx%d", mask.Width, mask.Height, v.raster.Width, v.raster.Height)
	}
	var base image.Image
	if v.pseudo {
		base = PseudoColor(v.raster, v.window)
	} else {
		base = Gray(v.raster, v.window)
	}
	return Scale(Overlay(base, Contour(mask), palette), v.scale), nil
}

// ScaleFactor returns base^power, the preview magnification of the display settings
func ScaleFactor(base, power int) float64 {
	if base <= 0 {
		return 1
	}
	return math.Pow(float64(base), float64(power))
}

// level maps v through the window onto [0, 1]
func level(v float64, window models.Range) float64 {
	t := (v - window.Min) / window.Span()
	return math.Max(0, math.Min(1, t))
}

// Gray maps channel 0 of the raster through the window onto 8-bit gray
func Gray(r models.Raster, window models.Range) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, r.Width, r.Height))
	if r.Empty() {
		return img
	}
	for i := 0; i < r.Width*r.Height; i++ {
		img.Pix[i] = uint8(math.Round(level(r.Pix[i*r.Channels], window) * 255))
	}
	return img
}

// PseudoColor maps channel 0 through the window onto an HSV ramp running
// from blue at Min to red at Max
func PseudoColor(r models.Raster, window models.Range) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, r.Width, r.Height))
	if r.Empty() {
		return img
	}
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			t := level(r.At(x, y, 0), window)
			cr, cg, cb := colorful.Hsv(240*(1-t), 1, 1).Clamped().RGB255()
			img.SetNRGBA(x, y, color.NRGBA{R: cr, G: cg, B: cb, A: 255})
		}
	}
	return img
}

// RegionMap paints every labeled pixel in its region colour; unassigned pixels stay black
func RegionMap(mask models.LabelMask, palette roi.Palette) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, mask.Width, mask.Height))
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			c := palette.ColorFor(mask.At(x, y))
			img.SetNRGBA(x, y, color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255})
		}
	}
	return img
}

// Contour keeps the label of pixels on a region boundary and clears the rest.
// A pixel is on the boundary when a 4-neighbour carries another label or lies
// off the canvas.
func Contour(mask models.LabelMask) models.LabelMask {
	out := models.NewLabelMask(mask.Width, mask.Height)
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			l := mask.At(x, y)
			if l == 0 {
				continue
			}
			if x == 0 || y == 0 || x == mask.Width-1 || y == mask.Height-1 ||
				mask.At(x-1, y) != l || mask.At(x+1, y) != l ||
				mask.At(x, y-1) != l || mask.At(x, y+1) != l {
				out.Set(x, y, l)
			}
		}
	}
	return out
}

// Overlay draws the labeled pixels of contour over base in their region colours
func Overlay(base image.Image, contour models.LabelMask, palette roi.Palette) *image.NRGBA {
	b := base.Bounds()
	img := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if l := contour.At(x, y); l != 0 {
				c := palette.ColorFor(l)
				img.SetNRGBA(x, y, color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255})
				continue
			}
			img.Set(x, y, base.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return img
}

// Scale resizes a preview by factor with area averaging. A factor of 1
// returns the image unchanged.
func Scale(img image.Image, factor float64) image.Image {
	if factor == 1 || factor <= 0 {
		return img
	}
	b := img.Bounds()
	w := max(1, int(math.Round(float64(b.Dx())*factor)))
	h := max(1, int(math.Round(float64(b.Dy())*factor)))
	return transform.Resize(img, w, h, transform.Box)
}

// Crop cuts the bounding box of region id out of the raster and the mask.
// ok is false when the region has no pixels.
func Crop(r models.Raster, mask models.LabelMask, id uint16) (models.Raster, models.LabelMask, bool) {
	if !mask.Matches(r) {
		return models.Raster{}, models.LabelMask{}, false
	}
	minX, minY, maxX, maxY, ok := mask.Bounds(id)
	if !ok {
		return models.Raster{}, models.LabelMask{}, false
	}
	w, h := maxX-minX+1, maxY-minY+1
	outR := models.NewRaster(w, h, r.Channels, r.Depth)
	outM := models.NewLabelMask(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for c := 0; c < r.Channels; c++ {
				outR.Set(x, y, c, r.At(minX+x, minY+y, c))
			}
			outM.Set(x, y, mask.At(minX+x, minY+y))
		}
	}
	return outR, outM, true
}
