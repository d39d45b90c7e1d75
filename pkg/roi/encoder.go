// Package roi converts label masks to named, colored region sets and
// persists them in a compressed region container file.
package roi

import (
	"image"

	"github.com/disintegration/imaging"

	"texroiprep/internal/models"
)

// MaxRegions is the number of regions processed from one container file.
// Entries past this index are ignored.
const MaxRegions = 100

// Encode builds one region per label 1..maxID.
//
// Every region covers the full canvas of the mask, is named name and takes
// its color from the palette in id order. Regions without pixels are still
// emitted so the slice index stays aligned with the label (index i holds id i+1).
func Encode(mask models.LabelMask, maxID uint16, name string, palette Palette) []models.Region {
	if mask.Empty() || maxID == 0 {
		return nil
	}

	regions := make([]models.Region, maxID)
	for i := range regions {
		id := uint16(i + 1)
		regions[i] = models.Region{
			ID:         id,
			Name:       name,
			Color:      palette.ColorFor(id),
			Membership: models.NewBitmap(mask.Width, mask.Height),
		}
	}
	for i, l := range mask.Labels {
		if l == 0 || l > maxID {
			continue
		}
		regions[l-1].Membership.Bits[i] = true
	}
	return regions
}

// WithShape returns a copy of the regions tagged with the given shape
func WithShape(regions []models.Region, shape models.Shape) []models.Region {
	out := make([]models.Region, len(regions))
	for i, r := range regions {
		r.Shape = shape
		out[i] = r
	}
	return out
}

// Rasterize paints regions into a label mask of the given canvas.
// The region at index i writes label i+1; empty regions are skipped.
// Regions defined on a different canvas are resampled first.
func Rasterize(regions []models.Region, width, height int) models.LabelMask {
	mask := models.NewLabelMask(width, height)
	if mask.Empty() {
		return mask
	}
	for i, r := range regions {
		if i >= MaxRegions {
			break
		}
		if r.IsEmpty() {
			continue
		}
		m := Resample(r.Membership, width, height)
		for p, in := range m.Bits {
			if in {
				mask.Labels[p] = uint16(i + 1)
			}
		}
	}
	return mask
}

// Resample scales a membership bitmap to exactly fill width×height using
// nearest-neighbour sampling. A bitmap already at that size is returned as is.
func Resample(b models.Bitmap, width, height int) models.Bitmap {
	if b.Width == width && b.Height == height {
		return b
	}
	if width <= 0 || height <= 0 {
		return models.Bitmap{}
	}
	if b.Width <= 0 || b.Height <= 0 {
		return models.NewBitmap(width, height)
	}

	scaled := imaging.Resize(membershipImage(b), width, height, imaging.NearestNeighbor)

	out := models.NewBitmap(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := scaled.NRGBAAt(x, y)
			out.Bits[y*width+x] = c.R >= 128
		}
	}
	return out
}

// membershipImage renders a bitmap as a black and white image
func membershipImage(b models.Bitmap) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, b.Width, b.Height))
	for i, in := range b.Bits {
		if in {
			img.Pix[i] = 255
		}
	}
	return img
}
