// Package grid tiles a canvas with square or circular regions of interest
// and encodes them into a 16-bit label mask.
package grid

import (
	"errors"
	"fmt"

	"texroiprep/internal/models"
)

// ErrInvalidInput is returned when the tiling parameters cannot produce a grid
var ErrInvalidInput = errors.New("invalid grid parameters")

// Policy selects how the decimation counter gates tiles
type Policy int

const (
	// DecimationNone includes every scanned tile
	DecimationNone Policy = iota

	// DecimationNormal includes one tile and then skips SkipCount tiles
	DecimationNormal

	// DecimationComplement skips one tile and then includes SkipCount tiles
	DecimationComplement
)

// String returns the policy name
func (p Policy) String() string {
	switch p {
	case DecimationNormal:
		return "normal"
	case DecimationComplement:
		return "complement"
	default:
		return "none"
	}
}

// Decimation reduces the density of generated tiles
type Decimation struct {
	Policy    Policy
	SkipCount int
}

// Params holds the tiling parameters for Generate.
type Params struct {
	// Width and Height are the canvas dimensions in pixels
	Width  int
	Height int

	// RoiSize is the tile footprint (side of a square, diameter of a circle)
	RoiSize int

	// Shift is the distance between neighbouring tile centres. It must not be
	// smaller than RoiSize.
	Shift int

	// Offset is the coordinate of the first tile centre on both axes.
	// Values below RoiSize/2 are raised to RoiSize/2.
	Offset int

	// Shape is the footprint drawn for every tile
	Shape models.Shape

	// Decimation optionally drops tiles during the scan
	Decimation Decimation
}

// PixelCounts tallies how many pixels carry each label
type PixelCounts [models.MaxLabel + 1]int

// Result is the output of Generate
type Result struct {
	// Mask holds the label of every canvas pixel
	Mask models.LabelMask

	// MaxID is the highest label present in the mask
	MaxID uint16

	// Counts holds the pixel count per label, index 0 is the unassigned area
	Counts PixelCounts
}

// Validate checks the preconditions of Generate
func (p Params) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("%w: empty canvas %dx%d", ErrInvalidInput, p.Width, p.Height)
	}
	if p.RoiSize < 1 {
		return fmt.Errorf("%w: roi size %d must be at least 1", ErrInvalidInput, p.RoiSize)
	}
	if p.Shift < p.RoiSize {
		return fmt.Errorf("%w: shift %d is smaller than roi size %d", ErrInvalidInput, p.Shift, p.RoiSize)
	}
	if p.Decimation.SkipCount < 0 {
		return fmt.Errorf("%w: negative skip count %d", ErrInvalidInput, p.Decimation.SkipCount)
	}
	return nil
}

// Generate tiles the canvas and returns the label mask with per-label pixel counts.
//
// Tile centres are scanned row-major (y outer, x inner) from Offset up to and
// including Size - RoiSize/2 in steps of Shift. A decimation counter shared by
// the whole scan decides which tiles are kept; only kept tiles consume an id,
// so ids run 1..R without gaps. Overlapping pixels take the label of the tile
// drawn last.
//
// Parameters:
//   - p: Tiling parameters
//
// Returns:
//   - Result with the mask, the highest id and per-id pixel counts
//   - ErrInvalidInput when the parameters violate the preconditions
func Generate(p Params) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}

	half := p.RoiSize / 2
	offset := p.Offset
	if offset < half {
		offset = half
	}

	mask := models.NewLabelMask(p.Width, p.Height)
	// tile centres stay on the canvas so every kept tile owns at least one pixel
	lastY := min(p.Height-half, p.Height-1)
	lastX := min(p.Width-half, p.Width-1)

	next := 1
	skip := 0
	for y := offset; y <= lastY; y += p.Shift {
		for x := offset; x <= lastX; x += p.Shift {
			if !keepTile(p.Decimation, &skip) {
				continue
			}
			if next > models.MaxLabel {
				return Result{}, fmt.Errorf("%w: more than %d tiles", ErrInvalidInput, models.MaxLabel)
			}
			switch p.Shape {
			case models.ShapeCircle:
				fillCircle(mask, x, y, half, uint16(next))
			default:
				fillRect(mask, x, y, p.RoiSize, uint16(next))
			}
			next++
		}
	}

	res := Result{Mask: mask}
	for _, l := range mask.Labels {
		res.Counts[l]++
		if l > res.MaxID {
			res.MaxID = l
		}
	}
	return res, nil
}

// keepTile advances the decimation counter and reports whether the current tile is kept
func keepTile(d Decimation, skip *int) bool {
	switch d.Policy {
	case DecimationNormal:
		if *skip <= 0 {
			*skip = d.SkipCount
			return true
		}
		*skip--
		return false
	case DecimationComplement:
		if *skip <= 0 {
			*skip = d.SkipCount
			return false
		}
		*skip--
		return true
	default:
		return true
	}
}

// fillRect draws a filled square of the given size centred at (cx, cy).
// For even sizes the extra row and column fall on the top-left side.
func fillRect(mask models.LabelMask, cx, cy, size int, label uint16) {
	lo := size / 2
	hi := size - size/2 - 1
	x0, x1 := clip(cx-lo, cx+hi, mask.Width)
	y0, y1 := clip(cy-lo, cy+hi, mask.Height)
	for y := y0; y <= y1; y++ {
		row := mask.Labels[y*mask.Width : (y+1)*mask.Width]
		for x := x0; x <= x1; x++ {
			row[x] = label
		}
	}
}

// fillCircle draws a filled disk of the given radius centred at (cx, cy)
func fillCircle(mask models.LabelMask, cx, cy, radius int, label uint16) {
	r2 := radius * radius
	y0, y1 := clip(cy-radius, cy+radius, mask.Height)
	for y := y0; y <= y1; y++ {
		dy := y - cy
		x0, x1 := clip(cx-radius, cx+radius, mask.Width)
		for x := x0; x <= x1; x++ {
			dx := x - cx
			if dx*dx+dy*dy <= r2 {
				mask.Labels[y*mask.Width+x] = label
			}
		}
	}
}

// clip limits the inclusive interval [a, b] to [0, n-1]
func clip(a, b, n int) (int, int) {
	if a < 0 {
		a = 0
	}
	if b > n-1 {
		b = n - 1
	}
	return a, b
}
