package models

// MaxLabel is the largest region id a 16-bit label mask can hold
const MaxLabel = 65535

// LabelMask assigns every pixel of a canvas to a region id.
// Id 0 means unassigned; regions are numbered 1..R without gaps.
type LabelMask struct {
	Width  int
	Height int
	Labels []uint16
}

// NewLabelMask allocates an all-zero mask
func NewLabelMask(width, height int) LabelMask {
	if width <= 0 || height <= 0 {
		return LabelMask{}
	}
	return LabelMask{
		Width:  width,
		Height: height,
		Labels: make([]uint16, width*height),
	}
}

// Empty reports whether the mask covers no pixels
func (m LabelMask) Empty() bool {
	return m.Width <= 0 || m.Height <= 0 || len(m.Labels) != m.Width*m.Height
}

// At returns the label at (x, y), or 0 outside the canvas
func (m LabelMask) At(x, y int) uint16 {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return 0
	}
	return m.Labels[y*m.Width+x]
}

// Set stores a label at (x, y). Writes outside the canvas are ignored.
func (m LabelMask) Set(x, y int, label uint16) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return
	}
	m.Labels[y*m.Width+x] = label
}

// Matches reports whether the mask has the same canvas as the raster
func (m LabelMask) Matches(r Raster) bool {
	return !m.Empty() && m.Width == r.Width && m.Height == r.Height
}

// Bounds returns the inclusive bounding box of the pixels labeled id.
// ok is false when no pixel carries the label.
func (m LabelMask) Bounds(id uint16) (minX, minY, maxX, maxY int, ok bool) {
	minX, minY = m.Width, m.Height
	maxX, maxY = -1, -1
	for y := 0; y < m.Height; y++ {
		row := m.Labels[y*m.Width : (y+1)*m.Width]
		for x, l := range row {
			if l != id {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}
	return minX, minY, maxX, maxY, maxX >= 0
}

// Shape is the footprint used to rasterize a grid tile
type Shape int

const (
	ShapeRectangle Shape = iota
	ShapeCircle
)

// Tag returns the short shape code used in exported file names
func (s Shape) Tag() string {
	if s == ShapeCircle {
		return "Cir"
	}
	return "Rct"
}

// String returns the shape name
func (s Shape) String() string {
	if s == ShapeCircle {
		return "circle"
	}
	return "rectangle"
}

// ParseShape maps a configuration value to a Shape.
// Anything other than "circle" is a rectangle.
func ParseShape(s string) Shape {
	switch s {
	case "circle", "Circle", "cir", "Cir":
		return ShapeCircle
	default:
		return ShapeRectangle
	}
}

// RGB is an 8-bit color
type RGB struct {
	R, G, B uint8
}

// Bitmap is a full-canvas boolean membership map
type Bitmap struct {
	Width  int
	Height int
	Bits   []bool
}

// NewBitmap allocates an empty bitmap
func NewBitmap(width, height int) Bitmap {
	if width <= 0 || height <= 0 {
		return Bitmap{}
	}
	return Bitmap{Width: width, Height: height, Bits: make([]bool, width*height)}
}

// Get reports membership of (x, y)
func (b Bitmap) Get(x, y int) bool {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return false
	}
	return b.Bits[y*b.Width+x]
}

// Count returns the number of member pixels
func (b Bitmap) Count() int {
	n := 0
	for _, v := range b.Bits {
		if v {
			n++
		}
	}
	return n
}

// Region is a named, colored subset of an image's pixels.
type Region struct {
	// ID is the label the region carries in a LabelMask (1..R)
	ID uint16

	// Shape is the tile footprint the region was generated with
	Shape Shape

	// Name is shared by all regions of one export, usually the image stem
	Name string

	// Color is the display color of the region
	Color RGB

	// Membership covers the full canvas the region was defined on
	Membership Bitmap
}

// IsEmpty reports whether the region has no member pixels
func (r Region) IsEmpty() bool {
	for _, v := range r.Membership.Bits {
		if v {
			return false
		}
	}
	return true
}
