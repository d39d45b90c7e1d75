package models

// Depth identifies the sample type a raster was produced with.
// Samples are always held as float64; the depth records the range
// they were decoded from and the encoding used when the raster is saved.
type Depth int

const (
	DepthU8 Depth = iota
	DepthU16
	DepthS32
	DepthF64
)

// String returns a short name for the depth
func (d Depth) String() string {
	switch d {
	case DepthU8:
		return "8U"
	case DepthU16:
		return "16U"
	case DepthS32:
		return "32S"
	case DepthF64:
		return "64F"
	default:
		return "unknown"
	}
}

// IsInteger reports whether samples of this depth are whole numbers
func (d Depth) IsInteger() bool {
	return d == DepthU8 || d == DepthU16 || d == DepthS32
}

// Limits returns the representable sample range for the depth
func (d Depth) Limits() (min, max float64) {
	switch d {
	case DepthU8:
		return 0, 255
	case DepthU16:
		return 0, 65535
	case DepthS32:
		return -2147483648, 2147483647
	default:
		return -1.7976931348623157e308, 1.7976931348623157e308
	}
}

// Raster is a W×H grid of samples with one or three channels.
type Raster struct {
	// Width is the number of columns
	Width int

	// Height is the number of rows
	Height int

	// Channels is 1 for gray rasters and 3 for RGB rasters
	Channels int

	// Depth is the sample type the raster represents
	Depth Depth

	// Pix holds samples in row-major order with channels interleaved
	Pix []float64
}

// NewRaster allocates a zero-filled raster
func NewRaster(width, height, channels int, depth Depth) Raster {
	if width <= 0 || height <= 0 || channels <= 0 {
		return Raster{}
	}
	return Raster{
		Width:    width,
		Height:   height,
		Channels: channels,
		Depth:    depth,
		Pix:      make([]float64, width*height*channels),
	}
}

// Empty reports whether the raster holds no samples
func (r Raster) Empty() bool {
	return r.Width <= 0 || r.Height <= 0 || r.Channels <= 0 || len(r.Pix) != r.Width*r.Height*r.Channels
}

// Inside reports whether (x, y) lies on the raster
func (r Raster) Inside(x, y int) bool {
	return x >= 0 && y >= 0 && x < r.Width && y < r.Height
}

// At returns the sample at (x, y) in channel c, or 0 outside the raster
func (r Raster) At(x, y, c int) float64 {
	if !r.Inside(x, y) || c < 0 || c >= r.Channels {
		return 0
	}
	return r.Pix[(y*r.Width+x)*r.Channels+c]
}

// Set stores v at (x, y) in channel c. Writes outside the raster are ignored.
func (r Raster) Set(x, y, c int, v float64) {
	if !r.Inside(x, y) || c < 0 || c >= r.Channels {
		return
	}
	r.Pix[(y*r.Width+x)*r.Channels+c] = v
}

// Clone returns a deep copy of the raster
func (r Raster) Clone() Raster {
	out := r
	out.Pix = append([]float64(nil), r.Pix...)
	return out
}

// Range is an affine window [Min, Max] over raw sample values.
type Range struct {
	Min float64
	Max float64
}

// Span returns Max-Min, or 1.0 when the range is degenerate
func (r Range) Span() float64 {
	span := r.Max - r.Min
	if span == 0 {
		return 1.0
	}
	return span
}
