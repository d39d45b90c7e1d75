package rasterio

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/tiff"
)

const (
	tagXResolution = 282
	tagYResolution = 283
)

// IsTIFF reports whether the path has a TIFF extension
func IsTIFF(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".tif" || ext == ".tiff"
}

// TIFFResolution reads the X and Y resolution tags from the first IFD of a
// TIFF file. When the file is not a TIFF or a tag is absent the resolution
// defaults to 1.0 and ok is false.
func TIFFResolution(path string) (xRes, yRes float64, ok bool) {
	f, err := os.Open(path)
	if err != nil {
		return 1, 1, false
	}
	defer f.Close()
	return readResolution(f)
}

func readResolution(r tiff.ReadAtReadSeeker) (xRes, yRes float64, ok bool) {
	xRes, yRes = 1, 1

	t, err := tiff.Parse(r, nil, nil)
	if err != nil {
		return xRes, yRes, false
	}
	ifds := t.IFDs()
	if len(ifds) == 0 {
		return xRes, yRes, false
	}

	x, foundX := rational(ifds[0], tagXResolution)
	y, foundY := rational(ifds[0], tagYResolution)
	if foundX {
		xRes = x
	}
	if foundY {
		yRes = y
	}
	return xRes, yRes, foundX && foundY
}

// rational decodes the first RATIONAL value of a tag; zero terms count as absent
func rational(ifd tiff.IFD, tag uint16) (float64, bool) {
	if !ifd.HasField(tag) {
		return 0, false
	}
	f := ifd.GetField(tag)
	if f == nil || f.Count() == 0 || f.Value() == nil {
		return 0, false
	}
	b := f.Value().Bytes()
	if len(b) < 8 {
		return 0, false
	}
	order := f.Value().Order()
	num := order.Uint32(b[0:])
	den := order.Uint32(b[4:])
	if den == 0 || num == 0 {
		return 0, false
	}
	return float64(num) / float64(den), true
}
