package roi

import (
	"fmt"

	colorful "github.com/lucasb-eyer/go-colorful"

	"texroiprep/internal/models"
)

// PaletteSize is the number of distinct region colors
const PaletteSize = 16

// Palette holds the colors assigned to regions in id order
type Palette [PaletteSize]models.RGB

// regionColorsHex lists the default region colors
var regionColorsHex = [PaletteSize]string{
	"#FF0000", "#00FF00", "#0000FF", "#FFFF00",
	"#FF00FF", "#00FFFF", "#FF8000", "#8000FF",
	"#0080FF", "#80FF00", "#FF0080", "#00FF80",
	"#800000", "#008000", "#000080", "#808000",
}

// DefaultPalette returns the standard region palette
func DefaultPalette() Palette {
	p, err := ParsePalette(regionColorsHex[:])
	if err != nil {
		panic(err)
	}
	return p
}

// ParsePalette builds a palette from hex color strings ("#RRGGBB").
// Fewer than PaletteSize entries are repeated cyclically.
func ParsePalette(hex []string) (Palette, error) {
	var p Palette
	if len(hex) == 0 {
		return p, fmt.Errorf("empty palette")
	}
	for i := range p {
		c, err := colorful.Hex(hex[i%len(hex)])
		if err != nil {
			return p, fmt.Errorf("palette entry %d: %w", i, err)
		}
		r, g, b := c.RGB255()
		p[i] = models.RGB{R: r, G: g, B: b}
	}
	return p, nil
}

// ColorFor returns the color of region id (ids start at 1)
func (p Palette) ColorFor(id uint16) models.RGB {
	if id == 0 {
		return models.RGB{}
	}
	return p[int(id-1)%PaletteSize]
}
