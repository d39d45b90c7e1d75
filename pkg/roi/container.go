package roi

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"texroiprep/internal/models"
)

// Container file layout
//
//	magic "TXROI", version byte
//	zstd stream:
//	  uint32 metadata count, then key/value strings
//	  uint32 region count
//	  per region: uint16 id, uint8 shape, string name, 3 bytes RGB,
//	              uint32 width, uint32 height, uint32 run count,
//	              runs of (uint32 y, uint32 x, uint32 length)
//
// Strings are a uint16 length followed by the bytes. All integers are little endian.
const (
	containerMagic   = "TXROI"
	containerVersion = 1

	// maxCanvasPixels bounds the canvas a stored region may claim
	maxCanvasPixels = 1 << 28
)

// ErrCorrupt is returned when a container file cannot be decoded
var ErrCorrupt = errors.New("corrupt region container")

// Metadata is optional key/value information stored with a region set
type Metadata map[string]string

// Run is one horizontal span of member pixels
type Run struct {
	Y, X, Length uint32
}

// Runs encodes the membership bitmap as row-major horizontal runs
func Runs(b models.Bitmap) []Run {
	var runs []Run
	for y := 0; y < b.Height; y++ {
		row := b.Bits[y*b.Width : (y+1)*b.Width]
		start := -1
		for x, in := range row {
			switch {
			case in && start < 0:
				start = x
			case !in && start >= 0:
				runs = append(runs, Run{Y: uint32(y), X: uint32(start), Length: uint32(x - start)})
				start = -1
			}
		}
		if start >= 0 {
			runs = append(runs, Run{Y: uint32(y), X: uint32(start), Length: uint32(b.Width - start)})
		}
	}
	return runs
}

// Persist writes the regions, in order, to a container file at path.
//
// Parameters:
//   - regions: Regions to store; each keeps its own canvas size
//   - path: Destination file; parent directories are created
//   - meta: Optional metadata, may be nil
//
// Returns:
//   - nil on success, or an error if the file cannot be written
func Persist(regions []models.Region, path string, meta Metadata) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create region directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create region file: %w", err)
	}
	defer f.Close()

	if err := Write(f, regions, meta); err != nil {
		return fmt.Errorf("failed to write region file %s: %w", path, err)
	}
	return f.Close()
}

// Write encodes the regions to w in the container format
func Write(w io.Writer, regions []models.Region, meta Metadata) error {
	if _, err := io.WriteString(w, containerMagic); err != nil {
		return err
	}
	if _, err := w.Write([]byte{containerVersion}); err != nil {
		return err
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(enc)

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf []byte
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(keys)))
	for _, k := range keys {
		buf = appendString(buf, k)
		buf = appendString(buf, meta[k])
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(regions)))
	if _, err := bw.Write(buf); err != nil {
		enc.Close()
		return err
	}

	for _, r := range regions {
		runs := Runs(r.Membership)
		buf = buf[:0]
		buf = binary.LittleEndian.AppendUint16(buf, r.ID)
		buf = append(buf, byte(r.Shape))
		buf = appendString(buf, r.Name)
		buf = append(buf, r.Color.R, r.Color.G, r.Color.B)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(r.Membership.Width))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(r.Membership.Height))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(runs)))
		for _, run := range runs {
			buf = binary.LittleEndian.AppendUint32(buf, run.Y)
			buf = binary.LittleEndian.AppendUint32(buf, run.X)
			buf = binary.LittleEndian.AppendUint32(buf, run.Length)
		}
		if _, err := bw.Write(buf); err != nil {
			enc.Close()
			return err
		}
	}

	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func appendString(buf []byte, s string) []byte {
	if len(s) > 0xFFFF {
		s = s[:0xFFFF]
	}
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

// Read decodes at most MaxRegions regions from a container stream.
// Regions keep the canvas size they were stored with.
func Read(r io.Reader) ([]models.Region, Metadata, error) {
	head := make([]byte, len(containerMagic)+1)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if string(head[:len(containerMagic)]) != containerMagic {
		return nil, nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if head[len(containerMagic)] != containerVersion {
		return nil, nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, head[len(containerMagic)])
	}

	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer dec.Close()
	cr := &containerReader{r: bufio.NewReader(dec)}

	meta := Metadata{}
	nMeta := cr.uint32()
	for i := uint32(0); i < nMeta && cr.err == nil; i++ {
		k := cr.string()
		meta[k] = cr.string()
	}

	count := int(cr.uint32())
	if count > MaxRegions {
		count = MaxRegions
	}

	var regions []models.Region
	for i := 0; i < count && cr.err == nil; i++ {
		reg := models.Region{
			ID:    cr.uint16(),
			Shape: models.Shape(cr.byte()),
			Name:  cr.string(),
		}
		reg.Color = models.RGB{R: cr.byte(), G: cr.byte(), B: cr.byte()}
		width := int(cr.uint32())
		height := int(cr.uint32())
		nRuns := cr.uint32()
		if cr.err != nil {
			break
		}
		if width < 0 || height < 0 || width*height > maxCanvasPixels {
			return nil, nil, fmt.Errorf("%w: region %d canvas %dx%d", ErrCorrupt, i, width, height)
		}
		reg.Membership = models.NewBitmap(width, height)
		for j := uint32(0); j < nRuns && cr.err == nil; j++ {
			y, x, n := int(cr.uint32()), int(cr.uint32()), int(cr.uint32())
			if cr.err != nil {
				break
			}
			if y >= height || x+n > width {
				return nil, nil, fmt.Errorf("%w: region %d run outside canvas", ErrCorrupt, i)
			}
			row := reg.Membership.Bits[y*width : (y+1)*width]
			for k := x; k < x+n; k++ {
				row[k] = true
			}
		}
		regions = append(regions, reg)
	}
	if cr.err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorrupt, cr.err)
	}
	return regions, meta, nil
}

// containerReader keeps the first error so field reads can be chained
type containerReader struct {
	r   *bufio.Reader
	err error
	buf [4]byte
}

func (c *containerReader) fill(n int) []byte {
	if c.err != nil {
		return c.buf[:n]
	}
	if _, err := io.ReadFull(c.r, c.buf[:n]); err != nil {
		c.err = err
		for i := range c.buf {
			c.buf[i] = 0
		}
	}
	return c.buf[:n]
}

func (c *containerReader) byte() byte {
	return c.fill(1)[0]
}

func (c *containerReader) uint16() uint16 {
	return binary.LittleEndian.Uint16(c.fill(2))
}

func (c *containerReader) uint32() uint32 {
	return binary.LittleEndian.Uint32(c.fill(4))
}

func (c *containerReader) string() string {
	n := int(c.uint16())
	if c.err != nil || n == 0 {
		return ""
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(c.r, b); err != nil {
		c.err = err
		return ""
	}
	return string(b)
}

// Load reads the regions stored at path and fits their membership to a
// width×height canvas.
//
// A missing file is not an error: Load returns no regions so the caller can
// carry on with an empty mask. Only the first MaxRegions entries are read.
func Load(path string, width, height int) ([]models.Region, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read region file: %w", err)
	}

	regions, _, err := Read(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode region file %s: %w", path, err)
	}
	for i := range regions {
		regions[i].Membership = Resample(regions[i].Membership, width, height)
	}
	return regions, nil
}

// LoadMask reads a region file and paints it into a label mask.
// A missing file yields an all-zero mask.
func LoadMask(path string, width, height int) (models.LabelMask, error) {
	regions, err := Load(path, width, height)
	if err != nil {
		return models.NewLabelMask(width, height), err
	}
	return Rasterize(regions, width, height), nil
}
