// Package histogram builds integer-bin histograms of raster samples and
// derives statistics, bar-chart renderings and text dumps from them.
package histogram

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"

	"texroiprep/internal/models"
)

// MaxBins caps the number of bins a histogram may hold
const MaxBins = 1 << 16

// Histogram counts samples per integer value over [LowBin, HighBin].
// Counts[i] holds the number of samples equal to LowBin+i.
type Histogram struct {
	LowBin  int
	HighBin int
	Counts  []uint64
}

// Stats are derived from the bins of a histogram, so they only reflect
// samples that fell inside its range.
type Stats struct {
	Mean  float64
	Std   float64
	Min   float64
	Max   float64
	Total uint64
}

type buildOptions struct {
	mask     models.LabelMask
	regionID uint16
	masked   bool
	fixed    bool
	lo, hi   int
}

// Option configures Build
type Option interface {
	apply(*buildOptions)
}

type maskedOpt struct {
	mask models.LabelMask
	id   uint16
}

func (o maskedOpt) apply(b *buildOptions) {
	b.mask = o.mask
	b.regionID = o.id
	b.masked = true
}

// Masked restricts the histogram to pixels where mask == id
func Masked(mask models.LabelMask, id uint16) Option {
	return maskedOpt{mask: mask, id: id}
}

type fixedRangeOpt struct {
	lo, hi int
}

func (o fixedRangeOpt) apply(b *buildOptions) {
	b.fixed = true
	b.lo, b.hi = o.lo, o.hi
	if b.lo > b.hi {
		b.lo, b.hi = b.hi, b.lo
	}
}

// FixedRange replaces the natural [min, max] of the data with [lo, hi].
// Samples outside the range are dropped.
func FixedRange(lo, hi int) Option {
	return fixedRangeOpt{lo: lo, hi: hi}
}

// Build accumulates one count per integer raw value of channel 0.
//
// Samples are saturated to the raster depth and rounded to the nearest
// integer; NaN and infinite samples are skipped. Without FixedRange the bins
// span the natural range of the selected samples. A mask whose canvas differs
// from the raster selects no samples.
//
// Parameters:
//   - r: Source raster
//   - opts: Masked and FixedRange options
//
// Returns:
//   - The histogram; it has no bins when no sample was selected and no fixed
//     range was given, or when the range would need more than MaxBins bins
func Build(r models.Raster, opts ...Option) Histogram {
	var o buildOptions
	for _, opt := range opts {
		opt.apply(&o)
	}

	var values []int
	if !r.Empty() && (!o.masked || o.mask.Matches(r)) {
		lo, hi := r.Depth.Limits()
		lo = max(lo, math.MinInt32)
		hi = min(hi, math.MaxInt32)
		n := r.Width * r.Height
		values = make([]int, 0, n)
		for i := 0; i < n; i++ {
			if o.masked && o.mask.Labels[i] != o.regionID {
				continue
			}
			v := r.Pix[i*r.Channels]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			values = append(values, int(math.Round(min(max(v, lo), hi))))
		}
	}

	var h Histogram
	switch {
	case o.fixed:
		h.LowBin, h.HighBin = o.lo, o.hi
	case len(values) == 0:
		return Histogram{}
	default:
		h.LowBin, h.HighBin = values[0], values[0]
		for _, v := range values[1:] {
			h.LowBin = min(h.LowBin, v)
			h.HighBin = max(h.HighBin, v)
		}
	}

	if h.HighBin-h.LowBin >= MaxBins {
		return Histogram{}
	}
	h.Counts = make([]uint64, h.HighBin-h.LowBin+1)
	for _, v := range values {
		if v < h.LowBin || v > h.HighBin {
			continue
		}
		h.Counts[v-h.LowBin]++
	}
	return h
}

// Len returns the number of bins
func (h Histogram) Len() int {
	return len(h.Counts)
}

// Count returns the count of the bin holding value v
func (h Histogram) Count(v int) uint64 {
	if v < h.LowBin || v > h.HighBin || len(h.Counts) == 0 {
		return 0
	}
	return h.Counts[v-h.LowBin]
}

// Total returns the number of counted samples
func (h Histogram) Total() uint64 {
	var total uint64
	for _, c := range h.Counts {
		total += c
	}
	return total
}

// Stats computes mean, population standard deviation and the extremes of the
// populated bins. An empty histogram yields zero stats.
func (h Histogram) Stats() Stats {
	var (
		values  []float64
		weights []float64
		s       Stats
	)
	for i, c := range h.Counts {
		if c == 0 {
			continue
		}
		v := float64(h.LowBin + i)
		if len(values) == 0 {
			s.Min = v
		}
		s.Max = v
		values = append(values, v)
		weights = append(weights, float64(c))
		s.Total += c
	}
	if len(values) == 0 {
		return Stats{}
	}
	s.Mean, s.Std = stat.PopMeanStdDev(values, weights)
	return s
}

// Render draws the histogram as an 8-bit bar chart.
//
// Every bin is a bar barWidth pixels wide, growing up from the bottom row.
// The bar height is count/countScale pixels, clamped to heightScale.
func Render(h Histogram, heightScale, countScale, barWidth int) models.Raster {
	if h.Len() == 0 || heightScale <= 0 || barWidth <= 0 {
		return models.Raster{}
	}
	if countScale <= 0 {
		countScale = 1
	}

	img := models.NewRaster(h.Len()*barWidth, heightScale, 1, models.DepthU8)
	for i, c := range h.Counts {
		bar := int(c / uint64(countScale))
		if bar > heightScale {
			bar = heightScale
		}
		for y := heightScale - bar; y < heightScale; y++ {
			for x := i * barWidth; x < (i+1)*barWidth; x++ {
				img.Set(x, y, 0, 255)
			}
		}
	}
	return img
}

// Serialize writes one "bin,count" line per populated bin followed by a
// summary line "summary,mean,std,min,max,total".
func Serialize(h Histogram) string {
	var sb strings.Builder
	for i, c := range h.Counts {
		if c == 0 {
			continue
		}
		fmt.Fprintf(&sb, "%d,%d\n", h.LowBin+i, c)
	}
	s := h.Stats()
	fmt.Fprintf(&sb, "summary,%.6f,%.6f,%.6f,%.6f,%d\n", s.Mean, s.Std, s.Min, s.Max, s.Total)
	return sb.String()
}

// StatisticsHeader is the first line of a batch statistics table
func StatisticsHeader() string {
	return "FileName\tMean\tStd\tMin\tMax\tCount"
}

// StatisticsLine formats the statistics of one file for the batch table
func StatisticsLine(name string, h Histogram) string {
	s := h.Stats()
	return fmt.Sprintf("%s\t%.6f\t%.6f\t%.0f\t%.0f\t%d", name, s.Mean, s.Std, s.Min, s.Max, s.Total)
}
