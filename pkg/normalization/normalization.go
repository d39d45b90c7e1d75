// Package normalization selects the intensity window used to display and
// quantize a raster, over the whole image or over one region.
package normalization

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"texroiprep/internal/models"
)

// Policy selects how a normalization range is computed
type Policy int

const (
	// PolicyMinMax spans the smallest and largest sample
	PolicyMinMax Policy = iota

	// PolicyMeanPM3Sigma spans mean ± 3 population standard deviations
	PolicyMeanPM3Sigma

	// PolicyPercentile1to99 spans the 1st and 99th percentile
	PolicyPercentile1to99

	// PolicyFixed uses a caller supplied range
	PolicyFixed

	// PolicyNone uses the full range of the raster depth
	PolicyNone
)

// Fallback is returned when no samples are selected
var Fallback = models.Range{Min: 0.0, Max: 1.0}

// String returns the configuration name of the policy
func (p Policy) String() string {
	switch p {
	case PolicyMinMax:
		return "minmax"
	case PolicyMeanPM3Sigma:
		return "meanpm3std"
	case PolicyPercentile1to99:
		return "percentile"
	case PolicyFixed:
		return "fixed"
	default:
		return "none"
	}
}

// Tag returns the code used in exported file names
func (p Policy) Tag() string {
	switch p {
	case PolicyMinMax:
		return "NormMinMax"
	case PolicyMeanPM3Sigma:
		return "NormMeanPM3STD"
	case PolicyPercentile1to99:
		return "Norm1_99Perc"
	case PolicyFixed:
		return "NormFixed"
	default:
		return "NormNone"
	}
}

// ParsePolicy maps a configuration value to a Policy
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "minmax", "min-max":
		return PolicyMinMax, nil
	case "meanpm3std", "meanpm3sigma", "mean3sigma":
		return PolicyMeanPM3Sigma, nil
	case "percentile", "1-99", "percentile1to99":
		return PolicyPercentile1to99, nil
	case "fixed":
		return PolicyFixed, nil
	case "none", "":
		return PolicyNone, nil
	default:
		return PolicyNone, fmt.Errorf("unknown normalization %q", s)
	}
}

// Compute returns the range of the policy over channel 0 of the whole raster.
// PolicyFixed and PolicyNone are resolved by the caller; here both yield the
// depth limits of the raster.
func Compute(p Policy, r models.Raster) models.Range {
	return compute(p, samples(r, models.LabelMask{}, 0, false), r.Depth)
}

// ComputeRegion is Compute restricted to the pixels labeled id
func ComputeRegion(p Policy, r models.Raster, mask models.LabelMask, id uint16) models.Range {
	return compute(p, samples(r, mask, id, true), r.Depth)
}

func compute(p Policy, v []float64, depth models.Depth) models.Range {
	switch p {
	case PolicyMinMax:
		return minMax(v)
	case PolicyMeanPM3Sigma:
		return meanPM3Sigma(v)
	case PolicyPercentile1to99:
		return percentile1to99(v)
	default:
		lo, hi := depth.Limits()
		return models.Range{Min: lo, Max: hi}
	}
}

// MinMax returns the smallest and largest sample of the raster
func MinMax(r models.Raster) models.Range {
	return minMax(samples(r, models.LabelMask{}, 0, false))
}

// MinMaxRegion returns the smallest and largest sample labeled id
func MinMaxRegion(r models.Raster, mask models.LabelMask, id uint16) models.Range {
	return minMax(samples(r, mask, id, true))
}

// MeanPM3Sigma returns mean ± 3σ of the raster
func MeanPM3Sigma(r models.Raster) models.Range {
	return meanPM3Sigma(samples(r, models.LabelMask{}, 0, false))
}

// MeanPM3SigmaRegion returns mean ± 3σ of the pixels labeled id
func MeanPM3SigmaRegion(r models.Raster, mask models.LabelMask, id uint16) models.Range {
	return meanPM3Sigma(samples(r, mask, id, true))
}

// Percentile1to99 returns the 1st and 99th percentile of the raster
func Percentile1to99(r models.Raster) models.Range {
	return percentile1to99(samples(r, models.LabelMask{}, 0, false))
}

// Percentile1to99Region returns the 1st and 99th percentile of the pixels labeled id
func Percentile1to99Region(r models.Raster, mask models.LabelMask, id uint16) models.Range {
	return percentile1to99(samples(r, mask, id, true))
}

// samples collects channel 0 of the raster, optionally restricted to one label.
// A mask that does not match the raster selects nothing.
func samples(r models.Raster, mask models.LabelMask, id uint16, masked bool) []float64 {
	if r.Empty() {
		return nil
	}
	if masked && !mask.Matches(r) {
		return nil
	}

	n := r.Width * r.Height
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if masked && mask.Labels[i] != id {
			continue
		}
		out = append(out, r.Pix[i*r.Channels])
	}
	return out
}

func minMax(v []float64) models.Range {
	if len(v) == 0 {
		return Fallback
	}
	rng := models.Range{Min: v[0], Max: v[0]}
	for _, s := range v[1:] {
		if s < rng.Min {
			rng.Min = s
		}
		if s > rng.Max {
			rng.Max = s
		}
	}
	return rng
}

func meanPM3Sigma(v []float64) models.Range {
	if len(v) == 0 {
		return Fallback
	}
	mean, std := stat.PopMeanStdDev(v, nil)
	return models.Range{Min: mean - 3*std, Max: mean + 3*std}
}

// percentile1to99 picks the smallest samples whose cumulative share reaches
// 1 % and 99 % of the set. The empirical quantile of gonum returns exactly
// that sample.
func percentile1to99(v []float64) models.Range {
	if len(v) == 0 {
		return Fallback
	}
	sorted := append([]float64(nil), v...)
	sort.Float64s(sorted)
	return models.Range{
		Min: stat.Quantile(0.01, stat.Empirical, sorted, nil),
		Max: stat.Quantile(0.99, stat.Empirical, sorted, nil),
	}
}
