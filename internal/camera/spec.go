package camera

import (
	"fmt"
	"math"
	"strings"
)

// PixelFormat is a FourCC-style pixel format tag such as "YUYV" or "MJPG".
type PixelFormat string

// Common pixel formats.
const (
	FormatYUYV  PixelFormat = "YUYV"
	FormatMJPEG PixelFormat = "MJPG"
	FormatNV12  PixelFormat = "NV12"
	FormatYU12  PixelFormat = "YU12"
	FormatRGB24 PixelFormat = "RGB3"
	FormatH264  PixelFormat = "H264"
)

// Spec describes a capture configuration. Zero fields in a requested Spec are
// treated as unspecified by Negotiate.
type Spec struct {
	Format PixelFormat `json:"format" toml:"format"`
	Width  int         `json:"width" toml:"width"`
	Height int         `json:"height" toml:"height"`
	FPS    float64     `json:"fps" toml:"fps"`
}

// String renders the spec as FORMAT WxH@FPS.
func (s Spec) String() string {
	format := string(s.Format)
	if format == "" {
		format = "any"
	}
	return fmt.Sprintf("%s %dx%d@%g", format, s.Width, s.Height, s.FPS)
}

// Area returns width times height.
func (s Spec) Area() int64 {
	return int64(s.Width) * int64(s.Height)
}

// IsZero reports whether no field of the spec is set.
func (s Spec) IsZero() bool {
	return s == Spec{}
}

// matches reports whether every specified field of requested equals the
// corresponding field of s.
func (s Spec) matches(requested Spec) bool {
	if requested.Format != "" && !strings.EqualFold(string(requested.Format), string(s.Format)) {
		return false
	}
	if requested.Width != 0 && requested.Width != s.Width {
		return false
	}
	if requested.Height != 0 && requested.Height != s.Height {
		return false
	}
	if requested.FPS != 0 && requested.FPS != s.FPS {
		return false
	}
	return true
}

// Negotiate picks the supported spec that best satisfies requested.
//
// Candidates are restricted to the requested format when one is given.
// Precedence is: exact match on every specified field, then the smallest
// resolution difference, then the smallest frame rate difference, then the
// earliest entry in enumeration order. Resolution difference is measured as
// the scale between areas (larger / smaller) so that a request is compared to
// neighbours in proportion rather than in absolute pixels.
func Negotiate(requested Spec, supported []Spec) (Spec, error) {
	candidates := make([]Spec, 0, len(supported))
	for _, s := range supported {
		if requested.Format != "" && !strings.EqualFold(string(requested.Format), string(s.Format)) {
			continue
		}
		candidates = append(candidates, s)
	}
	if len(candidates) == 0 {
		if requested.Format != "" {
			return Spec{}, newError(ErrCodeUnsupportedFormat, "", fmt.Sprintf("format %s not supported", requested.Format), nil)
		}
		return Spec{}, newError(ErrCodeUnsupportedFormat, "", "backend advertises no formats", nil)
	}

	for _, c := range candidates {
		if c.matches(requested) {
			return c, nil
		}
	}

	best := 0
	bestRes := resolutionDistance(requested, candidates[0])
	bestRate := rateDistance(requested, candidates[0])
	for i := 1; i < len(candidates); i++ {
		res := resolutionDistance(requested, candidates[i])
		rate := rateDistance(requested, candidates[i])
		if res < bestRes || (res == bestRes && rate < bestRate) {
			best, bestRes, bestRate = i, res, rate
		}
	}
	return candidates[best], nil
}

// resolutionDistance is 0 when the request leaves the resolution open.
func resolutionDistance(requested, s Spec) float64 {
	switch {
	case requested.Width > 0 && requested.Height > 0:
		return scale(float64(requested.Area()), float64(s.Area()))
	case requested.Width > 0:
		return scale(float64(requested.Width), float64(s.Width))
	case requested.Height > 0:
		return scale(float64(requested.Height), float64(s.Height))
	default:
		return 0
	}
}

func rateDistance(requested, s Spec) float64 {
	if requested.FPS <= 0 {
		return 0
	}
	return math.Abs(requested.FPS - s.FPS)
}

func scale(a, b float64) float64 {
	if a <= 0 || b <= 0 {
		return math.Inf(1)
	}
	if a > b {
		return a / b
	}
	return b / a
}
