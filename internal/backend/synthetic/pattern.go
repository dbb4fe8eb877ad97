package synthetic

import (
	"fmt"

	"github.com/smazurov/camerad/internal/camera"
)

func frameSize(spec camera.Spec) (int, error) {
	if spec.Width <= 0 || spec.Height <= 0 {
		return 0, fmt.Errorf("synthetic: invalid size %dx%d", spec.Width, spec.Height)
	}
	switch spec.Format {
	case camera.FormatYUYV:
		return spec.Width * spec.Height * 2, nil
	case camera.FormatRGB24:
		return spec.Width * spec.Height * 3, nil
	default:
		return 0, fmt.Errorf("synthetic: format %q not generated", spec.Format)
	}
}

// fillPattern draws vertical bars that scroll by four pixels per frame.
func fillPattern(buf []byte, spec camera.Spec, n uint64) {
	shift := int(n * 4)
	switch spec.Format {
	case camera.FormatYUYV:
		for y := 0; y < spec.Height; y++ {
			row := buf[y*spec.Width*2:]
			for x := 0; x+1 < spec.Width; x += 2 {
				i := x * 2
				row[i] = byte(x + shift)
				row[i+1] = 128
				row[i+2] = byte(x + 1 + shift)
				row[i+3] = 128
			}
		}
	case camera.FormatRGB24:
		for y := 0; y < spec.Height; y++ {
			row := buf[y*spec.Width*3:]
			for x := 0; x < spec.Width; x++ {
				i := x * 3
				row[i] = byte(x + shift)
				row[i+1] = byte(y)
				row[i+2] = byte(n)
			}
		}
	}
}
