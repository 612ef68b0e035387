package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/rflf/internal/dynamo"
)

var palette = []string{"#00ff9f", "#ffb000", "#00b3ff", "#ff4fd8", "#ff5050", "#b0ff00"}

// TrajectoryToSVG draws every state component against time as one path per
// component, sharing a y axis. Non-finite samples break the path.
func TrajectoryToSVG(times []float64, states []dynamo.State, width, height int) (string, error) {
	if len(times) < 2 || len(times) != len(states) {
		return "", fmt.Errorf("%w: need at least 2 samples with matching times, got %d and %d",
			dynamo.ErrInvalidConfig, len(times), len(states))
	}

	// Find bounds
	minX, maxX := times[0], times[len(times)-1]
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, s := range states {
		for _, v := range s {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			minY = math.Min(minY, v)
			maxY = math.Max(maxY, v)
		}
	}
	if math.IsInf(minY, 1) {
		minY, maxY = -1, 1
	}

	// Add padding
	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX <= 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeY = maxY - minY

	w, h := float64(width), float64(height)
	var sb strings.Builder

	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height)

	if minY < 0 && maxY > 0 {
		y0 := h - (0-minY)/rangeY*h
		fmt.Fprintf(&sb, `<line x1="0" y1="%.1f" x2="%d" y2="%.1f" stroke="#333333" stroke-width="1"/>
`, y0, width, y0)
	}

	for k := range states[0] {
		fmt.Fprintf(&sb, `<path fill="none" stroke="%s" stroke-width="1.5" data-component="%d" d="`, palette[k%len(palette)], k)
		pen := false
		for i, s := range states {
			v := math.NaN()
			if k < len(s) {
				v = s[k]
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				pen = false
				continue
			}
			x := (times[i] - minX) / rangeX * w
			y := h - (v-minY)/rangeY*h
			if !pen {
				fmt.Fprintf(&sb, "M%.1f,%.1f", x, y)
				pen = true
			} else {
				fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
			}
		}
		sb.WriteString("\"/>\n")
	}

	sb.WriteString("</svg>\n")
	return sb.String(), nil
}
