package tui

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/san-kum/rflf/internal/dynamo"
)

const (
	barWidth    = 40
	maxBars     = 8
	clearScreen = "\033[2J\033[H"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"
)

// LiveRenderer draws a bar per state component at a bounded frame rate.
// It is the fallback for terminals where the interactive view is not
// available. A frameRate of zero redraws on every sample.
type LiveRenderer struct {
	w         io.Writer
	name      string
	frameRate int
	ansi      bool
	lastFrame time.Time
	scale     float64
	frames    int

	lastT float64
	last  dynamo.State
}

func NewLiveRenderer(w io.Writer, name string, frameRate int, ansi bool) *LiveRenderer {
	return &LiveRenderer{
		w:         w,
		name:      name,
		frameRate: frameRate,
		ansi:      ansi,
		scale:     1,
	}
}

func (r *LiveRenderer) OnStep(t float64, s dynamo.State) {
	r.lastT = t
	r.last = append(r.last[:0], s...)
	for _, v := range s {
		if a := math.Abs(v); a > r.scale && !math.IsInf(a, 0) {
			r.scale = a
		}
	}

	if r.frameRate > 0 {
		if time.Since(r.lastFrame) < time.Second/time.Duration(r.frameRate) {
			return
		}
		r.lastFrame = time.Now()
	}
	r.render()
}

// Flush draws the most recent sample regardless of the frame rate.
func (r *LiveRenderer) Flush() {
	if r.last != nil {
		r.render()
	}
}

// Frames reports how many frames have been drawn.
func (r *LiveRenderer) Frames() int { return r.frames }

func (r *LiveRenderer) render() {
	r.frames++
	var b strings.Builder
	if r.ansi {
		b.WriteString(clearScreen)
	}
	fmt.Fprintf(&b, "  %s  t=%.4f  |s|=%.4g\n", r.name, r.lastT, r.last.Norm())

	for i, v := range r.last {
		if i >= maxBars {
			fmt.Fprintf(&b, "  ... %d more\n", len(r.last)-maxBars)
			break
		}
		fmt.Fprintf(&b, "  s%-2d %s %+.4e\n", i, bar(v, r.scale), v)
	}
	fmt.Fprint(r.w, b.String())
}

// bar renders v on a signed axis centred in a fixed-width field.
func bar(v, scale float64) string {
	half := barWidth / 2
	cells := []rune(strings.Repeat(" ", barWidth))
	cells[half] = '|'
	if math.IsNaN(v) || scale <= 0 {
		return "[" + string(cells) + "]"
	}
	n := int(math.Round(math.Abs(v) / scale * float64(half)))
	if n > half {
		n = half
	}
	for i := 1; i <= n; i++ {
		if v > 0 && half+i < barWidth {
			cells[half+i] = '#'
		} else if v < 0 {
			cells[half-i] = '#'
		}
	}
	return "[" + string(cells) + "]"
}

func (r *LiveRenderer) Start() {
	if r.ansi {
		fmt.Fprint(r.w, hideCursor)
	}
}

func (r *LiveRenderer) Stop() {
	r.Flush()
	if r.ansi {
		fmt.Fprint(r.w, showCursor)
	}
}
