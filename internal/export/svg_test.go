package export

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/san-kum/rflf/internal/dynamo"
)

func TestTrajectoryToSVG(t *testing.T) {
	times := []float64{0, 0.5, 1}
	states := []dynamo.State{{1, -1}, {0.5, 0}, {0.25, 1}}

	svg, err := TrajectoryToSVG(times, states, 400, 200)
	if err != nil {
		t.Fatalf("svg: %v", err)
	}
	if !strings.HasPrefix(svg, "<?xml") || !strings.HasSuffix(svg, "</svg>\n") {
		t.Error("not a complete svg document")
	}
	if n := strings.Count(svg, "<path"); n != 2 {
		t.Errorf("expected 2 paths, got %d", n)
	}
	if !strings.Contains(svg, "<line") {
		t.Error("expected zero line when the data spans zero")
	}
	// First point of each path sits at x=0, last at x=width.
	if !strings.Contains(svg, `d="M0.0,`) || !strings.Contains(svg, " L400.0,") {
		t.Errorf("unexpected path coordinates:\n%s", svg)
	}
}

func TestTrajectoryToSVGBreaksOnNaN(t *testing.T) {
	times := []float64{0, 1, 2, 3}
	states := []dynamo.State{{1}, {math.NaN()}, {2}, {3}}

	svg, err := TrajectoryToSVG(times, states, 100, 100)
	if err != nil {
		t.Fatalf("svg: %v", err)
	}
	if n := strings.Count(svg, "M"); n < 2 {
		t.Errorf("expected the path to restart after NaN, got %d moves", n)
	}
	if strings.Contains(svg, "NaN") {
		t.Error("NaN leaked into the document")
	}
}

func TestTrajectoryToSVGRejectsShortInput(t *testing.T) {
	_, err := TrajectoryToSVG([]float64{0}, []dynamo.State{{1}}, 10, 10)
	if !errors.Is(err, dynamo.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}
