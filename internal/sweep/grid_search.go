// Package sweep runs a system over a parameter grid, one independent
// integration per grid point.
package sweep

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/san-kum/rflf/internal/driver"
)

// Point is one grid point and its outcome.
type Point struct {
	Params map[string]float64
	Result *driver.Result
	// Err is set when the job could not be built or the run failed.
	Err error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	workers    int
}

// NewGridSearch sweeps the cartesian product of ranges. workers bounds the
// number of concurrent runs; zero or less means no bound.
func NewGridSearch(params []string, ranges [][]float64, workers int) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges, workers: workers}
}

// Points enumerates the grid, last parameter varying fastest.
func (g *GridSearch) Points() []map[string]float64 {
	var out []map[string]float64
	g.collect(0, map[string]float64{}, &out)
	return out
}

func (g *GridSearch) collect(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		*out = append(*out, maps.Clone(current))
		return
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		current[paramName] = val
		g.collect(depth+1, current, out)
	}
	delete(current, paramName)
}

// Run builds one job per grid point and runs them through a driver
// ensemble. Per-point failures are reported in Point.Err; the returned error
// is only for a malformed grid.
func (g *GridSearch) Run(ctx context.Context, build func(params map[string]float64) (driver.Job, error), opts ...driver.Option) ([]Point, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, fmt.Errorf("sweep: %d parameters but %d ranges", len(g.paramNames), len(g.ranges))
	}

	grid := g.Points()
	points := make([]Point, len(grid))
	var jobs []driver.Job
	var index []int

	for i, params := range grid {
		points[i].Params = params
		job, err := build(params)
		if err != nil {
			points[i].Err = err
			continue
		}
		if job.Name == "" {
			job.Name = Label(params)
		}
		jobs = append(jobs, job)
		index = append(index, i)
	}

	results, _ := driver.NewEnsemble(g.workers, opts...).Run(ctx, jobs)
	for j, res := range results {
		p := &points[index[j]]
		p.Result = res
		if res != nil && res.Err != nil {
			p.Err = res.Err
		}
	}
	return points, nil
}

// Best returns the completed point with the smallest value of metric.
func Best(points []Point, metric string) (Point, bool) {
	best := math.Inf(1)
	idx := -1
	for i, p := range points {
		if p.Err != nil || p.Result == nil || p.Result.Status != driver.Completed {
			continue
		}
		val, ok := p.Result.Metrics[metric]
		if !ok || math.IsNaN(val) {
			continue
		}
		if val < best {
			best = val
			idx = i
		}
	}
	if idx < 0 {
		return Point{}, false
	}
	return points[idx], true
}

// Label renders params as "a=1,b=2" with keys sorted.
func Label(params map[string]float64) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.FormatFloat(params[k], 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// ParseRange parses "start:stop:count" or a comma separated list.
func ParseRange(spec string) ([]float64, error) {
	if strings.Contains(spec, ":") {
		parts := strings.Split(spec, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("sweep: range %q is not start:stop:count", spec)
		}
		start, err1 := strconv.ParseFloat(parts[0], 64)
		stop, err2 := strconv.ParseFloat(parts[1], 64)
		count, err3 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil || err3 != nil || count < 1 {
			return nil, fmt.Errorf("sweep: bad range %q", spec)
		}
		if count == 1 {
			return []float64{start}, nil
		}
		out := make([]float64, count)
		for i := range out {
			out[i] = start + (stop-start)*float64(i)/float64(count-1)
		}
		out[count-1] = stop
		return out, nil
	}

	var out []float64
	for _, f := range strings.Split(spec, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("sweep: bad value %q", f)
		}
		out = append(out, v)
	}
	return out, nil
}
