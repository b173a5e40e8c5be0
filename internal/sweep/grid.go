package sweep

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/cosim/internal/config"
	"github.com/san-kum/cosim/internal/driver"
)

var ErrNoCandidate = errors.New("sweep: no grid point completed")

// GridSearch tries every combination of Values for the scenario params in
// Names and keeps the point with the best Metric.
type GridSearch struct {
	Names    []string
	Values   [][]float64
	Metric   string
	Maximize bool
	Workers  int
}

func NewGridSearch(names []string, values [][]float64, metric string) *GridSearch {
	return &GridSearch{Names: names, Values: values, Metric: metric}
}

// Points expands the grid, first name varying slowest.
func (g *GridSearch) Points() []map[string]float64 {
	var points []map[string]float64
	var walk func(depth int, current map[string]float64)
	walk = func(depth int, current map[string]float64) {
		if depth == len(g.Names) {
			points = append(points, current)
			return
		}
		for _, v := range g.Values[depth] {
			next := make(map[string]float64, len(current)+1)
			for k, cv := range current {
				next[k] = cv
			}
			next[g.Names[depth]] = v
			walk(depth+1, next)
		}
	}
	walk(0, map[string]float64{})
	return points
}

// Search runs every grid point of sc and returns the best parameters, their
// metric value and all results. Points that fail or lack the metric are
// skipped.
func (g *GridSearch) Search(ctx context.Context, d *driver.Driver, sc *config.Scenario) (map[string]float64, float64, []Result, error) {
	if len(g.Names) != len(g.Values) {
		return nil, 0, nil, fmt.Errorf("sweep: %d names but %d value lists", len(g.Names), len(g.Values))
	}
	if err := sc.Validate(); err != nil {
		return nil, 0, nil, err
	}
	points := g.Points()
	if len(points) == 0 {
		return nil, 0, nil, ErrNoRuns
	}

	jobs := make([]job, len(points))
	for i, p := range points {
		c := sc.Clone()
		if c.Params == nil {
			c.Params = make(map[string]float64, len(p))
		}
		for k, v := range p {
			c.Params[k] = v
		}
		var seed int64
		if c.Attack.Seed != nil {
			seed = *c.Attack.Seed
		}
		jobs[i] = job{scenario: c, seed: seed, params: p}
	}
	results := runAll(ctx, d, jobs, g.Workers)

	best := math.Inf(1)
	if g.Maximize {
		best = math.Inf(-1)
	}
	var bestParams map[string]float64
	for _, r := range results {
		if r.Err != nil || r.Report == nil {
			continue
		}
		val, ok := r.Report.Metrics[g.Metric]
		if !ok {
			continue
		}
		if (g.Maximize && val > best) || (!g.Maximize && val < best) {
			best, bestParams = val, r.Params
		}
	}
	if bestParams == nil {
		return nil, 0, results, ErrNoCandidate
	}
	return bestParams, best, results, nil
}
