// Package sweep repeats one scenario many times: under consecutive attack
// seeds, or across a grid of scenario parameters.
package sweep

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/san-kum/cosim/internal/config"
	"github.com/san-kum/cosim/internal/driver"
)

var ErrNoRuns = errors.New("sweep: no runs requested")

// Result is one run of a sweep. Err is set when the run failed; Report may
// still hold the partial log.
type Result struct {
	Seed   int64
	Params map[string]float64
	Report *driver.Report
	Err    error
}

// Ensemble runs a scenario under seeds SeedStart, SeedStart+1, ...
type Ensemble struct {
	Driver    *driver.Driver
	Runs      int
	SeedStart int64
	// Workers bounds concurrent runs. Zero means one.
	Workers int
}

// Run returns one result per seed in seed order. Individual run failures are
// reported in the results; the error is only set when nothing could run.
func (e *Ensemble) Run(ctx context.Context, sc *config.Scenario) ([]Result, error) {
	if e.Runs <= 0 {
		return nil, ErrNoRuns
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	jobs := make([]job, e.Runs)
	for i := range jobs {
		c := sc.Clone()
		seed := e.SeedStart + int64(i)
		c.Attack.Seed = &seed
		jobs[i] = job{scenario: c, seed: seed}
	}
	return runAll(ctx, e.Driver, jobs, e.Workers), nil
}

type job struct {
	scenario *config.Scenario
	seed     int64
	params   map[string]float64
}

func runAll(ctx context.Context, d *driver.Driver, jobs []job, workers int) []Result {
	if workers <= 0 {
		workers = 1
	}
	results := make([]Result, len(jobs))
	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup
	for i := range jobs {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			j := jobs[idx]
			rep, err := d.Run(ctx, j.scenario)
			seed := j.seed
			if rep != nil {
				seed = rep.Seed
			}
			results[idx] = Result{Seed: seed, Params: j.params, Report: rep, Err: err}
		}(i)
	}
	wg.Wait()
	return results
}

type Stats struct {
	N                   int
	Mean, Min, Max, Std float64
}

// Summarize aggregates every metric over the successful runs.
func Summarize(results []Result) map[string]Stats {
	values := make(map[string][]float64)
	for _, r := range results {
		if r.Err != nil || r.Report == nil {
			continue
		}
		for name, v := range r.Report.Metrics {
			values[name] = append(values[name], v)
		}
	}

	out := make(map[string]Stats, len(values))
	for name, vs := range values {
		st := Stats{N: len(vs), Min: vs[0], Max: vs[0]}
		for _, v := range vs {
			st.Mean += v
			st.Min, st.Max = math.Min(st.Min, v), math.Max(st.Max, v)
		}
		st.Mean /= float64(len(vs))
		for _, v := range vs {
			st.Std += (v - st.Mean) * (v - st.Mean)
		}
		st.Std = math.Sqrt(st.Std / float64(len(vs)))
		out[name] = st
	}
	return out
}

// Failed counts the runs that did not complete.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// Names returns the metric names of a summary in order.
func Names(m map[string]Stats) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
