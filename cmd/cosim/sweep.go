package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/cosim/internal/sweep"
)

var (
	runs      int
	seedStart int64
	workers   int
	grid      []string
	metric    string
	maximize  bool
)

func sweepCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep [scenario.yaml]",
		Short: "repeat a scenario over seeds or a parameter grid",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	scenarioFlags(cmd)
	cmd.Flags().IntVar(&runs, "runs", 10, "number of seeds")
	cmd.Flags().Int64Var(&seedStart, "seed-start", 1, "first seed")
	cmd.Flags().IntVar(&workers, "workers", 4, "concurrent runs")
	cmd.Flags().StringArrayVar(&grid, "grid", nil, "scenario param values, as name=v1,v2,... (repeatable)")
	cmd.Flags().StringVar(&metric, "metric", "", "metric optimized by --grid, as kind:column")
	cmd.Flags().BoolVar(&maximize, "max", false, "maximize the metric instead of minimizing it")
	return cmd
}

func parseGrid(args []string) ([]string, [][]float64, error) {
	names := make([]string, 0, len(args))
	values := make([][]float64, 0, len(args))
	for _, arg := range args {
		name, list, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, nil, fmt.Errorf("--grid %q: expected name=v1,v2", arg)
		}
		var vs []float64
		for _, f := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("--grid %q: %w", arg, err)
			}
			vs = append(vs, v)
		}
		names = append(names, name)
		values = append(values, vs)
	}
	return names, values, nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	sc, err := loadScenario(cmd, args)
	if err != nil {
		return err
	}
	d, err := newDriver(sc, logger)
	if err != nil {
		return err
	}

	if len(grid) > 0 {
		if metric == "" {
			return fmt.Errorf("--grid needs --metric")
		}
		names, values, err := parseGrid(grid)
		if err != nil {
			return err
		}
		g := sweep.NewGridSearch(names, values, metric)
		g.Maximize = maximize
		g.Workers = workers
		best, val, results, err := g.Search(cmd.Context(), d, sc)
		printGrid(names, results)
		if err != nil {
			return err
		}
		fmt.Printf("\nbest %s = %.6f at %v\n", metric, val, best)
		return nil
	}

	e := &sweep.Ensemble{Driver: d, Runs: runs, SeedStart: seedStart, Workers: workers}
	fmt.Printf("running %s over seeds %d..%d...\n", sc.Name, seedStart, seedStart+int64(runs)-1)
	results, err := e.Run(cmd.Context(), sc)
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("seed %d failed: %v\n", r.Seed, r.Err)
		}
	}

	stats := sweep.Summarize(results)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METRIC\tN\tMEAN\tSTD\tMIN\tMAX")
	for _, name := range sweep.Names(stats) {
		st := stats[name]
		fmt.Fprintf(w, "%s\t%d\t%.6f\t%.6f\t%.6f\t%.6f\n", name, st.N, st.Mean, st.Std, st.Min, st.Max)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d/%d runs completed\n", len(results)-sweep.Failed(results), len(results))
	return nil
}

func printGrid(names []string, results []sweep.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\tRUN\n", strings.ToUpper(strings.Join(names, "\t")), metric)
	for _, r := range results {
		cols := make([]string, len(names))
		for i, n := range names {
			cols[i] = strconv.FormatFloat(r.Params[n], 'g', -1, 64)
		}
		val, id := "-", "failed"
		if r.Err == nil && r.Report != nil {
			if v, ok := r.Report.Metrics[metric]; ok {
				val = strconv.FormatFloat(v, 'f', 6, 64)
			}
			id = r.Report.RunID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", strings.Join(cols, "\t"), val, id)
	}
	w.Flush()
}
