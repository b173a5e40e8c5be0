package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/san-kum/cosim/internal/artifact"
	"github.com/san-kum/cosim/internal/components"
	"github.com/san-kum/cosim/internal/config"
	"github.com/san-kum/cosim/internal/driver"
	"github.com/san-kum/cosim/internal/fmi"
	"github.com/san-kum/cosim/internal/master"
	"github.com/san-kum/cosim/internal/storage"
	"github.com/san-kum/cosim/internal/viz"
)

var (
	dataDir  string
	cacheDir string
	logLevel string
	omcBin   string
	preset   string
	seed     int64

	className string
	buildKind string
	extra     string
	options   []string

	columns []string
	xyPath  string

	stepsPerTick int
	frameRate    int
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "cosim",
		Short:         "co-simulation orchestrator for rover attack scenarios",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", config.DefaultDataDir, "run output directory")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache", config.DefaultCacheDir, "artifact cache directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&omcBin, "omc", artifact.DefaultCompilerBin, "model compiler binary")

	runCmd := &cobra.Command{
		Use:   "run [scenario.yaml]",
		Short: "run a scenario and store its outputs",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScenario,
	}
	scenarioFlags(runCmd)

	liveCmd := &cobra.Command{
		Use:   "live [scenario.yaml]",
		Short: "run a scenario with a live terminal view",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	scenarioFlags(liveCmd)
	liveCmd.Flags().IntVar(&stepsPerTick, "speed", 1, "communication steps per frame")
	liveCmd.Flags().IntVar(&frameRate, "fps", 30, "frame rate")
	liveCmd.Flags().StringSliceVar(&columns, "column", nil, "column plotted first")

	buildCmd := &cobra.Command{
		Use:   "build [model.mo]",
		Short: "compile a model into the artifact cache",
		Args:  cobra.ExactArgs(1),
		RunE:  buildModel,
	}
	buildCmd.Flags().StringVar(&className, "class", "", "fully qualified model class")
	buildCmd.Flags().StringVar(&buildKind, "kind", string(artifact.KindCoSimulation), "artifact kind (cs, me)")
	buildCmd.Flags().StringVar(&extra, "extra", "", "extra text folded into the cache key")
	buildCmd.Flags().StringArrayVar(&options, "option", nil, "compiler statement, repeatable")
	_ = buildCmd.MarkFlagRequired("class")

	inspectCmd := &cobra.Command{
		Use:   "inspect [fmu|builtin]",
		Short: "show the variable interface of an artifact or builtin component",
		Args:  cobra.ExactArgs(1),
		RunE:  inspect,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot logged columns of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringSliceVar(&columns, "column", nil, "columns to plot (default: all)")
	plotCmd.Flags().StringVar(&xyPath, "xy", "", "plot one column against another, as x_column,y_column")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "frequency analysis of a logged column",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().StringSliceVar(&columns, "column", nil, "column to analyze (default: first)")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run outputs to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run metadata and outputs to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "render a logged column or an x/y path as SVG",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}
	exportSVGCmd.Flags().StringSliceVar(&columns, "column", nil, "column plotted against time (default: first)")
	exportSVGCmd.Flags().StringVar(&xyPath, "xy", "", "plot one column against another, as x_column,y_column")

	presetsCmd := &cobra.Command{
		Use:   "presets [group]",
		Short: "list scenario presets",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groups := config.ListGroups()
			if len(args) > 0 {
				groups = args
			}
			for _, g := range groups {
				presets := config.ListPresets(g)
				if len(presets) == 0 {
					fmt.Printf("no presets in group: %s\n", g)
					continue
				}
				fmt.Printf("%s:\n", g)
				for _, p := range presets {
					fmt.Printf("  %s/%s\n", g, p)
				}
			}
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, liveCmd, buildCmd, inspectCmd, listCmd, plotCmd, analyzeCmd, exportCSVCmd, exportJSONCmd, exportSVGCmd, presetsCmd, sweepCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func scenarioFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&preset, "preset", "", "use a preset scenario, as group/name")
	cmd.Flags().Int64Var(&seed, "seed", 0, "attack seed (default: scenario seed or clock)")
}

func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", logLevel)
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})), nil
}

// loadScenario reads the scenario from a file or a preset and applies the
// flags the user set explicitly.
func loadScenario(cmd *cobra.Command, args []string) (*config.Scenario, error) {
	var sc *config.Scenario
	switch {
	case len(args) > 0 && preset != "":
		return nil, errors.New("give either a scenario file or --preset, not both")
	case len(args) > 0:
		var err error
		if sc, err = config.Load(args[0]); err != nil {
			return nil, fmt.Errorf("failed to load scenario: %w", err)
		}
	default:
		name := preset
		if name == "" {
			name = "rover/nominal"
		}
		group, p, ok := strings.Cut(name, "/")
		if !ok {
			return nil, fmt.Errorf("preset %q: expected group/name", name)
		}
		if sc = config.GetPreset(group, p); sc == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", name, config.ListPresets(group))
		}
	}

	if cmd.Flags().Changed("seed") {
		s := seed
		sc.Attack.Seed = &s
	}
	if cmd.Flags().Changed("data") || sc.Output.Dir == "" {
		sc.Output.Dir = dataDir
	}
	if cmd.Flags().Changed("cache") || sc.Output.Cache == "" {
		sc.Output.Cache = cacheDir
	}
	return sc, nil
}

func newDriver(sc *config.Scenario, logger *slog.Logger) (*driver.Driver, error) {
	st := storage.New(sc.Output.Dir)
	if err := st.Init(); err != nil {
		return nil, err
	}
	cache := artifact.New(sc.Output.Cache, artifact.NewOMCCompiler(omcBin), logger)
	return driver.New(st, cache, components.NewRegistry(), logger), nil
}

func runScenario(cmd *cobra.Command, args []string) error {
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

	fmt.Printf("running %s (%s)...\n", sc.Name, sc.Attack.Scenario)
	rep, err := d.Run(cmd.Context(), sc)
	if err != nil {
		var re *master.RunError
		if errors.As(err, &re) {
			fmt.Printf("failed at step %d (t=%g) in %s during %s: status %s\n",
				re.Step, re.Time, re.Component, re.Op, re.Status)
		}
		if rep != nil && rep.Log != nil {
			fmt.Printf("steps completed: %d\n", rep.Log.Len())
		}
		return err
	}
	printReport(rep)
	return nil
}

func printReport(rep *driver.Report) {
	fmt.Printf("completed in %v\n", rep.Duration)
	fmt.Printf("run id: %s\n", rep.RunID)
	fmt.Printf("seed: %d\n", rep.Seed)
	fmt.Printf("steps: %d\n", rep.Log.Len())
	if len(rep.Draws) > 0 {
		fmt.Println("\nattack draws:")
		for _, name := range sortedKeys(rep.Draws) {
			fmt.Printf("  %s: %.6f\n", name, rep.Draws[name])
		}
	}
	if len(rep.Metrics) > 0 {
		fmt.Println("\nmetrics:")
		for _, name := range sortedKeys(rep.Metrics) {
			fmt.Printf("  %s: %.6f\n", name, rep.Metrics[name])
		}
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func runLive(cmd *cobra.Command, args []string) error {
	// Log records would tear the terminal view, so only errors get through.
	logLevel = "error"
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

	ctx := cmd.Context()
	p, err := d.Prepare(ctx, sc)
	if err != nil {
		return err
	}
	session := p.Scheduler.NewSession()
	defer session.Close()
	if err := session.Start(ctx); err != nil {
		return err
	}

	opts := viz.Options{
		Title:        sc.Name,
		TrailX:       "rover.x_meas",
		TrailY:       "rover.y_meas",
		StepsPerTick: stepsPerTick,
		FPS:          frameRate,
	}
	if len(columns) > 0 {
		opts.Column = columns[0]
	}
	began := time.Now()
	final, err := tea.NewProgram(viz.NewModel(ctx, session, opts)).Run()
	if err != nil {
		return err
	}
	elapsed := time.Since(began)

	m := final.(viz.Model)
	if m.Err() != nil {
		return m.Err()
	}
	if !m.Done() {
		fmt.Printf("stopped at step %d/%d, nothing saved\n", session.Index(), session.Steps())
		return nil
	}
	if err := session.Close(); err != nil {
		return err
	}
	rep, err := d.Finish(p, session.Log(), elapsed)
	if err != nil {
		return err
	}
	printReport(rep)
	return nil
}

func buildModel(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	kind, err := artifact.ParseBuildKind(buildKind)
	if err != nil {
		return err
	}
	cache := artifact.New(cacheDir, artifact.NewOMCCompiler(omcBin), logger)
	art, err := cache.Build(cmd.Context(), artifact.Request{
		ModelPath: args[0],
		ClassName: className,
		Kind:      kind,
		Options:   options,
		Extra:     extra,
	})
	if err != nil {
		return err
	}
	status := "built"
	if art.Hit {
		status = "cached"
	}
	fmt.Printf("%s: %s\n", status, art.Path)
	fmt.Printf("key: %s\n", art.Key)
	return nil
}

func inspect(cmd *cobra.Command, args []string) error {
	var md *fmi.ModelDescription
	if strings.HasSuffix(args[0], ".fmu") {
		var err error
		if md, err = fmi.ReadModelDescription(args[0]); err != nil {
			return err
		}
	} else {
		var err error
		if md, _, err = components.NewRegistry().New(args[0], components.Options{}); err != nil {
			return fmt.Errorf("%w (builtins: %v)", err, components.NewRegistry().Names())
		}
	}

	fmt.Printf("model: %s\n", md.ModelName)
	fmt.Printf("fmi: %s\n", md.FMIVersion)
	fmt.Printf("guid: %s\n", md.GUID)
	if md.CoSimulation != nil {
		fmt.Printf("co-simulation: %s\n", md.CoSimulation.ModelIdentifier)
	}
	fmt.Println()

	iface := md.Interface()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GROUP\tNAME\tREF\tTYPE\tVARIABILITY\tSTART")
	for _, g := range []struct {
		group fmi.Group
		vars  []fmi.Variable
	}{
		{fmi.GroupParameter, iface.Parameters},
		{fmi.GroupInput, iface.Inputs},
		{fmi.GroupOutput, iface.Outputs},
		{fmi.GroupLocal, iface.Locals},
	} {
		for _, v := range g.vars {
			start := "-"
			if v.Start != nil {
				start = fmt.Sprintf("%g", *v.Start)
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n", g.group, v.Name, v.Ref, v.Type, v.Variability, start)
		}
	}
	return w.Flush()
}
