package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/cosim/internal/analysis"
	"github.com/san-kum/cosim/internal/export"
	"github.com/san-kum/cosim/internal/master"
	"github.com/san-kum/cosim/internal/storage"
	"github.com/san-kum/cosim/internal/store"
)

const maxPlots = 6

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCENARIO\tTIME\tATTACK\tSEED\tSTEPS\tWALL")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%.2fs\n",
			run.ID,
			run.Name,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Attack,
			run.Seed,
			run.Steps,
			run.DurationSec,
		)
	}

	return w.Flush()
}

func loadRun(runID string) (*storage.RunMetadata, *master.RunLog, error) {
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	log, err := st.LoadLog(runID)
	if err != nil {
		return nil, nil, err
	}
	if log.Len() == 0 {
		return nil, nil, fmt.Errorf("run %s has no data", runID)
	}
	return meta, log, nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, log, err := loadRun(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("scenario: %s (%s)\n", meta.Name, meta.Attack)
	fmt.Printf("samples: %d\n\n", log.Len())

	if xyPath != "" {
		x, y, ok := strings.Cut(xyPath, ",")
		if !ok {
			return fmt.Errorf("--xy %q: expected x_column,y_column", xyPath)
		}
		path, err := analysis.NewPath(log, x, y)
		if err != nil {
			return err
		}
		fmt.Print(analysis.PathToASCII(path, 70, 20))
		return nil
	}

	names := columns
	if len(names) == 0 {
		names = log.Columns
		if len(names) > maxPlots {
			names = names[:maxPlots]
		}
	}
	for _, name := range names {
		data, err := log.Column(name)
		if err != nil {
			return err
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(name),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	meta, log, err := loadRun(args[0])
	if err != nil {
		return err
	}
	name := log.Columns[0]
	if len(columns) > 0 {
		name = columns[0]
	}
	data, err := log.Column(name)
	if err != nil {
		return err
	}

	fmt.Printf("frequency analysis: %s\n", meta.ID)
	fmt.Printf("column: %s\n\n", name)

	ps := analysis.PowerSpectrum(data)
	if len(ps) < 2 {
		return fmt.Errorf("not enough samples in %s", name)
	}
	graph := asciigraph.Plot(ps,
		asciigraph.Height(15),
		asciigraph.Width(80),
		asciigraph.Caption("power spectrum ("+name+")"),
	)
	fmt.Println(graph)
	fmt.Println()

	freq := analysis.DominantFrequency(data, meta.Step)
	fmt.Printf("dominant frequency: %.3f hz\n", freq)
	if freq > 0 {
		fmt.Printf("period: %.3f s\n", 1.0/freq)
	}

	if crossings, err := analysis.Crossings(log, name, 0); err == nil && len(crossings) > 0 {
		fmt.Printf("rising zero crossings: %d (first at %.3f s)\n", len(crossings), crossings[0])
	}
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	_, log, err := loadRun(args[0])
	if err != nil {
		return err
	}
	return storage.WriteCSV(os.Stdout, log)
}

func exportJSON(cmd *cobra.Command, args []string) error {
	meta, log, err := loadRun(args[0])
	if err != nil {
		return err
	}
	return store.ExportJSON(os.Stdout, meta, log)
}

func exportSVG(cmd *cobra.Command, args []string) error {
	_, log, err := loadRun(args[0])
	if err != nil {
		return err
	}
	var svg string
	if xyPath != "" {
		x, y, ok := strings.Cut(xyPath, ",")
		if !ok {
			return fmt.Errorf("--xy %q: expected x_column,y_column", xyPath)
		}
		path, err := analysis.NewPath(log, x, y)
		if err != nil {
			return err
		}
		svg, err = export.PathToSVG(path, 800, 600, "#00ccff")
		if err != nil {
			return err
		}
	} else {
		name := log.Columns[0]
		if len(columns) > 0 {
			name = columns[0]
		}
		if svg, err = export.ColumnToSVG(log, name, 800, 400, "#00ff88"); err != nil {
			return err
		}
	}
	fmt.Println(svg)
	return nil
}
