package app

import (
	"fmt"
	"io"
	"os"

	"github.com/tturner/linknode/internal/metrics"
	"github.com/tturner/linknode/internal/ui"
)

// RunInit runs the interactive wizard and writes the resulting run config.
func RunInit(path string, force bool, out io.Writer) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists; pass --force to overwrite", path)
		}
	}
	cfg, err := ui.RunInitWizard(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s (target %s:%d, files %s/%s)\n",
		path, cfg.Target.Host, cfg.Target.Port, cfg.Files.Input, cfg.Files.Mitigation)
	fmt.Fprintf(out, "Run it with: linknode run --config %s\n", path)
	return nil
}

// RunMetricsReport summarizes a metrics CSV written by an earlier run.
func RunMetricsReport(path string, out io.Writer) error {
	rows, start, end, err := metrics.ReadMetricsCSV(path)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no metrics rows in %s", path)
	}

	sink := metrics.NewSinkWithWindow(len(rows))
	for _, m := range rows {
		sink.Record(m)
	}
	fmt.Fprintf(out, "Metrics: %s\n", path)
	fmt.Fprintf(out, "Window: %s .. %s (%s)\n\n",
		start.Format("2006-01-02 15:04:05"), end.Format("2006-01-02 15:04:05"), end.Sub(start))
	fmt.Fprint(out, metrics.FormatSummary(sink.GetSummary()))
	return nil
}
