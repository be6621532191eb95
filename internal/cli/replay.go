package cli

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/webtape/internal/control"
)

var (
	replayContextID string
	replayDataPath  string
)

var replayCmd = &cobra.Command{
	Use:   "replay <project-id>",
	Short: "Replay a recorded project once and print the result",
	Args:  cobra.ExactArgs(1),
	Run:   runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayContextID, "context", "", "browser context (tab) id to replay against")
	replayCmd.Flags().StringVar(&replayDataPath, "data", "", "CSV file with one data row per replay pass")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	app, err := control.NewRecorder(cfg)
	if err != nil {
		slog.Error("Failed to initialize Recorder", "error", err)
		os.Exit(1)
	}
	ctx := context.Background()
	defer func() {
		_ = app.Stop(ctx)
	}()

	project, err := app.Store().GetProject(ctx, args[0])
	if err != nil {
		slog.Error("Failed to load project", "error", err)
		os.Exit(1)
	}
	if project == nil {
		slog.Error("Project not found", "project_id", args[0])
		os.Exit(1)
	}

	var rows []map[string]string
	if replayDataPath != "" {
		rows, err = loadDataRows(replayDataPath)
		if err != nil {
			slog.Error("Failed to load data file", "error", err)
			os.Exit(1)
		}
	}

	report, err := app.Runner().Run(ctx, project, replayContextID, rows)
	if err != nil {
		slog.Error("Replay failed", "error", err)
		if report == nil {
			os.Exit(1)
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "EXECUTION\tROWS\tPASSED\tFAILED\tSKIPPED\tSUCCESS")
	_, _ = fmt.Fprintf(w, "%s\t%d/%d\t%d\t%d\t%d\t%t\n",
		report.ExecutionID, report.RowsPassed, report.RowsTotal,
		report.StepsPassed, report.StepsFailed, report.StepsSkipped, report.Success)
	_ = w.Flush()

	if !report.Success {
		os.Exit(1)
	}
}

// loadDataRows reads a CSV with a header row into one map per data row.
func loadDataRows(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("data file %s needs a header row and at least one data row", path)
	}

	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
