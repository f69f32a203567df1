package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"cosmos/sieve/internal/ledger"
	"cosmos/sieve/internal/pipeline"
)

var (
	runsLimit int
	runsJSON  bool
)

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List recorded runs, or show one run's stages and deletions",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		l, err := openLedger(cfg)
		if err != nil {
			return err
		}
		if l == nil {
			return fmt.Errorf("run ledger is disabled")
		}
		defer l.Close()

		if len(args) == 0 {
			runs, err := l.ListRuns(runsLimit)
			if err != nil {
				return err
			}
			if runsJSON {
				return writeJSON(os.Stdout, runs)
			}
			return writeRunList(os.Stdout, runs)
		}

		run, err := l.GetRun(args[0])
		if err != nil {
			return err
		}
		stages, err := l.Stages(run.ID)
		if err != nil {
			return err
		}
		deletions, err := l.Deletions(run.ID)
		if err != nil {
			return err
		}
		if runsJSON {
			return writeJSON(os.Stdout, struct {
				Run       *ledger.Run       `json:"run"`
				Stages    []ledger.Stage    `json:"stages"`
				Deletions []ledger.Deletion `json:"deletions"`
			}{run, stages, deletions})
		}
		return writeRunDetail(os.Stdout, run, stages, deletions)
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum runs to list (0 = all)")
	runsCmd.Flags().BoolVar(&runsJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(runsCmd)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}

func rowsString(r ledger.Run) string {
	if r.FinalRows == nil {
		return "-"
	}
	return fmt.Sprint(*r.FinalRows)
}

func writeRunList(w io.Writer, runs []ledger.Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tROWS\tSTARTED\tOUT\tIMAGE")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			pipeline.ShortID(r.ID), r.Status, rowsString(r), formatMillis(r.StartedAt), r.OutName, r.Image)
	}
	return tw.Flush()
}

func writeRunDetail(w io.Writer, r *ledger.Run, stages []ledger.Stage, deletions []ledger.Deletion) error {
	fmt.Fprintf(w, "Run:     %s\n", r.ID)
	fmt.Fprintf(w, "Status:  %s\n", r.Status)
	fmt.Fprintf(w, "Image:   %s\n", r.Image)
	if r.Weight != "" {
		fmt.Fprintf(w, "Weight:  %s\n", r.Weight)
	}
	if r.Filter != "" {
		fmt.Fprintf(w, "Filter:  %s\n", r.Filter)
	}
	fmt.Fprintf(w, "Rows:    %s\n", rowsString(*r))
	fmt.Fprintf(w, "Started: %s\n", formatMillis(r.StartedAt))
	if r.FinishedAt != nil {
		fmt.Fprintf(w, "Took:    %s\n", pipeline.FormatDurationShort(*r.FinishedAt-r.StartedAt))
	}
	if r.FailedStage != nil {
		fmt.Fprintf(w, "Failed:  %s\n", *r.FailedStage)
	}
	if r.Error != nil {
		fmt.Fprintf(w, "Error:   %s\n", *r.Error)
	}

	if len(stages) > 0 {
		fmt.Fprintln(w, "\nStages:")
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, s := range stages {
			digest := s.SHA256
			if len(digest) > 12 {
				digest = digest[:12]
			}
			fmt.Fprintf(tw, "  %d.\t%s\t%d rows\t%s\t%s\t%s\n",
				s.Seq, s.Stage, s.Rows, pipeline.FormatDurationShort(s.DurationMS), s.Path, digest)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(deletions) > 0 {
		fmt.Fprintf(w, "\nDeletions (%d):\n", len(deletions))
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, d := range deletions {
			fmt.Fprintf(tw, "  %s\t%d\t%s\t%s\n", d.Stage, d.Number, d.Reason, d.Source)
		}
		return tw.Flush()
	}
	return nil
}
