package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cosmos/sieve/internal/clean"
	"cosmos/sieve/internal/pipeline"
)

var (
	batchFile      string
	batchStdin     bool
	batchDir       string
	batchManual    string
	batchReset     bool
	batchMaxRuns   int
	batchStopAfter int
	batchSegMap    bool
	batchClean     bool
	batchJSON      bool
)

var batchCmd = &cobra.Command{
	Use:   "batch [flags]",
	Short: "Run many images from a manifest",
	Long: `Runs the pipeline for every manifest line "image weight out_name [filter]".
A weight of "-" disables weighting. Lines starting with # and blank lines are
ignored.

A failed image is recorded and the batch continues. Completed images are
remembered in <manifest>.batch-state.json and skipped on the next invocation
unless --reset is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		source := batchFile
		if batchStdin {
			source = "-"
		}
		if source == "" {
			return fmt.Errorf("specify --file <path> or --stdin")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ex, err := newExtractor(cfg)
		if err != nil {
			return err
		}
		var manual []clean.MaskBlock
		if batchManual != "" {
			if manual, err = clean.LoadMaskSpec(batchManual); err != nil {
				return err
			}
		}
		l, err := openLedger(cfg)
		if err != nil {
			return err
		}
		if l != nil {
			defer l.Close()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		result, err := pipeline.RunBatch(ctx, pipeline.BatchConfig{
			Manifest:          source,
			Reset:             batchReset,
			MaxRuns:           batchMaxRuns,
			StopAfterFailures: batchStopAfter,
			Base: pipeline.Options{
				Dir:         batchDir,
				Config:      cfg,
				Extractor:   ex,
				Recorder:    recorderFor(l),
				Manual:      manual,
				WriteSegMap: batchSegMap,
				Clean:       batchClean,
			},
		})
		if result != nil {
			w := os.Stderr
			if batchJSON {
				w = os.Stdout
			}
			if !quiet || batchJSON {
				_ = result.WriteSummary(w, batchJSON)
			}
		}
		if err != nil {
			return err
		}
		if n := result.Failed(); n > 0 {
			return fmt.Errorf("%d of %d run(s) failed", n, len(result.Runs))
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "Manifest file")
	batchCmd.Flags().BoolVar(&batchStdin, "stdin", false, "Read the manifest from stdin")
	batchCmd.Flags().StringVar(&batchDir, "dir", "", "Directory for catalogs (default: current directory)")
	batchCmd.Flags().StringVar(&batchManual, "manual", "", "Manual mask specification shared by every run")
	batchCmd.Flags().BoolVar(&batchReset, "reset", false, "Clear persisted batch state before starting")
	batchCmd.Flags().IntVar(&batchMaxRuns, "max-runs", 0, "Maximum runs to dispatch (0 = all)")
	batchCmd.Flags().IntVar(&batchStopAfter, "stop-after-failures", 0, "Stop after this many consecutive failures (0 = never)")
	batchCmd.Flags().BoolVar(&batchSegMap, "seg-map", false, "Write segmentation rasters")
	batchCmd.Flags().BoolVar(&batchClean, "clean", false, "Remove intermediate catalogs after each successful run")
	batchCmd.Flags().BoolVar(&batchJSON, "json", false, "Print the summary as JSON on stdout")
	rootCmd.AddCommand(batchCmd)
}
