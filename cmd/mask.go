package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"cosmos/sieve/internal/clean"
	"cosmos/sieve/internal/ledger"
	"cosmos/sieve/internal/monitoring"
	"cosmos/sieve/internal/pipeline"
)

var (
	maskDir     string
	maskWorkers int
)

var maskCmd = &cobra.Command{
	Use:   "mask <spec>",
	Short: "Apply manual mask polygons to finished catalogs",
	Long: `Reads a mask specification: a "# <catalog>" line followed by pairs of
x-vertex and y-vertex lines, one pair per polygon. Objects whose bounding box
edge falls inside a polygon are removed from the named catalog in place.
Identifiers are not reassigned.

A malformed block skips its catalog only; the others are still masked.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		specPath := args[0]
		blocks, err := clean.LoadMaskSpec(specPath)
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		workers := cfg.MaskWorkers
		if cmd.Flags().Changed("workers") {
			workers = maskWorkers
		}

		l, err := openLedger(cfg)
		if err != nil {
			return err
		}
		rec := recorderFor(l)
		if l != nil {
			defer l.Close()
		}
		runID, err := rec.StartRun(ledger.Run{OutName: filepath.Base(specPath), Image: specPath})
		if err != nil {
			monitoring.Logf("[mask] Warning: run not recorded: %v", err)
			rec = pipeline.NopRecorder{}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		results, err := clean.ApplyManualMasks(ctx, blocks, clean.ManualOptions{Dir: maskDir, Workers: workers})
		if err != nil {
			_ = rec.FinishRun(runID, ledger.StatusFailed, pipeline.StageManual, err.Error(), 0)
			return err
		}

		failed, deleted := 0, 0
		for _, r := range results {
			if r.Err != nil {
				failed++
				fmt.Printf("  %-40s FAILED  %v\n", r.Catalog, r.Err)
				continue
			}
			deleted += len(r.Deleted)
			fmt.Printf("  %-40s %d deleted\n", r.Catalog, len(r.Deleted))
			if err := rec.RecordDeletions(runID, pipeline.LedgerDeletions(pipeline.StageManual, r.Path, r.Deleted)); err != nil {
				monitoring.Logf("[mask] Warning: failed to record deletions for %s: %v", r.Catalog, err)
			}
		}

		if failed > 0 {
			msg := fmt.Sprintf("%d of %d mask block(s) failed", failed, len(results))
			_ = rec.FinishRun(runID, ledger.StatusFailed, pipeline.StageManual, msg, 0)
			return errors.New(msg)
		}
		_ = rec.FinishRun(runID, ledger.StatusSucceeded, "", "", deleted)
		return nil
	},
}

func init() {
	maskCmd.Flags().StringVar(&maskDir, "dir", "", "Directory that relative catalog names resolve against")
	maskCmd.Flags().IntVar(&maskWorkers, "workers", 0, "Parallel containment workers (0 = all CPUs, default from config)")
	rootCmd.AddCommand(maskCmd)
}
