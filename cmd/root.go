package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"cosmos/sieve/internal/config"
	"cosmos/sieve/internal/engine"
	"cosmos/sieve/internal/ledger"
	"cosmos/sieve/internal/monitoring"
	"cosmos/sieve/internal/pipeline"
)

var (
	configPath string
	dbPath     string
	quiet      bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "sieve",
	Short: "Source catalog cleaning for HST imaging",
	Long: `Runs the source extractor over an image in a bright and a faint pass and
cleans the result: segmentation filtering, merge, star/galaxy classification,
SNR, field-of-view cut, diffraction spike and manual masking, deduplication.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet {
			monitoring.SetLogger(nil)
			return
		}
		monitoring.SetVerbose(verbose)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to JSON config (default $"+config.EnvPath+" or built-in)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to run ledger database (\"none\" disables)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log row counts and deleted objects per stage")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Resolve(configPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ledgerPath picks the ledger location: --db, then the config. "none"
// disables the ledger.
func ledgerPath(flag string, cfg *config.Config) string {
	p := flag
	if p == "" {
		p = cfg.Ledger
	}
	if strings.EqualFold(p, "none") {
		return ""
	}
	return p
}

// openLedger returns nil when the ledger is disabled.
func openLedger(cfg *config.Config) (*ledger.Ledger, error) {
	path := ledgerPath(dbPath, cfg)
	if path == "" {
		return nil, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating ledger dir: %w", err)
		}
	}
	return ledger.Open(path)
}

func recorderFor(l *ledger.Ledger) pipeline.Recorder {
	if l == nil {
		return pipeline.NopRecorder{}
	}
	return l
}

func newExtractor(cfg *config.Config) (*engine.SExtractor, error) {
	bin, err := engine.FindBinary(cfg.Engine.Binary)
	if err != nil {
		return nil, err
	}
	return &engine.SExtractor{
		Binary:     bin,
		Columns:    cfg.Engine.Columns,
		Timeout:    cfg.Engine.TimeoutDuration(),
		KeepConfig: cfg.Engine.KeepConfig,
	}, nil
}

// defaultOutName derives the output name from the image: "egs_v1.fits" -> "egs_v1".
func defaultOutName(image string) string {
	base := filepath.Base(image)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
