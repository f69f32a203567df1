package cmd

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cosmos/sieve/internal/clean"
	"cosmos/sieve/internal/pipeline"
)

var (
	runWeight string
	runOut    string
	runDir    string
	runFilter string
	runManual string
	runSegMap bool
	runClean  bool
	runJSON   bool
	runWidth  int
	runHeight int
)

var runCmd = &cobra.Command{
	Use:   "run <image>",
	Short: "Extract and clean the catalog of one image",
	Long: `Runs the bright and faint extraction passes over the image and cleans the
result. Every stage writes <out>_<stage>.cat next to the final <out>.cat.

With --manual, polygons listed for <out>.cat in the mask file are applied to
the final catalog in place.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ex, err := newExtractor(cfg)
		if err != nil {
			return err
		}
		var manual []clean.MaskBlock
		if runManual != "" {
			if manual, err = clean.LoadMaskSpec(runManual); err != nil {
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

		out := runOut
		if out == "" {
			out = defaultOutName(args[0])
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		res, err := pipeline.Run(ctx, pipeline.Options{
			Image:       args[0],
			Weight:      runWeight,
			OutName:     out,
			Dir:         runDir,
			Filter:      runFilter,
			Width:       runWidth,
			Height:      runHeight,
			Config:      cfg,
			Extractor:   ex,
			Recorder:    recorderFor(l),
			Manual:      manual,
			WriteSegMap: runSegMap,
			Clean:       runClean,
		})
		if runJSON && res != nil {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(res)
		}
		return err
	},
}

func init() {
	runCmd.Flags().StringVar(&runWeight, "weight", "", "Weight map for the image")
	runCmd.Flags().StringVarP(&runOut, "out", "o", "", "Output name (default: image name without extension)")
	runCmd.Flags().StringVar(&runDir, "dir", "", "Directory for catalogs (default: current directory)")
	runCmd.Flags().StringVar(&runFilter, "filter", "", "Filter for spike parameters, e.g. 606 or F814W (default from config)")
	runCmd.Flags().StringVar(&runManual, "manual", "", "Manual mask specification file")
	runCmd.Flags().BoolVar(&runSegMap, "seg-map", false, "Write the segmentation raster as <out>_seg_map.png")
	runCmd.Flags().BoolVar(&runClean, "clean", false, "Remove intermediate catalogs after a successful run")
	runCmd.Flags().IntVar(&runWidth, "width", 0, "Image width in pixels (default: read from the image)")
	runCmd.Flags().IntVar(&runHeight, "height", 0, "Image height in pixels (default: read from the image)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the run result as JSON")
	rootCmd.AddCommand(runCmd)
}
