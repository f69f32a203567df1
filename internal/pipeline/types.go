package pipeline

import (
	"fmt"
	"path/filepath"
	"time"

	"cosmos/sieve/internal/clean"
	"cosmos/sieve/internal/config"
	"cosmos/sieve/internal/engine"
)

// Stage names, in execution order.
const (
	StageExtractBright = "extract-bright"
	StageExtractFaint  = "extract-faint"
	StageSegment       = "segment"
	StageMerge         = "merge"
	StageClassify      = "classify"
	StageSNR           = "snr"
	StageEdge          = "edge"
	StageDiffraction   = "diffraction"
	StageFinalize      = "finalize"
	StageManual        = "manual"
)

// Names holds the file names a run writes for one output name.
type Names struct {
	Dir           string
	Bright        string
	Faint         string
	FilteredFaint string
	Merge         string
	Class         string
	SNR           string
	Edge          string
	SegMap        string
	Final         string
}

// NamesFor derives every intermediate path from the output name.
func NamesFor(dir, out string) Names {
	p := func(suffix string) string { return filepath.Join(dir, out+suffix) }
	return Names{
		Dir:           dir,
		Bright:        p("_bright.cat"),
		Faint:         p("_faint.cat"),
		FilteredFaint: p("_filteredfaint.cat"),
		Merge:         p("_merge.cat"),
		Class:         p("_class.cat"),
		SNR:           p("_snr.cat"),
		Edge:          p("_edge.cat"),
		SegMap:        p("_seg_map.png"),
		Final:         p(".cat"),
	}
}

// Intermediates lists every file except the final catalog.
func (n Names) Intermediates() []string {
	return []string{n.Bright, n.Faint, n.FilteredFaint, n.Merge, n.Class, n.SNR, n.Edge, n.SegMap}
}

// Options configures one pipeline run.
type Options struct {
	Image   string // science image
	Weight  string // weight map; empty disables weighting
	OutName string // base name of every written catalog
	Dir     string // output directory; empty means the working directory
	Filter  string // overrides Config.Filter when set

	// Width and Height override the extent read from Image when both are set.
	Width, Height int

	Config    *config.Config // nil uses config.Default()
	Extractor engine.Extractor
	Recorder  Recorder // nil records nothing

	// Manual blocks are applied to the final catalog after cleanup. Blocks
	// naming other catalogs are ignored.
	Manual []clean.MaskBlock

	WriteSegMap bool // store the segmentation raster next to the catalogs
	Clean       bool // remove intermediates after a successful run
}

func (o Options) validate() error {
	switch {
	case o.Image == "":
		return fmt.Errorf("no image given")
	case o.OutName == "":
		return fmt.Errorf("no output name given")
	case o.Extractor == nil:
		return fmt.Errorf("no extractor configured")
	}
	return nil
}

// StageResult is the outcome of one completed stage.
type StageResult struct {
	Stage    string           `json:"stage"`
	Path     string           `json:"path,omitempty"`
	Rows     int              `json:"rows"`
	Duration time.Duration    `json:"duration"`
	Deleted  []clean.Deletion `json:"deleted,omitempty"`
}

// Result is the outcome of a run. On failure it holds the stages that completed.
type Result struct {
	RunID    string               `json:"run_id"`
	OutName  string               `json:"out_name"`
	Final    string               `json:"final"`
	Rows     int                  `json:"rows"`
	Stages   []StageResult        `json:"stages"`
	Manual   []clean.ManualResult `json:"-"`
	Duration time.Duration        `json:"duration"`
}

// Stage returns the result of the named stage, or nil if it did not complete.
func (r *Result) Stage(name string) *StageResult {
	for i := range r.Stages {
		if r.Stages[i].Stage == name {
			return &r.Stages[i]
		}
	}
	return nil
}

// StageError reports the stage at which a run stopped.
type StageError struct {
	Stage   string
	Catalog string // catalog the stage was producing
	Err     error
}

func (e *StageError) Error() string {
	if e.Catalog == "" {
		return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("stage %s (%s): %v", e.Stage, e.Catalog, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
