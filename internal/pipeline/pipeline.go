// Package pipeline runs the cleaning stages in order for one image: the two
// extraction passes, segmentation filtering, merge, classification, SNR, the
// field-of-view cut, diffraction masking, and final cleanup. Every stage
// writes its catalog under a derived name so a run can be traced file by file.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"cosmos/sieve/internal/catalog"
	"cosmos/sieve/internal/clean"
	"cosmos/sieve/internal/config"
	"cosmos/sieve/internal/engine"
	"cosmos/sieve/internal/ledger"
	"cosmos/sieve/internal/monitoring"
	"cosmos/sieve/internal/segmap"
)

type runner struct {
	opts   Options
	cfg    *config.Config
	names  Names
	spikes clean.SpikeParams
	rec    Recorder
	runID  string
	res    *Result
}

// Run executes the pipeline. The returned Result is non-nil whenever the run
// started, including on failure; a failure is a *StageError.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	filter := opts.Filter
	if filter == "" {
		filter = cfg.Filter
	}
	spikes, err := clean.LookupSpikes(cfg.Spikes, filter)
	if err != nil {
		return nil, err
	}
	names := NamesFor(opts.Dir, opts.OutName)
	if names.Dir != "" {
		if err := os.MkdirAll(names.Dir, 0755); err != nil {
			return nil, fmt.Errorf("creating output dir: %w", err)
		}
	}

	r := &runner{opts: opts, cfg: cfg, names: names, spikes: spikes, rec: opts.Recorder}
	if r.rec == nil {
		r.rec = NopRecorder{}
	}
	r.runID, err = r.rec.StartRun(ledger.Run{
		OutName: opts.OutName,
		Image:   opts.Image,
		Weight:  opts.Weight,
		Filter:  clean.FilterName(filter),
	})
	if err != nil {
		monitoring.Logf("[pipeline] Warning: run not recorded: %v", err)
		r.rec = NopRecorder{}
		r.runID = uuid.NewString()
	}
	r.res = &Result{RunID: r.runID, OutName: opts.OutName, Final: names.Final}

	monitoring.Logf("[pipeline] Run %s: %s -> %s (%s)", ShortID(r.runID), opts.Image, names.Final, clean.FilterName(filter))
	start := time.Now()
	err = r.run(ctx)
	r.res.Duration = time.Since(start)

	if err != nil {
		stage := ""
		var se *StageError
		if errors.As(err, &se) {
			stage = se.Stage
		}
		if ferr := r.rec.FinishRun(r.runID, ledger.StatusFailed, stage, err.Error(), 0); ferr != nil {
			monitoring.Logf("[pipeline] Warning: failed to record run outcome: %v", ferr)
		}
		monitoring.Logf("[pipeline] FAILED: %v", err)
		return r.res, err
	}

	if ferr := r.rec.FinishRun(r.runID, ledger.StatusSucceeded, "", "", r.res.Rows); ferr != nil {
		monitoring.Logf("[pipeline] Warning: failed to record run outcome: %v", ferr)
	}
	if opts.Clean {
		removeIntermediates(names)
	}
	monitoring.Logf("[pipeline] Done: %d object(s) in %s, %s",
		r.res.Rows, names.Final, FormatDurationShort(r.res.Duration.Milliseconds()))
	return r.res, nil
}

type stageFunc func() (*catalog.Catalog, []clean.Deletion, error)

func (r *runner) run(ctx context.Context) error {
	bright, err := r.extract(ctx, StageExtractBright, engine.PassBright, r.names.Bright, r.cfg.Engine.Bright)
	if err != nil {
		return err
	}
	faint, err := r.extract(ctx, StageExtractFaint, engine.PassFaint, r.names.Faint, r.cfg.Engine.Faint)
	if err != nil {
		return err
	}

	filtered, err := r.stage(ctx, StageSegment, r.names.FilteredFaint, func() (*catalog.Catalog, []clean.Deletion, error) {
		width, height, err := r.extent()
		if err != nil {
			return nil, nil, err
		}
		m, err := segmap.FromCatalog(bright, width, height, r.cfg.Margin)
		if err != nil {
			return nil, nil, err
		}
		monitoring.Debugf("[pipeline] Segmentation map %dx%d, %d pixel(s) claimed", width, height, m.Claimed())
		if r.opts.WriteSegMap {
			if err := m.WritePNG(r.names.SegMap); err != nil {
				return nil, nil, err
			}
		}
		out, err := segmap.Filter(m, faint)
		return out, nil, err
	})
	if err != nil {
		return err
	}

	merged, err := r.stage(ctx, StageMerge, r.names.Merge, func() (*catalog.Catalog, []clean.Deletion, error) {
		out, err := clean.Merge(bright, filtered)
		return out, nil, err
	})
	if err != nil {
		return err
	}

	classified, err := r.stage(ctx, StageClassify, r.names.Class, func() (*catalog.Catalog, []clean.Deletion, error) {
		out, err := clean.Classify(merged, r.cfg.Classifier)
		return out, nil, err
	})
	if err != nil {
		return err
	}

	withSNR, err := r.stage(ctx, StageSNR, r.names.SNR, func() (*catalog.Catalog, []clean.Deletion, error) {
		out, err := clean.AddSNR(classified)
		return out, nil, err
	})
	if err != nil {
		return err
	}

	inField, err := r.stage(ctx, StageEdge, r.names.Edge, func() (*catalog.Catalog, []clean.Deletion, error) {
		out, err := clean.EdgeFilter(withSNR, r.cfg.Field)
		return out, nil, err
	})
	if err != nil {
		return err
	}

	// the masked catalog is only kept in memory; finalize writes the result
	masked, err := r.stage(ctx, StageDiffraction, "", func() (*catalog.Catalog, []clean.Deletion, error) {
		masks, err := clean.SpikeMasks(inField, r.spikes, r.cfg.MagCutoff)
		if err != nil {
			return nil, nil, err
		}
		return clean.ApplyMasks(ctx, inField, masks, clean.MaskOptions{
			Workers:     r.cfg.MaskWorkers,
			ExemptStars: true,
			Reason:      clean.ReasonDiffraction,
		})
	})
	if err != nil {
		return err
	}

	final, err := r.stage(ctx, StageFinalize, r.names.Final, func() (*catalog.Catalog, []clean.Deletion, error) {
		return clean.Finalize(masked)
	})
	if err != nil {
		return err
	}
	r.res.Rows = final.Len()

	if len(r.opts.Manual) > 0 {
		return r.manual(ctx)
	}
	return nil
}

// extract runs one engine pass and loads the catalog it wrote.
func (r *runner) extract(ctx context.Context, stage, pass, path string, settings engine.Settings) (*catalog.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StageError{Stage: stage, Catalog: path, Err: err}
	}
	start := time.Now()
	got, err := r.opts.Extractor.Extract(ctx, engine.Pass{
		Name:     pass,
		Image:    r.opts.Image,
		Weight:   r.opts.Weight,
		Catalog:  path,
		Settings: settings,
	})
	if err != nil {
		return nil, &StageError{Stage: stage, Catalog: path, Err: err}
	}
	c, err := catalog.Open(got)
	if err != nil {
		return nil, &StageError{Stage: stage, Catalog: got, Err: err}
	}
	r.record(stage, got, c.Len(), time.Since(start), nil)
	return c, nil
}

// stage runs fn, writes its catalog to path unless path is empty, and
// records the outcome.
func (r *runner) stage(ctx context.Context, name, path string, fn stageFunc) (*catalog.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StageError{Stage: name, Catalog: path, Err: err}
	}
	start := time.Now()
	c, deleted, err := fn()
	if err != nil {
		return nil, &StageError{Stage: name, Catalog: path, Err: err}
	}
	if path != "" {
		if err := c.Write(path); err != nil {
			return nil, &StageError{Stage: name, Catalog: path, Err: err}
		}
	}
	r.record(name, path, c.Len(), time.Since(start), deleted)
	return c, nil
}

func (r *runner) record(stage, path string, rows int, d time.Duration, deleted []clean.Deletion) {
	r.res.Stages = append(r.res.Stages, StageResult{Stage: stage, Path: path, Rows: rows, Duration: d, Deleted: deleted})

	var digest string
	if path != "" {
		sum, err := ledger.FileDigest(path)
		if err != nil {
			monitoring.Debugf("[pipeline] Digest of %s failed: %v", path, err)
		}
		digest = sum
	}
	err := r.rec.RecordStage(r.runID, ledger.Stage{
		Stage:      stage,
		Path:       path,
		Rows:       rows,
		SHA256:     digest,
		DurationMS: d.Milliseconds(),
	})
	if err != nil {
		monitoring.Logf("[pipeline] Warning: failed to record stage %s: %v", stage, err)
	}
	if err := r.rec.RecordDeletions(r.runID, LedgerDeletions(stage, path, deleted)); err != nil {
		monitoring.Logf("[pipeline] Warning: failed to record deletions for %s: %v", stage, err)
	}

	monitoring.Debugf("[pipeline] %s: %d row(s) in %s", stage, rows, FormatDurationShort(d.Milliseconds()))
	if len(deleted) > 0 {
		monitoring.Logf("[pipeline] %s deleted %d object(s)", stage, len(deleted))
		monitoring.Debugf("[pipeline] %s deleted numbers %v", stage, clean.DeletedNumbers(deleted))
	}
}

func (r *runner) extent() (int, int, error) {
	if r.opts.Width > 0 && r.opts.Height > 0 {
		return r.opts.Width, r.opts.Height, nil
	}
	return segmap.ImageExtent(r.opts.Image)
}

// manual applies the blocks whose catalog resolves to the final catalog.
// A malformed block is reported in Result.Manual and does not fail the run.
func (r *runner) manual(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: StageManual, Catalog: r.names.Final, Err: err}
	}
	target := filepath.Clean(r.names.Final)
	results, err := clean.ApplyManualMasks(ctx, r.opts.Manual, clean.ManualOptions{
		Dir: r.names.Dir,
		Match: func(name string) bool {
			p := name
			if !filepath.IsAbs(p) {
				p = filepath.Join(r.names.Dir, p)
			}
			return filepath.Clean(p) == target
		},
		Workers: r.cfg.MaskWorkers,
	})
	r.res.Manual = results
	if err != nil {
		return &StageError{Stage: StageManual, Catalog: r.names.Final, Err: err}
	}

	start := time.Now()
	var deleted []clean.Deletion
	applied := 0
	for _, mr := range results {
		if mr.Err != nil {
			continue
		}
		applied++
		deleted = append(deleted, mr.Deleted...)
	}
	if applied == 0 {
		return nil
	}
	r.res.Rows -= len(deleted)
	r.record(StageManual, r.names.Final, r.res.Rows, time.Since(start), deleted)
	return nil
}

func removeIntermediates(n Names) {
	removed := 0
	for _, path := range n.Intermediates() {
		err := os.Remove(path)
		switch {
		case err == nil:
			removed++
		case !errors.Is(err, os.ErrNotExist):
			monitoring.Logf("[pipeline] Warning: could not remove %s: %v", path, err)
		}
	}
	monitoring.Debugf("[pipeline] Removed %d intermediate file(s)", removed)
}
