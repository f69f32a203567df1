package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cosmos/sieve/internal/monitoring"
)

// Job is one manifest line: an image to run through the pipeline.
type Job struct {
	Image   string `json:"image"`
	Weight  string `json:"weight"`
	OutName string `json:"out_name"`
	Filter  string `json:"filter,omitempty"`
	Line    int    `json:"line"`
}

// BatchConfig controls RunBatch.
type BatchConfig struct {
	Manifest string // file path or "-" for stdin
	Reset    bool   // clear persisted batch state
	MaxRuns  int    // max runs to dispatch; 0 means all
	// StopAfterFailures aborts after this many consecutive failures; 0 never aborts.
	StopAfterFailures int
	// Base is copied for every job; the job fills in Image, Weight, OutName and Filter.
	Base Options
}

// Batch run statuses.
const (
	BatchSucceeded = "succeeded"
	BatchFailed    = "failed"
)

// BatchRunResult is the outcome of one job.
type BatchRunResult struct {
	OutName  string        `json:"out_name"`
	Image    string        `json:"image"`
	Status   string        `json:"status"`
	RunID    string        `json:"run_id,omitempty"`
	Rows     int           `json:"rows"`
	Stage    string        `json:"failed_stage,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// BatchResult summarizes a batch.
type BatchResult struct {
	Runs     []BatchRunResult `json:"runs"`
	Skipped  int              `json:"skipped"`
	Duration time.Duration    `json:"duration"`
}

// Failed counts the failed runs.
func (b *BatchResult) Failed() int {
	n := 0
	for _, r := range b.Runs {
		if r.Status == BatchFailed {
			n++
		}
	}
	return n
}

// RunBatch runs every manifest job in order. A failed job is recorded and the
// batch moves on; jobs that succeeded in an earlier invocation are skipped.
// Only a cancelled ctx or an unreadable manifest stops the batch with an error.
func RunBatch(ctx context.Context, cfg BatchConfig) (*BatchResult, error) {
	jobs, err := ReadManifest(cfg.Manifest)
	if err != nil {
		return nil, err
	}

	statePath := batchStatePath(cfg.Manifest)
	if cfg.Reset {
		err := os.Remove(statePath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to delete batch state: %w", err)
		}
		if err == nil {
			monitoring.Logf("[batch] State reset: deleted %s", statePath)
		}
	}
	state := loadBatchState(statePath, cfg.Manifest)

	monitoring.Logf("[batch] Starting: %d job(s) from %s", len(jobs), cfg.Manifest)
	if n := len(state.Completed); n > 0 {
		monitoring.Logf("[batch] Resuming: %d job(s) already completed, will skip.", n)
	}

	res := &BatchResult{}
	start := time.Now()
	consecutiveFailures := 0

	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			res.Duration = time.Since(start)
			return res, err
		}
		if cfg.MaxRuns > 0 && len(res.Runs) >= cfg.MaxRuns {
			monitoring.Logf("[batch] Max runs reached (%d). Stopping.", cfg.MaxRuns)
			break
		}
		if cfg.StopAfterFailures > 0 && consecutiveFailures >= cfg.StopAfterFailures {
			monitoring.Logf("[batch] %d consecutive failures. Stopping.", consecutiveFailures)
			break
		}
		if state.isCompleted(job.OutName) {
			monitoring.Debugf("[batch] Skipping %s (already completed)", job.OutName)
			res.Skipped++
			continue
		}

		monitoring.Logf("[batch] === Job %d/%d: %s ===", i+1, len(jobs), TruncateMiddle(job.Image, 60))
		opts := cfg.Base
		opts.Image = job.Image
		opts.Weight = job.Weight
		opts.OutName = job.OutName
		if job.Filter != "" {
			opts.Filter = job.Filter
		}

		jobStart := time.Now()
		runRes, runErr := Run(ctx, opts)
		br := BatchRunResult{
			OutName:  job.OutName,
			Image:    job.Image,
			Status:   BatchSucceeded,
			Duration: time.Since(jobStart),
		}
		if runRes != nil {
			br.RunID = runRes.RunID
			br.Rows = runRes.Rows
		}
		if runErr != nil {
			br.Status = BatchFailed
			br.Error = runErr.Error()
			var se *StageError
			if errors.As(runErr, &se) {
				br.Stage = se.Stage
			}
		}

		state.record(br)
		if err := state.save(); err != nil {
			monitoring.Logf("[batch] Warning: failed to persist batch state: %v", err)
		}
		res.Runs = append(res.Runs, br)

		if runErr != nil {
			if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
				res.Duration = time.Since(start)
				return res, runErr
			}
			consecutiveFailures++
			monitoring.Logf("[batch] FAILED: %s -- %s", job.OutName, TruncateMiddle(br.Error, 80))
			continue
		}
		consecutiveFailures = 0
		monitoring.Logf("[batch] OK: %s, %d object(s), %s",
			job.OutName, br.Rows, FormatDurationShort(br.Duration.Milliseconds()))
	}

	res.Duration = time.Since(start)
	return res, nil
}

// ReadManifest reads batch jobs from a file or stdin. Each line holds
// "image weight out_name [filter]"; a weight of "-" or "none" disables
// weighting. Blank lines and lines starting with '#' are skipped.
func ReadManifest(source string) ([]Job, error) {
	var reader io.Reader
	if source == "-" {
		reader = os.Stdin
	} else {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest '%s': %w", source, err)
		}
		defer f.Close()
		reader = f
	}
	jobs, err := parseManifest(reader)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", source, err)
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("no jobs found in '%s' (blank lines and # comments ignored)", source)
	}
	return jobs, nil
}

func parseManifest(r io.Reader) ([]Job, error) {
	var jobs []Job
	seen := make(map[string]int)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 && len(fields) != 4 {
			return nil, fmt.Errorf("line %d: want 'image weight out_name [filter]', got %d field(s)", lineNo, len(fields))
		}
		job := Job{Image: fields[0], Weight: fields[1], OutName: fields[2], Line: lineNo}
		if w := strings.ToLower(job.Weight); w == "-" || w == "none" {
			job.Weight = ""
		}
		if len(fields) == 4 {
			job.Filter = fields[3]
		}
		if prev, dup := seen[job.OutName]; dup {
			return nil, fmt.Errorf("line %d: output name %q already used on line %d", lineNo, job.OutName, prev)
		}
		seen[job.OutName] = lineNo
		jobs = append(jobs, job)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return jobs, nil
}

// batchState tracks completed jobs across batch restarts.
type batchState struct {
	Manifest  string            `json:"manifest"`
	Completed map[string]string `json:"completed"` // out_name -> run ID
	Runs      []batchStateRun   `json:"runs"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
	path      string
}

type batchStateRun struct {
	OutName     string `json:"out_name"`
	Status      string `json:"status"`
	RunID       string `json:"run_id,omitempty"`
	Rows        int    `json:"rows"`
	Error       string `json:"error,omitempty"`
	DurationMS  int64  `json:"duration_ms"`
	CompletedAt string `json:"completed_at"`
}

func newBatchState(path, manifest string) *batchState {
	now := time.Now().UTC().Format(time.RFC3339)
	return &batchState{
		Manifest:  manifest,
		Completed: make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
		path:      path,
	}
}

func loadBatchState(path, manifest string) *batchState {
	data, err := os.ReadFile(path)
	if err != nil {
		return newBatchState(path, manifest)
	}
	var state batchState
	if err := json.Unmarshal(data, &state); err != nil {
		monitoring.Logf("[batch] Warning: ignoring unreadable state %s: %v", path, err)
		return newBatchState(path, manifest)
	}
	state.path = path
	if state.Completed == nil {
		state.Completed = make(map[string]string)
	}
	return &state
}

func (s *batchState) save() error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing batch state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("writing batch state to %s: %w", s.path, err)
	}
	return nil
}

func (s *batchState) isCompleted(outName string) bool {
	_, ok := s.Completed[outName]
	return ok
}

func (s *batchState) record(r BatchRunResult) {
	now := time.Now().UTC().Format(time.RFC3339)
	if r.Status == BatchSucceeded {
		s.Completed[r.OutName] = r.RunID
	}
	s.Runs = append(s.Runs, batchStateRun{
		OutName:     r.OutName,
		Status:      r.Status,
		RunID:       r.RunID,
		Rows:        r.Rows,
		Error:       r.Error,
		DurationMS:  r.Duration.Milliseconds(),
		CompletedAt: now,
	})
	s.UpdatedAt = now
}

// batchStatePath puts the state next to the manifest: jobs.txt -> jobs.batch-state.json.
func batchStatePath(manifest string) string {
	if manifest == "-" {
		return filepath.Join(os.TempDir(), "sieve-stdin.batch-state.json")
	}
	dir := filepath.Dir(manifest)
	stem := strings.TrimSuffix(filepath.Base(manifest), filepath.Ext(manifest))
	if stem == "" {
		stem = "manifest"
	}
	return filepath.Join(dir, stem+".batch-state.json")
}

// WriteSummary prints the batch outcome, as JSON when asJSON is set.
func (b *BatchResult) WriteSummary(w io.Writer, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(b, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	failed := b.Failed()
	fmt.Fprintf(w, "\n[batch] === Summary ===\n")
	fmt.Fprintf(w, "  Runs dispatched: %d\n", len(b.Runs))
	fmt.Fprintf(w, "  Succeeded:       %d\n", len(b.Runs)-failed)
	fmt.Fprintf(w, "  Failed:          %d\n", failed)
	fmt.Fprintf(w, "  Skipped:         %d\n", b.Skipped)
	fmt.Fprintf(w, "  Total duration:  %s\n", FormatDurationShort(b.Duration.Milliseconds()))
	if len(b.Runs) > 0 {
		fmt.Fprintf(w, "\n  Run details:\n")
	}
	for i, r := range b.Runs {
		detail := fmt.Sprintf("%d object(s)", r.Rows)
		if r.Status == BatchFailed {
			detail = fmt.Sprintf("%s: %s", r.Stage, TruncateMiddle(r.Error, 60))
		}
		_, err := fmt.Fprintf(w, "    %d. [%s] %s %s -- %s\n", i+1, strings.ToUpper(r.Status), r.OutName,
			FormatDurationShort(r.Duration.Milliseconds()), detail)
		if err != nil {
			return err
		}
	}
	return nil
}
