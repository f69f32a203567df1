package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"cosmos/sieve/internal/monitoring"
)

// BinaryEnv overrides the engine binary.
const BinaryEnv = "SIEVE_SEXTRACTOR"

// binaryNames are searched on PATH in order.
var binaryNames = []string{"sex", "source-extractor"}

// FindBinary resolves the engine executable: configured if set, then
// $SIEVE_SEXTRACTOR, then the usual names on PATH.
func FindBinary(configured string) (string, error) {
	candidates := make([]string, 0, 4)
	if configured != "" {
		candidates = append(candidates, configured)
	}
	if env := os.Getenv(BinaryEnv); env != "" {
		candidates = append(candidates, env)
	}
	candidates = append(candidates, binaryNames...)

	for _, c := range candidates {
		if path, err := exec.LookPath(c); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("source extractor not found (tried %s); set %s or engine.binary",
		strings.Join(candidates, ", "), BinaryEnv)
}

// SExtractor runs the SExtractor binary as a subprocess.
type SExtractor struct {
	Binary  string
	Columns []string      // output parameters, one per line in the .param file
	Timeout time.Duration // 0 means no limit beyond ctx
	// KeepConfig leaves the generated .param and .config files on disk.
	KeepConfig bool
}

// ParamPath returns the parameter file written next to catalog.
func ParamPath(catalog string) string {
	return strings.TrimSuffix(catalog, filepath.Ext(catalog)) + ".param"
}

// ConfigPath returns the configuration file written next to catalog.
func ConfigPath(catalog string) string {
	return strings.TrimSuffix(catalog, filepath.Ext(catalog)) + ".config"
}

// WriteParams writes the output column list, one name per line.
func WriteParams(w io.Writer, columns []string) error {
	for _, c := range columns {
		if _, err := fmt.Fprintln(w, c); err != nil {
			return err
		}
	}
	return nil
}

// WriteConfig writes the per-pass configuration: file locations first, then
// the detection settings in sorted order.
func WriteConfig(w io.Writer, p Pass, paramPath string) error {
	lines := [][2]string{
		{"CATALOG_NAME", p.Catalog},
		{"PARAMETERS_NAME", paramPath},
	}
	if p.Weight != "" {
		lines = append(lines, [2]string{"WEIGHT_TYPE", "MAP_WEIGHT"}, [2]string{"WEIGHT_IMAGE", p.Weight})
	} else {
		lines = append(lines, [2]string{"WEIGHT_TYPE", "NONE"})
	}
	for _, k := range p.Settings.Keys() {
		lines = append(lines, [2]string{k, fmt.Sprint(p.Settings[k])})
	}
	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%-16s %s\n", l[0], l[1]); err != nil {
			return err
		}
	}
	return nil
}

// Extract writes the pass's .param and .config files, runs the engine, and
// returns the catalog path once the engine has written it.
func (s *SExtractor) Extract(ctx context.Context, p Pass) (string, error) {
	fail := func(code int, stderr, msg string, err error) (string, error) {
		return "", &Failure{Pass: p.Name, Image: p.Image, ExitCode: code, Stderr: stderr, Msg: msg, Err: err}
	}
	if p.Catalog == "" {
		return fail(-1, "", "no output catalog path", nil)
	}

	paramPath := ParamPath(p.Catalog)
	configPath := ConfigPath(p.Catalog)
	if err := writeFile(paramPath, func(w io.Writer) error { return WriteParams(w, s.Columns) }); err != nil {
		return fail(-1, "", "writing parameter file", err)
	}
	if err := writeFile(configPath, func(w io.Writer) error { return WriteConfig(w, p, paramPath) }); err != nil {
		return fail(-1, "", "writing config file", err)
	}
	if !s.KeepConfig {
		defer os.Remove(paramPath)
		defer os.Remove(configPath)
	}
	// a stale catalog would hide an engine that wrote nothing
	if err := os.Remove(p.Catalog); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fail(-1, "", "removing stale catalog", err)
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, s.Binary, p.Image, "-c", configPath)
	// SIGTERM first, SIGKILL after the grace period
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = 3 * time.Second

	stderr := &cappedBuffer{limit: 10 * 1024}
	cmd.Stderr = stderr
	cmd.Stdout = stderr

	monitoring.Logf("[engine] %s pass: %s %s -c %s", p.Name, filepath.Base(s.Binary), p.Image, configPath)
	start := time.Now()
	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return fail(code, stderr.String(), "engine run failed", err)
	}
	if _, err := os.Stat(p.Catalog); err != nil {
		return fail(0, stderr.String(), "no catalog produced", err)
	}
	monitoring.Debugf("[engine] %s pass finished in %s", p.Name, time.Since(start).Round(time.Millisecond))
	return p.Catalog, nil
}

func writeFile(path string, fill func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	var buf bytes.Buffer
	if err := fill(&buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// cappedBuffer keeps the first limit bytes written to it.
type cappedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	remaining := c.limit - c.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	toWrite := p
	if len(toWrite) > remaining {
		toWrite = toWrite[:remaining]
	}
	_, err := c.buf.Write(toWrite)
	// report the full length so the process never sees a short write
	return len(p), err
}

func (c *cappedBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}
