// Package engine generates configuration for the external source-extraction
// engine and runs it once per detection pass.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Pass names used by the pipeline.
const (
	PassBright = "bright"
	PassFaint  = "faint"
)

// Settings are engine configuration keys and values. Values are rendered
// with fmt.Sprint so JSON numbers and strings both work.
type Settings map[string]interface{}

// Clone returns an independent copy.
func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Keys returns the setting names in sorted order.
func (s Settings) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BrightSettings are the hot-pass detection parameters: large minimum area,
// high threshold, coarse background.
func BrightSettings() Settings {
	return Settings{
		"DETECT_MINAREA":  140,
		"DETECT_THRESH":   2.2,
		"DEBLEND_NTHRESH": 64,
		"DEBLEND_MINCONT": 0.04,
		"CLEAN_PARAM":     1.0,
		"BACK_SIZE":       400,
		"BACK_FILTERSIZE": 5,
		"BACKPHOTO_TYPE":  "LOCAL",
		"BACKPHOTO_THICK": 200,
		"PIXEL_SCALE":     0.03,
	}
}

// FaintSettings are the cold-pass detection parameters.
func FaintSettings() Settings {
	return Settings{
		"DETECT_MINAREA":  18,
		"DETECT_THRESH":   1.0,
		"DEBLEND_NTHRESH": 64,
		"DEBLEND_MINCONT": 0.065,
		"CLEAN_PARAM":     1.0,
		"BACK_SIZE":       100,
		"BACK_FILTERSIZE": 3,
		"BACKPHOTO_TYPE":  "LOCAL",
		"BACKPHOTO_THICK": 200,
		"PIXEL_SCALE":     0.03,
	}
}

// Pass is one detection run over an image.
type Pass struct {
	Name     string // PassBright or PassFaint
	Image    string
	Weight   string // weight map; empty disables weighting
	Catalog  string // output catalog path
	Settings Settings
}

// Extractor runs a detection pass and returns the path of the catalog it
// produced.
type Extractor interface {
	Extract(ctx context.Context, p Pass) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, p Pass) (string, error)

func (f ExtractorFunc) Extract(ctx context.Context, p Pass) (string, error) { return f(ctx, p) }

// Failure reports an engine run that failed or produced no catalog.
type Failure struct {
	Pass     string
	Image    string
	ExitCode int // -1 when the process never ran or was killed
	Stderr   string
	Msg      string
	Err      error
}

func (e *Failure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "engine %s pass on %s: %s", e.Pass, e.Image, e.Msg)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if tail := lastLines(e.Stderr, 3); tail != "" {
		fmt.Fprintf(&b, " (stderr: %s)", tail)
	}
	return b.String()
}

func (e *Failure) Unwrap() error { return e.Err }

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, " | "))
}
