package clean

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cosmos/sieve/internal/catalog"
	"cosmos/sieve/internal/geometry"
	"cosmos/sieve/internal/monitoring"
)

// MaskSpecError reports a malformed block in a manual-mask file. Only the
// block it names is skipped.
type MaskSpecError struct {
	Catalog string
	Line    int
	Msg     string
}

func (e *MaskSpecError) Error() string {
	target := e.Catalog
	if target == "" {
		target = "<no catalog>"
	}
	return fmt.Sprintf("mask spec line %d (%s): %s", e.Line, target, e.Msg)
}

// MaskBlock is the set of polygons listed for one catalog file.
type MaskBlock struct {
	Catalog  string
	Line     int // line of the marker
	Polygons []geometry.Polygon
	Err      error // *MaskSpecError when the block is unusable
}

// ParseMaskSpec reads a manual-mask file. A line starting with '#' names the
// target catalog; the lines after it alternate between x and y vertex lists,
// one pair per polygon. Blank lines are ignored.
func ParseMaskSpec(r io.Reader) ([]MaskBlock, error) {
	var (
		blocks  []MaskBlock
		cur     *MaskBlock
		pending []float64 // x list awaiting its y list
		xLine   int
	)
	fail := func(line int, format string, args ...interface{}) {
		cur.Err = &MaskSpecError{Catalog: cur.Catalog, Line: line, Msg: fmt.Sprintf(format, args...)}
		cur.Polygons = nil
		pending = nil
	}
	closeBlock := func() {
		if cur == nil {
			return
		}
		if cur.Err == nil && pending != nil {
			fail(xLine, "x vertex list has no matching y list")
		}
		blocks = append(blocks, *cur)
		cur = nil
		pending = nil
	}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if line[0] == '#' {
			closeBlock()
			cur = &MaskBlock{Line: lineNo}
			// anything after the name is commentary
			if name := strings.Fields(line[1:]); len(name) > 0 {
				cur.Catalog = name[0]
			} else {
				fail(lineNo, "marker line has no catalog name")
			}
			continue
		}

		if cur == nil {
			// vertex lines before any marker form an orphan block
			cur = &MaskBlock{Line: lineNo}
			fail(lineNo, "vertex list before any catalog marker")
			continue
		}
		if cur.Err != nil {
			continue
		}

		vals, err := parseVertices(line)
		if err != nil {
			fail(lineNo, "%v", err)
			continue
		}
		if pending == nil {
			pending, xLine = vals, lineNo
			continue
		}
		switch {
		case len(vals) != len(pending):
			fail(lineNo, "%d x vertices but %d y vertices", len(pending), len(vals))
		case len(vals) < 3:
			fail(lineNo, "polygon needs at least 3 vertices, got %d", len(vals))
		default:
			poly := make(geometry.Polygon, len(vals))
			for i := range vals {
				poly[i] = geometry.Point{X: pending[i], Y: vals[i]}
			}
			cur.Polygons = append(cur.Polygons, poly)
			pending = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading mask spec: %w", err)
	}
	closeBlock()
	return blocks, nil
}

func parseVertices(line string) ([]float64, error) {
	fields := strings.Fields(line)
	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("vertex %d: %q is not a number", i+1, f)
		}
		vals[i] = v
	}
	return vals, nil
}

// LoadMaskSpec parses the manual-mask file at path.
func LoadMaskSpec(path string) ([]MaskBlock, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening mask spec: %w", err)
	}
	defer f.Close()
	return ParseMaskSpec(f)
}

// ManualOptions controls ApplyManualMasks.
type ManualOptions struct {
	// Dir resolves relative catalog names; empty means the working directory.
	Dir string
	// Match selects which blocks to apply; nil applies all of them.
	Match func(catalogName string) bool
	// Workers is passed through to ApplyMasks.
	Workers int
}

// ManualResult is the outcome of one mask block.
type ManualResult struct {
	Catalog string
	Path    string
	Deleted []Deletion
	Err     error
}

// ApplyManualMasks applies each block's polygons to its catalog file and
// rewrites the file in place without renumbering. Stars are not exempt.
// A failing block is reported in its result and the others still run;
// the returned error is set only when ctx is cancelled.
func ApplyManualMasks(ctx context.Context, blocks []MaskBlock, opts ManualOptions) ([]ManualResult, error) {
	var results []ManualResult
	for _, b := range blocks {
		if opts.Match != nil && !opts.Match(b.Catalog) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res := ManualResult{Catalog: b.Catalog, Err: b.Err}
		if res.Err == nil {
			res.Path = b.Catalog
			if !filepath.IsAbs(res.Path) && opts.Dir != "" {
				res.Path = filepath.Join(opts.Dir, res.Path)
			}
			res.Deleted, res.Err = maskFile(ctx, res.Path, b, opts.Workers)
		}
		if res.Err != nil {
			if errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded) {
				return results, res.Err
			}
			monitoring.Logf("[mask] Skipping %s: %v", b.Catalog, res.Err)
		} else {
			monitoring.Logf("[mask] %s: %d polygon(s), deleted %d object(s)", b.Catalog, len(b.Polygons), len(res.Deleted))
			monitoring.Debugf("[mask] Delete numbers %v", DeletedNumbers(res.Deleted))
		}
		results = append(results, res)
	}
	return results, nil
}

func maskFile(ctx context.Context, path string, b MaskBlock, workers int) ([]Deletion, error) {
	c, err := catalog.Open(path)
	if err != nil {
		return nil, err
	}
	masks := make([]Mask, len(b.Polygons))
	for i, p := range b.Polygons {
		masks[i] = NewMask(p, fmt.Sprintf("%s polygon %d", filepath.Base(b.Catalog), i+1))
	}
	out, deleted, err := ApplyMasks(ctx, c, masks, MaskOptions{Workers: workers, Reason: ReasonManual})
	if err != nil {
		return nil, err
	}
	if len(deleted) == 0 {
		return nil, nil
	}
	if err := out.Write(path); err != nil {
		return nil, err
	}
	return deleted, nil
}
