package catalog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// columnLine matches "#   3 Y_IMAGE   Object position along y   [pixel]".
var columnLine = regexp.MustCompile(`^#\s*(\d+)\s+([A-Za-z_][A-Za-z0-9_().:-]*)\s*(.*?)\s*(?:\[([^\]]*)\])?\s*$`)

// Open reads the catalog at path.
func Open(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FormatError{Path: path, Msg: "cannot open", Err: err}
	}
	defer f.Close()

	c, err := Read(f)
	if err != nil {
		var fe *FormatError
		if errors.As(err, &fe) && fe.Path == "" {
			fe.Path = path
		}
		return nil, err
	}
	c.Path = path
	return c, nil
}

// Read parses a catalog from r.
func Read(r io.Reader) (*Catalog, error) {
	c := &Catalog{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	inData := false
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if trimmed[0] == HeaderMarker {
			if inData {
				// comment lines inside the data block are not header
				continue
			}
			c.Header = append(c.Header, line)
			if m := columnLine.FindStringSubmatch(trimmed); m != nil {
				idx, _ := strconv.Atoi(m[1])
				if err := c.defineColumn(idx, m[2], m[3], m[4]); err != nil {
					return nil, &FormatError{Line: lineNo, Msg: err.Error()}
				}
			}
			continue
		}

		if !inData {
			if len(c.Columns) == 0 {
				return nil, &FormatError{Line: lineNo, Msg: "data row before any column definition"}
			}
			c.buildIndex()
			inData = true
		}

		toks := strings.Fields(trimmed)
		if len(toks) != len(c.Columns) {
			return nil, &FormatError{
				Line: lineNo,
				Msg:  fmt.Sprintf("row has %d fields, schema has %d columns", len(toks), len(c.Columns)),
			}
		}
		var rec Record
		for i, tok := range toks {
			if err := rec.setToken(c.Columns[i].Name, tok); err != nil {
				return nil, &FormatError{Line: lineNo, Msg: "bad field", Err: err}
			}
		}
		c.Records = append(c.Records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, &FormatError{Msg: "read failed", Err: err}
	}
	if len(c.Columns) == 0 {
		return nil, &FormatError{Msg: "no column definitions in header"}
	}
	c.buildIndex()
	return c, nil
}

// defineColumn appends a header column. A gap in the numbering means the
// previous column is a vector; its trailing elements are named NAME_2, NAME_3...
func (c *Catalog) defineColumn(idx int, name, comment, unit string) error {
	next := 1
	if n := len(c.Columns); n > 0 {
		last := c.Columns[n-1]
		next = last.Index + 1
		if idx < next {
			return fmt.Errorf("column %d (%s) out of order after column %d", idx, name, last.Index)
		}
		base := last
		for k := next; k < idx; k++ {
			c.Columns = append(c.Columns, Column{
				Index:   k,
				Name:    fmt.Sprintf("%s_%d", base.Name, k-base.Index+1),
				Comment: base.Comment,
				Unit:    base.Unit,
			})
		}
	} else if idx != 1 {
		return fmt.Errorf("first column numbered %d, want 1", idx)
	}
	c.Columns = append(c.Columns, Column{Index: idx, Name: name, Comment: comment, Unit: unit})
	return nil
}

// WriteTo writes the header block and rows to w.
func (c *Catalog) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	for _, h := range c.Header {
		k, err := bw.WriteString(h + "\n")
		n += int64(k)
		if err != nil {
			return n, err
		}
	}

	names := c.ColumnNames()
	toks := make([]string, len(names))
	for i := range c.Records {
		r := &c.Records[i]
		for j, name := range names {
			toks[j] = fmt.Sprintf("%14s", r.token(name))
		}
		k, err := bw.WriteString(strings.Join(toks, " ") + "\n")
		n += int64(k)
		if err != nil {
			return n, err
		}
	}
	return n, bw.Flush()
}

// Write stores the catalog at path, replacing any existing file.
func (c *Catalog) Write(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating catalog dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}
	if _, err := c.WriteTo(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	c.Path = path
	return nil
}
