// Package catalog reads, writes, and manipulates detection catalogs in the
// engine's ASCII_HEAD format: a block of '#' header lines, one per column
// definition plus any free-form comments, followed by whitespace-separated rows.
//
// Header lines are carried verbatim. Known columns are decoded into typed
// Record fields when the catalog is loaded; any other column is carried as a
// raw token in Record.Extra so a catalog round-trips without loss.
package catalog

import (
	"fmt"
	"strings"
)

// HeaderMarker starts every header line.
const HeaderMarker = '#'

// Column is one column definition parsed from the header.
type Column struct {
	Index   int    // 1-based position in a row
	Name    string // e.g. "X_IMAGE"
	Comment string
	Unit    string
}

// Catalog is an ordered table of records sharing one schema.
type Catalog struct {
	Path    string
	Header  []string // verbatim header lines, without trailing newlines
	Columns []Column
	Records []Record

	index map[string]int
}

// New creates a catalog with the given schema and n zero-valued records.
// Header lines are generated from the column definitions.
func New(columns []Column, n int) *Catalog {
	c := &Catalog{}
	for _, col := range columns {
		c.appendColumn(col.Name, col.Comment, col.Unit)
	}
	c.Records = make([]Record, n)
	for i := range c.Records {
		c.Records[i].Number = i + 1
	}
	return c
}

// NewWithColumns creates an empty catalog from bare column names.
func NewWithColumns(names ...string) *Catalog {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n}
	}
	return New(cols, 0)
}

// Len returns the number of records.
func (c *Catalog) Len() int { return len(c.Records) }

func (c *Catalog) buildIndex() {
	c.index = make(map[string]int, len(c.Columns))
	for i, col := range c.Columns {
		if _, dup := c.index[col.Name]; !dup {
			c.index[col.Name] = i
		}
	}
}

// ColumnNames returns the schema as an ordered list of names.
func (c *Catalog) ColumnNames() []string {
	names := make([]string, len(c.Columns))
	for i, col := range c.Columns {
		names[i] = col.Name
	}
	return names
}

// HasColumn reports whether name is part of the schema.
func (c *Catalog) HasColumn(name string) bool {
	if c.index == nil {
		c.buildIndex()
	}
	_, ok := c.index[name]
	return ok
}

// Require returns an UnknownColumnError for the first missing name.
func (c *Catalog) Require(names ...string) error {
	for _, n := range names {
		if !c.HasColumn(n) {
			return &UnknownColumnError{Column: n, Path: c.Path}
		}
	}
	return nil
}

// Value returns the numeric value of column name in row i.
func (c *Catalog) Value(i int, name string) (float64, error) {
	if !c.HasColumn(name) {
		return 0, &UnknownColumnError{Column: name, Path: c.Path}
	}
	if i < 0 || i >= len(c.Records) {
		return 0, fmt.Errorf("row %d out of range [0,%d)", i, len(c.Records))
	}
	f, ok := fields[name]
	if !ok {
		tok := c.Records[i].Extra[name]
		var v float64
		if _, err := fmt.Sscan(tok, &v); err != nil {
			return 0, fmt.Errorf("column %s row %d: %q is not numeric", name, i, tok)
		}
		return v, nil
	}
	v, _ := f.get(&c.Records[i])
	return v, nil
}

// SetValue assigns column name in row i.
func (c *Catalog) SetValue(i int, name string, v float64) error {
	if !c.HasColumn(name) {
		return &UnknownColumnError{Column: name, Path: c.Path}
	}
	if i < 0 || i >= len(c.Records) {
		return fmt.Errorf("row %d out of range [0,%d)", i, len(c.Records))
	}
	f, ok := fields[name]
	if !ok {
		r := &c.Records[i]
		if r.Extra == nil {
			r.Extra = make(map[string]string)
		}
		r.Extra[name] = fmt.Sprint(v)
		return nil
	}
	f.set(&c.Records[i], v)
	return nil
}

// AddColumn appends a column definition and its header line. Adding a column
// that already exists leaves the schema untouched.
func (c *Catalog) AddColumn(name, comment string) {
	if c.HasColumn(name) {
		return
	}
	c.appendColumn(name, comment, "")
}

func (c *Catalog) appendColumn(name, comment, unit string) {
	next := 1
	if n := len(c.Columns); n > 0 {
		next = c.Columns[n-1].Index + 1
	}
	c.Columns = append(c.Columns, Column{Index: next, Name: name, Comment: comment, Unit: unit})
	c.Header = append(c.Header, formatColumnLine(next, name, comment, unit))
	c.buildIndex()
}

func formatColumnLine(index int, name, comment, unit string) string {
	line := fmt.Sprintf("# %3d %-22s %s", index, name, comment)
	if unit != "" {
		line += " [" + unit + "]"
	}
	return strings.TrimRight(line, " ")
}

// WithRecords returns a catalog sharing this catalog's header and schema but
// holding recs. Header and column slices are copied.
func (c *Catalog) WithRecords(recs []Record) *Catalog {
	out := &Catalog{
		Path:    c.Path,
		Header:  append([]string(nil), c.Header...),
		Columns: append([]Column(nil), c.Columns...),
		Records: recs,
	}
	out.buildIndex()
	return out
}

// Clone returns a copy whose record slice can be modified independently.
func (c *Catalog) Clone() *Catalog {
	return c.WithRecords(append([]Record(nil), c.Records...))
}

// Filter returns a new catalog holding the records for which keep returns
// true, in their original order.
func (c *Catalog) Filter(keep func(Record) bool) *Catalog {
	recs := make([]Record, 0, len(c.Records))
	for _, r := range c.Records {
		if keep(r) {
			recs = append(recs, r)
		}
	}
	return c.WithRecords(recs)
}

// Delete removes row i in place, keeping the order of the remaining rows.
func (c *Catalog) Delete(i int) error {
	if i < 0 || i >= len(c.Records) {
		return fmt.Errorf("row %d out of range [0,%d)", i, len(c.Records))
	}
	c.Records = append(c.Records[:i], c.Records[i+1:]...)
	return nil
}

// SameSchema reports whether both catalogs define the same columns in the
// same order. The first differing column is returned when they do not.
func SameSchema(a, b *Catalog) (bool, string) {
	n := len(a.Columns)
	if len(b.Columns) > n {
		n = len(b.Columns)
	}
	for i := 0; i < n; i++ {
		switch {
		case i >= len(a.Columns):
			return false, b.Columns[i].Name
		case i >= len(b.Columns):
			return false, a.Columns[i].Name
		case a.Columns[i].Name != b.Columns[i].Name:
			return false, b.Columns[i].Name
		}
	}
	return true, ""
}

// Renumber returns a copy of c whose NUMBER values run 1..N in row order.
func Renumber(c *Catalog) *Catalog {
	out := c.Clone()
	for i := range out.Records {
		out.Records[i].Number = i + 1
	}
	return out
}

// RenumberFile rewrites the catalog at path with contiguous identifiers.
func RenumberFile(path string) error {
	c, err := Open(path)
	if err != nil {
		return err
	}
	if err := c.Require(ColNumber); err != nil {
		return err
	}
	return Renumber(c).Write(path)
}
