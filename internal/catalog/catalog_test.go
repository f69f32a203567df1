package catalog

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleCatalog = `#   1 NUMBER                 Running object number
#   2 X_IMAGE                Object position along x                                    [pixel]
#   3 Y_IMAGE                Object position along y                                    [pixel]
#   4 FLUX_APER              Flux vector within fixed circular aperture(s)              [count]
#   6 FLAGS                  Extraction flags
# produced by a test fixture
       1    100.5    200.25   12.0   13.0    0
       2    300      400      1e3    2e3     3
None      5.5      6.5      7      8       0
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

func TestRead_Sample(t *testing.T) {
	c, err := Read(strings.NewReader(sampleCatalog))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	wantCols := []string{"NUMBER", "X_IMAGE", "Y_IMAGE", "FLUX_APER", "FLUX_APER_2", "FLAGS"}
	if diff := cmp.Diff(wantCols, c.ColumnNames()); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	if len(c.Header) != 6 {
		t.Errorf("header lines = %d, want 6", len(c.Header))
	}
	if c.Header[5] != "# produced by a test fixture" {
		t.Errorf("free-form header line not preserved: %q", c.Header[5])
	}
	if c.Len() != 3 {
		t.Fatalf("records = %d, want 3", c.Len())
	}
	if c.Records[0].X != 100.5 || c.Records[0].Y != 200.25 {
		t.Errorf("record 0 position = (%v,%v)", c.Records[0].X, c.Records[0].Y)
	}
	if c.Records[1].Flags != 3 {
		t.Errorf("record 1 flags = %d, want 3", c.Records[1].Flags)
	}
	if c.Records[2].Number != NullNumber {
		t.Errorf("placeholder NUMBER should load as NullNumber, got %d", c.Records[2].Number)
	}
	if got := c.Records[1].Extra["FLUX_APER_2"]; got != "2e3" {
		t.Errorf("vector element token = %q, want %q", got, "2e3")
	}
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{"no header", "1 2 3\n", "data row before any column definition"},
		{"empty", "", "no column definitions"},
		{"short row", "#   1 NUMBER\n#   2 X_IMAGE\n1\n", "row has 1 fields"},
		{"bad number", "#   1 NUMBER\n#   2 X_IMAGE\n1 abc\n", "bad field"},
		{"bad integer", "#   1 NUMBER\n#   2 X_IMAGE\n1.5 2\n", "bad field"},
		{"out of order", "#   2 NUMBER\n", "first column numbered 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("error %T is not a *FormatError: %v", err, err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q should contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.cat"))
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FormatError, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error should wrap os.ErrNotExist: %v", err)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	path := writeFile(t, "in.cat", sampleCatalog)
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	out := filepath.Join(t.TempDir(), "out.cat")
	if err := c.Write(out); err != nil {
		t.Fatalf("Write: %v", err)
	}
	back, err := Open(out)
	if err != nil {
		t.Fatalf("re-Open: %v", err)
	}

	if diff := cmp.Diff(c.Header, back.Header); diff != "" {
		t.Errorf("header changed (-orig +back):\n%s", diff)
	}
	if diff := cmp.Diff(c.Records, back.Records); diff != "" {
		t.Errorf("records changed (-orig +back):\n%s", diff)
	}
}

func TestValueAndSetValue(t *testing.T) {
	c, err := Read(strings.NewReader(sampleCatalog))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	v, err := c.Value(0, ColX)
	if err != nil || v != 100.5 {
		t.Errorf("Value(0, X_IMAGE) = %v, %v", v, err)
	}
	v, err = c.Value(1, "FLUX_APER")
	if err != nil || v != 1000 {
		t.Errorf("Value(1, FLUX_APER) = %v, %v", v, err)
	}
	if err := c.SetValue(0, ColY, 42); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if c.Records[0].Y != 42 {
		t.Errorf("SetValue did not update Y: %v", c.Records[0].Y)
	}

	_, err = c.Value(0, "MAG_AUTO")
	var uce *UnknownColumnError
	if !errors.As(err, &uce) {
		t.Fatalf("expected *UnknownColumnError, got %v", err)
	}
	if uce.Column != "MAG_AUTO" {
		t.Errorf("UnknownColumnError.Column = %q", uce.Column)
	}
	if err := c.SetValue(0, "MAG_AUTO", 1); !errors.As(err, &uce) {
		t.Errorf("SetValue on unknown column: %v", err)
	}
	if err := c.Require(ColNumber, ColX, "SNR"); !errors.As(err, &uce) || uce.Column != "SNR" {
		t.Errorf("Require should fail on SNR: %v", err)
	}
}

func TestDeletePreservesOrder(t *testing.T) {
	c := New([]Column{{Name: ColNumber}, {Name: ColX}}, 5)
	for i := range c.Records {
		c.Records[i].X = float64(i * 10)
	}
	if err := c.Delete(2); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got := make([]float64, 0, c.Len())
	for _, r := range c.Records {
		got = append(got, r.X)
	}
	if diff := cmp.Diff([]float64{0, 10, 30, 40}, got); diff != "" {
		t.Errorf("order after delete (-want +got):\n%s", diff)
	}
	if err := c.Delete(9); err == nil {
		t.Error("expected out-of-range error")
	}
}

func TestRenumberContiguous(t *testing.T) {
	c := New([]Column{{Name: ColNumber}}, 0)
	for _, n := range []int{7, 7, 0, 3, 99} {
		c.Records = append(c.Records, Record{Number: n})
	}
	r := Renumber(c)
	for i, rec := range r.Records {
		if rec.Number != i+1 {
			t.Errorf("record %d Number = %d, want %d", i, rec.Number, i+1)
		}
	}
	if c.Records[0].Number != 7 {
		t.Error("Renumber must not modify its input")
	}
}

func TestRenumberFile(t *testing.T) {
	path := writeFile(t, "r.cat", "#   1 NUMBER\n#   2 X_IMAGE\n5 1.0\n9 2.0\n2 3.0\n")
	if err := RenumberFile(path); err != nil {
		t.Fatalf("RenumberFile: %v", err)
	}
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i, rec := range c.Records {
		if rec.Number != i+1 {
			t.Errorf("row %d Number = %d", i, rec.Number)
		}
		if rec.X != float64(i+1) {
			t.Errorf("row %d X = %v, order changed", i, rec.X)
		}
	}
}

func TestAddColumn(t *testing.T) {
	c := NewWithColumns(ColNumber, ColX)
	c.AddColumn(ColIsStar, "Revised Star-Galaxy Classifier")
	c.AddColumn(ColIsStar, "ignored")

	if got := c.ColumnNames(); len(got) != 3 || got[2] != ColIsStar {
		t.Fatalf("columns = %v", got)
	}
	if c.Columns[2].Index != 3 {
		t.Errorf("IS_STAR index = %d, want 3", c.Columns[2].Index)
	}
	last := c.Header[len(c.Header)-1]
	if !strings.Contains(last, "IS_STAR") || !strings.Contains(last, "Revised Star-Galaxy Classifier") {
		t.Errorf("header line = %q", last)
	}

	// the generated line must parse back as the same column
	c.Records = []Record{{Number: 1, IsStar: new(bool)}}
	var sb strings.Builder
	if _, err := c.WriteTo(&sb); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	back, err := Read(strings.NewReader(sb.String()))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if diff := cmp.Diff(c.ColumnNames(), back.ColumnNames()); diff != "" {
		t.Errorf("schema mismatch after round trip:\n%s", diff)
	}
	if back.Records[0].IsStar == nil || *back.Records[0].IsStar {
		t.Errorf("IS_STAR should read back as false")
	}
}

func TestOptionalColumnsRoundTrip(t *testing.T) {
	c := NewWithColumns(ColNumber, ColSNR)
	inf := math.Inf(1)
	c.Records = []Record{{Number: 1, SNR: &inf}, {Number: 2}}

	var sb strings.Builder
	if _, err := c.WriteTo(&sb); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	back, err := Read(strings.NewReader(sb.String()))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if back.Records[0].SNR == nil || !math.IsInf(*back.Records[0].SNR, 1) {
		t.Errorf("infinite SNR lost: %v", back.Records[0].SNR)
	}
	if back.Records[1].SNR != nil {
		t.Errorf("unset SNR should stay unset, got %v", *back.Records[1].SNR)
	}
}

func TestSameSchema(t *testing.T) {
	a := NewWithColumns(ColNumber, ColX, ColY)
	b := NewWithColumns(ColNumber, ColX, ColY)
	if ok, _ := SameSchema(a, b); !ok {
		t.Error("identical schemas reported different")
	}
	c := NewWithColumns(ColNumber, ColY, ColX)
	if ok, col := SameSchema(a, c); ok || col != ColY {
		t.Errorf("SameSchema = %v, %q", ok, col)
	}
	d := NewWithColumns(ColNumber, ColX)
	if ok, col := SameSchema(a, d); ok || col != ColY {
		t.Errorf("SameSchema shorter = %v, %q", ok, col)
	}
}

func TestFilterKeepsHeader(t *testing.T) {
	c, err := Read(strings.NewReader(sampleCatalog))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	f := c.Filter(func(r Record) bool { return r.Number != NullNumber })
	if f.Len() != 2 {
		t.Errorf("Filter kept %d rows, want 2", f.Len())
	}
	if diff := cmp.Diff(c.Header, f.Header); diff != "" {
		t.Errorf("Filter changed header:\n%s", diff)
	}
	f.Header[0] = "changed"
	if c.Header[0] == "changed" {
		t.Error("Filter must copy the header slice")
	}
}

func TestIsKnownColumn(t *testing.T) {
	for _, name := range []string{ColNumber, ColMagAuto, ColIsStar, ColSNR} {
		if !IsKnownColumn(name) {
			t.Errorf("IsKnownColumn(%q) = false, want true", name)
		}
	}
	if IsKnownColumn("FLUX_APER") {
		t.Error("FLUX_APER is carried as an extra column, not a typed attribute")
	}
}
