package clean

import (
	"errors"
	"strings"
	"testing"

	"cosmos/sieve/internal/catalog"
)

func TestBoundaryIsStar(t *testing.T) {
	b := DefaultBoundary
	tests := []struct {
		name     string
		mag, mu  float64 // raw MAG_AUTO and MU_MAX
		wantStar bool
	}{
		{"flat segment below", -7, -10, true},
		{"flat segment above", -7, -9, false},
		{"flat segment on line", -7, -9.8, false},
		// mag' = 20 -> line at 0.9*20-26.9 = -8.9
		{"sloped below", -5, -9.5, true},
		{"sloped above", -5, -8.0, false},
		{"at x0 uses slope", -6, -10.0, true},
		{"at x0 above slope", -6, -9.0, false},
		{"faint cut", 0, -50, false},
		{"beyond faint cut", 1, -50, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.IsStar(tt.mag, tt.mu); got != tt.wantStar {
				t.Errorf("IsStar(%v, %v) = %v, want %v", tt.mag, tt.mu, got, tt.wantStar)
			}
		})
	}
}

func TestBoundaryMonotoneInSurfaceBrightness(t *testing.T) {
	b := DefaultBoundary
	for mag := -12.0; mag <= 2; mag += 0.25 {
		wasStar := false
		// walk from faint to bright surface brightness
		for mu := 0.0; mu >= -30; mu -= 0.1 {
			star := b.IsStar(mag, mu)
			if wasStar && !star {
				t.Fatalf("mag=%v: lowering mu to %v flipped star to galaxy", mag, mu)
			}
			wasStar = star
		}
	}
}

func TestClassify(t *testing.T) {
	in := catalog.NewWithColumns(catalog.OutputColumns...)
	in.Records = []catalog.Record{star(1, 10, 10, 1), obj(2, 20, 20, 2)}

	out, err := Classify(in, DefaultBoundary)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !out.HasColumn(catalog.ColIsStar) {
		t.Fatal("IS_STAR column missing")
	}
	last := out.Header[len(out.Header)-1]
	if !strings.Contains(last, "Revised Star-Galaxy Classifier") {
		t.Errorf("IS_STAR header line = %q", last)
	}
	if !out.Records[0].Star() || out.Records[1].Star() {
		t.Errorf("labels = %v, %v", out.Records[0].Star(), out.Records[1].Star())
	}
	if out.Records[1].IsStar == nil {
		t.Error("galaxies must carry an explicit false label")
	}
	if in.HasColumn(catalog.ColIsStar) {
		t.Error("Classify must not modify its input")
	}

	// reclassifying overwrites instead of adding a second column
	again, err := Classify(out, Boundary{X0: 19, Y0: -20, Slope: 0, Intercept: -20})
	if err != nil {
		t.Fatalf("Classify again: %v", err)
	}
	if len(again.Columns) != len(out.Columns) {
		t.Errorf("columns grew from %d to %d", len(out.Columns), len(again.Columns))
	}
	if again.Records[0].Star() {
		t.Error("stricter boundary should relabel the star")
	}
}

func TestClassify_MissingColumn(t *testing.T) {
	c := catalog.NewWithColumns(catalog.ColNumber, catalog.ColMagAuto)
	_, err := Classify(c, DefaultBoundary)
	var uce *catalog.UnknownColumnError
	if !errors.As(err, &uce) || uce.Column != catalog.ColMuMax {
		t.Fatalf("expected UnknownColumnError for MU_MAX, got %v", err)
	}
}
