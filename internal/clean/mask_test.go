package clean

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"cosmos/sieve/internal/catalog"
	"cosmos/sieve/internal/geometry"
)

func squareMask(x0, y0, x1, y1 float64, source string) Mask {
	return NewMask(geometry.Polygon{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}, source)
}

func TestApplyMasks_Perimeter(t *testing.T) {
	tests := []struct {
		name string
		rec  catalog.Record
		want bool // deleted
	}{
		{"inside", galaxy(1, 50, 50, 3), true},
		{"straddles edge", galaxy(1, 100, 50, 3), true},
		{"outside", galaxy(1, 200, 200, 3), false},
		// the mask sits inside the box without reaching its perimeter
		{"encloses mask", galaxy(1, 50, 50, 80), false},
		{"degenerate box", catalog.Record{Number: 1, XMin: 50, XMax: 50, YMin: 50, YMax: 50}, false},
		{"star exempt", star(1, 50, 50, 100), false},
	}
	masks := []Mask{squareMask(20, 20, 102, 80, "box")}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, deleted, err := ApplyMasks(context.Background(), newCatalog(tt.rec), masks,
				MaskOptions{ExemptStars: true, Reason: ReasonDiffraction})
			if err != nil {
				t.Fatalf("ApplyMasks: %v", err)
			}
			if got := len(deleted) == 1; got != tt.want {
				t.Errorf("deleted = %v, want %v", deleted, tt.want)
			}
			if out.Len()+len(deleted) != 1 {
				t.Errorf("rows lost: kept %d, deleted %d", out.Len(), len(deleted))
			}
		})
	}
}

func TestApplyMasks_StarsNotExemptWhenAsked(t *testing.T) {
	c := newCatalog(star(1, 50, 50, 100))
	_, deleted, err := ApplyMasks(context.Background(), c, []Mask{squareMask(0, 0, 100, 100, "m")}, MaskOptions{Reason: ReasonManual})
	if err != nil {
		t.Fatalf("ApplyMasks: %v", err)
	}
	if len(deleted) != 1 || deleted[0].Reason != ReasonManual || deleted[0].Source != "m" {
		t.Errorf("deleted = %+v", deleted)
	}
}

func TestApplyMasks_ParallelMatchesSerial(t *testing.T) {
	var recs []catalog.Record
	for i := 0; i < 2500; i++ {
		recs = append(recs, galaxy(i+1, float64(i%50)*20, float64(i/50)*20, 4))
	}
	c := newCatalog(recs...)
	masks := []Mask{
		squareMask(100, 100, 300, 250, "a"),
		squareMask(700, 600, 720, 900, "b"),
		NewMask(geometry.Rotate(SpikeTemplate(5, 150, 10), geometry.Point{X: 500, Y: 500}, 30), "c"),
	}

	serial, serialDel, err := ApplyMasks(context.Background(), c, masks, MaskOptions{Workers: 1})
	if err != nil {
		t.Fatalf("serial: %v", err)
	}
	if len(serialDel) == 0 {
		t.Fatal("fixture should delete something")
	}
	for _, workers := range []int{0, 3, 16, 5000} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			out, del, err := ApplyMasks(context.Background(), c, masks, MaskOptions{Workers: workers})
			if err != nil {
				t.Fatalf("ApplyMasks: %v", err)
			}
			if diff := cmp.Diff(numbers(serial), numbers(out)); diff != "" {
				t.Errorf("survivors differ (-serial +parallel):\n%s", diff)
			}
			if diff := cmp.Diff(serialDel, del); diff != "" {
				t.Errorf("deletions differ (-serial +parallel):\n%s", diff)
			}
		})
	}
}

func TestApplyMasks_BoundsPrefilterMatchesFullScan(t *testing.T) {
	// a mask built without NewMask still gets bounds before testing
	raw := Mask{Polygon: geometry.Polygon{{X: 0, Y: 0}, {X: 60, Y: 0}, {X: 60, Y: 60}, {X: 0, Y: 60}}, Source: "raw"}
	c := newCatalog(galaxy(1, 30, 30, 5), galaxy(2, 300, 300, 5))
	out, del, err := ApplyMasks(context.Background(), c, []Mask{raw}, MaskOptions{})
	if err != nil {
		t.Fatalf("ApplyMasks: %v", err)
	}
	if diff := cmp.Diff([]int{2}, numbers(out)); diff != "" {
		t.Errorf("survivors (-want +got):\n%s", diff)
	}
	if len(del) != 1 || del[0].Number != 1 {
		t.Errorf("deleted = %+v", del)
	}
}

func TestApplyMasks_KeepsHeaderAndOrder(t *testing.T) {
	c := newCatalog(galaxy(4, 10, 10, 2), galaxy(9, 50, 50, 2), galaxy(2, 90, 90, 2))
	c.Header = append(c.Header, "# pre-mask")
	out, _, err := ApplyMasks(context.Background(), c, []Mask{squareMask(40, 40, 60, 60, "m")}, MaskOptions{})
	if err != nil {
		t.Fatalf("ApplyMasks: %v", err)
	}
	if diff := cmp.Diff([]int{4, 2}, numbers(out)); diff != "" {
		t.Errorf("survivors (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(c.Header, out.Header); diff != "" {
		t.Errorf("header changed:\n%s", diff)
	}
}

func TestApplyMasks_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := ApplyMasks(ctx, newCatalog(galaxy(1, 1, 1, 1)), []Mask{squareMask(0, 0, 5, 5, "m")}, MaskOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestApplyMasks_NoMasks(t *testing.T) {
	c := newCatalog(galaxy(1, 1, 1, 1))
	out, del, err := ApplyMasks(context.Background(), c, nil, MaskOptions{})
	if err != nil || len(del) != 0 || out.Len() != 1 {
		t.Errorf("ApplyMasks with no masks = %d rows, %v, %v", out.Len(), del, err)
	}
}

func TestSpikeDeletesGalaxyOnArm(t *testing.T) {
	c := newCatalog(
		star(1, 1000, 1000, 2000),
		galaxy(2, 1000, 1080, 5), // on the upper arm
		galaxy(3, 1100, 1100, 5), // between arms
		galaxy(4, 1500, 1500, 5), // far away
	)
	masks, err := SpikeMasks(c, DefaultSpikes["F606W"], DefaultMagCutoff)
	if err != nil {
		t.Fatalf("SpikeMasks: %v", err)
	}
	out, del, err := ApplyMasks(context.Background(), c, masks, MaskOptions{ExemptStars: true, Reason: ReasonDiffraction})
	if err != nil {
		t.Fatalf("ApplyMasks: %v", err)
	}
	if diff := cmp.Diff([]int{1, 3, 4}, numbers(out)); diff != "" {
		t.Errorf("survivors (-want +got):\n%s", diff)
	}
	if len(del) != 1 || del[0].Source != "star 1" {
		t.Errorf("deleted = %+v", del)
	}
}
