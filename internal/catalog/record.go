package catalog

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Column names written by the detection engine plus the two derived columns.
const (
	ColNumber      = "NUMBER"
	ColX           = "X_IMAGE"
	ColY           = "Y_IMAGE"
	ColA           = "A_IMAGE"
	ColB           = "B_IMAGE"
	ColAlpha       = "ALPHA_SKY"
	ColDelta       = "DELTA_SKY"
	ColXMin        = "XMIN_IMAGE"
	ColXMax        = "XMAX_IMAGE"
	ColYMin        = "YMIN_IMAGE"
	ColYMax        = "YMAX_IMAGE"
	ColFlags       = "FLAGS"
	ColMuMax       = "MU_MAX"
	ColMagAuto     = "MAG_AUTO"
	ColClassStar   = "CLASS_STAR"
	ColFluxRadius  = "FLUX_RADIUS"
	ColFluxAuto    = "FLUX_AUTO"
	ColFluxErrAuto = "FLUXERR_AUTO"
	ColIsStar      = "IS_STAR"
	ColSNR         = "SNR"
)

// OutputColumns is the fixed column list requested from the detection engine.
var OutputColumns = []string{
	ColNumber, ColX, ColY, ColA, ColB, ColAlpha, ColDelta,
	ColXMin, ColXMax, ColYMin, ColYMax, ColFlags,
	ColMuMax, ColMagAuto, ColClassStar, ColFluxRadius, ColFluxAuto, ColFluxErrAuto,
}

// NullNumber is the identifier carried by rows whose NUMBER field was a placeholder.
const NullNumber = 0

// Record is one detected object.
type Record struct {
	Number int
	X, Y   float64
	A, B   float64

	Alpha, Delta float64

	XMin, XMax float64
	YMin, YMax float64

	Flags       int
	MuMax       float64
	MagAuto     float64
	ClassStar   float64
	FluxRadius  float64
	FluxAuto    float64
	FluxErrAuto float64

	IsStar *bool    // nil until classified
	SNR    *float64 // nil until the SNR stage

	// Extra holds raw tokens for columns outside the known schema.
	Extra map[string]string
}

// BBox returns the record's bounding box as (xmin, xmax, ymin, ymax).
func (r Record) BBox() (xmin, xmax, ymin, ymax float64) {
	return r.XMin, r.XMax, r.YMin, r.YMax
}

// Star reports whether the record was classified as a star.
func (r Record) Star() bool {
	return r.IsStar != nil && *r.IsStar
}

// field binds a column name to a typed Record attribute.
type field struct {
	integer bool
	get     func(r *Record) (float64, bool)
	set     func(r *Record, v float64)
}

func floatField(p func(r *Record) *float64) field {
	return field{
		get: func(r *Record) (float64, bool) { return *p(r), true },
		set: func(r *Record, v float64) { *p(r) = v },
	}
}

var fields = map[string]field{
	ColNumber: {
		integer: true,
		get:     func(r *Record) (float64, bool) { return float64(r.Number), r.Number != NullNumber },
		set:     func(r *Record, v float64) { r.Number = int(v) },
	},
	ColX:           floatField(func(r *Record) *float64 { return &r.X }),
	ColY:           floatField(func(r *Record) *float64 { return &r.Y }),
	ColA:           floatField(func(r *Record) *float64 { return &r.A }),
	ColB:           floatField(func(r *Record) *float64 { return &r.B }),
	ColAlpha:       floatField(func(r *Record) *float64 { return &r.Alpha }),
	ColDelta:       floatField(func(r *Record) *float64 { return &r.Delta }),
	ColXMin:        floatField(func(r *Record) *float64 { return &r.XMin }),
	ColXMax:        floatField(func(r *Record) *float64 { return &r.XMax }),
	ColYMin:        floatField(func(r *Record) *float64 { return &r.YMin }),
	ColYMax:        floatField(func(r *Record) *float64 { return &r.YMax }),
	ColMuMax:       floatField(func(r *Record) *float64 { return &r.MuMax }),
	ColMagAuto:     floatField(func(r *Record) *float64 { return &r.MagAuto }),
	ColClassStar:   floatField(func(r *Record) *float64 { return &r.ClassStar }),
	ColFluxRadius:  floatField(func(r *Record) *float64 { return &r.FluxRadius }),
	ColFluxAuto:    floatField(func(r *Record) *float64 { return &r.FluxAuto }),
	ColFluxErrAuto: floatField(func(r *Record) *float64 { return &r.FluxErrAuto }),
	ColFlags: {
		integer: true,
		get:     func(r *Record) (float64, bool) { return float64(r.Flags), true },
		set:     func(r *Record, v float64) { r.Flags = int(v) },
	},
	ColIsStar: {
		integer: true,
		get: func(r *Record) (float64, bool) {
			if r.IsStar == nil {
				return 0, false
			}
			if *r.IsStar {
				return 1, true
			}
			return 0, true
		},
		set: func(r *Record, v float64) {
			b := v != 0
			r.IsStar = &b
		},
	},
	ColSNR: {
		get: func(r *Record) (float64, bool) {
			if r.SNR == nil {
				return 0, false
			}
			return *r.SNR, true
		},
		set: func(r *Record, v float64) { r.SNR = &v },
	},
}

// IsKnownColumn reports whether name maps to a typed Record attribute.
func IsKnownColumn(name string) bool {
	_, ok := fields[name]
	return ok
}

// nullToken is the placeholder written for unset optional values.
const nullToken = "None"

func isNullToken(tok string) bool {
	switch strings.ToLower(tok) {
	case "", "none", "null", "nan", "-", "--":
		return true
	}
	return false
}

// setToken parses tok into the attribute bound to name.
func (r *Record) setToken(name, tok string) error {
	f, ok := fields[name]
	if !ok {
		if r.Extra == nil {
			r.Extra = make(map[string]string)
		}
		r.Extra[name] = tok
		return nil
	}

	switch name {
	case ColNumber:
		if isNullToken(tok) {
			r.Number = NullNumber
			return nil
		}
	case ColIsStar, ColSNR:
		if strings.EqualFold(tok, nullToken) || tok == "-" {
			return nil
		}
	}

	if f.integer {
		n, err := strconv.Atoi(tok)
		if err == nil {
			f.set(r, float64(n))
			return nil
		}
		// asciidata writes integer columns as floats after arithmetic
		v, ferr := strconv.ParseFloat(tok, 64)
		if ferr != nil || v != math.Trunc(v) {
			return fmt.Errorf("column %s: %q is not an integer", name, tok)
		}
		f.set(r, v)
		return nil
	}

	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return fmt.Errorf("column %s: %q is not a number", name, tok)
	}
	f.set(r, v)
	return nil
}

// token formats the attribute bound to name for output.
func (r *Record) token(name string) string {
	f, ok := fields[name]
	if !ok {
		if tok, ok := r.Extra[name]; ok {
			return tok
		}
		return nullToken
	}
	v, set := f.get(r)
	if !set && name != ColNumber {
		return nullToken
	}
	if f.integer {
		return strconv.Itoa(int(v))
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
