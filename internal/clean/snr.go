package clean

import (
	"cosmos/sieve/internal/catalog"
)

// AddSNR returns a copy of c with SNR = FLUX_AUTO / FLUXERR_AUTO on every
// record. A zero error gives an infinite or NaN ratio; no record is dropped.
func AddSNR(c *catalog.Catalog) (*catalog.Catalog, error) {
	if err := c.Require(catalog.ColFluxAuto, catalog.ColFluxErrAuto); err != nil {
		return nil, err
	}
	out := c.Clone()
	out.AddColumn(catalog.ColSNR, "Signal to Noise Ratio")
	for i := range out.Records {
		r := &out.Records[i]
		snr := r.FluxAuto / r.FluxErrAuto
		r.SNR = &snr
	}
	return out, nil
}
