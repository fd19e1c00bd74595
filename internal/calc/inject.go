package calc

import (
	"github.com/plumbum082/DMFF/internal/ad"
	"github.com/plumbum082/DMFF/internal/ffield"
	"github.com/plumbum082/DMFF/internal/geom"
)

// MultipoleBlock is the per-atom multipole parameter set handed to the
// energy engine: a private copy of the broadcast template whose monopole
// column has been replaced by the fluctuating charges. The broadcast
// template itself is shared state and is never written.
type MultipoleBlock struct {
	Mono []ad.Var
	Dip  []geom.Vec
}

// InjectMonopoles performs the copy-on-write merge: clone the expanded
// template block, keep its permanent dipole columns, and overwrite the
// monopole column with the geometry-dependent charges.
func InjectMonopoles(ps *ffield.ParamSet, fluctuating []ad.Var) MultipoleBlock {
	tmpl := ps.CloneQLocal()
	dip := make([]geom.Vec, len(tmpl))
	for i, row := range tmpl {
		dip[i] = geom.Vec{row[1], row[2], row[3]}
	}
	return MultipoleBlock{Mono: fluctuating, Dip: dip}
}
