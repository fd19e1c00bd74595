// Package neighbor builds minimum-image pair lists with periodic shift
// metadata. The list is read-only to the calculator core.
package neighbor

import (
	"fmt"
	"hash/fnv"

	"github.com/plumbum082/DMFF/internal/geom"
)

// Pair is an atom pair within the cutoff. Shift holds the integer lattice
// translation such that positions[I] - positions[J] - box.ShiftVec(Shift)
// is the minimum-image displacement.
type Pair struct {
	I, J  int
	Shift [3]int
}

type PairList struct {
	Pairs  []Pair
	Cutoff float64
}

// Build enumerates all pairs within cutoff using the minimum-image
// convention. The cutoff must not exceed half the smallest box width, the
// bound beyond which minimum image misses interacting replicas.
func Build(positions []geom.Vec, box *geom.Box, cutoff float64) (*PairList, error) {
	if cutoff <= 0 {
		return nil, fmt.Errorf("cutoff %g must be positive", cutoff)
	}
	if half := box.MinWidth() / 2; cutoff > half {
		return nil, fmt.Errorf("cutoff %g exceeds half the smallest box width %g", cutoff, half)
	}
	cut2 := cutoff * cutoff
	pl := &PairList{Cutoff: cutoff}
	for i := 0; i < len(positions); i++ {
		for j := i + 1; j < len(positions); j++ {
			d := positions[i].Sub(positions[j])
			n := box.ImageShift(d)
			w := d.Sub(box.ShiftVec(n))
			if w.Dot(w) < cut2 {
				pl.Pairs = append(pl.Pairs, Pair{I: i, J: j, Shift: n})
			}
		}
	}
	return pl, nil
}

// Len returns the number of pairs.
func (p *PairList) Len() int { return len(p.Pairs) }

// TopologyHash fingerprints the pair indices. Two lists with the same hash
// wire an identical computation graph (shift vectors enter as replayable
// leaves), which is what the calculator's plan cache keys on.
func (p *PairList) TopologyHash() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	put := func(v int) {
		u := uint64(int64(v))
		for k := 0; k < 8; k++ {
			buf[k] = byte(u >> (8 * k))
		}
		h.Write(buf[:])
	}
	for _, pr := range p.Pairs {
		put(pr.I)
		put(pr.J)
	}
	return h.Sum64()
}
