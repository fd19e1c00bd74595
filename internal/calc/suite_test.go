package calc_test

import (
	"math"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/plumbum082/DMFF/internal/calc"
	"github.com/plumbum082/DMFF/internal/ffield"
	"github.com/plumbum082/DMFF/internal/geom"
	"github.com/plumbum082/DMFF/internal/neighbor"
)

func TestCalcSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Calculator Suite")
}

func monomer(c geom.Vec) []geom.Vec {
	const (
		rOH   = 0.9572
		theta = 104.52 * math.Pi / 180
	)
	return []geom.Vec{
		c,
		c.Add(geom.Vec{rOH, 0, 0}),
		c.Add(geom.Vec{rOH * math.Cos(theta), rOH * math.Sin(theta), 0}),
	}
}

// bonded returns a hydrogen-bonded dimer: the donor O-H points straight
// at the acceptor oxygen at the given O-O distance.
func bonded(oo float64) []geom.Vec {
	const (
		rOH   = 0.9572
		theta = 104.52 * math.Pi / 180
	)
	acc := monomer(geom.Vec{12, 12, 12})
	don := []geom.Vec{
		{12 - oo, 12, 12},
		{12 - oo + rOH, 12, 12},
		{12 - oo + rOH*math.Cos(theta), 12 + rOH*math.Sin(theta), 12},
	}
	return append(acc, don...)
}

var _ = Describe("Calculator", func() {
	var (
		c   *calc.Calculator
		box *geom.Box
	)

	BeforeEach(func() {
		var err error
		c, err = calc.New(ffield.Default(), 2)
		Expect(err).NotTo(HaveOccurred())
		box, err = geom.Cubic(25)
		Expect(err).NotTo(HaveOccurred())
	})

	energyOf := func(pos []geom.Vec) float64 {
		pairs, err := neighbor.Build(pos, box, 11)
		Expect(err).NotTo(HaveOccurred())
		e, err := c.EvaluateEnergy(pos, box, pairs)
		Expect(err).NotTo(HaveOccurred())
		return e
	}

	It("binds the hydrogen-bonded dimer", func() {
		near := energyOf(bonded(2.9))
		far := energyOf(append(monomer(geom.Vec{6, 6, 6}), monomer(geom.Vec{16, 16, 16})...))
		Expect(near).To(BeNumerically("<", far))
	})

	It("reduces the energy along the force direction", func() {
		pos := bonded(3.4)
		pairs, err := neighbor.Build(pos, box, 11)
		Expect(err).NotTo(HaveOccurred())

		e0, f, err := c.Evaluate(pos, box, pairs)
		Expect(err).NotTo(HaveOccurred())

		var norm2 float64
		for _, fi := range f {
			norm2 += fi.Dot(fi)
		}
		Expect(norm2).To(BeNumerically(">", 0))

		step := 1e-4 / math.Sqrt(norm2)
		moved := make([]geom.Vec, len(pos))
		for i := range pos {
			moved[i] = pos[i].Add(f[i].Scale(step))
		}
		e1, err := c.EvaluateEnergy(moved, box, pairs)
		Expect(err).NotTo(HaveOccurred())
		Expect(e1).To(BeNumerically("<", e0))
	})

	It("obeys Newton's third law pairwise for an isolated dimer", func() {
		pos := bonded(2.9)
		pairs, err := neighbor.Build(pos, box, 11)
		Expect(err).NotTo(HaveOccurred())

		f, err := c.EvaluateForces(pos, box, pairs)
		Expect(err).NotTo(HaveOccurred())

		var total geom.Vec
		for _, fi := range f {
			total = total.Add(fi)
		}
		Expect(total.Norm()).To(BeNumerically("~", 0, 1e-8))
	})
})
