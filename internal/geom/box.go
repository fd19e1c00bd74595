// Package geom handles periodic boxes and per-molecule internal
// coordinates for rigid O-H-H water triplets.
package geom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Vec is a cartesian point or displacement in angstrom.
type Vec [3]float64

func (v Vec) Add(o Vec) Vec  { return Vec{v[0] + o[0], v[1] + o[1], v[2] + o[2]} }
func (v Vec) Sub(o Vec) Vec  { return Vec{v[0] - o[0], v[1] - o[1], v[2] - o[2]} }
func (v Vec) Dot(o Vec) float64 {
	return v[0]*o[0] + v[1]*o[1] + v[2]*o[2]
}
func (v Vec) Norm() float64 { return math.Sqrt(v.Dot(v)) }
func (v Vec) Scale(c float64) Vec {
	return Vec{c * v[0], c * v[1], c * v[2]}
}

// NonInvertibleBoxError reports a singular lattice matrix. There is no
// fallback; a degenerate box has no minimum image.
type NonInvertibleBoxError struct {
	Det float64
}

func (e NonInvertibleBoxError) Error() string {
	return fmt.Sprintf("box matrix is singular (det=%g)", e.Det)
}

// Box is a periodic cell described by three lattice vectors (the rows of a
// 3x3 matrix). A cartesian point r maps to fractional coordinates s via
// s = r * inv(B).
type Box struct {
	vecs [3]Vec
	inv  [3][3]float64
	vol  float64
}

// NewBox builds a box from its three lattice vectors, computing and caching
// the inverse. A singular matrix is a NonInvertibleBoxError.
func NewBox(a, b, c Vec) (*Box, error) {
	m := mat.NewDense(3, 3, []float64{
		a[0], a[1], a[2],
		b[0], b[1], b[2],
		c[0], c[1], c[2],
	})
	det := mat.Det(m)
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return nil, NonInvertibleBoxError{Det: det}
	}
	bx := &Box{vecs: [3]Vec{a, b, c}, vol: math.Abs(det)}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			bx.inv[i][j] = inv.At(i, j)
		}
	}
	return bx, nil
}

// Cubic returns a cubic box with edge l. A zero or negative edge is a
// NonInvertibleBoxError.
func Cubic(l float64) (*Box, error) {
	if l <= 0 {
		return nil, NonInvertibleBoxError{Det: l * l * l}
	}
	return NewBox(Vec{l, 0, 0}, Vec{0, l, 0}, Vec{0, 0, l})
}

// Vectors returns the lattice vectors.
func (b *Box) Vectors() [3]Vec { return b.vecs }

// Volume returns the cell volume.
func (b *Box) Volume() float64 { return b.vol }

// Frac converts a cartesian displacement to fractional coordinates.
func (b *Box) Frac(v Vec) Vec {
	var s Vec
	for j := 0; j < 3; j++ {
		s[j] = v[0]*b.inv[0][j] + v[1]*b.inv[1][j] + v[2]*b.inv[2][j]
	}
	return s
}

// Cart converts fractional coordinates back to cartesian.
func (b *Box) Cart(s Vec) Vec {
	var v Vec
	for j := 0; j < 3; j++ {
		v[j] = s[0]*b.vecs[0][j] + s[1]*b.vecs[1][j] + s[2]*b.vecs[2][j]
	}
	return v
}

// ImageShift returns the integer lattice shift that wraps the fractional
// image of d into [-0.5, 0.5) on each axis.
func (b *Box) ImageShift(d Vec) [3]int {
	s := b.Frac(d)
	var n [3]int
	for j := 0; j < 3; j++ {
		n[j] = int(math.Floor(s[j] + 0.5))
	}
	return n
}

// ShiftVec converts an integer lattice shift into a cartesian displacement.
func (b *Box) ShiftVec(n [3]int) Vec {
	var v Vec
	for j := 0; j < 3; j++ {
		v[j] = float64(n[0])*b.vecs[0][j] + float64(n[1])*b.vecs[1][j] + float64(n[2])*b.vecs[2][j]
	}
	return v
}

// MinImage wraps the displacement d to its nearest periodic image.
func (b *Box) MinImage(d Vec) Vec {
	return d.Sub(b.ShiftVec(b.ImageShift(d)))
}

// MinWidth returns the smallest perpendicular width of the cell, the upper
// bound for twice the interaction cutoff under minimum-image convention.
func (b *Box) MinWidth() float64 {
	// width along axis i = V / |a_j x a_k|
	min := math.Inf(1)
	for i := 0; i < 3; i++ {
		j, k := (i+1)%3, (i+2)%3
		cr := cross(b.vecs[j], b.vecs[k])
		if w := b.vol / cr.Norm(); w < min {
			min = w
		}
	}
	return min
}

func cross(a, b Vec) Vec {
	return Vec{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}
