// Package ad implements a scalar reverse-mode differentiation tape.
//
// A computation is recorded once as a sequence of branch-free primitive
// operations, so the graph topology depends only on the shapes of the
// inputs. The same tape can then be replayed with new leaf values and
// differentiated again, which is what makes shape-keyed plan caching
// possible at the calculator level.
package ad

import "math"

type opcode uint8

const (
	opLeaf opcode = iota
	opConst
	opAdd
	opSub
	opMul
	opDiv
	opNeg
	opSqrt
	opExp
	opSin
	opCos
	opErfc
	opAcos
	opScale // val = a*aux
	opShift // val = a+aux
	opMaxC  // val = max(a, aux)
	opMinC  // val = min(a, aux)
)

const twoOverSqrtPi = 2.0 / 1.7724538509055159 // 2/sqrt(pi)

// Tape records nodes in evaluation order. Nodes are append-only; Var is a
// lightweight handle into the node arrays.
type Tape struct {
	op     []opcode
	a, b   []int32
	aux    []float64
	val    []float64
	adj    []float64
	leaves []int32
}

type Var struct {
	t *Tape
	i int32
}

func NewTape() *Tape {
	return &Tape{}
}

// Len returns the number of recorded nodes.
func (t *Tape) Len() int { return len(t.op) }

// NumLeaves returns the number of settable leaves recorded so far.
func (t *Tape) NumLeaves() int { return len(t.leaves) }

func (t *Tape) push(op opcode, a, b int32, aux, val float64) Var {
	t.op = append(t.op, op)
	t.a = append(t.a, a)
	t.b = append(t.b, b)
	t.aux = append(t.aux, aux)
	t.val = append(t.val, val)
	return Var{t, int32(len(t.op) - 1)}
}

// Leaf records a settable input node. Leaves keep their registration order,
// which is the index SetLeaf and LeafGrad use on replay.
func (t *Tape) Leaf(x float64) Var {
	v := t.push(opLeaf, -1, -1, 0, x)
	t.leaves = append(t.leaves, v.i)
	return v
}

// Const records a fixed value baked into the tape.
func (t *Tape) Const(x float64) Var {
	return t.push(opConst, -1, -1, x, x)
}

// SetLeaf overwrites the k-th leaf before a Forward pass.
func (t *Tape) SetLeaf(k int, x float64) {
	t.val[t.leaves[k]] = x
}

// Value returns the current value of v after the last Forward pass (or the
// recording pass).
func (t *Tape) Value(v Var) float64 { return t.val[v.i] }

func (v Var) Value() float64 { return v.t.val[v.i] }

func (v Var) Add(o Var) Var {
	return v.t.push(opAdd, v.i, o.i, 0, v.t.val[v.i]+v.t.val[o.i])
}

func (v Var) Sub(o Var) Var {
	return v.t.push(opSub, v.i, o.i, 0, v.t.val[v.i]-v.t.val[o.i])
}

func (v Var) Mul(o Var) Var {
	return v.t.push(opMul, v.i, o.i, 0, v.t.val[v.i]*v.t.val[o.i])
}

func (v Var) Div(o Var) Var {
	return v.t.push(opDiv, v.i, o.i, 0, v.t.val[v.i]/v.t.val[o.i])
}

func (v Var) Neg() Var {
	return v.t.push(opNeg, v.i, -1, 0, -v.t.val[v.i])
}

func (v Var) Sqrt() Var {
	return v.t.push(opSqrt, v.i, -1, 0, math.Sqrt(v.t.val[v.i]))
}

func (v Var) Exp() Var {
	return v.t.push(opExp, v.i, -1, 0, math.Exp(v.t.val[v.i]))
}

func (v Var) Sin() Var {
	return v.t.push(opSin, v.i, -1, 0, math.Sin(v.t.val[v.i]))
}

func (v Var) Cos() Var {
	return v.t.push(opCos, v.i, -1, 0, math.Cos(v.t.val[v.i]))
}

func (v Var) Erfc() Var {
	return v.t.push(opErfc, v.i, -1, 0, math.Erfc(v.t.val[v.i]))
}

// Acos assumes its argument is already strictly inside (-1, 1); callers
// clamp first so the derivative stays bounded (see AcosClamped).
func (v Var) Acos() Var {
	return v.t.push(opAcos, v.i, -1, 0, math.Acos(v.t.val[v.i]))
}

// Scale multiplies by a constant.
func (v Var) Scale(c float64) Var {
	return v.t.push(opScale, v.i, -1, c, v.t.val[v.i]*c)
}

// AddConst adds a constant.
func (v Var) AddConst(c float64) Var {
	return v.t.push(opShift, v.i, -1, c, v.t.val[v.i]+c)
}

// MaxConst is max(v, c) with a zero sub-gradient on the clamped branch.
func (v Var) MaxConst(c float64) Var {
	return v.t.push(opMaxC, v.i, -1, c, math.Max(v.t.val[v.i], c))
}

// MinConst is min(v, c) with a zero sub-gradient on the clamped branch.
func (v Var) MinConst(c float64) Var {
	return v.t.push(opMinC, v.i, -1, c, math.Min(v.t.val[v.i], c))
}

// Square is v*v.
func (v Var) Square() Var { return v.Mul(v) }

// AcosClamped clamps the argument into [-1+eps, 1-eps] before taking the
// arc cosine. Clamping the argument rather than the result keeps the
// derivative finite at the domain boundary.
func (v Var) AcosClamped(eps float64) Var {
	return v.MaxConst(-1 + eps).MinConst(1 - eps).Acos()
}

// Dot3 is the dot product of two 3-vectors of tape variables.
func Dot3(a, b [3]Var) Var {
	return a[0].Mul(b[0]).Add(a[1].Mul(b[1])).Add(a[2].Mul(b[2]))
}

// Forward re-evaluates every node in recording order using the current leaf
// values. Constants are restored from their recorded values.
func (t *Tape) Forward() {
	for i := range t.op {
		a, b := t.a[i], t.b[i]
		switch t.op[i] {
		case opLeaf:
			// value set by SetLeaf
		case opConst:
			t.val[i] = t.aux[i]
		case opAdd:
			t.val[i] = t.val[a] + t.val[b]
		case opSub:
			t.val[i] = t.val[a] - t.val[b]
		case opMul:
			t.val[i] = t.val[a] * t.val[b]
		case opDiv:
			t.val[i] = t.val[a] / t.val[b]
		case opNeg:
			t.val[i] = -t.val[a]
		case opSqrt:
			t.val[i] = math.Sqrt(t.val[a])
		case opExp:
			t.val[i] = math.Exp(t.val[a])
		case opSin:
			t.val[i] = math.Sin(t.val[a])
		case opCos:
			t.val[i] = math.Cos(t.val[a])
		case opErfc:
			t.val[i] = math.Erfc(t.val[a])
		case opAcos:
			t.val[i] = math.Acos(t.val[a])
		case opScale:
			t.val[i] = t.val[a] * t.aux[i]
		case opShift:
			t.val[i] = t.val[a] + t.aux[i]
		case opMaxC:
			t.val[i] = math.Max(t.val[a], t.aux[i])
		case opMinC:
			t.val[i] = math.Min(t.val[a], t.aux[i])
		}
	}
}

// Backward seeds out with adjoint 1 and propagates adjoints to every node.
// Leaf adjoints are read back with LeafGrad.
func (t *Tape) Backward(out Var) {
	if cap(t.adj) < len(t.op) {
		t.adj = make([]float64, len(t.op))
	} else {
		t.adj = t.adj[:len(t.op)]
		for i := range t.adj {
			t.adj[i] = 0
		}
	}
	t.adj[out.i] = 1
	for i := len(t.op) - 1; i >= 0; i-- {
		g := t.adj[i]
		if g == 0 {
			continue
		}
		a, b := t.a[i], t.b[i]
		switch t.op[i] {
		case opLeaf, opConst:
		case opAdd:
			t.adj[a] += g
			t.adj[b] += g
		case opSub:
			t.adj[a] += g
			t.adj[b] -= g
		case opMul:
			t.adj[a] += g * t.val[b]
			t.adj[b] += g * t.val[a]
		case opDiv:
			t.adj[a] += g / t.val[b]
			t.adj[b] -= g * t.val[i] / t.val[b]
		case opNeg:
			t.adj[a] -= g
		case opSqrt:
			t.adj[a] += g * 0.5 / t.val[i]
		case opExp:
			t.adj[a] += g * t.val[i]
		case opSin:
			t.adj[a] += g * math.Cos(t.val[a])
		case opCos:
			t.adj[a] -= g * math.Sin(t.val[a])
		case opErfc:
			t.adj[a] -= g * twoOverSqrtPi * math.Exp(-t.val[a]*t.val[a])
		case opAcos:
			t.adj[a] -= g / math.Sqrt(1-t.val[a]*t.val[a])
		case opScale:
			t.adj[a] += g * t.aux[i]
		case opShift:
			t.adj[a] += g
		case opMaxC:
			if t.val[a] > t.aux[i] {
				t.adj[a] += g
			}
		case opMinC:
			if t.val[a] < t.aux[i] {
				t.adj[a] += g
			}
		}
	}
}

// LeafGrad returns the adjoint of the k-th leaf after Backward.
func (t *Tape) LeafGrad(k int) float64 {
	return t.adj[t.leaves[k]]
}
