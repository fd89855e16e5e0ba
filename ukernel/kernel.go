// Copyright 2025 go-datatile Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ukernel computes one M0xN0xK0 tile of a packed matmul (mmt4d):
//
//	out[m][n] (+)= sum over k1, k0 of lhs[k1][m][k0] * rhs[k1][n][k0]
//
// The operand panels are laid out the way materialize packs them:
//
//	lhs  [K1][M0][K0]
//	rhs  [K1][N0][K0]
//	out  [M0][N0]
//
// Each (element types, M0xN0xK0) combination a tile catalog can produce has a
// kernel in the Registry. Narrower variants are truncations of the widest
// kernel along M, so a truncated kernel computes exactly the first M0 rows of
// the widest kernel's result.
//
// Kernels broadcast one LHS element per reduction step and multiply-add it
// into vectors of N0 accumulators (see package hwy). Floating point kernels
// accumulate in float32 and round to the output type on store. Integer
// kernels accumulate in int32 with wrapping arithmetic. Products are added in
// increasing k order for every output element.
//
// Kernels are pure functions of their arguments and may be called
// concurrently on disjoint outputs.
package ukernel

import (
	"fmt"

	"github.com/ajroetker/go-datatile/hwy"
	"github.com/ajroetker/go-datatile/tile"
)

// Flags modify a tile computation.
type Flags uint32

const (
	// FlagAccumulate adds to the existing output tile instead of
	// overwriting it.
	FlagAccumulate Flags = 1 << iota
)

// TileFunc computes one output tile from panels of k1 reduction steps.
type TileFunc[L, R, O any] func(out []O, lhs []L, rhs []R, k1 int, flags Flags)

// Kernel is a tile kernel for one M0xN0xK0 shape.
type Kernel[L, R, O any] struct {
	// Tile is the M0xN0xK0 shape the kernel computes.
	Tile tile.MxNxK

	// Fused is set when products are added with a single rounding (FMA).
	Fused bool

	// rhsBits is the storage width of an RHS element: 4 for packed nibbles.
	rhsBits int

	run func(out []O, lhs []L, rhs []R, k1, m0 int, flags Flags)
}

// Func returns the kernel as a TileFunc.
func (k Kernel[L, R, O]) Func() TileFunc[L, R, O] {
	m0 := int(k.Tile.M)
	return func(out []O, lhs []L, rhs []R, k1 int, flags Flags) {
		k.run(out, lhs, rhs, k1, m0, flags)
	}
}

// Compute runs the kernel on one tile.
func (k Kernel[L, R, O]) Compute(out []O, lhs []L, rhs []R, k1 int, flags Flags) {
	k.run(out, lhs, rhs, k1, int(k.Tile.M), flags)
}

// Truncate returns the kernel computing the first m0 rows of k's tile. The
// LHS panel of the truncated kernel holds m0 rows per reduction step.
func (k Kernel[L, R, O]) Truncate(m0 int64) Kernel[L, R, O] {
	if m0 < 1 || m0 > k.Tile.M {
		panic(fmt.Sprintf("ukernel: cannot truncate %s tile to M0=%d", k.Tile, m0))
	}
	t := k
	t.Tile.M = m0
	return t
}

// LHSPanelLen returns the number of LHS elements for k1 reduction steps.
func (k Kernel[L, R, O]) LHSPanelLen(k1 int) int {
	return k1 * int(k.Tile.M*k.Tile.K)
}

// RHSPanelLen returns the number of RHS storage elements (bytes for 4-bit
// operands) for k1 reduction steps.
func (k Kernel[L, R, O]) RHSPanelLen(k1 int) int {
	n := k1 * int(k.Tile.N*k.Tile.K)
	if k.rhsBits == 4 {
		return (n + 1) / 2
	}
	return n
}

// OutLen returns the number of elements of one output tile.
func (k Kernel[L, R, O]) OutLen() int {
	return int(k.Tile.M * k.Tile.N)
}

func checkPanels(t tile.MxNxK, m0, k1, lhsLen, rhsLen, outLen, rhsBits int) {
	n0, k0 := int(t.N), int(t.K)
	rhsNeed := k1 * n0 * k0
	if rhsBits == 4 {
		rhsNeed = (rhsNeed + 1) / 2
	}
	switch {
	case k1 < 0:
		panic(fmt.Sprintf("ukernel: negative K1 %d", k1))
	case lhsLen < k1*m0*k0:
		panic(fmt.Sprintf("ukernel: %s LHS panel has %d elements, need %d", t, lhsLen, k1*m0*k0))
	case rhsLen < rhsNeed:
		panic(fmt.Sprintf("ukernel: %s RHS panel has %d elements, need %d", t, rhsLen, rhsNeed))
	case outLen < m0*n0:
		panic(fmt.Sprintf("ukernel: %s output tile has %d elements, need %d", t, outLen, m0*n0))
	}
}

// rhsRows lays the RHS panel out as [K1][K0][N0] so the N0 values of one
// reduction step are contiguous and load as vectors.
func rhsRows[V any](k1, n0, k0 int, at func(int) V) []V {
	rows := make([]V, k1*k0*n0)
	for kk := range k1 {
		for n := range n0 {
			for i := range k0 {
				rows[(kk*k0+i)*n0+n] = at((kk*n0+n)*k0 + i)
			}
		}
	}
	return rows
}

// accumulateRow adds lhsAt(j) * rows[j] to acc for every reduction step j in
// increasing order. Each lane holds one output element, so every element
// sees its products in the same order at any vector width.
func accumulateRow[V hwy.Lanes](acc, rows []V, steps int, lhsAt func(int) V, madd func(a, b, c hwy.Vec[V]) hwy.Vec[V]) {
	n0 := len(acc)
	lanes := hwy.MaxLanes[V]()
	for c := 0; c < n0; c += lanes {
		end := min(c+lanes, n0)
		v := hwy.Load(acc[c:end])
		for j := range steps {
			v = madd(hwy.Set(lhsAt(j)), hwy.Load(rows[j*n0+c:j*n0+end]), v)
		}
		hwy.Store(v, acc[c:end])
	}
}

func mulThenAdd(a, b, c hwy.Vec[float32]) hwy.Vec[float32] {
	return hwy.Add(hwy.Mul(a, b), c)
}

// floatKernel builds a floating point kernel. The element conversions widen
// operands to float32 and round the accumulator to the output type.
func floatKernel[L, R, O any](t tile.MxNxK, fused bool, lf func(L) float32, rf func(R) float32,
	of func(O) float32, store func(float32) O) Kernel[L, R, O] {
	n0, k0 := int(t.N), int(t.K)
	madd := mulThenAdd
	if fused {
		madd = hwy.MulAdd[float32]
	}
	run := func(out []O, lhs []L, rhs []R, k1, m0 int, flags Flags) {
		checkPanels(t, m0, k1, len(lhs), len(rhs), len(out), 0)
		rows := rhsRows(k1, n0, k0, func(j int) float32 { return rf(rhs[j]) })
		acc := make([]float32, n0)
		for m := range m0 {
			dst := out[m*n0 : (m+1)*n0]
			for n := range acc {
				acc[n] = 0
				if flags&FlagAccumulate != 0 {
					acc[n] = of(dst[n])
				}
			}
			accumulateRow(acc, rows, k1*k0, func(j int) float32 {
				return lf(lhs[(j/k0*m0+m)*k0+j%k0])
			}, madd)
			for n, a := range acc {
				dst[n] = store(a)
			}
		}
	}
	return Kernel[L, R, O]{Tile: t, Fused: fused, run: run}
}

// intKernel builds an integer kernel with int32 wrapping accumulation.
func intKernel[L, R ~int8 | ~int16](t tile.MxNxK) Kernel[L, R, int32] {
	n0, k0 := int(t.N), int(t.K)
	run := func(out []int32, lhs []L, rhs []R, k1, m0 int, flags Flags) {
		checkPanels(t, m0, k1, len(lhs), len(rhs), len(out), 0)
		rows := rhsRows(k1, n0, k0, func(j int) int32 { return int32(rhs[j]) })
		intRows(out, rows, k1, k0, n0, m0, flags, func(j int) int32 { return int32(lhs[j]) })
	}
	return Kernel[L, R, int32]{Tile: t, Fused: true, run: run}
}

// int4Kernel builds a kernel whose RHS is packed 4-bit values, signed or
// unsigned.
func int4Kernel[L ~int8 | ~int16](t tile.MxNxK, signed bool) Kernel[L, uint8, int32] {
	n0, k0 := int(t.N), int(t.K)
	at := U4At
	if signed {
		at = I4At
	}
	run := func(out []int32, lhs []L, rhs []uint8, k1, m0 int, flags Flags) {
		checkPanels(t, m0, k1, len(lhs), len(rhs), len(out), 4)
		rows := rhsRows(k1, n0, k0, func(j int) int32 { return at(rhs, j) })
		intRows(out, rows, k1, k0, n0, m0, flags, func(j int) int32 { return int32(lhs[j]) })
	}
	return Kernel[L, uint8, int32]{Tile: t, Fused: true, rhsBits: 4, run: run}
}

// intRows computes m0 output rows from widened RHS rows. lhsAt reads the LHS
// panel at a flat index.
func intRows(out, rows []int32, k1, k0, n0, m0 int, flags Flags, lhsAt func(int) int32) {
	for m := range m0 {
		acc := out[m*n0 : (m+1)*n0]
		if flags&FlagAccumulate == 0 {
			clear(acc)
		}
		accumulateRow(acc, rows, k1*k0, func(j int) int32 {
			return lhsAt((j/k0*m0+m)*k0 + j%k0)
		}, hwy.MulAdd[int32])
	}
}

func f32(x float32) float32        { return x }
func f16ToF32(x Float16) float32   { return x.Float32() }
func bf16ToF32(x BFloat16) float32 { return x.Float32() }
