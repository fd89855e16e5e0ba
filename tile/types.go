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

// Package tile decides the shape of the matmul micro-block (M0xN0xK0) used
// to lay out the operands of a dense matrix multiplication on a CPU.
//
// The decision has two steps:
//
//   - Enumerate lists the tile shapes the target has microkernels for, widest
//     M first. Each later entry keeps N and K and truncates M.
//   - Choose rates those candidates against an optional narrow-dimension hint
//     and optional per-dimension upper bounds, and picks one.
//
// Both are pure functions of their arguments and safe for concurrent use.
package tile

import (
	"fmt"
	"math"
	"math/bits"
)

// Dynamic marks a tile or shape dimension whose size is only known at run
// time.
const Dynamic int64 = math.MinInt64

// IsDynamic reports whether a size is the Dynamic marker.
func IsDynamic(size int64) bool {
	return size == Dynamic
}

// MxNxK is the shape of one matmul micro-block: M rows of the left operand,
// N columns of the right operand and K reduction steps.
type MxNxK struct {
	M, N, K int64
}

// DynamicTile returns the tile whose three dimensions are resolved at run
// time.
func DynamicTile() MxNxK {
	return MxNxK{M: Dynamic, N: Dynamic, K: Dynamic}
}

// IsDynamic reports whether any dimension is Dynamic.
func (t MxNxK) IsDynamic() bool {
	return IsDynamic(t.M) || IsDynamic(t.N) || IsDynamic(t.K)
}

// IsFullyDynamic reports whether all three dimensions are Dynamic.
func (t MxNxK) IsFullyDynamic() bool {
	return IsDynamic(t.M) && IsDynamic(t.N) && IsDynamic(t.K)
}

// Transposed swaps M and N.
func (t MxNxK) Transposed() MxNxK {
	return MxNxK{M: t.N, N: t.M, K: t.K}
}

// Product returns M*N*K, the amount of work in one tile.
func (t MxNxK) Product() int64 {
	return t.M * t.N * t.K
}

// String formats the tile as "MxNxK", with '?' for dynamic dimensions.
func (t MxNxK) String() string {
	return fmt.Sprintf("%sx%sx%s", sizeString(t.M), sizeString(t.N), sizeString(t.K))
}

func sizeString(s int64) string {
	if IsDynamic(s) {
		return "?"
	}
	return fmt.Sprint(s)
}

// ContractionShape counts, per kind of iteration dimension, how many
// dimensions of that kind the contraction has. Only multiplicities of 0 or
// 1 can be tiled.
type ContractionShape struct {
	Batch, M, N, K int
}

// Matmul is the contraction shape of a plain 2-D matmul.
var Matmul = ContractionShape{M: 1, N: 1, K: 1}

// BatchMatmul is the contraction shape of a batched matmul.
var BatchMatmul = ContractionShape{Batch: 1, M: 1, N: 1, K: 1}

// Supported reports whether every multiplicity is at most one.
func (c ContractionShape) Supported() bool {
	return c.Batch <= 1 && c.M <= 1 && c.N <= 1 && c.K <= 1 &&
		c.Batch >= 0 && c.M >= 0 && c.N >= 0 && c.K >= 0
}

// HasBatch reports whether the contraction has a batch dimension.
func (c ContractionShape) HasBatch() bool {
	return c.Batch > 0
}

// Dim identifies the M or N matmul dimension.
type Dim int

const (
	// DimNone means no narrowing hint.
	DimNone Dim = iota
	// DimM is the row dimension of the left operand and the result.
	DimM
	// DimN is the column dimension of the right operand and the result.
	DimN
)

// String returns "M", "N" or "none".
func (d Dim) String() string {
	switch d {
	case DimM:
		return "M"
	case DimN:
		return "N"
	default:
		return "none"
	}
}

// NarrowDim records that M or N is known at compile time to be small. The
// zero value carries no hint.
type NarrowDim struct {
	Dim  Dim
	Size int64
}

// NarrowM returns a hint that M is at most size.
func NarrowM(size int64) NarrowDim {
	return NarrowDim{Dim: DimM, Size: size}
}

// NarrowN returns a hint that N is at most size.
func NarrowN(size int64) NarrowDim {
	return NarrowDim{Dim: DimN, Size: size}
}

// IsSet reports whether the hint is present.
func (n NarrowDim) IsSet() bool {
	return n.Dim != DimNone
}

// IsM reports whether M is the narrow dimension.
func (n NarrowDim) IsM() bool { return n.Dim == DimM }

// IsN reports whether N is the narrow dimension.
func (n NarrowDim) IsN() bool { return n.Dim == DimN }

func (n NarrowDim) String() string {
	if !n.IsSet() {
		return "none"
	}
	return fmt.Sprintf("%s:%d", n.Dim, n.Size)
}

// Bounds are per-dimension upper bounds on the tile (the "round dims to"
// sizes of an encoding). A candidate tile larger than the bound in any
// dimension is not eligible.
type Bounds struct {
	M, N, K int64
}

// Transposed swaps the M and N bounds.
func (b Bounds) Transposed() Bounds {
	return Bounds{M: b.N, N: b.M, K: b.K}
}

// Admits reports whether t fits within the bounds.
func (b Bounds) Admits(t MxNxK) bool {
	return t.M <= b.M && t.N <= b.N && t.K <= b.K
}

func (b Bounds) String() string {
	return fmt.Sprintf("%dx%dx%d", b.M, b.N, b.K)
}

// powerOf2Ceil returns the smallest power of two >= n, and 0 for n <= 0.
func powerOf2Ceil(n int64) int64 {
	if n <= 0 {
		return 0
	}
	if n > 1<<62 {
		return math.MaxInt64
	}
	return 1 << bits.Len64(uint64(n-1))
}
