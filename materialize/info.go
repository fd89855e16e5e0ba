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

package materialize

import (
	"fmt"
	"slices"

	"github.com/ajroetker/go-datatile/tile"
)

// EncodingInfo describes a packed layout.
//
// InnerDimsPos[i] is the source dimension tiled by InnerTileSizes[i]. The
// packed tensor has the outer (tile count) dimensions, ordered by
// OuterDimsPerm, followed by one inner dimension per tiled source dimension.
// InnerTileSizes may hold tile.Dynamic when sizes are resolved at run time.
type EncodingInfo struct {
	InnerDimsPos   []int
	InnerTileSizes []int64
	OuterDimsPerm  []int
}

// IsDynamic reports whether any inner tile size is tile.Dynamic.
func (e EncodingInfo) IsDynamic() bool {
	return slices.ContainsFunc(e.InnerTileSizes, tile.IsDynamic)
}

// Clone returns a deep copy.
func (e EncodingInfo) Clone() EncodingInfo {
	return EncodingInfo{
		InnerDimsPos:   slices.Clone(e.InnerDimsPos),
		InnerTileSizes: slices.Clone(e.InnerTileSizes),
		OuterDimsPerm:  slices.Clone(e.OuterDimsPerm),
	}
}

func (e EncodingInfo) String() string {
	tiles := make([]string, len(e.InnerTileSizes))
	for i, s := range e.InnerTileSizes {
		if tile.IsDynamic(s) {
			tiles[i] = "?"
		} else {
			tiles[i] = fmt.Sprint(s)
		}
	}
	return fmt.Sprintf("inner_dims_pos=%v inner_tiles=%v outer_dims_perm=%v", e.InnerDimsPos, tiles, e.OuterDimsPerm)
}

// validate checks that the info is consistent with a tensor of the given
// rank.
func (e EncodingInfo) validate(rank int) error {
	if len(e.InnerDimsPos) != len(e.InnerTileSizes) {
		return fmt.Errorf("materialize: %d inner dims but %d inner tile sizes", len(e.InnerDimsPos), len(e.InnerTileSizes))
	}
	if len(e.OuterDimsPerm) != rank {
		return fmt.Errorf("materialize: outer dims permutation %v does not match rank %d", e.OuterDimsPerm, rank)
	}
	seen := make([]bool, rank)
	for _, p := range e.OuterDimsPerm {
		if p < 0 || p >= rank || seen[p] {
			return fmt.Errorf("materialize: outer dims permutation %v is not a permutation of rank %d", e.OuterDimsPerm, rank)
		}
		seen[p] = true
	}
	clear(seen)
	for i, p := range e.InnerDimsPos {
		if p < 0 || p >= rank || seen[p] {
			return fmt.Errorf("materialize: invalid inner dims position %v", e.InnerDimsPos)
		}
		seen[p] = true
		if s := e.InnerTileSizes[i]; !tile.IsDynamic(s) && s <= 0 {
			return fmt.Errorf("materialize: inner tile size %d must be positive", s)
		}
	}
	return nil
}

// infoForMatmul maps the chosen tile onto an operand's dimensions. Outer
// dimensions are ordered batch, M, N, K (restricted to the operand's
// dimensions), and the M, N and K dimensions the operand has are tiled by the
// matching tile size, in that order. This yields the mmt4d layouts:
//
//	LHS    [M, K] -> [M1, K1, M0, K0]
//	RHS    [K, N] -> [N1, K1, N0, K0]
//	RESULT [M, N] -> [M1, N1, M0, N0]
func infoForMatmul(d operandDims, t tile.MxNxK) EncodingInfo {
	var info EncodingInfo
	if d.batch >= 0 {
		info.OuterDimsPerm = append(info.OuterDimsPerm, d.batch)
	}
	for _, dt := range []struct {
		pos  int
		size int64
	}{{d.m, t.M}, {d.n, t.N}, {d.k, t.K}} {
		if dt.pos < 0 {
			continue
		}
		info.OuterDimsPerm = append(info.OuterDimsPerm, dt.pos)
		info.InnerDimsPos = append(info.InnerDimsPos, dt.pos)
		info.InnerTileSizes = append(info.InnerTileSizes, dt.size)
	}
	return info
}

// transposeInPlace swaps the last two inner dimensions and the last two outer
// dimensions. It turns a narrow-N result layout into the layout of the
// equivalent narrow-M problem. Layouts with fewer than two inner tiles are
// left alone.
func transposeInPlace(info *EncodingInfo) {
	n := len(info.InnerTileSizes)
	if n < 2 {
		return
	}
	swapLast2 := func(s []int) {
		s[len(s)-1], s[len(s)-2] = s[len(s)-2], s[len(s)-1]
	}
	swapLast2(info.InnerDimsPos)
	info.InnerTileSizes[n-1], info.InnerTileSizes[n-2] = info.InnerTileSizes[n-2], info.InnerTileSizes[n-1]
	swapLast2(info.OuterDimsPerm)
}

// PackedShape returns the shape of a tensor of the given logical shape packed
// with info: the ceil-divided outer dimensions in OuterDimsPerm order,
// followed by the inner tile sizes. Dynamic source dimensions or tile sizes
// give dynamic outer dimensions.
func PackedShape(shape []int64, info EncodingInfo) []int64 {
	outer := slices.Clone(shape)
	for i, pos := range info.InnerDimsPos {
		size := info.InnerTileSizes[i]
		if tile.IsDynamic(size) || tile.IsDynamic(outer[pos]) {
			outer[pos] = tile.Dynamic
			continue
		}
		outer[pos] = ceilDiv(outer[pos], size)
	}
	packed := make([]int64, 0, len(shape)+len(info.InnerTileSizes))
	for _, p := range info.OuterDimsPerm {
		packed = append(packed, outer[p])
	}
	return append(packed, info.InnerTileSizes...)
}

// PaddingFree reports whether every tiled dimension of shape is a multiple of
// its static tile size, that is, packing adds no padding.
func PaddingFree(shape []int64, info EncodingInfo) bool {
	for i, pos := range info.InnerDimsPos {
		size := info.InnerTileSizes[i]
		if tile.IsDynamic(size) || tile.IsDynamic(shape[pos]) || shape[pos]%size != 0 {
			return false
		}
	}
	return true
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}
