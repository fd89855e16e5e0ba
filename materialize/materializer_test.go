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
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ajroetker/go-datatile/target"
	"github.com/ajroetker/go-datatile/tile"
)

func encoded(role OperandRole, types tile.Triple, shape ...int64) TensorType {
	elem := types.Out
	switch role {
	case RoleLHS:
		elem = types.LHS
	case RoleRHS:
		elem = types.RHS
	}
	c := tile.Matmul
	if len(shape) == 3 {
		c = tile.BatchMatmul
	}
	return TensorType{
		Shape:    shape,
		Elem:     elem,
		Encoding: &EncodingAttr{Role: role, Types: types, Contraction: c},
	}
}

func withNarrow(t TensorType, n tile.NarrowDim) TensorType {
	enc := *t.Encoding
	enc.Narrow = n
	t.Encoding = &enc
	return t
}

func TestMaterializeLayouts(t *testing.T) {
	avx512 := target.MustParse("x86_64,+avx512f")
	neon := target.MustParse("arm64")
	tests := []struct {
		name   string
		target target.Descriptor
		tensor TensorType
		tile   tile.MxNxK
		info   EncodingInfo
		packed []int64
	}{
		{
			name:   "lhs",
			target: avx512,
			tensor: encoded(RoleLHS, tile.F32F32F32, 13, 5),
			tile:   tile.MxNxK{M: 16, N: 16, K: 1},
			info:   EncodingInfo{InnerDimsPos: []int{0, 1}, InnerTileSizes: []int64{16, 1}, OuterDimsPerm: []int{0, 1}},
			packed: []int64{1, 5, 16, 1},
		},
		{
			name:   "rhs",
			target: avx512,
			tensor: encoded(RoleRHS, tile.F32F32F32, 5, 7),
			tile:   tile.MxNxK{M: 16, N: 16, K: 1},
			info:   EncodingInfo{InnerDimsPos: []int{1, 0}, InnerTileSizes: []int64{16, 1}, OuterDimsPerm: []int{1, 0}},
			packed: []int64{1, 5, 16, 1},
		},
		{
			name:   "result",
			target: avx512,
			tensor: encoded(RoleResult, tile.F32F32F32, 13, 7),
			tile:   tile.MxNxK{M: 16, N: 16, K: 1},
			info:   EncodingInfo{InnerDimsPos: []int{0, 1}, InnerTileSizes: []int64{16, 16}, OuterDimsPerm: []int{0, 1}},
			packed: []int64{1, 1, 16, 16},
		},
		{
			name:   "batch lhs",
			target: neon,
			tensor: encoded(RoleLHS, tile.F32F32F32, 3, 13, 5),
			tile:   tile.MxNxK{M: 8, N: 8, K: 1},
			info:   EncodingInfo{InnerDimsPos: []int{1, 2}, InnerTileSizes: []int64{8, 1}, OuterDimsPerm: []int{0, 1, 2}},
			packed: []int64{3, 2, 5, 8, 1},
		},
		{
			name:   "batch rhs",
			target: neon,
			tensor: encoded(RoleRHS, tile.F32F32F32, 3, 5, 20),
			tile:   tile.MxNxK{M: 8, N: 8, K: 1},
			info:   EncodingInfo{InnerDimsPos: []int{2, 1}, InnerTileSizes: []int64{8, 1}, OuterDimsPerm: []int{0, 2, 1}},
			packed: []int64{3, 3, 5, 8, 1},
		},
		{
			name:   "narrow M lhs",
			target: neon,
			tensor: withNarrow(encoded(RoleLHS, tile.F32F32F32, 3, 5), tile.NarrowM(3)),
			tile:   tile.MxNxK{M: 4, N: 8, K: 1},
			info:   EncodingInfo{InnerDimsPos: []int{0, 1}, InnerTileSizes: []int64{4, 1}, OuterDimsPerm: []int{0, 1}},
			packed: []int64{1, 5, 4, 1},
		},
		{
			name:   "narrow N lhs is not transposed",
			target: neon,
			tensor: withNarrow(encoded(RoleLHS, tile.F32F32F32, 13, 5), tile.NarrowN(3)),
			tile:   tile.MxNxK{M: 8, N: 4, K: 1},
			info:   EncodingInfo{InnerDimsPos: []int{0, 1}, InnerTileSizes: []int64{8, 1}, OuterDimsPerm: []int{0, 1}},
			packed: []int64{2, 5, 8, 1},
		},
		{
			name:   "narrow N result is transposed",
			target: neon,
			tensor: withNarrow(encoded(RoleResult, tile.F32F32F32, 13, 3), tile.NarrowN(3)),
			tile:   tile.MxNxK{M: 8, N: 4, K: 1},
			info:   EncodingInfo{InnerDimsPos: []int{1, 0}, InnerTileSizes: []int64{4, 8}, OuterDimsPerm: []int{1, 0}},
			packed: []int64{1, 2, 4, 8},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.target, Options{})
			packed, res, err := m.MaterializedType(tt.tensor)
			if err != nil {
				t.Fatalf("MaterializedType(%s) error = %v", tt.tensor, err)
			}
			if res.Tile != tt.tile {
				t.Errorf("Tile = %v, want %v", res.Tile, tt.tile)
			}
			if diff := cmp.Diff(tt.info, res.Info); diff != "" {
				t.Errorf("Info mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.packed, packed.Shape); diff != "" {
				t.Errorf("packed shape mismatch (-want +got):\n%s", diff)
			}
			if packed.Encoding != nil || packed.Elem != tt.tensor.Elem {
				t.Errorf("packed type = %s", packed)
			}
			if res.Query != nil {
				t.Errorf("Query = %v, want nil", res.Query)
			}
		})
	}
}

func TestMaterializeNotApplicable(t *testing.T) {
	lhs := encoded(RoleLHS, tile.F32F32F32, 13, 5)
	badRank := encoded(RoleLHS, tile.F32F32F32, 13, 5)
	badRank.Shape = []int64{2, 13, 5}
	badShape := encoded(RoleLHS, tile.F32F32F32, 13, 5)
	badShape.Encoding.Contraction = tile.ContractionShape{M: 2, N: 1, K: 1}
	badRole := encoded(RoleLHS, tile.F32F32F32, 13, 5)
	badRole.Encoding.Role = RoleUnknown

	tests := []struct {
		name      string
		target    string
		tensor    TensorType
		malformed bool
	}{
		{"no encoding", "x86_64", lhs.WithoutEncoding(), false},
		{"no catalog", "riscv32", lhs, false},
		{"sve", "arm64,+sve", lhs, false},
		{"f64", "x86_64,+avx512f", encoded(RoleLHS, tile.Triple{LHS: tile.F64, RHS: tile.F64, Out: tile.F64}, 13, 5), false},
		{"unknown family", "", lhs, false},
		{"rank mismatch", "x86_64", badRank, true},
		{"multiplicity", "x86_64", badShape, true},
		{"unknown role", "x86_64", badRole, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var desc target.Descriptor
			if tt.target != "" {
				desc = target.MustParse(tt.target)
			}
			_, err := New(desc, Options{}).Materialize(tt.tensor)
			if !errors.Is(err, ErrNotApplicable) {
				t.Fatalf("Materialize() error = %v, want ErrNotApplicable", err)
			}
			if got := errors.Is(err, ErrMalformedEncoding); got != tt.malformed {
				t.Errorf("errors.Is(err, ErrMalformedEncoding) = %v, want %v", got, tt.malformed)
			}
		})
	}
}

func TestMaterializeNoCandidate(t *testing.T) {
	lhs := encoded(RoleLHS, tile.F32F32F32, 13, 5)
	lhs.Encoding.RoundDimsTo = &tile.Bounds{M: 8, N: 8, K: 2}
	_, err := New(target.MustParse("generic,ukernels"), Options{}).Materialize(lhs)
	if !errors.Is(err, tile.ErrNoCandidateTile) {
		t.Fatalf("Materialize() error = %v, want ErrNoCandidateTile", err)
	}
	if errors.Is(err, ErrNotApplicable) {
		t.Errorf("no candidate must not be reported as not applicable")
	}
}

func TestMaterializeDynamic(t *testing.T) {
	generic := target.MustParse("generic,ukernels")
	lhs := encoded(RoleLHS, tile.F32F32F32, 13, 5)
	host := RuntimeResolver{Host: target.MustParse("x86_64,+avx512f")}

	m := New(generic, Options{TileSizes: host})
	res, err := m.Materialize(lhs)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Tile.IsFullyDynamic() || res.Query == nil {
		t.Fatalf("Materialize() = %+v, want a dynamic tile and a query", res)
	}
	if !res.Info.IsDynamic() {
		t.Errorf("Info = %s, want dynamic tile sizes", res.Info)
	}
	if got := res.Query.Rank(); got != 2 {
		t.Errorf("Query.Rank() = %d, want 2", got)
	}
	want := []int64{tile.Dynamic, tile.Dynamic, tile.Dynamic, tile.Dynamic}
	if diff := cmp.Diff(want, PackedShape(lhs.Shape, res.Info)); diff != "" {
		t.Errorf("PackedShape mismatch (-want +got):\n%s", diff)
	}

	info, err := ResolveInfo(res, host)
	if err != nil {
		t.Fatal(err)
	}
	wantInfo := EncodingInfo{InnerDimsPos: []int{0, 1}, InnerTileSizes: []int64{16, 1}, OuterDimsPerm: []int{0, 1}}
	if diff := cmp.Diff(wantInfo, info); diff != "" {
		t.Errorf("ResolveInfo mismatch (-want +got):\n%s", diff)
	}
	if !res.Info.IsDynamic() {
		t.Errorf("ResolveInfo modified the result it was given")
	}
	if _, err := ResolveInfo(res, nil); err == nil {
		t.Errorf("ResolveInfo(nil resolver) succeeded, want error")
	}

	// Without a resolver the same target picks static sizes.
	res, err = New(generic, Options{}).Materialize(lhs)
	if err != nil {
		t.Fatal(err)
	}
	if res.Query != nil || res.Tile != (tile.MxNxK{M: 8, N: 8, K: 4}) {
		t.Errorf("static Materialize() = %+v, want 8x8x4", res)
	}
}

func TestRuntimeResolverErrors(t *testing.T) {
	r := RuntimeResolver{Host: target.MustParse("riscv32")}
	_, err := r.ResolveTileSizes(QueryTileSizes{Tensor: encoded(RoleLHS, tile.F32F32F32, 4, 4)})
	if !errors.Is(err, ErrNotApplicable) {
		t.Errorf("ResolveTileSizes() error = %v, want ErrNotApplicable", err)
	}
}

type fixedSizes []int64

func (f fixedSizes) ResolveTileSizes(QueryTileSizes) ([]int64, error) { return f, nil }

func TestResolveInfoValidatesAnswer(t *testing.T) {
	res, err := New(target.MustParse("generic,ukernels"), Options{TileSizes: fixedSizes{1}}).
		Materialize(encoded(RoleRHS, tile.F32F32F32, 5, 7))
	if err != nil {
		t.Fatal(err)
	}
	for _, answer := range []fixedSizes{{8}, {8, 0}, {8, 4, 1}} {
		if _, err := ResolveInfo(res, answer); err == nil {
			t.Errorf("ResolveInfo(%v) succeeded, want error", answer)
		}
	}
}

func TestMaterializeTraceLogsCandidates(t *testing.T) {
	var h recordHandler
	m := New(target.MustParse("arm64"), Options{Logger: newRecordLogger(&h)})
	if _, err := m.Materialize(withNarrow(encoded(RoleLHS, tile.F32F32F32, 3, 5), tile.NarrowM(3))); err != nil {
		t.Fatal(err)
	}
	if got := h.count("tile candidate"); got != 4 {
		t.Errorf("logged %d tile candidates, want 4", got)
	}
	if got := h.count("tile chosen"); got != 1 {
		t.Errorf("logged %d tile choices, want 1", got)
	}
}

func TestTransposeInPlaceSkipsSingleTile(t *testing.T) {
	info := EncodingInfo{InnerDimsPos: []int{0}, InnerTileSizes: []int64{8}, OuterDimsPerm: []int{0}}
	transposeInPlace(&info)
	if diff := cmp.Diff(EncodingInfo{InnerDimsPos: []int{0}, InnerTileSizes: []int64{8}, OuterDimsPerm: []int{0}}, info); diff != "" {
		t.Errorf("transposeInPlace changed a single tile layout:\n%s", diff)
	}
}

func TestTensorTypeString(t *testing.T) {
	tt := TensorType{Shape: []int64{tile.Dynamic, 5}, Elem: tile.BF16}
	if got, want := tt.String(), "tensor<?x5xbf16>"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	enc := encoded(RoleRHS, tile.I8I8I32, 4, 4)
	if got, want := enc.String(), "tensor<4x4xi8, #encoding<rhs, [i8,i8,i32], b0 m1 n1 k1>>"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
