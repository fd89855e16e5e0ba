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

	"github.com/ajroetker/go-datatile/tile"
)

func iota32(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(i + 1)
	}
	return s
}

// TestPackLHS13x5 packs a 13x5 LHS with a 4x8x1 tile: 4 row tiles, the last
// one with 3 rows of padding.
func TestPackLHS13x5(t *testing.T) {
	shape := []int64{13, 5}
	info := EncodingInfo{InnerDimsPos: []int{0, 1}, InnerTileSizes: []int64{4, 1}, OuterDimsPerm: []int{0, 1}}
	src := iota32(13 * 5)

	packed, packedShape, err := Pack(src, shape, info, float32(-1))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{4, 5, 4, 1}, packedShape); diff != "" {
		t.Fatalf("packed shape mismatch (-want +got):\n%s", diff)
	}
	for m1 := range 4 {
		for k1 := range 5 {
			for m0 := range 4 {
				got := packed[(m1*5+k1)*4+m0]
				want := float32(-1)
				if row := m1*4 + m0; row < 13 {
					want = src[row*5+k1]
				}
				if got != want {
					t.Errorf("packed[%d,%d,%d,0] = %v, want %v", m1, k1, m0, got, want)
				}
			}
		}
	}

	back, err := Unpack(packed, shape, info)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(src, back); diff != "" {
		t.Errorf("Unpack(Pack(x)) mismatch (-want +got):\n%s", diff)
	}
}

func TestPackRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		shape []int64
		info  EncodingInfo
		want  []int64
	}{
		{"rhs", []int64{5, 13}, EncodingInfo{InnerDimsPos: []int{1, 0}, InnerTileSizes: []int64{8, 1}, OuterDimsPerm: []int{1, 0}}, []int64{2, 5, 8, 1}},
		{"rhs k0", []int64{7, 9}, EncodingInfo{InnerDimsPos: []int{1, 0}, InnerTileSizes: []int64{8, 4}, OuterDimsPerm: []int{1, 0}}, []int64{2, 2, 8, 4}},
		{"result", []int64{13, 7}, EncodingInfo{InnerDimsPos: []int{0, 1}, InnerTileSizes: []int64{8, 8}, OuterDimsPerm: []int{0, 1}}, []int64{2, 1, 8, 8}},
		{"transposed result", []int64{13, 3}, EncodingInfo{InnerDimsPos: []int{1, 0}, InnerTileSizes: []int64{4, 8}, OuterDimsPerm: []int{1, 0}}, []int64{1, 2, 4, 8}},
		{"batch", []int64{2, 5, 3}, EncodingInfo{InnerDimsPos: []int{1, 2}, InnerTileSizes: []int64{4, 2}, OuterDimsPerm: []int{0, 1, 2}}, []int64{2, 2, 2, 4, 2}},
		{"vector", []int64{5}, EncodingInfo{InnerDimsPos: []int{0}, InnerTileSizes: []int64{4}, OuterDimsPerm: []int{0}}, []int64{2, 4}},
		{"exact", []int64{8, 4}, EncodingInfo{InnerDimsPos: []int{0, 1}, InnerTileSizes: []int64{8, 4}, OuterDimsPerm: []int{0, 1}}, []int64{1, 1, 8, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := int64(1)
			for _, d := range tt.shape {
				n *= d
			}
			src := iota32(int(n))
			packed, shape, err := Pack(src, tt.shape, tt.info, float32(0))
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, shape); diff != "" {
				t.Errorf("packed shape mismatch (-want +got):\n%s", diff)
			}
			// Every source element appears exactly once.
			var sum, wantSum float32
			for _, v := range packed {
				sum += v
			}
			for _, v := range src {
				wantSum += v
			}
			if sum != wantSum {
				t.Errorf("packed sum = %v, want %v", sum, wantSum)
			}
			back, err := Unpack(packed, tt.shape, tt.info)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(src, back); diff != "" {
				t.Errorf("Unpack(Pack(x)) mismatch (-want +got):\n%s", diff)
			}
			if got, want := PaddingFree(tt.shape, tt.info), tt.name == "exact"; got != want {
				t.Errorf("PaddingFree() = %v, want %v", got, want)
			}
		})
	}
}

func TestPackErrors(t *testing.T) {
	info := EncodingInfo{InnerDimsPos: []int{0, 1}, InnerTileSizes: []int64{4, 1}, OuterDimsPerm: []int{0, 1}}
	if _, _, err := Pack(iota32(3), []int64{2, 2}, info, 0); err == nil {
		t.Errorf("Pack(short source) succeeded")
	}
	if _, _, err := Pack(iota32(4), []int64{tile.Dynamic, 2}, info, 0); !errors.Is(err, ErrDynamicShape) {
		t.Errorf("Pack(dynamic shape) error = %v, want ErrDynamicShape", err)
	}
	dyn := info.Clone()
	dyn.InnerTileSizes[0] = tile.Dynamic
	if _, _, err := Pack(iota32(4), []int64{2, 2}, dyn, 0); !errors.Is(err, ErrDynamicShape) {
		t.Errorf("Pack(dynamic tile) error = %v, want ErrDynamicShape", err)
	}
	bad := EncodingInfo{InnerDimsPos: []int{0, 0}, InnerTileSizes: []int64{4, 1}, OuterDimsPerm: []int{0, 1}}
	if _, _, err := Pack(iota32(4), []int64{2, 2}, bad, 0); err == nil {
		t.Errorf("Pack(repeated inner dim) succeeded")
	}
	if _, err := Unpack(iota32(4), []int64{2, 2}, info); err == nil {
		t.Errorf("Unpack(short packed) succeeded")
	}
}

func TestPackedShapeDynamicSource(t *testing.T) {
	info := EncodingInfo{InnerDimsPos: []int{0, 1}, InnerTileSizes: []int64{8, 1}, OuterDimsPerm: []int{0, 1}}
	got := PackedShape([]int64{tile.Dynamic, 5}, info)
	if diff := cmp.Diff([]int64{tile.Dynamic, 5, 8, 1}, got); diff != "" {
		t.Errorf("PackedShape mismatch (-want +got):\n%s", diff)
	}
}
