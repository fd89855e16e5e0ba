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

package ukernel

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/ajroetker/go-datatile/target"
	"github.com/ajroetker/go-datatile/tile"
)

// ErrNoKernel is returned when the registry has no kernel for a key.
var ErrNoKernel = errors.New("no microkernel")

// Key identifies a kernel: the architecture family it is tuned for, the
// element types and the tile shape.
type Key struct {
	Family target.Family
	Types  tile.Triple
	Tile   tile.MxNxK
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Family, k.Types, k.Tile)
}

type entry struct {
	kernel any // Kernel[L, R, O] for the Go types of Key.Types
	widest tile.MxNxK
}

// Registry maps keys to kernels. It is read-only after construction.
type Registry struct {
	entries map[Key]entry
}

// Triples lists the element type combinations that have kernels.
func Triples() []tile.Triple {
	return slices.Clone(kernelTriples)
}

var (
	floatTriples  = []tile.Triple{tile.F32F32F32, tile.F16F16F32, tile.F16F16F16, tile.BF16BF16F32, tile.BF16BF16BF16}
	bf16Triples   = []tile.Triple{tile.BF16BF16F32, tile.BF16BF16BF16}
	int4Triples   = []tile.Triple{tile.I8U4I32, tile.I8I4I32}
	kernelTriples = append(slices.Clone(floatTriples), tile.I8I8I32, tile.I16I16I32, tile.I8U4I32, tile.I8I4I32, tile.I16U4I32)
)

// widestTiles lists, per family, the widest tile of each kernel family.
// Every other registered tile is one of these truncated along M.
var widestTiles = []struct {
	family target.Family
	types  []tile.Triple
	tile   tile.MxNxK
	fused  bool
}{
	{target.FamilyGeneric, kernelTriples, tile.MxNxK{M: 8, N: 8, K: 4}, true},
	{target.FamilyRISCV32, kernelTriples, tile.MxNxK{M: 8, N: 8, K: 4}, true},
	{target.FamilyRISCV64, kernelTriples, tile.MxNxK{M: 7, N: 32, K: 1}, true},

	{target.FamilyArm64, floatTriples, tile.MxNxK{M: 8, N: 8, K: 1}, true},
	{target.FamilyArm64, bf16Triples, tile.MxNxK{M: 8, N: 8, K: 4}, true},
	{target.FamilyArm64, []tile.Triple{tile.I8I8I32}, tile.MxNxK{M: 8, N: 8, K: 8}, true},
	{target.FamilyArm64, []tile.Triple{tile.I8I8I32}, tile.MxNxK{M: 8, N: 8, K: 4}, true},
	{target.FamilyArm64, int4Triples, tile.MxNxK{M: 4, N: 8, K: 16}, true},
	{target.FamilyArm64, int4Triples, tile.MxNxK{M: 8, N: 8, K: 8}, true},
	{target.FamilyArm64, int4Triples, tile.MxNxK{M: 4, N: 16, K: 2}, true},

	{target.FamilyX86_64, floatTriples, tile.MxNxK{M: 16, N: 16, K: 1}, true},
	{target.FamilyX86_64, floatTriples, tile.MxNxK{M: 8, N: 8, K: 1}, true},
	{target.FamilyX86_64, floatTriples, tile.MxNxK{M: 8, N: 4, K: 1}, false}, // SSE has no FMA
	{target.FamilyX86_64, bf16Triples, tile.MxNxK{M: 16, N: 16, K: 2}, true},
	{target.FamilyX86_64, []tile.Triple{tile.I8I8I32, tile.I16I16I32}, tile.MxNxK{M: 16, N: 16, K: 2}, true},
	{target.FamilyX86_64, []tile.Triple{tile.I8I8I32, tile.I16I16I32}, tile.MxNxK{M: 8, N: 8, K: 2}, true},
	{target.FamilyX86_64, []tile.Triple{tile.I8I8I32, tile.I16I16I32}, tile.MxNxK{M: 8, N: 4, K: 2}, true},
	{target.FamilyX86_64, []tile.Triple{tile.I16U4I32}, tile.MxNxK{M: 1, N: 32, K: 8}, true},
}

// Default returns the registry of every built-in kernel. It is built once.
var Default = sync.OnceValue(NewRegistry)

// NewRegistry builds a registry of every built-in kernel and all of its M
// truncations.
func NewRegistry() *Registry {
	r := &Registry{entries: map[Key]entry{}}
	for _, w := range widestTiles {
		for _, types := range w.types {
			kernel := newKernel(types, w.tile, w.fused)
			for _, t := range tile.Truncations(w.tile) {
				key := Key{Family: w.family, Types: types, Tile: t}
				if _, dup := r.entries[key]; dup {
					panic(fmt.Sprintf("ukernel: kernel %s registered twice", key))
				}
				r.entries[key] = entry{kernel: truncateAny(kernel, t.M), widest: w.tile}
			}
		}
	}
	return r
}

// newKernel instantiates the widest kernel for types with the Go element
// types that represent them.
func newKernel(types tile.Triple, t tile.MxNxK, fused bool) any {
	switch types {
	case tile.F32F32F32:
		return floatKernel(t, fused, f32, f32, f32, f32)
	case tile.F16F16F32:
		return floatKernel(t, fused, f16ToF32, f16ToF32, f32, f32)
	case tile.F16F16F16:
		return floatKernel(t, fused, f16ToF32, f16ToF32, f16ToF32, F16)
	case tile.BF16BF16F32:
		return floatKernel(t, fused, bf16ToF32, bf16ToF32, f32, f32)
	case tile.BF16BF16BF16:
		return floatKernel(t, fused, bf16ToF32, bf16ToF32, bf16ToF32, BF16)
	case tile.I8I8I32:
		return intKernel[int8, int8](t)
	case tile.I16I16I32:
		return intKernel[int16, int16](t)
	case tile.I8U4I32:
		return int4Kernel[int8](t, false)
	case tile.I8I4I32:
		return int4Kernel[int8](t, true)
	case tile.I16U4I32:
		return int4Kernel[int16](t, false)
	}
	panic(fmt.Sprintf("ukernel: no kernel implementation for %s", types))
}

func truncateAny(kernel any, m0 int64) any {
	switch k := kernel.(type) {
	case Kernel[float32, float32, float32]:
		return k.Truncate(m0)
	case Kernel[Float16, Float16, float32]:
		return k.Truncate(m0)
	case Kernel[Float16, Float16, Float16]:
		return k.Truncate(m0)
	case Kernel[BFloat16, BFloat16, float32]:
		return k.Truncate(m0)
	case Kernel[BFloat16, BFloat16, BFloat16]:
		return k.Truncate(m0)
	case Kernel[int8, int8, int32]:
		return k.Truncate(m0)
	case Kernel[int16, int16, int32]:
		return k.Truncate(m0)
	case Kernel[int8, uint8, int32]:
		return k.Truncate(m0)
	case Kernel[int16, uint8, int32]:
		return k.Truncate(m0)
	}
	panic(fmt.Sprintf("ukernel: unexpected kernel type %T", kernel))
}

// Has reports whether the registry has a kernel for key.
func (r *Registry) Has(key Key) bool {
	_, ok := r.entries[key]
	return ok
}

// Widest returns the tile the kernel of key was truncated from.
func (r *Registry) Widest(key Key) (tile.MxNxK, bool) {
	e, ok := r.entries[key]
	return e.widest, ok
}

// Keys returns every registered key, sorted by family, types and tile.
func (r *Registry) Keys() []Key {
	keys := lo.Keys(r.entries)
	slices.SortFunc(keys, func(a, b Key) int {
		return strings.Compare(a.sortKey(), b.sortKey())
	})
	return keys
}

func (k Key) sortKey() string {
	return fmt.Sprintf("%d/%s/%04d/%04d/%04d", k.Family, k.Types, k.Tile.K, k.Tile.N, 9999-k.Tile.M)
}

// Lookup returns the kernel for key. L, R and O must be the Go types of the
// key's element types: float32, Float16, BFloat16, int8, int16, int32, or
// uint8 for packed 4-bit operands.
func Lookup[L, R, O any](r *Registry, key Key) (Kernel[L, R, O], error) {
	e, ok := r.entries[key]
	if !ok {
		return Kernel[L, R, O]{}, fmt.Errorf("ukernel: %s: %w", key, ErrNoKernel)
	}
	k, ok := e.kernel.(Kernel[L, R, O])
	if !ok {
		var want Kernel[L, R, O]
		return Kernel[L, R, O]{}, fmt.Errorf("ukernel: %s is a %T, not a %T", key, e.kernel, want)
	}
	return k, nil
}

// ForHost returns the kernel for types and t on the machine this process
// runs on, as described by target.Host.
func ForHost[L, R, O any](types tile.Triple, t tile.MxNxK) (Kernel[L, R, O], error) {
	return Lookup[L, R, O](Default(), Key{Family: target.Host().Family, Types: types, Tile: t})
}
