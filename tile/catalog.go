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

package tile

import "github.com/ajroetker/go-datatile/target"

// Problem is what the catalog needs to know about a matmul.
type Problem struct {
	Shape  ContractionShape
	Types  Triple
	Narrow NarrowDim
}

// Enumerate lists the tile shapes to choose from for p on desc, widest M
// first. Each later entry is a truncation of the first along M, with N and K
// unchanged; microkernels rely on that.
//
// Only narrow-M cases are enumerated. Narrow-N is handled by transposition
// in Choose.
//
// dynamicTiles tells whether the caller can resolve tile sizes at run time.
// Without it the run-time resolved (fully Dynamic) entry is never returned.
//
// An empty result is not an error: it means there is no architecture
// optimized tile for this case and the caller should leave the operands
// untiled.
func Enumerate(p Problem, desc target.Descriptor, dynamicTiles bool) []MxNxK {
	// Only contractions with {Batch, M, N, K} multiplicities <= 1 are known.
	if !p.Shape.Supported() {
		return nil
	}
	switch desc.Family {
	case target.FamilyGeneric:
		return enumerateGeneric(p, desc, dynamicTiles)
	case target.FamilyArm64:
		return enumerateArm64(p.Types, desc)
	case target.FamilyX86_64:
		return enumerateX86_64(p.Types, desc)
	case target.FamilyRISCV32:
		return enumerateRISCV32(desc)
	case target.FamilyRISCV64:
		return enumerateRISCV64()
	}
	return nil
}

// Truncations returns widest followed by its M truncations: M/2, M/4, ...,
// down to 1. A non power of two widest M (7 on riscv64) is followed by the
// largest power of two below it.
func Truncations(widest MxNxK) []MxNxK {
	tiles := []MxNxK{widest}
	for m := powerOf2Ceil(widest.M) / 2; m >= 1; m /= 2 {
		tiles = append(tiles, MxNxK{M: m, N: widest.N, K: widest.K})
	}
	return tiles
}

func enumerateGeneric(p Problem, desc target.Descriptor, dynamicTiles bool) []MxNxK {
	// The ukernel path cannot query 3-D tile sizes and has no narrow
	// variants, so batch and narrow cases take the static tiles.
	if desc.Ukernels && dynamicTiles && !p.Shape.HasBatch() && !p.Narrow.IsSet() {
		return []MxNxK{DynamicTile()}
	}
	// Some vaguely reasonable tile shape, and its truncations.
	return Truncations(MxNxK{8, 8, 4})
}

func enumerateRISCV32(desc target.Descriptor) []MxNxK {
	if desc.Ukernels {
		return Truncations(MxNxK{8, 8, 4})
	}
	return nil
}

func enumerateRISCV64() []MxNxK {
	// Tuned for VLEN=256: 7 rows of vfmacc keep every vector register busy.
	return Truncations(MxNxK{7, 32, 1})
}

func enumerateArm64(types Triple, desc target.Descriptor) []MxNxK {
	// Data tiling for SVE is not implemented.
	if desc.HasFeature("sve") || desc.HasFeature("sve2") {
		return nil
	}

	if types.floatOut() {
		if types.bf16Dot() && desc.HasFeature("bf16") {
			return Truncations(MxNxK{8, 8, 4}) // BFMMLA
		}
		if types.bothFloat() {
			// 16-bit floats use the f32 tile: either the accumulator is
			// f32 or the arithmetic widens to f32 in registers anyway.
			return Truncations(MxNxK{8, 8, 1}) // FMLA, FMLAL
		}
	}

	if types.LHS == I8 && types.RHS == I8 && types.Out == I32 {
		if desc.HasFeature("i8mm") {
			return Truncations(MxNxK{8, 8, 8}) // SMMLA
		}
		if desc.HasFeature("dotprod") {
			return Truncations(MxNxK{8, 8, 4}) // SDOT
		}
	}

	if types.LHS == I8 && (types.RHS == U4 || types.RHS == I4) && types.Out == I32 {
		if desc.HasFeature("i8mm") {
			return Truncations(MxNxK{4, 8, 16})
		}
		if desc.HasFeature("dotprod") {
			return Truncations(MxNxK{8, 8, 8})
		}
		return Truncations(MxNxK{4, 16, 2})
	}

	return nil
}

func enumerateX86_64(types Triple, desc target.Descriptor) []MxNxK {
	if types.floatOut() {
		if types.bf16Dot() && desc.HasFeature("avx512bf16") {
			return Truncations(MxNxK{16, 16, 2}) // VDPBF16PS (zmm)
		}
		if types.bothFloat() {
			switch {
			case desc.HasFeature("avx512f"):
				return Truncations(MxNxK{16, 16, 1}) // VFMADD* (zmm)
			case desc.HasFeature("avx"):
				// Most +avx users also want +fma. That only changes
				// instruction selection, not the tile layout.
				return Truncations(MxNxK{8, 8, 1}) // VFMADD* (ymm)
			default:
				return Truncations(MxNxK{8, 4, 1}) // MULPS/ADDPS (xmm)
			}
		}
	}

	if types.Out == I32 &&
		((types.LHS == I8 && types.RHS == I8) || (types.LHS == I16 && types.RHS == I16)) {
		switch {
		case desc.HasFeature("avx512vnni"):
			// Same tile as VPMADDWD; VPDPWSSD only adds accumulation.
			// VPDPBUSD would want 16x16x4 but its unsigned*signed
			// semantics do not fit.
			return Truncations(MxNxK{16, 16, 2}) // VPDPWSSD (zmm)
		case desc.HasFeature("avx512bw"):
			return Truncations(MxNxK{16, 16, 2}) // VPMADDWD (zmm)
		case desc.HasFeature("avx2"):
			return Truncations(MxNxK{8, 8, 2}) // VPMADDWD (ymm)
		default:
			return Truncations(MxNxK{8, 4, 2}) // PMADDWD (xmm)
		}
	}

	if types.Out == I32 && types.LHS == I16 && types.RHS == U4 {
		// Vecmat only for now.
		if desc.HasFeature("avx512vnni") {
			return []MxNxK{{1, 32, 8}} // VPDPBUSD (zmm)
		}
	}

	return nil
}
