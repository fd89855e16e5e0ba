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

import "math"

// BFloat16 is a brain float: a float32 with the low 16 mantissa bits dropped.
//
//	S | EEEEEEEE | MMMMMMM
type BFloat16 uint16

// Float16 is an IEEE 754 binary16 number.
//
//	S | EEEEE | MMMMMMMMMM
type Float16 uint16

// BF16 rounds f to the nearest BFloat16, ties to even. NaNs stay NaN.
func BF16(f float32) BFloat16 {
	bits := math.Float32bits(f)
	if bits&0x7FFFFFFF > 0x7F800000 {
		// Keep the sign, force the quiet bit.
		return BFloat16((bits >> 16) | 0x0040)
	}
	// Adding 0x7FFF plus the lowest kept bit rounds to nearest even.
	bits += 0x7FFF + ((bits >> 16) & 1)
	return BFloat16(bits >> 16)
}

// Float32 widens b to float32 exactly.
func (b BFloat16) Float32() float32 {
	return math.Float32frombits(uint32(b) << 16)
}

// F16 rounds f to the nearest Float16, ties to even. Values beyond the
// binary16 range become infinities, values below its smallest denormal
// become zeros.
func F16(f float32) Float16 {
	bits := math.Float32bits(f)
	sign := uint16((bits >> 16) & 0x8000)
	exp := int((bits>>23)&0xFF) - 127 + 15
	mant := bits & 0x7FFFFF

	switch {
	case exp == 0xFF-127+15:
		if mant != 0 {
			return Float16(sign | 0x7E00 | uint16(mant>>13))
		}
		return Float16(sign | 0x7C00)
	case exp >= 31:
		return Float16(sign | 0x7C00)
	case exp <= 0:
		if exp < -10 {
			return Float16(sign)
		}
		// Denormal: make the implicit bit explicit, then shift into place.
		// Bits shifted out below bit 0 stay as a sticky bit for the
		// rounding test.
		full, shift := mant|0x800000, uint(1-exp)
		mant = full >> shift
		if full&(1<<shift-1) != 0 {
			mant |= 1
		}
		if mant&0x1000 != 0 && mant&0x2FFF != 0 {
			mant += 0x2000
		}
		return Float16(sign | uint16(mant>>13))
	}

	// Bit 12 is the rounding bit; round up if the result would be odd or
	// anything below it is set.
	if mant&0x1000 != 0 && mant&0x2FFF != 0 {
		mant += 0x2000
		if mant&0x800000 != 0 {
			mant = 0
			exp++
			if exp >= 31 {
				return Float16(sign | 0x7C00)
			}
		}
	}
	return Float16(sign | uint16(exp<<10) | uint16(mant>>13))
}

// Float32 widens h to float32 exactly.
func (h Float16) Float32() float32 {
	bits := uint32(h)
	sign := bits >> 15 << 31
	exp := (bits >> 10) & 0x1F
	mant := bits & 0x3FF

	switch exp {
	case 0:
		if mant == 0 {
			return math.Float32frombits(sign)
		}
		// Normalize the denormal.
		e := int32(1)
		for mant&0x400 == 0 {
			mant <<= 1
			e--
		}
		mant &= 0x3FF
		return math.Float32frombits(sign | uint32(e+127-15)<<23 | mant<<13)
	case 31:
		if mant == 0 {
			return math.Float32frombits(sign | 0x7F800000)
		}
		return math.Float32frombits(sign | 0x7FC00000 | mant<<13)
	}
	return math.Float32frombits(sign | (exp+127-15)<<23 | mant<<13)
}
