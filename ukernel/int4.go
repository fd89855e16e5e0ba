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

// 4-bit operands are stored two per byte, element 2i in the low nibble of
// byte i and element 2i+1 in the high nibble.

// PackInt4 packs the low 4 bits of each value, two per byte. An odd count
// leaves the last high nibble zero.
func PackInt4[T ~int8 | ~uint8](vals []T) []uint8 {
	packed := make([]uint8, (len(vals)+1)/2)
	for i, v := range vals {
		nib := uint8(v) & 0xF
		if i%2 == 1 {
			nib <<= 4
		}
		packed[i/2] |= nib
	}
	return packed
}

// U4At returns unsigned 4-bit element i of packed data.
func U4At(data []uint8, i int) int32 {
	b := data[i/2]
	if i%2 == 1 {
		b >>= 4
	}
	return int32(b & 0xF)
}

// I4At returns signed 4-bit element i of packed data, in [-8, 7].
func I4At(data []uint8, i int) int32 {
	return int32(int8(uint8(U4At(data, i))<<4) >> 4)
}
