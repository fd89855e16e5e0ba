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
	"fmt"
)

// ErrDynamicShape is returned when packing needs a static shape and static
// tile sizes but got a dynamic one.
var ErrDynamicShape = errors.New("dynamic shape or tile size")

// Pack copies src, a row-major tensor of the given logical shape, into the
// packed layout described by info. Elements of partial tiles that fall
// outside the source are set to pad.
//
// Returns the packed data and its shape.
func Pack[T any](src []T, shape []int64, info EncodingInfo, pad T) ([]T, []int64, error) {
	l, err := newPackLayout(shape, info)
	if err != nil {
		return nil, nil, err
	}
	if int64(len(src)) != l.srcSize {
		return nil, nil, fmt.Errorf("materialize: Pack source has %d elements, shape %v needs %d", len(src), shape, l.srcSize)
	}
	packed := make([]T, l.packedSize)
	l.walk(func(packedIdx, srcIdx int64) {
		if srcIdx < 0 {
			packed[packedIdx] = pad
		} else {
			packed[packedIdx] = src[srcIdx]
		}
	})
	return packed, l.packedShape, nil
}

// Unpack is the inverse of Pack: it returns the row-major tensor of the given
// logical shape, dropping padding.
func Unpack[T any](packed []T, shape []int64, info EncodingInfo) ([]T, error) {
	l, err := newPackLayout(shape, info)
	if err != nil {
		return nil, err
	}
	if int64(len(packed)) != l.packedSize {
		return nil, fmt.Errorf("materialize: Unpack input has %d elements, packed shape %v needs %d", len(packed), l.packedShape, l.packedSize)
	}
	dst := make([]T, l.srcSize)
	l.walk(func(packedIdx, srcIdx int64) {
		if srcIdx >= 0 {
			dst[srcIdx] = packed[packedIdx]
		}
	})
	return dst, nil
}

// packLayout maps packed coordinates back to source coordinates.
type packLayout struct {
	shape       []int64 // logical shape
	srcStrides  []int64 // row-major strides of the logical shape
	packedShape []int64
	srcSize     int64
	packedSize  int64

	// For packed dimension p: the source dimension it contributes to, and
	// the factor its coordinate is multiplied by before being added.
	srcDim []int
	scale  []int64
}

func newPackLayout(shape []int64, info EncodingInfo) (*packLayout, error) {
	rank := len(shape)
	if err := info.validate(rank); err != nil {
		return nil, err
	}
	tileOf := make([]int64, rank)
	for d := range tileOf {
		tileOf[d] = 1
	}
	for i, pos := range info.InnerDimsPos {
		tileOf[pos] = info.InnerTileSizes[i]
	}
	for d, s := range shape {
		if s < 0 || tileOf[d] < 0 {
			return nil, fmt.Errorf("materialize: shape %v with %s: %w", shape, info, ErrDynamicShape)
		}
	}

	l := &packLayout{
		shape:       shape,
		srcStrides:  make([]int64, rank),
		packedShape: PackedShape(shape, info),
		srcSize:     1,
		packedSize:  1,
	}
	for d := rank - 1; d >= 0; d-- {
		l.srcStrides[d] = l.srcSize
		l.srcSize *= shape[d]
	}
	for _, s := range l.packedShape {
		l.packedSize *= s
	}
	for _, d := range info.OuterDimsPerm {
		l.srcDim = append(l.srcDim, d)
		l.scale = append(l.scale, tileOf[d])
	}
	for _, d := range info.InnerDimsPos {
		l.srcDim = append(l.srcDim, d)
		l.scale = append(l.scale, 1)
	}
	return l, nil
}

// walk calls fn for every packed element in order, with the row-major index
// of its source element, or -1 for padding.
func (l *packLayout) walk(fn func(packedIdx, srcIdx int64)) {
	if l.packedSize == 0 {
		return
	}
	coords := make([]int64, len(l.packedShape))
	src := make([]int64, len(l.shape))
	for idx := int64(0); idx < l.packedSize; idx++ {
		clear(src)
		for p, c := range coords {
			src[l.srcDim[p]] += c * l.scale[p]
		}
		srcIdx := int64(0)
		for d, c := range src {
			if c >= l.shape[d] {
				srcIdx = -1
				break
			}
			srcIdx += c * l.srcStrides[d]
		}
		fn(idx, srcIdx)

		// Advance the packed multi-index, last dimension fastest.
		for p := len(coords) - 1; p >= 0; p-- {
			coords[p]++
			if coords[p] < l.packedShape[p] {
				break
			}
			coords[p] = 0
		}
	}
}
