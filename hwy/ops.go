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

package hwy

import "math"

// Load creates a vector from the first MaxLanes[T]() elements of src, or
// all of src if it is shorter.
func Load[T Lanes](src []T) Vec[T] {
	n := min(len(src), MaxLanes[T]())
	data := make([]T, n)
	copy(data, src[:n])
	return Vec[T]{data: data}
}

// Store writes the lanes of v to dst, up to len(dst).
func Store[T Lanes](v Vec[T], dst []T) {
	n := min(len(dst), len(v.data))
	copy(dst[:n], v.data[:n])
}

// Set creates a vector with every lane set to value.
func Set[T Lanes](value T) Vec[T] {
	data := make([]T, MaxLanes[T]())
	for i := range data {
		data[i] = value
	}
	return Vec[T]{data: data}
}

// Zero creates a vector of zero lanes.
func Zero[T Lanes]() Vec[T] {
	return Vec[T]{data: make([]T, MaxLanes[T]())}
}

// Add returns a + b.
func Add[T Lanes](a, b Vec[T]) Vec[T] {
	n := min(len(a.data), len(b.data))
	result := make([]T, n)
	for i := range n {
		result[i] = a.data[i] + b.data[i]
	}
	return Vec[T]{data: result}
}

// Mul returns a * b, rounded to T.
func Mul[T Lanes](a, b Vec[T]) Vec[T] {
	n := min(len(a.data), len(b.data))
	result := make([]T, n)
	for i := range n {
		result[i] = T(a.data[i] * b.data[i])
	}
	return Vec[T]{data: result}
}

// MulAdd returns a*b + c. Floating point lanes are rounded once; integer
// lanes wrap.
func MulAdd[T Lanes](a, b, c Vec[T]) Vec[T] {
	n := min(len(a.data), len(b.data), len(c.data))
	result := make([]T, n)
	switch ad := any(a.data).(type) {
	case []float32:
		bd, cd, rd := any(b.data).([]float32), any(c.data).([]float32), any(result).([]float32)
		for i := range n {
			rd[i] = fma32(ad[i], bd[i], cd[i])
		}
	case []float64:
		bd, cd, rd := any(b.data).([]float64), any(c.data).([]float64), any(result).([]float64)
		for i := range n {
			rd[i] = math.FMA(ad[i], bd[i], cd[i])
		}
	default:
		for i := range n {
			result[i] = a.data[i]*b.data[i] + c.data[i]
		}
	}
	return Vec[T]{data: result}
}

// fma32 returns a*b + c rounded once to float32.
//
// The product is exact in float64. The sum is computed in float64 rounded
// to odd, which then rounds to the same float32 as the exact sum.
func fma32(a, b, c float32) float32 {
	p := float64(a) * float64(b)
	s := p + float64(c)
	if math.IsInf(s, 0) || math.IsNaN(s) {
		return float32(s)
	}
	// s + e == p + c exactly.
	bv := s - p
	e := (p - (s - bv)) + (float64(c) - bv)
	if e == 0 {
		return float32(s)
	}
	bits := math.Float64bits(s)
	if (e > 0) != (s > 0) {
		// s is above the exact sum in magnitude: truncate toward zero.
		bits--
	}
	return float32(math.Float64frombits(bits | 1))
}
