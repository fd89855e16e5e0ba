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

// Package hwy is the portable vector core the microkernels are written on.
//
// A Vec holds MaxLanes[T]() elements, the number of T lanes in the widest
// vector register of this machine. Operations are lane-wise and take the
// shortest operand's lane count, so a Load from a short tail slice gives a
// short vector and everything computed from it stays short:
//
//	acc := hwy.Load(out[c:end])
//	acc = hwy.MulAdd(hwy.Set(a), hwy.Load(b[c:end]), acc)
//	hwy.Store(acc, out[c:end])
//
// Floating point MulAdd rounds once. Integer lanes wrap.
package hwy

// Floats is a constraint for floating-point lane types.
type Floats interface {
	float32 | float64
}

// Integers is a constraint for integer lane types.
type Integers interface {
	int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64
}

// Lanes is a constraint for all types that can be stored in vector lanes.
type Lanes interface {
	Floats | Integers
}

// Vec is a vector of lanes. Create one with Load, Set or Zero.
type Vec[T Lanes] struct {
	data []T
}

// NumLanes returns the number of lanes in v.
func (v Vec[T]) NumLanes() int {
	return len(v.data)
}

// Data returns the lanes of v. It is meant for tests.
func (v Vec[T]) Data() []T {
	return v.data
}
