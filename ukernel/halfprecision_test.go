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
	"math"
	"math/rand"
	"testing"
)

func TestBF16(t *testing.T) {
	tests := []struct {
		in   float32
		want BFloat16
	}{
		{0, 0x0000},
		{1, 0x3F80},
		{-1, 0xBF80},
		{2, 0x4000},
		{float32(math.Inf(1)), 0x7F80},
		{math.Float32frombits(0x3F808000), 0x3F80}, // tie, rounds to even (down)
		{math.Float32frombits(0x3F818000), 0x3F82}, // tie, rounds to even (up)
		{math.Float32frombits(0x3F808001), 0x3F81}, // above the tie
	}
	for _, tt := range tests {
		if got := BF16(tt.in); got != tt.want {
			t.Errorf("BF16(%v) = %#04x, want %#04x", tt.in, uint16(got), uint16(tt.want))
		}
	}
	if nan := BF16(float32(math.NaN())); !math.IsNaN(float64(nan.Float32())) {
		t.Errorf("BF16(NaN) = %#04x, not a NaN", uint16(nan))
	}
}

func TestF16(t *testing.T) {
	tests := []struct {
		in   float32
		want Float16
	}{
		{0, 0x0000},
		{1, 0x3C00},
		{-2, 0xC000},
		{65504, 0x7BFF},
		{65520, 0x7C00}, // tie between max finite and 2^16 rounds to infinity
		{1e6, 0x7C00},
		{-1e6, 0xFC00},
		{float32(math.Ldexp(1, -24)), 0x0001},
		{float32(math.Ldexp(1, -26)), 0x0000},
		{1 + float32(math.Ldexp(1, -11)), 0x3C00}, // tie, rounds to even
		{1 + 3*float32(math.Ldexp(1, -11)), 0x3C02},
		// Denormals: the bits below the rounding bit can be shifted out.
		{math.Float32frombits((127-15)<<23 | 0x2001), 0x0201},
		{math.Float32frombits((127-15)<<23 | 0x2000), 0x0200},
		{math.Float32frombits((127-15)<<23 | 0x6000), 0x0202},
		{float32(math.Ldexp(1, -25)), 0x0000},
		{float32(math.Ldexp(1, -25) + math.Ldexp(1, -40)), 0x0001},
		{-float32(math.Ldexp(1, -25) + math.Ldexp(1, -40)), 0x8001},
		{float32(math.Ldexp(3, -25)), 0x0002},
		{float32(math.Ldexp(1023.5, -24)), 0x0400},
		{float32(math.Ldexp(1022.5, -24) + math.Ldexp(1, -38)), 0x03FF},
	}
	for _, tt := range tests {
		if got := F16(tt.in); got != tt.want {
			t.Errorf("F16(%v) = %#04x, want %#04x", tt.in, uint16(got), uint16(tt.want))
		}
	}
	if nan := F16(float32(math.NaN())); !math.IsNaN(float64(nan.Float32())) {
		t.Errorf("F16(NaN) = %#04x, not a NaN", uint16(nan))
	}
}

// TestF16Nearest checks F16 picks the nearest half, ties to even, for
// random values around the denormal range.
func TestF16Nearest(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for range 100000 {
		f := float32(math.Ldexp(rng.Float64(), -rng.Intn(14)-12))
		h := F16(f)
		got := math.Abs(float64(f) - float64(h.Float32()))
		for _, n := range []Float16{h - 1, h + 1} {
			if h == 0 && n == h-1 {
				continue
			}
			d := math.Abs(float64(f) - float64(n.Float32()))
			if d < got || (d == got && h&1 != 0) {
				t.Fatalf("F16(%g) = %#04x, but %#04x is nearer", f, uint16(h), uint16(n))
			}
		}
	}
}

// TestHalfRoundTrip checks every non-NaN 16-bit pattern survives widening
// to float32 and rounding back.
func TestHalfRoundTrip(t *testing.T) {
	for bits := range 1 << 16 {
		h := Float16(bits)
		if f := h.Float32(); !math.IsNaN(float64(f)) {
			if back := F16(f); back != h {
				t.Errorf("F16(%#04x.Float32() = %v) = %#04x", bits, f, uint16(back))
			}
		}
		b := BFloat16(bits)
		if f := b.Float32(); !math.IsNaN(float64(f)) {
			if back := BF16(f); back != b {
				t.Errorf("BF16(%#04x.Float32() = %v) = %#04x", bits, f, uint16(back))
			}
		}
	}
}
