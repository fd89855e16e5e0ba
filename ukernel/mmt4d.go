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
	"fmt"

	"github.com/ajroetker/go-datatile/workerpool"
)

// Mmt4dParams describes a packed matmul:
//
//	lhs  [M1][K1][M0][K0]
//	rhs  [N1][K1][N0][K0]
//	out  [M1][N1][M0][N0]
//
// M0, N0 and K0 come from the kernel's tile.
type Mmt4dParams struct {
	// M1, N1 and K1 are the outer tile counts.
	M1, N1, K1 int

	// LHSStride0, RHSStride0 and OutStride0 are the distances, in storage
	// elements, between consecutive M1, N1 and M1 rows. Zero means dense.
	LHSStride0, RHSStride0, OutStride0 int

	Flags Flags
}

// Mmt4d computes every M0xN0 output tile of p with kernel k. With a non-nil
// pool the tiles are distributed over its workers: whole rows of M1 when
// there are enough rows to keep every worker busy, single tiles otherwise.
//
// Mmt4d panics if a buffer is too short for p.
func Mmt4d[L, R, O any](k Kernel[L, R, O], out []O, lhs []L, rhs []R, p Mmt4dParams, pool *workerpool.Pool) {
	lhsPanel := k.LHSPanelLen(p.K1)
	rhsPanel := k.RHSPanelLen(p.K1)
	outTile := k.OutLen()
	lhsStride := stride(p.LHSStride0, lhsPanel)
	rhsStride := stride(p.RHSStride0, rhsPanel)
	outStride := stride(p.OutStride0, p.N1*outTile)

	if p.M1 < 0 || p.N1 < 0 || p.K1 < 0 {
		panic(fmt.Sprintf("ukernel: negative tile counts %dx%dx%d", p.M1, p.N1, p.K1))
	}
	if p.M1 == 0 || p.N1 == 0 {
		return
	}
	if need := (p.M1-1)*lhsStride + lhsPanel; len(lhs) < need {
		panic(fmt.Sprintf("ukernel: mmt4d LHS has %d elements, need %d", len(lhs), need))
	}
	if need := (p.N1-1)*rhsStride + rhsPanel; len(rhs) < need {
		panic(fmt.Sprintf("ukernel: mmt4d RHS has %d elements, need %d", len(rhs), need))
	}
	if need := (p.M1-1)*outStride + p.N1*outTile; len(out) < need {
		panic(fmt.Sprintf("ukernel: mmt4d output has %d elements, need %d", len(out), need))
	}

	tileAt := func(i, j int) {
		k.Compute(out[i*outStride+j*outTile:], lhs[i*lhsStride:], rhs[j*rhsStride:], p.K1, p.Flags)
	}
	rows := func(start, end int) {
		for i := start; i < end; i++ {
			for j := range p.N1 {
				tileAt(i, j)
			}
		}
	}

	switch {
	case pool == nil:
		rows(0, p.M1)
	case p.M1 >= pool.NumWorkers():
		pool.ParallelFor(p.M1, rows)
	default:
		pool.ParallelForAtomic(p.M1*p.N1, func(t int) {
			tileAt(t/p.N1, t%p.N1)
		})
	}
}

func stride(s, dense int) int {
	if s == 0 {
		return dense
	}
	return s
}
