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

// Package materialize turns a logical tensor type annotated with a matmul
// encoding into the physical packed layout the CPU microkernels consume.
//
// For a single tensor:
//
//	m := materialize.New(desc, materialize.Options{})
//	res, err := m.Materialize(tensorType)
//	switch {
//	case errors.Is(err, materialize.ErrNotApplicable):
//	    // leave the tensor untiled
//	case errors.Is(err, tile.ErrNoCandidateTile):
//	    // no tile fits the bounds; leave untiled or report
//	}
//	packed := materialize.PackedShape(tensorType.Shape, res.Info)
//
// For whole compiled units, MaterializeUnit resolves the unit's target,
// drives an injected RewriteEngine to a fixed point and then runs its fold
// pass. MaterializeUnits does that for many units concurrently.
package materialize

import (
	"fmt"
	"strings"

	"github.com/ajroetker/go-datatile/tile"
)

// OperandRole says which matmul operand a tensor is.
type OperandRole int

const (
	RoleUnknown OperandRole = iota
	RoleLHS
	RoleRHS
	RoleResult
)

func (r OperandRole) String() string {
	switch r {
	case RoleLHS:
		return "lhs"
	case RoleRHS:
		return "rhs"
	case RoleResult:
		return "result"
	default:
		return "unknown"
	}
}

// ParseRole parses "lhs", "rhs" or "result" ("out" and "acc" are accepted
// for the result).
func ParseRole(s string) (OperandRole, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lhs":
		return RoleLHS, nil
	case "rhs":
		return RoleRHS, nil
	case "result", "out", "acc":
		return RoleResult, nil
	}
	return RoleUnknown, fmt.Errorf("materialize: unknown operand role %q", s)
}

// EncodingAttr is the target-independent "this tensor feeds a matmul"
// annotation. It is created upstream and never mutated.
type EncodingAttr struct {
	Role        OperandRole
	Types       tile.Triple
	Contraction tile.ContractionShape

	// Narrow is the optional narrow M or N hint.
	Narrow tile.NarrowDim

	// RoundDimsTo optionally bounds the tile in each dimension.
	RoundDimsTo *tile.Bounds
}

func (e *EncodingAttr) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "#encoding<%s, [%s]", e.Role, e.Types)
	c := e.Contraction
	fmt.Fprintf(&b, ", b%d m%d n%d k%d", c.Batch, c.M, c.N, c.K)
	if e.Narrow.IsSet() {
		fmt.Fprintf(&b, ", narrow=%s", e.Narrow)
	}
	if e.RoundDimsTo != nil {
		fmt.Fprintf(&b, ", round_dims_to=%s", e.RoundDimsTo)
	}
	b.WriteString(">")
	return b.String()
}

// TensorType is a ranked tensor type: a shape (tile.Dynamic for unknown
// dimensions), an element type and an optional encoding.
type TensorType struct {
	Shape    []int64
	Elem     tile.ElementType
	Encoding *EncodingAttr
}

// Rank returns the number of dimensions.
func (t TensorType) Rank() int {
	return len(t.Shape)
}

// HasStaticShape reports whether no dimension is dynamic.
func (t TensorType) HasStaticShape() bool {
	for _, d := range t.Shape {
		if tile.IsDynamic(d) {
			return false
		}
	}
	return true
}

// WithoutEncoding returns the same type with the encoding dropped.
func (t TensorType) WithoutEncoding() TensorType {
	t.Encoding = nil
	return t
}

// String formats the type as "tensor<13x5xf32, #encoding<...>>".
func (t TensorType) String() string {
	var b strings.Builder
	b.WriteString("tensor<")
	for _, d := range t.Shape {
		if tile.IsDynamic(d) {
			b.WriteString("?x")
		} else {
			fmt.Fprintf(&b, "%dx", d)
		}
	}
	b.WriteString(t.Elem.String())
	if t.Encoding != nil {
		b.WriteString(", ")
		b.WriteString(t.Encoding.String())
	}
	b.WriteString(">")
	return b.String()
}

// operandDims holds, for one operand, the tensor dimension of each matmul
// iteration dimension, or -1 if the operand does not use it.
type operandDims struct {
	batch, m, n, k int
	rank           int
}

// dimsFor lays out an operand in canonical order: LHS is [B?, M?, K?], RHS
// is [B?, K?, N?] and the result is [B?, M?, N?]. A dimension is present
// iff its multiplicity is 1.
func dimsFor(role OperandRole, c tile.ContractionShape) (operandDims, bool) {
	d := operandDims{batch: -1, m: -1, n: -1, k: -1}
	next := func(present int) int {
		if present == 0 {
			return -1
		}
		pos := d.rank
		d.rank++
		return pos
	}
	d.batch = next(c.Batch)
	switch role {
	case RoleLHS:
		d.m = next(c.M)
		d.k = next(c.K)
	case RoleRHS:
		d.k = next(c.K)
		d.n = next(c.N)
	case RoleResult:
		d.m = next(c.M)
		d.n = next(c.N)
	default:
		return d, false
	}
	return d, true
}
