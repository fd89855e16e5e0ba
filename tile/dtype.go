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

import (
	"fmt"
	"strings"
)

// ElementType is the numeric type of a tensor element.
//
// Integer types come in two flavours: signless (I*) where only the bit width
// is known, and explicitly unsigned (U*).
type ElementType int

const (
	Invalid ElementType = iota
	F16
	BF16
	F32
	F64
	I4
	I8
	I16
	I32
	U4
	U8
)

var elementTypeNames = map[ElementType]string{
	F16:  "f16",
	BF16: "bf16",
	F32:  "f32",
	F64:  "f64",
	I4:   "i4",
	I8:   "i8",
	I16:  "i16",
	I32:  "i32",
	U4:   "u4",
	U8:   "u8",
}

// String returns the short MLIR-style name ("f32", "i8", "u4", ...).
func (e ElementType) String() string {
	if name, ok := elementTypeNames[e]; ok {
		return name
	}
	return "invalid"
}

// IsFloat reports whether e is a floating point type.
func (e ElementType) IsFloat() bool {
	switch e {
	case F16, BF16, F32, F64:
		return true
	}
	return false
}

// IsInteger reports whether e is an integer type of either flavour.
func (e ElementType) IsInteger() bool {
	switch e {
	case I4, I8, I16, I32, U4, U8:
		return true
	}
	return false
}

// BitWidth returns the storage width in bits.
func (e ElementType) BitWidth() int {
	switch e {
	case I4, U4:
		return 4
	case I8, U8:
		return 8
	case F16, BF16, I16:
		return 16
	case F32, I32:
		return 32
	case F64:
		return 64
	}
	return 0
}

// ParseElementType parses a short type name. "si8"/"s8" style names are
// accepted as aliases of the signless types.
func ParseElementType(s string) (ElementType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "s4", "si4":
		return I4, nil
	case "s8", "si8":
		return I8, nil
	case "s16", "si16":
		return I16, nil
	case "s32", "si32":
		return I32, nil
	case "ui4":
		return U4, nil
	case "ui8":
		return U8, nil
	}
	for e, name := range elementTypeNames {
		if name == s {
			return e, nil
		}
	}
	return Invalid, fmt.Errorf("tile: unknown element type %q", s)
}

// Triple holds the element types of a matmul's left operand, right operand
// and result.
type Triple struct {
	LHS, RHS, Out ElementType
}

// Common triples.
var (
	F32F32F32    = Triple{F32, F32, F32}
	F16F16F32    = Triple{F16, F16, F32}
	F16F16F16    = Triple{F16, F16, F16}
	BF16BF16F32  = Triple{BF16, BF16, F32}
	BF16BF16BF16 = Triple{BF16, BF16, BF16}
	I8I8I32      = Triple{I8, I8, I32}
	I16I16I32    = Triple{I16, I16, I32}
	I8U4I32      = Triple{I8, U4, I32}
	I8I4I32      = Triple{I8, I4, I32}
	I16U4I32     = Triple{I16, U4, I32}
)

// String formats the triple as "lhs,rhs,out".
func (t Triple) String() string {
	return t.LHS.String() + "," + t.RHS.String() + "," + t.Out.String()
}

// ParseTriple parses "lhs,rhs,out" (or the same with 'x' separators).
func ParseTriple(s string) (Triple, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == 'x' || r == ' ' })
	if len(parts) != 3 {
		return Triple{}, fmt.Errorf("tile: element type triple %q must have 3 entries", s)
	}
	var types [3]ElementType
	for i, p := range parts {
		e, err := ParseElementType(p)
		if err != nil {
			return Triple{}, err
		}
		types[i] = e
	}
	return Triple{LHS: types[0], RHS: types[1], Out: types[2]}, nil
}

// floatOut reports whether the result is one of the float types that
// matmul catalogs handle (f32, f16, bf16).
func (t Triple) floatOut() bool {
	return t.Out == F32 || t.Out == F16 || t.Out == BF16
}

func (t Triple) bothFloat() bool {
	return t.LHS.IsFloat() && t.RHS.IsFloat()
}

func (t Triple) bf16Dot() bool {
	return t.LHS == BF16 && t.RHS == BF16 && (t.Out == BF16 || t.Out == F32)
}
