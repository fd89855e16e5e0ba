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

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ajroetker/go-datatile/tile"
)

// parseNarrow parses "M:3" or "N:1". The empty string is no hint.
func parseNarrow(s string) (tile.NarrowDim, error) {
	if s == "" {
		return tile.NarrowDim{}, nil
	}
	dim, size, ok := strings.Cut(s, ":")
	if !ok {
		return tile.NarrowDim{}, fmt.Errorf("narrow dimension %q must be M:<size> or N:<size>", s)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(size), 10, 64)
	if err != nil || n <= 0 {
		return tile.NarrowDim{}, fmt.Errorf("narrow dimension %q: size must be a positive integer", s)
	}
	switch strings.ToUpper(strings.TrimSpace(dim)) {
	case "M":
		return tile.NarrowM(n), nil
	case "N":
		return tile.NarrowN(n), nil
	}
	return tile.NarrowDim{}, fmt.Errorf("narrow dimension %q: dimension must be M or N", s)
}

// parseRound parses "M,N,K" upper bounds. The empty string is no bound.
func parseRound(s string) (*tile.Bounds, error) {
	if s == "" {
		return nil, nil
	}
	vals, err := parseInts(s)
	if err != nil {
		return nil, fmt.Errorf("round dims %q: %w", s, err)
	}
	if len(vals) != 3 {
		return nil, fmt.Errorf("round dims %q must have 3 entries", s)
	}
	for _, v := range vals {
		if v <= 0 {
			return nil, fmt.Errorf("round dims %q must be positive", s)
		}
	}
	return &tile.Bounds{M: vals[0], N: vals[1], K: vals[2]}, nil
}

// parseShape parses a tensor shape such as "13,5" or "?x5"; '?' is a
// dynamic dimension.
func parseShape(s string) ([]int64, error) {
	shape, err := parseInts(s)
	if err != nil {
		return nil, fmt.Errorf("shape %q: %w", s, err)
	}
	for _, d := range shape {
		if d < 0 && !tile.IsDynamic(d) {
			return nil, fmt.Errorf("shape %q has a negative dimension", s)
		}
	}
	return shape, nil
}

func parseInts(s string) ([]int64, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == 'x' || r == ' ' })
	if len(parts) == 0 {
		return nil, fmt.Errorf("no values")
	}
	vals := make([]int64, len(parts))
	for i, p := range parts {
		if p == "?" {
			vals[i] = tile.Dynamic
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}
