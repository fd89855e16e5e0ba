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
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNoCandidateTile is returned when the catalog is empty or every
	// candidate exceeds the bounds.
	ErrNoCandidateTile = errors.New("no candidate tile")

	// ErrInvalidCatalog is returned for a catalog that mixes a dynamic entry
	// with other entries, or has a partially dynamic entry.
	ErrInvalidCatalog = errors.New("invalid tile catalog")
)

// Rated is a candidate tile together with its score.
type Rated struct {
	MxNxK

	// PaddingPenalty is how much wider than the narrow dimension (rounded up
	// to a power of two) the tile is along M.
	PaddingPenalty int64

	// Product is M*N*K. Larger tiles are favored among equal penalties.
	Product int64
}

// Selector picks one tile from a catalog. The zero value is ready to use.
type Selector struct {
	// Trace, if set, receives one message per skipped or rated candidate.
	Trace func(msg string, args ...any)
}

// Choose picks a tile from catalog using the zero Selector.
func Choose(catalog []MxNxK, narrow NarrowDim, bounds *Bounds) (MxNxK, error) {
	return Selector{}.Choose(catalog, narrow, bounds)
}

// Choose returns the best tile of catalog:
//
//  1. A narrow-N problem is transposed into a narrow-M one (bounds M/N
//     swapped), solved, and the answer transposed back.
//  2. A catalog made of the single fully dynamic tile returns it as is.
//  3. Candidates exceeding bounds are dropped.
//  4. Among the rest, the lowest padding penalty wins, then the largest
//     M*N*K, then the earliest in catalog order.
func (s Selector) Choose(catalog []MxNxK, narrow NarrowDim, bounds *Bounds) (MxNxK, error) {
	// Catalogs only enumerate narrow-M cases.
	if narrow.IsN() {
		var transposed *Bounds
		if bounds != nil {
			b := bounds.Transposed()
			transposed = &b
		}
		t, err := s.Choose(catalog, NarrowDim{Dim: DimM, Size: narrow.Size}, transposed)
		if err != nil {
			return MxNxK{}, err
		}
		return t.Transposed(), nil
	}

	if dyn, ok, err := dynamicEntry(catalog); err != nil || ok {
		return dyn, err
	}

	rated := s.rate(catalog, narrow, bounds)
	if len(rated) == 0 {
		if bounds != nil {
			return MxNxK{}, fmt.Errorf("%w: %d candidates, none within bounds %s", ErrNoCandidateTile, len(catalog), bounds)
		}
		return MxNxK{}, ErrNoCandidateTile
	}

	best := rated[0]
	for _, r := range rated[1:] {
		if r.PaddingPenalty < best.PaddingPenalty ||
			(r.PaddingPenalty == best.PaddingPenalty && r.Product > best.Product) {
			best = r
		}
	}
	return best.MxNxK, nil
}

// Rate returns the candidates of catalog that fit bounds, with their
// scores, in catalog order. Dynamic entries are not rated.
func Rate(catalog []MxNxK, narrow NarrowDim, bounds *Bounds) []Rated {
	return Selector{}.rate(catalog, narrow, bounds)
}

func (s Selector) rate(catalog []MxNxK, narrow NarrowDim, bounds *Bounds) []Rated {
	ub := Bounds{M: math.MaxInt64, N: math.MaxInt64, K: math.MaxInt64}
	if bounds != nil {
		ub = *bounds
	}
	rated := make([]Rated, 0, len(catalog))
	for _, t := range catalog {
		if t.IsDynamic() {
			continue
		}
		if !ub.Admits(t) {
			s.trace("tile skipped, not valid for upper bound", "tile", t, "upper_bound", ub)
			continue
		}
		r := Rated{MxNxK: t, Product: t.Product()}
		// Padding up to the next power of two is fine: with a narrow M of 7
		// and tiles of M=8,4,2,1 the M=8 tile should still win, rather than
		// ending up with the vecmat tile.
		if narrow.IsSet() {
			r.PaddingPenalty = max(t.M-powerOf2Ceil(narrow.Size), 0)
		}
		s.trace("tile candidate", "tile", t, "penalty", r.PaddingPenalty, "product", r.Product)
		rated = append(rated, r)
	}
	return rated
}

// dynamicEntry returns the dynamic tile if the catalog is exactly one fully
// dynamic entry. Any other use of Dynamic is an invalid catalog.
func dynamicEntry(catalog []MxNxK) (MxNxK, bool, error) {
	for _, t := range catalog {
		if !t.IsDynamic() {
			continue
		}
		if len(catalog) != 1 || !t.IsFullyDynamic() {
			return MxNxK{}, false, fmt.Errorf("%w: dynamic tile %s must be the only, fully dynamic entry (catalog has %d)", ErrInvalidCatalog, t, len(catalog))
		}
		return t, true, nil
	}
	return MxNxK{}, false, nil
}

func (s Selector) trace(msg string, args ...any) {
	if s.Trace != nil {
		s.Trace(msg, args...)
	}
}
