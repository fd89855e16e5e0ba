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

// ErrNotConverged is returned by a RewriteEngine that could not remove every
// encoding from a unit.
var ErrNotConverged = errors.New("rewrite did not converge")

// DefaultMaxIterations bounds the rounds of a zero GreedyEngine.
const DefaultMaxIterations = 8

// GreedyEngine is the default RewriteEngine. Convert sweeps the unit's
// values, converting every encoded one, until a sweep changes nothing. Fold
// marks packings that need no padding.
//
// It holds no state and is safe for concurrent use on different units.
type GreedyEngine struct {
	// MaxIterations bounds the number of sweeps. Zero means
	// DefaultMaxIterations.
	MaxIterations int
}

// Convert implements RewriteEngine.
func (g GreedyEngine) Convert(u *Unit, convert TypeConverter) error {
	maxIter := g.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	for range maxIter {
		changed := false
		for _, v := range u.Values {
			if v.Type.Encoding == nil {
				continue
			}
			c, err := convert(v.Type)
			if err != nil {
				return fmt.Errorf("value %q: %w", v.Name, err)
			}
			v.Type = c.Type
			if c.Packing != nil {
				v.Packing = c.Packing
			}
			changed = true
		}
		if !changed {
			return nil
		}
	}
	if v := firstEncoded(u); v != nil {
		return fmt.Errorf("%w after %d sweeps: value %q still has type %s", ErrNotConverged, maxIter, v.Name, v.Type)
	}
	return nil
}

// Fold implements RewriteEngine.
func (g GreedyEngine) Fold(u *Unit) error {
	if v := firstEncoded(u); v != nil {
		return fmt.Errorf("%w: value %q still has type %s", ErrNotConverged, v.Name, v.Type)
	}
	for _, v := range u.Values {
		if p := v.Packing; p != nil && p.Result.Query == nil {
			p.PaddingFree = PaddingFree(p.Source.Shape, p.Result.Info)
		}
	}
	return nil
}

func firstEncoded(u *Unit) *Value {
	for _, v := range u.Values {
		if v.Type.Encoding != nil {
			return v
		}
	}
	return nil
}
