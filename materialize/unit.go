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
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ajroetker/go-datatile/target"
	"github.com/ajroetker/go-datatile/tile"
)

// ErrMultipleTargets is returned for a unit that resolves to more than one
// target. Materialization needs exactly one.
var ErrMultipleTargets = errors.New("unit has multiple executable targets, CPU data tiling needs exactly one")

// TargetResolver returns the targets a compiled unit may run on.
// target.StaticResolver implements it.
type TargetResolver interface {
	ResolveTargets(unit string) ([]target.Descriptor, error)
}

// TileSizeResolver answers run-time tile size requests. A TargetResolver
// that also implements TileSizeResolver enables the dynamic path of unit
// passes.
type TileSizeResolver interface {
	ResolveTileSizes(q QueryTileSizes) ([]int64, error)
}

// Value is one tensor value of a compiled unit.
type Value struct {
	Name string
	Type TensorType

	// Packing is set once the value has been materialized.
	Packing *Packing
}

// Packing records how a value was materialized.
type Packing struct {
	// Source is the logical, encoded type before materialization.
	Source TensorType
	Result Result

	// PaddingFree is set by the fold pass when packing the source adds no
	// padding.
	PaddingFree bool
}

// Unit is a compiled unit: a named function whose tensor values get their
// encodings materialized together for one target.
type Unit struct {
	Name   string
	Values []*Value
}

// Converted is what a TypeConverter turns one value's type into.
type Converted struct {
	Type TensorType

	// Packing is nil when the value stays untiled.
	Packing *Packing
}

// TypeConverter converts the type of one value that still carries an
// encoding. The returned type must not carry an encoding.
type TypeConverter func(t TensorType) (Converted, error)

// RewriteEngine applies conversions to a unit. Convert must rewrite every
// value that carries an encoding until none does. Fold runs clean-up
// patterns afterwards.
type RewriteEngine interface {
	Convert(u *Unit, convert TypeConverter) error
	Fold(u *Unit) error
}

// UnitReport summarizes one unit pass.
type UnitReport struct {
	Unit string

	// Skipped is set when the unit has no target.
	Skipped bool
	Target  target.Descriptor

	Materialized  int
	NotApplicable int
	NoCandidate   int

	// Queries are the run-time tile size requests the unit emitted.
	Queries []QueryTileSizes
}

// UnitError is the error of one unit pass.
type UnitError struct {
	Unit string
	Err  error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("materialize unit %q: %v", e.Unit, e.Err)
}

func (e *UnitError) Unwrap() error {
	return e.Err
}

// MaterializeUnit materializes every encoded value of u:
//
//   - A unit without targets is left untouched.
//   - A unit with more than one target fails with ErrMultipleTargets.
//   - Otherwise the engine converts the unit to a fixed point, then folds it.
//
// Values that are not applicable, or have no candidate tile (unless
// opts.StrictNoCandidate), lose their encoding and stay untiled.
func MaterializeUnit(u *Unit, resolver TargetResolver, engine RewriteEngine, opts Options) (*UnitReport, error) {
	log := opts.logger().With("unit", u.Name)
	report := &UnitReport{Unit: u.Name}

	targets, err := resolver.ResolveTargets(u.Name)
	if err != nil {
		return nil, &UnitError{Unit: u.Name, Err: err}
	}
	switch len(targets) {
	case 0:
		log.Debug("no executable target, skipping unit")
		report.Skipped = true
		return report, nil
	case 1:
	default:
		return nil, &UnitError{Unit: u.Name, Err: fmt.Errorf("%w (%d targets)", ErrMultipleTargets, len(targets))}
	}
	report.Target = targets[0]

	if opts.TileSizes == nil {
		if r, ok := resolver.(TileSizeResolver); ok {
			opts.TileSizes = r
		}
	}
	opts.Logger = log
	m := New(report.Target, opts)

	var mu sync.Mutex
	convert := func(t TensorType) (Converted, error) {
		packed, res, err := m.MaterializedType(t)
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err == nil:
			report.Materialized++
			if res.Query != nil {
				report.Queries = append(report.Queries, *res.Query)
			}
			return Converted{Type: packed, Packing: &Packing{Source: t, Result: res}}, nil
		case errors.Is(err, ErrNotApplicable):
			report.NotApplicable++
			log.Debug("leaving tensor untiled", "tensor", t.String(), "reason", err)
			return Converted{Type: t.WithoutEncoding()}, nil
		case errors.Is(err, tile.ErrNoCandidateTile) && !opts.StrictNoCandidate:
			report.NoCandidate++
			log.Debug("no candidate tile, leaving tensor untiled", "tensor", t.String(), "reason", err)
			return Converted{Type: t.WithoutEncoding()}, nil
		default:
			return Converted{}, err
		}
	}

	if err := engine.Convert(u, convert); err != nil {
		return nil, &UnitError{Unit: u.Name, Err: err}
	}
	if err := engine.Fold(u); err != nil {
		return nil, &UnitError{Unit: u.Name, Err: err}
	}
	log.Debug("unit materialized", "materialized", report.Materialized,
		"not_applicable", report.NotApplicable, "no_candidate", report.NoCandidate)
	return report, nil
}

// MaterializeUnits runs MaterializeUnit on every unit concurrently, at most
// opts.Parallelism at a time. A failing unit does not stop the others. The
// reports are in unit order, with nil for failed units, and the error joins
// every unit's error.
func MaterializeUnits(units []*Unit, resolver TargetResolver, engine RewriteEngine, opts Options) ([]*UnitReport, error) {
	reports := make([]*UnitReport, len(units))
	errs := make([]error, len(units))
	var g errgroup.Group
	if opts.Parallelism > 0 {
		g.SetLimit(opts.Parallelism)
	}
	for i, u := range units {
		g.Go(func() error {
			reports[i], errs[i] = MaterializeUnit(u, resolver, engine, opts)
			return nil
		})
	}
	_ = g.Wait()
	return reports, errors.Join(errs...)
}
