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
	"log/slog"
	"slices"

	"github.com/ajroetker/go-datatile/target"
	"github.com/ajroetker/go-datatile/tile"
)

var (
	// ErrNotApplicable is returned when a tensor cannot be tiled for the
	// target. Callers leave such tensors untiled.
	ErrNotApplicable = errors.New("data tiling not applicable")

	// ErrMalformedEncoding is returned for an encoding that does not
	// describe a contraction the engine understands. It wraps
	// ErrNotApplicable.
	ErrMalformedEncoding = fmt.Errorf("malformed encoding: %w", ErrNotApplicable)
)

// Options configure a Materializer and the unit passes built on it. The zero
// value is valid.
type Options struct {
	// Logger receives debug traces of tile selection and pass progress.
	// Nil discards them.
	Logger *slog.Logger

	// TileSizes, when set, enables run-time resolved tile sizes on targets
	// that support them. The materializer then emits a QueryTileSizes
	// request instead of static sizes.
	TileSizes TileSizeResolver

	// StrictNoCandidate makes a unit pass fail when a tensor has a catalog
	// but no tile fits its bounds. By default such tensors stay untiled.
	StrictNoCandidate bool

	// Parallelism bounds the number of units MaterializeUnits processes at
	// once. Zero or negative means one per unit.
	Parallelism int
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

// QueryTileSizes is the request emitted when tile sizes are only known at run
// time. It must be answered with one tile size per dimension of Tensor.
type QueryTileSizes struct {
	Tensor TensorType
}

// Rank returns the number of tile sizes the answer must hold.
func (q QueryTileSizes) Rank() int {
	return q.Tensor.Rank()
}

func (q QueryTileSizes) String() string {
	return fmt.Sprintf("query_tile_sizes(%s) -> %d", q.Tensor, q.Rank())
}

// Result is the outcome of materializing one tensor.
type Result struct {
	// Info is the packed layout. Its tile sizes are tile.Dynamic when Query
	// is set.
	Info EncodingInfo

	// Tile is the chosen MxNxK, before any narrow-N layout transposition.
	Tile tile.MxNxK

	// Query is the run-time tile size request, or nil for static sizes.
	Query *QueryTileSizes
}

// Materializer maps encoded tensor types to packed layouts for one target.
// It is immutable and safe for concurrent use.
type Materializer struct {
	target   target.Descriptor
	opts     Options
	log      *slog.Logger
	selector tile.Selector

	// transposeNarrowN lays out narrow-N results as the transposed narrow-M
	// problem so only narrow-M kernels are needed. Always set on CPU.
	transposeNarrowN bool
}

// New returns a Materializer for desc.
func New(desc target.Descriptor, opts Options) *Materializer {
	log := opts.logger().With("target", desc.String())
	return &Materializer{
		target:           desc,
		opts:             opts,
		log:              log,
		selector:         tile.Selector{Trace: func(msg string, args ...any) { log.Debug(msg, args...) }},
		transposeNarrowN: true,
	}
}

// Target returns the descriptor the Materializer was built for.
func (m *Materializer) Target() target.Descriptor {
	return m.target
}

// Materialize computes the packed layout of t. It returns an error wrapping
// ErrNotApplicable when t has no encoding, a malformed encoding, or no tile
// catalog on the target, and one wrapping tile.ErrNoCandidateTile when no
// catalog entry fits the encoding's bounds.
func (m *Materializer) Materialize(t TensorType) (Result, error) {
	enc := t.Encoding
	if enc == nil {
		return Result{}, fmt.Errorf("%s: no encoding: %w", t, ErrNotApplicable)
	}
	if !enc.Contraction.Supported() {
		return Result{}, fmt.Errorf("%s: contraction %+v has a dimension kind with multiplicity above one: %w",
			t, enc.Contraction, ErrMalformedEncoding)
	}
	dims, ok := dimsFor(enc.Role, enc.Contraction)
	if !ok {
		return Result{}, fmt.Errorf("%s: unknown operand role: %w", t, ErrMalformedEncoding)
	}
	if dims.rank != t.Rank() {
		return Result{}, fmt.Errorf("%s: %s operand should have rank %d: %w", t, enc.Role, dims.rank, ErrMalformedEncoding)
	}

	problem := tile.Problem{Shape: enc.Contraction, Types: enc.Types, Narrow: enc.Narrow}
	catalog := tile.Enumerate(problem, m.target, m.opts.TileSizes != nil)
	if len(catalog) == 0 {
		return Result{}, fmt.Errorf("%s: no tile catalog for %s on %s: %w", t, enc.Types, m.target, ErrNotApplicable)
	}
	chosen, err := m.selector.Choose(catalog, enc.Narrow, enc.RoundDimsTo)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", t, err)
	}
	m.log.Debug("tile chosen", "tensor", t.String(), "tile", chosen, "catalog", len(catalog))

	res := Result{Info: infoForMatmul(dims, chosen), Tile: chosen}
	if m.transposeNarrowN && enc.Role == RoleResult && enc.Narrow.IsN() {
		transposeInPlace(&res.Info)
	}
	if chosen.IsFullyDynamic() {
		res.Query = &QueryTileSizes{Tensor: t}
	}
	return res, nil
}

// MaterializedType returns the packed type of t: the packed shape, same
// element type and no encoding.
func (m *Materializer) MaterializedType(t TensorType) (TensorType, Result, error) {
	res, err := m.Materialize(t)
	if err != nil {
		return TensorType{}, Result{}, err
	}
	return TensorType{Shape: PackedShape(t.Shape, res.Info), Elem: t.Elem}, res, nil
}

// ResolveInfo returns res.Info with run-time tile sizes filled in from r.
// Results with static sizes are returned unchanged.
func ResolveInfo(res Result, r TileSizeResolver) (EncodingInfo, error) {
	if res.Query == nil {
		return res.Info, nil
	}
	if r == nil {
		return EncodingInfo{}, fmt.Errorf("materialize: %s needs a tile size resolver", res.Query)
	}
	sizes, err := r.ResolveTileSizes(*res.Query)
	if err != nil {
		return EncodingInfo{}, fmt.Errorf("materialize: %s: %w", res.Query, err)
	}
	if len(sizes) != len(res.Info.InnerTileSizes) {
		return EncodingInfo{}, fmt.Errorf("materialize: %s answered %d sizes, want %d",
			res.Query, len(sizes), len(res.Info.InnerTileSizes))
	}
	if slices.ContainsFunc(sizes, func(s int64) bool { return s <= 0 }) {
		return EncodingInfo{}, fmt.Errorf("materialize: %s answered non-positive sizes %v", res.Query, sizes)
	}
	info := res.Info.Clone()
	copy(info.InnerTileSizes, sizes)
	return info, nil
}
