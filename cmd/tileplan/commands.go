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
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ajroetker/go-datatile/materialize"
	"github.com/ajroetker/go-datatile/target"
	"github.com/ajroetker/go-datatile/tile"
	"github.com/ajroetker/go-datatile/ukernel"
)

func newCatalogCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the candidate tiles for a target and element types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := o.descriptor()
			if err != nil {
				return err
			}
			p, err := o.problem(tile.Matmul)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "target: %s\ntypes:  %s\n", desc, p.Types)
			catalog := tile.Enumerate(p, desc, o.dynamic)
			if len(catalog) == 0 {
				fmt.Fprintln(out, "no tiles: operands stay untiled")
				return nil
			}
			for _, t := range catalog {
				fmt.Fprintf(out, "%s%s\n", t, kernelNote(desc, p.Types, t))
			}
			return nil
		},
	}
}

// kernelNote marks static tiles that have no registered microkernel.
func kernelNote(desc target.Descriptor, types tile.Triple, t tile.MxNxK) string {
	if t.IsDynamic() {
		return "  (resolved at run time)"
	}
	if ukernel.Default().Has(ukernel.Key{Family: desc.Family, Types: types, Tile: t}) {
		return ""
	}
	return "  (no microkernel)"
}

func newChooseCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "choose",
		Short: "Rate the candidate tiles and print the chosen one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := o.descriptor()
			if err != nil {
				return err
			}
			p, err := o.problem(tile.Matmul)
			if err != nil {
				return err
			}
			bounds, err := parseRound(o.round)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			catalog := tile.Enumerate(p, desc, o.dynamic)
			sel := tile.Selector{Trace: func(msg string, args ...any) {
				fmt.Fprintf(out, "  %s %s\n", msg, formatAttrs(args))
			}}
			fmt.Fprintf(out, "target: %s\ntypes:  %s\nnarrow: %s\n", desc, p.Types, p.Narrow)
			chosen, err := sel.Choose(catalog, p.Narrow, bounds)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "chosen: %s\n", chosen)
			return nil
		},
	}
}

func newMaterializeCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "materialize",
		Short: "Print the packed layout of an encoded tensor",
		Long: "Materialize an lhs, rhs or result tensor of a matmul (rank 2) or batch matmul (rank 3)\n" +
			"and print its packed layout and type.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMaterialize(cmd.OutOrStdout(), o)
		},
	}
	cmd.Flags().StringVar(&o.role, "role", "lhs", "Operand role: lhs, rhs or result")
	cmd.Flags().StringVar(&o.shape, "shape", "", "Logical tensor shape, e.g. 13,5 or ?x5 (required)")
	_ = cmd.MarkFlagRequired("shape")
	return cmd
}

func runMaterialize(out io.Writer, o *options) error {
	desc, err := o.descriptor()
	if err != nil {
		return err
	}
	shape, err := parseShape(o.shape)
	if err != nil {
		return err
	}
	role, err := materialize.ParseRole(o.role)
	if err != nil {
		return err
	}
	contraction := tile.Matmul
	if len(shape) == 3 {
		contraction = tile.BatchMatmul
	}
	p, err := o.problem(contraction)
	if err != nil {
		return err
	}
	bounds, err := parseRound(o.round)
	if err != nil {
		return err
	}

	elem := p.Types.Out
	switch role {
	case materialize.RoleLHS:
		elem = p.Types.LHS
	case materialize.RoleRHS:
		elem = p.Types.RHS
	}
	tensor := materialize.TensorType{
		Shape: shape,
		Elem:  elem,
		Encoding: &materialize.EncodingAttr{
			Role:        role,
			Types:       p.Types,
			Contraction: contraction,
			Narrow:      p.Narrow,
			RoundDimsTo: bounds,
		},
	}

	opts := materialize.Options{Logger: o.logger}
	var resolver materialize.RuntimeResolver
	if o.dynamic {
		opts.TileSizes = resolver
	}
	packed, res, err := materialize.New(desc, opts).MaterializedType(tensor)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "tensor: %s\n", tensor)
	fmt.Fprintf(out, "tile:   %s\n", res.Tile)
	fmt.Fprintf(out, "layout: %s\n", res.Info)
	fmt.Fprintf(out, "packed: %s\n", packed)
	if res.Query == nil {
		return nil
	}

	info, err := materialize.ResolveInfo(res, resolver)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "query:  %s\n", res.Query)
	fmt.Fprintf(out, "resolved for %s:\n", o.host())
	fmt.Fprintf(out, "layout: %s\n", info)
	fmt.Fprintf(out, "packed: %s\n", materialize.TensorType{Shape: materialize.PackedShape(shape, info), Elem: elem})
	return nil
}

func newHostCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "host",
		Short: "Print the detected target of this machine and its widest tiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			host := o.host()
			fmt.Fprintf(out, "host: %s\n", host)
			for _, types := range ukernel.Triples() {
				catalog := tile.Enumerate(tile.Problem{Shape: tile.Matmul, Types: types}, host, false)
				if len(catalog) == 0 {
					fmt.Fprintf(out, "  %-14s untiled\n", types)
					continue
				}
				fmt.Fprintf(out, "  %-14s %s%s\n", types, catalog[0], kernelNote(host, types, catalog[0]))
			}
			o.logger.Debug("host detection", "family", host.Family, "features", host.Features.Len(), "ukernels", host.Ukernels)
			return nil
		},
	}
}

// formatAttrs formats slog style key/value pairs as "k=v k=v".
func formatAttrs(args []any) string {
	var b strings.Builder
	for i := 0; i+1 < len(args); i += 2 {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%v=%v", args[i], args[i+1])
	}
	return b.String()
}
