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

// Command tileplan shows the data-tiling decisions made for a target.
//
// Usage:
//
//	tileplan catalog --target x86_64,+avx512f --types f32,f32,f32
//	tileplan choose --target arm64,+i8mm --types i8,i8,i32 --narrow M:3 --round 8,8,8
//	tileplan materialize --target x86_64,+avx2 --role rhs --shape 13,5
//	tileplan catalog --target generic,ukernels --types i8,i8,i32 --dynamic
//	tileplan host
//
// Without --target the running machine is used, as detected by target.Host
// (DATATILE_TARGET overrides the detection). --verbose logs every candidate
// tile considered to stderr.
package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ajroetker/go-datatile/target"
	"github.com/ajroetker/go-datatile/tile"
)

type options struct {
	target  string
	types   string
	narrow  string
	round   string
	dynamic bool
	verbose bool

	// materialize only.
	role  string
	shape string

	logger *slog.Logger
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:          "tileplan",
		Short:        "Show tile catalogs, chosen tiles and packed layouts for a CPU target",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if o.verbose {
				level = slog.LevelDebug
			}
			o.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	addCommonFlags(root.PersistentFlags(), o)

	root.AddCommand(
		newCatalogCmd(o),
		newChooseCmd(o),
		newMaterializeCmd(o),
		newHostCmd(o),
	)
	return root
}

func addCommonFlags(fs *pflag.FlagSet, o *options) {
	fs.StringVar(&o.target, "target", "", "Target string, e.g. x86_64,+avx512f or generic,ukernels (default: this machine)")
	fs.StringVar(&o.types, "types", "f32,f32,f32", "Element types of lhs, rhs and result")
	fs.StringVar(&o.narrow, "narrow", "", "Narrow dimension hint, M:<size> or N:<size>")
	fs.StringVar(&o.round, "round", "", "Upper bounds on the tile, M,N,K")
	fs.BoolVar(&o.dynamic, "dynamic", false, "Allow run-time tile sizes, resolved for this machine")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "Log the tile selection at debug level")
}

// descriptor returns the --target descriptor, or the host's.
func (o *options) descriptor() (target.Descriptor, error) {
	if o.target == "" {
		return o.host(), nil
	}
	return target.Parse(o.target)
}

// host returns target.Host, warning when it ignored an invalid override.
func (o *options) host() target.Descriptor {
	if err := target.HostOverrideError(); err != nil {
		o.logger.Warn("invalid target override", "error", err)
	}
	return target.Host()
}

// problem parses --types and --narrow for a contraction of the given shape.
func (o *options) problem(shape tile.ContractionShape) (tile.Problem, error) {
	types, err := tile.ParseTriple(o.types)
	if err != nil {
		return tile.Problem{}, err
	}
	narrow, err := parseNarrow(o.narrow)
	if err != nil {
		return tile.Problem{}, err
	}
	return tile.Problem{Shape: shape, Types: types, Narrow: narrow}, nil
}
