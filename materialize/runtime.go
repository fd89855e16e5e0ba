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
	"fmt"

	"github.com/ajroetker/go-datatile/target"
)

// RuntimeResolver answers QueryTileSizes requests the way a runtime does: by
// materializing the queried tensor with static tile sizes for the machine it
// actually runs on.
type RuntimeResolver struct {
	// Host is the machine the packed data will be computed on. The zero
	// value uses target.Host().
	Host target.Descriptor
}

// ResolveTileSizes implements TileSizeResolver.
func (r RuntimeResolver) ResolveTileSizes(q QueryTileSizes) ([]int64, error) {
	host := r.Host
	if host.Family == target.FamilyUnknown {
		host = target.Host()
	}
	// Without a TileSizes option the host always picks static sizes.
	res, err := New(host, Options{}).Materialize(q.Tensor)
	if err != nil {
		return nil, err
	}
	if len(res.Info.InnerTileSizes) != q.Rank() {
		return nil, fmt.Errorf("materialize: %d tile sizes for a rank %d query", len(res.Info.InnerTileSizes), q.Rank())
	}
	return res.Info.InnerTileSizes, nil
}
