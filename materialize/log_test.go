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
	"context"
	"log/slog"
	"sync"
)

// recordHandler keeps the messages of every record it handles.
type recordHandler struct {
	mu   sync.Mutex
	msgs []string
}

func newRecordLogger(h *recordHandler) *slog.Logger {
	return slog.New(recordView{h})
}

func (h *recordHandler) count(msg string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, m := range h.msgs {
		if m == msg {
			n++
		}
	}
	return n
}

// recordView shares one recordHandler across WithAttrs/WithGroup copies.
type recordView struct{ h *recordHandler }

func (v recordView) Enabled(context.Context, slog.Level) bool { return true }

func (v recordView) Handle(_ context.Context, r slog.Record) error {
	v.h.mu.Lock()
	defer v.h.mu.Unlock()
	v.h.msgs = append(v.h.msgs, r.Message)
	return nil
}

func (v recordView) WithAttrs([]slog.Attr) slog.Handler { return v }
func (v recordView) WithGroup(string) slog.Handler      { return v }
