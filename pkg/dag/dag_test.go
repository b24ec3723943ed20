// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dag

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		edges   map[string][]string
		wantErr error
	}{
		{name: "empty", edges: map[string][]string{}},
		{name: "tree", edges: map[string][]string{"root": {"a", "b"}, "a": {"c"}, "b": nil, "c": nil}},
		{name: "shared child", edges: map[string][]string{"root": {"a", "b"}, "a": {"c"}, "b": {"c"}, "c": nil}},
		{name: "self", edges: map[string][]string{"a": {"a"}}, wantErr: ErrCycle},
		{name: "loop", edges: map[string][]string{"a": {"b"}, "b": {"c"}, "c": {"a"}}, wantErr: ErrCycle},
		{name: "unknown", edges: map[string][]string{"a": {"x"}}, wantErr: ErrUnknownNode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.edges)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.wantErr, errors.Cause(err))
		})
	}
}

func TestCheck_ReportsPath(t *testing.T) {
	err := Check(map[string][]string{"a": {"b"}, "b": {"a"}})
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), " -> ")
	}
}

func TestReachable(t *testing.T) {
	edges := map[string][]string{"root": {"a"}, "a": {"b"}, "b": nil, "orphan": nil}
	got := Reachable(edges, "root")
	assert.Len(t, got, 3)
	assert.NotContains(t, got, "orphan")
}
