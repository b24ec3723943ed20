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

package id_test

import (
	"testing"

	"github.com/go-arcade/orchestrator/pkg/id"
	"github.com/stretchr/testify/assert"
)

func TestDerive(t *testing.T) {
	a := id.Derive("parent", "event-1")
	b := id.Derive("parent", "event-1")
	c := id.Derive("parent", "event-2")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 36)
	assert.NotEqual(t, id.Derive("ab", "c"), id.Derive("a", "bc"))
}

func TestDeriveIndexed(t *testing.T) {
	assert.Equal(t, id.DeriveIndexed(0, "p", "e"), id.DeriveIndexed(0, "p", "e"))
	assert.NotEqual(t, id.DeriveIndexed(0, "p", "e"), id.DeriveIndexed(1, "p", "e"))
}

func TestRandomIDs(t *testing.T) {
	tests := []struct {
		name   string
		gen    func() string
		length int
	}{
		{name: "uuid", gen: id.UUID, length: 36},
		{name: "ulid", gen: id.ULID, length: 26},
		{name: "xid", gen: id.Xid, length: 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.gen()
			assert.Len(t, got, tt.length)
			assert.NotEqual(t, got, tt.gen())
		})
	}

	assert.NotEmpty(t, id.Short())
}
