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

package id

import (
	"crypto/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/xid"
	"github.com/teris-io/shortid"
)

// namespace for derived node execution ids
var nodeNamespace = uuid.MustParse("4b1f6a0e-3c1d-5b8e-9a55-0f7c2d2e6b10")

// UUID returns a random v4 uuid.
func UUID() string {
	return uuid.NewString()
}

// Derive returns a stable v5 uuid for the given parts. The same parts always
// yield the same id, which lets redelivered events recreate identical records.
func Derive(parts ...string) string {
	return uuid.NewSHA1(nodeNamespace, []byte(strings.Join(parts, "\x1f"))).String()
}

// DeriveIndexed is Derive with a trailing ordinal.
func DeriveIndexed(index int, parts ...string) string {
	return Derive(append(parts, strconv.Itoa(index))...)
}

// ULID returns a lexically sortable id, used for event ids.
func ULID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0)).String()
}

// Xid returns a 20 character globally unique id.
func Xid() string {
	return xid.New().String()
}

// Short returns a short human friendly id, or an xid when generation fails.
func Short() string {
	s, err := shortid.Generate()
	if err != nil {
		return Xid()
	}
	return s
}
