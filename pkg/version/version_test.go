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

package version

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfo_String(t *testing.T) {
	assert.Equal(t, "1.2.0", Info{Version: "1.2.0"}.String())
	assert.Equal(t, "1.2.0 (abc123)", Info{Version: "1.2.0", GitCommit: "abc123"}.String())
}

func TestCmd(t *testing.T) {
	var buf bytes.Buffer
	Cmd.SetOut(&buf)
	require.NoError(t, Cmd.RunE(Cmd, nil))
	assert.Contains(t, buf.String(), `"version"`)
	assert.Contains(t, buf.String(), `"platform"`)
}
