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

package event

import (
	"testing"

	"github.com/go-arcade/orchestrator/internal/engine/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ambiance(runtimeID string) model.Ambiance {
	return model.Ambiance{PlanExecutionID: "pe", Levels: []model.Level{{RuntimeID: runtimeID}}}
}

func TestSdkResponseEvent_Validate(t *testing.T) {
	tests := []struct {
		name    string
		event   *SdkResponseEvent
		wantErr bool
	}{
		{name: "resume", event: NewResume(ambiance("n"), nil, false)},
		{name: "step response", event: NewStepResponse(ambiance("n"), model.StatusFailed, nil)},
		{name: "missing payload", event: &SdkResponseEvent{Kind: KindSpawnChild, Ambiance: ambiance("n")}, wantErr: true},
		{name: "unknown kind", event: &SdkResponseEvent{Kind: "BOGUS", Ambiance: ambiance("n")}, wantErr: true},
		{name: "no level", event: NewResume(model.Ambiance{}, nil, false), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformed)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewResume_EmptyMap(t *testing.T) {
	e := NewResume(ambiance("n"), nil, false)
	require.NotNil(t, e.Resume.Responses)
	assert.Empty(t, e.Resume.Responses)
	assert.Equal(t, "n", e.NodeExecutionID())
	assert.NotEmpty(t, e.ID)
}

func TestDecode(t *testing.T) {
	child := model.ExecutableResponse{Kind: model.ModeChild, Child: &model.ChildResponse{ChildNodeID: "c"}}
	b, err := Encode(NewSpawnChild(ambiance("n"), child))
	require.NoError(t, err)

	got, err := DecodeSdkResponse(b)
	require.NoError(t, err)
	assert.Equal(t, KindSpawnChild, got.Kind)
	require.NotNil(t, got.SpawnChild)
	assert.True(t, child.Equal(got.SpawnChild.Response))

	_, err = DecodeSdkResponse([]byte("{"))
	assert.ErrorIs(t, err, ErrMalformed)
}
