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

package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvideBroker(t *testing.T) {
	b, cleanup, err := ProvideBroker(Conf{}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryBroker{}, b)
	cleanup()

	_, _, err = ProvideBroker(Conf{Backend: BackendAsynq}, nil, nil)
	assert.Error(t, err)

	_, _, err = ProvideBroker(Conf{Backend: BackendRocketMQ}, nil, nil)
	assert.ErrorContains(t, err, "name servers")

	_, _, err = ProvideBroker(Conf{Backend: "nats"}, nil, nil)
	assert.ErrorContains(t, err, "nats")
}

func TestProvideTaskRecords_Disabled(t *testing.T) {
	m, err := ProvideTaskRecords(Conf{}, nil)
	require.NoError(t, err)
	assert.Nil(t, m)
}
