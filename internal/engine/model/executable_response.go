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

package model

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// ExecutionMode is the shape of work a node declared it is waiting on.
type ExecutionMode string

const (
	ModeSync       ExecutionMode = "SYNC"
	ModeAsync      ExecutionMode = "ASYNC"
	ModeTask       ExecutionMode = "TASK"
	ModeTaskChain  ExecutionMode = "TASK_CHAIN"
	ModeChild      ExecutionMode = "CHILD"
	ModeChildren   ExecutionMode = "CHILDREN"
	ModeChildChain ExecutionMode = "CHILD_CHAIN"
	ModeAsyncChain ExecutionMode = "ASYNC_CHAIN"
)

type SyncResponse struct {
	Units []string `json:"units,omitempty"`
}

type AsyncResponse struct {
	CallbackIDs []string `json:"callbackIds"`
	Units       []string `json:"units,omitempty"`
	TimeoutMs   int64    `json:"timeoutMs,omitempty"`
}

type TaskResponse struct {
	TaskID       string   `json:"taskId"`
	TaskCategory string   `json:"taskCategory,omitempty"`
	Units        []string `json:"units,omitempty"`
}

type TaskChainResponse struct {
	TaskID   string `json:"taskId"`
	ChainEnd bool   `json:"chainEnd"`
}

type ChildResponse struct {
	ChildNodeID      string            `json:"childNodeId"`
	StrategyMetadata *StrategyMetadata `json:"strategyMetadata,omitempty"`
}

type ChildSpec struct {
	ChildNodeID      string            `json:"childNodeId"`
	StrategyMetadata *StrategyMetadata `json:"strategyMetadata,omitempty"`
}

type ChildrenResponse struct {
	Children       []ChildSpec `json:"children"`
	MaxConcurrency int         `json:"maxConcurrency,omitempty"`
}

type ChildChainResponse struct {
	NextChildID     string `json:"nextChildId"`
	PreviousChildID string `json:"previousChildId,omitempty"`
	// ChainIndex is the position of NextChildID among the parent's children.
	ChainIndex       int               `json:"chainIndex"`
	ChainEnd         bool              `json:"chainEnd"`
	Suspend          bool              `json:"suspend,omitempty"`
	StrategyMetadata *StrategyMetadata `json:"strategyMetadata,omitempty"`
}

type AsyncChainResponse struct {
	CallbackID string `json:"callbackId"`
	ChainEnd   bool   `json:"chainEnd"`
}

// ExecutableResponse records what a node told the engine it will do next.
// Exactly one payload matching Kind is set.
type ExecutableResponse struct {
	Kind       ExecutionMode       `json:"kind"`
	Sync       *SyncResponse       `json:"sync,omitempty"`
	Async      *AsyncResponse      `json:"async,omitempty"`
	Task       *TaskResponse       `json:"task,omitempty"`
	TaskChain  *TaskChainResponse  `json:"taskChain,omitempty"`
	Child      *ChildResponse      `json:"child,omitempty"`
	Children   *ChildrenResponse   `json:"children,omitempty"`
	ChildChain *ChildChainResponse `json:"childChain,omitempty"`
	AsyncChain *AsyncChainResponse `json:"asyncChain,omitempty"`
}

// Validate checks that exactly the payload named by Kind is present.
func (r ExecutableResponse) Validate() error {
	set := 0
	for _, p := range []bool{
		r.Sync != nil, r.Async != nil, r.Task != nil, r.TaskChain != nil,
		r.Child != nil, r.Children != nil, r.ChildChain != nil, r.AsyncChain != nil,
	} {
		if p {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("executable response %s carries %d payloads, want 1", r.Kind, set)
	}
	var ok bool
	switch r.Kind {
	case ModeSync:
		ok = r.Sync != nil
	case ModeAsync:
		ok = r.Async != nil
	case ModeTask:
		ok = r.Task != nil
	case ModeTaskChain:
		ok = r.TaskChain != nil
	case ModeChild:
		ok = r.Child != nil
	case ModeChildren:
		ok = r.Children != nil
	case ModeChildChain:
		ok = r.ChildChain != nil
	case ModeAsyncChain:
		ok = r.AsyncChain != nil
	default:
		return fmt.Errorf("unknown executable response kind %q", r.Kind)
	}
	if !ok {
		return fmt.Errorf("executable response payload does not match kind %s", r.Kind)
	}
	return nil
}

// Key is the canonical encoding used for set membership. Two responses with
// the same Key are the same response.
func (r ExecutableResponse) Key() string {
	s, err := sonic.ConfigStd.MarshalToString(r)
	if err != nil {
		// every field is plain data; this cannot fail for a well formed value
		return string(r.Kind)
	}
	return s
}

func (r ExecutableResponse) Equal(o ExecutableResponse) bool {
	return r.Key() == o.Key()
}
