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
	"maps"
	"slices"
	"time"
)

type InterruptType string

const (
	InterruptAbort  InterruptType = "ABORT"
	InterruptExpire InterruptType = "EXPIRE"
	InterruptPause  InterruptType = "PAUSE"
	InterruptResume InterruptType = "RESUME"
)

// InterruptEffect is one externally requested interrupt recorded on a node.
type InterruptEffect struct {
	InterruptID string        `json:"interruptId"`
	Type        InterruptType `json:"type"`
	Issuer      string        `json:"issuer,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
}

func (i InterruptEffect) Halts() bool {
	return i.Type == InterruptAbort || i.Type == InterruptExpire
}

// HaltStatus is the final status a node stopped by i ends in.
func (i InterruptEffect) HaltStatus() Status {
	if i.Type == InterruptExpire {
		return StatusExpired
	}
	return StatusAborted
}

type FailureInfo struct {
	Message   string   `json:"message"`
	ErrorType string   `json:"errorType,omitempty"`
	Details   []string `json:"details,omitempty"`
}

// NodeExecution is the persisted state of one scheduled unit of work.
type NodeExecution struct {
	ID                     string               `json:"id"`
	Ambiance               Ambiance             `json:"ambiance"`
	PlanExecutionID        string               `json:"planExecutionId"`
	NodeID                 string               `json:"nodeId"`
	Identifier             string               `json:"identifier"`
	Name                   string               `json:"name,omitempty"`
	StepType               StepType             `json:"stepType"`
	Status                 Status               `json:"status"`
	Mode                   ExecutionMode        `json:"mode,omitempty"`
	ExecutableResponses    []ExecutableResponse `json:"executableResponses,omitempty"`
	ResolvedStepParameters []byte               `json:"resolvedStepParameters,omitempty"`
	InterruptHistories     []InterruptEffect    `json:"interruptHistories,omitempty"`
	Progress               map[string]any       `json:"progress,omitempty"`
	FailureInfo            *FailureInfo         `json:"failureInfo,omitempty"`
	StrategyMetadata       *StrategyMetadata    `json:"strategyMetadata,omitempty"`
	StartTs                *time.Time           `json:"startTs,omitempty"`
	EndTs                  *time.Time           `json:"endTs,omitempty"`
	CreatedAt              time.Time            `json:"createdAt"`
	UpdatedAt              time.Time            `json:"updatedAt"`
}

// AddExecutableResponse appends r unless an equal response is already recorded.
// It reports whether r was appended.
func (n *NodeExecution) AddExecutableResponse(r ExecutableResponse) bool {
	key := r.Key()
	for _, existing := range n.ExecutableResponses {
		if existing.Key() == key {
			return false
		}
	}
	n.ExecutableResponses = append(n.ExecutableResponses, r)
	if n.Mode == "" {
		n.Mode = r.Kind
	}
	return true
}

// HaltingInterrupt returns the first ABORT or EXPIRE interrupt, if any.
func (n *NodeExecution) HaltingInterrupt() (InterruptEffect, bool) {
	for _, i := range n.InterruptHistories {
		if i.Halts() {
			return i, true
		}
	}
	return InterruptEffect{}, false
}

func (n *NodeExecution) ParentID() string {
	return n.Ambiance.ParentRuntimeID()
}

func (n *NodeExecution) IsRoot() bool {
	return n.ParentID() == ""
}

// Clone returns a deep copy. Progress values are treated as immutable and
// copied at the top level only.
func (n *NodeExecution) Clone() *NodeExecution {
	if n == nil {
		return nil
	}
	out := *n
	out.Ambiance = n.Ambiance.Clone(len(n.Ambiance.Levels))
	out.ExecutableResponses = slices.Clone(n.ExecutableResponses)
	out.ResolvedStepParameters = slices.Clone(n.ResolvedStepParameters)
	out.InterruptHistories = slices.Clone(n.InterruptHistories)
	out.Progress = maps.Clone(n.Progress)
	out.StrategyMetadata = n.StrategyMetadata.Clone()
	if n.FailureInfo != nil {
		fi := *n.FailureInfo
		fi.Details = slices.Clone(n.FailureInfo.Details)
		out.FailureInfo = &fi
	}
	if n.StartTs != nil {
		ts := *n.StartTs
		out.StartTs = &ts
	}
	if n.EndTs != nil {
		ts := *n.EndTs
		out.EndTs = &ts
	}
	return &out
}

// ResponseData is the payload a concluded node resolves its rendezvous key with.
type ResponseData struct {
	NodeExecutionID string     `json:"nodeExecutionId"`
	NodeID          string     `json:"nodeId"`
	Identifier      string     `json:"identifier"`
	Status          Status     `json:"status"`
	FailureMessage  string     `json:"failureMessage,omitempty"`
	EndTs           *time.Time `json:"endTs,omitempty"`
}

// ResponseDataFor builds the rendezvous payload of a concluded node.
func ResponseDataFor(n *NodeExecution) ResponseData {
	rd := ResponseData{
		NodeExecutionID: n.ID,
		NodeID:          n.NodeID,
		Identifier:      n.Identifier,
		Status:          n.Status,
		EndTs:           n.EndTs,
	}
	if n.FailureInfo != nil {
		rd.FailureMessage = n.FailureInfo.Message
	}
	return rd
}

// ConcurrentChildInstance is the admission window of one bounded fan-out.
// Children before Cursor have been started; the rest are queued.
type ConcurrentChildInstance struct {
	ParentID                 string    `json:"parentId"`
	ChildrenNodeExecutionIDs []string  `json:"childrenNodeExecutionIds"`
	Cursor                   int       `json:"cursor"`
	MaxConcurrency           int       `json:"maxConcurrency"`
	CreatedAt                time.Time `json:"createdAt"`
}

func (c *ConcurrentChildInstance) Started() []string {
	return slices.Clone(c.ChildrenNodeExecutionIDs[:c.Cursor])
}

func (c *ConcurrentChildInstance) Queued() []string {
	return slices.Clone(c.ChildrenNodeExecutionIDs[c.Cursor:])
}
