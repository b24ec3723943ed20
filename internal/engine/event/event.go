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

// Package event defines the messages the engine exchanges with step executors.
package event

import (
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-arcade/orchestrator/internal/engine/model"
	"github.com/go-arcade/orchestrator/pkg/id"
)

// Event is implemented by every message carried on the transport.
type Event interface {
	// EventName returns the kind of the event
	EventName() string
	// EventType returns the transport task type of the event
	EventType() string
}

const (
	TaskTypeSdkResponse  = "sdk:response"
	TaskTypeInitiateNode = "node:initiate"
)

type Kind string

const (
	KindAddExecutableResponse Kind = "ADD_EXECUTABLE_RESPONSE"
	KindHandleProgress        Kind = "HANDLE_PROGRESS"
	KindResumeNodeExecution   Kind = "RESUME_NODE_EXECUTION"
	KindSpawnChild            Kind = "SPAWN_CHILD"
	KindSpawnChildren         Kind = "SPAWN_CHILDREN"
	KindHandleStepResponse    Kind = "HANDLE_STEP_RESPONSE"
)

var ErrMalformed = errors.New("malformed event")

// AddExecutableResponseRequest records a response and, unless Status is
// NO_OP, moves the node to Status.
type AddExecutableResponseRequest struct {
	Status   model.Status             `json:"status"`
	Response model.ExecutableResponse `json:"response"`
}

// ProgressRequest carries a JSON object merged into the node's progress.
type ProgressRequest struct {
	Status       model.Status `json:"status,omitempty"`
	ProgressJSON string       `json:"progressJson"`
}

type ResumeRequest struct {
	Response   *model.ExecutableResponse     `json:"response,omitempty"`
	Responses  map[string]model.ResponseData `json:"responses"`
	AsyncError bool                          `json:"asyncError,omitempty"`
}

type SpawnChildRequest struct {
	Response model.ExecutableResponse `json:"response"`
}

type SpawnChildrenRequest struct {
	Response model.ExecutableResponse `json:"response"`
}

// StepResponseRequest is a final outcome reported by a step executor.
type StepResponseRequest struct {
	Status      model.Status       `json:"status"`
	FailureInfo *model.FailureInfo `json:"failureInfo,omitempty"`
}

// SdkResponseEvent is the inbound tagged union. The payload matching Kind is
// the only one set.
type SdkResponseEvent struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	Ambiance  model.Ambiance `json:"ambiance"`
	CreatedAt time.Time      `json:"createdAt"`

	AddExecutableResponse *AddExecutableResponseRequest `json:"addExecutableResponse,omitempty"`
	Progress              *ProgressRequest              `json:"progress,omitempty"`
	Resume                *ResumeRequest                `json:"resume,omitempty"`
	SpawnChild            *SpawnChildRequest            `json:"spawnChild,omitempty"`
	SpawnChildren         *SpawnChildrenRequest         `json:"spawnChildren,omitempty"`
	StepResponse          *StepResponseRequest          `json:"stepResponse,omitempty"`
}

func (e *SdkResponseEvent) EventName() string { return string(e.Kind) }
func (e *SdkResponseEvent) EventType() string { return TaskTypeSdkResponse }

// NodeExecutionID is the runtime id of the node the event is about.
func (e *SdkResponseEvent) NodeExecutionID() string {
	return e.Ambiance.CurrentRuntimeID()
}

func (e *SdkResponseEvent) Validate() error {
	if e.NodeExecutionID() == "" {
		return fmt.Errorf("%w: %s event %s has no current level", ErrMalformed, e.Kind, e.ID)
	}
	var present bool
	switch e.Kind {
	case KindAddExecutableResponse:
		present = e.AddExecutableResponse != nil
	case KindHandleProgress:
		present = e.Progress != nil
	case KindResumeNodeExecution:
		present = e.Resume != nil
	case KindSpawnChild:
		present = e.SpawnChild != nil
	case KindSpawnChildren:
		present = e.SpawnChildren != nil
	case KindHandleStepResponse:
		present = e.StepResponse != nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformed, e.Kind)
	}
	if !present {
		return fmt.Errorf("%w: %s event %s has no payload", ErrMalformed, e.Kind, e.ID)
	}
	return nil
}

func newSdkEvent(kind Kind, a model.Ambiance) *SdkResponseEvent {
	return &SdkResponseEvent{ID: id.ULID(), Kind: kind, Ambiance: a, CreatedAt: time.Now().UTC()}
}

func NewAddExecutableResponse(a model.Ambiance, status model.Status, r model.ExecutableResponse) *SdkResponseEvent {
	e := newSdkEvent(KindAddExecutableResponse, a)
	e.AddExecutableResponse = &AddExecutableResponseRequest{Status: status, Response: r}
	return e
}

func NewProgress(a model.Ambiance, status model.Status, progressJSON string) *SdkResponseEvent {
	e := newSdkEvent(KindHandleProgress, a)
	e.Progress = &ProgressRequest{Status: status, ProgressJSON: progressJSON}
	return e
}

func NewResume(a model.Ambiance, responses map[string]model.ResponseData, asyncError bool) *SdkResponseEvent {
	e := newSdkEvent(KindResumeNodeExecution, a)
	if responses == nil {
		responses = map[string]model.ResponseData{}
	}
	e.Resume = &ResumeRequest{Responses: responses, AsyncError: asyncError}
	return e
}

func NewSpawnChild(a model.Ambiance, r model.ExecutableResponse) *SdkResponseEvent {
	e := newSdkEvent(KindSpawnChild, a)
	e.SpawnChild = &SpawnChildRequest{Response: r}
	return e
}

func NewSpawnChildren(a model.Ambiance, r model.ExecutableResponse) *SdkResponseEvent {
	e := newSdkEvent(KindSpawnChildren, a)
	e.SpawnChildren = &SpawnChildrenRequest{Response: r}
	return e
}

func NewStepResponse(a model.Ambiance, status model.Status, failure *model.FailureInfo) *SdkResponseEvent {
	e := newSdkEvent(KindHandleStepResponse, a)
	e.StepResponse = &StepResponseRequest{Status: status, FailureInfo: failure}
	return e
}

type InitiateMode string

const (
	InitiateCreate         InitiateMode = "CREATE"
	InitiateCreateAndStart InitiateMode = "CREATE_AND_START"
	InitiateStart          InitiateMode = "START"
)

// InitiateNodeEvent asks a step executor to run a node.
type InitiateNodeEvent struct {
	ID               string                  `json:"id"`
	Ambiance         model.Ambiance          `json:"ambiance"`
	NodeID           string                  `json:"nodeId"`
	RuntimeID        string                  `json:"runtimeId"`
	StrategyMetadata *model.StrategyMetadata `json:"strategyMetadata,omitempty"`
	InitiateMode     InitiateMode            `json:"initiateMode"`
	StepType         model.StepType          `json:"stepType"`
	StepParameters   []byte                  `json:"stepParameters,omitempty"`
}

func (e *InitiateNodeEvent) EventName() string { return string(e.InitiateMode) }
func (e *InitiateNodeEvent) EventType() string { return TaskTypeInitiateNode }

func Encode(e Event) ([]byte, error) {
	return sonic.Marshal(e)
}

func DecodeSdkResponse(b []byte) (*SdkResponseEvent, error) {
	var e SdkResponseEvent
	if err := sonic.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &e, nil
}

func DecodeInitiateNode(b []byte) (*InitiateNodeEvent, error) {
	var e InitiateNodeEvent
	if err := sonic.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &e, nil
}
