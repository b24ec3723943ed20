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

package statemachine

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

var ErrInvalidTransition = errors.New("invalid state transition")

// TransitionHook observes an accepted transition.
type TransitionHook[T comparable] func(from, to T)

// StateMachine is a directed transition table over comparable states. It holds
// no current state of its own; callers pass the persisted state in.
type StateMachine[T comparable] struct {
	mu    sync.RWMutex
	edges map[T][]T
	hooks []TransitionHook[T]
}

func New[T comparable]() *StateMachine[T] {
	return &StateMachine[T]{edges: make(map[T][]T)}
}

// Allow adds edges from -> each of to. Duplicates are ignored.
func (sm *StateMachine[T]) Allow(from T, to ...T) *StateMachine[T] {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for _, target := range to {
		if !slices.Contains(sm.edges[from], target) {
			sm.edges[from] = append(sm.edges[from], target)
		}
	}
	return sm
}

// OnTransition registers a hook fired by Transition after validation.
func (sm *StateMachine[T]) OnTransition(h TransitionHook[T]) *StateMachine[T] {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.hooks = append(sm.hooks, h)
	return sm
}

func (sm *StateMachine[T]) CanTransition(from, to T) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return slices.Contains(sm.edges[from], to)
}

// Next returns the states reachable from 'from' in one step.
func (sm *StateMachine[T]) Next(from T) []T {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return slices.Clone(sm.edges[from])
}

// Predecessors returns every state with an edge into 'to', unordered.
func (sm *StateMachine[T]) Predecessors(to T) []T {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	var out []T
	for from, targets := range sm.edges {
		if slices.Contains(targets, to) {
			out = append(out, from)
		}
	}
	return out
}

// Transition validates from -> to and fires hooks.
func (sm *StateMachine[T]) Transition(from, to T) error {
	sm.mu.RLock()
	ok := slices.Contains(sm.edges[from], to)
	hooks := slices.Clone(sm.hooks)
	sm.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %v -> %v", ErrInvalidTransition, from, to)
	}
	for _, h := range hooks {
		h(from, to)
	}
	return nil
}
