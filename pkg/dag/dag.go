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

// Package dag checks that a parent to children relation is acyclic.
package dag

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrUnknownNode = errors.New("unknown node")
	ErrCycle       = errors.New("cycle detected")
)

const (
	unvisited = iota
	visiting
	done
)

// Check walks every node of edges, keyed by node name and listing the names it
// points to. It fails on a reference to a name that is not a key or on any
// cycle, reporting the path that closes it.
func Check(edges map[string][]string) error {
	state := make(map[string]int, len(edges))
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			start := 0
			for i, n := range path {
				if n == name {
					start = i
					break
				}
			}
			return errors.Wrapf(ErrCycle, "%s -> %s", strings.Join(path[start:], " -> "), name)
		}
		state[name] = visiting
		path = append(path, name)
		for _, next := range edges[name] {
			if _, ok := edges[next]; !ok {
				return errors.Wrapf(ErrUnknownNode, "%q points to %q", name, next)
			}
			if err := visit(next); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[name] = done
		return nil
	}

	for name := range edges {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// Reachable returns the names reachable from root, root included.
func Reachable(edges map[string][]string, root string) map[string]struct{} {
	out := make(map[string]struct{})
	stack := []string{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := out[n]; ok {
			continue
		}
		out[n] = struct{}{}
		stack = append(stack, edges[n]...)
	}
	return out
}
