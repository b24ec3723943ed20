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

// Package concurrency bounds how many children of one fan-out run at once.
package concurrency

import (
	"context"
	"fmt"
	"slices"

	"github.com/go-arcade/orchestrator/internal/engine/model"
	"github.com/go-arcade/orchestrator/internal/engine/repo"
	"github.com/go-arcade/orchestrator/pkg/log"
)

const DefaultMaxConcurrency = 100

// Conf is the concurrency section of the orchestrator config.
type Conf struct {
	// MaxConcurrency is the ceiling applied when an account has no override.
	MaxConcurrency int            `mapstructure:"maxConcurrency"`
	Accounts       map[string]int `mapstructure:"accounts"`
}

func (c *Conf) SetDefaults() {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
}

// Admission is the split of one fan-out into children started now and
// children queued behind them.
type Admission struct {
	ToStart []string
	ToQueue []string
	// Existing is set when the split was already persisted by an earlier delivery.
	Existing bool
}

type Controller struct {
	children repo.IConcurrentChildRepository
	cfg      Conf
}

func NewController(children repo.IConcurrentChildRepository, cfg Conf) *Controller {
	cfg.SetDefaults()
	return &Controller{children: children, cfg: cfg}
}

func (c *Controller) ceiling(accountID string) int {
	if v, ok := c.cfg.Accounts[accountID]; ok && v > 0 {
		return v
	}
	return c.cfg.MaxConcurrency
}

// MaxConcurrency clamps the declared limit to the account ceiling. Zero or a
// negative result admits one child at a time.
func (c *Controller) MaxConcurrency(a model.Ambiance, declared int) int {
	limit := c.ceiling(a.AccountID())
	if declared > 0 && declared < limit {
		limit = declared
	}
	if limit <= 0 {
		return 1
	}
	return limit
}

// Admit persists the admission window of parentID once and reports the split.
// A repeated call returns the stored split with Existing set.
func (c *Controller) Admit(ctx context.Context, parentID string, children []string, maxConcurrency int) (*Admission, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	cursor := min(maxConcurrency, len(children))
	inst, created, err := c.children.CreateIfAbsent(ctx, &model.ConcurrentChildInstance{
		ParentID:                 parentID,
		ChildrenNodeExecutionIDs: children,
		Cursor:                   cursor,
		MaxConcurrency:           maxConcurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("admit children of %s: %w", parentID, err)
	}
	if !created {
		// report the first window so a redelivery repeats the same initiations
		log.Debugw("admission already recorded", "parent_id", parentID, "cursor", inst.Cursor)
		ids := inst.ChildrenNodeExecutionIDs
		split := min(inst.MaxConcurrency, len(ids))
		return &Admission{
			ToStart:  slices.Clone(ids[:split]),
			ToQueue:  slices.Clone(ids[split:]),
			Existing: true,
		}, nil
	}
	return &Admission{ToStart: inst.Started(), ToQueue: inst.Queued()}, nil
}

// OnChildCompleted frees the slot held by childID and returns the queued child
// promoted into it. The result is empty once the queue is drained.
func (c *Controller) OnChildCompleted(ctx context.Context, parentID, childID string) ([]string, error) {
	next, ok, err := c.children.Advance(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("advance children of %s after %s: %w", parentID, childID, err)
	}
	if !ok {
		return nil, nil
	}
	log.Debugw("queued child promoted", "parent_id", parentID, "completed", childID, "promoted", next)
	return []string{next}, nil
}
