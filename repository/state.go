/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package repository

import (
	"github.com/uptrace/bun"
)

// step shapes a select. Projection steps add result columns and are skipped
// by Count and Scan.
type step struct {
	apply      func(db bun.IDB, q *bun.SelectQuery) *bun.SelectQuery
	projection bool
}

// pending is the per-call context consumed by the next terminal operation.
type pending struct {
	steps   []step
	counts  []string
	hidden  []string
	visible []string
	ordered bool
	err     error
}

func (p *pending) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func (p *pending) clone() *pending {
	cp := *p
	cp.steps = append([]step(nil), p.steps...)
	cp.counts = append([]string(nil), p.counts...)
	cp.hidden = append([]string(nil), p.hidden...)
	cp.visible = append([]string(nil), p.visible...)
	return &cp
}

// call is what a terminal operation runs with.
type call struct {
	*pending
	scope ScopeFunc
}

// begin takes the pending context and scope, leaving a fresh context behind.
func (r *baseRepository[T]) begin() call {
	c := call{pending: r.pending, scope: r.scope}
	r.pending = &pending{}
	if r.policy == ScopeOnce {
		r.scope = nil
	}
	return c
}

// unprojected drops Hidden and Visible so write paths load whole rows,
// primary key included.
func (c call) unprojected() call {
	if len(c.hidden) == 0 && len(c.visible) == 0 {
		return c
	}
	p := c.pending.clone()
	p.hidden, p.visible = nil, nil
	return call{pending: p, scope: c.scope}
}

// peek returns the current context without consuming it.
func (r *baseRepository[T]) peek() call {
	return call{pending: r.pending, scope: r.scope}
}
