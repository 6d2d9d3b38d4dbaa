/*
Copyright © 2026 the NoiseMap authors.
This file is part of NoiseMap.

NoiseMap is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

NoiseMap is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with NoiseMap.  If not, see <http://www.gnu.org/licenses/>.
*/

package noisemap

import "sync"

// Progress tracks the completion of a hierarchical task. A nil *Progress is
// valid and discards all updates, so callers that do not care about
// progress can pass nil throughout.
type Progress struct {
	mu     sync.Mutex
	parent *Progress
	total  int64
	done   int64
}

// NewProgress returns a tracker expecting total steps.
func NewProgress(total int) *Progress {
	return &Progress{total: int64(total)}
}

// SubProcess returns a child tracker expecting total steps. Completing the
// child advances the parent by one step.
func (p *Progress) SubProcess(total int) *Progress {
	if p == nil {
		return nil
	}
	return &Progress{parent: p, total: int64(total)}
}

// Step records the completion of one step.
func (p *Progress) Step() {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.done++
	finished := p.total > 0 && p.done == p.total
	p.mu.Unlock()
	if finished && p.parent != nil {
		p.parent.Step()
	}
}

// Fraction returns the completed share of the task in [0,1].
func (p *Progress) Fraction() float64 {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total == 0 {
		return 0
	}
	f := float64(p.done) / float64(p.total)
	if f > 1 {
		f = 1
	}
	return f
}

// Done returns the number of completed steps.
func (p *Progress) Done() int64 {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}
