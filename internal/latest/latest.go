// latest.go

// Copyright (C) 2018  Steve Merrony

// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.

// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package latest provides a single-slot mailbox that always holds the most
// recently published value.
package latest

import (
	"sync"
	"sync/atomic"
)

// Cell holds the newest value published by a producer. Publish overwrites
// whatever is there and never waits; Load returns immediately with whatever
// is there. Values are handed over as-is, so producers must not mutate a value
// after publishing it.
type Cell[T any] struct {
	mu       sync.Mutex
	value    T
	seq      uint64
	consumed bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

// Stats counts values passing through a Cell.
type Stats struct {
	Published uint64
	Dropped   uint64 // overwritten before anyone loaded them
}

// Publish stores v as the newest value.
func (c *Cell[T]) Publish(v T) {
	c.mu.Lock()
	if c.seq > 0 && !c.consumed {
		c.dropped.Add(1)
	}
	c.value = v
	c.seq++
	c.consumed = false
	c.mu.Unlock()
	c.published.Add(1)
}

// Load returns the newest value and its sequence number, starting at 1.
// ok is false if nothing has been published yet.
func (c *Cell[T]) Load() (v T, seq uint64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq == 0 {
		return v, 0, false
	}
	c.consumed = true
	return c.value, c.seq, true
}

// Seq returns the sequence number of the newest value without consuming it.
func (c *Cell[T]) Seq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Stats returns the cell's counters.
func (c *Cell[T]) Stats() Stats {
	return Stats{Published: c.published.Load(), Dropped: c.dropped.Load()}
}
