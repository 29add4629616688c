// queue_test.go

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

package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueue_PushDrain(t *testing.T) {
	q := New[string](0)
	assert.Nil(t, q.Drain())

	q.Push("a")
	q.Push("b", "c")
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, []string{"a", "b", "c"}, q.Drain())
	assert.Equal(t, 0, q.Len())
	assert.Nil(t, q.Drain())
}

func TestQueue_DropsOldest(t *testing.T) {
	q := New[int](3)
	q.Push(1, 2, 3, 4)
	q.Push(5)
	assert.Equal(t, []int{3, 4, 5}, q.Drain())
	assert.Equal(t, uint64(2), q.Dropped())
}

func TestQueue_PushFront(t *testing.T) {
	q := New[int](4)
	q.Push(1, 2)
	got := q.Drain()
	q.Push(3)
	q.PushFront(got...)
	assert.Equal(t, []int{1, 2, 3}, q.Drain())

	q.Push(5, 6, 7)
	q.PushFront(3, 4)
	assert.Equal(t, []int{4, 5, 6, 7}, q.Drain())
	assert.Equal(t, uint64(1), q.Dropped())
}

func TestQueue_DrainedSliceIsStable(t *testing.T) {
	q := New[int](0)
	q.Push(1, 2)
	got := q.Drain()
	q.Push(9)
	assert.Equal(t, []int{1, 2}, got)
}

func TestQueue_Concurrent(t *testing.T) {
	q := New[int](0)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Push(j)
			}
		}()
	}
	total := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		total += len(q.Drain())
		select {
		case <-done:
			total += len(q.Drain())
			assert.Equal(t, 1000, total)
			return
		default:
		}
	}
}
