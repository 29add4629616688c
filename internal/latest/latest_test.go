// latest_test.go

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

package latest

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCell_EmptyLoad(t *testing.T) {
	var c Cell[int]
	v, seq, ok := c.Load()
	assert.False(t, ok)
	assert.Zero(t, seq)
	assert.Zero(t, v)
}

func TestCell_Overwrite(t *testing.T) {
	var c Cell[string]
	c.Publish("a")
	c.Publish("b")

	v, seq, ok := c.Load()
	require.True(t, ok)
	assert.Equal(t, "b", v)
	assert.Equal(t, uint64(2), seq)
	assert.Equal(t, Stats{Published: 2, Dropped: 1}, c.Stats())

	// loading again returns the same value with the same sequence
	v, seq2, ok := c.Load()
	require.True(t, ok)
	assert.Equal(t, "b", v)
	assert.Equal(t, seq, seq2)

	c.Publish("c")
	assert.Equal(t, uint64(1), c.Stats().Dropped)
	assert.Equal(t, uint64(3), c.Seq())
}

func TestCell_LoadNeverBlocks(t *testing.T) {
	var c Cell[[]byte]
	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				c.Publish(make([]byte, 1024))
			}
		}
	}()

	start := time.Now()
	for i := 0; i < 1000; i++ {
		c.Load()
	}
	close(stop)
	wg.Wait()

	assert.Less(t, time.Since(start), time.Second)
}
