// errors.go

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

package link

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors classifying vehicle failures. Implementations wrap them
// with fmt.Errorf("...: %w", ...) so callers can use errors.Is.
var (
	// ErrConnection means the link was never established or has been lost.
	ErrConnection = errors.New("vehicle connection failed")
	// ErrCommandRejected means the vehicle refused a primitive.
	ErrCommandRejected = errors.New("vehicle rejected command")
	// ErrTransientSend means one velocity command was lost.
	ErrTransientSend = errors.New("velocity command not sent")
	// ErrCapture means no frame was available or it could not be written.
	ErrCapture = errors.New("capture failed")
	// ErrTimeout means a primitive did not complete within its deadline.
	ErrTimeout = errors.New("vehicle primitive timed out")
)

// Kind is the class of a vehicle error.
type Kind int

// Error kinds, in the order they are checked.
const (
	KindNone Kind = iota
	KindConnection
	KindRejected
	KindTimeout
	KindTransient
	KindCapture
	KindCanceled
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindConnection:
		return "connection"
	case KindRejected:
		return "rejected"
	case KindTimeout:
		return "timeout"
	case KindTransient:
		return "transient"
	case KindCapture:
		return "capture"
	case KindCanceled:
		return "canceled"
	default:
		return "other"
	}
}

// Classify maps err onto a Kind. A bare context deadline counts as a timeout.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrConnection):
		return KindConnection
	case errors.Is(err, ErrCommandRejected):
		return KindRejected
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrTransientSend):
		return KindTransient
	case errors.Is(err, ErrCapture):
		return KindCapture
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindOther
	}
}

// WrapContext wraps a context error returned while op was in progress,
// marking an expired deadline as ErrTimeout.
func WrapContext(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
