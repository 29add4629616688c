// run.go

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

package mission

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/SMerrony/tellopilot/internal/link"
	"github.com/SMerrony/tellopilot/internal/snapshot"
)

// Options describe one mission.
type Options struct {
	Dir    string
	Prefix string
	Params Params
	Config Config

	Vehicle link.Vehicle
	Fs      afero.Fs // defaults to the OS filesystem

	OnTransition func(from, to State)
	OnCapture    func(snapshot.Image)
}

// Run plans and flies a mission, writing its pictures to
// {Dir}/{Prefix}{0..Repeat-1}.png.
func Run(ctx context.Context, log zerolog.Logger, opts Options) (Report, error) {
	if opts.Vehicle == nil {
		return Report{}, errors.New("mission: no vehicle")
	}
	plan, err := NewPlan(opts.Params)
	if err != nil {
		return Report{}, err
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	capt, err := snapshot.New(log, fs, opts.Vehicle, snapshot.Options{Dir: opts.Dir, Prefix: opts.Prefix})
	if err != nil {
		return Report{}, err
	}
	if opts.OnCapture != nil {
		capt.OnCapture(opts.OnCapture)
	}

	seq, err := NewSequencer(log, opts.Vehicle, capt, plan, opts.Config)
	if err != nil {
		return Report{}, err
	}
	if opts.OnTransition != nil {
		seq.OnTransition(opts.OnTransition)
	}
	log.Info().Str("plan", plan.String()).Msg("Starting mission")
	return seq.Fly(ctx)
}
