// commands.go

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

package main

import (
	"github.com/urfave/cli"
)

var outputFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "dir, d",
		Usage: "Directory for snapshots (default from config)",
	},
	cli.StringFlag{
		Name:  "prefix",
		Usage: "Snapshot file name prefix (default from config)",
	},
	cli.BoolFlag{
		Name:  "sim",
		Usage: "Fly a simulated vehicle instead of a Tello",
	},
}

var COMMANDS = []cli.Command{
	{
		Name:  "manual",
		Usage: "Fly by keyboard with live video",
		Flags: append([]cli.Flag{
			cli.IntFlag{
				Name:  "tick-hz",
				Usage: "Command send rate (default is 30)",
			},
			cli.IntFlag{
				Name:  "speed, s",
				Usage: "Stick deflection per key in percent (default is 30)",
			},
			cli.IntFlag{
				Name:  "rotate",
				Usage: "Rotate the displayed video clockwise by 0, 90, 180 or 270 degrees",
			},
		}, outputFlags...),
		Action: manualCommand,
	},

	{
		Name:  "mission",
		Usage: "Take off, climb, photograph while rotating, descend and land",
		Flags: append([]cli.Flag{
			cli.IntFlag{
				Name:  "height",
				Usage: "Climb above takeoff height in cm (default is 30)",
			},
			cli.IntFlag{
				Name:  "angle",
				Usage: "Clockwise rotation between pictures in degrees (default is 90)",
			},
			cli.IntFlag{
				Name:  "repeat, n",
				Usage: "Number of pictures (default is 4)",
			},
		}, outputFlags...),
		Action: missionCommand,
	},
}
