// config_test.go

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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_WithValidConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg := `{
		"logLevel": "debug",
		"output": { "dir": "/tmp/pics", "prefix": "survey" },
		"mission": { "height": 50, "repeat": 8, "primitiveTimeout": "30s" },
		"link": { "kind": "sim" }
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(cfg), 0644))

	c, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, "/tmp/pics", c.Output.Dir)
	assert.Equal(t, "survey", c.Output.Prefix)
	assert.Equal(t, 50, c.Mission.Height)
	assert.Equal(t, 8, c.Mission.Repeat)
	assert.Equal(t, 30*time.Second, c.Mission.PrimitiveTimeout)
	assert.Equal(t, "sim", c.Link.Kind)

	// untouched keys keep their defaults
	assert.Equal(t, 90, c.Mission.Angle)
	assert.Equal(t, 15*time.Second, c.Mission.LandingTimeout)
	assert.NoError(t, c.Validate())
}

func TestLoad_DefaultValues(t *testing.T) {
	c, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, "img", c.Output.Prefix)
	assert.Equal(t, 30, c.Control.TickHz)
	assert.Equal(t, 30, c.Control.Speed)
	assert.Equal(t, 10, c.Control.LinkSpeed)
	assert.Equal(t, 15, c.Control.MaxSendFailures)
	assert.Equal(t, 0, c.Overlay.Rotate)
	assert.Equal(t, 30, c.Mission.Height)
	assert.Equal(t, 90, c.Mission.Angle)
	assert.Equal(t, 4, c.Mission.Repeat)
	assert.Equal(t, 20*time.Second, c.Mission.PrimitiveTimeout)
	assert.Equal(t, 250*time.Millisecond, c.Mission.CaptureRetryDelay)
	assert.Equal(t, "tello", c.Link.Kind)
	assert.Equal(t, "192.168.10.1", c.Link.Address)
	assert.Equal(t, 8889, c.Link.ControlPort)
	assert.Equal(t, 6038, c.Link.VideoPort)
	assert.Equal(t, 3*time.Second, c.Link.ConnectTimeout)
	assert.Equal(t, 960, c.Video.Width)
	assert.Equal(t, 720, c.Video.Height)
	assert.False(t, c.Catalog.Enabled)
	assert.Equal(t, "sqlite", c.Catalog.Driver)
	assert.False(t, c.Influx.Enabled)
	assert.Equal(t, time.Second, c.Influx.Interval)
	assert.Equal(t, "tellopilot/status", c.MQTT.Topic)
	assert.Equal(t, "localhost:12201", c.Graylog.Address)
	assert.NoError(t, c.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	c, err := Load("/nonexistent/path")
	require.NoError(t, err)
	assert.Equal(t, "img", c.Output.Prefix)
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(`{"logLevel": `), 0644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("TELLOPILOT_LINK_KIND", "sim")
	t.Setenv("TELLOPILOT_CONTROL_TICKHZ", "20")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sim", c.Link.Kind)
	assert.Equal(t, 20, c.Control.TickHz)
}

func TestLoad_ExpandsHomeDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(`{"output": {"dir": "~/tello"}}`), 0644))

	c, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "tello"), c.Output.Dir)
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"tick rate", func(c *Config) { c.Control.TickHz = 0 }, "control.tickHz"},
		{"speed", func(c *Config) { c.Control.Speed = 101 }, "control.speed"},
		{"prefix", func(c *Config) { c.Output.Prefix = "" }, "output.prefix"},
		{"prefix separator", func(c *Config) { c.Output.Prefix = "../img" }, "path separator"},
		{"bitrate", func(c *Config) { c.Video.Bitrate = 6 }, "video.bitrate"},
		{"rotate", func(c *Config) { c.Overlay.Rotate = 45 }, "overlay.rotate"},
		{"height", func(c *Config) { c.Mission.Height = 10 }, "mission.height"},
		{"angle", func(c *Config) { c.Mission.Angle = 0 }, "mission.angle"},
		{"repeat", func(c *Config) { c.Mission.Repeat = -1 }, "mission.repeat"},
		{"link", func(c *Config) { c.Link.Kind = "bluetooth" }, "link.kind"},
		{"postgres dsn", func(c *Config) { c.Catalog.Enabled = true; c.Catalog.Driver = "postgres" }, "catalog.dsn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *base
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	c.Control.TickHz = 0
	c.Output.Prefix = ""

	err = c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "control.tickHz")
	assert.Contains(t, err.Error(), "output.prefix")
}
