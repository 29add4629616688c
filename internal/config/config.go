// config.go

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

// Package config loads tellopilot settings from tellopilot.cfg.json and the
// environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// FileName is looked up in the config directory.
const FileName = "tellopilot.cfg.json"

// EnvPrefix prefixes environment overrides, eg. TELLOPILOT_LINK_KIND=sim.
const EnvPrefix = "TELLOPILOT"

// OutputConfig says where snapshots go.
type OutputConfig struct {
	Dir    string `json:"dir" mapstructure:"dir"`
	Prefix string `json:"prefix" mapstructure:"prefix"`
}

// ControlConfig tunes the manual control loop.
type ControlConfig struct {
	TickHz          int `json:"tickHz" mapstructure:"tickHz"`
	Speed           int `json:"speed" mapstructure:"speed"`
	LinkSpeed       int `json:"linkSpeed" mapstructure:"linkSpeed"`
	MaxSendFailures int `json:"maxSendFailures" mapstructure:"maxSendFailures"`
}

// OverlayConfig orients the displayed video.
type OverlayConfig struct {
	Rotate       int  `json:"rotate" mapstructure:"rotate"`
	FlipVertical bool `json:"flipVertical" mapstructure:"flipVertical"`
}

// MissionConfig holds the photo-survey parameters and timeouts.
type MissionConfig struct {
	Height            int           `json:"height" mapstructure:"height"`
	Angle             int           `json:"angle" mapstructure:"angle"`
	Repeat            int           `json:"repeat" mapstructure:"repeat"`
	PrimitiveTimeout  time.Duration `json:"primitiveTimeout" mapstructure:"primitiveTimeout"`
	LandingTimeout    time.Duration `json:"landingTimeout" mapstructure:"landingTimeout"`
	CaptureRetries    int           `json:"captureRetries" mapstructure:"captureRetries"`
	CaptureRetryDelay time.Duration `json:"captureRetryDelay" mapstructure:"captureRetryDelay"`
	FirstFrameTimeout time.Duration `json:"firstFrameTimeout" mapstructure:"firstFrameTimeout"`
}

// LinkConfig selects and addresses the vehicle.
type LinkConfig struct {
	Kind           string        `json:"kind" mapstructure:"kind"` // "tello" or "sim"
	Address        string        `json:"address" mapstructure:"address"`
	ControlPort    int           `json:"controlPort" mapstructure:"controlPort"`
	LocalPort      int           `json:"localPort" mapstructure:"localPort"`
	VideoPort      int           `json:"videoPort" mapstructure:"videoPort"`
	ConnectTimeout time.Duration `json:"connectTimeout" mapstructure:"connectTimeout"`
	Sports         bool          `json:"sports" mapstructure:"sports"` // fast flight mode
}

// VideoConfig sizes decoded frames and picks the camera mode.
type VideoConfig struct {
	Width   int  `json:"width" mapstructure:"width"`
	Height  int  `json:"height" mapstructure:"height"`
	Bitrate int  `json:"bitrate" mapstructure:"bitrate"` // 0 is automatic
	Wide    bool `json:"wide" mapstructure:"wide"`
}

// CatalogConfig holds the capture catalog database settings.
type CatalogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Driver  string `json:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	Path    string `json:"path" mapstructure:"path"`
	DSN     string `json:"dsn" mapstructure:"dsn"`
}

// InfluxConfig holds the telemetry exporter settings.
type InfluxConfig struct {
	Enabled    bool          `json:"enabled" mapstructure:"enabled"`
	URL        string        `json:"url" mapstructure:"url"`
	Token      string        `json:"token" mapstructure:"token"`
	Org        string        `json:"org" mapstructure:"org"`
	Bucket     string        `json:"bucket" mapstructure:"bucket"`
	Interval   time.Duration `json:"interval" mapstructure:"interval"`
	BackupPath string        `json:"backupPath" mapstructure:"backupPath"`
}

// MQTTConfig holds the status emitter settings.
type MQTTConfig struct {
	Enabled  bool          `json:"enabled" mapstructure:"enabled"`
	Broker   string        `json:"broker" mapstructure:"broker"`
	Topic    string        `json:"topic" mapstructure:"topic"`
	Interval time.Duration `json:"interval" mapstructure:"interval"`
}

// APIConfig holds the status HTTP server settings.
type APIConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Listen  string `json:"listen" mapstructure:"listen"`
}

// GraylogConfig holds the GELF log sink settings.
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// Config is the complete set of settings.
type Config struct {
	LogLevel string        `json:"logLevel" mapstructure:"logLevel"`
	LogsDir  string        `json:"logsDir" mapstructure:"logsDir"`
	Output   OutputConfig  `json:"output" mapstructure:"output"`
	Control  ControlConfig `json:"control" mapstructure:"control"`
	Overlay  OverlayConfig `json:"overlay" mapstructure:"overlay"`
	Mission  MissionConfig `json:"mission" mapstructure:"mission"`
	Link     LinkConfig    `json:"link" mapstructure:"link"`
	Video    VideoConfig   `json:"video" mapstructure:"video"`
	Catalog  CatalogConfig `json:"catalog" mapstructure:"catalog"`
	Influx   InfluxConfig  `json:"influx" mapstructure:"influx"`
	MQTT     MQTTConfig    `json:"mqtt" mapstructure:"mqtt"`
	API      APIConfig     `json:"api" mapstructure:"api"`
	Graylog  GraylogConfig `json:"graylog" mapstructure:"graylog"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logLevel", "info")
	v.SetDefault("logsDir", "./tellologs")

	v.SetDefault("output.dir", "./images")
	v.SetDefault("output.prefix", "img")

	v.SetDefault("control.tickHz", 30)
	v.SetDefault("control.speed", 30)
	v.SetDefault("control.linkSpeed", 10)
	v.SetDefault("control.maxSendFailures", 15)

	v.SetDefault("overlay.rotate", 0)
	v.SetDefault("overlay.flipVertical", false)

	v.SetDefault("mission.height", 30)
	v.SetDefault("mission.angle", 90)
	v.SetDefault("mission.repeat", 4)
	v.SetDefault("mission.primitiveTimeout", "20s")
	v.SetDefault("mission.landingTimeout", "15s")
	v.SetDefault("mission.captureRetries", 3)
	v.SetDefault("mission.captureRetryDelay", "250ms")
	v.SetDefault("mission.firstFrameTimeout", "5s")

	v.SetDefault("link.kind", "tello")
	v.SetDefault("link.address", "192.168.10.1")
	v.SetDefault("link.controlPort", 8889)
	v.SetDefault("link.localPort", 8800)
	v.SetDefault("link.videoPort", 6038)
	v.SetDefault("link.connectTimeout", "3s")
	v.SetDefault("link.sports", false)

	v.SetDefault("video.width", 960)
	v.SetDefault("video.height", 720)
	v.SetDefault("video.bitrate", 0)
	v.SetDefault("video.wide", false)

	v.SetDefault("catalog.enabled", false)
	v.SetDefault("catalog.driver", "sqlite")
	v.SetDefault("catalog.path", "./tellopilot.db")
	v.SetDefault("catalog.dsn", "")

	v.SetDefault("influx.enabled", false)
	v.SetDefault("influx.url", "http://localhost:8086")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "tellopilot")
	v.SetDefault("influx.bucket", "telemetry")
	v.SetDefault("influx.interval", "1s")
	v.SetDefault("influx.backupPath", "./tellologs/influx_backup.lp.gz")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "tellopilot/status")
	v.SetDefault("mqtt.interval", "1s")

	v.SetDefault("api.enabled", false)
	v.SetDefault("api.listen", "127.0.0.1:8765")

	v.SetDefault("graylog.enabled", false)
	v.SetDefault("graylog.address", "localhost:12201")
}

// Load reads FileName from configDir, if it exists, over the defaults and
// applies TELLOPILOT_* environment overrides. An empty configDir skips the file.
func Load(configDir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configDir != "" {
		dir, err := homedir.Expand(configDir)
		if err != nil {
			return nil, fmt.Errorf("error expanding config dir: %w", err)
		}
		v.SetConfigName(FileName)
		v.AddConfigPath(dir)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.LogsDir, &c.Output.Dir, &c.Catalog.Path, &c.Influx.BackupPath} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("error expanding %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate reports every setting that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.Control.TickHz <= 0 {
		errs = append(errs, fmt.Errorf("control.tickHz must be positive, got %d", c.Control.TickHz))
	}
	if c.Control.Speed < 1 || c.Control.Speed > 100 {
		errs = append(errs, fmt.Errorf("control.speed must be 1..100, got %d", c.Control.Speed))
	}
	if c.Control.LinkSpeed < 1 || c.Control.LinkSpeed > 100 {
		errs = append(errs, fmt.Errorf("control.linkSpeed must be 1..100, got %d", c.Control.LinkSpeed))
	}
	if c.Control.MaxSendFailures < 1 {
		errs = append(errs, fmt.Errorf("control.maxSendFailures must be positive, got %d", c.Control.MaxSendFailures))
	}
	if c.Output.Prefix == "" {
		errs = append(errs, errors.New("output.prefix must not be empty"))
	} else if strings.ContainsAny(c.Output.Prefix, `/\`) {
		errs = append(errs, fmt.Errorf("output.prefix must not contain a path separator, got %q", c.Output.Prefix))
	}
	switch c.Overlay.Rotate {
	case 0, 90, 180, 270:
	default:
		errs = append(errs, fmt.Errorf("overlay.rotate must be 0, 90, 180 or 270, got %d", c.Overlay.Rotate))
	}
	if c.Mission.Height < 20 || c.Mission.Height > 500 {
		errs = append(errs, fmt.Errorf("mission.height must be 20..500 cm, got %d", c.Mission.Height))
	}
	if c.Mission.Angle < 1 || c.Mission.Angle > 360 {
		errs = append(errs, fmt.Errorf("mission.angle must be 1..360 degrees, got %d", c.Mission.Angle))
	}
	if c.Mission.Repeat < 0 {
		errs = append(errs, fmt.Errorf("mission.repeat must not be negative, got %d", c.Mission.Repeat))
	}
	if c.Mission.PrimitiveTimeout <= 0 || c.Mission.LandingTimeout <= 0 {
		errs = append(errs, errors.New("mission timeouts must be positive"))
	}
	switch c.Link.Kind {
	case "tello", "sim":
	default:
		errs = append(errs, fmt.Errorf("link.kind must be tello or sim, got %q", c.Link.Kind))
	}
	if c.Video.Bitrate < 0 || c.Video.Bitrate > 5 {
		errs = append(errs, fmt.Errorf("video.bitrate must be 0..5, got %d", c.Video.Bitrate))
	}
	if c.Catalog.Enabled {
		switch c.Catalog.Driver {
		case "sqlite":
		case "postgres":
			if c.Catalog.DSN == "" {
				errs = append(errs, errors.New("catalog.dsn is required for postgres"))
			}
		default:
			errs = append(errs, fmt.Errorf("catalog.driver must be sqlite or postgres, got %q", c.Catalog.Driver))
		}
	}
	if c.Influx.Enabled && c.Influx.Interval <= 0 {
		errs = append(errs, errors.New("influx.interval must be positive"))
	}
	if c.MQTT.Enabled && c.MQTT.Interval <= 0 {
		errs = append(errs, errors.New("mqtt.interval must be positive"))
	}
	return errors.Join(errs...)
}
