// logging.go

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

// Package logging sets up the zerolog loggers used across tellopilot.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
)

// AppName names log files and the GELF source.
const AppName = "tellopilot"

// LogFilePath builds a log file path using OS-appropriate path separators.
func LogFilePath(logsDir, appName string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", appName, sessionStart.Format("20060102_150405")),
	)
}

// ParseLevel maps a config level name to a zerolog level, defaulting to info.
func ParseLevel(name string) zerolog.Level {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "TRACE":
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

// Options configure Setup.
type Options struct {
	Level   string
	LogsDir string // no log file when empty
	Session string
	Mode    string
	Start   time.Time

	GraylogAddress string // no GELF output when empty

	Console io.Writer // defaults to os.Stdout
}

// Logs is the set of outputs behind a logger. Close flushes and releases them.
type Logs struct {
	Logger  zerolog.Logger
	File    *os.File     // nil without a logs dir
	Graylog *gelf.Writer // nil unless enabled
}

// Setup builds the root logger: colored console, a plain copy in the session
// log file and optionally GELF to Graylog. Every entry carries the session
// and mode.
func Setup(opts Options) (*Logs, error) {
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	writers := []io.Writer{
		// write console format with colors to console
		zerolog.ConsoleWriter{
			Out:        console,
			TimeFormat: time.RFC3339,
		},
	}

	logs := &Logs{}
	if opts.LogsDir != "" {
		if err := os.MkdirAll(opts.LogsDir, 0o755); err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		start := opts.Start
		if start.IsZero() {
			start = time.Now()
		}
		f, err := os.OpenFile(LogFilePath(opts.LogsDir, AppName, start), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		logs.File = f
		// write console format without colors to file
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        f,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		})
	}
	if opts.GraylogAddress != "" {
		gw, err := gelf.NewWriter(opts.GraylogAddress)
		if err != nil {
			logs.Close()
			return nil, fmt.Errorf("logging: graylog: %w", err)
		}
		gw.Facility = AppName
		logs.Graylog = gw
		writers = append(writers, gw)
	}

	session, mode := opts.Session, opts.Mode
	logs.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(opts.Level)).
		With().Timestamp().Logger().
		Hook(zerolog.HookFunc(func(e *zerolog.Event, _ zerolog.Level, _ string) {
			if session != "" {
				e.Str("session", session)
			}
			if mode != "" {
				e.Str("mode", mode)
			}
		}))

	logs.Logger.Info().Str("loglevel", logs.Logger.GetLevel().String()).Msg("Logging set up")
	return logs, nil
}

// Close releases the log file and the GELF connection.
func (l *Logs) Close() error {
	var err error
	if l.Graylog != nil {
		err = l.Graylog.Close()
		l.Graylog = nil
	}
	if l.File != nil {
		if cerr := l.File.Close(); err == nil {
			err = cerr
		}
		l.File = nil
	}
	return err
}

// Sampled returns a logger for messages that may repeat every tick: at most
// 5 entries per 10 seconds, then 1 in 100.
func Sampled(log zerolog.Logger) zerolog.Logger {
	return log.With().Bool("sampled", true).Logger().Sample(&zerolog.BurstSampler{
		Burst:       5,
		Period:      10 * time.Second,
		NextSampler: &zerolog.BasicSampler{N: 100},
	})
}
