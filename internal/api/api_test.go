// api_test.go

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

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SMerrony/tellopilot/internal/catalog"
	"github.com/SMerrony/tellopilot/internal/link"
	"github.com/SMerrony/tellopilot/internal/status"
)

type fakeCatalog map[string][]catalog.Capture

func (f fakeCatalog) Captures(session string) ([]catalog.Capture, error) {
	caps, ok := f[session]
	if !ok {
		return nil, errors.New("record not found")
	}
	return caps, nil
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	board := status.NewBoard()
	s := New(zerolog.Nop(), board, nil)

	rec := get(t, s.Handler(), "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=UTF-8", rec.Header().Get("Content-Type"))

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, uint64(0), resp.Version)
	assert.Empty(t, resp.LastSeen)

	board.Publish(status.Snapshot{Armed: true})
	rec = get(t, s.Handler(), "/health")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(1), resp.Version)
	assert.True(t, resp.Armed)
	assert.NotEmpty(t, resp.LastSeen)
}

func TestStatus(t *testing.T) {
	board := status.NewBoard()
	s := New(zerolog.Nop(), board, nil)

	rec := get(t, s.Handler(), "/status")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	board.Publish(status.Snapshot{
		Session:   "abc",
		Mode:      status.ModeManual,
		Speed:     30,
		Velocity:  link.Velocity{LeftRight: -30},
		Telemetry: link.Telemetry{Battery: 55},
	})
	rec = get(t, s.Handler(), "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap status.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "abc", snap.Session)
	assert.Equal(t, -30, snap.Velocity.LeftRight)
	assert.Equal(t, 55, snap.Telemetry.Battery)
}

func TestStatusRejectsPost(t *testing.T) {
	s := New(zerolog.Nop(), status.NewBoard(), nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCaptures(t *testing.T) {
	cat := fakeCatalog{
		"m1": {{Index: 0, Path: "/data/img0.png"}, {Index: 1, Path: "/data/img1.png"}},
		"m2": nil,
	}
	s := New(zerolog.Nop(), status.NewBoard(), cat)

	rec := get(t, s.Handler(), "/sessions/m1/captures")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp capturesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "m1", resp.Session)
	require.Len(t, resp.Captures, 2)
	assert.Equal(t, "/data/img1.png", resp.Captures[1].Path)

	rec = get(t, s.Handler(), "/sessions/m2/captures")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"captures":[]`)

	rec = get(t, s.Handler(), "/sessions/nope/captures")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCapturesWithoutCatalog(t *testing.T) {
	s := New(zerolog.Nop(), status.NewBoard(), nil)
	rec := get(t, s.Handler(), "/sessions/m1/captures")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "catalog disabled")
}
