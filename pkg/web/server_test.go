package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/voicecore/pkg/access"
	"github.com/teslashibe/voicecore/pkg/backend"
	"github.com/teslashibe/voicecore/pkg/session"
)

type stubSession struct {
	*session.Streams
	interrupts atomic.Int32
}

func newStubSession() *stubSession {
	return &stubSession{Streams: session.NewStreams("stub", nil)}
}

func (s *stubSession) Start(context.Context, string) error { return nil }
func (s *stubSession) Stop() error                         { s.Streams.Close(); return nil }
func (s *stubSession) Interrupt()                          { s.interrupts.Add(1) }

func getJSON(t *testing.T, srv *Server, path string, v any) int {
	t.Helper()
	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestStatus_ReflectsSessionAndResolution(t *testing.T) {
	srv := NewServer(DefaultConfig(), nil)
	sess := newStubSession()
	srv.Attach(sess, "turn")
	t.Cleanup(srv.Detach)

	srv.SetResolution(access.Result{
		Requested: backend.OpenAI,
		Effective: backend.OnDevice,
		Reason:    access.ReasonMissingConfiguration,
	})
	sess.SetState(session.Listening)

	require.Eventually(t, func() bool {
		var st Status
		getJSON(t, srv, "/api/status", &st)
		return st.State == session.Listening
	}, time.Second, 5*time.Millisecond)

	var st Status
	assert.Equal(t, http.StatusOK, getJSON(t, srv, "/api/status", &st))
	assert.Equal(t, "turn", st.Pipeline)
	require.NotNil(t, st.Resolution)
	assert.Equal(t, backend.OnDevice, st.Resolution.Effective)
	assert.Equal(t, access.ReasonMissingConfiguration, st.Resolution.Reason)
}

func TestConversation_KeepsFinalTranscripts(t *testing.T) {
	srv := NewServer(DefaultConfig(), nil)
	sess := newStubSession()
	srv.Attach(sess, "turn")
	t.Cleanup(srv.Detach)

	sess.EmitTranscript(session.Transcript{Text: "what's", Role: session.RoleUser})
	sess.EmitTranscript(session.Transcript{Text: "what's the time", IsFinal: true, Role: session.RoleUser})
	sess.EmitTranscript(session.Transcript{Text: "It is noon.", IsFinal: true, Role: session.RoleAssistant})

	var entries []ConversationEntry
	require.Eventually(t, func() bool {
		entries = nil
		getJSON(t, srv, "/api/conversation", &entries)
		return len(entries) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, session.RoleUser, entries[0].Role)
	assert.Equal(t, "what's the time", entries[0].Text)
	assert.Equal(t, session.RoleAssistant, entries[1].Role)
	assert.Equal(t, "It is noon.", entries[1].Text)
}

func TestInterrupt(t *testing.T) {
	srv := NewServer(DefaultConfig(), nil)

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodPost, "/api/interrupt", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	sess := newStubSession()
	srv.Attach(sess, "realtime")
	t.Cleanup(srv.Detach)

	resp, err = srv.App().Test(httptest.NewRequest(http.MethodPost, "/api/interrupt", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, int32(1), sess.interrupts.Load())
}

func TestDetachStopsMirroring(t *testing.T) {
	srv := NewServer(DefaultConfig(), nil)
	sess := newStubSession()
	srv.Attach(sess, "turn")
	srv.Detach()

	sess.EmitTranscript(session.Transcript{Text: "ignored", IsFinal: true, Role: session.RoleUser})
	time.Sleep(20 * time.Millisecond)

	var entries []ConversationEntry
	getJSON(t, srv, "/api/conversation", &entries)
	assert.Empty(t, entries)

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodPost, "/api/interrupt", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := NewServer(DefaultConfig(), nil)
	sess := newStubSession()
	sess.SetState(session.Speaking)

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `voicecore_session_state_transitions_total{pipeline="stub",state="speaking"}`)
}

func TestWebsocketRoutesRequireUpgrade(t *testing.T) {
	srv := NewServer(DefaultConfig(), nil)
	for _, path := range []string{"/ws/events", "/ws/levels"} {
		t.Run(path, func(t *testing.T) {
			resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, path, nil))
			require.NoError(t, err)
			assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
		})
	}
}
