package stt

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/voicecore/pkg/audioio"
	"github.com/teslashibe/voicecore/pkg/session"
)

func result(text string, isFinal, speechFinal bool) string {
	b, _ := json.Marshal(map[string]any{
		"type":         "Results",
		"is_final":     isFinal,
		"speech_final": speechFinal,
		"channel": map[string]any{
			"alternatives": []map[string]any{{"transcript": text}},
		},
	})
	return string(b)
}

func TestUtteranceProcess(t *testing.T) {
	var u utterance
	logger := slog.Default()

	var got []session.Transcript
	for _, msg := range []string{
		result("what", false, false),
		result("what time", true, false),
		result("is", false, false),
		`not json`,
		result("is it", true, true),
		result("", true, true),
	} {
		got = append(got, u.process([]byte(msg), logger)...)
	}

	require.Len(t, got, 5)
	assert.Equal(t, session.Transcript{Text: "what", Role: session.RoleUser}, got[0])
	assert.Equal(t, "what time", got[1].Text)
	assert.False(t, got[1].IsFinal)
	assert.Equal(t, "what time is", got[2].Text)
	assert.Equal(t, "what time is it", got[3].Text)
	assert.Equal(t, session.Transcript{Text: "what time is it", IsFinal: true, Role: session.RoleUser}, got[4])
}

func TestUtteranceEndFlushes(t *testing.T) {
	var u utterance
	u.process([]byte(result("hello", true, false)), slog.Default())
	out := u.process([]byte(`{"type":"UtteranceEnd","last_word_end":1.2}`), slog.Default())

	require.Len(t, out, 1)
	assert.True(t, out[0].IsFinal)
	assert.Equal(t, "hello", out[0].Text)
	assert.Nil(t, u.process([]byte(`{"type":"UtteranceEnd"}`), slog.Default()))
}

func TestDeepgramEndpoint(t *testing.T) {
	d, err := NewDeepgram(DeepgramConfig{APIKey: "k"}, audioio.NewMockSource(audioio.CaptureConfig(), nil))
	require.NoError(t, err)

	ep := d.Endpoint()
	assert.True(t, strings.HasPrefix(ep, DefaultDeepgramURL))
	assert.Contains(t, ep, "encoding=linear16")
	assert.Contains(t, ep, "sample_rate=16000")
	assert.Contains(t, ep, "interim_results=true")
	assert.Contains(t, ep, "endpointing=300")
}

func TestDeepgramRequiresKey(t *testing.T) {
	_, err := NewDeepgram(DeepgramConfig{APIKey: "  "}, nil)
	assert.Error(t, err)
}

func TestDeepgramSession(t *testing.T) {
	var audioFrames atomic.Int32
	var auth atomic.Value
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// wait for some audio before answering
		for audioFrames.Load() < 2 {
			mt, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				audioFrames.Add(1)
			}
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(result("turn on", false, false)))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(result("turn on the lights", true, true)))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	cfg := audioio.CaptureConfig()
	cfg.BufferDuration = 5 * time.Millisecond
	src := audioio.NewMockSource(cfg, nil, audioio.WithSineWave(440, 0.5))

	d, err := NewDeepgram(DeepgramConfig{
		APIKey: "dg",
		URL:    "ws" + strings.TrimPrefix(srv.URL, "http"),
	}, src)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	transcripts, levels, err := d.Start(ctx)
	require.NoError(t, err)
	assert.True(t, src.Running())

	var final session.Transcript
	for tr := range transcripts {
		if tr.IsFinal {
			final = tr
			break
		}
	}
	assert.Equal(t, "turn on the lights", final.Text)
	assert.Equal(t, "Token dg", auth.Load())

	select {
	case lvl := <-levels:
		assert.Greater(t, lvl, 0.0)
	case <-time.After(time.Second):
		t.Fatal("no level reported")
	}

	require.NoError(t, d.Stop())
	assert.False(t, src.Running())
	assert.ErrorIs(t, d.Stop(), ErrNotStarted)
}

func TestMockRecognizer(t *testing.T) {
	m := NewMock(Utterance([]string{"hi"}, "hi there"), MockRun{Levels: []float64{0.3}})
	ctx := context.Background()

	tr, lv, err := m.Start(ctx)
	require.NoError(t, err)
	first := <-tr
	second := <-tr
	assert.False(t, first.IsFinal)
	assert.True(t, second.IsFinal)
	require.NoError(t, m.Stop())
	_, open := <-tr
	assert.False(t, open)
	_, open = <-lv
	assert.False(t, open)

	_, lv, err = m.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.3, <-lv)
	require.NoError(t, m.Stop())
	assert.Equal(t, 2, m.Starts())
}
