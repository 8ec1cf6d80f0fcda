package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicStreamReply(t *testing.T) {
	var got anthropicRequest
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)

		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`{"type":"message_start","message":{"id":"m1"}}`,
			`{"type":"content_block_start","index":0}`,
			`{"type":"content_block_delta","delta":{"type":"text_delta","text":"Sure. "}}`,
			`{"type":"ping"}`,
			`{"type":"content_block_delta","delta":{"type":"text_delta","text":"Done!"}}`,
			`{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`,
			`{"type":"message_stop"}`,
		}
		for _, e := range events {
			fmt.Fprintf(w, "event: x\ndata: %s\n\n", e)
		}
	}))
	defer srv.Close()

	a, err := NewAnthropic(WithBaseURL(srv.URL), WithAPIKey("ak"), WithModel("claude-test"))
	require.NoError(t, err)

	stream, err := a.StreamReply(context.Background(), []Message{
		NewSystemMessage("persona"),
		NewUserMessage("hi"),
	})
	require.NoError(t, err)

	text, err := Collect(stream)
	require.NoError(t, err)
	assert.Equal(t, "Sure. Done!", text)

	assert.Equal(t, "ak", headers.Get("x-api-key"))
	assert.Equal(t, AnthropicVersion, headers.Get("anthropic-version"))
	assert.Equal(t, "persona", got.System)
	assert.Equal(t, []anthropicMessage{{Role: "user", Content: "hi"}}, got.Messages)
}

func TestAnthropicRequiresKey(t *testing.T) {
	_, err := NewAnthropic()
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestToAnthropicRequest(t *testing.T) {
	req := toAnthropicRequest("m", 0, []Message{
		NewSystemMessage("a"),
		NewUserMessage("q"),
		NewSystemMessage("b"),
		NewAssistantMessage("r"),
	})

	assert.Equal(t, "a\n\nb", req.System)
	assert.Equal(t, 1024, req.MaxTokens)
	assert.True(t, req.Stream)
	assert.Equal(t, []anthropicMessage{
		{Role: "user", Content: "q"},
		{Role: "assistant", Content: "r"},
	}, req.Messages)
}

func TestDecodeAnthropicEvent(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    *StreamChunk
		wantErr bool
		status  int
	}{
		{"text", `{"type":"content_block_delta","delta":{"type":"text_delta","text":"x"}}`, &StreamChunk{Delta: "x"}, false, 0},
		{"json delta ignored", `{"type":"content_block_delta","delta":{"type":"input_json_delta"}}`, nil, false, 0},
		{"stop reason", `{"type":"message_delta","delta":{"stop_reason":"max_tokens"}}`, &StreamChunk{FinishReason: "max_tokens"}, false, 0},
		{"stop", `{"type":"message_stop"}`, &StreamChunk{Done: true}, false, 0},
		{"overloaded", `{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`, nil, true, 529},
		{"generic error", `{"type":"error","error":{"type":"api_error","message":"boom"}}`, nil, true, 0},
		{"malformed", `{`, nil, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeAnthropicEvent(tt.data)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}
			require.Error(t, err)
			var apiErr *APIError
			if tt.status != 0 {
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, tt.status, apiErr.StatusCode)
			} else {
				assert.False(t, errors.As(err, &apiErr))
			}
		})
	}
}
