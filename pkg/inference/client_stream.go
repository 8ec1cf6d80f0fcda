package inference

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// eventDecoder turns one SSE data payload into a chunk. A nil chunk with a
// nil error means the event carries nothing for the caller.
type eventDecoder func(data string) (*StreamChunk, error)

// sseStream implements Stream over a server-sent events body.
type sseStream struct {
	provider string
	reader   *bufio.Reader
	body     io.ReadCloser
	decode   eventDecoder

	mu     sync.Mutex
	closed bool
	done   bool
}

func newSSEStream(provider string, body io.ReadCloser, decode eventDecoder) *sseStream {
	return &sseStream{
		provider: provider,
		reader:   bufio.NewReader(body),
		body:     body,
		decode:   decode,
	}
}

// Recv returns the next stream chunk.
func (s *sseStream) Recv() (*StreamChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStreamClosed
	}
	if s.done {
		return &StreamChunk{Done: true}, nil
	}

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			if errors.Is(err, io.EOF) {
				// every supported stream ends with an explicit terminator
				err = io.ErrUnexpectedEOF
			}
			return nil, WrapError(s.provider, fmt.Errorf("read stream: %w", err))
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			s.done = true
			return &StreamChunk{Done: true}, nil
		}

		chunk, err := s.decode(data)
		if err != nil {
			return nil, WrapError(s.provider, err)
		}
		if chunk == nil {
			continue
		}
		if chunk.Done {
			s.done = true
		}
		return chunk, nil
	}
}

// Close stops the stream.
func (s *sseStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

// openAIEvent is the chat.completion.chunk format.
type openAIEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
			Role    string `json:"role"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func decodeOpenAIEvent(data string) (*StreamChunk, error) {
	var event openAIEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		// Skip malformed events
		return nil, nil
	}
	if event.Error != nil {
		return nil, fmt.Errorf("stream error: %s", event.Error.Message)
	}
	if len(event.Choices) == 0 {
		return nil, nil
	}

	choice := event.Choices[0]
	if choice.Delta.Content == "" && choice.FinishReason == "" {
		return nil, nil
	}
	return &StreamChunk{
		Delta:        choice.Delta.Content,
		FinishReason: choice.FinishReason,
	}, nil
}
