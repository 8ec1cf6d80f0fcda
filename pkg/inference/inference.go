// Package inference streams conversational replies from language-model backends.
//
// Every backend satisfies Model: given the append-only history it returns a
// Stream of text fragments. The OpenAI-compatible Client serves the hosted,
// managed and local endpoints; Gemini and Anthropic speak their own wire
// formats.
//
//	model, _ := inference.NewClient(
//	    inference.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    inference.WithModel("gpt-4o-mini"),
//	)
//	stream, _ := model.StreamReply(ctx, []inference.Message{
//	    inference.NewUserMessage("Hello!"),
//	})
//	defer stream.Close()
//	for {
//	    chunk, err := stream.Recv()
//	    if err != nil || chunk.Done {
//	        break
//	    }
//	    fmt.Print(chunk.Delta)
//	}
package inference

import "context"

// Model is a streaming reply backend.
type Model interface {
	// StreamReply starts a reply to history. The stream may fail mid-way.
	StreamReply(ctx context.Context, history []Message) (Stream, error)

	// ValidateCredential reports whether the configured credential is accepted.
	ValidateCredential(ctx context.Context) bool
}

// Stream is a streaming response for real-time output.
type Stream interface {
	// Recv returns the next chunk. A chunk with Done set ends the stream.
	Recv() (*StreamChunk, error)

	// Close stops the stream and releases resources.
	Close() error
}

// StreamChunk is a piece of a streaming response.
type StreamChunk struct {
	// Delta is the incremental text content.
	Delta string

	// FinishReason indicates why generation stopped (stop, length, end_turn).
	FinishReason string

	// Done is true when the stream is complete.
	Done bool
}

// Collect drains s and returns the concatenated text.
func Collect(s Stream) (string, error) {
	defer s.Close()
	var out []byte
	for {
		chunk, err := s.Recv()
		if err != nil {
			return string(out), err
		}
		out = append(out, chunk.Delta...)
		if chunk.Done {
			return string(out), nil
		}
	}
}
