package inference

import (
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func geminiResponse(text string, finish genai.FinishReason) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      genai.NewContentFromText(text, genai.RoleModel),
			FinishReason: finish,
		}},
	}
}

func seqOf(items ...any) iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, it := range items {
			var ok bool
			switch v := it.(type) {
			case error:
				ok = yield(nil, v)
			case *genai.GenerateContentResponse:
				ok = yield(v, nil)
			}
			if !ok {
				return
			}
		}
	}
}

func TestToGeminiContents(t *testing.T) {
	system, contents := toGeminiContents([]Message{
		NewSystemMessage("persona"),
		NewUserMessage("hi"),
		NewAssistantMessage("hello"),
		NewUserMessage("bye"),
	})

	assert.Equal(t, "persona", system)
	require.Len(t, contents, 3)
	roles := []string{contents[0].Role, contents[1].Role, contents[2].Role}
	assert.Equal(t, []string{"user", "model", "user"}, roles)
	assert.Equal(t, "hello", contents[1].Parts[0].Text)
}

func TestGeminiStream(t *testing.T) {
	cancelled := false
	s := newGeminiStream(seqOf(
		geminiResponse("One. ", ""),
		geminiResponse("Two.", genai.FinishReasonStop),
	), func() { cancelled = true })

	text, err := Collect(s)
	require.NoError(t, err)
	assert.Equal(t, "One. Two.", text)
	assert.True(t, cancelled)
}

func TestGeminiStreamMidStreamError(t *testing.T) {
	s := newGeminiStream(seqOf(
		geminiResponse("part", ""),
		genai.APIError{Code: 429, Message: "quota", Status: "RESOURCE_EXHAUSTED"},
	), nil)

	text, err := Collect(s)
	assert.Equal(t, "part", text)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 429, apiErr.HTTPStatus())
	assert.True(t, apiErr.IsRateLimited())
}
