package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// postJSON sends body to url and retries rate limits and server errors.
// The returned response always has a 200 status.
func postJSON(ctx context.Context, cfg *Config, logger *slog.Logger, provider, url string, body []byte,
	setHeaders func(*http.Request), extract errorExtractor) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cfg.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, WrapError(provider, fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		setHeaders(req)

		resp, err := cfg.HTTP.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = WrapError(provider, err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		apiErr := decodeAPIError(provider, resp, extract)
		resp.Body.Close()
		lastErr = apiErr
		if !apiErr.IsRetryable() {
			return nil, apiErr
		}
		logger.Warn("retrying request",
			"attempt", attempt+1,
			"status", resp.StatusCode,
		)
	}

	return nil, lastErr
}

// readAudio drains a successful synthesis response.
func readAudio(provider string, resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(provider, fmt.Errorf("read response: %w", err))
	}
	if len(audio) == 0 {
		return nil, WrapError(provider, ErrEmptyAudio)
	}
	return audio, nil
}

// errorExtractor pulls the message and code out of a provider's JSON error
// body. It returns an empty message when the body has another shape.
type errorExtractor func(body []byte) (message, code string)

func decodeAPIError(provider string, resp *http.Response, extract errorExtractor) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Provider: provider, StatusCode: resp.StatusCode, Message: string(body)}
	if extract != nil {
		if msg, code := extract(body); msg != "" {
			apiErr.Message, apiErr.Code = msg, code
		}
	}
	return apiErr
}

// openAIErrorBody matches {"error":{"message","code"}}, which Google also uses.
func openAIErrorBody(body []byte) (string, string) {
	var v struct {
		Error struct {
			Message string `json:"message"`
			Code    any    `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &v) != nil {
		return "", ""
	}
	code := ""
	if v.Error.Code != nil {
		code = fmt.Sprint(v.Error.Code)
	}
	return v.Error.Message, code
}
