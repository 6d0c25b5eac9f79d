package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kirillkom/catalog-assistant/internal/core/ports"
	"github.com/kirillkom/catalog-assistant/internal/infrastructure/resilience"
)

func (c *Client) newRequest(ctx context.Context, path string, payload any, operation string) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	req, err := c.newRequest(ctx, path, payload, operation)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.ReadStatusError("ollama", operation, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

// sinkError carries a consumer failure out of the stream unchanged.
type sinkError struct {
	err error
}

func (e *sinkError) Error() string { return e.err.Error() }
func (e *sinkError) Unwrap() error { return e.err }

// stream reads the newline-delimited JSON body of a streaming generate call.
func (c *Client) stream(ctx context.Context, payload generateRequest, sink ports.TokenSink) (string, error) {
	req, err := c.newRequest(ctx, "/api/generate", payload, "generate")
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama generate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", resilience.ReadStatusError("ollama", "generate", resp)
	}

	var b strings.Builder
	emitted := false
	fail := func(err error) (string, error) {
		if emitted {
			return b.String(), resilience.NoRetry(err)
		}
		return "", err
	}

	dec := json.NewDecoder(resp.Body)
	for {
		var chunk generateChunk
		if err := dec.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				return fail(fmt.Errorf("ollama generate stream ended before done"))
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fail(ctxErr)
			}
			return fail(fmt.Errorf("decode generate stream: %w", err))
		}
		if chunk.Error != "" {
			return fail(fmt.Errorf("ollama generate: %s", chunk.Error))
		}
		if chunk.Response != "" {
			b.WriteString(chunk.Response)
			if err := sink(chunk.Response); err != nil {
				emitted = true
				return fail(&sinkError{err: err})
			}
			emitted = true
		}
		if chunk.Done {
			return b.String(), nil
		}
	}
}
