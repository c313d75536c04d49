package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"a4achat/internal/logging"
)

// ChatStream runs a streaming completion and returns a channel of
// content tokens plus an error channel. The token channel closes when
// the stream ends for any reason; the error channel is buffered and is
// closed before the token channel, so after draining the tokens a
// single receive on the error channel yields the failure, if any,
// without blocking.
//
// Cancelling ctx aborts the request, closes the response body and
// surfaces ctx.Err() on the error channel.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest) (<-chan string, <-chan error) {
	tokens := make(chan string, 100)
	errs := make(chan error, 1)

	go func() {
		defer close(tokens)
		defer close(errs)

		req.Stream = true
		payload, err := json.Marshal(req)
		if err != nil {
			errs <- fmt.Errorf("encode chat request: %w", err)
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
		if err != nil {
			errs <- fmt.Errorf("build chat request: %w", err)
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			errs <- fmt.Errorf("gateway request: %w", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
			errs <- newRequestError(resp.StatusCode, body)
			return
		}

		scanDone := make(chan struct{})
		scanErr := make(chan error, 1)
		go func() {
			defer close(scanDone)
			scanErr <- scanFrames(ctx, resp.Body, tokens)
		}()

		select {
		case <-ctx.Done():
			// Unblock the scanner, then wait for it so we never close
			// the token channel while it might still send.
			resp.Body.Close()
			<-scanDone
			errs <- ctx.Err()
		case <-scanDone:
			if err := <-scanErr; err != nil {
				errs <- err
			}
		}
	}()

	return tokens, errs
}

// scanFrames reads server-sent events from r and forwards completion
// tokens until the terminal [DONE] frame. Lines without the data prefix
// and frames that fail to parse are skipped; an embedded error frame
// stops the scan and is returned as a *StreamError.
func scanFrames(ctx context.Context, r io.Reader, tokens chan<- string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return nil
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			logging.StreamDebug("skipping malformed frame: %v", err)
			continue
		}
		if chunk.Error != nil {
			return &StreamError{Type: chunk.Error.Type, Message: chunk.Error.Message}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		select {
		case tokens <- delta:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	// Stream ended without a [DONE] sentinel; treat a clean EOF as done.
	return nil
}
