// Package openai implements llm.Client against the OpenAI chat/completions
// streaming API using a plain net/http client.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docforge/internal/llm"

	"github.com/google/uuid"
)

// ChatStream opens a streaming chat completion. The returned stream yields
// content deltas in generation order and ends with io.EOF once the server
// sends its terminator. A failure after the stream opened surfaces from
// Recv and invalidates everything received so far.
func (c *Client) ChatStream(ctx context.Context, messages []llm.Message, temperature float64) (llm.Stream, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("llm.stream.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", temperature,
		"messages", len(messages),
	)

	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": temperature,
		"stream":      true,
		"messages":    messages,
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("llm.stream.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("openai http error: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(resp.Body)
		resp.Body.Close()
		c.logger.Error("llm.stream.bad_status",
			"req_id", rid, "status", resp.StatusCode,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("openai status %d: %s", resp.StatusCode, buf.String())
	}

	return &chatStream{
		body:    resp.Body,
		scanner: bufio.NewScanner(resp.Body),
	}, nil
}

// chatStream parses the server-sent event lines of a streaming completion.
type chatStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

// streamChunk is the subset of the SSE payload we care about.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func (s *chatStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			s.done = true
			return "", io.EOF
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", fmt.Errorf("decode stream chunk: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
		// Empty delta with a finish reason means the stream is winding down;
		// keep reading until [DONE].
	}

	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("stream read error: %w", err)
	}
	// Connection closed without the [DONE] terminator: partial output.
	return "", fmt.Errorf("stream ended unexpectedly: %w", io.ErrUnexpectedEOF)
}

func (s *chatStream) Close() error {
	return s.body.Close()
}
