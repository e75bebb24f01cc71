package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultClientTimeout = 30 * time.Second

	// SessionHeader carries the session id on chat responses.
	SessionHeader = "X-Session-ID"

	streamPrefix = "data:"
	// StreamDone terminates a stream.
	StreamDone = "[DONE]"
)

var (
	// ErrRetryable marks failures the user can simply retry: timeouts,
	// unreachable servers and 5xx or 429 responses.
	ErrRetryable = errors.New("chat request failed, retry later")
	// ErrStreamIncomplete is returned when a stream ends without the
	// terminator. The partial reply is discarded.
	ErrStreamIncomplete = errors.New("chat stream ended before completion")
)

// Message is the request body of both chat endpoints.
type Message struct {
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
}

// Answer is the JSON chat response.
type Answer struct {
	SessionID string `json:"sessionId"`
	Reply     string `json:"reply"`
}

// Chunk is the payload of one stream line.
type Chunk struct {
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ClientConfig configures a Client.
type ClientConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Client talks to the chat endpoints. It remembers the session id returned
// by the server and sends it with every later turn.
type Client struct {
	baseURL string
	http    *http.Client
	session string
}

// NewClient creates a Client for the API at cfg.URL.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Session returns the current session id, empty before the first turn.
func (c *Client) Session() string {
	return c.session
}

// SetSession resumes an existing session.
func (c *Client) SetSession(id string) {
	c.session = strings.TrimSpace(id)
}

// Send posts message and returns the whole reply.
func (c *Client) Send(ctx context.Context, message string) (string, error) {
	resp, err := c.post(ctx, "/api/v1/chat", message)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var answer Answer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return "", c.wrap(ctx, fmt.Errorf("decoding chat response: %w", err))
	}
	c.remember(resp, answer.SessionID)

	return answer.Reply, nil
}

// Stream posts message to the streaming endpoint. onChunk, when set, sees the
// reply accumulated so far after every chunk. The full reply is returned only
// once the terminator arrives; cancellation or a broken stream return an
// error and no text.
func (c *Client) Stream(ctx context.Context, message string, onChunk func(partial string)) (string, error) {
	resp, err := c.post(ctx, "/api/v1/chat/stream", message)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	c.remember(resp, "")

	var buf strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, streamPrefix) {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, streamPrefix))
		if payload == StreamDone {
			return buf.String(), nil
		}

		var chunk Chunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return "", fmt.Errorf("decoding stream chunk: %w", err)
		}
		if chunk.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrRetryable, chunk.Error)
		}

		buf.WriteString(chunk.Content)
		if onChunk != nil {
			onChunk(buf.String())
		}
	}

	if err := scanner.Err(); err != nil {
		return "", c.wrap(ctx, fmt.Errorf("reading chat stream: %w", err))
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	return "", ErrStreamIncomplete
}

// Reset drops the server-side history of the current session and forgets
// its id. The next turn starts a new session.
func (c *Client) Reset(ctx context.Context) error {
	if c.session == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/v1/chat/"+url.PathEscape(c.session), nil)
	if err != nil {
		return fmt.Errorf("creating reset request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.wrap(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chat reset failed: %s", resp.Status)
	}

	c.session = ""
	return nil
}

func (c *Client) post(ctx context.Context, path, message string) (*http.Response, error) {
	body, err := json.Marshal(Message{SessionID: c.session, Message: message})
	if err != nil {
		return nil, fmt.Errorf("encoding chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.session != "" {
		req.Header.Set(SessionHeader, c.session)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.wrap(ctx, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("chat request failed: %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %w", ErrRetryable, err)
		}
		return nil, err
	}

	return resp, nil
}

func (c *Client) remember(resp *http.Response, fallback string) {
	if id := strings.TrimSpace(resp.Header.Get(SessionHeader)); id != "" {
		c.session = id
		return
	}
	if fallback != "" {
		c.session = fallback
	}
}

// wrap marks transport failures as retryable. Cancellation by the caller is
// returned as is.
func (c *Client) wrap(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
		return ctxErr
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", ErrRetryable, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %w", ErrRetryable, err)
	}
	return err
}
