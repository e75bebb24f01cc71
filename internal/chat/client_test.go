package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"
)

type streamServer struct {
	lines    []string
	status   int
	delay    time.Duration
	sessions []string
	cancel   context.CancelFunc
}

func (s *streamServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var msg Message
	_ = json.NewDecoder(r.Body).Decode(&msg)
	s.sessions = append(s.sessions, msg.SessionID)

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-r.Context().Done():
			return
		}
	}
	if s.status != 0 {
		w.WriteHeader(s.status)
		return
	}

	w.Header().Set(SessionHeader, "session-1")
	if r.URL.Path == "/api/v1/chat" {
		_ = json.NewEncoder(w).Encode(Answer{SessionID: "session-1", Reply: "hello " + msg.Message})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	flusher := w.(http.Flusher)
	for i, line := range s.lines {
		fmt.Fprintf(w, "%s\n\n", line)
		flusher.Flush()
		if s.cancel != nil && i == 0 {
			s.cancel()
			<-r.Context().Done()
			return
		}
	}
}

func chunk(content string) string {
	data, _ := json.Marshal(Chunk{Content: content})
	return "data: " + string(data)
}

func TestClientSend(t *testing.T) {
	srv := &streamServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := NewClient(ClientConfig{URL: ts.URL + "/"})
	reply, err := client.Send(context.Background(), "there")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "hello there" || client.Session() != "session-1" {
		t.Fatalf("unexpected reply %q for session %q", reply, client.Session())
	}

	if _, err := client.Send(context.Background(), "again"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(srv.sessions, []string{"", "session-1"}) {
		t.Fatalf("expected session to be sent on the second turn, got %v", srv.sessions)
	}
}

func TestClientStream(t *testing.T) {
	ts := httptest.NewServer(&streamServer{lines: []string{
		": keep-alive",
		chunk("Looking for "),
		chunk("Frontend roles\n"),
		chunk("1. Acme"),
		"data: [DONE]",
		chunk("ignored after done"),
	}})
	defer ts.Close()

	client := NewClient(ClientConfig{URL: ts.URL})

	var partials []string
	reply, err := client.Stream(context.Background(), "frontend", func(p string) { partials = append(partials, p) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "Looking for Frontend roles\n1. Acme" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if len(partials) != 3 || partials[0] != "Looking for " {
		t.Fatalf("unexpected partial buffers: %q", partials)
	}
	if client.Session() != "session-1" {
		t.Fatalf("expected session from header, got %q", client.Session())
	}
}

func TestClientStreamWithoutTerminator(t *testing.T) {
	ts := httptest.NewServer(&streamServer{lines: []string{chunk("partial")}})
	defer ts.Close()

	reply, err := NewClient(ClientConfig{URL: ts.URL}).Stream(context.Background(), "x", nil)
	if !errors.Is(err, ErrStreamIncomplete) || reply != "" {
		t.Fatalf("expected ErrStreamIncomplete and no text, got %q, %v", reply, err)
	}
}

func TestClientStreamErrorChunk(t *testing.T) {
	data, _ := json.Marshal(Chunk{Error: "listing source unavailable"})
	ts := httptest.NewServer(&streamServer{lines: []string{chunk("partial"), "data: " + string(data)}})
	defer ts.Close()

	reply, err := NewClient(ClientConfig{URL: ts.URL}).Stream(context.Background(), "x", nil)
	if !errors.Is(err, ErrRetryable) || reply != "" {
		t.Fatalf("expected retryable error and no text, got %q, %v", reply, err)
	}
}

func TestClientStreamCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ts := httptest.NewServer(&streamServer{lines: []string{chunk("partial"), "data: [DONE]"}, cancel: cancel})
	defer ts.Close()

	var partials []string
	reply, err := NewClient(ClientConfig{URL: ts.URL}).Stream(ctx, "x", func(p string) { partials = append(partials, p) })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if reply != "" {
		t.Fatalf("expected partial reply to be discarded, got %q", reply)
	}
}

func TestClientTimeout(t *testing.T) {
	ts := httptest.NewServer(&streamServer{delay: time.Second})
	defer ts.Close()

	client := NewClient(ClientConfig{URL: ts.URL, Timeout: 20 * time.Millisecond})
	if _, err := client.Send(context.Background(), "x"); !errors.Is(err, ErrRetryable) {
		t.Fatalf("expected ErrRetryable on timeout, got %v", err)
	}
}

func TestClientStatusErrors(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{status: http.StatusBadGateway, retryable: true},
		{status: http.StatusTooManyRequests, retryable: true},
		{status: http.StatusBadRequest, retryable: false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			ts := httptest.NewServer(&streamServer{status: tt.status})
			defer ts.Close()

			_, err := NewClient(ClientConfig{URL: ts.URL}).Stream(context.Background(), "x", nil)
			if err == nil {
				t.Fatalf("expected error for status %d", tt.status)
			}
			if errors.Is(err, ErrRetryable) != tt.retryable {
				t.Fatalf("unexpected retryable flag for %d: %v", tt.status, err)
			}
		})
	}
}

func TestClientReset(t *testing.T) {
	var method, path string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	client := NewClient(ClientConfig{URL: ts.URL})
	if err := client.Reset(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if method != "" {
		t.Fatalf("expected no request without a session")
	}

	client.SetSession("session-1")
	if err := client.Reset(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if method != http.MethodDelete || path != "/api/v1/chat/session-1" {
		t.Fatalf("unexpected request %s %s", method, path)
	}
	if client.Session() != "" {
		t.Fatalf("expected session to be forgotten, got %q", client.Session())
	}
}
