package chat

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/career-match/internal/listing"
	"github.com/spigell/career-match/internal/query"
	"github.com/spigell/career-match/internal/search"
)

type echoAssistant struct {
	requests []Request
	err      error
	chunks   []string
}

func (e *echoAssistant) Reply(_ context.Context, req Request) (string, error) {
	e.requests = append(e.requests, req)
	if e.err != nil {
		return "", e.err
	}
	return "echo: " + req.Message, nil
}

func (e *echoAssistant) Stream(_ context.Context, req Request, emit func(string) error) error {
	e.requests = append(e.requests, req)
	for _, c := range e.chunks {
		if err := emit(c); err != nil {
			return err
		}
	}
	return e.err
}

type failingStore struct {
	*MemoryStore
}

func (f *failingStore) Append(context.Context, string, ...Turn) error {
	return errors.New("store is down")
}

func TestServiceReplyKeepsSession(t *testing.T) {
	assistant := &echoAssistant{}
	store := NewMemoryStore(0)
	svc := NewService(assistant, store, nil)
	ctx := context.Background()

	session, reply, err := svc.Reply(ctx, "", " hello ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ValidSessionID(session) || reply != "echo: hello" {
		t.Fatalf("unexpected reply %q for session %q", reply, session)
	}

	again, _, err := svc.Reply(ctx, session, "second")
	if err != nil || again != session {
		t.Fatalf("expected session to be reused, got %q, %v", again, err)
	}

	if got := texts(assistant.requests[1].History); !reflect.DeepEqual(got, []string{"hello", "echo: hello"}) {
		t.Fatalf("expected history of the first turn, got %v", got)
	}

	history, _ := store.History(ctx, session)
	if len(history) != 4 || history[3].Role != RoleAssistant {
		t.Fatalf("unexpected stored history: %+v", history)
	}
}

func TestServiceEmptyMessage(t *testing.T) {
	svc := NewService(&echoAssistant{}, nil, nil)

	session, _, err := svc.Reply(context.Background(), "", "   ")
	if !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if session == "" {
		t.Fatalf("expected a session id even on error")
	}
}

func TestServiceRejectsInvalidSession(t *testing.T) {
	assistant := &echoAssistant{}
	store := NewMemoryStore(0)
	svc := NewService(assistant, store, nil)
	ctx := context.Background()

	session, _, err := svc.Reply(ctx, strings.Repeat("x", 1000), "hello")
	if !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
	if session != "" {
		t.Fatalf("expected no session to be echoed, got %q", session)
	}
	if _, err := svc.Stream(ctx, "not-a-uuid", "hello", func(string) error { return nil }); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession from stream, got %v", err)
	}
	if err := svc.Reset(ctx, "not-a-uuid"); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession from reset, got %v", err)
	}
	if len(assistant.requests) != 0 || store.Len() != 0 {
		t.Fatalf("expected nothing to reach the assistant or the store")
	}

	id := NewSessionID()
	session, _, err = svc.Reply(ctx, "urn:uuid:"+strings.ToUpper(id), "hello")
	if err != nil || session != id {
		t.Fatalf("expected canonical session %q, got %q, %v", id, session, err)
	}
}

func TestServiceStream(t *testing.T) {
	assistant := &echoAssistant{chunks: []string{"one ", "two"}}
	store := NewMemoryStore(0)
	svc := NewService(assistant, store, nil)
	ctx := context.Background()

	var got []string
	session, err := svc.Stream(ctx, "", "hi", func(c string) error {
		got = append(got, c)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"one ", "two"}) {
		t.Fatalf("unexpected chunks: %v", got)
	}

	history, _ := store.History(ctx, session)
	if !reflect.DeepEqual(texts(history), []string{"hi", "one two"}) {
		t.Fatalf("unexpected stored history: %v", texts(history))
	}
}

func TestServiceStreamFailureIsNotStored(t *testing.T) {
	boom := errors.New("boom")
	store := NewMemoryStore(0)
	svc := NewService(&echoAssistant{chunks: []string{"partial"}, err: boom}, store, nil)

	session, err := svc.Stream(context.Background(), "", "hi", func(string) error { return nil })
	if !errors.Is(err, boom) {
		t.Fatalf("expected assistant error, got %v", err)
	}
	if history, _ := store.History(context.Background(), session); len(history) != 0 {
		t.Fatalf("expected failed turn not to be stored, got %v", texts(history))
	}
}

func TestServiceStoreFailureIsLogged(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)
	store := &failingStore{MemoryStore: NewMemoryStore(0)}
	svc := NewService(&echoAssistant{}, store, zap.New(core))

	_, reply, err := svc.Reply(context.Background(), "", "hello")
	if err != nil || reply == "" {
		t.Fatalf("expected reply despite store failure, got %q, %v", reply, err)
	}
	if observed.FilterMessage("failed to save chat turn").Len() != 1 {
		t.Fatalf("expected store failure to be logged")
	}
}

type fakeSearcher struct {
	resp *search.Response
	err  error
	reqs []search.Request
}

func (f *fakeSearcher) Search(_ context.Context, req search.Request) (*search.Response, error) {
	f.reqs = append(f.reqs, req)
	return f.resp, f.err
}

type staticSource []*listing.Listing

func (s staticSource) Listings(context.Context, query.Criteria) (*listing.Listings, error) {
	return &listing.Listings{Items: slices.Clone(s)}, nil
}

func TestSearchAssistantReply(t *testing.T) {
	src := staticSource{
		{ID: "1", Title: "Frontend Developer", Company: "Acme", Location: "Milan", RequiredSkills: []string{"React", "TypeScript"}},
		{ID: "2", Title: "Frontend Engineer", Company: "Globex", RequiredSkills: []string{"React"}},
		{ID: "3", Title: "Data Analyst", Company: "Initech", RequiredSkills: []string{"SQL"}},
	}
	assistant := NewSearchAssistant(search.New(src, nil, nil), 1)

	reply, err := assistant.Reply(context.Background(), Request{Message: "frontend react"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expect := strings.Join([]string{
		"Looking for Frontend Developer roles, skills: react.",
		"Found 2 listings, 1 strong matches.",
		"1. Frontend Engineer at Globex, match 100%",
	}, "\n")
	if reply != expect {
		t.Fatalf("unexpected reply:\n%s\nexpected:\n%s", reply, expect)
	}

	again, _ := assistant.Reply(context.Background(), Request{Message: "frontend react"})
	if again != reply {
		t.Fatalf("expected identical replies for identical messages")
	}
}

func TestSearchAssistantStream(t *testing.T) {
	searcher := &fakeSearcher{resp: &search.Response{Description: "No specific criteria, showing all listings"}}
	assistant := NewSearchAssistant(searcher, 0)

	var chunks []string
	err := assistant.Stream(context.Background(), Request{Message: "??"}, func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 || !strings.HasSuffix(chunks[0], "\n") || strings.HasSuffix(chunks[1], "\n") {
		t.Fatalf("expected one chunk per line, got %q", chunks)
	}
	if searcher.reqs[0].Query != "??" {
		t.Fatalf("expected message to be used as query, got %+v", searcher.reqs[0])
	}
}

func TestSearchAssistantUpstreamError(t *testing.T) {
	assistant := NewSearchAssistant(&fakeSearcher{err: search.ErrUpstream}, 0)

	_, err := assistant.Reply(context.Background(), Request{Message: "react"})
	if !errors.Is(err, search.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}
