package listing

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strconv"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/spigell/career-match/internal/query"
)

type pagedAPI struct {
	mu      sync.Mutex
	pages   [][]map[string]any
	queries []url.Values
	auth    []string
	gzip    bool
	status  int
}

func (p *pagedAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.queries = append(p.queries, r.URL.Query())
	p.auth = append(p.auth, r.Header.Get("Authorization"))
	p.mu.Unlock()

	if p.status != 0 {
		w.WriteHeader(p.status)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	body := map[string]any{
		"items":    p.pages[page],
		"pages":    len(p.pages),
		"page":     page,
		"per_page": 100,
	}

	w.Header().Set("Content-Type", "application/json")
	if p.gzip {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		defer gz.Close()
		_ = json.NewEncoder(gz).Encode(body)
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

func item(id string, skills ...string) map[string]any {
	return map[string]any{
		"id":              id,
		"title":           "Listing " + id,
		"company":         "Acme",
		"jobType":         "FULL_TIME",
		"workArrangement": "REMOTE",
		"salaryMin":       40000.0,
		"requiredSkills":  skills,
	}
}

func TestClientListingsPaging(t *testing.T) {
	api := &pagedAPI{
		pages: [][]map[string]any{
			{item("1", "go"), item("2")},
			{item("3", "sql")},
			{item("4")},
		},
		gzip: true,
	}
	srv := httptest.NewServer(api)
	defer srv.Close()

	client := NewClient(ClientConfig{APIURL: srv.URL, RatePerSec: 1000}, "secret", zap.NewNop())

	salary := 30000
	got, err := client.Listings(context.Background(), query.Criteria{
		Role:      "Backend Developer",
		Skills:    []string{"go", "sql"},
		SalaryMin: &salary,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ids := got.IDs(); !reflect.DeepEqual(ids, []string{"1", "2", "3", "4"}) {
		t.Fatalf("expected listings in page order, got %v", ids)
	}

	first := got.FindByID("1")
	if first.JobType != query.FullTime || first.WorkArrangement != query.Remote || first.SalaryMin != 40000 {
		t.Fatalf("unexpected decoded listing: %+v", first)
	}
	if !reflect.DeepEqual(first.RequiredSkills, []string{"go"}) {
		t.Fatalf("unexpected skills: %v", first.RequiredSkills)
	}

	if len(api.queries) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(api.queries))
	}
	q := api.queries[0]
	if q.Get("text") != "Backend Developer" || q.Get("salary_min") != "30000" {
		t.Fatalf("unexpected query params: %v", q)
	}
	if !reflect.DeepEqual(q["skill"], []string{"go", "sql"}) {
		t.Fatalf("unexpected skill params: %v", q["skill"])
	}
	for _, auth := range api.auth {
		if auth != "Bearer secret" {
			t.Fatalf("unexpected authorization header %q", auth)
		}
	}
}

func TestClientMaxPages(t *testing.T) {
	api := &pagedAPI{pages: [][]map[string]any{{item("1")}, {item("2")}, {item("3")}}}
	srv := httptest.NewServer(api)
	defer srv.Close()

	client := NewClient(ClientConfig{APIURL: srv.URL, RatePerSec: 1000, MaxPages: 2}, "", nil)
	got, err := client.Listings(context.Background(), query.Criteria{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Len() != 2 {
		t.Fatalf("expected 2 listings, got %d", got.Len())
	}
	if api.auth[0] != "" {
		t.Fatalf("expected no authorization header without token")
	}
}

func TestClientBadStatus(t *testing.T) {
	for _, code := range []int{http.StatusBadGateway, http.StatusUnauthorized} {
		t.Run(fmt.Sprint(code), func(t *testing.T) {
			srv := httptest.NewServer(&pagedAPI{status: code})
			defer srv.Close()

			client := NewClient(ClientConfig{APIURL: srv.URL}, "", nil)
			_, err := client.Listings(context.Background(), query.Criteria{})

			var statusErr *StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("expected StatusError, got %v", err)
			}
			if statusErr.Code != code {
				t.Fatalf("expected code %d, got %d", code, statusErr.Code)
			}
			if statusErr.Temporary() != (code >= 500) {
				t.Fatalf("unexpected temporary flag for %d", code)
			}
		})
	}
}

func TestClientCancelledContext(t *testing.T) {
	srv := httptest.NewServer(&pagedAPI{pages: [][]map[string]any{{}}})
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(ClientConfig{APIURL: srv.URL}, "", nil)
	if _, err := client.Listings(ctx, query.Criteria{}); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}
