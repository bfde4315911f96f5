package ml

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"PaperTracker/internal/domain"
)

func TestRank(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rank" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}

		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		if payload["title"] != "Agent tool use" {
			t.Errorf("unexpected title %v", payload["title"])
		}

		json.NewEncoder(w).Encode(map[string]float64{"score": 0.87})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret")
	score, err := client.Rank(context.Background(), domain.Paper{
		ExternalID: "2402.11111",
		Title:      "Agent tool use",
		Abstract:   "We study agents.",
	})
	if err != nil {
		t.Fatal(err)
	}
	if score != 0.87 {
		t.Fatalf("unexpected score %v", score)
	}
}

func TestRankUpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	if _, err := client.Rank(context.Background(), domain.Paper{ExternalID: "x"}); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}
