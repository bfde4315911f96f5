package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPublish(t *testing.T) {
	t.Parallel()

	var gotPath, gotChat, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotChat = r.PostFormValue("chat_id")
		gotText = r.PostFormValue("text")
	}))
	defer srv.Close()

	n := NewNotifier("token123", "42")
	n.apiBase = srv.URL

	if err := n.Publish(context.Background(), "Research digest"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(gotPath, "bottoken123") {
		t.Fatalf("token not in path: %s", gotPath)
	}
	if gotChat != "42" || gotText != "Research digest" {
		t.Fatalf("unexpected form values chat=%q text=%q", gotChat, gotText)
	}
}

func TestPublishRequiresConfiguration(t *testing.T) {
	t.Parallel()

	n := NewNotifier("", "")
	if err := n.Publish(context.Background(), "msg"); err == nil {
		t.Fatal("missing credentials must be an error")
	}
}

func TestPublishPropagatesAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "flood control", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	n := NewNotifier("token", "1")
	n.apiBase = srv.URL

	if err := n.Publish(context.Background(), "msg"); err == nil {
		t.Fatal("non-200 response must be an error")
	}
}
