package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSendPasswordSetupEmail(t *testing.T) {
	var got emailRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key_test" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key_test", "noreply@courseshop.local")

	err := client.SendPasswordSetupEmail(context.Background(), "guest@example.com", "http://app/set-password?token=abc")
	if err != nil {
		t.Fatalf("SendPasswordSetupEmail error: %v", err)
	}

	if got.To != "guest@example.com" || got.From != "noreply@courseshop.local" {
		t.Fatalf("recipient = %+v", got)
	}
	if !strings.Contains(got.HTML, "http://app/set-password?token=abc") {
		t.Fatalf("setup link missing from body: %q", got.HTML)
	}
}

func TestSendPasswordSetupEmail_RetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			http.Error(w, "temporary", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key_test", "noreply@courseshop.local")

	err := client.SendPasswordSetupEmail(context.Background(), "guest@example.com", "http://app/link")
	if err != nil {
		t.Fatalf("SendPasswordSetupEmail error after retry: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}

func TestSendPasswordSetupEmail_FatalOnClientError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "unknown recipient", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key_test", "noreply@courseshop.local")

	err := client.SendPasswordSetupEmail(context.Background(), "bad@example.com", "http://app/link")
	if err == nil {
		t.Fatalf("expected error for rejected email")
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (no retry on 4xx)", attempts)
	}
}
