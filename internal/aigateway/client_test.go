package aigateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func sseServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", auth)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, frame := range frames {
			fmt.Fprint(w, frame)
		}
	}))
}

func TestStreamCompletionCollectsDeltas(t *testing.T) {
	server := sseServer(t, []string{
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\" world\"}}]}\n\n",
		"data: [DONE]\n\n",
	})
	defer server.Close()

	client := NewClient(server.URL, "test-key", "test-model")
	var deltas []string
	content, err := client.StreamCompletion(context.Background(), []Message{{Role: "user", Content: "hi"}}, func(d string) {
		deltas = append(deltas, d)
	})
	if err != nil {
		t.Fatalf("StreamCompletion failed: %v", err)
	}
	if content != "Hello world" {
		t.Errorf("expected %q, got %q", "Hello world", content)
	}
	if len(deltas) != 2 || deltas[0] != "Hello" || deltas[1] != " world" {
		t.Errorf("unexpected deltas: %v", deltas)
	}
}

func TestStreamCompletionSkipsMalformedFrames(t *testing.T) {
	server := sseServer(t, []string{
		"data: {\"choices\":[{\"delta\":{\"content\":\"A\"}}]}\n\n",
		"data: {not json}\n\n",
		": keep-alive comment\n\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"B\"}}]}\n\n",
		"data: [DONE]\n\n",
	})
	defer server.Close()

	client := NewClient(server.URL, "test-key", "test-model")
	content, err := client.StreamCompletion(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("StreamCompletion failed: %v", err)
	}
	if content != "AB" {
		t.Errorf("expected %q, got %q", "AB", content)
	}
}

func TestStreamCompletionEmptyStream(t *testing.T) {
	server := sseServer(t, []string{"data: [DONE]\n\n"})
	defer server.Close()

	client := NewClient(server.URL, "test-key", "test-model")
	content, err := client.StreamCompletion(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("StreamCompletion failed: %v", err)
	}
	if content != "" {
		t.Errorf("expected empty content, got %q", content)
	}
}

func TestCompletionReturnsContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"full text"}}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", "test-model")
	content, err := client.Completion(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Completion failed: %v", err)
	}
	if content != "full text" {
		t.Errorf("expected %q, got %q", "full text", content)
	}
}

func TestCompletionEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", "test-model")
	_, err := client.Completion(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusPaymentRequired, ErrPaymentRequired},
		{http.StatusInternalServerError, ErrUnavailable},
		{http.StatusBadGateway, ErrUnavailable},
	}

	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			client := NewClient(server.URL, "test-key", "test-model")
			_, err := client.StreamCompletion(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)
			if !errors.Is(err, tc.want) {
				t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, err)
			}
		})
	}
}

func TestRequestPayload(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", "my-model")
	if _, err := client.Completion(context.Background(), []Message{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "hi"},
	}); err != nil {
		t.Fatalf("Completion failed: %v", err)
	}

	for _, want := range []string{`"model":"my-model"`, `"temperature":0.7`, `"max_tokens":4000`, `"role":"system"`} {
		if !strings.Contains(gotBody, want) {
			t.Errorf("request body missing %s: %s", want, gotBody)
		}
	}
	if strings.Contains(gotBody, `"stream":true`) {
		t.Errorf("non-streaming request should not set stream: %s", gotBody)
	}
}

func TestMissingAPIKeyReturnsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("gateway must not be contacted without a key")
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "test-model")
	messages := []Message{{Role: "user", Content: "hello"}}

	if _, err := client.Completion(context.Background(), messages); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from Completion, got %v", err)
	}
	_, err := client.StreamCompletion(context.Background(), messages, func(string) {})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from StreamCompletion, got %v", err)
	}
}
