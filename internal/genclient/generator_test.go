package genclient

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubTransport struct {
	calls  int
	script func(call int, onChunk func(string)) (string, error)
}

func (s *stubTransport) GenerateDocument(ctx context.Context, req Request, catalog Catalog, onChunk func(string)) (string, error) {
	s.calls++
	return s.script(s.calls, onChunk)
}

type recordingNotifier struct {
	successes []string
	errors    []string
}

func (n *recordingNotifier) Success(message string) { n.successes = append(n.successes, message) }
func (n *recordingNotifier) Error(message string)   { n.errors = append(n.errors, message) }

func instantRetries(g *Generator) {
	g.retrier.sleep = func(ctx context.Context, d time.Duration) error { return nil }
}

func TestGenerateAccumulatesChunksInOrder(t *testing.T) {
	transport := &stubTransport{script: func(call int, onChunk func(string)) (string, error) {
		onChunk("Hello")
		onChunk(" world")
		return "Hello world", nil
	}}
	notifier := &recordingNotifier{}
	g := NewGenerator(transport, notifier)

	if err := g.Generate(context.Background(), Request{}, Catalog{}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got := g.GeneratedText(); got != "Hello world" {
		t.Errorf("expected %q, got %q", "Hello world", got)
	}
	if len(notifier.successes) != 1 {
		t.Errorf("expected one success notification, got %v", notifier.successes)
	}
	if len(notifier.errors) != 0 {
		t.Errorf("expected no error notifications, got %v", notifier.errors)
	}
}

func TestGenerateResetsLoadingOnSuccessAndFailure(t *testing.T) {
	transport := &stubTransport{script: func(call int, onChunk func(string)) (string, error) {
		return "", errors.New("invalid request data")
	}}
	g := NewGenerator(transport, &recordingNotifier{})

	_ = g.Generate(context.Background(), Request{}, Catalog{})
	if g.Loading() {
		t.Error("expected loading reset after failure")
	}

	transport.script = func(call int, onChunk func(string)) (string, error) {
		if !g.Loading() {
			t.Error("expected loading true during attempt")
		}
		return "ok", nil
	}
	if err := g.Generate(context.Background(), Request{}, Catalog{}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if g.Loading() {
		t.Error("expected loading reset after success")
	}
}

func TestGenerateClearsBufferBetweenRetries(t *testing.T) {
	transport := &stubTransport{script: func(call int, onChunk func(string)) (string, error) {
		if call == 1 {
			onChunk("stale partial")
			return "", ErrRateLimited
		}
		onChunk("fresh")
		return "fresh", nil
	}}
	g := NewGenerator(transport, &recordingNotifier{})
	instantRetries(g)

	if err := g.Generate(context.Background(), Request{}, Catalog{}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got := g.GeneratedText(); got != "fresh" {
		t.Errorf("expected stale text discarded, got %q", got)
	}
	if transport.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", transport.calls)
	}
}

func TestGenerateReportsExhaustionMessage(t *testing.T) {
	transport := &stubTransport{script: func(call int, onChunk func(string)) (string, error) {
		return "", ErrRateLimited
	}}
	notifier := &recordingNotifier{}
	g := NewGenerator(transport, notifier)
	instantRetries(g)

	err := g.Generate(context.Background(), Request{}, Catalog{})
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if transport.calls != 4 {
		t.Errorf("expected 4 attempts, got %d", transport.calls)
	}
	if len(notifier.errors) != 1 || notifier.errors[0] != "Too many requests. Please try again in a moment." {
		t.Errorf("unexpected error notifications: %v", notifier.errors)
	}
}

func TestGenerateSurfacesFatalErrorVerbatim(t *testing.T) {
	transport := &stubTransport{script: func(call int, onChunk func(string)) (string, error) {
		return "", errors.New("Selected canvas is invalid")
	}}
	notifier := &recordingNotifier{}
	g := NewGenerator(transport, notifier)

	err := g.Generate(context.Background(), Request{}, Catalog{})
	if err == nil {
		t.Fatal("expected error")
	}
	if transport.calls != 1 {
		t.Errorf("expected no retries for validation error, got %d attempts", transport.calls)
	}
	if len(notifier.errors) != 1 || notifier.errors[0] != "Selected canvas is invalid" {
		t.Errorf("unexpected error notifications: %v", notifier.errors)
	}
}
