package genclient

import (
	"context"
	"strings"
	"sync"
)

// transport is the slice of Client the generator needs; tests provide stubs.
type transport interface {
	GenerateDocument(ctx context.Context, req Request, catalog Catalog, onChunk func(string)) (string, error)
}

// Notifier receives the terminal outcome of a generation run.
type Notifier interface {
	Success(message string)
	Error(message string)
}

// Generator drives a generation run end to end: it owns the loading flag
// and the accumulated text, clears the buffer before every attempt so a
// retry never shows stale output, and reports exactly one terminal
// notification per run.
type Generator struct {
	client   transport
	retrier  *Retrier
	notifier Notifier

	mu      sync.Mutex
	loading bool
	text    strings.Builder
}

// NewGenerator wires a generator over the given transport.
func NewGenerator(client transport, notifier Notifier) *Generator {
	return &Generator{
		client:   client,
		retrier:  NewRetrier(),
		notifier: notifier,
	}
}

// Loading reports whether a generation run is in flight.
func (g *Generator) Loading() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loading
}

// GeneratedText returns the text accumulated so far, in arrival order.
func (g *Generator) GeneratedText() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.text.String()
}

func (g *Generator) setLoading(v bool) {
	g.mu.Lock()
	g.loading = v
	g.mu.Unlock()
}

func (g *Generator) resetText() {
	g.mu.Lock()
	g.text.Reset()
	g.mu.Unlock()
}

func (g *Generator) appendText(delta string) {
	g.mu.Lock()
	g.text.WriteString(delta)
	g.mu.Unlock()
}

// Generate runs one generation to a terminal state. The loading flag is
// reset on every exit path.
func (g *Generator) Generate(ctx context.Context, req Request, catalog Catalog) error {
	g.setLoading(true)
	g.resetText()
	defer g.setLoading(false)

	err := g.retrier.Do(ctx, func(ctx context.Context) error {
		// Discard anything a prior failed attempt streamed.
		g.resetText()
		_, err := g.client.GenerateDocument(ctx, req, catalog, g.appendText)
		return err
	})

	if err != nil {
		if g.notifier != nil {
			g.notifier.Error(err.Error())
		}
		return err
	}

	if g.notifier != nil {
		g.notifier.Success("Document generated successfully")
	}
	return nil
}
