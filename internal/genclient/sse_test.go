package genclient

import (
	"io"
	"strings"
	"testing"
)

// chunkReader delivers at most size bytes per Read call so tests can force
// frame boundaries to land mid-line.
type chunkReader struct {
	data []byte
	size int
	pos  int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if c.pos >= len(c.data) {
		return 0, io.EOF
	}
	n := c.size
	if n > len(p) {
		n = len(p)
	}
	if c.pos+n > len(c.data) {
		n = len(c.data) - c.pos
	}
	copy(p, c.data[c.pos:c.pos+n])
	c.pos += n
	return n, nil
}

func collectDeltas(t *testing.T, r io.Reader) []string {
	t.Helper()
	decoder := NewStreamDecoder(r)
	var deltas []string
	for {
		delta, err := decoder.Next()
		if err == io.EOF {
			return deltas
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		deltas = append(deltas, delta)
	}
}

const sampleStream = "data: {\"content\":\"A\"}\n\ndata: {\"content\":\"B\"}\n\ndata: [DONE]\n\n"

func TestStreamDecoderEmitsDeltasInOrder(t *testing.T) {
	deltas := collectDeltas(t, strings.NewReader(sampleStream))
	if len(deltas) != 2 || deltas[0] != "A" || deltas[1] != "B" {
		t.Fatalf("expected [A B], got %v", deltas)
	}
}

func TestStreamDecoderHandlesArbitraryChunkBoundaries(t *testing.T) {
	for size := 1; size <= 7; size++ {
		deltas := collectDeltas(t, &chunkReader{data: []byte(sampleStream), size: size})
		if len(deltas) != 2 || deltas[0] != "A" || deltas[1] != "B" {
			t.Fatalf("chunk size %d: expected [A B], got %v", size, deltas)
		}
	}
}

func TestStreamDecoderStopsAtDone(t *testing.T) {
	stream := sampleStream + "data: {\"content\":\"after\"}\n\n"
	deltas := collectDeltas(t, strings.NewReader(stream))
	if len(deltas) != 2 {
		t.Fatalf("expected no deltas after terminal frame, got %v", deltas)
	}
}

func TestStreamDecoderSkipsMalformedFrames(t *testing.T) {
	stream := "data: {\"content\":\"A\"}\n\ndata: {broken\n\ndata: {\"content\":\"B\"}\n\ndata: [DONE]\n\n"
	deltas := collectDeltas(t, strings.NewReader(stream))
	if len(deltas) != 2 || deltas[0] != "A" || deltas[1] != "B" {
		t.Fatalf("expected malformed frame skipped, got %v", deltas)
	}
}

func TestStreamDecoderIgnoresNonDataLines(t *testing.T) {
	stream := ": comment\nevent: message\ndata: {\"content\":\"A\"}\n\ndata: [DONE]\n\n"
	deltas := collectDeltas(t, strings.NewReader(stream))
	if len(deltas) != 1 || deltas[0] != "A" {
		t.Fatalf("expected [A], got %v", deltas)
	}
}

func TestStreamDecoderHandlesCRLF(t *testing.T) {
	stream := "data: {\"content\":\"A\"}\r\n\r\ndata: [DONE]\r\n\r\n"
	deltas := collectDeltas(t, strings.NewReader(stream))
	if len(deltas) != 1 || deltas[0] != "A" {
		t.Fatalf("expected [A], got %v", deltas)
	}
}

func TestStreamDecoderEOFWithoutSentinel(t *testing.T) {
	stream := "data: {\"content\":\"A\"}\n\n"
	deltas := collectDeltas(t, strings.NewReader(stream))
	if len(deltas) != 1 || deltas[0] != "A" {
		t.Fatalf("expected [A], got %v", deltas)
	}
}

func TestStreamDecoderStaysFinished(t *testing.T) {
	decoder := NewStreamDecoder(strings.NewReader(sampleStream))
	for {
		if _, err := decoder.Next(); err == io.EOF {
			break
		}
	}
	if _, err := decoder.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF from finished decoder, got %v", err)
	}
}

func TestStreamDecoderSurfacesErrorFrame(t *testing.T) {
	stream := "data: {\"content\":\"partial \"}\n\ndata: {\"error\":\"AI service temporarily unavailable\"}\n\n"
	decoder := NewStreamDecoder(strings.NewReader(stream))

	delta, err := decoder.Next()
	if err != nil {
		t.Fatalf("first Next failed: %v", err)
	}
	if delta != "partial " {
		t.Fatalf("expected delta before the failure, got %q", delta)
	}

	_, err = decoder.Next()
	if err == nil || err == io.EOF {
		t.Fatalf("expected terminal error, got %v", err)
	}
	if err.Error() != "AI service temporarily unavailable" {
		t.Fatalf("unexpected error message %q", err.Error())
	}

	// The error is sticky; the stream never looks cleanly finished.
	if _, err := decoder.Next(); err == nil || err == io.EOF {
		t.Fatalf("expected error to persist, got %v", err)
	}
}
