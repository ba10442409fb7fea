package genclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// StreamDecoder turns a byte stream of "data: <payload>\n\n" frames into a
// sequence of text deltas. A partial line spanning a chunk boundary is
// carried in an explicit buffer across reads, so frame parsing does not
// depend on how the transport happens to split the bytes. Once the decoder
// returns io.EOF it stays finished; a new generation attempt needs a new
// decoder over a new stream.
type StreamDecoder struct {
	r        io.Reader
	partial  []byte
	pending  []string
	done     bool
	finalErr error
	readBuf  []byte
}

// NewStreamDecoder wraps r, typically an HTTP response body.
func NewStreamDecoder(r io.Reader) *StreamDecoder {
	return &StreamDecoder{
		r:       r,
		readBuf: make([]byte, 4096),
	}
}

type deltaFrame struct {
	Content *string `json:"content"`
	Error   *string `json:"error"`
}

// Next returns the next content delta. It returns io.EOF after the [DONE]
// sentinel or when the underlying stream ends, and any other error verbatim
// from the underlying reader. A frame carrying an error field terminates the
// stream with that error: the server only sends one when generation broke
// mid-flight, and the partial text must not pass for a finished document.
func (d *StreamDecoder) Next() (string, error) {
	for {
		if len(d.pending) > 0 {
			delta := d.pending[0]
			d.pending = d.pending[1:]
			return delta, nil
		}
		if d.done {
			if d.finalErr != nil {
				return "", d.finalErr
			}
			return "", io.EOF
		}

		n, err := d.r.Read(d.readBuf)
		if n > 0 {
			d.partial = append(d.partial, d.readBuf[:n]...)
			d.consumeLines()
		}
		if err != nil {
			if err == io.EOF {
				d.done = true
				continue
			}
			return "", err
		}
	}
}

// consumeLines processes every complete line in the partial buffer, leaving
// any trailing fragment for the next read.
func (d *StreamDecoder) consumeLines() {
	for {
		idx := bytes.IndexByte(d.partial, '\n')
		if idx < 0 {
			return
		}
		line := d.partial[:idx]
		d.partial = d.partial[idx+1:]
		d.handleLine(bytes.TrimRight(line, "\r"))
		if d.done {
			return
		}
	}
}

func (d *StreamDecoder) handleLine(line []byte) {
	if !bytes.HasPrefix(line, []byte("data:")) {
		return
	}
	payload := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
	if len(payload) == 0 {
		return
	}
	if bytes.Equal(payload, []byte("[DONE]")) {
		d.done = true
		return
	}
	var frame deltaFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		// Malformed fragment, skip and keep reading.
		return
	}
	if frame.Error != nil && *frame.Error != "" {
		d.done = true
		d.finalErr = errors.New(*frame.Error)
		return
	}
	if frame.Content == nil || *frame.Content == "" {
		return
	}
	d.pending = append(d.pending, *frame.Content)
}
