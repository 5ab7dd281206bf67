package sse

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	dataPrefix     = "data: "
	readBufferSize = 4096
	logPreviewSize = 120
)

var frameDelimiter = []byte("\n\n")

var errStopIteration = errors.New("sse: iteration stopped")

type state int

const (
	stateStreaming state = iota
	stateClosed
)

// Decoder reassembles a chunked SSE stream into frames and decodes each frame
// with its Policy. A Decoder serves a single stream and is not safe for
// concurrent use.
type Decoder struct {
	policy   Policy
	debug    bool
	observer ErrorObserver
	logger   *slog.Logger

	buf []byte
	// scanned is how much of buf is known to hold no delimiter.
	scanned int
	state   state
}

type Option func(*Decoder)

func WithPolicy(policy Policy) Option {
	return func(d *Decoder) {
		if policy != nil {
			d.policy = policy
		}
	}
}

// WithDebug surfaces the "thoughts" of each step as thought events.
func WithDebug(debug bool) Option {
	return func(d *Decoder) {
		d.debug = debug
	}
}

func WithErrorObserver(observer ErrorObserver) Option {
	return func(d *Decoder) {
		d.observer = observer
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Decoder) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		policy: MultiStep{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.observer == nil {
		d.observer = d.logDropped
	}
	return d
}

// Feed appends chunk to the pending buffer and returns every complete frame,
// without its trailing delimiter. The unterminated remainder stays buffered
// for the next call.
func (d *Decoder) Feed(chunk []byte) ([]string, error) {
	if d.state == stateClosed {
		return nil, ErrClosed
	}
	// A delimiter may straddle the previous chunk and this one, so the
	// search resumes one byte before the already scanned prefix ends.
	from := max(d.scanned-(len(frameDelimiter)-1), 0)
	d.buf = append(d.buf, chunk...)

	var frames []string
	start := 0
	for {
		i := bytes.Index(d.buf[from:], frameDelimiter)
		if i < 0 {
			break
		}
		end := from + i
		frames = append(frames, string(d.buf[start:end]))
		start = end + len(frameDelimiter)
		from = start
	}
	if start > 0 {
		d.buf = append(d.buf[:0], d.buf[start:]...)
	}
	d.scanned = len(d.buf)
	return frames, nil
}

// Close ends the stream. An unterminated tail is a truncated event and is
// discarded, so Close never yields a frame.
func (d *Decoder) Close() ([]string, error) {
	if d.state == stateClosed {
		return nil, ErrClosed
	}
	if len(d.buf) > 0 {
		d.logger.Debug("discarding unterminated frame", "bytes", len(d.buf), "tail", preview(string(d.buf)))
	}
	d.reset()
	return nil, nil
}

// Fail ends the stream because the transport failed and returns the
// terminal error to hand to the caller.
func (d *Decoder) Fail(err error) error {
	d.reset()
	d.logger.Warn("stream transport failed", "error", err)
	return &TransportError{Err: err}
}

// Closed reports whether the decoder reached its terminal state.
func (d *Decoder) Closed() bool {
	return d.state == stateClosed
}

// DecodeFrame turns a single frame into step events. Frames without the data
// prefix are part of the stream grammar (keep-alives, comments) and yield
// nothing. Undecodable payloads are reported to the ErrorObserver.
func (d *Decoder) DecodeFrame(frame string) []StepEvent {
	if !strings.HasPrefix(frame, dataPrefix) {
		if strings.TrimSpace(frame) != "" {
			d.logger.Debug("ignoring non-data frame", "frame", preview(frame))
		}
		return nil
	}
	payload := strings.TrimSpace(strings.TrimPrefix(frame, dataPrefix))
	if !gjson.Valid(payload) {
		d.observer(frame, fmt.Errorf("%w: invalid json", ErrMalformedPayload))
		return nil
	}
	parsed := gjson.Parse(payload)
	if !parsed.IsObject() {
		d.observer(frame, fmt.Errorf("%w: expected object, got %s", ErrMalformedPayload, parsed.Type))
		return nil
	}
	return d.policy.Decode(parsed, d.debug)
}

// Decode drives the decoder from r until EOF, delivering events to sink in
// stream order. A read failure closes the decoder and is returned as a
// *TransportError.
func (d *Decoder) Decode(r io.Reader, sink Sink) error {
	chunk := make([]byte, readBufferSize)
	for {
		n, readErr := r.Read(chunk)
		if n > 0 {
			frames, err := d.Feed(chunk[:n])
			if err != nil {
				return err
			}
			if err := d.emit(frames, sink); err != nil {
				d.reset()
				return err
			}
		}
		if errors.Is(readErr, io.EOF) {
			_, err := d.Close()
			return err
		}
		if readErr != nil {
			return d.Fail(readErr)
		}
	}
}

// Events is the lazy form of Decode. A terminal error is yielded as the last
// element of the sequence.
func (d *Decoder) Events(r io.Reader) iter.Seq2[StepEvent, error] {
	return func(yield func(StepEvent, error) bool) {
		err := d.Decode(r, func(ev StepEvent) error {
			if !yield(ev, nil) {
				return errStopIteration
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopIteration) {
			yield(StepEvent{}, err)
		}
	}
}

func (d *Decoder) emit(frames []string, sink Sink) error {
	for _, frame := range frames {
		for _, ev := range d.DecodeFrame(frame) {
			if err := sink(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Decoder) reset() {
	d.buf = nil
	d.scanned = 0
	d.state = stateClosed
}

func (d *Decoder) logDropped(frame string, err error) {
	d.logger.Warn("dropping undecodable frame", "error", err, "frame", preview(frame))
}

func preview(s string) string {
	if len(s) <= logPreviewSize {
		return s
	}
	return s[:logPreviewSize] + "..."
}
