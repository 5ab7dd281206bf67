package sse

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedError struct {
	frame string
	err   error
}

func collect(t *testing.T, d *Decoder, chunks ...string) []StepEvent {
	t.Helper()
	var events []StepEvent
	for _, chunk := range chunks {
		frames, err := d.Feed([]byte(chunk))
		require.NoError(t, err)
		for _, frame := range frames {
			events = append(events, d.DecodeFrame(frame)...)
		}
	}
	frames, err := d.Close()
	require.NoError(t, err)
	assert.Empty(t, frames)
	return events
}

func TestMultiStepFieldsInOrder(t *testing.T) {
	d := NewDecoder(WithPolicy(MultiStep{}))
	events := collect(t, d, `data: {"step1": {"a": "1", "b": {"x": 2}}}`+"\n\n")

	assert.Equal(t, []StepEvent{
		{Key: "a", Content: "1"},
		{Key: "b", Content: "{\n  \"x\": 2\n}"},
	}, events)
}

func TestMultiStepThoughts(t *testing.T) {
	frame := `data: {"step1": {"thoughts": {"t1": "reason one"}, "a": "1"}}` + "\n\n"

	events := collect(t, NewDecoder(WithDebug(true)), frame)
	assert.Equal(t, []StepEvent{
		{Key: "Thinking: t1", Content: "reason one", IsThought: true},
		{Key: "a", Content: "1"},
	}, events)

	events = collect(t, NewDecoder(WithDebug(false)), frame)
	assert.Equal(t, []StepEvent{{Key: "a", Content: "1"}}, events)
}

func TestMultiStepSkipsBlankThoughts(t *testing.T) {
	frame := `data: {"plan": {"thoughts": {"empty": "  ", "real": "why", "n": 3}, "goal": "ci"}}` + "\n\n"
	events := collect(t, NewDecoder(WithDebug(true)), frame)
	assert.Equal(t, []StepEvent{
		{Key: "Thinking: real", Content: "why", IsThought: true},
		{Key: "goal", Content: "ci"},
	}, events)
}

func TestMultiStepEveryStepKey(t *testing.T) {
	frame := `data: {"z": {"k": "1"}, "a": {"k": "2", "list": [1, 2]}, "n": 7}` + "\n\n"
	events := collect(t, NewDecoder(), frame)
	assert.Equal(t, []StepEvent{
		{Key: "k", Content: "1"},
		{Key: "k", Content: "2"},
		{Key: "list", Content: "[\n  1,\n  2\n]"},
		{Key: "n", Content: "7"},
	}, events)
}

func TestNestedValuesReserialized(t *testing.T) {
	frame := `data: {"plan": {"detail": {"name": "caf\u00e9", "price": 1.50, "path": "a\/b", ` +
		`"tag": "<b>", "tiny": 1e-7, "none": null, "list": [], "obj": {}, "ok": true}}}` + "\n\n"
	events := collect(t, NewDecoder(), frame)

	want := "{\n" +
		"  \"name\": \"café\",\n" +
		"  \"price\": 1.5,\n" +
		"  \"path\": \"a/b\",\n" +
		"  \"tag\": \"<b>\",\n" +
		"  \"tiny\": 1e-7,\n" +
		"  \"none\": null,\n" +
		"  \"list\": [],\n" +
		"  \"obj\": {},\n" +
		"  \"ok\": true\n" +
		"}"
	assert.Equal(t, []StepEvent{{Key: "detail", Content: want}}, events)
}

func TestNestedArrayOfObjects(t *testing.T) {
	frame := `data: {"s": {"rows": [{"b": 1, "a": "<x>"}, [2.0]]}}` + "\n\n"
	events := collect(t, NewDecoder(), frame)
	assert.Equal(t, []StepEvent{{
		Key:     "rows",
		Content: "[\n  {\n    \"b\": 1,\n    \"a\": \"<x>\"\n  },\n  [\n    2\n  ]\n]",
	}}, events)
}

func TestSingleStepInfoWins(t *testing.T) {
	d := NewDecoder(WithPolicy(SingleStep{}))
	events := collect(t, d, `data: {"extract": {"info": "hello", "summary": "world"}}`+"\n\n")
	assert.Equal(t, []StepEvent{{Key: "extract", Content: "hello"}}, events)
}

func TestSingleStepSummaryFallback(t *testing.T) {
	d := NewDecoder(WithPolicy(SingleStep{}))
	events := collect(t, d, `data: {"microservices": {"info": "", "summary": "split billing"}}`+"\n\n")
	assert.Equal(t, []StepEvent{{Key: "microservices", Content: "split billing"}}, events)
}

func TestSingleStepJoinedValuesFallback(t *testing.T) {
	d := NewDecoder(WithPolicy(SingleStep{}))
	events := collect(t, d, `data: {"extract": {"summary": "", "other": "x"}}`+"\n\n")
	assert.Equal(t, []StepEvent{{Key: "extract", Content: "x"}}, events)

	d = NewDecoder(WithPolicy(SingleStep{}))
	events = collect(t, d, `data: {"extract": {"a": "x", "b": "y"}}`+"\n\n")
	assert.Equal(t, []StepEvent{{Key: "extract", Content: "x\ny"}}, events)
}

func TestSingleStepOnlyFirstKey(t *testing.T) {
	d := NewDecoder(WithPolicy(SingleStep{}), WithDebug(true))
	frame := `data: {"first": {"thoughts": {"why": "because"}, "info": "one"}, "second": {"info": "two"}}` + "\n\n"
	events := collect(t, d, frame)
	assert.Equal(t, []StepEvent{
		{Key: "Thinking: why", Content: "because", IsThought: true},
		{Key: "first", Content: "one"},
	}, events)
}

func TestSingleStepBlankContentEmitsNothing(t *testing.T) {
	d := NewDecoder(WithPolicy(SingleStep{}))
	events := collect(t, d,
		`data: {"extract": {"info": "  ", "summary": ""}}`+"\n\n",
		`data: {"extract": "not an object"}`+"\n\n",
		`data: {}`+"\n\n",
	)
	assert.Empty(t, events)
}

func TestMalformedFrameReportedAndSkipped(t *testing.T) {
	var reported []recordedError
	d := NewDecoder(WithErrorObserver(func(frame string, err error) {
		reported = append(reported, recordedError{frame: frame, err: err})
	}))
	events := collect(t, d,
		"data: {not valid json\n\n",
		`data: {"step": {"a": "ok"}}`+"\n\n",
	)

	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0].err, ErrMalformedPayload)
	assert.Equal(t, "data: {not valid json", reported[0].frame)
	assert.Equal(t, []StepEvent{{Key: "a", Content: "ok"}}, events)
}

func TestNonObjectPayloadReported(t *testing.T) {
	count := 0
	d := NewDecoder(WithErrorObserver(func(string, error) { count++ }))
	events := collect(t, d, "data: [1, 2]\n\n")
	assert.Empty(t, events)
	assert.Equal(t, 1, count)
}

func TestNonDataFramesIgnored(t *testing.T) {
	count := 0
	d := NewDecoder(WithErrorObserver(func(string, error) { count++ }))
	events := collect(t, d,
		": keep-alive\n\n",
		"event: ping\n\n",
		"\n\n",
		`data: {"s": {"a": "1"}}`+"\n\n",
	)
	assert.Equal(t, []StepEvent{{Key: "a", Content: "1"}}, events)
	assert.Zero(t, count)
}

func TestCloseDiscardsUnterminatedTail(t *testing.T) {
	count := 0
	d := NewDecoder(WithErrorObserver(func(string, error) { count++ }))
	events := collect(t, d,
		`data: {"s": {"a": "1"}}`+"\n\n",
		`data: {"s": {"b": "2"}}`+"\n",
	)
	assert.Equal(t, []StepEvent{{Key: "a", Content: "1"}}, events)
	assert.Zero(t, count)
	assert.True(t, d.Closed())
}

func TestDelimiterSplitAcrossChunks(t *testing.T) {
	d := NewDecoder()
	frames, err := d.Feed([]byte(`data: {"s": {"a": "1"}}` + "\n"))
	require.NoError(t, err)
	assert.Empty(t, frames)

	frames, err = d.Feed([]byte("\n" + `data: {"s"`))
	require.NoError(t, err)
	assert.Equal(t, []string{`data: {"s": {"a": "1"}}`}, frames)

	frames, err = d.Feed([]byte(`: {"b": "2"}}` + "\n\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{`data: {"s": {"b": "2"}}`}, frames)
}

func TestFeedResumesScanAcrossSmallChunks(t *testing.T) {
	body := strings.Repeat(`{"line": "x"}`+"\n", 4000)
	stream := "data: " + body + "\n" + `data: {"s": {"a": "1"}}` + "\n\n"

	d := NewDecoder()
	var frames []string
	for i := 0; i < len(stream); i += 3 {
		got, err := d.Feed([]byte(stream[i:min(i+3, len(stream))]))
		require.NoError(t, err)
		frames = append(frames, got...)
		assert.Equal(t, len(d.buf), d.scanned)
	}
	require.Len(t, frames, 2)
	assert.Equal(t, "data: "+strings.TrimSuffix(body, "\n"), frames[0])
	assert.Equal(t, `data: {"s": {"a": "1"}}`, frames[1])
	assert.Empty(t, d.buf)
}

func TestMultibyteRuneSplitAcrossChunks(t *testing.T) {
	raw := []byte(`data: {"s": {"greeting": "héllo ✓"}}` + "\n\n")
	cut := strings.Index(string(raw), "✓") + 1

	d := NewDecoder()
	var events []StepEvent
	for _, chunk := range [][]byte{raw[:cut], raw[cut:]} {
		frames, err := d.Feed(chunk)
		require.NoError(t, err)
		for _, frame := range frames {
			events = append(events, d.DecodeFrame(frame)...)
		}
	}
	assert.Equal(t, []StepEvent{{Key: "greeting", Content: "héllo ✓"}}, events)
}

func TestChunkBoundaryIndependence(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"extract": {"thoughts": {"scan": "look at nodes"}, "components": ["api", "db"]}}`,
		`: comment`,
		`data: {broken`,
		`data: {"plan": {"summary": "two services", "detail": {"n": 2}}}`,
		`data: {"tail": {"x": "y"}}`,
	}, "\n\n") + "\n\n"

	for _, policy := range []Policy{MultiStep{}, SingleStep{}} {
		want := collect(t, NewDecoder(WithPolicy(policy), WithDebug(true)), stream)
		require.NotEmpty(t, want)

		for i := 0; i <= len(stream); i++ {
			for j := i; j <= len(stream); j += 7 {
				d := NewDecoder(WithPolicy(policy), WithDebug(true))
				got := collect(t, d, stream[:i], stream[i:j], stream[j:])
				require.Equal(t, want, got, "policy=%s split=%d,%d", policy.Name(), i, j)
			}
		}

		var got []StepEvent
		d := NewDecoder(WithPolicy(policy), WithDebug(true))
		err := d.Decode(iotest.OneByteReader(strings.NewReader(stream)), func(ev StepEvent) error {
			got = append(got, ev)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, want, got, "policy=%s one byte reader", policy.Name())
	}
}

func TestFeedAfterClose(t *testing.T) {
	d := NewDecoder()
	_, err := d.Close()
	require.NoError(t, err)

	_, err = d.Feed([]byte("data: {}\n\n"))
	assert.ErrorIs(t, err, ErrClosed)

	_, err = d.Close()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDecodeTransportFailure(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(
		strings.NewReader(`data: {"s": {"a": "1"}}`+"\n\n"+`data: {"s": {"b"`),
		iotest.ErrReader(boom),
	)

	var got []StepEvent
	d := NewDecoder()
	err := d.Decode(r, func(ev StepEvent) error {
		got = append(got, ev)
		return nil
	})

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []StepEvent{{Key: "a", Content: "1"}}, got)
	assert.True(t, d.Closed())

	_, err = d.Feed([]byte("data: {}\n\n"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDecodeSinkErrorStops(t *testing.T) {
	stop := errors.New("stop")
	stream := `data: {"s": {"a": "1", "b": "2"}}` + "\n\n"

	calls := 0
	d := NewDecoder()
	err := d.Decode(strings.NewReader(stream), func(StepEvent) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
	assert.True(t, d.Closed())
}

func TestEventsSequence(t *testing.T) {
	stream := `data: {"s": {"a": "1", "b": "2", "c": "3"}}` + "\n\n"

	var keys []string
	for ev, err := range NewDecoder().Events(strings.NewReader(stream)) {
		require.NoError(t, err)
		keys = append(keys, ev.Key)
		if ev.Key == "b" {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestEventsYieldsTransportError(t *testing.T) {
	boom := errors.New("eof too soon")
	r := io.MultiReader(strings.NewReader(`data: {"s": {"a": "1"}}`+"\n\n"), iotest.ErrReader(boom))

	var events []StepEvent
	var final error
	for ev, err := range NewDecoder().Events(r) {
		if err != nil {
			final = err
			continue
		}
		events = append(events, ev)
	}
	assert.Len(t, events, 1)
	assert.ErrorIs(t, final, boom)
}

func TestPolicyFor(t *testing.T) {
	p, err := PolicyFor("single")
	require.NoError(t, err)
	assert.Equal(t, "single", p.Name())

	p, err = PolicyFor("")
	require.NoError(t, err)
	assert.Equal(t, "multi", p.Name())

	_, err = PolicyFor("parallel")
	assert.Error(t, err)
}
