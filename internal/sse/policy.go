package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	thoughtsField = "thoughts"
	infoField     = "info"
	summaryField  = "summary"
	thoughtPrefix = "Thinking: "
)

// Policy turns one parsed frame payload into step events. Payload is always
// a JSON object; iteration follows document order.
type Policy interface {
	Name() string
	Decode(payload gjson.Result, debug bool) []StepEvent
}

// MultiStep emits an event for every field of every step in the payload.
type MultiStep struct{}

func (MultiStep) Name() string { return "multi" }

func (MultiStep) Decode(payload gjson.Result, debug bool) []StepEvent {
	var events []StepEvent
	payload.ForEach(func(step, value gjson.Result) bool {
		if !value.IsObject() {
			events = append(events, StepEvent{Key: step.String(), Content: stringify(value)})
			return true
		}
		if debug {
			events = appendThoughts(events, value)
		}
		value.ForEach(func(field, v gjson.Result) bool {
			if field.String() == thoughtsField {
				return true
			}
			events = append(events, StepEvent{Key: field.String(), Content: stringify(v)})
			return true
		})
		return true
	})
	return events
}

// SingleStep emits at most one result event per frame, taken from the first
// step of the payload: its info, else its summary, else all of its values
// joined by newlines.
type SingleStep struct{}

func (SingleStep) Name() string { return "single" }

func (SingleStep) Decode(payload gjson.Result, debug bool) []StepEvent {
	var (
		key   string
		value gjson.Result
		found bool
	)
	payload.ForEach(func(k, v gjson.Result) bool {
		key, value, found = k.String(), v, true
		return false
	})
	if !found || !value.IsObject() {
		return nil
	}

	var events []StepEvent
	if debug {
		events = appendThoughts(events, value)
	}
	content := singleStepContent(value)
	if strings.TrimSpace(content) == "" {
		return events
	}
	return append(events, StepEvent{Key: key, Content: content})
}

func singleStepContent(step gjson.Result) string {
	var info, summary string
	var values []string
	step.ForEach(func(k, v gjson.Result) bool {
		name := k.String()
		if name == thoughtsField {
			return true
		}
		text := plainText(v)
		switch {
		case name == infoField && info == "":
			info = text
		case name == summaryField && summary == "":
			summary = text
		}
		if text != "" {
			values = append(values, text)
		}
		return true
	})
	if info != "" {
		return info
	}
	if summary != "" {
		return summary
	}
	return strings.Join(values, "\n")
}

// PolicyFor resolves a policy by its configured name.
func PolicyFor(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "multi", "multi-step":
		return MultiStep{}, nil
	case "single", "single-step":
		return SingleStep{}, nil
	default:
		return nil, fmt.Errorf("unknown decode policy: %s", name)
	}
}

func appendThoughts(events []StepEvent, step gjson.Result) []StepEvent {
	thoughts := lookup(step, thoughtsField)
	if !thoughts.IsObject() {
		return events
	}
	thoughts.ForEach(func(name, reasoning gjson.Result) bool {
		if reasoning.Type != gjson.String || strings.TrimSpace(reasoning.Str) == "" {
			return true
		}
		events = append(events, StepEvent{
			Key:       thoughtPrefix + name.String(),
			Content:   reasoning.Str,
			IsThought: true,
		})
		return true
	})
	return events
}

// lookup finds a direct child by exact name. gjson paths treat dots and
// wildcards specially, so keys are matched by iteration instead.
func lookup(obj gjson.Result, name string) gjson.Result {
	var out gjson.Result
	obj.ForEach(func(k, v gjson.Result) bool {
		if k.String() == name {
			out = v
			return false
		}
		return true
	})
	return out
}

// stringify returns strings verbatim and re-serializes any other value as
// JSON indented with two spaces. Escapes and number spellings in the source
// are normalized: "caf\u00e9" prints as café and 1.50 as 1.5.
func stringify(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.Str
	}
	w := newJSONWriter()
	w.value(v, "")
	return w.buf.String()
}

type jsonWriter struct {
	buf bytes.Buffer
	enc *json.Encoder
}

func newJSONWriter() *jsonWriter {
	w := &jsonWriter{}
	w.enc = json.NewEncoder(&w.buf)
	w.enc.SetEscapeHTML(false)
	return w
}

func (w *jsonWriter) value(v gjson.Result, indent string) {
	switch {
	case v.IsObject():
		w.members(v, indent, '{', '}', true)
	case v.IsArray():
		w.members(v, indent, '[', ']', false)
	case v.Type == gjson.String:
		w.scalar(v.Str)
	case v.Type == gjson.Number:
		f := v.Num
		if f == 0 {
			f = 0 // drop the sign of -0
		}
		w.scalar(f)
	case v.Type == gjson.True:
		w.buf.WriteString("true")
	case v.Type == gjson.False:
		w.buf.WriteString("false")
	default:
		w.buf.WriteString("null")
	}
}

// members writes an object or array one element per line. Object keys keep
// document order.
func (w *jsonWriter) members(v gjson.Result, indent string, open, end byte, keyed bool) {
	inner := indent + "  "
	n := 0
	w.buf.WriteByte(open)
	v.ForEach(func(k, elem gjson.Result) bool {
		if n > 0 {
			w.buf.WriteByte(',')
		}
		w.buf.WriteByte('\n')
		w.buf.WriteString(inner)
		if keyed {
			w.scalar(k.Str)
			w.buf.WriteString(": ")
		}
		w.value(elem, inner)
		n++
		return true
	})
	if n > 0 {
		w.buf.WriteByte('\n')
		w.buf.WriteString(indent)
	}
	w.buf.WriteByte(end)
}

// scalar encodes a string or float64. Encoder output ends with a newline,
// which is cut off.
func (w *jsonWriter) scalar(x any) {
	if err := w.enc.Encode(x); err != nil {
		w.buf.WriteString("null")
		return
	}
	w.buf.Truncate(w.buf.Len() - 1)
}

func plainText(v gjson.Result) string {
	if v.Type == gjson.Null || !v.Exists() {
		return ""
	}
	return stringify(v)
}
