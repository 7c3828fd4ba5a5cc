package pipeline

import (
	"bytes"
	"encoding/json"

	"github.com/chaz8081/vadsplit/internal/segment"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the outcome of one run. It is either a success with segments or
// an error with a message, never both.
type Result struct {
	Status   string
	Segments []segment.Segment
	Error    string
}

// Success returns a success result. A nil slice is reported as empty.
func Success(segments []segment.Segment) Result {
	if segments == nil {
		segments = []segment.Segment{}
	}
	return Result{Status: StatusSuccess, Segments: segments}
}

// Failure returns an error result carrying msg.
func Failure(msg string) Result {
	return Result{Status: StatusError, Error: msg}
}

// OK reports whether r is a success.
func (r Result) OK() bool { return r.Status == StatusSuccess }

type successJSON struct {
	Status   string            `json:"status"`
	Segments []segment.Segment `json:"segments"`
}

type errorJSON struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// MarshalJSON emits {"status":"success","segments":[...]} or
// {"status":"error","error":"..."}.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Status == StatusSuccess {
		segs := r.Segments
		if segs == nil {
			segs = []segment.Segment{}
		}
		return marshalRaw(successJSON{Status: StatusSuccess, Segments: segs})
	}
	return marshalRaw(errorJSON{Status: StatusError, Error: r.Error})
}

// marshalRaw is json.Marshal without HTML escaping.
func marshalRaw(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// UnmarshalJSON accepts either shape, for callers that parse a result line
// printed by the CLI.
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw struct {
		Status   string            `json:"status"`
		Segments []segment.Segment `json:"segments"`
		Error    string            `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Result{Status: raw.Status, Segments: raw.Segments, Error: raw.Error}
	return nil
}
