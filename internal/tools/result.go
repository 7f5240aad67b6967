package tools

import (
	"encoding/json"
	"fmt"
)

// Result is the tagged outcome of a tool run. A success result carries
// "success": true and never an "error" key; a failure carries "error" and
// never "success". The tag is owned by Result and cannot be overridden
// through fields.
type Result struct {
	ok      bool
	message string
	fields  map[string]any
}

// Success builds a success-tagged result.
func Success(fields map[string]any) Result {
	return Result{ok: true, fields: fields}
}

// Failure builds an error-tagged result. fields carry context such as
// the attempted command or the raw output.
func Failure(message string, fields map[string]any) Result {
	return Result{message: message, fields: fields}
}

// Failuref builds an error-tagged result without extra fields.
func Failuref(format string, args ...any) Result {
	return Failure(fmt.Sprintf(format, args...), nil)
}

// OK reports whether the result is success-tagged.
func (r Result) OK() bool { return r.ok }

// Message is the error text of a failure.
func (r Result) Message() string { return r.message }

// Field returns a payload field.
func (r Result) Field(key string) (any, bool) {
	v, ok := r.fields[key]
	return v, ok
}

func (r Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.fields)+1)
	for k, v := range r.fields {
		if k == "success" || k == "error" {
			continue
		}
		out[k] = v
	}
	if r.ok {
		out["success"] = true
	} else {
		out["error"] = r.message
	}
	return json.Marshal(out)
}

// String renders the result as the JSON text handed back to the model.
func (r Result) String() string {
	b, err := json.Marshal(r)
	if err != nil {
		b, _ = json.Marshal(map[string]string{"error": "failed to encode tool result: " + err.Error()})
	}
	return string(b)
}
