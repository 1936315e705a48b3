package logging

import (
	"bytes"
	"encoding/json"
	"io"
)

// record is the line shape emitted in structured mode.
type record struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context"`
}

// recordWriter reshapes zerolog's flat JSON events into records. zerolog hands each
// event to Write as one complete JSON object.
type recordWriter struct {
	out io.Writer
}

func (w *recordWriter) Write(p []byte) (int, error) {
	fields := make(map[string]any)
	dec := json.NewDecoder(bytes.NewReader(p))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		// not ours to fix, pass it through
		return w.out.Write(p)
	}

	rec := record{Context: make(map[string]any)}
	for k, v := range fields {
		switch k {
		case "timestamp":
			rec.Timestamp, _ = v.(string)
		case "level":
			rec.Level, _ = v.(string)
		case "message":
			rec.Message, _ = v.(string)
		default:
			rec.Context[k] = v
		}
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return w.out.Write(p)
	}
	if _, err := w.out.Write(append(line, '\n')); err != nil {
		return 0, err
	}
	return len(p), nil
}
