// Package format renders CLI output. Commands print one JSON document
// on stdout so scripts can pipe them straight into jq.
package format

import (
	"encoding/json"
	"fmt"
	"io"
)

// Write writes output in the requested format. JSON is the only wire
// format; anything else is rejected so callers notice a bad --format
// early.
func Write(w io.Writer, v any, format string, pretty bool) error {
	switch format {
	case "", "json":
		return WriteJSON(w, v, pretty)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// WriteJSON writes strict JSON output for CLI commands.
func WriteJSON(w io.Writer, v any, pretty bool) error {
	var b []byte
	var err error
	if pretty {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, string(b))
	return err
}
