// Package export renders lists as portable markdown checklists.
package export

import (
	"bytes"
	"errors"
	"os"
	"strings"

	"trolley/internal/model"
)

// RenderListMarkdown renders one list as a markdown checklist: the
// unchecked rows first, then the checked ones under a Done heading.
// Item links become inline markdown links. Rows keep the order they
// are given in.
func RenderListMarkdown(l model.List, items []model.Item) string {
	var buf bytes.Buffer
	writeLn := func(s string) {
		buf.WriteString(s)
		buf.WriteString("\n")
	}

	title := strings.TrimSpace(l.Name)
	if icon := strings.TrimSpace(l.Icon); icon != "" {
		title = icon + " " + title
	}
	writeLn("# " + title)
	writeLn("")

	var unchecked, checked []model.Item
	for _, it := range items {
		if it.Checked {
			checked = append(checked, it)
		} else {
			unchecked = append(unchecked, it)
		}
	}

	if len(unchecked) == 0 && len(checked) == 0 {
		writeLn("(empty)")
		return buf.String()
	}

	for _, it := range unchecked {
		writeLn("- [ ] " + itemLine(it))
	}
	if len(checked) > 0 {
		if len(unchecked) > 0 {
			writeLn("")
		}
		writeLn("## Done")
		writeLn("")
		for _, it := range checked {
			writeLn("- [x] " + itemLine(it))
		}
	}
	return buf.String()
}

func itemLine(it model.Item) string {
	text := strings.TrimSpace(it.Text)
	if url := strings.TrimSpace(it.URL); url != "" {
		return "[" + text + "](" + url + ")"
	}
	return text
}

// WriteFile writes rendered markdown to disk, refusing to replace an
// existing file unless overwrite is set.
func WriteFile(path string, b []byte, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return errors.New("file exists (use --force): " + path)
		}
	}
	return os.WriteFile(path, b, 0o644)
}
