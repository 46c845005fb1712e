// Package docs holds the built-in help pages. The pages are markdown
// files compiled into the binary, so `trolley docs` works offline and
// from scripts without a docs site.
package docs

import (
	"bufio"
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed content/*.md
var contentFS embed.FS

// A Topic is one built-in page: its lookup name and the title pulled
// from the page's first heading.
type Topic struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

// Topics lists every built-in page, sorted by name.
func Topics() []Topic {
	entries, err := fs.Glob(contentFS, "content/*.md")
	if err != nil {
		return nil
	}
	topics := make([]Topic, 0, len(entries))
	for _, p := range entries {
		name := strings.TrimSuffix(path.Base(p), ".md")
		if name == "" {
			continue
		}
		body, err := contentFS.ReadFile(p)
		if err != nil {
			continue
		}
		topics = append(topics, Topic{Name: name, Title: title(string(body))})
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].Name < topics[j].Name })
	return topics
}

// Get returns the markdown body for a topic name. Lookup is
// case-insensitive.
func Get(name string) (string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", false
	}
	b, err := contentFS.ReadFile("content/" + name + ".md")
	if err != nil {
		return "", false
	}
	return string(b), true
}

// title is the first heading, or failing that the first non-empty line.
func title(body string) string {
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		return strings.TrimLeft(line, "# ")
	}
	return ""
}
