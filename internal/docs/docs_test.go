package docs

import (
	"strings"
	"testing"
)

func TestTopicsListEveryPage(t *testing.T) {
	topics := Topics()
	if len(topics) == 0 {
		t.Fatal("no built-in topics")
	}
	seen := map[string]bool{}
	for i, tp := range topics {
		if tp.Name == "" || tp.Title == "" {
			t.Fatalf("topic %d incomplete: %+v", i, tp)
		}
		if i > 0 && topics[i-1].Name >= tp.Name {
			t.Fatalf("topics out of order: %q before %q", topics[i-1].Name, tp.Name)
		}
		seen[tp.Name] = true
	}
	for _, want := range []string{"ordering", "server", "storage", "sync"} {
		if !seen[want] {
			t.Fatalf("missing topic %q", want)
		}
	}
}

func TestGet(t *testing.T) {
	body, ok := Get("ordering")
	if !ok {
		t.Fatal("ordering topic missing")
	}
	if !strings.Contains(body, "position") {
		t.Fatal("ordering page does not mention positions")
	}

	if _, ok := Get("  Ordering "); !ok {
		t.Fatal("lookup should ignore case and surrounding space")
	}
	if _, ok := Get("nope"); ok {
		t.Fatal("unknown topic reported as found")
	}
	if _, ok := Get(""); ok {
		t.Fatal("empty topic reported as found")
	}
}
