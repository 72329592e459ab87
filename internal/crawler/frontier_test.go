package crawler

import (
	"testing"
)

func TestFrontierPushCollapsesEquivalentURLs(t *testing.T) {
	f := NewFrontier(2, nil)

	forms := []string{
		"https://example.com/page",
		"https://EXAMPLE.com/page",
		"https://example.com/page/",
		"https://example.com/page#section",
		"https://example.com:443/page",
	}

	pushed := 0
	for _, u := range forms {
		if f.Push(u, 1, "https://example.com") {
			pushed++
		}
	}

	if pushed != 1 {
		t.Errorf("Expected exactly one enqueue for equivalent forms, got %d", pushed)
	}
	if f.Len() != 1 {
		t.Errorf("Expected frontier length 1, got %d", f.Len())
	}
	_, dups, _ := f.Counters()
	if dups != len(forms)-1 {
		t.Errorf("Expected %d duplicate rejections, got %d", len(forms)-1, dups)
	}
}

func TestFrontierDepthPriority(t *testing.T) {
	f := NewFrontier(3, nil)

	f.Push("https://example.com/deep", 2, "")
	f.Push("https://example.com/shallow-a", 1, "")
	f.Push("https://example.com/deeper", 3, "")
	f.Push("https://example.com/shallow-b", 1, "")

	want := []string{
		"https://example.com/shallow-a",
		"https://example.com/shallow-b",
		"https://example.com/deep",
		"https://example.com/deeper",
	}
	for i, expected := range want {
		task, ok := f.Pop()
		if !ok {
			t.Fatalf("Pop %d: frontier unexpectedly empty", i)
		}
		if task.URL != expected {
			t.Errorf("Pop %d: expected %s, got %s", i, expected, task.URL)
		}
	}
	if _, ok := f.Pop(); ok {
		t.Error("Expected empty frontier after draining")
	}
}

func TestFrontierMaxDepth(t *testing.T) {
	f := NewFrontier(1, nil)

	if !f.Push("https://example.com/ok", 1, "") {
		t.Error("Expected push at max depth to succeed")
	}
	if f.Push("https://example.com/too-deep", 2, "") {
		t.Error("Expected push beyond max depth to be rejected")
	}
}

func TestFrontierRejectsMalformedURL(t *testing.T) {
	f := NewFrontier(2, NewURLFilter("example.com", true, nil, nil, nil))

	if f.Push("://not-a-url", 0, "") {
		t.Error("Expected malformed URL to be rejected")
	}
	if f.Push("ftp://example.com/file", 0, "") {
		t.Error("Expected non-http scheme to be rejected")
	}
}

func TestFrontierClose(t *testing.T) {
	f := NewFrontier(2, nil)
	f.Push("https://example.com/queued", 0, "")
	f.Close()

	if f.Push("https://example.com/late", 0, "") {
		t.Error("Expected push after Close to be rejected")
	}
	if task, ok := f.Pop(); !ok || task.URL != "https://example.com/queued" {
		t.Error("Expected queued task to remain poppable after Close")
	}
}

func TestFrontierRequeueBypassesSeenSet(t *testing.T) {
	f := NewFrontier(2, nil)
	f.Push("https://example.com/page", 0, "")

	task, ok := f.Pop()
	if !ok {
		t.Fatal("Expected a task")
	}

	// A normal push of the same URL is a duplicate.
	if f.Push(task.URL, 0, "") {
		t.Error("Expected re-push of seen URL to be rejected")
	}
	if !f.Requeue(task) {
		t.Error("Expected requeue of popped task to succeed")
	}
	if again, ok := f.Pop(); !ok || again.URL != task.URL {
		t.Error("Expected requeued task to come back out")
	}
}

func TestFrontierFilterRejectionCounted(t *testing.T) {
	filter := NewURLFilter("example.com", false, nil, nil, nil)
	f := NewFrontier(2, filter)

	if f.Push("https://other.org/page", 0, "") {
		t.Error("Expected external host to be rejected")
	}
	_, _, rejected := f.Counters()
	if rejected != 1 {
		t.Errorf("Expected 1 filter rejection, got %d", rejected)
	}
}
