package registry

import (
	"runtime"
	"testing"
	"time"

	"github.com/hazyhaar/postlink/dom"
	"github.com/hazyhaar/postlink/dom/memdom"
	"github.com/hazyhaar/postlink/internal/fixture"
)

const marker = "data-postlink-injected"

func hasMarker(el dom.Element) bool {
	_, ok := el.Attr(marker)
	return ok
}

func posts(t *testing.T, n int) (*memdom.Document, []dom.Element) {
	t.Helper()
	var items []string
	for i := range n {
		items = append(items, fixture.TwitterPost("u", string(rune('1'+i))))
	}
	doc, err := memdom.ParseString(fixture.TwitterPage(items...), memdom.WithURL(fixture.TwitterURL))
	if err != nil {
		t.Fatal(err)
	}
	els, err := doc.Root().QueryAll("article")
	if err != nil || len(els) != n {
		t.Fatalf("setup: %d articles, %v", len(els), err)
	}
	return doc, els
}

func TestIsProcessed_NewPost(t *testing.T) {
	_, els := posts(t, 1)
	r := New(Options{Presence: hasMarker})
	if r.IsProcessed(els[0], false) || r.IsProcessed(els[0], true) {
		t.Fatal("new post reported processed")
	}
	if r.IsProcessed(nil, true) {
		t.Fatal("nil reported processed")
	}
}

func TestIsProcessed_VerifyFollowsPresence(t *testing.T) {
	_, els := posts(t, 1)
	post := els[0]
	r := New(Options{Presence: hasMarker})

	r.MarkProcessed(post, "twitter:1")
	if !r.IsProcessed(post, false) {
		t.Fatal("unverified lookup missed ephemeral entry")
	}
	// Registry says yes, page says no: must be reported unprocessed.
	if r.IsProcessed(post, true) {
		t.Fatal("stale entry suppressed re-injection")
	}
	post.SetAttr(marker, "")
	if !r.IsProcessed(post, true) {
		t.Fatal("present control not recognised")
	}
}

func TestIsProcessed_ReplacedNode(t *testing.T) {
	doc, els := posts(t, 1)
	old := els[0]
	ident := func(dom.Element) string { return "twitter:1" }
	r := New(Options{Presence: hasMarker, Identify: ident})
	r.MarkProcessed(old, "twitter:1")

	// Virtual scrolling: the old node goes away, a distinct clone arrives.
	parent := old.Parent()
	if err := old.Remove(); err != nil {
		t.Fatal(err)
	}
	frag, err := doc.Fragment(fixture.TwitterPost("u", "1"))
	if err != nil {
		t.Fatal(err)
	}
	if err := parent.AppendChild(frag[0]); err != nil {
		t.Fatal(err)
	}
	fresh := dom.Element(frag[0])

	if !r.IsProcessed(fresh, false) {
		t.Fatal("durable track not consulted")
	}
	if r.IsProcessed(fresh, true) {
		t.Fatal("durable hit without control reported processed")
	}
}

func TestIsProcessed_VerifyWithoutPresence(t *testing.T) {
	_, els := posts(t, 1)
	r := New(Options{})
	r.MarkProcessed(els[0], "k")
	if r.IsProcessed(els[0], true) {
		t.Fatal("verified lookup without presence check returned true")
	}
}

func TestClear(t *testing.T) {
	_, els := posts(t, 2)
	r := New(Options{Presence: hasMarker})
	r.MarkProcessed(els[0], "a")
	r.MarkProcessed(els[1], "b")
	if e, d := r.Len(); e != 2 || d != 2 {
		t.Fatalf("Len = %d, %d", e, d)
	}
	r.Clear()
	if e, d := r.Len(); e != 0 || d != 0 {
		t.Fatalf("after Clear Len = %d, %d", e, d)
	}
	if r.Known("a") || r.IsProcessed(els[0], false) {
		t.Fatal("entry survived Clear")
	}
}

func TestMarkSkipped_Budget(t *testing.T) {
	_, els := posts(t, 1)
	r := New(Options{MaxAttempts: 3})
	for i := 1; i <= 2; i++ {
		if r.MarkSkipped(els[0]) {
			t.Fatalf("exhausted after %d attempts", i)
		}
	}
	if !r.MarkSkipped(els[0]) || !r.Exhausted(els[0]) {
		t.Fatal("not exhausted after 3 attempts")
	}
	r.MarkProcessed(els[0], "")
	if r.Exhausted(els[0]) {
		t.Fatal("MarkProcessed kept the skip memo")
	}
}

// plain hides the collection hook of the wrapped element.
type plain struct{ dom.Element }

func TestEphemeral_BoundedWithoutCollection(t *testing.T) {
	_, els := posts(t, 4)
	r := New(Options{MaxEphemeral: 2})
	for _, el := range els {
		r.MarkProcessed(plain{el}, "")
	}
	if e, _ := r.Len(); e != 2 {
		t.Fatalf("ephemeral = %d, want 2", e)
	}
	if r.IsProcessed(els[0], false) {
		t.Fatal("oldest entry not evicted")
	}
	if !r.IsProcessed(els[3], false) {
		t.Fatal("newest entry evicted")
	}
}

func markDetached(t *testing.T, r *Registry, doc *memdom.Document) {
	t.Helper()
	el, err := doc.CreateElement("article")
	if err != nil {
		t.Fatal(err)
	}
	r.MarkProcessed(el, "")
}

func TestEphemeral_EvictedOnCollection(t *testing.T) {
	doc, _ := posts(t, 1)
	r := New(Options{})
	markDetached(t, r, doc)
	if e, _ := r.Len(); e != 1 {
		t.Fatalf("ephemeral = %d, want 1", e)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		runtime.GC()
		if e, _ := r.Len(); e == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("entry for collected node never evicted")
}
