package memdom

import (
	"errors"
	"strings"
	"testing"

	"github.com/hazyhaar/postlink/dom"
)

const page = `<html><body>
<main id="feed">
  <article id="a1"><p>first</p><div role="group"><button>r</button></div></article>
  <article id="a2" hidden><p>second</p></article>
  <article id="a3" style="Display: None"><p>third</p></article>
</main>
</body></html>`

func parse(t *testing.T, opts ...Option) *Document {
	t.Helper()
	d, err := ParseString(page, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func byID(t *testing.T, d *Document, id string) dom.Element {
	t.Helper()
	els, err := d.Root().QueryAll("#" + id)
	if err != nil || len(els) != 1 {
		t.Fatalf("#%s: %v, %d matches", id, err, len(els))
	}
	return els[0]
}

func TestQueryAndTraversal(t *testing.T) {
	d := parse(t, WithURL("https://x.com/home"))
	if d.URL() != "https://x.com/home" {
		t.Errorf("url = %q", d.URL())
	}
	if tag := d.Root().Tag(); tag != "html" {
		t.Errorf("root = %s", tag)
	}
	posts, err := d.Body().QueryAll("article")
	if err != nil || len(posts) != 3 {
		t.Fatalf("articles = %d, %v", len(posts), err)
	}

	btn, _ := posts[0].QueryAll("button")
	group, err := btn[0].Closest("[role=group]")
	if err != nil || group == nil {
		t.Fatalf("closest = %v, %v", group, err)
	}
	if p := group.Parent(); p == nil || p.Key() != posts[0].Key() {
		t.Error("parent key differs from the query handle")
	}
	if n := posts[0].ChildCount(); n != 2 {
		t.Errorf("children = %d", n)
	}
	if last := posts[0].LastChild(); last == nil || last.Key() != group.Key() {
		t.Error("last child")
	}
	if ok, _ := posts[0].Matches("article#a1"); !ok {
		t.Error("matches")
	}
	if strings.TrimSpace(posts[0].Text()) != "firstr" {
		t.Errorf("text = %q", posts[0].Text())
	}
	if _, err := posts[0].QueryAll("div[["); err == nil {
		t.Error("bad selector accepted")
	}
}

func TestLayoutStub(t *testing.T) {
	d := parse(t, WithDefaultRect(dom.Rect{Width: 500, Height: 100}))
	a1 := byID(t, d, "a1")
	if r, _ := a1.Rect(); r.Width != 500 || r.Height != 100 {
		t.Errorf("default rect = %+v", r)
	}
	for _, id := range []string{"a2", "a3"} {
		if r, _ := byID(t, d, id).Rect(); r.Height != 0 {
			t.Errorf("%s hidden but rect = %+v", id, r)
		}
	}
	if err := d.SetRect(a1, dom.Rect{Y: 900, Width: 10, Height: 10}); err != nil {
		t.Fatal(err)
	}
	if r, _ := a1.Rect(); r.Y != 900 {
		t.Errorf("explicit rect = %+v", r)
	}

	detached, _ := d.CreateElement("div")
	if r, _ := detached.Rect(); r.Height != 0 || detached.Connected() {
		t.Error("detached element has a box")
	}

	other := parse(t)
	if err := d.SetRect(byID(t, other, "a1"), dom.Rect{}); !errors.Is(err, ErrForeignElement) {
		t.Errorf("foreign element err = %v", err)
	}
}

func TestMutationsAndFeed(t *testing.T) {
	d := parse(t)
	feed := byID(t, d, "feed")
	sub, err := d.Observe(feed, "article")
	if err != nil {
		t.Fatal(err)
	}

	frag, err := d.Fragment(`<article id="a4"><p>fourth</p></article>`)
	if err != nil || len(frag) != 1 {
		t.Fatalf("fragment = %d, %v", len(frag), err)
	}
	if err := feed.AppendChild(frag[0]); err != nil {
		t.Fatal(err)
	}
	recs := <-sub.C()
	if len(recs) != 1 || recs[0].Type != dom.MutationChildList || len(recs[0].Added) != 1 {
		t.Fatalf("records = %+v", recs)
	}
	if recs[0].Added[0].Key() != frag[0].Key() {
		t.Error("added element key")
	}

	if err := frag[0].SetAttr("data-x", "1"); err != nil {
		t.Fatal(err)
	}
	if recs := <-sub.C(); recs[0].Type != dom.MutationAttributes || recs[0].Name != "data-x" {
		t.Errorf("attr record = %+v", recs)
	}

	if err := frag[0].Remove(); err != nil {
		t.Fatal(err)
	}
	if recs := <-sub.C(); len(recs[0].Removed) != 1 {
		t.Errorf("remove record = %+v", recs)
	}
	if err := frag[0].Remove(); !errors.Is(err, ErrDetached) {
		t.Errorf("second remove err = %v", err)
	}

	sub.Stop()
	sub.Stop()
	if _, ok := <-sub.C(); ok {
		t.Error("channel open after Stop")
	}
	// No panic once stopped.
	byID(t, d, "a1").SetAttr("data-y", "1")
}

func TestFeedOverflow(t *testing.T) {
	d := parse(t, WithFeedBuffer(1))
	a1 := byID(t, d, "a1")
	sub, err := d.Observe(d.Body(), "article")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Stop()

	a1.SetAttr("data-n", "1")
	a1.SetAttr("data-n", "2") // dropped
	<-sub.C()
	a1.SetAttr("data-n", "3")
	recs := <-sub.C()
	if len(recs) != 2 || recs[0].Type != dom.MutationOverflow {
		t.Fatalf("records = %+v", recs)
	}
}

func TestClickActivation(t *testing.T) {
	d := parse(t)
	a1 := byID(t, d, "a1")
	ctrl, _ := d.CreateElement("button")
	ctrl.SetAttr("data-postlink-control", "")
	inner, _ := d.CreateElement("span")
	ctrl.AppendChild(inner)
	a1.AppendChild(ctrl)

	if d.Click(inner) {
		t.Error("click handled without a handler")
	}
	var got dom.Element
	d.OnActivate(func(c dom.Element) { got = c })
	if !d.Click(inner) || got == nil || got.Key() != ctrl.Key() {
		t.Fatalf("activation = %v", got)
	}
	if d.Click(a1) {
		t.Error("click outside a control handled")
	}
}

func TestHTMLRender(t *testing.T) {
	d := parse(t)
	byID(t, d, "a1").SetAttr("data-postlink-processed", "true")
	out, err := d.HTML()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `data-postlink-processed="true"`) {
		t.Error("attribute not rendered")
	}
	el, err := byID(t, d, "a1").(*Element).OuterHTML()
	if err != nil || !strings.HasPrefix(el, `<article id="a1"`) {
		t.Errorf("outer = %q, %v", el, err)
	}
}
