package pipeline

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/hazyhaar/postlink/dom"
	"github.com/hazyhaar/postlink/dom/memdom"
	"github.com/hazyhaar/postlink/internal/control"
	"github.com/hazyhaar/postlink/internal/fixture"
	"github.com/hazyhaar/postlink/platform"
)

const target = "alt.example"

func setup(t *testing.T, posts ...string) (*memdom.Document, *Pipeline) {
	t.Helper()
	doc, err := memdom.ParseString(fixture.TwitterPage(posts...), memdom.WithURL(fixture.TwitterURL))
	if err != nil {
		t.Fatal(err)
	}
	return doc, New(doc, Config{})
}

func articles(t *testing.T, doc *memdom.Document) []dom.Element {
	t.Helper()
	els, err := doc.Root().QueryAll("article")
	if err != nil {
		t.Fatal(err)
	}
	return els
}

func controls(t *testing.T, root dom.Element) []dom.Element {
	t.Helper()
	els, err := root.QueryAll("[" + control.AttrControl + "]")
	if err != nil {
		t.Fatal(err)
	}
	return els
}

func TestProcessPost_Injects(t *testing.T) {
	doc, p := setup(t, fixture.TwitterPost("user", "123456789"))
	post := articles(t, doc)[0]

	res := p.ProcessPost(post, platform.Twitter, target)
	if !res.Success() {
		t.Fatalf("result = %+v (%s)", res, res.Error())
	}
	if !strings.Contains(res.PostKey, "123456789") {
		t.Errorf("PostKey = %q", res.PostKey)
	}
	if res.URL != "https://alt.example/user/status/123456789" {
		t.Errorf("URL = %q", res.URL)
	}
	if n := len(controls(t, post)); n != 1 {
		t.Fatalf("%d controls, want 1", n)
	}
}

func TestProcessPost_Idempotent(t *testing.T) {
	doc, p := setup(t, fixture.TwitterPost("user", "1"))
	post := articles(t, doc)[0]

	for i := range 5 {
		res := p.ProcessPost(post, platform.Twitter, target)
		if i == 0 && !res.Success() {
			t.Fatalf("first call: %+v", res)
		}
		if i > 0 && res.Reason != ReasonAlreadyProcessed {
			t.Fatalf("call %d: %+v", i, res)
		}
	}
	if n := len(controls(t, post)); n != 1 {
		t.Fatalf("%d controls after repeated calls, want 1", n)
	}
}

func TestProcessPost_SelfHealsAfterControlLoss(t *testing.T) {
	doc, p := setup(t, fixture.TwitterPost("user", "1"))
	post := articles(t, doc)[0]
	if res := p.ProcessPost(post, platform.Twitter, target); !res.Success() {
		t.Fatal(res)
	}

	// The host page re-renders the action bar and drops our control.
	for _, c := range controls(t, post) {
		if err := c.Remove(); err != nil {
			t.Fatal(err)
		}
	}
	cfg, _ := platform.DefaultSet().Get(platform.Twitter)
	if p.Registry(cfg).IsProcessed(post, true) {
		t.Fatal("registry claims a post without control is processed")
	}
	if res := p.ProcessPost(post, platform.Twitter, target); !res.Success() {
		t.Fatalf("re-injection: %+v", res)
	}
	if n := len(controls(t, post)); n != 1 {
		t.Fatalf("%d controls, want 1", n)
	}
}

func TestProcessBatch_VirtualScrollReplacement(t *testing.T) {
	doc, p := setup(t, fixture.TwitterPost("user", "42"))
	old := articles(t, doc)[0]
	if res := p.ProcessPost(old, platform.Twitter, target); !res.Success() {
		t.Fatal(res)
	}

	cell := old.Parent()
	if err := old.Remove(); err != nil {
		t.Fatal(err)
	}
	frag, err := doc.Fragment(fixture.TwitterPost("user", "42"))
	if err != nil {
		t.Fatal(err)
	}
	if err := cell.AppendChild(frag[0]); err != nil {
		t.Fatal(err)
	}

	br := p.ProcessBatch([]dom.Element{frag[0]}, platform.Twitter, target, BatchOptions{})
	if br.Succeeded != 1 {
		t.Fatalf("batch = %+v", br)
	}
	if n := len(controls(t, doc.Root())); n != 1 {
		t.Fatalf("%d controls on page, want exactly 1", n)
	}
}

func TestProcessPost_Degradation(t *testing.T) {
	doc, p := setup(t, fixture.TwitterPost("user", "1"))
	post := articles(t, doc)[0]
	var typedNil *memdom.Element

	tests := []struct {
		name     string
		el       dom.Element
		platform platform.ID
		target   string
		reason   Reason
	}{
		{"nil element", nil, platform.Twitter, target, ReasonInvalidElement},
		{"typed nil", typedNil, platform.Twitter, target, ReasonInvalidElement},
		{"unknown platform", post, "myspace", target, ReasonInvalidPlatform},
		{"bad hostname", post, platform.Twitter, "https://alt.example/", ReasonInvalidHostname},
		{"empty hostname", post, platform.Twitter, "", ReasonInvalidHostname},
		{"not a post", doc.Body(), platform.Twitter, target, ReasonInvalidElement},
		{"panicking backend", panicky{post}, platform.Twitter, target, ReasonUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.ProcessPost(tt.el, tt.platform, tt.target)
			if res.Success() || res.Reason != tt.reason {
				t.Fatalf("result = %+v, want reason %s", res, tt.reason)
			}
			if res.Failed() && res.Err == nil {
				t.Error("failure without error")
			}
			if !dom.IsNil(tt.el) && res.Element == nil {
				t.Error("result lost its element")
			}
		})
	}
}

func TestProcessPost_ZeroDimension(t *testing.T) {
	doc, p := setup(t, fixture.TwitterPost("user", "1"))
	post := articles(t, doc)[0]
	if err := doc.SetRect(post, dom.Rect{}); err != nil {
		t.Fatal(err)
	}
	if res := p.ProcessPost(post, platform.Twitter, target); res.Success() {
		t.Fatalf("zero-size post processed: %+v", res)
	}
}

// panicky is an element whose backend blows up on queries.
type panicky struct{ dom.Element }

func (panicky) QueryAll(string) ([]dom.Element, error) { panic("backend gone") }

// unlaid is an element whose layout lookup blows up.
type unlaid struct{ dom.Element }

func (unlaid) Rect() (dom.Rect, error) { panic("layout gone") }

// noViewport is a document whose viewport lookup blows up.
type noViewport struct{ dom.Document }

func (noViewport) Viewport() (dom.Rect, error) { panic("viewport gone") }

func TestProcessBatch_Degradation(t *testing.T) {
	doc, p := setup(t, fixture.TwitterPost("u", "1"), fixture.TwitterPost("u", "2"))
	els := articles(t, doc)

	br := p.ProcessBatch([]dom.Element{unlaid{els[0]}, els[1]}, platform.Twitter, target, BatchOptions{OnlyVisible: true})
	if br.Total != 2 || br.Failed != 1 || br.Succeeded != 1 || br.Reasons[ReasonUnexpected] != 1 {
		t.Fatalf("batch = %+v", br)
	}
	if r := br.Results[0]; r.Err == nil || r.Element == nil {
		t.Errorf("failed result = %+v", r)
	}

	doc2, _ := setup(t, fixture.TwitterPost("u", "3"))
	p2 := New(noViewport{doc2}, Config{})
	br = p2.ProcessBatch(articles(t, doc2), platform.Twitter, target, BatchOptions{OnlyVisible: true})
	if br.Succeeded != 1 {
		t.Fatalf("viewport failure should turn the filter off: %+v", br)
	}

	br = p.ProcessAllPosts(platform.Twitter, target, panicky{doc.Root()})
	if br.Total != 1 || br.Failed != 1 || br.Reasons[ReasonUnexpected] != 1 {
		t.Fatalf("all posts = %+v", br)
	}
	if br.Results[0].Err == nil {
		t.Error("failure without error")
	}
}

func TestProcessPost_ConcurrentIdempotent(t *testing.T) {
	for round := 0; round < 200; round++ {
		doc, p := setup(t, fixture.TwitterPost("u", "1"))
		post := articles(t, doc)[0]

		var wg sync.WaitGroup
		start := make(chan struct{})
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				p.ProcessPost(post, platform.Twitter, target)
			}()
		}
		close(start)
		wg.Wait()

		if n := len(controls(t, post)); n != 1 {
			t.Fatalf("round %d: %d controls, want 1", round, n)
		}
		if st := p.Stats(); st.Injected != 1 {
			t.Fatalf("round %d: injected = %d", round, st.Injected)
		}
	}
}

func TestProcessPost_NoURL(t *testing.T) {
	post := `<article data-testid="tweet"><div lang="en">no link here</div>
	  <div role="group"><button role="button">a</button><button role="button">b</button><button role="button">c</button></div></article>`
	doc, p := setup(t, post)
	el := articles(t, doc)[0]

	for i := range 3 {
		if res := p.ProcessPost(el, platform.Twitter, target); res.Reason != ReasonNoURLFound {
			t.Fatalf("attempt %d: %+v", i, res)
		}
	}
	if res := p.ProcessPost(el, platform.Twitter, target); res.Reason != ReasonRetryExhausted {
		t.Fatalf("after budget: %+v", res)
	}
	if !strings.Contains(fmt.Sprint(p.Stats().Reasons), "no_url_found") {
		t.Error("skip reason not counted")
	}
}

func TestProcessPost_NoInjectionPoint(t *testing.T) {
	post := `<article data-testid="tweet"><a href="/user/status/7"><time>1h</time></a><div lang="en">text</div></article>`
	doc, p := setup(t, post)
	res := p.ProcessPost(articles(t, doc)[0], platform.Twitter, target)
	if !res.Skipped() || res.Reason != ReasonNoInjectionPoint {
		t.Fatalf("result = %+v", res)
	}
}

func TestProcessAllPosts(t *testing.T) {
	var posts []string
	for i := range 4 {
		posts = append(posts, fixture.TwitterPost("u", fmt.Sprint(i+1)))
	}
	doc, p := setup(t, posts...)

	br := p.ProcessAllPosts(platform.Twitter, target, nil)
	if br.Total != 4 || br.Succeeded != 4 {
		t.Fatalf("first pass = %+v", br)
	}
	br = p.ProcessAllPosts(platform.Twitter, target, doc.Root())
	if br.Succeeded != 0 || br.Reasons[ReasonAlreadyProcessed] != 4 {
		t.Fatalf("second pass = %+v", br)
	}
	if n := len(controls(t, doc.Root())); n != 4 {
		t.Fatalf("%d controls, want 4", n)
	}

	st := p.Stats()
	if st.Injected != 4 || st.Batches != 2 || st.Processed != 8 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestProcessAllPosts_UnknownPlatform(t *testing.T) {
	_, p := setup(t, fixture.TwitterPost("u", "1"))
	br := p.ProcessAllPosts("myspace", target, nil)
	if br.Failed != 1 || br.Reasons[ReasonInvalidPlatform] != 1 {
		t.Fatalf("batch = %+v", br)
	}
}

func TestProcessBatch_OnlyVisible(t *testing.T) {
	doc, p := setup(t,
		fixture.TwitterPost("u", "1"),
		fixture.TwitterPost("u", "2"),
		fixture.TwitterPost("u", "3"),
	)
	els := articles(t, doc)
	doc.SetViewport(dom.Rect{Width: 1280, Height: 800})
	_ = doc.SetRect(els[0], dom.Rect{Y: 0, Width: 600, Height: 400})
	_ = doc.SetRect(els[1], dom.Rect{Y: 700, Width: 600, Height: 400}) // a quarter visible
	_ = doc.SetRect(els[2], dom.Rect{Y: 5000, Width: 600, Height: 400})

	br := p.ProcessBatch(els, platform.Twitter, target, BatchOptions{OnlyVisible: true})
	if br.Succeeded != 2 || br.Reasons[ReasonNotVisible] != 1 {
		t.Fatalf("any-overlap batch = %+v", br)
	}

	doc2, p2 := setup(t, fixture.TwitterPost("u", "1"), fixture.TwitterPost("u", "2"))
	els2 := articles(t, doc2)
	_ = doc2.SetRect(els2[0], dom.Rect{Y: 0, Width: 600, Height: 400})
	_ = doc2.SetRect(els2[1], dom.Rect{Y: 700, Width: 600, Height: 400})
	br = p2.ProcessBatch(els2, platform.Twitter, target, BatchOptions{OnlyVisible: true, Threshold: 0.5})
	if br.Succeeded != 1 || br.Reasons[ReasonNotVisible] != 1 {
		t.Fatalf("threshold batch = %+v", br)
	}
}

func TestProcessBatch_MixedInput(t *testing.T) {
	doc, p := setup(t, fixture.TwitterPost("u", "1"))
	els := append(articles(t, doc), nil, doc.Body())
	br := p.ProcessBatch(els, platform.Twitter, target, BatchOptions{OnlyVisible: true})
	if br.Total != 3 || br.Succeeded != 1 || br.Failed != 2 {
		t.Fatalf("batch = %+v", br)
	}
}

func TestIdentityFidelity(t *testing.T) {
	post := `<article data-testid="tweet"><a href="/user/status/123456789?ref=x#y"><time>1h</time></a>
	  <div lang="en">hello</div>
	  <div role="group" id="g"><button role="button">a</button><button role="button">b</button><button role="button">c</button></div></article>`
	doc, p := setup(t, post)
	res := p.ProcessPost(articles(t, doc)[0], platform.Twitter, target)
	if !res.Success() {
		t.Fatal(res)
	}
	u, err := url.Parse(res.URL)
	if err != nil {
		t.Fatal(err)
	}
	if u.Hostname() != target || u.Path != "/user/status/123456789" || u.RawQuery != "ref=x" || u.Fragment != "y" {
		t.Fatalf("URL = %q", res.URL)
	}
}

func TestClear(t *testing.T) {
	doc, p := setup(t, fixture.TwitterPost("u", "1"))
	post := articles(t, doc)[0]
	p.ProcessPost(post, platform.Twitter, target)
	cfg, _ := platform.DefaultSet().Get(platform.Twitter)
	p.Clear(platform.Twitter)
	if e, d := p.Registry(cfg).Len(); e != 0 || d != 0 {
		t.Fatalf("registry not cleared: %d, %d", e, d)
	}
	// The control is still on the page: presence wins.
	if res := p.ProcessPost(post, platform.Twitter, target); res.Reason != ReasonAlreadyProcessed {
		t.Fatalf("result = %+v", res)
	}
}
