package identity

import (
	"strings"
	"testing"

	"github.com/hazyhaar/postlink/dom"
	"github.com/hazyhaar/postlink/dom/memdom"
	"github.com/hazyhaar/postlink/internal/fixture"
	"github.com/hazyhaar/postlink/platform"
)

func firstArticle(t *testing.T, page, docURL string) dom.Element {
	t.Helper()
	doc, err := memdom.ParseString(page, memdom.WithURL(docURL))
	if err != nil {
		t.Fatal(err)
	}
	els, err := doc.Root().QueryAll("article")
	if err != nil || len(els) == 0 {
		t.Fatalf("no article: %v", err)
	}
	return els[0]
}

func cfg(t *testing.T, id platform.ID) *platform.Config {
	t.Helper()
	c, err := platform.DefaultSet().Get(id)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestExtract_TwitterTimeLink(t *testing.T) {
	post := firstArticle(t, fixture.TwitterPage(fixture.TwitterPost("user", "123456789")), fixture.TwitterURL)
	id, err := NewExtractor(fixture.TwitterURL).Extract(post, cfg(t, platform.Twitter))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(id.Key, "123456789") {
		t.Errorf("Key = %q", id.Key)
	}
	if id.URL != "https://x.com/user/status/123456789" {
		t.Errorf("URL = %q", id.URL)
	}
}

func TestExtract_TwitterStrategies(t *testing.T) {
	tests := []struct {
		name string
		post string
		want string
	}{
		{
			"status link without time",
			`<article><a href="/bob">bob</a><a href="https://twitter.com/bob/status/42">link</a></article>`,
			"twitter:42",
		},
		{
			"time link wins over earlier status link",
			`<article><a href="/bob/status/1">quoted</a><a href="/bob/status/2"><time>1h</time></a></article>`,
			"twitter:2",
		},
		{
			"data attribute",
			`<article><div data-permalink="/carol/status/77">x</div></article>`,
			"twitter:77",
		},
		{
			"query and fragment preserved",
			`<article><a href="/dan/status/5?ref=x#y"><time>1h</time></a></article>`,
			"twitter:5",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			post := firstArticle(t, fixture.TwitterPage(tt.post), fixture.TwitterURL)
			id, err := NewExtractor(fixture.TwitterURL).Extract(post, cfg(t, platform.Twitter))
			if err != nil {
				t.Fatal(err)
			}
			if id.Key != tt.want {
				t.Errorf("Key = %q, want %q", id.Key, tt.want)
			}
		})
	}
}

func TestExtract_KeepsQueryAndFragment(t *testing.T) {
	post := firstArticle(t, fixture.TwitterPage(
		`<article><a href="/dan/status/5?ref=x#y"><time>1h</time></a></article>`), fixture.TwitterURL)
	id, _ := NewExtractor(fixture.TwitterURL).Extract(post, cfg(t, platform.Twitter))
	if id.URL != "https://x.com/dan/status/5?ref=x#y" {
		t.Errorf("URL = %q", id.URL)
	}
}

func TestExtract_Rejects(t *testing.T) {
	tests := []struct {
		name string
		post string
	}{
		{"no links", `<article><p>just text</p></article>`},
		{"foreign host", `<article><a href="https://evil.example/a/status/1"><time>1h</time></a></article>`},
		{"http scheme", `<article><a href="http://x.com/a/status/1"><time>1h</time></a></article>`},
		{"sub path", `<article><a href="/a/status/1/photo/1"><time>1h</time></a></article>`},
		{"non numeric", `<article><a href="/a/status/abc"><time>1h</time></a></article>`},
		{"protocol relative", `<article><a href="//evil.example/a/status/1"><time>1h</time></a></article>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			post := firstArticle(t, fixture.TwitterPage(tt.post), fixture.TwitterURL)
			id, err := NewExtractor(fixture.TwitterURL).Extract(post, cfg(t, platform.Twitter))
			if err != nil {
				t.Fatal(err)
			}
			if !id.Zero() {
				t.Errorf("got %+v, want zero identity", id)
			}
		})
	}
}

func TestExtract_RelativeWithoutBase(t *testing.T) {
	post := firstArticle(t, fixture.TwitterPage(fixture.TwitterPost("user", "1")), "")
	id, err := NewExtractor("").Extract(post, cfg(t, platform.Twitter))
	if err != nil {
		t.Fatal(err)
	}
	if !id.Zero() {
		t.Errorf("relative link accepted without base: %+v", id)
	}
}

func TestExtract_Instagram(t *testing.T) {
	tests := []struct {
		name string
		post string
		want string
	}{
		{"fixture", fixture.InstagramPost("bob", "AbC_1"), "instagram:AbC_1"},
		{"reel in body", `<article><header><a href="/bob/">bob</a></header><a href="/reel/R3el/">watch</a></article>`, "instagram:R3el"},
		{"tv absolute", `<article><a href="https://instagram.com/tv/T1/">tv</a></article>`, "instagram:T1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			post := firstArticle(t, fixture.InstagramPage(tt.post), fixture.InstagramURL)
			id, err := NewExtractor(fixture.InstagramURL).Extract(post, cfg(t, platform.Instagram))
			if err != nil {
				t.Fatal(err)
			}
			if id.Key != tt.want {
				t.Errorf("Key = %q, want %q", id.Key, tt.want)
			}
		})
	}
}

func TestExtract_NilInput(t *testing.T) {
	id, err := NewExtractor(fixture.TwitterURL).Extract(nil, cfg(t, platform.Twitter))
	if err != nil || !id.Zero() {
		t.Fatalf("Extract(nil) = %+v, %v", id, err)
	}
}
