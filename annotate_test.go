package postlink

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hazyhaar/postlink/internal/fixture"
	"github.com/hazyhaar/postlink/platform"
)

func TestAnnotateHTML_Twitter(t *testing.T) {
	page := fixture.TwitterPage(
		fixture.TwitterPost("alice", "1"),
		fixture.TwitterPost("bob", "2"),
		fixture.TwitterPost("carol", "3"),
	)
	out, res, err := AnnotateHTML(context.Background(), page, AnnotateOptions{
		BaseURL: fixture.TwitterURL,
		Target:  "alt.example",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 3 || res.Succeeded != 3 {
		t.Fatalf("result = %+v", res)
	}
	for _, want := range []string{
		`data-postlink-url="https://alt.example/alice/status/1"`,
		`data-postlink-url="https://alt.example/carol/status/3"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %s", want)
		}
	}
}

func TestAnnotateHTML_InstagramDefaultTarget(t *testing.T) {
	page := fixture.InstagramPage(fixture.InstagramPost("dora", "Cabc123"))
	out, res, err := AnnotateHTML(context.Background(), page, AnnotateOptions{
		BaseURL:  fixture.InstagramURL,
		Platform: platform.Instagram,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Succeeded != 1 {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(out, `https://ddinstagram.com/p/Cabc123/`) {
		t.Errorf("output lacks rewritten link")
	}
}

func TestAnnotateHTML_Errors(t *testing.T) {
	ctx := context.Background()
	if _, _, err := AnnotateHTML(ctx, "<html></html>", AnnotateOptions{BaseURL: "https://example.com/"}); !errors.Is(err, platform.ErrUnknown) {
		t.Errorf("unknown host: %v", err)
	}
	if _, _, err := AnnotateHTML(ctx, "<html></html>", AnnotateOptions{}); !errors.Is(err, platform.ErrUnknown) {
		t.Errorf("no platform: %v", err)
	}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, _, err := AnnotateHTML(cancelled, "<html></html>", AnnotateOptions{Platform: platform.Twitter}); err == nil {
		t.Error("cancelled context accepted")
	}
}

func TestAnnotateHTML_NoPosts(t *testing.T) {
	_, res, err := AnnotateHTML(context.Background(), fixture.TwitterPage(), AnnotateOptions{Platform: platform.Twitter})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 0 {
		t.Fatalf("result = %+v", res)
	}
}
