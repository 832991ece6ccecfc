// Package fixture builds timeline markup shaped like the live sites, for
// tests and examples.
package fixture

import (
	"fmt"
	"strings"
)

const (
	TwitterURL   = "https://x.com/home"
	InstagramURL = "https://www.instagram.com/"
)

// TwitterPost renders one status article with a timestamp link, text and
// an action bar.
func TwitterPost(user, id string) string {
	return fmt.Sprintf(`<article data-testid="tweet" role="article" tabindex="0">
  <div class="header">
    <a href="/%[1]s"><span>@%[1]s</span></a>
    <a href="/%[1]s/status/%[2]s"><time datetime="2024-01-01T00:00:00Z">2h</time></a>
  </div>
  <div lang="en">post %[2]s by %[1]s</div>
  <div role="group" id="actions-%[2]s">
    <button role="button" data-testid="reply">1</button>
    <button role="button" data-testid="retweet">2</button>
    <button role="button" data-testid="like">3</button>
    <button role="button" aria-label="Share">4</button>
  </div>
</article>`, user, id)
}

// TwitterCell wraps a post the way the timeline virtualizer does.
func TwitterCell(post string) string {
	return `<div data-testid="cellInnerDiv">` + post + `</div>`
}

// TwitterPage renders a timeline page holding posts.
func TwitterPage(posts ...string) string {
	cells := make([]string, len(posts))
	for i, p := range posts {
		cells[i] = TwitterCell(p)
	}
	return `<!DOCTYPE html><html><head><title>Home / X</title></head><body>` +
		`<main role="main"><section aria-label="Timeline" id="timeline">` +
		strings.Join(cells, "\n") +
		`</section></main></body></html>`
}

// InstagramPost renders one media article.
func InstagramPost(user, shortcode string) string {
	return fmt.Sprintf(`<article role="presentation">
  <header>
    <a href="/%[1]s/">%[1]s</a>
    <a href="/p/%[2]s/"><time datetime="2024-01-01T00:00:00Z">3h</time></a>
  </header>
  <img src="https://cdn.example/%[2]s.jpg" alt="photo by %[1]s">
  <section>
    <span><div role="button"><svg aria-label="Like"></svg></div></span>
    <span><div role="button"><svg aria-label="Comment"></svg></div></span>
    <span><div role="button"><svg aria-label="Share Post"></svg></div></span>
  </section>
  <div>caption for %[2]s</div>
</article>`, user, shortcode)
}

// InstagramPage renders a feed page holding posts.
func InstagramPage(posts ...string) string {
	return `<!DOCTYPE html><html><head><title>Instagram</title></head><body>` +
		`<main role="main"><div id="feed">` +
		strings.Join(posts, "\n") +
		`</div></main></body></html>`
}
