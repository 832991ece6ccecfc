package platform

import "regexp"

var twitter = &Config{
	ID:      Twitter,
	PostTag: "article",
	PostSelectors: []string{
		`article[data-testid="tweet"]`,
		`article[role="article"][tabindex]`,
	},
	FallbackPostSelectors: []string{
		`div[data-testid="cellInnerDiv"] article`,
		`article`,
	},
	PostMarkers: []string{`a[href]`, `[lang]`},

	InjectionSelectors: []string{
		`div[role="group"][id]`,
		`div[role="group"]`,
	},
	ActionMarkers: []string{
		`[data-testid="reply"]`,
		`[data-testid="retweet"]`,
		`[data-testid="unretweet"]`,
		`[data-testid="like"]`,
		`[data-testid="unlike"]`,
	},
	InteractiveSelector: `[role="button"], button`,
	MinInteractive:      3,
	ContainerSelector:   `div[role="group"]`,

	Hostnames: []string{
		"twitter.com", "www.twitter.com", "mobile.twitter.com",
		"x.com", "www.x.com", "mobile.x.com",
	},
	PathPattern: regexp.MustCompile(`^/([A-Za-z0-9_]{1,15})/status/([0-9]+)/?$`),
	IdentityStrategies: []Strategy{
		{Kind: StrategyLinkAround, Selector: `time`},
		{Kind: StrategyLink, Selector: `a[href*="/status/"]`},
		{Kind: StrategyDataAttr},
	},

	DefaultTarget: "fxtwitter.com",
	Label:         "Copy link",
}

var instagram = &Config{
	ID:      Instagram,
	PostTag: "article",
	PostSelectors: []string{
		`main article`,
		`article[role="presentation"]`,
	},
	FallbackPostSelectors: []string{
		`div[role="dialog"] article`,
		`article`,
	},
	PostMarkers: []string{`img`, `a[href]`},

	InjectionSelectors: []string{
		`section`,
		`div[role="group"]`,
	},
	ActionMarkers: []string{
		`svg[aria-label="Like"]`,
		`svg[aria-label="Unlike"]`,
		`svg[aria-label="Comment"]`,
		`span[aria-label="Like"]`,
		`span[aria-label="Comment"]`,
	},
	InteractiveSelector: `[role="button"], button`,
	MinInteractive:      3,
	ContainerSelector:   `section, div`,

	Hostnames:   []string{"instagram.com", "www.instagram.com"},
	PathPattern: regexp.MustCompile(`^/(p|reel|tv)/([A-Za-z0-9_-]+)/?$`),
	IdentityStrategies: []Strategy{
		{Kind: StrategyLink, Selector: `header a[href]`},
		{Kind: StrategyLink, Selector: `a[href]`},
		{Kind: StrategyLinkAround, Selector: `time`},
	},

	DefaultTarget: "ddinstagram.com",
	Label:         "Copy link",
}

// Defaults returns fresh copies of the built-in platform records.
func Defaults() map[ID]*Config {
	return map[ID]*Config{
		Twitter:   twitter.Clone(),
		Instagram: instagram.Clone(),
	}
}
