package roddom

import (
	"strings"
	"testing"
)

func TestParsePayload(t *testing.T) {
	cases := []struct {
		raw  string
		kind string
		ok   bool
	}{
		{`{"kind":"mutation","sub":"s1","count":3}`, "mutation", true},
		{`{"kind":"activate"}`, "activate", true},
		{`{"kind":"mutation"}`, "", false},
		{`{"kind":"reload"}`, "", false},
		{`not json`, "", false},
	}
	for _, c := range cases {
		p, err := parsePayload(c.raw)
		if (err == nil) != c.ok {
			t.Errorf("parsePayload(%s) error = %v, want ok=%v", c.raw, err, c.ok)
			continue
		}
		if c.ok && p.Kind != c.kind {
			t.Errorf("parsePayload(%s).Kind = %q", c.raw, p.Kind)
		}
	}
}

func TestScriptsEmbedded(t *testing.T) {
	if !strings.Contains(observeJS, "MutationObserver") || !strings.Contains(observeJS, attrPending) {
		t.Error("observe.js missing observer or pending marker")
	}
	if !strings.Contains(activateJS, attrActivated) {
		t.Error("activate.js missing activation marker")
	}
}
