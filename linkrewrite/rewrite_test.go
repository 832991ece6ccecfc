package linkrewrite

import (
	"errors"
	"net/url"
	"testing"
)

func TestTransformURL(t *testing.T) {
	tests := []struct {
		in, target, want string
	}{
		{"https://x.com/user/status/123456789", "alt.example", "https://alt.example/user/status/123456789"},
		{"https://x.com/user/status/123456789?ref=x#y", "alt.example", "https://alt.example/user/status/123456789?ref=x#y"},
		{"https://www.instagram.com/p/AbC_1-2/?img_index=2", "ddinstagram.com", "https://ddinstagram.com/p/AbC_1-2/?img_index=2"},
		{"https://x.com:8443/a?b=1", "alt.example", "https://alt.example:8443/a?b=1"},
		{"https://me:pw@x.com/a", "alt.example", "https://me:pw@alt.example/a"},
		{"http://x.com", "alt.example", "http://alt.example"},
		{"https://x.com/a%2Fb?q=a%20b&r=%E2%9C%93#frag%20x", "alt.example", "https://alt.example/a%2Fb?q=a%20b&r=%E2%9C%93#frag%20x"},
		{"https://[::1]:8080/p", "alt.example", "https://alt.example:8080/p"},
	}
	for _, tt := range tests {
		got, err := TransformURL(tt.in, tt.target)
		if err != nil {
			t.Errorf("TransformURL(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("TransformURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTransformURL_PreservesParts(t *testing.T) {
	got, err := TransformURL("https://x.com/user/status/123456789?ref=x#y", "alt.example")
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(got)
	if err != nil {
		t.Fatal(err)
	}
	if u.Hostname() != "alt.example" {
		t.Errorf("host = %q", u.Hostname())
	}
	if u.Path != "/user/status/123456789" {
		t.Errorf("path = %q", u.Path)
	}
	if u.RawQuery != "ref=x" {
		t.Errorf("query = %q", u.RawQuery)
	}
	if u.Fragment != "y" {
		t.Errorf("fragment = %q", u.Fragment)
	}
}

func TestTransformURL_Errors(t *testing.T) {
	tests := []struct {
		in, target string
		want       error
	}{
		{"/user/status/1", "alt.example", ErrInvalidURL},
		{"not a url", "alt.example", ErrInvalidURL},
		{"https://x.com/%zz", "alt.example", ErrInvalidURL},
		{"https://x.com/a", "", ErrInvalidHostname},
		{"https://x.com/a", "https://alt.example", ErrInvalidHostname},
		{"https://x.com/a", "alt.example:80", ErrInvalidHostname},
		{"https://x.com/a", "alt .example", ErrInvalidHostname},
	}
	for _, tt := range tests {
		_, err := TransformURL(tt.in, tt.target)
		if !errors.Is(err, tt.want) {
			t.Errorf("TransformURL(%q, %q) err = %v, want %v", tt.in, tt.target, err, tt.want)
		}
	}
}

func TestValidHostname(t *testing.T) {
	for _, h := range []string{"alt.example", "fxtwitter.com", "a", "x-y.z9.com"} {
		if !ValidHostname(h) {
			t.Errorf("ValidHostname(%q) = false", h)
		}
	}
	for _, h := range []string{"", "-a.com", "a-.com", "a..com", "a.com/", "a_b.com"} {
		if ValidHostname(h) {
			t.Errorf("ValidHostname(%q) = true", h)
		}
	}
}
