package amp

import (
	"net/url"
	"strings"

	"github.com/disneyvacation/wikihow-link-bot/internal/linkfix"
	"golang.org/x/net/html"
)

// Strategy inspects a fetched page and proposes the next address to try.
// final is true when candidate is a non-AMP address different from the page
// itself, meaning resolution is done.
type Strategy struct {
	Name string
	Find func(doc *html.Node, page *url.URL) (candidate string, final bool)
}

// DefaultStrategies returns the built-in strategies in the order they are tried
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "rel-canonical", Find: findRelCanonical},
		{Name: "amp-can-url", Find: findAMPCanURL},
		{Name: "redirect-notice", Find: findRedirectNotice},
	}
}

// markerAttributes are attributes some AMP producers put on the element
// linking back to the canonical page.
var markerAttributes = []string{"amp-can-url", "data-amp-can-url", "data-amp-canonical-url"}

// redirectPhrases identify interstitial pages that forward to the real article
var redirectPhrases = []string{
	"redirect notice",
	"you are being redirected",
	"is trying to send you to",
	"you will be redirected",
}

func findRelCanonical(doc *html.Node, page *url.URL) (string, bool) {
	node := findNode(doc, func(n *html.Node) bool {
		if n.Data != "link" && n.Data != "a" {
			return false
		}
		for _, rel := range strings.Fields(strings.ToLower(attr(n, "rel"))) {
			if rel == "canonical" {
				return attr(n, "href") != ""
			}
		}
		return false
	})
	if node == nil {
		return "", false
	}
	return judge(attr(node, "href"), page)
}

func findAMPCanURL(doc *html.Node, page *url.URL) (string, bool) {
	var target string
	findNode(doc, func(n *html.Node) bool {
		for _, marker := range markerAttributes {
			value, ok := lookupAttr(n, marker)
			if !ok && !hasClass(n, marker) {
				continue
			}
			if href := attr(n, "href"); href != "" {
				target = href
			} else {
				target = value
			}
			return target != ""
		}
		return false
	})
	if target == "" {
		return "", false
	}
	return judge(target, page)
}

func findRedirectNotice(doc *html.Node, page *url.URL) (string, bool) {
	body := findNode(doc, func(n *html.Node) bool { return n.Data == "body" })
	if body == nil {
		body = doc
	}

	text := strings.ToLower(textContent(body))
	matched := false
	for _, phrase := range redirectPhrases {
		if strings.Contains(text, phrase) {
			matched = true
			break
		}
	}
	if !matched {
		return "", false
	}

	anchor := findNode(body, func(n *html.Node) bool {
		return n.Data == "a" && attr(n, "href") != ""
	})
	if anchor == nil {
		return "", false
	}
	return judge(attr(anchor, "href"), page)
}

// judge resolves href against the page address and reports whether the
// result ends resolution.
func judge(href string, page *url.URL) (string, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	candidate := page.ResolveReference(ref)
	if candidate.Scheme != "http" && candidate.Scheme != "https" {
		return "", false
	}

	resolved := candidate.String()
	if resolved == page.String() {
		return "", false
	}
	return resolved, !linkfix.IsAMP(resolved)
}

func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func attr(n *html.Node, key string) string {
	value, _ := lookupAttr(n, key)
	return strings.TrimSpace(value)
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return ""
	}

	var text strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		text.WriteString(textContent(c))
		text.WriteString(" ")
	}
	return text.String()
}
