package linkfix

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/purell"
	"golang.org/x/net/html"
)

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// ampTokens are substrings that mark a link as an AMP variant
var ampTokens = []string{
	"/amp", "amp/", ".amp", "amp.", "?amp",
	"amp?", "=amp", "amp=", "&amp", "amp&",
}

// mobileLabels are host labels used by sites for their mobile mirror
var mobileLabels = map[string]bool{
	"m":      true,
	"mobile": true,
}

// Link is the structured form of a user supplied URL
type Link struct {
	Scheme   string
	Host     string
	Path     string
	RawQuery string
}

// ParseLink parses raw into its components. The host is lower-cased and
// stripped of default ports.
func ParseLink(raw string) (Link, error) {
	clean, err := purell.NormalizeURLString(raw, purell.FlagLowercaseScheme|purell.FlagLowercaseHost|purell.FlagRemoveDefaultPort)
	if err != nil {
		return Link{}, fmt.Errorf("failed to normalize %q: %w", raw, err)
	}

	u, err := url.Parse(clean)
	if err != nil {
		return Link{}, fmt.Errorf("failed to parse %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Link{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return Link{}, fmt.Errorf("missing host in %q", raw)
	}

	return Link{
		Scheme:   u.Scheme,
		Host:     u.Hostname(),
		Path:     u.EscapedPath(),
		RawQuery: u.RawQuery,
	}, nil
}

// TargetHost returns the host the link ultimately points at. AMP cache
// links (www.google.com/amp/s/<host>/..., <x>.cdn.ampproject.org/c/s/<host>/...)
// carry the publisher host in their path.
func (l Link) TargetHost() string {
	isGoogle := strings.HasPrefix(l.Host, "google.") || strings.Contains(l.Host, ".google.")
	isAMPCache := strings.HasSuffix(l.Host, "cdn.ampproject.org")
	if !isGoogle && !isAMPCache {
		return l.Host
	}

	for _, segment := range strings.Split(strings.Trim(l.Path, "/"), "/") {
		switch segment {
		case "amp", "c", "v", "i", "s", "r":
			continue
		}
		if strings.Contains(segment, ".") {
			return strings.ToLower(segment)
		}
		break
	}
	return l.Host
}

// trailingPunct is sentence punctuation that ends a URL written in prose
const trailingPunct = ".,;:!?"

// ExtractLink returns the first URL embedded in text with any trailing
// markdown closing syntax and sentence punctuation removed, or "" when text
// holds no URL.
func ExtractLink(text string) string {
	link := urlPattern.FindString(text)
	if link == "" {
		return ""
	}
	link = strings.TrimRight(link, trailingPunct)

	// "[label](url)" where the label is itself a URL
	if idx := strings.Index(link, "]("); idx >= 0 {
		link = link[:idx]
	}

	// Closing paren of "[label](url)" or "(url)", kept when balanced so that
	// paths like /wiki/Foo_(bar) survive.
	if strings.Count(link, ")") > strings.Count(link, "(") {
		link = link[:strings.LastIndex(link, ")")]
	}

	return strings.TrimRight(link, "*>"+trailingPunct)
}

// DecodeText undoes the URL and HTML escaping Reddit applies to comment
// bodies. A '%' that does not start a valid escape is kept as is.
func DecodeText(text string) string {
	return html.UnescapeString(unescapePercent(text))
}

func unescapePercent(text string) string {
	if !strings.Contains(text, "%") {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		if text[i] == '%' && i+2 < len(text) && isHex(text[i+1]) && isHex(text[i+2]) {
			b.WriteByte(unhex(text[i+1])<<4 | unhex(text[i+2]))
			i += 2
			continue
		}
		b.WriteByte(text[i])
	}
	return b.String()
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case c >= 'a':
		return c - 'a' + 10
	case c >= 'A':
		return c - 'A' + 10
	}
	return c - '0'
}

// IsAMP reports whether link looks like an AMP variant of a page
func IsAMP(link string) bool {
	link = strings.ToLower(link)
	if !strings.HasPrefix(link, "https://") && !strings.HasPrefix(link, "http://") {
		return false
	}

	for _, token := range ampTokens {
		if strings.Contains(link, token) {
			return true
		}
	}
	return false
}

// desktopHost returns the desktop form of a mobile host and true, or host
// and false when host carries no mobile marker.
func desktopHost(host string) (string, bool) {
	labels := strings.Split(host, ".")
	if len(labels) < 3 {
		return host, false
	}

	var kept []string
	found := false
	// the registrable domain (last two labels) is never a marker
	for i, label := range labels {
		if !found && i < len(labels)-2 && mobileLabels[label] {
			found = true
			continue
		}
		kept = append(kept, label)
	}
	if !found {
		return host, false
	}

	if len(kept) == 2 {
		kept = append([]string{"www"}, kept...)
	}
	return strings.Join(kept, "."), true
}

// rewriteHost replaces the host of link with newHost, leaving the rest of
// the link byte-for-byte intact.
func rewriteHost(link, oldHost, newHost string) string {
	idx := strings.Index(strings.ToLower(link), "//"+oldHost)
	if idx < 0 {
		return link
	}
	start := idx + 2
	return link[:start] + newHost + link[start+len(oldHost):]
}

// Policy decides which domains count as a valid citation
type Policy struct {
	domains []string
}

// NewPolicy creates a citation policy for the given domains
func NewPolicy(domains []string) *Policy {
	p := &Policy{}
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		d = strings.TrimPrefix(strings.TrimPrefix(d, "."), "www.")
		if d != "" {
			p.domains = append(p.domains, d)
		}
	}
	return p
}

// Domains returns the normalized domain list
func (p *Policy) Domains() []string {
	return p.domains
}

// Matches reports whether host is one of the citation domains or a
// subdomain of one.
func (p *Policy) Matches(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for _, d := range p.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// ContainsCitation reports whether the first link in text points at a
// citation domain. text may still be URL or HTML escaped.
func (p *Policy) ContainsCitation(text string) bool {
	raw := ExtractLink(DecodeText(text))
	if raw == "" {
		return false
	}

	link, err := ParseLink(raw)
	if err != nil {
		return false
	}
	return p.Matches(link.TargetHost())
}
