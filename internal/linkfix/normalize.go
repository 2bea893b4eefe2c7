package linkfix

import (
	"context"
	"strings"

	"github.com/disneyvacation/wikihow-link-bot/internal/models"
	"github.com/sirupsen/logrus"
)

// Resolver finds the canonical, non-AMP address of an AMP page
type Resolver interface {
	Resolve(ctx context.Context, ampURL string) (string, bool)
}

// Normalizer turns user supplied links into plain-text desktop links
type Normalizer struct {
	resolver Resolver
}

// NewNormalizer creates a normalizer. resolver may be nil, in which case AMP
// links are left as they are.
func NewNormalizer(resolver Resolver) *Normalizer {
	return &Normalizer{resolver: resolver}
}

// Classify extracts the first link in text and works out which corrections
// it needs. The second return value is false when text holds no link.
//
// An AMP link is resolved first; the mobile and hyperlink checks then run
// against the resolved address. Only the first correction sets the prefix.
func (n *Normalizer) Classify(ctx context.Context, text string) (models.CanonicalLinkResult, bool) {
	raw := ExtractLink(text)
	if raw == "" {
		return models.CanonicalLinkResult{}, false
	}

	result := models.CanonicalLinkResult{
		RawURL:    raw,
		Form:      models.FormPlain,
		Canonical: raw,
	}
	link := raw

	if IsAMP(link) {
		resolved, ok := n.resolveAMP(ctx, link)
		if ok {
			link = resolved
			result.Form = models.FormAMP
			result.Prefix = models.PrefixNonAMP
		} else {
			result.Canonical = ""
		}
	}

	if parsed, err := ParseLink(link); err == nil {
		if host, ok := desktopHost(parsed.Host); ok {
			link = rewriteHost(link, parsed.Host, host)
			if result.Prefix == "" {
				result.Form = models.FormMobile
				result.Prefix = models.PrefixDesktop
			}
		}
	}

	if result.Prefix == "" && isHyperlinked(text, raw) {
		result.Form = models.FormHyperlink
		result.Prefix = models.PrefixPlainText
	}

	if result.Canonical != "" {
		result.Canonical = link
	}
	result.Link = link
	return result, true
}

// Normalize returns the reply text correcting the first link in text, or ""
// when there is no link or it needs no correction. With isReapproval set any
// link found is returned as a user provided source.
func (n *Normalizer) Normalize(ctx context.Context, text string, isReapproval bool) string {
	result, ok := n.Classify(ctx, text)
	if !ok {
		return ""
	}

	if isReapproval {
		return models.PrefixUserProvided + result.Link
	}
	if result.Prefix == "" {
		return ""
	}
	return result.Prefix + result.Link
}

func (n *Normalizer) resolveAMP(ctx context.Context, link string) (string, bool) {
	if n.resolver == nil {
		return "", false
	}

	resolved, ok := n.resolver.Resolve(ctx, link)
	if !ok {
		logrus.WithField("url", link).Debug("AMP link could not be resolved, keeping it as provided")
		return "", false
	}
	return resolved, true
}

// isHyperlinked reports whether text wraps link in "[label](link)" syntax
// with a label that does not show the link itself.
func isHyperlinked(text, link string) bool {
	idx := strings.Index(text, "](")
	if idx < 0 {
		return false
	}
	return !strings.Contains(text[:idx], link)
}
