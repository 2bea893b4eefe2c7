package amp

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/purell"
	"github.com/disneyvacation/wikihow-link-bot/internal/linkfix"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

const userAgent = "WikiHowLinkBot/2.0 (AMP resolver)"

// Resolver discovers the canonical address behind an AMP page by fetching it
// and applying a list of strategies, following AMP-to-AMP hops up to a fixed
// depth.
type Resolver struct {
	client     *resty.Client
	strategies []Strategy
	maxDepth   int
	cache      *expirable.LRU[string, string]
}

// Ensure Resolver satisfies the normalizer's dependency
var _ linkfix.Resolver = (*Resolver)(nil)

type Option func(*Resolver)

// WithMaxDepth sets how many pages are fetched at most for one link.
func WithMaxDepth(depth int) Option {
	return func(r *Resolver) {
		if depth > 0 {
			r.maxDepth = depth
		}
	}
}

// WithHTTPClient replaces the retrying client used for page fetches.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) {
		r.client = newRestyClient(client)
	}
}

// WithStrategies replaces the default strategy list.
func WithStrategies(strategies ...Strategy) Option {
	return func(r *Resolver) {
		r.strategies = strategies
	}
}

// WithCache keeps successful resolutions for ttl.
func WithCache(size int, ttl time.Duration) Option {
	return func(r *Resolver) {
		if size > 0 {
			r.cache = expirable.NewLRU[string, string](size, nil, ttl)
		}
	}
}

// NewResolver creates a resolver. Pages are fetched through a retrying
// client unless WithHTTPClient is given.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		client:     newRestyClient(retryingHTTPClient()),
		strategies: DefaultStrategies(),
		maxDepth:   3,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the non-AMP canonical address of ampURL. Any fetch or
// parse failure, or running out of depth, yields false.
func (r *Resolver) Resolve(ctx context.Context, ampURL string) (string, bool) {
	if r.cache != nil {
		if canonical, ok := r.cache.Get(ampURL); ok {
			return canonical, true
		}
	}

	log := logrus.WithField("url", ampURL)
	current := ampURL

	for depth := 0; depth < r.maxDepth; depth++ {
		doc, page, err := r.fetch(ctx, current)
		if err != nil {
			log.Debugf("AMP resolution stopped at depth %d: %v", depth, err)
			return "", false
		}

		next := ""
		for _, strategy := range r.strategies {
			candidate, final := strategy.Find(doc, page)
			if candidate == "" {
				continue
			}
			candidate = clean(candidate)
			if final {
				log.Debugf("AMP link resolved by %s to %s", strategy.Name, candidate)
				if r.cache != nil {
					r.cache.Add(ampURL, candidate)
				}
				return candidate, true
			}
			if next == "" && candidate != current {
				next = candidate
			}
		}

		if next == "" {
			log.Debugf("No strategy found a canonical link at depth %d", depth)
			return "", false
		}
		current = next
	}

	log.Debugf("AMP resolution gave up after %d fetches", r.maxDepth)
	return "", false
}

func (r *Resolver) fetch(ctx context.Context, pageURL string) (*html.Node, *url.URL, error) {
	resp, err := r.client.R().
		SetContext(ctx).
		Get(pageURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, nil, fmt.Errorf("fetching %s returned status %d", pageURL, resp.StatusCode())
	}

	doc, err := html.Parse(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", pageURL, err)
	}

	// relative links resolve against the address after redirects
	page := resp.RawResponse.Request.URL
	return doc, page, nil
}

func clean(candidate string) string {
	normalized, err := purell.NormalizeURLString(candidate, purell.FlagsSafe|purell.FlagRemoveFragment)
	if err != nil {
		return candidate
	}
	return normalized
}

func newRestyClient(client *http.Client) *resty.Client {
	return resty.NewWithClient(client).
		SetTimeout(20*time.Second).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml")
}

func retryingHTTPClient() *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(leveledLogrus{logrus.WithField("component", "amp-fetch")})
	return retryClient.StandardClient()
}

// leveledLogrus adapts logrus to retryablehttp. Errors are logged as
// warnings since the request is retried.
type leveledLogrus struct {
	inner *logrus.Entry
}

func (l leveledLogrus) Error(msg string, keysAndValues ...interface{}) {
	l.inner.WithFields(fields(keysAndValues)).Warn(msg)
}

func (l leveledLogrus) Warn(msg string, keysAndValues ...interface{}) {
	l.inner.WithFields(fields(keysAndValues)).Warn(msg)
}

func (l leveledLogrus) Info(msg string, keysAndValues ...interface{}) {
	l.inner.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l leveledLogrus) Debug(msg string, keysAndValues ...interface{}) {
	l.inner.WithFields(fields(keysAndValues)).Debug(msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return f
}
