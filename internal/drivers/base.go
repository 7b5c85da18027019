package drivers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/madfam-io/renec-harvester-sub000/internal/harvester"
)

// maxPaginationDefault caps pagination discovery when the config leaves it
// unset, so a broken "next" control can never loop forever.
const maxPaginationDefault = 50

// Options carries the construction parameters shared by every driver.
type Options struct {
	SeedURL    string
	URLPattern string
	RenderJS   bool
	MaxPages   int
	Fetcher    harvester.PageFetcher
	FetchOpts  harvester.FetchOptions
	Logger     *zap.Logger
}

// base holds the plumbing common to all drivers.
type base struct {
	component string
	variant   harvester.Variant
	opts      Options
}

func newBase(component string, variant harvester.Variant, opts Options) base {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = maxPaginationDefault
	}
	return base{component: component, variant: variant, opts: opts}
}

func (b *base) Component() string          { return b.component }
func (b *base) Variant() harvester.Variant { return b.variant }

// Matches reports whether the URL belongs to this driver's component.
func (b *base) Matches(url string) bool {
	return b.opts.URLPattern != "" && strings.Contains(url, b.opts.URLPattern)
}

func (b *base) target(url string) harvester.Target {
	return harvester.Target{
		Component: b.component,
		URL:       url,
		RenderJS:  b.opts.RenderJS,
	}
}

func (b *base) parseError(t harvester.Target, format string, args ...any) harvester.ParseError {
	return harvester.ParseError{Target: t, Reason: fmt.Sprintf(format, args...)}
}

// paginatedSeeds fetches the seed page and follows its "next" control until
// it disappears or the page cap is reached, returning one target per listing
// page. Used by DOM-transport drivers whose pagination lives in the markup.
func (b *base) paginatedSeeds(ctx context.Context) ([]harvester.Target, error) {
	seed, err := harvester.NormalizeURL(b.opts.SeedURL)
	if err != nil {
		return nil, fmt.Errorf("normalize seed url: %w", err)
	}

	targets := []harvester.Target{b.target(seed)}
	seen := map[string]struct{}{seed: {}}
	current := seed

	for len(targets) < b.opts.MaxPages {
		page, err := b.opts.Fetcher.Fetch(ctx, current, b.opts.FetchOpts)
		if err != nil {
			// Pagination discovery is best effort; the pages found so far
			// are still harvested.
			b.opts.Logger.Warn("pagination fetch failed",
				zap.String("component", b.component),
				zap.String("url", current),
				zap.Error(err),
			)
			break
		}
		next, ok := nextPageLink(current, pageHTML(page))
		if !ok {
			break
		}
		if _, dup := seen[next]; dup {
			break
		}
		seen[next] = struct{}{}
		targets = append(targets, b.target(next))
		current = next
	}
	return targets, nil
}

// nextPageLink finds the listing's "next" control, preferring rel=next and
// falling back to the registry's Spanish pager label.
func nextPageLink(base, html string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false
	}
	sel := doc.Find(`a[rel="next"]`).First()
	if sel.Length() == 0 {
		doc.Find("a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			label := strings.ToLower(strings.TrimSpace(s.Text()))
			if label == "siguiente" || label == ">" {
				sel = s
				return false
			}
			return true
		})
	}
	href, ok := sel.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", false
	}
	resolved, err := resolveURL(base, href)
	if err != nil {
		return "", false
	}
	return resolved, true
}

// structuredPayload finds the intercepted exchange carrying the component's
// backing JSON payload and unmarshals it into out.
func structuredPayload(page harvester.RawPage, marker string, out any) error {
	for _, ex := range page.Exchanges {
		if ex.Status != 200 || !strings.Contains(ex.URL, marker) {
			continue
		}
		if len(ex.BodySample) == 0 {
			return fmt.Errorf("exchange %s: empty body sample", ex.URL)
		}
		if err := json.Unmarshal(ex.BodySample, out); err != nil {
			return fmt.Errorf("decode exchange %s: %w", ex.URL, err)
		}
		return nil
	}
	return fmt.Errorf("no exchange matching %q among %d intercepted", marker, len(page.Exchanges))
}

func pageHTML(page harvester.RawPage) string {
	if page.DOM != "" {
		return page.DOM
	}
	return string(page.Body)
}

func resolveURL(base, href string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return harvester.NormalizeURL(u.ResolveReference(ref).String())
}
