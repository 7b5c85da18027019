// Package discovery implements the breadth-first link discovery crawler.
package discovery

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/madfam-io/renec-harvester-sub000/internal/harvester"
)

// Edge is one observed link between two normalized page URLs.
type Edge struct {
	From string
	To   string
}

// Graph is the result of one discovery traversal. Pages holds every visited
// in-scope URL in visit order; Edges records every outbound link seen,
// including links to pages that were never followed.
type Graph struct {
	Pages []string
	Edges []Edge
}

// Crawler walks the registry's link graph breadth-first. Traversal is strict
// FIFO and single-threaded so the discovered set is deterministic for a given
// source snapshot.
type Crawler struct {
	fetcher harvester.PageFetcher
	opts    harvester.FetchOptions
	logger  *zap.Logger
}

// New creates a Crawler.
func New(fetcher harvester.PageFetcher, opts harvester.FetchOptions, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{fetcher: fetcher, opts: opts, logger: logger}
}

type queueItem struct {
	url   string
	depth int
}

// Discover traverses from seeds, following only URLs for which scope returns
// true, up to maxDepth hops. A fetch failure on one page is logged and
// skipped; it never aborts the traversal.
func (c *Crawler) Discover(
	ctx context.Context,
	seeds []string,
	scope func(string) bool,
	maxDepth int,
) (Graph, error) {
	var graph Graph
	visited := make(map[string]struct{})
	queue := make([]queueItem, 0, len(seeds))

	for _, seed := range seeds {
		normalized, err := harvester.NormalizeURL(seed)
		if err != nil {
			c.logger.Warn("skipping malformed seed", zap.String("url", seed), zap.Error(err))
			continue
		}
		if !scope(normalized) {
			c.logger.Warn("seed outside scope", zap.String("url", normalized))
			continue
		}
		if _, seen := visited[normalized]; seen {
			continue
		}
		visited[normalized] = struct{}{}
		queue = append(queue, queueItem{url: normalized, depth: 0})
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return graph, err
		}
		item := queue[0]
		queue = queue[1:]

		page, err := c.fetcher.Fetch(ctx, item.url, c.opts)
		if err != nil {
			c.logger.Warn("discovery fetch failed",
				zap.String("url", item.url),
				zap.Int("depth", item.depth),
				zap.Error(err),
			)
			continue
		}
		graph.Pages = append(graph.Pages, item.url)

		links := extractLinks(item.url, pageHTML(page))
		for _, link := range links {
			graph.Edges = append(graph.Edges, Edge{From: item.url, To: link})
			if item.depth >= maxDepth || !scope(link) {
				continue
			}
			if _, seen := visited[link]; seen {
				continue
			}
			visited[link] = struct{}{}
			queue = append(queue, queueItem{url: link, depth: item.depth + 1})
		}
	}

	c.logger.Info("discovery complete",
		zap.Int("pages", len(graph.Pages)),
		zap.Int("edges", len(graph.Edges)),
	)
	return graph, nil
}

func pageHTML(page harvester.RawPage) string {
	if page.DOM != "" {
		return page.DOM
	}
	return string(page.Body)
}

// extractLinks resolves and normalizes all anchor hrefs on the page,
// deduplicating while preserving document order.
func extractLinks(base, html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := baseURL.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		normalized, err := harvester.NormalizeURL(resolved.String())
		if err != nil {
			return
		}
		if _, ok := seen[normalized]; ok {
			return
		}
		seen[normalized] = struct{}{}
		links = append(links, normalized)
	})
	return links
}

// HostScope returns a scope predicate accepting URLs on the same host as
// rootURL whose query or path matches any of the provided substrings. An
// empty pattern list accepts every same-host URL.
func HostScope(rootURL string, patterns []string) func(string) bool {
	return func(raw string) bool {
		if !harvester.SameHost(rootURL, raw) {
			return false
		}
		if len(patterns) == 0 {
			return true
		}
		u, err := url.Parse(raw)
		if err != nil {
			return false
		}
		target := u.Path
		if u.RawQuery != "" {
			target += "?" + u.RawQuery
		}
		for _, p := range patterns {
			if strings.Contains(target, p) {
				return true
			}
		}
		return false
	}
}
