// Package headless implements PageFetcher on top of chromedp, for components
// whose listings only materialize after JavaScript runs. Background XHR and
// fetch exchanges are intercepted so drivers can read structured payloads
// instead of scraping the rendered table.
package headless

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/madfam-io/renec-harvester-sub000/internal/harvester"
)

const (
	defaultNavTimeout    = 45 * time.Second
	defaultBodySampleCap = 1 << 20
	settleDelay          = 500 * time.Millisecond
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	BodySampleCap     int
}

// Fetcher implements PageFetcher using chromedp and headless Chrome.
type Fetcher struct {
	cfg         Config
	hasher      harvester.Hasher
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a headless fetcher backed by a shared browser
// allocator. Close releases the browser processes.
func NewChromedp(cfg Config, hasher harvester.Hasher) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if cfg.BodySampleCap <= 0 {
		cfg.BodySampleCap = defaultBodySampleCap
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		hasher:      hasher,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch navigates with a headless browser and returns the rendered DOM plus
// the intercepted background exchanges.
func (f *Fetcher) Fetch(ctx context.Context, url string, _ harvester.FetchOptions) (harvester.RawPage, error) {
	if err := f.acquire(ctx); err != nil {
		return harvester.RawPage{}, err
	}
	defer f.release()

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, f.cfg.NavigationTimeout)
	defer cancel()

	log := newExchangeLog()
	chromedp.ListenTarget(taskCtx, log.captureEvent)

	var (
		html     string
		finalURL string
	)
	start := time.Now()
	actions := []chromedp.Action{
		f.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settleDelay),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		f.collectBodiesAction(log),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return harvester.RawPage{}, fmt.Errorf("chromedp run: %w", err)
	}

	status := log.documentStatus()
	if status == 0 {
		status = 200
	}
	if status >= 400 {
		return harvester.RawPage{}, &harvester.StatusError{URL: url, Code: status}
	}
	if finalURL == "" {
		finalURL = url
	}

	return harvester.RawPage{
		URL:        url,
		FinalURL:   finalURL,
		StatusCode: status,
		DOM:        html,
		Body:       []byte(html),
		Exchanges:  log.exchanges(),
		Duration:   time.Since(start),
	}, nil
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// collectBodiesAction pulls the response bodies of the intercepted requests
// out of the browser once the page has settled. Bodies the browser already
// evicted are skipped.
func (f *Fetcher) collectBodiesAction(log *exchangeLog) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for _, pending := range log.snapshot() {
			body, err := network.GetResponseBody(pending.id).Do(ctx)
			if err != nil {
				continue
			}
			hash, err := f.hasher.Hash(body)
			if err != nil {
				return fmt.Errorf("hashing exchange body: %w", err)
			}
			sample := body
			if len(sample) > f.cfg.BodySampleCap {
				sample = sample[:f.cfg.BodySampleCap]
			}
			log.resolve(pending.id, harvester.InterceptedExchange{
				URL:        pending.url,
				Method:     pending.method,
				Status:     pending.status,
				BodyHash:   hash,
				BodySample: append([]byte(nil), sample...),
			})
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

type pendingExchange struct {
	id     network.RequestID
	url    string
	method string
	status int
}

// exchangeLog accumulates background XHR and fetch traffic observed through
// CDP events. Event callbacks and the collecting action run on different
// goroutines, hence the lock.
type exchangeLog struct {
	mu       sync.Mutex
	methods  map[network.RequestID]string
	pending  []pendingExchange
	resolved map[network.RequestID]harvester.InterceptedExchange
	docStat  int
}

func newExchangeLog() *exchangeLog {
	return &exchangeLog{
		methods:  make(map[network.RequestID]string),
		resolved: make(map[network.RequestID]harvester.InterceptedExchange),
	}
}

func (l *exchangeLog) captureEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		if !backgroundExchange(e.Type) || e.Request == nil {
			return
		}
		l.mu.Lock()
		l.methods[e.RequestID] = e.Request.Method
		l.mu.Unlock()
	case *network.EventResponseReceived:
		if e.Response == nil {
			return
		}
		if e.Type == network.ResourceTypeDocument {
			l.mu.Lock()
			l.docStat = int(e.Response.Status)
			l.mu.Unlock()
			return
		}
		if !backgroundExchange(e.Type) {
			return
		}
		l.mu.Lock()
		l.pending = append(l.pending, pendingExchange{
			id:     e.RequestID,
			url:    e.Response.URL,
			method: l.methods[e.RequestID],
			status: int(e.Response.Status),
		})
		l.mu.Unlock()
	}
}

func backgroundExchange(t network.ResourceType) bool {
	return t == network.ResourceTypeXHR || t == network.ResourceTypeFetch
}

func (l *exchangeLog) snapshot() []pendingExchange {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]pendingExchange(nil), l.pending...)
}

func (l *exchangeLog) resolve(id network.RequestID, ex harvester.InterceptedExchange) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resolved[id] = ex
}

// exchanges returns the resolved intercepts in observation order.
func (l *exchangeLog) exchanges() []harvester.InterceptedExchange {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []harvester.InterceptedExchange
	for _, pending := range l.pending {
		if ex, ok := l.resolved[pending.id]; ok {
			out = append(out, ex)
		}
	}
	return out
}

func (l *exchangeLog) documentStatus() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.docStat
}
