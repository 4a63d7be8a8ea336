// Package fetch crawls web documentation sites into indexable documents.
//
// A knowledge base configured with a source URL gets its documents from
// here instead of from a directory on disk. The crawler stays on the
// start URL's host, follows links to a bounded depth and page count,
// and runs each page through a readability pass before converting what
// remains into the delimiter markup the chunker understands.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/koopa0/lore/internal/chunk"
	"github.com/koopa0/lore/internal/config"
	"github.com/koopa0/lore/internal/log"
)

// ErrNoDocuments indicates a crawl finished without one usable page.
var ErrNoDocuments = errors.New("crawl produced no documents")

const userAgent = "lore-crawler/1.0"

// Fetcher crawls documentation sites under the configured limits.
type Fetcher struct {
	cfg    config.FetchConfig
	logger log.Logger
}

// NewFetcher wires a fetcher.
func NewFetcher(cfg config.FetchConfig, logger log.Logger) (*Fetcher, error) {
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	if cfg.MaxPages < 1 {
		cfg.MaxPages = 1
	}
	return &Fetcher{cfg: cfg, logger: logger}, nil
}

// Crawl visits startURL and the pages it links to, staying on the same
// host, and returns one document per readable page ordered by name.
// Pages that fail to fetch or extract are logged and skipped; the crawl
// itself fails only when nothing survives or the context ends.
func (f *Fetcher) Crawl(ctx context.Context, startURL string) ([]chunk.Document, error) {
	start, err := url.Parse(startURL)
	if err != nil {
		return nil, fmt.Errorf("parsing start URL %q: %w", startURL, err)
	}
	if start.Scheme != "http" && start.Scheme != "https" {
		return nil, fmt.Errorf("start URL %q: only http and https are supported", startURL)
	}
	if start.Host == "" {
		return nil, fmt.Errorf("start URL %q has no host", startURL)
	}

	// Hostname strips the port; register both forms so hosts with an
	// explicit port stay in scope.
	domains := []string{start.Hostname()}
	if start.Host != start.Hostname() {
		domains = append(domains, start.Host)
	}

	c := colly.NewCollector(
		colly.AllowedDomains(domains...),
		colly.MaxDepth(f.cfg.MaxDepth),
		colly.Async(true),
		colly.UserAgent(userAgent),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(f.cfg.Timeout)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: f.cfg.Parallelism,
		Delay:       f.cfg.Delay,
	}); err != nil {
		return nil, fmt.Errorf("applying crawl limits: %w", err)
	}

	var (
		mu      sync.Mutex
		docs    []chunk.Document
		seen    = make(map[string]bool)
		pages   atomic.Int64
		skipped atomic.Int64
	)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		if pages.Add(1) > int64(f.cfg.MaxPages) {
			r.Abort()
		}
	})

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		link := strings.TrimSpace(e.Attr("href"))
		if i := strings.IndexByte(link, '#'); i >= 0 {
			link = link[:i]
		}
		if link == "" {
			return
		}
		// Re-queue errors are flow control: already visited, off
		// domain, past depth.
		_ = e.Request.Visit(link)
	})

	c.OnResponse(func(r *colly.Response) {
		if !strings.Contains(r.Headers.Get("Content-Type"), "text/html") {
			return
		}
		doc, err := extractDocument(r.Request.URL, r.Body)
		if err != nil {
			skipped.Add(1)
			f.logger.Warn("skipping page", "url", r.Request.URL.String(), "error", err)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if seen[doc.Name] {
			return
		}
		seen[doc.Name] = true
		docs = append(docs, doc)
	})

	c.OnError(func(r *colly.Response, err error) {
		skipped.Add(1)
		f.logger.Warn("page fetch failed", "url", r.Request.URL.String(), "error", err)
	})

	started := time.Now()
	if err := c.Visit(start.String()); err != nil {
		return nil, fmt.Errorf("starting crawl at %s: %w", start, err)
	}
	c.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("crawl of %s canceled: %w", start, err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })

	f.logger.Info("crawl finished",
		"start_url", start.String(),
		"documents", len(docs),
		"skipped", skipped.Load(),
		"duration", time.Since(started))

	if len(docs) == 0 {
		return nil, fmt.Errorf("%s: %w", start, ErrNoDocuments)
	}
	return docs, nil
}

// documentName derives a stable document name from a page URL. Query
// strings are ignored; URLs differing only by query keep the first
// fetched page.
func documentName(u *url.URL) string {
	name := strings.Trim(u.Path, "/")
	if name == "" {
		return "index"
	}
	return name
}
