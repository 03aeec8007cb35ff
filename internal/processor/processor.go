// Package processor turns one URL into one stored artifact: existence check,
// extraction through the service, then persistence.
package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-harvester/internal/artifact"
	"github.com/JakeFAU/sitemap-harvester/internal/clock/system"
	collyfetcher "github.com/JakeFAU/sitemap-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/sitemap-harvester/internal/harvest"
	"github.com/JakeFAU/sitemap-harvester/internal/service"
)

// Checker answers a HEAD request for a page.
type Checker interface {
	Head(ctx context.Context, rawURL string) (collyfetcher.Response, error)
}

// Extractor returns the markdown of a page.
type Extractor interface {
	Extract(ctx context.Context, pageURL string) (string, error)
}

// Store persists one artifact.
type Store interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Limiter paces requests per host.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Processor implements harvest.Processor.
type Processor struct {
	checker   Checker
	extractor Extractor
	store     Store
	limiter   Limiter
	clock     harvest.Clock
	logger    *zap.Logger
}

// Option customizes a Processor.
type Option func(*Processor)

// WithLimiter paces existence checks per host.
func WithLimiter(l Limiter) Option {
	return func(p *Processor) { p.limiter = l }
}

// WithClock overrides the clock used for date_scraped.
func WithClock(c harvest.Clock) Option {
	return func(p *Processor) { p.clock = c }
}

// New builds a Processor.
func New(checker Checker, extractor Extractor, store Store, logger *zap.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{
		checker:   checker,
		extractor: extractor,
		store:     store,
		clock:     system.Clock{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs one attempt for url. Failures are *harvest.ProcessingError.
func (p *Processor) Process(ctx context.Context, url string) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, url); err != nil {
			return harvest.NewProcessingError(harvest.FailureTransient, url, err)
		}
	}

	resp, err := p.checker.Head(ctx, url)
	if err != nil {
		return harvest.NewProcessingError(harvest.FailureTransport, url, fmt.Errorf("check page: %w", err))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return harvest.NewProcessingError(harvest.FailurePageUnavailable, url,
			fmt.Errorf("page returned status %d", resp.StatusCode))
	}

	content, err := p.extractor.Extract(ctx, url)
	if err != nil {
		return harvest.NewProcessingError(extractionKind(err), url, err)
	}

	name := artifact.FileName(url)
	doc := artifact.Render(artifact.Header{SourceURL: url, DateScraped: p.clock.Now()}, content)
	uri, err := p.store.PutObject(ctx, name, artifact.ContentType, bytes.NewReader(doc))
	if err != nil {
		return harvest.NewProcessingError(harvest.FailurePersistence, url, err)
	}
	p.logger.Debug("artifact saved", zap.String("url", url), zap.String("uri", uri), zap.Int("bytes", len(doc)))
	return nil
}

func extractionKind(err error) harvest.FailureKind {
	var statusErr *service.StatusError
	switch {
	case errors.As(err, &statusErr), errors.Is(err, service.ErrEmptyMarkdown):
		return harvest.FailureExtractionFailed
	case errors.Is(err, context.Canceled):
		return harvest.FailureTransient
	default:
		return harvest.FailureTransport
	}
}
