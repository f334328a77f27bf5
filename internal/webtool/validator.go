package webtool

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/kb-engine/internal/crawl"
)

// Validation failures a caller may want to distinguish.
var (
	ErrSeedUnreachable   = errors.New("seed page could not be fetched")
	ErrSeedNotCrawlable  = errors.New("seed page forbids indexing and following")
	ErrTooManyChildPages = errors.New("seed page links to too many child pages")
)

// DefaultMaxChildPages caps how many same-scope links a seed page may
// carry before a crawl is refused.
const DefaultMaxChildPages = 500

const fetchTimeout = 10 * time.Second

// Validator pre-flights seed URLs by fetching the page and inspecting
// its robots directives and outgoing links. It satisfies
// crawl.SeedValidator.
type Validator struct {
	client        *http.Client
	maxChildPages int
	logger        *zap.Logger
}

// NewValidator constructs a Validator. client may be nil to use a
// default with a short timeout; maxChildPages <= 0 means
// DefaultMaxChildPages.
func NewValidator(client *http.Client, maxChildPages int, logger *zap.Logger) *Validator {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	if maxChildPages <= 0 {
		maxChildPages = DefaultMaxChildPages
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{client: client, maxChildPages: maxChildPages, logger: logger}
}

// Validate fetches the seed page and refuses the crawl when the page
// cannot be fetched, is marked both noindex and nofollow, or links to
// more in-scope child pages than the configured limit.
func (v *Validator) Validate(ctx context.Context, seedURL string) error {
	params, err := crawl.DeriveParams(seedURL)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, seedURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSeedUnreachable, err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSeedUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s returned status %d", ErrSeedUnreachable, seedURL, resp.StatusCode)
	}

	report, err := Extract(resp.Body, seedURL, params.Domain, params.FilterPattern)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSeedUnreachable, err)
	}

	if report.NoIndex && report.NoFollow {
		return fmt.Errorf("%w: %s", ErrSeedNotCrawlable, seedURL)
	}

	if n := len(report.CrawlURLs); n > v.maxChildPages {
		return fmt.Errorf("%w: %d links exceed the limit of %d", ErrTooManyChildPages, n, v.maxChildPages)
	}

	v.logger.Debug("seed validated",
		zap.String("seed_url", seedURL),
		zap.Int("child_pages", len(report.CrawlURLs)),
		zap.Int("skipped", len(report.SkippedURLs)),
	)
	return nil
}
