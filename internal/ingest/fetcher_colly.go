package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
)

// CollyFetcher implements Fetcher on top of a colly collector, for feeds that
// are polled alongside the platform's HTML pages and share its politeness rules.
type CollyFetcher struct {
	UserAgent       string
	Accept          string
	MaxRetries      int
	RequestTimeout  time.Duration
	DomainDelay     time.Duration
	IgnoreRobotsTxt bool
	MaxBodySize     int // bytes, 0 = unlimited
	Logger          *logrus.Logger
}

// NewCollyFetcher builds a fetcher that reports retries to logger. A nil
// logger discards them.
func NewCollyFetcher(config FetchConfig, logger *logrus.Logger) *CollyFetcher {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	config = config.withDefaults()
	return &CollyFetcher{
		UserAgent:       config.UserAgent,
		Accept:          config.Accept,
		MaxRetries:      config.MaxRetries,
		RequestTimeout:  config.Timeout(),
		DomainDelay:     time.Second,
		IgnoreRobotsTxt: config.IgnoreRobotsTxt,
		Logger:          logger,
	}
}

func (f *CollyFetcher) buildCollector(ctx context.Context) *colly.Collector {
	opts := []colly.CollectorOption{
		colly.UserAgent(f.UserAgent),
		colly.MaxBodySize(f.MaxBodySize),
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	}
	if f.IgnoreRobotsTxt {
		opts = append(opts, colly.IgnoreRobotsTxt())
	}

	c := colly.NewCollector(opts...)
	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       f.DomainDelay,
	})
	c.SetRequestTimeout(f.RequestTimeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", f.Accept)
	})
	return c
}

// Fetch implements the Fetcher interface. The whole body is buffered by colly.
func (f *CollyFetcher) Fetch(ctx context.Context, targetURL string) (*FetchedDocument, error) {
	c := f.buildCollector(ctx)

	var result *FetchedDocument
	var fetchErr error

	c.OnResponse(func(r *colly.Response) {
		result = &FetchedDocument{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        io.NopCloser(bytes.NewReader(r.Body)),
			FetchedAt:   time.Now(),
			Headers:     map[string][]string(r.Headers.Clone()),
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		retries, _ := r.Request.Ctx.GetAny("retries").(int)
		transient := r.StatusCode == 0 || shouldRetry(nil, r.StatusCode)
		if retries < f.MaxRetries && ctx.Err() == nil && transient {
			r.Request.Ctx.Put("retries", retries+1)
			f.Logger.WithFields(logrus.Fields{
				"url":     r.Request.URL.String(),
				"attempt": retries + 1,
			}).WithError(err).Warn("Retrying feed request")
			select {
			case <-ctx.Done():
			case <-time.After(time.Duration(retries+1) * time.Second):
				if retryErr := r.Request.Retry(); retryErr == nil {
					return
				}
			}
		}
		fetchErr = fmt.Errorf("%w: %s: %v (status %d)", ErrFetch, r.Request.URL, err, r.StatusCode)
	})

	// Visit reports the first attempt's error even when a retry succeeded.
	visitErr := c.Visit(targetURL)
	c.Wait()

	if result != nil && result.StatusCode == http.StatusOK {
		return result, nil
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if visitErr != nil {
		return nil, fmt.Errorf("%w: visit failed: %v", ErrFetch, visitErr)
	}
	if result != nil {
		return nil, fmt.Errorf("%w: unexpected status code: %d", ErrFetch, result.StatusCode)
	}
	return nil, fmt.Errorf("%w: no response received for %s", ErrFetch, targetURL)
}
