package pagination

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Sternrassler/webreq/pkg/client"
	"github.com/Sternrassler/webreq/pkg/logging"
	"github.com/Sternrassler/webreq/pkg/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for draining.
var (
	pagesTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "webreq_pagination_pages_total",
		Help: "Total pages requested by pagination style and result",
	}, []string{"style", "result"})

	itemsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "webreq_pagination_items_total",
		Help: "Total items collected by pagination style",
	}, []string{"style"})

	backoffSeconds = promauto.With(metrics.Registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webreq_pagination_backoff_seconds",
		Help:    "Backoff duration before re-requesting a failed page",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"style"})

	abortsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "webreq_pagination_aborts_total",
		Help: "Total drains aborted after too many failed pages",
	}, []string{"style"})
)

const (
	styleOffset = "offset"
	styleCursor = "cursor"
)

// ErrTooManyFailedPages is returned when MaxFailedPages consecutive pages
// came back with a non-success status.
var ErrTooManyFailedPages = errors.New("too many failed pages")

// Invoker performs a single rate-limited request. *client.Client
// implements it.
type Invoker interface {
	Invoke(ctx context.Context, coords client.Coordinates, body client.Body) (*client.Response, error)
}

// Config holds drainer configuration.
type Config struct {
	// CursorParam is the query parameter carrying the cursor.
	CursorParam string

	// MaxFailedPages is the number of consecutive failed pages after
	// which a drain gives up.
	MaxFailedPages int

	// InitialBackoff is the delay after the first failed page.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between failed pages.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the delay after each consecutive failure.
	BackoffMultiplier float64
}

// DefaultConfig returns the default drainer configuration.
func DefaultConfig() Config {
	return Config{
		CursorParam:       "cursor",
		MaxFailedPages:    5,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Drainer collects every page of an endpoint through an Invoker.
type Drainer struct {
	invoker Invoker
	config  Config
	logger  zerolog.Logger
}

// NewDrainer creates a drainer. Unset config fields fall back to
// DefaultConfig.
func NewDrainer(invoker Invoker, config Config) *Drainer {
	defaults := DefaultConfig()
	if config.CursorParam == "" {
		config.CursorParam = defaults.CursorParam
	}
	if config.MaxFailedPages <= 0 {
		config.MaxFailedPages = defaults.MaxFailedPages
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = defaults.BackoffMultiplier
	}

	return &Drainer{
		invoker: invoker,
		config:  config,
		logger:  logging.NewLogger(logging.ComponentPagination),
	}
}

// Config returns the effective configuration.
func (d *Drainer) Config() Config {
	return d.config
}

// FetchAllWithStartAt drains an offset-paginated endpoint. startAtParam is
// set to the number of items collected so far, starting at 0, and the
// drain ends at the first successful empty page.
func FetchAllWithStartAt[T any](ctx context.Context, d *Drainer, coords client.Coordinates, startAtParam string, body client.Body, newPage func() NumberedPage[T]) ([]T, error) {
	run := d.start(styleOffset, coords)

	items := []T{}
	size := -1 // no successful page yet

	for {
		offset := len(items)
		resp, err := d.invoker.Invoke(ctx, coords.WithQuery(startAtParam, strconv.Itoa(offset)), body)
		if err != nil {
			return nil, fmt.Errorf("fetch page at %s=%d: %w", startAtParam, offset, err)
		}

		if !resp.IsSuccess() {
			if size < 0 {
				run.failedFirst(resp)
				break
			}
			if err := run.failed(ctx, resp); err != nil {
				return nil, fmt.Errorf("fetch page at %s=%d: %w", startAtParam, offset, err)
			}
			continue
		}

		page := newPage()
		if err := resp.Decode(page); err != nil {
			return nil, fmt.Errorf("fetch page at %s=%d: %w", startAtParam, offset, err)
		}

		pageItems := page.PagedItems()
		size = len(pageItems)
		items = append(items, pageItems...)
		run.succeeded(size)

		if size == 0 {
			break
		}
	}

	run.done(len(items))
	return items, nil
}

// FetchAllWithCursor drains a cursor-paginated endpoint. The first request
// omits the cursor parameter; each following request carries the cursor of
// the previous page until a page returns none.
func FetchAllWithCursor[T any](ctx context.Context, d *Drainer, coords client.Coordinates, body client.Body, newPage func() CursorPage[T]) ([]T, error) {
	run := d.start(styleCursor, coords)
	param := d.config.CursorParam

	items := []T{}
	var cursor *string
	started := false

	for {
		pageCoords := coords
		if cursor != nil {
			pageCoords = coords.WithQuery(param, *cursor)
		}

		resp, err := d.invoker.Invoke(ctx, pageCoords, body)
		if err != nil {
			return nil, fmt.Errorf("fetch page at %s: %w", describeCursor(cursor), err)
		}

		if !resp.IsSuccess() {
			if !started {
				run.failedFirst(resp)
				break
			}
			if err := run.failed(ctx, resp); err != nil {
				return nil, fmt.Errorf("fetch page at %s: %w", describeCursor(cursor), err)
			}
			continue
		}

		page := newPage()
		if err := resp.Decode(page); err != nil {
			return nil, fmt.Errorf("fetch page at %s: %w", describeCursor(cursor), err)
		}

		started = true
		pageItems := page.PagedItems()
		items = append(items, pageItems...)
		run.succeeded(len(pageItems))

		cursor = page.NextPageCursor()
		if cursor == nil {
			break
		}
	}

	run.done(len(items))
	return items, nil
}

// drainRun tracks a single drain: its logger, page counters and the
// failure streak.
type drainRun struct {
	style    string
	logger   zerolog.Logger
	backoff  *backoff
	maxFails int
	failures int
	pages    int
	started  time.Time
}

func (d *Drainer) start(style string, coords client.Coordinates) *drainRun {
	run := &drainRun{
		style: style,
		logger: d.logger.With().
			Str("drain_id", uuid.NewString()).
			Str("style", style).
			Str("endpoint", coords.Path).
			Logger(),
		backoff:  newBackoff(d.config),
		maxFails: d.config.MaxFailedPages,
		started:  time.Now(),
	}
	run.logger.Debug().Msg("Starting drain")
	return run
}

func (r *drainRun) succeeded(size int) {
	r.pages++
	r.failures = 0
	r.backoff.reset()
	pagesTotal.WithLabelValues(r.style, "success").Inc()
	itemsTotal.WithLabelValues(r.style).Add(float64(size))

	r.logger.Debug().Int("page", r.pages).Int("items", size).Msg("Page fetched")
}

// failedFirst records a failure before any page succeeded, which ends the
// drain with whatever was collected (nothing).
func (r *drainRun) failedFirst(resp *client.Response) {
	resp.Close()
	pagesTotal.WithLabelValues(r.style, "failure").Inc()
	r.logger.Error().Int("status", resp.StatusCode).Msgf("Error fetching objects: %d", resp.StatusCode)
}

// failed records a failed page after at least one success and waits before
// the same page is requested again.
func (r *drainRun) failed(ctx context.Context, resp *client.Response) error {
	resp.Close()
	pagesTotal.WithLabelValues(r.style, "failure").Inc()
	r.failures++

	r.logger.Error().
		Int("status", resp.StatusCode).
		Int("consecutive_failures", r.failures).
		Msgf("Error fetching objects: %d", resp.StatusCode)

	if r.failures >= r.maxFails {
		abortsTotal.WithLabelValues(r.style).Inc()
		r.logger.Error().Int("max_failed_pages", r.maxFails).Msg("Giving up after consecutive failed pages")
		return fmt.Errorf("%w: %d consecutive failures, last status %d", ErrTooManyFailedPages, r.failures, resp.StatusCode)
	}

	delay := r.backoff.next()
	backoffSeconds.WithLabelValues(r.style).Observe(delay.Seconds())
	r.logger.Warn().Dur("backoff", delay).Msg("Retrying page after backoff")

	if err := sleep(ctx, delay); err != nil {
		r.logger.Warn().Msg("Context cancelled during page backoff")
		return fmt.Errorf("wait before retrying page: %w", err)
	}
	return nil
}

func (r *drainRun) done(total int) {
	r.logger.Info().
		Int("pages", r.pages).
		Int("items", total).
		Dur("duration", time.Since(r.started)).
		Msg("Drain complete")
}

func describeCursor(cursor *string) string {
	if cursor == nil {
		return "first page"
	}
	return fmt.Sprintf("cursor %q", *cursor)
}
