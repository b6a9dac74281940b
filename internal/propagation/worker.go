package propagation

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/proyuen/invsync/internal/model"
	"github.com/proyuen/invsync/internal/repository"
	"github.com/proyuen/invsync/internal/storefront"
	"github.com/proyuen/invsync/pkg/config"
)

var (
	attemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "propagation_attempts_total",
		Help: "Total number of per-site propagation attempts.",
	}, []string{"site_id", "outcome"})

	jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "propagation_job_duration_seconds",
		Help:    "Duration of one propagation job across all sites.",
		Buckets: prometheus.DefBuckets,
	}, []string{})

	deadLettersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "propagation_dead_letters_total",
		Help: "Total number of jobs that exhausted retries and were dead-lettered.",
	}, []string{"site_id"})
)

func init() {
	prometheus.MustRegister(attemptsTotal, jobDuration, deadLettersTotal)
}

// state is the worker's lifecycle: starting -> draining -> stopped.
type state int32

const (
	stateStarting state = iota
	stateDraining
	stateStopped
)

// Worker drains a Queue with one long-lived goroutine, fanning each job out
// to every active configured site with per-site retry/backoff and a
// per-site circuit breaker.
type Worker struct {
	queue    *Queue
	settings *config.Settings
	mappings repository.MappingRepository
	failures repository.FailureRepository
	client   storefront.Client
	tracer   trace.Tracer

	mu       sync.Mutex
	state    state
	breakers map[string]*gobreaker.CircuitBreaker

	doneCh chan struct{}
}

// NewWorker creates a new Worker. Call Run in its own goroutine and Shutdown
// to drain.
func NewWorker(queue *Queue, settings *config.Settings, mappings repository.MappingRepository, failures repository.FailureRepository, client storefront.Client) *Worker {
	return &Worker{
		queue:    queue,
		settings: settings,
		mappings: mappings,
		failures: failures,
		client:   client,
		tracer:   otel.Tracer("internal/propagation"),
		state:    stateStarting,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		doneCh:   make(chan struct{}),
	}
}

// Run drains the queue until it is closed. It is meant to be the body of
// the single long-lived worker goroutine.
func (w *Worker) Run(ctx context.Context) {
	log.Println("propagation worker started")
	defer close(w.doneCh)

	for job := range w.queue.Jobs() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("panic in propagation worker job handling: %v", r)
				}
			}()
			w.handleJob(ctx, job)
		}()
	}

	w.mu.Lock()
	w.state = stateStopped
	w.mu.Unlock()
	log.Println("propagation worker stopped")
}

// Shutdown signals drain mode and blocks up to timeout for the worker to
// finish; it logs if the drain did not complete in time.
func (w *Worker) Shutdown(timeout time.Duration) {
	w.mu.Lock()
	w.state = stateDraining
	w.mu.Unlock()

	w.queue.Close()

	select {
	case <-w.doneCh:
	case <-time.After(timeout):
		log.Printf("propagation worker did not drain within %s; abandoning", timeout)
	}
}

func (w *Worker) breakerFor(siteID string) *gobreaker.CircuitBreaker {
	w.mu.Lock()
	defer w.mu.Unlock()
	if b, ok := w.breakers[siteID]; ok {
		return b
	}
	cfg := w.settings.Propagation
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "propagation-" + siteID,
		Timeout: time.Duration(cfg.BreakerOpenSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.BreakerFailRatio
		},
	})
	w.breakers[siteID] = b
	return b
}

// handleJob fans job out to every currently active site: the site list is
// read fresh per job (a "live view"), so a site deactivated between enqueue
// and processing is simply absent from this pass, not attempted.
func (w *Worker) handleJob(ctx context.Context, job Job) {
	start := time.Now()
	defer func() {
		jobDuration.WithLabelValues().Observe(time.Since(start).Seconds())
	}()

	for _, site := range w.settings.ActiveSites() {
		w.handleJobForSite(ctx, site, job)
	}
}

func (w *Worker) handleJobForSite(ctx context.Context, site config.SiteConfig, job Job) {
	ctx, span := w.tracer.Start(ctx, "propagation.site_attempt",
		trace.WithAttributes(
			attribute.String("site.id", site.SiteID),
			attribute.String("sku", job.SKU),
		))
	defer span.End()

	// Mapping resolution is a local DB read, not the unreliable remote call
	// the retry/breaker policy exists for: an absent mapping is resolved
	// once, outside the loop, and never counted against the site's breaker.
	mapping, err := w.mappings.Get(ctx, site.SiteID, job.SKU)
	if err != nil {
		if errors.Is(err, repository.ErrMappingNotFound) {
			log.Printf("no sku mapping for site=%s sku=%s; skipping propagation", site.SiteID, job.SKU)
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve sku mapping")
		log.Printf("failed to resolve sku mapping site=%s sku=%s: %v", site.SiteID, job.SKU, err)
		return
	}

	cfg := w.settings.Propagation
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}

	var lastErr error
	success := false

	for attempt := 1; attempt <= maxRetries; attempt++ {
		breaker := w.breakerFor(site.SiteID)
		_, err := breaker.Execute(func() (interface{}, error) {
			return nil, w.writeStock(ctx, site, mapping, job)
		})

		if err == nil {
			success = true
			attemptsTotal.WithLabelValues(site.SiteID, "success").Inc()
			break
		}

		lastErr = err
		attemptsTotal.WithLabelValues(site.SiteID, "failure").Inc()
		log.Printf("propagation error site=%s sku=%s attempt=%d/%d: %v", site.SiteID, job.SKU, attempt, maxRetries, err)

		if attempt < maxRetries {
			delay := cfg.RetryBaseDuration() * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}
	}

	if !success {
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, "propagation exhausted retries")
		w.deadLetter(ctx, site.SiteID, job, lastErr, maxRetries)
	}
}

// writeStock performs the single remote write the retry/breaker loop wraps.
func (w *Worker) writeStock(ctx context.Context, site config.SiteConfig, mapping *model.SiteSkuMap, job Job) error {
	var success bool
	var err error
	if mapping.VariationID != nil {
		success, err = w.client.SetVariationStock(ctx, site, mapping.ProductID, *mapping.VariationID, job.StockQuantity)
	} else {
		success, err = w.client.SetProductStock(ctx, site, mapping.ProductID, job.StockQuantity)
	}
	if err != nil {
		return err
	}
	if !success {
		return errors.New("storefront API returned non-success")
	}
	return nil
}

func (w *Worker) deadLetter(ctx context.Context, siteID string, job Job, lastErr error, attempts int) {
	log.Printf("propagation failed after %d attempts for site=%s sku=%s", attempts, siteID, job.SKU)
	deadLettersTotal.WithLabelValues(siteID).Inc()

	errMsg := ""
	if lastErr != nil {
		errMsg = lastErr.Error()
	}

	failure := &model.PropagationFailure{
		SiteID:   siteID,
		SKU:      job.SKU,
		Payload:  model.JSONB{"sku": job.SKU, "stock_quantity": job.StockQuantity},
		Error:    errMsg,
		Attempts: attempts,
	}
	// Record runs outside the request/job context's cancellation window:
	// a dead-letter write should still happen on a job whose ctx is winding
	// down during shutdown drain.
	recordCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.failures.Record(recordCtx, failure); err != nil {
		log.Printf("failed to record propagation failure site=%s sku=%s: %v", siteID, job.SKU, err)
	}
}
