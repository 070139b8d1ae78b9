package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/kbengine/internal/core/domain"
	"github.com/custodia-labs/kbengine/internal/core/ports/driven"
	"github.com/custodia-labs/kbengine/internal/logger"
)

// EmbeddingOptions configures batching, concurrency, rate limiting and
// retries for an EmbeddingClient.
type EmbeddingOptions struct {
	// BatchSize is the maximum number of texts per provider call.
	BatchSize int

	// Concurrency is the maximum number of batches in flight.
	Concurrency int

	// RequestsPerSecond limits provider calls. Zero disables limiting.
	RequestsPerSecond float64

	// Burst is the limiter bucket size. Defaults to Concurrency.
	Burst int

	// RequestTimeout bounds each provider call.
	RequestTimeout time.Duration

	// Retry is applied per batch to transient failures.
	Retry domain.RetryPolicy
}

// DefaultEmbeddingOptions returns the default client options.
func DefaultEmbeddingOptions() EmbeddingOptions {
	return EmbeddingOptions{
		BatchSize:      domain.DefaultEmbeddingBatchSize,
		Concurrency:    domain.DefaultEmbeddingConcurrency,
		RequestTimeout: domain.DefaultRequestTimeout,
		Retry:          domain.DefaultRetryPolicy(),
	}
}

// EmbeddingOptionsFromSettings converts engine settings into client options.
func EmbeddingOptionsFromSettings(s domain.EmbeddingSettings) EmbeddingOptions {
	return EmbeddingOptions{
		BatchSize:         s.BatchSize,
		Concurrency:       s.Concurrency,
		RequestsPerSecond: s.RequestsPerSecond,
		RequestTimeout:    s.RequestTimeout,
		Retry:             s.Retry,
	}
}

func (o EmbeddingOptions) validate() error {
	if o.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive, got %d", domain.ErrInvalidConfiguration, o.BatchSize)
	}
	if o.Concurrency <= 0 {
		return fmt.Errorf("%w: concurrency must be positive, got %d", domain.ErrInvalidConfiguration, o.Concurrency)
	}
	if o.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: requests per second must not be negative", domain.ErrInvalidConfiguration)
	}
	if o.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request timeout must be positive", domain.ErrInvalidConfiguration)
	}
	return o.Retry.Validate()
}

// EmbeddingClient turns texts into vectors through an EmbeddingService.
// Large inputs are split into batches that run concurrently; each batch is
// rate limited, bounded by a timeout and retried on transient failure.
// A call either returns every vector or fails as a whole.
type EmbeddingClient struct {
	service driven.EmbeddingService
	opts    EmbeddingOptions
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewEmbeddingClient creates a client over service.
func NewEmbeddingClient(service driven.EmbeddingService, opts EmbeddingOptions) (*EmbeddingClient, error) {
	if service == nil {
		return nil, fmt.Errorf("%w: embedding service is required", domain.ErrInvalidConfiguration)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	c := &EmbeddingClient{
		service: service,
		opts:    opts,
		sleep:   sleepContext,
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = opts.Concurrency
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c, nil
}

// Model returns the name of the embedding model.
func (c *EmbeddingClient) Model() string {
	return c.service.ModelName()
}

// Dimensions returns the vector length the model produces.
func (c *EmbeddingClient) Dimensions() int {
	return c.service.Dimensions()
}

// EmbedOne embeds a single text, typically a query.
func (c *EmbeddingClient) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Embed returns one vector per text, in input order.
func (c *EmbeddingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors := make([][]float32, len(texts))
	batches := (len(texts) + c.opts.BatchSize - 1) / c.opts.BatchSize
	logger.Debug("Embedding %d texts in %d batches (model=%s)", len(texts), batches, c.Model())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)

	for start := 0; start < len(texts); start += c.opts.BatchSize {
		end := min(start+c.opts.BatchSize, len(texts))
		batch := start / c.opts.BatchSize

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vecs, err := c.embedBatch(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed batch %d: %w", batch, err)
			}
			copy(vectors[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	return vectors, nil
}

// embedBatch calls the provider for one batch, retrying transient failures.
func (c *EmbeddingClient) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	policy := c.opts.Retry
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, policy.Delay(attempt-1)); err != nil {
				return nil, err
			}
		}

		vecs, err := c.call(ctx, texts)
		if err == nil {
			if err := c.check(vecs, len(texts)); err != nil {
				return nil, err
			}
			return vecs, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !errors.Is(err, domain.ErrTransient) {
			return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingService, err)
		}

		lastErr = err
		logger.Debug("Embedding attempt %d/%d failed: %v", attempt, policy.MaxAttempts, err)
	}

	return nil, fmt.Errorf("%w: giving up after %d attempts: %w", domain.ErrEmbeddingService, policy.MaxAttempts, lastErr)
}

func (c *EmbeddingClient) call(ctx context.Context, texts []string) ([][]float32, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	vecs, err := c.service.EmbedBatch(callCtx, texts)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: request timed out after %s: %w", domain.ErrTransient, c.opts.RequestTimeout, err)
	}
	return vecs, err
}

func (c *EmbeddingClient) check(vecs [][]float32, want int) error {
	if len(vecs) != want {
		return fmt.Errorf("%w: provider returned %d vectors for %d texts", domain.ErrEmbeddingService, len(vecs), want)
	}
	dims := c.service.Dimensions()
	for i, v := range vecs {
		if len(v) != dims {
			return fmt.Errorf("%w: vector %d has %d dimensions, model %q is configured for %d",
				domain.ErrDimensionMismatch, i, len(v), c.Model(), dims)
		}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
