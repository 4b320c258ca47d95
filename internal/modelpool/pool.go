package modelpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/deckpipe/deckpipe/internal/config"
	"github.com/deckpipe/deckpipe/internal/models"
)

// Pool is the process-wide Model Client Pool: one lazily-instantiated
// client per kind, each rate-limited and retrying independently. It is
// constructed once at startup and passed as a dependency — never a
// package-level global.
type Pool struct {
	registry *config.ActiveConfigRegistry
	poolCfg  map[config.ModelKind]config.ModelKindConfig

	mu       sync.Mutex
	clients  map[config.ModelKind]*pooledClient
}

// NewPool constructs a Pool. poolCfg supplies each kind's request interval
// and retry budget; the registry supplies each kind's credentials/model
// name. The Pool registers itself as the registry's invalidator so a config
// update drops the affected kind's cached client without disturbing other
// kinds or in-flight requests on this one.
func NewPool(registry *config.ActiveConfigRegistry, poolCfg map[config.ModelKind]config.ModelKindConfig) *Pool {
	p := &Pool{
		registry: registry,
		poolCfg:  poolCfg,
		clients:  make(map[config.ModelKind]*pooledClient),
	}
	registry.RegisterInvalidator(p)
	return p
}

// Get returns the singleton client for kind, constructing it on first use.
func (p *Pool) Get(ctx context.Context, kind config.ModelKind) (Client, error) {
	p.mu.Lock()
	if c, ok := p.clients[kind]; ok {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	activeCfg, err := activeConfigFor(ctx, p.registry, kind)
	if err != nil {
		return nil, fmt.Errorf("modelpool: loading client for kind %q: %w", kind, err)
	}
	kindCfg := p.poolCfg[kind]

	intervalMS := kindCfg.RequestIntervalMS
	if intervalMS <= 0 {
		intervalMS = 200
	}
	retryBudget := kindCfg.RetryBudget
	if retryBudget <= 0 {
		retryBudget = 1
	}

	pc := &pooledClient{
		raw:         newHTTPClient(activeCfg),
		limiter:     rate.NewLimiter(rate.Every(time.Duration(intervalMS)*time.Millisecond), 1),
		retryBudget: retryBudget,
	}

	p.mu.Lock()
	// Another goroutine may have raced us to construction; keep whichever
	// was registered first so there's exactly one singleton per kind.
	if existing, ok := p.clients[kind]; ok {
		p.mu.Unlock()
		pc.raw.Close()
		return existing, nil
	}
	p.clients[kind] = pc
	p.mu.Unlock()

	return pc, nil
}

// Invalidate implements config.ClientInvalidator: it closes and drops the
// cached client for kind so the next Get rebuilds it from the now-current
// active config. In-flight requests already holding a *pooledClient
// reference are unaffected.
func (p *Pool) Invalidate(kind config.ModelKind) {
	p.mu.Lock()
	c, ok := p.clients[kind]
	delete(p.clients, kind)
	p.mu.Unlock()
	if ok {
		c.Close()
	}
}

// Close shuts down every constructed client. Safe to call once at process
// exit; idempotent per-client.
func (p *Pool) Close() error {
	p.mu.Lock()
	clients := p.clients
	p.clients = make(map[config.ModelKind]*pooledClient)
	p.mu.Unlock()

	var firstErr error
	for _, c := range clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// pooledClient wraps the raw HTTP client with the per-kind inter-request
// interval gate and bounded exponential-backoff retry: a caller blocks for
// the remainder of the interval before its request is issued, and transient
// failures are retried up to a caller-specified (here, config-specified)
// budget before becoming ModelUnavailable.
type pooledClient struct {
	raw         *httpClient
	limiter     *rate.Limiter
	retryBudget int

	closeOnce sync.Once
}

func (c *pooledClient) wait(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

func (c *pooledClient) retry(ctx context.Context, op func() error) error {
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.retryBudget)), ctx)
	err := backoff.Retry(func() error {
		err := op()
		var transient *transientError
		if errors.As(err, &transient) {
			return err // retryable
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, bo)

	var transient *transientError
	if errors.As(err, &transient) {
		return models.NewJobError(models.ErrorKindModelUnavailable, transient.Error())
	}
	return err
}

func (c *pooledClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	var out string
	err := c.retry(ctx, func() error {
		var innerErr error
		out, innerErr = c.raw.GenerateText(ctx, prompt)
		return innerErr
	})
	return out, err
}

func (c *pooledClient) GenerateEmbedding(ctx context.Context, text string) ([]float64, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var out []float64
	err := c.retry(ctx, func() error {
		var innerErr error
		out, innerErr = c.raw.GenerateEmbedding(ctx, text)
		return innerErr
	})
	return out, err
}

func (c *pooledClient) AnalyzeImage(ctx context.Context, imagePath, prompt string) (string, error) {
	return c.AnalyzeImages(ctx, []string{imagePath}, prompt)
}

func (c *pooledClient) AnalyzeImages(ctx context.Context, imagePaths []string, prompt string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	var out string
	err := c.retry(ctx, func() error {
		var innerErr error
		out, innerErr = c.raw.AnalyzeImages(ctx, imagePaths, prompt)
		return innerErr
	})
	return out, err
}

func (c *pooledClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.raw.Close()
	})
	return err
}
