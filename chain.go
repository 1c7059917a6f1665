package cropsight

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cropsight/cropsight/detector"
)

// DefaultProviderTimeout bounds a single provider attempt when no per-provider
// timeout is configured.
const DefaultProviderTimeout = 30 * time.Second

// ChainProvider pairs a detector with its attempt budget.
type ChainProvider struct {
	Detector detector.Detector
	Timeout  time.Duration
}

// Chain tries detection providers strictly in order until one succeeds. Each
// attempt gets its own timeout; a timeout or any provider failure advances to
// the next provider and is never retried against the same provider within one
// request. Provider order is configuration, not policy: the local prototype
// classifier conventionally goes first but nothing in the chain assumes it.
type Chain struct {
	providers []ChainProvider
	logger    *slog.Logger
}

func NewChain(logger *slog.Logger, providers ...ChainProvider) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{providers: providers, logger: logger}
}

// Detect runs the chain for one image. The first successful result is
// returned annotated with the winning provider's name as provenance. If every
// provider fails the aggregated failures come back as
// *AllProvidersFailedError; the chain never fabricates an "unknown" result.
func (c *Chain) Detect(ctx context.Context, image []byte) (*detector.Result, error) {
	if len(c.providers) == 0 {
		return nil, &AllProvidersFailedError{Failures: []*ProviderError{
			{Provider: "chain", Err: fmt.Errorf("no providers configured")},
		}}
	}

	var failures []*ProviderError
	for _, cp := range c.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := c.attempt(ctx, cp, image)
		if err != nil {
			pe := &ProviderError{Provider: cp.Detector.Name(), Err: err}
			failures = append(failures, pe)
			c.logger.Warn("detection provider failed, falling through",
				"provider", cp.Detector.Name(), "error", err)
			continue
		}

		res.Provenance = cp.Detector.Name()
		return res, nil
	}

	return nil, &AllProvidersFailedError{Failures: failures}
}

// attempt runs a single provider under its own timeout. The provider runs in
// a goroutine so a provider that ignores its context cannot stall the chain
// past the attempt budget.
func (c *Chain) attempt(ctx context.Context, cp ChainProvider, image []byte) (*detector.Result, error) {
	timeout := cp.Timeout
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res *detector.Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := cp.Detector.Detect(tctx, image)
		if err == nil && res == nil {
			err = fmt.Errorf("provider returned no result")
		}
		ch <- outcome{res, err}
	}()

	select {
	case o := <-ch:
		return o.res, o.err
	case <-tctx.Done():
		return nil, tctx.Err()
	}
}
