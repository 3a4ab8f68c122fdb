package recognition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lexiqai/lipread-gateway/internal/config"
	"github.com/lexiqai/lipread-gateway/internal/observability"
	"github.com/lexiqai/lipread-gateway/internal/resilience"
)

// ErrTimeout is returned when recognition exceeds its deadline
var ErrTimeout = errors.New("recognition timed out")

// Guarded wraps a Recognizer with a circuit breaker, retries and a deadline
type Guarded struct {
	inner   Recognizer
	breaker *resilience.CircuitBreaker
	retry   *resilience.RetryConfig
	timeout time.Duration
}

// NewGuarded wraps inner. A zero timeout leaves the caller's deadline alone.
func NewGuarded(inner Recognizer, breaker *resilience.CircuitBreaker, retry *resilience.RetryConfig, timeout time.Duration) *Guarded {
	if retry == nil {
		retry = resilience.DefaultRetryConfig()
	}
	return &Guarded{
		inner:   inner,
		breaker: breaker,
		retry:   retry,
		timeout: timeout,
	}
}

// Recognize runs inner under the breaker. All attempts share one deadline.
func (g *Guarded) Recognize(ctx context.Context, videoPath string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var text string
	err := g.breaker.Call(func() error {
		return resilience.Retry(ctx, func(ctx context.Context) error {
			t, err := g.inner.Recognize(ctx, videoPath)
			if err != nil {
				return err
			}
			text = t
			return nil
		}, g.retry, resilience.IsRetryableNetworkError)
	})
	if err == nil {
		return text, nil
	}

	if !errors.Is(err, resilience.ErrCircuitOpen) {
		observability.IncrementCircuitBreakerFailures(g.breaker.Name())
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%w after %s: %v", ErrTimeout, g.timeout, err)
	}
	return "", err
}

// NewBackend builds the recognizer backend selected by cfg.RecognizerMode
func NewBackend(cfg *config.Config) (Backend, error) {
	switch cfg.RecognizerMode {
	case config.RecognizerExec:
		r, err := NewExecRecognizer(cfg.RecognizerCommand)
		if err != nil {
			return nil, err
		}
		return r, nil
	case config.RecognizerHTTP:
		return NewHTTPRecognizer(cfg.RecognizerURL), nil
	case config.RecognizerGRPC:
		r, err := NewGRPCRecognizer(cfg.RecognizerGRPCAddr)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	return nil, fmt.Errorf("unknown recognizer mode %q", cfg.RecognizerMode)
}

// NewGuardedFromConfig wraps inner with the breaker, retry and timeout settings in cfg
func NewGuardedFromConfig(inner Recognizer, cfg *config.Config) *Guarded {
	breaker := resilience.NewCircuitBreaker(
		"recognizer",
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		resilience.WithStateChange(func(name string, state resilience.CircuitState) {
			observability.UpdateCircuitBreakerState(name, int(state))
		}),
	)
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.RetryMaxAttempts
	retry.InitialBackoff = time.Duration(cfg.RetryInitialBackoff) * time.Millisecond
	return NewGuarded(inner, breaker, retry, cfg.RecognitionTimeout)
}
