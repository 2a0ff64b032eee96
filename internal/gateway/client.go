package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/imrishuroy/go-payment-reconciler/internal/config"
	"github.com/imrishuroy/go-payment-reconciler/internal/metrics"
)

// NewHTTPClient returns a resty client with a bounded timeout and no automatic retries.
func NewHTTPClient(baseURL string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0). // retries belong to the SQS poll loop
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
}

// CheckResponse classifies a resty result into nil, ErrUpstream or ErrRejected.
func CheckResponse(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	switch code := resp.StatusCode(); {
	case code >= http.StatusInternalServerError, code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrUpstream, code)
	case code >= http.StatusBadRequest:
		return fmt.Errorf("%w: status %d: %s", ErrRejected, code, truncate(resp.String(), 256))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Breaker wraps gobreaker for one provider. Only ErrUpstream failures count against it.
type Breaker struct {
	cb       *gobreaker.CircuitBreaker
	provider Provider
}

// NewBreaker creates a breaker reporting state to prometheus.
func NewBreaker(provider Provider, c config.Gateway) *Breaker {
	minRequests := c.BreakerMinRequests
	ratio := c.BreakerFailureRatio
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(provider),
		MaxRequests: c.BreakerMaxRequests,
		Interval:    c.BreakerInterval,
		Timeout:     c.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests || counts.Requests == 0 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrUpstream)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			log.WithFields(log.Fields{
				"provider": name,
				"from":     from.String(),
				"to":       to.String(),
			}).Warn("gateway circuit breaker state changed")
		},
	})
	metrics.CircuitBreakerState.WithLabelValues(string(provider)).Set(0)
	return &Breaker{cb: cb, provider: provider}
}

// Do runs fn through the breaker and counts the call by result.
func (b *Breaker) Do(operation string, fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %s circuit %v", ErrUpstream, b.provider, err)
	}
	metrics.GatewayRequests.WithLabelValues(string(b.provider), operation, resultLabel(err)).Inc()
	return err
}

// State returns the breaker state name.
func (b *Breaker) State() string { return b.cb.State().String() }

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUpstream):
		return "upstream_error"
	case errors.Is(err, ErrRejected):
		return "rejected"
	}
	return "error"
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	}
	return 0
}
