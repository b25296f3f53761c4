package channels

import (
	"context"
	"fmt"

	"github.com/donnabot/donna/internal/observability"
	"github.com/donnabot/donna/internal/retry"
	"github.com/donnabot/donna/pkg/models"
)

// RetryingSender wraps a Sender with jittered exponential backoff.
// Non-retryable channel errors stop immediately; each extra attempt is
// counted in the egress-retries metric.
type RetryingSender struct {
	inner    Sender
	config   retry.Config
	logger   *observability.Logger
	metrics  *observability.Metrics
	operator string
}

// RetryingOption configures a RetryingSender.
type RetryingOption func(*RetryingSender)

// WithOperatorChannel posts a one-line diagnostic to channelID when a send
// fails terminally. Empty disables the diagnostic.
func WithOperatorChannel(channelID string) RetryingOption {
	return func(s *RetryingSender) { s.operator = channelID }
}

// NewRetryingSender wraps inner with the platform-egress retry policy.
func NewRetryingSender(inner Sender, logger *observability.Logger, metrics *observability.Metrics, opts ...RetryingOption) *RetryingSender {
	s := &RetryingSender{
		inner:   inner,
		config:  retry.DefaultConfig(),
		logger:  logger.With("component", "egress"),
		metrics: metrics,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RetryingSender) Send(ctx context.Context, channelID string, msg models.OutboundMessage) error {
	result := retry.Do(ctx, s.config, func() error {
		err := s.inner.Send(ctx, channelID, msg)
		if err != nil && !IsRetryable(err) {
			return retry.Permanent(err)
		}
		return err
	})

	if result.Attempts > 1 {
		s.metrics.EgressRetries.Add(float64(result.Attempts - 1))
		s.logger.Warn(ctx, "send retried",
			"channel", channelID, "attempts", result.Attempts, "error", result.Err)
	}
	if result.Err != nil {
		s.logger.Error(ctx, "send failed terminally",
			"channel", channelID, "attempts", result.Attempts, "error", result.Err)
		s.notifyOperator(ctx, channelID, result.Attempts, result.Err)
	}
	return result.Err
}

// notifyOperator posts a best-effort diagnostic about a terminally failed
// delivery. Failures on the operator channel itself only log, so a dead
// channel cannot loop.
func (s *RetryingSender) notifyOperator(ctx context.Context, channelID string, attempts int, sendErr error) {
	if s.operator == "" || s.operator == channelID {
		return
	}
	diag := models.OutboundMessage{Content: fmt.Sprintf(
		"⚠️ Delivery to %s failed after %d attempts: %v", channelID, attempts, sendErr)}
	if err := s.inner.Send(ctx, s.operator, diag); err != nil {
		s.logger.Error(ctx, "operator diagnostic failed", "error", err)
	}
}
