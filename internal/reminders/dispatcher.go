package reminders

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/donnabot/donna/internal/observability"
)

const (
	defaultPollInterval = 30 * time.Second
	defaultMaxAttempts  = 3
	claimBatchSize      = 20
)

// Deliverer sends one reminder to its channel.
type Deliverer interface {
	Deliver(ctx context.Context, r *Reminder) error
}

// DelivererFunc adapts a function to the Deliverer interface.
type DelivererFunc func(ctx context.Context, r *Reminder) error

func (f DelivererFunc) Deliver(ctx context.Context, r *Reminder) error {
	return f(ctx, r)
}

// Dispatcher polls the store for due reminders and delivers each exactly
// once. A failed delivery rolls the claim back for the next tick; after the
// attempt budget the reminder is marked failed.
type Dispatcher struct {
	store   Store
	deliver Deliverer
	logger  *observability.Logger
	metrics *observability.Metrics

	token       string
	poll        time.Duration
	maxAttempts int
	now         func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithPollInterval overrides the poll cadence; values above 30 s are
// clamped so due reminders never wait longer than one window.
func WithPollInterval(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) {
		if d > 0 && d <= defaultPollInterval {
			dp.poll = d
		}
	}
}

// WithMaxAttempts overrides the delivery attempt budget.
func WithMaxAttempts(n int) DispatcherOption {
	return func(dp *Dispatcher) {
		if n > 0 {
			dp.maxAttempts = n
		}
	}
}

// WithNow injects a clock, for tests.
func WithNow(now func() time.Time) DispatcherOption {
	return func(dp *Dispatcher) { dp.now = now }
}

// NewDispatcher creates a reminder dispatcher.
func NewDispatcher(store Store, deliver Deliverer, logger *observability.Logger, metrics *observability.Metrics, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:       store,
		deliver:     deliver,
		logger:      logger.With("component", "reminders"),
		metrics:     metrics,
		token:       uuid.NewString(),
		poll:        defaultPollInterval,
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start runs the poll loop until ctx is cancelled or Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.poll)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				d.runOnce(runCtx)
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight tick.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

// runOnce claims and delivers every due reminder. Tests drive it directly.
func (d *Dispatcher) runOnce(ctx context.Context) {
	now := d.now()
	due, err := d.store.Due(ctx, now, claimBatchSize)
	if err != nil {
		d.logger.Warn(ctx, "due query failed", "error", err)
		return
	}

	for _, r := range due {
		ok, err := d.store.Claim(ctx, r.ID, d.token, now)
		if err != nil {
			d.logger.Warn(ctx, "claim failed", "reminder", r.ID, "error", err)
			continue
		}
		if !ok {
			// Another worker won the row.
			continue
		}
		d.deliverOne(ctx, r)
	}
}

func (d *Dispatcher) deliverOne(ctx context.Context, r *Reminder) {
	attempts := r.Attempts + 1 // the claim incremented the stored counter

	if err := d.deliver.Deliver(ctx, r); err != nil {
		final := attempts >= d.maxAttempts
		d.logger.Warn(ctx, "reminder delivery failed",
			"reminder", r.ID, "channel", r.ChannelID, "attempt", attempts, "final", final, "error", err)
		if rerr := d.store.Release(ctx, r.ID, d.token, final); rerr != nil {
			d.logger.Error(ctx, "claim release failed", "reminder", r.ID, "error", rerr)
		}
		if final {
			d.metrics.RemindersDelivered.WithLabelValues("failed").Inc()
		}
		return
	}

	if err := d.store.MarkDelivered(ctx, r.ID, d.token, d.now()); err != nil {
		d.logger.Error(ctx, "delivered reminder not finalised", "reminder", r.ID, "error", err)
		return
	}
	d.metrics.RemindersDelivered.WithLabelValues("delivered").Inc()
	d.logger.Info(ctx, "reminder delivered", "reminder", r.ID, "channel", r.ChannelID)
}
