/*
Package scheduler runs the background reminder/expiry loop.

PURPOSE:
  Periodically sweeps every open reservation and drives time-triggered
  lifecycle transitions: payment reminders as elapsed/remaining time crosses
  configured thresholds, expiry deletion past the cutoffs, and cooldown-
  limited admin pings about unconfirmed payments.

DESIGN:
  - Single dedicated goroutine; a tick never starts before the previous one
    finishes, and Stop waits for an in-flight tick (graceful shutdown).
  - "Exactly once per threshold" uses the window technique: a reminder fires
    when the measured time lands within +/- half the poll interval of the
    threshold. Config validation guarantees thresholds are spaced more than
    one poll interval apart, so no threshold fires twice or is skipped.
  - A failure on one reservation never aborts the tick for the others; a
    store-level failure is logged and retried next tick, never fatal.
  - Expiry goes through Lifecycle.Expire, whose delete is conditioned on
    the row still being unpaid - the scheduler can never delete a
    reservation that moved to PendingConfirmation under its feet, and it
    NEVER marks anything paid.

SEE ALSO:
  - booking/lifecycle.go: The transitions this loop triggers
  - config/config.go: Threshold and poll-interval validation
*/
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ikigai/booking-engine/booking"
	"github.com/ikigai/booking-engine/metrics"
)

// Config is the threshold layout for one scheduler instance.
type Config struct {
	// PollInterval is the tick rate; Window the +/- tolerance around each
	// threshold (normally PollInterval/2).
	PollInterval time.Duration
	Window       time.Duration

	// FromCreation thresholds count up from CreatedAt, ascending. The last
	// entry is the expiry cutoff; earlier entries are warnings.
	FromCreation []time.Duration

	// BeforeStart warning thresholds count down to TimeFrom, ascending
	// (the smallest remaining time is the most urgent).
	BeforeStart []time.Duration

	// DeleteBeforeStart expires a reservation whose start is closer than
	// this and still unpaid.
	DeleteBeforeStart time.Duration

	// AdminCooldown is the minimum spacing between admin backlog pings.
	AdminCooldown time.Duration
}

// ReminderScheduler is the background poll loop.
type ReminderScheduler struct {
	Store     booking.Store
	Lifecycle *booking.Lifecycle
	Notifier  booking.Notifier
	Clock     booking.Clock
	Config    Config
	Metrics   *metrics.Metrics

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	lastAdminPing time.Time
}

func New(store booking.Store, lifecycle *booking.Lifecycle, notifier booking.Notifier, clock booking.Clock, cfg Config) *ReminderScheduler {
	if notifier == nil {
		notifier = booking.NopNotifier{}
	}
	if clock == nil {
		clock = booking.SystemClock()
	}
	return &ReminderScheduler{
		Store:     store,
		Lifecycle: lifecycle,
		Notifier:  notifier,
		Clock:     clock,
		Config:    cfg,
		stop:      make(chan struct{}),
	}
}

// Start begins the loop. The first tick runs immediately.
func (rs *ReminderScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.running {
		return
	}
	rs.running = true

	rs.stop = make(chan struct{})
	rs.ticker = time.NewTicker(rs.Config.PollInterval)
	rs.wg.Add(1)
	go rs.run()

	log.Printf("[Scheduler] Started: poll %v, window +/-%v", rs.Config.PollInterval, rs.Config.Window)
}

// Stop halts the loop, waiting for an in-flight tick to finish.
func (rs *ReminderScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.running {
		return
	}
	rs.running = false

	rs.ticker.Stop()
	close(rs.stop)
	rs.wg.Wait()
	log.Println("[Scheduler] Stopped")
}

func (rs *ReminderScheduler) run() {
	defer rs.wg.Done()

	rs.Tick(context.Background())

	for {
		select {
		case <-rs.ticker.C:
			rs.Tick(context.Background())
		case <-rs.stop:
			return
		}
	}
}

// Tick runs one full sweep. Exported so tests and admin endpoints can drive
// the loop against a synthetic clock.
func (rs *ReminderScheduler) Tick(ctx context.Context) {
	started := time.Now()
	defer func() {
		if rs.Metrics != nil {
			rs.Metrics.TickDuration.Observe(time.Since(started).Seconds())
		}
	}()

	rs.checkUnpaid(ctx)
	rs.checkAdminBacklog(ctx)
}

// checkUnpaid applies both threshold axes to every unpaid upcoming
// reservation. Expiry wins over reminders; one reservation's failure never
// stops the sweep.
func (rs *ReminderScheduler) checkUnpaid(ctx context.Context) {
	now := rs.Clock.Now()

	unpaid, err := rs.Store.GetUpcomingUnpaid(ctx, now)
	if err != nil {
		log.Printf("[Scheduler] Error listing unpaid reservations: %v (will retry next tick)", err)
		return
	}

	for _, r := range unpaid {
		if err := rs.checkReservation(ctx, r, now); err != nil {
			log.Printf("[Scheduler] Error processing %s: %v", r.OrderID, err)
		}
	}
}

func (rs *ReminderScheduler) checkReservation(ctx context.Context, r booking.Reservation, now time.Time) error {
	untilStart := r.TimeFrom.Sub(now)
	sinceCreation := now.Sub(r.CreatedAt)

	// Expiry cutoffs first; an expired reservation gets no reminder.
	if untilStart <= rs.Config.DeleteBeforeStart {
		return rs.expire(ctx, r, "start in "+untilStart.String())
	}
	if cutoff := rs.creationCutoff(); cutoff > 0 && sinceCreation > cutoff {
		return rs.expire(ctx, r, "unpaid for "+sinceCreation.String())
	}

	// Time-to-start warnings: smallest remaining time is level 0.
	for level, threshold := range rs.Config.BeforeStart {
		if withinWindow(untilStart, threshold, rs.Config.Window) {
			rs.remind(r, level, booking.SourceStart)
			break
		}
	}

	// Time-since-creation warnings escalate as more time passes: the
	// warning closest to the cutoff is level 0.
	warnings := rs.creationWarnings()
	for i := len(warnings) - 1; i >= 0; i-- {
		if withinWindow(sinceCreation, warnings[i], rs.Config.Window) {
			rs.remind(r, len(warnings)-1-i, booking.SourceCreation)
			break
		}
	}
	return nil
}

// checkAdminBacklog pings the admin channel about paid-but-unconfirmed
// reservations, at most once per cooldown regardless of poll frequency.
func (rs *ReminderScheduler) checkAdminBacklog(ctx context.Context) {
	now := rs.Clock.Now()
	if !rs.lastAdminPing.IsZero() && now.Sub(rs.lastAdminPing) < rs.Config.AdminCooldown {
		return
	}

	pending, err := rs.Store.GetPaidUnconfirmed(ctx, now)
	if err != nil {
		log.Printf("[Scheduler] Error listing unconfirmed payments: %v (will retry next tick)", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	for _, r := range pending {
		rs.publish(booking.PaymentPendingAdminReview{Reservation: r})
		if rs.Metrics != nil {
			rs.Metrics.AdminPings.Inc()
		}
	}
	rs.lastAdminPing = now
}

func (rs *ReminderScheduler) expire(ctx context.Context, r booking.Reservation, reason string) error {
	_, deleted, err := rs.Lifecycle.Expire(ctx, r.OrderID)
	if err != nil {
		return err
	}
	if deleted {
		log.Printf("[Scheduler] Expired %s (%s)", r.OrderID, reason)
		if rs.Metrics != nil {
			rs.Metrics.ReservationsExpired.Inc()
		}
	}
	return nil
}

func (rs *ReminderScheduler) remind(r booking.Reservation, level int, source booking.ReminderSource) {
	rs.publish(booking.ReminderDue{Reservation: r, Level: level, Source: source})
	if rs.Metrics != nil {
		rs.Metrics.RemindersSent.WithLabelValues(string(source)).Inc()
	}
}

func (rs *ReminderScheduler) publish(event booking.Event) {
	if err := rs.Notifier.Publish(event); err != nil {
		log.Printf("[Scheduler] notify %s failed: %v", event.Kind(), err)
	}
}

func (rs *ReminderScheduler) creationCutoff() time.Duration {
	if len(rs.Config.FromCreation) == 0 {
		return 0
	}
	return rs.Config.FromCreation[len(rs.Config.FromCreation)-1]
}

func (rs *ReminderScheduler) creationWarnings() []time.Duration {
	if len(rs.Config.FromCreation) == 0 {
		return nil
	}
	return rs.Config.FromCreation[:len(rs.Config.FromCreation)-1]
}

// withinWindow is the single deterministic window check: measured time
// lands inside [threshold-window, threshold+window].
func withinWindow(measured, threshold, window time.Duration) bool {
	return measured >= threshold-window && measured <= threshold+window
}
