package notify

import (
	"context"
	"time"

	"steward/internal/protocol"
	"steward/pkg/logging"
)

// Report is the run-level summary handed to notifiers.
type Report struct {
	GeneratedAt    time.Time
	Succeeded      int
	Failed         int
	BalanceChanged bool
	Outcomes       []protocol.Outcome
}

// Notifier delivers a run report over one channel.
type Notifier interface {
	Name() string
	IsConfigured() bool
	Notify(ctx context.Context, report Report) error
}

// Dispatcher fans a report out to every configured channel. Delivery
// failures are logged per channel and never fail the run.
type Dispatcher struct {
	logger    logging.Logger
	notifiers []Notifier
}

func NewDispatcher(logger logging.Logger, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{logger: logger, notifiers: notifiers}
}

// ShouldNotify reports whether a run is worth announcing: any failure,
// or a successful run whose balances moved. An all-quiet run stays quiet.
func ShouldNotify(r Report) bool {
	return r.Failed > 0 || (r.Succeeded > 0 && r.BalanceChanged)
}

func (d *Dispatcher) Dispatch(ctx context.Context, report Report) {
	if !ShouldNotify(report) {
		d.logger.Info("All accounts succeeded with no balance change; skipping notifications")
		return
	}

	for _, n := range d.notifiers {
		log := d.logger.WithFields(logging.Fields{"channel": n.Name()})
		if !n.IsConfigured() {
			log.Debug("Notifier not configured, skipping")
			continue
		}
		if err := n.Notify(ctx, report); err != nil {
			log.WithError(err).Error("Failed to deliver run report")
			continue
		}
		log.Info("Run report delivered")
	}
}
