// Package outbox drains the durable event rows written inside ledger
// transactions. The poller is the causal-ordering point of the pipeline:
// for each event it first runs commission distribution, then webhook
// fan-out, then marks the row processed — so a payment's commissions always
// exist before its webhook event is dispatched.
package outbox

import (
	"context"
	"time"

	"umrah-backend/internal/apperrors"
	"umrah-backend/internal/interfaces"
	"umrah-backend/internal/metrics"
	"umrah-backend/internal/models"
	"umrah-backend/internal/services"
	"umrah-backend/internal/telemetry"

	"umrah-backend/internal/events"

	"go.uber.org/zap"
)

type Poller struct {
	store       interfaces.OutboxStore
	distributor *services.CommissionService
	webhooks    *services.WebhookService
	publisher   events.Publisher
	interval    time.Duration
	batchSize   int
}

func NewPoller(store interfaces.OutboxStore, distributor *services.CommissionService, webhooks *services.WebhookService, publisher events.Publisher, interval time.Duration, batchSize int) *Poller {
	if batchSize <= 0 {
		batchSize = 100
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Poller{
		store:       store,
		distributor: distributor,
		webhooks:    webhooks,
		publisher:   publisher,
		interval:    interval,
		batchSize:   batchSize,
	}
}

// Run polls until the context is cancelled. Draining is re-entrant: every
// step is idempotent, so a crash mid-batch just means the next pass redoes
// some no-op work.
func (p *Poller) Run(ctx context.Context) {
	telemetry.Logger.Info("outbox poller started", zap.Duration("interval", p.interval))
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			telemetry.Logger.Info("outbox poller stopped")
			return
		case <-ticker.C:
			if err := p.Drain(ctx); err != nil {
				telemetry.Logger.Error("outbox drain failed", zap.Error(err))
			}
		}
	}
}

// Drain processes unprocessed events in insertion order, stopping at the
// first transient failure so ordering is preserved for the next pass.
func (p *Poller) Drain(ctx context.Context) error {
	evts, err := p.store.UnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		return err
	}

	for _, evt := range evts {
		if err := p.process(ctx, evt); err != nil {
			return err
		}
	}

	if backlog, err := p.store.Backlog(ctx); err == nil {
		metrics.OutboxBacklog.Set(float64(backlog))
	}
	return nil
}

func (p *Poller) process(ctx context.Context, evt *models.OutboxEvent) error {
	env := evt.Envelope()

	if env.EventType == models.EventPaymentConfirmed {
		if _, err := p.distributor.Distribute(ctx, env); err != nil {
			switch apperrors.KindOf(err) {
			case apperrors.KindConfiguration, apperrors.KindInvalidArgument:
				// The payment stands and the event still reaches webhook
				// receivers. Distribution is flagged for the operator, who
				// re-runs it via Redistribute once the rule exists.
				telemetry.Logger.Error("distribution deferred for operator action",
					zap.Int64("outbox_id", evt.ID),
					zap.String("event_id", env.EventID),
					zap.Error(err))
			default:
				return err
			}
		}
	}

	if err := p.webhooks.FanOut(ctx, env); err != nil {
		return err
	}

	if err := p.publisher.Publish(ctx, env); err != nil {
		// The stream is a secondary surface; it must not stall commission
		// distribution or webhook delivery.
		telemetry.Logger.Warn("event stream publish failed",
			zap.String("event_id", env.EventID), zap.Error(err))
	}

	return p.store.MarkEventProcessed(ctx, evt.ID)
}
