package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"piggybank/internal/amqp"
	"piggybank/internal/core"
	"piggybank/internal/services"

	"golang.org/x/sync/errgroup"
)

// reconcileActor is the audit identity on balance rows the worker rewrites.
const reconcileActor = "system:reconcile-worker"

// KidLister pages through every kid for the consistency sweep.
type KidLister interface {
	ListKidsBatch(ctx context.Context, limit, offset int) ([]core.Kid, error)
}

// ReconcileWorker repairs bucket balance rows that drifted from the
// ledger. It reacts to reconcile messages and additionally sweeps all
// kids on a timer as a backup in case messages are lost.
type ReconcileWorker struct {
	kids      KidLister
	projector *services.BalanceProjector
	batchSize int
}

func NewReconcileWorker(kids KidLister, projector *services.BalanceProjector, batchSize int) *ReconcileWorker {
	return &ReconcileWorker{
		kids:      kids,
		projector: projector,
		batchSize: batchSize,
	}
}

// HandleReconcileMessage rebuilds one kid's balances from the ledger.
func (w *ReconcileWorker) HandleReconcileMessage(ctx context.Context, msg *amqp.BalanceReconcileMessage) error {
	slog.InfoContext(ctx, "Processing reconcile message",
		"kid_id", msg.KidID,
		"entry_id", msg.EntryID)

	balance, err := w.projector.RebuildFromLedger(ctx, msg.GuardianID, msg.KidID, reconcileActor)
	if err != nil {
		return fmt.Errorf("rebuild balances for kid %d: %w", msg.KidID, err)
	}

	slog.InfoContext(ctx, "Balances rebuilt from ledger",
		"kid_id", msg.KidID,
		"total", balance.Total().StringFixed(2))
	return nil
}

// SweepOnce verifies every kid's cached balances against the ledger and
// rebuilds the ones that drifted. Verification fans out; rebuilds run
// inline since drift is rare.
func (w *ReconcileWorker) SweepOnce(ctx context.Context) error {
	checked := 0
	repaired := 0

	for offset := 0; ; offset += w.batchSize {
		kids, err := w.kids.ListKidsBatch(ctx, w.batchSize, offset)
		if err != nil {
			return fmt.Errorf("list kids for sweep: %w", err)
		}
		if len(kids) == 0 {
			break
		}

		drifted := make([]bool, len(kids))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(4)
		for i, kid := range kids {
			g.Go(func() error {
				ok, err := w.projector.VerifyAgainstLedger(gctx, kid.ID)
				if err != nil {
					return fmt.Errorf("verify kid %d: %w", kid.ID, err)
				}
				drifted[i] = !ok
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for i, kid := range kids {
			if !drifted[i] {
				continue
			}
			slog.WarnContext(ctx, "Balance drift detected, rebuilding",
				"kid_id", kid.ID,
				"guardian_id", kid.GuardianID)
			if _, err := w.projector.RebuildFromLedger(ctx, kid.GuardianID, kid.ID, reconcileActor); err != nil {
				slog.ErrorContext(ctx, "Failed to rebuild balances",
					"kid_id", kid.ID,
					"error", err)
				continue
			}
			repaired++
		}
		checked += len(kids)
	}

	slog.InfoContext(ctx, "Consistency sweep completed",
		"checked", checked,
		"repaired", repaired)
	return nil
}

// Run performs a startup sweep then repeats on the given interval until
// the context is cancelled.
func (w *ReconcileWorker) Run(ctx context.Context, interval time.Duration) error {
	if err := w.SweepOnce(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup consistency sweep failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping consistency sweep", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			if err := w.SweepOnce(ctx); err != nil {
				slog.ErrorContext(ctx, "Consistency sweep failed", "error", err)
			}
		}
	}
}
