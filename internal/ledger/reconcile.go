package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aeras-mobility/aeras-backend/internal/observability"
)

// Correction records one balance repaired against the transaction log.
type Correction struct {
	PullerID   uint `json:"pullerId"`
	OldBalance int  `json:"oldBalance"`
	LogBalance int  `json:"logBalance"`
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	RanAt       time.Time    `json:"ranAt"`
	Checked     int          `json:"checked"`
	Corrections []Correction `json:"corrections"`
}

// Reconciler periodically recomputes each puller balance from the REWARDED
// transaction log and repairs drift left behind by the non-atomic fallback
// path. The log, being append-only, is the source of truth; the running
// balance is just a cache of it.
type Reconciler struct {
	balances BalanceStore
	txlog    TransactionLog
	interval time.Duration
	archive  func(name string, data []byte) (string, error)
	log      *slog.Logger
}

func NewReconciler(balances BalanceStore, txlog TransactionLog, interval time.Duration, archive func(string, []byte) (string, error), log *slog.Logger) *Reconciler {
	return &Reconciler{balances: balances, txlog: txlog, interval: interval, archive: archive, log: log}
}

// Run executes reconciliation passes until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.log.Error("ledger reconciliation pass failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single pass and archives the report.
func (r *Reconciler) RunOnce(ctx context.Context) (*ReconcileReport, error) {
	balances, err := r.balances.Balances(ctx)
	if err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}
	totals, err := r.txlog.RewardedTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rewarded totals: %w", err)
	}

	report := &ReconcileReport{RanAt: time.Now().UTC(), Checked: len(balances)}
	for pullerID, balance := range balances {
		logBalance := totals[pullerID]
		if balance == logBalance {
			continue
		}
		if err := r.balances.SetBalance(ctx, pullerID, logBalance); err != nil {
			r.log.Error("failed to correct drifted balance", "pullerId", pullerID, "error", err)
			continue
		}
		observability.ReconcileDrift.Inc()
		r.log.Warn("corrected drifted balance from transaction log",
			"pullerId", pullerID, "was", balance, "now", logBalance)
		report.Corrections = append(report.Corrections, Correction{
			PullerID: pullerID, OldBalance: balance, LogBalance: logBalance,
		})
	}

	if r.archive != nil {
		data, err := json.MarshalIndent(report, "", "  ")
		if err == nil {
			name := fmt.Sprintf("ledger-reconcile-%s.json", report.RanAt.Format("20060102T150405Z"))
			if url, err := r.archive(name, data); err != nil {
				r.log.Warn("failed to archive reconciliation report", "error", err)
			} else {
				r.log.Info("archived reconciliation report", "url", url, "corrections", len(report.Corrections))
			}
		}
	}
	return report, nil
}
