package stats

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

// RecomputeArgs asks for all timeframes of (account, platform) to be
// rebuilt. Enqueued inside the order-creation transaction so the job is
// only visible once the orders are.
type RecomputeArgs struct {
	AccountID uuid.UUID `json:"account_id"`
	Platform  string    `json:"platform"`
}

func (RecomputeArgs) Kind() string { return "stats_recompute" }

type RecomputeWorker struct {
	river.WorkerDefaults[RecomputeArgs]
	service *Service
	logger  *slog.Logger
}

func NewRecomputeWorker(service *Service, logger *slog.Logger) *RecomputeWorker {
	return &RecomputeWorker{service: service, logger: logger}
}

func (w *RecomputeWorker) Work(ctx context.Context, job *river.Job[RecomputeArgs]) error {
	args := job.Args
	if err := w.service.RecomputeAll(ctx, args.AccountID, args.Platform); err != nil {
		return err
	}
	w.logger.Debug("stats recomputed", "account_id", args.AccountID, "platform", args.Platform)
	return nil
}
